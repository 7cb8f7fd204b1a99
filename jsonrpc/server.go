package jsonrpc

import (
	"context"
	"encoding/hex"
	"fmt"
	"math"
	"net"
	"net/http"
	_ "net/http/pprof"
	"os"
	"strconv"
	"strings"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/handler"
	"github.com/creachadair/jrpc2/jhttp"

	"github.com/mlnlabs/mln/abci"
	"github.com/mlnlabs/mln/errors"
	"github.com/mlnlabs/mln/identity"
	"github.com/mlnlabs/mln/jsonx"
	"github.com/mlnlabs/mln/logx"
	"github.com/mlnlabs/mln/merkle"
	"github.com/mlnlabs/mln/monitoring"
	"github.com/mlnlabs/mln/ratelimit"
	"github.com/mlnlabs/mln/store"
	"github.com/mlnlabs/mln/transaction"
	"github.com/mlnlabs/mln/types"
)

// --- Error type used by handlers ---

type rpcError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func toJRPC2Error(e *rpcError) error {
	if e == nil {
		return nil
	}
	var ledgerError errors.LedgerError
	err := jsonx.Unmarshal([]byte(e.Message), &ledgerError)
	if err == nil && ledgerError.Code != "" {
		return jrpc2.Errorf(jrpc2.Code(e.Code), "%s", ledgerError.Message).WithData(ledgerError)
	}
	return jrpc2.Errorf(jrpc2.Code(e.Code), "%s", e.Message)
}

func invalidParams(code errors.LedgerErrorCode, message string) *rpcError {
	return &rpcError{Code: -32602, Message: errors.NewError(code, message).Error()}
}

func notFound(message string) *rpcError {
	return &rpcError{Code: -32004, Message: errors.NewError(errors.ErrCodeNotFound, message).Error()}
}

func internalError(err error) *rpcError {
	return &rpcError{Code: -32603, Message: err.Error()}
}

// --- Params/Results ---

// Node
type nodeStatusResponse struct {
	Height        uint64 `json:"height"`
	Root          string `json:"root"`
	Phase         string `json:"phase"`
	LastBlockTime uint64 `json:"last_block_time"`
	StateRecords  uint64 `json:"state_records"`
}

type healthCheckResponse struct {
	Ok     bool   `json:"ok"`
	Height uint64 `json:"height"`
}

// Ledger
type symbolData struct {
	Symbol      string `json:"symbol"`
	Name        string `json:"name"`
	Decimals    uint32 `json:"decimals"`
	Owner       string `json:"owner"`
	TotalSupply string `json:"total_supply"`
}

type getLedgerInfoResponse struct {
	Height  uint64       `json:"height"`
	Root    string       `json:"root"`
	Symbols []symbolData `json:"symbols"`
}

type getBalanceRequest struct {
	Address string `json:"address"`
	Symbol  string `json:"symbol"`
}

type getBalanceResponse struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Balance  string `json:"balance"`
	Decimals uint32 `json:"decimals"`
	Nonce    uint64 `json:"nonce"`
	Height   uint64 `json:"height"`
}

// KV store
type getKVRequest struct {
	Key string `json:"key"`
}

type getKVResponse struct {
	Key     string   `json:"key"`
	Found   bool     `json:"found"`
	Value   []byte   `json:"value,omitempty"`
	Owner   string   `json:"owner,omitempty"`
	Writers []string `json:"writers,omitempty"`
	Height  uint64   `json:"height"`
}

type getKVInfoResponse struct {
	Entries    uint64 `json:"entries"`
	ValueBytes uint64 `json:"value_bytes"`
	Height     uint64 `json:"height"`
}

// Multisig
type getMultisigRequest struct {
	Address string `json:"address"`
}

type getMultisigResponse struct {
	Address      string   `json:"address"`
	Owners       []string `json:"owners"`
	Threshold    uint32   `json:"threshold"`
	ExpiryBlocks uint64   `json:"expiry_blocks"`
	Pending      []uint64 `json:"pending,omitempty"`
}

type getPendingStatusRequest struct {
	Token uint64 `json:"token"`
}

type getPendingStatusResponse struct {
	Token      uint64   `json:"token"`
	Account    string   `json:"account"`
	Proposer   string   `json:"proposer"`
	Kind       string   `json:"kind"`
	Approvals  []string `json:"approvals"`
	Threshold  uint32   `json:"threshold"`
	Expires    bool     `json:"expires"`
	ExpireAt   uint64   `json:"expire_at,omitempty"`
	Expired    bool     `json:"expired"`
	Executable bool     `json:"executable"`
}

// Proofs
type getProofRequest struct {
	Key []byte `json:"key"`
}

type getProofResponse struct {
	Key    []byte `json:"key"`
	Value  []byte `json:"value,omitempty"`
	Found  bool   `json:"found"`
	Height uint64 `json:"height"`
	Root   string `json:"root"`
	Proof  []byte `json:"proof"`
}

// --- Server ---

// Server is the read-only query surface over committed state. Commands reach
// the node only through the consensus adapter, so nothing here can write.
type Server struct {
	addr       string
	node       *abci.App
	state      *merkle.Store
	corsConfig CORSConfig
	limiter    *ratelimit.EndpointLimiter
}

type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	MaxAge         int
}

func NewServer(addr string, node *abci.App, state *merkle.Store) *Server {
	return &Server{
		addr:  addr,
		node:  node,
		state: state,
		corsConfig: CORSConfig{
			AllowedOrigins: []string{},
			AllowedMethods: []string{},
			AllowedHeaders: []string{},
			MaxAge:         0,
		},
	}
}

func (s *Server) Start() {
	monitoring.InitMetrics()
	methods := s.buildMethodMap()
	jh := jhttp.NewBridge(methods, &jhttp.BridgeOptions{Server: &jrpc2.ServerOptions{}})

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.setCORSHeaders(w, r)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		if !s.allowRequest(r.RemoteAddr) {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		jh.ServeHTTP(w, r)
	})

	http.Handle("/", h)
	logx.Info("RPC", fmt.Sprintf("JSON-RPC server listening on %s", s.addr))
	go http.ListenAndServe(s.addr, nil)
}

// SetCORSConfig allows configuring CORS settings
func (s *Server) SetCORSConfig(config CORSConfig) {
	s.corsConfig = config
}

// SetRateLimiter guards the HTTP endpoint with limiter. Call before Start; a
// nil limiter admits everything.
func (s *Server) SetRateLimiter(limiter *ratelimit.EndpointLimiter) {
	s.limiter = limiter
}

// allowRequest consults the limiter keyed by the client host. Requests with
// an unparseable remote address share one key rather than bypassing the
// limit.
func (s *Server) allowRequest(remoteAddr string) bool {
	if s.limiter == nil {
		return true
	}
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	return s.limiter.Allow(host)
}

// Build jrpc2 method map
func (s *Server) buildMethodMap() handler.Map {
	return handler.Map{
		MethodNodeStatus: handler.New(func(ctx context.Context) (*nodeStatusResponse, error) {
			monitoring.IncreaseRPCRequestCount(MethodNodeStatus)
			res, err := s.rpcNodeStatus()
			if err != nil {
				return nil, toJRPC2Error(err)
			}
			return res.(*nodeStatusResponse), nil
		}),
		MethodHealthCheck: handler.New(func(ctx context.Context) (*healthCheckResponse, error) {
			monitoring.IncreaseRPCRequestCount(MethodHealthCheck)
			height, _ := s.node.Info()
			return &healthCheckResponse{Ok: true, Height: height}, nil
		}),
		MethodLedgerInfo: handler.New(func(ctx context.Context) (*getLedgerInfoResponse, error) {
			monitoring.IncreaseRPCRequestCount(MethodLedgerInfo)
			res, err := s.rpcLedgerInfo()
			if err != nil {
				return nil, toJRPC2Error(err)
			}
			return res.(*getLedgerInfoResponse), nil
		}),
		MethodLedgerBalance: handler.New(func(ctx context.Context, p getBalanceRequest) (*getBalanceResponse, error) {
			monitoring.IncreaseRPCRequestCount(MethodLedgerBalance)
			res, err := s.rpcLedgerBalance(p)
			if err != nil {
				return nil, toJRPC2Error(err)
			}
			return res.(*getBalanceResponse), nil
		}),
		MethodKVStoreGet: handler.New(func(ctx context.Context, p getKVRequest) (*getKVResponse, error) {
			monitoring.IncreaseRPCRequestCount(MethodKVStoreGet)
			res, err := s.rpcKVStoreGet(p)
			if err != nil {
				return nil, toJRPC2Error(err)
			}
			return res.(*getKVResponse), nil
		}),
		MethodKVStoreInfo: handler.New(func(ctx context.Context) (*getKVInfoResponse, error) {
			monitoring.IncreaseRPCRequestCount(MethodKVStoreInfo)
			res, err := s.rpcKVStoreInfo()
			if err != nil {
				return nil, toJRPC2Error(err)
			}
			return res.(*getKVInfoResponse), nil
		}),
		MethodMultisigInfo: handler.New(func(ctx context.Context, p getMultisigRequest) (*getMultisigResponse, error) {
			monitoring.IncreaseRPCRequestCount(MethodMultisigInfo)
			res, err := s.rpcMultisigInfo(p)
			if err != nil {
				return nil, toJRPC2Error(err)
			}
			return res.(*getMultisigResponse), nil
		}),
		MethodMultisigStatus: handler.New(func(ctx context.Context, p getPendingStatusRequest) (*getPendingStatusResponse, error) {
			monitoring.IncreaseRPCRequestCount(MethodMultisigStatus)
			res, err := s.rpcMultisigStatus(p)
			if err != nil {
				return nil, toJRPC2Error(err)
			}
			return res.(*getPendingStatusResponse), nil
		}),
		MethodStateProof: handler.New(func(ctx context.Context, p getProofRequest) (*getProofResponse, error) {
			monitoring.IncreaseRPCRequestCount(MethodStateProof)
			res, err := s.rpcStateProof(p)
			if err != nil {
				return nil, toJRPC2Error(err)
			}
			return res.(*getProofResponse), nil
		}),
	}
}

// --- Implementations ---

func (s *Server) rpcNodeStatus() (interface{}, *rpcError) {
	status := s.node.Status()
	var lastBlock uint64
	if !status.LastBlockTime.IsZero() {
		lastBlock = uint64(status.LastBlockTime.Unix())
	}
	return &nodeStatusResponse{
		Height:        status.Height,
		Root:          hex.EncodeToString(status.Root[:]),
		Phase:         status.Phase,
		LastBlockTime: lastBlock,
		StateRecords:  status.StateSize,
	}, nil
}

func (s *Server) rpcLedgerInfo() (interface{}, *rpcError) {
	height, root := s.node.Info()
	view := s.state.Snapshot()

	var symbols []symbolData
	err := store.NewSymbolStore(view).WalkSymbols(func(symbol string, record *types.SymbolInfo) bool {
		symbols = append(symbols, symbolData{
			Symbol:      symbol,
			Name:        record.Name,
			Decimals:    record.Decimals,
			Owner:       record.Owner.Text(),
			TotalSupply: record.TotalSupply.String(),
		})
		return true
	})
	if err != nil {
		return nil, internalError(err)
	}
	return &getLedgerInfoResponse{
		Height:  height,
		Root:    hex.EncodeToString(root[:]),
		Symbols: symbols,
	}, nil
}

func (s *Server) rpcLedgerBalance(p getBalanceRequest) (interface{}, *rpcError) {
	addr, err := identity.FromText(p.Address)
	if err != nil {
		return nil, invalidParams(errors.ErrCodeInvalidAddress, errors.ErrMsgInvalidAddress)
	}
	height, _ := s.node.Info()
	view := s.state.Snapshot()
	accounts := store.NewAccountStore(view)

	info, err := store.NewSymbolStore(view).GetSymbol(p.Symbol)
	if err != nil {
		return nil, internalError(err)
	}
	if info == nil {
		return nil, invalidParams(errors.ErrCodeUnknownSymbol, errors.ErrMsgUnknownSymbol)
	}
	balance, err := accounts.GetBalance(addr, p.Symbol)
	if err != nil {
		return nil, internalError(err)
	}
	nonce, err := accounts.GetNonce(addr)
	if err != nil {
		return nil, internalError(err)
	}
	return &getBalanceResponse{
		Address:  p.Address,
		Symbol:   p.Symbol,
		Balance:  balance.String(),
		Decimals: info.Decimals,
		Nonce:    nonce,
		Height:   height,
	}, nil
}

func (s *Server) rpcKVStoreGet(p getKVRequest) (interface{}, *rpcError) {
	if p.Key == "" {
		return nil, invalidParams(errors.ErrCodeInvalidCommand, "key must not be empty")
	}
	height, _ := s.node.Info()
	entry, err := store.NewKVStore(s.state.Snapshot()).GetEntry([]byte(p.Key))
	if err != nil {
		return nil, internalError(err)
	}
	if entry == nil {
		return &getKVResponse{Key: p.Key, Found: false, Height: height}, nil
	}
	writers := make([]string, 0, len(entry.Writers))
	for _, writer := range entry.Writers {
		writers = append(writers, writer.Text())
	}
	return &getKVResponse{
		Key:     p.Key,
		Found:   true,
		Value:   entry.Value,
		Owner:   entry.Owner.Text(),
		Writers: writers,
		Height:  height,
	}, nil
}

func (s *Server) rpcKVStoreInfo() (interface{}, *rpcError) {
	height, _ := s.node.Info()
	var entries, valueBytes uint64
	err := store.NewKVStore(s.state.Snapshot()).WalkEntries(nil, func(key []byte, record *types.KVEntry) bool {
		entries++
		valueBytes += uint64(len(record.Value))
		return true
	})
	if err != nil {
		return nil, internalError(err)
	}
	return &getKVInfoResponse{Entries: entries, ValueBytes: valueBytes, Height: height}, nil
}

func (s *Server) rpcMultisigInfo(p getMultisigRequest) (interface{}, *rpcError) {
	addr, err := identity.FromText(p.Address)
	if err != nil {
		return nil, invalidParams(errors.ErrCodeInvalidAddress, errors.ErrMsgInvalidAddress)
	}
	multisigs := store.NewMultisigStore(s.state.Snapshot())
	account, err := multisigs.GetMultisig(addr)
	if err != nil {
		return nil, internalError(err)
	}
	if account == nil {
		return nil, notFound(errors.ErrMsgAccountNotFound)
	}
	owners := make([]string, 0, len(account.Owners))
	for _, owner := range account.Owners {
		owners = append(owners, owner.Text())
	}
	var pending []uint64
	err = multisigs.WalkPending(func(token uint64, record *types.PendingTransaction) bool {
		if record.Account == addr {
			pending = append(pending, token)
		}
		return true
	})
	if err != nil {
		return nil, internalError(err)
	}
	return &getMultisigResponse{
		Address:      p.Address,
		Owners:       owners,
		Threshold:    account.Threshold,
		ExpiryBlocks: account.ExpiryBlocks,
		Pending:      pending,
	}, nil
}

func (s *Server) rpcMultisigStatus(p getPendingStatusRequest) (interface{}, *rpcError) {
	height, _ := s.node.Info()
	multisigs := store.NewMultisigStore(s.state.Snapshot())
	pending, err := multisigs.GetPending(p.Token)
	if err != nil {
		return nil, internalError(err)
	}
	if pending == nil {
		return nil, notFound(errors.ErrMsgTxNotFound)
	}
	account, err := multisigs.GetMultisig(pending.Account)
	if err != nil {
		return nil, internalError(err)
	}
	var threshold uint32
	if account != nil {
		threshold = account.Threshold
	}
	op, err := transaction.DecodeOperation(pending.OpData)
	if err != nil {
		return nil, internalError(err)
	}
	approvals := make([]string, 0, len(pending.Approvals))
	for _, approver := range pending.Approvals {
		approvals = append(approvals, approver.Text())
	}

	expires := pending.ExpireAt != math.MaxUint64
	expired := pending.Expired(height)
	resp := &getPendingStatusResponse{
		Token:      p.Token,
		Account:    pending.Account.Text(),
		Proposer:   pending.Proposer.Text(),
		Kind:       op.Kind.String(),
		Approvals:  approvals,
		Threshold:  threshold,
		Expires:    expires,
		Expired:    expired,
		Executable: !expired && threshold > 0 && uint32(len(pending.Approvals)) >= threshold,
	}
	if expires {
		resp.ExpireAt = pending.ExpireAt
	}
	return resp, nil
}

func (s *Server) rpcStateProof(p getProofRequest) (interface{}, *rpcError) {
	if len(p.Key) == 0 {
		return nil, invalidParams(errors.ErrCodeInvalidCommand, "key must not be empty")
	}
	resp, err := s.node.Query(abci.QueryRequest{Path: abci.QueryPathStore, Data: p.Key, Prove: true})
	if err != nil {
		return nil, internalError(err)
	}
	if resp.Code != "" {
		return nil, invalidParams(resp.Code, resp.Log)
	}
	return &getProofResponse{
		Key:    resp.Key,
		Value:  resp.Value,
		Found:  resp.Found,
		Height: resp.Height,
		Root:   hex.EncodeToString(resp.Root[:]),
		Proof:  resp.Proof,
	}, nil
}

// --- Helpers ---

func (s *Server) setCORSHeaders(w http.ResponseWriter, r *http.Request) {
	// Set allowed origins
	if len(s.corsConfig.AllowedOrigins) > 0 {
		if s.corsConfig.AllowedOrigins[0] == "*" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			// Check if the request origin is in the allowed list
			origin := r.Header.Get("Origin")
			for _, allowedOrigin := range s.corsConfig.AllowedOrigins {
				if origin == allowedOrigin {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
	}

	// Set allowed methods
	if len(s.corsConfig.AllowedMethods) > 0 {
		methods := strings.Join(s.corsConfig.AllowedMethods, ", ")
		w.Header().Set("Access-Control-Allow-Methods", methods)
	}

	// Set allowed headers
	if len(s.corsConfig.AllowedHeaders) > 0 {
		headers := strings.Join(s.corsConfig.AllowedHeaders, ", ")
		w.Header().Set("Access-Control-Allow-Headers", headers)
	}

	// Set max age
	if s.corsConfig.MaxAge > 0 {
		w.Header().Set("Access-Control-Max-Age", fmt.Sprintf("%d", s.corsConfig.MaxAge))
	}
}

// --- Env helpers ---

// CORSFromEnv reads environment variables and constructs a CORSConfig.
// Returns (cfg, true) if any CORS-related env var is set; otherwise (zero, false).
//
// Env vars:
// - CORS_ALLOWED_ORIGINS: comma-separated list
// - CORS_ALLOWED_METHODS: comma-separated list
// - CORS_ALLOWED_HEADERS: comma-separated list
// - CORS_MAX_AGE: integer seconds
func CORSFromEnv() (CORSConfig, bool) {
	origins := os.Getenv("CORS_ALLOWED_ORIGINS")
	methods := os.Getenv("CORS_ALLOWED_METHODS")
	headers := os.Getenv("CORS_ALLOWED_HEADERS")
	maxAgeStr := os.Getenv("CORS_MAX_AGE")

	var maxAge int
	if maxAgeStr != "" {
		if v, err := strconv.Atoi(maxAgeStr); err == nil {
			maxAge = v
		}
	}

	var allowedOrigins, allowedMethods, allowedHeaders []string
	if origins != "" {
		allowedOrigins = splitAndTrim(origins)
	}
	if methods != "" {
		allowedMethods = splitAndTrim(methods)
	}
	if headers != "" {
		allowedHeaders = splitAndTrim(headers)
	}

	provided := len(allowedOrigins) > 0 || len(allowedMethods) > 0 || len(allowedHeaders) > 0 || maxAge > 0
	if !provided {
		return CORSConfig{}, false
	}

	return CORSConfig{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: allowedMethods,
		AllowedHeaders: allowedHeaders,
		MaxAge:         maxAge,
	}, true
}

// DefaultCORS builds the browser config used when only an origin list is
// configured in mln.ini.
func DefaultCORS(origins string) CORSConfig {
	return CORSConfig{
		AllowedOrigins: splitAndTrim(origins),
		AllowedMethods: []string{"POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         600,
	}
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	var out []string
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}
