package cmd

import (
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mlnlabs/mln/abci"
	"github.com/mlnlabs/mln/config"
	"github.com/mlnlabs/mln/db"
	"github.com/mlnlabs/mln/events"
	"github.com/mlnlabs/mln/exception"
	"github.com/mlnlabs/mln/indexer"
	"github.com/mlnlabs/mln/jsonrpc"
	"github.com/mlnlabs/mln/logx"
	"github.com/mlnlabs/mln/merkle"
	"github.com/mlnlabs/mln/monitoring"
	"github.com/mlnlabs/mln/ratelimit"
)

var runConfigPath string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the ledger node",
	Long: `Open the authenticated state, resume from the last committed block and
serve the query surfaces. Block delivery comes from the embedding
replication engine through the consensus adapter.`,
	Run: func(cmd *cobra.Command, args []string) {
		runNode(runConfigPath)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVarP(&runConfigPath, "config", "c", "mln.ini", "Path to node configuration")
}

func fatalf(format string, args ...interface{}) {
	logx.Error("NODE", fmt.Sprintf(format, args...))
	os.Exit(1)
}

func runNode(configPath string) {
	monitoring.InitMetrics()

	nodeCfg, err := config.LoadNodeConfig(configPath)
	if err != nil {
		fatalf("Load node config %s: %v", configPath, err)
	}
	rpcCfg, err := config.LoadRPCConfig(configPath)
	if err != nil {
		fatalf("Load rpc config: %v", err)
	}
	metricsCfg, err := config.LoadMetricsConfig(configPath)
	if err != nil {
		fatalf("Load metrics config: %v", err)
	}
	indexerCfg, err := config.LoadIndexerConfig(configPath)
	if err != nil {
		fatalf("Load indexer config: %v", err)
	}

	genesis, err := config.LoadGenesis(nodeCfg.GenesisPath)
	if err != nil {
		fatalf("Load genesis: %v", err)
	}
	registry, err := config.ConvertMigrationSchedule(genesis.Migrations)
	if err != nil {
		fatalf("Invalid migration schedule: %v", err)
	}
	caps, err := genesis.Features.Resolve()
	if err != nil {
		fatalf("Invalid feature set: %v", err)
	}

	if err := os.MkdirAll(filepath.Dir(nodeCfg.DBPath), 0o755); err != nil {
		fatalf("Create data directory: %v", err)
	}
	provider, err := db.Open(nodeCfg.DBBackend, nodeCfg.DBPath)
	if err != nil {
		fatalf("Open %s database at %s: %v", nodeCfg.DBBackend, nodeCfg.DBPath, err)
	}
	defer provider.Close()

	state, err := merkle.NewStore(provider)
	if err != nil {
		fatalf("Open authenticated state: %v", err)
	}

	bus := events.NewEventBus()
	router := events.NewRouter(bus)
	app := abci.NewApp(state, registry, caps, router)
	monitoring.ObserveRouter(router, state)

	rpc := jsonrpc.NewServer(rpcCfg.ListenAddr, app, state)
	if cors, ok := jsonrpc.CORSFromEnv(); ok {
		rpc.SetCORSConfig(cors)
	} else if rpcCfg.CORSOrigins != "" {
		rpc.SetCORSConfig(jsonrpc.DefaultCORS(rpcCfg.CORSOrigins))
	}
	var limiter *ratelimit.EndpointLimiter
	if rpcCfg.RateLimit {
		limiter = ratelimit.NewEndpointLimiter(ratelimit.DefaultEndpointConfig())
		rpc.SetRateLimiter(limiter)
	}
	rpc.Start()

	if metricsCfg.Enabled {
		mux := http.NewServeMux()
		monitoring.RegisterMetrics(mux)
		exception.SafeGo("metrics-server", func() {
			if err := http.ListenAndServe(metricsCfg.ListenAddr, mux); err != nil {
				logx.Error("NODE", "Metrics server stopped:", err)
			}
		})
		logx.Info("NODE", fmt.Sprintf("Metrics listening on %s", metricsCfg.ListenAddr))
	}

	var sink *indexer.Indexer
	if indexerCfg.Enabled && indexerCfg.PostgresDSN != "" {
		sink, err = indexer.New(indexerCfg.PostgresDSN, router)
		if err != nil {
			fatalf("Start indexer: %v", err)
		}
		sink.Start()
	}

	height, root := app.Info()
	logx.Info("NODE", fmt.Sprintf("Chain %s ready at height %d, root %s",
		genesis.ChainID, height, hex.EncodeToString(root[:])))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logx.Info("NODE", "Shutting down")
	if sink != nil {
		sink.Stop()
	}
	if limiter != nil {
		limiter.Stop()
	}
}
