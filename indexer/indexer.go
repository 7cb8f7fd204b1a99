// Package indexer mirrors the node's event stream into Postgres so external
// systems can query history without touching the authenticated state. The
// sink is strictly write-behind: a slow or broken database never stalls
// block application, it only loses events.
package indexer

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/mlnlabs/mln/events"
	"github.com/mlnlabs/mln/exception"
	"github.com/mlnlabs/mln/logx"
)

const (
	maxRetries = 5
	retryDelay = time.Second * 3
)

// Indexer consumes the event router and INSERTs one row per event.
type Indexer struct {
	db     *sql.DB
	router *events.Router
	sub    events.SubscriberID
	done   chan struct{}
}

// New connects to Postgres and prepares the event table. The connection is
// retried a few times so the node survives a database that is still booting.
func New(dsn string, router *events.Router) (*Indexer, error) {
	db, err := connect(dsn)
	if err != nil {
		return nil, err
	}
	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Indexer{db: db, router: router}, nil
}

func connect(dsn string) (*sql.DB, error) {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			logx.Warn("INDEXER", fmt.Sprintf("Retrying database connection (attempt %d/%d) after error: %v", attempt+1, maxRetries, lastErr))
			time.Sleep(retryDelay)
		}

		db, err := sql.Open("postgres", dsn)
		if err != nil {
			lastErr = fmt.Errorf("open database connection: %w", err)
			continue
		}
		if err := db.Ping(); err != nil {
			db.Close()
			lastErr = fmt.Errorf("ping database: %w", err)
			continue
		}
		logx.Info("INDEXER", "Database connection established")
		return db, nil
	}
	return nil, fmt.Errorf("connect to database after %d attempts: %w", maxRetries, lastErr)
}

func ensureSchema(db *sql.DB) error {
	createTableSQL := `
	CREATE TABLE IF NOT EXISTS mln_events (
		id          BIGSERIAL PRIMARY KEY,
		event_type  TEXT NOT NULL,
		height      BIGINT NOT NULL,
		tx_hash     TEXT,
		kind        TEXT,
		caller      TEXT,
		code        TEXT,
		reason      TEXT,
		root        TEXT,
		commands    INT,
		emitted_at  TIMESTAMPTZ NOT NULL,
		indexed_at  TIMESTAMPTZ DEFAULT now()
	);
	CREATE INDEX IF NOT EXISTS mln_events_height_idx ON mln_events (height);
	CREATE INDEX IF NOT EXISTS mln_events_tx_hash_idx ON mln_events (tx_hash);
	`
	if _, err := db.Exec(createTableSQL); err != nil {
		return fmt.Errorf("create mln_events table: %w", err)
	}
	return nil
}

// Start subscribes to the router and begins draining events in the
// background.
func (ix *Indexer) Start() {
	id, ch := ix.router.Subscribe()
	ix.sub = id
	ix.done = make(chan struct{})
	exception.SafeGo("indexer-sink", func() {
		defer close(ix.done)
		for event := range ch {
			if err := ix.insert(event); err != nil {
				logx.Warn("INDEXER", fmt.Sprintf("Dropping event %s: %v", event.Type(), err))
			}
		}
	})
	logx.Info("INDEXER", "Event sink started")
}

// Stop unsubscribes, waits for the drain loop and closes the database.
func (ix *Indexer) Stop() {
	if ix.sub != "" {
		ix.router.Unsubscribe(ix.sub)
		<-ix.done
	}
	ix.db.Close()
}

func (ix *Indexer) insert(event events.LedgerEvent) error {
	switch e := event.(type) {
	case *events.CommandApplied:
		_, err := ix.db.Exec(
			`INSERT INTO mln_events (event_type, height, tx_hash, kind, caller, emitted_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			string(e.Type()), int64(e.Height()), e.TxHash(), e.Kind(), e.Caller(), e.Timestamp())
		return err
	case *events.CommandFailed:
		_, err := ix.db.Exec(
			`INSERT INTO mln_events (event_type, height, tx_hash, kind, caller, code, reason, emitted_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			string(e.Type()), int64(e.Height()), e.TxHash(), e.Kind(), e.Caller(), e.Code(), e.Reason(), e.Timestamp())
		return err
	case *events.BlockCommitted:
		_, err := ix.db.Exec(
			`INSERT INTO mln_events (event_type, height, root, commands, emitted_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			string(e.Type()), int64(e.Height()), e.Root(), e.Commands(), e.Timestamp())
		return err
	default:
		return fmt.Errorf("unknown event type %s", event.Type())
	}
}
