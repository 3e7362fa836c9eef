// Package store persists session snapshots and reports in SurrealDB.
package store

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/contrib/rews"
	"github.com/surrealdb/surrealdb.go/pkg/connection"
	"github.com/surrealdb/surrealdb.go/pkg/connection/gorillaws"
	"github.com/surrealdb/surrealdb.go/pkg/logger"
	"github.com/surrealdb/surrealdb.go/surrealcbor"

	"github.com/raphaelgruber/voxrecon/internal/config"
)

func init() {
	// WebSocket upgrade fails under HTTP/2 ALPN; pin WSS to HTTP/1.1.
	gorillaws.DefaultDialer.TLSClientConfig = &tls.Config{
		NextProtos: []string{"http/1.1"},
	}
}

// Config holds SurrealDB connection configuration.
type Config struct {
	URL       string
	Namespace string
	Database  string
	Username  string
	Password  string
	AuthLevel string // "root" or "database"
}

// ConfigFrom extracts the SurrealDB settings from the application config.
func ConfigFrom(cfg config.Config) Config {
	return Config{
		URL:       cfg.SurrealDBURL,
		Namespace: cfg.SurrealDBNamespace,
		Database:  cfg.SurrealDBDatabase,
		Username:  cfg.SurrealDBUser,
		Password:  cfg.SurrealDBPass,
		AuthLevel: cfg.SurrealDBAuthLevel,
	}
}

// Reconnect policy for the websocket connection.
const (
	dialTimeout     = 5 * time.Second
	retryFirstDelay = time.Second
	retryMaxDelay   = 30 * time.Second
	retryAttempts   = 10
)

type wsConn = rews.Connection[*gorillaws.Connection]

// Client is a SurrealDB session that reconnects on its own when the
// websocket drops.
type Client struct {
	conn *wsConn
	db   *surrealdb.DB
	log  logger.Logger
}

// NewClient dials SurrealDB, authenticates and selects the configured
// namespace and database.
func NewClient(ctx context.Context, cfg Config, log *slog.Logger) (*Client, error) {
	if log == nil {
		log = slog.Default()
	}
	sdkLog := logger.New(log.Handler())

	conn := dial(cfg.URL, sdkLog)
	sdkLog.Info("connecting to SurrealDB", "url", cfg.URL)
	if err := conn.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	db, err := open(ctx, conn, cfg)
	if err != nil {
		_ = conn.Close(ctx)
		return nil, err
	}
	sdkLog.Info("SurrealDB ready", "namespace", cfg.Namespace, "database", cfg.Database)
	return &Client{conn: conn, db: db, log: sdkLog}, nil
}

func dial(rawURL string, log logger.Logger) *wsConn {
	codec := surrealcbor.New()
	// gorillaws appends /rpc itself.
	base := strings.TrimSuffix(rawURL, "/rpc")
	factory := func(context.Context) (*gorillaws.Connection, error) {
		return gorillaws.New(&connection.Config{
			BaseURL:     base,
			Marshaler:   codec,
			Unmarshaler: codec,
			Logger:      log,
		}), nil
	}

	conn := rews.New(factory, dialTimeout, codec, log)
	backoff := rews.NewExponentialBackoffRetryer()
	backoff.InitialDelay = retryFirstDelay
	backoff.MaxDelay = retryMaxDelay
	backoff.Multiplier = 2
	backoff.MaxRetries = retryAttempts
	conn.Retryer = backoff
	return conn
}

func open(ctx context.Context, conn *wsConn, cfg Config) (*surrealdb.DB, error) {
	db, err := surrealdb.FromConnection(ctx, conn)
	if err != nil {
		return nil, fmt.Errorf("from connection: %w", err)
	}

	creds := surrealdb.Auth{Username: cfg.Username, Password: cfg.Password}
	if cfg.AuthLevel == "database" {
		creds.Namespace, creds.Database = cfg.Namespace, cfg.Database
	}
	if _, err := db.SignIn(ctx, creds); err != nil {
		return nil, fmt.Errorf("signin: %w", err)
	}
	if err := db.Use(ctx, cfg.Namespace, cfg.Database); err != nil {
		return nil, fmt.Errorf("use %s/%s: %w", cfg.Namespace, cfg.Database, err)
	}
	return db, nil
}

// Close drops the connection.
func (c *Client) Close(ctx context.Context) error {
	c.log.Info("closing SurrealDB connection")
	return c.conn.Close(ctx)
}

// InitSchema applies the table definitions. It is idempotent.
func (c *Client) InitSchema(ctx context.Context) error {
	if _, err := surrealdb.Query[any](ctx, c.db, SchemaSQL, nil); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	c.log.Info("schema ready")
	return nil
}

// WipeData removes all reports and session snapshots.
func (c *Client) WipeData(ctx context.Context) error {
	for _, table := range []string{"report", "session"} {
		if _, err := surrealdb.Query[any](ctx, c.db, "DELETE "+table, nil); err != nil {
			return fmt.Errorf("delete %s: %w", table, err)
		}
	}
	return nil
}
