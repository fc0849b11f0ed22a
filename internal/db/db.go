package db

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/feedgraph/apiserver/config"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPingTimeout    = 5 * time.Second
	defaultMaxPoolSize    = 25
	defaultMinPoolSize    = 2
	defaultMaxConnIdle    = 2 * time.Minute
)

// Open connects to MongoDB, verifies the connection and returns the
// configured database handle together with its client.
func Open(ctx context.Context, cfg config.Config) (*mongo.Client, *mongo.Database, error) {
	if strings.TrimSpace(cfg.Mongo.URI) == "" {
		return nil, nil, errors.New("mongo uri is required")
	}

	opts := options.Client().
		ApplyURI(cfg.Mongo.URI).
		SetConnectTimeout(defaultConnectTimeout).
		SetMaxPoolSize(defaultMaxPoolSize).
		SetMinPoolSize(defaultMinPoolSize).
		SetMaxConnIdleTime(defaultMaxConnIdle)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("mongo connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("mongo ping: %w", err)
	}

	return client, client.Database(cfg.Mongo.Database), nil
}

// MigrationURL returns the connection string golang-migrate expects: the
// configured URI with the database name as its path.
func MigrationURL(cfg config.Config) (string, error) {
	u, err := url.Parse(cfg.Mongo.URI)
	if err != nil {
		return "", fmt.Errorf("parse mongo uri: %w", err)
	}
	if u.Scheme != "mongodb" && u.Scheme != "mongodb+srv" {
		return "", fmt.Errorf("unsupported mongo scheme %q", u.Scheme)
	}
	u.Path = "/" + cfg.Mongo.Database
	return u.String(), nil
}
