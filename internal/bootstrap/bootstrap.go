// Package bootstrap builds the membership backend from configuration. It is
// shared by the HTTP server and the admin CLI.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/gogotex/membership/internal/config"
	"github.com/gogotex/membership/internal/database"
	"github.com/gogotex/membership/internal/store"
	"github.com/gogotex/membership/internal/store/memory"
	"github.com/gogotex/membership/internal/store/mongostore"
	"github.com/gogotex/membership/internal/users"
	"github.com/gogotex/membership/pkg/logger"
)

// Backend is an opened store plus its lifecycle hooks.
type Backend struct {
	Store store.Store
	// Kind is "mongodb" or "memory".
	Kind  string
	ping  func(ctx context.Context) error
	close func(ctx context.Context)
}

// Ping reports whether the store is reachable.
func (b *Backend) Ping(ctx context.Context) error {
	if b.ping == nil {
		return nil
	}
	return b.ping(ctx)
}

// Close releases the store connection.
func (b *Backend) Close(ctx context.Context) {
	if b.close != nil {
		b.close(ctx)
	}
}

// OpenBackend connects to MongoDB when MONGODB_URI is set and ensures the
// user indexes exist. Without a URI it falls back to a process-local store.
func OpenBackend(ctx context.Context, cfg *config.Config) (*Backend, error) {
	if cfg.MongoDB.URI == "" {
		logger.Warnf("MONGODB_URI not set; using in-memory store (data is lost on restart)")
		return &Backend{Store: memory.New(), Kind: "memory"}, nil
	}
	client, err := database.ConnectMongoWithRetry(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout, cfg.MongoDB.MaxAttempts, time.Second)
	if err != nil {
		return nil, err
	}
	st := mongostore.New(client, cfg.MongoDB.Database)
	ictx, cancel := context.WithTimeout(ctx, cfg.MongoDB.Timeout)
	defer cancel()
	if err := st.EnsureIndexes(ictx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ensure indexes: %w", err)
	}
	logger.Infof("connected to MongoDB database %q", cfg.MongoDB.Database)
	return &Backend{
		Store: st,
		Kind:  "mongodb",
		ping:  func(ctx context.Context) error { return client.Ping(ctx, nil) },
		close: func(ctx context.Context) { _ = client.Disconnect(ctx) },
	}, nil
}

// NewPolicy maps the membership section of the configuration onto a policy.
func NewPolicy(cfg config.MembershipConfig) *users.StaticPolicy {
	return &users.StaticPolicy{
		MinPasswordLength:       cfg.MinRequiredPasswordLength,
		MinNonAlphanumericChars: cfg.MinRequiredNonAlphanumericCharacters,
		StrengthRegex:           cfg.PasswordStrengthRegularExpression,
		UniqueEmail:             cfg.RequiresUniqueEmail,
		AppName:                 cfg.ApplicationName,
	}
}
