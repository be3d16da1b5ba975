// Package appctx replaces an "implicit singletons" pattern (settings_manager,
// cache_service, nautobot_service as process-wide globals) with an
// explicitly constructed application context passed to
// every component that needs one. Shape follows kubernaut's dependency-
// injected service constructors (NewXRepository(db, logger)): every
// component here takes its dependencies in its constructor, never reaches
// for a package-level variable.
package appctx

import (
	"context"
	"database/sql"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/nerdfunk-net/cockpit-ng-sub003/internal/config"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/broker"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/cockpitlog"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/vault"
)

// Context bundles every shared, long-lived dependency constructed once at
// boot and passed explicitly to the components that need it. It replaces
// the implicit singletons the original backend relied on; it is not a
// god-object — components still only take the subset of this struct's
// fields they actually use in their own constructors.
type Context struct {
	Config *config.Config
	DB     *sql.DB
	Redis  *redis.Client
	Broker *broker.Client
	Vault  *vault.Vault
	Logger *logrus.Entry
}

// New wires the context from already-opened resources. Shutdown closes brk
// and db; it does not close rdb, whose lifetime the caller (cmd/
// entrypoints) owns.
func New(cfg *config.Config, db *sql.DB, rdb *redis.Client, brk *broker.Client, v *vault.Vault) *Context {
	return &Context{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
		Broker: brk,
		Vault:  v,
		Logger: cockpitlog.WithComponent("app"),
	}
}

// Shutdown tears down everything the context owns: initialised at boot,
// torn down at shutdown, rather than left to process exit.
func (c *Context) Shutdown(ctx context.Context) error {
	var firstErr error
	if c.Broker != nil {
		if err := c.Broker.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if c.DB != nil {
		if err := c.DB.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
