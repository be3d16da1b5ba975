// Package bootstrap assembles the full dependency graph shared by every
// cmd/ entrypoint: database/redis connections, the repository layer, the
// job executor registry, and the broker/worker pool/scheduler wiring.
// Keeping this in one place means cockpit-server, cockpit-worker and
// cockpit-scheduler construct identical collaborators and only differ in
// which of them they actually run.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/nerdfunk-net/cockpit-ng-sub003/internal/config"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/agentbus"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/audit"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/broker"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/checkmk"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/dbschema"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/executors"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/gitwork"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/jobs"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/jobscheduler"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/migrations/versions"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/models"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/nautobot"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/rbac"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/reconcile"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/repository"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/settings"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/vault"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/workerpool"
)

// App bundles every collaborator a cmd/ main needs, constructed once at
// boot and handed off to whichever process-specific wiring runs next.
type App struct {
	Config *config.Config

	DB  *sqlx.DB
	SQL *sql.DB
	RDB *redis.Client

	Users       *repository.UserRepository
	Templates   *repository.TemplateRepository
	Schedules   *repository.ScheduleRepository
	Inventories *repository.InventoryRepository
	Runs        *repository.RunRepository
	Results     *repository.DeviceResultRepository
	AgentCmds   *repository.AgentCommandRepository
	GitRepos    *repository.GitRepositoryRepository
	NB2CMKJobs  *repository.NB2CMKJobRepository

	RBAC  *rbac.Checker
	Audit *audit.Store

	Vault       *vault.Vault
	Credentials *vault.CredentialStore

	Nautobot  *nautobot.Client
	Resolvers *nautobot.Resolvers
	CheckMK   *checkmk.Client
	Settings  *settings.Store

	Broker     *broker.Client
	AgentBus   *agentbus.Bus
	Registry   *executors.Registry
	Dispatcher *jobs.Dispatcher
	Pool       *workerpool.Pool
}

// New loads configuration from the environment and opens every
// connection, but does not start the worker pool, scheduler or HTTP server
// — callers decide which of Pool.Start / Scheduler.Start / Server.Router to
// invoke. The audit store's background flush goroutine does start here.
func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("bootstrap: load config: %w", err)
	}
	if err := cfg.Auth.Validate(); err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	sqlDB, err := sql.Open("pgx", cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("bootstrap: open database: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.Database.ConnMaxIdleTime)
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("bootstrap: ping database: %w", err)
	}
	db := sqlx.NewDb(sqlDB, "pgx")

	if _, err := dbschema.NewRunner(sqlDB, versions.All()).Run(ctx); err != nil {
		return nil, fmt.Errorf("bootstrap: reconcile schema: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("bootstrap: ping redis: %w", err)
	}

	users := repository.NewUserRepository(db)
	templates := repository.NewTemplateRepository(db)
	schedules := repository.NewScheduleRepository(db)
	inventories := repository.NewInventoryRepository(db)
	runs := repository.NewRunRepository(db)
	results := repository.NewDeviceResultRepository(db)
	agentCmds := repository.NewAgentCommandRepository(db)
	gitRepos := repository.NewGitRepositoryRepository(db)
	nb2cmkJobs := repository.NewNB2CMKJobRepository(db)

	settingsStore := settings.NewStore(db)
	auditStore := audit.NewStore(db)
	checker := rbac.NewChecker(users)

	v, err := vault.NewFromSecret(cfg.Auth.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: init vault: %w", err)
	}
	credentials := vault.NewCredentialStore(sqlDB, v)

	cache := nautobot.NewTieredCache(rdb)
	nb := nautobot.New(cfg.Nautobot.URL, cfg.Nautobot.Token, cache)
	resolvers := nautobot.NewResolvers(nb)
	cmk := checkmk.New(cfg.CheckMK.URL, cfg.CheckMK.Site, cfg.CheckMK.Username, cfg.CheckMK.Password)

	queueCfg, err := settingsStore.LoadQueueConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: load queue config: %w", err)
	}
	router := broker.NewRouter(queueCfg.Routes)
	brk := broker.NewClient(cfg.Redis, router)

	agentBus := agentbus.New(rdb, agentCmds)

	registry, err := buildRegistry(cmk, credentials, nb, agentBus, nb2cmkJobs, results)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: build job registry: %w", err)
	}

	dispatcher := jobs.NewDispatcher(templates, inventories, runs, results, resolvers, registry, brk)
	pool := workerpool.New(brk)
	dispatcher.RegisterWorker(pool)

	return &App{
		Config:      cfg,
		DB:          db,
		SQL:         sqlDB,
		RDB:         rdb,
		Users:       users,
		Templates:   templates,
		Schedules:   schedules,
		Inventories: inventories,
		Runs:        runs,
		Results:     results,
		AgentCmds:   agentCmds,
		GitRepos:    gitRepos,
		NB2CMKJobs:  nb2cmkJobs,
		RBAC:        checker,
		Audit:       auditStore,
		Vault:       v,
		Credentials: credentials,
		Nautobot:    nb,
		Resolvers:   resolvers,
		CheckMK:     cmk,
		Settings:    settingsStore,
		Broker:      brk,
		AgentBus:    agentBus,
		Registry:    registry,
		Dispatcher:  dispatcher,
		Pool:        pool,
	}, nil
}

// buildRegistry registers every job_type's Handler/Finalizer pair. A
// job_type left unregistered is a configuration error surfaced at
// Execute() time, not at boot, since not every deployment necessarily uses
// every job type.
func buildRegistry(cmk *checkmk.Client, credentials *vault.CredentialStore, nb *nautobot.Client, bus *agentbus.Bus, nb2cmkJobs *repository.NB2CMKJobRepository, results *repository.DeviceResultRepository) (*executors.Registry, error) {
	reg := executors.NewRegistry()

	backupHandler, backupFinalizer := executors.NewBackupHandler(executors.BackupDeps{
		Credentials: credentials,
		Git:         gitwork.NewManager(),
		Nautobot:    nb,
	})
	if err := reg.Register(models.JobBackup, backupHandler, backupFinalizer); err != nil {
		return nil, err
	}

	if err := reg.Register(models.JobRunCommands, executors.NewRunCommandsHandler(credentials), nil); err != nil {
		return nil, err
	}
	if err := reg.Register(models.JobScanPrefixes, executors.NewScanPrefixesHandler(nb), nil); err != nil {
		return nil, err
	}
	if err := reg.Register(models.JobIPAddresses, executors.NewIPAddressesHandler(nb), nil); err != nil {
		return nil, err
	}
	if err := reg.Register(models.JobDeployAgent, executors.NewDeployAgentHandler(), executors.NewDeployAgentFinalizer(bus)); err != nil {
		return nil, err
	}

	engine := reconcile.NewEngine(cmk, defaultNormaliser())
	if err := reg.Register(models.JobSyncDevices, executors.NewSyncDevicesHandler(engine), executors.NewSyncDevicesFinalizer(engine, nil)); err != nil {
		return nil, err
	}

	compareFinalizer := executors.NewCompareDevicesFinalizer(nb2cmkJobs, results)
	if err := reg.Register(models.JobCompareDevices, executors.NewCompareDevicesHandler(engine), compareFinalizer); err != nil {
		return nil, err
	}

	return reg, nil
}

// defaultNormaliser renders the CheckMK folder path from a device's
// location and leaves SNMP community resolution empty, since the mapping
// itself is deployment-specific (stored in settings, not hardcoded here).
func defaultNormaliser() *reconcile.Normaliser {
	folderTemplate := func(d nautobot.Device) (string, error) {
		if d.Location == "" {
			return "/cockpit", nil
		}
		return "/cockpit/" + d.Location, nil
	}
	return reconcile.NewNormaliser(folderTemplate, reconcile.SNMPMapping{}, "snmp_community", nil)
}

// Scheduler constructs the single-instance schedule tick loop over the
// App's already-open collaborators.
func (a *App) Scheduler() *jobscheduler.Scheduler {
	return jobscheduler.New(a.RDB, a.Schedules, jobscheduler.SimpleCron{}, a.Dispatcher)
}

// Close releases every connection the App opened.
func (a *App) Close() {
	a.Audit.Close()
	_ = a.RDB.Close()
	_ = a.SQL.Close()
}
