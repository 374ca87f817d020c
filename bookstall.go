// Package bookstall wires the marketplace core: accounts and sessions,
// seller catalogs, buyer trades, and book search.
package bookstall

import (
	"fmt"
	"strings"
	"time"

	"bookstall/internal/config"
	"bookstall/internal/ratelimit"
	"bookstall/internal/util"
	"bookstall/pkg/account"
	"bookstall/pkg/catalog"
	"bookstall/pkg/queue"
	"bookstall/pkg/search"
	"bookstall/pkg/storage"
	"bookstall/pkg/store"
	"bookstall/pkg/token"
	"bookstall/pkg/trade"
)

// Config holds runtime configuration for the marketplace core. The Store,
// Catalog, Queue, and Covers fields accept pre-built implementations and
// take precedence over the connection settings; tests inject fakes there.
type Config struct {
	DatabaseURL     string
	BookCatalogPath string
	RedisAddr       string
	RedisPassword   string
	TokenSecret     string
	TokenLifetime   time.Duration
	OrderPayWindow  time.Duration
	SweepInterval   time.Duration
	SweepWorkers    int
	LoginRateLimit  int
	MinioEndpoint   string
	MinioAccessKey  string
	MinioSecretKey  string
	MinioBucket     string
	MinioUseSSL     bool

	Store   store.Store
	Catalog search.Catalog
	Queue   queue.DelayQueue
	Covers  storage.ObjectStore
}

// Core aggregates the marketplace services over one storage gateway.
type Core struct {
	Accounts *account.Manager
	Catalog  *catalog.Manager
	Trade    *trade.Manager
	Search   *search.Adapter
	Sweeper  *trade.Sweeper
}

// New constructs the core with database storage, session tokens, and the
// optional Redis and MinIO integrations.
func New(cfg Config) (*Core, error) {
	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}

	tokens, err := token.NewService([]byte(cfg.TokenSecret), token.WithLifetime(cfg.TokenLifetime))
	if err != nil {
		return nil, fmt.Errorf("init token service: %w", err)
	}

	var accountOpts []account.Option
	if cfg.LoginRateLimit > 0 {
		limiter, err := ratelimit.NewRedisFixedWindowLimiter(
			cfg.RedisAddr, cfg.RedisPassword, "bookstall:login", cfg.LoginRateLimit, time.Minute)
		if err != nil {
			return nil, fmt.Errorf("init login limiter: %w", err)
		}
		accountOpts = append(accountOpts, account.WithLoginLimiter(limiter))
	}

	covers := cfg.Covers
	if covers == nil && strings.TrimSpace(cfg.MinioEndpoint) != "" {
		bucket := cfg.MinioBucket
		if bucket == "" {
			bucket = "bookstall-covers"
		}
		minioStore, err := storage.NewMinioStore(
			cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, bucket, cfg.MinioUseSSL)
		if err != nil {
			return nil, fmt.Errorf("init cover store: %w", err)
		}
		covers = minioStore
	}
	var catalogOpts []catalog.Option
	if covers != nil {
		catalogOpts = append(catalogOpts, catalog.WithCoverStore(covers))
	}

	delayQueue := cfg.Queue
	if delayQueue == nil && strings.TrimSpace(cfg.RedisAddr) != "" {
		q, err := queue.NewRedisDelayQueue(cfg.RedisAddr, cfg.RedisPassword, "")
		if err != nil {
			return nil, fmt.Errorf("init delay queue: %w", err)
		}
		delayQueue = q
	}
	tradeOpts := []trade.Option{trade.WithPayWindow(cfg.OrderPayWindow)}
	if delayQueue != nil {
		tradeOpts = append(tradeOpts, trade.WithDelayQueue(delayQueue))
	}

	bookCatalog := cfg.Catalog
	if bookCatalog == nil && cfg.BookCatalogPath != "" {
		sqliteCatalog, err := search.NewSQLiteCatalog(cfg.BookCatalogPath)
		if err != nil {
			return nil, fmt.Errorf("init book catalog: %w", err)
		}
		bookCatalog = sqliteCatalog
	}

	core := &Core{
		Accounts: account.NewManager(dataStore, tokens, accountOpts...),
		Catalog:  catalog.NewManager(dataStore, catalogOpts...),
		Trade:    trade.NewManager(dataStore, tradeOpts...),
	}
	if bookCatalog != nil {
		core.Search = search.NewAdapter(dataStore, bookCatalog)
	}
	if delayQueue != nil {
		core.Sweeper = trade.NewSweeper(dataStore, delayQueue,
			trade.WithSweepInterval(cfg.SweepInterval),
			trade.WithSweepWorkers(cfg.SweepWorkers))
	}
	return core, nil
}

// NewFromFile loads YAML configuration and constructs the core.
func NewFromFile(path string) (*Core, error) {
	fileCfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	util.InitLogger(fileCfg.LogLevel)
	lifetime, err := config.ParseTokenLifetime(fileCfg.TokenLifetime)
	if err != nil {
		return nil, err
	}
	payWindow, err := config.ParsePayWindow(fileCfg.OrderPayWindow)
	if err != nil {
		return nil, err
	}
	sweepInterval, err := config.ParseSweepInterval(fileCfg.SweepInterval)
	if err != nil {
		return nil, err
	}
	return New(Config{
		DatabaseURL:     fileCfg.DatabaseURL,
		BookCatalogPath: fileCfg.BookCatalogPath,
		RedisAddr:       fileCfg.RedisAddr,
		RedisPassword:   fileCfg.RedisPassword,
		TokenSecret:     fileCfg.TokenSecret,
		TokenLifetime:   lifetime,
		OrderPayWindow:  payWindow,
		SweepInterval:   sweepInterval,
		SweepWorkers:    fileCfg.SweepWorkers,
		LoginRateLimit:  fileCfg.LoginRateLimitPerMinute,
		MinioEndpoint:   fileCfg.MinioEndpoint,
		MinioAccessKey:  fileCfg.MinioAccessKey,
		MinioSecretKey:  fileCfg.MinioSecretKey,
		MinioBucket:     fileCfg.MinioBucket,
		MinioUseSSL:     fileCfg.MinioUseSSL,
	})
}
