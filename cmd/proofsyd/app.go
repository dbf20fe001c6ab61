package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"proofsy/internal/config"
	"proofsy/internal/domain"
	"proofsy/internal/infra/anchor"
	"proofsy/internal/infra/anchor/local"
	"proofsy/internal/infra/anchor/numbers"
	cryptoinfra "proofsy/internal/infra/crypto"
	"proofsy/internal/infra/db"
	"proofsy/internal/infra/engine/sim"
	"proofsy/internal/infra/eventmem"
	httpinfra "proofsy/internal/infra/http"
	"proofsy/internal/infra/policyopa"
	"proofsy/internal/infra/ratelimit"
	"proofsy/internal/infra/schema"
	"proofsy/internal/logging"
	"proofsy/internal/usecase"
)

type app struct {
	server      *httpinfra.Server
	storageMode string
	closers     []func() error
}

func (a *app) Close() {
	for _, closeFn := range a.closers {
		_ = closeFn()
	}
}

func newApp(cfg config.Config, logger *logrus.Logger) (*app, error) {
	a := &app{}

	store, err := db.NewStore(cfg, logging.Component(logger, "db"))
	if err != nil {
		return nil, err
	}
	var (
		events   domain.EventStore
		attempts domain.AnchorAttemptRepository
	)
	if store.Enabled() {
		events = db.NewEventRepository(store.DB)
		attempts = db.NewAnchorAttemptRepository(store.DB)
		a.storageMode = "postgres"
	} else {
		events = eventmem.New()
		attempts = eventmem.NewAttemptLog()
		a.storageMode = "memory"
	}

	provider, err := newAnchorProvider(cfg)
	if err != nil {
		return nil, err
	}
	anchorSvc, err := anchor.NewService(provider, attempts, cfg.AnchorTimeout(), logging.Component(logger, "anchor"))
	if err != nil {
		return nil, err
	}

	policy, err := policyopa.NewEngine(context.Background(), cfg.PolicyPath)
	if err != nil {
		return nil, fmt.Errorf("load admission policy: %w", err)
	}
	logging.Component(logger, "policy").WithField("bundle_hash", policy.BundleHash()).Info("admission policy loaded")

	validator, err := schema.NewManifestValidator()
	if err != nil {
		return nil, err
	}

	key, err := loadSigningKey(cfg, logging.Component(logger, "keys"))
	if err != nil {
		return nil, err
	}

	limiter, closeLimiter, err := newRateLimiter(cfg, logging.Component(logger, "ratelimit"))
	if err != nil {
		return nil, err
	}
	if closeLimiter != nil {
		a.closers = append(a.closers, closeLimiter)
	}

	jobs := &usecase.JobService{
		Engine:      sim.New(),
		Ledger:      usecase.NewEventLedger(events, logging.Component(logger, "ledger")),
		Anchor:      anchorSvc,
		Policy:      policy,
		Validator:   validator,
		SigningKey:  key,
		GeneratorID: cfg.GeneratorID,
		Log:         logging.Component(logger, "jobs"),
	}
	a.server = httpinfra.NewServer(cfg, httpinfra.ServerDeps{
		Jobs:        jobs,
		RateLimiter: limiter,
		StorageMode: a.storageMode,
		AnchorMode:  cfg.AnchorMode,
		Log:         logging.Component(logger, "http"),
	})
	return a, nil
}

func newAnchorProvider(cfg config.Config) (anchor.Provider, error) {
	switch cfg.AnchorMode {
	case "", config.AnchorModeLocal:
		return local.NewClient(cfg.ExplorerAssetBase), nil
	case config.AnchorModeNumbers:
		return numbers.NewClient(numbers.Config{
			APIBase:      cfg.NumbersAPIBase,
			APIKey:       cfg.NumbersAPIKey,
			ExplorerBase: cfg.ExplorerAssetBase,
		}, &http.Client{Timeout: cfg.AnchorTimeout()})
	default:
		return nil, fmt.Errorf("unsupported ANCHOR_MODE %q", cfg.AnchorMode)
	}
}

// loadSigningKey reads the manifest signing key from SIGNING_PRIVATE_KEY_PEM
// or SIGNING_PRIVATE_KEY_PATH. Outside production a missing key is replaced
// by an ephemeral one.
func loadSigningKey(cfg config.Config, log *logrus.Entry) (*cryptoinfra.PrivateKey, error) {
	var pemBytes []byte
	switch {
	case strings.TrimSpace(cfg.SigningPrivateKeyPEM) != "":
		pemBytes = []byte(cfg.SigningPrivateKeyPEM)
	case strings.TrimSpace(cfg.SigningPrivateKeyPath) != "":
		data, err := os.ReadFile(cfg.SigningPrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("read signing key: %w", err)
		}
		pemBytes = data
	}
	if pemBytes != nil {
		key, err := cryptoinfra.ParsePrivateKeyPEM(pemBytes)
		if err != nil {
			return nil, err
		}
		if cfg.SigningAlgorithm != "" && key.Algorithm() != cfg.SigningAlgorithm {
			return nil, &domain.KeyError{Err: fmt.Errorf("signing key is %s but SIGNING_ALGORITHM is %s", key.Algorithm(), cfg.SigningAlgorithm)}
		}
		return key, nil
	}

	if cfg.Env == "production" {
		return nil, &domain.KeyError{Err: errors.New("a signing key is required in production")}
	}
	alg := cfg.SigningAlgorithm
	if alg == "" {
		alg = domain.DefaultSigningAlgorithm
	}
	key, err := cryptoinfra.GenerateKey(alg)
	if err != nil {
		return nil, err
	}
	log.WithField("algorithm", alg).Warn("no signing key configured; using an ephemeral key")
	return key, nil
}

func newRateLimiter(cfg config.Config, log *logrus.Entry) (domain.RateLimiter, func() error, error) {
	if cfg.RateLimitRequests <= 0 {
		return nil, nil, nil
	}
	if cfg.RedisAddr != "" {
		limiter, err := ratelimit.NewRedisLimiter(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, nil)
		if err != nil {
			return nil, nil, err
		}
		if err := limiter.Ping(context.Background()); err != nil {
			log.WithError(err).Warn("redis unreachable at startup")
		}
		return limiter, limiter.Close, nil
	}
	return ratelimit.NewMemoryLimiter(ratelimit.MemoryLimiterConfig{MaxKeys: cfg.RateLimitMaxKeys}), nil, nil
}
