package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/tendant/simple-molecule/pkg/simplemolecule"
	"github.com/tendant/simple-molecule/pkg/simplemolecule/metrics"
	"github.com/tendant/simple-molecule/pkg/simplemolecule/storage"
	fsstorage "github.com/tendant/simple-molecule/pkg/simplemolecule/storage/fs"
	memorystorage "github.com/tendant/simple-molecule/pkg/simplemolecule/storage/memory"
	s3storage "github.com/tendant/simple-molecule/pkg/simplemolecule/storage/s3"
)

// Fallback source kinds
const (
	FallbackFS     = "fs"
	FallbackS3     = "s3"
	FallbackMemory = "memory"
	FallbackNone   = "none"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of library defaults.
// Fields still at their zero value when WithEnv runs take their env-default, so pass WithEnv first.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// defaults must agree with the env-default tags below.
func defaults() ServerConfig {
	return ServerConfig{
		Environment:       "development",
		InputRoot:         "./data/input",
		DefaultFolder:     simplemolecule.DefaultFolder,
		Fallback:          FallbackFS,
		FallbackTimeout:   simplemolecule.DefaultFallbackTimeout,
		FallbackWriteBack: true,
		MirrorWrites:      true,
		HistoryPolicy:     "preserve",
		NotifyQueueSize:   simplemolecule.DefaultQueueSize,
		S3: S3Config{
			Region: "us-east-1",
		},
	}
}

// ServerConfig represents configuration for the simple-molecule service
type ServerConfig struct {
	Environment string `env:"ENVIRONMENT" env-default:"development"` // development, production, testing

	// Fallback tree of the host application
	InputRoot         string        `env:"MOLECULE_INPUT_ROOT" env-default:"./data/input"`
	DefaultFolder     string        `env:"MOLECULE_DEFAULT_FOLDER" env-default:"molecules"`
	Fallback          string        `env:"MOLECULE_FALLBACK" env-default:"fs"` // fs, s3, memory, none
	FallbackTimeout   time.Duration `env:"MOLECULE_FALLBACK_TIMEOUT" env-default:"5s"`
	FallbackWriteBack bool          `env:"MOLECULE_FALLBACK_WRITE_BACK" env-default:"true"`
	MirrorWrites      bool          `env:"MOLECULE_MIRROR_WRITES" env-default:"true"`

	// Store options
	HistoryPolicy   string `env:"MOLECULE_HISTORY_POLICY" env-default:"preserve"` // preserve, reset
	NotifyQueueSize int    `env:"MOLECULE_NOTIFY_QUEUE" env-default:"256"`

	S3 S3Config

	// Optional API key gate for the HTTP API
	APIKeySHA256 string `env:"API_KEY_SHA256"`
}

// S3Config configures the s3 fallback source
type S3Config struct {
	Region          string `env:"AWS_S3_REGION" env-default:"us-east-1"`
	Bucket          string `env:"AWS_S3_BUCKET"`
	Prefix          string `env:"AWS_S3_PREFIX"`
	AccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	Endpoint        string `env:"AWS_S3_ENDPOINT"`
	UsePathStyle    bool   `env:"AWS_S3_USE_PATH_STYLE" env-default:"false"`
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Environment == "" {
		return errors.New("environment is required")
	}
	if c.DefaultFolder == "" {
		return errors.New("default folder is required")
	}

	switch c.Fallback {
	case FallbackFS:
		if c.InputRoot == "" {
			return errors.New("input root is required for the fs fallback")
		}
	case FallbackS3:
		if c.S3.Bucket == "" {
			return errors.New("s3 bucket is required for the s3 fallback")
		}
	case FallbackMemory, FallbackNone:
	default:
		return fmt.Errorf("fallback must be one of fs, s3, memory, none, got: %s", c.Fallback)
	}

	if c.FallbackTimeout <= 0 {
		return errors.New("fallback timeout must be positive")
	}
	if c.NotifyQueueSize <= 0 {
		return errors.New("notify queue size must be positive")
	}
	if _, err := c.historyPolicy(); err != nil {
		return err
	}
	return nil
}

func (c *ServerConfig) historyPolicy() (simplemolecule.HistoryPolicy, error) {
	switch c.HistoryPolicy {
	case "", "preserve":
		return simplemolecule.HistoryPreserve, nil
	case "reset":
		return simplemolecule.HistoryReset, nil
	default:
		return 0, fmt.Errorf("history policy must be 'preserve' or 'reset', got: %s", c.HistoryPolicy)
	}
}

// Stack is the wired set of core components.
type Stack struct {
	Store    *simplemolecule.ContentStore
	Resolver *simplemolecule.Resolver
	Emitter  *simplemolecule.Emitter
	Fallback simplemolecule.FallbackSource // nil when the fallback is "none"
	Metrics  *metrics.Collector            // nil without a registerer
}

// BuildStack creates the store, emitter, fallback source, mirror and resolver.
// reg may be nil to skip metrics.
func (c *ServerConfig) BuildStack(logger *slog.Logger, reg prometheus.Registerer) (*Stack, error) {
	if logger == nil {
		logger = slog.Default()
	}
	policy, err := c.historyPolicy()
	if err != nil {
		return nil, err
	}

	hooks := simplemolecule.LoggingHook(logger)
	var collector *metrics.Collector
	if reg != nil {
		collector, err = metrics.New(reg)
		if err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
		hooks = hooks.Merge(collector.Hooks())
	}

	fallback, err := c.buildFallback()
	if err != nil {
		return nil, fmt.Errorf("failed to build fallback source %s: %w", c.Fallback, err)
	}

	emitter := simplemolecule.NewEmitter(c.NotifyQueueSize, simplemolecule.WithEmitterLogger(logger))
	if fallback != nil && c.MirrorWrites {
		emitter.Subscribe(storage.NewMirror(fallback, logger))
	}

	store := simplemolecule.NewContentStore(
		simplemolecule.WithLogger(logger),
		simplemolecule.WithNotifier(emitter),
		simplemolecule.WithHooks(hooks),
		simplemolecule.WithHistoryPolicy(policy),
		simplemolecule.WithDefaultFolder(c.DefaultFolder),
	)
	if collector != nil {
		if err := collector.ObserveStore(reg, store); err != nil {
			closeEmitter(emitter)
			return nil, fmt.Errorf("failed to register store metrics: %w", err)
		}
	}

	resolverOptions := []simplemolecule.ResolverOption{
		simplemolecule.WithResolverLogger(logger),
		simplemolecule.WithResolverHooks(hooks),
		simplemolecule.WithFallbackTimeout(c.FallbackTimeout),
		simplemolecule.WithFallbackWriteBack(c.FallbackWriteBack),
		simplemolecule.WithFallbackFolder(c.DefaultFolder),
	}
	if fallback != nil {
		resolverOptions = append(resolverOptions, simplemolecule.WithFallbackSource(fallback))
	}
	resolver, err := simplemolecule.NewResolver(store, resolverOptions...)
	if err != nil {
		closeEmitter(emitter)
		return nil, err
	}

	return &Stack{
		Store:    store,
		Resolver: resolver,
		Emitter:  emitter,
		Fallback: fallback,
		Metrics:  collector,
	}, nil
}

// closeEmitter stops the dispatcher of an emitter that never left BuildStack.
func closeEmitter(emitter *simplemolecule.Emitter) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = emitter.Close(ctx)
}

// buildFallback creates a FallbackSource based on the configuration
func (c *ServerConfig) buildFallback() (simplemolecule.FallbackSource, error) {
	switch c.Fallback {
	case FallbackNone:
		return nil, nil
	case FallbackMemory:
		return memorystorage.New(), nil
	case FallbackFS:
		return fsstorage.New(fsstorage.Config{BaseDir: c.InputRoot})
	case FallbackS3:
		return s3storage.New(s3storage.Config{
			Region:          c.S3.Region,
			Bucket:          c.S3.Bucket,
			Prefix:          c.S3.Prefix,
			AccessKeyID:     c.S3.AccessKeyID,
			SecretAccessKey: c.S3.SecretAccessKey,
			Endpoint:        c.S3.Endpoint,
			UsePathStyle:    c.S3.UsePathStyle,
		})
	default:
		return nil, fmt.Errorf("unsupported fallback type: %s", c.Fallback)
	}
}
