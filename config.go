package block_stm

import (
	"runtime"

	"go.uber.org/zap"
)

const DefaultCollectChunkSize = 256

// Config is the tunable part of the executor, it can be loaded from a config file.
type Config struct {
	// Executors is the number of workers, 0 means runtime.NumCPU()
	Executors int `mapstructure:"executors"`
	// CollectChunkSize is the number of outputs extracted by one goroutine after the execution
	CollectChunkSize int `mapstructure:"collect-chunk-size"`
}

func DefaultConfig() Config {
	return Config{
		CollectChunkSize: DefaultCollectChunkSize,
	}
}

type options struct {
	config    Config
	logger    *zap.Logger
	metrics   *Metrics
	committer Committer
}

type Option func(*options)

func WithConfig(config Config) Option {
	return func(o *options) {
		o.config = config
	}
}

func WithExecutors(executors int) Option {
	return func(o *options) {
		o.config.Executors = executors
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func WithMetrics(metrics *Metrics) Option {
	return func(o *options) {
		o.metrics = metrics
	}
}

// WithCommit writes the final state changes of the block into committer after a successful execution.
func WithCommit(committer Committer) Option {
	return func(o *options) {
		o.committer = committer
	}
}

func newOptions(opts []Option) options {
	o := options{
		config: DefaultConfig(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.config.Executors <= 0 {
		o.config.Executors = runtime.NumCPU()
	}
	if o.config.CollectChunkSize <= 0 {
		o.config.CollectChunkSize = DefaultCollectChunkSize
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return o
}
