package main

import (
	"strings"

	blockstm "github.com/crypto-org-chain/go-block-executor"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	flagConfig           = "config"
	flagTxs              = "txs"
	flagAccounts         = "accounts"
	flagExecutors        = "executors"
	flagCollectChunkSize = "collect-chunk-size"
	flagLogLevel         = "log-level"
	flagDB               = "db"
	flagVerify           = "verify"
	flagSeed             = "seed"

	envPrefix = "BLOCKSTM"
)

type runConfig struct {
	blockstm.Config `mapstructure:",squash"`

	Txs      int    `mapstructure:"txs"`
	Accounts int    `mapstructure:"accounts"`
	LogLevel string `mapstructure:"log-level"`
	DB       string `mapstructure:"db"`
	Verify   bool   `mapstructure:"verify"`
	Seed     int64  `mapstructure:"seed"`
}

func attachFlags(fs *pflag.FlagSet) {
	defaults := blockstm.DefaultConfig()
	fs.String(flagConfig, "", "config file, flags and BLOCKSTM_* env vars override it")
	fs.Int(flagTxs, 10000, "number of bank transfers in the block")
	fs.Int(flagAccounts, 100, "number of accounts, fewer accounts means more conflicts")
	fs.Int(flagExecutors, defaults.Executors, "number of workers, 0 means the number of CPUs")
	fs.Int(flagCollectChunkSize, defaults.CollectChunkSize, "number of outputs extracted by one goroutine")
	fs.String(flagLogLevel, "info", "log level")
	fs.String(flagDB, "", "leveldb directory to commit into, in-memory if empty")
	fs.Bool(flagVerify, false, "compare the result with the sequential execution")
	fs.Int64(flagSeed, 0, "seed of the generated block")
}

// loadConfig merges the config file, env vars and flags, in increasing priority.
func loadConfig(fs *pflag.FlagSet) (runConfig, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return runConfig{}, err
	}

	if path := v.GetString(flagConfig); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return runConfig{}, err
		}
	}

	var cfg runConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return runConfig{}, err
	}
	return cfg, nil
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = lvl
	cfg.Encoding = "console"
	return cfg.Build()
}
