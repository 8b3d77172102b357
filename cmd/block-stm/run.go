package main

import (
	"context"
	"encoding/binary"
	"math/rand"
	"reflect"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	blockstm "github.com/crypto-org-chain/go-block-executor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/syndtr/goleveldb/leveldb"
	"go.uber.org/zap"
)

const genesisBalance = 1_000_000

func RunCMD() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a generated block of bank transfers",
		Long:  "Execute a generated block of bank transfers in parallel and report the result",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd.Flags())
			if err != nil {
				return errors.Wrap(err, "load config")
			}
			logger, err := newLogger(cfg.LogLevel)
			if err != nil {
				return errors.Wrap(err, "init logger")
			}
			defer logger.Sync() //nolint:errcheck

			return run(cmd.Context(), cfg, logger)
		},
	}
	attachFlags(cmd.Flags())
	return cmd
}

// storageCommitter is the base state of the block, the changes are committed back into it.
type storageCommitter interface {
	blockstm.Storage
	blockstm.Committer
}

func openStorage(cfg runConfig) (storageCommitter, func() error, error) {
	if cfg.DB == "" {
		return blockstm.NewMemDB(), func() error { return nil }, nil
	}
	db, err := leveldb.OpenFile(cfg.DB, nil)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "open leveldb %s", cfg.DB)
	}
	return blockstm.LevelDB{DB: db}, db.Close, nil
}

func accountName(i int) string {
	return "account" + strconv.Itoa(i)
}

// initGenesis funds the accounts missing in storage.
func initGenesis(storage storageCommitter, accounts int) error {
	var changes []blockstm.KVPair
	for i := 0; i < accounts; i++ {
		key := blockstm.BalanceKey(accountName(i))
		value, err := storage.Get(key)
		if err != nil {
			return err
		}
		if value != nil {
			continue
		}
		bz := make([]byte, 8)
		binary.BigEndian.PutUint64(bz, genesisBalance)
		changes = append(changes, blockstm.KVPair{Key: key, Value: bz})
	}
	return storage.Commit(changes)
}

func generateBlock(txs, accounts int, seed int64) []blockstm.Tx {
	g := rand.New(rand.NewSource(seed))
	blk := make([]blockstm.Tx, txs)
	for i := range blk {
		sender := accountName(g.Intn(accounts))
		receiver := accountName(g.Intn(accounts))
		blk[i] = blockstm.BankTransferTx(sender, receiver, 1)
	}
	return blk
}

func run(ctx context.Context, cfg runConfig, logger *zap.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.Txs < 0 || cfg.Accounts <= 0 {
		return errors.Newf("invalid block shape: %d txs over %d accounts", cfg.Txs, cfg.Accounts)
	}

	storage, closeStorage, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer closeStorage() //nolint:errcheck

	if err := initGenesis(storage, cfg.Accounts); err != nil {
		return errors.Wrap(err, "init genesis")
	}
	blk := generateBlock(cfg.Txs, cfg.Accounts, cfg.Seed)

	var expected []blockstm.ExecutionStatus[*blockstm.MockOutput]
	if cfg.Verify {
		start := time.Now()
		expected, err = blockstm.ExecuteBlockSequential(ctx, storage, blk, blockstm.MockTask{})
		if err != nil {
			return errors.Wrap(err, "sequential execution")
		}
		logger.Info("sequential execution", zap.Duration("elapsed", time.Since(start)))
	}

	reg := prometheus.NewRegistry()
	metrics, err := blockstm.NewMetrics(reg)
	if err != nil {
		return err
	}

	start := time.Now()
	outputs, err := blockstm.ExecuteBlock(ctx, storage, blk, blockstm.NewMockTask,
		blockstm.WithConfig(cfg.Config),
		blockstm.WithLogger(logger),
		blockstm.WithMetrics(metrics),
		blockstm.WithCommit(storage),
	)
	if err != nil {
		return errors.Wrap(err, "parallel execution")
	}
	logger.Info("parallel execution",
		zap.Int("txs", len(blk)),
		zap.Int("accounts", cfg.Accounts),
		zap.Duration("elapsed", time.Since(start)),
	)

	if err := logMetrics(reg, logger); err != nil {
		return err
	}

	if cfg.Verify && !reflect.DeepEqual(expected, outputs) {
		return errors.New("parallel execution diverged from the sequential execution")
	}
	return nil
}

func logMetrics(reg *prometheus.Registry, logger *zap.Logger) error {
	families, err := reg.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				logger.Info("metric", zap.String("name", mf.GetName()), zap.Float64("value", m.GetCounter().GetValue()))
			case m.GetHistogram() != nil:
				logger.Debug("metric", zap.String("name", mf.GetName()),
					zap.Uint64("count", m.GetHistogram().GetSampleCount()),
					zap.Float64("sum", m.GetHistogram().GetSampleSum()))
			}
		}
	}
	return nil
}
