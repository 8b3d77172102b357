package main

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	blockstm "github.com/crypto-org-chain/go-block-executor"
	"github.com/spf13/pflag"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/test-go/testify/require"
	"go.uber.org/zap"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "block-stm.yaml")
	require.NoError(t, os.WriteFile(path, []byte("txs: 50\nexecutors: 3\ncollect-chunk-size: 8\n"), 0o600))

	t.Setenv("BLOCKSTM_ACCOUNTS", "7")

	fs := pflag.NewFlagSet("run", pflag.ContinueOnError)
	attachFlags(fs)
	require.NoError(t, fs.Parse([]string{"--config", path, "--executors", "5", "--verify"}))

	cfg, err := loadConfig(fs)
	require.NoError(t, err)
	require.Equal(t, 50, cfg.Txs)
	require.Equal(t, 7, cfg.Accounts)
	require.Equal(t, 5, cfg.Executors)
	require.Equal(t, 8, cfg.CollectChunkSize)
	require.True(t, cfg.Verify)
	require.Equal(t, "info", cfg.LogLevel)
}

func TestNewLogger(t *testing.T) {
	_, err := newLogger("debug")
	require.NoError(t, err)
	_, err = newLogger("loud")
	require.Error(t, err)
}

func TestRunMemDB(t *testing.T) {
	cfg := runConfig{
		Config:   blockstm.Config{Executors: 4},
		Txs:      200,
		Accounts: 5,
		Verify:   true,
	}
	require.NoError(t, run(context.Background(), cfg, zap.NewNop()))

	cfg.Accounts = 0
	require.Error(t, run(context.Background(), cfg, zap.NewNop()))
}

func TestRunLevelDB(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")
	cfg := runConfig{
		Config:   blockstm.Config{Executors: 4},
		Txs:      100,
		Accounts: 10,
		DB:       dir,
		Verify:   true,
	}
	require.NoError(t, run(context.Background(), cfg, zap.NewNop()))

	db, err := leveldb.OpenFile(dir, nil)
	require.NoError(t, err)
	defer db.Close()

	// every transfer moves 1 between funded accounts, the total supply is unchanged
	var total, nonces uint64
	for i := 0; i < cfg.Accounts; i++ {
		bz, err := db.Get([]byte(blockstm.BalanceKey(accountName(i))), nil)
		require.NoError(t, err)
		total += binary.BigEndian.Uint64(bz)

		bz, err = db.Get([]byte(blockstm.NonceKey(accountName(i))), nil)
		if err == leveldb.ErrNotFound {
			continue
		}
		require.NoError(t, err)
		nonces += binary.BigEndian.Uint64(bz)
	}
	require.Equal(t, uint64(cfg.Accounts*genesisBalance), total)
	require.Equal(t, uint64(cfg.Txs), nonces)
}

func TestRunCMD(t *testing.T) {
	cmd := RunCMD()
	cmd.SetArgs([]string{"--txs", "20", "--accounts", "3", "--log-level", "error"})
	require.NoError(t, cmd.Execute())
}
