package block_stm

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/cometbft/cometbft/crypto/secp256k1"
	"github.com/tidwall/btree"
)

// Simulated transaction logic for tests and benchmarks

// ErrSkipRest returned by a Tx ends the block after it.
var ErrSkipRest = errors.New("skip rest of the block")

type KVStore interface {
	Get(Key) (Value, error)
	Set(Key, Value)
	Delete(Key)
}

type Tx func(KVStore) error

type MockOutput struct {
	Writes []KVPair
}

func (o *MockOutput) GetWrites() []KVPair {
	return o.Writes
}

// MockTask runs a Tx against a write buffer on top of the view.
type MockTask struct{}

var _ ExecutorTask[Tx, *MockOutput] = MockTask{}

func NewMockTask(int) ExecutorTask[Tx, *MockOutput] {
	return MockTask{}
}

func (MockTask) ExecuteTransaction(view View, tx Tx) ExecutionStatus[*MockOutput] {
	store := &txStore{view: view}
	err := tx(store)
	output := &MockOutput{Writes: store.writes()}
	switch {
	case err == nil:
		return Success(output)
	case errors.Is(err, ErrSkipRest):
		return SkipRest(output)
	default:
		return Abort[*MockOutput](err)
	}
}

type txStore struct {
	view  View
	dirty btree.Map[Key, Value]
}

func (s *txStore) Get(key Key) (Value, error) {
	if value, ok := s.dirty.Get(key); ok {
		return value, nil
	}
	return s.view.Get(key)
}

func (s *txStore) Set(key Key, value Value) {
	s.dirty.Set(key, value)
}

func (s *txStore) Delete(key Key) {
	s.dirty.Set(key, nil)
}

func (s *txStore) writes() []KVPair {
	writes := make([]KVPair, 0, s.dirty.Len())
	s.dirty.Scan(func(key Key, value Value) bool {
		writes = append(writes, KVPair{Key: key, Value: value})
		return true
	})
	return writes
}

// NoopTx verifies a signature and increases the nonce of the sender
func NoopTx(sender string) Tx {
	verifySig := genRandomSignature()
	return func(store KVStore) error {
		verifySig()
		return increaseNonce(sender, store)
	}
}

func BankTransferTx(sender, receiver string, amount uint64) Tx {
	verifySig := genRandomSignature()
	return func(store KVStore) error {
		verifySig()
		if err := increaseNonce(sender, store); err != nil {
			return err
		}

		return bankTransfer(sender, receiver, amount, store)
	}
}

func genRandomSignature() func() {
	privKey := secp256k1.GenPrivKey()
	signBytes := make([]byte, 1024)
	if _, err := cryptorand.Read(signBytes); err != nil {
		panic(err)
	}
	sig, _ := privKey.Sign(signBytes)
	pubKey := privKey.PubKey()

	return func() {
		pubKey.VerifySignature(signBytes, sig)
	}
}

func NonceKey(account string) Key {
	return Key("nonce" + account)
}

func BalanceKey(account string) Key {
	return Key("balance" + account)
}

func getUint64(store KVStore, key Key) (uint64, error) {
	v, err := store.Get(key)
	if err != nil || v == nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(v), nil
}

func setUint64(store KVStore, key Key, n uint64) {
	bz := make([]byte, 8)
	binary.BigEndian.PutUint64(bz, n)
	store.Set(key, bz)
}

func increaseNonce(sender string, store KVStore) error {
	nonceKey := NonceKey(sender)
	nonce, err := getUint64(store, nonceKey)
	if err != nil {
		return err
	}

	setUint64(store, nonceKey, nonce+1)

	v, err := getUint64(store, nonceKey)
	if err != nil {
		return err
	}
	if v != nonce+1 {
		return fmt.Errorf("nonce not incremented: %d", v)
	}

	return nil
}

func bankTransfer(sender, receiver string, amount uint64, store KVStore) error {
	senderKey := BalanceKey(sender)
	receiverKey := BalanceKey(receiver)

	senderBalance, err := getUint64(store, senderKey)
	if err != nil {
		return err
	}
	if senderBalance >= amount {
		// avoid the failure
		senderBalance -= amount
	}
	setUint64(store, senderKey, senderBalance)

	receiverBalance, err := getUint64(store, receiverKey)
	if err != nil {
		return err
	}
	receiverBalance += amount
	setUint64(store, receiverKey, receiverBalance)

	return nil
}
