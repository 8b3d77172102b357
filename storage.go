package block_stm

import (
	storetypes "cosmossdk.io/store/types"
	"github.com/cockroachdb/errors"
	"github.com/syndtr/goleveldb/leveldb"
)

// Committer receives the final state changes of a block, a nil value deletes the key.
type Committer interface {
	Commit([]KVPair) error
}

// CosmosStorage adapts a cosmos-sdk KVStore as the base storage.
type CosmosStorage struct {
	Store storetypes.KVStore
}

var (
	_ Storage   = CosmosStorage{}
	_ Committer = CosmosStorage{}
)

func (s CosmosStorage) Get(key Key) (Value, error) {
	return s.Store.Get([]byte(key)), nil
}

func (s CosmosStorage) Commit(changes []KVPair) error {
	for _, pair := range changes {
		if pair.Value == nil {
			s.Store.Delete([]byte(pair.Key))
		} else {
			s.Store.Set([]byte(pair.Key), pair.Value)
		}
	}
	return nil
}

// LevelDB adapts a goleveldb database as the base storage, changes are committed in a single batch.
type LevelDB struct {
	DB *leveldb.DB
}

var (
	_ Storage   = LevelDB{}
	_ Committer = LevelDB{}
)

func (s LevelDB) Get(key Key) (Value, error) {
	value, err := s.DB.Get([]byte(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "leveldb get")
	}
	return value, nil
}

func (s LevelDB) Commit(changes []KVPair) error {
	batch := new(leveldb.Batch)
	for _, pair := range changes {
		if pair.Value == nil {
			batch.Delete([]byte(pair.Key))
		} else {
			batch.Put([]byte(pair.Key), pair.Value)
		}
	}
	return errors.Wrap(s.DB.Write(batch, nil), "leveldb write batch")
}
