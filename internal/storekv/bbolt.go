package storekv

import (
	"bytes"
	"context"

	bolt "go.etcd.io/bbolt"

	"github.com/intercoop-network/dag-core/pkg/utils"
)

// listCountSuffix names the sibling "<table>#list" bucket that implements
// the ordered multi-valued "list at key" semantics (by_author,
// by_payload_type, by_scope indices) on top of bbolt's single-value-per-key
// buckets: each list is stored as one value at its key, the
// length-prefixed concatenation of its entries (see joinEntries).
const listCountSuffix = "#list"

// BoltStore is a bbolt-backed Store: one top-level bucket per table, with
// atomic bolt.Update transactions providing the "atomic write" guarantee
// the core's storage boundary assumes.
type BoltStore struct {
	db *bolt.DB
}

// OpenBoltStore opens (creating if absent) a bbolt database at path.
func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, utils.Wrap(utils.KindStorage, err, "open bbolt store "+path)
	}
	return &BoltStore{db: db}, nil
}

func (b *BoltStore) bucket(tx *bolt.Tx, table string, create bool) (*bolt.Bucket, error) {
	name := []byte(table)
	if create {
		return tx.CreateBucketIfNotExists(name)
	}
	return tx.Bucket(name), nil
}

func (b *BoltStore) Get(_ context.Context, table string, key []byte) ([]byte, bool, error) {
	var out []byte
	var found bool
	err := b.db.View(func(tx *bolt.Tx) error {
		bk, _ := b.bucket(tx, table, false)
		if bk == nil {
			return nil
		}
		v := bk.Get(key)
		if v == nil {
			return nil
		}
		out = make([]byte, len(v))
		copy(out, v)
		found = true
		return nil
	})
	if err != nil {
		return nil, false, utils.Wrap(utils.KindStorage, err, "get")
	}
	return out, found, nil
}

func (b *BoltStore) Put(_ context.Context, table string, key, value []byte) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		bk, err := b.bucket(tx, table, true)
		if err != nil {
			return err
		}
		return bk.Put(key, value)
	})
	if err != nil {
		return utils.Wrap(utils.KindStorage, err, "put")
	}
	return nil
}

func (b *BoltStore) Delete(_ context.Context, table string, key []byte) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		bk, _ := b.bucket(tx, table, false)
		if bk == nil {
			return nil
		}
		return bk.Delete(key)
	})
	if err != nil {
		return utils.Wrap(utils.KindStorage, err, "delete")
	}
	return nil
}

func (b *BoltStore) List(_ context.Context, table string, prefix []byte) ([][]byte, error) {
	var out [][]byte
	err := b.db.View(func(tx *bolt.Tx) error {
		bk, _ := b.bucket(tx, table, false)
		if bk == nil {
			return nil
		}
		c := bk.Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			cp := make([]byte, len(k))
			copy(cp, k)
			out = append(out, cp)
		}
		return nil
	})
	if err != nil {
		return nil, utils.Wrap(utils.KindStorage, err, "list")
	}
	return out, nil
}

func (b *BoltStore) Append(_ context.Context, table string, key, value []byte) error {
	listTable := table + listCountSuffix
	err := b.db.Update(func(tx *bolt.Tx) error {
		bk, err := b.bucket(tx, listTable, true)
		if err != nil {
			return err
		}
		existing := bk.Get(key)
		var entries [][]byte
		if existing != nil {
			entries = splitEntries(existing)
		}
		entries = append(entries, value)
		return bk.Put(key, joinEntries(entries))
	})
	if err != nil {
		return utils.Wrap(utils.KindStorage, err, "append")
	}
	return nil
}

func (b *BoltStore) GetList(_ context.Context, table string, key []byte) ([][]byte, error) {
	listTable := table + listCountSuffix
	var out [][]byte
	err := b.db.View(func(tx *bolt.Tx) error {
		bk, _ := b.bucket(tx, listTable, false)
		if bk == nil {
			return nil
		}
		v := bk.Get(key)
		if v == nil {
			return nil
		}
		out = splitEntries(v)
		return nil
	})
	if err != nil {
		return nil, utils.Wrap(utils.KindStorage, err, "get list")
	}
	return out, nil
}

func (b *BoltStore) Close() error {
	return b.db.Close()
}

// splitEntries/joinEntries encode a slice of byte entries as a
// length-prefixed concatenation, avoiding a delimiter collision with
// arbitrary binary values.
func joinEntries(entries [][]byte) []byte {
	var buf bytes.Buffer
	for _, e := range entries {
		var lenBuf [4]byte
		putUint32(lenBuf[:], uint32(len(e)))
		buf.Write(lenBuf[:])
		buf.Write(e)
	}
	return buf.Bytes()
}

func splitEntries(data []byte) [][]byte {
	var out [][]byte
	for len(data) >= 4 {
		n := getUint32(data[:4])
		data = data[4:]
		if uint32(len(data)) < n {
			break
		}
		entry := make([]byte, n)
		copy(entry, data[:n])
		out = append(out, entry)
		data = data[n:]
	}
	return out
}

func putUint32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}

func getUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
