package persistence

import (
	"encoding/binary"
	"errors"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/ASHISH26940/globby/internal/store"
)

var roomsBucket = []byte("rooms")

// BoltCodec stores each room as a key in a boltdb bucket. Values are the
// 8-byte big-endian version followed by the raw JSON data.
type BoltCodec struct{}

func (BoltCodec) Name() string      { return "bolt" }
func (BoltCodec) Extension() string { return ".bolt" }

func (BoltCodec) WriteFile(path string, snap store.Snapshot) error {
	db, err := bolt.Open(path, 0o644, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(roomsBucket)
		if err != nil {
			return err
		}
		for key, rec := range snap {
			if err := b.Put([]byte(key), encodeBoltValue(rec)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return err
	}
	return db.Close()
}

func (BoltCodec) ReadFile(path string) (store.Snapshot, error) {
	db, err := bolt.Open(path, 0o644, &bolt.Options{Timeout: time.Second, ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer db.Close()

	snap := store.Snapshot{}
	err = db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(roomsBucket)
		if b == nil {
			return errors.New("bolt dump has no rooms bucket")
		}
		return b.ForEach(func(k, v []byte) error {
			rec, err := decodeBoltValue(v)
			if err != nil {
				return err
			}
			snap[string(k)] = rec
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func encodeBoltValue(rec store.Record) []byte {
	buf := make([]byte, 8+len(rec.Data))
	binary.BigEndian.PutUint64(buf, rec.Version)
	copy(buf[8:], rec.Data)
	return buf
}

func decodeBoltValue(v []byte) (store.Record, error) {
	if len(v) < 8 {
		return store.Record{}, errors.New("bolt dump value too short")
	}
	// Values are only valid for the life of the transaction.
	data := make([]byte, len(v)-8)
	copy(data, v[8:])
	return store.Record{Version: binary.BigEndian.Uint64(v), Data: data}, nil
}
