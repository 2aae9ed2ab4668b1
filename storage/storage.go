package storage

import (
	"encoding/binary"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	log "github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

const (
	DATABASE_FILE = "eip918.db"

	CONFIG_BUCKET        = "config"
	ENDPOINTS_BUCKET     = "endpoints"
	NOTIFICATIONS_BUCKET = "notifs"
	TOKENS_BUCKET        = "tokens"

	// Per-token sub-buckets
	STATE_BUCKET    = "state"
	MINTS_BUCKET    = "mints"
	BALANCES_BUCKET = "balances"
)

type Storage struct {
	*bolt.DB
}

func InitStorage(dataDir, network string) (*Storage, error) {

	dbFile := filepath.Join(dataDir, DATABASE_FILE)

	db, err := bolt.Open(dbFile, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "Failed to init db")
	}

	// Ensure some buckets exist
	err = db.Update(func(tx *bolt.Tx) error {

		cfgBkt, err := tx.CreateBucketIfNotExists([]byte(CONFIG_BUCKET))
		if err != nil {
			return errors.Wrap(err, "Cannot create config bucket")
		}

		if _, err := cfgBkt.CreateBucketIfNotExists([]byte(ENDPOINTS_BUCKET)); err != nil {
			return errors.Wrap(err, "Cannot create endpoints bucket")
		}

		if _, err := cfgBkt.CreateBucketIfNotExists([]byte(NOTIFICATIONS_BUCKET)); err != nil {
			return errors.Wrap(err, "Cannot create notifications bucket")
		}

		if _, err := tx.CreateBucketIfNotExists([]byte(TOKENS_BUCKET)); err != nil {
			return errors.Wrap(err, "Cannot create tokens bucket")
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	s := &Storage{DB: db}

	// Add default endpoints only on brand new setup
	if err := s.AddDefaultEndpoints(network); err != nil {
		log.WithError(err).Error("Could not add default endpoints")
		return nil, err
	}

	log.WithField("File", dbFile).Debug("Database opened")

	return s, nil
}

func (s *Storage) Close() {
	if err := s.DB.Close(); err != nil {
		log.WithError(err).Error("Failure closing DB")
	}
	log.Info("Database closed")
}

// tokenBucket returns the sub-bucket for one token instance, creating it in
// writable transactions.
func tokenBucket(tx *bolt.Tx, token, name string) (*bolt.Bucket, error) {

	tokens := tx.Bucket([]byte(TOKENS_BUCKET))
	if tokens == nil {
		return nil, errors.New("Unable to locate tokens bucket")
	}

	if !tx.Writable() {
		tb := tokens.Bucket([]byte(token))
		if tb == nil {
			return nil, nil
		}
		return tb.Bucket([]byte(name)), nil
	}

	tb, err := tokens.CreateBucketIfNotExists([]byte(token))
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to create bucket for token %s", token)
	}

	b, err := tb.CreateBucketIfNotExists([]byte(name))
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to create %s bucket for token %s", name, token)
	}

	return b, nil
}

// itob returns an 8-byte big endian representation of v.
func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func btoi(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}
