package storage

import (
	"bytes"

	"github.com/pkg/errors"

	bolt "go.etcd.io/bbolt"

	"github.com/rpsnoopy/EIP918r/util"
)

const (
	SIGNER_ADDRESS = "signeraddr"
	SIGNER_SK      = "signersk"
)

func (s *Storage) GetSigner() (string, string, error) {

	var sk, addr string

	err := s.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(CONFIG_BUCKET))
		sk = string(b.Get([]byte(SIGNER_SK)))
		addr = string(b.Get([]byte(SIGNER_ADDRESS)))

		return nil
	})

	return sk, addr, err
}

func (s *Storage) SetSigner(sk, addr string) error {

	return s.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(CONFIG_BUCKET))
		if err := b.Put([]byte(SIGNER_SK), []byte(sk)); err != nil {
			return err
		}

		return b.Put([]byte(SIGNER_ADDRESS), []byte(addr))
	})
}

func (s *Storage) AddRPCEndpoint(endpoint string) (int, error) {

	var rpcId int

	err := s.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(CONFIG_BUCKET)).Bucket([]byte(ENDPOINTS_BUCKET))
		if b == nil {
			return errors.New("AddRPC - Unable to locate endpoints bucket")
		}

		var foundDup bool
		endpointBytes := []byte(endpoint)

		if err := b.ForEach(func(k, v []byte) error {
			if bytes.Equal(v, endpointBytes) {
				foundDup = true
			}
			return nil
		}); err != nil {
			return err
		}

		if foundDup {
			// Found duplicate, exit
			return nil
		}

		id, err := b.NextSequence()
		if err != nil {
			return err
		}
		rpcId = int(id)

		return b.Put(itob(id), endpointBytes)
	})

	return rpcId, err
}

// GetRPCEndpoints returns endpoints in the order they were added; the first is
// the primary.
func (s *Storage) GetRPCEndpoints() ([]string, error) {

	var endpoints []string

	err := s.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(CONFIG_BUCKET)).Bucket([]byte(ENDPOINTS_BUCKET))
		if b == nil {
			return errors.New("GetRPC - Unable to locate endpoints bucket")
		}

		return b.ForEach(func(k, v []byte) error {
			endpoints = append(endpoints, string(v))
			return nil
		})
	})

	return endpoints, err
}

func (s *Storage) DeleteRPCEndpoint(endpointId int) error {

	return s.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(CONFIG_BUCKET)).Bucket([]byte(ENDPOINTS_BUCKET))
		if b == nil {
			return errors.New("Unable to locate endpoints bucket")
		}

		return b.Delete(itob(uint64(endpointId)))
	})
}

func (s *Storage) AddDefaultEndpoints(network string) error {

	// A non-zero sequence means endpoints were configured before; don't
	// re-add defaults the operator may have deleted
	var currentSeq uint64

	err := s.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(CONFIG_BUCKET)).Bucket([]byte(ENDPOINTS_BUCKET))
		if b == nil {
			return errors.New("AddDefaultRPCs - Unable to locate endpoints bucket")
		}
		currentSeq = b.Sequence()

		return nil
	})
	if err != nil {
		return err
	}

	if currentSeq > 0 {
		return nil
	}

	constants, ok := util.NetworkConstants[network]
	if !ok {
		return errors.Errorf("Unknown network %q for storage", network)
	}

	for _, e := range constants.DefaultEndpoints {
		if _, err := s.AddRPCEndpoint(e); err != nil {
			return err
		}
	}

	return nil
}

func notifierBucket(tx *bolt.Tx) (*bolt.Bucket, error) {
	b := tx.Bucket([]byte(CONFIG_BUCKET)).Bucket([]byte(NOTIFICATIONS_BUCKET))
	if b == nil {
		return nil, errors.New("Unable to locate notifications bucket")
	}
	return b, nil
}

// NotifierConfigs returns the raw config of every notifier that has one,
// keyed by notifier name.
func (s *Storage) NotifierConfigs() (map[string][]byte, error) {

	configs := make(map[string][]byte)

	err := s.View(func(tx *bolt.Tx) error {
		b, err := notifierBucket(tx)
		if err != nil {
			return err
		}

		// Values are only valid inside the transaction
		return b.ForEach(func(k, v []byte) error {
			configs[string(k)] = append([]byte(nil), v...)
			return nil
		})
	})

	return configs, err
}

// SetNotifierConfig stores config under name. An empty config removes it.
func (s *Storage) SetNotifierConfig(name string, config []byte) error {

	return s.Update(func(tx *bolt.Tx) error {
		b, err := notifierBucket(tx)
		if err != nil {
			return err
		}

		if len(config) == 0 {
			return b.Delete([]byte(name))
		}

		return b.Put([]byte(name), config)
	})
}
