package storage

import (
	"encoding/json"

	"github.com/pkg/errors"

	bolt "go.etcd.io/bbolt"

	"github.com/rpsnoopy/EIP918r/engine"
)

const (
	CURRENT_STATE = "current"
	GENESIS       = "genesis"
	PARAMETERS    = "params"
)

// LoadState returns the last committed state, or nil for a token that has
// never been initialized.
func (t *TokenStore) LoadState() (*engine.State, error) {

	var state *engine.State

	err := t.storage.View(func(tx *bolt.Tx) error {
		b, err := tokenBucket(tx, t.token, STATE_BUCKET)
		if err != nil || b == nil {
			return err
		}

		stateBytes := b.Get([]byte(CURRENT_STATE))
		if stateBytes == nil {
			return nil
		}

		state = new(engine.State)
		if err := json.Unmarshal(stateBytes, state); err != nil {
			return errors.Wrap(err, "Unable to unmarshal state")
		}

		return nil
	})

	return state, err
}

// SaveGenesis records the epoch-zero state and the economic parameters the
// token was created with. It refuses to overwrite an existing genesis.
func (t *TokenStore) SaveGenesis(genesis *engine.State, params interface{}) error {

	stateBytes, err := json.Marshal(genesis)
	if err != nil {
		return errors.Wrap(err, "Unable to marshal genesis")
	}

	paramBytes, err := json.Marshal(params)
	if err != nil {
		return errors.Wrap(err, "Unable to marshal parameters")
	}

	return t.storage.Update(func(tx *bolt.Tx) error {
		b, err := tokenBucket(tx, t.token, STATE_BUCKET)
		if err != nil {
			return err
		}

		if b.Get([]byte(GENESIS)) != nil {
			return errors.Errorf("Token %s already has a genesis", t.token)
		}

		if err := b.Put([]byte(GENESIS), stateBytes); err != nil {
			return err
		}
		if err := b.Put([]byte(CURRENT_STATE), stateBytes); err != nil {
			return err
		}

		return b.Put([]byte(PARAMETERS), paramBytes)
	})
}

// LoadGenesis returns the stored genesis state and unmarshals the stored
// parameters into params. found is false for an uninitialized token.
func (t *TokenStore) LoadGenesis(params interface{}) (genesis *engine.State, found bool, err error) {

	err = t.storage.View(func(tx *bolt.Tx) error {
		b, err := tokenBucket(tx, t.token, STATE_BUCKET)
		if err != nil || b == nil {
			return err
		}

		stateBytes := b.Get([]byte(GENESIS))
		if stateBytes == nil {
			return nil
		}

		genesis = new(engine.State)
		if err := json.Unmarshal(stateBytes, genesis); err != nil {
			return errors.Wrap(err, "Unable to unmarshal genesis")
		}

		if params != nil {
			if err := json.Unmarshal(b.Get([]byte(PARAMETERS)), params); err != nil {
				return errors.Wrap(err, "Unable to unmarshal parameters")
			}
		}

		found = true

		return nil
	})

	return genesis, found, err
}
