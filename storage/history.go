package storage

import (
	"encoding/json"
	"math/big"

	"github.com/pkg/errors"

	log "github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"

	"github.com/rpsnoopy/EIP918r/engine"
)

// GetRecentMints returns up to n mint records, newest first.
func (t *TokenStore) GetRecentMints(n int) ([]engine.MintEvent, error) {

	mints := make([]engine.MintEvent, 0, n)

	err := t.storage.View(func(tx *bolt.Tx) error {
		b, err := tokenBucket(tx, t.token, MINTS_BUCKET)
		if err != nil || b == nil {
			return err
		}

		c := b.Cursor()

		for k, v := c.Last(); k != nil && len(mints) < n; k, v = c.Prev() {

			var ev engine.MintEvent
			if err := json.Unmarshal(v, &ev); err != nil {
				log.WithError(err).WithField("Epoch", btoi(k)).Error("Unable to unmarshal mint record")
				continue
			}

			mints = append(mints, ev)
		}

		return nil
	})

	return mints, err
}

// GetMint returns the record of the mint that closed epoch.
func (t *TokenStore) GetMint(epoch uint64) (*engine.MintEvent, error) {

	var ev *engine.MintEvent

	err := t.storage.View(func(tx *bolt.Tx) error {
		b, err := tokenBucket(tx, t.token, MINTS_BUCKET)
		if err != nil || b == nil {
			return err
		}

		v := b.Get(itob(epoch))
		if v == nil {
			return nil
		}

		ev = new(engine.MintEvent)
		return errors.Wrap(json.Unmarshal(v, ev), "Unable to unmarshal mint record")
	})

	return ev, err
}

func (t *TokenStore) BalanceOf(a engine.Address) (*big.Int, error) {

	bal := new(big.Int)

	err := t.storage.View(func(tx *bolt.Tx) error {
		b, err := tokenBucket(tx, t.token, BALANCES_BUCKET)
		if err != nil || b == nil {
			return err
		}

		bal.SetBytes(b.Get(a[:]))

		return nil
	})

	return bal, err
}

// GetBalances returns every non-zero balance of the token.
func (t *TokenStore) GetBalances() (map[engine.Address]*big.Int, error) {

	balances := make(map[engine.Address]*big.Int)

	err := t.storage.View(func(tx *bolt.Tx) error {
		b, err := tokenBucket(tx, t.token, BALANCES_BUCKET)
		if err != nil || b == nil {
			return err
		}

		return b.ForEach(func(k, v []byte) error {
			var a engine.Address
			copy(a[:], k)
			balances[a] = new(big.Int).SetBytes(v)
			return nil
		})
	})

	return balances, err
}
