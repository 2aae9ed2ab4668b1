package storage

import (
	"encoding/json"
	"math/big"

	"github.com/pkg/errors"

	bolt "go.etcd.io/bbolt"

	"github.com/rpsnoopy/EIP918r/engine"
)

var ErrWatermark = errors.New("epoch at or below mint watermark")

// TokenStore is the ledger of one token instance. It credits balances and, as
// an engine.Committer, records the mint and the next state in the same
// transaction.
type TokenStore struct {
	storage *Storage
	token   string
}

func (s *Storage) Token(token string) *TokenStore {
	return &TokenStore{storage: s, token: token}
}

func (t *TokenStore) Name() string {
	return t.token
}

// GetMintWatermark returns the number of mints recorded for this token, which
// is also the epoch the next mint must produce minus one.
func (t *TokenStore) GetMintWatermark() (uint64, error) {

	var watermark uint64

	err := t.storage.View(func(tx *bolt.Tx) error {
		b, err := tokenBucket(tx, t.token, MINTS_BUCKET)
		if err != nil || b == nil {
			return err
		}
		watermark = b.Sequence()
		return nil
	})

	return watermark, err
}

func (t *TokenStore) Credit(to engine.Address, amount *big.Int) error {
	return t.storage.Update(func(tx *bolt.Tx) error {
		return credit(tx, t.token, to, amount)
	})
}

// CommitMint credits the reward, appends the mint record and replaces the
// stored state. A mint for an epoch already recorded is refused.
func (t *TokenStore) CommitMint(ev engine.MintEvent, next *engine.State) error {

	evBytes, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "Unable to marshal mint event")
	}

	stateBytes, err := json.Marshal(next)
	if err != nil {
		return errors.Wrap(err, "Unable to marshal state")
	}

	return t.storage.Update(func(tx *bolt.Tx) error {

		mints, err := tokenBucket(tx, t.token, MINTS_BUCKET)
		if err != nil {
			return err
		}

		// Double-mint protection
		if watermark := mints.Sequence(); next.Epoch <= watermark {
			return errors.Wrapf(ErrWatermark, "epoch %d, watermark %d", next.Epoch, watermark)
		}

		if err := credit(tx, t.token, ev.To, ev.Reward.Int); err != nil {
			return err
		}

		if err := mints.SetSequence(next.Epoch); err != nil {
			return err
		}

		if err := mints.Put(itob(ev.Epoch), evBytes); err != nil {
			return errors.Wrap(err, "Unable to save mint record")
		}

		sb, err := tokenBucket(tx, t.token, STATE_BUCKET)
		if err != nil {
			return err
		}

		return sb.Put([]byte(CURRENT_STATE), stateBytes)
	})
}

func credit(tx *bolt.Tx, token string, to engine.Address, amount *big.Int) error {

	if amount == nil || amount.Sign() < 0 {
		return errors.New("Credit amount must be non-negative")
	}

	b, err := tokenBucket(tx, token, BALANCES_BUCKET)
	if err != nil {
		return err
	}

	bal := new(big.Int).SetBytes(b.Get(to[:]))
	bal.Add(bal, amount)

	return b.Put(to[:], bal.Bytes())
}
