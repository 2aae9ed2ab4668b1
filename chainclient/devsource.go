package chainclient

import (
	"crypto/rand"
	"encoding/binary"
	"time"

	"github.com/pkg/errors"

	"github.com/rpsnoopy/EIP918r/engine"
	"github.com/rpsnoopy/EIP918r/util"
)

// DevSource stands in for a chain during local development. Its head changes
// every interval and is derived from a random per-process seed.
type DevSource struct {
	seed     []byte
	interval time.Duration
	now      func() time.Time
}

func NewDevSource(interval time.Duration) (*DevSource, error) {

	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		return nil, errors.Wrap(err, "Unable to seed dev source")
	}

	if interval <= 0 {
		interval = time.Second
	}

	return &DevSource{seed: seed, interval: interval, now: time.Now}, nil
}

func (d *DevSource) Head() (engine.Hash, time.Time, error) {

	now := d.now()

	var slot [8]byte
	binary.BigEndian.PutUint64(slot[:], uint64(now.UnixNano()/int64(d.interval)))

	h, err := util.CryptoGenericHash(slot[:], d.seed)
	if err != nil {
		return engine.Hash{}, time.Time{}, err
	}

	var head engine.Hash
	copy(head[:], h)

	return head, now, nil
}
