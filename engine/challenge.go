package engine

import (
	"encoding/binary"
	"time"

	"github.com/pkg/errors"
)

// HeadSource reports the most recent finalized block hash of an external
// ordering source and when it was observed. It must not block.
type HeadSource interface {
	Head() (Hash, time.Time, error)
}

// HeadFunc adapts a function to HeadSource.
type HeadFunc func() (Hash, time.Time, error)

func (f HeadFunc) Head() (Hash, time.Time, error) { return f() }

// ChallengeRotator derives the challenge that follows s.
type ChallengeRotator interface {
	NextChallenge(s *State) (Hash, error)
}

// SourceRotator mixes the previous challenge, the external head and the epoch
// number. The head makes the result unknowable before it is finalized, the
// previous challenge makes two rotations against the same head differ.
type SourceRotator struct {
	Source     HeadSource
	MaxHeadAge time.Duration
	Now        func() time.Time
}

func (r *SourceRotator) NextChallenge(s *State) (Hash, error) {
	if r.Source == nil {
		return Hash{}, errors.Wrap(ErrChallengeSource, "no head source configured")
	}

	head, seenAt, err := r.Source.Head()
	if err != nil {
		return Hash{}, errors.Wrapf(ErrChallengeSource, "head: %v", err)
	}
	if head == (Hash{}) {
		return Hash{}, errors.Wrap(ErrChallengeSource, "no head observed yet")
	}

	if r.MaxHeadAge > 0 {
		now := time.Now
		if r.Now != nil {
			now = r.Now
		}
		if age := now().Sub(seenAt); age > r.MaxHeadAge {
			return Hash{}, errors.Wrapf(ErrChallengeSource, "head %s is %s old", head, age.Round(time.Second))
		}
	}

	var epoch [8]byte
	binary.BigEndian.PutUint64(epoch[:], s.Epoch)

	next := Keccak256(s.Challenge[:], head[:], epoch[:])
	if next == s.Challenge {
		return Hash{}, errors.Wrap(ErrChallengeSource, "rotation produced the current challenge")
	}

	return next, nil
}
