package engine

import (
	"github.com/pkg/errors"
)

var (
	// ErrInvalidSolution is the normal outcome of a losing submission.
	ErrInvalidSolution = errors.New("digest exceeds mining target")
	// ErrStaleChallenge means the solution was computed against a challenge
	// that has already been rotated away. It is reported as an invalid solution.
	ErrStaleChallenge = staleError{}

	ErrSupplyExhausted   = errors.New("mining supply exhausted")
	ErrSignatureMismatch = errors.New("signature does not match origin")
	ErrInvalidOrigin     = errors.New("invalid origin identity")
	ErrDigestMismatch    = errors.New("supplied digest does not match computed digest")
	ErrChallengeSource   = errors.New("challenge source unavailable")
	ErrUnknownToken      = errors.New("unknown token")
	ErrLedger            = errors.New("ledger rejected credit")
)

type staleError struct{}

func (staleError) Error() string { return "challenge is stale" }

// Is lets errors.Is(ErrStaleChallenge, ErrInvalidSolution) hold.
func (staleError) Is(target error) bool { return target == ErrInvalidSolution }

// IsRejection reports whether err is an expected, non-anomalous refusal of a
// submission rather than an operational failure.
func IsRejection(err error) bool {
	return errors.Is(err, ErrInvalidSolution) ||
		errors.Is(err, ErrDigestMismatch) ||
		errors.Is(err, ErrSignatureMismatch) ||
		errors.Is(err, ErrInvalidOrigin)
}
