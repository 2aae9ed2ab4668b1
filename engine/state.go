package engine

import (
	"math/big"
	"time"
)

// State is the mutable aggregate of one token instance. The engine never
// mutates a published State; each accepted mint produces a new one.
type State struct {
	Epoch        uint64   `json:"epoch"`
	Challenge    Hash     `json:"challenge"`
	Target       *big.Int `json:"target"`
	TokensMinted *big.Int `json:"minted"`

	LastAdjustmentEpoch uint64    `json:"lae"`
	LastAdjustmentTime  time.Time `json:"lat"`
	LastMintTime        time.Time `json:"lmt"`
}

// Genesis builds the epoch-zero state.
func Genesis(challenge Hash, target *big.Int, now time.Time) *State {
	return &State{
		Challenge:          challenge,
		Target:             new(big.Int).Set(target),
		TokensMinted:       new(big.Int),
		LastAdjustmentTime: now,
	}
}

func (s *State) clone() *State {
	c := *s
	c.Target = cloneBig(s.Target)
	c.TokensMinted = cloneBig(s.TokensMinted)
	return &c
}

// advance records one accepted solution: the epoch moves forward exactly once,
// the reward is added to the minted total and the rotated challenge is stored.
func (s *State) advance(reward *big.Int, next Hash, now time.Time) {
	s.Epoch++
	s.TokensMinted = new(big.Int).Add(s.TokensMinted, reward)
	s.Challenge = next
	s.LastMintTime = now
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
