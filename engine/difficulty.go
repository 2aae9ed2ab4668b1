package engine

import (
	"math/big"
	"time"
)

const (
	// A single readjustment moves the target by at most 1000/2000 = 50%.
	adjustmentDivisor  = 2000
	maxAdjustmentExtra = 1000
)

// DifficultyController retargets every Interval epochs so that solutions
// arrive roughly every TargetSolveTime. The computation uses integers only and
// depends on nothing but the state and the supplied time, so any third party
// can replay the target trajectory from the mint history.
type DifficultyController struct {
	Interval        uint64
	TargetSolveTime time.Duration
	MinTarget       *big.Int
	MaxTarget       *big.Int
}

// MaybeAdjust returns s unchanged when the epoch is not an adjustment
// boundary, otherwise a copy with a new target and adjustment markers.
func (d DifficultyController) MaybeAdjust(s *State, now time.Time) *State {
	if d.Interval == 0 || d.TargetSolveTime <= 0 {
		return s
	}

	epochs := s.Epoch - s.LastAdjustmentEpoch
	if epochs < d.Interval {
		return s
	}

	next := s.clone()
	next.Target = d.retarget(s.Target, epochs, now.Sub(s.LastAdjustmentTime))
	next.LastAdjustmentEpoch = s.Epoch
	next.LastAdjustmentTime = now

	return next
}

func (d DifficultyController) retarget(target *big.Int, epochs uint64, elapsed time.Duration) *big.Int {
	// Both sides in nanoseconds; sub-second solve times must not round away
	expected := new(big.Int).Mul(
		new(big.Int).SetUint64(epochs),
		big.NewInt(int64(d.TargetSolveTime)),
	)
	if expected.Sign() <= 0 {
		expected.SetInt64(1)
	}

	actual := big.NewInt(int64(elapsed))
	if actual.Sign() <= 0 {
		actual.SetInt64(1)
	}

	// Below adjustmentDivisor the per-mille step would be zero and the
	// target could never move again
	step := new(big.Int).Div(target, big.NewInt(adjustmentDivisor))
	if step.Sign() == 0 {
		step.SetInt64(1)
	}

	next := new(big.Int).Set(target)

	switch actual.Cmp(expected) {
	case -1:
		// Solutions came too fast, make the puzzle harder
		next.Sub(next, step.Mul(step, excessPercent(expected, actual)))
	case 1:
		// Too slow, make it easier
		next.Add(next, step.Mul(step, excessPercent(actual, expected)))
	}

	return d.clamp(next)
}

// excessPercent is (num*100/den)-100 capped at maxAdjustmentExtra.
func excessPercent(num, den *big.Int) *big.Int {
	pct := new(big.Int).Mul(num, big.NewInt(100))
	pct.Div(pct, den)
	pct.Sub(pct, big.NewInt(100))

	if pct.Cmp(big.NewInt(maxAdjustmentExtra)) > 0 {
		pct.SetInt64(maxAdjustmentExtra)
	}

	return pct
}

func (d DifficultyController) clamp(target *big.Int) *big.Int {
	if d.MinTarget != nil && target.Cmp(d.MinTarget) < 0 {
		return new(big.Int).Set(d.MinTarget)
	}
	if d.MaxTarget != nil && target.Cmp(d.MaxTarget) > 0 {
		return new(big.Int).Set(d.MaxTarget)
	}
	if target.Sign() <= 0 {
		return big.NewInt(1)
	}
	if target.Cmp(maxUint256) > 0 {
		return new(big.Int).Set(maxUint256)
	}

	return target
}

// Difficulty expresses target as a multiple of the easiest allowed target.
func Difficulty(target, maxTarget *big.Int) *big.Int {
	if target == nil || target.Sign() <= 0 {
		return new(big.Int)
	}
	if maxTarget == nil {
		maxTarget = maxUint256
	}

	return new(big.Int).Div(maxTarget, target)
}
