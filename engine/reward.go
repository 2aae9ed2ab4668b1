package engine

import (
	"math/big"

	"github.com/pkg/errors"
)

// RewardSchedule yields the payout for a given epoch. Implementations must be
// non-increasing in epoch.
type RewardSchedule interface {
	Reward(epoch uint64) *big.Int
}

// HalvingSchedule halves the reward every EpochsPerHalving epochs. With an
// initial reward R and period N the total issuance converges to 2*R*N.
type HalvingSchedule struct {
	Initial          *big.Int
	EpochsPerHalving uint64
}

func (h HalvingSchedule) Reward(epoch uint64) *big.Int {
	if h.Initial == nil || h.Initial.Sign() <= 0 {
		return new(big.Int)
	}
	if h.EpochsPerHalving == 0 {
		return new(big.Int).Set(h.Initial)
	}

	era := epoch / h.EpochsPerHalving
	if era >= uint64(h.Initial.BitLen()) {
		return new(big.Int)
	}

	return new(big.Int).Rsh(h.Initial, uint(era))
}

// StepSchedule lowers the reward by Decrement every EpochsPerStep epochs and
// floors at zero.
type StepSchedule struct {
	Initial       *big.Int
	Decrement     *big.Int
	EpochsPerStep uint64
}

func (s StepSchedule) Reward(epoch uint64) *big.Int {
	if s.Initial == nil || s.Initial.Sign() <= 0 {
		return new(big.Int)
	}
	if s.EpochsPerStep == 0 || s.Decrement == nil || s.Decrement.Sign() <= 0 {
		return new(big.Int).Set(s.Initial)
	}

	steps := new(big.Int).SetUint64(epoch / s.EpochsPerStep)
	r := new(big.Int).Sub(s.Initial, steps.Mul(steps, s.Decrement))
	if r.Sign() < 0 {
		return new(big.Int)
	}

	return r
}

// consumeReward returns the reward owed for the current epoch, or
// ErrSupplyExhausted if paying it would break the supply cap or the schedule
// has decayed to zero.
func consumeReward(s *State, schedule RewardSchedule, maxSupply *big.Int) (*big.Int, error) {
	reward := schedule.Reward(s.Epoch)
	if reward.Sign() <= 0 {
		return nil, errors.Wrapf(ErrSupplyExhausted, "reward for epoch %d is zero", s.Epoch)
	}

	after := new(big.Int).Add(s.TokensMinted, reward)
	if maxSupply != nil && after.Cmp(maxSupply) > 0 {
		return nil, errors.Wrapf(ErrSupplyExhausted, "minted %s + reward %s exceeds cap %s", s.TokensMinted, reward, maxSupply)
	}

	return reward, nil
}
