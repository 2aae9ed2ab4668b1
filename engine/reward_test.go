package engine

import (
	"math/big"
	"testing"

	"github.com/pkg/errors"
)

func TestHalvingSchedule(t *testing.T) {
	h := HalvingSchedule{Initial: big.NewInt(5000), EpochsPerHalving: 10}

	tests := []struct {
		epoch uint64
		want  int64
	}{
		{0, 5000},
		{9, 5000},
		{10, 2500},
		{25, 1250},
		{120, 1},
		{130, 0},
		{1 << 62, 0},
	}

	for _, tt := range tests {
		if got := h.Reward(tt.epoch); got.Cmp(big.NewInt(tt.want)) != 0 {
			t.Errorf("Reward(%d) = %s, want %d", tt.epoch, got, tt.want)
		}
	}
}

func TestStepSchedule(t *testing.T) {
	s := StepSchedule{Initial: big.NewInt(100), Decrement: big.NewInt(30), EpochsPerStep: 5}

	tests := []struct {
		epoch uint64
		want  int64
	}{
		{0, 100},
		{4, 100},
		{5, 70},
		{15, 10},
		{20, 0},
		{1000, 0},
	}

	for _, tt := range tests {
		if got := s.Reward(tt.epoch); got.Cmp(big.NewInt(tt.want)) != 0 {
			t.Errorf("Reward(%d) = %s, want %d", tt.epoch, got, tt.want)
		}
	}
}

func TestSchedulesNeverIncrease(t *testing.T) {
	schedules := map[string]RewardSchedule{
		"halving": HalvingSchedule{Initial: big.NewInt(50_0000_0000), EpochsPerHalving: 7},
		"step":    StepSchedule{Initial: big.NewInt(1000), Decrement: big.NewInt(3), EpochsPerStep: 2},
	}

	for name, s := range schedules {
		t.Run(name, func(t *testing.T) {
			prev := s.Reward(0)
			for e := uint64(1); e < 2000; e++ {
				r := s.Reward(e)
				if r.Cmp(prev) > 0 {
					t.Fatalf("reward rose from %s to %s at epoch %d", prev, r, e)
				}
				prev = r
			}
		})
	}
}

func TestHalvingConvergesUnderCap(t *testing.T) {
	initial := big.NewInt(50)
	h := HalvingSchedule{Initial: initial, EpochsPerHalving: 4}
	limit := new(big.Int).Mul(big.NewInt(2*4), initial)

	total := new(big.Int)
	for e := uint64(0); e < 1000; e++ {
		total.Add(total, h.Reward(e))
	}

	if total.Cmp(limit) > 0 {
		t.Errorf("total issuance %s above 2*R*N = %s", total, limit)
	}
}

func TestConsumeReward(t *testing.T) {
	schedule := HalvingSchedule{Initial: big.NewInt(10)}

	tests := []struct {
		name   string
		minted int64
		cap    *big.Int
		err    error
	}{
		{"room", 0, big.NewInt(100), nil},
		{"exactly fills", 90, big.NewInt(100), nil},
		{"overflows", 91, big.NewInt(100), ErrSupplyExhausted},
		{"uncapped", 1_000_000, nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &State{TokensMinted: big.NewInt(tt.minted)}
			r, err := consumeReward(s, schedule, tt.cap)
			if !errors.Is(err, tt.err) {
				t.Fatalf("err = %v, want %v", err, tt.err)
			}
			if err == nil && r.Cmp(big.NewInt(10)) != 0 {
				t.Errorf("reward = %s", r)
			}
		})
	}

	t.Run("decayed", func(t *testing.T) {
		s := &State{Epoch: 10, TokensMinted: new(big.Int)}
		_, err := consumeReward(s, HalvingSchedule{Initial: big.NewInt(1), EpochsPerHalving: 1}, nil)
		if !errors.Is(err, ErrSupplyExhausted) {
			t.Errorf("err = %v, want ErrSupplyExhausted", err)
		}
	})
}
