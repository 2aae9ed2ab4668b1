package engine

import (
	"context"
	"math/big"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

func TestMain(m *testing.M) {
	log.SetLevel(log.WarnLevel)
	os.Exit(m.Run())
}

var (
	alice = Address{0xa1}
	bob   = Address{0xb0}
	c0    = Keccak256([]byte("genesis"))
)

func pow2(n uint) *big.Int { return new(big.Int).Lsh(big.NewInt(1), n) }

// mine searches the nonce space from zero for a solution.
func mine(t *testing.T, claimant Address, challenge Hash, target *big.Int) Nonce {
	t.Helper()
	for i := uint64(0); i < 1<<26; i++ {
		n := NonceFromUint64(i)
		if Verify(n, claimant, challenge, target) {
			return n
		}
	}
	t.Fatal("no solution found")
	return Nonce{}
}

// miss returns a nonce that does not solve challenge.
func miss(t *testing.T, claimant Address, challenge Hash, target *big.Int) Nonce {
	t.Helper()
	for i := uint64(0); i < 1<<16; i++ {
		n := NonceFromUint64(i)
		if !Verify(n, claimant, challenge, target) {
			return n
		}
	}
	t.Fatal("every nonce solves")
	return Nonce{}
}

type clock struct {
	lock sync.Mutex
	now  time.Time
}

func newClock() *clock { return &clock{now: time.Unix(1700000000, 0)} }

func (c *clock) Now() time.Time {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.now = c.now.Add(d)
}

func staticHead(c *clock) HeadSource {
	head := Keccak256([]byte("block"))
	return HeadFunc(func() (Hash, time.Time, error) { return head, c.Now(), nil })
}

type testEngine struct {
	*Engine
	ledger *MemoryLedger
	clock  *clock
}

func newTestEngine(t *testing.T, target *big.Int, mutate func(*Config)) *testEngine {
	t.Helper()

	clk := newClock()
	ledger := NewMemoryLedger()

	cfg := Config{
		Token:     "TEST",
		MaxSupply: big.NewInt(21_000_000),
		Schedule:  HalvingSchedule{Initial: big.NewInt(50), EpochsPerHalving: 1000},
		Rotator:   &SourceRotator{Source: staticHead(clk), MaxHeadAge: time.Minute, Now: clk.Now},
		Ledger:    ledger,
		Now:       clk.Now,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	e, err := New(cfg, Genesis(c0, target, clk.Now()))
	if err != nil {
		t.Fatalf("New: %s", err)
	}

	return &testEngine{Engine: e, ledger: ledger, clock: clk}
}

func TestNewRejectsBadConfig(t *testing.T) {
	good := func() Config {
		return Config{
			Token:    "T",
			Schedule: HalvingSchedule{Initial: big.NewInt(1)},
			Rotator:  &SourceRotator{},
			Ledger:   NewMemoryLedger(),
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		initial *State
	}{
		{"no token", func(c *Config) { c.Token = "" }, Genesis(c0, big.NewInt(10), time.Now())},
		{"no schedule", func(c *Config) { c.Schedule = nil }, Genesis(c0, big.NewInt(10), time.Now())},
		{"no ledger", func(c *Config) { c.Ledger = nil }, Genesis(c0, big.NewInt(10), time.Now())},
		{"no state", func(c *Config) {}, nil},
		{"zero target", func(c *Config) {}, Genesis(c0, big.NewInt(0), time.Now())},
		{"target below min", func(c *Config) { c.Difficulty.MinTarget = big.NewInt(100) }, Genesis(c0, big.NewInt(10), time.Now())},
		{"resume without genesis", func(c *Config) {}, &State{Epoch: 3, Challenge: c0, Target: big.NewInt(10)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := good()
			tt.mutate(&cfg)
			if _, err := New(cfg, tt.initial); err == nil {
				t.Errorf("expected error")
			}
		})
	}
}

func TestMintAdvancesEpoch(t *testing.T) {
	target := pow2(240)
	te := newTestEngine(t, target, nil)

	var events []MintEvent
	te.Subscribe(SubscriberFunc(func(ev MintEvent) { events = append(events, ev) }))

	reward := te.MiningReward()
	n := mine(t, alice, c0, target)

	ev, err := te.Mint(context.Background(), alice, n)
	if err != nil {
		t.Fatalf("Mint: %s", err)
	}

	if te.EpochCount() != 1 {
		t.Errorf("epoch = %d, want 1", te.EpochCount())
	}
	if te.ChallengeNumber() == c0 {
		t.Errorf("challenge did not rotate")
	}
	if te.TokensMinted().Cmp(reward) != 0 {
		t.Errorf("minted = %s, want %s", te.TokensMinted(), reward)
	}
	if te.ledger.BalanceOf(alice).Cmp(reward) != 0 {
		t.Errorf("balance = %s, want %s", te.ledger.BalanceOf(alice), reward)
	}

	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	got := events[0]
	if got.To != alice || got.Epoch != 0 || got.Challenge != c0 || got.Reward.Cmp(reward) != 0 {
		t.Errorf("unexpected event %+v", got)
	}
	if *ev != got {
		t.Errorf("returned event differs from published one")
	}
	if got.Digest != Digest(n, alice, c0) {
		t.Errorf("event digest mismatch")
	}
}

func TestResubmissionAfterRotationFails(t *testing.T) {
	target := pow2(240)
	te := newTestEngine(t, target, nil)
	ctx := context.Background()

	n := mine(t, alice, c0, target)
	if !te.MintOK(ctx, alice, n) {
		t.Fatal("first mint refused")
	}

	before := te.Snapshot()
	if Verify(n, alice, before.Challenge, target) {
		t.Skip("nonce happens to solve the rotated challenge too")
	}

	_, err := te.Mint(ctx, alice, n)
	if !errors.Is(err, ErrInvalidSolution) {
		t.Fatalf("err = %v, want ErrInvalidSolution", err)
	}

	after := te.Snapshot()
	if after.Epoch != before.Epoch || after.Challenge != before.Challenge || after.TokensMinted.Cmp(before.TokensMinted) != 0 {
		t.Errorf("rejected mint changed state")
	}
}

func TestInvalidSolutionLeavesStateUnchanged(t *testing.T) {
	target := pow2(250)
	te := newTestEngine(t, target, nil)

	n := miss(t, alice, c0, target)
	if te.MintOK(context.Background(), alice, n) {
		t.Fatal("losing nonce accepted")
	}

	if te.EpochCount() != 0 || te.ChallengeNumber() != c0 || te.TokensMinted().Sign() != 0 {
		t.Errorf("state changed after rejection")
	}
}

func TestMintAgainstStaleChallenge(t *testing.T) {
	target := pow2(250)
	te := newTestEngine(t, target, nil)
	ctx := context.Background()

	if _, err := te.MintAgainst(ctx, alice, mine(t, alice, c0, target), c0); err != nil {
		t.Fatalf("MintAgainst: %s", err)
	}

	_, err := te.MintAgainst(ctx, bob, mine(t, bob, c0, target), c0)
	if !errors.Is(err, ErrStaleChallenge) {
		t.Fatalf("err = %v, want ErrStaleChallenge", err)
	}
	if !errors.Is(err, ErrInvalidSolution) {
		t.Errorf("stale challenge should also count as an invalid solution")
	}
}

func TestMintWithDigest(t *testing.T) {
	target := pow2(250)
	te := newTestEngine(t, target, nil)
	ctx := context.Background()

	n := mine(t, alice, c0, target)

	_, err := te.MintWithDigest(ctx, alice, n, Digest(n, bob, c0))
	if !errors.Is(err, ErrDigestMismatch) {
		t.Fatalf("err = %v, want ErrDigestMismatch", err)
	}
	if te.EpochCount() != 0 {
		t.Fatalf("digest mismatch advanced epoch")
	}

	if _, err := te.MintWithDigest(ctx, alice, n, Digest(n, alice, c0)); err != nil {
		t.Fatalf("MintWithDigest: %s", err)
	}
}

func TestSupplyExhaustionIsTerminal(t *testing.T) {
	target := pow2(252)
	te := newTestEngine(t, target, func(c *Config) {
		c.MaxSupply = big.NewInt(250)
		c.Schedule = HalvingSchedule{Initial: big.NewInt(100)}
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		n := mine(t, alice, te.ChallengeNumber(), target)
		if _, err := te.Mint(ctx, alice, n); err != nil {
			t.Fatalf("mint %d: %s", i, err)
		}
	}

	challenge := te.ChallengeNumber()
	_, err := te.Mint(ctx, alice, mine(t, alice, challenge, target))
	if !errors.Is(err, ErrSupplyExhausted) {
		t.Fatalf("err = %v, want ErrSupplyExhausted", err)
	}

	if !te.Exhausted() {
		t.Errorf("engine not marked exhausted")
	}
	if te.MiningReward().Sign() != 0 {
		t.Errorf("reward after exhaustion = %s", te.MiningReward())
	}
	if te.EpochCount() != 2 || te.ChallengeNumber() != challenge {
		t.Errorf("exhausted mint changed state")
	}
	if te.TokensMinted().Cmp(big.NewInt(200)) != 0 {
		t.Errorf("minted = %s, want 200", te.TokensMinted())
	}

	_, err = te.Mint(ctx, bob, mine(t, bob, challenge, target))
	if !errors.Is(err, ErrSupplyExhausted) {
		t.Errorf("err = %v, want ErrSupplyExhausted on later submission", err)
	}
}

type failingLedger struct{}

func (failingLedger) Credit(Address, *big.Int) error { return errors.New("disk full") }

func TestLedgerFailureAbortsMint(t *testing.T) {
	target := pow2(250)
	var notified bool

	te := newTestEngine(t, target, func(c *Config) { c.Ledger = failingLedger{} })
	te.Subscribe(SubscriberFunc(func(MintEvent) { notified = true }))

	_, err := te.Mint(context.Background(), alice, mine(t, alice, c0, target))
	if !errors.Is(err, ErrLedger) {
		t.Fatalf("err = %v, want ErrLedger", err)
	}
	if notified {
		t.Errorf("event published for failed mint")
	}
	if te.EpochCount() != 0 || te.ChallengeNumber() != c0 || te.TokensMinted().Sign() != 0 {
		t.Errorf("ledger failure changed state")
	}
}

type recordingCommitter struct {
	events []MintEvent
	states []*State
}

func (r *recordingCommitter) Credit(Address, *big.Int) error { panic("Credit called on a Committer") }

func (r *recordingCommitter) CommitMint(ev MintEvent, next *State) error {
	r.events = append(r.events, ev)
	r.states = append(r.states, next)
	return nil
}

func TestCommitterReceivesNextState(t *testing.T) {
	target := pow2(250)
	rc := &recordingCommitter{}
	te := newTestEngine(t, target, func(c *Config) { c.Ledger = rc })

	if _, err := te.Mint(context.Background(), alice, mine(t, alice, c0, target)); err != nil {
		t.Fatalf("Mint: %s", err)
	}

	if len(rc.states) != 1 {
		t.Fatalf("CommitMint called %d times", len(rc.states))
	}
	if rc.states[0].Epoch != 1 || rc.states[0].Challenge != te.ChallengeNumber() {
		t.Errorf("committed state %+v does not match published state", rc.states[0])
	}
}

func TestSourceFailureFailsClosed(t *testing.T) {
	target := pow2(250)
	te := newTestEngine(t, target, func(c *Config) {
		c.Rotator = &SourceRotator{Source: HeadFunc(func() (Hash, time.Time, error) {
			return Hash{}, time.Time{}, errors.New("rpc down")
		})}
	})

	_, err := te.Mint(context.Background(), alice, mine(t, alice, c0, target))
	if !errors.Is(err, ErrChallengeSource) {
		t.Fatalf("err = %v, want ErrChallengeSource", err)
	}
	if te.EpochCount() != 0 || te.ChallengeNumber() != c0 || te.ledger.BalanceOf(alice).Sign() != 0 {
		t.Errorf("state changed without a fresh challenge")
	}
}

func TestCancelledContext(t *testing.T) {
	target := pow2(250)
	te := newTestEngine(t, target, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := te.Mint(ctx, alice, mine(t, alice, c0, target)); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if te.EpochCount() != 0 {
		t.Errorf("cancelled mint advanced epoch")
	}
}

func TestConcurrentSubmissionsSingleWinner(t *testing.T) {
	target := pow2(248)
	te := newTestEngine(t, target, nil)

	const miners = 16
	nonces := make([]Nonce, miners)
	claimants := make([]Address, miners)
	for i := range nonces {
		claimants[i] = Address{0xcc, byte(i)}
		nonces[i] = mine(t, claimants[i], c0, target)
	}

	var (
		wg     sync.WaitGroup
		start  = make(chan struct{})
		lock   sync.Mutex
		wins   int
		stales int
	)

	for i := 0; i < miners; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, err := te.MintAgainst(context.Background(), claimants[i], nonces[i], c0)

			lock.Lock()
			defer lock.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ErrStaleChallenge):
				stales++
			default:
				t.Errorf("unexpected error: %s", err)
			}
		}(i)
	}

	close(start)
	wg.Wait()

	if wins != 1 || stales != miners-1 {
		t.Errorf("wins = %d stales = %d, want 1 and %d", wins, stales, miners-1)
	}
	if te.EpochCount() != 1 {
		t.Errorf("epoch = %d, want 1", te.EpochCount())
	}
}

func TestReadersSeeConsistentSnapshots(t *testing.T) {
	target := pow2(252)
	te := newTestEngine(t, target, nil)
	ctx := context.Background()

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			s := te.Snapshot()
			want := new(big.Int).Mul(big.NewInt(50), new(big.Int).SetUint64(s.Epoch))
			if s.TokensMinted.Cmp(want) != 0 {
				t.Errorf("epoch %d with minted %s", s.Epoch, s.TokensMinted)
				return
			}
		}
	}()

	for i := 0; i < 20; i++ {
		n := mine(t, alice, te.ChallengeNumber(), target)
		if _, err := te.Mint(ctx, alice, n); err != nil {
			t.Fatalf("mint %d: %s", i, err)
		}
	}

	close(done)
	wg.Wait()
}

func TestDifficultyAdjustsOnBoundary(t *testing.T) {
	target := pow2(250)
	te := newTestEngine(t, target, func(c *Config) {
		c.Difficulty = DifficultyController{
			Interval:        2,
			TargetSolveTime: time.Minute,
			MinTarget:       pow2(200),
			MaxTarget:       pow2(255),
		}
	})
	ctx := context.Background()

	te.clock.Advance(time.Second)
	if _, err := te.Mint(ctx, alice, mine(t, alice, te.ChallengeNumber(), target)); err != nil {
		t.Fatalf("Mint: %s", err)
	}
	if te.MiningTarget().Cmp(target) != 0 {
		t.Fatalf("target moved before the adjustment boundary")
	}

	te.clock.Advance(time.Second)
	if _, err := te.Mint(ctx, alice, mine(t, alice, te.ChallengeNumber(), target)); err != nil {
		t.Fatalf("Mint: %s", err)
	}

	// two solutions in two seconds against a two minute expectation: maximum tightening
	want := new(big.Int).Sub(target, new(big.Int).Mul(new(big.Int).Div(target, big.NewInt(2000)), big.NewInt(1000)))
	if te.MiningTarget().Cmp(want) != 0 {
		t.Errorf("target = %s, want %s", te.MiningTarget(), want)
	}

	s := te.Snapshot()
	if s.LastAdjustmentEpoch != 2 || !s.LastAdjustmentTime.Equal(te.clock.Now()) {
		t.Errorf("adjustment markers not updated: %+v", s)
	}
	if te.MiningDifficulty().Cmp(new(big.Int).Div(pow2(255), want)) != 0 {
		t.Errorf("difficulty = %s", te.MiningDifficulty())
	}
}

func TestAccessors(t *testing.T) {
	target := pow2(240)
	te := newTestEngine(t, target, func(c *Config) {
		c.Difficulty = DifficultyController{Interval: 1024, TargetSolveTime: 10 * time.Minute, MaxTarget: pow2(250)}
	})

	if te.GetMiningTarget().Cmp(target) != 0 {
		t.Errorf("target = %s", te.GetMiningTarget())
	}
	if te.GetMiningDifficulty().Cmp(big.NewInt(1024)) != 0 {
		t.Errorf("difficulty = %s, want 1024", te.GetMiningDifficulty())
	}
	if te.GetChallengeNumber() != c0 {
		t.Errorf("challenge = %s", te.GetChallengeNumber())
	}
	if te.GetMiningReward().Cmp(big.NewInt(50)) != 0 {
		t.Errorf("reward = %s", te.GetMiningReward())
	}
	if te.GetAdjustmentInterval() != 1024*10*time.Minute {
		t.Errorf("interval = %s", te.GetAdjustmentInterval())
	}

	// returned values are copies
	te.MiningTarget().SetInt64(1)
	if te.MiningTarget().Cmp(target) != 0 {
		t.Errorf("caller mutated engine target")
	}

	n := NonceFromUint64(7)
	if te.Hash(n, alice, c0) != Digest(n, alice, c0) {
		t.Errorf("Hash disagrees with Digest")
	}
}

func TestDomainDependsOnGenesis(t *testing.T) {
	a := newTestEngine(t, pow2(250), nil)
	b := newTestEngine(t, pow2(250), func(c *Config) { c.GenesisChallenge = Keccak256([]byte("other")) })
	c := newTestEngine(t, pow2(250), func(c *Config) { c.Token = "OTHER" })

	if a.Domain() == b.Domain() || a.Domain() == c.Domain() {
		t.Errorf("distinct deployments share a domain")
	}
}
