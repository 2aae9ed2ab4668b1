package engine

import (
	"context"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Config is fixed for the lifetime of an Engine.
type Config struct {
	Token            string
	GenesisChallenge Hash
	MaxSupply        *big.Int
	Schedule         RewardSchedule
	Difficulty       DifficultyController
	Rotator          ChallengeRotator
	Ledger           Ledger
	Now              func() time.Time
}

// Engine is the mint coordinator of one token instance. Submissions are
// serialized through lock; every accepted one runs verify, reward, rotate and
// adjust as one unit and publishes a fresh immutable State. Readers load that
// snapshot without taking the lock.
type Engine struct {
	cfg    Config
	domain Hash

	lock        sync.Mutex
	current     atomic.Pointer[State]
	exhausted   atomic.Bool
	subscribers []Subscriber
}

func New(cfg Config, initial *State) (*Engine, error) {
	switch {
	case cfg.Token == "":
		return nil, errors.New("token name required")
	case cfg.Schedule == nil:
		return nil, errors.New("reward schedule required")
	case cfg.Rotator == nil:
		return nil, errors.New("challenge rotator required")
	case cfg.Ledger == nil:
		return nil, errors.New("ledger required")
	case initial == nil:
		return nil, errors.New("initial state required")
	case initial.Target == nil || initial.Target.Sign() <= 0:
		return nil, errors.New("target must be positive")
	}

	d := cfg.Difficulty
	if d.MinTarget != nil && d.MaxTarget != nil && d.MinTarget.Cmp(d.MaxTarget) > 0 {
		return nil, errors.Errorf("min target %s above max target %s", d.MinTarget, d.MaxTarget)
	}
	if d.MinTarget != nil && initial.Target.Cmp(d.MinTarget) < 0 {
		return nil, errors.New("target below min target")
	}
	if d.MaxTarget != nil && initial.Target.Cmp(d.MaxTarget) > 0 {
		return nil, errors.New("target above max target")
	}
	if cfg.MaxSupply != nil && initial.TokensMinted != nil && initial.TokensMinted.Cmp(cfg.MaxSupply) > 0 {
		return nil, errors.New("minted amount already above max supply")
	}

	if cfg.GenesisChallenge == (Hash{}) {
		if initial.Epoch != 0 {
			return nil, errors.New("genesis challenge required when resuming past epoch 0")
		}
		cfg.GenesisChallenge = initial.Challenge
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	e := &Engine{
		cfg:    cfg,
		domain: DomainOf(cfg.Token, cfg.GenesisChallenge),
	}

	s := initial.clone()
	e.current.Store(s)

	epochGauge.WithLabelValues(cfg.Token).Set(float64(s.Epoch))
	d2, _ := new(big.Float).SetInt(e.MiningDifficulty()).Float64()
	difficultyGauge.WithLabelValues(cfg.Token).Set(d2)

	return e, nil
}

// Subscribe registers s for Mint events.
func (e *Engine) Subscribe(s Subscriber) {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.subscribers = append(e.subscribers, s)
}

// Mint submits nonce on behalf of claimant. A rejected solution is returned as
// an error wrapping ErrInvalidSolution; that is an expected outcome.
func (e *Engine) Mint(ctx context.Context, claimant Address, nonce Nonce) (*MintEvent, error) {
	return e.mint(ctx, claimant, claimant, nonce, nil)
}

// MintOK is Mint reduced to success or failure.
func (e *Engine) MintOK(ctx context.Context, claimant Address, nonce Nonce) bool {
	_, err := e.Mint(ctx, claimant, nonce)
	return err == nil
}

// MintAgainst is Mint for a caller that states which challenge it solved. If
// that challenge has been rotated away the result is ErrStaleChallenge.
func (e *Engine) MintAgainst(ctx context.Context, claimant Address, nonce Nonce, challenge Hash) (*MintEvent, error) {
	return e.mint(ctx, claimant, claimant, nonce, &challenge)
}

// MintWithDigest is the legacy two-argument mint: digest must equal the digest
// recomputed against the current challenge.
func (e *Engine) MintWithDigest(ctx context.Context, claimant Address, nonce Nonce, digest Hash) (*MintEvent, error) {
	challenge := e.snapshot().Challenge

	if computed := Digest(nonce, claimant, challenge); computed != digest {
		mintResults.WithLabelValues(e.cfg.Token, resultLabel(ErrDigestMismatch)).Inc()
		return nil, errors.Wrapf(ErrDigestMismatch, "computed %s, got %s", computed, digest)
	}

	return e.mint(ctx, claimant, claimant, nonce, &challenge)
}

func (e *Engine) mint(ctx context.Context, submitter, claimant Address, nonce Nonce, expect *Hash) (ev *MintEvent, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	defer func() {
		mintResults.WithLabelValues(e.cfg.Token, resultLabel(err)).Inc()
	}()

	if e.exhausted.Load() {
		return nil, ErrSupplyExhausted
	}

	e.lock.Lock()
	defer e.lock.Unlock()

	cur := e.current.Load()

	// Verifying
	if expect != nil && *expect != cur.Challenge {
		log.WithFields(log.Fields{
			"Token": e.cfg.Token, "Claimant": claimant, "Challenge": *expect, "Epoch": cur.Epoch,
		}).Trace("Stale challenge")
		return nil, errors.Wrapf(ErrStaleChallenge, "solved %s, current %s", *expect, cur.Challenge)
	}

	att := newAttempt(nonce, claimant, cur.Challenge)
	if !att.solves(cur.Target) {
		log.WithFields(log.Fields{
			"Token": e.cfg.Token, "Claimant": claimant, "Digest": att.digest, "Epoch": cur.Epoch,
		}).Trace("Solution rejected")
		return nil, errors.Wrapf(ErrInvalidSolution, "digest %s", att.digest)
	}

	// Rewarding
	reward, err := consumeReward(cur, e.cfg.Schedule, e.cfg.MaxSupply)
	if err != nil {
		if e.exhausted.CompareAndSwap(false, true) {
			log.WithError(err).WithFields(log.Fields{
				"Token": e.cfg.Token, "Epoch": cur.Epoch, "Minted": cur.TokensMinted,
			}).Warn("Supply exhausted; minting stopped")
		}
		return nil, err
	}

	// Rotating
	nextChallenge, err := e.cfg.Rotator.NextChallenge(cur)
	if err != nil {
		log.WithError(err).WithField("Token", e.cfg.Token).Error("Unable to rotate challenge; refusing mint")
		return nil, err
	}

	now := e.cfg.Now()
	next := cur.clone()
	next.advance(reward, nextChallenge, now)

	// Adjusting
	next = e.cfg.Difficulty.MaybeAdjust(next, now)

	event := MintEvent{
		Token:     e.cfg.Token,
		To:        claimant,
		Submitter: submitter,
		Reward:    NewAmount(reward),
		Epoch:     cur.Epoch,
		Challenge: cur.Challenge,
		Digest:    att.digest,
		Timestamp: now,
	}

	// Nothing is published until the ledger has accepted the credit
	if c, ok := e.cfg.Ledger.(Committer); ok {
		err = c.CommitMint(event, next)
	} else {
		err = e.cfg.Ledger.Credit(claimant, reward)
	}
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"Token": e.cfg.Token, "Epoch": cur.Epoch, "To": claimant,
		}).Error("Ledger refused credit; mint aborted")
		return nil, &ledgerError{cause: err}
	}

	e.current.Store(next)

	epochGauge.WithLabelValues(e.cfg.Token).Set(float64(next.Epoch))
	if next.LastAdjustmentEpoch != cur.LastAdjustmentEpoch {
		observeTarget(e.cfg.Token, cur.Target, next.Target, e.cfg.Difficulty.MaxTarget)

		log.WithFields(log.Fields{
			"Token": e.cfg.Token, "Epoch": next.Epoch, "Previous": cur.Target.Text(16), "Target": next.Target.Text(16),
		}).Info("Mining target readjusted")
	}

	for _, s := range e.subscribers {
		s.OnMint(event)
	}

	log.WithFields(log.Fields{
		"Token": e.cfg.Token, "Epoch": event.Epoch, "To": claimant, "Reward": event.Reward, "Challenge": next.Challenge,
	}).Info("Mint accepted")

	return &event, nil
}

func (e *Engine) snapshot() *State {
	return e.current.Load()
}

// Snapshot returns a copy of the last committed state.
func (e *Engine) Snapshot() State {
	return *e.current.Load().clone()
}

func (e *Engine) Token() string { return e.cfg.Token }

// Domain separates delegated-mint signatures between deployments.
func (e *Engine) Domain() Hash { return e.domain }

// DomainOf is Domain for a token that is not loaded.
func DomainOf(token string, genesisChallenge Hash) Hash {
	return Keccak256([]byte(token), genesisChallenge[:])
}

func (e *Engine) ChallengeNumber() Hash { return e.snapshot().Challenge }

func (e *Engine) MiningTarget() *big.Int { return cloneBig(e.snapshot().Target) }

func (e *Engine) MiningDifficulty() *big.Int {
	return Difficulty(e.snapshot().Target, e.cfg.Difficulty.MaxTarget)
}

func (e *Engine) EpochCount() uint64 { return e.snapshot().Epoch }

// AdjustmentInterval is the wall time one adjustment period is meant to take.
func (e *Engine) AdjustmentInterval() time.Duration {
	return time.Duration(e.cfg.Difficulty.Interval) * e.cfg.Difficulty.TargetSolveTime
}

// AdjustmentEpochs is the number of epochs between readjustments.
func (e *Engine) AdjustmentEpochs() uint64 { return e.cfg.Difficulty.Interval }

func (e *Engine) MiningReward() *big.Int {
	if e.exhausted.Load() {
		return new(big.Int)
	}
	return e.cfg.Schedule.Reward(e.snapshot().Epoch)
}

func (e *Engine) TokensMinted() *big.Int { return cloneBig(e.snapshot().TokensMinted) }

func (e *Engine) MaxSupply() *big.Int { return cloneBig(e.cfg.MaxSupply) }

func (e *Engine) MinTarget() *big.Int { return cloneBig(e.cfg.Difficulty.MinTarget) }

func (e *Engine) MaxTarget() *big.Int { return cloneBig(e.cfg.Difficulty.MaxTarget) }

func (e *Engine) Exhausted() bool { return e.exhausted.Load() }

// Hash is the verification helper exposed to mining software.
func (e *Engine) Hash(nonce Nonce, claimant Address, challenge Hash) Hash {
	return Digest(nonce, claimant, challenge)
}

// Legacy accessor names.

func (e *Engine) GetChallengeNumber() Hash { return e.ChallengeNumber() }

func (e *Engine) GetMiningDifficulty() *big.Int { return e.MiningDifficulty() }

func (e *Engine) GetMiningTarget() *big.Int { return e.MiningTarget() }

func (e *Engine) GetMiningReward() *big.Int { return e.MiningReward() }

func (e *Engine) GetAdjustmentInterval() time.Duration { return e.AdjustmentInterval() }

type ledgerError struct {
	cause error
}

func (l *ledgerError) Error() string { return ErrLedger.Error() + ": " + l.cause.Error() }

func (l *ledgerError) Unwrap() error { return l.cause }

func (l *ledgerError) Is(target error) bool { return target == ErrLedger }
