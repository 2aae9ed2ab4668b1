package engine

import (
	"math/big"
	"sync"
	"time"
)

// MintEvent is published once per accepted solution. Challenge is the puzzle
// that was solved, not the one that replaced it.
type MintEvent struct {
	Token     string    `json:"token"`
	To        Address   `json:"to"`
	Submitter Address   `json:"submitter"`
	Reward    Amount    `json:"reward"`
	Epoch     uint64    `json:"epoch"`
	Challenge Hash      `json:"challenge"`
	Digest    Hash      `json:"digest"`
	Timestamp time.Time `json:"ts"`
}

// Ledger is the token bookkeeping collaborator. The engine only ever credits.
type Ledger interface {
	Credit(to Address, amount *big.Int) error
}

// Committer is an optional Ledger capability: credit the reward and persist
// the post-mint state as one atomic unit. When the ledger implements it the
// engine calls CommitMint instead of Credit.
type Committer interface {
	CommitMint(ev MintEvent, next *State) error
}

// Subscriber receives Mint events. OnMint runs inside the engine's critical
// section and must not block or call back into the engine.
type Subscriber interface {
	OnMint(ev MintEvent)
}

// SubscriberFunc adapts a function to Subscriber.
type SubscriberFunc func(ev MintEvent)

func (f SubscriberFunc) OnMint(ev MintEvent) { f(ev) }

// MemoryLedger is an in-process Ledger keeping balances in a map.
type MemoryLedger struct {
	lock     sync.RWMutex
	balances map[Address]*big.Int
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{balances: make(map[Address]*big.Int)}
}

func (m *MemoryLedger) Credit(to Address, amount *big.Int) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	bal, ok := m.balances[to]
	if !ok {
		bal = new(big.Int)
	}
	m.balances[to] = new(big.Int).Add(bal, amount)

	return nil
}

func (m *MemoryLedger) BalanceOf(a Address) *big.Int {
	m.lock.RLock()
	defer m.lock.RUnlock()

	if bal, ok := m.balances[a]; ok {
		return new(big.Int).Set(bal)
	}

	return new(big.Int)
}
