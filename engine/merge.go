package engine

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Minter is the capability the merge dispatcher needs from a token instance.
type Minter interface {
	Token() string
	Mint(ctx context.Context, claimant Address, nonce Nonce) (*MintEvent, error)
}

// MergeResult is the outcome of one target of a merged mint.
type MergeResult struct {
	Token    string
	Accepted bool
	Event    *MintEvent
	Err      error
}

// Dispatcher forwards a single nonce to several independent token instances.
// Each target checks the nonce against its own challenge and target; there is
// no atomicity across targets.
type Dispatcher struct {
	lock    sync.RWMutex
	targets map[string]Minter
}

func NewDispatcher(minters ...Minter) *Dispatcher {
	d := &Dispatcher{targets: make(map[string]Minter, len(minters))}
	for _, m := range minters {
		d.targets[m.Token()] = m
	}
	return d
}

func (d *Dispatcher) Add(m Minter) {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.targets[m.Token()] = m
}

func (d *Dispatcher) Get(token string) (Minter, bool) {
	d.lock.RLock()
	defer d.lock.RUnlock()
	m, ok := d.targets[token]
	return m, ok
}

// Tokens lists the registered targets in name order.
func (d *Dispatcher) Tokens() []string {
	d.lock.RLock()
	defer d.lock.RUnlock()

	names := make([]string, 0, len(d.targets))
	for n := range d.targets {
		names = append(names, n)
	}
	sort.Strings(names)

	return names
}

// MergeMint submits nonce for claimant to every listed token, in order, and
// reports each outcome separately.
func (d *Dispatcher) MergeMint(ctx context.Context, claimant Address, nonce Nonce, tokens []string) []MergeResult {
	results := make([]MergeResult, 0, len(tokens))

	for _, t := range tokens {
		m, ok := d.Get(t)
		if !ok {
			results = append(results, MergeResult{Token: t, Err: errors.Wrapf(ErrUnknownToken, "%q", t)})
			continue
		}

		ev, err := m.Mint(ctx, claimant, nonce)
		results = append(results, MergeResult{
			Token:    t,
			Accepted: err == nil,
			Event:    ev,
			Err:      err,
		})
	}

	accepted := 0
	for _, r := range results {
		if r.Accepted {
			accepted++
		}
	}

	log.WithFields(log.Fields{
		"Claimant": claimant, "Targets": len(tokens), "Accepted": accepted,
	}).Debug("Merged mint dispatched")

	return results
}
