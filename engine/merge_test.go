package engine

import (
	"context"
	"math/big"
	"testing"

	"github.com/pkg/errors"
)

func TestMergeMintPartialSuccess(t *testing.T) {
	easy := newTestEngine(t, new(big.Int).Set(maxUint256), func(c *Config) { c.Token = "EASY" })
	hard := newTestEngine(t, big.NewInt(1), func(c *Config) { c.Token = "HARD" })

	d := NewDispatcher(easy, hard)
	if got := d.Tokens(); len(got) != 2 || got[0] != "EASY" || got[1] != "HARD" {
		t.Fatalf("Tokens = %v", got)
	}

	results := d.MergeMint(context.Background(), alice, NonceFromUint64(1), []string{"HARD", "EASY", "NOPE"})
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}

	if results[0].Token != "HARD" || results[0].Accepted || !errors.Is(results[0].Err, ErrInvalidSolution) {
		t.Errorf("HARD result = %+v", results[0])
	}
	if results[1].Token != "EASY" || !results[1].Accepted || results[1].Event == nil || results[1].Event.Token != "EASY" {
		t.Errorf("EASY result = %+v", results[1])
	}
	if results[2].Accepted || !errors.Is(results[2].Err, ErrUnknownToken) {
		t.Errorf("unknown token result = %+v", results[2])
	}

	if easy.EpochCount() != 1 || hard.EpochCount() != 0 {
		t.Errorf("epochs = %d/%d, want 1/0", easy.EpochCount(), hard.EpochCount())
	}
	if easy.ledger.BalanceOf(alice).Sign() <= 0 {
		t.Errorf("EASY reward not credited")
	}
}

func TestMergeMintEmpty(t *testing.T) {
	d := NewDispatcher()
	if got := d.MergeMint(context.Background(), alice, NonceFromUint64(1), nil); len(got) != 0 {
		t.Errorf("results for empty target list: %+v", got)
	}
}

func TestDispatcherAdd(t *testing.T) {
	d := NewDispatcher()
	te := newTestEngine(t, pow2(250), nil)
	d.Add(te)

	if m, ok := d.Get("TEST"); !ok || m.Token() != "TEST" {
		t.Errorf("Get after Add failed")
	}
}
