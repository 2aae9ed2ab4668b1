package engine

import (
	"math/big"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	mintResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eip918_mint_results_total",
		Help: "Outcome of every mint submission",
	}, []string{"token", "result"})

	epochGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "eip918_epoch",
		Help: "Current epoch count",
	}, []string{"token"})

	difficultyGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "eip918_mining_difficulty",
		Help: "Current mining difficulty (max target / target)",
	}, []string{"token"})

	adjustments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eip918_difficulty_adjustments_total",
		Help: "Target readjustments by direction",
	}, []string{"token", "direction"})
)

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "accepted"
	case errors.Is(err, ErrStaleChallenge):
		return "stale"
	case errors.Is(err, ErrInvalidSolution):
		return "invalid"
	case errors.Is(err, ErrSupplyExhausted):
		return "exhausted"
	case errors.Is(err, ErrDigestMismatch):
		return "digest_mismatch"
	case errors.Is(err, ErrSignatureMismatch), errors.Is(err, ErrInvalidOrigin):
		return "unauthorized"
	case errors.Is(err, ErrChallengeSource):
		return "source_unavailable"
	case errors.Is(err, ErrLedger):
		return "ledger_error"
	}

	return "error"
}

func observeTarget(token string, prev, next, maxTarget *big.Int) {
	switch next.Cmp(prev) {
	case -1:
		adjustments.WithLabelValues(token, "harder").Inc()
	case 1:
		adjustments.WithLabelValues(token, "easier").Inc()
	default:
		adjustments.WithLabelValues(token, "unchanged").Inc()
	}

	d, _ := new(big.Float).SetInt(Difficulty(next, maxTarget)).Float64()
	difficultyGauge.WithLabelValues(token).Set(d)
}
