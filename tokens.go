package main

import (
	"crypto/rand"
	"math/big"
	"time"

	"github.com/pkg/errors"

	log "github.com/sirupsen/logrus"

	"github.com/rpsnoopy/EIP918r/engine"
	"github.com/rpsnoopy/EIP918r/storage"
	"github.com/rpsnoopy/EIP918r/util"
	"github.com/rpsnoopy/EIP918r/webserver"
)

// tokenParams are the economics a token was created with. They are stored
// next to the genesis state and reloaded on every start, so changing the
// network constants never alters a running token.
type tokenParams struct {
	Network            string        `json:"network"`
	Decimals           uint          `json:"decimals"`
	InitialReward      engine.Amount `json:"initialreward"`
	EpochsPerHalving   uint64        `json:"epochsperhalving"`
	MaxSupply          engine.Amount `json:"maxsupply"`
	AdjustmentInterval uint64        `json:"adjustmentinterval"`
	TargetSolveTime    time.Duration `json:"targetsolvetime"`
	MinTarget          engine.Amount `json:"mintarget"`
	MaxTarget          engine.Amount `json:"maxtarget"`
}

func paramsFromConstants(network string, c util.Constants) tokenParams {
	return tokenParams{
		Network:            network,
		Decimals:           c.Decimals,
		InitialReward:      engine.NewAmount(c.InitialReward),
		EpochsPerHalving:   c.EpochsPerHalving,
		MaxSupply:          engine.NewAmount(c.MaxSupply),
		AdjustmentInterval: c.AdjustmentInterval,
		TargetSolveTime:    c.TargetSolveTime,
		MinTarget:          engine.NewAmount(c.MinTarget),
		MaxTarget:          engine.NewAmount(c.MaxTarget),
	}
}

// openToken loads a token from storage, creating its genesis on first use,
// and returns the engine wired to the token's store and the given rotator.
func openToken(db *storage.Storage, name, network string, rotator engine.ChallengeRotator) (*webserver.TokenService, error) {

	store := db.Token(name)

	var params tokenParams

	genesis, found, err := store.LoadGenesis(&params)
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to load genesis of %s", name)
	}

	if !found {
		constants, ok := util.NetworkConstants[network]
		if !ok {
			return nil, errors.Errorf("Unknown network %q", network)
		}

		seed := make([]byte, 32)
		if _, err := rand.Read(seed); err != nil {
			return nil, errors.Wrap(err, "Unable to seed genesis challenge")
		}

		params = paramsFromConstants(network, constants)
		genesis = engine.Genesis(engine.Keccak256([]byte(name), seed), constants.InitialTarget, time.Now())

		if err := store.SaveGenesis(genesis, params); err != nil {
			return nil, err
		}

		log.WithFields(log.Fields{
			"Token": name, "Challenge": genesis.Challenge, "Network": network,
		}).Info("Created token genesis")

	} else if params.Network != network {
		log.WithFields(log.Fields{
			"Token": name, "Stored": params.Network, "Requested": network,
		}).Warn("Token was created on another network; keeping stored parameters")
	}

	current, err := store.LoadState()
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to load state of %s", name)
	}
	if current == nil {
		current = genesis
	}

	e, err := engine.New(engine.Config{
		Token:            name,
		GenesisChallenge: genesis.Challenge,
		MaxSupply:        params.MaxSupply.Int,
		Schedule: engine.HalvingSchedule{
			Initial:          params.InitialReward.Int,
			EpochsPerHalving: params.EpochsPerHalving,
		},
		Difficulty: engine.DifficultyController{
			Interval:        params.AdjustmentInterval,
			TargetSolveTime: params.TargetSolveTime,
			MinTarget:       nonZero(params.MinTarget),
			MaxTarget:       nonZero(params.MaxTarget),
		},
		Rotator: rotator,
		Ledger:  store,
	}, current)
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to start engine for %s", name)
	}

	log.WithFields(log.Fields{
		"Token": name, "Epoch": current.Epoch, "Minted": util.FormatUnits(current.TokensMinted, params.Decimals),
	}).Info("Loaded token")

	return &webserver.TokenService{
		Engine:     e,
		Authorizer: engine.NewAuthorizer(e),
		Store:      store,
		Decimals:   params.Decimals,
	}, nil
}

// nonZero maps a stored zero bound back to "unbounded".
func nonZero(a engine.Amount) *big.Int {
	if a.Int == nil || a.Sign() == 0 {
		return nil
	}
	return a.Int
}
