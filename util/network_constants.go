package util

import (
	"math/big"
	"sort"
	"time"
)

const (
	NETWORK_MAINNET = "mainnet"
	NETWORK_SEPOLIA = "sepolia"
	NETWORK_DEVNET  = "devnet"
)

type Constants struct {
	Decimals         uint
	InitialReward    *big.Int // base units
	EpochsPerHalving uint64
	MaxSupply        *big.Int // base units

	AdjustmentInterval uint64
	TargetSolveTime    time.Duration
	InitialTarget      *big.Int
	MinTarget          *big.Int
	MaxTarget          *big.Int

	// Challenge source
	MaxHeadAge       time.Duration
	PollInterval     time.Duration
	DefaultEndpoints []string
}

var NetworkConstants map[string]Constants

func init() {

	NetworkConstants = make(map[string]Constants)

	// 21M supply, 50 per solution halving every 210000 epochs, retarget every
	// 1024 epochs aiming at one solution per ten minutes
	NetworkConstants[NETWORK_MAINNET] = Constants{
		Decimals:           8,
		InitialReward:      Units(50, 8),
		EpochsPerHalving:   210000,
		MaxSupply:          Units(21000000, 8),
		AdjustmentInterval: 1024,
		TargetSolveTime:    10 * time.Minute,
		InitialTarget:      Pow2(234),
		MinTarget:          Pow2(16),
		MaxTarget:          Pow2(234),
		MaxHeadAge:         5 * time.Minute,
		PollInterval:       12 * time.Second,
		DefaultEndpoints: []string{
			"https://ethereum-rpc.publicnode.com",
			"https://eth.llamarpc.com",
		},
	}

	NetworkConstants[NETWORK_SEPOLIA] = Constants{
		Decimals:           8,
		InitialReward:      Units(50, 8),
		EpochsPerHalving:   21000,
		MaxSupply:          Units(2100000, 8),
		AdjustmentInterval: 128,
		TargetSolveTime:    time.Minute,
		InitialTarget:      Pow2(240),
		MinTarget:          Pow2(16),
		MaxTarget:          Pow2(245),
		MaxHeadAge:         5 * time.Minute,
		PollInterval:       12 * time.Second,
		DefaultEndpoints: []string{
			"https://ethereum-sepolia-rpc.publicnode.com",
			"https://rpc.sepolia.org",
		},
	}

	// Local development; pair with -dev-source
	NetworkConstants[NETWORK_DEVNET] = Constants{
		Decimals:           8,
		InitialReward:      Units(50, 8),
		EpochsPerHalving:   100,
		MaxSupply:          Units(10000, 8),
		AdjustmentInterval: 16,
		TargetSolveTime:    5 * time.Second,
		InitialTarget:      Pow2(244),
		MinTarget:          Pow2(16),
		MaxTarget:          Pow2(252),
		MaxHeadAge:         time.Minute,
		PollInterval:       2 * time.Second,
		DefaultEndpoints:   []string{"http://127.0.0.1:8545"},
	}
}

func IsValidNetwork(maybeNetwork string) bool {
	_, ok := NetworkConstants[maybeNetwork]
	return ok
}

func AvailableNetworks() []string {
	networks := make([]string, 0, len(NetworkConstants))
	for n := range NetworkConstants {
		networks = append(networks, n)
	}
	sort.Strings(networks)
	return networks
}
