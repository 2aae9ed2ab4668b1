package util

import (
	"encoding/hex"
	"math/big"
	"testing"
)

func TestCryptoGenericHash(t *testing.T) {
	// blake2b-256 of the empty string
	h, err := CryptoGenericHash(nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := hex.EncodeToString(h); got != "0e5751c026e543b2e8ab2eb06099daa1d1e5df47778f7787faab45cdf12fe3a8" {
		t.Errorf("hash = %s", got)
	}

	a, _ := CryptoGenericHash([]byte("b"), []byte("a"))
	b, _ := CryptoGenericHash([]byte("ab"), nil)
	if hex.EncodeToString(a) != hex.EncodeToString(b) {
		t.Errorf("watermark is not a prefix")
	}
}

func TestFormatUnits(t *testing.T) {
	tests := []struct {
		amount   *big.Int
		decimals uint
		want     string
	}{
		{Units(50, 8), 8, "50.00000000"},
		{big.NewInt(1), 8, "0.00000001"},
		{big.NewInt(123456789), 8, "1.23456789"},
		{big.NewInt(42), 0, "42"},
		{nil, 2, "0.00"},
	}

	for _, tt := range tests {
		if got := FormatUnits(tt.amount, tt.decimals); got != tt.want {
			t.Errorf("FormatUnits(%s, %d) = %s, want %s", tt.amount, tt.decimals, got, tt.want)
		}
	}
}

func TestNetworkConstantsAreConsistent(t *testing.T) {
	for _, name := range AvailableNetworks() {
		c := NetworkConstants[name]

		if c.MinTarget.Cmp(c.MaxTarget) > 0 {
			t.Errorf("%s: min target above max target", name)
		}
		if c.InitialTarget.Cmp(c.MinTarget) < 0 || c.InitialTarget.Cmp(c.MaxTarget) > 0 {
			t.Errorf("%s: initial target outside bounds", name)
		}

		// A halving schedule never issues more than 2*R*N
		limit := new(big.Int).Mul(c.InitialReward, new(big.Int).SetUint64(2*c.EpochsPerHalving))
		if limit.Cmp(c.MaxSupply) < 0 {
			t.Errorf("%s: cap %s can never be reached (2RN = %s)", name, c.MaxSupply, limit)
		}
		if len(c.DefaultEndpoints) == 0 {
			t.Errorf("%s: no default endpoints", name)
		}
	}

	if IsValidNetwork("nope") {
		t.Errorf("unknown network accepted")
	}
}
