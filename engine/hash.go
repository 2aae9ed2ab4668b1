package engine

import (
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"
)

// Digest is the proof-of-work hash: keccak256(challenge || claimant || nonce),
// the same packing an EIP-918 contract uses, so mining software can search the
// nonce space off-line with identical results.
func Digest(nonce Nonce, claimant Address, challenge Hash) Hash {
	return Keccak256(challenge[:], claimant[:], nonce[:])
}

// Keccak256 hashes the concatenation of data with legacy (pre-NIST) keccak.
func Keccak256(data ...[]byte) Hash {
	return crypto.Keccak256Hash(data...)
}

// Verify reports whether nonce solves challenge for claimant at target.
// Equality with the target is a valid solution.
func Verify(nonce Nonce, claimant Address, challenge Hash, target *big.Int) bool {
	if target == nil || target.Sign() <= 0 {
		return false
	}
	return Digest(nonce, claimant, challenge).Big().Cmp(target) <= 0
}

// attempt is a single solution check against one challenge snapshot. It is
// never stored.
type attempt struct {
	nonce     Nonce
	claimant  Address
	challenge Hash
	digest    Hash
}

func newAttempt(nonce Nonce, claimant Address, challenge Hash) attempt {
	return attempt{
		nonce:     nonce,
		claimant:  claimant,
		challenge: challenge,
		digest:    Digest(nonce, claimant, challenge),
	}
}

func (a attempt) solves(target *big.Int) bool {
	return target != nil && target.Sign() > 0 && a.digest.Big().Cmp(target) <= 0
}
