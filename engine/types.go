package engine

import (
	"encoding/json"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/pkg/errors"
)

// Address is an account identity: the last 20 bytes of the keccak256 of an
// uncompressed secp256k1 public key.
type Address = common.Address

// Hash is a 32 byte keccak256 output; challenges and digests are both Hashes.
type Hash = common.Hash

// Nonce is the 256-bit value a miner searches over.
type Nonce [common.HashLength]byte

var (
	ZeroAddress Address

	maxUint256 = math.MaxBig256
)

func (n Nonce) Hex() string    { return hexutil.Encode(n[:]) }
func (n Nonce) String() string { return n.Hex() }
func (n Nonce) Big() *big.Int  { return new(big.Int).SetBytes(n[:]) }

// NonceFromBig encodes v as a big-endian 256-bit nonce.
func NonceFromBig(v *big.Int) (Nonce, error) {
	var n Nonce
	if v == nil || v.Sign() < 0 || v.Cmp(maxUint256) > 0 {
		return n, errors.New("nonce out of uint256 range")
	}
	copy(n[:], math.U256Bytes(new(big.Int).Set(v)))
	return n, nil
}

func NonceFromUint64(v uint64) Nonce {
	n, _ := NonceFromBig(new(big.Int).SetUint64(v))
	return n
}

// ParseNonce accepts 0x-prefixed hex or a decimal string.
func ParseNonce(s string) (Nonce, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Nonce{}, errors.New("empty nonce")
	}

	v, ok := math.ParseBig256(s)
	if !ok {
		return Nonce{}, errors.Errorf("invalid nonce %q", s)
	}

	return NonceFromBig(v)
}

func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return Address{}, errors.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

// ParseHash accepts a 0x-prefixed 32 byte hex string.
func ParseHash(s string) (Hash, error) {
	var h Hash
	if err := h.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return h, errors.Wrap(err, "invalid hash")
	}
	return h, nil
}

func (n Nonce) MarshalText() ([]byte, error) { return hexutil.Bytes(n[:]).MarshalText() }

func (n *Nonce) UnmarshalText(b []byte) error {
	v, err := ParseNonce(string(b))
	if err != nil {
		return err
	}
	*n = v
	return nil
}

// Amount is a non-negative token quantity in base units. It marshals as a
// decimal string so JSON consumers never lose precision.
type Amount struct {
	*big.Int
}

func NewAmount(v *big.Int) Amount {
	if v == nil {
		return Amount{new(big.Int)}
	}
	return Amount{new(big.Int).Set(v)}
}

func (a Amount) big() *big.Int {
	if a.Int == nil {
		return new(big.Int)
	}
	return a.Int
}

func (a Amount) String() string { return a.big().String() }

func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.big().String())
}

func (a *Amount) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return errors.Wrap(err, "amount must be a decimal string")
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return errors.Errorf("invalid amount %q", s)
	}
	a.Int = v
	return nil
}
