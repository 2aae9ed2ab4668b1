package util

import (
	"math/big"

	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"
)

func CryptoGenericHash(bufferBytes []byte, watermark []byte) ([]byte, error) {

	if len(watermark) > 0 {
		bufferBytes = append(watermark, bufferBytes...)
	}

	// Generic hash of 32 bytes
	bufferBytesHashGen, err := blake2b.New(32, []byte{})
	if err != nil {
		return nil, errors.Wrap(err, "Unable create blake2b hash object")
	}

	// Write buffer bytes to hash
	if _, err = bufferBytesHashGen.Write(bufferBytes); err != nil {
		return nil, errors.Wrap(err, "Unable write buffer bytes to hash function")
	}

	return bufferBytesHashGen.Sum([]byte{}), nil
}

// Units returns whole * 10^decimals.
func Units(whole int64, decimals uint) *big.Int {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	return scale.Mul(scale, big.NewInt(whole))
}

func Pow2(n uint) *big.Int {
	return new(big.Int).Lsh(big.NewInt(1), n)
}

// FormatUnits renders a base-unit amount as a decimal with the given number
// of fractional digits, e.g. 5000000000 with 8 decimals is "50.00000000".
func FormatUnits(amount *big.Int, decimals uint) string {
	if amount == nil {
		amount = new(big.Int)
	}

	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	whole, frac := new(big.Int).QuoRem(amount, scale, new(big.Int))
	if decimals == 0 {
		return whole.String()
	}

	fs := frac.Abs(frac).String()
	for len(fs) < int(decimals) {
		fs = "0" + fs
	}

	return whole.String() + "." + fs
}
