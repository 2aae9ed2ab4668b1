package signer

import (
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcutil/base58"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"

	log "github.com/sirupsen/logrus"

	"github.com/rpsnoopy/EIP918r/engine"
	"github.com/rpsnoopy/EIP918r/storage"
)

// Version byte of base58check-encoded secret keys.
const secretKeyVersion = 0x80

var ErrNoWallet = errors.New("No wallet secret key found")

// Wallet holds the secp256k1 key of a mining origin and signs delegated-mint
// packets for relayers to submit.
type Wallet struct {
	sk      *btcec.PrivateKey
	Address engine.Address
}

func fromKey(sk *btcec.PrivateKey) *Wallet {
	return &Wallet{
		sk:      sk,
		Address: engine.PubkeyToAddress(sk.PubKey()),
	}
}

// GenerateNewKey creates a new random wallet.
func GenerateNewKey() (*Wallet, error) {

	sk, err := btcec.NewPrivateKey()
	if err != nil {
		log.WithError(err).Error("Failed to generate new key")
		return nil, errors.Wrap(err, "failed to generate new key")
	}

	return fromKey(sk), nil
}

// ImportSecretKey accepts a 32-byte secret as 0x-prefixed hex or in the
// base58check encoding produced by SecretKey.
func ImportSecretKey(s string) (*Wallet, error) {

	s = strings.TrimSpace(s)

	var raw []byte

	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		b, err := hexutil.Decode(s)
		if err != nil {
			return nil, errors.Wrap(err, "Invalid hex secret key")
		}
		raw = b
	} else {
		b, version, err := base58.CheckDecode(s)
		if err != nil {
			return nil, errors.Wrap(err, "Invalid base58 secret key")
		}
		if version != secretKeyVersion {
			return nil, errors.Errorf("Unexpected secret key version 0x%02x", version)
		}
		raw = b
	}

	if len(raw) != 32 {
		return nil, errors.Errorf("Secret key must be 32 bytes, got %d", len(raw))
	}

	sk, _ := btcec.PrivKeyFromBytes(raw)
	if sk.Key.IsZero() {
		return nil, errors.New("Secret key is zero")
	}

	return fromKey(sk), nil
}

// LoadWallet imports the secret key saved in storage.
func LoadWallet(db *storage.Storage) (*Wallet, error) {

	sk, _, err := db.GetSigner()
	if err != nil {
		return nil, errors.Wrap(err, "Unable to get signer sk from DB")
	}

	if sk == "" {
		return nil, ErrNoWallet
	}

	w, err := ImportSecretKey(sk)
	if err != nil {
		return nil, errors.Wrap(err, "Failed to load wallet from secret key")
	}

	log.WithField("Address", w.Address).Info("Loaded software wallet")

	return w, nil
}

// SaveSigner persists the wallet's secret key and address.
func (w *Wallet) SaveSigner(db *storage.Storage) error {

	if err := db.SetSigner(w.SecretKey(), w.Address.Hex()); err != nil {
		return errors.Wrap(err, "Unable to save key/wallet")
	}

	return nil
}

// SecretKey returns the base58check encoding of the secret key.
func (w *Wallet) SecretKey() string {
	return base58.CheckEncode(w.sk.Serialize(), secretKeyVersion)
}

// SignPacket authorizes a relayer to mint with nonce on this wallet's behalf.
// domain is the target engine's Domain().
func (w *Wallet) SignPacket(domain engine.Hash, nonce engine.Nonce) (engine.MintPacket, error) {

	h := engine.PacketHash(domain, nonce, w.Address)

	sig, err := ecdsa.SignCompact(w.sk, h[:], false)
	if err != nil {
		return engine.MintPacket{}, errors.Wrap(err, "Failed wallet signer")
	}

	return engine.MintPacket{
		Nonce:     nonce,
		Origin:    w.Address,
		Signature: sig,
	}, nil
}
