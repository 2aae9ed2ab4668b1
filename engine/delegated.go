package engine

import (
	"context"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// SignatureLength is the size of a compact recoverable secp256k1 signature:
// one recovery byte followed by R and S.
const SignatureLength = 65

var delegatedMintTag = []byte("EIP918 delegated mint")

// MintPacket is an off-chain authorization from origin to mint with nonce.
// It arrives through an untrusted relayer.
type MintPacket struct {
	Nonce     Nonce
	Origin    Address
	Signature []byte
}

// PacketHash is the message an origin signs. The domain ties the packet to a
// single deployment so it cannot be replayed against a look-alike instance.
func PacketHash(domain Hash, nonce Nonce, origin Address) Hash {
	return Keccak256(delegatedMintTag, domain[:], nonce[:], origin[:])
}

// PubkeyToAddress derives the account identity of a public key.
func PubkeyToAddress(pub *btcec.PublicKey) Address {
	return crypto.PubkeyToAddress(*pub.ToECDSA())
}

// RecoverSigner returns the identity whose key produced sig over hash.
func RecoverSigner(hash Hash, sig []byte) (Address, error) {
	if len(sig) != SignatureLength {
		return Address{}, errors.Errorf("signature must be %d bytes, got %d", SignatureLength, len(sig))
	}

	pub, _, err := ecdsa.RecoverCompact(sig, hash[:])
	if err != nil {
		return Address{}, errors.Wrap(err, "unable to recover public key")
	}

	return PubkeyToAddress(pub), nil
}

// Authorizer lets a relayer submit a solution on behalf of an origin that
// signed it. The origin is the claimant and receives the reward; the relayer is
// only recorded as submitter.
type Authorizer struct {
	engine *Engine
}

func NewAuthorizer(e *Engine) *Authorizer {
	return &Authorizer{engine: e}
}

func (a *Authorizer) DelegatedMint(ctx context.Context, relayer Address, p MintPacket) (*MintEvent, error) {
	if err := a.authenticate(p); err != nil {
		mintResults.WithLabelValues(a.engine.Token(), resultLabel(err)).Inc()
		log.WithError(err).WithFields(log.Fields{
			"Token": a.engine.Token(), "Origin": p.Origin, "Relayer": relayer,
		}).Debug("Delegated mint refused")
		return nil, err
	}

	return a.engine.mint(ctx, relayer, p.Origin, p.Nonce, nil)
}

// DelegatedMintOK is DelegatedMint reduced to success or failure.
func (a *Authorizer) DelegatedMintOK(ctx context.Context, relayer Address, p MintPacket) bool {
	_, err := a.DelegatedMint(ctx, relayer, p)
	return err == nil
}

func (a *Authorizer) authenticate(p MintPacket) error {
	if p.Origin == ZeroAddress {
		return errors.Wrap(ErrInvalidOrigin, "origin is the zero address")
	}

	signer, err := RecoverSigner(PacketHash(a.engine.Domain(), p.Nonce, p.Origin), p.Signature)
	if err != nil {
		return errors.Wrap(ErrSignatureMismatch, err.Error())
	}
	if signer == ZeroAddress {
		return errors.Wrap(ErrInvalidOrigin, "recovered the zero address")
	}
	if signer != p.Origin {
		return errors.Wrapf(ErrSignatureMismatch, "signed by %s, origin %s", signer, p.Origin)
	}

	return nil
}
