package main

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"

	log "github.com/sirupsen/logrus"

	"github.com/rpsnoopy/EIP918r/engine"
	"github.com/rpsnoopy/EIP918r/signer"
)

// signPacket prints a delegated-mint packet for a relayer to submit. It
// returns the process exit code.
func (s *Server) signPacket() int {

	nonce, err := engine.ParseNonce(s.signNonce)
	if err != nil {
		log.WithError(err).Error("Invalid nonce")
		return 1
	}

	genesis, found, err := s.Storage.Token(s.signToken).LoadGenesis(nil)
	if err != nil {
		log.WithError(err).Error("Unable to load token genesis")
		return 1
	}
	if !found {
		log.WithField("Token", s.signToken).Error("Token has no genesis; start the daemon once first")
		return 1
	}

	wallet, err := signer.LoadWallet(s.Storage)
	if err != nil {
		log.WithError(err).Error("Unable to load wallet")
		return 1
	}

	p, err := wallet.SignPacket(engine.DomainOf(s.signToken, genesis.Challenge), nonce)
	if err != nil {
		log.WithError(err).Error("Unable to sign packet")
		return 1
	}

	out, err := json.MarshalIndent(map[string]string{
		"token":     s.signToken,
		"nonce":     p.Nonce.Hex(),
		"origin":    p.Origin.Hex(),
		"signature": hexutil.Encode(p.Signature),
	}, "", "  ")
	if err != nil {
		log.WithError(err).Error("Unable to encode packet")
		return 1
	}

	fmt.Println(string(out))

	return 0
}
