package webserver

import (
	"encoding/json"
	"net/http"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"

	log "github.com/sirupsen/logrus"

	"github.com/rpsnoopy/EIP918r/engine"
	"github.com/rpsnoopy/EIP918r/signer"
)

//
// Generate new key
// Nothing is saved; the operator imports the key to keep it
func (ws *WebServer) generateNewKey(w http.ResponseWriter, r *http.Request) {
	log.Debug("API - generateNewKey")

	wallet, err := signer.GenerateNewKey()
	if err != nil {
		apiError(errors.Wrap(err, "Cannot generate new key"), w)
		return
	}

	log.WithField("Address", wallet.Address).Info("Generated new key-pair")

	apiReturn(map[string]string{
		"sk":      wallet.SecretKey(),
		"address": wallet.Address.Hex(),
	}, w)
}

//
// Import a secret key, save it to the database and use it for signing
func (ws *WebServer) importSecretKey(w http.ResponseWriter, r *http.Request) {
	log.Debug("API - importSecretKey")

	var k map[string]string

	if err := json.NewDecoder(r.Body).Decode(&k); err != nil {
		apiError(errors.Wrap(err, "Cannot decode body for secret key import"), w)
		return
	}

	wallet, err := signer.ImportSecretKey(k["sk"])
	if err != nil {
		apiError(errors.Wrap(err, "Cannot import secret key"), w)
		return
	}

	if err := wallet.SaveSigner(ws.storage); err != nil {
		apiError(err, w)
		return
	}

	ws.walletLock.Lock()
	ws.wallet = wallet
	ws.walletLock.Unlock()

	log.WithField("Address", wallet.Address).Info("Imported secret key")

	apiReturn(map[string]string{
		"address": wallet.Address.Hex(),
	}, w)
}

//
// Sign a delegated-mint packet for a token with the stored wallet
func (ws *WebServer) signPacket(w http.ResponseWriter, r *http.Request) {
	log.Debug("API - signPacket")

	var k map[string]string

	if err := json.NewDecoder(r.Body).Decode(&k); err != nil {
		apiError(errors.Wrap(err, "Cannot decode body for packet signing"), w)
		return
	}

	t, err := ws.token(k["token"])
	if err != nil {
		apiErrorStatus(err, http.StatusNotFound, w)
		return
	}

	nonce, err := engine.ParseNonce(k["nonce"])
	if err != nil {
		apiError(err, w)
		return
	}

	ws.walletLock.RLock()
	wallet := ws.wallet
	ws.walletLock.RUnlock()

	if wallet == nil {
		apiError(signer.ErrNoWallet, w)
		return
	}

	p, err := wallet.SignPacket(t.Domain(), nonce)
	if err != nil {
		apiError(err, w)
		return
	}

	apiReturn(map[string]string{
		"token":     t.Token(),
		"nonce":     p.Nonce.Hex(),
		"origin":    p.Origin.Hex(),
		"signature": hexutil.Encode(p.Signature),
	}, w)
}
