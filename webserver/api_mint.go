package webserver

import (
	"encoding/json"
	"net/http"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"

	log "github.com/sirupsen/logrus"

	"github.com/rpsnoopy/EIP918r/engine"
)

type mintResponse struct {
	Ok    bool              `json:"ok"`
	Event *engine.MintEvent `json:"event,omitempty"`
	Error string            `json:"error,omitempty"`
}

// mintOutcome writes the result of a single submission. Rejected solutions
// and an exhausted supply are ordinary answers; source or ledger failures
// are not.
func mintOutcome(ev *engine.MintEvent, err error, w http.ResponseWriter) {

	switch {
	case err == nil:
		apiReturn(mintResponse{Ok: true, Event: ev}, w)

	case engine.IsRejection(err), errors.Is(err, engine.ErrSupplyExhausted):
		apiReturn(mintResponse{Error: err.Error()}, w)

	case errors.Is(err, engine.ErrChallengeSource), errors.Is(err, engine.ErrLedger):
		log.WithError(err).Error("Mint failed")
		apiErrorStatus(err, http.StatusServiceUnavailable, w)

	default:
		apiError(err, w)
	}
}

type mintRequest struct {
	Token     string `json:"token"`
	Account   string `json:"account"`
	Nonce     string `json:"nonce"`
	Digest    string `json:"digest"`
	Challenge string `json:"challenge"`
}

//
// Submit a solution. An optional digest is checked against the computed one;
// an optional challenge pins the submission to a puzzle so it cannot land on
// a newer one.
func (ws *WebServer) postMint(w http.ResponseWriter, r *http.Request) {

	log.Trace("API - PostMint")

	var req mintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiError(errors.Wrap(err, "Failed to parse body"), w)
		return
	}

	t, err := ws.token(req.Token)
	if err != nil {
		apiErrorStatus(err, http.StatusNotFound, w)
		return
	}

	account, err := engine.ParseAddress(req.Account)
	if err != nil {
		apiError(err, w)
		return
	}

	nonce, err := engine.ParseNonce(req.Nonce)
	if err != nil {
		apiError(err, w)
		return
	}

	var ev *engine.MintEvent

	switch {
	case req.Digest != "":
		digest, err := engine.ParseHash(req.Digest)
		if err != nil {
			apiError(err, w)
			return
		}
		ev, err = t.MintWithDigest(r.Context(), account, nonce, digest)
		mintOutcome(ev, err, w)

	case req.Challenge != "":
		challenge, err := engine.ParseHash(req.Challenge)
		if err != nil {
			apiError(err, w)
			return
		}
		ev, err = t.MintAgainst(r.Context(), account, nonce, challenge)
		mintOutcome(ev, err, w)

	default:
		ev, err = t.Mint(r.Context(), account, nonce)
		mintOutcome(ev, err, w)
	}
}

type mergeRequest struct {
	Account string   `json:"account"`
	Nonce   string   `json:"nonce"`
	Tokens  []string `json:"tokens"`
}

type mergeTarget struct {
	Token    string            `json:"token"`
	Accepted bool              `json:"accepted"`
	Event    *engine.MintEvent `json:"event,omitempty"`
	Error    string            `json:"error,omitempty"`
}

//
// Submit one solution to several tokens; an empty token list means all of them
func (ws *WebServer) postMerge(w http.ResponseWriter, r *http.Request) {

	log.Trace("API - PostMerge")

	var req mergeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiError(errors.Wrap(err, "Failed to parse body"), w)
		return
	}

	account, err := engine.ParseAddress(req.Account)
	if err != nil {
		apiError(err, w)
		return
	}

	nonce, err := engine.ParseNonce(req.Nonce)
	if err != nil {
		apiError(err, w)
		return
	}

	tokens := req.Tokens
	if len(tokens) == 0 {
		tokens = ws.tokenOrder
	}

	results := ws.dispatcher.MergeMint(r.Context(), account, nonce, tokens)

	targets := make([]mergeTarget, 0, len(results))
	for _, res := range results {
		mt := mergeTarget{Token: res.Token, Accepted: res.Accepted, Event: res.Event}
		if res.Err != nil {
			mt.Error = res.Err.Error()
		}
		targets = append(targets, mt)
	}

	apiReturn(map[string]interface{}{"results": targets}, w)
}

type delegatedRequest struct {
	Token     string `json:"token"`
	Relayer   string `json:"relayer"`
	Nonce     string `json:"nonce"`
	Origin    string `json:"origin"`
	Signature string `json:"signature"`
}

//
// Relay a solution signed by its origin; the reward goes to the origin
func (ws *WebServer) postDelegated(w http.ResponseWriter, r *http.Request) {

	log.Trace("API - PostDelegated")

	var req delegatedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiError(errors.Wrap(err, "Failed to parse body"), w)
		return
	}

	t, err := ws.token(req.Token)
	if err != nil {
		apiErrorStatus(err, http.StatusNotFound, w)
		return
	}

	relayer, err := engine.ParseAddress(req.Relayer)
	if err != nil {
		apiError(errors.Wrap(err, "relayer"), w)
		return
	}

	origin, err := engine.ParseAddress(req.Origin)
	if err != nil {
		apiError(errors.Wrap(err, "origin"), w)
		return
	}

	nonce, err := engine.ParseNonce(req.Nonce)
	if err != nil {
		apiError(err, w)
		return
	}

	sig, err := hexutil.Decode(req.Signature)
	if err != nil {
		apiError(errors.Wrap(err, "Failed to decode signature"), w)
		return
	}

	ev, err := t.Authorizer.DelegatedMint(r.Context(), relayer, engine.MintPacket{
		Nonce:     nonce,
		Origin:    origin,
		Signature: sig,
	})
	mintOutcome(ev, err, w)
}
