package webserver

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"

	log "github.com/sirupsen/logrus"

	"github.com/rpsnoopy/EIP918r/chainclient"
	"github.com/rpsnoopy/EIP918r/engine"
	"github.com/rpsnoopy/EIP918r/util"
)

const maxHistory = 500

type ApiError struct {
	Error string `json:"error"`
}

func apiError(err error, w http.ResponseWriter) {
	apiErrorStatus(err, http.StatusBadRequest, w)
}

func apiErrorStatus(err error, status int, w http.ResponseWriter) {
	e, _ := json.Marshal(ApiError{err.Error()})
	w.Header().Set("Content-Type", "application/json")
	http.Error(w, string(e), status)
}

func apiReturnOk(w http.ResponseWriter) {
	apiReturn(map[string]bool{"ok": true}, w)
}

func apiReturn(v interface{}, w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Error("UI Return Encode Failure")
	}
}

func (ws *WebServer) getHealth(w http.ResponseWriter, r *http.Request) {
	apiReturnOk(w)
}

type tokenStatus struct {
	Token              string        `json:"token"`
	Epoch              uint64        `json:"epoch"`
	Challenge          engine.Hash   `json:"challenge"`
	Target             string        `json:"target"`
	Difficulty         string        `json:"difficulty"`
	Reward             engine.Amount `json:"reward"`
	RewardDisplay      string        `json:"rewarddisplay"`
	Minted             engine.Amount `json:"minted"`
	MaxSupply          engine.Amount `json:"maxsupply"`
	AdjustmentEpochs   uint64        `json:"adjustmentepochs"`
	AdjustmentInterval int64         `json:"adjustmentinterval"`
	LastMint           time.Time     `json:"lastmint"`
	Exhausted          bool          `json:"exhausted"`
}

func statusOf(t *TokenService) tokenStatus {
	s := t.Snapshot()
	reward := t.MiningReward()

	return tokenStatus{
		Token:              t.Token(),
		Epoch:              s.Epoch,
		Challenge:          s.Challenge,
		Target:             "0x" + s.Target.Text(16),
		Difficulty:         t.MiningDifficulty().String(),
		Reward:             engine.NewAmount(reward),
		RewardDisplay:      util.FormatUnits(reward, t.Decimals),
		Minted:             engine.NewAmount(s.TokensMinted),
		MaxSupply:          engine.NewAmount(t.MaxSupply()),
		AdjustmentEpochs:   t.AdjustmentEpochs(),
		AdjustmentInterval: int64(t.AdjustmentInterval() / time.Second),
		LastMint:           s.LastMintTime,
		Exhausted:          t.Exhausted(),
	}
}

//
// Get current status of every token and of the challenge source
func (ws *WebServer) getStatus(w http.ResponseWriter, r *http.Request) {

	log.Trace("API - GetStatus")

	tokens := make([]tokenStatus, 0, len(ws.tokenOrder))
	for _, name := range ws.tokenOrder {
		tokens = append(tokens, statusOf(ws.tokens[name]))
	}

	s := struct {
		Network string                    `json:"network"`
		Tokens  []tokenStatus             `json:"tokens"`
		Source  *chainclient.ClientStatus `json:"source,omitempty"`
		Ts      int64                     `json:"ts"`
	}{
		Network: ws.network,
		Tokens:  tokens,
		Ts:      time.Now().Unix(),
	}

	if ws.client != nil {
		cs := ws.client.Status.Copy()
		s.Source = &cs
	}

	apiReturn(s, w)
}

//
// Current puzzle for miners
func (ws *WebServer) getChallenge(w http.ResponseWriter, r *http.Request) {

	t, err := ws.token(r.URL.Query().Get("token"))
	if err != nil {
		apiErrorStatus(err, http.StatusNotFound, w)
		return
	}

	s := t.Snapshot()

	apiReturn(map[string]interface{}{
		"token":     t.Token(),
		"challenge": s.Challenge,
		"target":    "0x" + s.Target.Text(16),
		"epoch":     s.Epoch,
		"reward":    engine.NewAmount(t.MiningReward()),
	}, w)
}

//
// Verification helper: digest for nonce/account, against the current challenge
// unless one is given
func (ws *WebServer) getHash(w http.ResponseWriter, r *http.Request) {

	q := r.URL.Query()

	t, err := ws.token(q.Get("token"))
	if err != nil {
		apiErrorStatus(err, http.StatusNotFound, w)
		return
	}

	nonce, err := engine.ParseNonce(q.Get("nonce"))
	if err != nil {
		apiError(err, w)
		return
	}

	account, err := engine.ParseAddress(q.Get("account"))
	if err != nil {
		apiError(err, w)
		return
	}

	s := t.Snapshot()
	challenge := s.Challenge
	if c := q.Get("challenge"); c != "" {
		if challenge, err = engine.ParseHash(c); err != nil {
			apiError(err, w)
			return
		}
	}

	digest := t.Hash(nonce, account, challenge)

	apiReturn(map[string]interface{}{
		"digest":    digest,
		"challenge": challenge,
		"solves":    challenge == s.Challenge && digest.Big().Cmp(s.Target) <= 0,
	}, w)
}

func (ws *WebServer) getHistory(w http.ResponseWriter, r *http.Request) {

	q := r.URL.Query()

	t, err := ws.token(q.Get("token"))
	if err != nil {
		apiErrorStatus(err, http.StatusNotFound, w)
		return
	}

	n := 20
	if v := q.Get("n"); v != "" {
		if n, err = strconv.Atoi(v); err != nil || n <= 0 {
			apiError(errors.New("n must be a positive integer"), w)
			return
		}
	}
	if n > maxHistory {
		n = maxHistory
	}

	mints, err := t.Store.GetRecentMints(n)
	if err != nil {
		log.WithError(err).Error("Unable to fetch mint history")
		apiErrorStatus(errors.Wrap(err, "Cannot fetch history"), http.StatusInternalServerError, w)
		return
	}

	apiReturn(map[string]interface{}{"token": t.Token(), "mints": mints}, w)
}

func (ws *WebServer) getBalance(w http.ResponseWriter, r *http.Request) {

	q := r.URL.Query()

	t, err := ws.token(q.Get("token"))
	if err != nil {
		apiErrorStatus(err, http.StatusNotFound, w)
		return
	}

	account, err := engine.ParseAddress(q.Get("account"))
	if err != nil {
		apiError(err, w)
		return
	}

	bal, err := t.Store.BalanceOf(account)
	if err != nil {
		apiErrorStatus(errors.Wrap(err, "Cannot fetch balance"), http.StatusInternalServerError, w)
		return
	}

	apiReturn(map[string]interface{}{
		"token":   t.Token(),
		"account": account,
		"balance": engine.NewAmount(bal),
		"display": util.FormatUnits(bal, t.Decimals),
	}, w)
}
