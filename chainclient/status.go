package chainclient

import (
	"sync"
	"time"
)

const (

	// Various states for the UI to take action
	STATE_SYNCED    = "synced"
	STATE_NO_HEAD   = "nohead"
	STATE_RPC_ERROR = "rpcerror"
)

type ClientStatus struct {
	HeadNumber uint64    `json:"headnumber"`
	HeadHash   string    `json:"headhash"`
	HeadTime   time.Time `json:"headtime"`
	LastPoll   time.Time `json:"lastpoll"`

	Endpoint  string `json:"endpoint"`
	IsPrimary bool   `json:"isprimary"`

	State    string `json:"state"`
	ErrorMsg string `json:"error"`

	lock sync.RWMutex
}

func (s *ClientStatus) SetHead(b *Block) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.HeadNumber = b.Number
	s.HeadHash = b.Hash.Hex()
	s.HeadTime = b.Timestamp
	s.LastPoll = time.Now()
	s.State = STATE_SYNCED
}

func (s *ClientStatus) SetEndpoint(url string, primary bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.Endpoint = url
	s.IsPrimary = primary
}

func (s *ClientStatus) SetError(e error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.ErrorMsg = e.Error()
	if s.HeadHash == "" {
		s.State = STATE_NO_HEAD
	} else {
		s.State = STATE_RPC_ERROR
	}
}

func (s *ClientStatus) ClearError() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.ErrorMsg = ""
}

// Copy returns a snapshot safe to marshal while polling continues.
func (s *ClientStatus) Copy() ClientStatus {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return ClientStatus{
		HeadNumber: s.HeadNumber,
		HeadHash:   s.HeadHash,
		HeadTime:   s.HeadTime,
		LastPoll:   s.LastPoll,
		Endpoint:   s.Endpoint,
		IsPrimary:  s.IsPrimary,
		State:      s.State,
		ErrorMsg:   s.ErrorMsg,
	}
}
