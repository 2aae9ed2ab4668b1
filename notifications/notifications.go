package notifications

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pkg/errors"

	log "github.com/sirupsen/logrus"

	"github.com/rpsnoopy/EIP918r/engine"
	"github.com/rpsnoopy/EIP918r/storage"
	"github.com/rpsnoopy/EIP918r/util"
)

const (
	TELEGRAM = "telegram"

	queueSize = 64
)

type Notifier interface {
	IsEnabled() bool
	Send(string) error
}

// NotificationHandler fans Mint events and operator alerts out to the
// configured notifiers. OnMint only queues, so it is safe to call from inside
// the engine's critical section.
type NotificationHandler struct {
	notifiers map[string]Notifier
	storage   *storage.Storage
	decimals  uint

	queue chan string
	lock  sync.RWMutex
}

func NewHandler(db *storage.Storage, decimals uint) (*NotificationHandler, error) {

	n := &NotificationHandler{
		notifiers: make(map[string]Notifier, 1),
		storage:   db,
		decimals:  decimals,
		queue:     make(chan string, queueSize),
	}

	if err := n.LoadNotifiers(); err != nil {
		return n, errors.Wrap(err, "Failed New Notification")
	}

	return n, nil
}

func (n *NotificationHandler) LoadNotifiers() error {

	configs, err := n.storage.NotifierConfigs()
	if err != nil {
		return errors.Wrap(err, "Unable to load notifier configs")
	}

	if len(configs) == 0 {
		log.Debug("No notifications configured")
		return nil
	}

	// Don't save what we just loaded
	for name, config := range configs {
		if err := n.Configure(name, config, false); err != nil {
			return errors.Wrapf(err, "Unable to init %s", name)
		}
	}

	return nil
}

func (n *NotificationHandler) Configure(notifier string, config []byte, saveConfig bool) error {

	switch notifier {
	case TELEGRAM:
		nt, err := NewTelegram(config)
		if err != nil {
			return err
		}

		if saveConfig {
			if err := n.storage.SetNotifierConfig(TELEGRAM, config); err != nil {
				return errors.Wrap(err, "Unable to save telegram config")
			}
		}

		n.lock.Lock()
		n.notifiers[TELEGRAM] = nt
		n.lock.Unlock()

	default:
		return errors.Errorf("Unknown notification type %q", notifier)
	}

	return nil
}

// OnMint implements engine.Subscriber.
func (n *NotificationHandler) OnMint(ev engine.MintEvent) {
	n.Notify(fmt.Sprintf("%s epoch %d minted: %s to %s",
		ev.Token, ev.Epoch, util.FormatUnits(ev.Reward.Int, n.decimals), ev.To))
}

// Notify queues msg for every enabled notifier. When the queue is full the
// message is logged and dropped.
func (n *NotificationHandler) Notify(msg string) {
	select {
	case n.queue <- msg:
	default:
		log.WithField("MSG", msg).Warn("Notification queue full; message dropped")
	}
}

// Run delivers queued messages until shutdown is closed.
func (n *NotificationHandler) Run(shutdown <-chan interface{}, wg *sync.WaitGroup) {

	defer wg.Done()

	for {
		select {
		case msg := <-n.queue:
			n.SendAll(msg)
		case <-shutdown:
			return
		}
	}
}

func (n *NotificationHandler) SendAll(msg string) {

	n.lock.RLock()
	defer n.lock.RUnlock()

	for name, notifier := range n.notifiers {
		if !notifier.IsEnabled() {
			continue
		}
		if err := notifier.Send(msg); err != nil {
			log.WithError(err).WithField("Notifier", name).Error("Unable to send notification")
		}
	}
}

// TestSend sends msg through one notifier, bypassing the queue and the
// enabled flag, so the operator gets immediate feedback.
func (n *NotificationHandler) TestSend(notifier string, msg string) error {

	n.lock.RLock()
	nt, ok := n.notifiers[notifier]
	n.lock.RUnlock()

	if !ok {
		return errors.Errorf("Notifier %q is not configured", notifier)
	}

	return nt.Send(msg)
}

func (n *NotificationHandler) GetConfig() (json.RawMessage, error) {

	n.lock.RLock()
	defer n.lock.RUnlock()

	// Return RawMessage so as not to double Marshal
	bts, err := json.Marshal(n.notifiers)
	return json.RawMessage(bts), err
}
