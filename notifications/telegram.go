package notifications

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"

	log "github.com/sirupsen/logrus"
)

var telegramAPI = "https://api.telegram.org"

type NotifyTelegram struct {
	ChatIDs []int  `json:"chatids"`
	APIKey  string `json:"apikey"`
	Enabled bool   `json:"enabled"`
}

// NewTelegram creates a new NotifyTelegram object using a JSON byte-stream
// provided from either DB lookup or web UI.
func NewTelegram(config []byte) (*NotifyTelegram, error) {

	nt := &NotifyTelegram{
		Enabled: true,
	}

	if err := json.Unmarshal(config, nt); err != nil {
		return nil, errors.Wrap(err, "Unable to unmarshal telegram config")
	}

	if nt.APIKey == "" {
		return nil, errors.New("Telegram API key required")
	}

	return nt, nil
}

func (n *NotifyTelegram) IsEnabled() bool {
	return n.Enabled
}

func (n *NotifyTelegram) Send(msg string) error {
	// curl -G \
	//  --data-urlencode "chat_id=111112233" \
	//  --data-urlencode "text=$message" \
	//  https://api.telegram.org/bot${TOKEN}/sendMessage

	// HTTP client 10s timeout
	client := &http.Client{
		Timeout: time.Second * 10,
	}

	var lastErr error

	// Loop over chatIds, sending message
	for _, id := range n.ChatIDs {
		if err := n.sendMessage(client, msg, id); err != nil {
			log.WithField("ChatId", id).WithError(err).Error("Unable to send telegram message")
			lastErr = err
		}
	}

	if lastErr == nil {
		log.WithField("MSG", msg).Info("Sent Telegram Message(s)")
	}

	return lastErr
}

func (n *NotifyTelegram) sendMessage(client *http.Client, msg string, chatID int) error {

	q := url.Values{}
	q.Set("chat_id", strconv.Itoa(chatID))
	q.Set("text", msg)

	u := fmt.Sprintf("%s/bot%s/sendMessage?%s", telegramAPI, n.APIKey, q.Encode())

	resp, err := client.Get(u)
	if err != nil {
		return errors.Wrap(err, "Telegram request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "Unable to read telegram message response")
	}

	log.WithField("Resp", string(body)).Debug("Telegram Reply")

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("Telegram status %d", resp.StatusCode)
	}

	return nil
}
