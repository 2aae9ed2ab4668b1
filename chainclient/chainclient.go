package chainclient

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"

	log "github.com/sirupsen/logrus"

	"github.com/rpsnoopy/EIP918r/engine"
)

var ErrNoHead = errors.New("no finalized head observed yet")

// Block is the part of a finalized block the challenge rotator needs.
type Block struct {
	Number    uint64
	Hash      engine.Hash
	Timestamp time.Time
}

type endpoint struct {
	url    string
	client *rpc.Client
}

// dial only builds the client; HTTP endpoints are not contacted until the
// first call.
func dial(url string, httpClient *http.Client) (*endpoint, error) {
	client, err := rpc.DialOptions(context.Background(), url, rpc.WithHTTPClient(httpClient))
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to dial %s", url)
	}
	return &endpoint{url: url, client: client}, nil
}

func (e *endpoint) close() {
	if e != nil && e.client != nil {
		e.client.Close()
	}
}

// Client polls JSON-RPC endpoints for the latest finalized block and serves it
// to the challenge rotator without blocking. On failure it swaps between the
// primary and backup endpoints.
type Client struct {
	Current *endpoint
	Primary *endpoint
	Backup  *endpoint

	IsPrimary bool
	lock      sync.RWMutex

	Status          *ClientStatus
	NewHeadNotifier chan *Block

	httpClient   *http.Client
	pollInterval time.Duration

	head     *Block
	lastPoll time.Time
}

func New(endpoints []string, pollInterval time.Duration) (*Client, error) {

	if len(endpoints) == 0 {
		return nil, errors.New("No RPC endpoints configured")
	}

	c := &Client{
		Status:          &ClientStatus{},
		NewHeadNotifier: make(chan *Block, 1),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		pollInterval: pollInterval,
	}

	var err error
	if c.Primary, c.Backup, err = c.dialAll(endpoints); err != nil {
		return nil, err
	}

	c.UsePrimary()

	log.WithFields(log.Fields{
		"Primary": c.Primary.url, "Backup": c.Backup.urlOrEmpty(),
	}).Info("Connecting to RPC servers")

	return c, nil
}

func (c *Client) UseBackup() {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.Backup == nil {
		return
	}
	c.Current = c.Backup
	c.IsPrimary = false
	c.Status.SetEndpoint(c.Current.url, false)
}

func (c *Client) UsePrimary() {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.Current = c.Primary
	c.IsPrimary = true
	c.Status.SetEndpoint(c.Current.url, true)
}

func (e *endpoint) urlOrEmpty() string {
	if e == nil {
		return ""
	}
	return e.url
}

func (c *Client) dialAll(endpoints []string) (primary, backup *endpoint, err error) {

	if primary, err = dial(endpoints[0], c.httpClient); err != nil {
		return nil, nil, err
	}

	if len(endpoints) > 1 {
		if backup, err = dial(endpoints[1], c.httpClient); err != nil {
			primary.close()
			return nil, nil, err
		}
	}

	return primary, backup, nil
}

// Close releases both endpoint connections.
func (c *Client) Close() {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.Primary.close()
	c.Backup.close()
}

// SetEndpoints replaces the primary and backup endpoints and switches back to
// the primary. The cached head is kept.
func (c *Client) SetEndpoints(endpoints []string) error {

	if len(endpoints) == 0 {
		return errors.New("At least one RPC endpoint required")
	}

	primary, backup, err := c.dialAll(endpoints)
	if err != nil {
		return err
	}

	c.lock.Lock()
	oldPrimary, oldBackup := c.Primary, c.Backup
	c.Primary, c.Backup = primary, backup
	c.lock.Unlock()

	oldPrimary.close()
	oldBackup.close()

	c.UsePrimary()

	log.WithFields(log.Fields{
		"Primary": primary.url, "Backup": backup.urlOrEmpty(),
	}).Info("RPC servers updated")

	return nil
}

// Head implements engine.HeadSource. The returned time is the last successful
// poll, so a silent or unreachable endpoint ages the head out.
func (c *Client) Head() (engine.Hash, time.Time, error) {
	c.lock.RLock()
	defer c.lock.RUnlock()

	if c.head == nil {
		return engine.Hash{}, time.Time{}, ErrNoHead
	}

	return c.head.Hash, c.lastPoll, nil
}

// Run polls until shutdown is closed.
func (c *Client) Run(shutdown <-chan interface{}, wg *sync.WaitGroup) {

	defer wg.Done()

	defer func() {
		if r := recover(); r != nil {
			log.WithField("Message", r).Error("Panic recovered in chain client")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		if err := c.Poll(ctx); err != nil {
			log.WithError(err).Warn("Unable to fetch finalized head")
		}

		select {
		case <-ticker.C:
		case <-shutdown:
			log.Info("Chain client shutting down")
			return
		}
	}
}

// Poll fetches the finalized head once. If the current endpoint fails, the
// other one is tried before giving up.
func (c *Client) Poll(ctx context.Context) error {

	c.lock.RLock()
	current, onPrimary, hasBackup := c.Current, c.IsPrimary, c.Backup != nil
	c.lock.RUnlock()

	block, err := c.fetchFinalized(ctx, current)
	if err != nil {
		log.WithError(err).WithField("Endpoint", current.url).Debug("Endpoint failed")

		if onPrimary && hasBackup {
			c.UseBackup()
		} else if !onPrimary {
			c.UsePrimary()
		}

		c.lock.RLock()
		retry := c.Current
		c.lock.RUnlock()

		if retry == current {
			c.Status.SetError(err)
			return err
		}

		if block, err = c.fetchFinalized(ctx, retry); err != nil {
			c.Status.SetError(err)
			return err
		}
	}

	c.lock.Lock()
	isNew := c.head == nil || c.head.Hash != block.Hash
	c.head = block
	c.lastPoll = time.Now()
	c.lock.Unlock()

	c.Status.SetHead(block)
	c.Status.ClearError()

	if isNew {
		log.WithFields(log.Fields{
			"Number": block.Number, "Hash": block.Hash,
		}).Debug("New finalized head")

		// Drop the notification if nobody consumed the previous one
		select {
		case c.NewHeadNotifier <- block:
		default:
		}
	}

	return nil
}

// finalizedHead is the subset of an eth_getBlockByNumber result we decode.
type finalizedHead struct {
	Number    hexutil.Uint64 `json:"number"`
	Hash      engine.Hash    `json:"hash"`
	Timestamp hexutil.Uint64 `json:"timestamp"`
}

func (c *Client) fetchFinalized(ctx context.Context, ep *endpoint) (*Block, error) {

	ctx, cancel := context.WithTimeout(ctx, c.httpClient.Timeout)
	defer cancel()

	var head *finalizedHead
	err := ep.client.CallContext(ctx, &head, "eth_getBlockByNumber", rpc.FinalizedBlockNumber.String(), false)
	if err != nil {
		return nil, errors.Wrap(err, "RPC request failed")
	}
	if head == nil {
		return nil, errors.New("Endpoint has no finalized block")
	}
	if head.Hash == (engine.Hash{}) {
		return nil, errors.New("Block has no hash")
	}

	return &Block{
		Number:    uint64(head.Number),
		Hash:      head.Hash,
		Timestamp: time.Unix(int64(head.Timestamp), 0),
	}, nil
}
