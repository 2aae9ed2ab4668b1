package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"

	log "github.com/sirupsen/logrus"

	"github.com/rpsnoopy/EIP918r/chainclient"
	"github.com/rpsnoopy/EIP918r/engine"
	"github.com/rpsnoopy/EIP918r/notifications"
	"github.com/rpsnoopy/EIP918r/signer"
	"github.com/rpsnoopy/EIP918r/storage"
	"github.com/rpsnoopy/EIP918r/util"
	"github.com/rpsnoopy/EIP918r/webserver"
)

var (
	version    = "dev"
	commitHash = "unknown"
)

type Server struct {
	*chainclient.Client
	*notifications.NotificationHandler
	*webserver.WebServer
	*storage.Storage
	Flags

	tokens []*webserver.TokenService
}

// Flags Server flags
type Flags struct {
	networkName string
	tokenNames  []string
	rpcs        []string
	devSource   bool
	logDebug    bool
	logTrace    bool
	webUIAddr   string
	webUIPort   int
	dataDir     string

	signToken string
	signNonce string
}

func main() {
	// Used throughout main
	var (
		err error
		wg  sync.WaitGroup
	)

	server := new(Server)
	server.parseArgs()

	// Logging
	setupLogging(server.logDebug, server.logTrace, server.dataDir)

	// Open/Init database
	server.Storage, err = storage.InitStorage(server.dataDir, server.networkName)
	if err != nil {
		log.WithError(err).Fatal("Could not open storage")
	}

	// One-shot packet signing; no daemon
	if server.signNonce != "" {
		code := server.signPacket()
		server.Storage.Close()
		closeLogging()
		os.Exit(code)
	}

	// Clean exits
	shutdownChannel := setupCloseChannel()

	// Start
	log.Infof("=== EIP918 mint %s (%s) ===", version, commitHash)
	log.Infof("=== Network: %s ===", server.networkName)

	constants := util.NetworkConstants[server.networkName]

	// Network constants
	log.WithFields(log.Fields{
		"InitialReward":      util.FormatUnits(constants.InitialReward, constants.Decimals),
		"EpochsPerHalving":   constants.EpochsPerHalving,
		"AdjustmentInterval": constants.AdjustmentInterval,
		"TargetSolveTime":    constants.TargetSolveTime,
	}).Debug("Loaded Network Constants")

	server.NotificationHandler, err = notifications.NewHandler(server.Storage, constants.Decimals)
	if err != nil {
		log.WithError(err).Error("Unable to load notifiers")
	}

	// Challenge source
	rotator := &engine.SourceRotator{MaxHeadAge: constants.MaxHeadAge}

	if server.devSource {
		log.Warn("Using local randomness as challenge source; do not use in production")

		dev, err := chainclient.NewDevSource(constants.PollInterval)
		if err != nil {
			log.WithError(err).Fatal("Cannot create dev source")
		}
		rotator.Source = dev

	} else {
		for _, rpc := range server.rpcs {
			if _, err := server.Storage.AddRPCEndpoint(rpc); err != nil {
				log.WithError(err).WithField("Endpoint", rpc).Error("Unable to save endpoint")
			}
		}

		endpoints, err := server.Storage.GetRPCEndpoints()
		if err != nil {
			log.WithError(err).Fatal("Cannot load RPC endpoints")
		}

		server.Client, err = chainclient.New(endpoints, constants.PollInterval)
		if err != nil {
			log.WithError(err).Fatal("Cannot create chain client")
		}
		rotator.Source = server.Client

		wg.Add(1)
		go server.Client.Run(shutdownChannel, &wg)
	}

	// Tokens
	dispatcher := engine.NewDispatcher()

	for _, name := range server.tokenNames {
		t, err := openToken(server.Storage, name, server.networkName, rotator)
		if err != nil {
			log.WithError(err).WithField("Token", name).Fatal("Cannot open token")
		}

		if server.NotificationHandler != nil {
			t.Subscribe(server.NotificationHandler)
		}

		dispatcher.Add(t.Engine)
		server.tokens = append(server.tokens, t)
	}

	if server.NotificationHandler != nil {
		wg.Add(1)
		go server.NotificationHandler.Run(shutdownChannel, &wg)
	}

	// Wallet is optional; only needed for signing packets through the API
	wallet, err := signer.LoadWallet(server.Storage)
	if err != nil && !errors.Is(err, signer.ErrNoWallet) {
		log.WithError(err).Error("Unable to load wallet")
	}

	// Start web API
	wg.Add(1)
	server.WebServer, err = webserver.Start(webserver.WebServerArgs{
		Network:             server.networkName,
		Tokens:              server.tokens,
		Dispatcher:          dispatcher,
		Client:              server.Client,
		NotificationHandler: server.NotificationHandler,
		Storage:             server.Storage,
		Wallet:              wallet,
		BindAddr:            server.webUIAddr,
		BindPort:            server.webUIPort,
		ShutdownChannel:     shutdownChannel,
		WG:                  &wg,
	})
	if err != nil {
		log.WithError(err).Error()
		os.Exit(1)
	}

	var newHeads <-chan *chainclient.Block
	if server.Client != nil {
		newHeads = server.Client.NewHeadNotifier
	}

	exhausted := make(map[string]bool)

	// The dev source has no head notifications
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	// loop forever, waiting for new heads coming from the RPC monitor
Main:
	for {

		select {
		case block := <-newHeads:
			log.WithFields(log.Fields{
				"Number": block.Number, "Hash": block.Hash,
			}).Trace("Finalized head")

			server.checkExhausted(exhausted)

		case <-ticker.C:
			server.checkExhausted(exhausted)

		case <-shutdownChannel:
			log.Warn("Shutting things down...")
			break Main
		}
	}

	// Wait for threads to finish
	wg.Wait()

	// Clean close RPC, DB, logs
	if server.Client != nil {
		server.Client.Close()
	}
	server.Storage.Close()
	closeLogging()

	os.Exit(0)
}

// checkExhausted notifies once for each token whose supply has run out.
func (s *Server) checkExhausted(seen map[string]bool) {

	for _, t := range s.tokens {
		if seen[t.Token()] || !t.Exhausted() {
			continue
		}
		seen[t.Token()] = true

		msg := fmt.Sprintf("%s supply exhausted at epoch %d; minting has stopped", t.Token(), t.EpochCount())
		log.WithField("Token", t.Token()).Warn(msg)

		if s.NotificationHandler != nil {
			s.NotificationHandler.Notify(msg)
		}
	}
}

func setupCloseChannel() chan interface{} {

	// Create channels for signals
	signalChan := make(chan os.Signal, 1)
	closingChan := make(chan interface{}, 1)

	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-signalChan
		close(closingChan)
	}()

	return closingChan
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (s *Server) parseArgs() {

	var tokens, rpcs string

	// Args
	flag.StringVar(&s.networkName, "network", util.NETWORK_MAINNET, fmt.Sprintf("Which network to use: %s", util.AvailableNetworks()))
	flag.StringVar(&tokens, "tokens", "0xBTC", "Comma-separated token names to serve")
	flag.StringVar(&rpcs, "rpc", "", "Comma-separated JSON-RPC endpoints to add; the first configured is primary")
	flag.BoolVar(&s.devSource, "dev-source", false, "Use local randomness instead of finalized blocks as challenge source")

	flag.BoolVar(&s.logDebug, "debug", false, "Enable debug-level logging")
	flag.BoolVar(&s.logTrace, "trace", false, "Enable trace-level logging")

	flag.StringVar(&s.webUIAddr, "webuiaddr", "127.0.0.1", "Address on which to bind web API server")
	flag.IntVar(&s.webUIPort, "webuiport", 8918, "Port on which to bind web API server")

	flag.StringVar(&s.dataDir, "datadir", "./", "Location of database")

	flag.StringVar(&s.signNonce, "sign-packet", "", "Sign a delegated-mint packet for this nonce with the stored wallet and exit")
	flag.StringVar(&s.signToken, "sign-token", "", "Token the packet is signed for (default: first of -tokens)")

	printVersion := flag.Bool("version", false, "Show version and exit")

	flag.Parse()

	// Handle print version and exit
	if *printVersion {
		log.Printf("EIP918 mint %s (%s)", version, commitHash)
		os.Exit(0)
	}

	// Sanity
	if !util.IsValidNetwork(s.networkName) {
		log.Errorf("Unknown network: %s", s.networkName)
		flag.Usage()
		os.Exit(1)
	}

	s.tokenNames = splitList(tokens)
	s.rpcs = splitList(rpcs)

	if len(s.tokenNames) == 0 {
		log.Error("At least one token is required")
		flag.Usage()
		os.Exit(1)
	}

	if s.signToken == "" {
		s.signToken = s.tokenNames[0]
	}
}
