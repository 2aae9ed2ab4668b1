package webserver

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	log "github.com/sirupsen/logrus"

	"github.com/rpsnoopy/EIP918r/chainclient"
	"github.com/rpsnoopy/EIP918r/engine"
	"github.com/rpsnoopy/EIP918r/notifications"
	"github.com/rpsnoopy/EIP918r/signer"
	"github.com/rpsnoopy/EIP918r/storage"
)

// TokenService bundles everything the API needs for one token instance.
type TokenService struct {
	*engine.Engine
	Authorizer *engine.Authorizer
	Store      *storage.TokenStore
	Decimals   uint
}

type WebServer struct {
	network    string
	tokens     map[string]*TokenService
	tokenOrder []string

	dispatcher          *engine.Dispatcher
	client              *chainclient.Client
	notificationHandler *notifications.NotificationHandler
	storage             *storage.Storage

	walletLock sync.RWMutex
	wallet     *signer.Wallet

	httpSvr *http.Server
}

type WebServerArgs struct {
	Network             string
	Tokens              []*TokenService
	Dispatcher          *engine.Dispatcher
	Client              *chainclient.Client
	NotificationHandler *notifications.NotificationHandler
	Storage             *storage.Storage
	Wallet              *signer.Wallet
	BindAddr            string
	BindPort            int
	ShutdownChannel     <-chan interface{}
	WG                  *sync.WaitGroup
}

func New(args WebServerArgs) (*WebServer, error) {

	if len(args.Tokens) == 0 {
		return nil, errors.New("At least one token required")
	}

	ws := &WebServer{
		network:             args.Network,
		tokens:              make(map[string]*TokenService, len(args.Tokens)),
		dispatcher:          args.Dispatcher,
		client:              args.Client,
		notificationHandler: args.NotificationHandler,
		storage:             args.Storage,
		wallet:              args.Wallet,
	}

	for _, t := range args.Tokens {
		ws.tokens[t.Token()] = t
		ws.tokenOrder = append(ws.tokenOrder, t.Token())
	}

	if ws.dispatcher == nil {
		ws.dispatcher = engine.NewDispatcher()
		for _, t := range args.Tokens {
			ws.dispatcher.Add(t.Engine)
		}
	}

	return ws, nil
}

// Router builds the HTTP routes. It is separate from Start for testing.
func (ws *WebServer) Router() *mux.Router {

	router := mux.NewRouter()

	apiRouter := router.PathPrefix("/api").Subrouter()
	apiRouter.HandleFunc("/health", ws.getHealth).Methods("GET")
	apiRouter.HandleFunc("/status", ws.getStatus).Methods("GET")
	apiRouter.HandleFunc("/challenge", ws.getChallenge).Methods("GET")
	apiRouter.HandleFunc("/hash", ws.getHash).Methods("GET")
	apiRouter.HandleFunc("/history", ws.getHistory).Methods("GET")
	apiRouter.HandleFunc("/balance", ws.getBalance).Methods("GET")

	apiRouter.HandleFunc("/mint", ws.postMint).Methods("POST", "OPTIONS")
	apiRouter.HandleFunc("/merge", ws.postMerge).Methods("POST", "OPTIONS")
	apiRouter.HandleFunc("/delegated", ws.postDelegated).Methods("POST", "OPTIONS")

	apiRouter.HandleFunc("/settings", ws.getSettings).Methods("GET")
	apiRouter.HandleFunc("/settings/savetelegram", ws.saveTelegram).Methods("POST", "OPTIONS")
	apiRouter.HandleFunc("/settings/addendpoint", ws.addEndpoint).Methods("POST", "OPTIONS")
	apiRouter.HandleFunc("/settings/deleteendpoint", ws.deleteEndpoint).Methods("POST", "OPTIONS")

	apiRouter.HandleFunc("/wallet/generate", ws.generateNewKey).Methods("POST", "OPTIONS")
	apiRouter.HandleFunc("/wallet/import", ws.importSecretKey).Methods("POST", "OPTIONS")
	apiRouter.HandleFunc("/wallet/sign", ws.signPacket).Methods("POST", "OPTIONS")

	router.Handle("/metrics", promhttp.Handler())

	return router
}

// Start binds the API and shuts it down when args.ShutdownChannel closes.
// The caller must have added one to args.WG.
func Start(args WebServerArgs) (*WebServer, error) {

	ws, err := New(args)
	if err != nil {
		return nil, err
	}

	// Allow the UI to be served from elsewhere
	corsOpts := []handlers.CORSOption{
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "POST", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	}

	accessLog := log.StandardLogger().WriterLevel(log.DebugLevel)

	httpAddr := fmt.Sprintf("%s:%d", args.BindAddr, args.BindPort)
	ws.httpSvr = &http.Server{
		Handler:      handlers.CombinedLoggingHandler(accessLog, handlers.CORS(corsOpts...)(ws.Router())),
		Addr:         httpAddr,
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
	}

	log.WithField("Addr", httpAddr).Info("EIP918 API Listening")

	// Launch webserver in background
	go func() {
		if err := ws.httpSvr.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Errorf("Httpserver: ListenAndServe()")
		}
		log.Info("Httpserver: Shutdown")
	}()

	// Wait for shutdown signal on channel
	go func() {
		defer args.WG.Done()
		defer accessLog.Close()

		<-args.ShutdownChannel

		log.Info("Shutting down webserver")

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := ws.httpSvr.Shutdown(ctx); err != nil {
			log.WithError(err).Errorf("Httpserver: Shutdown()")
		}
	}()

	return ws, nil
}

// token resolves the ?token= parameter, defaulting to the first token.
func (ws *WebServer) token(name string) (*TokenService, error) {

	if name == "" {
		name = ws.tokenOrder[0]
	}

	t, ok := ws.tokens[name]
	if !ok {
		return nil, errors.Wrapf(engine.ErrUnknownToken, "%q", name)
	}

	return t, nil
}
