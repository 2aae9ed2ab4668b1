package webserver

import (
	"encoding/json"
	"io/ioutil"
	"net/http"

	"github.com/pkg/errors"

	log "github.com/sirupsen/logrus"

	"github.com/rpsnoopy/EIP918r/notifications"
)

func (ws *WebServer) saveTelegram(w http.ResponseWriter, r *http.Request) {

	log.Trace("API - SaveTelegram")

	if ws.notificationHandler == nil {
		apiError(errors.New("Notifications are not available"), w)
		return
	}

	// Read the POST body as a string
	body, err := ioutil.ReadAll(r.Body)
	if err != nil {
		log.WithError(err).Error("API SaveTelegram")
		apiError(errors.Wrap(err, "Failed to parse body"), w)

		return
	}

	// Configure does the JSON unmarshaling; save config to db
	if err := ws.notificationHandler.Configure(notifications.TELEGRAM, body, true); err != nil {
		log.WithError(err).Error("API SaveTelegram")
		apiError(errors.Wrap(err, "Failed to configure telegram"), w)

		return
	}

	if err := ws.notificationHandler.TestSend(notifications.TELEGRAM, "Test message from EIP918 mint"); err != nil {
		log.WithError(err).Error("API SaveTelegram")
		apiError(errors.Wrap(err, "Failed to execute telegram test"), w)

		return
	}

	apiReturnOk(w)
}

func (ws *WebServer) getSettings(w http.ResponseWriter, r *http.Request) {

	log.Trace("API - GetSettings")

	// Get RPC endpoints
	endpoints, err := ws.storage.GetRPCEndpoints()
	if err != nil {
		apiError(errors.Wrap(err, "Cannot get endpoints"), w)

		return
	}
	log.WithField("Endpoints", endpoints).Debug("API Settings Endpoints")

	// Get Notification settings
	notifs := json.RawMessage("{}")
	if ws.notificationHandler != nil {
		if notifs, err = ws.notificationHandler.GetConfig(); err != nil {
			apiError(errors.Wrap(err, "Cannot get notification settings"), w)

			return
		}
	}
	log.WithField("Notifications", string(notifs)).Debug("API Settings Notifications")

	apiReturn(map[string]interface{}{
		"network":       ws.network,
		"tokens":        ws.tokenOrder,
		"endpoints":     endpoints,
		"notifications": notifs,
	}, w)
}

// reloadEndpoints points the running chain client at the stored endpoints.
func (ws *WebServer) reloadEndpoints() error {

	if ws.client == nil {
		return nil
	}

	endpoints, err := ws.storage.GetRPCEndpoints()
	if err != nil {
		return err
	}

	return ws.client.SetEndpoints(endpoints)
}

//
// Adding, Deleting endpoints
func (ws *WebServer) addEndpoint(w http.ResponseWriter, r *http.Request) {

	log.Trace("API - AddEndpoint")

	k := make(map[string]string)

	if err := json.NewDecoder(r.Body).Decode(&k); err != nil {
		apiError(errors.Wrap(err, "Cannot decode body for rpc add"), w)

		return
	}

	if k["rpc"] == "" {
		apiError(errors.New("Missing rpc"), w)

		return
	}

	// Save new RPC to db to get id
	id, err := ws.storage.AddRPCEndpoint(k["rpc"])
	if err != nil {
		log.WithError(err).WithField("Endpoint", k).Error("API AddEndpoint")
		apiError(errors.Wrap(err, "Cannot add endpoint to DB"), w)

		return
	}

	if err := ws.reloadEndpoints(); err != nil {
		apiError(errors.Wrap(err, "Cannot reload endpoints"), w)

		return
	}

	log.WithField("Endpoint", k["rpc"]).Debug("API Added Endpoint")

	apiReturn(map[string]int{"id": id}, w)
}

func (ws *WebServer) deleteEndpoint(w http.ResponseWriter, r *http.Request) {

	log.Trace("API - DeleteEndpoint")

	k := make(map[string]int)

	if err := json.NewDecoder(r.Body).Decode(&k); err != nil {
		apiError(errors.Wrap(err, "Cannot decode body for rpc delete"), w)

		return
	}

	endpoints, err := ws.storage.GetRPCEndpoints()
	if err != nil {
		apiError(errors.Wrap(err, "Cannot get endpoints"), w)

		return
	}

	// The challenge source must keep at least one endpoint
	if len(endpoints) <= 1 && ws.client != nil {
		apiError(errors.New("Cannot delete the last endpoint"), w)

		return
	}

	if err := ws.storage.DeleteRPCEndpoint(k["rpc"]); err != nil {
		log.WithError(err).WithField("Endpoint", k).Error("API DeleteEndpoint")
		apiError(errors.Wrap(err, "Cannot delete endpoint from DB"), w)

		return
	}

	if err := ws.reloadEndpoints(); err != nil {
		apiError(errors.Wrap(err, "Cannot reload endpoints"), w)

		return
	}

	log.WithField("Endpoint", k["rpc"]).Debug("API Deleted Endpoint")

	apiReturnOk(w)
}
