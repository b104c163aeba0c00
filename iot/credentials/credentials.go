package credentials

import (
	"errors"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/relabs-tech/sastoken/core/access"
	"github.com/relabs-tech/sastoken/core/clock"
	"github.com/relabs-tech/sastoken/core/logger"
	"github.com/relabs-tech/sastoken/iot/hub"
	"github.com/relabs-tech/sastoken/iot/registry"
	"github.com/relabs-tech/sastoken/iot/sas"
)

// bufferSize is the size of the signature and token buffers for every request
const bufferSize = 512

// API is the RESTful interface providing SAS tokens to things
type API struct {
	registry        registry.Registry
	hostname        string
	validityMinutes uint
	clock           clock.Clock
}

// Builder is a builder helper for the API
type Builder struct {
	// Registry holds the device keys. This is mandatory.
	Registry registry.Registry
	// Router is a mux router. This is mandatory.
	Router *mux.Router
	// Hostname is the broker's host name which the tokens are issued for. This is mandatory.
	Hostname string
	// ThingKey is a key used as shared secret for thing authentication. This is mandatory.
	ThingKey string
	// ValidityMinutes is the validity of issued tokens. The default is 60.
	ValidityMinutes uint
	// Clock is optional, the default is the wall clock
	Clock clock.Clock
}

// Credentials is the response of GET /credentials
type Credentials struct {
	DeviceID  string    `json:"device_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	UserName  string    `json:"username"`
	ClientID  string    `json:"client_id"`
	Topic     string    `json:"topic"`
}

// NewAPI realizes the credentials service. It adds the /credentials route to the router
// and installs the thing authorization middleware on the router.
func NewAPI(b *Builder) *API {
	if b.Registry == nil {
		panic("Registry is missing")
	}
	if b.Router == nil {
		panic("Router is missing")
	}
	if len(b.Hostname) == 0 {
		panic("Hostname is missing")
	}

	a := &API{
		registry:        b.Registry,
		hostname:        b.Hostname,
		validityMinutes: b.ValidityMinutes,
		clock:           b.Clock,
	}
	if a.validityMinutes == 0 {
		a.validityMinutes = 60
	}
	if a.clock == nil {
		a.clock = clock.Real()
	}

	b.Router.Use(access.NewThingKeyMiddleware(b.ThingKey))
	a.handleRoutes(b.Router)
	return a
}

func (a *API) handleRoutes(router *mux.Router) {
	logger.Default().Debugln("device credentials: handle route /credentials GET")

	router.HandleFunc("/credentials",
		func(w http.ResponseWriter, r *http.Request) {
			auth := access.AuthorizationFromContext(r.Context())
			if auth == nil || !auth.HasRole("thing") {
				http.Error(w, "thing not authorized", http.StatusUnauthorized)
				return
			}
			deviceID, _ := auth.Selector("thing")
			ctx, rlog := logger.ContextWithLoggerDevice(r.Context(), deviceID)
			rlog.Infoln("credential request")

			key, err := a.registry.DeviceKey(ctx, deviceID)
			if errors.Is(err, registry.ErrUnknownDevice) {
				rlog.Warnln("credential request for unknown device")
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			if err != nil {
				rlog.WithError(err).Errorf("Error 2737")
				http.Error(w, "Error 2737", http.StatusInternalServerError)
				return
			}

			client := &hub.Client{Hostname: a.hostname, DeviceID: deviceID}
			g := sas.NewGenerator(&sas.Builder{
				Client:          client,
				DeviceKey:       []byte(key),
				SignatureBuffer: make([]byte, bufferSize),
				TokenBuffer:     make([]byte, bufferSize),
				Clock:           a.clock,
			})
			if err := g.Generate(a.validityMinutes); err != nil {
				rlog.WithError(err).WithField("kind", sas.Kind(err).String()).Errorf("Error 2738")
				http.Error(w, "Error 2738", http.StatusInternalServerError)
				return
			}

			buf := make([]byte, bufferSize)
			credentials := Credentials{
				DeviceID:  deviceID,
				Token:     string(g.Get()),
				ExpiresAt: g.Expiration().UTC(),
			}
			for _, f := range []struct {
				format func([]byte) (int, error)
				field  *string
			}{
				{client.UserName, &credentials.UserName},
				{client.ClientID, &credentials.ClientID},
				{client.TelemetryTopic, &credentials.Topic},
			} {
				n, err := f.format(buf)
				if err != nil {
					rlog.WithError(err).Errorf("Error 2739")
					http.Error(w, "Error 2739", http.StatusInternalServerError)
					return
				}
				*f.field = string(buf[:n])
			}

			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			json.NewEncoder(w).Encode(credentials)
		}).Methods(http.MethodOptions, http.MethodGet)
}
