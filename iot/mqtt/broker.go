package mqtt

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/DrmagicE/gmqtt"
	"github.com/DrmagicE/gmqtt/pkg/packets"

	"github.com/relabs-tech/sastoken/core/clock"
	"github.com/relabs-tech/sastoken/core/logger"
	"github.com/relabs-tech/sastoken/iot/hub"
	"github.com/relabs-tech/sastoken/iot/registry"
	"github.com/relabs-tech/sastoken/iot/sas"
)

// ErrNotAuthorized is returned when a client's credentials are rejected
var ErrNotAuthorized = errors.New("not authorized")

// ErrNotRunning is returned by SendToDevice before the broker runs
var ErrNotRunning = errors.New("mqtt broker is not running")

// Broker is a MQTT broker for IoT devices which authenticate with SAS tokens.
type Broker struct {
	p *plugin
}

// Builder is a builder helper for the Broker
type Builder struct {
	// Registry holds the device keys. This is mandatory.
	Registry registry.Registry
	// Hostname is the host name devices sign their tokens for. This is mandatory.
	Hostname string
	// Listener is optional. If nil, the broker listens on Address.
	Listener net.Listener
	// Address is the listen address. The default is ":8883".
	Address string
	// CertFile is the file path to the X.509 certificate file. If set, the broker
	// listens with TLS.
	CertFile string
	// KeyFile is the file path to the X.509 private key file.
	KeyFile string
	// Clock is optional, the default is the wall clock
	Clock clock.Clock
}

// plugin is the plugin for GMQTT
type plugin struct {
	ln       net.Listener
	registry registry.Registry
	hostname string
	clock    clock.Clock

	expiriesRwmux sync.RWMutex
	expiries      map[string]session // per client id

	serviceMux sync.RWMutex
	service    gmqtt.Server
}

// session is the connection of a client and the expiry of the token it connected with
type session struct {
	client gmqtt.Client
	expiry uint64
}

// NewBroker returns a new broker. The broker will not
// actually run until you call Run()
func NewBroker(bb *Builder) *Broker {
	p := newPlugin(bb)

	ln := bb.Listener
	if ln == nil {
		address := bb.Address
		if len(address) == 0 {
			address = ":8883"
		}
		var err error
		if len(bb.CertFile) > 0 {
			crt, err := tls.LoadX509KeyPair(bb.CertFile, bb.KeyFile)
			if err != nil {
				panic(err)
			}
			ln, err = tls.Listen("tcp", address, &tls.Config{Certificates: []tls.Certificate{crt}})
			if err != nil {
				panic(err)
			}
		} else {
			logger.Default().Warnln("mqtt broker without TLS, tokens are sent in plain text")
			ln, err = net.Listen("tcp", address)
			if err != nil {
				panic(err)
			}
		}
	}
	p.ln = ln
	return &Broker{p: p}
}

func newPlugin(bb *Builder) *plugin {
	if bb.Registry == nil {
		panic("Registry is missing")
	}
	if len(bb.Hostname) == 0 {
		panic("Hostname is missing")
	}
	c := bb.Clock
	if c == nil {
		c = clock.Real()
	}
	return &plugin{
		registry: bb.Registry,
		hostname: bb.Hostname,
		clock:    c,
		expiries: make(map[string]session),
	}
}

// Run is blocking and runs the server until ctx is done
func (b *Broker) Run(ctx context.Context) {
	s := gmqtt.NewServer(
		gmqtt.WithTCPListener(b.p.ln),
		gmqtt.WithPlugin(b.p),
	)
	s.Run()
	logger.Default().Infoln("mqtt broker started on", b.p.ln.Addr())
	<-ctx.Done()
	s.Stop(context.Background())
	logger.Default().Infoln("mqtt broker stopped")
}

// SendToDevice publishes a cloud-to-device message with quality level 1. It returns
// ErrNotRunning unless Run has started the server.
func (b *Broker) SendToDevice(deviceID string, payload []byte) error {
	topic := "devices/" + deviceID + "/messages/devicebound/"
	b.p.serviceMux.RLock()
	defer b.p.serviceMux.RUnlock()
	if b.p.service == nil {
		return fmt.Errorf("send to %s: %w", deviceID, ErrNotRunning)
	}
	logger.Default().Debugf("SendToDevice on %s (%d bytes)", topic, len(payload))
	msg := gmqtt.NewMessage(topic, payload, packets.QOS_1)
	b.p.service.PublishService().Publish(msg)
	return nil
}

// Load implements plugin interface
func (p *plugin) Load(service gmqtt.Server) error {
	p.serviceMux.Lock()
	defer p.serviceMux.Unlock()
	p.service = service
	return nil
}

// Unload implements plugin interface
func (p *plugin) Unload() error {
	p.serviceMux.Lock()
	defer p.serviceMux.Unlock()
	p.service = nil
	return nil
}

// Name implements plugin interface
func (p *plugin) Name() string { return "sas token broker" }

// HookWrapper implements plugin interface
func (p *plugin) HookWrapper() gmqtt.HookWrapper {
	return gmqtt.HookWrapper{
		OnConnectWrapper:    p.OnConnectWrapper,
		OnSubscribeWrapper:  p.OnSubscribeWrapper,
		OnMsgArrivedWrapper: p.OnMsgArrivedWrapper,
		OnCloseWrapper:      p.OnClosedWrapper,
	}
}

// identity splits a client id "device[/module]"
func identity(clientID string) (deviceID, moduleID string) {
	deviceID, moduleID, _ = strings.Cut(clientID, "/")
	return
}

// authenticate checks the MQTT credentials of a client and returns the expiry of its token
func (p *plugin) authenticate(ctx context.Context, clientID, username, password string) (uint64, error) {
	deviceID, moduleID := identity(clientID)
	if deviceID == "" {
		return 0, fmt.Errorf("empty client id: %w", ErrNotAuthorized)
	}
	client := hub.Client{Hostname: p.hostname, DeviceID: deviceID, ModuleID: moduleID}

	if !strings.HasPrefix(username, p.hostname+"/"+clientID+"/") {
		return 0, fmt.Errorf("user name %q does not match client id: %w", username, ErrNotAuthorized)
	}
	claims, err := sas.Parse(password)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrNotAuthorized, err)
	}
	if claims.Resource != client.Resource() {
		return 0, fmt.Errorf("token is for %q: %w", claims.Resource, ErrNotAuthorized)
	}
	key, err := p.registry.DeviceKey(ctx, deviceID)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrNotAuthorized, err)
	}
	if err := sas.Verify(claims, key, p.clock.Now()); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrNotAuthorized, err)
	}
	return claims.Expiry, nil
}

// track remembers the token expiry of a connected client. A reconnect with the same
// client id replaces the previous session.
func (p *plugin) track(clientID string, client gmqtt.Client, expiry uint64) {
	p.expiriesRwmux.Lock()
	defer p.expiriesRwmux.Unlock()
	p.expiries[clientID] = session{client: client, expiry: expiry}
}

// forget drops the session of client, unless a newer connection took it over
func (p *plugin) forget(clientID string, client gmqtt.Client) {
	p.expiriesRwmux.Lock()
	defer p.expiriesRwmux.Unlock()
	if s, ok := p.expiries[clientID]; ok && s.client == client {
		delete(p.expiries, clientID)
	}
}

func (p *plugin) expired(clientID string) bool {
	p.expiriesRwmux.RLock()
	defer p.expiriesRwmux.RUnlock()
	s, ok := p.expiries[clientID]
	return !ok || uint64(p.clock.Now().Unix()) >= s.expiry
}

// telemetryAllowed returns true if the client may publish to topic
func telemetryAllowed(clientID, topic string) bool {
	deviceID, moduleID := identity(clientID)
	prefix := "devices/" + deviceID
	if moduleID != "" {
		prefix += "/modules/" + moduleID
	}
	return strings.HasPrefix(topic, prefix+"/messages/events/")
}

// subscriptionAllowed returns true if the client may subscribe to topic
func subscriptionAllowed(clientID, topic string) bool {
	deviceID, _ := identity(clientID)
	return strings.HasPrefix(topic, "devices/"+deviceID+"/messages/devicebound/")
}

// OnConnectWrapper authenticates clients by their SAS token
func (p *plugin) OnConnectWrapper(connect gmqtt.OnConnect) gmqtt.OnConnect {
	return func(ctx context.Context, client gmqtt.Client) (code uint8) {
		options := client.OptionsReader()
		clientID := options.ClientID()
		ctx, rlog := logger.ContextWithLoggerDevice(ctx, clientID)
		expiry, err := p.authenticate(ctx, clientID, options.Username(), options.Password())
		if err != nil {
			rlog.WithError(err).Warnln("connect denied")
			return packets.CodeNotAuthorized
		}
		p.track(clientID, client, expiry)
		rlog.Infoln("connect")
		return connect(ctx, client)
	}
}

// OnMsgArrivedWrapper accepts telemetry of devices with a valid token
func (p *plugin) OnMsgArrivedWrapper(arrived gmqtt.OnMsgArrived) gmqtt.OnMsgArrived {
	return func(ctx context.Context, client gmqtt.Client, msg packets.Message) (valid bool) {
		clientID := client.OptionsReader().ClientID()
		topic := msg.Topic()
		if p.expired(clientID) {
			logger.Default().WithField("device", clientID).Warnln("message dropped, token expired")
			return false
		}
		if !telemetryAllowed(clientID, topic) {
			logger.Default().WithField("device", clientID).Warnln("publish to", topic, "denied")
			return false
		}
		return arrived(ctx, client, msg)
	}
}

// OnSubscribeWrapper enforces topic policy
func (p *plugin) OnSubscribeWrapper(subscribe gmqtt.OnSubscribe) gmqtt.OnSubscribe {
	return func(ctx context.Context, client gmqtt.Client, topic packets.Topic) (qos uint8) {
		clientID := client.OptionsReader().ClientID()
		if !subscriptionAllowed(clientID, topic.Name) {
			logger.Default().WithField("device", clientID).Warnln("subscribe to", topic.Name, "denied")
			return packets.SUBSCRIBE_FAILURE
		}
		return subscribe(ctx, client, topic)
	}
}

// OnClosedWrapper forgets the token expiry of disconnected clients
func (p *plugin) OnClosedWrapper(closed gmqtt.OnClose) gmqtt.OnClose {
	return func(ctx context.Context, client gmqtt.Client, err error) {
		clientID := client.OptionsReader().ClientID()
		p.forget(clientID, client)
		logger.Default().WithField("device", clientID).Infoln("closed")
		closed(ctx, client, err)
	}
}
