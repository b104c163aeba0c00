package mqtt

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DrmagicE/gmqtt"
	"github.com/relabs-tech/sastoken/core/clock"
	"github.com/relabs-tech/sastoken/iot/hub"
	"github.com/relabs-tech/sastoken/iot/registry"
	"github.com/relabs-tech/sastoken/iot/sas"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const hostname = "myhub.azure-devices.net"

var t0 = time.Unix(1700000000, 0)

func token(t *testing.T, c *hub.Client, key string, now time.Time) string {
	g := sas.NewGenerator(&sas.Builder{
		Client:          c,
		DeviceKey:       []byte(key),
		SignatureBuffer: make([]byte, 64),
		TokenBuffer:     make([]byte, 256),
		Clock:           clock.Fake(now),
	})
	require.NoError(t, g.Generate(60))
	return string(g.Get())
}

func newTestPlugin() (*plugin, *clock.FakeClock) {
	reg := registry.NewMemory()
	reg.Put("dev1", "dGVzdGtleQ==")
	reg.Put("dev2", "b3RoZXJrZXk=")
	fake := clock.Fake(t0)
	return newPlugin(&Builder{Registry: reg, Hostname: hostname, Clock: fake}), fake
}

func TestAuthenticate(t *testing.T) {
	p, fake := newTestPlugin()
	ctx := context.Background()
	dev1 := &hub.Client{Hostname: hostname, DeviceID: "dev1"}
	username := hostname + "/dev1/?api-version=2020-09-30"
	password := token(t, dev1, "dGVzdGtleQ==", t0)

	expiry, err := p.authenticate(ctx, "dev1", username, password)
	require.NoError(t, err)
	assert.Equal(t, uint64(t0.Unix()+3600), expiry)

	testCases := []struct {
		name, clientID, username, password string
	}{
		{"empty client id", "", username, password},
		{"wrong user name", "dev1", hostname + "/dev2/?api-version=2020-09-30", password},
		{"not a token", "dev1", username, "secret"},
		{"token of other device", "dev2", hostname + "/dev2/?api-version=2020-09-30", password},
		{"wrong key", "dev2", hostname + "/dev2/?api-version=2020-09-30",
			token(t, &hub.Client{Hostname: hostname, DeviceID: "dev2"}, "dGVzdGtleQ==", t0)},
		{"unknown device", "dev3", hostname + "/dev3/?api-version=2020-09-30",
			token(t, &hub.Client{Hostname: hostname, DeviceID: "dev3"}, "dGVzdGtleQ==", t0)},
		{"other hub", "dev1", username,
			token(t, &hub.Client{Hostname: "otherhub", DeviceID: "dev1"}, "dGVzdGtleQ==", t0)},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := p.authenticate(ctx, tc.clientID, tc.username, tc.password)
			assert.True(t, errors.Is(err, ErrNotAuthorized), "got %v", err)
		})
	}

	fake.Advance(time.Hour)
	_, err = p.authenticate(ctx, "dev1", username, password)
	assert.True(t, errors.Is(err, ErrNotAuthorized))
	assert.True(t, errors.Is(err, sas.ErrTokenExpired))
}

func TestAuthenticateModule(t *testing.T) {
	p, _ := newTestPlugin()
	c := &hub.Client{Hostname: hostname, DeviceID: "dev1", ModuleID: "m1"}
	_, err := p.authenticate(context.Background(), "dev1/m1",
		hostname+"/dev1/m1/?api-version=2020-09-30", token(t, c, "dGVzdGtleQ==", t0))
	assert.NoError(t, err)
}

func TestExpired(t *testing.T) {
	p, fake := newTestPlugin()
	assert.True(t, p.expired("dev1"), "unknown clients are expired")

	p.track("dev1", nil, uint64(t0.Unix()+60))
	assert.False(t, p.expired("dev1"))
	fake.Advance(time.Minute)
	assert.True(t, p.expired("dev1"))
}

// fakeClient stands in for a connection; distinct pointers are distinct connections
type fakeClient struct {
	gmqtt.Client
}

func TestForgetOnClose(t *testing.T) {
	p, _ := newTestPlugin()
	first, second := &fakeClient{}, &fakeClient{}
	expiry := uint64(t0.Unix() + 3600)

	p.track("dev1", first, expiry)
	p.forget("dev1", first)
	assert.Empty(t, p.expiries)
	assert.True(t, p.expired("dev1"))

	// the old connection closes after the device reconnected
	p.track("dev1", first, expiry)
	p.track("dev1", second, expiry)
	p.forget("dev1", first)
	assert.False(t, p.expired("dev1"))
	p.forget("dev1", second)
	assert.Empty(t, p.expiries)
}

func TestSendToDeviceBeforeRun(t *testing.T) {
	p, _ := newTestPlugin()
	b := &Broker{p: p}
	err := b.SendToDevice("dev1", []byte("hello"))
	assert.True(t, errors.Is(err, ErrNotRunning), "got %v", err)
}

func TestTopicPolicy(t *testing.T) {
	assert.True(t, telemetryAllowed("dev1", "devices/dev1/messages/events/"))
	assert.True(t, telemetryAllowed("dev1", "devices/dev1/messages/events/temperature"))
	assert.False(t, telemetryAllowed("dev1", "devices/dev2/messages/events/"))
	assert.False(t, telemetryAllowed("dev1", "devices/dev1/messages/devicebound/"))
	assert.True(t, telemetryAllowed("dev1/m1", "devices/dev1/modules/m1/messages/events/"))
	assert.False(t, telemetryAllowed("dev1/m1", "devices/dev1/messages/events/"))

	assert.True(t, subscriptionAllowed("dev1", "devices/dev1/messages/devicebound/#"))
	assert.False(t, subscriptionAllowed("dev1", "devices/dev2/messages/devicebound/#"))
	assert.False(t, subscriptionAllowed("dev1", "#"))
}

func TestNewPluginMandatory(t *testing.T) {
	assert.Panics(t, func() { newPlugin(&Builder{Hostname: hostname}) })
	assert.Panics(t, func() { newPlugin(&Builder{Registry: registry.NewMemory()}) })
}
