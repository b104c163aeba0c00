package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joeshaw/envdecode"

	"github.com/relabs-tech/sastoken/core/logger"
	"github.com/relabs-tech/sastoken/iot/hub"
	"github.com/relabs-tech/sastoken/iot/renewal"
	"github.com/relabs-tech/sastoken/iot/sas"
	"github.com/relabs-tech/sastoken/iot/status"
)

// Service holds the configuration for this device
//
// use IOT_HOSTNAME=myhub.azure-devices.net IOT_DEVICE_ID=dev1 IOT_DEVICE_KEY=dGVzdGtleQ==
type Service struct {
	Hostname        string        `env:"IOT_HOSTNAME,required" description:"the host name of the IoT hub"`
	DeviceID        string        `env:"IOT_DEVICE_ID,required" description:"the device id"`
	ModuleID        string        `env:"IOT_MODULE_ID" description:"the module id, optional"`
	DeviceKey       string        `env:"IOT_DEVICE_KEY,required" description:"the Base64 encoded device key"`
	ValidityMinutes uint          `env:"TOKEN_VALIDITY_MINUTES,default=60" description:"validity of every token"`
	LeadSeconds     uint          `env:"TOKEN_LEAD_SECONDS,default=300" description:"renew this long before expiry"`
	CheckInterval   time.Duration `env:"TOKEN_CHECK_INTERVAL,default=10s" description:"how often the token is checked"`
	RetryInterval   time.Duration `env:"TOKEN_RETRY_INTERVAL,default=30s" description:"hold-off after a failed renewal"`
	StatusSink      string        `env:"STATUS_SINK,default=console" description:"console or logger"`
	LogLevel        string        `env:"LOG_LEVEL,default=info" description:"the log level"`
}

// the device runtime hands out fixed buffers only
var (
	signatureBuffer [256]byte
	tokenBuffer     [256]byte
	scratch         [256]byte
)

func main() {
	service := &Service{}
	if err := envdecode.Decode(service); err != nil {
		panic(err)
	}
	logger.InitLogger(logger.ParseLevel(service.LogLevel))

	sink, err := status.New(status.Kind(service.StatusSink), os.Stdout)
	if err != nil {
		panic(err)
	}

	client := &hub.Client{Hostname: service.Hostname, DeviceID: service.DeviceID, ModuleID: service.ModuleID}
	for _, f := range []struct {
		name   string
		format func([]byte) (int, error)
	}{
		{"client id", client.ClientID},
		{"user name", client.UserName},
		{"telemetry topic", client.TelemetryTopic},
	} {
		n, err := f.format(scratch[:])
		if err != nil {
			panic(err)
		}
		sink.LogInfo(f.name + ": " + string(scratch[:n]))
	}

	generator := sas.NewGenerator(&sas.Builder{
		Client:          client,
		DeviceKey:       []byte(service.DeviceKey),
		SignatureBuffer: signatureBuffer[:],
		TokenBuffer:     tokenBuffer[:],
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx, _ = logger.ContextWithLoggerDevice(ctx, client.Resource())

	renewal.New(&renewal.Builder{
		Generator:       generator,
		ValidityMinutes: service.ValidityMinutes,
		LeadSeconds:     service.LeadSeconds,
		CheckInterval:   service.CheckInterval,
		RetryInterval:   service.RetryInterval,
		Sink:            sink,
		OnRenewed: func(ctx context.Context, token string) {
			sink.SetStatus("credentials ready, reconnect with new password")
		},
	}).Run(ctx)
	sink.SetStatus("stopped")
}
