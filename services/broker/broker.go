package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/joeshaw/envdecode"

	"github.com/relabs-tech/sastoken/core/csql"
	"github.com/relabs-tech/sastoken/core/logger"
	"github.com/relabs-tech/sastoken/iot/credentials"
	"github.com/relabs-tech/sastoken/iot/mqtt"
	"github.com/relabs-tech/sastoken/iot/registry"
)

// Service holds the configuration for this service
//
// Devices come either from a JSON file (DEVICES_FILE) or from postgres, e.g.
// POSTGRES="host=localhost port=5432 user=postgres password=docker dbname=postgres sslmode=disable"
type Service struct {
	Hostname       string `env:"IOT_HOSTNAME,required" description:"the host name devices sign their tokens for"`
	DevicesFile    string `env:"DEVICES_FILE" description:"JSON file with device ids and keys"`
	Postgres       string `env:"POSTGRES" description:"the connection string for the Postgres DB"`
	PostgresSchema string `env:"POSTGRES_SCHEMA,default=iot" description:"the database schema"`
	MQTTAddress    string `env:"MQTT_ADDRESS,default=:8883" description:"listen address of the broker"`
	CertFile       string `env:"TLS_CERT_FILE" description:"X.509 certificate for the broker"`
	KeyFile        string `env:"TLS_KEY_FILE" description:"X.509 private key for the broker"`
	HTTPAddress    string `env:"HTTP_ADDRESS,default=:3000" description:"listen address of the credentials API"`
	ThingKey       string `env:"KURBISIO_THING_KEY,required" description:"shared secret for things"`
	LogLevel       string `env:"LOG_LEVEL,default=info" description:"the log level"`
}

func main() {
	service := &Service{}
	if err := envdecode.Decode(service); err != nil {
		panic(err)
	}
	logger.InitLogger(logger.ParseLevel(service.LogLevel))

	var reg registry.Registry
	switch {
	case len(service.DevicesFile) > 0:
		data, err := os.ReadFile(service.DevicesFile)
		if err != nil {
			panic(err)
		}
		m, err := registry.LoadJSON(data)
		if err != nil {
			panic(err)
		}
		logger.Default().Infof("loaded %d devices from %s", m.Len(), service.DevicesFile)
		reg = m
	case len(service.Postgres) > 0:
		db, err := csql.Open(context.Background(), service.Postgres, service.PostgresSchema)
		if err != nil {
			panic(err)
		}
		defer db.Close()
		reg = registry.NewSQL(db)
	default:
		panic("either DEVICES_FILE or POSTGRES is required")
	}

	router := mux.NewRouter()
	logger.AddRequestID(router)
	credentials.NewAPI(&credentials.Builder{
		Registry: reg,
		Router:   router,
		Hostname: service.Hostname,
		ThingKey: service.ThingKey,
	})

	broker := mqtt.NewBroker(&mqtt.Builder{
		Registry: reg,
		Hostname: service.Hostname,
		Address:  service.MQTTAddress,
		CertFile: service.CertFile,
		KeyFile:  service.KeyFile,
	})

	logger.Default().Infoln("listen on", service.HTTPAddress)
	go func() {
		err := http.ListenAndServe(service.HTTPAddress, handlers.CombinedLoggingHandler(os.Stdout, router))
		if err != nil {
			logger.Default().WithError(err).Fatalln("credentials API stopped")
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	broker.Run(ctx)
}
