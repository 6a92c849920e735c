package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/solarnav/groundlink/internal/config"
	"github.com/solarnav/groundlink/internal/gateway"
	"github.com/solarnav/groundlink/internal/missionstate"
	"github.com/solarnav/groundlink/internal/transport"
)

var (
	defaultFlagSet = flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	configPath     = defaultFlagSet.String("config", "", "Path to the YAML configuration file")
	brokerURL      = defaultFlagSet.String("mqtt_broker", "", "MQTT broker protocol, address and port")
	listenAddr     = defaultFlagSet.String("listen", "", "Operator gateway listen address")
	logLevel       = defaultFlagSet.String("log_level", "", "Log level: debug, info, warn, error")
)

func main() {
	defaultFlagSet.Parse(os.Args[1:])

	log := logrus.New()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	// Flags win over the file.
	if *brokerURL != "" {
		cfg.Broker.URL = *brokerURL
	}
	if *listenAddr != "" {
		cfg.HTTP.Listen = *listenAddr
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		log.Fatalf("Unknown log level: %s", cfg.Log.Level)
	}
	log.SetLevel(level)

	// attach sigint & sigterm listeners
	terminationSignals := make(chan os.Signal, 1)
	signal.Notify(terminationSignals, syscall.SIGINT, syscall.SIGTERM)

	// quitFunc will be called when process is terminated
	ctx, quitFunc := context.WithCancel(context.Background())

	// wait group will make sure all goroutines have time to clean up
	var wg sync.WaitGroup

	store := missionstate.NewStore(log, cfg.HistoryLimit)

	session := transport.New(transport.Options{
		BrokerURL:      cfg.Broker.URL,
		ClientID:       cfg.Broker.ClientID,
		Username:       cfg.Broker.Username,
		Password:       cfg.Broker.Password,
		PrivateKeyPath: cfg.Broker.PrivateKey,
		Audience:       cfg.Broker.Audience,
		Topics:         missionstate.InboundTopics(),
	}, log)
	defer session.Close()

	if err := session.Connect(); err != nil {
		// Degraded mode: the operator surface stays up, publishes fail with
		// a retryable error until the link comes back.
		log.WithError(err).Warn("starting without vehicle link")
	}

	startTelemetryPump(ctx, &wg, session, store)

	server := gateway.New(store, session, log)
	wg.Add(1)
	go func() {
		defer wg.Done()
		server.Run(ctx, &wg, cfg.HTTP.Listen)
	}()

	// wait for termination and close quit to signal all
	<-terminationSignals
	// cancel the main context
	log.Info("Shutting down..")
	quitFunc()

	// wait until goroutines have done their cleanup
	log.Info("Waiting for routines to finish..")
	wg.Wait()
	log.Info("Signing off - BYE")
}

// startTelemetryPump drains the session's inbound stream one message at a
// time, keeping store mutations in arrival order.
func startTelemetryPump(ctx context.Context, wg *sync.WaitGroup, session *transport.Session, store *missionstate.Store) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case m := <-session.Inbound():
				store.Apply(missionstate.Decode(m.Topic, m.Payload))
			}
		}
	}()
}
