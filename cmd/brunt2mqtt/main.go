package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/jkaflik/brunt2mqtt/internal/brunt"
	"github.com/jkaflik/brunt2mqtt/internal/server"
	"github.com/jkaflik/brunt2mqtt/internal/status"
	"github.com/jkaflik/brunt2mqtt/internal/store"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{
		DisableColors: false,
		FullTimestamp: true,
	})

	configPath := flag.String("config", "config.yaml", "config.yaml file path")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		logrus.Debugf("no .env loaded: %s", err)
	}

	if err := configLoader.Load(); err != nil {
		logrus.Fatal(err)
	}
	if err := loadConfigFromYamlFile(*configPath); err != nil {
		logrus.Fatal(err)
	}

	level, err := logrus.ParseLevel(Cfg.LogLevel)
	if err != nil {
		logrus.Fatal(err)
	}
	logrus.SetLevel(level)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := store.NewBoltStore(Cfg.Store.Path)
	if err != nil {
		logrus.Fatal(err)
	}
	defer db.Close()

	metrics := brunt.NewMetrics()
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(metrics.Collectors()...)

	tracker := status.NewTracker()
	tracker.OnAny(func(uid string, info status.Info) {
		logrus.Debugf("%s: status %s %s %s", uid, info.Status, info.Detail, info.Message)
	})
	inbox := store.NewInbox(db)

	var d *daemon
	cfg := pahoOptsFromConfig()
	cfg.OnConnect = func(m paho.Client) {
		logrus.Info("MQTT broker connected")
		if d != nil {
			d.resubscribe()
		}
	}
	cfg.OnConnectionLost = func(_ paho.Client, err error) {
		logrus.Errorf("MQTT broker connection lost: %s", err.Error())
	}

	m := paho.NewClient(cfg)
	d = newDaemon(ctx, m, tracker, inbox, metrics)
	if token := m.Connect(); token.Wait() && token.Error() != nil {
		logrus.Fatal(token.Error())
	}

	for _, acc := range Cfg.Accounts {
		if err := d.addAccount(acc); err != nil {
			logrus.Error(err)
		}
	}
	if err := d.restoreAccepted(); err != nil {
		logrus.Error(err)
	}

	srv := &http.Server{
		Addr: Cfg.HTTP.Addr,
		Handler: server.NewRouter(server.Options{
			Tracker:     tracker,
			Inbox:       inbox,
			Accounts:    d.manager,
			Registry:    registry,
			OnApprove:   d.approve,
			CORSOrigins: Cfg.HTTP.CORSOrigins,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		select {
		case oscall := <-c:
			logrus.Infof("system call: %+v", oscall)
			cancel()
		case <-gctx.Done():
		}
		return nil
	})
	g.Go(func() error {
		logrus.Infof("HTTP listening on %s", Cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logrus.Error(err)
	}

	d.close()

	cleanupTime := time.Second
	logrus.Infof("cleanups for %s...", cleanupTime.String())
	m.Disconnect(uint(cleanupTime.Milliseconds()))
}
