package main

import (
	"context"
	"sync"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/jkaflik/brunt2mqtt/internal/account"
	"github.com/jkaflik/brunt2mqtt/internal/brunt"
	"github.com/jkaflik/brunt2mqtt/internal/discovery"
	"github.com/jkaflik/brunt2mqtt/internal/mqtt"
	driver "github.com/jkaflik/brunt2mqtt/internal/shutter/driver/brunt"
	"github.com/jkaflik/brunt2mqtt/internal/status"
	"github.com/jkaflik/brunt2mqtt/internal/store"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// daemon wires accounts, discovery and accepted blinds to MQTT.
type daemon struct {
	ctx     context.Context
	mqtt    paho.Client
	tracker *status.Tracker
	inbox   *store.Inbox
	manager *account.Manager
	metrics *brunt.Metrics

	autoAccept bool
	hassPrefix string

	mu         sync.Mutex
	commanders map[string]driver.Commander
	accounts   []*mqtt.AccountBridge
	bridges    map[string]*mqtt.Bridge
}

func newDaemon(ctx context.Context, m paho.Client, tracker *status.Tracker, inbox *store.Inbox, metrics *brunt.Metrics) *daemon {
	d := &daemon{
		ctx:        ctx,
		mqtt:       m,
		tracker:    tracker,
		inbox:      inbox,
		manager:    account.NewManager(),
		metrics:    metrics,
		autoAccept: Cfg.Discovery.AutoAccept,
		commanders: map[string]driver.Commander{},
		bridges:    map[string]*mqtt.Bridge{},
	}
	if Cfg.HASS.Enabled {
		d.hassPrefix = Cfg.HASS.TopicPrefix
	}
	return d
}

func (d *daemon) addAccount(cfg cfgAccount) error {
	name := cfg.accountName()

	httpClient, err := brunt.NewHTTPClient(cfg.timeout())
	if err != nil {
		return errors.Wrapf(err, "%s: HTTP client", name)
	}
	client := brunt.NewClient(httpClient, cfg.credentials(), brunt.WithMetrics(d.metrics))

	acc := account.New(name, client, d.tracker)
	accBridge := mqtt.NewAccountBridge(d.mqtt, acc, d.tracker)

	var commander driver.Commander = client
	if cfg.Pool > 0 {
		commander = driver.NewPoolProxy(client, make(chan struct{}, cfg.Pool))
	}

	d.mu.Lock()
	d.commanders[acc.UID()] = commander
	d.accounts = append(d.accounts, accBridge)
	d.mu.Unlock()

	if err := accBridge.Subscribe(d.ctx); err != nil {
		logrus.Error(err)
	}

	acc.Initialize(d.ctx)
	d.manager.Register(d.ctx, acc, Cfg.Discovery.Interval, d.onDiscovered)

	for _, dev := range cfg.Devices {
		r := discovery.NewResult(name, brunt.Device{Serial: dev.Serial, Name: dev.Name, URI: dev.URI})
		if err := d.bridge(r); err != nil {
			logrus.Error(err)
		}
	}

	return nil
}

// restoreAccepted bridges blinds approved in an earlier run.
func (d *daemon) restoreAccepted() error {
	accepted, err := d.inbox.Accepted()
	if err != nil {
		return errors.Wrap(err, "inbox: list accepted")
	}

	for _, dev := range accepted {
		if err := d.bridge(dev.Result); err != nil {
			logrus.Warn(err)
		}
	}
	return nil
}

func (d *daemon) onDiscovered(r discovery.Result) {
	dev, err := d.inbox.Discovered(r)
	if err != nil {
		logrus.Errorf("%s: inbox: %s", r.ThingUID, err)
		return
	}

	if !dev.Accepted && d.autoAccept {
		if dev, err = d.inbox.Approve(r.ThingUID); err != nil {
			logrus.Errorf("%s: auto accept: %s", r.ThingUID, err)
			return
		}
	}

	if !dev.Accepted {
		logrus.Debugf("%s: waiting for approval", r.ThingUID)
		return
	}

	if err := d.bridge(dev.Result); err != nil {
		logrus.Error(err)
	}
}

func (d *daemon) approve(dev *store.Device) error {
	return d.bridge(dev.Result)
}

// bridge exposes the blind on MQTT once. Later calls for the same UID are no-ops.
func (d *daemon) bridge(r discovery.Result) error {
	d.mu.Lock()
	if _, found := d.bridges[r.ThingUID]; found {
		d.mu.Unlock()
		return nil
	}
	commander, found := d.commanders[r.BridgeUID]
	if !found {
		d.mu.Unlock()
		return errors.Errorf("%s: no account configured for %s", r.ThingUID, r.BridgeUID)
	}

	s := driver.NewCloudShutter(r, commander, d.tracker)
	b := mqtt.NewBridge(d.mqtt, s, d.tracker)
	d.bridges[r.ThingUID] = b
	d.mu.Unlock()

	logrus.Infof("%s: bridging %s", r.Label, r.ThingUID)
	d.subscribeBridge(b)

	go func() {
		if err := s.Refresh(d.ctx); err != nil {
			logrus.Warn(err)
		}
	}()

	return nil
}

func (d *daemon) subscribeBridge(b *mqtt.Bridge) {
	if d.hassPrefix != "" {
		if err := mqtt.PublishHAAutoDiscovery(d.mqtt, d.hassPrefix, b); err != nil {
			logrus.Error(err)
		}
	}

	if err := b.Subscribe(d.ctx); err != nil {
		logrus.Error(err)
	}
}

// resubscribe restores subscriptions after a broker reconnect.
func (d *daemon) resubscribe() {
	d.mu.Lock()
	accounts := append([]*mqtt.AccountBridge(nil), d.accounts...)
	bridges := make([]*mqtt.Bridge, 0, len(d.bridges))
	for _, b := range d.bridges {
		bridges = append(bridges, b)
	}
	d.mu.Unlock()

	for _, a := range accounts {
		if err := a.Subscribe(d.ctx); err != nil {
			logrus.Error(err)
		}
	}
	for _, b := range bridges {
		d.subscribeBridge(b)
	}
}

// close unregisters every account, stopping its discovery and dropping its status.
func (d *daemon) close() {
	for _, acc := range d.manager.Accounts() {
		if d.manager.Unregister(acc.UID()) {
			d.tracker.Remove(acc.UID())
			logrus.Infof("%s: unregistered", acc.Name())
		}
	}
}
