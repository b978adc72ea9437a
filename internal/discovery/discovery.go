package discovery

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jkaflik/brunt2mqtt/internal/brunt"
	"github.com/sirupsen/logrus"
)

const (
	BindingID            = "brunt"
	ThingTypeBridge      = "brunt-bridge"
	ThingTypeBlindEngine = "brunt-blind-engine"

	PropertyURI = "uri"

	DefaultInterval = 30 * time.Second
)

func BridgeUID(account string) string {
	return strings.Join([]string{BindingID, ThingTypeBridge, account}, ":")
}

func BlindUID(account, serial string) string {
	return strings.Join([]string{BindingID, ThingTypeBlindEngine, account, serial}, ":")
}

// Result is a blind proposed for acceptance.
type Result struct {
	ThingUID   string            `json:"thing_uid"`
	ThingType  string            `json:"thing_type"`
	BridgeUID  string            `json:"bridge_uid"`
	Serial     string            `json:"serial"`
	Label      string            `json:"label"`
	Properties map[string]string `json:"properties"`
}

func (r Result) URI() string {
	return r.Properties[PropertyURI]
}

func NewResult(account string, d brunt.Device) Result {
	return Result{
		ThingUID:   BlindUID(account, d.Serial),
		ThingType:  ThingTypeBlindEngine,
		BridgeUID:  BridgeUID(account),
		Serial:     d.Serial,
		Label:      d.Name,
		Properties: map[string]string{PropertyURI: d.URI},
	}
}

type Lister interface {
	ListDevices(ctx context.Context) ([]brunt.Device, error)
}

type Listener func(Result)

// Service scans one account for blinds on a fixed interval.
type Service struct {
	account  string
	lister   Lister
	interval time.Duration
	listener Listener

	stopOnce sync.Once
	stop     chan struct{}
}

func NewService(account string, lister Lister, interval time.Duration, listener Listener) *Service {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Service{
		account:  account,
		lister:   lister,
		interval: interval,
		listener: listener,
		stop:     make(chan struct{}),
	}
}

func (s *Service) Account() string {
	return s.account
}

func (s *Service) Interval() time.Duration {
	return s.interval
}

// Scan lists the account's devices once and hands every result to the listener.
func (s *Service) Scan(ctx context.Context) ([]Result, error) {
	devices, err := s.lister.ListDevices(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(devices))
	for _, d := range devices {
		r := NewResult(s.account, d)
		results = append(results, r)
		if s.listener != nil {
			s.listener(r)
		}
	}

	logrus.Debugf("%s: discovery found %d blinds", s.account, len(results))
	return results, nil
}

func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.Scan(ctx); err != nil {
			logrus.Errorf("%s: discovery scan failed: %s", s.account, err)
		}

		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			logrus.Infof("%s: discovery stopped", s.account)
			return
		case <-ticker.C:
		}
	}
}

func (s *Service) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}
