package brunt

import (
	"context"
	"sync"

	api "github.com/jkaflik/brunt2mqtt/internal/brunt"
	"github.com/jkaflik/brunt2mqtt/internal/discovery"
	"github.com/jkaflik/brunt2mqtt/internal/shutter"
	"github.com/jkaflik/brunt2mqtt/internal/status"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var ErrPositionOutOfRange = errors.New("position out of range")

type Commander interface {
	SetPosition(ctx context.Context, deviceURI string, position int) bool
	CheckAccess(ctx context.Context, deviceURI string) (bool, error)
}

// CloudShutter drives one blind engine through the Brunt cloud.
// Position is whatever the API last acknowledged.
type CloudShutter struct {
	uid    string
	serial string
	name   string
	uri    string

	api     Commander
	tracker *status.Tracker

	mu              sync.Mutex
	currentState    string
	currentPosition int
	updateHandler   shutter.ShutterUpdateHandler
}

func NewCloudShutter(r discovery.Result, commander Commander, tracker *status.Tracker) *CloudShutter {
	s := &CloudShutter{
		uid:           r.ThingUID,
		serial:        r.Serial,
		name:          r.Label,
		uri:           r.URI(),
		api:           commander,
		tracker:       tracker,
		currentState:  shutter.ShutterUnknownState,
		updateHandler: func(string, int) {},
	}
	tracker.Update(s.uid, status.UnknownInfo())
	return s
}

func (s *CloudShutter) UID() string {
	return s.uid
}

func (s *CloudShutter) ID() string {
	return s.serial
}

func (s *CloudShutter) Name() string {
	return s.name
}

func (s *CloudShutter) URI() string {
	return s.uri
}

func (s *CloudShutter) FullOpenPosition() int {
	return api.MaxPosition
}

func (s *CloudShutter) FullClosePosition() int {
	return api.MinPosition
}

func (s *CloudShutter) Position() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentPosition
}

func (s *CloudShutter) State() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentState
}

func (s *CloudShutter) OnUpdate(h shutter.ShutterUpdateHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateHandler = h
}

func (s *CloudShutter) Open(ctx context.Context) error {
	logrus.Infof("%s: open", s.name)
	return s.SetPosition(ctx, s.FullOpenPosition())
}

func (s *CloudShutter) Close(ctx context.Context) error {
	logrus.Infof("%s: close", s.name)
	return s.SetPosition(ctx, s.FullClosePosition())
}

func (s *CloudShutter) SetPosition(ctx context.Context, targetPosition int) error {
	if targetPosition > s.FullOpenPosition() || targetPosition < s.FullClosePosition() {
		return errors.Wrapf(
			ErrPositionOutOfRange,
			"%s: %d is out of range open/close targetPosition for (%d/%d)",
			s.name,
			targetPosition,
			s.FullOpenPosition(),
			s.FullClosePosition(),
		)
	}

	logrus.Infof("%s: set targetPosition to %d", s.name, targetPosition)

	if !s.api.SetPosition(ctx, s.uri, targetPosition) {
		s.tracker.Update(s.uid, status.OfflineInfo(status.CommunicationError, "set position failed"))
		return errors.Errorf("%s: set position %d failed", s.name, targetPosition)
	}

	s.tracker.Update(s.uid, status.OnlineInfo())

	s.mu.Lock()
	s.currentPosition = targetPosition
	s.currentState = shutter.StateFor(s, targetPosition)
	state, handler := s.currentState, s.updateHandler
	s.mu.Unlock()

	handler(state, targetPosition)
	logrus.Infof("%s: updated state %s, position %d", s.name, state, targetPosition)

	return nil
}

func (s *CloudShutter) Refresh(ctx context.Context) error {
	ok, err := s.api.CheckAccess(ctx, s.uri)
	switch {
	case err != nil:
		var te *api.TransportError
		message := err.Error()
		if errors.As(err, &te) {
			message = te.Reason()
		}
		s.tracker.Update(s.uid, status.OfflineInfo(status.CommunicationError, message))
		return errors.Wrapf(err, "%s: refresh", s.name)
	case !ok:
		s.tracker.Update(s.uid, status.OfflineInfo(status.CommunicationError, "device not accessible"))
		return errors.Errorf("%s: device not accessible", s.name)
	}

	s.tracker.Update(s.uid, status.OnlineInfo())
	logrus.Debugf("%s: refreshed", s.name)
	return nil
}
