package account

import (
	"context"
	"sync"

	"github.com/jkaflik/brunt2mqtt/internal/brunt"
	"github.com/jkaflik/brunt2mqtt/internal/discovery"
	"github.com/jkaflik/brunt2mqtt/internal/status"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const badLoginMessage = "Bad login details"

type Session interface {
	Authenticate(ctx context.Context) error
	ListDevices(ctx context.Context) ([]brunt.Device, error)
}

// Account is the bridge for one Brunt cloud login.
type Account struct {
	name    string
	session Session
	tracker *status.Tracker

	wg sync.WaitGroup
}

func New(name string, session Session, tracker *status.Tracker) *Account {
	return &Account{name: name, session: session, tracker: tracker}
}

func (a *Account) Name() string {
	return a.name
}

func (a *Account) UID() string {
	return discovery.BridgeUID(a.name)
}

func (a *Account) Session() Session {
	return a.session
}

func (a *Account) Status() status.Info {
	info, found := a.tracker.Get(a.UID())
	if !found {
		return status.UnknownInfo()
	}
	return info
}

// Initialize marks the account UNKNOWN and decides the real status in the background.
func (a *Account) Initialize(ctx context.Context) {
	a.tracker.Update(a.UID(), status.UnknownInfo())

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.authenticate(ctx)
	}()

	logrus.Debugf("%s: initializing", a.name)
}

// Wait blocks until background initialization is done.
func (a *Account) Wait() {
	a.wg.Wait()
}

func (a *Account) Refresh(ctx context.Context) status.Info {
	return a.authenticate(ctx)
}

func (a *Account) authenticate(ctx context.Context) status.Info {
	info := statusFor(a.session.Authenticate(ctx))
	if a.tracker.Update(a.UID(), info) {
		logrus.Infof("%s: %s %s", a.name, info.Status, info.Message)
	}
	return info
}

func statusFor(err error) status.Info {
	var te *brunt.TransportError
	switch {
	case err == nil:
		return status.OnlineInfo()
	case errors.Is(err, brunt.ErrMissingCredentials):
		return status.OfflineInfo(status.ConfigurationError, brunt.ErrMissingCredentials.Error())
	case errors.Is(err, brunt.ErrAuthenticationRejected):
		return status.OfflineInfo(status.CommunicationError, badLoginMessage)
	case errors.As(err, &te):
		return status.OfflineInfo(status.CommunicationError, te.Reason())
	default:
		return status.OfflineInfo(status.CommunicationError, err.Error())
	}
}
