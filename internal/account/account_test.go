package account

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jkaflik/brunt2mqtt/internal/brunt"
	"github.com/jkaflik/brunt2mqtt/internal/discovery"
	"github.com/jkaflik/brunt2mqtt/internal/status"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSession struct {
	mu      sync.Mutex
	authErr error
	devices []brunt.Device
	lists   int
}

func (s *stubSession) Authenticate(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authErr
}

func (s *stubSession) ListDevices(context.Context) ([]brunt.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists++
	return s.devices, nil
}

func (s *stubSession) listCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lists
}

func TestInitializeStatus(t *testing.T) {
	tests := []struct {
		name    string
		authErr error
		want    status.Info
	}{
		{
			name: "authenticated",
			want: status.OnlineInfo(),
		},
		{
			name:    "missing credentials",
			authErr: brunt.ErrMissingCredentials,
			want:    status.OfflineInfo(status.ConfigurationError, "incomplete login details provided"),
		},
		{
			name:    "rejected",
			authErr: errors.Wrap(brunt.ErrAuthenticationRejected, "status 401"),
			want:    status.OfflineInfo(status.CommunicationError, "Bad login details"),
		},
		{
			name:    "timed out",
			authErr: &brunt.TransportError{Op: "login", Kind: brunt.TimedOut, Err: context.DeadlineExceeded},
			want:    status.OfflineInfo(status.CommunicationError, "login timed out"),
		},
		{
			name:    "interrupted",
			authErr: &brunt.TransportError{Op: "login", Kind: brunt.Interrupted, Err: context.Canceled},
			want:    status.OfflineInfo(status.CommunicationError, "login interrupted"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := status.NewTracker()

			var changes []status.Info
			tracker.OnChange("brunt:brunt-bridge:home", func(info status.Info) { changes = append(changes, info) })

			acc := New("home", &stubSession{authErr: tt.authErr}, tracker)
			acc.Initialize(context.Background())
			acc.Wait()

			assert.Equal(t, tt.want, acc.Status())
			require.Len(t, changes, 2)
			assert.Equal(t, status.UnknownInfo(), changes[0])
		})
	}
}

func TestRefreshRecovers(t *testing.T) {
	tracker := status.NewTracker()
	session := &stubSession{authErr: brunt.ErrAuthenticationRejected}

	acc := New("home", session, tracker)
	acc.Initialize(context.Background())
	acc.Wait()
	assert.Equal(t, status.Offline, acc.Status().Status)

	session.mu.Lock()
	session.authErr = nil
	session.mu.Unlock()

	assert.Equal(t, status.OnlineInfo(), acc.Refresh(context.Background()))
	assert.Equal(t, status.OnlineInfo(), acc.Status())
}

func TestUnknownBeforeInitialize(t *testing.T) {
	acc := New("home", &stubSession{}, status.NewTracker())
	assert.Equal(t, "brunt:brunt-bridge:home", acc.UID())
	assert.Equal(t, status.UnknownInfo(), acc.Status())
}

func TestManagerRegistrationTable(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tracker := status.NewTracker()
	m := NewManager()

	session := &stubSession{devices: []brunt.Device{{Serial: "S1", Name: "Kitchen", URI: "/k"}}}
	acc := New("home", session, tracker)

	var mu sync.Mutex
	var found []discovery.Result
	listener := func(r discovery.Result) {
		mu.Lock()
		found = append(found, r)
		mu.Unlock()
	}

	first := m.Register(ctx, acc, time.Hour, listener)
	assert.Eventually(t, func() bool { return session.listCount() == 1 }, time.Second, time.Millisecond)

	svc, ok := m.Discovery(acc.UID())
	require.True(t, ok)
	assert.Same(t, first, svc)

	second := m.Register(ctx, acc, time.Hour, listener)
	assert.NotSame(t, first, second)
	assert.Eventually(t, func() bool { return session.listCount() == 2 }, time.Second, time.Millisecond)
	assert.Len(t, m.Accounts(), 1)

	got, ok := m.Account(acc.UID())
	require.True(t, ok)
	assert.Same(t, acc, got)

	assert.True(t, m.Unregister(acc.UID()))
	assert.False(t, m.Unregister(acc.UID()))
	_, ok = m.Discovery(acc.UID())
	assert.False(t, ok)
	assert.Empty(t, m.Accounts())

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, found)
	assert.Equal(t, "brunt:brunt-blind-engine:home:S1", found[0].ThingUID)
}
