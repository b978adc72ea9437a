package mqtt

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/jkaflik/brunt2mqtt/internal/account"
	"github.com/jkaflik/brunt2mqtt/internal/brunt"
	"github.com/jkaflik/brunt2mqtt/internal/shutter"
	"github.com/jkaflik/brunt2mqtt/internal/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingShutter struct {
	mu        sync.Mutex
	calls     []string
	positions []int
	handler   shutter.ShutterUpdateHandler
}

func (s *recordingShutter) record(call string) {
	s.mu.Lock()
	s.calls = append(s.calls, call)
	s.mu.Unlock()
}

func (s *recordingShutter) UID() string            { return "brunt:brunt-blind-engine:home:S1" }
func (s *recordingShutter) ID() string             { return "S1" }
func (s *recordingShutter) Name() string           { return "Kitchen" }
func (s *recordingShutter) FullOpenPosition() int  { return 100 }
func (s *recordingShutter) FullClosePosition() int { return 0 }
func (s *recordingShutter) Position() int          { return 0 }
func (s *recordingShutter) State() string          { return shutter.ShutterUnknownState }

func (s *recordingShutter) OnUpdate(h shutter.ShutterUpdateHandler) { s.handler = h }

func (s *recordingShutter) Open(context.Context) error    { s.record("open"); return nil }
func (s *recordingShutter) Close(context.Context) error   { s.record("close"); return nil }
func (s *recordingShutter) Refresh(context.Context) error { s.record("refresh"); return nil }

func (s *recordingShutter) SetPosition(_ context.Context, position int) error {
	s.mu.Lock()
	s.positions = append(s.positions, position)
	s.mu.Unlock()
	return nil
}

func TestBridgeTopics(t *testing.T) {
	b := NewBridge(newFakeClient(), &recordingShutter{}, status.NewTracker())

	assert.Equal(t, "brunt2mqtt/S1/state", b.StateTopic)
	assert.Equal(t, "brunt2mqtt/S1/position", b.PositionTopic)
	assert.Equal(t, "brunt2mqtt/S1/availability", b.AvailabilityTopic)
	assert.Equal(t, "brunt2mqtt/S1/set", b.CommandTopic)
	assert.Equal(t, "brunt2mqtt/S1/position/set", b.PositionChangeTopic)
}

func TestBridgeRoutesCommands(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := newFakeClient()
	s := &recordingShutter{}
	b := NewBridge(client, s, status.NewTracker())
	require.NoError(t, b.Subscribe(ctx))

	assert.True(t, client.deliver(b.CommandTopic, "open"))
	assert.True(t, client.deliver(b.CommandTopic, "close"))
	assert.True(t, client.deliver(b.CommandTopic, "refresh\n"))
	assert.True(t, client.deliver(b.CommandTopic, "stop"))
	assert.True(t, client.deliver(b.PositionChangeTopic, "42"))
	assert.True(t, client.deliver(b.PositionChangeTopic, "half"))

	assert.Equal(t, []string{"open", "close", "refresh"}, s.calls)
	assert.Equal(t, []int{42}, s.positions)
}

func TestBridgePublishesUpdates(t *testing.T) {
	client := newFakeClient()
	s := &recordingShutter{}
	NewBridge(client, s, status.NewTracker())

	s.handler(shutter.ShutterOpenState, 42)

	state, ok := client.last("brunt2mqtt/S1/state")
	require.True(t, ok)
	assert.Equal(t, published{Topic: "brunt2mqtt/S1/state", Retained: true, Payload: "open"}, state)

	position, ok := client.last("brunt2mqtt/S1/position")
	require.True(t, ok)
	assert.Equal(t, "42", position.Payload)
}

func TestBridgePublishesAvailability(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := newFakeClient()
	tracker := status.NewTracker()
	s := &recordingShutter{}
	b := NewBridge(client, s, tracker)
	require.NoError(t, b.Subscribe(ctx))

	avail, ok := client.last(b.AvailabilityTopic)
	require.True(t, ok)
	assert.Equal(t, "offline", avail.Payload)

	tracker.Update(s.UID(), status.OnlineInfo())
	avail, _ = client.last(b.AvailabilityTopic)
	assert.Equal(t, "online", avail.Payload)

	tracker.Update(s.UID(), status.OfflineInfo(status.CommunicationError, "set position failed"))
	avail, _ = client.last(b.AvailabilityTopic)
	assert.Equal(t, "offline", avail.Payload)
}

func TestBridgeUnsubscribesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	client := newFakeClient()
	b := NewBridge(client, &recordingShutter{}, status.NewTracker())
	require.NoError(t, b.Subscribe(ctx))
	cancel()

	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{b.PositionChangeTopic, b.CommandTopic}, client.unsubscribedTopics())
	}, time.Second, time.Millisecond)
}

func TestBridgeResubscribeUnsubscribesOnce(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	client := newFakeClient()
	b := NewBridge(client, &recordingShutter{}, status.NewTracker())
	require.NoError(t, b.Subscribe(ctx))
	require.NoError(t, b.Subscribe(ctx))
	require.NoError(t, b.Subscribe(ctx))
	cancel()

	want := []string{b.PositionChangeTopic, b.CommandTopic}
	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual(want, client.unsubscribedTopics())
	}, time.Second, time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, want, client.unsubscribedTopics())
}

func TestHAAutoDiscovery(t *testing.T) {
	client := newFakeClient()
	b := NewBridge(client, &recordingShutter{}, status.NewTracker())

	require.NoError(t, PublishHAAutoDiscovery(client, "homeassistant", b))

	msg, ok := client.last("homeassistant/cover/brunt2mqtt/S1/config")
	require.True(t, ok)
	assert.True(t, msg.Retained)

	var cover map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &cover))
	assert.Equal(t, "blind", cover["device_class"])
	assert.Equal(t, "brunt2mqtt/S1/availability", cover["avty_t"])
	assert.Equal(t, "brunt2mqtt/S1/position/set", cover["set_pos_t"])
	assert.Equal(t, float64(100), cover["pos_open"])
	assert.Equal(t, float64(0), cover["pos_clsd"])
	assert.NotContains(t, cover, "pl_stop")
}

type stubSession struct {
	err error
}

func (s stubSession) Authenticate(context.Context) error                  { return s.err }
func (s stubSession) ListDevices(context.Context) ([]brunt.Device, error) { return nil, s.err }

func TestAccountBridge(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := newFakeClient()
	tracker := status.NewTracker()
	acc := account.New("home", stubSession{err: brunt.ErrAuthenticationRejected}, tracker)

	b := NewAccountBridge(client, acc, tracker)
	assert.Equal(t, "brunt2mqtt/account/home/status", b.StatusTopic)
	require.NoError(t, b.Subscribe(ctx))

	acc.Initialize(ctx)
	acc.Wait()

	msg, ok := client.last(b.StatusTopic)
	require.True(t, ok)
	var info status.Info
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &info))
	assert.Equal(t, status.OfflineInfo(status.CommunicationError, "Bad login details"), info)

	assert.True(t, client.deliver(b.RefreshTopic, ""))
}
