package mqtt

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/jkaflik/brunt2mqtt/internal/shutter"
	"github.com/jkaflik/brunt2mqtt/internal/status"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	TopicRoot = "brunt2mqtt"

	mqttOpenCmd    = "open"
	mqttCloseCmd   = "close"
	mqttRefreshCmd = "refresh"

	payloadAvailable    = "online"
	payloadNotAvailable = "offline"
)

// Shutter is a shutter whose availability is tracked under UID.
type Shutter interface {
	shutter.Shutter
	UID() string
}

type Bridge struct {
	mqtt    mqtt.Client
	shutter Shutter
	tracker *status.Tracker

	StateTopic        string
	PositionTopic     string
	AvailabilityTopic string

	CommandTopic        string
	PositionChangeTopic string

	unsubscribeOnce sync.Once
}

func NewBridge(mqtt mqtt.Client, s Shutter, tracker *status.Tracker) *Bridge {
	bridge := &Bridge{mqtt: mqtt, shutter: s, tracker: tracker}
	bridge.StateTopic = fmt.Sprintf("%s/%s/state", TopicRoot, s.ID())
	bridge.PositionTopic = fmt.Sprintf("%s/%s/position", TopicRoot, s.ID())
	bridge.AvailabilityTopic = fmt.Sprintf("%s/%s/availability", TopicRoot, s.ID())
	bridge.CommandTopic = fmt.Sprintf("%s/%s/set", TopicRoot, s.ID())
	bridge.PositionChangeTopic = fmt.Sprintf("%s/%s/position/set", TopicRoot, s.ID())

	s.OnUpdate(bridge.onShutterUpdateHandler())
	tracker.OnChange(s.UID(), bridge.onStatusChangeHandler())

	return bridge
}

func (b *Bridge) Subscribe(ctx context.Context) error {
	// Resubscribing after a reconnect reuses the first watcher.
	b.unsubscribeOnce.Do(func() {
		go func() {
			<-ctx.Done()
			if token := b.mqtt.Unsubscribe(b.PositionChangeTopic, b.CommandTopic); token.Wait() && token.Error() != nil {
				logrus.Errorf("%s: MQTT topics unsubscribe failed: %s", b.shutter.Name(), token.Error())
			}
		}()
	})

	if token := b.mqtt.Subscribe(b.CommandTopic, 0, b.onCommandHandler(ctx)); token.Wait() && token.Error() != nil {
		return errors.Wrapf(token.Error(), "%s: MQTT command topic subscription failed", b.shutter.Name())
	}
	logrus.Infof("%s: MQTT command topic subscribed", b.shutter.Name())
	if token := b.mqtt.Subscribe(b.PositionChangeTopic, 0, b.onPositionChangeHandler(ctx)); token.Wait() && token.Error() != nil {
		return errors.Wrapf(token.Error(), "%s: MQTT position change topic subscription failed", b.shutter.Name())
	}
	logrus.Infof("%s: MQTT position change topic subscribed", b.shutter.Name())

	info, found := b.tracker.Get(b.shutter.UID())
	if !found {
		info = status.UnknownInfo()
	}
	b.publishAvailability(info)

	return nil
}

func (b *Bridge) onShutterUpdateHandler() shutter.ShutterUpdateHandler {
	return func(state string, position int) {
		if token := b.mqtt.Publish(b.StateTopic, 0, true, state); token.Wait() && token.Error() != nil {
			logrus.Errorf("%s: MQTT state publish failed: %s", b.shutter.Name(), token.Error())
		}
		if token := b.mqtt.Publish(b.PositionTopic, 0, true, strconv.Itoa(position)); token.Wait() && token.Error() != nil {
			logrus.Errorf("%s: MQTT position publish failed: %s", b.shutter.Name(), token.Error())
		}
	}
}

func (b *Bridge) onStatusChangeHandler() func(status.Info) {
	return func(info status.Info) {
		b.publishAvailability(info)
	}
}

func (b *Bridge) publishAvailability(info status.Info) {
	payload := payloadNotAvailable
	if info.Status == status.Online {
		payload = payloadAvailable
	}
	if token := b.mqtt.Publish(b.AvailabilityTopic, 0, true, payload); token.Wait() && token.Error() != nil {
		logrus.Errorf("%s: MQTT availability publish failed: %s", b.shutter.Name(), token.Error())
	}
}

func (b *Bridge) onCommandHandler(ctx context.Context) mqtt.MessageHandler {
	return func(c mqtt.Client, msg mqtt.Message) {
		cmd := strings.TrimSpace(string(msg.Payload()))

		var err error
		switch cmd {
		case mqttOpenCmd:
			err = b.shutter.Open(ctx)
		case mqttCloseCmd:
			err = b.shutter.Close(ctx)
		case mqttRefreshCmd:
			err = b.shutter.Refresh(ctx)
		default:
			logrus.Errorf("%s: MQTT unsupported %s command received", b.shutter.Name(), cmd)
			return
		}
		if err != nil {
			logrus.Error(err)
		}
	}
}

func (b *Bridge) onPositionChangeHandler(ctx context.Context) mqtt.MessageHandler {
	return func(c mqtt.Client, msg mqtt.Message) {
		pos, err := strconv.Atoi(strings.TrimSpace(string(msg.Payload())))
		if err != nil {
			logrus.Errorf("%s: MQTT invalid position %q", b.shutter.Name(), msg.Payload())
			return
		}
		if err := b.shutter.SetPosition(ctx, pos); err != nil {
			logrus.Error(err)
		}
	}
}
