package mqtt

import (
	"context"
	"encoding/json"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/jkaflik/brunt2mqtt/internal/account"
	"github.com/jkaflik/brunt2mqtt/internal/status"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// AccountBridge exposes one account's status and a refresh trigger.
type AccountBridge struct {
	mqtt    mqtt.Client
	account *account.Account

	StatusTopic  string
	RefreshTopic string
}

func NewAccountBridge(mqtt mqtt.Client, acc *account.Account, tracker *status.Tracker) *AccountBridge {
	b := &AccountBridge{mqtt: mqtt, account: acc}
	b.StatusTopic = fmt.Sprintf("%s/account/%s/status", TopicRoot, acc.Name())
	b.RefreshTopic = fmt.Sprintf("%s/account/%s/refresh", TopicRoot, acc.Name())

	tracker.OnChange(acc.UID(), func(info status.Info) {
		if err := b.publishStatus(info); err != nil {
			logrus.Error(err)
		}
	})

	return b
}

func (b *AccountBridge) Subscribe(ctx context.Context) error {
	handler := func(c mqtt.Client, msg mqtt.Message) {
		logrus.Infof("%s: MQTT refresh requested", b.account.Name())
		go b.account.Refresh(ctx)
	}
	if token := b.mqtt.Subscribe(b.RefreshTopic, 0, handler); token.Wait() && token.Error() != nil {
		return errors.Wrapf(token.Error(), "%s: MQTT refresh topic subscription failed", b.account.Name())
	}

	return b.publishStatus(b.account.Status())
}

func (b *AccountBridge) publishStatus(info status.Info) error {
	payload, err := json.Marshal(info)
	if err != nil {
		return err
	}

	if token := b.mqtt.Publish(b.StatusTopic, 0, true, payload); token.Wait() && token.Error() != nil {
		return errors.Wrapf(token.Error(), "%s: MQTT status publish failed", b.account.Name())
	}
	return nil
}
