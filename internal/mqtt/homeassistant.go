package mqtt

import (
	"encoding/json"
	"fmt"

	paho "github.com/eclipse/paho.mqtt.golang"
)

type haDevice struct {
	Identifiers  []string `json:"ids,omitempty"`
	Manufacturer string   `json:"mf,omitempty"`
	Model        string   `json:"mdl,omitempty"`
	Name         string   `json:"name,omitempty"`
	SWVersion    string   `json:"sw,omitempty"`
}

type haEntity struct {
	AvailabilityTopic   string `json:"avty_t,omitempty"`
	PayloadAvailable    string `json:"pl_avail,omitempty"`
	PayloadNotAvailable string `json:"pl_not_avail,omitempty"`
	UniqueID            string `json:"uniq_id,omitempty"`
	Name                string `json:"name,omitempty"`
	DeviceClass         string `json:"device_class,omitempty"`

	Device haDevice `json:"device"`
}

// haCover has no stop payload: Brunt engines only take absolute positions.
type haCover struct {
	haEntity
	StateTopic       string `json:"stat_t"`
	CommandTopic     string `json:"cmd_t"`
	PositionTopic    string `json:"pos_t"`
	SetPositionTopic string `json:"set_pos_t"`
	PositionOpen     int    `json:"pos_open"`
	PositionClosed   int    `json:"pos_clsd"`
	PayloadOpen      string `json:"pl_open"`
	PayloadClose     string `json:"pl_cls"`
	PayloadStop      string `json:"pl_stop,omitempty"`
}

func NewHACoverFromMQTTBridge(bridge *Bridge) haCover {
	return haCover{
		haEntity: haEntity{
			AvailabilityTopic:   bridge.AvailabilityTopic,
			PayloadAvailable:    payloadAvailable,
			PayloadNotAvailable: payloadNotAvailable,
			UniqueID:            TopicRoot + "_" + bridge.shutter.ID(),
			Name:                bridge.shutter.Name(),
			DeviceClass:         "blind",

			Device: haDevice{
				Identifiers:  []string{TopicRoot + "_" + bridge.shutter.ID()},
				Manufacturer: "Brunt",
				Model:        "Blind Engine",
				Name:         bridge.shutter.Name(),
				SWVersion:    TopicRoot,
			},
		},
		StateTopic:       bridge.StateTopic,
		CommandTopic:     bridge.CommandTopic,
		PositionTopic:    bridge.PositionTopic,
		SetPositionTopic: bridge.PositionChangeTopic,
		PositionOpen:     bridge.shutter.FullOpenPosition(),
		PositionClosed:   bridge.shutter.FullClosePosition(),
		PayloadOpen:      mqttOpenCmd,
		PayloadClose:     mqttCloseCmd,
	}
}

func discoveryTopic(homeAssistantDiscoveryTopicPrefix, id string) string {
	return fmt.Sprintf("%s/cover/%s/%s/config", homeAssistantDiscoveryTopicPrefix, TopicRoot, id)
}

func PublishHAAutoDiscovery(client paho.Client, homeAssistantDiscoveryTopicPrefix string, bridge *Bridge) error {
	cover := NewHACoverFromMQTTBridge(bridge)

	payload, err := json.Marshal(cover)
	if err != nil {
		return err
	}

	if token := client.Publish(discoveryTopic(homeAssistantDiscoveryTopicPrefix, bridge.shutter.ID()), 0, true, payload); token.Wait() && token.Error() != nil {
		return token.Error()
	}

	return nil
}
