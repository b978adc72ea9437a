package main

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/jkaflik/brunt2mqtt/internal/brunt"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

const defaultVendorTimeout = 10 * time.Second

type cfgDevice struct {
	Serial string `yaml:"serial"`
	Name   string `yaml:"name"`
	URI    string `yaml:"uri"`
}

type cfgAccount struct {
	Name     string        `yaml:"name"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	Timeout  time.Duration `yaml:"timeout"`

	// Pool caps concurrent vendor commands for the account. Zero is unbounded.
	Pool int `yaml:"pool"`

	Devices []cfgDevice `yaml:"devices"`
}

func (a cfgAccount) credentials() brunt.Credentials {
	return brunt.Credentials{Username: a.Username, Password: a.Password}
}

// accountName falls back to the username so every account has a stable UID.
func (a cfgAccount) accountName() string {
	if a.Name != "" {
		return a.Name
	}
	return a.Username
}

func (a cfgAccount) timeout() time.Duration {
	if a.Timeout > 0 {
		return a.Timeout
	}
	return defaultVendorTimeout
}

type cfgMQTT struct {
	ClientID string `yaml:"client_id" default:"brunt2mqtt" env:"CLIENT_ID"`
	Broker   string `yaml:"broker" default:"127.0.0.1:1883" env:"BROKER"`
	Username string `yaml:"username" env:"USERNAME"`
	Password string `yaml:"password" env:"PASSWORD"`
}

type cfgHASS struct {
	Enabled     bool   `yaml:"enabled" default:"true" env:"ENABLED"`
	TopicPrefix string `yaml:"topic_prefix" default:"homeassistant" env:"TOPIC_PREFIX"`
}

type cfgHTTP struct {
	Addr        string   `yaml:"addr" default:":8080" env:"ADDR"`
	CORSOrigins []string `yaml:"cors_origins" env:"CORS_ORIGINS"`
}

type cfgStore struct {
	Path string `yaml:"path" default:"brunt2mqtt.db" env:"PATH"`
}

type cfgDiscovery struct {
	Interval   time.Duration `yaml:"interval" default:"30s" env:"INTERVAL"`
	AutoAccept bool          `yaml:"auto_accept" default:"false" env:"AUTO_ACCEPT"`
}

var Cfg struct {
	LogLevel string `yaml:"log_level" default:"info" env:"LOG_LEVEL"`

	MQTT      cfgMQTT      `yaml:"mqtt" env:"MQTT"`
	HASS      cfgHASS      `yaml:"hass" env:"HASS"`
	HTTP      cfgHTTP      `yaml:"http" env:"HTTP"`
	Store     cfgStore     `yaml:"store" env:"STORE"`
	Discovery cfgDiscovery `yaml:"discovery" env:"DISCOVERY"`

	Accounts []cfgAccount `yaml:"accounts"`
}

var configLoader = aconfig.LoaderFor(&Cfg, aconfig.Config{
	EnvPrefix: "B2M",
	SkipFlags: true,
	SkipFiles: true,
})

// loadConfigFromYamlFile overlays filename on top of defaults and environment.
// A missing file is not an error.
func loadConfigFromYamlFile(filename string) error {
	f, err := os.Open(filename)
	if os.IsNotExist(err) {
		logrus.Warnf("config: %s not found, using defaults and environment", filename)
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(&Cfg); err != nil {
		return errors.Wrapf(err, "config: decode %s", filename)
	}

	return nil
}

func pahoOptsFromConfig() *paho.ClientOptions {
	return paho.NewClientOptions().
		SetClientID(Cfg.MQTT.ClientID).
		AddBroker(Cfg.MQTT.Broker).
		SetUsername(Cfg.MQTT.Username).
		SetPassword(Cfg.MQTT.Password).
		SetConnectTimeout(time.Second).
		SetPingTimeout(time.Second).
		SetWriteTimeout(time.Second).
		SetOrderMatters(false).
		SetAutoReconnect(true)
}
