package store

import (
	"time"

	"github.com/jkaflik/brunt2mqtt/internal/discovery"
	"github.com/pkg/errors"
)

// ErrNotFound is returned when a requested entity does not exist in the store.
var ErrNotFound = errors.New("not found")

// Device is a discovered blind and whether it was accepted for bridging.
type Device struct {
	discovery.Result

	Accepted  bool      `json:"accepted"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// Store defines the persistence interface.
type Store interface {
	SaveDevice(dev *Device) error
	GetDevice(uid string) (*Device, error)
	DeleteDevice(uid string) error
	ListDevices() ([]*Device, error)

	// UpdateDevice atomically reads, modifies, and saves a device in a single
	// transaction. Returns ErrNotFound if the device does not exist.
	UpdateDevice(uid string, fn func(dev *Device) error) error

	Close() error
}
