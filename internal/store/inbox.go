package store

import (
	"time"

	"github.com/jkaflik/brunt2mqtt/internal/discovery"
	"github.com/pkg/errors"
)

// Inbox records discovery results and their acceptance.
type Inbox struct {
	store Store
	now   func() time.Time
}

func NewInbox(s Store) *Inbox {
	return &Inbox{store: s, now: time.Now}
}

// Discovered upserts r. Acceptance and first sighting survive re-discovery.
func (i *Inbox) Discovered(r discovery.Result) (*Device, error) {
	now := i.now()

	var saved *Device
	err := i.store.UpdateDevice(r.ThingUID, func(dev *Device) error {
		dev.Result = r
		dev.LastSeen = now
		saved = dev
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		saved = &Device{Result: r, FirstSeen: now, LastSeen: now}
		err = i.store.SaveDevice(saved)
	}
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func (i *Inbox) Approve(uid string) (*Device, error) {
	var approved *Device
	err := i.store.UpdateDevice(uid, func(dev *Device) error {
		dev.Accepted = true
		approved = dev
		return nil
	})
	if err != nil {
		return nil, err
	}
	return approved, nil
}

func (i *Inbox) Get(uid string) (*Device, error) {
	return i.store.GetDevice(uid)
}

func (i *Inbox) List() ([]*Device, error) {
	return i.store.ListDevices()
}

func (i *Inbox) Accepted() ([]*Device, error) {
	devices, err := i.store.ListDevices()
	if err != nil {
		return nil, err
	}

	accepted := devices[:0]
	for _, dev := range devices {
		if dev.Accepted {
			accepted = append(accepted, dev)
		}
	}
	return accepted, nil
}
