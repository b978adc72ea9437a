package store

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

var bucketDevices = []byte("devices")

// BoltStore implements Store using BoltDB.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens or creates a BoltDB database.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "open bolt db %s", path)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketDevices)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create buckets")
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) SaveDevice(dev *Device) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putDevice(tx.Bucket(bucketDevices), dev)
	})
}

func (s *BoltStore) GetDevice(uid string) (*Device, error) {
	var dev *Device
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		dev, err = getDevice(tx.Bucket(bucketDevices), uid)
		return err
	})
	if err != nil {
		return nil, err
	}
	return dev, nil
}

func (s *BoltStore) DeleteDevice(uid string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDevices).Delete([]byte(uid))
	})
}

func (s *BoltStore) ListDevices() ([]*Device, error) {
	var devices []*Device
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDevices)
		devices = make([]*Device, 0, b.Stats().KeyN)
		return b.ForEach(func(k, v []byte) error {
			var dev Device
			if err := json.Unmarshal(v, &dev); err != nil {
				return errors.Wrapf(err, "device %s", k)
			}
			devices = append(devices, &dev)
			return nil
		})
	})
	return devices, err
}

func (s *BoltStore) UpdateDevice(uid string, fn func(dev *Device) error) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDevices)
		dev, err := getDevice(b, uid)
		if err != nil {
			return err
		}
		if err := fn(dev); err != nil {
			return err
		}
		return putDevice(b, dev)
	})
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func getDevice(b *bolt.Bucket, uid string) (*Device, error) {
	data := b.Get([]byte(uid))
	if data == nil {
		return nil, errors.Wrapf(ErrNotFound, "device %s", uid)
	}
	var dev Device
	if err := json.Unmarshal(data, &dev); err != nil {
		return nil, errors.Wrapf(err, "device %s", uid)
	}
	return &dev, nil
}

func putDevice(b *bolt.Bucket, dev *Device) error {
	data, err := json.Marshal(dev)
	if err != nil {
		return errors.Wrapf(err, "device %s", dev.ThingUID)
	}
	return b.Put([]byte(dev.ThingUID), data)
}
