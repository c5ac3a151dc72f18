// Package provconfig persists provider configurations between runs, so a
// provider configured once stays configured until it is unconfigured.
package provconfig

import (
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/subwatch/subwatch"
)

var buckets = struct {
	Metadata []byte
	Configs  []byte
}{
	Metadata: []byte("__metadata__"),
	Configs:  []byte("provider_config"),
}

var metadataKeys = struct {
	Version []byte
}{
	Version: []byte("version"),
}

const currentVersion = 1

// Store persists provider configurations keyed by provider id.
type Store interface {
	// Load returns the saved configuration for the provider id, or nil if none.
	Load(id string) (subwatch.Configuration, error)
	// List returns every saved configuration keyed by provider id.
	List() (map[string]subwatch.Configuration, error)
	Save(id string, config subwatch.Configuration) error
	Delete(id string) error
	Close() error
}

type store struct {
	*bbolt.DB
}

func Open(path string) (Store, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bbolt.Tx) (err error) {
		// Ensure buckets exist
		var metadata *bbolt.Bucket
		if metadata, err = tx.CreateBucketIfNotExists(buckets.Metadata); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(buckets.Configs); err != nil {
			return err
		}

		// Get the current version of the database
		var version int
		if versionBytes := metadata.Get(metadataKeys.Version); versionBytes == nil {
			version = 0
		} else if err = json.Unmarshal(versionBytes, &version); err != nil {
			return err
		}
		if version > currentVersion {
			return fmt.Errorf("database version %d is newer than supported version %d", version, currentVersion)
		}

		// Set the current version of the database
		if versionBytes, err := json.Marshal(currentVersion); err != nil {
			return err
		} else if err = metadata.Put(metadataKeys.Version, versionBytes); err != nil {
			return err
		}

		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &store{db}, nil
}

func (s *store) Load(id string) (subwatch.Configuration, error) {
	var config subwatch.Configuration
	err := s.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(buckets.Configs).Get([]byte(id))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &config)
	})
	if err != nil {
		return nil, err
	}
	return config, nil
}

func (s *store) List() (map[string]subwatch.Configuration, error) {
	configs := make(map[string]subwatch.Configuration)
	err := s.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(buckets.Configs)
		return bucket.ForEach(func(k, v []byte) error {
			var config subwatch.Configuration
			if err := json.Unmarshal(v, &config); err != nil {
				return err
			}
			configs[string(k)] = config
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return configs, nil
}

func (s *store) Save(id string, config subwatch.Configuration) error {
	data, err := json.Marshal(config)
	if err != nil {
		return err
	}
	return s.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(buckets.Configs).Put([]byte(id), data)
	})
}

func (s *store) Delete(id string) error {
	return s.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(buckets.Configs).Delete([]byte(id))
	})
}

// NilStore discards all configurations.
type NilStore struct{}

func (NilStore) Load(string) (subwatch.Configuration, error) { return nil, nil }

func (NilStore) List() (map[string]subwatch.Configuration, error) { return nil, nil }

func (NilStore) Save(string, subwatch.Configuration) error { return nil }

func (NilStore) Delete(string) error { return nil }

func (NilStore) Close() error { return nil }
