// Package docstore caches documents fetched from the PKI service (service
// descriptions, mostly) in a local bbolt file, so a connector can serve
// them again without re-fetching. Cached documents are public data; the
// store never holds key material.
package docstore

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"go.etcd.io/bbolt"
)

var bucketDocuments = []byte("documents")

// Record is one cached document.
type Record struct {
	URI       string    `cbor:"1,keyasint"`
	Body      []byte    `cbor:"2,keyasint"`
	FetchedAt time.Time `cbor:"3,keyasint"`
	// ServerFP is the fingerprint of the pinned certificate the document
	// was fetched under, hex-encoded. Empty for plain-http fetches.
	ServerFP string `cbor:"4,keyasint,omitempty"`
}

// Store is a bbolt-backed document cache. Safe for concurrent use.
type Store struct {
	db *bbolt.DB
}

// Open opens or creates the cache file at path.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("docstore: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketDocuments)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("docstore: create bucket: %w", err)
	}
	return &Store{db: db}, nil
}

// Put stores a record, replacing any previous record for the same URI.
func (s *Store) Put(rec Record) error {
	if rec.URI == "" {
		return fmt.Errorf("docstore: record has no URI")
	}
	data, err := cbor.Marshal(rec)
	if err != nil {
		return fmt.Errorf("docstore: encode record: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketDocuments).Put([]byte(rec.URI), data)
	})
}

// Get returns the cached record for uri, or nil when none exists.
func (s *Store) Get(uri string) (*Record, error) {
	var rec *Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketDocuments).Get([]byte(uri))
		if data == nil {
			return nil
		}
		var r Record
		if err := cbor.Unmarshal(data, &r); err != nil {
			return fmt.Errorf("docstore: decode record: %w", err)
		}
		rec = &r
		return nil
	})
	return rec, err
}

// Delete removes the cached record for uri, if present.
func (s *Store) Delete(uri string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketDocuments).Delete([]byte(uri))
	})
}

// URIs lists the URIs of all cached documents.
func (s *Store) URIs() ([]string, error) {
	var uris []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketDocuments).ForEach(func(k, _ []byte) error {
			uris = append(uris, string(k))
			return nil
		})
	})
	return uris, err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
