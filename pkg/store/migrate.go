// Package store provides the dual-store index backing flashgrep.
// This file tracks the on-disk schema version and applies pending
// migrations to the bbolt metadata store before it's handed to callers.
package store

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log"

	"github.com/blevesearch/bleve/v2/mapping"
	bolt "go.etcd.io/bbolt"
)

// SchemaVersion is bumped whenever a migration is appended to migrations.
var SchemaVersion uint64 = 1

// migration is one forward-only schema step, keyed by the version it
// brings the database to.
type migration struct {
	version     uint64
	description string
	migrate     func(tx *bolt.Tx) error
}

// migrations runs in order; a fresh database starts at version 0 and
// walks every step up to SchemaVersion.
var migrations = []migration{
	{version: 1, description: "baseline schema stamp", migrate: func(tx *bolt.Tx) error { return nil }},

	// Example: the extension field was added to FileRecord after v1
	// shipped. A real v2 migration would backfill it for records written
	// before the field existed, deriving it from Path the same way
	// the scanner's file-walk sets it on newly indexed files:
	//
	// {version: 2, description: "backfill extension on existing file records", migrate: func(tx *bolt.Tx) error {
	// 	b := tx.Bucket(BucketFiles)
	// 	c := b.Cursor()
	// 	for k, v := c.First(); k != nil; k, v = c.Next() {
	// 		var rec FileRecord
	// 		if err := json.Unmarshal(v, &rec); err != nil {
	// 			return err
	// 		}
	// 		if rec.Extension != "" {
	// 			continue
	// 		}
	// 		rec.Extension = deriveExtension(rec.Path)
	// 		data, err := json.Marshal(rec)
	// 		if err != nil {
	// 			return err
	// 		}
	// 		if err := b.Put(k, data); err != nil {
	// 			return err
	// 		}
	// 	}
	// 	return nil
	// }},
}

// RunMigrations brings db up to SchemaVersion, applying every pending
// migration in a single transaction. Returns an error if db's stamped
// version is newer than SchemaVersion — this binary is too old to open it.
func RunMigrations(db *bolt.DB) error {
	current, err := GetSchemaVersion(db)
	if err != nil {
		return fmt.Errorf("store: read schema version: %w", err)
	}

	if current > SchemaVersion {
		return fmt.Errorf("store: database schema v%d is newer than this binary's v%d", current, SchemaVersion)
	}
	if current == SchemaVersion {
		return nil
	}

	var pending []migration
	for _, m := range migrations {
		if m.version > current {
			pending = append(pending, m)
		}
	}
	if len(pending) == 0 {
		return setSchemaVersion(db, SchemaVersion)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, m := range pending {
			log.Printf("[flashgrep:store] applying migration v%d: %s", m.version, m.description)
			if err := m.migrate(tx); err != nil {
				return fmt.Errorf("migration v%d (%s): %w", m.version, m.description, err)
			}
		}
		meta := tx.Bucket(BucketMeta)
		if meta == nil {
			return fmt.Errorf("meta bucket missing")
		}
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, SchemaVersion)
		return meta.Put([]byte("schema_version"), buf)
	})
	if err != nil {
		return fmt.Errorf("store: run migrations: %w", err)
	}
	return nil
}

// GetSchemaVersion returns the version stamped in the meta bucket, or 0
// for a fresh database that hasn't been stamped yet.
func GetSchemaVersion(db *bolt.DB) (uint64, error) {
	var version uint64
	err := db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket(BucketMeta)
		if meta == nil {
			return nil
		}
		data := meta.Get([]byte("schema_version"))
		if data == nil {
			return nil
		}
		if len(data) != 8 {
			return fmt.Errorf("corrupt schema_version: want 8 bytes, got %d", len(data))
		}
		version = binary.BigEndian.Uint64(data)
		return nil
	})
	return version, err
}

// setSchemaVersion stamps version into the meta bucket.
func setSchemaVersion(db *bolt.DB, version uint64) error {
	return db.Update(func(tx *bolt.Tx) error {
		meta := tx.Bucket(BucketMeta)
		if meta == nil {
			return fmt.Errorf("meta bucket missing")
		}
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, version)
		return meta.Put([]byte("schema_version"), buf)
	})
}

// MappingHash digests a bleve index mapping so ensureTextMapping can
// detect a mapping change and trigger a rebuild from the metadata store.
func MappingHash(m mapping.IndexMapping) string {
	data, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h)
}
