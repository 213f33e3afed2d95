package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/mapping"
	bolt "go.etcd.io/bbolt"
)

// setupMigrateTestDB creates a fresh bbolt database with all buckets
// initialized, mirroring Open's init sequence.
func setupMigrateTestDB(t *testing.T) (*bolt.DB, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "flashgrep-migrate-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	dbPath := filepath.Join(tmpDir, "test.db")
	db, err := bolt.Open(dbPath, 0o600, nil)
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("failed to open db: %v", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{BucketFiles, BucketChunks, BucketSymbols, BucketFileChunks, BucketFileSymbols, BucketSymbolNames, BucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		os.RemoveAll(tmpDir)
		t.Fatalf("failed to create buckets: %v", err)
	}

	cleanup := func() {
		db.Close()
		os.RemoveAll(tmpDir)
	}
	return db, cleanup
}

func writeSchemaVersion(t *testing.T, db *bolt.DB, version uint64) {
	t.Helper()
	err := db.Update(func(tx *bolt.Tx) error {
		meta := tx.Bucket(BucketMeta)
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, version)
		return meta.Put([]byte("schema_version"), buf)
	})
	if err != nil {
		t.Fatalf("failed to write schema version: %v", err)
	}
}

func TestRunMigrations_FreshDB(t *testing.T) {
	db, cleanup := setupMigrateTestDB(t)
	defer cleanup()

	v, err := GetSchemaVersion(db)
	if err != nil {
		t.Fatalf("GetSchemaVersion: %v", err)
	}
	if v != 0 {
		t.Fatalf("expected version 0 on fresh db, got %d", v)
	}

	if err := RunMigrations(db); err != nil {
		t.Fatalf("RunMigrations: %v", err)
	}

	v, err = GetSchemaVersion(db)
	if err != nil {
		t.Fatalf("GetSchemaVersion: %v", err)
	}
	if v != SchemaVersion {
		t.Errorf("expected version %d after migration, got %d", SchemaVersion, v)
	}
}

func TestRunMigrations_AlreadyCurrent(t *testing.T) {
	db, cleanup := setupMigrateTestDB(t)
	defer cleanup()

	writeSchemaVersion(t, db, SchemaVersion)

	if err := RunMigrations(db); err != nil {
		t.Fatalf("RunMigrations: %v", err)
	}

	v, err := GetSchemaVersion(db)
	if err != nil {
		t.Fatalf("GetSchemaVersion: %v", err)
	}
	if v != SchemaVersion {
		t.Errorf("expected version %d, got %d", SchemaVersion, v)
	}
}

func TestRunMigrations_AppliesPending(t *testing.T) {
	db, cleanup := setupMigrateTestDB(t)
	defer cleanup()

	err := db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(BucketFiles)
		data, _ := json.Marshal(map[string]interface{}{
			"path": "main.go",
			"size": 42,
		})
		return b.Put([]byte("main.go"), data)
	})
	if err != nil {
		t.Fatalf("failed to seed file record: %v", err)
	}

	writeSchemaVersion(t, db, 1)

	origMigrations := migrations
	origVersion := SchemaVersion
	defer func() {
		migrations = origMigrations
		SchemaVersion = origVersion
	}()

	SchemaVersion = 2
	migrations = append(migrations, migration{
		version:     2,
		description: "add language field to files",
		migrate: func(tx *bolt.Tx) error {
			b := tx.Bucket(BucketFiles)
			c := b.Cursor()
			for k, v := c.First(); k != nil; k, v = c.Next() {
				var m map[string]interface{}
				if err := json.Unmarshal(v, &m); err != nil {
					return err
				}
				if _, ok := m["language"]; !ok {
					m["language"] = "unknown"
				}
				data, err := json.Marshal(m)
				if err != nil {
					return err
				}
				if err := b.Put(k, data); err != nil {
					return err
				}
			}
			return nil
		},
	})

	if err := RunMigrations(db); err != nil {
		t.Fatalf("RunMigrations: %v", err)
	}

	v, err := GetSchemaVersion(db)
	if err != nil {
		t.Fatalf("GetSchemaVersion: %v", err)
	}
	if v != 2 {
		t.Errorf("expected version 2, got %d", v)
	}

	err = db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(BucketFiles)
		data := b.Get([]byte("main.go"))
		if data == nil {
			return fmt.Errorf("main.go not found")
		}
		var m map[string]interface{}
		if err := json.Unmarshal(data, &m); err != nil {
			return err
		}
		lang, ok := m["language"]
		if !ok {
			return fmt.Errorf("language field not added")
		}
		if lang != "unknown" {
			return fmt.Errorf("expected language 'unknown', got %v", lang)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("data verification failed: %v", err)
	}
}

func TestRunMigrations_DowngradeError(t *testing.T) {
	db, cleanup := setupMigrateTestDB(t)
	defer cleanup()

	writeSchemaVersion(t, db, SchemaVersion+10)

	err := RunMigrations(db)
	if err == nil {
		t.Fatal("expected error for downgrade, got nil")
	}
}

func TestRunMigrations_PartialFailure(t *testing.T) {
	db, cleanup := setupMigrateTestDB(t)
	defer cleanup()

	writeSchemaVersion(t, db, 1)

	origMigrations := migrations
	origVersion := SchemaVersion
	defer func() {
		migrations = origMigrations
		SchemaVersion = origVersion
	}()

	SchemaVersion = 2
	migrations = append(migrations, migration{
		version:     2,
		description: "intentionally failing migration",
		migrate: func(tx *bolt.Tx) error {
			return fmt.Errorf("simulated failure")
		},
	})

	err := RunMigrations(db)
	if err == nil {
		t.Fatal("expected error from failing migration, got nil")
	}

	v, err := GetSchemaVersion(db)
	if err != nil {
		t.Fatalf("GetSchemaVersion: %v", err)
	}
	if v != 1 {
		t.Errorf("expected version to stay at 1 after failure, got %d", v)
	}
}

func TestGetSchemaVersion_EmptyDB(t *testing.T) {
	db, cleanup := setupMigrateTestDB(t)
	defer cleanup()

	v, err := GetSchemaVersion(db)
	if err != nil {
		t.Fatalf("GetSchemaVersion: %v", err)
	}
	if v != 0 {
		t.Errorf("expected 0 for empty db, got %d", v)
	}
}

func TestMappingHash_Deterministic(t *testing.T) {
	m1, err := buildChunkIndexMapping()
	if err != nil {
		t.Fatalf("buildChunkIndexMapping: %v", err)
	}
	m2, err := buildChunkIndexMapping()
	if err != nil {
		t.Fatalf("buildChunkIndexMapping: %v", err)
	}

	h1 := MappingHash(m1)
	h2 := MappingHash(m2)

	if h1 == "" {
		t.Fatal("hash should not be empty")
	}
	if h1 != h2 {
		t.Errorf("same mapping produced different hashes: %s vs %s", h1, h2)
	}
}

func TestMappingHash_DifferentMappings(t *testing.T) {
	m1, err := buildChunkIndexMapping()
	if err != nil {
		t.Fatalf("buildChunkIndexMapping: %v", err)
	}

	m2 := bleve.NewIndexMapping()
	doc := bleve.NewDocumentMapping()
	f := mapping.NewTextFieldMapping()
	f.Analyzer = keyword.Name
	doc.AddFieldMappingsAt("different_field", f)
	m2.AddDocumentMapping("different", doc)
	m2.DefaultMapping = doc

	h1 := MappingHash(m1)
	h2 := MappingHash(m2)

	if h1 == h2 {
		t.Error("different mappings should produce different hashes")
	}
}
