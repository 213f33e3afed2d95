// Package store provides the dual-store index: a bbolt-backed relational
// metadata store (files, chunks, symbols) and a bleve-backed full-text
// index over chunk content, kept consistent by committing the metadata
// transaction before the text-index batch on every mutation.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/blevesearch/bleve/v2"
	bolt "go.etcd.io/bbolt"
)

// Bucket names.
var (
	BucketFiles       = []byte("files")
	BucketChunks      = []byte("chunks")
	BucketSymbols     = []byte("symbols")
	BucketFileChunks  = []byte("file_chunks")  // path -> []chunk id
	BucketFileSymbols = []byte("file_symbols") // path -> []symbol id
	BucketSymbolNames = []byte("symbol_names") // name -> []symbol id
	BucketMeta        = []byte("meta")
)

// Store is the combined metadata + text-index store. The Indexer is the
// sole writer; Search and Code IO read through it concurrently.
type Store struct {
	db         *bolt.DB
	text       bleve.Index
	textPath   string
	metaDBPath string
}

// Open opens (or creates) the bbolt database at metaDBPath and the bleve
// index directory at textIndexPath, running schema migrations and
// mapping-hash checks as needed.
func Open(metaDBPath, textIndexPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(metaDBPath), 0o755); err != nil {
		return nil, fmt.Errorf("store: create metadata dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(textIndexPath), 0o755); err != nil {
		return nil, fmt.Errorf("store: create text index dir: %w", err)
	}

	db, err := bolt.Open(metaDBPath, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("store: open metadata db: %w", err)
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
		return nil, fmt.Errorf("store: init buckets: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: schema migration: %w", err)
	}

	idx, err := openOrCreateTextIndex(textIndexPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: open text index: %w", err)
	}

	s := &Store{db: db, text: idx, textPath: textIndexPath, metaDBPath: metaDBPath}

	if err := s.ensureTextMapping(); err != nil {
		idx.Close()
		db.Close()
		return nil, fmt.Errorf("store: text mapping check: %w", err)
	}

	return s, nil
}

// Close releases both underlying stores.
func (s *Store) Close() error {
	var err error
	if s.text != nil {
		if cerr := s.text.Close(); cerr != nil {
			err = cerr
		}
	}
	if s.db != nil {
		if cerr := s.db.Close(); cerr != nil {
			err = cerr
		}
	}
	return err
}

// TextIndex exposes the underlying bleve index for the search executor.
func (s *Store) TextIndex() bleve.Index {
	return s.text
}
