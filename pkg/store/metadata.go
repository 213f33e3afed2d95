package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/oklog/ulid/v2"
	bolt "go.etcd.io/bbolt"
)

// ErrNotFound is returned when a lookup by key finds nothing.
var ErrNotFound = errors.New("store: not found")

// ApplyFileUpdate atomically replaces all chunk and symbol records for
// file.Path and upserts the file record, then syncs the text index to
// match. The bbolt transaction commits before the bleve batch executes —
// if the batch fails, the metadata store is ahead of the text index for
// this path, which is self-healing on the next successful ApplyFileUpdate.
func (s *Store) ApplyFileUpdate(file FileRecord, chunks []ChunkRecord, symbols []SymbolRecord) error {
	var oldChunkIDs, oldSymbolIDs []string

	err := s.db.Update(func(tx *bolt.Tx) error {
		oldChunkIDs = readIDList(tx, BucketFileChunks, file.Path)
		oldSymbolIDs = readIDList(tx, BucketFileSymbols, file.Path)

		if err := deleteChunkRecords(tx, oldChunkIDs); err != nil {
			return err
		}
		if err := removeSymbolNameRefs(tx, oldSymbolIDs); err != nil {
			return err
		}
		if err := deleteSymbolRecords(tx, oldSymbolIDs); err != nil {
			return err
		}

		fb := tx.Bucket(BucketFiles)
		data, err := json.Marshal(file)
		if err != nil {
			return err
		}
		if err := fb.Put([]byte(file.Path), data); err != nil {
			return err
		}

		newChunkIDs := make([]string, len(chunks))
		for i := range chunks {
			if chunks[i].ID == "" {
				chunks[i].ID = ulid.Make().String()
			}
			chunks[i].Path = file.Path
			newChunkIDs[i] = chunks[i].ID
			data, err := json.Marshal(chunks[i])
			if err != nil {
				return err
			}
			if err := tx.Bucket(BucketChunks).Put([]byte(chunks[i].ID), data); err != nil {
				return err
			}
		}
		if err := putIDList(tx, BucketFileChunks, file.Path, newChunkIDs); err != nil {
			return err
		}

		newSymbolIDs := make([]string, len(symbols))
		for i := range symbols {
			if symbols[i].ID == "" {
				symbols[i].ID = ulid.Make().String()
			}
			symbols[i].Path = file.Path
			newSymbolIDs[i] = symbols[i].ID
			data, err := json.Marshal(symbols[i])
			if err != nil {
				return err
			}
			if err := tx.Bucket(BucketSymbols).Put([]byte(symbols[i].ID), data); err != nil {
				return err
			}
			if err := appendToIndex(tx, BucketSymbolNames, symbols[i].Name, symbols[i].ID); err != nil {
				return err
			}
		}
		return putIDList(tx, BucketFileSymbols, file.Path, newSymbolIDs)
	})
	if err != nil {
		return fmt.Errorf("store: apply file update for %s: %w", file.Path, err)
	}

	batch := s.text.NewBatch()
	for _, id := range oldChunkIDs {
		batch.Delete(id)
	}
	for _, c := range chunks {
		batch.Index(c.ID, chunkDocFromRecord(c, file.Mtime, symbolTokensForChunk(c, symbols)))
	}
	if err := s.text.Batch(batch); err != nil {
		return fmt.Errorf("store: text index batch for %s: %w", file.Path, err)
	}
	return nil
}

// DeleteFile removes the file record and all its chunks and symbols from
// both stores.
func (s *Store) DeleteFile(path string) error {
	var chunkIDs, symbolIDs []string
	err := s.db.Update(func(tx *bolt.Tx) error {
		chunkIDs = readIDList(tx, BucketFileChunks, path)
		symbolIDs = readIDList(tx, BucketFileSymbols, path)

		if err := deleteChunkRecords(tx, chunkIDs); err != nil {
			return err
		}
		if err := removeSymbolNameRefs(tx, symbolIDs); err != nil {
			return err
		}
		if err := deleteSymbolRecords(tx, symbolIDs); err != nil {
			return err
		}
		if err := tx.Bucket(BucketFileChunks).Delete([]byte(path)); err != nil {
			return err
		}
		if err := tx.Bucket(BucketFileSymbols).Delete([]byte(path)); err != nil {
			return err
		}
		return tx.Bucket(BucketFiles).Delete([]byte(path))
	})
	if err != nil {
		return fmt.Errorf("store: delete file %s: %w", path, err)
	}

	batch := s.text.NewBatch()
	for _, id := range chunkIDs {
		batch.Delete(id)
	}
	return s.text.Batch(batch)
}

// BulkPrune removes every path in paths from both stores. Idempotent —
// paths with no existing records are silently skipped.
func (s *Store) BulkPrune(paths []string) (removed int, err error) {
	for _, p := range paths {
		if _, ok := s.GetFile(p); !ok {
			continue
		}
		if err := s.DeleteFile(p); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// ClearAll wipes both stores entirely.
func (s *Store) ClearAll() error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{BucketFiles, BucketChunks, BucketSymbols, BucketFileChunks, BucketFileSymbols, BucketSymbolNames} {
			bucket := tx.Bucket(b)
			c := bucket.Cursor()
			for k, _ := c.First(); k != nil; k, _ = c.Next() {
				if err := bucket.Delete(k); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.text.Close()
	if err := os.RemoveAll(s.textPath); err != nil {
		return err
	}
	idx, err := createTextIndex(s.textPath)
	if err != nil {
		return err
	}
	s.text = idx
	return nil
}

// GetFile returns the file record for path, if present.
func (s *Store) GetFile(path string) (FileRecord, bool) {
	var rec FileRecord
	found := false
	s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(BucketFiles).Get([]byte(path))
		if data == nil {
			return nil
		}
		if err := json.Unmarshal(data, &rec); err == nil {
			found = true
		}
		return nil
	})
	return rec, found
}

// ListFiles returns every file record, optionally restricted to paths with
// the given prefix (empty prefix returns all).
func (s *Store) ListFiles(prefix string) []FileRecord {
	var out []FileRecord
	s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(BucketFiles).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if prefix != "" && !hasPrefix(string(k), prefix) {
				continue
			}
			var rec FileRecord
			if err := json.Unmarshal(v, &rec); err == nil {
				out = append(out, rec)
			}
		}
		return nil
	})
	return out
}

// GetChunksForFile returns every chunk of path, ordered by start line.
func (s *Store) GetChunksForFile(path string) []ChunkRecord {
	var out []ChunkRecord
	s.db.View(func(tx *bolt.Tx) error {
		ids := readIDList(tx, BucketFileChunks, path)
		b := tx.Bucket(BucketChunks)
		for _, id := range ids {
			data := b.Get([]byte(id))
			if data == nil {
				continue
			}
			var c ChunkRecord
			if err := json.Unmarshal(data, &c); err == nil {
				out = append(out, c)
			}
		}
		return nil
	})
	sortChunksByStart(out)
	return out
}

// GetSymbolsForFile returns every symbol recorded for path.
func (s *Store) GetSymbolsForFile(path string) []SymbolRecord {
	var out []SymbolRecord
	s.db.View(func(tx *bolt.Tx) error {
		ids := readIDList(tx, BucketFileSymbols, path)
		b := tx.Bucket(BucketSymbols)
		for _, id := range ids {
			data := b.Get([]byte(id))
			if data == nil {
				continue
			}
			var sym SymbolRecord
			if err := json.Unmarshal(data, &sym); err == nil {
				out = append(out, sym)
			}
		}
		return nil
	})
	return out
}

// FindSymbol returns every symbol record matching name, across all files —
// the spec requires returning all ambiguous matches, never picking one
// arbitrarily.
func (s *Store) FindSymbol(name string) []SymbolRecord {
	var out []SymbolRecord
	s.db.View(func(tx *bolt.Tx) error {
		ids := readIDList(tx, BucketSymbolNames, name)
		b := tx.Bucket(BucketSymbols)
		for _, id := range ids {
			data := b.Get([]byte(id))
			if data == nil {
				continue
			}
			var sym SymbolRecord
			if err := json.Unmarshal(data, &sym); err == nil {
				out = append(out, sym)
			}
		}
		return nil
	})
	return out
}

// Stats returns file/chunk/symbol counts.
func (s *Store) Stats() Stats {
	var st Stats
	s.db.View(func(tx *bolt.Tx) error {
		st.Files = tx.Bucket(BucketFiles).Stats().KeyN
		st.Chunks = tx.Bucket(BucketChunks).Stats().KeyN
		st.Symbols = tx.Bucket(BucketSymbols).Stats().KeyN
		return nil
	})
	return st
}

// --- helpers ---

func readIDList(tx *bolt.Tx, bucket []byte, key string) []string {
	data := tx.Bucket(bucket).Get([]byte(key))
	if data == nil {
		return nil
	}
	var ids []string
	json.Unmarshal(data, &ids)
	return ids
}

func putIDList(tx *bolt.Tx, bucket []byte, key string, ids []string) error {
	if len(ids) == 0 {
		return tx.Bucket(bucket).Delete([]byte(key))
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return tx.Bucket(bucket).Put([]byte(key), data)
}

func appendToIndex(tx *bolt.Tx, bucket []byte, key, id string) error {
	ids := readIDList(tx, bucket, key)
	ids = append(ids, id)
	return putIDList(tx, bucket, key, ids)
}

func removeSymbolNameRefs(tx *bolt.Tx, symbolIDs []string) error {
	if len(symbolIDs) == 0 {
		return nil
	}
	b := tx.Bucket(BucketSymbols)
	removeSet := make(map[string]bool, len(symbolIDs))
	for _, id := range symbolIDs {
		removeSet[id] = true
	}
	names := make(map[string]bool)
	for _, id := range symbolIDs {
		data := b.Get([]byte(id))
		if data == nil {
			continue
		}
		var sym SymbolRecord
		if err := json.Unmarshal(data, &sym); err == nil {
			names[sym.Name] = true
		}
	}
	nameIdx := tx.Bucket(BucketSymbolNames)
	for name := range names {
		ids := readIDList(tx, BucketSymbolNames, name)
		kept := ids[:0:0]
		for _, id := range ids {
			if !removeSet[id] {
				kept = append(kept, id)
			}
		}
		if len(kept) == 0 {
			nameIdx.Delete([]byte(name))
			continue
		}
		data, err := json.Marshal(kept)
		if err != nil {
			return err
		}
		if err := nameIdx.Put([]byte(name), data); err != nil {
			return err
		}
	}
	return nil
}

func deleteChunkRecords(tx *bolt.Tx, ids []string) error {
	b := tx.Bucket(BucketChunks)
	for _, id := range ids {
		if err := b.Delete([]byte(id)); err != nil {
			return err
		}
	}
	return nil
}

func deleteSymbolRecords(tx *bolt.Tx, ids []string) error {
	b := tx.Bucket(BucketSymbols)
	for _, id := range ids {
		if err := b.Delete([]byte(id)); err != nil {
			return err
		}
	}
	return nil
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func sortChunksByStart(chunks []ChunkRecord) {
	for i := 1; i < len(chunks); i++ {
		for j := i; j > 0 && chunks[j-1].StartLine > chunks[j].StartLine; j-- {
			chunks[j-1], chunks[j] = chunks[j], chunks[j-1]
		}
	}
}
