// Package indexer orchestrates the scan, chunk, symbol-detect, and
// dual-store commit pipeline, and the file-state bookkeeping the watcher
// relies on for offline-change reconciliation.
package indexer

import (
	"context"
	"log"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/flashgrep/flashgrep/pkg/chunk"
	"github.com/flashgrep/flashgrep/pkg/filestate"
	"github.com/flashgrep/flashgrep/pkg/ignore"
	"github.com/flashgrep/flashgrep/pkg/scanner"
	"github.com/flashgrep/flashgrep/pkg/store"
	"github.com/flashgrep/flashgrep/pkg/symbols"
)

var indexLog = log.New(os.Stderr, "[flashgrep:indexer] ", log.Ltime)

// ProgressInterval is the default number of files between progress events
// during a full repository index.
const ProgressInterval = 100

// maxReaders bounds concurrent file reads during IndexRepository — the
// store commit itself stays single-threaded (bbolt only allows one writer).
const maxReaders = 8

// Progress reports periodic status during IndexRepository.
type Progress struct {
	FilesDone  int
	FilesTotal int
	Path       string
}

// Indexer drives the dual store from a repository root.
type Indexer struct {
	Root        string
	Store       *store.Store
	FileState   *filestate.Store
	MaxChunkLines int
}

// New constructs an Indexer. maxChunkLines <= 0 falls back to the package
// default.
func New(root string, st *store.Store, fs *filestate.Store, maxChunkLines int) *Indexer {
	if maxChunkLines <= 0 {
		maxChunkLines = chunk.MaxChunkLines
	}
	return &Indexer{Root: root, Store: st, FileState: fs, MaxChunkLines: maxChunkLines}
}

// IndexFile re-chunks, re-detects symbols for, and commits f. It is the
// single atomic unit of work the watcher and the repository walk both call.
func (idx *Indexer) IndexFile(f scanner.File) error {
	data, err := os.ReadFile(f.AbsPath)
	if err != nil {
		return err
	}
	content := string(data)

	hash, err := filestate.ShortHashFile(f.AbsPath)
	if err != nil {
		return err
	}

	chunks := chunk.Split(content, idx.MaxChunkLines)
	chunkRecords := make([]store.ChunkRecord, len(chunks))
	var symbolRecords []store.SymbolRecord
	for i, c := range chunks {
		chunkRecords[i] = store.ChunkRecord{
			Path:      f.RelPath,
			StartLine: c.StartLine,
			EndLine:   c.EndLine,
			Hash:      c.Hash,
			Content:   c.Content,
		}
		for _, sym := range symbols.Detect(c.Content, c.StartLine) {
			symbolRecords = append(symbolRecords, store.SymbolRecord{
				Path: f.RelPath,
				Line: sym.Line,
				Kind: string(sym.Kind),
				Name: sym.Name,
			})
		}
	}

	fileRecord := store.FileRecord{
		Path:        f.RelPath,
		AbsPath:     f.AbsPath,
		Size:        f.Size,
		Mtime:       f.ModTime,
		ContentHash: hash,
		Extension:   f.Ext,
	}

	if err := idx.Store.ApplyFileUpdate(fileRecord, chunkRecords, symbolRecords); err != nil {
		return err
	}

	idx.FileState.Update(f.RelPath, filestate.Entry{Size: f.Size, Mtime: f.ModTime, Hash: hash})
	return nil
}

// DeleteFile removes path from both stores and from the file-state map.
func (idx *Indexer) DeleteFile(relPath string) error {
	if err := idx.Store.DeleteFile(relPath); err != nil {
		return err
	}
	idx.FileState.Remove(relPath)
	return nil
}

// BulkPrune removes every path in paths from both stores and file-state.
func (idx *Indexer) BulkPrune(paths []string) (int, error) {
	removed, err := idx.Store.BulkPrune(paths)
	if err != nil {
		return removed, err
	}
	for _, p := range paths {
		idx.FileState.Remove(p)
	}
	return removed, nil
}

// ClearAll wipes both stores and the file-state map.
func (idx *Indexer) ClearAll() error {
	if err := idx.Store.ClearAll(); err != nil {
		return err
	}
	for _, p := range idx.FileState.Paths() {
		idx.FileState.Remove(p)
	}
	return idx.FileState.Save()
}

// IndexRepository performs a full scan of Root, diffs against FileState to
// skip unchanged files, commits changed/new files, prunes files that
// disappeared, and reports progress every ProgressInterval files. Reading
// and hashing run with bounded concurrency; commits to the single-writer
// bbolt store are serialized.
func (idx *Indexer) IndexRepository(ctx context.Context, ign *ignore.Matcher, maxFileSize int64, extensions map[string]bool, onProgress func(Progress)) (*scanner.Result, error) {
	res, err := scanner.Scan(scanner.Options{
		Root:        idx.Root,
		Ignore:      ign,
		MaxFileSize: maxFileSize,
		Extensions:  extensions,
	})
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(res.Files))
	for _, f := range res.Files {
		seen[f.RelPath] = true
	}

	toIndex := make([]scanner.File, 0, len(res.Files))
	for _, f := range res.Files {
		hash, hashErr := filestate.ShortHashFile(f.AbsPath)
		if hashErr != nil {
			indexLog.Printf("skipping %s: %v", f.RelPath, hashErr)
			continue
		}
		if idx.FileState.Changed(f.RelPath, f.Size, f.ModTime, hash) {
			toIndex = append(toIndex, f)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxReaders)

	type prepared struct {
		file     scanner.File
		err      error
	}
	results := make(chan prepared, len(toIndex))

	for _, f := range toIndex {
		f := f
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			err := idx.IndexFile(f)
			results <- prepared{file: f, err: err}
			return nil
		})
	}

	done := 0
	go func() {
		g.Wait()
		close(results)
	}()

	for r := range results {
		done++
		if r.err != nil {
			indexLog.Printf("failed to index %s: %v", r.file.RelPath, r.err)
			continue
		}
		if onProgress != nil && done%ProgressInterval == 0 {
			onProgress(Progress{FilesDone: done, FilesTotal: len(toIndex), Path: r.file.RelPath})
		}
	}
	if err := g.Wait(); err != nil && ctx.Err() != nil {
		return res, err
	}

	var stale []string
	for _, p := range idx.FileState.Paths() {
		if !seen[p] {
			stale = append(stale, p)
		}
	}
	if len(stale) > 0 {
		if _, err := idx.BulkPrune(stale); err != nil {
			return res, err
		}
	}

	if onProgress != nil {
		onProgress(Progress{FilesDone: done, FilesTotal: len(toIndex)})
	}

	return res, idx.FileState.Save()
}
