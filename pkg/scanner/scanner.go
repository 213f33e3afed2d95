// Package scanner performs the recursive repository walk that feeds the
// indexer: ignore filtering, size/extension gating, and binary detection.
package scanner

import (
	"bytes"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/flashgrep/flashgrep/pkg/ignore"
	"github.com/flashgrep/flashgrep/pkg/pathnorm"
)

// BinaryDetectionWindow is the number of leading bytes inspected to decide
// whether a file is binary.
const BinaryDetectionWindow = 8192

// Options configures a scan.
type Options struct {
	Root        string
	Ignore      *ignore.Matcher
	MaxFileSize int64          // bytes; files strictly larger are skipped
	Extensions  map[string]bool // without leading dot, lowercase; nil/empty means allow all
}

// File describes one file accepted by the scan.
type File struct {
	AbsPath  string
	RelPath  string // normalized, forward-slash
	Size     int64
	ModTime  int64 // unix seconds
	Ext      string
}

// Result summarizes a completed scan.
type Result struct {
	Files                 []File
	SkippedBrokenSymlinks int
	SkippedIgnored        int
	SkippedSize           int
	SkippedBinary         int
	SkippedExtension      int
}

// Scan walks Options.Root and returns every file that passes the ignore,
// size, extension, and binary gates, in the order, err is returned.
func Scan(opts Options) (*Result, error) {
	res := &Result{}

	err := filepath.WalkDir(opts.Root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				res.SkippedBrokenSymlinks++
				return nil
			}
			return nil
		}

		rel, relErr := pathnorm.Rel(opts.Root, p)
		if relErr != nil {
			return nil
		}
		if rel == "" {
			return nil // root itself
		}

		isDir := d.IsDir()
		if opts.Ignore != nil && opts.Ignore.ShouldIgnore(rel, isDir) {
			if isDir {
				res.SkippedIgnored++
				return filepath.SkipDir
			}
			res.SkippedIgnored++
			return nil
		}

		if isDir {
			return nil
		}

		info, statErr := d.Info()
		if statErr != nil {
			if os.IsNotExist(statErr) {
				res.SkippedBrokenSymlinks++
			}
			return nil
		}

		// Broken symlink: target does not exist.
		if d.Type()&fs.ModeSymlink != 0 {
			if _, statErr := os.Stat(p); statErr != nil {
				res.SkippedBrokenSymlinks++
				return nil
			}
		}

		ext := extOf(rel)
		if len(opts.Extensions) > 0 && !opts.Extensions[ext] {
			res.SkippedExtension++
			return nil
		}

		if opts.MaxFileSize > 0 && info.Size() > opts.MaxFileSize {
			res.SkippedSize++
			return nil
		}

		if isBinary(p) {
			res.SkippedBinary++
			return nil
		}

		res.Files = append(res.Files, File{
			AbsPath: p,
			RelPath: rel,
			Size:    info.Size(),
			ModTime: info.ModTime().Unix(),
			Ext:     ext,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func extOf(relPath string) string {
	ext := filepath.Ext(relPath)
	if ext == "" {
		return ""
	}
	return ext[1:]
}

// isBinary inspects the first BinaryDetectionWindow bytes of path for a null
// byte or invalid UTF-8, either of which marks the file as binary.
func isBinary(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return true
	}
	defer f.Close()

	buf := make([]byte, BinaryDetectionWindow)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return true
	}
	window := buf[:n]

	if bytes.IndexByte(window, 0) >= 0 {
		return true
	}
	return !utf8.Valid(window)
}
