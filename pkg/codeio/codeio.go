// Package codeio implements budgeted, continuation-aware reads of indexed
// file content (by line range or by symbol) and chunked, precondition-gated
// line-range writes with server-side write-session buffering.
package codeio

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/flashgrep/flashgrep/pkg/indexer"
	"github.com/flashgrep/flashgrep/pkg/pathnorm"
	"github.com/flashgrep/flashgrep/pkg/scanner"
	"github.com/flashgrep/flashgrep/pkg/store"
)

// ErrInvalidParams marks a request rejected before any file access.
var ErrInvalidParams = errors.New("codeio: invalid params")

// ErrNotIndexed marks a symbol-mode read that resolved to nothing.
var ErrNotIndexed = errors.New("codeio: not indexed")

// ErrPreconditionFailed marks a write whose precondition didn't hold.
var ErrPreconditionFailed = errors.New("codeio: precondition failed")

// ErrPayloadTooLarge marks a replacement exceeding MaxWriteReplacementBytes.
var ErrPayloadTooLarge = errors.New("codeio: payload too large")

// Size bounds, fixed per the original's own safety module.
const (
	MaxReadBytes             = 192 * 1024
	MaxWriteReplacementBytes = 128 * 1024
)

// DefaultSymbolContextLines is the number of lines of context returned
// around a resolved symbol when the caller doesn't specify one.
const DefaultSymbolContextLines = 20

// WriteSessionTTL bounds how long an incomplete chunked write session is
// held before the background sweep evicts it.
const WriteSessionTTL = 5 * time.Minute

// MetadataLevel selects how much annotation a read response carries.
type MetadataLevel string

const (
	MetadataMinimal  MetadataLevel = "minimal"
	MetadataStandard MetadataLevel = "standard"
)

// ReadRequest describes one read_code call. Exactly one of FilePath or
// SymbolName must be set.
type ReadRequest struct {
	FilePath              string
	SymbolName            string
	StartLine             int // slice mode, 1-indexed; 0 means "from the top"
	EndLine               int // slice mode; 0 means "to the end"
	ContinuationStartLine int // overrides StartLine when > 0
	SymbolContextLines    int
	MaxLines              int
	MaxBytes              int
	MaxTokens             int
	MetadataLevel         MetadataLevel
}

// Continuation reports where a follow-up read should resume.
type Continuation struct {
	ContinuationStartLine int  `json:"continuation_start_line,omitempty"`
	ChunkIndex            int  `json:"chunk_index,omitempty"`
	Completed             bool `json:"completed"`
}

// AppliedLimits reports which budgets bound a response and how much of
// each was consumed.
type AppliedLimits struct {
	MaxLines       int `json:"max_lines"`
	MaxBytes       int `json:"max_bytes"`
	MaxTokens      int `json:"max_tokens"`
	ServerMaxBytes int `json:"server_max_bytes"`
	ConsumedLines  int `json:"consumed_lines"`
	ConsumedBytes  int `json:"consumed_bytes"`
	ConsumedTokens int `json:"consumed_tokens"`
}

// Match is one resolved read target with its own bounded content and
// continuation state. Slice mode always produces exactly one; symbol mode
// produces one per ambiguous definition — callers are never handed a
// single arbitrarily-chosen match when more than one symbol shares a name.
type Match struct {
	FilePath              string               `json:"file_path"`
	StartLine             int                  `json:"start_line"`
	EndLine               int                  `json:"end_line"`
	Content               string               `json:"content"`
	TotalLinesAvailable   int                  `json:"total_lines_available"`
	Truncated             bool                 `json:"truncated"`
	ContinuationStartLine int                  `json:"continuation_start_line,omitempty"` // 0 means no continuation
	AppliedLimits         AppliedLimits        `json:"applied_limits"`
	Language              string               `json:"language,omitempty"`
	Mtime                 int64                `json:"mtime,omitempty"`
	Symbols               []store.SymbolRecord `json:"symbols,omitempty"`
}

// ReadResult is the response to a read_code call.
type ReadResult struct {
	Mode         string // "slice" or "symbol"
	SymbolName   string
	Matches      []Match
	Continuation Continuation // Completed iff every match is fully read
}

// Reader serves read_code against the metadata store.
type Reader struct {
	Store *store.Store
}

// NewReader constructs a Reader.
func NewReader(s *store.Store) *Reader {
	return &Reader{Store: s}
}

// Read resolves req's target(s), applies budgets to each independently,
// and returns the bounded windows plus continuation metadata. Symbol mode
// never picks one arbitrarily among ambiguous matches — every definition
// sharing the name comes back, each with its own range.
func (r *Reader) Read(req ReadRequest) (*ReadResult, error) {
	if req.FilePath != "" && req.SymbolName != "" {
		return nil, fmt.Errorf("%w: provide either file_path or symbol_name, not both", ErrInvalidParams)
	}
	if req.FilePath == "" && req.SymbolName == "" {
		return nil, fmt.Errorf("%w: missing read target", ErrInvalidParams)
	}
	if req.MaxBytes < 0 || req.MaxLines < 0 || req.MaxTokens < 0 {
		return nil, fmt.Errorf("%w: budgets must be non-negative", ErrInvalidParams)
	}
	if req.MaxBytes > MaxReadBytes {
		return nil, fmt.Errorf("%w: max_bytes %d exceeds server limit %d", ErrInvalidParams, req.MaxBytes, MaxReadBytes)
	}
	level := req.MetadataLevel
	if level == "" {
		level = MetadataStandard
	}
	if level != MetadataMinimal && level != MetadataStandard {
		return nil, fmt.Errorf("%w: unknown metadata_level %q", ErrInvalidParams, level)
	}

	if req.SymbolName != "" {
		symbols := r.Store.FindSymbol(req.SymbolName)
		if len(symbols) == 0 {
			return nil, fmt.Errorf("%w: symbol %q not found", ErrNotIndexed, req.SymbolName)
		}
		context := req.SymbolContextLines
		if context == 0 {
			context = DefaultSymbolContextLines
		}

		matches := make([]Match, 0, len(symbols))
		completed := true
		for _, sym := range symbols {
			start := sym.Line - context
			if start < 1 {
				start = 1
			}
			end := sym.Line + context
			if req.ContinuationStartLine > 0 {
				start = req.ContinuationStartLine
			}
			m, err := r.readRange(sym.Path, start, end, level, req.MaxLines, req.MaxBytes, req.MaxTokens)
			if err != nil {
				return nil, err
			}
			if m.Truncated {
				completed = false
			}
			matches = append(matches, *m)
		}
		return &ReadResult{Mode: "symbol", SymbolName: req.SymbolName, Matches: matches, Continuation: Continuation{Completed: completed}}, nil
	}

	startLine := req.StartLine
	if startLine == 0 {
		startLine = 1
	}
	if req.ContinuationStartLine > 0 {
		startLine = req.ContinuationStartLine
	}
	m, err := r.readRange(req.FilePath, startLine, req.EndLine, level, req.MaxLines, req.MaxBytes, req.MaxTokens)
	if err != nil {
		return nil, err
	}
	return &ReadResult{Mode: "slice", Matches: []Match{*m}, Continuation: Continuation{ContinuationStartLine: m.ContinuationStartLine, Completed: !m.Truncated}}, nil
}

// readRange reads filePath (a store key, repo-relative) and bounds
// [startLine, endLine] (0 endLine means "to the end") by the given budgets.
func (r *Reader) readRange(filePath string, startLine, endLine int, level MetadataLevel, maxLines, maxBytes, maxTokens int) (*Match, error) {
	if startLine < 1 {
		return nil, fmt.Errorf("%w: start_line must be >= 1", ErrInvalidParams)
	}

	f, ok := r.Store.GetFile(filePath)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not indexed", ErrNotIndexed, filePath)
	}

	lines, err := readFileLines(f.AbsPath)
	if err != nil {
		return nil, err
	}
	total := len(lines)

	if total == 0 {
		return &Match{FilePath: filePath, StartLine: 1, EndLine: 0, Language: f.Language, Mtime: f.Mtime}, nil
	}
	if startLine > total {
		return nil, fmt.Errorf("%w: start_line %d exceeds file line count %d", ErrInvalidParams, startLine, total)
	}
	if endLine == 0 || endLine > total {
		endLine = total
	}
	if endLine < startLine {
		return nil, fmt.Errorf("%w: end_line %d is before start_line %d", ErrInvalidParams, endLine, startLine)
	}

	window := lines[startLine-1 : endLine]
	bounded := applyBudgets(window, startLine, maxLines, maxBytes, maxTokens)

	m := &Match{
		FilePath:              filePath,
		Content:               strings.Join(bounded.lines, "\n"),
		StartLine:             bounded.firstLine,
		EndLine:               bounded.lastLine,
		TotalLinesAvailable:   total,
		Truncated:             bounded.truncated,
		ContinuationStartLine: bounded.nextStartLine,
		AppliedLimits: AppliedLimits{
			MaxLines:       maxLines,
			MaxBytes:       maxBytes,
			MaxTokens:      maxTokens,
			ServerMaxBytes: MaxReadBytes,
			ConsumedLines:  bounded.consumedLines,
			ConsumedBytes:  bounded.consumedBytes,
			ConsumedTokens: bounded.consumedTokens,
		},
	}

	if level == MetadataStandard {
		m.Language = f.Language
		m.Mtime = f.Mtime
		m.Symbols = filterSymbolsInRange(r.Store.GetSymbolsForFile(filePath), bounded.firstLine, bounded.lastLine)
	}

	return m, nil
}

type boundedWindow struct {
	lines         []string
	firstLine     int
	lastLine      int
	consumedLines int
	consumedBytes int
	consumedTokens int
	truncated     bool
	nextStartLine int
}

// applyBudgets walks window (whose first element is line `start`) including
// lines until the tightest of max_lines/max_bytes/max_tokens would be
// exceeded. max_tokens is estimated as ceil(bytes/4).
func applyBudgets(window []string, start, maxLines, maxBytes, maxTokens int) boundedWindow {
	if maxBytes <= 0 {
		maxBytes = MaxReadBytes
	}

	var included []string
	consumedBytes := 0
	for _, line := range window {
		sep := 0
		if len(included) > 0 {
			sep = 1
		}
		nextBytes := consumedBytes + len(line) + sep
		nextLines := len(included) + 1
		nextTokens := estimateTokens(nextBytes)

		if maxLines > 0 && nextLines > maxLines {
			break
		}
		if nextBytes > maxBytes {
			break
		}
		if maxTokens > 0 && nextTokens > maxTokens {
			break
		}
		included = append(included, line)
		consumedBytes = nextBytes
	}

	if len(included) == 0 && len(window) > 0 {
		// Even the first line alone exceeds a budget — return it anyway so
		// the caller always makes forward progress; truncation is still
		// reported below by comparing included lines against the window size.
		included = window[:1]
		consumedBytes = len(window[0])
	}

	truncated := len(included) < len(window)
	next := 0
	if truncated {
		next = start + len(included)
	}

	return boundedWindow{
		lines:          included,
		firstLine:      start,
		lastLine:       start + len(included) - 1,
		consumedLines:  len(included),
		consumedBytes:  consumedBytes,
		consumedTokens: estimateTokens(consumedBytes),
		truncated:      truncated,
		nextStartLine:  next,
	}
}

func estimateTokens(bytes int) int {
	return (bytes + 3) / 4
}

func filterSymbolsInRange(symbols []store.SymbolRecord, start, end int) []store.SymbolRecord {
	var out []store.SymbolRecord
	for _, s := range symbols {
		if s.Line >= start && s.Line <= end {
			out = append(out, s)
		}
	}
	return out
}

func readFileLines(absPath string) ([]string, error) {
	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("codeio: read %s: %w", absPath, err)
	}
	content := string(data)
	if content == "" {
		return nil, nil
	}
	content = strings.TrimSuffix(content, "\n")
	return strings.Split(content, "\n"), nil
}

// Precondition gates a write against the file's state before it is
// applied — none, any, or all of the three fields may be set.
type Precondition struct {
	ExpectedFileHash       string
	ExpectedStartLineText  string
	ExpectedEndLineText    string
}

// Mismatch describes one failed precondition field.
type Mismatch struct {
	Field    string `json:"field"`
	Line     int    `json:"line,omitempty"` // 0 when not line-scoped
	Expected string `json:"expected"`
	Observed string `json:"observed"`
}

// WriteRequest describes one write_code call, whole or chunked.
type WriteRequest struct {
	FilePath       string
	StartLine      int
	EndLine        int
	Replacement    string
	Precondition   *Precondition
	ContinuationID string
	ChunkIndex     int
	IsFinalChunk   bool
}

// WriteResult is the response to a write_code call.
type WriteResult struct {
	OK               bool
	FilePath         string
	StartLine        int
	EndLine          int
	ReplacedLines    int
	NewLineCount     int
	FileHashBefore   string
	FileHashAfter    string
	Mismatches       []Mismatch
	MaxAllowedBytes  int
	ObservedBytes    int
	ChunkingGuidance string
	Continuation     Continuation
}

type pendingWrite struct {
	filePath      string
	startLine     int
	endLine       int
	fileHashBefore string
	hadTrailingNL bool
	accumulated   strings.Builder
	nextChunkIndex int
	lastTouched   time.Time
}

// Writer applies line-range writes and re-indexes the affected file, with
// an in-process buffer for multi-chunk oversized writes.
type Writer struct {
	idx *indexer.Indexer

	mu       sync.Mutex
	sessions map[string]*pendingWrite

	stop     chan struct{}
	stopOnce sync.Once
}

// NewWriter constructs a Writer backed by idx for re-indexing after a
// successful apply, and starts its session-sweep goroutine.
func NewWriter(idx *indexer.Indexer) *Writer {
	w := &Writer{
		idx:      idx,
		sessions: make(map[string]*pendingWrite),
		stop:     make(chan struct{}),
	}
	go w.sweepLoop()
	return w
}

// Close stops the background sweep goroutine.
func (w *Writer) Close() {
	w.stopOnce.Do(func() { close(w.stop) })
}

func (w *Writer) sweepLoop() {
	ticker := time.NewTicker(WriteSessionTTL / 5)
	defer ticker.Stop()
	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			w.sweep(time.Now())
		}
	}
}

func (w *Writer) sweep(now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for id, p := range w.sessions {
		if now.Sub(p.lastTouched) > WriteSessionTTL {
			delete(w.sessions, id)
		}
	}
}

// Write validates req, applies preconditions, and either applies the write
// immediately (no continuation_id) or buffers/finalizes a chunked write.
func (w *Writer) Write(req WriteRequest) (*WriteResult, error) {
	if req.FilePath == "" {
		return nil, fmt.Errorf("%w: file_path is required", ErrInvalidParams)
	}
	if req.StartLine < 1 || req.EndLine < 1 || req.StartLine > req.EndLine {
		return nil, fmt.Errorf("%w: start_line and end_line must be >= 1 and start_line <= end_line", ErrInvalidParams)
	}

	if req.ContinuationID != "" {
		return w.writeChunked(req)
	}

	observed := len(req.Replacement)
	if observed > MaxWriteReplacementBytes {
		return &WriteResult{
			OK:               false,
			FilePath:         req.FilePath,
			ObservedBytes:    observed,
			MaxAllowedBytes:  MaxWriteReplacementBytes,
			ChunkingGuidance: chunkingGuidance(MaxWriteReplacementBytes),
		}, ErrPayloadTooLarge
	}

	original, err := os.ReadFile(req.FilePath)
	if err != nil {
		return nil, fmt.Errorf("codeio: read %s: %w", req.FilePath, err)
	}
	hadTrailingNL := strings.HasSuffix(string(original), "\n")
	lines := splitLines(string(original))
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: cannot apply a line-range write to an empty file", ErrInvalidParams)
	}
	if req.EndLine > len(lines) {
		return nil, fmt.Errorf("%w: end_line %d exceeds file line count %d", ErrInvalidParams, req.EndLine, len(lines))
	}

	hashBefore := hashContent(original)
	if mismatches := checkPreconditions(req.Precondition, lines, hashBefore, req.StartLine, req.EndLine); len(mismatches) > 0 {
		return &WriteResult{OK: false, FilePath: req.FilePath, Mismatches: mismatches}, ErrPreconditionFailed
	}

	newContent := applyReplacement(lines, req.StartLine, req.EndLine, req.Replacement, hadTrailingNL)
	if err := os.WriteFile(req.FilePath, []byte(newContent), 0o644); err != nil {
		return nil, fmt.Errorf("codeio: write %s: %w", req.FilePath, err)
	}

	replacementLines := splitReplacement(req.Replacement)
	res := &WriteResult{
		OK:             true,
		FilePath:       req.FilePath,
		StartLine:      req.StartLine,
		EndLine:        req.EndLine,
		ReplacedLines:  req.EndLine - req.StartLine + 1,
		NewLineCount:   len(replacementLines),
		FileHashBefore: hashBefore,
		FileHashAfter:  hashContent([]byte(newContent)),
		Continuation:   Continuation{Completed: true},
	}

	if err := w.reindex(req.FilePath); err != nil {
		return res, fmt.Errorf("codeio: reindex %s after write: %w", req.FilePath, err)
	}
	return res, nil
}

func (w *Writer) writeChunked(req WriteRequest) (*WriteResult, error) {
	observed := len(req.Replacement)
	if observed > MaxWriteReplacementBytes {
		return &WriteResult{
			OK:               false,
			FilePath:         req.FilePath,
			ObservedBytes:    observed,
			MaxAllowedBytes:  MaxWriteReplacementBytes,
			ChunkingGuidance: chunkingGuidance(MaxWriteReplacementBytes),
		}, ErrPayloadTooLarge
	}

	w.mu.Lock()
	p, exists := w.sessions[req.ContinuationID]
	if req.ChunkIndex == 0 {
		original, err := os.ReadFile(req.FilePath)
		if err != nil {
			w.mu.Unlock()
			return nil, fmt.Errorf("codeio: read %s: %w", req.FilePath, err)
		}
		hadTrailingNL := strings.HasSuffix(string(original), "\n")
		lines := splitLines(string(original))
		if len(lines) == 0 {
			w.mu.Unlock()
			return nil, fmt.Errorf("%w: cannot apply a line-range write to an empty file", ErrInvalidParams)
		}
		if req.EndLine > len(lines) {
			w.mu.Unlock()
			return nil, fmt.Errorf("%w: end_line %d exceeds file line count %d", ErrInvalidParams, req.EndLine, len(lines))
		}
		hashBefore := hashContent(original)
		if mismatches := checkPreconditions(req.Precondition, lines, hashBefore, req.StartLine, req.EndLine); len(mismatches) > 0 {
			w.mu.Unlock()
			return &WriteResult{OK: false, FilePath: req.FilePath, Mismatches: mismatches}, ErrPreconditionFailed
		}
		p = &pendingWrite{
			filePath:       req.FilePath,
			startLine:      req.StartLine,
			endLine:        req.EndLine,
			fileHashBefore: hashBefore,
			hadTrailingNL:  hadTrailingNL,
		}
		w.sessions[req.ContinuationID] = p
	} else if !exists || p.filePath != req.FilePath || p.startLine != req.StartLine || p.endLine != req.EndLine || p.nextChunkIndex != req.ChunkIndex {
		w.mu.Unlock()
		return nil, fmt.Errorf("%w: missing or mismatched write continuation session; restart with chunk_index=0", ErrInvalidParams)
	}

	p.accumulated.WriteString(req.Replacement)
	p.nextChunkIndex = req.ChunkIndex + 1
	p.lastTouched = time.Now()

	if !req.IsFinalChunk {
		w.mu.Unlock()
		return &WriteResult{
			OK:           true,
			FilePath:     req.FilePath,
			Continuation: Continuation{ChunkIndex: req.ChunkIndex, Completed: false},
		}, nil
	}

	accumulated := p.accumulated.String()
	startLine, endLine, hashBefore, hadTrailingNL := p.startLine, p.endLine, p.fileHashBefore, p.hadTrailingNL
	delete(w.sessions, req.ContinuationID)
	w.mu.Unlock()

	original, err := os.ReadFile(req.FilePath)
	if err != nil {
		return nil, fmt.Errorf("codeio: read %s: %w", req.FilePath, err)
	}
	lines := splitLines(string(original))
	newContent := applyReplacement(lines, startLine, endLine, accumulated, hadTrailingNL)
	if err := os.WriteFile(req.FilePath, []byte(newContent), 0o644); err != nil {
		return nil, fmt.Errorf("codeio: write %s: %w", req.FilePath, err)
	}

	replacementLines := splitReplacement(accumulated)
	res := &WriteResult{
		OK:             true,
		FilePath:       req.FilePath,
		StartLine:      startLine,
		EndLine:        endLine,
		ReplacedLines:  endLine - startLine + 1,
		NewLineCount:   len(replacementLines),
		FileHashBefore: hashBefore,
		FileHashAfter:  hashContent([]byte(newContent)),
		Continuation:   Continuation{ChunkIndex: req.ChunkIndex, Completed: true},
	}

	if err := w.reindex(req.FilePath); err != nil {
		return res, fmt.Errorf("codeio: reindex %s after write: %w", req.FilePath, err)
	}
	return res, nil
}

// NewContinuationID mints a server-side continuation id for a client that
// omits one on the first chunk of a write.
func NewContinuationID() string {
	return ulid.Make().String()
}

// reindex re-chunks and re-commits the file at absPath. IndexFile records
// the file's size, mtime and short content hash in file-state, and the
// watcher skips its own debounced event for this same change when the file
// still matches that entry, so the edit is not indexed a second time.
func (w *Writer) reindex(absPath string) error {
	abs, err := pathnorm.Canonical(absPath)
	if err != nil {
		abs = absPath
	}
	rel, err := pathnorm.Rel(w.idx.Root, abs)
	if err != nil {
		return fmt.Errorf("codeio: %s is outside the indexed root: %w", absPath, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return err
	}
	return w.idx.IndexFile(scanner.File{
		AbsPath: abs,
		RelPath: rel,
		Size:    info.Size(),
		ModTime: info.ModTime().Unix(),
		Ext:     strings.TrimPrefix(extOf(rel), "."),
	})
}

func extOf(rel string) string {
	idx := strings.LastIndex(rel, ".")
	if idx < 0 {
		return ""
	}
	return rel[idx:]
}

func checkPreconditions(p *Precondition, lines []string, currentHash string, startLine, endLine int) []Mismatch {
	if p == nil {
		return nil
	}
	var mismatches []Mismatch
	if p.ExpectedFileHash != "" && p.ExpectedFileHash != currentHash {
		mismatches = append(mismatches, Mismatch{Field: "expected_file_hash", Expected: p.ExpectedFileHash, Observed: currentHash})
	}
	if p.ExpectedStartLineText != "" {
		actual := lineAt(lines, startLine)
		if p.ExpectedStartLineText != actual {
			mismatches = append(mismatches, Mismatch{Field: "expected_start_line_text", Line: startLine, Expected: p.ExpectedStartLineText, Observed: actual})
		}
	}
	if p.ExpectedEndLineText != "" {
		actual := lineAt(lines, endLine)
		if p.ExpectedEndLineText != actual {
			mismatches = append(mismatches, Mismatch{Field: "expected_end_line_text", Line: endLine, Expected: p.ExpectedEndLineText, Observed: actual})
		}
	}
	return mismatches
}

func lineAt(lines []string, n int) string {
	if n < 1 || n > len(lines) {
		return ""
	}
	return lines[n-1]
}

func applyReplacement(lines []string, startLine, endLine int, replacement string, hadTrailingNL bool) string {
	replacementLines := splitReplacement(replacement)
	out := make([]string, 0, len(lines)-(endLine-startLine+1)+len(replacementLines))
	out = append(out, lines[:startLine-1]...)
	out = append(out, replacementLines...)
	out = append(out, lines[endLine:]...)
	content := strings.Join(out, "\n")
	if hadTrailingNL {
		content += "\n"
	}
	return content
}

func splitReplacement(replacement string) []string {
	if replacement == "" {
		return nil
	}
	return strings.Split(replacement, "\n")
}

func splitLines(content string) []string {
	if content == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(content, "\n"), "\n")
}

func hashContent(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func chunkingGuidance(maxBytes int) string {
	return fmt.Sprintf("retry with smaller chunks; keep each write under %d bytes and use continuation_id/chunk_index/is_final_chunk for the rest", maxBytes)
}
