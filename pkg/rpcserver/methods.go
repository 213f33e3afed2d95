package rpcserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/flashgrep/flashgrep/pkg/bootstrap"
	"github.com/flashgrep/flashgrep/pkg/codeio"
	"github.com/flashgrep/flashgrep/pkg/glob"
	"github.com/flashgrep/flashgrep/pkg/search"
)

// dispatch routes one decoded method to its handler. Every handler returns
// a plain map/struct suitable for direct JSON marshaling — never an error —
// so a failure becomes a structured ok:false result rather than a
// transport-level error.
func (s *Server) dispatch(ctx context.Context, method string, params json.RawMessage) interface{} {
	if bootstrap.IsBootstrapTool(method) {
		return s.handleBootstrap(method, params)
	}

	switch method {
	case "query", "search", "search-in-directory", "search-with-context", "search-by-regex":
		return s.handleQuery(ctx, method, params)
	case "glob":
		return s.handleGlob(params)
	case "get_slice":
		return s.handleGetSlice(params)
	case "get_symbol":
		return s.handleGetSymbol(params)
	case "list_files":
		return s.handleListFiles(params)
	case "stats":
		return s.handleStats()
	case "read_code":
		return s.handleReadCode(params)
	case "write_code":
		return s.handleWriteCode(params)
	default:
		return structuredError(KindInvalidParams, map[string]interface{}{"message": fmt.Sprintf("unknown method %q", method)})
	}
}

func decodeParams(params json.RawMessage, dst interface{}) error {
	if len(params) == 0 {
		return nil
	}
	return json.Unmarshal(params, dst)
}

// resolvePath joins a repo-relative path onto the server's root; an
// already-absolute path is returned unchanged.
func (s *Server) resolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(s.Root, p)
}

// --- bootstrap_skill (+ aliases) ---

type bootstrapParams struct {
	Trigger string `json:"trigger"`
	Force   bool   `json:"force"`
	Compact bool   `json:"compact"`
}

func (s *Server) handleBootstrap(method string, params json.RawMessage) interface{} {
	if s.Bootstrapper == nil {
		return structuredError(KindIOError, map[string]interface{}{"message": "bootstrap is not configured on this server"})
	}
	var p bootstrapParams
	if err := decodeParams(params, &p); err != nil {
		return structuredError(KindInvalidParams, map[string]interface{}{"message": err.Error()})
	}
	trigger := p.Trigger
	if trigger == "" {
		trigger = method
	}

	res, err := s.Bootstrapper.Bootstrap(trigger, p.Force, p.Compact)
	if err != nil {
		return structuredError(KindIOError, map[string]interface{}{"message": err.Error()})
	}
	if !res.OK {
		switch res.Error {
		case "skill_not_found":
			return structuredError(KindSkillNotFound, map[string]interface{}{"message": res.Message, "source_path": res.SourcePath})
		case "skill_unreadable":
			return structuredError(KindSkillUnreadable, map[string]interface{}{"message": res.Message, "source_path": res.SourcePath})
		case "invalid_trigger":
			return structuredError(KindInvalidTrigger, map[string]interface{}{"requested_trigger": res.RequestedTrigger, "allowed": res.Allowed})
		default:
			return structuredError(KindIOError, map[string]interface{}{"message": res.Message})
		}
	}
	return res
}

// --- query ---

type queryParams struct {
	Text          string   `json:"text"`
	Mode          string   `json:"mode"`
	CaseSensitive bool     `json:"case_sensitive"`
	Include       []string `json:"include"`
	Exclude       []string `json:"exclude"`
	Context       int      `json:"context_lines"`
	Limit         int      `json:"limit"`
	Offset        int      `json:"offset"`
	Path          string   `json:"path"` // search-in-directory convenience alias
	Pattern       string   `json:"pattern"`
}

// handleQuery serves query and its convenience aliases (search,
// search-in-directory, search-with-context, search-by-regex), each fixing
// a sensible default for mode/context/include so a caller using the
// shorter name doesn't need to spell out the equivalent query arguments.
func (s *Server) handleQuery(ctx context.Context, method string, params json.RawMessage) interface{} {
	if s.Searcher == nil {
		return structuredError(KindIOError, map[string]interface{}{"message": "search is not configured on this server"})
	}
	var p queryParams
	if err := decodeParams(params, &p); err != nil {
		return structuredError(KindInvalidParams, map[string]interface{}{"message": err.Error()})
	}

	text := p.Text
	if text == "" {
		text = p.Pattern
	}
	mode := search.Mode(p.Mode)
	if mode == "" {
		mode = search.ModeSmart
	}
	include := p.Include
	context := p.Context

	switch method {
	case "search-in-directory":
		if p.Path != "" {
			include = append(include, strings.TrimSuffix(p.Path, "/")+"/**")
		}
	case "search-with-context":
		if context == 0 {
			context = search.SnippetLines
		}
	case "search-by-regex":
		mode = search.ModeRegex
	}

	q := search.Query{
		Text:          text,
		Mode:          mode,
		CaseSensitive: p.CaseSensitive,
		Include:       include,
		Exclude:       p.Exclude,
		ContextLines:  context,
		Limit:         p.Limit,
		Offset:        p.Offset,
	}

	matches, err := s.Searcher.Search(ctx, q)
	if err != nil {
		if errors.Is(err, search.ErrInvalidParams) {
			return structuredError(KindInvalidParams, map[string]interface{}{"message": err.Error()})
		}
		return structuredError(KindIOError, map[string]interface{}{"message": err.Error()})
	}
	return map[string]interface{}{"ok": true, "matches": matches, "total": len(matches)}
}

// --- glob ---

type globParams struct {
	Base           string   `json:"base"`
	Pattern        string   `json:"pattern"`
	Include        []string `json:"include"`
	Exclude        []string `json:"exclude"`
	Extensions     []string `json:"extensions"`
	MaxDepth       int      `json:"max_depth"`
	Recursive      bool     `json:"recursive"`
	IncludeHidden  bool     `json:"include_hidden"`
	FollowSymlinks bool     `json:"follow_symlinks"`
	CaseSensitive  bool     `json:"case_sensitive"`
	SortBy         string   `json:"sort_by"`
	SortOrder      string   `json:"sort_order"`
	Offset         int      `json:"offset"`
	Limit          int      `json:"limit"`
}

func (s *Server) handleGlob(params json.RawMessage) interface{} {
	var p globParams
	if err := decodeParams(params, &p); err != nil {
		return structuredError(KindInvalidParams, map[string]interface{}{"message": err.Error()})
	}
	base := p.Base
	if base == "" {
		base = s.Root
	} else {
		base = s.resolvePath(base)
	}

	exts := make(map[string]bool, len(p.Extensions))
	for _, e := range p.Extensions {
		exts[strings.ToLower(strings.TrimPrefix(e, "."))] = true
	}

	opts := glob.Options{
		Base:           base,
		Pattern:        p.Pattern,
		Include:        p.Include,
		Exclude:        p.Exclude,
		Extensions:     exts,
		MaxDepth:       p.MaxDepth,
		Recursive:      p.Recursive,
		IncludeHidden:  p.IncludeHidden,
		FollowSymlinks: p.FollowSymlinks,
		CaseSensitive:  p.CaseSensitive,
		SortBy:         glob.SortBy(p.SortBy),
		SortOrder:      glob.SortOrder(p.SortOrder),
		Offset:         p.Offset,
		Limit:          p.Limit,
	}

	res, err := glob.Walk(opts)
	if err != nil {
		if errors.Is(err, glob.ErrInvalidParams) {
			return structuredError(KindInvalidParams, map[string]interface{}{"message": err.Error()})
		}
		return structuredError(KindIOError, map[string]interface{}{"message": err.Error()})
	}
	return map[string]interface{}{"ok": true, "entries": res.Entries, "total": res.Total}
}

// --- get_slice / read_code ---

type getSliceParams struct {
	FilePath  string `json:"file_path"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
}

// handleGetSlice is the simple, unbudgeted entry point onto the same read
// path read_code exposes fully — the server's own MaxReadBytes bound still
// applies, callers just don't get to tune it.
func (s *Server) handleGetSlice(params json.RawMessage) interface{} {
	var p getSliceParams
	if err := decodeParams(params, &p); err != nil {
		return structuredError(KindInvalidParams, map[string]interface{}{"message": err.Error()})
	}
	start := p.StartLine
	if start == 0 {
		start = 1
	}
	return s.readCode(codeio.ReadRequest{FilePath: p.FilePath, StartLine: start, EndLine: p.EndLine})
}

type readCodeParams struct {
	FilePath              string `json:"file_path"`
	SymbolName            string `json:"symbol_name"`
	StartLine             int    `json:"start_line"`
	EndLine               int    `json:"end_line"`
	ContinuationStartLine int    `json:"continuation_start_line"`
	SymbolContextLines    int    `json:"symbol_context_lines"`
	MaxLines              int    `json:"max_lines"`
	MaxBytes              int    `json:"max_bytes"`
	MaxTokens             int    `json:"max_tokens"`
	MetadataLevel         string `json:"metadata_level"`
}

func (s *Server) handleReadCode(params json.RawMessage) interface{} {
	var p readCodeParams
	if err := decodeParams(params, &p); err != nil {
		return structuredError(KindInvalidParams, map[string]interface{}{"message": err.Error()})
	}
	return s.readCode(codeio.ReadRequest{
		FilePath:              p.FilePath,
		SymbolName:            p.SymbolName,
		StartLine:             p.StartLine,
		EndLine:               p.EndLine,
		ContinuationStartLine: p.ContinuationStartLine,
		SymbolContextLines:    p.SymbolContextLines,
		MaxLines:              p.MaxLines,
		MaxBytes:              p.MaxBytes,
		MaxTokens:             p.MaxTokens,
		MetadataLevel:         codeio.MetadataLevel(p.MetadataLevel),
	})
}

func (s *Server) readCode(req codeio.ReadRequest) interface{} {
	if s.Reader == nil {
		return structuredError(KindIOError, map[string]interface{}{"message": "read_code is not configured on this server"})
	}
	res, err := s.Reader.Read(req)
	if err != nil {
		switch {
		case errors.Is(err, codeio.ErrInvalidParams):
			return structuredError(KindInvalidParams, map[string]interface{}{"message": err.Error()})
		case errors.Is(err, codeio.ErrNotIndexed):
			return structuredError(KindNotIndexed, map[string]interface{}{"message": err.Error()})
		default:
			return structuredError(KindIOError, map[string]interface{}{"message": err.Error()})
		}
	}
	return map[string]interface{}{
		"ok":           true,
		"mode":         res.Mode,
		"symbol_name":  res.SymbolName,
		"matches":      res.Matches,
		"continuation": res.Continuation,
	}
}

// --- get_symbol ---

type getSymbolParams struct {
	SymbolName         string `json:"symbol_name"`
	SymbolContextLines int    `json:"symbol_context_lines"`
}

func (s *Server) handleGetSymbol(params json.RawMessage) interface{} {
	var p getSymbolParams
	if err := decodeParams(params, &p); err != nil {
		return structuredError(KindInvalidParams, map[string]interface{}{"message": err.Error()})
	}
	if p.SymbolName == "" {
		return structuredError(KindInvalidParams, map[string]interface{}{"message": "symbol_name is required"})
	}
	return s.readCode(codeio.ReadRequest{SymbolName: p.SymbolName, SymbolContextLines: p.SymbolContextLines})
}

// --- list_files ---

type listFilesParams struct {
	Prefix string `json:"prefix"`
}

func (s *Server) handleListFiles(params json.RawMessage) interface{} {
	if s.Indexer == nil {
		return structuredError(KindIOError, map[string]interface{}{"message": "the index is not configured on this server"})
	}
	var p listFilesParams
	if err := decodeParams(params, &p); err != nil {
		return structuredError(KindInvalidParams, map[string]interface{}{"message": err.Error()})
	}
	files := s.Indexer.Store.ListFiles(p.Prefix)
	paths := make([]string, 0, len(files))
	for _, f := range files {
		paths = append(paths, f.Path)
	}
	return map[string]interface{}{"ok": true, "files": paths, "total": len(paths)}
}

// --- stats ---

func (s *Server) handleStats() interface{} {
	if s.Indexer == nil {
		return structuredError(KindIOError, map[string]interface{}{"message": "the index is not configured on this server"})
	}
	st := s.Indexer.Store.Stats()
	result := map[string]interface{}{
		"ok":      true,
		"files":   st.Files,
		"chunks":  st.Chunks,
		"symbols": st.Symbols,
	}
	if s.StatePaths != nil {
		result["index_size_bytes"] = s.StatePaths.SizeBytes()
	}
	return result
}

// --- write_code ---

type preconditionParams struct {
	ExpectedFileHash      string `json:"expected_file_hash"`
	ExpectedStartLineText string `json:"expected_start_line_text"`
	ExpectedEndLineText   string `json:"expected_end_line_text"`
}

type writeCodeParams struct {
	FilePath       string              `json:"file_path"`
	StartLine      int                 `json:"start_line"`
	EndLine        int                 `json:"end_line"`
	Replacement    string              `json:"replacement"`
	Precondition   *preconditionParams `json:"precondition"`
	ContinuationID string              `json:"continuation_id"`
	ChunkIndex     int                 `json:"chunk_index"`
	IsFinalChunk   bool                `json:"is_final_chunk"`
}

func (s *Server) handleWriteCode(params json.RawMessage) interface{} {
	if s.Writer == nil {
		return structuredError(KindIOError, map[string]interface{}{"message": "write_code is not configured on this server"})
	}
	var p writeCodeParams
	if err := decodeParams(params, &p); err != nil {
		return structuredError(KindInvalidParams, map[string]interface{}{"message": err.Error()})
	}

	req := codeio.WriteRequest{
		FilePath:       s.resolvePath(p.FilePath),
		StartLine:      p.StartLine,
		EndLine:        p.EndLine,
		Replacement:    p.Replacement,
		ContinuationID: p.ContinuationID,
		ChunkIndex:     p.ChunkIndex,
		IsFinalChunk:   p.IsFinalChunk,
	}
	if p.Precondition != nil {
		req.Precondition = &codeio.Precondition{
			ExpectedFileHash:      p.Precondition.ExpectedFileHash,
			ExpectedStartLineText: p.Precondition.ExpectedStartLineText,
			ExpectedEndLineText:   p.Precondition.ExpectedEndLineText,
		}
	}

	res, err := s.Writer.Write(req)
	if err != nil {
		switch {
		case errors.Is(err, codeio.ErrInvalidParams):
			return structuredError(KindInvalidParams, map[string]interface{}{"message": err.Error()})
		case errors.Is(err, codeio.ErrPreconditionFailed):
			return structuredError(KindPreconditionFailed, map[string]interface{}{"mismatches": res.Mismatches})
		case errors.Is(err, codeio.ErrPayloadTooLarge):
			return structuredError(KindPayloadTooLarge, map[string]interface{}{
				"operation":      "write_code",
				"observed_bytes": res.ObservedBytes,
				"limit_bytes":    res.MaxAllowedBytes,
				"guidance":       res.ChunkingGuidance,
			})
		default:
			return structuredError(KindIOError, map[string]interface{}{"message": err.Error()})
		}
	}
	return map[string]interface{}{
		"ok":               true,
		"file_path":        res.FilePath,
		"start_line":       res.StartLine,
		"end_line":         res.EndLine,
		"replaced_lines":   res.ReplacedLines,
		"new_line_count":   res.NewLineCount,
		"file_hash_before": res.FileHashBefore,
		"file_hash_after":  res.FileHashAfter,
		"continuation":     res.Continuation,
	}
}
