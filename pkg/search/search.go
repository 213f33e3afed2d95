// Package search executes smart/literal/regex queries over the text index
// and metadata store, ranks results with a fixed set of signals, and
// returns a deterministic, paginated result window.
package search

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/semaphore"

	"github.com/flashgrep/flashgrep/pkg/store"
)

// ErrInvalidParams marks a request rejected before any index or store
// access — a bad mode, an unparseable regex, or a limit out of range.
var ErrInvalidParams = errors.New("search: invalid params")

// Mode selects the query evaluation strategy.
type Mode string

const (
	ModeSmart   Mode = "smart"
	ModeLiteral Mode = "literal"
	ModeRegex   Mode = "regex"
)

// Defaults and bounds for Query.Limit/ContextLines.
const (
	DefaultLimit = 20
	MaxLimit     = 200
	SnippetLines = 5
)

// Ranking weights, fixed per spec §4.8 — lexical score is used as-is from
// the text index; the rest are additive adjustments bounded so no single
// signal dominates the lexical score for a reasonably close match.
const (
	symbolBoost        = 2.0
	proximityWeight    = 0.5
	recencyWeight      = 0.1
	depthPenaltyWeight = 0.05
)

// overFetchFactor controls how many extra candidates are pulled from the
// text index before post-filter/re-rank narrows them to the requested
// page — post-filtering by include/exclude path patterns happens after
// retrieval, so retrieving exactly `limit` would under-fill pages whenever
// a filter excludes some of the top lexical hits.
const overFetchFactor = 5

// maxConcurrentReaders is the weight of the semaphore taken around each
// candidate's chunk/symbol store reads while scoring. score handles one
// candidate at a time, so at most one slot is held at once.
const maxConcurrentReaders = 8

// Query describes one search request.
type Query struct {
	Text          string
	Mode          Mode
	CaseSensitive bool
	Include       []string
	Exclude       []string
	ContextLines  int
	Limit         int
	Offset        int
}

// Match is one ranked result.
type Match struct {
	Path      string  `json:"path"`
	StartLine int     `json:"start_line"`
	EndLine   int     `json:"end_line"`
	Score     float64 `json:"score"`
	Symbol    string  `json:"symbol,omitempty"` // matched symbol name, if any
	Snippet   string  `json:"snippet,omitempty"` // present when ContextLines > 0
}

// Searcher executes queries against a Store.
type Searcher struct {
	Store *store.Store
}

// New constructs a Searcher.
func New(s *store.Store) *Searcher {
	return &Searcher{Store: s}
}

type candidate struct {
	path      string
	startLine int
	endLine   int
	content   string
	lexical   float64
}

// Search evaluates q and returns the paginated, ranked result window.
func (s *Searcher) Search(ctx context.Context, q Query) ([]Match, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		return nil, fmt.Errorf("%w: limit %d exceeds MAX_LIMIT %d", ErrInvalidParams, limit, MaxLimit)
	}
	if q.Offset < 0 {
		return nil, fmt.Errorf("%w: offset must be non-negative", ErrInvalidParams)
	}

	var re *regexp.Regexp
	if q.Mode == ModeRegex {
		pattern := q.Text
		if !q.CaseSensitive {
			pattern = "(?i)" + pattern
		}
		compiled, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
		}
		re = compiled
	} else if q.Mode != ModeSmart && q.Mode != ModeLiteral {
		return nil, fmt.Errorf("%w: unknown mode %q", ErrInvalidParams, q.Mode)
	}

	candidates, err := s.gatherCandidates(ctx, q, re)
	if err != nil {
		return nil, err
	}

	if q.Mode != ModeRegex {
		candidates = filterByCase(candidates, q.Text, q.CaseSensitive)
	}
	candidates = filterByPath(candidates, q.Include, q.Exclude)
	if len(candidates) == 0 {
		return []Match{}, nil
	}

	matches, err := s.score(ctx, candidates, q)
	if err != nil {
		return nil, err
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		if matches[i].Path != matches[j].Path {
			return matches[i].Path < matches[j].Path
		}
		return matches[i].StartLine < matches[j].StartLine
	})

	return paginate(matches, q.Offset, limit), nil
}

// gatherCandidates retrieves a superset of results for the mode: bleve's
// text index for smart/literal, a direct store scan for regex (the
// pattern is validated above before this is reached, and Go's regexp
// dialect has no faithful bleve equivalent, so regex mode never touches
// the text index at all).
func (s *Searcher) gatherCandidates(ctx context.Context, q Query, re *regexp.Regexp) ([]candidate, error) {
	if q.Mode == ModeRegex {
		return s.scanStore(func(content string) bool { return re.MatchString(content) })
	}
	return s.queryTextIndex(q)
}

func (s *Searcher) scanStore(match func(content string) bool) ([]candidate, error) {
	var out []candidate
	for _, f := range s.Store.ListFiles("") {
		for _, c := range s.Store.GetChunksForFile(f.Path) {
			if match(c.Content) {
				out = append(out, candidate{path: c.Path, startLine: c.StartLine, endLine: c.EndLine, content: c.Content, lexical: 1.0})
			}
		}
	}
	return out, nil
}

func (s *Searcher) queryTextIndex(q Query) ([]candidate, error) {
	fetchSize := q.Limit
	if fetchSize <= 0 {
		fetchSize = DefaultLimit
	}
	fetchSize = (fetchSize + q.Offset) * overFetchFactor
	if fetchSize < overFetchFactor {
		fetchSize = DefaultLimit * overFetchFactor
	}
	if fetchSize > 2000 {
		fetchSize = 2000
	}

	req := buildBleveRequest(q, fetchSize)
	res, err := s.Store.TextIndex().Search(req)
	if err != nil {
		return nil, fmt.Errorf("search: text index query: %w", err)
	}

	out := make([]candidate, 0, len(res.Hits))
	for _, hit := range res.Hits {
		path, _ := hit.Fields["path"].(string)
		content, _ := hit.Fields["content"].(string)
		startLine := intField(hit.Fields["start_line"])
		endLine := intField(hit.Fields["end_line"])
		out = append(out, candidate{path: path, startLine: startLine, endLine: endLine, content: content, lexical: hit.Score})
	}
	return out, nil
}

// buildBleveRequest constructs the text-index query for smart and literal
// modes. Smart uses full query-string syntax against the default field;
// literal uses a phrase match analyzed with the same "standard_lower"
// analyzer the content field is indexed with, so the query text is
// tokenized and lowercased the same way the indexed terms are — a literal
// phrase query analyzed with "keyword" would submit as one case-preserved,
// unsplit token that could never match the indexed terms.
func buildBleveRequest(q Query, size int) *bleve.SearchRequest {
	var bq query.Query
	if q.Mode == ModeSmart {
		bq = bleve.NewQueryStringQuery(q.Text)
	} else {
		phrase := bleve.NewMatchPhraseQuery(q.Text)
		phrase.Analyzer = "standard_lower"
		bq = phrase
	}

	req := bleve.NewSearchRequestOptions(bq, size, 0, false)
	req.Fields = []string{"path", "start_line", "end_line", "content"}
	return req
}

func intField(v interface{}) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}

// filterByCase re-checks smart/literal candidates against the raw query
// text with the requested case sensitivity — the text index itself always
// lowercases (`standard_lower`), so a case-sensitive request has to be
// enforced as a post-filter over the stored content rather than at the
// index-query level.
func filterByCase(cands []candidate, text string, caseSensitive bool) []candidate {
	out := make([]candidate, 0, len(cands))
	if caseSensitive {
		for _, c := range cands {
			if strings.Contains(c.content, text) {
				out = append(out, c)
			}
		}
		return out
	}
	lowerText := strings.ToLower(text)
	for _, c := range cands {
		if strings.Contains(strings.ToLower(c.content), lowerText) {
			out = append(out, c)
		}
	}
	return out
}

// filterByPath drops candidates whose path doesn't satisfy include/exclude
// doublestar patterns, applied before ranking per §4.8.
func filterByPath(cands []candidate, include, exclude []string) []candidate {
	if len(include) == 0 && len(exclude) == 0 {
		return cands
	}
	out := make([]candidate, 0, len(cands))
	for _, c := range cands {
		if len(include) > 0 && !anyMatch(include, c.path) {
			continue
		}
		if len(exclude) > 0 && anyMatch(exclude, c.path) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func anyMatch(patterns []string, path string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, path); ok {
			return true
		}
	}
	return false
}

// score applies the symbol-boost, proximity, recency, and depth-penalty
// signals on top of each candidate's lexical score.
func (s *Searcher) score(ctx context.Context, cands []candidate, q Query) ([]Match, error) {
	terms := tokenize(q.Text)

	var maxMtime int64
	fileMtime := make(map[string]int64, len(cands))
	fileAbsPath := make(map[string]string, len(cands))
	for _, c := range cands {
		if _, ok := fileMtime[c.path]; ok {
			continue
		}
		if f, ok := s.Store.GetFile(c.path); ok {
			fileMtime[c.path] = f.Mtime
			fileAbsPath[c.path] = f.AbsPath
			if f.Mtime > maxMtime {
				maxMtime = f.Mtime
			}
		}
	}

	sem := semaphore.NewWeighted(maxConcurrentReaders)
	matches := make([]Match, len(cands))
	errs := make([]error, len(cands))

	for i := range cands {
		i := i
		if err := sem.Acquire(ctx, 1); err != nil {
			errs[i] = err
			continue
		}
		func() {
			defer sem.Release(1)
			c := cands[i]
			symbolName := s.matchedSymbol(c, terms)
			proximity := proximityScore(c.content, terms) * proximityWeight
			depth := strings.Count(c.path, "/")
			recency := 0.0
			if maxMtime > 0 {
				recency = (float64(fileMtime[c.path]) / float64(maxMtime)) * recencyWeight
			}
			score := c.lexical + proximity + recency - float64(depth)*depthPenaltyWeight
			if symbolName != "" {
				score += symbolBoost
			}
			matches[i] = Match{
				Path:      c.path,
				StartLine: c.startLine,
				EndLine:   c.endLine,
				Score:     score,
				Symbol:    symbolName,
				Snippet:   renderSnippet(fileAbsPath[c.path], c.startLine, c.endLine, c.content, q.ContextLines),
			}
		}()
	}
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return matches, nil
}

func (s *Searcher) matchedSymbol(c candidate, terms []string) string {
	if len(terms) == 0 {
		return ""
	}
	for _, sym := range s.Store.GetSymbolsForFile(c.path) {
		if sym.Line < c.startLine || sym.Line > c.endLine {
			continue
		}
		lower := strings.ToLower(sym.Name)
		for _, t := range terms {
			if lower == t {
				return sym.Name
			}
		}
	}
	return ""
}

func tokenize(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, `"'()[]{}`)
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// proximityScore is the fraction of query terms present anywhere in the
// chunk — the whole chunk (already bounded to MaxChunkLines) stands in for
// the "small line window" since chunks are already small by construction.
func proximityScore(content string, terms []string) float64 {
	if len(terms) == 0 {
		return 0
	}
	lower := strings.ToLower(content)
	found := 0
	for _, t := range terms {
		if strings.Contains(lower, t) {
			found++
		}
	}
	return float64(found) / float64(len(terms))
}

// renderSnippet builds the before/after context window for a match. It
// reads absPath from disk and slices [startLine-1-context, endLine+context]
// the way render_context_preview in the original does, falling back to the
// first SnippetLines lines of the already-fetched chunk content when the
// file can't be read, absPath is empty, or the computed window is empty.
func renderSnippet(absPath string, startLine, endLine int, content string, contextLines int) string {
	if contextLines <= 0 {
		return ""
	}
	if preview := renderContextPreview(absPath, startLine, endLine, contextLines); preview != "" {
		return boundSnippetLines(preview)
	}
	return boundSnippetLines(content)
}

// renderContextPreview reads absPath and returns the lines spanning
// [startLine-1-context, endLine+context] (1-indexed, inclusive), or ""
// if the file can't be read or the window is empty.
func renderContextPreview(absPath string, startLine, endLine, context int) string {
	if absPath == "" {
		return ""
	}
	data, err := os.ReadFile(absPath)
	if err != nil {
		return ""
	}
	text := strings.TrimSuffix(string(data), "\n")
	lines := strings.Split(text, "\n")

	startIdx := startLine - 1 - context
	if startIdx < 0 {
		startIdx = 0
	}
	endIdx := endLine + context
	if endIdx > len(lines) {
		endIdx = len(lines)
	}
	floor := startLine
	if floor > len(lines) {
		floor = len(lines)
	}
	if endIdx < floor {
		endIdx = floor
	}

	if startIdx >= len(lines) || startIdx >= endIdx {
		return ""
	}
	return strings.Join(lines[startIdx:endIdx], "\n")
}

// boundSnippetLines truncates a snippet to at most SnippetLines lines.
func boundSnippetLines(text string) string {
	lines := strings.Split(text, "\n")
	if len(lines) <= SnippetLines {
		return text
	}
	return strings.Join(lines[:SnippetLines], "\n")
}

func paginate(matches []Match, offset, limit int) []Match {
	if offset >= len(matches) {
		return []Match{}
	}
	end := offset + limit
	if end > len(matches) {
		end = len(matches)
	}
	return matches[offset:end]
}
