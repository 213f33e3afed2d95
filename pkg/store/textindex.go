package store

import (
	"encoding/json"
	"log"
	"os"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/token/edgengram"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"
	bolt "go.etcd.io/bbolt"
)

var storeLog = log.New(os.Stderr, "[flashgrep:store] ", log.Ltime)

// ChunkDoc is the bleve document shape for one indexed chunk. Field names
// are stable since they're part of the on-disk mapping.
type ChunkDoc struct {
	Path          string `json:"path"`
	StartLine     int    `json:"start_line"`
	EndLine       int    `json:"end_line"`
	Content       string `json:"content"`
	SymbolTokens  string `json:"symbol_tokens"`
	Depth         int    `json:"depth"`
	Mtime         int64  `json:"mtime"`
}

func openOrCreateTextIndex(path string) (bleve.Index, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createTextIndex(path)
	}
	idx, err := bleve.Open(path)
	if err == nil {
		return idx, nil
	}
	storeLog.Printf("text index corrupted at %s (%v), rebuilding", path, err)
	if rmErr := os.RemoveAll(path); rmErr != nil {
		return nil, rmErr
	}
	return createTextIndex(path)
}

func createTextIndex(path string) (bleve.Index, error) {
	m, err := buildChunkIndexMapping()
	if err != nil {
		return nil, err
	}
	return bleve.New(path, m)
}

func buildChunkIndexMapping() (mapping.IndexMapping, error) {
	im := bleve.NewIndexMapping()

	if err := im.AddCustomAnalyzer("standard_lower", map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     unicode.Name,
		"token_filters": []string{lowercase.Name},
	}); err != nil {
		return nil, err
	}

	if err := im.AddCustomTokenFilter("edge_ngram_filter", map[string]interface{}{
		"type": edgengram.Name,
		"min":  2.0,
		"max":  15.0,
	}); err != nil {
		return nil, err
	}
	if err := im.AddCustomAnalyzer("edge_ngram", map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     unicode.Name,
		"token_filters": []string{lowercase.Name, "edge_ngram_filter"},
	}); err != nil {
		return nil, err
	}

	chunkMapping := bleve.NewDocumentMapping()

	content := bleve.NewTextFieldMapping()
	content.Analyzer = "standard_lower"
	content.Store = true
	chunkMapping.AddFieldMappingsAt("content", content)

	symbolTokens := bleve.NewTextFieldMapping()
	symbolTokens.Analyzer = "edge_ngram"
	symbolTokens.Store = false
	chunkMapping.AddFieldMappingsAt("symbol_tokens", symbolTokens)

	path := bleve.NewTextFieldMapping()
	path.Analyzer = keyword.Name
	path.Store = true
	chunkMapping.AddFieldMappingsAt("path", path)

	numeric := bleve.NewNumericFieldMapping()
	numeric.Store = true
	chunkMapping.AddFieldMappingsAt("start_line", numeric)
	chunkMapping.AddFieldMappingsAt("end_line", numeric)
	chunkMapping.AddFieldMappingsAt("depth", numeric)
	chunkMapping.AddFieldMappingsAt("mtime", numeric)

	im.AddDocumentMapping("chunk", chunkMapping)
	im.DefaultMapping = chunkMapping

	return im, nil
}

// ensureTextMapping rebuilds the text index from the bbolt chunk records
// when the mapping definition has changed since the index was created.
func (s *Store) ensureTextMapping() error {
	m, err := buildChunkIndexMapping()
	if err != nil {
		return err
	}
	hash := MappingHash(m)

	var stored string
	s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(BucketMeta)
		if data := b.Get([]byte("text_mapping_hash")); data != nil {
			stored = string(data)
		}
		return nil
	})

	if hash == stored {
		return nil
	}
	if stored != "" {
		storeLog.Printf("text index mapping changed, rebuilding from metadata store")
	}

	s.text.Close()
	os.RemoveAll(s.textPath)
	idx, err := createTextIndex(s.textPath)
	if err != nil {
		return err
	}
	s.text = idx

	err = s.db.View(func(tx *bolt.Tx) error {
		symbolsByPath := make(map[string][]SymbolRecord)
		if sb := tx.Bucket(BucketSymbols); sb != nil {
			sb.ForEach(func(_, v []byte) error {
				var sym SymbolRecord
				if err := json.Unmarshal(v, &sym); err == nil {
					symbolsByPath[sym.Path] = append(symbolsByPath[sym.Path], sym)
				}
				return nil
			})
		}

		b := tx.Bucket(BucketChunks)
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var chunk ChunkRecord
			if unmarshalErr := json.Unmarshal(v, &chunk); unmarshalErr != nil {
				continue
			}
			doc := chunkDocFromRecord(chunk, 0, symbolTokensForChunk(chunk, symbolsByPath[chunk.Path]))
			if err := s.text.Index(string(k), doc); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(BucketMeta).Put([]byte("text_mapping_hash"), []byte(hash))
	})
}

func chunkDocFromRecord(c ChunkRecord, mtime int64, symbolTokens string) ChunkDoc {
	depth := 0
	for _, r := range c.Path {
		if r == '/' {
			depth++
		}
	}
	return ChunkDoc{
		Path:         c.Path,
		StartLine:    c.StartLine,
		EndLine:      c.EndLine,
		Content:      c.Content,
		SymbolTokens: symbolTokens,
		Depth:        depth,
		Mtime:        mtime,
	}
}

// symbolTokensForChunk joins the names of every symbol whose line falls
// within c's range — these feed the edge_ngram-analyzed symbol_tokens
// field so a partial symbol name can match via prefix search.
func symbolTokensForChunk(c ChunkRecord, symbols []SymbolRecord) string {
	var names []string
	for _, sym := range symbols {
		if sym.Line >= c.StartLine && sym.Line <= c.EndLine {
			names = append(names, sym.Name)
		}
	}
	return strings.Join(names, " ")
}
