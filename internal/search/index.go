// Package search provides keyword search over a project's files.
package search

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/docker/go-units"
	"go.uber.org/zap"

	"github.com/ChamsBouzaiene/sensei/internal/workspace"
)

// IndexDirName is the index directory created inside a project directory.
const IndexDirName = ".search.bleve"

// DefaultMaxFileSize is the largest file indexed unless configured otherwise.
const DefaultMaxFileSize = "256KB"

const batchSize = 200

// Hit is one search result.
type Hit struct {
	Path  string  `json:"path"`
	Score float64 `json:"score"`
}

// Stats summarizes one Index call.
type Stats struct {
	Indexed int   `json:"indexed"`
	Skipped int   `json:"skipped"`
	Bytes   int64 `json:"bytes"`
}

// Options configure an Index.
type Options struct {
	// MaxFileSize is a human size such as "256KB" or "1MiB".
	MaxFileSize string
	Logger      *zap.Logger
}

// Index is a bleve index over file contents.
type Index struct {
	index   bleve.Index
	path    string
	maxSize int64
	logger  *zap.Logger
}

// Open creates or opens the index at path. A corrupted index is deleted and
// recreated.
func Open(path string, opts Options) (*Index, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sizeSpec := opts.MaxFileSize
	if sizeSpec == "" {
		sizeSpec = DefaultMaxFileSize
	}
	maxSize, err := units.FromHumanSize(sizeSpec)
	if err != nil {
		return nil, fmt.Errorf("invalid max file size %q: %w", sizeSpec, err)
	}

	index, err := bleve.Open(path)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		index, err = bleve.New(path, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create search index: %w", err)
		}
		logger.Debug("search index created", zap.String("path", path))
	} else if err != nil {
		logger.Warn("search index appears corrupted, recreating", zap.String("path", path), zap.Error(err))
		if index != nil {
			index.Close()
		}
		if err := os.RemoveAll(path); err != nil {
			return nil, fmt.Errorf("failed to remove corrupted index: %w", err)
		}
		index, err = bleve.New(path, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to recreate search index: %w", err)
		}
	}

	return &Index{index: index, path: path, maxSize: maxSize, logger: logger}, nil
}

// OpenForProject opens the index kept in a project directory.
func OpenForProject(projectDir string, opts Options) (*Index, error) {
	return Open(filepath.Join(projectDir, IndexDirName), opts)
}

func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	doc := bleve.NewDocumentMapping()

	pathField := bleve.NewTextFieldMapping()
	pathField.Analyzer = keyword.Name
	pathField.Store = true
	doc.AddFieldMappingsAt("path", pathField)

	nameField := bleve.NewTextFieldMapping()
	nameField.Analyzer = standard.Name
	doc.AddFieldMappingsAt("name", nameField)

	textField := bleve.NewTextFieldMapping()
	textField.Analyzer = standard.Name
	textField.Store = false
	doc.AddFieldMappingsAt("text", textField)

	indexMapping.DefaultMapping = doc
	return indexMapping
}

// Index replaces the indexed documents with the text files of tree, which is
// a scan of root. Binary content and files over the size limit are skipped.
func (x *Index) Index(ctx context.Context, root string, tree []workspace.FileNode) (Stats, error) {
	var stats Stats
	if err := x.clear(); err != nil {
		return stats, err
	}

	batch := x.index.NewBatch()
	for _, rel := range workspace.Files(tree) {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		full := filepath.Join(root, filepath.FromSlash(rel))
		info, err := os.Stat(full)
		if err != nil || info.Size() > x.maxSize {
			stats.Skipped++
			continue
		}
		data, err := os.ReadFile(full)
		if err != nil || !utf8.Valid(data) {
			stats.Skipped++
			continue
		}

		doc := map[string]interface{}{
			"path": rel,
			"name": filepath.Base(rel),
			"text": string(data),
		}
		if err := batch.Index(rel, doc); err != nil {
			return stats, fmt.Errorf("failed to add %s to batch: %w", rel, err)
		}
		stats.Indexed++
		stats.Bytes += info.Size()

		if batch.Size() >= batchSize {
			if err := x.index.Batch(batch); err != nil {
				return stats, fmt.Errorf("failed to index batch: %w", err)
			}
			batch = x.index.NewBatch()
		}
	}
	if batch.Size() > 0 {
		if err := x.index.Batch(batch); err != nil {
			return stats, fmt.Errorf("failed to index batch: %w", err)
		}
	}

	x.logger.Info("project indexed",
		zap.String("root", root),
		zap.Int("files", stats.Indexed),
		zap.Int("skipped", stats.Skipped),
		zap.String("size", units.HumanSize(float64(stats.Bytes))))
	return stats, nil
}

// clear deletes every document.
func (x *Index) clear() error {
	req := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
	req.Size = 1000
	for {
		res, err := x.index.Search(req)
		if err != nil {
			return fmt.Errorf("failed to list indexed files: %w", err)
		}
		if len(res.Hits) == 0 {
			return nil
		}
		batch := x.index.NewBatch()
		for _, hit := range res.Hits {
			batch.Delete(hit.ID)
		}
		if err := x.index.Batch(batch); err != nil {
			return fmt.Errorf("failed to clear index: %w", err)
		}
	}
}

// Search returns the top k files matching query. k <= 0 means 10.
func (x *Index) Search(query string, k int) ([]Hit, error) {
	if k <= 0 {
		k = 10
	}
	text := bleve.NewMatchQuery(query)
	text.SetField("text")
	name := bleve.NewMatchQuery(query)
	name.SetField("name")
	name.SetBoost(2)

	req := bleve.NewSearchRequest(bleve.NewDisjunctionQuery(text, name))
	req.Size = k
	req.Fields = []string{"path"}

	res, err := x.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hit := Hit{Path: h.ID, Score: h.Score}
		if p, ok := h.Fields["path"].(string); ok {
			hit.Path = p
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// Count returns the number of indexed files.
func (x *Index) Count() (uint64, error) {
	return x.index.DocCount()
}

// Close closes the index.
func (x *Index) Close() error {
	return x.index.Close()
}
