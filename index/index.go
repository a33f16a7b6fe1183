// Package index keeps a local full-text index of model listings so they can be
// searched offline with the bleve query string syntax.
package index

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"go-lora-manager/internal/models"

	"github.com/blevesearch/bleve/v2"
	log "github.com/sirupsen/logrus"
)

const defaultIndexPath = "lora-manager.bleve"

// Item is the indexed form of a model. Fields are searchable by their JSON names,
// e.g. '+baseModel:"SDXL 1.0"' or '+tags:anime'.
type Item struct {
	ID           string   `json:"id"` // file path
	Type         string   `json:"type"`
	Name         string   `json:"name"`
	FileName     string   `json:"fileName"`
	Folder       string   `json:"folder,omitempty"`
	BaseModel    string   `json:"baseModel,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	TrainedWords []string `json:"trainedWords,omitempty"`
	Notes        string   `json:"notes,omitempty"`
	Favorite     bool     `json:"favorite"`
	FileSize     float64  `json:"fileSize"`
}

// FromModel converts a listing entry of type mt.
func FromModel(mt models.ModelType, m models.ModelItem) Item {
	name := m.ModelName
	if name == "" {
		name = m.FileName
	}
	return Item{
		ID:           m.FilePath,
		Type:         string(mt),
		Name:         name,
		FileName:     m.FileName,
		Folder:       m.Folder,
		BaseModel:    m.BaseModel,
		Tags:         m.Tags,
		TrainedWords: m.TrainedWords(),
		Notes:        m.Notes,
		Favorite:     m.Favorite,
		FileSize:     float64(m.FileSize),
	}
}

// OpenOrCreateIndex opens an existing Bleve index or creates a new one if it doesn't exist.
func OpenOrCreateIndex(indexPath string) (bleve.Index, error) {
	if indexPath == "" {
		indexPath = defaultIndexPath
	}

	index, err := bleve.Open(indexPath)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		log.Infof("Creating new index at: %s", indexPath)
		index, err = bleve.New(indexPath, bleve.NewIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("creating index %s: %w", indexPath, err)
		}
		return index, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening index %s: %w", indexPath, err)
	}
	log.Debugf("Opened existing index at: %s", indexPath)
	return index, nil
}

// OpenMem returns an index that lives only in memory.
func OpenMem() (bleve.Index, error) {
	return bleve.NewMemOnly(bleve.NewIndexMapping())
}

// IndexModels adds or replaces every item in one batch.
func IndexModels(index bleve.Index, mt models.ModelType, items []models.ModelItem) error {
	batch := index.NewBatch()
	if err := addModels(batch, mt, items); err != nil {
		return err
	}
	if err := index.Batch(batch); err != nil {
		return fmt.Errorf("writing index batch: %w", err)
	}
	log.Debugf("Indexed %d %s items", batch.Size(), mt)
	return nil
}

func addModels(batch *bleve.Batch, mt models.ModelType, items []models.ModelItem) error {
	for _, m := range items {
		if m.FilePath == "" {
			continue
		}
		if err := batch.Index(m.FilePath, FromModel(mt, m)); err != nil {
			return fmt.Errorf("indexing %s: %w", m.FilePath, err)
		}
	}
	return nil
}

// ReplaceModels makes items the complete set of indexed entries of type mt: entries
// of that type missing from items are removed, entries of other types are kept. It
// returns the number of removed entries.
func ReplaceModels(index bleve.Index, mt models.ModelType, items []models.ModelItem) (int, error) {
	keep := make(map[string]bool, len(items))
	for _, m := range items {
		keep[m.FilePath] = true
	}
	stale, err := idsOfType(index, mt)
	if err != nil {
		return 0, err
	}

	batch := index.NewBatch()
	removed := 0
	for _, id := range stale {
		if !keep[id] {
			batch.Delete(id)
			removed++
		}
	}
	if err := addModels(batch, mt, items); err != nil {
		return 0, err
	}
	if err := index.Batch(batch); err != nil {
		return 0, fmt.Errorf("writing index batch: %w", err)
	}
	log.Debugf("Reindexed %d %s items, removed %d", len(items), mt, removed)
	return removed, nil
}

const scanPageSize = 500

func idsOfType(index bleve.Index, mt models.ModelType) ([]string, error) {
	q := bleve.NewTermQuery(string(mt))
	q.SetField("type")
	var ids []string
	for from := 0; ; from += scanPageSize {
		res, err := index.Search(bleve.NewSearchRequestOptions(q, scanPageSize, from, false))
		if err != nil {
			return nil, fmt.Errorf("listing indexed %s entries: %w", mt, err)
		}
		for _, h := range res.Hits {
			ids = append(ids, h.ID)
		}
		if len(res.Hits) < scanPageSize {
			return ids, nil
		}
	}
}

// RemoveModel drops a single entry, e.g. after a delete.
func RemoveModel(index bleve.Index, filePath string) error {
	return index.Delete(filePath)
}

// Hit is one search match.
type Hit struct {
	FilePath  string
	Name      string
	BaseModel string
	Score     float64
}

// SearchIndex runs a query string search and returns at most limit hits.
func SearchIndex(index bleve.Index, query string, limit int) ([]Hit, uint64, error) {
	if strings.TrimSpace(query) == "" {
		return nil, 0, errors.New("empty query")
	}
	req := bleve.NewSearchRequestOptions(bleve.NewQueryStringQuery(query), limit, 0, false)
	req.Fields = []string{"name", "baseModel"}
	res, err := index.Search(req)
	if err != nil {
		return nil, 0, fmt.Errorf("searching %q: %w", query, err)
	}
	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hit := Hit{FilePath: h.ID, Score: h.Score}
		hit.Name, _ = h.Fields["name"].(string)
		hit.BaseModel, _ = h.Fields["baseModel"].(string)
		hits = append(hits, hit)
	}
	return hits, res.Total, nil
}

// DeleteIndex removes the index directory.
func DeleteIndex(indexPath string) error {
	if indexPath == "" {
		indexPath = defaultIndexPath
	}
	log.Infof("Deleting index at: %s", indexPath)
	return os.RemoveAll(indexPath)
}
