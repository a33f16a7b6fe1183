// Package scroller holds the rendered item collection. Every change to what the user
// sees goes through a Scroller.
package scroller

import (
	"sync"

	"go-lora-manager/internal/models"

	log "github.com/sirupsen/logrus"
)

// Scroller is an ordered collection of items keyed by file path.
type Scroller struct {
	mu         sync.RWMutex
	items      []models.ModelItem
	index      map[string]int
	totalItems int
	hasMore    bool
}

func New() *Scroller {
	return &Scroller{index: make(map[string]int)}
}

// RefreshWithData replaces the collection with a fresh first window of data.
func (s *Scroller) RefreshWithData(items []models.ModelItem, totalItems int, hasMore bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append([]models.ModelItem(nil), items...)
	s.totalItems = totalItems
	s.hasMore = hasMore
	s.reindex()
}

// AppendItems adds the next page. Items whose path is already present replace the
// existing entry in place.
func (s *Scroller) AppendItems(items []models.ModelItem, totalItems int, hasMore bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range items {
		if i, ok := s.index[it.FilePath]; ok {
			s.items[i] = it
			continue
		}
		s.index[it.FilePath] = len(s.items)
		s.items = append(s.items, it)
	}
	s.totalItems = totalItems
	s.hasMore = hasMore
}

// RemoveItemByFilePath drops the item for path and reports whether it was present.
func (s *Scroller) RemoveItemByFilePath(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[path]
	if !ok {
		log.WithField("path", path).Debug("Remove requested for item not in scroller")
		return false
	}
	s.items = append(s.items[:i], s.items[i+1:]...)
	if s.totalItems > 0 {
		s.totalItems--
	}
	s.reindex()
	return true
}

// UpdateSingleItem merges fields into the item for path. A new file_path re-keys the
// item unless another item already has that path, in which case nothing changes.
func (s *Scroller) UpdateSingleItem(path string, fields map[string]any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[path]
	if !ok {
		log.WithField("path", path).Debug("Update requested for item not in scroller")
		return false
	}
	item := s.items[i]
	if err := item.Merge(fields); err != nil {
		log.WithError(err).Warnf("Failed to update item %s", path)
		return false
	}
	if item.FilePath != path {
		if _, taken := s.index[item.FilePath]; taken {
			log.WithField("path", path).Warnf("Not re-keying item to %s: path already shown", item.FilePath)
			return false
		}
		s.items[i] = item
		delete(s.index, path)
		s.index[item.FilePath] = i
		return true
	}
	s.items[i] = item
	return true
}

// Item returns a copy of the item for path.
func (s *Scroller) Item(path string) (models.ModelItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[path]
	if !ok {
		return models.ModelItem{}, false
	}
	return s.items[i], true
}

// Items returns a snapshot of the collection in display order.
func (s *Scroller) Items() []models.ModelItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.ModelItem(nil), s.items...)
}

func (s *Scroller) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func (s *Scroller) TotalItems() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totalItems
}

func (s *Scroller) HasMore() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasMore
}

func (s *Scroller) reindex() {
	s.index = make(map[string]int, len(s.items))
	for i, it := range s.items {
		s.index[it.FilePath] = i
	}
}
