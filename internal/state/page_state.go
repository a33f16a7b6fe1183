// Package state holds the per-page mutable state and the context object that carries
// it to the API client and page controls.
package state

import (
	"sync"

	"go-lora-manager/internal/models"
)

// Sort keys understood by the listing endpoints.
const (
	SortByName     = "name"
	SortByDate     = "date"
	SortBySize     = "size"
	defaultSortKey = SortByName
)

// ValidSortKeys lists the sort keys accepted by SetSort.
var ValidSortKeys = map[string]bool{
	SortByName: true,
	SortByDate: true,
	SortBySize: true,
}

// Filters narrows the listing.
type Filters struct {
	Search     string   `json:"search,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	BaseModels []string `json:"baseModel,omitempty"`
}

// SearchOptions selects which fields a search term is matched against.
type SearchOptions struct {
	Filename  bool `json:"filename"`
	ModelName bool `json:"modelname"`
	Tags      bool `json:"tags"`
	Recursive bool `json:"recursive"`
}

// DefaultSearchOptions matches the options of a freshly opened page.
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{Filename: true, ModelName: true, Recursive: false}
}

// PageState is the mutable state of one page. All access goes through its methods.
type PageState struct {
	mu sync.Mutex

	pageType           models.PageType
	currentPage        int
	pageSize           int
	sortBy             string
	activeFolder       string
	filters            Filters
	searchOptions      SearchOptions
	showFavoritesOnly  bool
	activeLetterFilter string
	bulkMode           bool
	selected           map[string]bool
	isLoading          bool
	hasMore            bool
	folders            []string
	previewVersions    map[string]int64
}

// NewPageState returns the default state for a page.
func NewPageState(pageType models.PageType, pageSize int) *PageState {
	if pageSize <= 0 {
		pageSize = 20
	}
	return &PageState{
		pageType:        pageType,
		currentPage:     1,
		pageSize:        pageSize,
		sortBy:          defaultSortKey,
		searchOptions:   DefaultSearchOptions(),
		hasMore:         true,
		selected:        make(map[string]bool),
		previewVersions: make(map[string]int64),
	}
}

// Snapshot is a consistent copy of the fields the API client needs to build a query.
type Snapshot struct {
	PageType           models.PageType
	CurrentPage        int
	PageSize           int
	SortBy             string
	ActiveFolder       string
	Filters            Filters
	SearchOptions      SearchOptions
	ShowFavoritesOnly  bool
	ActiveLetterFilter string
	BulkMode           bool
	HasMore            bool
	IsLoading          bool
}

func (p *PageState) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	f := p.filters
	f.Tags = append([]string(nil), p.filters.Tags...)
	f.BaseModels = append([]string(nil), p.filters.BaseModels...)
	return Snapshot{
		PageType:           p.pageType,
		CurrentPage:        p.currentPage,
		PageSize:           p.pageSize,
		SortBy:             p.sortBy,
		ActiveFolder:       p.activeFolder,
		Filters:            f,
		SearchOptions:      p.searchOptions,
		ShowFavoritesOnly:  p.showFavoritesOnly,
		ActiveLetterFilter: p.activeLetterFilter,
		BulkMode:           p.bulkMode,
		HasMore:            p.hasMore,
		IsLoading:          p.isLoading,
	}
}

func (p *PageState) PageType() models.PageType { return p.pageType }

// TryBeginLoading sets isLoading and reports true when no load was in flight.
func (p *PageState) TryBeginLoading() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.isLoading {
		return false
	}
	p.isLoading = true
	return true
}

func (p *PageState) EndLoading() {
	p.mu.Lock()
	p.isLoading = false
	p.mu.Unlock()
}

func (p *PageState) IsLoading() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.isLoading
}

func (p *PageState) CurrentPage() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentPage
}

func (p *PageState) ResetPage() {
	p.mu.Lock()
	p.currentPage = 1
	p.mu.Unlock()
}

// CompletePage records a successful fetch of the current page: hasMore follows the
// result, and the page advances only when the fetch returned items.
func (p *PageState) CompletePage(result models.PageResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hasMore = result.HasMore
	if len(result.Items) > 0 {
		p.currentPage++
	}
}

func (p *PageState) HasMore() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hasMore
}

func (p *PageState) SetPageSize(n int) {
	if n <= 0 {
		return
	}
	p.mu.Lock()
	p.pageSize = n
	p.mu.Unlock()
}

func (p *PageState) SortBy() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sortBy
}

func (p *PageState) SetSortBy(sortBy string) {
	p.mu.Lock()
	p.sortBy = sortBy
	p.mu.Unlock()
}

func (p *PageState) ActiveFolder() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.activeFolder
}

// SetActiveFolder sets the folder filter; the empty string clears it.
func (p *PageState) SetActiveFolder(folder string) {
	p.mu.Lock()
	p.activeFolder = folder
	p.mu.Unlock()
}

func (p *PageState) Filters() Filters {
	return p.Snapshot().Filters
}

func (p *PageState) SetFilters(f Filters) {
	p.mu.Lock()
	p.filters = f
	p.mu.Unlock()
}

func (p *PageState) SearchOptions() SearchOptions {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.searchOptions
}

func (p *PageState) SetSearchOptions(o SearchOptions) {
	p.mu.Lock()
	p.searchOptions = o
	p.mu.Unlock()
}

func (p *PageState) SetShowFavoritesOnly(v bool) {
	p.mu.Lock()
	p.showFavoritesOnly = v
	p.mu.Unlock()
}

func (p *PageState) SetActiveLetterFilter(letter string) {
	p.mu.Lock()
	p.activeLetterFilter = letter
	p.mu.Unlock()
}

// ToggleBulkMode flips bulk selection mode. Leaving bulk mode clears the selection.
func (p *PageState) ToggleBulkMode() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bulkMode = !p.bulkMode
	if !p.bulkMode {
		p.selected = make(map[string]bool)
	}
	return p.bulkMode
}

func (p *PageState) Select(path string, on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if on {
		p.selected[path] = true
		return
	}
	delete(p.selected, path)
}

// Selected returns a copy of the selected paths.
func (p *PageState) Selected() map[string]bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]bool, len(p.selected))
	for k, v := range p.selected {
		out[k] = v
	}
	return out
}

func (p *PageState) Folders() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.folders...)
}

func (p *PageState) SetFolders(folders []string) {
	p.mu.Lock()
	p.folders = append([]string(nil), folders...)
	p.mu.Unlock()
}

// PreviewVersions returns a copy of the preview version map.
func (p *PageState) PreviewVersions() map[string]int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]int64, len(p.previewVersions))
	for k, v := range p.previewVersions {
		out[k] = v
	}
	return out
}

// SetPreviewVersion records a preview replacement and returns the updated map.
func (p *PageState) SetPreviewVersion(path string, version int64) map[string]int64 {
	p.mu.Lock()
	p.previewVersions[path] = version
	p.mu.Unlock()
	return p.PreviewVersions()
}

func (p *PageState) LoadPreviewVersions(versions map[string]int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.previewVersions = make(map[string]int64, len(versions))
	for k, v := range versions {
		p.previewVersions[k] = v
	}
}
