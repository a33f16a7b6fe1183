package state

import (
	"sync"

	"go-lora-manager/internal/loading"
	"go-lora-manager/internal/models"
	"go-lora-manager/internal/notify"
	"go-lora-manager/internal/scroller"
	"go-lora-manager/internal/storage"

	log "github.com/sirupsen/logrus"
)

// Storage keys persisted per page.
func SortKey(p models.PageType) string            { return string(p) + "_sort" }
func ActiveFolderKey(p models.PageType) string    { return string(p) + "_activeFolder" }
func FiltersKey(p models.PageType) string         { return string(p) + "_filters" }
func SearchPrefsKey(p models.PageType) string     { return string(p) + "_search_prefs" }
func PreviewVersionsKey(p models.PageType) string { return string(p) + "_preview_versions" }

const FolderTagsCollapsedKey = "folderTagsCollapsed"

// Session keys set by the recipe page to filter the lora page by hash.
const (
	FilterLoraHashKey   = "recipe_to_lora_filterLoraHash"
	FilterLoraHashesKey = "recipe_to_lora_filterLoraHashes"
	FilterRecipeNameKey = "filterRecipeName"
)

// Context is everything a page's components share.
type Context struct {
	Page     *PageState
	Scroller *scroller.Scroller
	Storage  *storage.Helpers
	Notifier notify.Notifier
	Loading  loading.Indicator
}

// NewContext builds a context for one page and restores its persisted preview versions.
func NewContext(pageType models.PageType, pageSize int, store *storage.Helpers, n notify.Notifier, ind loading.Indicator) *Context {
	c := &Context{
		Page:     NewPageState(pageType, pageSize),
		Scroller: scroller.New(),
		Storage:  store,
		Notifier: n,
		Loading:  ind,
	}
	var versions map[string]int64
	if ok, err := store.Local.Get(PreviewVersionsKey(pageType), &versions); err != nil {
		log.WithError(err).Warnf("Ignoring unreadable preview versions for %s", pageType)
	} else if ok {
		c.Page.LoadPreviewVersions(versions)
	}
	return c
}

// SavePreviewVersions persists the page's preview version map.
func (c *Context) SavePreviewVersions() error {
	return c.Storage.Local.Set(PreviewVersionsKey(c.Page.PageType()), c.Page.PreviewVersions())
}

// Registry hands out one Context per page type.
type Registry struct {
	mu       sync.Mutex
	pageSize int
	storage  *storage.Helpers
	notifier notify.Notifier
	loading  loading.Indicator
	contexts map[models.PageType]*Context
}

func NewRegistry(pageSize int, store *storage.Helpers, n notify.Notifier, ind loading.Indicator) *Registry {
	return &Registry{
		pageSize: pageSize,
		storage:  store,
		notifier: n,
		loading:  ind,
		contexts: make(map[models.PageType]*Context),
	}
}

func (r *Registry) Context(pageType models.PageType) *Context {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.contexts[pageType]; ok {
		return c
	}
	c := NewContext(pageType, r.pageSize, r.storage, r.notifier, r.loading)
	r.contexts[pageType] = c
	return c
}
