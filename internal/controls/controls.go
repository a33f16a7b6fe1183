// Package controls binds page-level user actions to the page state and the model API
// registered for the page. Preferences are persisted through the storage helpers.
package controls

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go-lora-manager/internal/models"
	"go-lora-manager/internal/state"

	"github.com/lithammer/fuzzysearch/fuzzy"
	log "github.com/sirupsen/logrus"
)

var (
	ErrNoAPI          = errors.New("no API registered for page")
	ErrInvalidSort    = errors.New("invalid sort key")
	ErrFolderNotFound = errors.New("folder not found")
)

// PageAPI is the model-type specific API a page registers after construction.
type PageAPI interface {
	LoadMoreWithVirtualScroll(ctx context.Context, resetPage, updateFolders bool) error
	RefreshModels(ctx context.Context, fullRebuild bool) error
	FetchCivitaiMetadata(ctx context.Context) error
	DownloadModel(ctx context.Context, req models.DownloadRequest) bool
	ToggleBulkMode() bool
	ClearCustomFilter(ctx context.Context) error
}

// Controls drives one page.
type Controls struct {
	pageType models.PageType
	sc       *state.Context
	api      PageAPI
}

// New prepares the controls of a page and restores its persisted preferences into
// the page state.
func New(pageType models.PageType, sc *state.Context) *Controls {
	c := &Controls{pageType: pageType, sc: sc}
	c.restore()
	return c
}

func (c *Controls) restore() {
	local := c.sc.Storage.Local
	page := c.sc.Page

	if sortBy := local.GetString(state.SortKey(c.pageType), ""); sortBy != "" {
		if state.ValidSortKeys[sortBy] {
			page.SetSortBy(sortBy)
		} else {
			log.Warnf("Ignoring stored sort key %q for %s", sortBy, c.pageType)
		}
	}
	page.SetActiveFolder(local.GetString(state.ActiveFolderKey(c.pageType), ""))

	var filters state.Filters
	if ok, err := local.Get(state.FiltersKey(c.pageType), &filters); err != nil {
		log.WithError(err).Warnf("Ignoring stored filters for %s", c.pageType)
	} else if ok {
		page.SetFilters(filters)
	}

	opts := state.DefaultSearchOptions()
	if ok, err := local.Get(state.SearchPrefsKey(c.pageType), &opts); err != nil {
		log.WithError(err).Warnf("Ignoring stored search options for %s", c.pageType)
	} else if ok {
		page.SetSearchOptions(opts)
	}
}

// RegisterAPI binds the model API of the page.
func (c *Controls) RegisterAPI(api PageAPI) {
	c.api = api
}

func (c *Controls) PageType() models.PageType { return c.pageType }

func (c *Controls) requireAPI(op string) (PageAPI, error) {
	if c.api == nil {
		return nil, fmt.Errorf("%w: %s on %s", ErrNoAPI, op, c.pageType)
	}
	return c.api, nil
}

// ResetAndReload goes back to the first page and reloads it.
func (c *Controls) ResetAndReload(ctx context.Context, updateFolders bool) error {
	api, err := c.requireAPI("reload")
	if err != nil {
		return err
	}
	return api.LoadMoreWithVirtualScroll(ctx, true, updateFolders)
}

// RefreshModels rescans the backend and reloads the page with fresh folders.
func (c *Controls) RefreshModels(ctx context.Context, fullRebuild bool) error {
	api, err := c.requireAPI("refresh")
	if err != nil {
		return err
	}
	if err := api.RefreshModels(ctx, fullRebuild); err != nil {
		return err
	}
	return c.ResetAndReload(ctx, true)
}

// FetchFromCivitai runs the bulk metadata fetch and reloads the page.
func (c *Controls) FetchFromCivitai(ctx context.Context) error {
	api, err := c.requireAPI("fetch")
	if err != nil {
		return err
	}
	if err := api.FetchCivitaiMetadata(ctx); err != nil {
		return err
	}
	return c.ResetAndReload(ctx, false)
}

// ShowDownloadModal submits a download and reloads the page when it succeeds.
func (c *Controls) ShowDownloadModal(ctx context.Context, req models.DownloadRequest) (bool, error) {
	api, err := c.requireAPI("download")
	if err != nil {
		return false, err
	}
	if !api.DownloadModel(ctx, req) {
		return false, nil
	}
	return true, c.ResetAndReload(ctx, true)
}

func (c *Controls) ToggleBulkMode() (bool, error) {
	api, err := c.requireAPI("bulk mode")
	if err != nil {
		return false, err
	}
	return api.ToggleBulkMode(), nil
}

func (c *Controls) ClearCustomFilter(ctx context.Context) error {
	api, err := c.requireAPI("clear filter")
	if err != nil {
		return err
	}
	return api.ClearCustomFilter(ctx)
}

// SetSort changes and persists the sort key, then reloads.
func (c *Controls) SetSort(ctx context.Context, sortBy string) error {
	if !state.ValidSortKeys[sortBy] {
		return fmt.Errorf("%w: %q", ErrInvalidSort, sortBy)
	}
	c.sc.Page.SetSortBy(sortBy)
	if err := c.sc.Storage.Local.Set(state.SortKey(c.pageType), sortBy); err != nil {
		return fmt.Errorf("saving sort preference: %w", err)
	}
	return c.ResetAndReload(ctx, false)
}

// ToggleFolder makes folder the active folder, or clears the filter when folder is
// already active. It returns the new active folder.
func (c *Controls) ToggleFolder(ctx context.Context, folder string) (string, error) {
	next := folder
	if c.sc.Page.ActiveFolder() == folder {
		next = ""
	}
	c.sc.Page.SetActiveFolder(next)

	key := state.ActiveFolderKey(c.pageType)
	var err error
	if next == "" {
		err = c.sc.Storage.Local.Remove(key)
	} else {
		err = c.sc.Storage.Local.Set(key, next)
	}
	if err != nil {
		return next, fmt.Errorf("saving active folder: %w", err)
	}
	return next, c.ResetAndReload(ctx, false)
}

// ResolveFolder finds the known folder best matching query: an exact match first,
// then the closest fuzzy match.
func (c *Controls) ResolveFolder(query string) (string, error) {
	folders := c.sc.Page.Folders()
	for _, f := range folders {
		if strings.EqualFold(f, query) {
			return f, nil
		}
	}
	ranks := fuzzy.RankFindFold(query, folders)
	if len(ranks) == 0 {
		return "", fmt.Errorf("%w: %q", ErrFolderNotFound, query)
	}
	sort.Sort(ranks)
	return ranks[0].Target, nil
}

// SetSearch applies a search term. A non-nil opts replaces and persists the search
// options.
func (c *Controls) SetSearch(ctx context.Context, term string, opts *state.SearchOptions) error {
	f := c.sc.Page.Filters()
	f.Search = term
	c.sc.Page.SetFilters(f)
	if opts != nil {
		c.sc.Page.SetSearchOptions(*opts)
		if err := c.sc.Storage.Local.Set(state.SearchPrefsKey(c.pageType), *opts); err != nil {
			return fmt.Errorf("saving search options: %w", err)
		}
	}
	return c.ResetAndReload(ctx, false)
}

// SetFilters replaces the tag and base-model filters and persists them. The search
// term is kept but never persisted.
func (c *Controls) SetFilters(ctx context.Context, tags, baseModels []string) error {
	f := c.sc.Page.Filters()
	f.Tags = tags
	f.BaseModels = baseModels
	c.sc.Page.SetFilters(f)

	stored := f
	stored.Search = ""
	if err := c.sc.Storage.Local.Set(state.FiltersKey(c.pageType), stored); err != nil {
		return fmt.Errorf("saving filters: %w", err)
	}
	return c.ResetAndReload(ctx, false)
}

// ToggleFolderTagsCollapsed flips and persists the collapsed state of the folder tags.
func (c *Controls) ToggleFolderTagsCollapsed() (bool, error) {
	var collapsed bool
	if _, err := c.sc.Storage.Local.Get(state.FolderTagsCollapsedKey, &collapsed); err != nil {
		log.WithError(err).Warn("Ignoring unreadable folder tags state")
	}
	collapsed = !collapsed
	if err := c.sc.Storage.Local.Set(state.FolderTagsCollapsedKey, collapsed); err != nil {
		return collapsed, fmt.Errorf("saving folder tags state: %w", err)
	}
	return collapsed, nil
}
