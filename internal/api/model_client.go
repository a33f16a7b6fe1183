package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go-lora-manager/internal/models"
	"go-lora-manager/internal/notify"
	"go-lora-manager/internal/state"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// ModelClient runs the page operations of one model type against the backend. Every
// change to rendered items goes through the context's Scroller.
type ModelClient struct {
	client    *Client
	endpoints Endpoints
	sc        *state.Context

	// Dialer opens the bulk-fetch progress socket. nil uses websocket.DefaultDialer.
	Dialer *websocket.Dialer
	// Now stamps preview versions.
	Now func() time.Time
}

// NewModelClient binds c to a model type and a page context.
func NewModelClient(c *Client, mt models.ModelType, sc *state.Context) (*ModelClient, error) {
	ep, err := EndpointsFor(mt)
	if err != nil {
		return nil, err
	}
	if sc == nil {
		return nil, fmt.Errorf("model client for %s needs a page context", mt)
	}
	return &ModelClient{client: c, endpoints: ep, sc: sc, Now: time.Now}, nil
}

func (m *ModelClient) Endpoints() Endpoints       { return m.endpoints }
func (m *ModelClient) ModelType() models.ModelType { return m.endpoints.ModelType }
func (m *ModelClient) Context() *state.Context     { return m.sc }

func (m *ModelClient) notify(level notify.Level, format string, args ...any) {
	m.sc.Notifier.Notify(level, fmt.Sprintf(format, args...))
}

// listQuery builds the listing parameters for page from the page state.
func (m *ModelClient) listQuery(snap state.Snapshot, page, pageSize int) url.Values {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(pageSize))
	q.Set("sort_by", snap.SortBy)
	if snap.ActiveFolder != "" {
		q.Set("folder", snap.ActiveFolder)
	}
	if snap.ShowFavoritesOnly {
		q.Set("favorites_only", "true")
	}
	if snap.ActiveLetterFilter != "" {
		q.Set("first_letter", snap.ActiveLetterFilter)
	}
	if term := strings.TrimSpace(snap.Filters.Search); term != "" {
		q.Set("search", term)
		q.Set("fuzzy", "true")
		opts := snap.SearchOptions
		q.Set("search_filename", strconv.FormatBool(opts.Filename))
		q.Set("search_modelname", strconv.FormatBool(opts.ModelName))
		q.Set("search_tags", strconv.FormatBool(opts.Tags))
	}
	q.Set("recursive", strconv.FormatBool(snap.SearchOptions.Recursive))
	for _, tag := range snap.Filters.Tags {
		q.Add("tag", tag)
	}
	for _, bm := range snap.Filters.BaseModels {
		q.Add("base_model", bm)
	}
	if m.endpoints.ModelType == models.ModelTypeLora {
		m.addLoraHashFilter(q)
	}
	return q
}

// addLoraHashFilter applies the hash filter the recipe page leaves in session storage.
func (m *ModelClient) addLoraHashFilter(q url.Values) {
	session := m.sc.Storage.Session
	if hash := session.GetString(state.FilterLoraHashKey, ""); hash != "" {
		q.Set("lora_hash", hash)
		return
	}
	var hashes []string
	ok, err := session.Get(state.FilterLoraHashesKey, &hashes)
	if err != nil {
		log.WithError(err).Warn("Ignoring unreadable lora hash filter")
		return
	}
	if ok && len(hashes) > 0 {
		q.Set("lora_hashes", strings.Join(hashes, ","))
	}
}

func (m *ModelClient) fetchPage(ctx context.Context, snap state.Snapshot, page, pageSize int) (models.PageResult, error) {
	var resp models.ListResponse
	if err := m.client.getJSON(ctx, m.endpoints.List, m.listQuery(snap, page, pageSize), &resp); err != nil {
		return models.PageResult{}, fmt.Errorf("fetching %s page %d: %w", m.endpoints.Display, page, err)
	}
	return models.PageResult{
		Items:       resp.Items,
		TotalItems:  resp.Total,
		TotalPages:  resp.TotalPages,
		CurrentPage: page,
		HasMore:     page < resp.TotalPages,
		Folders:     resp.Folders,
	}, nil
}

// FetchModelsPage fetches one page using the current filters. Failures are reported
// to the user and returned.
func (m *ModelClient) FetchModelsPage(ctx context.Context, page, pageSize int) (models.PageResult, error) {
	result, err := m.fetchPage(ctx, m.sc.Page.Snapshot(), page, pageSize)
	if err != nil {
		log.WithError(err).Errorf("Error fetching %ss", m.endpoints.Display)
		m.notify(notify.Error, "Failed to fetch %ss: %v", m.endpoints.Display, err)
		return models.PageResult{}, err
	}
	return result, nil
}

// LoadMoreWithVirtualScroll loads the current page into the scroller, replacing what
// it holds. It does nothing while another load of the same page is in flight.
func (m *ModelClient) LoadMoreWithVirtualScroll(ctx context.Context, resetPage, updateFolders bool) error {
	page := m.sc.Page
	if !page.TryBeginLoading() {
		log.Debugf("%s load already in progress, skipping", m.endpoints.Display)
		return nil
	}
	defer page.EndLoading()
	release := m.sc.Loading.Begin(fmt.Sprintf("Loading %ss...", m.endpoints.Display))
	defer release()

	if resetPage {
		page.ResetPage()
	}
	snap := page.Snapshot()
	result, err := m.FetchModelsPage(ctx, snap.CurrentPage, snap.PageSize)
	if err != nil {
		return err
	}
	m.sc.Scroller.RefreshWithData(result.Items, result.TotalItems, result.HasMore)
	page.CompletePage(result)
	if updateFolders && result.Folders != nil {
		page.SetFolders(result.Folders)
	}
	return nil
}

// LoadNextPage appends the next page to the scroller. It returns the number of items
// received, or 0 when nothing is left to load or a load is already running.
func (m *ModelClient) LoadNextPage(ctx context.Context) (int, error) {
	page := m.sc.Page
	if !page.HasMore() {
		return 0, nil
	}
	if !page.TryBeginLoading() {
		return 0, nil
	}
	defer page.EndLoading()

	snap := page.Snapshot()
	result, err := m.FetchModelsPage(ctx, snap.CurrentPage, snap.PageSize)
	if err != nil {
		return 0, err
	}
	m.sc.Scroller.AppendItems(result.Items, result.TotalItems, result.HasMore)
	page.CompletePage(result)
	return len(result.Items), nil
}

// LoadPages appends up to maxPages further pages, or every remaining page when
// maxPages <= 0. It stops at the first page that brings no items even if the backend
// still reports more, and returns the number of pages that did.
func (m *ModelClient) LoadPages(ctx context.Context, maxPages int) (int, error) {
	loaded := 0
	for maxPages <= 0 || loaded < maxPages {
		n, err := m.LoadNextPage(ctx)
		if err != nil {
			return loaded, err
		}
		if n == 0 {
			break
		}
		loaded++
	}
	return loaded, nil
}

// FetchAllModels pages through the whole listing with the current filters without
// touching the page state or the scroller.
func (m *ModelClient) FetchAllModels(ctx context.Context, pageSize int) ([]models.ModelItem, error) {
	if pageSize <= 0 {
		pageSize = 100
	}
	snap := m.sc.Page.Snapshot()
	var all []models.ModelItem
	for page := 1; ; page++ {
		result, err := m.fetchPage(ctx, snap, page, pageSize)
		if err != nil {
			return all, err
		}
		all = append(all, result.Items...)
		log.Debugf("Fetched %s page %d/%d (%d items)", m.endpoints.Display, page, result.TotalPages, len(result.Items))
		if !result.HasMore || len(result.Items) == 0 {
			return all, nil
		}
	}
}

// ToggleBulkMode switches bulk selection on or off and reports the new mode.
func (m *ModelClient) ToggleBulkMode() bool {
	on := m.sc.Page.ToggleBulkMode()
	log.Debugf("Bulk mode for %ss: %t", m.endpoints.Display, on)
	return on
}

// ClearCustomFilter drops the hash filter set by the recipe page and reloads.
func (m *ModelClient) ClearCustomFilter(ctx context.Context) error {
	session := m.sc.Storage.Session
	for _, key := range []string{state.FilterLoraHashKey, state.FilterLoraHashesKey, state.FilterRecipeNameKey} {
		if err := session.Remove(key); err != nil {
			return fmt.Errorf("clearing filter %s: %w", key, err)
		}
	}
	return m.LoadMoreWithVirtualScroll(ctx, true, false)
}
