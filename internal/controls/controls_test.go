package controls

import (
	"context"
	"errors"
	"testing"

	"go-lora-manager/internal/loading"
	"go-lora-manager/internal/models"
	"go-lora-manager/internal/notify"
	"go-lora-manager/internal/state"
	"go-lora-manager/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	calls       []string
	refreshErr  error
	downloadOK  bool
	bulkMode    bool
	lastReset   bool
	lastFolders bool
}

func (f *fakeAPI) LoadMoreWithVirtualScroll(_ context.Context, resetPage, updateFolders bool) error {
	f.calls = append(f.calls, "load")
	f.lastReset, f.lastFolders = resetPage, updateFolders
	return nil
}

func (f *fakeAPI) RefreshModels(_ context.Context, fullRebuild bool) error {
	if fullRebuild {
		f.calls = append(f.calls, "rebuild")
	} else {
		f.calls = append(f.calls, "refresh")
	}
	return f.refreshErr
}

func (f *fakeAPI) FetchCivitaiMetadata(context.Context) error {
	f.calls = append(f.calls, "fetch")
	return nil
}

func (f *fakeAPI) DownloadModel(context.Context, models.DownloadRequest) bool {
	f.calls = append(f.calls, "download")
	return f.downloadOK
}

func (f *fakeAPI) ToggleBulkMode() bool {
	f.bulkMode = !f.bulkMode
	return f.bulkMode
}

func (f *fakeAPI) ClearCustomFilter(context.Context) error {
	f.calls = append(f.calls, "clear")
	return nil
}

func newContext(store *storage.Helpers) *state.Context {
	return state.NewContext(models.PageLoras, 20, store, &notify.Recorder{}, &loading.Recorder{})
}

func TestNewRestoresPreferences(t *testing.T) {
	store := storage.NewInMemory()
	require.NoError(t, store.Local.Set(state.SortKey(models.PageLoras), state.SortBySize))
	require.NoError(t, store.Local.Set(state.ActiveFolderKey(models.PageLoras), "styles"))
	require.NoError(t, store.Local.Set(state.FiltersKey(models.PageLoras), state.Filters{Tags: []string{"anime"}}))
	require.NoError(t, store.Local.Set(state.SearchPrefsKey(models.PageLoras), state.SearchOptions{Tags: true, Recursive: true}))

	sc := newContext(store)
	New(models.PageLoras, sc)

	snap := sc.Page.Snapshot()
	assert.Equal(t, state.SortBySize, snap.SortBy)
	assert.Equal(t, "styles", snap.ActiveFolder)
	assert.Equal(t, []string{"anime"}, snap.Filters.Tags)
	assert.Equal(t, state.SearchOptions{Tags: true, Recursive: true}, snap.SearchOptions)
}

func TestNewIgnoresInvalidSort(t *testing.T) {
	store := storage.NewInMemory()
	require.NoError(t, store.Local.Set(state.SortKey(models.PageLoras), "popularity"))
	sc := newContext(store)
	New(models.PageLoras, sc)
	assert.Equal(t, state.SortByName, sc.Page.SortBy())
}

func TestOperationsRequireAPI(t *testing.T) {
	c := New(models.PageLoras, newContext(storage.NewInMemory()))
	ctx := context.Background()

	assert.ErrorIs(t, c.ResetAndReload(ctx, true), ErrNoAPI)
	assert.ErrorIs(t, c.RefreshModels(ctx, false), ErrNoAPI)
	assert.ErrorIs(t, c.FetchFromCivitai(ctx), ErrNoAPI)
	_, err := c.ShowDownloadModal(ctx, models.DownloadRequest{})
	assert.ErrorIs(t, err, ErrNoAPI)
	_, err = c.ToggleBulkMode()
	assert.ErrorIs(t, err, ErrNoAPI)
	assert.ErrorIs(t, c.ClearCustomFilter(ctx), ErrNoAPI)
}

func TestDispatchThroughAPI(t *testing.T) {
	c := New(models.PageLoras, newContext(storage.NewInMemory()))
	api := &fakeAPI{}
	c.RegisterAPI(api)
	ctx := context.Background()

	require.NoError(t, c.RefreshModels(ctx, true))
	assert.Equal(t, []string{"rebuild", "load"}, api.calls)
	assert.True(t, api.lastReset)
	assert.True(t, api.lastFolders)

	api.calls = nil
	require.NoError(t, c.FetchFromCivitai(ctx))
	assert.Equal(t, []string{"fetch", "load"}, api.calls)

	api.calls = nil
	ok, err := c.ShowDownloadModal(ctx, models.DownloadRequest{ModelID: 1, ModelRoot: "/loras"})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, []string{"download"}, api.calls, "no reload after a failed download")

	on, err := c.ToggleBulkMode()
	require.NoError(t, err)
	assert.True(t, on)

	api.calls = nil
	require.NoError(t, c.ClearCustomFilter(ctx))
	assert.Equal(t, []string{"clear"}, api.calls)
}

func TestRefreshFailureSkipsReload(t *testing.T) {
	c := New(models.PageLoras, newContext(storage.NewInMemory()))
	api := &fakeAPI{refreshErr: errors.New("down")}
	c.RegisterAPI(api)

	assert.Error(t, c.RefreshModels(context.Background(), false))
	assert.Equal(t, []string{"refresh"}, api.calls)
}

func TestSetSort(t *testing.T) {
	store := storage.NewInMemory()
	sc := newContext(store)
	c := New(models.PageLoras, sc)
	api := &fakeAPI{}
	c.RegisterAPI(api)

	assert.ErrorIs(t, c.SetSort(context.Background(), "random"), ErrInvalidSort)
	assert.Empty(t, api.calls)

	require.NoError(t, c.SetSort(context.Background(), state.SortByDate))
	assert.Equal(t, state.SortByDate, sc.Page.SortBy())
	assert.Equal(t, state.SortByDate, store.Local.GetString(state.SortKey(models.PageLoras), ""))
	assert.Equal(t, []string{"load"}, api.calls)
}

func TestToggleFolder(t *testing.T) {
	store := storage.NewInMemory()
	sc := newContext(store)
	c := New(models.PageLoras, sc)
	api := &fakeAPI{}
	c.RegisterAPI(api)
	ctx := context.Background()
	key := state.ActiveFolderKey(models.PageLoras)

	active, err := c.ToggleFolder(ctx, "styles")
	require.NoError(t, err)
	assert.Equal(t, "styles", active)
	assert.Equal(t, "styles", store.Local.GetString(key, ""))

	active, err = c.ToggleFolder(ctx, "characters")
	require.NoError(t, err)
	assert.Equal(t, "characters", active)

	active, err = c.ToggleFolder(ctx, "characters")
	require.NoError(t, err)
	assert.Empty(t, active)
	assert.Empty(t, sc.Page.ActiveFolder())
	assert.Equal(t, "none", store.Local.GetString(key, "none"))
	assert.Len(t, api.calls, 3)
}

func TestResolveFolder(t *testing.T) {
	sc := newContext(storage.NewInMemory())
	sc.Page.SetFolders([]string{"styles/anime", "characters", "styles"})
	c := New(models.PageLoras, sc)

	got, err := c.ResolveFolder("STYLES")
	require.NoError(t, err)
	assert.Equal(t, "styles", got)

	got, err = c.ResolveFolder("chrs")
	require.NoError(t, err)
	assert.Equal(t, "characters", got)

	_, err = c.ResolveFolder("zzz")
	assert.ErrorIs(t, err, ErrFolderNotFound)
}

func TestSetSearchAndFilters(t *testing.T) {
	store := storage.NewInMemory()
	sc := newContext(store)
	c := New(models.PageLoras, sc)
	c.RegisterAPI(&fakeAPI{})
	ctx := context.Background()

	opts := state.SearchOptions{Filename: true, Tags: true}
	require.NoError(t, c.SetSearch(ctx, "anime", &opts))
	require.NoError(t, c.SetFilters(ctx, []string{"style"}, []string{"SDXL 1.0"}))

	snap := sc.Page.Snapshot()
	assert.Equal(t, "anime", snap.Filters.Search)
	assert.Equal(t, []string{"style"}, snap.Filters.Tags)
	assert.Equal(t, opts, snap.SearchOptions)

	var stored state.Filters
	found, err := store.Local.Get(state.FiltersKey(models.PageLoras), &stored)
	require.NoError(t, err)
	require.True(t, found)
	assert.Empty(t, stored.Search, "search term is not persisted")
	assert.Equal(t, []string{"SDXL 1.0"}, stored.BaseModels)

	var storedOpts state.SearchOptions
	_, err = store.Local.Get(state.SearchPrefsKey(models.PageLoras), &storedOpts)
	require.NoError(t, err)
	assert.Equal(t, opts, storedOpts)
}

func TestToggleFolderTagsCollapsed(t *testing.T) {
	c := New(models.PageLoras, newContext(storage.NewInMemory()))
	collapsed, err := c.ToggleFolderTagsCollapsed()
	require.NoError(t, err)
	assert.True(t, collapsed)
	collapsed, err = c.ToggleFolderTagsCollapsed()
	require.NoError(t, err)
	assert.False(t, collapsed)
}
