package cmd

import (
	"context"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"

	"go-lora-manager/internal/api"
	"go-lora-manager/internal/controls"
	"go-lora-manager/internal/loading"
	"go-lora-manager/internal/modal"
	"go-lora-manager/internal/models"
	"go-lora-manager/internal/notify"
	"go-lora-manager/internal/state"
	"go-lora-manager/internal/storage"
)

// app is one command invocation's view of a model page: the page context, the
// model API registered for it and the page controls.
type app struct {
	store    *storage.Helpers
	client   *api.Client
	sc       *state.Context
	models   *api.ModelClient
	controls *controls.Controls
	editor   *modal.Editor
	toasts   *notify.Recorder
}

// openStore opens the persistent local namespace. Session values live for one run.
func openStore() (*storage.Helpers, error) {
	disk, err := storage.OpenDisk(globalConfig.StoragePath)
	if err != nil {
		return nil, err
	}
	store := storage.New(disk, storage.NewMemoryBackend())
	if n, err := store.MigrateStorageItems(); err != nil {
		log.WithError(err).Warn("Storage migration failed")
	} else if n > 0 {
		log.Infof("Migrated %d legacy storage keys", n)
	}
	return store, nil
}

func newApp() (*app, error) {
	mt, err := models.ParseModelType(globalConfig.DefaultModelType)
	if err != nil {
		return nil, err
	}
	client, err := api.NewClient(globalConfig, newHTTPClient())
	if err != nil {
		return nil, err
	}
	store, err := openStore()
	if err != nil {
		return nil, err
	}

	toasts := &notify.Recorder{}
	notifier := notify.Multi{notify.NewLogNotifier(), toasts}
	registry := state.NewRegistry(globalConfig.PageSize, store, notifier, loading.NewTerminal(os.Stderr))
	sc := registry.Context(mt.PageType())
	mc, err := api.NewModelClient(client, mt, sc)
	if err != nil {
		store.Close()
		return nil, err
	}
	ctl := controls.New(mt.PageType(), sc)
	ctl.RegisterAPI(mc)

	return &app{
		store:    store,
		client:   client,
		sc:       sc,
		models:   mc,
		controls: ctl,
		editor:   modal.NewEditor(mc, sc),
		toasts:   toasts,
	}, nil
}

// ok turns the outcome of an operation that reports failures as toasts into an error
// carrying the last toast.
func (a *app) ok(done bool) error {
	if done {
		return nil
	}
	if last := a.toasts.Last(); last.Message != "" {
		return fmt.Errorf("%w: %s", errNotDone, last.Message)
	}
	return errNotDone
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		log.WithError(err).Warn("Error closing storage")
	}
}

// findModel loads the whole library into the page and returns the entry whose path,
// file name or model name equals ref.
func (a *app) findModel(ctx context.Context, ref string) (models.ModelItem, error) {
	all, err := a.models.FetchAllModels(ctx, 0)
	if err != nil {
		return models.ModelItem{}, err
	}
	a.sc.Scroller.RefreshWithData(all, len(all), false)
	for _, it := range all {
		if it.FilePath == ref || it.FileName == ref || it.ModelName == ref {
			return it, nil
		}
	}
	return models.ModelItem{}, fmt.Errorf("no %s matches %q", a.models.Endpoints().Display, ref)
}
