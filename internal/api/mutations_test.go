package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"go-lora-manager/internal/models"
	"go-lora-manager/internal/notify"
	"go-lora-manager/internal/progress"
	"go-lora-manager/internal/state"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	var body map[string]any
	assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	return body
}

func TestDeleteModel(t *testing.T) {
	tests := []struct {
		name      string
		resp      models.StatusResponse
		wantOK    bool
		wantToast string
	}{
		{"success", models.StatusResponse{Success: true}, true, "LoRA deleted successfully"},
		{"server error message", models.StatusResponse{Success: false, Error: "X"}, false, "X"},
		{"default message", models.StatusResponse{Success: false}, false, "Failed to delete LoRA"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotPath any
			h := newHarness(t, models.ModelTypeLora, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/loras/delete", r.URL.Path)
				gotPath = decodeBody(t, r)["file_path"]
				writeJSON(w, http.StatusOK, tt.resp)
			}))
			h.ctx.Scroller.RefreshWithData(items("/m/a", "/m/b"), 2, false)

			ok := h.client.DeleteModel(context.Background(), "/m/a")
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, "/m/a", gotPath)
			assert.Equal(t, tt.wantToast, h.toasts.Last().Message)
			if tt.wantOK {
				assert.Equal(t, 1, h.ctx.Scroller.Len())
				_, present := h.ctx.Scroller.Item("/m/a")
				assert.False(t, present)
			} else {
				assert.Equal(t, 2, h.ctx.Scroller.Len())
			}
		})
	}
}

func TestExcludeModelTransportFailure(t *testing.T) {
	h := newHarness(t, models.ModelTypeCheckpoint, http.NotFoundHandler())
	h.ctx.Scroller.RefreshWithData(items("/c/a"), 1, false)

	assert.False(t, h.client.ExcludeModel(context.Background(), "/c/a"))
	assert.Equal(t, 1, h.ctx.Scroller.Len())
	assert.Equal(t, notify.Error, h.toasts.Last().Level)
}

func TestRenameModelFile(t *testing.T) {
	h := newHarness(t, models.ModelTypeLora, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		assert.Equal(t, "new", body["new_file_name"])
		writeJSON(w, http.StatusOK, models.RenameResult{Success: true, NewFilePath: "/m/new.safetensors", NewPreviewPath: "/m/new.png"})
	}))
	h.ctx.Scroller.RefreshWithData([]models.ModelItem{{FilePath: "/m/old.safetensors", FileName: "old"}}, 1, false)

	result, err := h.client.RenameModelFile(context.Background(), "/m/old.safetensors", "new")
	require.NoError(t, err)
	assert.True(t, result.Success)

	item, ok := h.ctx.Scroller.Item("/m/new.safetensors")
	require.True(t, ok)
	assert.Equal(t, "new", item.FileName)
	assert.Equal(t, "/m/new.png", item.PreviewURL)
	assert.Equal(t, 0, h.loading.Active())
}

func TestRenameModelFileRejected(t *testing.T) {
	h := newHarness(t, models.ModelTypeLora, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, models.RenameResult{Success: false, Error: "exists"})
	}))
	h.ctx.Scroller.RefreshWithData(items("/m/old"), 1, false)

	result, err := h.client.RenameModelFile(context.Background(), "/m/old", "taken")
	require.NoError(t, err)
	assert.False(t, result.Success)
	_, ok := h.ctx.Scroller.Item("/m/old")
	assert.True(t, ok)
	assert.Contains(t, h.toasts.Last().Message, "exists")
}

func TestUploadPreview(t *testing.T) {
	h := newHarness(t, models.ModelTypeLora, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/loras/replace-preview", r.URL.Path)
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		assert.Equal(t, "/m/a", r.FormValue("model_path"))
		assert.Equal(t, "2", r.FormValue("nsfw_level"))
		f, hdr, err := r.FormFile("preview_file")
		if !assert.NoError(t, err) {
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "cover.png", hdr.Filename)
		assert.Equal(t, "PNGDATA", string(data))
		writeJSON(w, http.StatusOK, models.PreviewResult{PreviewURL: "/previews/a.png", PreviewNsfwLevel: 2})
	}))
	h.client.Now = func() time.Time { return time.UnixMilli(4242) }
	h.ctx.Scroller.RefreshWithData(items("/m/a"), 1, false)

	ok := h.client.UploadPreview(context.Background(), "/m/a", "cover.png", strings.NewReader("PNGDATA"), 2)
	require.True(t, ok)

	item, _ := h.ctx.Scroller.Item("/m/a")
	assert.Equal(t, "/previews/a.png", item.PreviewURL)
	assert.Equal(t, 2, item.PreviewNsfwLevel)
	assert.Equal(t, int64(4242), h.ctx.Page.PreviewVersions()["/m/a"])

	var persisted map[string]int64
	found, err := h.ctx.Storage.Local.Get(state.PreviewVersionsKey(models.PageLoras), &persisted)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(4242), persisted["/m/a"])
}

func TestUploadPreviewRejectsUnsupportedFile(t *testing.T) {
	h := newHarness(t, models.ModelTypeLora, http.NotFoundHandler())
	ok := h.client.UploadPreview(context.Background(), "/m/a", "notes.txt", strings.NewReader("x"), 0)
	assert.False(t, ok)
	assert.Zero(t, h.requests.Load())
	assert.Contains(t, h.toasts.Last().Message, "image or an mp4")
}

type cancelledPicker struct{}

func (cancelledPicker) PickFile(context.Context) (*PickedFile, error) { return nil, ErrPickCancelled }

func TestReplaceModelPreviewCancelled(t *testing.T) {
	h := newHarness(t, models.ModelTypeLora, http.NotFoundHandler())
	assert.False(t, h.client.ReplaceModelPreview(context.Background(), "/m/a", cancelledPicker{}))
	assert.Empty(t, h.toasts.Toasts())
	assert.Zero(t, h.requests.Load())
}

func TestCheckPreviewFile(t *testing.T) {
	for _, name := range []string{"a.png", "a.JPG", "a.webp", "clip.mp4"} {
		assert.NoError(t, CheckPreviewFile(name), name)
	}
	for _, name := range []string{"a.txt", "a.mov", "noext"} {
		assert.ErrorIs(t, CheckPreviewFile(name), ErrUnsupportedPreview, name)
	}
}

func TestSaveModelMetadata(t *testing.T) {
	fail := false
	h := newHarness(t, models.ModelTypeLora, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		assert.Equal(t, "/m/a", body["file_path"])
		if fail {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	}))
	h.ctx.Scroller.RefreshWithData(items("/m/a"), 1, false)

	require.NoError(t, h.client.SaveModelMetadata(context.Background(), "/m/a", map[string]any{"notes": "hello"}))
	item, _ := h.ctx.Scroller.Item("/m/a")
	assert.Equal(t, "hello", item.Notes)

	fail = true
	err := h.client.SaveModelMetadata(context.Background(), "/m/a", map[string]any{"notes": "lost"})
	assert.ErrorIs(t, err, ErrRequestFailed)
	item, _ = h.ctx.Scroller.Item("/m/a")
	assert.Equal(t, "hello", item.Notes)
}

func TestRefreshModels(t *testing.T) {
	var rebuild string
	h := newHarness(t, models.ModelTypeCheckpoint, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/checkpoints/scan", r.URL.Path)
		rebuild = r.URL.Query().Get("full_rebuild")
		w.WriteHeader(http.StatusOK)
	}))
	require.NoError(t, h.client.RefreshModels(context.Background(), true))
	assert.Equal(t, "true", rebuild)
	assert.Equal(t, 0, h.loading.Active())
}

func TestRefreshSingleModelMetadata(t *testing.T) {
	h := newHarness(t, models.ModelTypeLora, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, models.MetadataResult{Success: true, Metadata: map[string]any{
			"model_name": "Fresh Name",
			"civitai":    map[string]any{"trainedWords": []string{"fresh"}},
		}})
	}))
	h.ctx.Scroller.RefreshWithData(items("/m/a"), 1, false)

	require.True(t, h.client.RefreshSingleModelMetadata(context.Background(), "/m/a"))
	item, _ := h.ctx.Scroller.Item("/m/a")
	assert.Equal(t, "Fresh Name", item.ModelName)
	assert.Equal(t, []string{"fresh"}, item.TrainedWords())
}

// bulkFetchServer serves the fetch-all trigger and the progress socket. The trigger
// fails the test unless the socket is already open.
func bulkFetchServer(t *testing.T, msgs []progress.Message) http.Handler {
	upgrader := websocket.Upgrader{}
	opened := make(chan struct{})
	triggered := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc(progress.FetchProgressPath, func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		close(opened)
		select {
		case <-triggered:
		case <-time.After(5 * time.Second):
			return
		}
		for _, m := range msgs {
			_ = ws.WriteJSON(m)
		}
		_, _, _ = ws.ReadMessage()
	})
	mux.HandleFunc("/api/loras/fetch-all-civitai", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-opened:
		default:
			t.Error("trigger posted before the progress socket opened")
		}
		close(triggered)
		writeJSON(w, http.StatusOK, models.StatusResponse{Success: true})
	})
	return mux
}

func TestFetchCivitaiMetadataCompletes(t *testing.T) {
	h := newHarness(t, models.ModelTypeLora, bulkFetchServer(t, []progress.Message{
		{Status: progress.StatusProcessing, Processed: 3, Total: 10, CurrentName: "x"},
		{Status: progress.StatusCompleted, Success: 9, Processed: 10},
	}))

	require.NoError(t, h.client.FetchCivitaiMetadata(context.Background()))
	updates := h.loading.Updates()
	require.Len(t, updates, 2)
	assert.Equal(t, 30, updates[0].Percent)
	assert.Equal(t, 100, updates[1].Percent)
	assert.Equal(t, 0, h.loading.Active())
	assert.Equal(t, "Metadata updated for 9 of 10 LoRAs", h.toasts.Last().Message)
}

func TestFetchCivitaiMetadataError(t *testing.T) {
	h := newHarness(t, models.ModelTypeLora, bulkFetchServer(t, []progress.Message{
		{Status: progress.StatusStarted},
		{Status: progress.StatusError, Error: "boom"},
	}))

	err := h.client.FetchCivitaiMetadata(context.Background())
	require.Error(t, err)
	assert.Equal(t, "boom", err.Error())
	assert.Equal(t, 0, h.loading.Active())
	assert.Equal(t, notify.Error, h.toasts.Last().Level)
}

func TestMoveBulkModelsSkipsPathsInTarget(t *testing.T) {
	var submitted []any
	h := newHarness(t, models.ModelTypeLora, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/loras/move_models_bulk", r.URL.Path)
		body := decodeBody(t, r)
		submitted = body["file_paths"].([]any)
		writeJSON(w, http.StatusOK, models.BulkMoveResult{
			Success:      true,
			Results:      []models.BulkMoveItem{{Path: "/b/f2", Success: true}},
			SuccessCount: 1,
		})
	}))

	moved := h.client.MoveBulkModels(context.Background(), []string{"/a/f1", "/b/f2"}, "/a")
	assert.Equal(t, []any{"/b/f2"}, submitted)
	assert.Equal(t, []string{"/b/f2"}, moved)
	assert.Equal(t, notify.Success, h.toasts.Last().Level)
}

func TestMoveBulkModelsAllInTarget(t *testing.T) {
	h := newHarness(t, models.ModelTypeLora, http.NotFoundHandler())
	moved := h.client.MoveBulkModels(context.Background(), []string{"/a/f1", "/a/f2"}, "/a/")
	assert.Empty(t, moved)
	assert.Zero(t, h.requests.Load())
	assert.Equal(t, notify.Info, h.toasts.Last().Level)
}

func TestMoveBulkModelsPartialFailure(t *testing.T) {
	h := newHarness(t, models.ModelTypeLora, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, models.BulkMoveResult{
			Success: true,
			Results: []models.BulkMoveItem{
				{Path: "/x/ok", Success: true},
				{Path: "/x/f1", Message: "exists"},
				{Path: "/x/f2", Message: "locked"},
				{Path: "/x/f3", Message: "exists"},
				{Path: "/x/f4", Message: "exists"},
				{Path: "/x/f5", Message: "exists"},
			},
		})
	}))

	moved := h.client.MoveBulkModels(context.Background(), []string{"/x/ok", "/x/f1", "/x/f2", "/x/f3", "/x/f4", "/x/f5"}, "/y")
	assert.Equal(t, []string{"/x/ok"}, moved)
	last := h.toasts.Last()
	assert.Equal(t, notify.Warning, last.Level)
	assert.Equal(t, "Moved 1 models, 5 failed\nf1: exists\nf2: locked\nf3: exists\n(and 2 more)", last.Message)
}

func TestMoveSingleModel(t *testing.T) {
	h := newHarness(t, models.ModelTypeCheckpoint, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		assert.Equal(t, "/b", body["target_path"])
		writeJSON(w, http.StatusOK, models.MoveResult{Success: true})
	}))

	newPath, ok := h.client.MoveSingleModel(context.Background(), `C:\models\a\x.safetensors`, "/b")
	assert.True(t, ok)
	assert.Equal(t, "/b/x.safetensors", newPath)

	_, ok = h.client.MoveSingleModel(context.Background(), "/b/x.safetensors", "/b")
	assert.False(t, ok)
	assert.Equal(t, int32(1), h.requests.Load())
}

func TestMoveEmbeddingsNotImplemented(t *testing.T) {
	h := newHarness(t, models.ModelTypeEmbedding, http.NotFoundHandler())
	_, ok := h.client.MoveSingleModel(context.Background(), "/a/e.pt", "/b")
	assert.False(t, ok)
	assert.Nil(t, h.client.MoveBulkModels(context.Background(), []string{"/a/e.pt"}, "/b"))
	assert.Zero(t, h.requests.Load())
	assert.Contains(t, h.toasts.Last().Message, "not yet implemented")
}

func TestDownloadModel(t *testing.T) {
	var body map[string]any
	h := newHarness(t, models.ModelTypeLora, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, DownloadModelPath, r.URL.Path)
		body = decodeBody(t, r)
		writeJSON(w, http.StatusOK, models.StatusResponse{Success: true})
	}))

	assert.False(t, h.client.DownloadModel(context.Background(), models.DownloadRequest{ModelRoot: "/loras"}))
	assert.Zero(t, h.requests.Load())

	ok := h.client.DownloadModel(context.Background(), models.DownloadRequest{ModelVersionID: 77, ModelRoot: "/loras", RelativePath: "style"})
	require.True(t, ok)
	assert.EqualValues(t, 77, body["model_version_id"])
	assert.Equal(t, "style", body["relative_path"])
}

func TestFetchTopTagsAndBaseModels(t *testing.T) {
	h := newHarness(t, models.ModelTypeLora, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		switch r.URL.Path {
		case "/api/loras/top-tags":
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "tags": []map[string]any{{"tag": "anime", "count": 12}}})
		case "/api/loras/base-models":
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "base_models": []map[string]any{{"name": "SDXL 1.0", "count": 3}}})
		default:
			http.NotFound(w, r)
		}
	}))
	tags, err := h.client.FetchTopTags(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, []models.TagCount{{Tag: "anime", Count: 12}}, tags)

	bases, err := h.client.FetchBaseModels(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, []BaseModelCount{{Name: "SDXL 1.0", Count: 3}}, bases)
}
