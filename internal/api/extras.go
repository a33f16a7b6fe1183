package api

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"go-lora-manager/internal/models"
	"go-lora-manager/internal/notify"

	log "github.com/sirupsen/logrus"
)

// ErrInvalidDownload is returned for download requests the backend would reject.
var ErrInvalidDownload = errors.New("invalid download request")

// BaseModelCount is one entry of the base-model listing.
type BaseModelCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// CheckDownload validates a download request before it is sent.
func CheckDownload(req models.DownloadRequest) error {
	if req.ModelID <= 0 && req.ModelVersionID <= 0 {
		return fmt.Errorf("%w: a model id or model version id is required", ErrInvalidDownload)
	}
	if req.ModelRoot == "" {
		return fmt.Errorf("%w: a model root is required", ErrInvalidDownload)
	}
	return nil
}

// DownloadModel asks the backend to download a Civitai model into a model root.
func (m *ModelClient) DownloadModel(ctx context.Context, req models.DownloadRequest) bool {
	if err := CheckDownload(req); err != nil {
		m.sc.Notifier.Notify(notify.Error, err.Error())
		return false
	}
	release := m.sc.Loading.Begin("Downloading model...")
	defer release()

	var resp models.StatusResponse
	if err := m.client.postJSON(ctx, DownloadModelPath, req, &resp); err != nil {
		log.WithError(err).WithField("model_id", req.ModelID).Error("Error downloading model")
		m.notify(notify.Error, "Download failed: %v", err)
		return false
	}
	if !resp.Success {
		msg := resp.Error
		if msg == "" {
			msg = "Download failed"
		}
		m.sc.Notifier.Notify(notify.Error, msg)
		return false
	}
	m.notify(notify.Success, "Model downloaded successfully")
	return true
}

// FetchBaseModels lists the base models in use with their item counts.
func (m *ModelClient) FetchBaseModels(ctx context.Context, limit int) ([]BaseModelCount, error) {
	var resp struct {
		Success    bool             `json:"success"`
		BaseModels []BaseModelCount `json:"base_models"`
		Error      string           `json:"error"`
	}
	if err := m.client.getJSON(ctx, m.endpoints.BaseModels, limitQuery(limit), &resp); err != nil {
		return nil, fmt.Errorf("fetching base models: %w", err)
	}
	if !resp.Success {
		return nil, fmt.Errorf("%w: %s", ErrRequestFailed, resp.Error)
	}
	return resp.BaseModels, nil
}

// FetchTopTags lists the most used tags.
func (m *ModelClient) FetchTopTags(ctx context.Context, limit int) ([]models.TagCount, error) {
	var resp struct {
		Success bool              `json:"success"`
		Tags    []models.TagCount `json:"tags"`
		Error   string            `json:"error"`
	}
	if err := m.client.getJSON(ctx, m.endpoints.TopTags, limitQuery(limit), &resp); err != nil {
		return nil, fmt.Errorf("fetching top tags: %w", err)
	}
	if !resp.Success {
		return nil, fmt.Errorf("%w: %s", ErrRequestFailed, resp.Error)
	}
	return resp.Tags, nil
}

func limitQuery(limit int) url.Values {
	if limit <= 0 {
		return nil
	}
	return url.Values{"limit": {strconv.Itoa(limit)}}
}

// UpdateSettings stores backend settings such as the Civitai API key.
func (c *Client) UpdateSettings(ctx context.Context, settings map[string]any) error {
	var resp models.StatusResponse
	if err := c.postJSON(ctx, SettingsPath, settings, &resp); err != nil {
		return fmt.Errorf("updating settings: %w", err)
	}
	if !resp.Success {
		return fmt.Errorf("%w: %s", ErrRequestFailed, resp.Error)
	}
	return nil
}
