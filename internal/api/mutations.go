package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"go-lora-manager/internal/models"
	"go-lora-manager/internal/notify"
	"go-lora-manager/internal/progress"

	log "github.com/sirupsen/logrus"
)

type filePathRequest struct {
	FilePath string `json:"file_path"`
}

// removeModel posts path to endpoint and drops the item from the scroller on success.
func (m *ModelClient) removeModel(ctx context.Context, endpoint, path, verb string) bool {
	var resp models.StatusResponse
	if err := m.client.postJSON(ctx, endpoint, filePathRequest{FilePath: path}, &resp); err != nil {
		log.WithError(err).WithField("path", path).Errorf("Error during %s", verb)
		m.notify(notify.Error, "Failed to %s %s: %v", verb, m.endpoints.Display, err)
		return false
	}
	if !resp.Success {
		msg := resp.Error
		if msg == "" {
			msg = fmt.Sprintf("Failed to %s %s", verb, m.endpoints.Display)
		}
		log.WithField("path", path).Warnf("%s rejected: %s", verb, msg)
		m.sc.Notifier.Notify(notify.Error, msg)
		return false
	}
	m.sc.Scroller.RemoveItemByFilePath(path)
	m.sc.Page.Select(path, false)
	return true
}

// DeleteModel deletes the model file and reports success.
func (m *ModelClient) DeleteModel(ctx context.Context, filePath string) bool {
	if !m.removeModel(ctx, m.endpoints.Delete, filePath, "delete") {
		return false
	}
	m.notify(notify.Success, "%s deleted successfully", m.endpoints.Display)
	return true
}

// ExcludeModel hides the model from future scans.
func (m *ModelClient) ExcludeModel(ctx context.Context, filePath string) bool {
	if !m.removeModel(ctx, m.endpoints.Exclude, filePath, "exclude") {
		return false
	}
	m.notify(notify.Success, "%s excluded successfully", m.endpoints.Display)
	return true
}

// RenameModelFile renames the file (without extension). The server result is returned
// as-is; the caller inspects Success.
func (m *ModelClient) RenameModelFile(ctx context.Context, filePath, newFileName string) (models.RenameResult, error) {
	release := m.sc.Loading.Begin("Renaming file...")
	defer release()

	req := struct {
		FilePath    string `json:"file_path"`
		NewFileName string `json:"new_file_name"`
	}{filePath, newFileName}
	var result models.RenameResult
	if err := m.client.postJSON(ctx, m.endpoints.Rename, req, &result); err != nil {
		log.WithError(err).WithField("path", filePath).Error("Error renaming file")
		m.notify(notify.Error, "Failed to rename file: %v", err)
		return result, err
	}
	if !result.Success {
		m.notify(notify.Error, "Failed to rename file: %s", result.Error)
		return result, nil
	}

	fields := map[string]any{"file_name": newFileName}
	if result.NewFilePath != "" {
		fields["file_path"] = result.NewFilePath
	}
	if result.NewPreviewPath != "" {
		fields["preview_url"] = result.NewPreviewPath
	}
	m.sc.Scroller.UpdateSingleItem(filePath, fields)
	m.notify(notify.Success, "File name updated successfully")
	return result, nil
}

// SaveModelMetadata saves data for the model and applies it to the rendered item once
// the backend accepts the request.
func (m *ModelClient) SaveModelMetadata(ctx context.Context, filePath string, data map[string]any) error {
	body := make(map[string]any, len(data)+1)
	for k, v := range data {
		body[k] = v
	}
	body["file_path"] = filePath
	if err := m.client.postJSON(ctx, m.endpoints.Save, body, nil); err != nil {
		log.WithError(err).WithField("path", filePath).Error("Error saving metadata")
		m.notify(notify.Error, "Failed to save metadata: %v", err)
		return err
	}
	m.sc.Scroller.UpdateSingleItem(filePath, data)
	return nil
}

// RefreshModels asks the backend to rescan its model roots. It does not reload the page.
func (m *ModelClient) RefreshModels(ctx context.Context, fullRebuild bool) error {
	label := "Refreshing"
	if fullRebuild {
		label = "Rebuilding cache for"
	}
	release := m.sc.Loading.Begin(fmt.Sprintf("%s %ss...", label, m.endpoints.Display))
	defer release()

	q := url.Values{}
	q.Set("full_rebuild", strconv.FormatBool(fullRebuild))
	if err := m.client.getJSON(ctx, m.endpoints.Scan, q, nil); err != nil {
		log.WithError(err).Errorf("Error refreshing %ss", m.endpoints.Display)
		m.notify(notify.Error, "Failed to refresh %ss: %v", m.endpoints.Display, err)
		return err
	}
	m.notify(notify.Success, "Refresh complete")
	return nil
}

// RefreshSingleModelMetadata refetches Civitai metadata for one model.
func (m *ModelClient) RefreshSingleModelMetadata(ctx context.Context, filePath string) bool {
	release := m.sc.Loading.Begin("Refreshing metadata...")
	defer release()

	var result models.MetadataResult
	if err := m.client.postJSON(ctx, m.endpoints.FetchCivitai, filePathRequest{FilePath: filePath}, &result); err != nil {
		log.WithError(err).WithField("path", filePath).Error("Error refreshing metadata")
		m.notify(notify.Error, "Failed to refresh metadata: %v", err)
		return false
	}
	if !result.Success {
		msg := result.Error
		if msg == "" {
			msg = "Failed to refresh metadata"
		}
		m.sc.Notifier.Notify(notify.Error, msg)
		return false
	}
	if len(result.Metadata) > 0 {
		m.sc.Scroller.UpdateSingleItem(filePath, result.Metadata)
	}
	m.notify(notify.Success, "Metadata refreshed successfully")
	return true
}

// FetchCivitaiMetadata runs the bulk metadata fetch. The progress socket is open
// before the job is triggered; the call returns when the backend reports completion
// or an error.
func (m *ModelClient) FetchCivitaiMetadata(ctx context.Context) error {
	display := m.endpoints.Display
	release := m.sc.Loading.Begin(fmt.Sprintf("Fetching metadata for %ss...", display))
	defer release()

	trigger := func(ctx context.Context) error {
		return m.client.postJSON(ctx, m.endpoints.FetchAllCivitai, struct{}{}, nil)
	}
	report := func(msg progress.Message) {
		switch msg.Status {
		case progress.StatusStarted:
			m.sc.Loading.Progress(0, "Starting metadata fetch...")
		case progress.StatusProcessing:
			m.sc.Loading.Progress(msg.Percent(), fmt.Sprintf("Processing (%d/%d) %s", msg.Processed, msg.Total, msg.CurrentName))
		case progress.StatusCompleted:
			m.sc.Loading.Progress(100, fmt.Sprintf("Completed: Updated %d of %d %ss", msg.Success, msg.Processed, display))
		}
	}

	final, err := progress.Run(ctx, nil, m.Dialer, m.client.WSBase+progress.FetchProgressPath, trigger, report)
	if err != nil {
		log.WithError(err).Errorf("Error fetching metadata for %ss", display)
		m.notify(notify.Error, "Failed to fetch metadata: %v", err)
		return err
	}
	m.notify(notify.Success, "Metadata updated for %d of %d %ss", final.Success, final.Processed, display)
	return nil
}
