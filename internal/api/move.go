package api

import (
	"context"
	"fmt"
	"path"
	"strings"

	"go-lora-manager/internal/models"
	"go-lora-manager/internal/notify"

	log "github.com/sirupsen/logrus"
)

// maxFailureDetails caps the per-file lines in a partial bulk-move report.
const maxFailureDetails = 3

func normalizeDir(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
	}
	return p
}

// inTarget reports whether filePath already sits directly in targetPath.
func inTarget(filePath, targetPath string) bool {
	return path.Dir(normalizeDir(filePath)) == normalizeDir(targetPath)
}

func (m *ModelClient) movesSupported() bool {
	if m.endpoints.ModelType == models.ModelTypeEmbedding {
		m.notify(notify.Info, "Moving embeddings is not yet implemented")
		return false
	}
	return true
}

// MoveSingleModel moves one model into targetPath and returns its new path. ok is
// false when nothing moved.
func (m *ModelClient) MoveSingleModel(ctx context.Context, filePath, targetPath string) (newPath string, ok bool) {
	if !m.movesSupported() {
		return "", false
	}
	if inTarget(filePath, targetPath) {
		m.notify(notify.Info, "%s is already in the selected folder", m.endpoints.Display)
		return "", false
	}

	req := struct {
		FilePath   string `json:"file_path"`
		TargetPath string `json:"target_path"`
	}{filePath, targetPath}
	var result models.MoveResult
	if err := m.client.postJSON(ctx, m.endpoints.Move, req, &result); err != nil {
		log.WithError(err).WithField("path", filePath).Error("Error moving model")
		m.notify(notify.Error, "Failed to move %s: %v", m.endpoints.Display, err)
		return "", false
	}
	if !result.Success {
		msg := result.Error
		if msg == "" {
			msg = result.Message
		}
		if msg == "" {
			msg = fmt.Sprintf("Failed to move %s", m.endpoints.Display)
		}
		m.sc.Notifier.Notify(notify.Error, msg)
		return "", false
	}

	newPath = result.NewFilePath
	if newPath == "" {
		newPath = normalizeDir(targetPath) + "/" + path.Base(normalizeDir(filePath))
	}
	msg := result.Message
	if msg == "" {
		msg = fmt.Sprintf("%s moved successfully", m.endpoints.Display)
	}
	m.sc.Notifier.Notify(notify.Success, msg)
	return newPath, true
}

// MoveBulkModels moves every path not already in targetPath and returns the paths
// that moved. Partial failures are reported, not returned as errors.
func (m *ModelClient) MoveBulkModels(ctx context.Context, filePaths []string, targetPath string) []string {
	if !m.movesSupported() {
		return nil
	}
	var toMove []string
	for _, p := range filePaths {
		if !inTarget(p, targetPath) {
			toMove = append(toMove, p)
		}
	}
	if len(toMove) == 0 {
		m.notify(notify.Info, "All selected %ss are already in the target folder", m.endpoints.Display)
		return nil
	}
	if skipped := len(filePaths) - len(toMove); skipped > 0 {
		m.notify(notify.Info, "%d %s(s) already in the target folder will be skipped", skipped, m.endpoints.Display)
	}

	req := struct {
		FilePaths  []string `json:"file_paths"`
		TargetPath string   `json:"target_path"`
	}{toMove, targetPath}
	var result models.BulkMoveResult
	if err := m.client.postJSON(ctx, m.endpoints.MoveBulk, req, &result); err != nil {
		log.WithError(err).Error("Error moving models in bulk")
		m.notify(notify.Error, "Failed to move %ss: %v", m.endpoints.Display, err)
		return nil
	}
	if !result.Success && len(result.Results) == 0 {
		msg := result.Message
		if msg == "" {
			msg = fmt.Sprintf("Failed to move %ss", m.endpoints.Display)
		}
		m.sc.Notifier.Notify(notify.Error, msg)
		return nil
	}

	var moved []string
	var failed []models.BulkMoveItem
	for _, r := range result.Results {
		if r.Success {
			moved = append(moved, r.Path)
		} else {
			failed = append(failed, r)
		}
	}
	if len(failed) == 0 {
		m.notify(notify.Success, "Successfully moved %d %ss", len(moved), m.endpoints.Display)
		return moved
	}
	m.sc.Notifier.Notify(notify.Warning, bulkFailureReport(len(moved), failed))
	return moved
}

func bulkFailureReport(movedCount int, failed []models.BulkMoveItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Moved %d models, %d failed", movedCount, len(failed))
	for i, f := range failed {
		if i == maxFailureDetails {
			fmt.Fprintf(&b, "\n(and %d more)", len(failed)-maxFailureDetails)
			break
		}
		fmt.Fprintf(&b, "\n%s: %s", path.Base(normalizeDir(f.Path)), f.Message)
	}
	return b.String()
}
