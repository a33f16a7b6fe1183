package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go-lora-manager/internal/models"
	"go-lora-manager/internal/notify"

	log "github.com/sirupsen/logrus"
)

var (
	// ErrPickCancelled is returned by a FilePicker when the user picks nothing.
	ErrPickCancelled = errors.New("file selection cancelled")
	// ErrUnsupportedPreview is returned for files that are neither images nor mp4 videos.
	ErrUnsupportedPreview = errors.New("preview must be an image or an mp4 video")
)

// PickedFile is a file chosen as a new preview.
type PickedFile struct {
	Name      string
	Content   io.ReadCloser
	NsfwLevel int
}

// FilePicker asks the user for a preview file.
type FilePicker interface {
	PickFile(ctx context.Context) (*PickedFile, error)
}

// PathPicker "picks" a file already named on the command line.
type PathPicker struct {
	Path      string
	NsfwLevel int
}

func (p PathPicker) PickFile(ctx context.Context) (*PickedFile, error) {
	if p.Path == "" {
		return nil, ErrPickCancelled
	}
	if err := CheckPreviewFile(p.Path); err != nil {
		return nil, err
	}
	f, err := os.Open(p.Path)
	if err != nil {
		return nil, fmt.Errorf("opening preview %s: %w", p.Path, err)
	}
	return &PickedFile{Name: filepath.Base(p.Path), Content: f, NsfwLevel: p.NsfwLevel}, nil
}

// CheckPreviewFile accepts images and mp4 videos by extension.
func CheckPreviewFile(name string) error {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == ".mp4" {
		return nil
	}
	if strings.HasPrefix(mime.TypeByExtension(ext), "image/") {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnsupportedPreview, name)
}

// ReplaceModelPreview asks picker for a file and uploads it as the model's preview.
func (m *ModelClient) ReplaceModelPreview(ctx context.Context, filePath string, picker FilePicker) bool {
	picked, err := picker.PickFile(ctx)
	if errors.Is(err, ErrPickCancelled) {
		return false
	}
	if err != nil {
		m.notify(notify.Error, "Failed to upload preview image: %v", err)
		return false
	}
	defer picked.Content.Close()
	return m.UploadPreview(ctx, filePath, picked.Name, picked.Content, picked.NsfwLevel)
}

// UploadPreview sends r as the new preview of filePath. On success the preview
// version is bumped and persisted so cached previews are not shown.
func (m *ModelClient) UploadPreview(ctx context.Context, filePath, fileName string, r io.Reader, nsfwLevel int) bool {
	release := m.sc.Loading.Begin("Uploading preview...")
	defer release()

	result, err := m.postPreview(ctx, filePath, fileName, r, nsfwLevel)
	if err != nil {
		log.WithError(err).WithField("path", filePath).Error("Error uploading preview")
		m.notify(notify.Error, "Failed to upload preview image: %v", err)
		return false
	}

	version := m.Now().UnixMilli()
	m.sc.Page.SetPreviewVersion(filePath, version)
	if err := m.sc.SavePreviewVersions(); err != nil {
		log.WithError(err).Warn("Failed to persist preview versions")
	}
	m.sc.Scroller.UpdateSingleItem(filePath, map[string]any{
		"preview_url":        result.PreviewURL,
		"preview_nsfw_level": result.PreviewNsfwLevel,
	})
	m.notify(notify.Success, "Preview updated successfully")
	return true
}

func (m *ModelClient) postPreview(ctx context.Context, filePath, fileName string, r io.Reader, nsfwLevel int) (models.PreviewResult, error) {
	var result models.PreviewResult
	if err := CheckPreviewFile(fileName); err != nil {
		return result, err
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("preview_file", fileName)
	if err != nil {
		return result, fmt.Errorf("creating preview form: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return result, fmt.Errorf("reading preview %s: %w", fileName, err)
	}
	if err := mw.WriteField("model_path", filePath); err != nil {
		return result, err
	}
	if err := mw.WriteField("nsfw_level", strconv.Itoa(nsfwLevel)); err != nil {
		return result, err
	}
	if err := mw.Close(); err != nil {
		return result, fmt.Errorf("finishing preview form: %w", err)
	}

	err = m.client.do(ctx, http.MethodPost, m.client.endpoint(m.endpoints.ReplacePreview, nil), &buf, mw.FormDataContentType(), &result)
	return result, err
}
