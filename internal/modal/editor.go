package modal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go-lora-manager/internal/api"
	"go-lora-manager/internal/models"
	"go-lora-manager/internal/notify"
	"go-lora-manager/internal/state"
)

var (
	ErrInvalidFileName = errors.New("invalid file name")
	ErrEmptyValue      = errors.New("value must not be empty")
)

// invalidFileChars may not appear in a file name on any supported platform.
const invalidFileChars = `\/:*?"<>|`

// EditorAPI is the part of the model API the detail view calls.
type EditorAPI interface {
	SaveModelMetadata(ctx context.Context, filePath string, data map[string]any) error
	RenameModelFile(ctx context.Context, filePath, newFileName string) (models.RenameResult, error)
	MoveSingleModel(ctx context.Context, filePath, targetPath string) (string, bool)
	MoveBulkModels(ctx context.Context, filePaths []string, targetPath string) []string
	ReplaceModelPreview(ctx context.Context, filePath string, picker api.FilePicker) bool
}

// Editor validates inline edits and dispatches them through the API.
type Editor struct {
	api EditorAPI
	sc  *state.Context
}

func NewEditor(a EditorAPI, sc *state.Context) *Editor {
	return &Editor{api: a, sc: sc}
}

func (e *Editor) save(ctx context.Context, filePath string, data map[string]any, success string) error {
	if err := e.api.SaveModelMetadata(ctx, filePath, data); err != nil {
		return err
	}
	e.sc.Notifier.Notify(notify.Success, success)
	return nil
}

// SaveNotes stores free-form notes. Empty notes clear them.
func (e *Editor) SaveNotes(ctx context.Context, filePath, notes string) error {
	return e.save(ctx, filePath, map[string]any{"notes": strings.TrimSpace(notes)}, "Notes saved successfully")
}

func (e *Editor) SaveBaseModel(ctx context.Context, filePath, baseModel string) error {
	baseModel = strings.TrimSpace(baseModel)
	if baseModel == "" {
		return fmt.Errorf("base model: %w", ErrEmptyValue)
	}
	return e.save(ctx, filePath, map[string]any{"base_model": baseModel}, "Base model updated successfully")
}

// SaveUsageTips stores tips in the JSON form the backend keeps them in.
func (e *Editor) SaveUsageTips(ctx context.Context, filePath string, tips UsageTips) error {
	encoded, err := json.Marshal(tips)
	if err != nil {
		return fmt.Errorf("encoding usage tips: %w", err)
	}
	return e.save(ctx, filePath, map[string]any{"usage_tips": string(encoded)}, "Usage tips saved successfully")
}

// SaveTags stores tags trimmed and without case-insensitive duplicates.
func (e *Editor) SaveTags(ctx context.Context, filePath string, tags []string) error {
	return e.save(ctx, filePath, map[string]any{"tags": NormalizeTags(tags)}, "Tags updated successfully")
}

func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		key := strings.ToLower(t)
		if t == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
	}
	return out
}

// ValidateFileName checks a new file name (without extension).
func ValidateFileName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name is empty", ErrInvalidFileName)
	}
	if i := strings.IndexAny(name, invalidFileChars); i >= 0 {
		return fmt.Errorf("%w: %q contains %q", ErrInvalidFileName, name, name[i])
	}
	return nil
}

// Rename renames the file of the item. Renaming to the current name does nothing.
func (e *Editor) Rename(ctx context.Context, filePath, newName string) (models.RenameResult, error) {
	newName = strings.TrimSpace(newName)
	if err := ValidateFileName(newName); err != nil {
		e.sc.Notifier.Notify(notify.Error, err.Error())
		return models.RenameResult{}, err
	}
	if item, ok := e.sc.Scroller.Item(filePath); ok && item.FileName == newName {
		return models.RenameResult{Success: true, NewFilePath: filePath}, nil
	}
	return e.api.RenameModelFile(ctx, filePath, newName)
}

// Move moves the item and keeps the rendered items in step: an item that leaves the
// active folder is removed, otherwise its path is updated.
func (e *Editor) Move(ctx context.Context, filePath, targetPath string) (string, bool) {
	newPath, ok := e.api.MoveSingleModel(ctx, filePath, targetPath)
	if !ok {
		return "", false
	}
	e.applyMove(filePath, newPath)
	return newPath, true
}

// MoveSelected moves every path to targetPath and returns the paths that moved.
func (e *Editor) MoveSelected(ctx context.Context, filePaths []string, targetPath string) []string {
	moved := e.api.MoveBulkModels(ctx, filePaths, targetPath)
	for _, p := range moved {
		e.applyMove(p, strings.TrimRight(targetPath, "/")+"/"+baseName(p))
		e.sc.Page.Select(p, false)
	}
	return moved
}

func (e *Editor) applyMove(oldPath, newPath string) {
	if e.sc.Page.ActiveFolder() != "" {
		e.sc.Scroller.RemoveItemByFilePath(oldPath)
		return
	}
	e.sc.Scroller.UpdateSingleItem(oldPath, map[string]any{"file_path": newPath})
}

func baseName(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	return p[strings.LastIndex(p, "/")+1:]
}

// ReplacePreview picks and uploads a new preview.
func (e *Editor) ReplacePreview(ctx context.Context, filePath string, picker api.FilePicker) bool {
	return e.api.ReplaceModelPreview(ctx, filePath, picker)
}
