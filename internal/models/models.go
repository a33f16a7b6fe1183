package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strings"
)

// ErrUnknownModelType is returned when a model type string does not name a supported type.
var ErrUnknownModelType = errors.New("unknown model type")

// ModelType identifies which kind of asset an API client talks about.
type ModelType string

const (
	ModelTypeLora       ModelType = "lora"
	ModelTypeCheckpoint ModelType = "checkpoint"
	ModelTypeEmbedding  ModelType = "embedding"
)

// PageType identifies one page of the manager UI. Each page owns its own PageState.
type PageType string

const (
	PageLoras       PageType = "loras"
	PageCheckpoints PageType = "checkpoints"
	PageEmbeddings  PageType = "embeddings"
	PageRecipes     PageType = "recipes"
)

// ParseModelType accepts the singular, plural and display forms ("lora", "loras", "LoRA").
func ParseModelType(s string) (ModelType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "lora", "loras":
		return ModelTypeLora, nil
	case "checkpoint", "checkpoints":
		return ModelTypeCheckpoint, nil
	case "embedding", "embeddings":
		return ModelTypeEmbedding, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownModelType, s)
}

// PageType returns the page a model type is listed on.
func (m ModelType) PageType() PageType {
	switch m {
	case ModelTypeCheckpoint:
		return PageCheckpoints
	case ModelTypeEmbedding:
		return PageEmbeddings
	default:
		return PageLoras
	}
}

// ParsePageType accepts page names and model type names.
func ParsePageType(s string) (PageType, error) {
	if strings.EqualFold(strings.TrimSpace(s), string(PageRecipes)) || strings.EqualFold(strings.TrimSpace(s), "recipe") {
		return PageRecipes, nil
	}
	mt, err := ParseModelType(s)
	if err != nil {
		return "", err
	}
	return mt.PageType(), nil
}

type (
	Config struct {
		// Backend
		BaseURL      string `toml:"BaseURL"`
		WebSocketURL string `toml:"WebSocketURL"` // derived from BaseURL when empty

		// Paths
		StoragePath string `toml:"StoragePath"` // bitcask directory backing local storage
		IndexPath   string `toml:"IndexPath"`   // bleve index for the search command

		// Listing
		PageSize         int    `toml:"PageSize"`
		DefaultModelType string `toml:"DefaultModelType"`

		// HTTP
		ApiClientTimeoutSec int  `toml:"ApiClientTimeoutSec"`
		LogApiRequests      bool `toml:"LogApiRequests"`
	}

	// ModelItem is one asset record as served by the backend listing.
	ModelItem struct {
		FilePath         string         `json:"file_path"`
		FileName         string         `json:"file_name"`
		ModelName        string         `json:"model_name"`
		BaseModel        string         `json:"base_model"`
		FileSize         int64          `json:"file_size"`
		Folder           string         `json:"folder"`
		Tags             []string       `json:"tags"`
		PreviewURL       string         `json:"preview_url"`
		PreviewNsfwLevel int            `json:"preview_nsfw_level"`
		SHA256           string         `json:"sha256,omitempty"`
		Modified         float64        `json:"modified,omitempty"` // unix seconds
		Favorite         bool           `json:"favorite"`
		Notes            string         `json:"notes,omitempty"`
		UsageTips        string         `json:"usage_tips,omitempty"`
		FromCivitai      bool           `json:"from_civitai"`
		Civitai          map[string]any `json:"civitai,omitempty"`
	}

	// PageResult is the normalized outcome of one listing request.
	PageResult struct {
		Items       []ModelItem
		TotalItems  int
		TotalPages  int
		CurrentPage int
		HasMore     bool
		Folders     []string
	}

	// ListResponse is the raw listing payload.
	ListResponse struct {
		Items      []ModelItem `json:"items"`
		Total      int         `json:"total"`
		TotalPages int         `json:"total_pages"`
		Folders    []string    `json:"folders"`
	}

	// StatusResponse covers the {success, error} payloads of most mutation endpoints.
	StatusResponse struct {
		Success bool   `json:"success"`
		Error   string `json:"error,omitempty"`
		Message string `json:"message,omitempty"`
	}

	RenameResult struct {
		Success        bool   `json:"success"`
		NewFilePath    string `json:"new_file_path"`
		NewPreviewPath string `json:"new_preview_path"`
		Error          string `json:"error,omitempty"`
	}

	PreviewResult struct {
		PreviewURL       string `json:"preview_url"`
		PreviewNsfwLevel int    `json:"preview_nsfw_level"`
	}

	MetadataResult struct {
		Success  bool           `json:"success"`
		Metadata map[string]any `json:"metadata,omitempty"`
		Error    string         `json:"error,omitempty"`
	}

	MoveResult struct {
		Success     bool   `json:"success"`
		Message     string `json:"message,omitempty"`
		Error       string `json:"error,omitempty"`
		NewFilePath string `json:"new_file_path,omitempty"`
	}

	// BulkMoveItem is the per-file outcome inside a bulk move response.
	BulkMoveItem struct {
		Path    string `json:"path"`
		Success bool   `json:"success"`
		Message string `json:"message"`
	}

	BulkMoveResult struct {
		Success      bool           `json:"success"`
		Message      string         `json:"message,omitempty"`
		Results      []BulkMoveItem `json:"results"`
		SuccessCount int            `json:"success_count"`
		FailureCount int            `json:"failure_count"`
	}

	// DownloadRequest asks the backend to download a Civitai model version into a model root.
	DownloadRequest struct {
		ModelID        int    `json:"model_id,omitempty"`
		ModelVersionID int    `json:"model_version_id,omitempty"`
		ModelRoot      string `json:"model_root"`
		RelativePath   string `json:"relative_path,omitempty"`
	}

	// TagCount is one entry of the top-tags listing.
	TagCount struct {
		Tag   string `json:"tag"`
		Count int    `json:"count"`
	}
)

// Merge overlays the keys present in fields onto the item. Keys the item does not
// model are ignored. A "tags" or "civitai" value replaces the old one wholesale, and
// the item never writes into a slice or map it shares with earlier copies.
func (m *ModelItem) Merge(fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encoding item fields: %w", err)
	}
	if _, ok := fields["tags"]; ok {
		m.Tags = nil
	}
	if _, ok := fields["civitai"]; ok {
		m.Civitai = nil
	} else {
		m.Civitai = maps.Clone(m.Civitai)
	}
	if err := json.Unmarshal(raw, m); err != nil {
		return fmt.Errorf("merging item fields for %s: %w", m.FilePath, err)
	}
	return nil
}

// TrainedWords returns the trigger words recorded in the item's Civitai metadata.
func (m ModelItem) TrainedWords() []string {
	raw, ok := m.Civitai["trainedWords"].([]any)
	if !ok {
		return nil
	}
	words := make([]string, 0, len(raw))
	for _, w := range raw {
		if s, ok := w.(string); ok && s != "" {
			words = append(words, s)
		}
	}
	return words
}

// ShowcaseImages returns the image URLs of the item's Civitai version.
func (m ModelItem) ShowcaseImages() []string {
	raw, ok := m.Civitai["images"].([]any)
	if !ok {
		return nil
	}
	var urls []string
	for _, img := range raw {
		obj, ok := img.(map[string]any)
		if !ok {
			continue
		}
		if u, ok := obj["url"].(string); ok && u != "" {
			urls = append(urls, u)
		}
	}
	return urls
}
