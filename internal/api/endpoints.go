package api

import (
	"fmt"

	"go-lora-manager/internal/models"
)

// Endpoints is the route table of one model type.
type Endpoints struct {
	ModelType models.ModelType
	// Display is the human name used in messages ("LoRA").
	Display string

	List            string
	Delete          string
	Exclude         string
	Rename          string
	ReplacePreview  string
	Save            string
	Scan            string
	FetchCivitai    string
	FetchAllCivitai string
	Move            string
	MoveBulk        string
	BaseModels      string
	TopTags         string
}

// Routes shared by every model type.
const (
	DownloadModelPath    = "/api/download-model"
	SettingsPath         = "/api/settings"
	TriggerWordsPath     = "/loramanager/get_trigger_words"
	LoraCivitaiURLPath   = "/loras/civitai-url"
	LoraNotesPath        = "/loras/get-notes"
	LoraTriggerWordsPath = "/loras/get-trigger-words"
	SaveRecipePath       = "/api/recipes/save-from-widget"
)

var displayNames = map[models.ModelType]string{
	models.ModelTypeLora:       "LoRA",
	models.ModelTypeCheckpoint: "Checkpoint",
	models.ModelTypeEmbedding:  "Embedding",
}

// EndpointsFor resolves the route table for mt and fails on an unknown type.
func EndpointsFor(mt models.ModelType) (Endpoints, error) {
	display, ok := displayNames[mt]
	if !ok {
		return Endpoints{}, fmt.Errorf("%w: %q", models.ErrUnknownModelType, string(mt))
	}
	base := "/api/" + string(mt.PageType())
	return Endpoints{
		ModelType:       mt,
		Display:         display,
		List:            base,
		Delete:          base + "/delete",
		Exclude:         base + "/exclude",
		Rename:          base + "/rename",
		ReplacePreview:  base + "/replace-preview",
		Save:            base + "/save-metadata",
		Scan:            base + "/scan",
		FetchCivitai:    base + "/fetch-civitai",
		FetchAllCivitai: base + "/fetch-all-civitai",
		Move:            base + "/move_model",
		MoveBulk:        base + "/move_models_bulk",
		BaseModels:      base + "/base-models",
		TopTags:         base + "/top-tags",
	}, nil
}
