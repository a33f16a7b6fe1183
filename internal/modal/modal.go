// Package modal renders the detail view of a model and applies its inline edits.
package modal

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"go-lora-manager/internal/models"
	"go-lora-manager/internal/scroller"

	"github.com/dustin/go-humanize"
)

const civitaiModelURL = "https://civitai.com/models/"

// UsageTips are the recommended settings stored with a model.
type UsageTips struct {
	Strength     *float64 `json:"strength,omitempty"`
	ClipStrength *float64 `json:"clip_strength,omitempty"`
	ClipSkip     *int     `json:"clip_skip,omitempty"`
}

// ParseUsageTips decodes the usage tips stored on an item. Malformed tips are empty.
func ParseUsageTips(raw string) UsageTips {
	var tips UsageTips
	if raw == "" {
		return tips
	}
	_ = json.Unmarshal([]byte(raw), &tips)
	return tips
}

func (u UsageTips) String() string {
	var parts []string
	if u.Strength != nil {
		parts = append(parts, fmt.Sprintf("strength %.2f", *u.Strength))
	}
	if u.ClipStrength != nil {
		parts = append(parts, fmt.Sprintf("clip strength %.2f", *u.ClipStrength))
	}
	if u.ClipSkip != nil {
		parts = append(parts, fmt.Sprintf("clip skip %d", *u.ClipSkip))
	}
	return strings.Join(parts, ", ")
}

// CivitaiURL returns the Civitai page of the item, or "" when it has none.
func CivitaiURL(item models.ModelItem) string {
	switch id := item.Civitai["modelId"].(type) {
	case float64:
		return fmt.Sprintf("%s%d", civitaiModelURL, int64(id))
	case string:
		if id != "" {
			return civitaiModelURL + id
		}
	}
	return ""
}

// Render writes the detail view of item. previewVersion is the cache-busting version
// of its preview, 0 when the preview was never replaced.
func Render(w io.Writer, item models.ModelItem, previewVersion int64) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	row := func(label, value string) {
		if value != "" {
			fmt.Fprintf(tw, "%s:\t%s\n", label, value)
		}
	}

	name := item.ModelName
	if name == "" {
		name = item.FileName
	}
	row("Model", name)
	row("File", item.FileName)
	row("Path", item.FilePath)
	row("Base model", item.BaseModel)
	row("Size", humanize.Bytes(uint64(max(item.FileSize, 0))))
	if item.Modified > 0 {
		modified := time.Unix(int64(item.Modified), 0)
		row("Modified", fmt.Sprintf("%s (%s)", modified.Format(time.DateTime), humanize.Time(modified)))
	}
	row("Folder", item.Folder)
	if item.Favorite {
		row("Favorite", "yes")
	}
	row("Tags", strings.Join(item.Tags, ", "))
	row("Trigger words", strings.Join(item.TrainedWords(), ", "))
	row("Usage tips", ParseUsageTips(item.UsageTips).String())
	row("Notes", item.Notes)
	row("Preview", scroller.VersionedPreviewURL(item.PreviewURL, previewVersion))
	row("Civitai", CivitaiURL(item))
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("rendering %s: %w", item.FilePath, err)
	}

	images := item.ShowcaseImages()
	if len(images) == 0 {
		return nil
	}
	if _, err := fmt.Fprintf(w, "\nShowcase (%d):\n", len(images)); err != nil {
		return err
	}
	for i, u := range images {
		if _, err := fmt.Fprintf(w, "  %d. %s\n", i+1, u); err != nil {
			return err
		}
	}
	return nil
}
