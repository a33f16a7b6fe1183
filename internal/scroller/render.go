package scroller

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"go-lora-manager/internal/models"

	"github.com/dustin/go-humanize"
	"github.com/lithammer/fuzzysearch/fuzzy"
)

// RenderOptions controls how cards are drawn.
type RenderOptions struct {
	// PreviewVersions maps file paths to the timestamp of their last preview replacement.
	PreviewVersions map[string]int64
	// Filter keeps only cards whose model or file name fuzzily matches.
	Filter string
	// Selected marks cards in bulk mode.
	Selected map[string]bool
}

// VersionedPreviewURL appends the cache-busting version for path, if any.
func VersionedPreviewURL(previewURL string, version int64) string {
	if previewURL == "" || version == 0 {
		return previewURL
	}
	sep := "?"
	if strings.Contains(previewURL, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%st=%d", previewURL, sep, version)
}

// Render writes the collection as a card table.
func (s *Scroller) Render(w io.Writer, opts RenderOptions) error {
	items := s.Items()
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Sel\tModel Name\tFile Name\tBase Model\tSize\tFolder\tModified\tPreview")
	fmt.Fprintln(tw, "---\t----------\t---------\t----------\t----\t------\t--------\t-------")

	shown := 0
	for _, it := range items {
		if opts.Filter != "" &&
			!fuzzy.MatchFold(opts.Filter, it.ModelName) &&
			!fuzzy.MatchFold(opts.Filter, it.FileName) {
			continue
		}
		sel := ""
		if opts.Selected[it.FilePath] {
			sel = "[x]"
		}
		modified := ""
		if it.Modified > 0 {
			modified = humanize.Time(time.Unix(int64(it.Modified), 0))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			sel,
			it.ModelName,
			it.FileName,
			it.BaseModel,
			humanize.Bytes(uint64(max(it.FileSize, 0))),
			it.Folder,
			modified,
			VersionedPreviewURL(it.PreviewURL, opts.PreviewVersions[it.FilePath]),
		)
		shown++
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("rendering cards: %w", err)
	}
	more := ""
	if s.HasMore() {
		more = " (more available)"
	}
	_, err := fmt.Fprintf(w, "Showing %d of %d items%s\n", shown, s.TotalItems(), more)
	return err
}
