package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go-lora-manager/index"
	"go-lora-manager/internal/api"
	"go-lora-manager/internal/modal"
	"go-lora-manager/internal/models"
)

// errNotDone is returned when an operation already reported its failure as a toast.
var errNotDone = errors.New("operation did not complete")

// withApp runs fn against a freshly opened app.
func withApp(fn func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(cmd, a, args)
	}
}

// dropFromIndex removes path from the local search index, if one has been built.
func dropFromIndex(path string) {
	indexPath := globalConfig.IndexPath
	if _, err := os.Stat(indexPath); err != nil {
		return
	}
	idx, err := index.OpenOrCreateIndex(indexPath)
	if err != nil {
		log.WithError(err).Warn("Could not open search index")
		return
	}
	defer idx.Close()
	if err := index.RemoveModel(idx, path); err != nil {
		log.WithError(err).Warnf("Could not remove %s from search index", path)
	}
}

var deleteCmd = &cobra.Command{
	Use:   "delete <path>",
	Short: "Delete a model file",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		if !a.models.DeleteModel(cmd.Context(), args[0]) {
			return a.ok(false)
		}
		dropFromIndex(args[0])
		return nil
	}),
}

var excludeCmd = &cobra.Command{
	Use:   "exclude <path>",
	Short: "Exclude a model from future scans",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		if !a.models.ExcludeModel(cmd.Context(), args[0]) {
			return a.ok(false)
		}
		dropFromIndex(args[0])
		return nil
	}),
}

var renameCmd = &cobra.Command{
	Use:   "rename <path> <new file name>",
	Short: "Rename a model file (without extension)",
	Args:  cobra.ExactArgs(2),
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		result, err := a.editor.Rename(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		if result.NewFilePath != "" {
			fmt.Fprintln(os.Stdout, result.NewFilePath)
		}
		return nil
	}),
}

var moveTarget string

var moveCmd = &cobra.Command{
	Use:   "move <path>... --to <folder>",
	Short: "Move one or more models to another folder",
	Args:  cobra.MinimumNArgs(1),
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		if len(args) == 1 {
			newPath, moved := a.editor.Move(cmd.Context(), args[0], moveTarget)
			if moved {
				fmt.Fprintln(os.Stdout, newPath)
			}
			return a.ok(moved)
		}
		moved := a.editor.MoveSelected(cmd.Context(), args, moveTarget)
		for _, p := range moved {
			fmt.Fprintln(os.Stdout, p)
		}
		return a.ok(len(moved) > 0)
	}),
}

var previewNsfw int

var previewCmd = &cobra.Command{
	Use:   "preview <path> <image or mp4>",
	Short: "Replace the preview of a model",
	Args:  cobra.ExactArgs(2),
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		if err := api.CheckPreviewFile(args[1]); err != nil {
			return err
		}
		return a.ok(a.editor.ReplacePreview(cmd.Context(), args[0], api.PathPicker{Path: args[1], NsfwLevel: previewNsfw}))
	}),
}

var (
	saveNotes     string
	saveBaseModel string
	saveTags      []string
	saveStrength  float64
	saveClip      float64
	saveClipSkip  int
)

var saveCmd = &cobra.Command{
	Use:   "save <path>",
	Short: "Edit the notes, base model, tags or usage tips of a model",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		ctx, path := cmd.Context(), args[0]
		flags := cmd.Flags()
		edited := false
		if flags.Changed("notes") {
			if err := a.editor.SaveNotes(ctx, path, saveNotes); err != nil {
				return err
			}
			edited = true
		}
		if flags.Changed("base-model") {
			if err := a.editor.SaveBaseModel(ctx, path, saveBaseModel); err != nil {
				return err
			}
			edited = true
		}
		if flags.Changed("tags") {
			if err := a.editor.SaveTags(ctx, path, saveTags); err != nil {
				return err
			}
			edited = true
		}
		var tips modal.UsageTips
		if flags.Changed("strength") {
			tips.Strength = &saveStrength
		}
		if flags.Changed("clip-strength") {
			tips.ClipStrength = &saveClip
		}
		if flags.Changed("clip-skip") {
			tips.ClipSkip = &saveClipSkip
		}
		if tips != (modal.UsageTips{}) {
			if err := a.editor.SaveUsageTips(ctx, path, tips); err != nil {
				return err
			}
			edited = true
		}
		if !edited {
			return errors.New("nothing to save: pass --notes, --base-model, --tags or a usage tip")
		}
		return nil
	}),
}

var scanFull bool

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Rescan the model folders and reload the listing",
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		return a.controls.RefreshModels(cmd.Context(), scanFull)
	}),
}

var fetchAll bool

var fetchCmd = &cobra.Command{
	Use:   "fetch [path]",
	Short: "Refresh Civitai metadata for one model, or for all with --all",
	Args:  cobra.MaximumNArgs(1),
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		if fetchAll {
			return a.controls.FetchFromCivitai(cmd.Context())
		}
		if len(args) == 0 {
			return errors.New("a model path or --all is required")
		}
		return a.ok(a.models.RefreshSingleModelMetadata(cmd.Context(), args[0]))
	}),
}

var downloadReq models.DownloadRequest

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Ask the backend to download a model from Civitai",
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		if downloadReq.ModelRoot == "" {
			downloadReq.ModelRoot = viper.GetString("download.model_root")
		}
		done, err := a.controls.ShowDownloadModal(cmd.Context(), downloadReq)
		if err != nil {
			return err
		}
		return a.ok(done)
	}),
}

var (
	tagsLimit int
	tagsBase  bool
)

var tagsCmd = &cobra.Command{
	Use:   "tags",
	Short: "List the most used tags, or base models with --base-models",
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		if tagsBase {
			counts, err := a.models.FetchBaseModels(cmd.Context(), tagsLimit)
			if err != nil {
				return err
			}
			for _, c := range counts {
				fmt.Fprintf(os.Stdout, "%6d  %s\n", c.Count, c.Name)
			}
			return nil
		}
		tags, err := a.models.FetchTopTags(cmd.Context(), tagsLimit)
		if err != nil {
			return err
		}
		for _, t := range tags {
			fmt.Fprintf(os.Stdout, "%6d  %s\n", t.Count, t.Tag)
		}
		return nil
	}),
}

var settingsCmd = &cobra.Command{
	Use:   "settings key=value...",
	Short: "Update backend settings",
	Args:  cobra.MinimumNArgs(1),
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		settings := make(map[string]any, len(args))
		for _, kv := range args {
			k, v, found := strings.Cut(kv, "=")
			if !found || k == "" {
				return fmt.Errorf("invalid setting %q, expected key=value", kv)
			}
			settings[k] = v
		}
		return a.client.UpdateSettings(cmd.Context(), settings)
	}),
}

func init() {
	moveCmd.Flags().StringVar(&moveTarget, "to", "", "Target folder")
	moveCmd.MarkFlagRequired("to")

	previewCmd.Flags().IntVar(&previewNsfw, "nsfw-level", 0, "NSFW level of the new preview")

	saveCmd.Flags().StringVar(&saveNotes, "notes", "", "Notes")
	saveCmd.Flags().StringVar(&saveBaseModel, "base-model", "", "Base model")
	saveCmd.Flags().StringSliceVar(&saveTags, "tags", nil, "Tags (comma-separated)")
	saveCmd.Flags().Float64Var(&saveStrength, "strength", 1, "Recommended strength")
	saveCmd.Flags().Float64Var(&saveClip, "clip-strength", 1, "Recommended clip strength")
	saveCmd.Flags().IntVar(&saveClipSkip, "clip-skip", 0, "Recommended clip skip")

	scanCmd.Flags().BoolVar(&scanFull, "full", false, "Rebuild the cache from scratch")
	fetchCmd.Flags().BoolVar(&fetchAll, "all", false, "Fetch metadata for every model, with progress")

	downloadCmd.Flags().IntVar(&downloadReq.ModelID, "model-id", 0, "Civitai model id")
	downloadCmd.Flags().IntVar(&downloadReq.ModelVersionID, "version-id", 0, "Civitai model version id")
	downloadCmd.Flags().StringVar(&downloadReq.ModelRoot, "root", "", "Model root to download into")
	downloadCmd.Flags().StringVar(&downloadReq.RelativePath, "path", "", "Folder below the model root")
	viper.BindPFlag("download.model_root", downloadCmd.Flags().Lookup("root"))

	tagsCmd.Flags().IntVar(&tagsLimit, "limit", 20, "Maximum entries")
	tagsCmd.Flags().BoolVar(&tagsBase, "base-models", false, "List base models instead of tags")

	rootCmd.AddCommand(deleteCmd, excludeCmd, renameCmd, moveCmd, previewCmd, saveCmd,
		scanCmd, fetchCmd, downloadCmd, tagsCmd, settingsCmd)
}
