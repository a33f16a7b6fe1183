package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"go-lora-manager/internal/api"
	"go-lora-manager/internal/widget"
)

var widgetCmd = &cobra.Command{
	Use:   "widget",
	Short: "Edit lora widgets and workflows offline",
}

// readLoraList reads a JSON lora list from path, or returns nil when path is empty.
func readLoraList(path string) ([]widget.Lora, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entries []widget.Lora
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing lora list %s: %w", path, err)
	}
	return entries, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var widgetList string

var widgetMergeCmd = &cobra.Command{
	Use:   "merge <prompt text>",
	Short: "Merge the lora tags of a prompt into a lora list",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		existing, err := readLoraList(widgetList)
		if err != nil {
			return err
		}
		return printJSON(widget.MergeLoras(strings.Join(args, " "), existing))
	},
}

var widgetFormatCmd = &cobra.Command{
	Use:   "format",
	Short: "Print the prompt text of a lora list",
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := readLoraList(widgetList)
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, widget.FormatLoras(entries))
		return nil
	},
}

var widgetSyncCmd = &cobra.Command{
	Use:   "sync <prompt text>",
	Short: "Drop tags from a prompt that are no longer in the lora list",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := readLoraList(widgetList)
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, widget.SyncText(strings.Join(args, " "), entries))
		return nil
	},
}

var widgetScaleCmd = &cobra.Command{
	Use:   "scale <dx pixels>",
	Short: "Scale every strength of a lora list as a drag of dx pixels would",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var dx float64
		if _, err := fmt.Sscanf(args[0], "%g", &dx); err != nil {
			return fmt.Errorf("invalid dx %q: %w", args[0], err)
		}
		entries, err := readLoraList(widgetList)
		if err != nil {
			return err
		}
		return printJSON(widget.ScaleAllStrengths(entries, dx))
	},
}

var widgetToggleOff bool

var widgetToggleCmd = &cobra.Command{
	Use:   "toggle [lora name]",
	Short: "Flip one lora of a list, or set every lora with --all",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := readLoraList(widgetList)
		if err != nil {
			return err
		}
		if all, _ := cmd.Flags().GetBool("all"); all {
			return printJSON(widget.SetAllActive(entries, !widgetToggleOff))
		}
		if len(args) == 0 {
			return errors.New("a lora name or --all is required")
		}
		return printJSON(widget.ToggleActive(entries, args[0]))
	},
}

var widgetStrengthCmd = &cobra.Command{
	Use:   "set-strength <lora name> <strength>",
	Short: "Set the model strength of one lora of a list",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		strength, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("invalid strength %q: %w", args[1], err)
		}
		entries, err := readLoraList(widgetList)
		if err != nil {
			return err
		}
		return printJSON(widget.SetStrength(entries, args[0], strength))
	},
}

var widgetRemoveCmd = &cobra.Command{
	Use:   "remove <lora name>",
	Short: "Remove a lora from a list",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := readLoraList(widgetList)
		if err != nil {
			return err
		}
		return printJSON(widget.RemoveLora(entries, args[0]))
	},
}

var widgetTriggersCmd = &cobra.Command{
	Use:   "triggers <workflow.json> [node id]",
	Short: "Propagate trigger words from lora nodes to their toggle nodes",
	Long: `Reads a saved workflow, asks the backend for the trigger words of every
active lora on each loader or stacker node (or only the given node) and prints
the resulting tag state of the connected trigger word toggles.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		wf, err := widget.ParseWorkflow(data)
		if err != nil {
			return err
		}
		ids := wf.LoraNodes()
		if len(args) == 2 {
			var id int
			if _, err := fmt.Sscanf(args[1], "%d", &id); err != nil {
				return fmt.Errorf("invalid node id %q", args[1])
			}
			ids = []int{id}
		}

		client, err := api.NewClient(globalConfig, newHTTPClient())
		if err != nil {
			return err
		}
		p := &widget.Propagator{Source: client.Widgets()}
		result := make(map[int][]widget.Tag)
		for _, id := range ids {
			_, entries, err := wf.Loras(id)
			if err != nil {
				return err
			}
			updated, err := p.Propagate(cmd.Context(), wf, id, entries)
			if err != nil {
				return err
			}
			for _, target := range updated {
				result[target] = wf.Tags(target)
			}
		}
		return printJSON(result)
	},
}

var widgetInfoCmd = &cobra.Command{
	Use:   "info <lora name>",
	Short: "Show the Civitai URL, notes and trigger words of a lora",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := api.NewClient(globalConfig, newHTTPClient())
		if err != nil {
			return err
		}
		w, ctx, name := client.Widgets(), cmd.Context(), args[0]
		civitaiURL, err := w.GetCivitaiURL(ctx, name)
		if err != nil {
			return err
		}
		notes, err := w.GetNotes(ctx, name)
		if err != nil {
			return err
		}
		words, err := w.GetLoraTriggerWords(ctx, name)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Civitai: %s\nNotes: %s\nTrigger words: %s\n", civitaiURL, notes, strings.Join(words, ", "))
		return nil
	},
}

var widgetSaveRecipeCmd = &cobra.Command{
	Use:   "save-recipe",
	Short: "Save the current workflow of the host as a recipe",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := api.NewClient(globalConfig, newHTTPClient())
		if err != nil {
			return err
		}
		return client.Widgets().SaveRecipeFromWidget(cmd.Context())
	},
}

func init() {
	edits := []*cobra.Command{widgetFormatCmd, widgetScaleCmd, widgetToggleCmd, widgetStrengthCmd, widgetRemoveCmd}
	for _, c := range append([]*cobra.Command{widgetMergeCmd, widgetSyncCmd}, edits...) {
		c.Flags().StringVar(&widgetList, "list", "", "JSON file holding the current lora list")
	}
	for _, c := range edits {
		c.MarkFlagRequired("list")
	}
	widgetToggleCmd.Flags().Bool("all", false, "Set every lora instead of flipping one")
	widgetToggleCmd.Flags().BoolVar(&widgetToggleOff, "off", false, "With --all, deactivate instead of activate")

	widgetCmd.AddCommand(widgetMergeCmd, widgetFormatCmd, widgetSyncCmd, widgetScaleCmd,
		widgetToggleCmd, widgetStrengthCmd, widgetRemoveCmd,
		widgetTriggersCmd, widgetInfoCmd, widgetSaveRecipeCmd)
	rootCmd.AddCommand(widgetCmd)
}
