package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"go-lora-manager/internal/modal"
	"go-lora-manager/internal/scroller"
	"go-lora-manager/internal/state"
)

var (
	listPages     int
	listFilter    string
	listFavorites bool
	listLetter    string
	listLoraHash  string
	listBulk      bool
	listSearch    string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List models of the current type with the stored sort, folder and filters",
	RunE:  runList,
}

var showCmd = &cobra.Command{
	Use:   "show <path|file name|model name>",
	Short: "Show the details of one model",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		item, err := a.findModel(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return modal.Render(os.Stdout, item, a.sc.Page.PreviewVersions()[item.FilePath])
	},
}

func init() {
	listCmd.Flags().IntVar(&listPages, "pages", 1, "Number of pages to load (0 loads everything)")
	listCmd.Flags().StringVar(&listFilter, "filter", "", "Only show cards fuzzily matching this name")
	listCmd.Flags().BoolVar(&listFavorites, "favorites", false, "Only list favorites")
	listCmd.Flags().StringVar(&listLetter, "letter", "", "Only list names starting with this letter")
	listCmd.Flags().StringVar(&listLoraHash, "lora-hash", "", "Only list the lora with this hash (custom filter)")
	listCmd.Flags().StringVarP(&listSearch, "search", "s", "", "Search term, matched by the backend per the stored search options")
	listCmd.Flags().BoolVar(&listBulk, "bulk", false, "Show bulk selection markers")
	rootCmd.AddCommand(listCmd, showCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := cmd.Context()

	a.sc.Page.SetShowFavoritesOnly(listFavorites)
	a.sc.Page.SetActiveLetterFilter(listLetter)
	if listSearch != "" {
		f := a.sc.Page.Filters()
		f.Search = listSearch
		a.sc.Page.SetFilters(f)
	}
	if listLoraHash != "" {
		if err := a.store.Session.Set(state.FilterLoraHashKey, listLoraHash); err != nil {
			return err
		}
	}
	if listBulk {
		if _, err := a.controls.ToggleBulkMode(); err != nil {
			return err
		}
	}

	if err := a.controls.ResetAndReload(ctx, true); err != nil {
		return err
	}
	// The first page is already loaded; --pages 0 maps to LoadPages(0), which loads the rest.
	if listPages != 1 {
		if _, err := a.models.LoadPages(ctx, max(listPages-1, 0)); err != nil {
			return err
		}
	}

	if folders := a.sc.Page.Folders(); len(folders) > 0 {
		fmt.Fprintf(os.Stdout, "Folders: %v\n", folders)
	}
	if active := a.sc.Page.ActiveFolder(); active != "" {
		fmt.Fprintf(os.Stdout, "Active folder: %s\n", active)
	}
	return a.sc.Scroller.Render(os.Stdout, scroller.RenderOptions{
		PreviewVersions: a.sc.Page.PreviewVersions(),
		Filter:          listFilter,
		Selected:        a.sc.Page.Selected(),
	})
}
