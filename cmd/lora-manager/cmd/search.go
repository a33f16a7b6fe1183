package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-lora-manager/index"
)

var (
	searchReindex bool
	searchReset   bool
	searchLimit   int
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the local model index (bleve query syntax)",
	Long: `Search the local full-text index of the library. Fields are searchable by
name, e.g. '+baseModel:"SDXL 1.0" +tags:anime'. Use --reindex to rebuild the
index of the current model type from the backend first, and --reset to start
from an empty index.`,
	Args: cobra.MinimumNArgs(1),
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		if searchReset {
			if err := index.DeleteIndex(globalConfig.IndexPath); err != nil {
				return err
			}
		}
		idx, err := index.OpenOrCreateIndex(globalConfig.IndexPath)
		if err != nil {
			return err
		}
		defer idx.Close()

		if searchReindex {
			all, err := a.models.FetchAllModels(cmd.Context(), 0)
			if err != nil {
				return err
			}
			removed, err := index.ReplaceModels(idx, a.models.ModelType(), all)
			if err != nil {
				return err
			}
			log.Infof("Indexed %d %s models, dropped %d stale entries", len(all), a.models.Endpoints().Display, removed)
		}

		hits, total, err := index.SearchIndex(idx, strings.Join(args, " "), searchLimit)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "Score\tName\tBase Model\tPath")
		for _, h := range hits {
			fmt.Fprintf(tw, "%.3f\t%s\t%s\t%s\n", h.Score, h.Name, h.BaseModel, h.FilePath)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "%d of %d matches\n", len(hits), total)
		return nil
	}),
}

func init() {
	searchCmd.Flags().BoolVar(&searchReindex, "reindex", false, "Rebuild the index from the backend first")
	searchCmd.Flags().BoolVar(&searchReset, "reset", false, "Delete the whole index before searching")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 20, "Maximum hits")
	rootCmd.AddCommand(searchCmd)
}
