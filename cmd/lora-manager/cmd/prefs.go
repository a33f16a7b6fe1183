package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-lora-manager/internal/state"
)

var folderCmd = &cobra.Command{
	Use:   "folder [name]",
	Short: "Toggle the active folder filter, or clear it without a name",
	Args:  cobra.MaximumNArgs(1),
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		ctx := cmd.Context()
		if len(args) == 0 {
			current := a.sc.Page.ActiveFolder()
			if current == "" {
				fmt.Fprintln(os.Stdout, "No active folder")
				return nil
			}
			_, err := a.controls.ToggleFolder(ctx, current)
			return err
		}
		// Folders are only known after a listing.
		if err := a.controls.ResetAndReload(ctx, true); err != nil {
			return err
		}
		folder, err := a.controls.ResolveFolder(args[0])
		if err != nil {
			return err
		}
		active, err := a.controls.ToggleFolder(ctx, folder)
		if err != nil {
			return err
		}
		if active == "" {
			fmt.Fprintln(os.Stdout, "Folder filter cleared")
		} else {
			fmt.Fprintf(os.Stdout, "Active folder: %s\n", active)
		}
		return nil
	}),
}

var sortCmd = &cobra.Command{
	Use:       "sort <name|date|size>",
	Short:     "Set the sort order of the listing",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{state.SortByName, state.SortByDate, state.SortBySize},
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		return a.controls.SetSort(cmd.Context(), args[0])
	}),
}

var (
	filterTags       []string
	filterBaseModels []string
	searchOpts       state.SearchOptions
)

var filterCmd = &cobra.Command{
	Use:   "filter",
	Short: "Set the stored tag and base model filters (no flags clears them)",
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		return a.controls.SetFilters(cmd.Context(), filterTags, filterBaseModels)
	}),
}

var searchOptionsCmd = &cobra.Command{
	Use:   "search-options",
	Short: "Choose which fields the search term matches",
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		return a.controls.SetSearch(cmd.Context(), a.sc.Page.Filters().Search, &searchOpts)
	}),
}

var clearFilterCmd = &cobra.Command{
	Use:   "clear-filter",
	Short: "Drop the custom lora hash filter",
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		return a.controls.ClearCustomFilter(cmd.Context())
	}),
}

var collapseCmd = &cobra.Command{
	Use:   "collapse-folders",
	Short: "Toggle whether the folder tags are collapsed",
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		collapsed, err := a.controls.ToggleFolderTagsCollapsed()
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Folder tags collapsed: %t\n", collapsed)
		return nil
	}),
}

var storageCmd = &cobra.Command{
	Use:   "storage",
	Short: "Inspect and edit the local preference store",
}

var storageKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List stored keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()
		keys, err := store.Local.Keys()
		if err != nil {
			return err
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintln(os.Stdout, k)
		}
		return nil
	},
}

var storageGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print a stored value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()
		v := store.Local.Value(args[0], nil)
		if v == nil {
			return fmt.Errorf("key %q not set", args[0])
		}
		if s, isString := v.(string); isString {
			fmt.Fprintln(os.Stdout, s)
			return nil
		}
		out, err := json.Marshal(v)
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, string(out))
		return nil
	},
}

var storageSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Store a value (JSON values are kept as JSON)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()
		return store.Local.Set(args[0], args[1])
	},
}

var storageRemoveCmd = &cobra.Command{
	Use:     "rm <key>",
	Aliases: []string{"remove"},
	Short:   "Remove a stored value",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()
		return store.Local.Remove(args[0])
	},
}

var storageMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Move legacy unprefixed keys under the storage prefix",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()
		// openStore already migrates; a second run reports zero.
		n, err := store.MigrateStorageItems()
		if err != nil {
			return err
		}
		log.Infof("Migrated %d keys", n)
		return nil
	},
}

func init() {
	filterCmd.Flags().StringSliceVar(&filterTags, "tags", nil, "Tags to filter by")
	filterCmd.Flags().StringSliceVar(&filterBaseModels, "base-models", nil, "Base models to filter by")

	searchOptionsCmd.Flags().BoolVar(&searchOpts.Filename, "filename", true, "Match file names")
	searchOptionsCmd.Flags().BoolVar(&searchOpts.ModelName, "modelname", true, "Match model names")
	searchOptionsCmd.Flags().BoolVar(&searchOpts.Tags, "tags", false, "Match tags")
	searchOptionsCmd.Flags().BoolVar(&searchOpts.Recursive, "recursive", false, "Search subfolders of the active folder")

	storageCmd.AddCommand(storageKeysCmd, storageGetCmd, storageSetCmd, storageRemoveCmd, storageMigrateCmd)
	rootCmd.AddCommand(folderCmd, sortCmd, filterCmd, searchOptionsCmd, clearFilterCmd, collapseCmd, storageCmd)
}
