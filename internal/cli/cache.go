package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/guiyumin/mediagrab/internal/core/mediastore"
)

var cacheJSON bool

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect the local media cache",
}

var cacheLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List cached videos, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(false)
		if err != nil {
			return err
		}
		entries, err := a.Media.List()
		if err != nil {
			return err
		}
		if cacheJSON {
			return writeEntriesJSON(cmd.OutOrStdout(), entries)
		}
		writeEntries(cmd.OutOrStdout(), a.Media.Root(), entries)
		return nil
	},
}

func init() {
	cacheLsCmd.Flags().BoolVar(&cacheJSON, "json", false, "output as JSON")
	cacheCmd.AddCommand(cacheLsCmd)
	rootCmd.AddCommand(cacheCmd)
}

// CacheEntry is the JSON shape of a cached file
type CacheEntry struct {
	Namespace string `json:"namespace"`
	ID        string `json:"id"`
	Path      string `json:"path"`
	Size      int64  `json:"size"`
	Modified  string `json:"modified"`
}

func writeEntriesJSON(w io.Writer, entries []mediastore.Entry) error {
	out := make([]CacheEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, CacheEntry{
			Namespace: e.Key.Namespace,
			ID:        e.Key.ID,
			Path:      e.Path,
			Size:      e.Size,
			Modified:  e.ModTime.UTC().Format("2006-01-02T15:04:05Z"),
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func writeEntries(w io.Writer, root string, entries []mediastore.Entry) {
	if len(entries) == 0 {
		fmt.Fprintf(w, "  No cached videos in %s\n", root)
		return
	}

	var total uint64
	for _, e := range entries {
		total += uint64(e.Size)
		fmt.Fprintf(w, "  %-30s %10s  %s\n", e.Key.String(), humanize.Bytes(uint64(e.Size)), color.New(color.Faint).Sprint(humanize.Time(e.ModTime)))
	}
	fmt.Fprintf(w, "\n  %d file(s), %s in %s\n", len(entries), humanize.Bytes(total), root)
}
