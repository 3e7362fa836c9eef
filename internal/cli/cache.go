package cli

import (
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/voxrecon/internal/embedcache"
	"github.com/raphaelgruber/voxrecon/internal/models"
)

var (
	cacheMaxBytes int64
	cacheJSON     bool
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Work with serialized embedding caches",
}

var cacheInspectCmd = &cobra.Command{
	Use:   "inspect <cache.json>",
	Short: "Summarize a serialized embedding cache",
	Long: `Load a serialized embedding cache under a byte budget and report its
entries, memory usage and per-stream breakdown. Entries that would not fit
the budget are counted as dropped.

Examples:
  voxrecon cache inspect cache.json
  voxrecon cache inspect cache.json --max-bytes 1048576`,
	Args: cobra.ExactArgs(1),
	RunE: runCacheInspect,
}

func init() {
	cacheInspectCmd.Flags().Int64Var(&cacheMaxBytes, "max-bytes", 0, "cache budget (default: configured cache_max_bytes)")
	cacheInspectCmd.Flags().BoolVar(&cacheJSON, "json", false, "print the summary as JSON")
	cacheCmd.AddCommand(cacheInspectCmd)
}

// cacheSummary describes a loaded cache.
type cacheSummary struct {
	Entries    int                       `json:"entries"`
	Dropped    int                       `json:"dropped"`
	Bytes      int64                     `json:"bytes"`
	MaxBytes   int64                     `json:"max_bytes"`
	Dimensions []int                     `json:"dimensions"`
	StartMs    int64                     `json:"start_ms"`
	EndMs      int64                     `json:"end_ms"`
	Streams    map[models.StreamRole]int `json:"streams"`
	Windows    int                       `json:"window_clusters"`
}

func inspectCache(data []byte, maxBytes int64) (cacheSummary, error) {
	c := embedcache.New(maxBytes)
	dropped, err := c.Deserialize(data)
	if err != nil {
		return cacheSummary{}, err
	}

	sum := cacheSummary{
		Entries:  c.Len(),
		Dropped:  dropped,
		Bytes:    c.MemoryUsage(),
		MaxBytes: c.MaxBytes(),
		Streams:  make(map[models.StreamRole]int),
	}
	windows := make(map[string]bool)
	for i, e := range c.All() {
		if i == 0 || e.StartMs < sum.StartMs {
			sum.StartMs = e.StartMs
		}
		sum.EndMs = max(sum.EndMs, e.EndMs)
		sum.Streams[e.StreamRole]++
		if e.WindowClusterID != "" {
			windows[e.WindowClusterID] = true
		}
		if !slices.Contains(sum.Dimensions, len(e.Embedding)) {
			sum.Dimensions = append(sum.Dimensions, len(e.Embedding))
		}
	}
	slices.Sort(sum.Dimensions)
	sum.Windows = len(windows)
	return sum, nil
}

func runCacheInspect(cmd *cobra.Command, args []string) error {
	data, err := readInput(args[0], cmd.InOrStdin())
	if err != nil {
		return err
	}
	maxBytes := cfg.CacheMaxBytes
	if cmd.Flags().Changed("max-bytes") {
		maxBytes = cacheMaxBytes
	}

	sum, err := inspectCache(data, maxBytes)
	if err != nil {
		return err
	}
	if cacheJSON {
		return writeJSON(cmd.OutOrStdout(), sum)
	}
	renderCacheSummary(cmd.OutOrStdout(), defaultTheme, sum)
	return nil
}

func renderCacheSummary(w io.Writer, t Theme, sum cacheSummary) {
	fmt.Fprintln(w, t.headerStyle().Render("Embedding cache"))
	fmt.Fprintf(w, "  entries:  %d\n", sum.Entries)
	if sum.Dropped > 0 {
		fmt.Fprintf(w, "  dropped:  %s\n", t.decisionStyle(models.DecisionUnknown).Render(fmt.Sprint(sum.Dropped)))
	}
	pct := 0.0
	if sum.MaxBytes > 0 {
		pct = float64(sum.Bytes) / float64(sum.MaxBytes) * 100
	}
	fmt.Fprintf(w, "  memory:   %d / %d bytes (%.1f%%)\n", sum.Bytes, sum.MaxBytes, pct)
	fmt.Fprintf(w, "  dims:     %v\n", sum.Dimensions)
	if sum.Entries > 0 {
		fmt.Fprintf(w, "  span:     %s-%s\n", clock(sum.StartMs), clock(sum.EndMs))
	}
	fmt.Fprintf(w, "  windows:  %d provisional clusters\n", sum.Windows)

	roles := make([]string, 0, len(sum.Streams))
	for r := range sum.Streams {
		roles = append(roles, string(r))
	}
	slices.Sort(roles)
	for _, r := range roles {
		fmt.Fprintf(w, "  %-9s %d\n", r+":", sum.Streams[models.StreamRole(r)])
	}
}
