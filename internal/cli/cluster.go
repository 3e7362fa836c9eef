package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/voxrecon/internal/cluster"
	"github.com/raphaelgruber/voxrecon/internal/models"
)

var (
	clusterThreshold       float64
	clusterLinkage         string
	clusterMinSize         int
	clusterRosterThreshold float64
	clusterJSON            bool
)

var clusterCmd = &cobra.Command{
	Use:   "cluster <session.json>",
	Short: "Cluster voice embeddings and match them to the roster",
	Long: `Run global agglomerative clustering over the embeddings of a session
file and match the resulting clusters to enrolled roster participants.

Flags default to the configured clustering options.

Examples:
  voxrecon cluster session.json
  voxrecon cluster session.json --threshold 0.25 --linkage complete
  voxrecon cluster session.json --json`,
	Args: cobra.ExactArgs(1),
	RunE: runCluster,
}

func init() {
	clusterCmd.Flags().Float64Var(&clusterThreshold, "threshold", 0, "cosine distance at which merging stops")
	clusterCmd.Flags().StringVar(&clusterLinkage, "linkage", "", "average, complete or single")
	clusterCmd.Flags().IntVar(&clusterMinSize, "min-size", 0, "drop clusters with fewer members")
	clusterCmd.Flags().Float64Var(&clusterRosterThreshold, "roster-threshold", 0, "minimum centroid similarity for a roster match")
	clusterCmd.Flags().BoolVar(&clusterJSON, "json", false, "print the result as JSON")
}

// clusterOutput is the JSON shape of a cluster run.
type clusterOutput struct {
	Clusters cluster.Result        `json:"clusters"`
	Mapping  cluster.RosterMapping `json:"mapping"`
}

func runCluster(cmd *cobra.Command, args []string) error {
	in, err := readSessionInput(args[0], cmd.InOrStdin())
	if err != nil {
		return err
	}

	opts := cfg.ClusterOptions()
	rosterThreshold := cfg.RosterThreshold
	flags := cmd.Flags()
	if flags.Changed("threshold") {
		opts.Threshold = clusterThreshold
	}
	if flags.Changed("linkage") {
		if opts.Linkage, err = cluster.ParseLinkage(clusterLinkage); err != nil {
			return err
		}
	}
	if flags.Changed("min-size") {
		opts.MinClusterSize = clusterMinSize
	}
	if flags.Changed("roster-threshold") {
		rosterThreshold = clusterRosterThreshold
	}

	res := cluster.Agglomerative(in.Embeddings, opts)
	out := clusterOutput{
		Clusters: res,
		Mapping:  cluster.MatchRoster(res, in.Roster, rosterThreshold),
	}

	if clusterJSON {
		return writeJSON(cmd.OutOrStdout(), out)
	}
	renderClusters(cmd.OutOrStdout(), defaultTheme, in.Embeddings, out)
	return nil
}

func renderClusters(w io.Writer, t Theme, entries []models.CachedEmbedding, out clusterOutput) {
	spans := make(map[string][2]int64, len(entries))
	for _, e := range entries {
		spans[e.SegmentID] = [2]int64{e.StartMs, e.EndMs}
	}

	fmt.Fprintf(w, "%s %s\n",
		t.headerStyle().Render(fmt.Sprintf("%d clusters from %d segments", len(out.Clusters.IDs), len(entries))),
		t.hintStyle().Render(fmt.Sprintf("(confidence %.2f)", out.Clusters.Confidence)))

	for _, id := range out.Clusters.IDs {
		members := out.Clusters.Clusters[id]
		var talk int64
		first, last := int64(-1), int64(0)
		for _, seg := range members {
			sp := spans[seg]
			talk += sp[1] - sp[0]
			if first < 0 || sp[0] < first {
				first = sp[0]
			}
			last = max(last, sp[1])
		}

		label := t.hintStyle().Render("unmatched")
		if name, ok := out.Mapping.Name(id); ok {
			label = t.speakerStyle().Render(name) + t.hintStyle().Render(fmt.Sprintf(" (%.2f)", out.Mapping.Scores[id]))
		}
		fmt.Fprintf(w, "  %s  %3d segments  %6.1fs  %s-%s  %s\n",
			id, len(members), float64(talk)/1000, clock(max(first, 0)), clock(last), label)
	}
}
