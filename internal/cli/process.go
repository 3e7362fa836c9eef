package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/voxrecon/internal/config"
	"github.com/raphaelgruber/voxrecon/internal/metrics"
	"github.com/raphaelgruber/voxrecon/internal/models"
	"github.com/raphaelgruber/voxrecon/internal/service"
	"github.com/raphaelgruber/voxrecon/internal/stats"
)

var (
	processReport  bool
	processJSON    bool
	processBackend string
)

var processCmd = &cobra.Command{
	Use:   "process <session.json>",
	Short: "Reconcile a recorded session file",
	Long: `Run the full attribution pipeline over a session file: global clustering,
roster matching, reconciliation, speaker statistics and evidence. With
--report a narrative report is synthesized as well.

The file holds the same payloads the server ingests:
  {"roster": [...], "utterances": [...], "embeddings": [...],
   "events": [...], "turns": [...], "memos": [...]}

Use "-" to read from stdin.

Examples:
  voxrecon process session.json
  voxrecon process session.json --report
  voxrecon process - --json < session.json`,
	Args: cobra.ExactArgs(1),
	RunE: runProcess,
}

func init() {
	processCmd.Flags().BoolVarP(&processReport, "report", "r", false, "synthesize a narrative report")
	processCmd.Flags().BoolVar(&processJSON, "json", false, "print the result as JSON")
	processCmd.Flags().StringVar(&processBackend, "backend", "", "override the configured backend (on_device or cloud)")
}

// processOutput is the JSON shape of a process run.
type processOutput struct {
	Result  *service.Result      `json:"result"`
	Report  *models.Report       `json:"report,omitempty"`
	Ingest  service.IngestResult `json:"ingest"`
	Timings metrics.Snapshot     `json:"timings"`
	Backend string               `json:"backend"`
}

func runProcess(cmd *cobra.Command, args []string) error {
	in, err := readSessionInput(args[0], cmd.InOrStdin())
	if err != nil {
		return err
	}

	c := cfg
	if processBackend != "" {
		c.Backend = processBackend
		if err := c.Validate(); err != nil {
			return err
		}
	}

	out, err := processSession(cmd.Context(), c, in, processReport, logger)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if processJSON {
		return writeJSON(w, out)
	}

	t := defaultTheme
	renderTranscript(w, t, out.Result.Transcript)
	fmt.Fprintln(w)
	renderStats(w, t, out.Result.Stats)
	fmt.Fprintf(w, "\n%d evidence items, %d analysis events", len(out.Result.Evidence), len(out.Result.Events))
	if out.Ingest.Rejected > 0 {
		fmt.Fprintf(w, ", %d embeddings rejected (cache full)", out.Ingest.Rejected)
	}
	fmt.Fprintln(w)
	if out.Report != nil {
		fmt.Fprintln(w)
		renderReport(w, t, out.Report)
	}
	return nil
}

// processSession runs in through a throwaway in-memory session.
func processSession(ctx context.Context, c config.Config, in *sessionInput, withReport bool, logger *slog.Logger) (*processOutput, error) {
	collector := metrics.NewCollector()
	reg, err := service.NewRegistry(c, collector, logger)
	if err != nil {
		return nil, fmt.Errorf("init providers: %w", err)
	}
	svc := service.New(c, reg, service.WithCollector(collector), service.WithLogger(logger))
	id := svc.CreateSession().ID

	if len(in.Roster) > 0 {
		if err := svc.SetRoster(id, in.Roster); err != nil {
			return nil, err
		}
	}
	if err := svc.AddUtterances(id, in.Utterances); err != nil {
		return nil, err
	}
	ingest, err := svc.AddEmbeddings(id, in.Embeddings)
	if err != nil {
		return nil, err
	}
	if err := svc.AddEvents(id, in.Events); err != nil {
		return nil, err
	}
	if err := svc.AddLocalTurns(id, in.Turns); err != nil {
		return nil, err
	}
	if err := svc.AddMemos(id, in.Memos); err != nil {
		return nil, err
	}

	res, err := svc.Reconcile(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("reconcile: %w", err)
	}
	out := &processOutput{Result: res, Ingest: ingest, Backend: c.Backend}

	if withReport {
		rep, err := svc.Report(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("report: %w", err)
		}
		out.Report = rep
	}
	out.Timings = collector.Snapshot()
	return out, nil
}

// renderTranscript prints one line per utterance with its decision tag.
func renderTranscript(w io.Writer, t Theme, utts []models.ReconciledUtterance) {
	fmt.Fprintln(w, t.headerStyle().Render("Transcript"))
	for _, u := range utts {
		speaker := u.SpeakerKey()
		if u.Name() != "" && u.ClusterID != "" {
			speaker += " (" + u.ClusterID + ")"
		}
		fmt.Fprintf(w, "%s %s %s %s\n",
			t.hintStyle().Render(clock(u.StartMs)),
			t.decisionTag(u.Decision),
			t.speakerStyle().Render(speaker+":"),
			strings.TrimSpace(u.Text))
	}
}

func renderStats(w io.Writer, t Theme, s stats.Summary) {
	fmt.Fprintln(w, t.headerStyle().Render("Speakers"))
	fmt.Fprintf(w, "  %-20s %9s %6s %6s %6s\n", "speaker", "talk", "share", "turns", "intr")
	for _, st := range s.Stats {
		fmt.Fprintf(w, "  %-20s %8.1fs %5.1f%% %6d %6d\n",
			st.SpeakerKey, float64(st.TalkTimeMs)/1000, st.TalkTimePct*100, st.Turns, st.Interruptions)
	}
	fmt.Fprintf(w, "  covered %.1fs\n", float64(s.CoveredMs)/1000)
}

func renderReport(w io.Writer, t Theme, rep *models.Report) {
	fmt.Fprintln(w, t.headerStyle().Render("Report"))
	if rep.Summary != "" {
		fmt.Fprintln(w, rep.Summary)
	}
	for _, p := range rep.Persons {
		fmt.Fprintf(w, "\n%s\n", t.speakerStyle().Render(p.DisplayName))
		if p.Summary != "" {
			fmt.Fprintf(w, "  %s\n", p.Summary)
		}
		for _, c := range p.Claims {
			fmt.Fprintf(w, "  • [%s/%s] %s %s\n", c.Dimension, c.Type, c.Text,
				t.hintStyle().Render(strings.Join(c.EvidenceRefs, ",")))
		}
	}
	fmt.Fprintln(w, t.hintStyle().Render(fmt.Sprintf("\nmodel %s, %dms", rep.ModelID, rep.ElapsedMs)))
}
