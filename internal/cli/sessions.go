package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/voxrecon/internal/models"
	"github.com/raphaelgruber/voxrecon/internal/service"
)

var sessionsForce bool

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect sessions on a running server",
	Long: `List and manage live sessions on a voxrecon server.

Subcommands:
  list        List live sessions (default)
  show        Show a session and its transcript
  finalize    Run final analysis and print the report
  delete      Drop a live session

Examples:
  voxrecon sessions
  voxrecon sessions show 5f0c...
  voxrecon sessions finalize 5f0c...
  voxrecon --server http://recon:8080 sessions delete 5f0c... --force`,
	RunE: runSessionsList,
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List live sessions",
	RunE:  runSessionsList,
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show a session and its reconciled transcript",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsShow,
}

var sessionsFinalizeCmd = &cobra.Command{
	Use:   "finalize <session-id>",
	Short: "Finalize a session and print its report",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsFinalize,
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <session-id>",
	Short: "Drop a live session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsDelete,
}

func init() {
	sessionsDeleteCmd.Flags().BoolVarP(&sessionsForce, "force", "f", false, "skip confirmation")

	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsFinalizeCmd)
	sessionsCmd.AddCommand(sessionsDeleteCmd)
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	infos, err := apiClient.ListSessions(cmd.Context())
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	renderSessions(cmd.OutOrStdout(), defaultTheme, infos)
	return nil
}

func renderSessions(w io.Writer, t Theme, infos []service.Info) {
	if len(infos) == 0 {
		fmt.Fprintln(w, t.hintStyle().Render("No live sessions."))
		return
	}
	fmt.Fprintf(w, "Sessions (%d):\n\n", len(infos))
	for _, s := range infos {
		report := ""
		if s.HasReport {
			report = " report"
		}
		fmt.Fprintf(w, "  %s  %-10s %4d utts %5d embs %2d incr  %s%s\n",
			s.ID, s.Status, s.Utterances, s.Embeddings, s.Increments,
			t.hintStyle().Render(s.LastActive.Format("2006-01-02 15:04")), report)
	}
}

func runSessionsShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	info, err := apiClient.GetSession(ctx, args[0])
	if err != nil {
		return fmt.Errorf("get session: %w", err)
	}
	w := cmd.OutOrStdout()
	t := defaultTheme
	fmt.Fprintf(w, "%s %s\n", t.speakerStyle().Render(info.ID), info.Status)
	fmt.Fprintf(w, "  recorded to %s, processed to %s, %d increments\n",
		clock(info.RecordedEndMs), clock(info.LastProcessedEndMs), info.Increments)
	fmt.Fprintf(w, "  cache %d / %d bytes, %d rejected\n\n", info.CacheBytes, info.CacheMaxBytes, info.Rejected)

	transcript, err := apiClient.Transcript(ctx, args[0])
	if err != nil {
		return fmt.Errorf("get transcript: %w", err)
	}
	renderTranscript(w, t, transcript)
	return nil
}

func runSessionsFinalize(cmd *cobra.Command, args []string) error {
	rep, err := apiClient.Finalize(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("finalize: %w", err)
	}
	renderReport(cmd.OutOrStdout(), defaultTheme, rep)
	return nil
}

func runSessionsDelete(cmd *cobra.Command, args []string) error {
	id := args[0]
	if !sessionsForce {
		fmt.Printf("About to drop session %s. Unpersisted data is lost.\n", id)
		fmt.Print("\nContinue? [y/N]: ")

		reader := bufio.NewReader(os.Stdin)
		answer, _ := reader.ReadString('\n')
		answer = strings.TrimSpace(strings.ToLower(answer))
		if answer != "y" && answer != "yes" {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	if err := apiClient.DeleteSession(cmd.Context(), id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s Dropped session %s\n", defaultTheme.decisionStyle(models.DecisionAuto).Render("✓"), id)
	return nil
}
