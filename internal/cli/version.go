package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/voxrecon/internal/client"
)

var versionServer bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the voxrecon version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "voxrecon %s\n", Version)
		if !versionServer {
			return nil
		}
		// PersistentPreRunE is skipped for version, so build the client here.
		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()
		v, err := client.New(serverURL).Version(ctx)
		if err != nil {
			return fmt.Errorf("get server version: %w", err)
		}
		fmt.Fprintf(w, "server   %s\n", v)
		return nil
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionServer, "server-version", false, "also query the server version")
}
