package cli

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ppiankov/rectify/internal/pipeline"
	"github.com/ppiankov/rectify/internal/report"
)

var statusJSON bool

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Initialize every component and report its status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		p, err := buildPipeline(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer func() { _ = p.Close() }()

		st := p.Status(cmd.Context())
		if statusJSON {
			return report.NewRenderer().WriteJSON(cmd.OutOrStdout(), st)
		}
		printStatus(cmd.OutOrStdout(), st)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print status as JSON")
}

func printStatus(w io.Writer, st pipeline.Status) {
	fmt.Fprintf(w, "Status: %s (up %s)\n\n", st.Status, st.Uptime)

	names := make([]string, 0, len(st.Components))
	for name := range st.Components {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		c := st.Components[name]
		mark := "✓"
		if !c.Initialized {
			mark = "✗"
		}
		fmt.Fprintf(w, "  %s %-11s %s", mark, name, c.Type)
		if c.Detail != "" {
			fmt.Fprintf(w, "  %s", c.Detail)
		}
		fmt.Fprintln(w)
	}
}
