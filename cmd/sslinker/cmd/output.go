package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

// cliJournalWait bounds how long a CLI command waits for the journal lock.
const cliJournalWait = 500 * time.Millisecond

var jsonOutput bool

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")
}

// withServices opens the service graph for the duration of run.
func withServices(run func(cmd *cobra.Command, args []string, s *services) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		s, err := openServices(cfg, cliJournalWait)
		if err != nil {
			return err
		}
		defer s.Close()
		return run(cmd, args, s)
	}
}

// render writes v as indented JSON when --json is set, otherwise calls human.
func render(cmd *cobra.Command, v any, human func(w io.Writer)) error {
	w := cmd.OutOrStdout()
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	human(w)
	return nil
}

func table(w io.Writer, header string, rows func(tw io.Writer)) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, header)
	rows(tw)
	tw.Flush()
}
