package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var eventsLimit int

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show the lifecycle journal, newest first",
	Args:  cobra.NoArgs,
	RunE: withServices(func(cmd *cobra.Command, _ []string, s *services) error {
		events, err := s.svc.Events(cmd.Context(), eventsLimit)
		if err != nil {
			return err
		}
		return render(cmd, events, func(w io.Writer) {
			table(w, "TIME\tACTION\tSUBJECT\tOUTCOME\tMESSAGE", func(tw io.Writer) {
				for _, e := range events {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
						e.Time.Local().Format("2006-01-02 15:04:05"), e.Action, e.Subject, e.Outcome, e.Message)
				}
			})
		})
	}),
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.Flags().IntVarP(&eventsLimit, "limit", "n", 20, "Number of events to show (0 for all)")
}
