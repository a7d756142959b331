package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var caCmd = &cobra.Command{
	Use:   "ca",
	Short: "Manage the certificate authority",
}

var caInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the CA key and certificate if they do not exist",
	Args:  cobra.NoArgs,
	RunE: withServices(func(cmd *cobra.Command, _ []string, s *services) error {
		res, err := s.svc.Bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		return render(cmd, res, func(w io.Writer) {
			fmt.Fprintln(w, res.Message)
			fmt.Fprintf(w, "certificate: %s\nkey:         %s\n", res.CertPath, res.KeyPath)
		})
	}),
}

func init() {
	rootCmd.AddCommand(caCmd)
	caCmd.AddCommand(caInitCmd)
}
