package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jmcleod/sslinker/proxy"
)

var proxyCmd = &cobra.Command{
	Use:     "proxy",
	Aliases: []string{"nginx"},
	Short:   "Manage nginx virtual hosts and the nginx process",
}

var (
	addCertDomain string
	addProxyPass  string
)

var proxyAddCmd = &cobra.Command{
	Use:   "add <server-name>",
	Short: "Write a virtual host and reload nginx",
	Args:  cobra.ExactArgs(1),
	RunE: withServices(func(cmd *cobra.Command, args []string, s *services) error {
		p := proxy.Params{ServerName: args[0], CertDomain: addCertDomain, ProxyPass: addProxyPass}
		if p.CertDomain == "" {
			p.CertDomain = p.ServerName
		}
		res, err := s.svc.Configure(cmd.Context(), p)
		return renderResult(cmd, res, err)
	}),
}

var proxyRemoveCmd = &cobra.Command{
	Use:   "remove <server-name>",
	Short: "Remove a virtual host and reload nginx",
	Args:  cobra.ExactArgs(1),
	RunE: withServices(func(cmd *cobra.Command, args []string, s *services) error {
		res, err := s.svc.RemoveConfig(cmd.Context(), args[0])
		return renderResult(cmd, res, err)
	}),
}

// renderResult prints res when the file change happened, then returns err
// so a failed reload still exits non-zero.
func renderResult(cmd *cobra.Command, res *proxy.Result, err error) error {
	if res == nil {
		return err
	}
	if rerr := render(cmd, res, func(w io.Writer) {
		fmt.Fprintln(w, res.Message)
		fmt.Fprintf(w, "config: %s\n", res.Path)
	}); rerr != nil {
		return rerr
	}
	return err
}

var proxyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List virtual hosts",
	Args:  cobra.NoArgs,
	RunE: withServices(func(cmd *cobra.Command, _ []string, s *services) error {
		hosts, err := s.svc.VirtualHosts()
		if err != nil {
			return err
		}
		return render(cmd, hosts, func(w io.Writer) {
			table(w, "SERVER NAME\tUPSTREAM\tCONFIG", func(tw io.Writer) {
				for _, h := range hosts {
					up := h.Upstream
					if up == "" {
						up = "-"
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\n", h.Name, up, h.Path)
				}
			})
		})
	}),
}

func controlCommand(use, short string, fn func(*services) func(context.Context) (string, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: withServices(func(cmd *cobra.Command, _ []string, s *services) error {
			out, err := fn(s)(cmd.Context())
			if out != "" {
				fmt.Fprintln(cmd.OutOrStdout(), out)
			}
			return err
		}),
	}
}

var proxyStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether nginx is running",
	Args:  cobra.NoArgs,
	RunE: withServices(func(cmd *cobra.Command, _ []string, s *services) error {
		state := s.svc.ProxyStatus(cmd.Context())
		return render(cmd, map[string]proxy.State{"status": state}, func(w io.Writer) {
			fmt.Fprintln(w, state)
		})
	}),
}

var proxyHostsCmd = &cobra.Command{
	Use:   "hosts",
	Short: "Print hosts-file lines mapping every virtual host to the local address",
	Args:  cobra.NoArgs,
	RunE: withServices(func(cmd *cobra.Command, _ []string, s *services) error {
		lines, err := s.svc.Hosts()
		if err != nil {
			return err
		}
		return render(cmd, lines, func(w io.Writer) {
			for _, l := range lines {
				fmt.Fprintln(w, l)
			}
		})
	}),
}

var localAddrCmd = &cobra.Command{
	Use:   "local-addr",
	Short: "Show or set the address the virtual hosts resolve to",
}

var localAddrGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the saved local address",
	Args:  cobra.NoArgs,
	RunE: withServices(func(cmd *cobra.Command, _ []string, s *services) error {
		addr, err := s.svc.LocalAddress()
		if err != nil {
			return err
		}
		return render(cmd, map[string]string{"local_addr": addr}, func(w io.Writer) {
			fmt.Fprintln(w, addr)
		})
	}),
}

var localAddrSetCmd = &cobra.Command{
	Use:   "set <address>",
	Short: "Save the local address",
	Args:  cobra.ExactArgs(1),
	RunE: withServices(func(cmd *cobra.Command, args []string, s *services) error {
		addr, err := s.svc.SetLocalAddress(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return render(cmd, map[string]string{"local_addr": addr}, func(w io.Writer) {
			fmt.Fprintf(w, "local address set to %s\n", addr)
		})
	}),
}

func init() {
	rootCmd.AddCommand(proxyCmd)
	proxyCmd.AddCommand(
		proxyAddCmd,
		proxyRemoveCmd,
		proxyListCmd,
		controlCommand("start", "Start nginx", func(s *services) func(context.Context) (string, error) { return s.svc.StartProxy }),
		controlCommand("stop", "Stop nginx", func(s *services) func(context.Context) (string, error) { return s.svc.StopProxy }),
		controlCommand("reload", "Reload the nginx configuration", func(s *services) func(context.Context) (string, error) { return s.svc.ReloadProxy }),
		proxyStatusCmd,
		proxyHostsCmd,
		localAddrCmd,
	)
	localAddrCmd.AddCommand(localAddrGetCmd, localAddrSetCmd)

	proxyAddCmd.Flags().StringVar(&addCertDomain, "cert-domain", "", "Certificate to serve (default the server name)")
	proxyAddCmd.Flags().StringVar(&addProxyPass, "proxy-pass", "", "Upstream URL, e.g. http://127.0.0.1:8080")
	proxyAddCmd.MarkFlagRequired("proxy-pass")
}
