// Command rcmd is the CLI client for the remote command-execution
// service: it submits commands to a principal's pool on a remote
// rcmd-server and reads back status, output, and listings.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

func main() {
	if err := buildRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRootCommand wires the two connection parameters -- the
// certificate directory and the bare server host -- as persistent flags
// rather than leading positional arguments: Cobra dispatches the first
// non-flag token as a subcommand name, so it has no notion of "global
// positionals before the subcommand" the way a StructOpt-style parser
// does. --certs and --host carry the same required information.
func buildRootCommand() *cobra.Command {
	var certDir, host string

	root := &cobra.Command{
		Use:   "rcmd",
		Short: "Submit and manage commands on a remote rcmd-server",
		Long: `rcmd talks to a remote rcmd-server over mutual TLS.

--certs must name a directory containing rootCA.crt and
clientKeyCert.pem, as produced by gencerts. --host is bare -- no scheme,
no port -- rcmd always connects over HTTPS on port 8000.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			client, err := newAPIClient(certDir, host)
			if err != nil {
				return fmt.Errorf("connecting to %s: %w", host, err)
			}
			cmd.SetContext(withClient(cmd.Context(), client))
			return nil
		},
	}
	root.PersistentFlags().StringVar(&certDir, "certs", "", "directory containing rootCA.crt and clientKeyCert.pem")
	root.PersistentFlags().StringVar(&host, "host", "", "remote server host, no scheme or port")
	root.MarkPersistentFlagRequired("certs")
	root.MarkPersistentFlagRequired("host")

	root.AddCommand(buildExecCommand(), buildListCommand(), buildStatusCommand(), buildOutputCommand(), buildDeleteCommand())
	return root
}

func buildExecCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "exec <command> [args...]",
		Short: "Submit a command to run on the server",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFrom(cmd.Context())
			id, err := client.submit(args[0], args[1:])
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				return nil
			}
			fmt.Println(id)
			return nil
		},
	}
	// Flags are parsed only up to <command>, so --certs/--host are still
	// read while the remote command's own flags pass through as args.
	c.Flags().SetInterspersed(false)
	return c
}

func buildListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every job submitted by this principal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFrom(cmd.Context())
			jobs, err := client.list()
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				return nil
			}
			out, _ := json.MarshalIndent(jobs, "", "  ")
			fmt.Println(string(out))
			return nil
		},
	}
}

func buildStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status <id>",
		Short: "Show a job's current status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid job id %q: %w", args[0], err)
			}
			client := clientFrom(cmd.Context())
			st, err := client.status(id)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				return nil
			}
			out, _ := json.Marshal(st)
			fmt.Println(string(out))
			return nil
		},
	}
}

func buildOutputCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "output <id>",
		Short: "Show a job's accumulated stdout and stderr",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid job id %q: %w", args[0], err)
			}
			client := clientFrom(cmd.Context())
			out, err := client.output(id)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				return nil
			}
			fmt.Print(out.Stdout())
			fmt.Fprint(os.Stderr, out.Stderr())
			return nil
		},
	}
}

func buildDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Kill a running job and remove it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid job id %q: %w", args[0], err)
			}
			client := clientFrom(cmd.Context())
			if err := client.delete(id); err != nil {
				fmt.Fprintln(os.Stderr, err)
				return nil
			}
			return nil
		},
	}
}
