package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRoot assembles the command tree.
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	runFlags := &RunFlags{}
	apiFlags := &APIFlags{}
	startFlags := &StartFlags{}
	projectFlags := &ProjectFlags{}
	resolveFlags := &ResolveFlags{}

	c := command{global: globalFlags}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createRunCommand(c, runFlags),
		createStatusCommand(c, apiFlags),
		createStartCommand(c, startFlags),
		createRestartCommand(c, startFlags),
		createStopCommand(c, apiFlags),
		createURLCommand(c, apiFlags),
		createProjectCommand(c, projectFlags),
		createResolveCommand(c, resolveFlags),
		createVerifyCommand(c),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "ocsup",
		Short: "Supervise a local opencode server",
		Long: `ocsup launches one local "serve" process, waits until its health endpoint
answers and tears it down together with its child processes on request.

Examples:
  ocsup run --config ocsup.toml            # supervise in the foreground
  ocsup run --project ~/notes --start      # start immediately for a project
  ocsup status                             # ask a running ocsup for its state
  ocsup resolve -v                         # show where the executable is looked up`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	return root
}

func createRunCommand(c command, f *RunFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the supervisor and its control API in the foreground",
		Long: `Run loads the configuration, serves the control API and, with --start or
server.auto_start, starts the server right away. SIGINT/SIGTERM stop the
server before ocsup exits.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Run(cmd.Context(), *f)
		},
	}
	cmd.Flags().StringVar(&f.Project, "project", "", "project directory (overrides server.project_directory)")
	cmd.Flags().BoolVar(&f.Start, "start", false, "start the server immediately")
	cmd.Flags().StringVar(&f.Listen, "listen", "", "control API listen address (overrides api.listen)")
	return cmd
}

func addAPIFlags(cmd *cobra.Command, f *APIFlags) {
	cmd.Flags().StringVar(&f.APIUrl, "api-url", "", "control API URL (default from config, e.g. http://127.0.0.1:14097/api)")
	cmd.Flags().DurationVar(&f.APITimeout, "api-timeout", defaultAPITimeout, "request timeout")
}

func createStatusCommand(c command, f *APIFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the supervisor status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Status(cmd.Context(), *f)
		},
	}
	addAPIFlags(cmd, f)
	return cmd
}

func createStartCommand(c command, f *StartFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the server and wait until it is ready",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Start(cmd.Context(), *f, false)
		},
	}
	addAPIFlags(cmd, &f.APIFlags)
	cmd.Flags().DurationVar(&f.Wait, "wait", 0, "give up waiting after this long (default: server startup timeout)")
	return cmd
}

func createRestartCommand(c command, f *StartFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restart",
		Short: "Stop the server and start it again",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Start(cmd.Context(), *f, true)
		},
	}
	addAPIFlags(cmd, &f.APIFlags)
	cmd.Flags().DurationVar(&f.Wait, "wait", 0, "give up waiting after this long (default: server startup timeout)")
	return cmd
}

func createStopCommand(c command, f *APIFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the server and its child processes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Stop(cmd.Context(), *f)
		},
	}
	addAPIFlags(cmd, f)
	return cmd
}

func createURLCommand(c command, f *APIFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "url",
		Short: "Print the project URL of the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.URL(cmd.Context(), *f)
		},
	}
	addAPIFlags(cmd, f)
	return cmd
}

func createProjectCommand(c command, f *ProjectFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project <dir>",
		Short: "Change the project directory used by the next start",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Project(cmd.Context(), *f, args[0])
		},
	}
	addAPIFlags(cmd, &f.APIFlags)
	cmd.Flags().BoolVar(&f.Restart, "restart", false, "restart the server afterwards")
	return cmd
}

func createResolveCommand(c command, f *ResolveFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve [executable]",
		Short: "Show which executable would be launched",
		Long: `Resolve applies the same search as a start: an existing absolute path is kept,
otherwise well-known install directories are searched for the base name.
Without an argument the configured server.executable is resolved.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			return c.Resolve(*f, name)
		},
	}
	cmd.Flags().BoolVarP(&f.Verbose, "verbose", "v", false, "also list the searched directories")
	return cmd
}

func createVerifyCommand(c command) *cobra.Command {
	return &cobra.Command{
		Use:   "verify [executable]",
		Short: "Resolve the executable and check that it can be launched",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			return c.Verify(name)
		},
	}
}
