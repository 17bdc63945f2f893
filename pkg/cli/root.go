// Package cli implements the colstore command line tool.
package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"colstore/pkg/concurrency/transaction"
	"colstore/pkg/config"
	dberr "colstore/pkg/error"
	"colstore/pkg/logging"
)

// app carries the options shared by every command.
type app struct {
	configPath string
	logLevel   string
	opts       config.Options
}

// Execute runs the colstore command line and reports a failure on stderr.
func Execute() error {
	cmd, a := newRoot()
	err := cmd.Execute()
	if err != nil {
		a.reportError(cmd.ErrOrStderr(), err)
	}
	return err
}

// NewCmd builds the colstore root command.
func NewCmd() *cobra.Command {
	cmd, _ := newRoot()
	return cmd
}

func newRoot() (*cobra.Command, *app) {
	a := &app{opts: config.Default()}

	cmd := &cobra.Command{
		Use:   "colstore",
		Short: "Inspect and maintain colstore database files",
		Long: `colstore works on database files shared by any number of processes.
Every command runs in its own session, so it can be used while other
programs read and write the same file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return a.setup()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			logging.Close()
		},
	}

	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "YAML file with session options")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")

	cmd.AddCommand(
		a.newInfoCmd(),
		a.newTablesCmd(),
		a.newDumpCmd(),
		a.newCheckCmd(),
		a.newCompactCmd(),
		a.newExportCmd(),
		a.newBrowseCmd(),
	)
	return cmd, a
}

// reportError prints err with its category. At debug level the stack
// captured where the error was raised follows.
func (a *app) reportError(w io.Writer, err error) {
	label := "Error:"
	if category, ok := dberr.CategoryOf(err); ok {
		label = fmt.Sprintf("Error (%s):", category)
	}
	fmt.Fprintln(w, failStyle.Render(label), err)

	var dbErr *dberr.DBError
	if a.opts.Logging.Level == logging.LevelDebug && errors.As(err, &dbErr) {
		fmt.Fprint(w, mutedStyle.Render(dbErr.FormatStack()))
	}
}

func (a *app) setup() error {
	if a.configPath != "" {
		opts, err := config.Load(a.configPath)
		if err != nil {
			return err
		}
		a.opts = opts
	}
	if a.logLevel != "" {
		a.opts.Logging.Level = logging.ParseLevel(a.logLevel)
	}
	logging.Close()
	return logging.Init(a.opts.Logging)
}

// open attaches a session to an existing database file.
func (a *app) open(path string) (*transaction.SharedGroup, error) {
	opts := a.opts
	opts.NoCreate = true
	return transaction.Open(path, opts)
}
