package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"colstore/pkg/ui"
)

func fileSize(path string) int64 {
	st, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return st.Size()
}

func (a *app) newCompactCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compact <db>",
		Short: "Rewrite the database file without free space",
		Long: `Rewrite the database file without free space. Compaction needs the file
to itself: it fails while other sessions are attached. Snapshot versions
and the changeset history start over.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			sg, err := a.open(path)
			if err != nil {
				return err
			}
			defer sg.Close()

			before := fileSize(path)
			ok, err := sg.Compact()
			if err != nil {
				return err
			}
			if !ok {
				sessions, _ := sg.Sessions()
				return fmt.Errorf("%s is in use by %d other session(s)", path, sessions-1)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d -> %d bytes\n", okStyle.Render("compacted"), before, fileSize(path))
			return nil
		},
	}
}

func (a *app) newExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <db> <dest>",
		Short: "Write the latest snapshot to a new compacted file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sg, err := a.open(args[0])
			if err != nil {
				return err
			}
			defer sg.Close()

			g, err := sg.BeginRead()
			if err != nil {
				return err
			}
			defer sg.EndRead()

			if err := g.WriteToFile(args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %d to %s (%d bytes)\n",
				okStyle.Render("exported"), sg.GetVersionOfCurrentTransaction().Version, args[1], fileSize(args[1]))
			return nil
		},
	}
}

func (a *app) newBrowseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "browse <db>",
		Short: "Browse tables interactively",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			sg, err := a.open(args[0])
			if err != nil {
				return err
			}
			defer sg.Close()
			return ui.Run(sg)
		},
	}
}
