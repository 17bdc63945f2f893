package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"colstore/pkg/database"
	dberr "colstore/pkg/error"
)

func (a *app) newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <db>",
		Short: "Show the latest snapshot version, file size and attached sessions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			st, err := os.Stat(path)
			if err != nil {
				return dberr.From(dberr.ErrFileAccess).WithDetail("%s", path).WithCause(err).In("info", "CLI")
			}
			sg, err := a.open(path)
			if err != nil {
				return err
			}
			defer sg.Close()

			g, err := sg.BeginRead()
			if err != nil {
				return err
			}
			defer sg.EndRead()

			sessions, err := sg.Sessions()
			if err != nil {
				return err
			}
			commits, err := sg.Commits()
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			printTitle(w, path)
			printField(w, "version", sg.GetVersionOfCurrentTransaction().Version)
			printField(w, "file size", fmt.Sprintf("%d bytes", st.Size()))
			printField(w, "tables", g.TableCount())
			printField(w, "sessions", sessions)
			printField(w, "commits", commits)
			opts := sg.Options()
			printField(w, "durability", opts.Durability)
			if opts.History {
				printField(w, "history", opts.HistoryPath(path))
			} else {
				printField(w, "history", mutedStyle.Render("disabled"))
			}
			return nil
		},
	}
}

func (a *app) newTablesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tables <db>",
		Short: "List the tables of the latest snapshot",
		Args:  cobra.ExactArgs(1),
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

			info := database.NewResultFormatter().FormatGroup(g)
			res := database.Result{Columns: []string{"table", "rows", "columns", "links"}}
			for _, ti := range info.Tables {
				res.Rows = append(res.Rows, []string{
					ti.Name, fmt.Sprint(ti.Rows), fmt.Sprint(ti.Columns), strings.Join(ti.Links, ", "),
				})
			}
			w := cmd.OutOrStdout()
			fmt.Fprint(w, res.String())
			fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("%d table(s)", len(info.Tables))))
			return nil
		},
	}
}
