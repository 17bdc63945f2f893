package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"colstore/pkg/database"
	"colstore/pkg/parser"
)

type dumpOptions struct {
	where  string
	limit  int
	offset int
	width  int
}

func (a *app) newDumpCmd() *cobra.Command {
	var o dumpOptions

	cmd := &cobra.Command{
		Use:   "dump <db> <table>",
		Short: "Print the rows of a table",
		Long: `Print the rows of a table, optionally only those matching a filter:

  colstore dump people.db people --where "age >= 18 and name beginswith 'a' nocase"

Filters compare columns with literals using = != < <= > >=, BETWEEN,
IS [NOT] NULL, and CONTAINS, BEGINSWITH, ENDSWITH or LIKE on strings,
combined with AND, OR, NOT and parentheses.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if o.offset < 0 || o.limit < 0 {
				return fmt.Errorf("offset and limit must not be negative")
			}
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

			t, err := g.GetTableByName(args[1])
			if err != nil {
				return err
			}
			res, err := dumpTable(t, o)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprint(w, res.String())
			shown := len(res.Rows)
			if shown == 0 {
				fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("no rows of %d", res.Total)))
			} else {
				fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("rows %d-%d of %d", o.offset+1, o.offset+shown, res.Total)))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&o.where, "where", "w", "", "filter expression")
	cmd.Flags().IntVarP(&o.limit, "limit", "n", 50, "maximum rows to print, 0 for all")
	cmd.Flags().IntVar(&o.offset, "offset", 0, "rows to skip")
	cmd.Flags().IntVar(&o.width, "width", 40, "truncate cells wider than this, 0 to keep them whole")
	return cmd
}

func dumpTable(t *database.Table, o dumpOptions) (database.Result, error) {
	f := &database.ResultFormatter{MaxRows: o.limit, MaxWidth: o.width}
	if o.where == "" {
		return f.FormatTable(t, o.offset), nil
	}
	q, err := parser.Filter(t, o.where)
	if err != nil {
		return database.Result{}, err
	}
	v, err := q.FindAll(0, -1, -1)
	if err != nil {
		return database.Result{}, err
	}
	return f.FormatView(v, o.offset), nil
}
