package cli

import (
	"context"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"colstore/pkg/logging"
	"colstore/pkg/primitives"
)

type tableCheck struct {
	name string
	rows int
	err  error
}

func (a *app) newCheckCmd() *cobra.Command {
	var jobs int

	cmd := &cobra.Command{
		Use:   "check <db>",
		Short: "Verify the structure of every table in the latest snapshot",
		Long: `Verify the structure of every table in the latest snapshot. The snapshot
is pinned while tables are checked concurrently, each in a session of its
own, so writers can go on committing.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			results, err := a.check(cmd.Context(), args[0], jobs)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			failed := 0
			for _, r := range results {
				status := okStyle.Render("ok")
				if r.err != nil {
					status = failStyle.Render("FAILED") + " " + r.err.Error()
					failed++
				}
				fmt.Fprintf(w, "%-24s %8d rows  %s\n", r.name, r.rows, status)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d tables failed verification", failed, len(results))
			}
			fmt.Fprintln(w, okStyle.Render(fmt.Sprintf("%d table(s) verified", len(results))))
			return nil
		},
	}
	cmd.Flags().IntVarP(&jobs, "jobs", "j", runtime.GOMAXPROCS(0), "tables verified at once")
	return cmd
}

// check pins the latest snapshot and verifies each of its tables on a
// separate session bound to that snapshot.
func (a *app) check(ctx context.Context, path string, jobs int) ([]tableCheck, error) {
	sg, err := a.open(path)
	if err != nil {
		return nil, err
	}
	defer sg.Close()

	id, err := sg.PinVersion()
	if err != nil {
		return nil, err
	}
	defer sg.UnpinVersion(id)

	g, err := sg.BeginReadAt(id)
	if err != nil {
		return nil, err
	}
	results := make([]tableCheck, g.TableCount())
	for i := range results {
		results[i].name = g.TableName(i)
	}
	sg.EndRead()

	log := logging.WithSession(sg.ID(), path)
	log.Debug("checking tables", "version", id.Version, "tables", len(results))

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(max(jobs, 1))
	for i := range results {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i].rows, results[i].err = a.checkTable(path, id, results[i].name)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (a *app) checkTable(path string, id primitives.VersionID, name string) (int, error) {
	sg, err := a.open(path)
	if err != nil {
		return 0, err
	}
	defer sg.Close()

	g, err := sg.BeginReadAt(id)
	if err != nil {
		return 0, err
	}
	defer sg.EndRead()

	t, err := g.GetTableByName(name)
	if err != nil {
		return 0, err
	}
	if err := t.Verify(); err != nil {
		logging.WithTable(name).Warn("table failed verification", "version", id.Version, "error", err)
		return t.Size(), err
	}
	return t.Size(), nil
}
