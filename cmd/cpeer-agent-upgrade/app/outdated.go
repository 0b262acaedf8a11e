package app

import (
	"context"
	"fmt"
	"io"

	"github.com/gosuri/uitable"
	"github.com/pkg/errors"

	"github.com/autopeer-io/agentupgrade/internal/endpoint"
)

// listOutdated prints the agents running an older version than reference,
// which defaults to the manager's own version.
func listOutdated(ctx context.Context, store endpoint.Store, reference string, out io.Writer) error {
	if reference == "" {
		manager, err := store.Get(ctx, endpoint.ManagerID)
		if err != nil {
			return errors.Wrap(err, "cannot determine the manager version, set --upgrade.manager-version")
		}
		reference = manager.Version
	}

	agents, err := store.ListOutdated(ctx, reference)
	if err != nil {
		return err
	}

	if len(agents) == 0 {
		fmt.Fprintln(out, "All agents are updated.")
		return nil
	}

	table := uitable.New()
	table.MaxColWidth = 35
	table.AddRow("ID", "Name", "Version")
	for _, a := range agents {
		table.AddRow(a.ID, a.Name, a.Version)
	}

	fmt.Fprintln(out, table)
	fmt.Fprintf(out, "\nTotal outdated agents: %d\n", len(agents))
	return nil
}
