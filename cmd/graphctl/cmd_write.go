package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"social-graph-lab/internal/domain"
)

// errPartial signals a non-zero exit when some accounts were not applied.
var errPartial = errors.New("not all accounts were applied")

func (c *cli) mutationCmd(mode domain.MutationMode) *cobra.Command {
	return &cobra.Command{
		Use:   string(mode) + " <account>...",
		Short: fmt.Sprintf("%s one or more accounts as the configured owner", capitalize(string(mode))),
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.app.Orchestrator == nil {
				return fmt.Errorf("%w: no signer configured (set GRAPH_LEDGER_OWNER and GRAPH_LEDGER_SIGNER_KEY)",
					domain.ErrMutationRejected)
			}
			accounts := make([]domain.AccountID, len(args))
			for i, a := range args {
				accounts[i] = domain.AccountID(a)
			}

			rep, err := c.app.Orchestrator.Apply(cmd.Context(), accounts, mode)
			if err != nil {
				return err
			}
			if err := c.emit(stdout(cmd), rep, func(w io.Writer) {
				for _, res := range rep.Results {
					line := fmt.Sprintf("%-13s %s", res.Status, res.Account)
					if res.TxHandle != "" {
						line += "  tx=" + string(res.TxHandle)
					}
					if res.Err != nil {
						line += "  err=" + res.Err.Error()
					}
					fmt.Fprintln(w, line)
				}
				fmt.Fprintln(w, rep.Summary())
			}); err != nil {
				return err
			}
			if !rep.Complete() {
				return errPartial
			}
			return nil
		},
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}
