package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"loadboard/internal/api"
	"loadboard/internal/board"
	"loadboard/internal/client"
	"loadboard/internal/orders"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show server status and order counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(cl *client.Client) error {
				status, err := cl.Status(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, status)
				}
				printStatus(cmd, cl.BaseURL(), status)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func printStatus(cmd *cobra.Command, addr string, status api.Status) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Server:   %s (running: %s, pid %d)\n", addr, yesNo(status.Running), status.PID)
	fmt.Fprintf(out, "Database: %s\n", status.DatabasePath)
	fmt.Fprintf(out, "Lock:     %s\n", status.LockFilePath)
	fmt.Fprintf(out, "Events:   %d\n\n", status.EventSeq)

	rows := make([][]string, 0, len(status.Counts))
	for _, state := range orders.AllStates() {
		rows = append(rows, []string{
			board.StateLabel(orders.Item{WorkflowState: state}),
			fmt.Sprintf("%d", status.Counts[string(state)]),
		})
	}
	fmt.Fprint(out, board.RenderTable([]string{"State", "Orders"}, rows, []board.Alignment{board.AlignLeft, board.AlignRight}))
	fmt.Fprintln(out)
}
