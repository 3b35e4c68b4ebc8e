package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"loadboard/internal/board"
	"loadboard/internal/client"
)

func newCrewsCommand(ctx *commandContext) *cobra.Command {
	crewsCmd := &cobra.Command{
		Use:     "crews",
		Aliases: []string{"crew"},
		Short:   "Manage loading crews",
	}

	var jsonOutput bool
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List crews",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(cl *client.Client) error {
				crews, err := cl.ListCrews(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, crews)
				}
				out := cmd.OutOrStdout()
				if len(crews) == 0 {
					fmt.Fprintln(out, "No crews")
					return nil
				}
				rows := make([][]string, 0, len(crews))
				for _, crew := range crews {
					rows = append(rows, []string{crew.ID, crew.Name})
				}
				fmt.Fprint(out, board.RenderTable([]string{"ID", "Name"}, rows, nil))
				fmt.Fprintln(out)
				return nil
			})
		},
	}
	listCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	createCmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Register a crew",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(cl *client.Client) error {
				crew, err := cl.CreateCrew(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created crew %s (%s)\n", crew.Name, crew.ID)
				return nil
			})
		},
	}

	crewsCmd.AddCommand(listCmd)
	crewsCmd.AddCommand(createCmd)
	return crewsCmd
}
