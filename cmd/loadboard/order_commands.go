package main

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"loadboard/internal/api"
	"loadboard/internal/board"
	"loadboard/internal/client"
	"loadboard/internal/orders"
	"loadboard/internal/reconcile"
)

func newOrdersCommand(ctx *commandContext) *cobra.Command {
	ordersCmd := &cobra.Command{
		Use:     "orders",
		Aliases: []string{"order"},
		Short:   "Inspect and change dispatch orders",
		Long: "Inspect and change dispatch orders.\n\n" +
			"Orders may be addressed by id or by reference. Queue and workflow changes\n" +
			"go through the reconcile engine, so invalid transitions are refused locally\n" +
			"and server rejections are reported after the local change is rolled back.",
	}

	ordersCmd.AddCommand(newOrdersCreateCommand(ctx))
	ordersCmd.AddCommand(newOrdersListCommand(ctx))
	ordersCmd.AddCommand(newOrdersDeleteCommand(ctx))
	ordersCmd.AddCommand(newOrderOpCommand(ctx, "enqueue <order>", "Add an order to the end of the queue", reconcile.Enqueue))
	ordersCmd.AddCommand(newOrderOpCommand(ctx, "dequeue <order>", "Remove an order from the queue", reconcile.Dequeue))
	ordersCmd.AddCommand(newOrderOpCommand(ctx, "advance <order>", "Move an order to its next workflow stage", reconcile.AdvanceStage))
	ordersCmd.AddCommand(newOrderOpCommand(ctx, "return <order>", "Return an order in preparation to the queue", reconcile.ReturnToQueue))
	ordersCmd.AddCommand(newOrdersAssignCommand(ctx))
	ordersCmd.AddCommand(newOrdersControlCommand(ctx))
	ordersCmd.AddCommand(newOrdersReorderCommand(ctx))
	ordersCmd.AddCommand(newOrdersMoveCommand(ctx))

	return ordersCmd
}

func newOrdersCreateCommand(ctx *commandContext) *cobra.Command {
	var crewID string
	var enqueue bool

	cmd := &cobra.Command{
		Use:   "create <reference>",
		Short: "Create an unassigned order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(cl *client.Client) error {
				item, err := cl.CreateOrder(cmd.Context(), args[0], strings.TrimSpace(crewID))
				if err != nil {
					return err
				}
				if enqueue {
					if item, err = cl.Enqueue(cmd.Context(), item.ID); err != nil {
						return fmt.Errorf("order %s created but not queued: %w", item.ID, err)
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created order %s (%s)\n", item.ID, describeItem(item))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&crewID, "crew", "", "Crew id to assign")
	cmd.Flags().BoolVar(&enqueue, "enqueue", false, "Append the new order to the queue")
	return cmd
}

func newOrdersListCommand(ctx *commandContext) *cobra.Command {
	var view string
	var state string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List orders as the server reports them",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(cl *client.Client) error {
				items, err := listOrders(cmd.Context(), cl, view, state)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, api.FromItems(items))
				}
				out := cmd.OutOrStdout()
				if len(items) == 0 {
					fmt.Fprintln(out, "No orders")
					return nil
				}
				fmt.Fprint(out, renderOrderTable(items))
				fmt.Fprintln(out)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&view, "view", "queued", "Which orders to list: queued, unqueued or all")
	cmd.Flags().StringVar(&state, "state", "", "List orders in one workflow state instead")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func listOrders(ctx context.Context, cl *client.Client, view, state string) ([]orders.Item, error) {
	if state = strings.TrimSpace(state); state != "" {
		parsed, ok := orders.ParseState(state)
		if !ok {
			return nil, fmt.Errorf("unknown workflow state %q", state)
		}
		return cl.FetchByWorkflowState(ctx, parsed)
	}
	switch strings.ToLower(strings.TrimSpace(view)) {
	case "", "queued":
		return cl.FetchQueued(ctx)
	case "unqueued":
		return cl.FetchUnqueued(ctx)
	case "all":
		queued, err := cl.FetchQueued(ctx)
		if err != nil {
			return nil, err
		}
		unqueued, err := cl.FetchUnqueued(ctx)
		if err != nil {
			return nil, err
		}
		return append(queued, unqueued...), nil
	default:
		return nil, fmt.Errorf("unknown view %q (want queued, unqueued or all)", view)
	}
}

func renderOrderTable(items []orders.Item) string {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rank := "-"
		if item.InQueue() {
			rank = strconv.Itoa(item.QueueRank)
		}
		crew := item.CrewID
		if crew == "" {
			crew = "-"
		}
		rows = append(rows, []string{
			rank,
			string(item.ID),
			item.Reference,
			board.StateLabel(item),
			crew,
			yesNo(item.Controlled),
			item.UpdatedAt.Local().Format("2006-01-02 15:04:05"),
		})
	}
	return board.RenderTable(
		[]string{"#", "ID", "Reference", "State", "Crew", "Controlled", "Updated"},
		rows,
		[]board.Alignment{board.AlignRight},
	)
}

func newOrdersDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(cl *client.Client) error {
				id := orders.ID(strings.TrimSpace(args[0]))
				if err := cl.DeleteOrder(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted order %s\n", id)
				return nil
			})
		},
	}
}

// newOrderOpCommand builds a single-order engine command.
func newOrderOpCommand(ctx *commandContext, use, short string, build func(orders.ID) reconcile.Op) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(cmd.Context(), func(_ *client.Client, engine *reconcile.Engine) error {
				item, err := resolveOrder(engine.View(), args[0])
				if err != nil {
					return err
				}
				return applyOp(cmd, engine, build(item.ID))
			})
		},
	}
}

func newOrdersAssignCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "assign <order> [crew-id]",
		Short: "Assign a crew to an order, or clear it when no crew is given",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			crewID := ""
			if len(args) == 2 {
				crewID = strings.TrimSpace(args[1])
			}
			return ctx.withEngine(cmd.Context(), func(_ *client.Client, engine *reconcile.Engine) error {
				item, err := resolveOrder(engine.View(), args[0])
				if err != nil {
					return err
				}
				return applyOp(cmd, engine, reconcile.AssignCrew(item.ID, crewID))
			})
		},
	}
}

func newOrdersControlCommand(ctx *commandContext) *cobra.Command {
	var reset bool

	cmd := &cobra.Command{
		Use:   "control <order>",
		Short: "Mark the control check of an order as done",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(cmd.Context(), func(_ *client.Client, engine *reconcile.Engine) error {
				item, err := resolveOrder(engine.View(), args[0])
				if err != nil {
					return err
				}
				return applyOp(cmd, engine, reconcile.SetControlled(item.ID, !reset))
			})
		},
	}

	cmd.Flags().BoolVar(&reset, "clear", false, "Reset the control flag instead")
	return cmd
}

func newOrdersReorderCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reorder <order>...",
		Short: "Replace the queue order with the given sequence",
		Long:  "Replace the queue order. The sequence must name every queued order exactly once.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(cmd.Context(), func(_ *client.Client, engine *reconcile.Engine) error {
				view := engine.View()
				seq := make([]orders.ID, 0, len(args))
				for _, arg := range args {
					item, err := resolveOrder(view, arg)
					if err != nil {
						return err
					}
					seq = append(seq, item.ID)
				}
				return applyOp(cmd, engine, reconcile.Reorder(seq))
			})
		},
	}
}

func newOrdersMoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "move <order> <position>",
		Short: "Move a queued order to a 1-based queue position",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			position, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid position %q", args[1])
			}
			return ctx.withEngine(cmd.Context(), func(_ *client.Client, engine *reconcile.Engine) error {
				view := engine.View()
				item, err := resolveOrder(view, args[0])
				if err != nil {
					return err
				}
				seq, err := moveInQueue(view.QueueIDs(), item.ID, position)
				if err != nil {
					return err
				}
				return applyOp(cmd, engine, reconcile.Reorder(seq))
			})
		},
	}
}

// moveInQueue returns queue with id moved to the 1-based position, clamped
// to the queue bounds.
func moveInQueue(queue []orders.ID, id orders.ID, position int) ([]orders.ID, error) {
	idx := slices.Index(queue, id)
	if idx < 0 {
		return nil, fmt.Errorf("order %s is not queued", id)
	}
	position = min(max(position, 1), len(queue))
	out := slices.Delete(slices.Clone(queue), idx, idx+1)
	return slices.Insert(out, position-1, id), nil
}

// resolveOrder finds an order by id first, then by unique reference.
func resolveOrder(view reconcile.View, arg string) (orders.Item, error) {
	arg = strings.TrimSpace(arg)
	if item, ok := view.Get(orders.ID(arg)); ok {
		return item, nil
	}
	var matches []orders.Item
	for _, list := range [][]orders.Item{view.Queue, view.Others} {
		for _, item := range list {
			if strings.EqualFold(item.Reference, arg) {
				matches = append(matches, item)
			}
		}
	}
	switch len(matches) {
	case 0:
		return orders.Item{}, fmt.Errorf("no order with id or reference %q", arg)
	case 1:
		return matches[0], nil
	default:
		return orders.Item{}, fmt.Errorf("reference %q matches %d orders; use the id", arg, len(matches))
	}
}

func applyOp(cmd *cobra.Command, engine *reconcile.Engine, op reconcile.Op) error {
	out, err := runOp(cmd.Context(), engine, op)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	if op.Kind == reconcile.OpReorder {
		fmt.Fprintf(w, "Queue reordered (%d orders)\n", len(out.Items))
		return nil
	}
	for _, item := range out.Items {
		if item.ID == op.ID {
			fmt.Fprintf(w, "%s: %s\n", labelOf(item), describeItem(item))
			return nil
		}
	}
	fmt.Fprintf(w, "%s %s done\n", op.Kind, op.ID)
	return nil
}

func labelOf(item orders.Item) string {
	if item.Reference != "" {
		return item.Reference
	}
	return string(item.ID)
}

func describeItem(item orders.Item) string {
	desc := board.StateLabel(item)
	if item.InQueue() {
		desc += fmt.Sprintf(" at #%d", item.QueueRank)
	}
	if item.CrewID != "" {
		desc += ", crew " + item.CrewID
	}
	if item.Controlled {
		desc += ", controlled"
	}
	return desc
}
