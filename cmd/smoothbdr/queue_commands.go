package main

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"smoothbdr/internal/api"
	"smoothbdr/internal/config"
	"smoothbdr/internal/queue"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage stage queues",
	}

	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueStatsCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueApproveCommand(ctx))
	queueCmd.AddCommand(newQueueSubmitCommand(ctx))

	return queueCmd
}

// withQueueService opens the Ledger and hands fn the shared control surface service.
func (c *commandContext) withQueueService(fn func(svc *api.QueueService) error) error {
	return c.withStore(func(_ *config.Config, store *queue.Store) error {
		return fn(api.NewQueueService(store))
	})
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var (
		statuses []string
		leadRef  string
		limit    int
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "list <queue>",
		Short: "List items of one queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := queue.ListFilter{LeadRef: leadRef, Limit: limit}
			for _, value := range statuses {
				status, ok := queue.ParseStatus(value)
				if !ok {
					return fmt.Errorf("unknown status %q", value)
				}
				filter.Statuses = append(filter.Statuses, status)
			}
			return ctx.withQueueService(func(svc *api.QueueService) error {
				items, err := svc.List(cmd.Context(), args[0], filter)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, api.QueueListResponse{Items: items})
				}
				if len(items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), queueItemsTable(items))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by status (repeatable)")
	cmd.Flags().StringVar(&leadRef, "lead", "", "Filter by lead reference")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of items")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func queueItemsTable(items []api.QueueItem) string {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		score := ""
		if item.QualityScore != nil {
			score = strconv.FormatFloat(*item.QualityScore, 'f', 2, 64)
		}
		detail := item.StatusReason
		if detail == "" {
			detail = item.LastError
		}
		rows = append(rows, []string{
			strconv.FormatInt(item.ID, 10),
			item.Status,
			item.LeadRef,
			fmt.Sprintf("%d/%d", item.Attempts, item.MaxAttempts),
			score,
			item.CreatedAt,
			detail,
		})
	}
	return tableSpec{
		headers: []string{"ID", "Status", "Lead", "Attempts", "Score", "Created", "Detail"},
		aligns:  []columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft},
	}.render(rows)
}

func newQueueStatsCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show per-status counts for every queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				if asJSON {
					stats, err := api.NewQueueService(store).Stats(cmd.Context())
					if err != nil {
						return err
					}
					return writeJSON(cmd, api.QueueStatsResponse{Queues: stats})
				}
				depths, err := store.Depths(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), queueStatsTable(depths))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <queue> [id...]",
		Short: "Reset failed items to pending (all failed items when no ids are given)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args[1:])
			if err != nil {
				return err
			}
			return ctx.withQueueService(func(svc *api.QueueService) error {
				n, err := svc.Retry(cmd.Context(), args[0], ids)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Retried %d item(s) in %s\n", n, args[0])
				return nil
			})
		},
	}
}

func newQueueApproveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "approve <queue> <id>",
		Short: "Release an item held for approval",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args[1:])
			if err != nil {
				return err
			}
			return ctx.withQueueService(func(svc *api.QueueService) error {
				item, err := svc.Approve(cmd.Context(), args[0], ids[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Approved %s#%d (now %s)\n", item.Queue, item.ID, item.Status)
				return nil
			})
		},
	}
}

func newQueueSubmitCommand(ctx *commandContext) *cobra.Command {
	var (
		leadRef  string
		priority int
		payload  string
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a new lead to the discovery queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := api.LeadRequest{LeadRef: leadRef, Priority: priority}
			if payload != "" {
				req.Payload = json.RawMessage(payload)
			}
			return ctx.withQueueService(func(svc *api.QueueService) error {
				item, err := svc.SubmitLead(cmd.Context(), req)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, api.LeadResponse{Item: item})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Submitted lead %s as %s#%d\n", item.LeadRef, item.Queue, item.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&leadRef, "lead", "", "Lead reference (generated when empty)")
	cmd.Flags().IntVar(&priority, "priority", 0, "Acquire priority; higher runs first under the priority order")
	cmd.Flags().StringVar(&payload, "payload", "", "Stage payload as a JSON object")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
