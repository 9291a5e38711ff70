package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"smoothbdr/internal/config"
	"smoothbdr/internal/queue"
)

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending Ledger migrations and check the schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Opening the store applies every pending migration.
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				health, err := store.CheckHealth(cmd.Context())
				if asJSON {
					if encErr := writeJSON(cmd, health); encErr != nil {
						return encErr
					}
					return err
				}
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				fmt.Fprintln(out, renderStatusLine("Ledger", statusInfo, health.Driver+" "+health.Location, colorize))
				fmt.Fprintln(out, renderStatusLine("Schema", statusOK, health.SchemaVersion, colorize))
				fmt.Fprintln(out, renderStatusLine("Items", statusInfo, strconv.Itoa(health.TotalItems), colorize))
				missing := append(append([]string{}, health.MissingTables...), health.MissingColumns...)
				switch {
				case len(missing) > 0:
					fmt.Fprintln(out, renderStatusLine("Schema check", statusError, "missing "+strings.Join(missing, ", "), colorize))
					return fmt.Errorf("%w: missing %s", queue.ErrSchemaMismatch, strings.Join(missing, ", "))
				case !health.IntegrityCheck:
					fmt.Fprintln(out, renderStatusLine("Integrity", statusError, "integrity check failed", colorize))
					return errors.New("ledger integrity check failed")
				default:
					fmt.Fprintln(out, renderStatusLine("Integrity", statusOK, "ok", colorize))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
