package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"sheetsync/internal/models"
	"sheetsync/internal/worker"

	"github.com/spf13/cobra"
)

func newReadCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "read <store-id> <range>",
		Short: "Print the values of a range",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel, cfg, logger, err := a.setup(cmd)
			if err != nil {
				return err
			}
			defer cancel()

			store, err := a.backends.RemoteStore(ctx, cfg, logger)
			if err != nil {
				return WrapExitError(ExitCommandError, "open remote store", err)
			}
			res, err := store.ReadRange(ctx, args[0], args[1])
			if err != nil {
				return WrapExitError(ExitFailure, "read range", err)
			}

			out := a.formatter(cmd)
			if done, err := out.JSON(res); done {
				return err
			}
			return out.Matrix(res.Values)
		},
	}
}

// newWriteCommand builds the write and append commands. Both run the
// operation through a one-shot engine so failures are classified the same
// way the daemon classifies them.
func newWriteCommand(a *app, kind string) *cobra.Command {
	var valuesJSON, valuesFile string

	short := "Overwrite a range with values"
	if kind == "append" {
		short = "Append rows after the table in a range"
	}

	cmd := &cobra.Command{
		Use:   kind + " <store-id> <range>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := parseValues(valuesJSON, valuesFile)
			if err != nil {
				return WrapExitError(ExitCommandError, "parse values", err)
			}

			ctx, cancel, cfg, logger, err := a.setup(cmd)
			if err != nil {
				return err
			}
			defer cancel()

			store, err := a.backends.RemoteStore(ctx, cfg, logger)
			if err != nil {
				return WrapExitError(ExitCommandError, "open remote store", err)
			}

			engine := worker.NewEngine(store, nil, logger)
			defer engine.Close()

			var id models.OperationID
			if kind == "append" {
				id = engine.EnqueueAppend(args[0], args[1], values)
			} else {
				id = engine.EnqueueWrite(args[0], args[1], values)
			}
			engine.Drain(ctx)

			op, _ := engine.Get(id)
			out := a.formatter(cmd)
			if done, err := out.JSON(op); done && err != nil {
				return err
			} else if !done {
				out.Line("%s %s %s: %s", op.Kind, op.StoreID, op.Range, op.Status)
			}
			if op.Status != models.StatusCompleted {
				var cause error = fmt.Errorf("operation %s", op.Status)
				if op.Error != nil {
					cause = op.Error
				}
				return WrapExitError(ExitFailure, kind+" failed", cause)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&valuesJSON, "values", "", `row-major JSON matrix, e.g. '[["a",1],["b",2]]'`)
	cmd.Flags().StringVarP(&valuesFile, "file", "f", "", "read the JSON matrix from a file ('-' for stdin)")
	return cmd
}

func parseValues(raw, file string) (models.Matrix, error) {
	if raw != "" && file != "" {
		return nil, fmt.Errorf("--values and --file are mutually exclusive")
	}
	var data []byte
	switch {
	case raw != "":
		data = []byte(raw)
	case file == "-":
		var err error
		if data, err = io.ReadAll(os.Stdin); err != nil {
			return nil, err
		}
	case file != "":
		var err error
		if data, err = os.ReadFile(file); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("one of --values or --file is required")
	}

	var m models.Matrix
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("values must be a JSON array of arrays: %w", err)
	}
	return m, nil
}

func newReconcileCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile <source-store> <source-range> <target-store> <target-range>",
		Short: "Make two ranges hold the same data",
		Long: `Reads both ranges and, if they differ, writes each side's data onto the other.
The printed data is what each side held before any writes.`,
		Args: cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel, cfg, logger, err := a.setup(cmd)
			if err != nil {
				return err
			}
			defer cancel()

			store, err := a.backends.RemoteStore(ctx, cfg, logger)
			if err != nil {
				return WrapExitError(ExitCommandError, "open remote store", err)
			}
			engine := worker.NewEngine(store, nil, logger)
			defer engine.Close()

			res, err := engine.Reconcile(ctx, args[0], args[1], args[2], args[3])
			if err != nil {
				return WrapExitError(ExitFailure, "reconcile", err)
			}

			out := a.formatter(cmd)
			if done, err := out.JSON(res); done {
				return err
			}
			if !res.Changed {
				out.Line("ranges already match")
				return nil
			}
			out.Line("source (%s %s):", args[0], args[1])
			if err := out.Matrix(res.SourceData); err != nil {
				return err
			}
			out.Line("target (%s %s):", args[2], args[3])
			return out.Matrix(res.TargetData)
		},
	}
}

func newStatusCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the daemon state mirrored in Redis",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel, cfg, logger, err := a.setup(cmd)
			if err != nil {
				return err
			}
			defer cancel()

			snapshots, release, err := a.backends.Snapshots(ctx, cfg, logger)
			if err != nil {
				return WrapExitError(ExitCommandError, "open snapshot store", err)
			}
			defer release()

			state, err := snapshots.LoadSnapshot(ctx)
			if err != nil {
				return WrapExitError(ExitCommandError, "load snapshot", err)
			}
			if state == nil {
				return WrapExitError(ExitFailure, "no snapshot found; is the daemon running?", nil)
			}

			out := a.formatter(cmd)
			if done, err := out.JSON(state); done {
				return err
			}
			last := "never"
			if state.LastSuccessfulDrainAt != nil {
				last = state.LastSuccessfulDrainAt.Format("2006-01-02 15:04:05 MST")
			}
			counts := state.CountByStatus()
			out.Line("active:      %t", state.IsActive)
			out.Line("last drain:  %s", last)
			out.Line("config:      enabled=%t direction=%s frequency=%s auto_run=%t",
				state.Config.Enabled, state.Config.Direction, state.Config.Frequency, state.Config.AutoRun)
			out.Line("queue:       %d", state.QueueLength)
			out.Line("ledger:      pending=%d processing=%d completed=%d failed=%d",
				counts[models.StatusPending], counts[models.StatusProcessing],
				counts[models.StatusCompleted], counts[models.StatusFailed])
			return nil
		},
	}
}

func newHistoryCommand(a *app) *cobra.Command {
	var limit int
	var status string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List archived operations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var want models.OperationStatus
			if status != "" {
				want = models.OperationStatus(strings.ToLower(status))
				if !want.Valid() {
					return WrapExitError(ExitCommandError, fmt.Sprintf("unknown status %q", status), nil)
				}
			}

			ctx, cancel, cfg, logger, err := a.setup(cmd)
			if err != nil {
				return err
			}
			defer cancel()

			archive, release, err := a.backends.Archive(ctx, cfg, logger)
			if err != nil {
				return WrapExitError(ExitCommandError, "open archive", err)
			}
			defer release()

			ops, err := archive.ListArchivedOperations(ctx, limit)
			if err != nil {
				return WrapExitError(ExitCommandError, "list archive", err)
			}
			if want != "" {
				filtered := ops[:0]
				for _, op := range ops {
					if op.Status == want {
						filtered = append(filtered, op)
					}
				}
				ops = filtered
			}

			out := a.formatter(cmd)
			if done, err := out.JSON(ops); done {
				return err
			}
			return out.Operations(ops)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", models.DefaultHistoryLimit, "maximum entries to show")
	cmd.Flags().StringVar(&status, "status", "", "only show entries with this status")
	return cmd
}
