package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Roelanb/churnboard/internal/actions"
	"github.com/Roelanb/churnboard/internal/backend"
	"github.com/Roelanb/churnboard/internal/render"
	"github.com/Roelanb/churnboard/internal/task"
)

// runner builds a manager for one-shot commands.
func (a *app) runner() (*task.Manager, func(), error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("config error: %w", err)
	}
	logger := a.cliLogger(cfg)
	store, err := openStore(cfg)
	if err != nil {
		// the state file is locked while a dashboard is serving
		logger.Warnw("state store unavailable, using memory", "path", cfg.Runtime.StateDbPath, "error", err)
		store = task.NewMemoryStore()
	}
	client := backend.NewClient(logger, cfg.Backend.BaseURL, time.Duration(cfg.Backend.TimeoutSec)*time.Second)
	m := task.NewManager(logger, store, client)
	if err := m.ApplyConfig(context.Background(), cfg); err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	cleanup := func() {
		_ = store.Close()
		_ = logger.Sync()
	}
	return m, cleanup, nil
}

// parseParams turns repeated key=value flags into action params.
func parseParams(pairs []string) (actions.Params, error) {
	p := actions.Params{}
	for _, kv := range pairs {
		k, v, ok := strings.Cut(kv, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid param %q, want key=value", kv)
		}
		p[k] = v
	}
	return p, nil
}

// runAction runs name and prints its outcome to msgs. A file download is
// written to the path out, to data when out is "-", or to its own filename.
func runAction(ctx context.Context, m *task.Manager, msgs, data io.Writer, name string, p actions.Params, out string) error {
	res, err := m.Run(ctx, name, p, nil)
	if err != nil {
		return err
	}
	printOutcome(msgs, res.Outcome)
	if res.Outcome != nil && res.Outcome.Download != nil {
		if err := saveDownload(msgs, data, res.Outcome.Download, out); err != nil {
			return err
		}
	}
	if res.Err != nil {
		return fmt.Errorf("%s: %w", name, res.Err)
	}
	return nil
}

func printOutcome(w io.Writer, out *actions.Outcome) {
	if out == nil {
		return
	}
	for _, u := range out.Updates {
		switch u.Kind {
		case actions.KindTable:
			if u.Table != nil {
				fmt.Fprintln(w, render.TextTerminal(u.Region, render.TableTerminal(u.Table)))
			}
		case actions.KindText:
			fmt.Fprintln(w, render.TextTerminal(u.Region, u.Text))
		case actions.KindBadge:
			if u.Badge != nil {
				fmt.Fprintln(w, render.BadgeTerminal(*u.Badge))
			}
		case actions.KindStat:
			fmt.Fprintf(w, "%s: %s\n", u.Region, u.Text)
		}
	}
	for _, n := range out.Notices {
		fmt.Fprintln(w, render.MessageTerminal(n.Message))
	}
}

func saveDownload(msgs, data io.Writer, d *actions.Download, path string) error {
	if path == "-" {
		_, err := data.Write(d.Data)
		return err
	}
	if path == "" {
		path = d.Filename
	}
	if err := os.WriteFile(path, d.Data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Fprintln(msgs, render.MessageTerminal(render.Info("Saved %s", path)))
	return nil
}

// streams picks the message writer; stdout is kept for file data when out is "-".
func streams(cmd *cobra.Command, out string) (msgs, data io.Writer) {
	if out == "-" {
		return cmd.ErrOrStderr(), cmd.OutOrStdout()
	}
	return cmd.OutOrStdout(), cmd.OutOrStdout()
}

func newRunCmd(a *app) *cobra.Command {
	var (
		params []string
		out    string
	)
	cmd := &cobra.Command{
		Use:   "run <action>",
		Short: "Run one dashboard action and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, ok := actions.Lookup(args[0]); !ok {
				return fmt.Errorf("%w: %s (see: churnboard actions)", task.ErrUnknownAction, args[0])
			}
			p, err := parseParams(params)
			if err != nil {
				return err
			}
			m, cleanup, err := a.runner()
			if err != nil {
				return err
			}
			defer cleanup()
			msgs, data := streams(cmd, out)
			return runAction(cmd.Context(), m, msgs, data, args[0], p, out)
		},
	}
	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "Action input as key=value (repeatable)")
	cmd.Flags().StringVarP(&out, "output", "o", "", "Where to save a downloaded file (- for stdout)")
	return cmd
}

func newExportCmd(a *app) *cobra.Command {
	var gender, contract, churn, out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Download the filtered customer CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := actions.Params{
				"filterGender":   gender,
				"filterContract": contract,
				"filterChurn":    churn,
			}
			m, cleanup, err := a.runner()
			if err != nil {
				return err
			}
			defer cleanup()
			msgs, data := streams(cmd, out)
			return runAction(cmd.Context(), m, msgs, data, actions.Export.Name, p, out)
		},
	}
	cmd.Flags().StringVar(&gender, "gender", "", "Filter by gender")
	cmd.Flags().StringVar(&contract, "contract", "", "Filter by contract type")
	cmd.Flags().StringVar(&churn, "churn", "", "Filter by churn (Yes|No)")
	cmd.Flags().StringVarP(&out, "output", "o", actions.ExportFilename, "Output file (- for stdout)")
	return cmd
}

func newActionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "actions",
		Short: "List the available actions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			t := &render.Table{Columns: []string{"action", "title", "region"}}
			for _, act := range actions.All() {
				t.Rows = append(t.Rows, []string{act.Name, act.Title, act.Region})
			}
			t.Total = len(t.Rows)
			if t.Empty() {
				return errors.New("no actions registered")
			}
			fmt.Fprintln(cmd.OutOrStdout(), render.TableTerminal(t))
			return nil
		},
	}
}
