package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/tutorsheets/internal/model"
	"github.com/alfredjeanlab/tutorsheets/internal/ui"
)

// workspaceCreator is implemented by backends whose workspaces are created
// locally rather than shared by the tutor.
type workspaceCreator interface {
	CreateWorkspace(ctx context.Context, ref string) error
}

var workspaceCmd = &cobra.Command{
	Use:     "workspace",
	Short:   "Provision and inspect workspaces",
	GroupID: "workspace",
}

var workspaceEnsureCmd = &cobra.Command{
	Use:   "ensure",
	Short: "Create any missing tables in the workspace",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return inWorkspace(cmd, func(a *app, ws string) error {
			if err := a.svc.EnsureWorkspace(cmd.Context(), ws); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ui.RenderSuccess("Workspace "+ws+" is ready"))
			return nil
		})
	},
}

var workspaceInitCmd = &cobra.Command{
	Use:   "init <ref>",
	Short: "Create a workspace in the postgres backend",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, ok := model.NormalizeWorkspaceRef(args[0])
		if !ok {
			return fmt.Errorf("%q is not a workspace link or id", args[0])
		}
		a, err := getApp(cmd)
		if err != nil {
			return err
		}
		creator, ok := a.raw.(workspaceCreator)
		if !ok {
			return fmt.Errorf("the %s backend does not create workspaces", a.cfg.Backend)
		}
		if err := creator.CreateWorkspace(cmd.Context(), ref); err != nil {
			return err
		}
		if err := a.svc.EnsureWorkspace(cmd.Context(), ref); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.RenderSuccess("Created workspace "+ref))
		return nil
	},
}

var settingsCmd = &cobra.Command{
	Use:     "settings",
	Short:   "Read and write workspace settings",
	GroupID: "workspace",
}

var settingsGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print a setting",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return inWorkspace(cmd, func(a *app, ws string) error {
			v, ok, err := a.svc.GetSetting(cmd.Context(), ws, args[0])
			if err != nil {
				return err
			}
			if !ok {
				return errors.New("setting " + args[0] + " is not set")
			}
			s := model.Setting{Key: args[0], Value: v}
			return emit(cmd.OutOrStdout(), s, func(w io.Writer) { fmt.Fprintln(w, v) })
		})
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a setting",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return inWorkspace(cmd, func(a *app, ws string) error {
			if err := a.svc.SetSetting(cmd.Context(), ws, args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", args[0], args[1])
			return nil
		})
	},
}

var eventsCmd = &cobra.Command{
	Use:     "events",
	Short:   "Read and append to the workspace event log",
	GroupID: "workspace",
}

var eventsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List logged events",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		return inWorkspace(cmd, func(a *app, ws string) error {
			evs, err := a.svc.ListEvents(cmd.Context(), ws)
			if err != nil {
				return err
			}
			if limit > 0 && len(evs) > limit {
				evs = evs[len(evs)-limit:]
			}
			return emit(cmd.OutOrStdout(), evs, func(w io.Writer) { printEventTable(w, evs) })
		})
	},
}

var eventsLogCmd = &cobra.Command{
	Use:   "log <event> [detail]",
	Short: "Append an event",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var detail string
		if len(args) == 2 {
			detail = args[1]
		}
		return inWorkspace(cmd, func(a *app, ws string) error {
			// Best-effort: failures are reported in the log, not returned.
			a.svc.LogEvent(cmd.Context(), ws, args[0], detail)
			fmt.Fprintln(cmd.OutOrStdout(), ui.RenderMuted("logged "+args[0]))
			return nil
		})
	},
}

func init() {
	workspaceCmd.AddCommand(workspaceEnsureCmd, workspaceInitCmd)
	settingsCmd.AddCommand(settingsGetCmd, settingsSetCmd)
	eventsListCmd.Flags().Int("limit", 0, "show only the most recent N events")
	eventsCmd.AddCommand(eventsListCmd, eventsLogCmd)
}
