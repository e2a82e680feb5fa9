package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/tutorsheets/internal/registry"
	"github.com/alfredjeanlab/tutorsheets/internal/ui"
)

var registerCmd = &cobra.Command{
	Use:     "register <workspace link> <name...>",
	Short:   "Register the identity with a spreadsheet",
	GroupID: "tutors",
	Args:    cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := identity()
		if err != nil {
			return err
		}
		a, err := getApp(cmd)
		if err != nil {
			return err
		}
		cfg, err := a.svc.Register(cmd.Context(), id, strings.Join(args[1:], " "), args[0])
		if err != nil {
			return err
		}
		return emit(cmd.OutOrStdout(), cfg, func(w io.Writer) {
			fmt.Fprintln(w, ui.RenderSuccess(fmt.Sprintf("Registered %s (%s)", cfg.DisplayName, cfg.ExternalID)))
		})
	},
}

var showCmd = &cobra.Command{
	Use:     "show [id]",
	Short:   "Show a registry entry",
	GroupID: "tutors",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := idArg(args)
		if err != nil {
			return err
		}
		a, err := getApp(cmd)
		if err != nil {
			return err
		}
		cfg, err := a.svc.GetTutor(id)
		if err != nil {
			return err
		}
		return emit(cmd.OutOrStdout(), cfg, func(w io.Writer) { printTutor(w, cfg) })
	},
}

var updateCmd = &cobra.Command{
	Use:     "update [id]",
	Short:   "Change a tutor's name or workspace",
	GroupID: "tutors",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := idArg(args)
		if err != nil {
			return err
		}
		var fields registry.UpdateFields
		if cmd.Flags().Changed("name") {
			v, _ := cmd.Flags().GetString("name")
			fields.DisplayName = &v
		}
		if cmd.Flags().Changed("workspace-ref") {
			v, _ := cmd.Flags().GetString("workspace-ref")
			fields.WorkspaceRef = &v
		}
		if fields.DisplayName == nil && fields.WorkspaceRef == nil {
			return fmt.Errorf("nothing to update: pass --name or --workspace-ref")
		}
		a, err := getApp(cmd)
		if err != nil {
			return err
		}
		cfg, err := a.svc.UpdateTutor(cmd.Context(), id, fields)
		if err != nil {
			return err
		}
		return emit(cmd.OutOrStdout(), cfg, func(w io.Writer) { printTutor(w, cfg) })
	},
}

var deleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Short:   "Remove a registry entry",
	GroupID: "tutors",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := getApp(cmd)
		if err != nil {
			return err
		}
		if err := a.svc.DeleteTutor(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:     "list",
	Short:   "List registered tutors",
	GroupID: "tutors",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := getApp(cmd)
		if err != nil {
			return err
		}
		tutors, err := a.svc.ListTutors()
		if err != nil {
			return err
		}
		return emit(cmd.OutOrStdout(), tutors, func(w io.Writer) { printTutorTable(w, tutors) })
	},
}

var profileCmd = &cobra.Command{
	Use:     "profile",
	Short:   "Show your profile",
	GroupID: "tutors",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := identity()
		if err != nil {
			return err
		}
		a, err := getApp(cmd)
		if err != nil {
			return err
		}
		cfg, err := a.svc.GetTutor(id)
		if err != nil {
			return err
		}
		return emit(cmd.OutOrStdout(), cfg, func(w io.Writer) { printProfile(w, cfg) })
	},
}

// idArg returns the explicit id argument or the --as identity.
func idArg(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	return identity()
}

func init() {
	updateCmd.Flags().String("name", "", "new display name")
	updateCmd.Flags().String("workspace-ref", "", "new workspace link or id")
}
