package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/tutorsheets/internal/ui"
)

var (
	jsonOutput    bool
	asIdentity    string
	backendFlag   string
	workspaceFlag string

	application *app
)

var rootCmd = &cobra.Command{
	Use:           "tutor <command>",
	Short:         "Keep a tutor's students, lessons and payments in their own spreadsheet",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if application != nil {
			application.Close()
			application = nil
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	rootCmd.PersistentFlags().StringVar(&asIdentity, "as", defaultIdentity(), "identity to act as (default: active profile)")
	rootCmd.PersistentFlags().StringVar(&backendFlag, "backend", "", "storage backend: sheets, postgres or memory (default: TUTOR_BACKEND)")
	rootCmd.PersistentFlags().StringVar(&workspaceFlag, "workspace", "", "workspace link or id (default: the identity's registered workspace)")

	rootCmd.AddGroup(
		&cobra.Group{ID: "tutors", Title: "Tutors:"},
		&cobra.Group{ID: "records", Title: "Records:"},
		&cobra.Group{ID: "workspace", Title: "Workspace:"},
		&cobra.Group{ID: "conversation", Title: "Conversation:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)

	cobra.EnableCommandSorting = false
	rootCmd.SetHelpFunc(colorizedHelpFunc())

	// Tutors
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(profileCmd)

	// Records
	rootCmd.AddCommand(studentsCmd)
	rootCmd.AddCommand(lessonsCmd)
	rootCmd.AddCommand(paymentsCmd)
	rootCmd.AddCommand(assignmentsCmd)

	// Workspace
	rootCmd.AddCommand(workspaceCmd)
	rootCmd.AddCommand(settingsCmd)
	rootCmd.AddCommand(eventsCmd)

	// Conversation
	rootCmd.AddCommand(chatCmd)

	// System
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(identityCmd)
}

func main() {
	if !ui.ShouldUseColor() {
		ui.ForceNoColor()
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, ui.RenderError("Error: "+err.Error()))
		os.Exit(1)
	}
}
