package main

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var identityCmd = &cobra.Command{
	Use:     "identity",
	Short:   "Manage named identities the CLI acts as",
	GroupID: "system",
}

var identityAddCmd = &cobra.Command{
	Use:   "add <name> <id>",
	Short: "Add or update a named identity",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, id := args[0], args[1]
		workspace, _ := cmd.Flags().GetString("workspace")

		cfg, err := loadProfiles()
		if err != nil {
			return err
		}
		cfg.Profiles[name] = Profile{ID: id, Workspace: workspace}
		if cfg.Active == "" {
			cfg.Active = name
		}
		if err := saveProfiles(cfg); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "identity %q added (%s)\n", name, id)
		return nil
	},
}

var identityRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a named identity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		cfg, err := loadProfiles()
		if err != nil {
			return err
		}
		if _, ok := cfg.Profiles[name]; !ok {
			return fmt.Errorf("identity %q not found", name)
		}
		delete(cfg.Profiles, name)
		if cfg.Active == name {
			cfg.Active = ""
		}
		if err := saveProfiles(cfg); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "identity %q removed\n", name)
		return nil
	},
}

var identityListCmd = &cobra.Command{
	Use:   "list",
	Short: "List identities",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadProfiles()
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), cfg)
		}
		if len(cfg.Profiles) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no identities configured")
			return nil
		}
		names := make([]string, 0, len(cfg.Profiles))
		for name := range cfg.Profiles {
			names = append(names, name)
		}
		sort.Strings(names)

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "  NAME\tID\tWORKSPACE")
		for _, name := range names {
			p := cfg.Profiles[name]
			marker := "  "
			if name == cfg.Active {
				marker = "* "
			}
			fmt.Fprintf(w, "%s%s\t%s\t%s\n", marker, name, p.ID, p.Workspace)
		}
		return w.Flush()
	},
}

var identityUseCmd = &cobra.Command{
	Use:   "use <name>",
	Short: "Set the active identity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		cfg, err := loadProfiles()
		if err != nil {
			return err
		}
		if _, ok := cfg.Profiles[name]; !ok {
			return fmt.Errorf("identity %q not found", name)
		}
		cfg.Active = name
		if err := saveProfiles(cfg); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "active identity set to %q\n", name)
		return nil
	},
}

func init() {
	identityAddCmd.Flags().String("workspace", "", "default workspace for this identity")

	identityCmd.AddCommand(identityAddCmd)
	identityCmd.AddCommand(identityRemoveCmd)
	identityCmd.AddCommand(identityListCmd)
	identityCmd.AddCommand(identityUseCmd)
}
