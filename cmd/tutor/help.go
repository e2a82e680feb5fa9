package main

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/tutorsheets/internal/ui"
)

var (
	// Group and section headers, except "Usage:".
	reHeader = regexp.MustCompile(`(?m)^([A-Z][^\n]*:)[ \t]*$`)

	// Command rows: two-space indent, a name, then padding.
	reCommandRow = regexp.MustCompile(`(?m)^(  )(\S+)(  )`)

	reFlagKind = regexp.MustCompile(`(--?\S+\s+)(string|int|duration|stringArray)`)

	reDefaultValue = regexp.MustCompile(`\(default [^)]*\)`)
)

func colorizedHelpFunc() func(*cobra.Command, []string) {
	return func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		if !ui.ShouldUseColor() {
			_ = cmd.Usage()
			return
		}
		var buf bytes.Buffer
		cmd.SetOut(&buf)
		_ = cmd.Usage()
		cmd.SetOut(out)
		fmt.Fprint(out, colorizeHelp(buf.String()))
	}
}

func colorizeHelp(s string) string {
	s = reHeader.ReplaceAllStringFunc(s, func(m string) string {
		if strings.TrimSpace(m) == "Usage:" {
			return m
		}
		return ui.RenderAccent(strings.TrimSpace(m))
	})
	s = reCommandRow.ReplaceAllStringFunc(s, func(m string) string {
		p := reCommandRow.FindStringSubmatch(m)
		return p[1] + ui.RenderCommand(p[2]) + p[3]
	})
	s = reFlagKind.ReplaceAllStringFunc(s, func(m string) string {
		p := reFlagKind.FindStringSubmatch(m)
		return p[1] + ui.RenderMuted(p[2])
	})
	return reDefaultValue.ReplaceAllStringFunc(s, ui.RenderMuted)
}
