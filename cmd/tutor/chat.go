package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/tutorsheets/internal/client"
	"github.com/alfredjeanlab/tutorsheets/internal/conversation"
	"github.com/alfredjeanlab/tutorsheets/internal/ui"
)

var chatCmd = &cobra.Command{
	Use:     "chat",
	Short:   "Talk to the assistant on stdin",
	GroupID: "conversation",
	Long: `Reads one message per line. "/<flow> [args...]" starts a flow, for example
"/add_student Anna Petrova Oleg 1500". Other lines answer the current prompt.
/profile and /list_students answer directly; /help lists commands and
/quit ends the chat.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := identity()
		if err != nil {
			return err
		}
		c := &chat{
			identity: id,
			out:      cmd.OutOrStdout(),
			prompt:   ui.IsTerminal(os.Stdin),
		}
		if serverURL, _ := cmd.Flags().GetString("server"); serverURL != "" {
			token, _ := cmd.Flags().GetString("token")
			remote := client.NewHTTPClient(serverURL, token)
			defer remote.Close()
			c.flows = flowNames(conversation.DefaultFlows(nil))
			c.handleFlow = func(ctx context.Context, line string) (conversation.Reply, error) {
				reply, err := remote.Send(ctx, id, line)
				if errors.Is(err, client.ErrNoSession) {
					return conversation.Reply{}, conversation.ErrNoSession
				}
				if err != nil {
					return conversation.Reply{}, err
				}
				return *reply, nil
			}
			return c.run(cmd.Context(), cmd.InOrStdin())
		}

		a, err := getApp(cmd)
		if err != nil {
			return err
		}
		c.local(a)
		return c.run(cmd.Context(), cmd.InOrStdin())
	},
}

type chat struct {
	// app is nil when talking to a remote server.
	app        *app
	flows      []string
	handleFlow func(ctx context.Context, line string) (conversation.Reply, error)
	identity   string
	out        io.Writer
	prompt     bool
}

// local runs flows in-process on a's engine.
func (c *chat) local(a *app) {
	engine := a.newEngine()
	c.app = a
	c.flows = engine.Flows()
	c.handleFlow = func(ctx context.Context, line string) (conversation.Reply, error) {
		return engine.Handle(ctx, c.identity, line)
	}
}

func flowNames(flows []*conversation.Flow) []string {
	names := make([]string, len(flows))
	for i, f := range flows {
		names[i] = f.Name
	}
	return names
}

func (c *chat) run(ctx context.Context, in io.Reader) error {
	sc := bufio.NewScanner(in)
	for {
		if c.prompt {
			fmt.Fprint(c.out, ui.RenderMuted("> "))
		}
		if !sc.Scan() {
			return sc.Err()
		}
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		quit, err := c.handle(ctx, line)
		if err != nil {
			return err
		}
		if quit {
			return nil
		}
	}
}

// handle answers one line and reports whether the chat should end.
func (c *chat) handle(ctx context.Context, line string) (bool, error) {
	switch cmd := strings.ToLower(strings.Fields(line)[0]); {
	case cmd == "/quit" || cmd == "/exit":
		return true, nil
	case cmd == "/help" || cmd == "/start":
		c.say(c.help())
		return false, nil
	case (cmd == "/profile" || cmd == "/list_students") && c.app == nil:
		c.say("That command is only available in a local chat.")
		return false, nil
	case cmd == "/profile":
		cfg, err := c.app.svc.GetTutor(c.identity)
		if err != nil {
			c.say("You are not registered yet. Send /register first.")
			return false, nil
		}
		printProfile(c.out, cfg)
		return false, nil
	case cmd == "/list_students":
		c.listStudents(ctx)
		return false, nil
	}

	reply, err := c.handleFlow(ctx, line)
	switch {
	case errors.Is(err, conversation.ErrNoSession):
		c.say("Nothing is in progress. " + c.help())
		return false, nil
	case err != nil:
		return false, err
	}
	if reply.Done() && reply.Outcome == conversation.OutcomeCompleted {
		fmt.Fprintln(c.out, ui.RenderSuccess(reply.Text))
	} else {
		c.say(reply.Text)
	}
	return false, nil
}

func (c *chat) listStudents(ctx context.Context) {
	ws, err := c.app.svc.WorkspaceFor(c.identity)
	if err != nil {
		c.say("You are not registered yet. Send /register first.")
		return
	}
	list, err := c.app.svc.ListAssignments(ctx, ws)
	if err != nil {
		fmt.Fprintln(c.out, ui.RenderError("Could not read your students: "+err.Error()))
		return
	}
	if len(list) == 0 {
		c.say("You have no students yet. Add one with /add_student.")
		return
	}
	c.say("Your students:\n" + strings.Join(formatAssignments(list), "\n"))
}

func (c *chat) help() string {
	flows := append([]string(nil), c.flows...)
	sort.Strings(flows)
	cmds := make([]string, 0, len(flows)+2)
	for _, f := range flows {
		cmds = append(cmds, "/"+f)
	}
	cmds = append(cmds, "/profile", "/list_students")
	return "Commands: " + strings.Join(cmds, " ")
}

func (c *chat) say(text string) {
	fmt.Fprintln(c.out, ui.RenderAccent(text))
}

func init() {
	chatCmd.Flags().String("server", "", "talk to a running 'tutor serve' at this URL instead of in-process")
	chatCmd.Flags().String("token", "", "bearer token for --server")
}
