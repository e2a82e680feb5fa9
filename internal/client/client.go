// Package client talks to a running tutorsheets server over its HTTP/JSON
// conversation API.
package client

import (
	"context"

	"github.com/alfredjeanlab/tutorsheets/internal/conversation"
)

// Client is what the CLI needs from a remote server. It is implemented by
// HTTPClient.
type Client interface {
	// Send delivers one line of chat input for identity.
	Send(ctx context.Context, identity, text string) (*conversation.Reply, error)
	// Cancel ends the identity's current conversation.
	Cancel(ctx context.Context, identity string) (*conversation.Reply, error)
	// Health returns the server status string.
	Health(ctx context.Context) (string, error)
	Close() error
}
