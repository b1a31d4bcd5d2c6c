package connectors

import (
	"context"

	"compsheet/internal"
)

// MailConnector pulls raw messages that may carry comp sheets from an inbox.
type MailConnector interface {
	FetchInbox(ctx context.Context, label string, max int) ([]internal.FetchedMailMessage, error)
}
