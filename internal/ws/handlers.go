package ws

import (
	"context"
	"fmt"

	"github.com/tripmate/companion/internal/apperr"
	"github.com/tripmate/companion/internal/protocol"
)

// DirectPublisher delivers a frame to every gateway holding a connection for
// userID.
type DirectPublisher interface {
	PublishDirectMessage(userID string, data []byte) error
}

// NotificationReader marks notifications read on behalf of their owner.
type NotificationReader interface {
	MarkRead(ctx context.Context, userID, id string) error
}

// TypingHandler relays typing indicators to the addressed user.
func TypingHandler(pub DirectPublisher) MessageHandler {
	return func(_ context.Context, conn *Connection, msg interface{}) error {
		m, ok := msg.(protocol.TypingMsg)
		if !ok {
			return apperr.Invalid("invalid typing payload")
		}
		if m.To == conn.UserID {
			return apperr.Invalid("cannot send typing to yourself")
		}

		data, err := protocol.NewServerMessage(protocol.TypeTyping, protocol.ServerTypingMsg{
			From:     conn.UserID,
			IsTyping: m.IsTyping,
		})
		if err != nil {
			return fmt.Errorf("ws: typing frame: %w", err)
		}
		if err := pub.PublishDirectMessage(m.To, data); err != nil {
			return fmt.Errorf("ws: relay typing: %w", err)
		}
		return nil
	}
}

// MarkReadHandler marks a notification read.
func MarkReadHandler(notes NotificationReader) MessageHandler {
	return func(ctx context.Context, conn *Connection, msg interface{}) error {
		m, ok := msg.(protocol.MarkReadMsg)
		if !ok {
			return apperr.Invalid("invalid mark_read payload")
		}
		return notes.MarkRead(ctx, conn.UserID, m.NotificationID)
	}
}
