package ws

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/tripmate/companion/internal/apperr"
	"github.com/tripmate/companion/internal/protocol"
)

// MessageHandler handles one parsed client frame. msg is the concrete struct
// returned by protocol.ParseClientMessage. A returned error is reported back
// to the client as an error frame.
type MessageHandler func(ctx context.Context, conn *Connection, msg interface{}) error

// MessageDispatcher routes client frames to handlers by message type. Ping is
// answered internally.
type MessageDispatcher struct {
	handlers map[string]MessageHandler
	timeout  time.Duration
}

// NewMessageDispatcher creates an empty dispatcher. Each handler call gets a
// context bounded by timeout.
func NewMessageDispatcher(timeout time.Duration) *MessageDispatcher {
	return &MessageDispatcher{
		handlers: make(map[string]MessageHandler),
		timeout:  timeout,
	}
}

// Register associates a handler with a message type, replacing any previous
// one.
func (d *MessageDispatcher) Register(msgType string, handler MessageHandler) {
	d.handlers[msgType] = handler
}

// Dispatch parses data and runs the matching handler.
func (d *MessageDispatcher) Dispatch(conn *Connection, data []byte) {
	msgType, msg, err := protocol.ParseClientMessage(data)
	if err != nil {
		log.Printf("[ws] parse error conn=%s: %v", conn.ID, err)
		if msgType != "" && msgType != protocol.TypePing {
			if _, known := d.handlers[msgType]; !known {
				sendError(conn, protocol.CodeUnsupportedType, "unsupported message type")
				return
			}
			sendError(conn, protocol.CodeInvalidPayload, "invalid message payload")
			return
		}
		sendError(conn, protocol.CodeParseError, "invalid message format")
		return
	}

	if msgType == protocol.TypePing {
		send(conn, protocol.TypePong, protocol.PongMsg{})
		return
	}

	handler, ok := d.handlers[msgType]
	if !ok {
		sendError(conn, protocol.CodeUnsupportedType, "unsupported message type")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	if err := handler(ctx, conn, msg); err != nil {
		code := protocol.CodeInvalidPayload
		if apperr.HTTPStatus(err) == http.StatusInternalServerError {
			code = protocol.CodeInternal
			log.Printf("[ws] handler type=%s conn=%s: %v", msgType, conn.ID, err)
		}
		sendError(conn, code, apperr.Message(err))
	}
}

func sendError(conn *Connection, code, message string) {
	send(conn, protocol.TypeError, protocol.ErrorMsg{Code: code, Message: message})
}

func send(conn *Connection, msgType string, payload interface{}) {
	data, err := protocol.NewServerMessage(msgType, payload)
	if err != nil {
		log.Printf("[ws] build %s frame conn=%s: %v", msgType, conn.ID, err)
		return
	}
	if err := conn.WriteMessage(data); err != nil {
		log.Printf("[ws] send %s frame conn=%s: %v", msgType, conn.ID, err)
	}
}
