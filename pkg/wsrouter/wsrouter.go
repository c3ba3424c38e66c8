package wsrouter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gorilla/websocket"
)

var (
	ErrUnknownMessageType = errors.New("unknown message type")
	ErrInvalidPayload     = errors.New("invalid payload")
)

type message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type HandlerFunc[T any] func(ctx context.Context, conn *Conn, payload T) error

type Middleware func(next HandlerFunc[any]) HandlerFunc[any]

// ErrorHandler receives every error returned by a handler or produced while routing.
type ErrorHandler func(ctx context.Context, conn *Conn, err error)

type WSRouter struct {
	routes       map[string]HandlerFunc[json.RawMessage]
	middlewares  []Middleware
	errorHandler ErrorHandler
}

func New() *WSRouter {
	return &WSRouter{
		routes:       make(map[string]HandlerFunc[json.RawMessage]),
		errorHandler: func(context.Context, *Conn, error) {},
	}
}

func (r *WSRouter) Use(middlewares ...Middleware) {
	r.middlewares = append(r.middlewares, middlewares...)
}

func (r *WSRouter) HandleError(h ErrorHandler) {
	r.errorHandler = h
}

// Handle registers h for messageType. The payload is decoded into T before
// the middleware chain runs.
func Handle[T any](r *WSRouter, messageType string, h HandlerFunc[T]) {
	var final HandlerFunc[any] = func(ctx context.Context, conn *Conn, payload any) error {
		return h(ctx, conn, payload.(T))
	}

	r.routes[messageType] = func(ctx context.Context, conn *Conn, raw json.RawMessage) error {
		var payload T
		if len(raw) > 0 && string(raw) != "null" {
			if err := json.Unmarshal(raw, &payload); err != nil {
				return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
			}
		}

		next := final
		for i := len(r.middlewares) - 1; i >= 0; i-- {
			next = r.middlewares[i](next)
		}

		return next(ctx, conn, payload)
	}
}

// ServeConn reads messages until the connection fails or ctx is done.
// A clean close from the peer returns nil. The connection is closed on return.
func (r *WSRouter) ServeConn(parent context.Context, conn *Conn) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		var msg message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) || parent.Err() != nil {
				return nil
			}

			var syntaxErr *json.SyntaxError
			if errors.As(err, &syntaxErr) {
				r.errorHandler(ctx, conn, fmt.Errorf("%w: %w", ErrInvalidPayload, err))
				continue
			}

			return err
		}

		msgCtx := context.WithValue(ctx, messageTypeKey, msg.Type)
		handler, exists := r.routes[msg.Type]
		if !exists {
			r.errorHandler(msgCtx, conn, fmt.Errorf("%w: %q", ErrUnknownMessageType, msg.Type))
			continue
		}

		if err := handler(msgCtx, conn, msg.Payload); err != nil {
			r.errorHandler(msgCtx, conn, err)
		}
	}
}
