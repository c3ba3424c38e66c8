package wsrouter

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type seekPayload struct {
	Time float64 `json:"time"`
}

type reply struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

func newTestServer(t *testing.T, r *WSRouter) *websocket.Conn {
	t.Helper()

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ws, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		_ = r.ServeConn(context.Background(), NewConn(ws))
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return client
}

func TestServeConnRoutesTypedPayload(t *testing.T) {
	r := New()

	var (
		mu    sync.Mutex
		types []string
	)
	r.Use(func(next HandlerFunc[any]) HandlerFunc[any] {
		return func(ctx context.Context, conn *Conn, payload any) error {
			mu.Lock()
			types = append(types, GetMessageTypeFromCtx(ctx))
			mu.Unlock()
			return next(ctx, conn, payload)
		}
	})

	Handle(r, "SEEK_TO", func(ctx context.Context, conn *Conn, p seekPayload) error {
		return conn.WriteJSON(reply{Type: "SEEK", Payload: p.Time})
	})

	client := newTestServer(t, r)
	require.NoError(t, client.WriteJSON(map[string]any{"type": "SEEK_TO", "payload": map[string]any{"time": 42}}))

	var got reply
	require.NoError(t, client.ReadJSON(&got))
	assert.Equal(t, "SEEK", got.Type)
	assert.Equal(t, float64(42), got.Payload)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"SEEK_TO"}, types)
}

func TestServeConnReportsErrors(t *testing.T) {
	r := New()
	errBoom := errors.New("boom")

	r.HandleError(func(ctx context.Context, conn *Conn, err error) {
		code := "INTERNAL"
		switch {
		case errors.Is(err, ErrUnknownMessageType):
			code = "UNKNOWN"
		case errors.Is(err, ErrInvalidPayload):
			code = "INVALID"
		}
		_ = conn.WriteJSON(reply{Type: "ERROR", Payload: code})
	})
	Handle(r, "FAIL", func(context.Context, *Conn, struct{}) error { return errBoom })
	Handle(r, "SEEK_TO", func(context.Context, *Conn, seekPayload) error { return nil })

	client := newTestServer(t, r)
	require.NoError(t, client.SetReadDeadline(time.Now().Add(5*time.Second)))

	for _, tc := range []struct {
		msg  map[string]any
		code string
	}{
		{map[string]any{"type": "NOPE"}, "UNKNOWN"},
		{map[string]any{"type": "FAIL"}, "INTERNAL"},
		{map[string]any{"type": "SEEK_TO", "payload": "not an object"}, "INVALID"},
	} {
		require.NoError(t, client.WriteJSON(tc.msg))

		var got reply
		require.NoError(t, client.ReadJSON(&got))
		assert.Equal(t, "ERROR", got.Type)
		assert.Equal(t, tc.code, got.Payload)
	}
}
