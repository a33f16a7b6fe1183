package progress

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// progressServer upgrades every request and, once triggered, sends msgs.
func progressServer(t *testing.T, msgs []Message, triggered <-chan struct{}) (*httptest.Server, *atomic.Bool) {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	clientClosed := &atomic.Bool{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		<-triggered
		for _, m := range msgs {
			if err := ws.WriteJSON(m); err != nil {
				return
			}
		}
		// Wait for the client to close.
		_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))
		if _, _, err := ws.ReadMessage(); err != nil {
			clientClosed.Store(true)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, clientClosed
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + FetchProgressPath
}

func TestMessagePercent(t *testing.T) {
	assert.Equal(t, 30, Message{Status: StatusProcessing, Processed: 3, Total: 10}.Percent())
	assert.Equal(t, 0, Message{Status: StatusProcessing}.Percent())
	assert.Equal(t, 100, Message{Status: StatusCompleted}.Percent())
	assert.Equal(t, 100, Message{Status: StatusProcessing, Processed: 12, Total: 10}.Percent())
}

func TestMachineTransitions(t *testing.T) {
	m := &Machine{}
	require.NoError(t, m.To(Connecting))
	require.NoError(t, m.To(AwaitingOpen))
	assert.ErrorIs(t, m.To(Processing), ErrInvalidTransition, "cannot process before posting")
	require.NoError(t, m.To(Posting))
	require.NoError(t, m.To(Processing))
	require.NoError(t, m.To(Processing))
	require.NoError(t, m.To(Completed))
	assert.ErrorIs(t, m.To(Failed), ErrInvalidTransition)
	require.NoError(t, m.To(Closed))
	assert.Equal(t, "closed", m.Phase().String())
}

func TestRunCompleted(t *testing.T) {
	triggered := make(chan struct{})
	srv, closed := progressServer(t, []Message{
		{Status: StatusStarted},
		{Status: StatusProcessing, Processed: 3, Total: 10, CurrentName: "x"},
		{Status: StatusCompleted, Success: 9, Processed: 10},
	}, triggered)

	var seen []Message
	m := &Machine{}
	final, err := Run(context.Background(), m, nil, wsURL(srv), func(context.Context) error {
		close(triggered)
		return nil
	}, func(msg Message) { seen = append(seen, msg) })

	require.NoError(t, err)
	assert.Equal(t, 9, final.Success)
	require.Len(t, seen, 3)
	assert.Equal(t, 30, seen[1].Percent())
	assert.Equal(t, 100, seen[2].Percent())
	assert.Equal(t, Closed, m.Phase())
	assert.Eventually(t, closed.Load, 5*time.Second, 10*time.Millisecond)
}

func TestRunErrorMessage(t *testing.T) {
	triggered := make(chan struct{})
	srv, closed := progressServer(t, []Message{{Status: StatusError, Error: "boom"}}, triggered)

	m := &Machine{}
	_, err := Run(context.Background(), m, nil, wsURL(srv), func(context.Context) error {
		close(triggered)
		return nil
	}, nil)

	require.Error(t, err)
	assert.Equal(t, "boom", err.Error())
	var opErr *OperationError
	assert.ErrorAs(t, err, &opErr)
	assert.Equal(t, Closed, m.Phase())
	assert.Eventually(t, closed.Load, 5*time.Second, 10*time.Millisecond)
}

func TestRunTriggerFailureClosesSocket(t *testing.T) {
	never := make(chan struct{})
	srv, _ := progressServer(t, nil, never)
	t.Cleanup(func() { close(never) })

	m := &Machine{}
	_, err := Run(context.Background(), m, nil, wsURL(srv), func(context.Context) error {
		return assert.AnError
	}, nil)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, Closed, m.Phase())
}

func TestRunDialFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	var triggered bool
	m := &Machine{}
	_, err := Run(context.Background(), m, nil, wsURL(srv), func(context.Context) error {
		triggered = true
		return nil
	}, nil)
	require.Error(t, err)
	assert.False(t, triggered, "trigger must not be sent without an open socket")
	assert.Equal(t, Closed, m.Phase())
}

func TestRunContextCancel(t *testing.T) {
	never := make(chan struct{})
	srv, _ := progressServer(t, nil, never)
	t.Cleanup(func() { close(never) })

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := Run(ctx, nil, nil, wsURL(srv), func(context.Context) error { return nil }, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
