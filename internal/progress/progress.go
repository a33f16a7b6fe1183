// Package progress follows a bulk metadata fetch over the backend's progress socket.
package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// Path of the progress socket relative to the WebSocket origin.
const FetchProgressPath = "/ws/fetch-progress"

var (
	ErrInvalidTransition = errors.New("invalid progress phase transition")
	ErrClosed            = errors.New("progress socket closed")
)

// Status is the status field of a progress message.
type Status string

const (
	StatusStarted    Status = "started"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// Message is one progress update pushed by the backend.
type Message struct {
	Status      Status `json:"status"`
	Processed   int    `json:"processed,omitempty"`
	Total       int    `json:"total,omitempty"`
	CurrentName string `json:"current_name,omitempty"`
	Success     int    `json:"success,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Percent returns processed/total as a whole percentage. Completed messages are 100.
func (m Message) Percent() int {
	if m.Status == StatusCompleted {
		return 100
	}
	if m.Total <= 0 {
		return 0
	}
	p := m.Processed * 100 / m.Total
	if p > 100 {
		p = 100
	}
	return p
}

// Phase is the lifecycle stage of one bulk operation.
type Phase int

const (
	Idle Phase = iota
	Connecting
	AwaitingOpen
	Posting
	Processing
	Completed
	Failed
	Closed
)

var phaseNames = map[Phase]string{
	Idle:         "idle",
	Connecting:   "connecting",
	AwaitingOpen: "awaiting-open",
	Posting:      "posting",
	Processing:   "processing",
	Completed:    "completed",
	Failed:       "error",
	Closed:       "closed",
}

func (p Phase) String() string {
	if n, ok := phaseNames[p]; ok {
		return n
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

var transitions = map[Phase][]Phase{
	Idle:         {Connecting},
	Connecting:   {AwaitingOpen, Failed},
	AwaitingOpen: {Posting, Failed},
	Posting:      {Processing, Failed},
	Processing:   {Processing, Completed, Failed},
	Completed:    {Closed},
	Failed:       {Closed},
}

// Machine tracks the phase of a bulk operation and rejects out-of-order moves.
type Machine struct {
	mu    sync.Mutex
	phase Phase
}

func (m *Machine) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// To moves to next, or returns ErrInvalidTransition.
func (m *Machine) To(next Phase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, allowed := range transitions[m.phase] {
		if allowed == next {
			log.Debugf("Progress phase %s -> %s", m.phase, next)
			m.phase = next
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.phase, next)
}

// Conn is an open progress socket. It can only be obtained from Dial, which returns
// after the handshake completes, so holding a Conn means the socket is open.
type Conn struct {
	ws        *websocket.Conn
	closeOnce sync.Once
	closeErr  error
}

// Dial opens the progress socket at url.
func Dial(ctx context.Context, dialer *websocket.Dialer, url string, header http.Header) (*Conn, error) {
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	ws, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("opening progress socket %s (status %d): %w", url, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("opening progress socket %s: %w", url, err)
	}
	return &Conn{ws: ws}, nil
}

// Next blocks for the next progress message. Cancelling ctx closes the socket.
func (c *Conn) Next(ctx context.Context) (Message, error) {
	var msg Message
	if err := c.ReadJSON(ctx, &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// ReadJSON decodes the next frame into v. Cancelling ctx closes the socket.
func (c *Conn) ReadJSON(ctx context.Context, v any) error {
	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()

	_, data, err := c.ws.ReadMessage()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding socket message: %w", err)
	}
	return nil
}

// Close closes the socket. It is safe to call more than once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}

// OperationError carries the error message reported by the backend.
type OperationError struct {
	Message string
}

func (e *OperationError) Error() string { return e.Message }

// Run drives one bulk operation. The socket is opened before trigger is called, so no
// update pushed in response to the trigger can be missed. report sees every message.
// Run returns the completed message, or the error that ended the operation; the socket
// is closed on every path.
func Run(ctx context.Context, m *Machine, dialer *websocket.Dialer, url string, trigger func(context.Context) error, report func(Message)) (Message, error) {
	if m == nil {
		m = &Machine{}
	}
	if err := m.To(Connecting); err != nil {
		return Message{}, err
	}
	fail := func(err error) (Message, error) {
		_ = m.To(Failed)
		return Message{}, err
	}

	conn, err := Dial(ctx, dialer, url, nil)
	if err != nil {
		_ = m.To(Failed)
		_ = m.To(Closed)
		return Message{}, err
	}
	defer func() {
		if err := conn.Close(); err != nil {
			log.WithError(err).Debug("Error closing progress socket")
		}
		_ = m.To(Closed)
	}()

	if err := m.To(AwaitingOpen); err != nil {
		return fail(err)
	}
	// Dial only returns once the handshake is done.
	if err := m.To(Posting); err != nil {
		return fail(err)
	}
	if err := trigger(ctx); err != nil {
		return fail(err)
	}
	if err := m.To(Processing); err != nil {
		return fail(err)
	}

	for {
		msg, err := conn.Next(ctx)
		if err != nil {
			return fail(err)
		}
		if report != nil {
			report(msg)
		}
		switch msg.Status {
		case StatusCompleted:
			if err := m.To(Completed); err != nil {
				return fail(err)
			}
			return msg, nil
		case StatusError:
			return fail(&OperationError{Message: msg.Error})
		case StatusStarted, StatusProcessing:
			_ = m.To(Processing)
		default:
			log.WithField("status", msg.Status).Debug("Ignoring unknown progress status")
		}
	}
}
