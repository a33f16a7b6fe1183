// Package notify delivers short user-facing messages (toasts).
package notify

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

type Level string

const (
	Success Level = "success"
	Info    Level = "info"
	Warning Level = "warning"
	Error   Level = "error"
)

// Notifier shows a message to the user.
type Notifier interface {
	Notify(level Level, message string)
}

// LogNotifier renders toasts through logrus.
type LogNotifier struct {
	Logger log.FieldLogger
}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{Logger: log.StandardLogger()}
}

func (n *LogNotifier) Notify(level Level, message string) {
	entry := n.Logger.WithField("toast", string(level))
	switch level {
	case Error:
		entry.Error(message)
	case Warning:
		entry.Warn(message)
	default:
		entry.Info(message)
	}
}

// Toast is one recorded notification.
type Toast struct {
	Level   Level
	Message string
}

// Recorder keeps every notification; tests and batch commands inspect it.
type Recorder struct {
	mu     sync.Mutex
	toasts []Toast
}

func (r *Recorder) Notify(level Level, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.toasts = append(r.toasts, Toast{Level: level, Message: message})
}

func (r *Recorder) Toasts() []Toast {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Toast(nil), r.toasts...)
}

// Last returns the most recent toast, or the zero Toast.
func (r *Recorder) Last() Toast {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.toasts) == 0 {
		return Toast{}
	}
	return r.toasts[len(r.toasts)-1]
}

// Multi fans a notification out to several notifiers.
type Multi []Notifier

func (m Multi) Notify(level Level, message string) {
	for _, n := range m {
		n.Notify(level, message)
	}
}
