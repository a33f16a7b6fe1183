// Package loading shows the busy indicator and progress of long-running operations.
package loading

import (
	"fmt"
	"io"
	"sync"

	"github.com/gosuri/uilive"
)

// Indicator is the global loading overlay. Begin returns the release function; callers
// defer it so the overlay is cleared on every exit path.
type Indicator interface {
	Begin(message string) (release func())
	Progress(percent int, status string)
}

// Terminal draws the indicator on a live-updating terminal writer.
type Terminal struct {
	mu     sync.Mutex
	out    io.Writer
	writer *uilive.Writer
	depth  int
}

func NewTerminal(out io.Writer) *Terminal {
	return &Terminal{out: out}
}

func (t *Terminal) Begin(message string) func() {
	t.mu.Lock()
	if t.depth == 0 {
		t.writer = uilive.New()
		t.writer.Out = t.out
		t.writer.Start()
	}
	t.depth++
	fmt.Fprintf(t.writer, "%s\n", message)
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(t.release)
	}
}

func (t *Terminal) release() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.depth--
	if t.depth == 0 && t.writer != nil {
		t.writer.Stop()
		t.writer = nil
	}
}

func (t *Terminal) Progress(percent int, status string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.writer == nil {
		return
	}
	fmt.Fprintf(t.writer, "[%3d%%] %s\n", percent, status)
}

// Update is one recorded progress report.
type Update struct {
	Percent int
	Status  string
}

// Recorder tracks indicator usage without drawing anything.
type Recorder struct {
	mu       sync.Mutex
	active   int
	begins   int
	messages []string
	updates  []Update
}

func (r *Recorder) Begin(message string) func() {
	r.mu.Lock()
	r.active++
	r.begins++
	r.messages = append(r.messages, message)
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			r.active--
			r.mu.Unlock()
		})
	}
}

func (r *Recorder) Progress(percent int, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, Update{Percent: percent, Status: status})
}

// Active reports how many Begin calls have not been released.
func (r *Recorder) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

func (r *Recorder) Begins() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.begins
}

func (r *Recorder) Updates() []Update {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Update(nil), r.updates...)
}
