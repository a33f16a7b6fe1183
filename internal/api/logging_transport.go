package api

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"os"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// LoggingTransport wraps an http.RoundTripper and appends every backend exchange to a
// log file. JSON and form bodies are logged; preview uploads are logged without body.
type LoggingTransport struct {
	Transport http.RoundTripper
	logFile   *os.File
	mu        sync.Mutex
	writer    *bufio.Writer
}

// NewLoggingTransport opens logFilePath for appending.
func NewLoggingTransport(transport http.RoundTripper, logFilePath string) (*LoggingTransport, error) {
	f, err := os.OpenFile(logFilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open API log file %s: %w", logFilePath, err)
	}
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &LoggingTransport{
		Transport: transport,
		logFile:   f,
		writer:    bufio.NewWriter(f),
	}, nil
}

func loggableBody(contentType string) bool {
	return strings.HasPrefix(contentType, "application/json") ||
		strings.HasPrefix(contentType, "application/x-www-form-urlencoded")
}

// RoundTrip executes a single HTTP transaction, logging details.
func (t *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()

	reqDump, err := httputil.DumpRequestOut(req, loggableBody(req.Header.Get("Content-Type")))
	if err != nil {
		log.WithError(err).Error("Failed to dump API request for logging")
	}

	resp, rtErr := t.Transport.RoundTrip(req)
	duration := time.Since(start)

	var entry strings.Builder
	fmt.Fprintf(&entry, "--- Request (%s) ---\n%s\n", start.Format(time.RFC3339), reqDump)
	if rtErr != nil {
		fmt.Fprintf(&entry, "--- Response Error (Duration: %v) ---\n%s\n", duration, rtErr)
		t.write(entry.String())
		return resp, rtErr
	}

	contentType := resp.Header.Get("Content-Type")
	respDump, dumpErr := httputil.DumpResponse(resp, false)
	if dumpErr != nil {
		respDump = []byte("Status: " + resp.Status + "\n")
	}
	fmt.Fprintf(&entry, "--- Response (Duration: %v) ---\n%s", duration, respDump)

	if loggableBody(contentType) {
		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			log.WithError(readErr).Error("Failed to read response body for logging")
			return nil, fmt.Errorf("reading response body: %w", readErr)
		}
		// Restore the body for the caller.
		resp.Body = io.NopCloser(bytes.NewReader(body))
		fmt.Fprintf(&entry, "--- Response Body (%s) ---\n%s\n", contentType, body)
	} else {
		entry.WriteString("(Body not logged)\n")
	}
	t.write(entry.String())
	return resp, nil
}

func (t *LoggingTransport) write(s string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := t.writer.WriteString(s + "\n"); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing to API log file: %v\n", err)
		return
	}
	if err := t.writer.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "Error flushing API log file: %v\n", err)
	}
}

// Close flushes and closes the log file.
func (t *LoggingTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	errFlush := t.writer.Flush()
	errClose := t.logFile.Close()
	if errFlush != nil {
		return fmt.Errorf("failed to flush API log buffer: %w", errFlush)
	}
	return errClose
}
