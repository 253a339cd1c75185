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

// LoggingTransport wraps an http.RoundTripper to log request and
// response details of every upstream call to a wire-log file.
type LoggingTransport struct {
	Transport http.RoundTripper
	logFile   *os.File
	mu        sync.Mutex
	writer    *bufio.Writer
}

// NewLoggingTransport creates a new LoggingTransport appending to
// logFilePath.
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

// RoundTrip executes a single HTTP transaction, logging details.
func (t *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	startTime := time.Now()

	reqDump, err := httputil.DumpRequestOut(req, true)
	if err != nil {
		log.WithError(err).Error("Failed to dump API request for logging")
		// Proceed with the request anyway
	} else {
		t.writeLog(fmt.Sprintf("--- Request (%s) ---\n%s\n", startTime.Format(time.RFC3339), string(reqDump)))
	}

	resp, err := t.Transport.RoundTrip(req)

	duration := time.Since(startTime)

	if err != nil {
		t.writeLog(fmt.Sprintf("--- Response Error (%s, Duration: %v) ---\n%s\n", time.Now().Format(time.RFC3339), duration, err.Error()))
		return resp, err
	}

	// Media payloads are not worth dumping; only JSON bodies are
	// replayed into the log.
	contentType := resp.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/json") {
		bodyBytes, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			log.WithError(readErr).Error("Failed to read response body for logging")
			respDump, dumpErr := httputil.DumpResponse(resp, false)
			if dumpErr == nil {
				t.writeLog(fmt.Sprintf("--- Response Headers Only (%s, Duration: %v) ---\n%s\n", time.Now().Format(time.RFC3339), duration, string(respDump)))
			}
			return resp, readErr
		}
		resp.Body.Close()
		resp.Body = io.NopCloser(bytes.NewReader(bodyBytes))

		respDump, dumpErr := httputil.DumpResponse(resp, false)
		if dumpErr != nil {
			log.WithError(dumpErr).Error("Failed to dump API response for logging")
		} else {
			t.writeLog(fmt.Sprintf("--- Response (%s, Duration: %v) ---\n%s%s\n", time.Now().Format(time.RFC3339), duration, string(respDump), string(bodyBytes)))
		}
		// Restore the body again for the caller.
		resp.Body = io.NopCloser(bytes.NewReader(bodyBytes))
	} else {
		respDump, dumpErr := httputil.DumpResponse(resp, false)
		if dumpErr != nil {
			log.WithError(dumpErr).Error("Failed to dump API response headers for logging")
		} else {
			t.writeLog(fmt.Sprintf("--- Response (%s, Duration: %v, Body Omitted: %s) ---\n%s\n", time.Now().Format(time.RFC3339), duration, contentType, string(respDump)))
		}
	}

	return resp, nil
}

func (t *LoggingTransport) writeLog(entry string) {
	if _, err := t.writer.WriteString(entry); err != nil {
		log.WithError(err).Error("Failed to write to API log file")
	}
	if err := t.writer.Flush(); err != nil {
		log.WithError(err).Error("Failed to flush API log file")
	}
}

// Close flushes and closes the underlying log file.
func (t *LoggingTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var firstErr error
	if t.writer != nil {
		if err := t.writer.Flush(); err != nil {
			firstErr = err
		}
	}
	if t.logFile != nil {
		if err := t.logFile.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
