// Package responsewriter records the status and size of a response for the
// logging, metrics and tracing middleware.
package responsewriter

import (
	"net/http"
)

// ResponseWriter wraps http.ResponseWriter and remembers what was sent.
// It forwards Flush so streamed upstream responses pass through the proxy
// unbuffered.
type ResponseWriter struct {
	http.ResponseWriter
	status  int
	bytes   int
	written bool
}

// Wrap returns w unchanged if it is already a *ResponseWriter, so stacked
// middleware share one recorder.
func Wrap(w http.ResponseWriter) *ResponseWriter {
	if rw, ok := w.(*ResponseWriter); ok {
		return rw
	}
	return &ResponseWriter{ResponseWriter: w, status: http.StatusOK}
}

// WriteHeader records the first status code; later calls are dropped.
func (w *ResponseWriter) WriteHeader(status int) {
	if w.written {
		return
	}
	w.status = status
	w.written = true
	w.ResponseWriter.WriteHeader(status)
}

func (w *ResponseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// Flush implements http.Flusher when the underlying writer does.
func (w *ResponseWriter) Flush() {
	if !w.written {
		w.WriteHeader(http.StatusOK)
	}
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// StatusCode returns the status sent, or 200 if nothing was sent yet.
func (w *ResponseWriter) StatusCode() int { return w.status }

// BytesWritten returns the body size written so far.
func (w *ResponseWriter) BytesWritten() int { return w.bytes }

// Written reports whether the header has been sent.
func (w *ResponseWriter) Written() bool { return w.written }

// Unwrap supports http.ResponseController.
func (w *ResponseWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
