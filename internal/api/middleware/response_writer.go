package middleware

import (
	"bytes"

	"github.com/gin-gonic/gin"
)

// requestInfo holds the request data captured before the handlers run.
type requestInfo struct {
	URL     string
	Method  string
	Headers map[string][]string
	Body    []byte
}

// responseRecorder wraps gin.ResponseWriter and buffers the response body so
// the exchange can be written to the request log after the handler returns.
// The client write always happens first.
type responseRecorder struct {
	gin.ResponseWriter
	body       *bytes.Buffer
	statusCode int
}

func newResponseRecorder(w gin.ResponseWriter) *responseRecorder {
	return &responseRecorder{
		ResponseWriter: w,
		body:           &bytes.Buffer{},
	}
}

// Write forwards the data to the client and keeps a copy for the log.
func (w *responseRecorder) Write(data []byte) (int, error) {
	n, err := w.ResponseWriter.Write(data)
	w.body.Write(data[:n])
	return n, err
}

// WriteString forwards a string body the same way Write does.
func (w *responseRecorder) WriteString(s string) (int, error) {
	n, err := w.ResponseWriter.WriteString(s)
	w.body.WriteString(s[:n])
	return n, err
}

// WriteHeader records the status code before passing it through.
func (w *responseRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// Status returns the recorded status code, defaulting to 200 when the handler
// never called WriteHeader explicitly.
func (w *responseRecorder) Status() int {
	if w.statusCode == 0 {
		return w.ResponseWriter.Status()
	}
	return w.statusCode
}

// capturedHeaders snapshots the response headers after the handler ran.
func (w *responseRecorder) capturedHeaders() map[string][]string {
	headers := make(map[string][]string, len(w.Header()))
	for key, values := range w.Header() {
		headers[key] = values
	}
	return headers
}
