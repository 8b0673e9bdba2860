// Package middleware provides Gin middleware for the qbridge web server.
// This file contains the request logging middleware that captures the full
// request and response exchange when enabled through configuration.
package middleware

import (
	"bytes"
	"io"

	"github.com/gin-gonic/gin"
	"github.com/qbridge-dev/qbridge/internal/logging"
	log "github.com/sirupsen/logrus"
)

// RequestLoggingMiddleware creates a Gin middleware that records HTTP
// exchanges through the given RequestLogger. When logging is disabled the
// middleware passes requests through untouched.
func RequestLoggingMiddleware(logger logging.RequestLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !logger.IsEnabled() {
			c.Next()
			return
		}

		info, err := captureRequestInfo(c)
		if err != nil {
			log.Debugf("request logging skipped: %v", err)
			c.Next()
			return
		}

		recorder := newResponseRecorder(c.Writer)
		c.Writer = recorder

		c.Next()

		if err = logger.LogRequest(info.URL, info.Method, info.Headers, info.Body,
			recorder.Status(), recorder.capturedHeaders(), recorder.body.Bytes()); err != nil {
			log.Debugf("failed to write request log: %v", err)
		}
	}
}

// captureRequestInfo extracts the URL, method, headers, and body from the
// incoming request. The body is read and then restored so the handlers can
// still consume it.
func captureRequestInfo(c *gin.Context) (*requestInfo, error) {
	url := c.Request.URL.Path
	if c.Request.URL.RawQuery != "" {
		url += "?" + c.Request.URL.RawQuery
	}

	headers := make(map[string][]string, len(c.Request.Header))
	for key, values := range c.Request.Header {
		headers[key] = values
	}

	var body []byte
	if c.Request.Body != nil {
		bodyBytes, err := io.ReadAll(c.Request.Body)
		if err != nil {
			return nil, err
		}
		c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
		body = bodyBytes
	}

	return &requestInfo{
		URL:     url,
		Method:  c.Request.Method,
		Headers: headers,
		Body:    body,
	}, nil
}
