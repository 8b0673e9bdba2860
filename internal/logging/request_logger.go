// Package logging provides request logging functionality for the qbridge server.
// It handles capturing and storing detailed HTTP request and response data when
// enabled through configuration. Credentials in headers are redacted before the
// exchange is written to disk.
package logging

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// RequestLogger defines the interface for logging HTTP requests and responses.
type RequestLogger interface {
	// LogRequest logs a complete request/response cycle
	LogRequest(url, method string, requestHeaders map[string][]string, body []byte, statusCode int, responseHeaders map[string][]string, response []byte) error

	// IsEnabled returns whether request logging is currently enabled
	IsEnabled() bool
}

// sensitiveHeaders are request headers whose values are masked in log files.
var sensitiveHeaders = map[string]bool{
	"authorization": true,
	"cookie":        true,
	"set-cookie":    true,
	"x-api-key":     true,
}

// FileRequestLogger implements RequestLogger using file-based storage.
type FileRequestLogger struct {
	enabled bool
	logsDir string
}

// NewFileRequestLogger creates a new file-based request logger.
func NewFileRequestLogger(enabled bool, logsDir string) *FileRequestLogger {
	return &FileRequestLogger{
		enabled: enabled,
		logsDir: logsDir,
	}
}

// IsEnabled returns whether request logging is currently enabled.
func (l *FileRequestLogger) IsEnabled() bool {
	return l.enabled
}

// SetEnabled toggles request logging at runtime, used on config reloads.
func (l *FileRequestLogger) SetEnabled(enabled bool) {
	l.enabled = enabled
}

// LogRequest logs a complete request/response cycle to a file.
func (l *FileRequestLogger) LogRequest(url, method string, requestHeaders map[string][]string, body []byte, statusCode int, responseHeaders map[string][]string, response []byte) error {
	if !l.enabled {
		return nil
	}

	if err := l.ensureLogsDir(); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	filename := l.generateFilename(url)
	filePath := filepath.Join(l.logsDir, filename)

	// Decompress response if needed
	decompressedResponse, err := l.decompressResponse(responseHeaders, response)
	if err != nil {
		// If decompression fails, log the error but continue with original response
		decompressedResponse = append(response, []byte(fmt.Sprintf("\n[DECOMPRESSION ERROR: %v]", err))...)
	}

	content := l.formatLogContent(url, method, requestHeaders, body, decompressedResponse, statusCode, responseHeaders)

	if err = os.WriteFile(filePath, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write log file: %w", err)
	}

	return nil
}

// ensureLogsDir creates the logs directory if it doesn't exist.
func (l *FileRequestLogger) ensureLogsDir() error {
	if _, err := os.Stat(l.logsDir); os.IsNotExist(err) {
		return os.MkdirAll(l.logsDir, 0755)
	}
	return nil
}

// generateFilename creates a sanitized filename from the URL path and current timestamp.
func (l *FileRequestLogger) generateFilename(url string) string {
	path := url
	if strings.Contains(url, "?") {
		path = strings.Split(url, "?")[0]
	}
	path = strings.TrimPrefix(path, "https://")
	path = strings.TrimPrefix(path, "http://")

	sanitized := l.sanitizeForFilename(path)
	timestamp := time.Now().UnixNano()

	return fmt.Sprintf("%s-%d.log", sanitized, timestamp)
}

// sanitizeForFilename replaces characters that are not safe for filenames.
func (l *FileRequestLogger) sanitizeForFilename(path string) string {
	sanitized := strings.ReplaceAll(path, "/", "-")
	sanitized = strings.ReplaceAll(sanitized, ":", "-")

	reg := regexp.MustCompile(`[<>:"|?*\s]`)
	sanitized = reg.ReplaceAllString(sanitized, "-")

	reg = regexp.MustCompile(`-+`)
	sanitized = reg.ReplaceAllString(sanitized, "-")

	sanitized = strings.Trim(sanitized, "-")
	if sanitized == "" {
		sanitized = "root"
	}

	return sanitized
}

// formatLogContent creates the complete log content for a request/response cycle.
func (l *FileRequestLogger) formatLogContent(url, method string, headers map[string][]string, body, response []byte, status int, responseHeaders map[string][]string) string {
	var content strings.Builder

	content.WriteString(fmt.Sprintf("REQUEST %s %s\n", method, url))
	content.WriteString(fmt.Sprintf("Time: %s\n", time.Now().Format(time.RFC3339)))
	content.WriteString("Headers:\n")
	l.writeHeaders(&content, headers)
	content.WriteString("Body:\n")
	content.Write(body)
	content.WriteString("\n\n")

	content.WriteString(fmt.Sprintf("RESPONSE %d\n", status))
	content.WriteString("Headers:\n")
	l.writeHeaders(&content, responseHeaders)
	content.WriteString("Body:\n")
	content.Write(response)
	content.WriteString("\n")

	return content.String()
}

// writeHeaders writes headers with sensitive values masked.
func (l *FileRequestLogger) writeHeaders(content *strings.Builder, headers map[string][]string) {
	for key, values := range headers {
		if sensitiveHeaders[strings.ToLower(key)] {
			content.WriteString(fmt.Sprintf("  %s: REDACTED\n", key))
			continue
		}
		for _, value := range values {
			content.WriteString(fmt.Sprintf("  %s: %s\n", key, value))
		}
	}
}

// decompressResponse decompresses the response body according to Content-Encoding.
func (l *FileRequestLogger) decompressResponse(responseHeaders map[string][]string, response []byte) ([]byte, error) {
	encoding := ""
	for key, values := range responseHeaders {
		if strings.EqualFold(key, "Content-Encoding") && len(values) > 0 {
			encoding = strings.ToLower(values[0])
			break
		}
	}

	switch encoding {
	case "gzip":
		reader, err := gzip.NewReader(bytes.NewReader(response))
		if err != nil {
			return response, err
		}
		defer func() {
			_ = reader.Close()
		}()
		return io.ReadAll(reader)
	case "deflate":
		reader := flate.NewReader(bytes.NewReader(response))
		defer func() {
			_ = reader.Close()
		}()
		return io.ReadAll(reader)
	default:
		return response, nil
	}
}
