package interfaces

import "time"

// LoginOptions contains options shared by the interactive login flows.
type LoginOptions struct {
	// NoBrowser indicates whether to skip opening the browser automatically.
	NoBrowser bool

	// Timeout bounds the wait for the OAuth callback. Zero selects the
	// flow default.
	Timeout time.Duration
}
