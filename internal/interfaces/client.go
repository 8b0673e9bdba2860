// Package interfaces defines the core interfaces and shared structures for the
// qbridge server. These interfaces provide a common contract for the components
// of the application, such as identity-provider login flows and token storage.
package interfaces

import (
	"context"
)

// LoginProvider defines the interface that all interactive login flows must
// implement. A login flow drives the provider's authorization-code grant end
// to end: it produces the authorization URL, collects the callback, exchanges
// the code for tokens and persists them into the auth directory.
type LoginProvider interface {
	// Provider returns the identifier recorded in the token file's
	// "type" field (e.g. "okta", "salesforce").
	Provider() string

	// Login runs the authorization-code flow and returns the path of the
	// token file written on success.
	Login(ctx context.Context, options *LoginOptions) (string, error)
}

// TokenStorage is implemented by the provider token storage types that
// persist themselves into the auth directory.
type TokenStorage interface {
	// SaveTokenToFile writes the token storage as JSON to the given path.
	SaveTokenToFile(path string) error
}
