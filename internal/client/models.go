package client

// User is an Okta user record as returned by the Management API.
// Timestamps are kept as the RFC 3339 strings Okta emits; lastLogin and
// activated may be null for users that never signed in.
type User struct {
	ID            string           `json:"id"`
	Status        string           `json:"status"`
	Created       string           `json:"created,omitempty"`
	Activated     string           `json:"activated,omitempty"`
	StatusChanged string           `json:"statusChanged,omitempty"`
	LastLogin     string           `json:"lastLogin,omitempty"`
	LastUpdated   string           `json:"lastUpdated,omitempty"`
	Profile       UserProfile      `json:"profile"`
	Credentials   *UserCredentials `json:"credentials,omitempty"`
}

// UserProfile holds the standard Okta profile attributes used here.
type UserProfile struct {
	FirstName   string `json:"firstName,omitempty"`
	LastName    string `json:"lastName,omitempty"`
	Email       string `json:"email,omitempty"`
	Login       string `json:"login,omitempty"`
	MobilePhone string `json:"mobilePhone,omitempty"`
}

// UserCredentials carries the credential block for user creation.
type UserCredentials struct {
	Password *PasswordCredential `json:"password,omitempty"`
}

// PasswordCredential is a clear-text password value for user creation.
type PasswordCredential struct {
	Value string `json:"value"`
}

// Application is an Okta application record.
type Application struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Label       string `json:"label"`
	Status      string `json:"status"`
	SignOnMode  string `json:"signOnMode"`
	Created     string `json:"created,omitempty"`
	LastUpdated string `json:"lastUpdated,omitempty"`
}

// AppUser is a user's assignment to an application.
type AppUser struct {
	ID          string              `json:"id"`
	Scope       string              `json:"scope"`
	Status      string              `json:"status,omitempty"`
	Created     string              `json:"created,omitempty"`
	Credentials *AppUserCredentials `json:"credentials,omitempty"`
}

// AppUserCredentials is the application-scoped credential block of an
// assignment, typically just the user name.
type AppUserCredentials struct {
	UserName string `json:"userName,omitempty"`
}
