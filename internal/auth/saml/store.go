package saml

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

const (
	requestBucket = "saml_requests"
	sessionBucket = "saml_sessions"

	// requestTTL bounds how long an outstanding AuthnRequest ID stays
	// valid for InResponseTo matching.
	requestTTL = 5 * time.Minute

	// sessionTTL is the lifetime of an established SP session.
	sessionTTL = 8 * time.Hour
)

// Session is an authenticated SP session established from a validated
// assertion.
type Session struct {
	ID           string              `json:"id"`
	NameID       string              `json:"name_id"`
	SessionIndex string              `json:"session_index"`
	Attributes   map[string][]string `json:"attributes"`
	CreatedAt    time.Time           `json:"created_at"`
	ExpiresAt    time.Time           `json:"expires_at"`
}

// Store persists outstanding request IDs and SP sessions in a bbolt
// database next to the token files.
type Store struct {
	db *bolt.DB
}

// OpenStore opens (creating if needed) the session database at path.
func OpenStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create session store directory: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, errBucket := tx.CreateBucketIfNotExists([]byte(requestBucket)); errBucket != nil {
			return errBucket
		}
		_, errBucket := tx.CreateBucketIfNotExists([]byte(sessionBucket))
		return errBucket
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to prepare session store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// TrackRequest records an issued AuthnRequest ID so the ACS can later
// accept it as InResponseTo.
func (s *Store) TrackRequest(id string) error {
	if id == "" {
		return fmt.Errorf("request ID is empty")
	}
	expiry := time.Now().Add(requestTTL).Format(time.RFC3339)
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(requestBucket)).Put([]byte(id), []byte(expiry))
	})
}

// PendingRequestIDs returns the request IDs still awaiting a response,
// pruning expired ones as it goes.
func (s *Store) PendingRequestIDs() ([]string, error) {
	var ids []string
	now := time.Now()
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(requestBucket))
		var stale [][]byte
		errEach := b.ForEach(func(k, v []byte) error {
			expiry, errParse := time.Parse(time.RFC3339, string(v))
			if errParse != nil || now.After(expiry) {
				stale = append(stale, append([]byte(nil), k...))
				return nil
			}
			ids = append(ids, string(k))
			return nil
		})
		if errEach != nil {
			return errEach
		}
		for _, k := range stale {
			if errDel := b.Delete(k); errDel != nil {
				return errDel
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// ConsumeRequest removes a request ID once its response was accepted.
func (s *Store) ConsumeRequest(id string) error {
	if id == "" {
		return nil
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(requestBucket)).Delete([]byte(id))
	})
}

// CreateSession stores a new session for the given subject and returns
// it with a fresh ID.
func (s *Store) CreateSession(nameID, sessionIndex string, attributes map[string][]string) (*Session, error) {
	now := time.Now()
	session := &Session{
		ID:           uuid.NewString(),
		NameID:       nameID,
		SessionIndex: sessionIndex,
		Attributes:   attributes,
		CreatedAt:    now,
		ExpiresAt:    now.Add(sessionTTL),
	}
	data, err := json.Marshal(session)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session: %w", err)
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(sessionBucket)).Put([]byte(session.ID), data)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}
	return session, nil
}

// GetSession returns the session with the given ID, or an error if it
// does not exist or has expired. Expired sessions are deleted.
func (s *Store) GetSession(id string) (*Session, error) {
	var session Session
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(sessionBucket)).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("session %q not found", id)
		}
		return json.Unmarshal(data, &session)
	})
	if err != nil {
		return nil, err
	}
	if time.Now().After(session.ExpiresAt) {
		_ = s.DeleteSession(id)
		return nil, fmt.Errorf("session %q has expired", id)
	}
	return &session, nil
}

// DeleteSession removes a session, if present.
func (s *Store) DeleteSession(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(sessionBucket)).Delete([]byte(id))
	})
}
