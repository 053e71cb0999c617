package main

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const (
	keyToken      = "token"
	keyExpiration = "expiration"
	keyUserID     = "userId"
	keyUserName   = "userName"

	// Matches the ISO-8601 form browsers write, e.g. 2026-01-02T15:04:05.000Z.
	expirationLayout = "2006-01-02T15:04:05.000Z07:00"
)

// ErrNoSession is returned by Load when no complete session is stored.
var ErrNoSession = errors.New("no stored session")

// SessionStore persists the auth session between runs.
type SessionStore interface {
	Load() (*Session, error)
	Save(Session) error
	Clear() error
}

type sqliteStore struct {
	db     *sql.DB
	sealer *sealer
}

func newSQLiteStore(db *sql.DB, s *sealer) *sqliteStore {
	return &sqliteStore{db: db, sealer: s}
}

func getEntry(q querier, key string) (string, bool, error) {
	var value string
	err := q.QueryRow("SELECT value FROM session WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("getting %q: %w", key, err)
	}
	return value, true, nil
}

func setEntry(q querier, key, value string) error {
	_, err := q.Exec(`
		INSERT INTO session (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("setting %q: %w", key, err)
	}
	return nil
}

type querier interface {
	QueryRow(query string, args ...any) *sql.Row
	Exec(query string, args ...any) (sql.Result, error)
}

// Load returns ErrNoSession unless both token and expiration are present.
func (s *sqliteStore) Load() (*Session, error) {
	token, ok, err := getEntry(s.db, keyToken)
	if err != nil {
		return nil, err
	}
	if !ok || token == "" {
		return nil, ErrNoSession
	}

	expiration, ok, err := getEntry(s.db, keyExpiration)
	if err != nil {
		return nil, err
	}
	if !ok || expiration == "" {
		return nil, ErrNoSession
	}

	expiresAt, err := time.Parse(time.RFC3339, expiration)
	if err != nil {
		return nil, fmt.Errorf("parsing expiration %q: %w", expiration, err)
	}

	token, err = s.sealer.open(token)
	if err != nil {
		return nil, fmt.Errorf("opening token: %w", err)
	}

	userID, _, err := getEntry(s.db, keyUserID)
	if err != nil {
		return nil, err
	}
	userName, _, err := getEntry(s.db, keyUserName)
	if err != nil {
		return nil, err
	}

	return &Session{
		Token:     token,
		ExpiresAt: expiresAt,
		UserID:    userID,
		UserName:  userName,
	}, nil
}

// Save writes all four entries in one transaction.
func (s *sqliteStore) Save(session Session) error {
	token, err := s.sealer.seal(session.Token)
	if err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning session save: %w", err)
	}
	defer tx.Rollback()

	entries := []struct{ key, value string }{
		{keyToken, token},
		{keyExpiration, session.ExpiresAt.UTC().Format(expirationLayout)},
		{keyUserID, session.UserID},
		{keyUserName, session.UserName},
	}
	for _, e := range entries {
		if err := setEntry(tx, e.key, e.value); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing session save: %w", err)
	}
	return nil
}

func (s *sqliteStore) Clear() error {
	_, err := s.db.Exec("DELETE FROM session WHERE key IN (?, ?, ?, ?)",
		keyToken, keyExpiration, keyUserID, keyUserName)
	if err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}
	return nil
}
