package main

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func testSession() Session {
	return Session{
		Token:     "abc.def.ghi",
		ExpiresAt: time.Date(2026, 3, 4, 5, 6, 7, 890_000_000, time.UTC),
		UserID:    "u-1",
		UserName:  "Ada Lovelace",
	}
}

func TestGetEntry_Missing(t *testing.T) {
	store := setupTestDB(t)

	value, ok, err := getEntry(store.db, "nonexistent")
	if err != nil {
		t.Fatalf("getEntry() error: %v", err)
	}
	if ok || value != "" {
		t.Errorf("expected no entry, got %q", value)
	}
}

func TestSetEntry_Upsert(t *testing.T) {
	store := setupTestDB(t)

	if err := setEntry(store.db, keyToken, "first"); err != nil {
		t.Fatalf("setEntry() error: %v", err)
	}
	if err := setEntry(store.db, keyToken, "second"); err != nil {
		t.Fatalf("setEntry() update error: %v", err)
	}

	value, _, err := getEntry(store.db, keyToken)
	if err != nil {
		t.Fatalf("getEntry() error: %v", err)
	}
	if value != "second" {
		t.Errorf("expected 'second', got %q", value)
	}
}

func TestSaveAndLoad(t *testing.T) {
	store := setupTestDB(t)
	want := testSession()

	if err := store.Save(want); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got.Token != want.Token {
		t.Errorf("Token = %q, want %q", got.Token, want.Token)
	}
	if !got.ExpiresAt.Equal(want.ExpiresAt) {
		t.Errorf("ExpiresAt = %v, want %v", got.ExpiresAt, want.ExpiresAt)
	}
	if got.UserID != want.UserID {
		t.Errorf("UserID = %q, want %q", got.UserID, want.UserID)
	}
	if got.UserName != want.UserName {
		t.Errorf("UserName = %q, want %q", got.UserName, want.UserName)
	}
}

func TestSave_ExpirationFormat(t *testing.T) {
	store := setupTestDB(t)

	if err := store.Save(testSession()); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	value, _, err := getEntry(store.db, keyExpiration)
	if err != nil {
		t.Fatalf("getEntry() error: %v", err)
	}
	if value != "2026-03-04T05:06:07.890Z" {
		t.Errorf("expected ISO-8601 expiration, got %q", value)
	}
}

func TestLoad_Incomplete(t *testing.T) {
	tests := []struct {
		name    string
		entries map[string]string
	}{
		{"empty", nil},
		{"token only", map[string]string{keyToken: "abc"}},
		{"expiration only", map[string]string{keyExpiration: "2026-03-04T05:06:07.890Z"}},
		{"empty token", map[string]string{keyToken: "", keyExpiration: "2026-03-04T05:06:07.890Z"}},
		{"empty expiration", map[string]string{keyToken: "abc", keyExpiration: ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := setupTestDB(t)
			for k, v := range tt.entries {
				if err := setEntry(store.db, k, v); err != nil {
					t.Fatalf("setEntry() error: %v", err)
				}
			}

			_, err := store.Load()
			if !errors.Is(err, ErrNoSession) {
				t.Errorf("Load() error = %v, want ErrNoSession", err)
			}
		})
	}
}

func TestLoad_BadExpiration(t *testing.T) {
	store := setupTestDB(t)
	setEntry(store.db, keyToken, "abc")
	setEntry(store.db, keyExpiration, "tomorrow")

	_, err := store.Load()
	if err == nil || errors.Is(err, ErrNoSession) {
		t.Errorf("expected parse error, got %v", err)
	}
}

func TestClear(t *testing.T) {
	store := setupTestDB(t)

	if err := store.Save(testSession()); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("Clear() error: %v", err)
	}

	var count int
	if err := store.db.QueryRow("SELECT COUNT(*) FROM session").Scan(&count); err != nil {
		t.Fatalf("counting entries: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0 entries after Clear, got %d", count)
	}

	// Clearing twice is fine
	if err := store.Clear(); err != nil {
		t.Errorf("second Clear() error: %v", err)
	}
}

func TestSave_Sealed(t *testing.T) {
	store := setupTestDB(t)
	s, err := newSealer("correct horse battery staple")
	if err != nil {
		t.Fatalf("newSealer() error: %v", err)
	}
	store.sealer = s

	want := testSession()
	if err := store.Save(want); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	raw, _, err := getEntry(store.db, keyToken)
	if err != nil {
		t.Fatalf("getEntry() error: %v", err)
	}
	if !strings.HasPrefix(raw, sealedPrefix) || strings.Contains(raw, want.Token) {
		t.Errorf("token stored in the clear: %q", raw)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got.Token != want.Token {
		t.Errorf("Token = %q, want %q", got.Token, want.Token)
	}
}

func TestLoad_SealedWithoutKey(t *testing.T) {
	store := setupTestDB(t)
	s, _ := newSealer("key")
	store.sealer = s
	if err := store.Save(testSession()); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	store.sealer = nil
	if _, err := store.Load(); !errors.Is(err, errSealedValue) {
		t.Errorf("Load() error = %v, want errSealedValue", err)
	}
}
