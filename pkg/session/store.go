package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ktsuji/chatdrive/pkg/logging"
	"github.com/ktsuji/chatdrive/pkg/profile"
)

// TTL is how long a saved session is considered usable.
const TTL = 7 * 24 * time.Hour

const (
	// StatusActive marks a session record as restorable.
	StatusActive = "active"

	// StatusInvalid marks a session record as permanently unusable.
	// An invalid record is never restorable regardless of its expiry.
	StatusInvalid = "invalid"
)

const metadataFileName = "session_metadata.json"

// Cookie is the minimal persisted cookie tuple. It deliberately
// carries only the fields needed to rehydrate a browser context.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"http_only"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"same_site,omitempty"`
}

// State is the authentication state persisted per service: the cookie
// set plus an optional opaque payload supplied by the caller.
type State struct {
	Cookies []Cookie          `json:"cookies"`
	Payload map[string]string `json:"payload,omitempty"`
}

// Record is the validity metadata kept alongside each encrypted blob.
type Record struct {
	SavedAt   time.Time `json:"saved_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Status    string    `json:"status"`
}

// RecordStatus is the observable snapshot of one service's session.
type RecordStatus struct {
	Valid     bool      `json:"valid"`
	SavedAt   time.Time `json:"saved_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Status    string    `json:"status"`
}

// Store persists per-service authentication state, encrypted with a
// symmetric key it alone holds. Exactly one live record exists per
// service; saves replace it wholesale and invalidation deletes the
// blob immediately.
type Store struct {
	dir     string
	catalog *profile.Catalog
	cipher  *blobCipher
	log     *logging.Logger

	mu       sync.Mutex
	metadata map[string]Record

	// Injected for tests; defaults are the wall clock, a real
	// cancellable sleep, and the 300s manual-login ceiling.
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
	ceiling time.Duration
}

// NewStore opens (or creates) a session store rooted at dir. An empty
// dir defaults to ~/.chatdrive/sessions.
func NewStore(dir string, catalog *profile.Catalog) (*Store, error) {
	if dir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(homeDir, ".chatdrive", "sessions")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	cipher, err := loadOrCreateCipher(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize session cipher: %w", err)
	}

	log, _ := logging.NewLogger("session")

	s := &Store{
		dir:      dir,
		catalog:  catalog,
		cipher:   cipher,
		log:      log,
		metadata: make(map[string]Record),
		now:      time.Now,
	}
	s.loadMetadata()
	return s, nil
}

// Save serializes, encrypts, and persists the state for a service,
// replacing any prior record. The new record expires TTL from now.
func (s *Store) Save(serviceID string, state State) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to serialize session state: %w", err)
	}

	blob, err := s.cipher.encrypt(raw)
	if err != nil {
		return fmt.Errorf("failed to encrypt session state: %w", err)
	}

	if err := os.WriteFile(s.blobPath(serviceID), blob, 0600); err != nil {
		return fmt.Errorf("failed to write session blob: %w", err)
	}

	s.mu.Lock()
	now := s.now()
	s.metadata[serviceID] = Record{
		SavedAt:   now,
		ExpiresAt: now.Add(TTL),
		Status:    StatusActive,
	}
	s.saveMetadataLocked()
	s.mu.Unlock()

	s.log.Infof("Session saved for %s", serviceID)
	return nil
}

// Restore returns the stored state for a service, or (nil, false) when
// no record exists, the record is invalid or expired, or the blob
// cannot be decrypted. It never fails with an error: an unusable
// session is indistinguishable from an absent one.
func (s *Store) Restore(serviceID string) (*State, bool) {
	if !s.isValid(serviceID) {
		s.log.Debugf("No valid session for %s", serviceID)
		return nil, false
	}

	blob, err := os.ReadFile(s.blobPath(serviceID))
	if err != nil {
		s.log.Debugf("No session blob for %s: %v", serviceID, err)
		return nil, false
	}

	raw, err := s.cipher.decrypt(blob)
	if err != nil {
		// A blob sealed under a lost key decrypts to garbage; treat it
		// as absence rather than surfacing a failure.
		s.log.Warnf("Session blob for %s is undecryptable, ignoring", serviceID)
		return nil, false
	}

	var state State
	if err := json.Unmarshal(raw, &state); err != nil {
		s.log.Warnf("Session blob for %s is malformed, ignoring", serviceID)
		return nil, false
	}

	s.log.Infof("Session restored for %s", serviceID)
	return &state, true
}

// Invalidate marks a service's record invalid and deletes its blob
// immediately. A record invalidated once is never restorable.
func (s *Store) Invalidate(serviceID string) {
	s.mu.Lock()
	if rec, ok := s.metadata[serviceID]; ok {
		rec.Status = StatusInvalid
		s.metadata[serviceID] = rec
		s.saveMetadataLocked()
	}
	s.mu.Unlock()

	if err := os.Remove(s.blobPath(serviceID)); err != nil && !os.IsNotExist(err) {
		s.log.Warnf("Failed to remove session blob for %s: %v", serviceID, err)
	}

	s.log.Infof("Session invalidated for %s", serviceID)
}

// CleanupExpired sweeps every record and invalidates those that fail
// the validity check, returning the ids affected.
func (s *Store) CleanupExpired() []string {
	s.mu.Lock()
	var stale []string
	for serviceID := range s.metadata {
		if !s.isValidLocked(serviceID) {
			stale = append(stale, serviceID)
		}
	}
	s.mu.Unlock()

	for _, serviceID := range stale {
		s.Invalidate(serviceID)
	}

	if len(stale) > 0 {
		s.log.Infof("Cleaned up expired sessions: %v", stale)
	}
	return stale
}

// Status reports validity metadata for every known service.
func (s *Store) Status() map[string]RecordStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := make(map[string]RecordStatus, len(s.metadata))
	for serviceID, rec := range s.metadata {
		status[serviceID] = RecordStatus{
			Valid:     s.isValidLocked(serviceID),
			SavedAt:   rec.SavedAt,
			ExpiresAt: rec.ExpiresAt,
			Status:    rec.Status,
		}
	}
	return status
}

func (s *Store) isValid(serviceID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isValidLocked(serviceID)
}

func (s *Store) isValidLocked(serviceID string) bool {
	rec, ok := s.metadata[serviceID]
	if !ok {
		return false
	}
	if rec.Status != StatusActive {
		return false
	}
	return !s.now().After(rec.ExpiresAt)
}

func (s *Store) blobPath(serviceID string) string {
	return filepath.Join(s.dir, serviceID+"_session.enc")
}

func (s *Store) loadMetadata() {
	raw, err := os.ReadFile(filepath.Join(s.dir, metadataFileName))
	if err != nil {
		return
	}
	if err := json.Unmarshal(raw, &s.metadata); err != nil {
		s.log.Warnf("Session metadata is malformed, starting fresh: %v", err)
		s.metadata = make(map[string]Record)
	}
}

func (s *Store) saveMetadataLocked() {
	raw, err := json.MarshalIndent(s.metadata, "", "  ")
	if err != nil {
		s.log.Errorf("Failed to serialize session metadata: %v", err)
		return
	}
	if err := os.WriteFile(filepath.Join(s.dir, metadataFileName), raw, 0600); err != nil {
		s.log.Errorf("Failed to write session metadata: %v", err)
	}
}
