// Package chat persists conversation transcripts as JSON files so a chat
// can be resumed across runs.
package chat

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Session represents a single conversation thread.
type Session struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Model     string    `json:"model,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Message represents a single message in a session. Sources carries the
// chunk IDs cited by an assistant reply.
type Message struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	Sources   []string  `json:"sources,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionStore manages persistence of sessions and their messages.
type SessionStore struct {
	mu       sync.RWMutex
	sessions []Session
	dataDir  string
	filePath string
}

// NewSessionStore initialises the store, creating the directory and
// loading any existing sessions.
func NewSessionStore(dataDir string) (*SessionStore, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create sessions dir: %w", err)
	}

	store := &SessionStore{
		dataDir:  dataDir,
		filePath: filepath.Join(dataDir, "sessions.json"),
	}

	if data, err := os.ReadFile(store.filePath); err == nil {
		_ = json.Unmarshal(data, &store.sessions)
	}

	return store, nil
}

func (s *SessionStore) save() error {
	data, err := json.MarshalIndent(s.sessions, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.filePath, data, 0644)
}

// Create starts a new session. An empty name gets a default from the ID.
func (s *SessionStore) Create(name, model string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := generateUUID()
	if name == "" {
		name = "Chat " + id[:8]
	}

	session := Session{
		ID:        id,
		Name:      name,
		Model:     model,
		CreatedAt: time.Now(),
	}

	msgsPath := filepath.Join(s.dataDir, id+".json")
	if err := os.WriteFile(msgsPath, []byte("[]"), 0644); err != nil {
		return nil, fmt.Errorf("failed to create session file: %w", err)
	}

	s.sessions = append(s.sessions, session)
	if err := s.save(); err != nil {
		return nil, err
	}

	return &session, nil
}

func (s *SessionStore) List() []Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Session, len(s.sessions))
	copy(result, s.sessions)
	return result
}

func (s *SessionStore) Get(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.sessions {
		if s.sessions[i].ID == id {
			sess := s.sessions[i]
			return &sess, nil
		}
	}
	return nil, fmt.Errorf("session not found: %s", id)
}

func (s *SessionStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	found := false
	var updated []Session
	for _, sess := range s.sessions {
		if sess.ID == id {
			found = true
			continue
		}
		updated = append(updated, sess)
	}
	if !found {
		return fmt.Errorf("session not found: %s", id)
	}

	s.sessions = updated
	_ = os.Remove(filepath.Join(s.dataDir, id+".json"))

	return s.save()
}

// LoadMessages returns the full transcript of a session.
func (s *SessionStore) LoadMessages(id string) ([]Message, error) {
	data, err := os.ReadFile(filepath.Join(s.dataDir, id+".json"))
	if err != nil {
		return nil, fmt.Errorf("session transcript not found: %s", id)
	}
	var msgs []Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// AppendMessage adds one message to the session transcript.
func (s *SessionStore) AppendMessage(id string, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs, err := s.LoadMessages(id)
	if err != nil {
		return err
	}
	msgs = append(msgs, msg)

	data, err := json.MarshalIndent(msgs, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.dataDir, id+".json"), data, 0644)
}

func generateUUID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	b[6] = (b[6] & 0x0f) | 0x40
	b[8] = (b[8] & 0x3f) | 0x80
	return fmt.Sprintf("%08x-%04x-%04x-%04x-%012x",
		b[0:4], b[4:6], b[6:8], b[8:10], b[10:16])
}
