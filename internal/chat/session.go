package chat

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Identity is a point-in-time view of a session, safe to pass around
// after the session itself is gone.
type Identity struct {
	ID       string
	Nickname string
	Avatar   string
	Subject  string
	Details  Details
}

// Session is the server-side state of one live connection. Room membership
// lives in the Registry; everything else is guarded by the session's own
// lock.
type Session struct {
	id        string
	addr      string
	subject   string
	transport Transport

	mu           sync.RWMutex
	nickname     string
	avatar       string
	avatarSource string
	details      Details
	blacklist    map[string]struct{}
}

// NewSession creates an unnamed session delivering through transport.
// subject is the identity supplied by the login provider, empty for
// anonymous connections.
func NewSession(transport Transport, addr, subject string) *Session {
	return &Session{
		id:        uuid.NewString(),
		addr:      addr,
		transport: transport,
		subject:   subject,
		details:   Details{Session: time.Now().UTC()},
		blacklist: make(map[string]struct{}),
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) Addr() string { return s.addr }

// Subject is the verified login identity, empty for anonymous sessions.
func (s *Session) Subject() string { return s.subject }

func (s *Session) Nickname() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nickname
}

func (s *Session) Named() bool {
	return s.Nickname() != ""
}

// Identity returns a snapshot of the session's identity and details.
func (s *Session) Identity() Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Identity{
		ID:       s.id,
		Nickname: s.nickname,
		Avatar:   s.avatar,
		Subject:  s.subject,
		Details:  s.details,
	}
}

// Send encodes payload and hands it to the transport.
func (s *Session) Send(payload Payload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", payload.Type, err)
	}
	return s.transport.Send(data)
}

// Blacklist stops delivery of chat and private messages from nickname.
func (s *Session) Blacklist(nickname string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blacklist[nickname] = struct{}{}
}

func (s *Session) Blacklisted(nickname string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blacklist[nickname]
	return ok
}

func (s *Session) BlacklistedNicknames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lo.Keys(s.blacklist)
}

// setNickname binds nickname once. It reports false when the session was
// already named.
func (s *Session) setNickname(nickname string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nickname != "" {
		return false
	}
	s.nickname = nickname
	return true
}

func (s *Session) clearNickname() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nickname = ""
}

func (s *Session) setAvatarSource(source string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.avatarSource = source
}

func (s *Session) refreshAvatar() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.avatar = AvatarURL(s.avatarSource, s.nickname)
}

func (s *Session) markConnected(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.details.Connected = at
}

func (s *Session) recordMessage(words int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.details.Lines++
	s.details.Words += words
}

func (s *Session) recordResync() Details {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.details.Resync++
	return s.details
}
