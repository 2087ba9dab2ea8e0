package chat

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"unicode/utf8"

	"github.com/samber/lo"
)

const (
	MinNicknameLength = 2
	MaxNicknameLength = 24
)

type set map[string]struct{}

// Registry is the channel manager: it owns every live session, the nickname
// index and both directions of room membership. All of it sits behind one
// lock, so a room exists exactly while its member set is non-empty.
type Registry struct {
	mu          sync.RWMutex
	log         *slog.Logger
	sessions    map[string]*Session // session id -> session
	nicknames   map[string]string   // nickname -> session id
	members     map[string]set      // room -> session ids
	memberships map[string]set      // session id -> rooms
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		log:         log,
		sessions:    make(map[string]*Session),
		nicknames:   make(map[string]string),
		members:     make(map[string]set),
		memberships: make(map[string]set),
	}
}

// Add registers a freshly connected session.
func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID()] = s
	r.memberships[s.ID()] = make(set)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CheckNickname applies the length bounds to candidate.
func CheckNickname(candidate string) error {
	n := utf8.RuneCountInString(candidate)
	if n < MinNicknameLength {
		return ErrTooShort
	}
	if n >= MaxNicknameLength {
		return ErrTooLong
	}
	return nil
}

// ClaimNickname binds candidate to the session. Comparison is exact; callers
// trim beforehand. A session that already has a nickname keeps it and the
// call reports false without an error.
func (r *Registry) ClaimNickname(id, candidate string) (bool, error) {
	if err := CheckNickname(candidate); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return false, fmt.Errorf("claim %q: %w", candidate, ErrUnknownSession)
	}
	if s.Named() {
		return false, nil
	}
	if _, taken := r.nicknames[candidate]; taken {
		return false, ErrAlreadyTaken
	}
	if !s.setNickname(candidate) {
		return false, nil
	}
	r.nicknames[candidate] = id
	r.log.Debug("Nickname claimed", "session", id, "nickname", candidate)
	return true, nil
}

// ListNicknames returns a sorted snapshot of all claimed nicknames.
func (r *Registry) ListNicknames() []string {
	r.mu.RLock()
	nicknames := lo.Keys(r.nicknames)
	r.mu.RUnlock()
	slices.Sort(nicknames)
	return nicknames
}

// Lookup finds the live session holding nickname.
func (r *Registry) Lookup(nickname string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.nicknames[nickname]
	if !ok {
		return nil, false
	}
	s, ok := r.sessions[id]
	return s, ok
}

// Update recomputes the session's derived presentation fields.
func (r *Registry) Update(id string) error {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("update: %w", ErrUnknownSession)
	}
	s.refreshAvatar()
	return nil
}

// Subscribe adds the session to room, creating the room on first use. It
// reports whether the membership is new; subscribing twice is not an error.
func (r *Registry) Subscribe(id, room string) (bool, error) {
	if room == "" {
		return false, ErrInvalidRoom
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return false, fmt.Errorf("subscribe %q: %w", room, ErrUnknownSession)
	}
	if !s.Named() {
		return false, ErrNotNamed
	}
	if _, member := r.memberships[id][room]; member {
		return false, nil
	}

	if _, exists := r.members[room]; !exists {
		r.members[room] = make(set)
	}
	r.members[room][id] = struct{}{}
	r.memberships[id][room] = struct{}{}
	return true, nil
}

// Unsubscribe removes the session from room and reports whether it was a
// member.
func (r *Registry) Unsubscribe(id, room string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unsubscribe(id, room)
}

// UnsubscribeAll removes the session from every room and returns them.
func (r *Registry) UnsubscribeAll(id string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unsubscribeAll(id)
}

func (r *Registry) unsubscribe(id, room string) bool {
	rooms, ok := r.memberships[id]
	if !ok {
		return false
	}
	if _, member := rooms[room]; !member {
		return false
	}
	delete(rooms, room)

	if members, ok := r.members[room]; ok {
		delete(members, id)
		if len(members) == 0 {
			delete(r.members, room)
		}
	}
	return true
}

func (r *Registry) unsubscribeAll(id string) []string {
	rooms := lo.Keys(r.memberships[id])
	for _, room := range rooms {
		r.unsubscribe(id, room)
	}
	slices.Sort(rooms)
	return rooms
}

// Drop tears the session down: it leaves every room, its nickname becomes
// claimable again and the registry forgets it. The rooms it was in are
// returned so the caller can announce the departure.
func (r *Registry) Drop(id string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil
	}

	rooms := r.unsubscribeAll(id)
	if nickname := s.Nickname(); nickname != "" && r.nicknames[nickname] == id {
		delete(r.nicknames, nickname)
	}
	s.clearNickname()
	delete(r.memberships, id)
	delete(r.sessions, id)
	return rooms
}

// Rooms returns the sorted rooms the session belongs to.
func (r *Registry) Rooms(id string) []string {
	r.mu.RLock()
	rooms := lo.Keys(r.memberships[id])
	r.mu.RUnlock()
	slices.Sort(rooms)
	return rooms
}

// RoomNames lists every room that currently has members.
func (r *Registry) RoomNames() []string {
	r.mu.RLock()
	rooms := lo.Keys(r.members)
	r.mu.RUnlock()
	slices.Sort(rooms)
	return rooms
}

// MemberIDs returns the ids of room's members, nil when the room does not
// exist.
func (r *Registry) MemberIDs(room string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members, ok := r.members[room]
	if !ok {
		return nil
	}
	ids := lo.Keys(members)
	slices.Sort(ids)
	return ids
}

// Members resolves the union of the members of rooms, each session once,
// leaving out the session with id exclude.
func (r *Registry) Members(rooms []string, exclude string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(set)
	var recipients []*Session
	for _, room := range lo.Uniq(rooms) {
		for id := range r.members[room] {
			if id == exclude {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			if s, ok := r.sessions[id]; ok {
				recipients = append(recipients, s)
			}
		}
	}
	return recipients
}
