package chat

import (
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

// recorder is an in-memory Transport keeping every frame it was handed.
type recorder struct {
	mu     sync.Mutex
	frames [][]byte
	err    error
}

func (r *recorder) Send(payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.frames = append(r.frames, append([]byte(nil), payload...))
	return nil
}

func (r *recorder) payloads(t *testing.T) []Payload {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Payload, 0, len(r.frames))
	for _, frame := range r.frames {
		var p Payload
		require.NoError(t, json.Unmarshal(frame, &p))
		out = append(out, p)
	}
	return out
}

func (r *recorder) ofKind(t *testing.T, kind Kind) []Payload {
	t.Helper()
	var out []Payload
	for _, p := range r.payloads(t) {
		if p.Type == kind {
			out = append(out, p)
		}
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = nil
}

// maskModerator censors one word and always answers "en".
type maskModerator struct{ word string }

func (m maskModerator) Censor(text string) (string, []string) {
	if !strings.Contains(text, m.word) {
		return text, nil
	}
	return strings.ReplaceAll(text, m.word, strings.Repeat("*", len(m.word))), []string{m.word}
}

func (maskModerator) Language(string) string { return "en" }

type fixture struct {
	registry   *Registry
	router     *Router
	dispatcher *Dispatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	registry := NewRegistry(log)
	router := NewRouter(registry, log)
	return &fixture{
		registry:   registry,
		router:     router,
		dispatcher: NewDispatcher(registry, router, maskModerator{word: "darn"}, "lobby", log),
	}
}

func (f *fixture) connect(t *testing.T) (*Session, *recorder) {
	t.Helper()
	rec := &recorder{}
	s := NewSession(rec, "127.0.0.1:0", "")
	f.dispatcher.Connect(s)
	return s, rec
}

// named connects a session and creates its account.
func (f *fixture) named(t *testing.T, nickname string) (*Session, *recorder) {
	t.Helper()
	s, rec := f.connect(t)
	f.send(t, s, map[string]any{"type": "account:create", "nickname": nickname, "avatar": ""})
	require.Equal(t, nickname, s.Nickname())
	return s, rec
}

func (f *fixture) send(t *testing.T, s *Session, frame map[string]any) {
	t.Helper()
	raw, err := json.Marshal(frame)
	require.NoError(t, err)
	f.dispatcher.Handle(s, raw)
}

func resetAll(recorders ...*recorder) {
	for _, r := range recorders {
		r.reset()
	}
}

// requireConsistent checks that room membership agrees in both directions.
func requireConsistent(t *testing.T, r *Registry) {
	t.Helper()
	r.mu.RLock()
	defer r.mu.RUnlock()

	for room, members := range r.members {
		require.NotEmpty(t, members, "room %q kept with no members", room)
		for id := range members {
			_, ok := r.memberships[id][room]
			require.True(t, ok, "session %s in members(%q) but not the reverse", id, room)
		}
	}
	for id, rooms := range r.memberships {
		for room := range rooms {
			_, ok := r.members[room][id]
			require.True(t, ok, "room %q in rooms(%s) but not the reverse", room, id)
		}
	}
}
