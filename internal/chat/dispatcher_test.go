package chat

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func TestDispatcher_AccountCreate(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	alice, aliceRec := f.named(t, "alice")
	req.Equal([]string{"lobby"}, f.registry.Rooms(alice.ID()))

	joins := aliceRec.ofKind(t, KindUserJoin)
	req.Len(joins, 1, "the actor gets its own join")
	req.Equal("alice", joins[0].Nickname)
	req.NotEmpty(joins[0].Avatar)
	req.NotNil(joins[0].Details)
	req.False(joins[0].Details.Connected.IsZero())

	bob, bobRec := f.named(t, "bob")
	joins = aliceRec.ofKind(t, KindUserJoin)
	req.Len(joins, 2)
	req.Equal("bob", joins[1].Nickname)
	req.Len(bobRec.ofKind(t, KindUserJoin), 1)
	req.Equal([]string{"alice", "bob"}, f.registry.ListNicknames())
	req.NotEqual(alice.ID(), bob.ID())
}

func TestDispatcher_AccountCreate_Rejected(t *testing.T) {
	tests := []struct {
		name     string
		nickname string
		message  string
		users    []string
	}{
		{name: "too short", nickname: "a", message: "Your nickname is too short"},
		{name: "too long", nickname: strings.Repeat("z", 24), message: "Your nickname is too long"},
		{name: "taken", nickname: "alice", message: "This nickname is already taken", users: []string{"alice"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			f := newFixture(t)
			_, aliceRec := f.named(t, "alice")
			aliceRec.reset()

			s, rec := f.connect(t)
			f.send(t, s, map[string]any{"type": "account:create", "nickname": tt.nickname, "avatar": ""})

			checks := rec.ofKind(t, KindCheckNickname)
			req.Len(checks, 1)
			req.NotNil(checks[0].Validates)
			req.False(*checks[0].Validates)
			req.Equal(tt.message, checks[0].Message)
			req.Equal(tt.users, checks[0].Users)
			req.False(s.Named())
			req.Empty(f.registry.Rooms(s.ID()))
			req.Empty(aliceRec.payloads(t), "failed claims are not announced")
		})
	}
}

func TestDispatcher_AccountCreate_OnlyOnce(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	alice, aliceRec := f.named(t, "alice")
	aliceRec.reset()

	f.send(t, alice, map[string]any{"type": "account:create", "nickname": "alicia", "avatar": ""})

	req.Equal("alice", alice.Nickname())
	req.Equal([]string{"alice"}, f.registry.ListNicknames())
	req.Empty(aliceRec.payloads(t))
}

// Three sessions share a room; when one disconnects the other two each
// get exactly one departure and the nickname is released.
func TestDispatcher_Disconnect_AnnouncesDeparture(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	alice, aliceRec := f.named(t, "alice")
	_, bobRec := f.named(t, "bob")
	_, carolRec := f.named(t, "carol")
	resetAll(aliceRec, bobRec, carolRec)

	f.dispatcher.Disconnect(alice)

	for _, rec := range []*recorder{bobRec, carolRec} {
		departs := rec.ofKind(t, KindUserDepart)
		req.Len(departs, 1)
		req.Equal("alice", departs[0].Nickname)
	}
	req.Empty(aliceRec.payloads(t))
	req.Equal([]string{"bob", "carol"}, f.registry.ListNicknames())
	req.Equal(2, f.registry.Len())
	requireConsistent(t, f.registry)
}

func TestDispatcher_Disconnect_SharedRoomsAnnounceOnce(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	alice, _ := f.named(t, "alice")
	bob, bobRec := f.named(t, "bob")
	for _, s := range []*Session{alice, bob} {
		f.send(t, s, map[string]any{"type": "room:join", "room": "vip"})
	}
	bobRec.reset()

	f.dispatcher.Disconnect(alice)
	req.Len(bobRec.ofKind(t, KindUserDepart), 1)
}

func TestDispatcher_Disconnect_UnnamedIsSilent(t *testing.T) {
	f := newFixture(t)
	_, bobRec := f.named(t, "bob")
	bobRec.reset()

	ghost, _ := f.connect(t)
	f.dispatcher.Disconnect(ghost)

	require.Empty(t, bobRec.payloads(t))
	require.Equal(t, 1, f.registry.Len())
}

// A message addressed to two rooms reaches a member of both exactly once.
func TestDispatcher_Message_DeduplicatedAcrossRooms(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	alice, aliceRec := f.named(t, "alice")
	bob, bobRec := f.named(t, "bob")
	carol, carolRec := f.named(t, "carol")
	for _, s := range []*Session{alice, bob, carol} {
		f.send(t, s, map[string]any{"type": "room:join", "room": "vip"})
	}
	resetAll(aliceRec, bobRec, carolRec)

	f.send(t, alice, map[string]any{"type": "message", "message": "hello world", "rooms": []string{"lobby", "vip"}})

	for _, rec := range []*recorder{bobRec, carolRec} {
		messages := rec.ofKind(t, KindMessage)
		req.Len(messages, 1)
		req.Equal("hello world", messages[0].Message)
		req.Equal("alice", messages[0].Nickname)
		req.Equal(2, messages[0].Words)
		req.Equal("en", messages[0].Lang)
		req.ElementsMatch([]string{"lobby", "vip"}, messages[0].Rooms)
	}
	req.Empty(aliceRec.payloads(t))

	details := alice.Identity().Details
	req.Equal(1, details.Lines)
	req.Equal(2, details.Words)
}

func TestDispatcher_Message_OnlyToJoinedRooms(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	alice, aliceRec := f.named(t, "alice")
	bob, bobRec := f.named(t, "bob")
	f.send(t, bob, map[string]any{"type": "room:join", "room": "vip"})
	resetAll(aliceRec, bobRec)

	f.send(t, alice, map[string]any{"type": "message", "message": "sneaky", "rooms": []string{"vip"}})

	rejections := aliceRec.ofKind(t, KindUnicorn)
	req.Len(rejections, 1)
	req.Equal("Join a room before chatting", rejections[0].Message)
	req.Empty(bobRec.payloads(t))
}

func TestDispatcher_Message_Censored(t *testing.T) {
	f := newFixture(t)
	alice, _ := f.named(t, "alice")
	_, bobRec := f.named(t, "bob")
	bobRec.reset()

	f.send(t, alice, map[string]any{"type": "message", "message": "well darn it"})

	messages := bobRec.ofKind(t, KindMessage)
	require.Len(t, messages, 1)
	require.Equal(t, "well **** it", messages[0].Message)
}

func TestDispatcher_Message_RequiresNickname(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	_, bobRec := f.named(t, "bob")
	bobRec.reset()

	s, rec := f.connect(t)
	f.send(t, s, map[string]any{"type": "message", "message": "hi"})
	f.send(t, s, map[string]any{"type": "room:join", "room": "lobby"})

	rejections := rec.ofKind(t, KindUnicorn)
	req.Len(rejections, 2)
	req.Equal("Choose a nickname before chatting", rejections[0].Message)
	req.Equal("Choose a nickname before joining a room", rejections[1].Message)
	req.Empty(bobRec.payloads(t))
}

func TestDispatcher_Message_BlankIsRejected(t *testing.T) {
	f := newFixture(t)
	alice, aliceRec := f.named(t, "alice")
	_, bobRec := f.named(t, "bob")
	resetAll(aliceRec, bobRec)

	f.send(t, alice, map[string]any{"type": "message", "message": "   "})

	require.Len(t, aliceRec.ofKind(t, KindUnicorn), 1)
	require.Empty(t, bobRec.payloads(t))
}

// A reserved type from a client is rejected to that client alone and
// changes nothing.
func TestDispatcher_ReservedTypeRejected(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	alice, aliceRec := f.named(t, "alice")
	_, bobRec := f.named(t, "bob")
	resetAll(aliceRec, bobRec)

	for _, reserved := range []string{"connect", "disconnect"} {
		f.dispatcher.Handle(alice, []byte(`{"type":"`+reserved+`"}`))
	}

	rejections := aliceRec.payloads(t)
	req.Len(rejections, 2)
	for _, p := range rejections {
		req.Equal(Payload{Type: KindUnicorn, Message: "Incorrect message format"}, p)
	}
	req.Empty(bobRec.payloads(t))
	req.Equal([]string{"alice", "bob"}, f.registry.ListNicknames())
	req.Equal([]string{"lobby"}, f.registry.Rooms(alice.ID()))
}

func TestDispatcher_MalformedFrames(t *testing.T) {
	f := newFixture(t)
	alice, aliceRec := f.named(t, "alice")
	aliceRec.reset()

	for _, raw := range []string{`not json`, `{"type":"dance"}`, `{"type":7}`, `{}`} {
		f.dispatcher.Handle(alice, []byte(raw))
	}

	require.Len(t, aliceRec.ofKind(t, KindUnicorn), 4)
	require.Len(t, aliceRec.payloads(t), 4)
}

func TestDispatcher_Private(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	alice, aliceRec := f.named(t, "alice")
	_, bobRec := f.named(t, "bob")
	_, carolRec := f.named(t, "carol")
	resetAll(aliceRec, bobRec, carolRec)

	f.send(t, alice, map[string]any{"type": "private", "to": "bob", "message": "darn secret"})

	private := bobRec.ofKind(t, KindPrivate)
	req.Len(private, 1)
	req.Equal("alice", private[0].Nickname)
	req.Equal("bob", private[0].To)
	req.Equal("**** secret", private[0].Message)
	req.Empty(carolRec.payloads(t))
	req.Empty(aliceRec.payloads(t))

	f.send(t, alice, map[string]any{"type": "private", "to": "nobody", "message": "hello?"})
	rejections := aliceRec.ofKind(t, KindUnicorn)
	req.Len(rejections, 1)
	req.Equal("recipient not found: nobody", rejections[0].Message)

	f.send(t, alice, map[string]any{"type": "private", "to": "alice", "message": "me"})
	req.Len(aliceRec.ofKind(t, KindUnicorn), 2)
}

func TestDispatcher_Blacklist(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	alice, aliceRec := f.named(t, "alice")
	bob, bobRec := f.named(t, "bob")
	_, carolRec := f.named(t, "carol")
	resetAll(aliceRec, bobRec, carolRec)

	f.send(t, bob, map[string]any{"type": "blacklist", "blacklist": "alice"})
	notices := bobRec.ofKind(t, KindNotice)
	req.Len(notices, 1)
	req.Equal("Successfully blacklisted alice", notices[0].Message)
	bobRec.reset()

	f.send(t, alice, map[string]any{"type": "message", "message": "anyone?"})
	f.send(t, alice, map[string]any{"type": "private", "to": "bob", "message": "hey"})

	req.Empty(bobRec.payloads(t))
	req.Len(carolRec.ofKind(t, KindMessage), 1)

	f.send(t, bob, map[string]any{"type": "blacklist", "blacklist": "bob"})
	req.Len(bobRec.ofKind(t, KindUnicorn), 1)
	req.Equal([]string{"alice"}, bob.BlacklistedNicknames())
}

func TestDispatcher_RoomJoinAndLeave(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	alice, aliceRec := f.named(t, "alice")
	bob, bobRec := f.named(t, "bob")
	f.send(t, alice, map[string]any{"type": "room:join", "room": "vip"})
	resetAll(aliceRec, bobRec)

	f.send(t, bob, map[string]any{"type": "room:join", "room": "vip"})

	joins := aliceRec.ofKind(t, KindUserJoin)
	req.Len(joins, 1)
	req.Equal("bob", joins[0].Nickname)
	req.Equal("vip", joins[0].Room)
	req.NotNil(joins[0].Details)
	req.Zero(joins[0].Details.Words, "private counters never reach other sessions")
	notices := bobRec.ofKind(t, KindNotice)
	req.Len(notices, 1)
	req.Equal("Joined vip", notices[0].Message)
	req.Equal([]string{"lobby", "vip"}, f.registry.Rooms(bob.ID()))

	// Joining again is a no-op.
	resetAll(aliceRec, bobRec)
	f.send(t, bob, map[string]any{"type": "room:join", "room": "vip"})
	req.Empty(aliceRec.payloads(t))
	req.Empty(bobRec.payloads(t))

	f.send(t, bob, map[string]any{"type": "room:leave", "room": "vip"})
	departs := aliceRec.ofKind(t, KindUserDepart)
	req.Len(departs, 1)
	req.Equal("vip", departs[0].Room)
	req.Equal("Left vip", bobRec.ofKind(t, KindNotice)[0].Message)
	req.Equal([]string{"lobby"}, f.registry.Rooms(bob.ID()))

	f.send(t, alice, map[string]any{"type": "room:leave", "room": "vip"})
	req.Equal([]string{"lobby"}, f.registry.RoomNames())
	requireConsistent(t, f.registry)
}

func TestDispatcher_ValidateCheck(t *testing.T) {
	f := newFixture(t)
	f.named(t, "alice")

	tests := []struct {
		name      string
		value     string
		echoed    string
		validates bool
		message   string
	}{
		{name: "free", value: "bob", validates: true},
		{name: "taken", value: "alice", message: "This nickname is already taken"},
		{name: "taken with padding", value: " alice ", echoed: "alice", message: "This nickname is already taken"},
		{name: "free with padding", value: "bob ", echoed: "bob", validates: true},
		{name: "too short", value: "b", message: "Your nickname is too short"},
		{name: "too short once trimmed", value: "  b  ", echoed: "b", message: "Your nickname is too short"},
		{name: "too long", value: strings.Repeat("b", 30), message: "Your nickname is too long"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			s, rec := f.connect(t)
			f.send(t, s, map[string]any{"type": "validate:check", "field": "nickname", "value": tt.value})

			checks := rec.ofKind(t, KindCheckNickname)
			req.Len(checks, 1)
			req.Equal(lo.Ternary(tt.echoed == "", tt.value, tt.echoed), checks[0].Value)
			req.NotNil(checks[0].Validates)
			req.Equal(tt.validates, *checks[0].Validates)
			req.Equal(tt.message, checks[0].Message)
			req.False(s.Named(), "checking never claims")
		})
	}

	s, rec := f.connect(t)
	f.send(t, s, map[string]any{"type": "validate:check", "field": "email", "value": "x"})
	require.Empty(t, rec.payloads(t))
}

// validate:check and account:create agree on a padded nickname.
func TestDispatcher_ValidateCheckMatchesAccountCreate(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.named(t, "bob")

	s, rec := f.connect(t)
	f.send(t, s, map[string]any{"type": "validate:check", "field": "nickname", "value": "bob "})
	f.send(t, s, map[string]any{"type": "account:create", "nickname": "bob ", "avatar": ""})

	checks := rec.ofKind(t, KindCheckNickname)
	req.Len(checks, 2)
	for _, check := range checks {
		req.NotNil(check.Validates)
		req.False(*check.Validates)
		req.Equal("This nickname is already taken", check.Message)
	}
	req.False(s.Named())
}

func TestDispatcher_UsersAndResync(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	alice, aliceRec := f.named(t, "alice")
	f.named(t, "bob")
	f.send(t, alice, map[string]any{"type": "message", "message": "one two three"})
	aliceRec.reset()

	f.send(t, alice, map[string]any{"type": "users"})
	users := aliceRec.ofKind(t, KindUsers)
	req.Len(users, 1)
	req.Equal([]string{"alice", "bob"}, users[0].Users)

	f.send(t, alice, map[string]any{"type": "resync"})
	f.send(t, alice, map[string]any{"type": "resync"})
	resyncs := aliceRec.ofKind(t, KindResync)
	req.Len(resyncs, 2)
	last := resyncs[1]
	req.Equal([]string{"alice", "bob"}, last.Users)
	req.Equal([]string{"lobby"}, last.Rooms)
	req.NotNil(last.Details)
	req.Equal(2, last.Details.Resync)
	req.Equal(3, last.Details.Words)
	req.Equal(1, last.Details.Lines)
}

// The login subject is carried on the session and shows up in the logs that
// tie a connection to its nickname.
func TestDispatcher_LogsLoginSubject(t *testing.T) {
	req := require.New(t)
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	registry := NewRegistry(log)
	dispatcher := NewDispatcher(registry, NewRouter(registry, log), nil, "lobby", log)

	s := NewSession(&recorder{}, "127.0.0.1:0", "user-42")
	req.Equal("user-42", s.Subject())
	dispatcher.Connect(s)
	dispatcher.Handle(s, []byte(`{"type":"account:create","nickname":"alice","avatar":""}`))
	req.Equal("alice", s.Nickname())
	req.Equal("user-42", s.Identity().Subject)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	connected := lo.Filter(lines, func(l string, _ int) bool { return strings.Contains(l, `msg="Session connected"`) })
	created := lo.Filter(lines, func(l string, _ int) bool { return strings.Contains(l, `msg="Account created"`) })
	req.Len(connected, 1)
	req.Len(created, 1)
	req.Contains(connected[0], "subject=user-42")
	req.Contains(created[0], "subject=user-42")
}
