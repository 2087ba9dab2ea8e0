package chat

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/Tyrowin/roomchat/internal/chat/mocks"
)

// member adds a named session on transport and subscribes it to rooms.
func member(t *testing.T, r *Registry, transport Transport, nickname string, rooms ...string) *Session {
	t.Helper()
	s := NewSession(transport, "127.0.0.1:0", "")
	r.Add(s)
	_, err := r.ClaimNickname(s.ID(), nickname)
	require.NoError(t, err)
	for _, room := range rooms {
		_, err := r.Subscribe(s.ID(), room)
		require.NoError(t, err)
	}
	return s
}

func TestRouter_Publish_OncePerRecipient(t *testing.T) {
	req := require.New(t)
	r := newRegistry()
	router := NewRouter(r, r.log)

	aliceRec, bobRec, carolRec := &recorder{}, &recorder{}, &recorder{}
	alice := member(t, r, aliceRec, "alice", "lobby", "vip")
	member(t, r, bobRec, "bob", "lobby", "vip")
	member(t, r, carolRec, "carol", "lobby", "vip")

	delivered := router.Publish(alice.Identity(), []string{"lobby", "vip"}, Payload{Type: KindMessage, Message: "hi"})
	req.Equal(2, delivered)

	for _, rec := range []*recorder{bobRec, carolRec} {
		messages := rec.ofKind(t, KindMessage)
		req.Len(messages, 1)
		req.Equal("hi", messages[0].Message)
		req.Equal("alice", messages[0].Nickname)
	}
	req.Empty(aliceRec.payloads(t), "the sender never hears its own broadcast")
}

func TestRouter_Publish_NoRooms(t *testing.T) {
	r := newRegistry()
	router := NewRouter(r, r.log)
	rec := &recorder{}
	member(t, r, rec, "bob", "lobby")

	require.Zero(t, router.Publish(Identity{ID: "ghost", Nickname: "ghost"}, nil, Payload{Type: KindMessage}))
	require.Empty(t, rec.payloads(t))
}

func TestRouter_Publish_FailingRecipientDoesNotStopOthers(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)

	r := newRegistry()
	router := NewRouter(r, r.log)

	failing := mocks.NewMockTransport(ctrl)
	healthy := mocks.NewMockTransport(ctrl)
	failing.EXPECT().Send(gomock.Any()).Return(ErrSendBufferFull).Times(1)
	healthy.EXPECT().Send(gomock.Any()).DoAndReturn(func(payload []byte) error {
		var p Payload
		req.NoError(json.Unmarshal(payload, &p))
		req.Equal(KindMessage, p.Type)
		req.Equal("sent anyway", p.Message)
		return nil
	}).Times(1)

	sender := member(t, r, &recorder{}, "alice", "lobby")
	member(t, r, failing, "bob", "lobby")
	member(t, r, healthy, "carol", "lobby")

	req.Equal(1, router.Publish(sender.Identity(), []string{"lobby"}, Payload{Type: KindMessage, Message: "sent anyway"}))
}

func TestRouter_Publish_HonoursBlacklist(t *testing.T) {
	req := require.New(t)
	r := newRegistry()
	router := NewRouter(r, r.log)

	bobRec, carolRec := &recorder{}, &recorder{}
	alice := member(t, r, &recorder{}, "alice", "lobby")
	bob := member(t, r, bobRec, "bob", "lobby")
	member(t, r, carolRec, "carol", "lobby")
	bob.Blacklist("alice")

	req.Equal(1, router.Publish(alice.Identity(), []string{"lobby"}, Payload{Type: KindMessage, Message: "hello"}))
	req.Empty(bobRec.payloads(t))
	req.Len(carolRec.ofKind(t, KindMessage), 1)

	// Presence still reaches a session that blacklisted the actor.
	req.Equal(2, router.Publish(alice.Identity(), []string{"lobby"}, Payload{Type: KindUserDepart}))
	req.Len(bobRec.ofKind(t, KindUserDepart), 1)
}

func TestRouter_Direct(t *testing.T) {
	req := require.New(t)
	r := newRegistry()
	router := NewRouter(r, r.log)

	bobRec := &recorder{}
	alice := member(t, r, &recorder{}, "alice")
	bob := member(t, r, bobRec, "bob")

	req.NoError(router.Direct(alice.Identity(), bob, Payload{Type: KindPrivate, To: "bob", Message: "psst"}))
	private := bobRec.ofKind(t, KindPrivate)
	req.Len(private, 1)
	req.Equal("alice", private[0].Nickname)
	req.Equal("psst", private[0].Message)

	bob.Blacklist("alice")
	req.NoError(router.Direct(alice.Identity(), bob, Payload{Type: KindPrivate, To: "bob", Message: "again"}))
	req.Len(bobRec.ofKind(t, KindPrivate), 1)

	bobRec.err = ErrTransportClosed
	carol := member(t, r, &recorder{}, "carol")
	req.ErrorIs(router.Direct(carol.Identity(), bob, Payload{Type: KindPrivate, To: "bob", Message: "hi"}), ErrTransportClosed)
}
