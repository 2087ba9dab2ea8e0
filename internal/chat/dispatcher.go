package chat

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"
)

// Moderator rewrites user text before it is fanned out.
type Moderator interface {
	// Censor returns text with forbidden words masked and the words found.
	Censor(text string) (string, []string)
	// Language returns the ISO 639-1 code of text, or "" when unsure.
	Language(text string) string
}

type passthrough struct{}

func (passthrough) Censor(text string) (string, []string) { return text, nil }
func (passthrough) Language(string) string                { return "" }

// Dispatcher turns inbound frames into registry and router operations.
// Frames of one session are handled in order by that session's reader;
// different sessions run concurrently.
type Dispatcher struct {
	registry    *Registry
	router      *Router
	moderator   Moderator
	defaultRoom string
	log         *slog.Logger
}

// NewDispatcher wires the dispatcher. A nil moderator leaves text untouched;
// defaultRoom is the room joined on account creation.
func NewDispatcher(registry *Registry, router *Router, moderator Moderator, defaultRoom string, log *slog.Logger) *Dispatcher {
	if moderator == nil {
		moderator = passthrough{}
	}
	return &Dispatcher{
		registry:    registry,
		router:      router,
		moderator:   moderator,
		defaultRoom: defaultRoom,
		log:         log,
	}
}

// Connect registers a new connection's session.
func (d *Dispatcher) Connect(s *Session) {
	d.registry.Add(s)
	d.log.Debug("Session connected", "session", s.ID(), "addr", s.Addr(), "subject", s.Subject())
}

// Disconnect drops the session and announces its departure to the rooms it
// held.
func (d *Dispatcher) Disconnect(s *Session) {
	actor := s.Identity()
	rooms := d.registry.Drop(s.ID())
	d.log.Debug("Session disconnected", "session", actor.ID, "nickname", actor.Nickname, "rooms", rooms)
	if actor.Nickname == "" || len(rooms) == 0 {
		return
	}
	d.router.Publish(actor, rooms, Payload{Type: KindUserDepart})
}

// Handle processes a single frame from s. Invalid input is answered with a
// rejection to s alone; nothing here closes the connection.
func (d *Dispatcher) Handle(s *Session, raw []byte) {
	ev, err := Decode(raw)
	if err != nil {
		d.log.Debug("Rejected frame", "session", s.ID(), "error", err)
		d.reply(s, Reject(rejectionMessage))
		return
	}

	switch ev := ev.(type) {
	case ValidateCheck:
		d.validateCheck(s, ev)
	case AccountCreate:
		d.accountCreate(s, ev)
	case ChatMessage:
		d.chatMessage(s, ev)
	case PrivateMessage:
		d.privateMessage(s, ev)
	case BlacklistRequest:
		d.blacklist(s, ev)
	case RoomJoin:
		d.roomJoin(s, ev)
	case RoomLeave:
		d.roomLeave(s, ev)
	case UsersRequest:
		d.reply(s, Payload{Type: KindUsers, Users: d.registry.ListNicknames()})
	case ResyncRequest:
		d.resync(s)
	default:
		d.reply(s, Reject(rejectionMessage))
	}
}

func (d *Dispatcher) reply(s *Session, payload Payload) {
	if err := s.Send(Filter(payload, s.Identity(), s.ID())); err != nil {
		d.log.Debug("Reply dropped", "type", payload.Type, "session", s.ID(), "error", err)
	}
}

func nicknameReason(err error) string {
	switch {
	case errors.Is(err, ErrTooShort):
		return "Your nickname is too short"
	case errors.Is(err, ErrTooLong):
		return "Your nickname is too long"
	case errors.Is(err, ErrAlreadyTaken):
		return "This nickname is already taken"
	}
	return "This nickname cannot be used"
}

func (d *Dispatcher) validateCheck(s *Session, ev ValidateCheck) {
	if ev.Field != "nickname" {
		d.log.Debug("Ignored validation of unknown field", "session", s.ID(), "field", ev.Field)
		return
	}

	// Same normalisation as account:create so both agree on availability.
	value := strings.TrimSpace(ev.Value)
	check := Payload{Type: KindCheckNickname, Field: ev.Field, Value: value}
	if err := CheckNickname(value); err != nil {
		check.Validates = lo.ToPtr(false)
		check.Message = nicknameReason(err)
		d.reply(s, check)
		return
	}

	users := d.registry.ListNicknames()
	validates := !slices.Contains(users, value)
	check.Validates = lo.ToPtr(validates)
	check.Users = users
	if !validates {
		check.Message = nicknameReason(ErrAlreadyTaken)
	}
	d.reply(s, check)
}

func (d *Dispatcher) accountCreate(s *Session, ev AccountCreate) {
	if s.Named() {
		d.log.Debug("Refused account:create on named session", "session", s.ID())
		return
	}

	nickname := strings.TrimSpace(ev.Nickname)
	claimed, err := d.registry.ClaimNickname(s.ID(), nickname)
	if err != nil {
		check := Payload{
			Type:      KindCheckNickname,
			Validates: lo.ToPtr(false),
			Message:   nicknameReason(err),
			Field:     "nickname",
			Value:     nickname,
		}
		if errors.Is(err, ErrAlreadyTaken) {
			check.Users = d.registry.ListNicknames()
		}
		d.reply(s, check)
		return
	}
	if !claimed {
		return
	}

	s.setAvatarSource(ev.Avatar)
	s.markConnected(time.Now().UTC())
	if _, err := d.registry.Subscribe(s.ID(), d.defaultRoom); err != nil {
		d.log.Warn("Could not join default room", "session", s.ID(), "room", d.defaultRoom, "error", err)
	}
	if err := d.registry.Update(s.ID()); err != nil {
		d.log.Warn("Could not refresh session", "session", s.ID(), "error", err)
	}

	actor := s.Identity()
	join := Payload{Type: KindUserJoin, Details: &actor.Details}
	d.reply(s, join)
	d.router.Publish(actor, d.registry.Rooms(s.ID()), join)
	d.log.Info("Account created", "session", s.ID(), "nickname", actor.Nickname, "subject", actor.Subject)
}

func (d *Dispatcher) chatMessage(s *Session, ev ChatMessage) {
	if !s.Named() {
		d.reply(s, Reject("Choose a nickname before chatting"))
		return
	}
	if strings.TrimSpace(ev.Message) == "" {
		d.reply(s, Reject(rejectionMessage))
		return
	}

	rooms := d.targetRooms(s, ev.Rooms)
	if len(rooms) == 0 {
		d.reply(s, Reject("Join a room before chatting"))
		return
	}

	words := len(strings.Fields(ev.Message))
	s.recordMessage(words)

	d.router.Publish(s.Identity(), rooms, Payload{
		Type:    KindMessage,
		Message: d.censor(s, ev.Message),
		Words:   words,
		Lang:    d.moderator.Language(ev.Message),
		Rooms:   rooms,
	})
}

// targetRooms narrows the requested rooms to those the session is in. No
// request means all of them.
func (d *Dispatcher) targetRooms(s *Session, requested []string) []string {
	joined := d.registry.Rooms(s.ID())
	if len(requested) == 0 {
		return joined
	}
	return lo.Uniq(lo.Filter(requested, func(room string, _ int) bool {
		return slices.Contains(joined, room)
	}))
}

func (d *Dispatcher) privateMessage(s *Session, ev PrivateMessage) {
	if !s.Named() {
		d.reply(s, Reject("Choose a nickname before chatting"))
		return
	}

	target, ok := d.registry.Lookup(ev.To)
	if !ok || target.ID() == s.ID() {
		d.reply(s, Reject(fmt.Sprintf("%s: %s", ErrRecipientNotFound, ev.To)))
		return
	}

	payload := Payload{Type: KindPrivate, To: ev.To, Message: d.censor(s, ev.Message)}
	if err := d.router.Direct(s.Identity(), target, payload); err != nil {
		d.log.Debug("Private message dropped", "session", s.ID(), "to", ev.To, "error", err)
	}
}

func (d *Dispatcher) censor(s *Session, text string) string {
	censored, found := d.moderator.Censor(text)
	if len(found) > 0 {
		d.log.Info("Censored message", "session", s.ID(), "words", found)
	}
	return censored
}

func (d *Dispatcher) blacklist(s *Session, ev BlacklistRequest) {
	nickname := strings.TrimSpace(ev.Blacklist)
	if nickname == "" || nickname == s.Nickname() {
		d.reply(s, Reject("You cannot blacklist that nickname"))
		return
	}
	s.Blacklist(nickname)
	d.reply(s, Payload{Type: KindNotice, Message: "Successfully blacklisted " + nickname})
}

func (d *Dispatcher) roomJoin(s *Session, ev RoomJoin) {
	added, err := d.registry.Subscribe(s.ID(), ev.Room)
	switch {
	case errors.Is(err, ErrNotNamed):
		d.reply(s, Reject("Choose a nickname before joining a room"))
		return
	case err != nil:
		d.reply(s, Reject(rejectionMessage))
		return
	case !added:
		return
	}

	actor := s.Identity()
	d.router.Publish(actor, []string{ev.Room}, Payload{Type: KindUserJoin, Room: ev.Room, Details: &actor.Details})
	d.reply(s, Payload{Type: KindNotice, Message: "Joined " + ev.Room, Room: ev.Room})
}

func (d *Dispatcher) roomLeave(s *Session, ev RoomLeave) {
	if !d.registry.Unsubscribe(s.ID(), ev.Room) {
		return
	}
	d.router.Publish(s.Identity(), []string{ev.Room}, Payload{Type: KindUserDepart, Room: ev.Room})
	d.reply(s, Payload{Type: KindNotice, Message: "Left " + ev.Room, Room: ev.Room})
}

func (d *Dispatcher) resync(s *Session) {
	details := s.recordResync()
	d.reply(s, Payload{
		Type:    KindResync,
		Users:   d.registry.ListNicknames(),
		Rooms:   d.registry.Rooms(s.ID()),
		Details: &details,
	})
}
