package chat

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// EventType discriminates client-to-server events.
type EventType string

const (
	TypeValidateCheck EventType = "validate:check"
	TypeAccountCreate EventType = "account:create"
	TypeMessage       EventType = "message"
	TypePrivate       EventType = "private"
	TypeBlacklist     EventType = "blacklist"
	TypeRoomJoin      EventType = "room:join"
	TypeRoomLeave     EventType = "room:leave"
	TypeUsers         EventType = "users"
	TypeResync        EventType = "resync"
)

// Lifecycle names owned by the transport. A client may not send them.
var reservedTypes = map[string]struct{}{
	"connect":    {},
	"disconnect": {},
}

var validate = validator.New()

// Event is the closed set of inbound events. Only types in this package
// implement it.
type Event interface {
	EventType() EventType
}

type ValidateCheck struct {
	Field string `json:"field" validate:"required"`
	Value string `json:"value"`
}

type AccountCreate struct {
	Nickname string `json:"nickname" validate:"required"`
	Avatar   string `json:"avatar" validate:"omitempty,max=512"`
}

type ChatMessage struct {
	Message string   `json:"message" validate:"required,max=1024"`
	Rooms   []string `json:"rooms" validate:"omitempty,max=16,dive,required"`
}

type PrivateMessage struct {
	To      string `json:"to" validate:"required"`
	Message string `json:"message" validate:"required,max=1024"`
}

type BlacklistRequest struct {
	Blacklist string `json:"blacklist" validate:"required"`
}

type RoomJoin struct {
	Room string `json:"room" validate:"required,max=64"`
}

type RoomLeave struct {
	Room string `json:"room" validate:"required,max=64"`
}

type UsersRequest struct{}

type ResyncRequest struct{}

func (ValidateCheck) EventType() EventType    { return TypeValidateCheck }
func (AccountCreate) EventType() EventType    { return TypeAccountCreate }
func (ChatMessage) EventType() EventType      { return TypeMessage }
func (PrivateMessage) EventType() EventType   { return TypePrivate }
func (BlacklistRequest) EventType() EventType { return TypeBlacklist }
func (RoomJoin) EventType() EventType         { return TypeRoomJoin }
func (RoomLeave) EventType() EventType        { return TypeRoomLeave }
func (UsersRequest) EventType() EventType     { return TypeUsers }
func (ResyncRequest) EventType() EventType    { return TypeResync }

type envelope struct {
	Type json.RawMessage `json:"type"`
}

// Decode parses one inbound frame into its event variant. Errors wrap
// ErrMalformed, ErrReservedEvent or ErrUnknownEvent.
func Decode(raw []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(env.Type) == 0 {
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	}

	var name string
	if err := json.Unmarshal(env.Type, &name); err != nil || name == "" {
		return nil, fmt.Errorf("%w: type must be a non-empty string", ErrMalformed)
	}
	if _, reserved := reservedTypes[name]; reserved {
		return nil, fmt.Errorf("%w: %q", ErrReservedEvent, name)
	}

	switch EventType(name) {
	case TypeValidateCheck:
		return decodeAs[ValidateCheck](raw)
	case TypeAccountCreate:
		return decodeAs[AccountCreate](raw)
	case TypeMessage:
		return decodeAs[ChatMessage](raw)
	case TypePrivate:
		return decodeAs[PrivateMessage](raw)
	case TypeBlacklist:
		return decodeAs[BlacklistRequest](raw)
	case TypeRoomJoin:
		return decodeAs[RoomJoin](raw)
	case TypeRoomLeave:
		return decodeAs[RoomLeave](raw)
	case TypeUsers:
		return decodeAs[UsersRequest](raw)
	case TypeResync:
		return decodeAs[ResyncRequest](raw)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, name)
	}
}

func decodeAs[T Event](raw []byte) (Event, error) {
	var ev T
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := validate.Struct(ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return ev, nil
}
