package chat

import "time"

// Kind discriminates server-to-client payloads.
type Kind string

const (
	KindCheckNickname Kind = "check:nickname"
	KindUserJoin      Kind = "user:join"
	KindUserDepart    Kind = "user:depart"
	KindMessage       Kind = "message"
	KindPrivate       Kind = "private"
	KindNotice        Kind = "notice"
	KindUsers         Kind = "users"
	KindResync        Kind = "resync"
	KindUnicorn       Kind = "unicorn"
)

func (k Kind) valid() bool {
	switch k {
	case KindCheckNickname, KindUserJoin, KindUserDepart, KindMessage,
		KindPrivate, KindNotice, KindUsers, KindResync, KindUnicorn:
		return true
	}
	return false
}

// announces reports whether payloads of this kind speak for an acting
// session and therefore carry its nickname and avatar.
func (k Kind) announces() bool {
	switch k {
	case KindUserJoin, KindUserDepart, KindMessage, KindPrivate:
		return true
	}
	return false
}

// Details is the presence metadata of a session. The counters are private to
// the owning session and are stripped by Filter for everyone else.
type Details struct {
	Words     int       `json:"words,omitempty"`
	Lines     int       `json:"lines,omitempty"`
	Resync    int       `json:"resync,omitempty"`
	Session   time.Time `json:"session,omitzero"`
	Connected time.Time `json:"connected,omitzero"`
}

func (d Details) public() Details {
	return Details{Session: d.Session, Connected: d.Connected}
}

// Payload is the wire shape of every server-to-client event. Fields that do
// not apply to a kind are left zero and omitted.
type Payload struct {
	Type      Kind     `json:"type"`
	Nickname  string   `json:"nickname,omitempty"`
	Avatar    string   `json:"avatar,omitempty"`
	Message   string   `json:"message,omitempty"`
	Validates *bool    `json:"validates,omitempty"`
	Field     string   `json:"field,omitempty"`
	Value     string   `json:"value,omitempty"`
	Users     []string `json:"users,omitempty"`
	To        string   `json:"to,omitempty"`
	Room      string   `json:"room,omitempty"`
	Rooms     []string `json:"rooms,omitempty"`
	Words     int      `json:"words,omitempty"`
	Lang      string   `json:"lang,omitempty"`
	Details   *Details `json:"details,omitempty"`
}
