package chat

import "errors"

var (
	ErrTooShort          = errors.New("nickname too short")
	ErrTooLong           = errors.New("nickname too long")
	ErrAlreadyTaken      = errors.New("nickname already taken")
	ErrNotNamed          = errors.New("session has no nickname")
	ErrInvalidRoom       = errors.New("invalid room")
	ErrUnknownSession    = errors.New("unknown session")
	ErrMalformed         = errors.New("incorrect message format")
	ErrUnknownEvent      = errors.New("unknown event type")
	ErrReservedEvent     = errors.New("reserved event type")
	ErrRecipientNotFound = errors.New("recipient not found")
	ErrSendBufferFull    = errors.New("send buffer full")
	ErrTransportClosed   = errors.New("transport closed")
)
