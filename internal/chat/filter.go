package chat

import "slices"

const rejectionMessage = "Incorrect message format"

// Reject builds the canonical rejection payload.
func Reject(message string) Payload {
	return Payload{Type: KindUnicorn, Message: message}
}

// Filter shapes payload for delivery to recipient on behalf of actor.
//
// Announcements get the actor's nickname and avatar attached, presence
// details lose their private counters unless the recipient is the actor, and
// a payload of unknown kind collapses into a rejection. The input is never
// modified, so one payload can be filtered for every recipient of a
// broadcast.
func Filter(payload Payload, actor Identity, recipient string) Payload {
	if !payload.Type.valid() {
		return Reject(rejectionMessage)
	}

	out := payload
	out.Users = slices.Clone(payload.Users)
	out.Rooms = slices.Clone(payload.Rooms)
	if payload.Validates != nil {
		validates := *payload.Validates
		out.Validates = &validates
	}
	if payload.Details != nil {
		details := *payload.Details
		if recipient != actor.ID {
			details = details.public()
		}
		out.Details = &details
	}

	if payload.Type.announces() && actor.Nickname != "" {
		out.Nickname = actor.Nickname
		out.Avatar = actor.Avatar
	}
	return out
}
