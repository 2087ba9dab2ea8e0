package chat

import "log/slog"

// Router fans payloads out to room members.
type Router struct {
	registry *Registry
	log      *slog.Logger
}

func NewRouter(registry *Registry, log *slog.Logger) *Router {
	return &Router{registry: registry, log: log}
}

// Publish delivers payload to every member of rooms except the sender, once
// per session even when it shares several of the rooms with the sender.
// Delivery is best effort: a failing recipient is logged and skipped. It
// returns the number of sessions the payload was handed to.
func (r *Router) Publish(sender Identity, rooms []string, payload Payload) int {
	if len(rooms) == 0 {
		return 0
	}

	recipients := r.registry.Members(rooms, sender.ID)
	delivered := 0
	for _, recipient := range recipients {
		if r.suppressed(sender, recipient, payload) {
			continue
		}
		if err := recipient.Send(Filter(payload, sender, recipient.ID())); err != nil {
			r.log.Debug("Dropped delivery", "type", payload.Type, "session", recipient.ID(), "error", err)
			continue
		}
		delivered++
	}

	r.log.Debug("Published", "type", payload.Type, "rooms", rooms, "recipients", len(recipients), "delivered", delivered)
	return delivered
}

// Direct delivers payload to a single recipient. A recipient that
// blacklisted the sender silently receives nothing.
func (r *Router) Direct(sender Identity, recipient *Session, payload Payload) error {
	if r.suppressed(sender, recipient, payload) {
		return nil
	}
	return recipient.Send(Filter(payload, sender, recipient.ID()))
}

func (r *Router) suppressed(sender Identity, recipient *Session, payload Payload) bool {
	if payload.Type != KindMessage && payload.Type != KindPrivate {
		return false
	}
	return sender.Nickname != "" && recipient.Blacklisted(sender.Nickname)
}
