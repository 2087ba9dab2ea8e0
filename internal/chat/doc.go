// Package chat implements the room manager of the relay.
//
// A Registry owns every live Session, the nickname index and room
// membership. The Dispatcher decodes inbound frames into a closed set of
// events and applies them; the Router resolves room members through the
// Registry and hands each one a payload shaped by Filter. Delivery goes
// through the Transport a session was created with and never blocks.
package chat
