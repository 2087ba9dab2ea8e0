// Package server is the connection layer of the relay.
//
// It upgrades HTTP requests to WebSocket connections, runs one read and one
// write goroutine per connection, and gives every connection a chat.Session
// whose Transport is the connection's buffered send queue. Frames read from
// a connection are handed to the chat.Dispatcher in arrival order. Several
// payloads queued for the same connection may be written as one text frame,
// separated by newlines.
package server
