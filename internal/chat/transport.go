//go:generate go run go.uber.org/mock/mockgen -source=transport.go -destination=mocks/mock_transport.go -package=mocks
package chat

// Transport is the per-connection delivery primitive supplied by the
// connection layer. Send must not block: implementations enqueue the frame
// and report a full or closed queue as an error.
type Transport interface {
	Send(payload []byte) error
}
