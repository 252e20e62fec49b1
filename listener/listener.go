package listener

import "context"

// Listener is a network frontend serving the gate's API.
type Listener interface {
	Addr() string
	Start(ctx context.Context) error
	Stop() error
	Type() string
}
