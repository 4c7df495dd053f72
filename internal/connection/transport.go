package connection

import (
	"context"
	"errors"
)

var (
	ErrTransportClosed = errors.New("transport closed")
	ErrSendBufferFull  = errors.New("transport send buffer full")
)

// Transport is one established bidirectional text-frame channel.
// ReadMessage is called from a single reader goroutine; WriteMessage and Close
// are called from the event loop.
type Transport interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, url string) (Transport, error)
}

type DialerFunc func(ctx context.Context, url string) (Transport, error)

func (f DialerFunc) Dial(ctx context.Context, url string) (Transport, error) {
	return f(ctx, url)
}
