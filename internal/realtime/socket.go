package realtime

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
)

// Socket is the minimal transport surface the connection manager
// needs. *websocket.Conn satisfies it; tests substitute an in-memory
// fake.
type Socket interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer opens a Socket to the given URL.
type Dialer func(ctx context.Context, url string) (Socket, error)

// GorillaDialer returns the production dialer.
func GorillaDialer(handshakeTimeout time.Duration) Dialer {
	return func(ctx context.Context, url string) (Socket, error) {
		dialer := websocket.Dialer{
			HandshakeTimeout: handshakeTimeout,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
		}

		conn, resp, err := dialer.DialContext(ctx, url, nil)
		if err != nil {
			if resp != nil {
				resp.Body.Close()
			}
			return nil, err
		}
		return conn, nil
	}
}
