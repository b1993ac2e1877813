package transport

import (
	"context"
	"encoding/json"
	"net"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// Handler processes one inbound Message and returns the reply to send
// back on the same connection.
type Handler func(Message) Message

// Listener accepts peer connections and dispatches every message received
// on each to handler, replying on the same connection — mirroring the
// persistent, single-in-flight channel the client side of Channel expects.
type Listener struct {
	ln      net.Listener
	handler Handler
	logger  log.Logger
}

// Listen binds addr and returns a Listener ready to Serve.
func Listen(addr string, handler Handler, logger log.Logger) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Listener{ln: ln, handler: handler, logger: logger}, nil
}

// Addr returns the bound address, useful when addr was ":0".
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Serve accepts connections until ctx is canceled or Close is called.
func (l *Listener) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		l.ln.Close()
	}()

	for {
		conn, err := l.ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				level.Warn(l.logger).Log("msg", "accept failed", "err", err)
				return err
			}
		}
		go l.serveConn(conn)
	}
}

// Close stops accepting new connections.
func (l *Listener) Close() error {
	return l.ln.Close()
}

func (l *Listener) serveConn(conn net.Conn) {
	defer conn.Close()

	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)

	for {
		var msg Message
		if err := dec.Decode(&msg); err != nil {
			return // EOF or peer closed/reset — nothing left to serve on this connection
		}

		reply := l.handler(msg)
		if err := enc.Encode(reply); err != nil {
			level.Warn(l.logger).Log("msg", "write reply failed", "err", err)
			return
		}
	}
}
