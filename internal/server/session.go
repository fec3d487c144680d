package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ironsheep/image-filter-server/internal/protocol"
)

// errTransport marks failures of the socket itself. Nothing more can be
// sent to the client after one.
var errTransport = errors.New("transport")

// closeGrace bounds the write of a close frame.
const closeGrace = time.Second

// session is one upgraded connection.
type session struct {
	id     string
	route  string
	remote string
	conn   *websocket.Conn
	log    zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	readTimeout  time.Duration
	writeTimeout time.Duration
}

// read waits for the next data message, text or binary.
func (s *session) read() ([]byte, error) {
	if err := s.conn.SetReadDeadline(time.Now().Add(s.readTimeout)); err != nil {
		return nil, fmt.Errorf("%w: %w", errTransport, err)
	}
	_, data, err := s.conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("%w: read: %w", errTransport, err)
	}
	return data, nil
}

func (s *session) write(messageType int, data []byte) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
		return fmt.Errorf("%w: %w", errTransport, err)
	}
	if err := s.conn.WriteMessage(messageType, data); err != nil {
		return fmt.Errorf("%w: write: %w", errTransport, err)
	}
	return nil
}

// writeJSON sends v as a text message.
func (s *session) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	return s.write(websocket.TextMessage, data)
}

func (s *session) writeStatus(m protocol.Message) error {
	return s.writeJSON(m)
}

func (s *session) writeBinary(data []byte) error {
	return s.write(websocket.BinaryMessage, data)
}

// watchClose cancels the session context once the peer goes away. It must
// only run after the exchange has stopped reading.
func (s *session) watchClose() {
	_ = s.conn.SetReadDeadline(time.Time{})
	go func() {
		for {
			if _, _, err := s.conn.NextReader(); err != nil {
				s.cancel()
				return
			}
		}
	}()
}

// close sends a close frame and releases the connection. It is safe to call
// from any goroutine.
func (s *session) close(code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace))
	s.cancel()
	_ = s.conn.Close()
}
