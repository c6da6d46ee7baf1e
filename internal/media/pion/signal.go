package pion

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"consultline/internal/domain"
	"consultline/pkg/constants"
	"consultline/pkg/logger"
)

// signalConn is a client connection to the room rendezvous hub
type signalConn struct {
	conn *websocket.Conn
	send chan []byte
	in   chan domain.SignalMessage
	done chan struct{}

	closeOnce sync.Once
	wg        sync.WaitGroup
}

// dialSignal connects to the hub for channel and waits for the welcome frame
// carrying the assigned uid and the participants already present.
func dialSignal(ctx context.Context, signalURL, channel, token, appID string) (*signalConn, domain.SignalMessage, error) {
	u, err := url.Parse(signalURL)
	if err != nil {
		return nil, domain.SignalMessage{}, fmt.Errorf("invalid signal url: %w", err)
	}
	q := u.Query()
	q.Set("channel", channel)
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	if appID != "" {
		header.Set("X-App-ID", appID)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, domain.SignalMessage{}, fmt.Errorf("signaling handshake failed with status %d: %w", resp.StatusCode, err)
		}
		return nil, domain.SignalMessage{}, fmt.Errorf("failed to dial signaling: %w", err)
	}

	deadline := time.Now().Add(constants.WebSocketWriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetReadDeadline(deadline)

	var welcome domain.SignalMessage
	if err := conn.ReadJSON(&welcome); err != nil {
		conn.Close()
		return nil, domain.SignalMessage{}, fmt.Errorf("failed to read welcome: %w", err)
	}
	if welcome.Type != domain.SignalTypeWelcome || welcome.UID == 0 {
		conn.Close()
		return nil, domain.SignalMessage{}, fmt.Errorf("unexpected first frame %q", welcome.Type)
	}

	s := &signalConn{
		conn: conn,
		send: make(chan []byte, 64),
		in:   make(chan domain.SignalMessage, 64),
		done: make(chan struct{}),
	}
	s.wg.Add(2)
	go s.readPump()
	go s.writePump()

	return s, welcome, nil
}

// Messages is closed when the connection drops or Close is called
func (s *signalConn) Messages() <-chan domain.SignalMessage {
	return s.in
}

// Send queues msg for delivery
func (s *signalConn) Send(msg domain.SignalMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal signal: %w", err)
	}
	select {
	case <-s.done:
		return fmt.Errorf("signaling connection closed")
	default:
	}
	select {
	case s.send <- data:
		return nil
	case <-s.done:
		return fmt.Errorf("signaling connection closed")
	}
}

// Close shuts the connection down and waits for the pumps to exit
func (s *signalConn) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
	})
	s.wg.Wait()
	return nil
}

func (s *signalConn) readPump() {
	defer func() {
		close(s.in)
		s.wg.Done()
	}()

	_ = s.conn.SetReadDeadline(time.Now().Add(2 * constants.WebSocketPingInterval))
	s.conn.SetPingHandler(func(data string) error {
		_ = s.conn.SetReadDeadline(time.Now().Add(2 * constants.WebSocketPingInterval))
		return s.conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(constants.WebSocketWriteTimeout))
	})

	for {
		var msg domain.SignalMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("Signaling connection closed", zap.Error(err))
			}
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(2 * constants.WebSocketPingInterval))

		select {
		case s.in <- msg:
		case <-s.done:
			return
		}
	}
}

func (s *signalConn) writePump() {
	defer func() {
		s.conn.Close()
		s.wg.Done()
	}()

	for {
		select {
		case data := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.Debug("Signaling write failed", zap.Error(err))
				s.closeOnce.Do(func() { close(s.done) })
				return
			}

		case <-s.done:
			s.drain()
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(constants.WebSocketWriteTimeout))
			return
		}
	}
}

// drain flushes queued frames, typically the leave notice, before closing
func (s *signalConn) drain() {
	for {
		select {
		case data := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		default:
			return
		}
	}
}
