package events

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Stream serves committed events to websocket clients, one JSON envelope per
// text frame. Clients may filter with ?event=Name (repeatable).
type Stream struct {
	hub *Hub
	log zerolog.Logger
}

// NewStream exposes hub over websockets.
func NewStream(hub *Hub, log zerolog.Logger) *Stream {
	return &Stream{hub: hub, log: log.With().Str("component", "events-ws").Logger()}
}

func (s *Stream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("upgrade failed")
		return
	}
	sub := s.hub.Subscribe(r.URL.Query()["event"]...)
	s.log.Info().Int("subscribers", s.hub.Subscribers()).Msg("client connected")

	done := make(chan struct{})
	go s.readPump(conn, done)
	s.writePump(conn, sub, done)
	s.log.Info().Int("subscribers", s.hub.Subscribers()).Msg("client disconnected")
}

// readPump discards client frames and signals done when the client goes away.
func (s *Stream) readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn().Err(err).Msg("unexpected close")
			}
			return
		}
	}
}

func (s *Stream) writePump(conn *websocket.Conn, sub *Subscription, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		sub.Close()
		conn.Close()
	}()
	for {
		select {
		case <-done:
			return
		case rec, ok := <-sub.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			data, err := Encode(rec)
			if err != nil {
				s.log.Warn().Err(err).Str("event", rec.Name).Msg("encode event")
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
