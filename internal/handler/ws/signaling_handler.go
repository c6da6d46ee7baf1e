package ws

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"consultline/internal/devstore"
	"consultline/internal/domain"
	"consultline/internal/middleware"
	"consultline/pkg/constants"
	"consultline/pkg/jwt"
	"consultline/pkg/logger"
	"consultline/pkg/metrics"
)

// SignalingHub is the room rendezvous for media peers. It assigns each
// connection a participant uid, announces joins and leaves, and relays
// offer/answer/ICE frames between participants of the same channel.
type SignalingHub struct {
	// Participants per channel
	rooms map[string]map[uint32]*SignalingClient

	mu sync.RWMutex

	uids    devstore.UIDAllocator
	tokens  *jwt.JWTManager
	metrics *metrics.Metrics

	register   chan *SignalingClient
	unregister chan *SignalingClient
	broadcast  chan domain.SignalMessage
	done       chan struct{}

	maxConnections int
	semaphore      chan struct{}
	upgrader       websocket.Upgrader
}

// SignalingClient is one participant connection
type SignalingClient struct {
	hub     *SignalingHub
	conn    *websocket.Conn
	send    chan []byte
	uid     uint32
	userID  string
	channel string
	// left is owned by the run loop
	left bool
}

// NewSignalingHub creates a hub and starts its run loop. allowedOrigins
// lists browser origins; connections without an Origin header are accepted.
func NewSignalingHub(uids devstore.UIDAllocator, tokens *jwt.JWTManager, m *metrics.Metrics, maxConnections int, allowedOrigins []string) *SignalingHub {
	if maxConnections <= 0 {
		maxConnections = 1000
	}
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}

	hub := &SignalingHub{
		rooms:          make(map[string]map[uint32]*SignalingClient),
		uids:           uids,
		tokens:         tokens,
		metrics:        m,
		register:       make(chan *SignalingClient),
		unregister:     make(chan *SignalingClient),
		broadcast:      make(chan domain.SignalMessage, 256),
		done:           make(chan struct{}),
		maxConnections: maxConnections,
		semaphore:      make(chan struct{}, maxConnections),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed[origin]
			},
		},
	}

	go hub.run()

	return hub
}

// Close stops the run loop. Open connections are closed by their pumps.
func (h *SignalingHub) Close() {
	close(h.done)
}

// Peers returns the uids present in channel, ascending
func (h *SignalingHub) Peers(channel string) []uint32 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.peersLocked(channel, 0)
}

func (h *SignalingHub) peersLocked(channel string, except uint32) []uint32 {
	peers := make([]uint32, 0, len(h.rooms[channel]))
	for uid := range h.rooms[channel] {
		if uid != except {
			peers = append(peers, uid)
		}
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i] < peers[j] })
	return peers
}

// run handles hub operations
func (h *SignalingHub) run() {
	for {
		select {
		case <-h.done:
			return

		case client := <-h.register:
			h.mu.Lock()
			room := h.rooms[client.channel]
			if room == nil {
				room = make(map[uint32]*SignalingClient)
				h.rooms[client.channel] = room
			}
			room[client.uid] = client
			welcome := domain.SignalMessage{
				Type:      domain.SignalTypeWelcome,
				Channel:   client.channel,
				UID:       client.uid,
				Peers:     h.peersLocked(client.channel, client.uid),
				Timestamp: time.Now().UTC(),
			}
			h.deliverLocked(client, welcome)
			h.relayLocked(domain.SignalMessage{
				Type:      domain.SignalTypeJoin,
				Channel:   client.channel,
				From:      client.uid,
				Timestamp: time.Now().UTC(),
			})
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			h.dropLocked(client)
			if !client.left {
				client.left = true
				h.relayLocked(domain.SignalMessage{
					Type:      domain.SignalTypeLeave,
					Channel:   client.channel,
					From:      client.uid,
					Timestamp: time.Now().UTC(),
				})
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			h.relayLocked(message)
			h.mu.Unlock()
		}
	}
}

// relayLocked sends message to its target, or to everyone in the channel
// except the sender when To is zero
func (h *SignalingHub) relayLocked(message domain.SignalMessage) {
	room := h.rooms[message.Channel]
	if message.To != 0 {
		if client, ok := room[message.To]; ok {
			h.deliverLocked(client, message)
		}
		return
	}
	for uid, client := range room {
		if uid != message.From {
			h.deliverLocked(client, message)
		}
	}
}

// deliverLocked queues message for client, dropping clients that cannot keep up
func (h *SignalingHub) deliverLocked(client *SignalingClient, message domain.SignalMessage) {
	data, err := json.Marshal(message)
	if err != nil {
		return
	}
	select {
	case client.send <- data:
		if h.metrics != nil {
			h.metrics.RecordWebSocketMessage(message.Type)
		}
	default:
		logger.Warn("Dropping slow signaling client",
			zap.String("channel", client.channel),
			zap.Uint32("uid", client.uid))
		h.dropLocked(client)
	}
}

func (h *SignalingHub) dropLocked(client *SignalingClient) {
	room := h.rooms[client.channel]
	if room[client.uid] != client {
		return
	}
	delete(room, client.uid)
	close(client.send)
	if len(room) == 0 {
		delete(h.rooms, client.channel)
	}
}

// ServeWS upgrades a signaling request. The bearer token must be an rtc
// token issued for the requested channel.
// GET /rtc/ws?channel=<channelName>
func (h *SignalingHub) ServeWS(c *gin.Context) {
	select {
	case h.semaphore <- struct{}{}:
	default:
		logger.Warn("WebSocket connection rejected: max connections reached",
			zap.Int("max_connections", h.maxConnections))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Server at capacity, please try again later"})
		return
	}
	release := func() { <-h.semaphore }

	channel := c.Query("channel")
	if channel == "" {
		release()
		c.JSON(http.StatusBadRequest, gin.H{"error": "channel required"})
		return
	}

	token, ok := middleware.BearerToken(c.GetHeader("Authorization"))
	if !ok {
		release()
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	claims, err := h.tokens.ValidateRTCToken(token, channel)
	if err != nil {
		release()
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid rtc token"})
		return
	}

	uid, err := h.uids.Next(c.Request.Context())
	if err != nil {
		release()
		logger.Error("Failed to allocate participant uid", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "uid allocation failed"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		release()
		logger.Warn("WebSocket upgrade failed",
			zap.String("channel", channel),
			zap.String("user_id", claims.UserID),
			zap.Error(err))
		return
	}

	client := &SignalingClient{
		hub:     h,
		conn:    conn,
		send:    make(chan []byte, 256),
		uid:     uid,
		userID:  claims.UserID,
		channel: channel,
	}
	select {
	case h.register <- client:
	case <-h.done:
		release()
		conn.Close()
		return
	}
	if h.metrics != nil {
		h.metrics.IncWebSocketConnections()
	}
	logger.Info("Signaling participant joined",
		zap.String("channel", channel),
		zap.String("user_id", claims.UserID),
		zap.Uint32("uid", uid))

	go client.writePump()
	go func() {
		defer release()
		client.readPump()
	}()
}

// readPump reads messages from WebSocket
func (c *SignalingClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
		if c.hub.metrics != nil {
			c.hub.metrics.DecWebSocketConnections()
		}
		logger.Info("Signaling participant left",
			zap.String("channel", c.channel),
			zap.Uint32("uid", c.uid))
	}()

	c.conn.SetReadDeadline(time.Now().Add(constants.WebSocketPingInterval * 2))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(constants.WebSocketPingInterval * 2))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("WebSocket connection closed",
					zap.String("channel", c.channel),
					zap.Uint32("uid", c.uid),
					zap.Error(err))
			}
			return
		}

		var msg domain.SignalMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			logger.Warn("Invalid message format from WebSocket",
				zap.String("channel", c.channel),
				zap.Uint32("uid", c.uid),
				zap.Error(err))
			continue
		}

		switch msg.Type {
		case domain.SignalTypeLeave:
			return
		case domain.SignalTypeOffer, domain.SignalTypeAnswer, domain.SignalTypeICE:
		default:
			continue
		}

		msg.From = c.uid
		msg.Channel = c.channel
		msg.Timestamp = time.Now().UTC()

		select {
		case c.hub.broadcast <- msg:
		case <-c.hub.done:
			return
		}
	}
}

// writePump writes messages to WebSocket
func (c *SignalingClient) writePump() {
	ticker := time.NewTicker(constants.WebSocketPingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
