package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"river-backend/internal/models"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type tokenParser interface {
	ParseToken(tokenStr string) (uuid.UUID, error)
}

// client serializes writes to one connection.
type client struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *client) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Hub relays pipeline status updates from Redis to websocket clients. One
// Redis subscription is held per owner channel while at least one client is
// connected to it. Without Redis the hub is fed in-process through Publish.
type Hub struct {
	mu          sync.RWMutex
	connections map[string][]*client
	redisClient *redis.Client
	auth        tokenParser
	log         *logrus.Logger
	cancelFuncs map[string]context.CancelFunc
}

func NewHub(redisClient *redis.Client, auth tokenParser, log *logrus.Logger) *Hub {
	return &Hub{
		connections: make(map[string][]*client),
		redisClient: redisClient,
		auth:        auth,
		log:         log,
		cancelFuncs: make(map[string]context.CancelFunc),
	}
}

// callerFromQuery resolves the owner a socket listens for: a bearer token
// wins over an anonymous session id.
func (h *Hub) callerFromQuery(r *http.Request) (models.Owner, bool) {
	q := r.URL.Query()
	if tokenStr := q.Get("token"); tokenStr != "" {
		userID, err := h.auth.ParseToken(tokenStr)
		if err != nil {
			return models.Unowned(), false
		}
		return models.UserOwner(userID), true
	}
	if sid := strings.TrimSpace(q.Get("session_id")); sid != "" {
		return models.AnonymousOwner(sid), true
	}
	return models.Unowned(), false
}

func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.callerFromQuery(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	channel := models.StatusChannel(owner)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	c := &client{conn: conn}
	h.registerConnection(channel, c)

	// Keep connection alive and handle disconnect
	go func() {
		defer h.unregisterConnection(channel, c)
		for {
			_, _, err := conn.ReadMessage()
			if err != nil {
				break
			}
		}
	}()
}

func (h *Hub) registerConnection(channel string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.connections[channel] = append(h.connections[channel], c)

	// Start pub/sub subscription if this is the first connection for this owner
	if len(h.connections[channel]) == 1 && h.redisClient != nil {
		ctx, cancel := context.WithCancel(context.Background())
		h.cancelFuncs[channel] = cancel
		go h.subscribeToPubSub(ctx, channel)
	}

	h.log.WithFields(logrus.Fields{
		"channel": channel,
		"total":   len(h.connections[channel]),
	}).Debug("websocket connected")
}

func (h *Hub) unregisterConnection(channel string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c.conn.Close()

	conns := h.connections[channel]
	for i, existing := range conns {
		if existing == c {
			h.connections[channel] = append(conns[:i], conns[i+1:]...)
			break
		}
	}

	// If no more connections, cancel pub/sub
	if len(h.connections[channel]) == 0 {
		delete(h.connections, channel)
		if cancel, ok := h.cancelFuncs[channel]; ok {
			cancel()
			delete(h.cancelFuncs, channel)
		}
	}

	h.log.WithField("channel", channel).Debug("websocket disconnected")
}

func (h *Hub) subscribeToPubSub(ctx context.Context, channel string) {
	pubsub := h.redisClient.Subscribe(ctx, channel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.broadcast(channel, []byte(msg.Payload))
		}
	}
}

func (h *Hub) broadcast(channel string, data []byte) {
	h.mu.RLock()
	conns := append([]*client(nil), h.connections[channel]...)
	h.mu.RUnlock()

	for _, c := range conns {
		if err := c.write(data); err != nil {
			h.log.WithError(err).WithField("channel", channel).Debug("websocket write failed")
		}
	}
}

// SendToOwner sends a message directly to an owner's sockets, bypassing Redis.
func (h *Hub) SendToOwner(owner models.Owner, msg interface{}) {
	channel := models.StatusChannel(owner)
	if channel == "" {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	h.broadcast(channel, data)
}

// Publish delivers a status update in-process. It is used in place of the
// Redis publisher when no Redis is configured.
func (h *Hub) Publish(ctx context.Context, owner models.Owner, update models.StatusUpdate) {
	h.SendToOwner(owner, models.WSMessage{Type: "status_update", Payload: update})
}

// ConnectionCount reports the sockets open for an owner.
func (h *Hub) ConnectionCount(owner models.Owner) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections[models.StatusChannel(owner)])
}
