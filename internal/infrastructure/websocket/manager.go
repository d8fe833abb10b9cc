package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"tradetalk/internal/usecase"
	"tradetalk/pkg/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Client is one authenticated WebSocket connection. A user may hold several
// connections at once; each gets its own feeds.
type Client struct {
	UserID string
	Conn   *websocket.Conn
	Send   chan []byte

	mu    sync.Mutex
	feeds map[string]*usecase.Feed
}

// Manager tracks active WebSocket connections and routes their traffic through
// the discussion use case.
type Manager struct {
	discussionUC *usecase.DiscussionUseCase
	sendBuffer   int

	clients    map[*Client]struct{}
	Register   chan *Client
	Unregister chan *Client
	mutex      sync.RWMutex
}

func NewManager(discussionUC *usecase.DiscussionUseCase, sendBuffer int) *Manager {
	if sendBuffer <= 0 {
		sendBuffer = 64
	}
	return &Manager{
		discussionUC: discussionUC,
		sendBuffer:   sendBuffer,
		clients:      make(map[*Client]struct{}),
		Register:     make(chan *Client),
		Unregister:   make(chan *Client),
	}
}

// NewClient builds a client with the manager's configured send buffer.
func (m *Manager) NewClient(userID string, conn *websocket.Conn) *Client {
	return &Client{
		UserID: userID,
		Conn:   conn,
		Send:   make(chan []byte, m.sendBuffer),
		feeds:  make(map[string]*usecase.Feed),
	}
}

// Start runs the manager's main loop until ctx is cancelled.
func (m *Manager) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case client := <-m.Register:
				m.mutex.Lock()
				m.clients[client] = struct{}{}
				m.mutex.Unlock()
				logger.Info("WebSocket: client connected: %s", client.UserID)

			case client := <-m.Unregister:
				m.mutex.Lock()
				if _, ok := m.clients[client]; ok {
					delete(m.clients, client)
					close(client.Send)
				}
				m.mutex.Unlock()
				client.closeFeeds()
				logger.Info("WebSocket: client disconnected: %s", client.UserID)

			case <-ctx.Done():
				m.mutex.Lock()
				for client := range m.clients {
					delete(m.clients, client)
					close(client.Send)
					client.closeFeeds()
				}
				m.mutex.Unlock()
				return
			}
		}
	}()
}

// ClientCount reports the number of connected clients.
func (m *Manager) ClientCount() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.clients)
}

func (c *Client) addFeed(discussionID string, feed *usecase.Feed) (replaced *usecase.Feed) {
	c.mu.Lock()
	replaced = c.feeds[discussionID]
	c.feeds[discussionID] = feed
	c.mu.Unlock()
	return replaced
}

func (c *Client) removeFeed(discussionID string) *usecase.Feed {
	c.mu.Lock()
	feed := c.feeds[discussionID]
	delete(c.feeds, discussionID)
	c.mu.Unlock()
	return feed
}

func (c *Client) closeFeeds() {
	c.mu.Lock()
	feeds := c.feeds
	c.feeds = make(map[string]*usecase.Feed)
	c.mu.Unlock()

	for _, feed := range feeds {
		feed.Close()
	}
}

// ReadPump reads frames from the connection and dispatches them until the
// connection drops.
func (c *Client) ReadPump(m *Manager) {
	defer func() {
		m.Unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("WebSocket: read error for %s: %v", c.UserID, err)
			}
			break
		}

		m.HandleClientMessage(c, payload)
	}
}

// WritePump drains the send channel onto the connection and keeps the
// connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				logger.Warn("WebSocket: write error for %s: %v", c.UserID, err)
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
