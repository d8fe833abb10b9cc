package websocket

import (
	"context"
	"encoding/json"
	"time"

	"tradetalk/pkg/logger"
)

// Client-to-server and server-to-client frame types.
const (
	MessageTypePing        = "ping"
	MessageTypePong        = "pong"
	MessageTypeSubscribe   = "subscribe"
	MessageTypeUnsubscribe = "unsubscribe"
	MessageTypeSendMessage = "send_message"
	MessageTypeMarkRead    = "mark_read"
	MessageTypeHistory     = "history"
	MessageTypeNewMessage  = "new_message"
	MessageTypeError       = "error"
)

// WSMessage is the frame envelope in both directions.
type WSMessage struct {
	Type         string          `json:"type"`
	DiscussionID string          `json:"discussion_id,omitempty"`
	Data         json.RawMessage `json:"data,omitempty"`
	Timestamp    string          `json:"timestamp"`
}

type outboundMessage struct {
	Type         string      `json:"type"`
	DiscussionID string      `json:"discussion_id,omitempty"`
	Data         interface{} `json:"data,omitempty"`
	Timestamp    string      `json:"timestamp"`
}

type sendMessageData struct {
	Body string `json:"body"`
}

// HandleClientMessage dispatches one inbound frame.
func (m *Manager) HandleClientMessage(client *Client, payload []byte) {
	var frame WSMessage
	if err := json.Unmarshal(payload, &frame); err != nil {
		logger.Warn("WebSocket: malformed frame from %s: %v", client.UserID, err)
		m.sendErrorToClient(client, "", "Invalid message format")
		return
	}

	switch frame.Type {
	case MessageTypePing:
		m.sendToClient(client, outboundMessage{
			Type:      MessageTypePong,
			Timestamp: time.Now().Format(time.RFC3339),
		})

	case MessageTypeSubscribe:
		m.handleSubscribe(client, frame)

	case MessageTypeUnsubscribe:
		m.handleUnsubscribe(client, frame)

	case MessageTypeSendMessage:
		m.handleSendMessage(client, frame)

	case MessageTypeMarkRead:
		m.handleMarkRead(client, frame)

	default:
		logger.Warn("WebSocket: unknown frame type %q from %s", frame.Type, client.UserID)
		m.sendErrorToClient(client, frame.DiscussionID, "Unknown message type")
	}
}

// handleSubscribe opens a live feed on the discussion and streams its history
// followed by every later commit. Re-subscribing replaces the previous feed.
func (m *Manager) handleSubscribe(client *Client, frame WSMessage) {
	if frame.DiscussionID == "" {
		m.sendErrorToClient(client, "", "Missing discussion_id")
		return
	}

	feed, err := m.discussionUC.Subscribe(context.Background(), frame.DiscussionID, client.UserID)
	if err != nil {
		logger.Warn("WebSocket: subscribe failed for %s on %s: %v", client.UserID, frame.DiscussionID, err)
		m.sendErrorToClient(client, frame.DiscussionID, err.Error())
		return
	}

	if replaced := client.addFeed(frame.DiscussionID, feed); replaced != nil {
		replaced.Close()
	}

	m.sendToClient(client, outboundMessage{
		Type:         MessageTypeHistory,
		DiscussionID: frame.DiscussionID,
		Data: map[string]interface{}{
			"discussion": feed.Discussion,
			"messages":   feed.Initial,
		},
		Timestamp: time.Now().Format(time.RFC3339),
	})

	go func() {
		for event := range feed.Updates() {
			m.sendToClient(client, outboundMessage{
				Type:         MessageTypeNewMessage,
				DiscussionID: frame.DiscussionID,
				Data:         event,
				Timestamp:    time.Now().Format(time.RFC3339),
			})
		}
	}()

	logger.Info("WebSocket: %s subscribed to discussion %s", client.UserID, frame.DiscussionID)
}

func (m *Manager) handleUnsubscribe(client *Client, frame WSMessage) {
	if frame.DiscussionID == "" {
		m.sendErrorToClient(client, "", "Missing discussion_id")
		return
	}

	if feed := client.removeFeed(frame.DiscussionID); feed != nil {
		feed.Close()
	}
	logger.Info("WebSocket: %s unsubscribed from discussion %s", client.UserID, frame.DiscussionID)
}

// handleSendMessage appends through the use case; the committed message comes
// back to every subscriber over their feed, sender included.
func (m *Manager) handleSendMessage(client *Client, frame WSMessage) {
	if frame.DiscussionID == "" {
		m.sendErrorToClient(client, "", "Missing discussion_id")
		return
	}

	var data sendMessageData
	if frame.Data != nil {
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			m.sendErrorToClient(client, frame.DiscussionID, "Invalid send message format")
			return
		}
	}

	_, err := m.discussionUC.SendMessage(context.Background(), frame.DiscussionID, client.UserID, data.Body)
	if err != nil {
		m.sendErrorToClient(client, frame.DiscussionID, err.Error())
		return
	}
}

func (m *Manager) handleMarkRead(client *Client, frame WSMessage) {
	if frame.DiscussionID == "" {
		m.sendErrorToClient(client, "", "Missing discussion_id")
		return
	}

	if err := m.discussionUC.MarkRead(context.Background(), frame.DiscussionID, client.UserID); err != nil {
		m.sendErrorToClient(client, frame.DiscussionID, err.Error())
	}
}

func (m *Manager) sendToClient(client *Client, message outboundMessage) {
	payload, err := json.Marshal(message)
	if err != nil {
		logger.Error("WebSocket: failed to marshal frame for %s: %v", client.UserID, err)
		return
	}

	select {
	case client.Send <- payload:
	default:
		logger.Warn("WebSocket: send buffer full for %s, dropping frame", client.UserID)
	}
}

func (m *Manager) sendErrorToClient(client *Client, discussionID, errorMsg string) {
	m.sendToClient(client, outboundMessage{
		Type:         MessageTypeError,
		DiscussionID: discussionID,
		Data:         map[string]string{"error": errorMsg},
		Timestamp:    time.Now().Format(time.RFC3339),
	})
}
