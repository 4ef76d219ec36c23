package api

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-appliances/internal/infrastructure/config"
)

// sendBuffer is the number of outbound frames queued per client before
// broadcasts to it are dropped.
const sendBuffer = 256

// WSClient is one connected WebSocket peer.
type WSClient struct {
	hub  *Hub
	conn *websocket.Conn

	// send is closed once, under sendMu, when the client leaves the hub.
	sendMu sync.Mutex
	send   chan []byte
	closed bool

	mu     sync.RWMutex
	filter wsFilter
}

// wsFilter selects which events reach a client. An empty device set admits
// every device.
type wsFilter struct {
	channels map[string]struct{}
	devices  map[string]struct{}
}

func (f wsFilter) match(channel, deviceID string) bool {
	_, exact := f.channels[channel]
	_, wildcard := f.channels[ChannelAll]
	if !exact && !wildcard {
		return false
	}
	if len(f.devices) == 0 || deviceID == "" {
		return true
	}
	_, ok := f.devices[deviceID]
	return ok
}

func newWSClient(hub *Hub, conn *websocket.Conn) *WSClient {
	return &WSClient{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, sendBuffer),
		filter: wsFilter{
			channels: make(map[string]struct{}),
			devices:  make(map[string]struct{}),
		},
	}
}

func (c *WSClient) wants(channel, deviceID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.filter.match(channel, deviceID)
}

func (c *WSClient) subscribe(p WSSubscribePayload) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range p.Channels {
		c.filter.channels[ch] = struct{}{}
	}
	for _, id := range p.Devices {
		c.filter.devices[id] = struct{}{}
	}
}

func (c *WSClient) unsubscribe(p WSSubscribePayload) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range p.Channels {
		delete(c.filter.channels, ch)
	}
	for _, id := range p.Devices {
		delete(c.filter.devices, id)
	}
}

// readPump handles inbound frames until the peer goes away, then detaches
// the client from the hub.
func (c *WSClient) readPump(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	window := time.Duration(cfg.PingInterval+cfg.PongTimeout) * time.Second
	extend := func() error { return c.conn.SetReadDeadline(time.Now().Add(window)) }

	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	//nolint:errcheck // a failed deadline surfaces on the next read
	extend()
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		//nolint:errcheck // a failed deadline surfaces on the next read
		extend()
		c.handleMessage(frame)
	}
}

// writePump drains the send queue and keeps the connection alive with pings.
func (c *WSClient) writePump(cfg config.WebSocketConfig) {
	ping := time.NewTicker(time.Duration(cfg.PingInterval) * time.Second)
	defer func() {
		ping.Stop()
		c.conn.Close()
	}()

	wait := time.Duration(cfg.PongTimeout) * time.Second
	write := func(kind int, data []byte) error {
		//nolint:errcheck // the write below reports the failure
		c.conn.SetWriteDeadline(time.Now().Add(wait))
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case frame, open := <-c.send:
			if !open {
				//nolint:errcheck // peer may already be gone
				write(websocket.CloseMessage, nil)
				return
			}
			if write(websocket.TextMessage, frame) != nil {
				return
			}
		case <-ping.C:
			if write(websocket.PingMessage, nil) != nil {
				return
			}
		}
	}
}

func (c *WSClient) handleMessage(data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("", "invalid JSON message")
		return
	}

	switch msg.Type {
	case WSTypePing:
		c.reply(msg.ID, WSTypePong, nil)
	case WSTypeSubscribe, WSTypeUnsubscribe:
		sub, err := decodeSubscription(msg.Payload)
		if err != nil {
			c.sendError(msg.ID, "invalid "+msg.Type+" payload")
			return
		}
		if msg.Type == WSTypeSubscribe {
			c.subscribe(sub)
			c.hub.logger.Debug("websocket client subscribed", "channels", sub.Channels, "devices", sub.Devices)
			c.reply(msg.ID, WSTypeResponse, map[string]any{"subscribed": sub.Channels})
			return
		}
		c.unsubscribe(sub)
		c.reply(msg.ID, WSTypeResponse, map[string]any{"unsubscribed": sub.Channels})
	default:
		c.sendError(msg.ID, "unknown message type: "+msg.Type)
	}
}

// decodeSubscription re-decodes the generic payload into its typed form.
func decodeSubscription(payload any) (WSSubscribePayload, error) {
	var sub WSSubscribePayload
	raw, err := json.Marshal(payload)
	if err != nil {
		return sub, err
	}
	err = json.Unmarshal(raw, &sub)
	return sub, err
}

// trySend queues data without blocking. Frames for a full queue or a
// departed client are dropped; the result reports whether data was queued.
func (c *WSClient) trySend(data []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// closeSend ends the write pump. Later calls do nothing.
func (c *WSClient) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *WSClient) reply(id, msgType string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		return
	}
	c.trySend(data)
}

func (c *WSClient) sendError(id, message string) {
	c.reply(id, WSTypeError, map[string]string{"message": message})
}
