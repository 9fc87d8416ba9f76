package websocket

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"quizbattle/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 64
	readChunkSize  = 4096
)

// Client is one accepted WebSocket connection. The read pump decodes frames
// and forwards payloads to the hub; the write pump drains Send. PlayerID is
// written only on the hub goroutine.
type Client struct {
	ID       string
	PlayerID string

	hub  *Hub
	conn net.Conn

	// Send carries already-framed bytes. Closed exactly once via closeSend;
	// the mutex keeps the read pump's enqueues from racing that close.
	Send chan []byte

	mu     sync.Mutex
	closed bool
}

func NewClient(id string, conn net.Conn, hub *Hub) *Client {
	return &Client{
		ID:   id,
		hub:  hub,
		conn: conn,
		Send: make(chan []byte, sendBufferSize),
	}
}

// ReadPump feeds incoming bytes through the frame decoder and hands text
// payloads to the hub. leftover holds any bytes read past the handshake
// terminator. Runs until the connection drops or a protocol error occurs.
func (c *Client) ReadPump(leftover []byte) {
	defer func() {
		c.hub.Unregister <- c
		c.conn.Close()
	}()

	dec := protocol.NewDecoder()
	if len(leftover) > 0 {
		dec.Feed(leftover)
	}

	buf := make([]byte, readChunkSize)
	for {
		if err := c.drainFrames(dec); err != nil {
			if !errors.Is(err, io.EOF) {
				log.Debug().Str("connection_id", c.ID).Err(err).Msg("closing connection")
			}
			return
		}

		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		n, err := c.conn.Read(buf)
		if err != nil {
			return
		}
		dec.Feed(buf[:n])
	}
}

// drainFrames processes every complete frame currently buffered. io.EOF
// signals a clean close from the peer.
func (c *Client) drainFrames(dec *protocol.Decoder) error {
	for {
		frame, ok, err := dec.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		switch frame.Opcode {
		case protocol.OpcodeText, protocol.OpcodeBinary:
			c.hub.HandleMessage <- &InboundMessage{Client: c, Data: frame.Payload}
		case protocol.OpcodePing:
			c.enqueue(protocol.EncodeControl(protocol.OpcodePong, frame.Payload))
		case protocol.OpcodePong:
			// liveness only, nothing to do
		case protocol.OpcodeClose:
			c.enqueue(protocol.EncodeControl(protocol.OpcodeClose, nil))
			return io.EOF
		}
	}
}

// WritePump serializes all writes to the socket. Only this goroutine writes
// to conn after the handshake.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.Send:
			if !ok {
				c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				c.conn.Write(protocol.EncodeControl(protocol.OpcodeClose, nil))
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if _, err := c.conn.Write(data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if _, err := c.conn.Write(protocol.EncodeControl(protocol.OpcodePing, nil)); err != nil {
				return
			}
		}
	}
}

// SendMessage seals, marshals, and frames an outbound payload. Drops the
// message when the client's buffer is full rather than blocking the hub.
func (c *Client) SendMessage(msgType string, payload Outbound) {
	payload.seal(msgType, time.Now().Unix())
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Str("type", msgType).Err(err).Msg("failed to marshal message")
		return
	}
	c.enqueue(protocol.EncodeFrame(data))
}

func (c *Client) enqueue(frame []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.Send <- frame:
	default:
		log.Warn().Str("connection_id", c.ID).Msg("send buffer full, dropping message")
	}
}

// closeSend shuts the outbound channel down. Idempotent; later enqueues are
// silently dropped instead of panicking on the closed channel.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.Send)
}

// Close forces the connection shut. Used when a new connection takes over a
// player binding during rejoin.
func (c *Client) Close() {
	c.conn.Close()
}
