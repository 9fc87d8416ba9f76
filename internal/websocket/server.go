package websocket

import (
	"bytes"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"quizbattle/internal/protocol"
)

const (
	handshakeTimeout   = 5 * time.Second
	maxHandshakeHeader = 8 * 1024
)

// Server accepts raw TCP connections and upgrades them to WebSocket with the
// in-house handshake before handing them to the hub.
type Server struct {
	hub      *Hub
	listener net.Listener
	nextID   atomic.Uint64
}

func NewServer(hub *Hub) *Server {
	return &Server{hub: hub}
}

// Listen binds the address and runs the accept loop until the listener is
// closed.
func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("websocket: listen %s: %w", addr, err)
	}
	s.listener = ln
	log.Info().Str("addr", addr).Msg("websocket server listening")

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return err
		}
		go s.handleConn(conn)
	}
}

// Addr reports the bound listener address, useful when listening on port 0.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) Close() error {
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

func (s *Server) handleConn(conn net.Conn) {
	conn.SetDeadline(time.Now().Add(handshakeTimeout))

	header, leftover, err := readHandshake(conn)
	if err != nil {
		log.Debug().Err(err).Msg("handshake read failed")
		conn.Close()
		return
	}

	response, err := protocol.PerformHandshake(header)
	if err != nil {
		conn.Write([]byte("HTTP/1.1 400 Bad Request\r\n\r\n"))
		conn.Close()
		return
	}
	if _, err := conn.Write(response); err != nil {
		conn.Close()
		return
	}
	conn.SetDeadline(time.Time{})

	client := NewClient(fmt.Sprintf("conn_%d", s.nextID.Add(1)), conn, s.hub)
	s.hub.Register <- client

	go client.WritePump()
	client.ReadPump(leftover)
}

// readHandshake reads until the end-of-headers marker. Bytes beyond the
// marker belong to the first frame and are returned for the decoder.
func readHandshake(conn net.Conn) (header, leftover []byte, err error) {
	var buf bytes.Buffer
	chunk := make([]byte, 1024)
	for {
		n, err := conn.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
			if idx := bytes.Index(buf.Bytes(), []byte("\r\n\r\n")); idx >= 0 {
				raw := buf.Bytes()
				end := idx + 4
				header = append([]byte(nil), raw[:end]...)
				leftover = append([]byte(nil), raw[end:]...)
				return header, leftover, nil
			}
			if buf.Len() > maxHandshakeHeader {
				return nil, nil, fmt.Errorf("websocket: handshake header too large")
			}
		}
		if err != nil {
			return nil, nil, err
		}
	}
}
