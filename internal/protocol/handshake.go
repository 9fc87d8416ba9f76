package protocol

import (
	"bufio"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// websocketGUID is the fixed protocol GUID from RFC 6455 used to derive the
// accept token from the client key.
const websocketGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

var ErrBadHandshake = errors.New("protocol: bad handshake")

// AcceptKey derives the Sec-WebSocket-Accept token for a client key:
// base64(sha1(key + GUID)). The derivation is fixed by the protocol and must
// be bit-for-bit reproducible.
func AcceptKey(clientKey string) string {
	h := sha1.New()
	h.Write([]byte(clientKey))
	h.Write([]byte(websocketGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// PerformHandshake validates a raw HTTP upgrade request block and returns the
// literal 101 response to write back. The only requirement enforced is the
// presence of the upgrade key; everything else about the request is the
// transport's business.
func PerformHandshake(rawHeaders []byte) ([]byte, error) {
	clientKey, err := parseClientKey(rawHeaders)
	if err != nil {
		return nil, err
	}

	resp := fmt.Sprintf(
		"HTTP/1.1 101 Switching Protocols\r\n"+
			"Upgrade: websocket\r\n"+
			"Connection: Upgrade\r\n"+
			"Sec-WebSocket-Accept: %s\r\n\r\n",
		AcceptKey(clientKey),
	)
	return []byte(resp), nil
}

func parseClientKey(rawHeaders []byte) (string, error) {
	scanner := bufio.NewScanner(strings.NewReader(string(rawHeaders)))
	for scanner.Scan() {
		line := scanner.Text()
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(name), "Sec-WebSocket-Key") {
			key := strings.TrimSpace(value)
			if key == "" {
				return "", fmt.Errorf("%w: empty Sec-WebSocket-Key", ErrBadHandshake)
			}
			return key, nil
		}
	}
	return "", fmt.Errorf("%w: missing Sec-WebSocket-Key", ErrBadHandshake)
}
