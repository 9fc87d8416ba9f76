// Package binding maintains the mapping between stable player identities and
// rotating transport identities. It replaces the string-key bookkeeping that
// tends to accumulate stale entries after reconnects: every insert and
// remove goes through one invariant-checked table.
package binding

import (
	"errors"
	"fmt"
)

var (
	ErrPlayerBound = errors.New("binding: player already bound")
	ErrConnBound   = errors.New("binding: connection already bound")
)

// Table is a bidirectional player-id to connection-id map. Both directions
// are kept consistent on every mutation.
type Table struct {
	playerToConn map[string]string
	connToPlayer map[string]string
}

func NewTable() *Table {
	return &Table{
		playerToConn: make(map[string]string),
		connToPlayer: make(map[string]string),
	}
}

// Bind associates a player with a connection. Both sides must be free.
func (t *Table) Bind(playerID, connID string) error {
	if existing, ok := t.playerToConn[playerID]; ok {
		return fmt.Errorf("%w: %s -> %s", ErrPlayerBound, playerID, existing)
	}
	if existing, ok := t.connToPlayer[connID]; ok {
		return fmt.Errorf("%w: %s -> %s", ErrConnBound, connID, existing)
	}
	t.playerToConn[playerID] = connID
	t.connToPlayer[connID] = playerID
	return nil
}

// ReleasePlayer removes a player's binding and returns the connection it
// held. Releasing an unbound player is a no-op.
func (t *Table) ReleasePlayer(playerID string) (string, bool) {
	connID, ok := t.playerToConn[playerID]
	if !ok {
		return "", false
	}
	delete(t.playerToConn, playerID)
	delete(t.connToPlayer, connID)
	return connID, true
}

// ReleaseConn removes a connection's binding and returns the player it held.
func (t *Table) ReleaseConn(connID string) (string, bool) {
	playerID, ok := t.connToPlayer[connID]
	if !ok {
		return "", false
	}
	delete(t.connToPlayer, connID)
	delete(t.playerToConn, playerID)
	return playerID, true
}

// ConnFor returns the live connection bound to a player.
func (t *Table) ConnFor(playerID string) (string, bool) {
	connID, ok := t.playerToConn[playerID]
	return connID, ok
}

// PlayerFor returns the player bound to a connection.
func (t *Table) PlayerFor(connID string) (string, bool) {
	playerID, ok := t.connToPlayer[connID]
	return playerID, ok
}

func (t *Table) Len() int {
	return len(t.playerToConn)
}
