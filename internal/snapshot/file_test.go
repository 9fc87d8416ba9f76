package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"quizbattle/internal/constants"
	"quizbattle/internal/models"
)

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rooms.json")
	store := NewFileStore(path)
	ctx := context.Background()

	snap := &models.Snapshot{
		Rooms: []*models.Room{{
			ID:         "room_1",
			Status:     constants.RoomStatusWaiting,
			MaxPlayers: 4,
			CreatedAt:  time.Now(),
			Players: []*models.Player{
				{ID: "p1", Name: "alice", Connected: true},
			},
		}},
		PlayerRoomIndex: map[string]string{"p1": "room_1"},
		NextRoomID:      2,
	}
	if err := store.Save(ctx, snap); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded == nil || len(loaded.Rooms) != 1 {
		t.Fatalf("loaded = %+v", loaded)
	}
	if loaded.Rooms[0].ID != "room_1" || loaded.NextRoomID != 2 {
		t.Errorf("loaded wrong snapshot: %+v", loaded)
	}
	if loaded.Rooms[0].Players[0].Name != "alice" {
		t.Errorf("player not preserved: %+v", loaded.Rooms[0].Players[0])
	}
}

func TestFileStoreMissingFileIsCleanStart(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "nope.json"))
	snap, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if snap != nil {
		t.Errorf("missing file produced snapshot %+v", snap)
	}
}

func TestFileStoreMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rooms.json")
	if err := os.WriteFile(path, []byte("{truncated"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := NewFileStore(path).Load(context.Background())
	if err == nil {
		t.Fatal("malformed snapshot loaded without error")
	}
}

func TestFileStoreOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rooms.json")
	store := NewFileStore(path)
	ctx := context.Background()

	store.Save(ctx, &models.Snapshot{NextRoomID: 2})
	store.Save(ctx, &models.Snapshot{NextRoomID: 7})

	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.NextRoomID != 7 {
		t.Errorf("NextRoomID = %d, want latest save", loaded.NextRoomID)
	}
}
