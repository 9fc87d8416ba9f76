package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"quizbattle/internal/game"
	"quizbattle/internal/room"
	"quizbattle/internal/snapshot"
)

// AdminHandler exposes the read-only operational surface plus a reset. It
// only ever reads through the registry's lock; all gameplay mutation stays
// on the hub goroutine.
type AdminHandler struct {
	rooms     *room.Registry
	engine    *game.Engine
	snapshots snapshot.Store
	ready     func() bool
}

func NewAdminHandler(rooms *room.Registry, engine *game.Engine, snapshots snapshot.Store, ready func() bool) *AdminHandler {
	return &AdminHandler{
		rooms:     rooms,
		engine:    engine,
		snapshots: snapshots,
		ready:     ready,
	}
}

func (h *AdminHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)

	admin := router.Group("/admin")
	admin.GET("/rooms", h.ListRooms)
	admin.GET("/rooms/:id", h.GetRoom)
	admin.GET("/stats", h.Stats)
	admin.POST("/reset", h.Reset)
}

func (h *AdminHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "quizbattle",
	})
}

func (h *AdminHandler) Ready(c *gin.Context) {
	if h.ready != nil && !h.ready() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (h *AdminHandler) ListRooms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rooms": h.rooms.CopyRooms()})
}

func (h *AdminHandler) GetRoom(c *gin.Context) {
	roomID := c.Param("id")
	rm, ok := h.rooms.CopyRoom(roomID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}

	resp := gin.H{"room": rm}
	if _, inGame := h.engine.Session(roomID); inGame {
		resp["scores"] = h.engine.Leaderboard(roomID)
	}
	c.JSON(http.StatusOK, resp)
}

func (h *AdminHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.rooms.Stats())
}

// Reset drops all rooms and sessions. Connected clients keep their sockets
// but lose their seats; their next room-scoped message gets an error.
func (h *AdminHandler) Reset(c *gin.Context) {
	for _, rm := range h.rooms.CopyRooms() {
		h.engine.DiscardSession(rm.ID)
	}
	h.rooms.Reset()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.snapshots.Save(ctx, h.rooms.Snapshot()); err != nil {
		c.JSON(http.StatusOK, gin.H{"status": "reset", "snapshot": "failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}
