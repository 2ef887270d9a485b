package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"hello-backend/internal/model"
	"hello-backend/internal/store"
)

// snapshotResponse flattens a stored snapshot with its decoded payload.
type snapshotResponse struct {
	model.Snapshot
	Payload any `json:"payload"`
}

func newSnapshotResponse(snap model.Snapshot) (snapshotResponse, error) {
	payload, err := snap.Payload()
	if err != nil {
		return snapshotResponse{}, err
	}
	return snapshotResponse{Snapshot: snap, Payload: payload}, nil
}

// ListSnapshots handles GET /api/snapshots?limit=n.
func (h *Handler) ListSnapshots(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid 'limit' parameter"})
			return
		}
		limit = n
	}

	snaps, err := h.store.ListSnapshots(c.Request.Context(), limit)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve snapshots"})
		return
	}

	response := make([]snapshotResponse, 0, len(snaps))
	for _, snap := range snaps {
		r, err := newSnapshotResponse(snap)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Stored snapshot is corrupt"})
			return
		}
		response = append(response, r)
	}
	c.JSON(http.StatusOK, response)
}

// GetLatestSnapshot handles GET /api/snapshots/latest.
func (h *Handler) GetLatestSnapshot(c *gin.Context) {
	snap, err := h.store.LatestSnapshot(c.Request.Context())
	h.writeSnapshot(c, snap, err)
}

// GetSnapshot handles GET /api/snapshots/:id.
func (h *Handler) GetSnapshot(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid snapshot ID"})
		return
	}

	snap, err := h.store.GetSnapshot(c.Request.Context(), id)
	h.writeSnapshot(c, snap, err)
}

func (h *Handler) writeSnapshot(c *gin.Context, snap model.Snapshot, err error) {
	if errors.Is(err, store.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "snapshot not found"})
		return
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve snapshot"})
		return
	}

	r, err := newSnapshotResponse(snap)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Stored snapshot is corrupt"})
		return
	}
	c.JSON(http.StatusOK, r)
}
