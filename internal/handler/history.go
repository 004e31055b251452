package handler

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/gooeystudio/api/internal/history"
	"github.com/gooeystudio/api/internal/model"
	"github.com/gooeystudio/api/pkg/response"
)

type HistoryHandler struct {
	store *history.Store
}

func NewHistoryHandler(store *history.Store) *HistoryHandler {
	return &HistoryHandler{store: store}
}

// List handles GET /api/history
func (h *HistoryHandler) List(c *fiber.Ctx) error {
	jobs, err := h.store.LoadAll(c.Context())
	if err != nil {
		// History is an accessory view; degrade to empty rather than fail.
		log.Printf("[History] load failed, returning empty list: %v", err)
		jobs = []model.Job{}
	}
	if jobs == nil {
		jobs = []model.Job{}
	}

	return response.OK(c, model.JobListResponse{
		Jobs:  jobs,
		Count: len(jobs),
	})
}

// Clear handles DELETE /api/history
func (h *HistoryHandler) Clear(c *fiber.Ctx) error {
	if err := h.store.Clear(c.Context()); err != nil {
		return response.ServiceError(c, "Failed to clear history")
	}
	return response.NoContent(c)
}
