package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/gooeystudio/api/internal/model"
	"github.com/gooeystudio/api/internal/orchestrator"
	"github.com/gooeystudio/api/pkg/response"
)

type JobsHandler struct {
	orch      *orchestrator.Orchestrator
	validator *validator.Validate
}

func NewJobsHandler(orch *orchestrator.Orchestrator, v *validator.Validate) *JobsHandler {
	return &JobsHandler{
		orch:      orch,
		validator: v,
	}
}

// Submit handles POST /api/jobs
func (h *JobsHandler) Submit(c *fiber.Ctx) error {
	var req model.SubmitJobRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	job, err := h.orch.Submit(c.Context(), model.JobKind(req.Kind), req.Payload, req.IdempotencyKey)
	if err != nil {
		// The failure is already recorded as an error job; hand the id back
		// so the client can still query it.
		return response.ProviderError(c, err.Error(), fiber.Map{"jobId": job.ID})
	}

	return response.Accepted(c, model.SubmitJobResponse{
		JobID:     job.ID,
		Status:    job.Status,
		CreatedAt: job.CreatedAt,
	})
}

// Status handles GET /api/jobs/:jobId
func (h *JobsHandler) Status(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	job, ok := h.orch.Query(jobID)
	if !ok {
		return response.NotFound(c, "Job not found")
	}

	return response.OK(c, job)
}

// Cancel handles POST /api/jobs/:jobId/cancel
func (h *JobsHandler) Cancel(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	job, err := h.orch.Cancel(jobID)
	if err != nil {
		switch {
		case errors.Is(err, orchestrator.ErrJobNotFound):
			return response.NotFound(c, "Job not found")
		case errors.Is(err, orchestrator.ErrJobTerminal):
			return response.Conflict(c, "Job already finished")
		default:
			return response.ServiceError(c, err.Error())
		}
	}

	return response.OK(c, model.CancelJobResponse{
		JobID:  job.ID,
		Status: job.Status,
	})
}

// Children handles GET /api/jobs/:jobId/children
func (h *JobsHandler) Children(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	children := h.orch.Children(jobID)
	return response.OK(c, model.JobListResponse{
		Jobs:  children,
		Count: len(children),
	})
}

// Derive handles POST /api/jobs/:jobId/derive
func (h *JobsHandler) Derive(c *fiber.Ctx) error {
	parentID := c.Params("jobId")
	if parentID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	var req model.DeriveJobRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	child, err := h.orch.Spawn(c.Context(), parentID, model.JobKind(req.Kind), req.Payload)
	if err != nil {
		switch {
		case errors.Is(err, orchestrator.ErrJobNotFound):
			return response.NotFound(c, "Parent job not found")
		case errors.Is(err, orchestrator.ErrParentNotComplete):
			return response.Conflict(c, "Parent job is not complete")
		default:
			return response.ProviderError(c, err.Error(), fiber.Map{"jobId": child.ID})
		}
	}

	return response.Accepted(c, model.SubmitJobResponse{
		JobID:     child.ID,
		Status:    child.Status,
		CreatedAt: child.CreatedAt,
	})
}

func formatValidationErrors(err error) interface{} {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		errors := make(map[string]string)
		for _, e := range validationErrors {
			errors[e.Field()] = e.Tag()
		}
		return errors
	}
	return nil
}
