package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/brightclass/api/internal/model"
	"github.com/brightclass/api/internal/service"
	"github.com/brightclass/api/internal/store"
	"github.com/brightclass/api/pkg/response"
)

type JobHandler struct {
	service   *service.JobService
	validator *validator.Validate
}

func NewJobHandler(svc *service.JobService, v *validator.Validate) *JobHandler {
	return &JobHandler{
		service:   svc,
		validator: v,
	}
}

// Create handles POST /api/jobs — idempotent create-or-fetch.
func (h *JobHandler) Create(c *fiber.Ctx) error {
	var req model.JobCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.Submit(c.Context(), &req)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	if !result.Created {
		return response.OK(c, result)
	}
	return response.Created(c, result)
}

// Get handles GET /api/jobs/:id
func (h *JobHandler) Get(c *fiber.Ctx) error {
	jobID := c.Params("id")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	job, err := h.service.Get(c.Context(), jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return response.NotFound(c, "Job not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, job)
}

// List handles GET /api/jobs?group_key=&since= — the observer poll.
func (h *JobHandler) List(c *fiber.Ctx) error {
	groupKey := c.Query("group_key")
	if groupKey == "" {
		return response.ValidationError(c, "group_key is required", nil)
	}

	jobs, err := h.service.Poll(c.Context(), groupKey, c.Query("since"))
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	resp := &model.JobListResponse{Jobs: jobs}
	if len(jobs) > 0 {
		resp.NextSince = jobs[len(jobs)-1].ClientMsgID
	}
	return response.OK(c, resp)
}

// Cancel handles POST /api/jobs/:id/cancel
func (h *JobHandler) Cancel(c *fiber.Ctx) error {
	jobID := c.Params("id")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	job, err := h.service.Cancel(c.Context(), jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return response.NotFound(c, "Job not found")
		}
		if errors.Is(err, service.ErrNotCancellable) {
			return response.StaleTransition(c, "Job already dispatched; cancellation is advisory only")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, job)
}

// formatValidationErrors formats validator errors for response
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
