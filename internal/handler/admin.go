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

type AdminHandler struct {
	service   *service.AdminService
	validator *validator.Validate
}

func NewAdminHandler(svc *service.AdminService, v *validator.Validate) *AdminHandler {
	return &AdminHandler{
		service:   svc,
		validator: v,
	}
}

// ForceStatus handles POST /admin/jobs/:id/force-status
func (h *AdminHandler) ForceStatus(c *fiber.Ctx) error {
	jobID := c.Params("id")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	var req model.ForceStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if !model.IsValidStatus(req.Status) {
		return response.ValidationError(c, "Unknown status", nil)
	}

	job, err := h.service.ForceStatus(c.Context(), jobID, req.Status)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return response.NotFound(c, "Job not found")
		}
		if errors.Is(err, store.ErrStaleTransition) {
			return response.StaleTransition(c, "Job is deleted and cannot change state")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, job)
}

// ListStuck handles GET /admin/jobs/stuck
func (h *AdminHandler) ListStuck(c *fiber.Ctx) error {
	limit := int64(c.QueryInt("limit", 100))
	jobs, err := h.service.ListStuck(c.Context(), limit)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}
	return response.OK(c, &model.JobListResponse{Jobs: jobs})
}
