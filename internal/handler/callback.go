package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/brightclass/api/internal/model"
	"github.com/brightclass/api/internal/service"
	"github.com/brightclass/api/pkg/response"
)

type CallbackHandler struct {
	service   *service.CallbackService
	validator *validator.Validate
}

func NewCallbackHandler(svc *service.CallbackService, v *validator.Validate) *CallbackHandler {
	return &CallbackHandler{
		service:   svc,
		validator: v,
	}
}

// Receive handles POST /callbacks/worker — the workflow engine's
// result ingress. A dangling correlation is acknowledged with 202 so
// the engine stops redelivering; it is logged server-side, not
// surfaced as a failure.
func (h *CallbackHandler) Receive(c *fiber.Ctx) error {
	var req model.CallbackRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}
	if len(req.Result) == 0 && req.Error == "" {
		return response.ValidationError(c, "Either result or error is required", nil)
	}

	var err error
	if req.Error != "" {
		err = h.service.Fail(c.Context(), req.CorrelationKey, req.Error)
	} else {
		err = h.service.Complete(c.Context(), req.CorrelationKey, req.Result)
	}
	if err != nil {
		if errors.Is(err, service.ErrCorrelationNotFound) {
			return response.Accepted(c, fiber.Map{"acknowledged": true, "matched": false})
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, fiber.Map{"acknowledged": true, "matched": true})
}
