package handlers

import (
	"errors"
	"log"

	"zone4/internal/middleware"
	"zone4/internal/services/dispute"
	"zone4/internal/services/ledger"
	"zone4/internal/utils"

	"github.com/gofiber/fiber/v2"
)

type DisputeHandler struct {
	disputes dispute.Service
}

func NewDisputeHandler(disputeService dispute.Service) *DisputeHandler {
	if disputeService == nil {
		panic("dispute service is required")
	}
	return &DisputeHandler{disputes: disputeService}
}

func (h *DisputeHandler) FileDispute(c *fiber.Ctx) error {
	claims, ok := middleware.ClaimsFromContext(c)
	if !ok {
		return utils.Unauthorized(c, "invalid claims")
	}

	var req dispute.FileRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.BadRequest(c, "Invalid request format")
	}

	d, err := h.disputes.FileDispute(c.UserContext(), claims, req)
	if err != nil {
		return mapDisputeError(c, err)
	}
	return utils.Created(c, d)
}

func (h *DisputeHandler) GetDispute(c *fiber.Ctx) error {
	claims, ok := middleware.ClaimsFromContext(c)
	if !ok {
		return utils.Unauthorized(c, "invalid claims")
	}

	d, err := h.disputes.Get(c.UserContext(), claims, c.Params("id"))
	if err != nil {
		return mapDisputeError(c, err)
	}
	return utils.Success(c, d)
}

func (h *DisputeHandler) ListTransactionDisputes(c *fiber.Ctx) error {
	claims, ok := middleware.ClaimsFromContext(c)
	if !ok {
		return utils.Unauthorized(c, "invalid claims")
	}

	disputes, err := h.disputes.ListForTransaction(c.UserContext(), claims, c.Params("id"))
	if err != nil {
		return mapDisputeError(c, err)
	}
	return utils.Success(c, disputes)
}

// ListOpenDisputes is the admin review queue, oldest first.
func (h *DisputeHandler) ListOpenDisputes(c *fiber.Ctx) error {
	p := utils.GetPagination(c, 1, ledger.DefaultListLimit)
	disputes, total, err := h.disputes.ListOpen(c.UserContext(), p.Limit, p.Offset)
	if err != nil {
		return mapDisputeError(c, err)
	}

	p.SetTotal(total)
	return utils.Success(c, utils.NewPaginatedResponse(disputes, p))
}

// AdvanceDispute moves a dispute forward, resolving or escalating it.
func (h *DisputeHandler) AdvanceDispute(c *fiber.Ctx) error {
	claims, ok := middleware.ClaimsFromContext(c)
	if !ok {
		return utils.Unauthorized(c, "invalid claims")
	}

	var req dispute.AdvanceRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.BadRequest(c, "Invalid request format")
	}

	d, err := h.disputes.AdvanceDispute(c.UserContext(), claims.UserID, c.Params("id"), req)
	if err != nil {
		return mapDisputeError(c, err)
	}
	return utils.Success(c, d)
}

func mapDisputeError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, dispute.ErrValidation),
		errors.Is(err, dispute.ErrResolutionRequired):
		return utils.BadRequest(c, err.Error())
	case errors.Is(err, dispute.ErrDisputeNotFound):
		return utils.NotFound(c, err.Error())
	case errors.Is(err, dispute.ErrDisputeAlreadyOpen),
		errors.Is(err, dispute.ErrConcurrentResolution):
		return utils.Conflict(c, err.Error())
	case errors.Is(err, dispute.ErrNotDisputable),
		errors.Is(err, dispute.ErrInvalidAdvance):
		return utils.UnprocessableEntity(c, err.Error())
	case errors.Is(err, ledger.ErrValidation),
		errors.Is(err, ledger.ErrTransactionNotFound),
		errors.Is(err, ledger.ErrNotParticipant),
		errors.Is(err, ledger.ErrInvalidStateTransition),
		errors.Is(err, ledger.ErrConcurrentModification):
		return mapLedgerError(c, err)
	default:
		log.Printf("dispute error: %v", err)
		return utils.InternalError(c, "Internal server error")
	}
}
