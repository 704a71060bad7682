package handlers

import (
	"errors"
	"log"
	"strconv"

	"zone4/internal/middleware"
	"zone4/internal/services/ledger"
	"zone4/internal/services/review"
	"zone4/internal/utils"

	"github.com/gofiber/fiber/v2"
)

type ReviewHandler struct {
	reviews review.Service
}

func NewReviewHandler(reviewService review.Service) *ReviewHandler {
	if reviewService == nil {
		panic("review service is required")
	}
	return &ReviewHandler{reviews: reviewService}
}

func (h *ReviewHandler) SubmitReview(c *fiber.Ctx) error {
	claims, ok := middleware.ClaimsFromContext(c)
	if !ok {
		return utils.Unauthorized(c, "invalid claims")
	}

	var req review.SubmitRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.BadRequest(c, "Invalid request format")
	}

	r, err := h.reviews.SubmitReview(c.UserContext(), claims, req)
	if err != nil {
		switch {
		case errors.Is(err, review.ErrValidation):
			return utils.BadRequest(c, err.Error())
		case errors.Is(err, review.ErrNotEligible):
			return utils.UnprocessableEntity(c, err.Error())
		case errors.Is(err, review.ErrAlreadyReviewed):
			return utils.Conflict(c, err.Error())
		case errors.Is(err, ledger.ErrTransactionNotFound),
			errors.Is(err, ledger.ErrNotParticipant):
			return mapLedgerError(c, err)
		default:
			log.Printf("review error: %v", err)
			return utils.InternalError(c, "Internal server error")
		}
	}
	return utils.Created(c, r)
}

func (h *ReviewHandler) ListAgentReviews(c *fiber.Ctx) error {
	agentID, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return utils.BadRequest(c, "Invalid agent ID")
	}

	p := utils.GetPagination(c, 1, ledger.DefaultListLimit)
	reviews, total, err := h.reviews.ListAgentReviews(c.UserContext(), uint(agentID), p.Limit, p.Offset)
	if err != nil {
		log.Printf("review error: %v", err)
		return utils.InternalError(c, "Internal server error")
	}

	p.SetTotal(total)
	return utils.Success(c, utils.NewPaginatedResponse(reviews, p))
}
