package handlers

import (
	"errors"
	"log"
	"strconv"

	"zone4/internal/middleware"
	"zone4/internal/services/rates"
	"zone4/internal/utils"

	"github.com/gofiber/fiber/v2"
)

type RateOfferHandler struct {
	rates rates.Service
}

func NewRateOfferHandler(ratesService rates.Service) *RateOfferHandler {
	if ratesService == nil {
		panic("rates service is required")
	}
	return &RateOfferHandler{rates: ratesService}
}

func (h *RateOfferHandler) PublishOffer(c *fiber.Ctx) error {
	claims, ok := middleware.ClaimsFromContext(c)
	if !ok {
		return utils.Unauthorized(c, "invalid claims")
	}

	var req rates.OfferRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.BadRequest(c, "Invalid request format")
	}

	offer, err := h.rates.PublishOffer(c.UserContext(), claims.UserID, req)
	if err != nil {
		return mapRatesError(c, err)
	}
	return utils.Created(c, offer)
}

func (h *RateOfferHandler) UpdateOffer(c *fiber.Ctx) error {
	claims, ok := middleware.ClaimsFromContext(c)
	if !ok {
		return utils.Unauthorized(c, "invalid claims")
	}

	offerID, err := parseOfferID(c)
	if err != nil {
		return utils.BadRequest(c, "Invalid offer ID")
	}

	var req rates.OfferRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.BadRequest(c, "Invalid request format")
	}

	offer, err := h.rates.UpdateOffer(c.UserContext(), claims.UserID, offerID, req)
	if err != nil {
		return mapRatesError(c, err)
	}
	return utils.Success(c, offer)
}

func (h *RateOfferHandler) SetOfferActive(c *fiber.Ctx) error {
	claims, ok := middleware.ClaimsFromContext(c)
	if !ok {
		return utils.Unauthorized(c, "invalid claims")
	}

	offerID, err := parseOfferID(c)
	if err != nil {
		return utils.BadRequest(c, "Invalid offer ID")
	}

	var input struct {
		Active bool `json:"active"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.BadRequest(c, "Invalid request format")
	}

	if err := h.rates.SetActive(c.UserContext(), claims.UserID, offerID, input.Active); err != nil {
		return mapRatesError(c, err)
	}
	return utils.Success(c, fiber.Map{"message": "Offer updated"})
}

func (h *RateOfferHandler) ListMyOffers(c *fiber.Ctx) error {
	claims, ok := middleware.ClaimsFromContext(c)
	if !ok {
		return utils.Unauthorized(c, "invalid claims")
	}

	offers, err := h.rates.ListAgentOffers(c.UserContext(), claims.UserID)
	if err != nil {
		return mapRatesError(c, err)
	}
	return utils.Success(c, offers)
}

// ListActiveOffers is the customer-facing rate board, filterable by
// currency pair.
func (h *RateOfferHandler) ListActiveOffers(c *fiber.Ctx) error {
	offers, err := h.rates.ListActiveOffers(c.UserContext(), c.Query("currency_from"), c.Query("currency_to"))
	if err != nil {
		return mapRatesError(c, err)
	}
	return utils.Success(c, offers)
}

func parseOfferID(c *fiber.Ctx) (uint, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	return uint(id), err
}

func mapRatesError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, rates.ErrValidation):
		return utils.BadRequest(c, err.Error())
	case errors.Is(err, rates.ErrOfferNotFound):
		return utils.NotFound(c, err.Error())
	case errors.Is(err, rates.ErrNotOfferOwner):
		return utils.Forbidden(c, err.Error())
	case errors.Is(err, rates.ErrOfferUnavailable):
		return utils.UnprocessableEntity(c, err.Error())
	default:
		log.Printf("rates error: %v", err)
		return utils.InternalError(c, "Internal server error")
	}
}
