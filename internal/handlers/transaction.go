package handlers

import (
	"errors"
	"log"

	"zone4/internal/middleware"
	"zone4/internal/services/ledger"
	"zone4/internal/utils"

	"github.com/gofiber/fiber/v2"
)

// TransactionHandler exposes the transaction ledger over HTTP. Every
// mutating route carries the client's expected_status token so stale
// writes are rejected instead of silently applied.
type TransactionHandler struct {
	ledger ledger.Service
}

func NewTransactionHandler(ledgerService ledger.Service) *TransactionHandler {
	if ledgerService == nil {
		panic("ledger service is required")
	}
	return &TransactionHandler{ledger: ledgerService}
}

func (h *TransactionHandler) CreateTransaction(c *fiber.Ctx) error {
	claims, ok := middleware.ClaimsFromContext(c)
	if !ok {
		return utils.Unauthorized(c, "invalid claims")
	}

	var req ledger.CreateRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.BadRequest(c, "Invalid request format")
	}
	req.CustomerID = claims.UserID

	tx, err := h.ledger.Create(c.UserContext(), req)
	if err != nil {
		return mapLedgerError(c, err)
	}
	return utils.Created(c, tx)
}

func (h *TransactionHandler) GetTransaction(c *fiber.Ctx) error {
	claims, ok := middleware.ClaimsFromContext(c)
	if !ok {
		return utils.Unauthorized(c, "invalid claims")
	}

	tx, err := h.ledger.Get(c.UserContext(), c.Params("id"), claims)
	if err != nil {
		return mapLedgerError(c, err)
	}
	return utils.Success(c, tx)
}

func (h *TransactionHandler) ListTransactions(c *fiber.Ctx) error {
	claims, ok := middleware.ClaimsFromContext(c)
	if !ok {
		return utils.Unauthorized(c, "invalid claims")
	}

	p := utils.GetPagination(c, 1, ledger.DefaultListLimit)
	txs, total, err := h.ledger.List(c.UserContext(), claims, ledger.ListRequest{
		Status: c.Query("status"),
		Limit:  p.Limit,
		Offset: p.Offset,
	})
	if err != nil {
		return mapLedgerError(c, err)
	}

	p.SetTotal(total)
	return utils.Success(c, utils.NewPaginatedResponse(txs, p))
}

// confirmInput is the shared body for the confirmation and cancel
// routes. ExpectedStatus is the optimistic concurrency token.
type confirmInput struct {
	ExpectedStatus string `json:"expected_status"`
}

func (h *TransactionHandler) ConfirmTransfer(c *fiber.Ctx) error {
	claims, ok := middleware.ClaimsFromContext(c)
	if !ok {
		return utils.Unauthorized(c, "invalid claims")
	}

	var input confirmInput
	if err := c.BodyParser(&input); err != nil {
		return utils.BadRequest(c, "Invalid request format")
	}

	tx, err := h.ledger.AgentConfirmTransfer(c.UserContext(), c.Params("id"), claims.UserID, input.ExpectedStatus)
	if err != nil {
		return mapLedgerError(c, err)
	}
	return utils.Success(c, tx)
}

func (h *TransactionHandler) ConfirmReceipt(c *fiber.Ctx) error {
	claims, ok := middleware.ClaimsFromContext(c)
	if !ok {
		return utils.Unauthorized(c, "invalid claims")
	}

	var input confirmInput
	if err := c.BodyParser(&input); err != nil {
		return utils.BadRequest(c, "Invalid request format")
	}

	tx, err := h.ledger.CustomerConfirmReceipt(c.UserContext(), c.Params("id"), claims.UserID, input.ExpectedStatus)
	if err != nil {
		return mapLedgerError(c, err)
	}
	return utils.Success(c, tx)
}

func (h *TransactionHandler) CancelTransaction(c *fiber.Ctx) error {
	claims, ok := middleware.ClaimsFromContext(c)
	if !ok {
		return utils.Unauthorized(c, "invalid claims")
	}

	var input confirmInput
	if err := c.BodyParser(&input); err != nil {
		return utils.BadRequest(c, "Invalid request format")
	}

	tx, err := h.ledger.CancelBeforeFulfillment(c.UserContext(), c.Params("id"), claims.UserID, input.ExpectedStatus)
	if err != nil {
		return mapLedgerError(c, err)
	}
	return utils.Success(c, tx)
}

// mapLedgerError translates ledger sentinels into HTTP statuses. Stale
// tokens and illegal transitions both come back as 409 so clients
// re-read and retry from fresh state.
func mapLedgerError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, ledger.ErrValidation):
		return utils.BadRequest(c, err.Error())
	case errors.Is(err, ledger.ErrOfferUnavailable):
		return utils.UnprocessableEntity(c, err.Error())
	case errors.Is(err, ledger.ErrTransactionNotFound):
		return utils.NotFound(c, err.Error())
	case errors.Is(err, ledger.ErrNotParticipant):
		return utils.Forbidden(c, err.Error())
	case errors.Is(err, ledger.ErrInvalidStateTransition),
		errors.Is(err, ledger.ErrConcurrentModification):
		return utils.Conflict(c, err.Error())
	case errors.Is(err, ledger.ErrEscrowFunding):
		return utils.Respond(c, fiber.StatusBadGateway, fiber.Map{"error": err.Error()})
	default:
		log.Printf("ledger error: %v", err)
		return utils.InternalError(c, "Internal server error")
	}
}
