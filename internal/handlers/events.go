package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"zone4/internal/middleware"
	"zone4/internal/services/ledger"
	"zone4/internal/services/notification"
	"zone4/internal/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
)

const keepAliveInterval = 25 * time.Second

// EventsHandler streams transaction state changes to participants over
// server-sent events. A client that reconnects re-reads the transaction
// first; the stream only signals that something changed.
type EventsHandler struct {
	ledger     ledger.Service
	subscriber notification.Subscriber
}

func NewEventsHandler(ledgerService ledger.Service, subscriber notification.Subscriber) *EventsHandler {
	if ledgerService == nil {
		panic("ledger service is required")
	}
	if subscriber == nil {
		panic("subscriber is required")
	}
	return &EventsHandler{ledger: ledgerService, subscriber: subscriber}
}

func (h *EventsHandler) StreamTransactionEvents(c *fiber.Ctx) error {
	claims, ok := middleware.ClaimsFromContext(c)
	if !ok {
		return utils.Unauthorized(c, "invalid claims")
	}

	txID := c.Params("id")
	if _, err := h.ledger.Get(c.UserContext(), txID, claims); err != nil {
		return mapLedgerError(c, err)
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		events, unsubscribe := h.subscriber.Subscribe(ctx, txID)
		defer unsubscribe()

		keepAlive := time.NewTicker(keepAliveInterval)
		defer keepAlive.Stop()

		for {
			select {
			case event, open := <-events:
				if !open {
					return
				}
				if err := writeEvent(w, event); err != nil {
					return
				}
			case <-keepAlive.C:
				if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}
			}
		}
	}))

	return nil
}

func writeEvent(w *bufio.Writer, event notification.StateChangeEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("failed to marshal event for tx %s: %v", event.TransactionID, err)
		return nil
	}
	if _, err := fmt.Fprintf(w, "event: state_change\ndata: %s\n\n", data); err != nil {
		return err
	}
	return w.Flush()
}
