package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Broccode/acci-eaf-sub000/envelope"
	"github.com/Broccode/acci-eaf-sub000/persistence"
)

// ticketSummaryProjection maintains a per-tenant summary row for each ticket.
type ticketSummaryProjection struct{}

// ticketCreated is the payload of a TicketCreated event.
type ticketCreated struct {
	TicketID string `json:"ticket_id"`
	Title    string `json:"title"`
}

// ticketClosed is the payload of a TicketClosed event.
type ticketClosed struct {
	TicketID string `json:"ticket_id"`
}

// ticketSummary is the read-model row stored per ticket.
type ticketSummary struct {
	TicketID string `json:"ticket_id"`
	Title    string `json:"title"`
	Status   string `json:"status"`
}

const summaryBucket = "ticket-summaries"

func (*ticketSummaryProjection) Name() string {
	return "ticket-summary"
}

func (*ticketSummaryProjection) HandleEvent(
	ctx context.Context,
	tx persistence.Transaction,
	env *envelope.Envelope,
) error {
	switch env.EventType {
	case "TicketCreated":
		var ev ticketCreated
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return fmt.Errorf("unable to unmarshal %s event: %w", env.EventType, err)
		}

		return saveSummary(ctx, tx, env.TenantID, ticketSummary{
			TicketID: ev.TicketID,
			Title:    ev.Title,
			Status:   "open",
		})

	case "TicketClosed":
		var ev ticketClosed
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return fmt.Errorf("unable to unmarshal %s event: %w", env.EventType, err)
		}

		return tx.DeleteResource(ctx, env.TenantID, summaryBucket, ev.TicketID)

	default:
		// Unrecognized events are skipped; the runner still records them as
		// processed.
		return nil
	}
}

func saveSummary(
	ctx context.Context,
	tx persistence.Transaction,
	tenantID string,
	s ticketSummary,
) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}

	return tx.SaveResource(ctx, tenantID, summaryBucket, s.TicketID, data)
}
