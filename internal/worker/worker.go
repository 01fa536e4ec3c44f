// Package worker provides async quote processing off the event bus.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/printcore/prism/internal/domain"
	"github.com/printcore/prism/internal/quote"
)

// Worker consumes quote requests from the EventBus and runs them through
// the same pricing pipeline as the HTTP API. Computed quotes are published
// by the quote service itself; rejections go to the rejected topic.
type Worker struct {
	bus     domain.EventBus
	service *quote.Service

	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, service *quote.Service) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:     bus,
		service: service,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start subscribes to the quote request and rules changed topics.
func (w *Worker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicQuoteRequested, w.handleQuoteRequest)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	sub, err = w.bus.Subscribe(w.ctx, domain.TopicRulesChanged, w.handleRulesChanged)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("worker started",
		"topics", []string{domain.TopicQuoteRequested, domain.TopicRulesChanged},
	)

	return nil
}

// QuoteRejection is published when an async quote request cannot be priced.
type QuoteRejection struct {
	RequestID string `json:"requestId,omitempty"`
	ProductID string `json:"productId,omitempty"`
	Error     string `json:"error"`
}

// handleQuoteRequest prices one async quote request.
func (w *Worker) handleQuoteRequest(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var req domain.PricingRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		slog.Error("failed to parse quote request",
			"message_id", msg.ID,
			"error", err,
		)
		w.reject(ctx, msg.ID, "", "malformed request payload")
		return err
	}

	resp, err := w.service.Price(ctx, &req)
	if err != nil {
		slog.Warn("async quote rejected",
			"message_id", msg.ID,
			"product_id", req.ProductID,
			"error", err,
		)
		w.reject(ctx, msg.ID, req.ProductID, err.Error())
		return err
	}

	slog.Info("async quote computed",
		"quote_id", resp.QuoteID,
		"product_id", resp.ProductID,
		"total", resp.Total,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// handleRulesChanged hot-reloads the rule set from the repository.
func (w *Worker) handleRulesChanged(ctx context.Context, msg *domain.Message) error {
	count, err := w.service.ReloadRules(ctx)
	if err != nil {
		slog.Error("rule reload failed", "message_id", msg.ID, "error", err)
		return err
	}

	slog.Info("rules reloaded", "rule_count", count)
	return nil
}

func (w *Worker) reject(ctx context.Context, requestID, productID, reason string) {
	payload, _ := json.Marshal(QuoteRejection{
		RequestID: requestID,
		ProductID: productID,
		Error:     reason,
	})
	if err := w.bus.Publish(ctx, domain.TopicQuoteRejected, payload); err != nil {
		slog.Error("failed to publish quote rejection", "error", err)
	}
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() error {
	w.cancel()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	slog.Info("worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
