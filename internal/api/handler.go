package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/printcore/prism/internal/domain"
	"github.com/printcore/prism/internal/quote"
	"github.com/printcore/prism/internal/repository"
	"github.com/printcore/prism/internal/rules"
	"github.com/printcore/prism/internal/snapshot"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo    domain.Repository
	cache   domain.Cache
	bus     domain.EventBus
	engine  *rules.Engine
	loader  *snapshot.Loader
	service *quote.Service
	version string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *rules.Engine, loader *snapshot.Loader, service *quote.Service, version string) *Handler {
	return &Handler{
		repo:    repo,
		cache:   cache,
		bus:     bus,
		engine:  engine,
		loader:  loader,
		service: service,
		version: version,
	}
}

// Price handles POST /price requests: the full pricing pipeline.
func (h *Handler) Price(w http.ResponseWriter, r *http.Request) {
	var req domain.PricingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	resp, err := h.service.Price(r.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, quote.ErrInvalidRequest):
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": err.Error(),
			})
		case errors.Is(err, repository.ErrNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "product not found",
			})
		default:
			slog.Error("pricing failed", "product_id", req.ProductID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "pricing failed",
			})
		}
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// EvaluateRulesHTTP handles POST /rules/evaluate: configurator effects only,
// no pricing.
func (h *Handler) EvaluateRulesHTTP(w http.ResponseWriter, r *http.Request) {
	var req domain.RuleEvaluationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	resp, err := h.service.EvaluateRules(r.Context(), &req)
	if err != nil {
		if errors.Is(err, quote.ErrInvalidRequest) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": err.Error(),
			})
			return
		}
		slog.Error("rule evaluation failed", "product_id", req.ProductID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "rule evaluation failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetQuote retrieves a persisted quote by ID.
func (h *Handler) GetQuote(w http.ResponseWriter, r *http.Request) {
	quoteID := chi.URLParam(r, "id")

	q, err := h.repo.GetQuote(r.Context(), quoteID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "quote not found",
			})
			return
		}
		slog.Error("failed to get quote", "id", quoteID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get quote",
		})
		return
	}

	writeJSON(w, http.StatusOK, q)
}

// CreateProduct handles POST /products: catalog upsert.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var p domain.Product
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if p.ID == "" || p.BasePrice < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id is required and basePrice must be non-negative",
		})
		return
	}

	if err := h.repo.SaveProduct(r.Context(), &p); err != nil {
		slog.Error("failed to save product", "id", p.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save product",
		})
		return
	}

	h.publish(r.Context(), domain.TopicCatalogChanged, map[string]string{"productId": p.ID})

	slog.Info("product saved", "id", p.ID, "name", p.Name)
	writeJSON(w, http.StatusCreated, &p)
}

// GetProduct retrieves a product by ID.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "id")

	p, err := h.repo.GetProduct(r.Context(), productID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "product not found",
			})
			return
		}
		slog.Error("failed to get product", "id", productID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get product",
		})
		return
	}

	writeJSON(w, http.StatusOK, p)
}

// AttributePriceEntry is one row of a product's attribute price table as
// accepted by PUT /products/{id}/attribute-prices.
type AttributePriceEntry struct {
	PricingKey string              `json:"pricingKey"`
	Type       domain.ModifierType `json:"modifierType"`
	Value      float64             `json:"value"`
	AppliesOn  domain.AppliesOn    `json:"appliesOn"`
}

// PutAttributePrices upserts attribute price table entries for a product and
// invalidates the cached snapshot.
func (h *Handler) PutAttributePrices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	productID := chi.URLParam(r, "id")

	var entries []AttributePriceEntry
	if err := json.NewDecoder(r.Body).Decode(&entries); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if len(entries) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "at least one entry is required",
		})
		return
	}

	for _, e := range entries {
		ap := &domain.AttributePrice{
			ProductID:  productID,
			PricingKey: e.PricingKey,
			Type:       e.Type,
			Value:      e.Value,
			AppliesOn:  e.AppliesOn,
		}
		if err := h.repo.SaveAttributePrice(ctx, ap); err != nil {
			if errors.Is(err, repository.ErrInvalidInput) {
				writeJSON(w, http.StatusBadRequest, map[string]string{
					"error": err.Error(),
				})
				return
			}
			slog.Error("failed to save attribute price",
				"product_id", productID,
				"pricing_key", e.PricingKey,
				"error", err,
			)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save attribute price",
			})
			return
		}
	}

	if h.loader != nil {
		h.loader.Invalidate(ctx, productID)
	}
	h.publish(ctx, domain.TopicCatalogChanged, map[string]string{"productId": productID})

	slog.Info("attribute prices saved", "product_id", productID, "count", len(entries))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"productId": productID,
		"count":     len(entries),
	})
}

// GetAttributePrices returns a product's attribute price table.
func (h *Handler) GetAttributePrices(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "id")

	table, err := h.repo.GetAttributePrices(r.Context(), productID)
	if err != nil {
		slog.Error("failed to get attribute prices", "product_id", productID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get attribute prices",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"productId": productID,
		"prices":    table,
		"count":     len(table),
	})
}

// CreateModifier handles POST /modifiers: upsert one pricing modifier.
func (h *Handler) CreateModifier(w http.ResponseWriter, r *http.Request) {
	var m domain.PricingModifier
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if err := h.repo.SaveModifier(r.Context(), &m); err != nil {
		if errors.Is(err, repository.ErrInvalidInput) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": err.Error(),
			})
			return
		}
		slog.Error("failed to save modifier", "id", m.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save modifier",
		})
		return
	}

	slog.Info("modifier saved", "id", m.ID, "scope", m.AppliesTo, "type", m.Type)
	writeJSON(w, http.StatusCreated, &m)
}

// GetModifier retrieves a modifier by ID.
func (h *Handler) GetModifier(w http.ResponseWriter, r *http.Request) {
	modifierID := chi.URLParam(r, "id")

	m, err := h.repo.GetModifier(r.Context(), modifierID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "modifier not found",
			})
			return
		}
		slog.Error("failed to get modifier", "id", modifierID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get modifier",
		})
		return
	}

	writeJSON(w, http.StatusOK, m)
}

// ListModifiers returns all modifiers, active and inactive.
func (h *Handler) ListModifiers(w http.ResponseWriter, r *http.Request) {
	mods, err := h.repo.ListModifiers(r.Context())
	if err != nil {
		slog.Error("failed to list modifiers", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list modifiers",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"modifiers": mods,
		"count":     len(mods),
	})
}

// DeleteModifier soft-deletes a modifier.
func (h *Handler) DeleteModifier(w http.ResponseWriter, r *http.Request) {
	modifierID := chi.URLParam(r, "id")

	if err := h.repo.DeleteModifier(r.Context(), modifierID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "modifier not found",
			})
			return
		}
		slog.Error("failed to delete modifier", "id", modifierID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to delete modifier",
		})
		return
	}

	slog.Info("modifier deleted", "id", modifierID)
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "modifier deleted",
	})
}

// ListRules returns all loaded rules from the engine.
// Rules are loaded from the database at startup and can be reloaded via POST /rules/reload.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	loadedRules := h.engine.GetLoadedRules()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules":  loadedRules,
		"count":  len(loadedRules),
		"source": "database",
	})
}

// GetRule retrieves a rule by ID from the repository.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	rule, err := h.repo.GetRule(r.Context(), ruleID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "rule not found",
			})
			return
		}
		slog.Error("failed to get rule", "id", ruleID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get rule",
		})
		return
	}

	writeJSON(w, http.StatusOK, rule)
}

// CreateRule validates a rule (including its CEL condition) and saves it.
// After saving, call POST /rules/reload to hot-reload into the engine.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var rule domain.AttributeRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	// Validation compiles the CEL condition, so malformed expressions are
	// rejected here instead of surfacing at reload time.
	if err := h.engine.ValidateRule(&rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid rule: " + err.Error(),
		})
		return
	}

	if err := h.repo.SaveRule(ctx, &rule); err != nil {
		slog.Error("failed to save rule", "id", rule.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save rule",
		})
		return
	}

	slog.Info("rule created", "id", rule.ID, "name", rule.Name)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"rule":    &rule,
		"message": "Rule created. Call POST /rules/reload to apply changes.",
	})
}

// DeleteRule soft-deletes a rule and hot-reloads the engine.
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ruleID := chi.URLParam(r, "id")

	if err := h.repo.DeleteRule(ctx, ruleID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "rule not found",
			})
			return
		}
		slog.Error("failed to delete rule", "id", ruleID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to delete rule",
		})
		return
	}

	count, err := h.service.ReloadRules(ctx)
	if err != nil {
		slog.Error("failed to reload rules after delete", "error", err)
	} else {
		slog.Info("rules reloaded after delete", "count", count)
	}

	h.publish(ctx, domain.TopicRulesChanged, map[string]string{"ruleId": ruleID})

	slog.Info("rule deleted", "id", ruleID)
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "rule deleted and engine reloaded",
	})
}

// ReloadRules reloads all rules from the database into the engine.
// This enables hot-reloading without server restart.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	count, err := h.service.ReloadRules(ctx)
	if err != nil {
		slog.Error("failed to reload rules", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	h.publish(ctx, domain.TopicRulesChanged, map[string]string{"source": "api"})

	slog.Info("rules reloaded from database", "count", count)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "rules reloaded successfully",
		"count":   count,
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.bus != nil {
		if err := h.bus.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"ready": "false",
				"error": "event bus unavailable",
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// publish sends a best-effort JSON event on the bus.
func (h *Handler) publish(ctx context.Context, topic string, body map[string]string) {
	if h.bus == nil {
		return
	}
	payload, _ := json.Marshal(body)
	if err := h.bus.Publish(ctx, topic, payload); err != nil {
		slog.Warn("failed to publish event", "topic", topic, "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
