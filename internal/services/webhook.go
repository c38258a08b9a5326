package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/c21501/rfc-service/internal/logging"
	"github.com/c21501/rfc-service/internal/repository"
	"github.com/c21501/rfc-service/pkg/models"
)

// Board event types the ingestion pipeline understands. Dispatch is closed:
// anything else is logged and dropped.
const (
	EventCardCreated      = "card_created"
	EventCardUpdated      = "card_updated"
	EventCardMoved        = "card_moved"
	EventCardDeleted      = "card_deleted"
	EventRfcStatusChanged = "rfc_status_changed"
)

// Event is the inbound webhook envelope Planka posts on board changes.
type Event struct {
	Event     string        `json:"event"`
	Timestamp time.Time     `json:"timestamp"`
	Data      *EventPayload `json:"data"`
	PrevData  *EventPayload `json:"prevData"`
	User      *EventUser    `json:"user"`
	Source    string        `json:"source"`
}

// EventPayload wraps the card item plus the embedded RFC reference Planka
// power-ups attach when a card was created from an RFC.
type EventPayload struct {
	Item    map[string]interface{} `json:"item"`
	RfcData *RfcData               `json:"rfcData"`
}

// RfcData carries the external numeric RFC id embedded in a card payload.
type RfcData struct {
	ExternalRfcID int64 `json:"externalRfcId"`
}

// EventUser identifies the board user who triggered the event.
type EventUser struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
	Name     string `json:"name"`
}

func (p *EventPayload) str(key string) string {
	if p == nil || p.Item == nil {
		return ""
	}
	if v, ok := p.Item[key].(string); ok {
		return v
	}
	return ""
}

// CardID tolerates both Planka's "id" and flattened "cardId" payload shapes.
func (p *EventPayload) CardID() string {
	if id := p.str("id"); id != "" {
		return id
	}
	return p.str("cardId")
}

func (p *EventPayload) ListID() string    { return p.str("listId") }
func (p *EventPayload) ListName() string  { return p.str("listName") }
func (p *EventPayload) CardName() string  { return p.str("name") }
func (p *EventPayload) CardDesc() string  { return p.str("description") }
func (p *EventPayload) Urgency() string   { return p.str("urgency") }
func (p *EventPayload) DueDate() string   { return p.str("dueDate") }
func (p *EventPayload) ExternalID() int64 {
	if p == nil || p.RfcData == nil {
		return 0
	}
	return p.RfcData.ExternalRfcID
}

// WebhookConfig carries inbound webhook settings.
type WebhookConfig struct {
	Secret string
}

// WebhookService translates board webhook events into local state mutations.
// Webhook-originated changes represent explicit human action on the board and
// therefore override local state, terminal statuses included.
type WebhookService struct {
	repo      repository.Repository
	boardSync *BoardSync
	cfg       WebhookConfig
	logger    *logging.Logger
}

// NewWebhookService creates a webhook ingestion service.
func NewWebhookService(repo repository.Repository, boardSync *BoardSync, cfg WebhookConfig, logger *logging.Logger) *WebhookService {
	return &WebhookService{repo: repo, boardSync: boardSync, cfg: cfg, logger: logger}
}

// VerifySecret checks the shared secret presented by the caller. An empty
// configured secret disables verification, a development opt-out.
func (w *WebhookService) VerifySecret(provided string) error {
	if w.cfg.Secret == "" {
		return nil
	}
	if subtle.ConstantTimeCompare([]byte(provided), []byte(w.cfg.Secret)) != 1 {
		return fmt.Errorf("webhook secret mismatch: %w", models.ErrAuthenticationFailed)
	}
	return nil
}

// HandleEvent dispatches one verified webhook event. Unknown event types are
// logged and ignored.
func (w *WebhookService) HandleEvent(ctx context.Context, evt *Event) error {
	correlationID := uuid.NewString()
	w.logger.Info("webhook event received", "correlation_id", correlationID, "event", evt.Event, "source", evt.Source)

	switch evt.Event {
	case EventCardMoved, EventRfcStatusChanged:
		return w.handleCardMoved(ctx, evt, correlationID)
	case EventCardUpdated:
		return w.handleCardUpdated(ctx, evt, correlationID)
	case EventCardCreated:
		return w.handleCardCreated(ctx, evt, correlationID)
	case EventCardDeleted:
		return w.handleCardDeleted(ctx, evt, correlationID)
	default:
		w.logger.Warn("unknown webhook event type ignored", "correlation_id", correlationID, "event", evt.Event)
		return nil
	}
}

// resolveRfc finds the local RFC an event refers to: first by the bound card
// id, then by the embedded external RFC id. nil, nil means unresolved.
func (w *WebhookService) resolveRfc(ctx context.Context, evt *Event) (*models.Rfc, error) {
	if cardID := evt.Data.CardID(); cardID != "" {
		rfc, err := w.repo.FindRfcByCardID(ctx, cardID)
		if err == nil {
			return rfc, nil
		}
		if !isNotFound(err) {
			return nil, err
		}
	}
	if externalID := evt.Data.ExternalID(); externalID != 0 {
		rfc, err := w.repo.GetRfc(ctx, externalID)
		if err == nil {
			return rfc, nil
		}
		if !isNotFound(err) {
			return nil, err
		}
	}
	return nil, nil
}

func (w *WebhookService) handleCardMoved(ctx context.Context, evt *Event, correlationID string) error {
	if evt.Data == nil {
		return &models.ValidationError{Field: "data", Reason: "missing"}
	}

	rfc, err := w.resolveRfc(ctx, evt)
	if err != nil {
		return err
	}
	if rfc == nil {
		w.logger.Warn("card_moved for unresolved card ignored", "correlation_id", correlationID, "card_id", evt.Data.CardID())
		return nil
	}

	listName := evt.Data.ListName()
	if listName == "" {
		if listID := evt.Data.ListID(); listID != "" {
			listName = w.boardSync.ListNameForID(ctx, listID)
		}
	}
	status, ok := StatusForListName(listName)
	if !ok {
		w.logger.Warn("card moved to unrecognized list, no status change", "correlation_id", correlationID, "rfc_id", rfc.ID, "list", listName)
		return nil
	}
	if status == rfc.Status {
		return nil
	}

	// A human moved the card, so the move is authoritative: it applies even
	// onto or out of a terminal status, and stamps the debounce timestamp so
	// the next scheduler pass does not immediately derive it back.
	now := time.Now()
	rfc.Status = status
	rfc.PlankaStatusChangedAt = &now

	actor := w.resolveActor(ctx, evt, rfc)
	snap, err := captureSnapshot(ctx, w.repo, rfc, models.OpStatusChange, actor)
	if err != nil {
		return err
	}
	if err := w.repo.UpdateRfcWithSnapshot(ctx, rfc, snap); err != nil {
		return fmt.Errorf("apply card_moved for rfc %d: %w", rfc.ID, err)
	}
	w.logger.Info("rfc status set from board move", "correlation_id", correlationID, "rfc_id", rfc.ID, "status", status)
	return nil
}

func (w *WebhookService) handleCardUpdated(ctx context.Context, evt *Event, correlationID string) error {
	if evt.Data == nil {
		return &models.ValidationError{Field: "data", Reason: "missing"}
	}

	rfc, err := w.resolveRfc(ctx, evt)
	if err != nil {
		return err
	}
	if rfc == nil {
		w.logger.Warn("card_updated for unresolved card ignored", "correlation_id", correlationID, "card_id", evt.Data.CardID())
		return nil
	}

	changed := false
	if name := evt.Data.CardName(); name != "" && name != rfc.Title {
		rfc.Title = name
		changed = true
	}
	if desc := evt.Data.CardDesc(); desc != "" && desc != rfc.Description {
		rfc.Description = desc
		changed = true
	}
	if raw := evt.Data.Urgency(); raw != "" {
		if urgency, err := models.ParseUrgency(raw); err != nil {
			w.logger.Warn("invalid urgency in card_updated skipped", "correlation_id", correlationID, "rfc_id", rfc.ID, "value", raw)
		} else if urgency != rfc.Urgency {
			rfc.Urgency = urgency
			changed = true
		}
	}
	if raw := evt.Data.DueDate(); raw != "" {
		if due, err := time.Parse(time.RFC3339, raw); err != nil {
			w.logger.Warn("invalid due date in card_updated skipped", "correlation_id", correlationID, "rfc_id", rfc.ID, "value", raw)
		} else if !due.Equal(rfc.ImplementationDate) {
			rfc.ImplementationDate = due
			changed = true
		}
	}
	if !changed {
		return nil
	}

	actor := w.resolveActor(ctx, evt, rfc)
	snap, err := captureSnapshot(ctx, w.repo, rfc, models.OpUpdate, actor)
	if err != nil {
		return err
	}
	if err := w.repo.UpdateRfcWithSnapshot(ctx, rfc, snap); err != nil {
		return fmt.Errorf("apply card_updated for rfc %d: %w", rfc.ID, err)
	}
	w.logger.Info("rfc fields patched from board update", "correlation_id", correlationID, "rfc_id", rfc.ID)
	return nil
}

// handleCardCreated binds a fresh board card to the RFC it references, or
// originates a new RFC for a card authored directly on the board.
func (w *WebhookService) handleCardCreated(ctx context.Context, evt *Event, correlationID string) error {
	if evt.Data == nil {
		return &models.ValidationError{Field: "data", Reason: "missing"}
	}
	cardID := evt.Data.CardID()
	if cardID == "" {
		return &models.ValidationError{Field: "data.item.id", Reason: "missing"}
	}

	if externalID := evt.Data.ExternalID(); externalID != 0 {
		rfc, err := w.repo.GetRfc(ctx, externalID)
		if err != nil {
			if isNotFound(err) {
				w.logger.Warn("card_created references unknown rfc", "correlation_id", correlationID, "external_rfc_id", externalID)
				return nil
			}
			return err
		}
		if rfc.PlankaCardID != nil && *rfc.PlankaCardID == cardID {
			return nil
		}
		rfc.PlankaCardID = &cardID
		if err := w.repo.UpdateRfc(ctx, rfc); err != nil {
			return fmt.Errorf("bind card %s to rfc %d: %w", cardID, rfc.ID, err)
		}
		w.logger.Info("board card bound to rfc", "correlation_id", correlationID, "rfc_id", rfc.ID, "card_id", cardID)
		return nil
	}

	// Board-authored card: originate a local RFC.
	if existing, err := w.repo.FindRfcByCardID(ctx, cardID); err == nil && existing != nil {
		return nil
	} else if err != nil && !isNotFound(err) {
		return err
	}

	status := models.StatusNew
	if listName := evt.Data.ListName(); listName != "" {
		if s, ok := StatusForListName(listName); ok {
			status = s
		}
	}

	actor := w.resolveActor(ctx, evt, nil)
	if actor == nil {
		w.logger.Warn("card_created without resolvable author ignored", "correlation_id", correlationID, "card_id", cardID)
		return nil
	}

	rfc := &models.Rfc{
		Title:              evt.Data.CardName(),
		Description:        evt.Data.CardDesc(),
		ImplementationDate: time.Now(),
		Urgency:            models.UrgencyPlanned,
		Status:             status,
		RequesterID:        *actor,
		PlankaCardID:       &cardID,
	}
	if rfc.Title == "" {
		rfc.Title = "Card " + cardID
	}
	snap := buildStatusSnapshot(rfc, actor)
	snap.Operation = models.OpCreate
	if err := w.repo.CreateRfcWithLinks(ctx, rfc, nil, snap); err != nil {
		return fmt.Errorf("originate rfc from card %s: %w", cardID, err)
	}
	w.logger.Info("rfc originated from board card", "correlation_id", correlationID, "rfc_id", rfc.ID, "card_id", cardID)
	return nil
}

// handleCardDeleted unbinds the card from its RFC. The RFC itself survives:
// deleting a board card is a projection change, not a workflow decision.
func (w *WebhookService) handleCardDeleted(ctx context.Context, evt *Event, correlationID string) error {
	if evt.Data == nil {
		return &models.ValidationError{Field: "data", Reason: "missing"}
	}

	rfc, err := w.resolveRfc(ctx, evt)
	if err != nil {
		return err
	}
	if rfc == nil {
		w.logger.Warn("card_deleted for unresolved card ignored", "correlation_id", correlationID, "card_id", evt.Data.CardID())
		return nil
	}

	rfc.PlankaCardID = nil
	rfc.PlankaStatusChangedAt = nil
	if err := w.repo.UpdateRfc(ctx, rfc); err != nil {
		return fmt.Errorf("unbind deleted card from rfc %d: %w", rfc.ID, err)
	}
	w.logger.Info("board card unbound from rfc", "correlation_id", correlationID, "rfc_id", rfc.ID)
	return nil
}

// resolveActor maps the board user in the event to a local user id, binding
// the board account to the local account on first match. Falls back to the
// RFC's requester when given, nil otherwise.
func (w *WebhookService) resolveActor(ctx context.Context, evt *Event, rfc *models.Rfc) *int64 {
	if evt.User != nil {
		if evt.User.ID != "" {
			if user, err := w.repo.FindUserByPlankaID(ctx, evt.User.ID); err == nil {
				return &user.ID
			}
		}
		var user *models.User
		if evt.User.Email != "" {
			if u, err := w.repo.FindUserByEmail(ctx, evt.User.Email); err == nil {
				user = u
			}
		}
		if user == nil && evt.User.Username != "" {
			if u, err := w.repo.FindUserByUsername(ctx, evt.User.Username); err == nil {
				user = u
			}
		}
		if user != nil {
			if evt.User.ID != "" && user.PlankaUserID == nil {
				user.PlankaUserID = &evt.User.ID
				if err := w.repo.UpdateUser(ctx, user); err != nil {
					w.logger.Warn("failed to bind board account to user", "user_id", user.ID, "error", err)
				}
			}
			return &user.ID
		}
	}
	if rfc != nil {
		return &rfc.RequesterID
	}
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, models.ErrNotFound)
}
