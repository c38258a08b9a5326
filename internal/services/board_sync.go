package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/c21501/rfc-service/internal/logging"
	"github.com/c21501/rfc-service/internal/planka"
	"github.com/c21501/rfc-service/internal/repository"
	"github.com/c21501/rfc-service/pkg/models"
)

// BoardClient is the Planka API surface BoardSync needs. *planka.Client
// satisfies it; tests substitute a fake.
type BoardClient interface {
	CreateCard(ctx context.Context, listID string, req *planka.CardRequest) *planka.Card
	UpdateCard(ctx context.Context, cardID string, req *planka.CardRequest) *planka.Card
	MoveCard(ctx context.Context, cardID, targetListID string, position *float64) *planka.Card
	DeleteCard(ctx context.Context, cardID string) bool
	BoardLists(ctx context.Context, boardID string) []planka.BoardList
}

// statusListNames maps each RFC status to the list names that represent it on
// the board, in lookup priority order. Boards are configured by humans in
// Russian or English, so both vocabularies are accepted; the first name that
// exists on the board wins. Changing these breaks interoperability with
// deployed boards.
var statusListNames = map[models.RfcStatus][]string{
	models.StatusNew:         {"Новый", "Новые", "New", "Новые запросы", "New Requests", "Backlog"},
	models.StatusUnderReview: {"На рассмотрении", "Under Review", "Review", "In Review"},
	models.StatusApproved:    {"Одобрен", "Утверждено", "Approved", "Ready"},
	models.StatusImplemented: {"Внедрен", "Выполнено", "Implemented", "Done", "Completed"},
	models.StatusRejected:    {"Отклонен", "Отклонено", "Rejected", "Cancelled"},
}

// listNameStatus is the inverse mapping, keyed by lowercased list name.
var listNameStatus = func() map[string]models.RfcStatus {
	m := make(map[string]models.RfcStatus)
	for status, names := range statusListNames {
		for _, name := range names {
			m[strings.ToLower(name)] = status
		}
	}
	return m
}()

// StatusForListName resolves a board list's display name to an RFC status.
func StatusForListName(name string) (models.RfcStatus, bool) {
	status, ok := listNameStatus[strings.ToLower(strings.TrimSpace(name))]
	return status, ok
}

// BoardSyncConfig carries the board integration settings.
type BoardSyncConfig struct {
	Enabled bool
	BoardID string
}

// BoardSync pushes RFC state to the kanban board. All of its operations are
// best effort: a failed board call is logged and reported, never escalated
// into a failure of the workflow mutation that triggered it.
type BoardSync struct {
	client BoardClient
	repo   repository.Repository
	cfg    BoardSyncConfig
	logger *logging.Logger
}

// NewBoardSync creates a new BoardSync.
func NewBoardSync(client BoardClient, repo repository.Repository, cfg BoardSyncConfig, logger *logging.Logger) *BoardSync {
	return &BoardSync{client: client, repo: repo, cfg: cfg, logger: logger}
}

// Enabled reports whether the integration is switched on.
func (b *BoardSync) Enabled() bool {
	return b.cfg.Enabled && b.cfg.BoardID != ""
}

// FindListIDForStatus returns the id of the first board list whose name is an
// accepted synonym for the status, or "" when the board has no such list.
// Absence is not an error; callers log and skip.
func (b *BoardSync) FindListIDForStatus(ctx context.Context, status models.RfcStatus) string {
	lists := b.client.BoardLists(ctx, b.cfg.BoardID)
	if len(lists) == 0 {
		return ""
	}
	for _, name := range statusListNames[status] {
		for _, list := range lists {
			if strings.EqualFold(list.Name, name) {
				return list.ID
			}
		}
	}
	return ""
}

// ListNameForID resolves a list id to its display name via the board's list
// collection. Returns "" when unknown.
func (b *BoardSync) ListNameForID(ctx context.Context, listID string) string {
	for _, list := range b.client.BoardLists(ctx, b.cfg.BoardID) {
		if list.ID == listID {
			return list.Name
		}
	}
	return ""
}

// SyncRfc projects the RFC onto the board. Without a bound card it creates
// one in the list matching the current status and persists the card id; with
// a bound card it updates the fields and separately moves the card, since
// card creation does not guarantee placement in the correct list.
func (b *BoardSync) SyncRfc(ctx context.Context, rfc *models.Rfc) error {
	if !b.Enabled() {
		return nil
	}

	if rfc.PlankaCardID != nil {
		card := b.client.UpdateCard(ctx, *rfc.PlankaCardID, b.buildCardRequest(ctx, rfc))
		if card == nil {
			return fmt.Errorf("update card %s for rfc %d failed", *rfc.PlankaCardID, rfc.ID)
		}
		return b.MoveCardForStatus(ctx, rfc)
	}

	listID := b.FindListIDForStatus(ctx, rfc.Status)
	if listID == "" {
		return fmt.Errorf("no board list matches status %s", rfc.Status)
	}

	card := b.client.CreateCard(ctx, listID, b.buildCardRequest(ctx, rfc))
	if card == nil {
		return fmt.Errorf("create card for rfc %d failed", rfc.ID)
	}

	rfc.PlankaCardID = &card.ID
	if err := b.repo.UpdateRfc(ctx, rfc); err != nil {
		return fmt.Errorf("persist card id for rfc %d: %w", rfc.ID, err)
	}

	b.logger.Info("rfc card created on board", "rfc_id", rfc.ID, "card_id", card.ID)
	return nil
}

// MoveCardForStatus moves the RFC's bound card to the list matching its
// current status.
func (b *BoardSync) MoveCardForStatus(ctx context.Context, rfc *models.Rfc) error {
	if !b.Enabled() || rfc.PlankaCardID == nil {
		return nil
	}

	listID := b.FindListIDForStatus(ctx, rfc.Status)
	if listID == "" {
		b.logger.Warn("no board list matches status, card not moved", "rfc_id", rfc.ID, "status", rfc.Status)
		return nil
	}
	if card := b.client.MoveCard(ctx, *rfc.PlankaCardID, listID, nil); card == nil {
		return fmt.Errorf("move card %s for rfc %d failed", *rfc.PlankaCardID, rfc.ID)
	}
	return nil
}

// DeleteCard removes the RFC's bound card from the board.
func (b *BoardSync) DeleteCard(ctx context.Context, rfc *models.Rfc) {
	if !b.Enabled() || rfc.PlankaCardID == nil {
		return
	}
	if !b.client.DeleteCard(ctx, *rfc.PlankaCardID) {
		b.logger.Warn("failed to delete board card", "rfc_id", rfc.ID, "card_id", *rfc.PlankaCardID)
	}
}

// buildCardRequest renders the RFC into a card body: title verbatim, the
// description followed by a metadata block and the affected subsystem list.
func (b *BoardSync) buildCardRequest(ctx context.Context, rfc *models.Rfc) *planka.CardRequest {
	var sb strings.Builder
	if rfc.Description != "" {
		sb.WriteString(rfc.Description)
		sb.WriteString("\n\n")
	}
	sb.WriteString("---\n")
	fmt.Fprintf(&sb, "**RFC ID:** %d\n", rfc.ID)
	fmt.Fprintf(&sb, "**Статус:** %s\n", rfc.Status)
	fmt.Fprintf(&sb, "**Срочность:** %s\n", rfc.Urgency)
	fmt.Fprintf(&sb, "**Дата внедрения:** %s\n", rfc.ImplementationDate.Format("2006-01-02"))

	if links, err := b.repo.ListLinksByRfc(ctx, rfc.ID); err == nil && len(links) > 0 {
		subIDs := make([]int64, 0, len(links))
		for _, link := range links {
			subIDs = append(subIDs, link.SubsystemID)
		}
		subs, _ := b.repo.GetSubsystemsByIDs(ctx, subIDs)

		sb.WriteString("\n**Затронутые системы:**\n")
		for _, link := range links {
			if sub, ok := subs[link.SubsystemID]; ok {
				fmt.Fprintf(&sb, "- %s / %s", sub.SystemName, sub.Name)
			} else {
				fmt.Fprintf(&sb, "- подсистема %d", link.SubsystemID)
			}
			if executor, err := b.repo.GetUser(ctx, link.ExecutorID); err == nil {
				fmt.Fprintf(&sb, " (%s)", executor.FullName())
			}
			sb.WriteString("\n")
		}
	}

	return &planka.CardRequest{
		Name:        rfc.Title,
		Description: sb.String(),
		Position:    planka.DefaultCardPosition,
		Type:        "project",
	}
}
