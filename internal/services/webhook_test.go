package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c21501/rfc-service/pkg/models"
)

func newTestWebhook(repo *fakeRepo, client *fakeBoardClient, secret string) *WebhookService {
	sync := newTestBoardSync(repo, client)
	return NewWebhookService(repo, sync, WebhookConfig{Secret: secret}, testLogger())
}

func movedEvent(cardID, listName string) *Event {
	return &Event{
		Event:     EventCardMoved,
		Timestamp: time.Now(),
		Data: &EventPayload{
			Item: map[string]interface{}{
				"id":       cardID,
				"listName": listName,
			},
		},
	}
}

func TestWebhookService_VerifySecret(t *testing.T) {
	svc := newTestWebhook(newFakeRepo(), newFakeBoardClient(), "s3cret")

	assert.NoError(t, svc.VerifySecret("s3cret"))
	assert.ErrorIs(t, svc.VerifySecret("wrong"), models.ErrAuthenticationFailed)
	assert.ErrorIs(t, svc.VerifySecret(""), models.ErrAuthenticationFailed)

	// Empty configured secret disables verification.
	open := newTestWebhook(newFakeRepo(), newFakeBoardClient(), "")
	assert.NoError(t, open.VerifySecret("anything"))
	assert.NoError(t, open.VerifySecret(""))
}

func TestWebhookService_CardMoved(t *testing.T) {
	ctx := context.Background()

	bindCard := func(repo *fakeRepo, rfc *models.Rfc, cardID string) {
		rfc.PlankaCardID = &cardID
		require.NoError(t, repo.UpdateRfc(ctx, rfc))
	}

	t.Run("list name maps to status", func(t *testing.T) {
		repo := newFakeRepo()
		svc := newTestWebhook(repo, newFakeBoardClient(), "")

		requester := repo.mustUser(models.RoleRequester)
		rfc := repo.mustRfc(models.StatusNew, requester.ID)
		bindCard(repo, rfc, "card-1")

		require.NoError(t, svc.HandleEvent(ctx, movedEvent("card-1", "На рассмотрении")))

		stored, err := repo.GetRfc(ctx, rfc.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusUnderReview, stored.Status)
		assert.NotNil(t, stored.PlankaStatusChangedAt)

		snaps, err := repo.ListSnapshotsByRfc(ctx, rfc.ID)
		require.NoError(t, err)
		require.Len(t, snaps, 1)
		assert.Equal(t, models.OpStatusChange, snaps[0].Operation)
	})

	t.Run("human move overrides a settled status", func(t *testing.T) {
		repo := newFakeRepo()
		svc := newTestWebhook(repo, newFakeBoardClient(), "")

		requester := repo.mustUser(models.RoleRequester)
		rfc := repo.mustRfc(models.StatusApproved, requester.ID)
		bindCard(repo, rfc, "card-2")

		require.NoError(t, svc.HandleEvent(ctx, movedEvent("card-2", "Отклонено")))

		stored, err := repo.GetRfc(ctx, rfc.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusRejected, stored.Status)
	})

	t.Run("move out of a terminal status is honored", func(t *testing.T) {
		repo := newFakeRepo()
		svc := newTestWebhook(repo, newFakeBoardClient(), "")

		requester := repo.mustUser(models.RoleRequester)
		rfc := repo.mustRfc(models.StatusImplemented, requester.ID)
		bindCard(repo, rfc, "card-3")

		require.NoError(t, svc.HandleEvent(ctx, movedEvent("card-3", "Under Review")))

		stored, err := repo.GetRfc(ctx, rfc.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusUnderReview, stored.Status)
	})

	t.Run("unrecognized list is a no-op", func(t *testing.T) {
		repo := newFakeRepo()
		svc := newTestWebhook(repo, newFakeBoardClient(), "")

		requester := repo.mustUser(models.RoleRequester)
		rfc := repo.mustRfc(models.StatusNew, requester.ID)
		bindCard(repo, rfc, "card-4")

		require.NoError(t, svc.HandleEvent(ctx, movedEvent("card-4", "Random Column")))

		stored, err := repo.GetRfc(ctx, rfc.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusNew, stored.Status)
		assert.Nil(t, stored.PlankaStatusChangedAt)
	})

	t.Run("unresolved card is a no-op", func(t *testing.T) {
		repo := newFakeRepo()
		svc := newTestWebhook(repo, newFakeBoardClient(), "")
		assert.NoError(t, svc.HandleEvent(ctx, movedEvent("ghost", "Done")))
	})

	t.Run("resolution falls back to external rfc id", func(t *testing.T) {
		repo := newFakeRepo()
		svc := newTestWebhook(repo, newFakeBoardClient(), "")

		requester := repo.mustUser(models.RoleRequester)
		rfc := repo.mustRfc(models.StatusNew, requester.ID)

		evt := movedEvent("unbound-card", "Approved")
		evt.Data.RfcData = &RfcData{ExternalRfcID: rfc.ID}
		require.NoError(t, svc.HandleEvent(ctx, evt))

		stored, err := repo.GetRfc(ctx, rfc.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusApproved, stored.Status)
	})

	t.Run("rfc_status_changed behaves as card_moved", func(t *testing.T) {
		repo := newFakeRepo()
		svc := newTestWebhook(repo, newFakeBoardClient(), "")

		requester := repo.mustUser(models.RoleRequester)
		rfc := repo.mustRfc(models.StatusNew, requester.ID)
		bindCard(repo, rfc, "card-5")

		evt := movedEvent("card-5", "Implemented")
		evt.Event = EventRfcStatusChanged
		require.NoError(t, svc.HandleEvent(ctx, evt))

		stored, err := repo.GetRfc(ctx, rfc.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusImplemented, stored.Status)
	})
}

func TestWebhookService_CardUpdated(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	svc := newTestWebhook(repo, newFakeBoardClient(), "")

	requester := repo.mustUser(models.RoleRequester)
	rfc := repo.mustRfc(models.StatusNew, requester.ID)
	cardID := "card-u"
	rfc.PlankaCardID = &cardID
	require.NoError(t, repo.UpdateRfc(ctx, rfc))

	evt := &Event{
		Event: EventCardUpdated,
		Data: &EventPayload{
			Item: map[string]interface{}{
				"id":          "card-u",
				"name":        "Renamed on board",
				"description": "New description",
				"urgency":     "NOT_AN_URGENCY",
			},
		},
	}
	require.NoError(t, svc.HandleEvent(ctx, evt))

	stored, err := repo.GetRfc(ctx, rfc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed on board", stored.Title)
	assert.Equal(t, "New description", stored.Description)
	// Invalid enum value is skipped, not fatal.
	assert.Equal(t, models.UrgencyPlanned, stored.Urgency)

	snaps, err := repo.ListSnapshotsByRfc(ctx, rfc.ID)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, models.OpUpdate, snaps[0].Operation)
}

func TestWebhookService_CardCreated(t *testing.T) {
	ctx := context.Background()

	t.Run("binds the card to the referenced rfc", func(t *testing.T) {
		repo := newFakeRepo()
		svc := newTestWebhook(repo, newFakeBoardClient(), "")

		requester := repo.mustUser(models.RoleRequester)
		rfc := repo.mustRfc(models.StatusNew, requester.ID)

		evt := &Event{
			Event: EventCardCreated,
			Data: &EventPayload{
				Item:    map[string]interface{}{"id": "card-new"},
				RfcData: &RfcData{ExternalRfcID: rfc.ID},
			},
		}
		require.NoError(t, svc.HandleEvent(ctx, evt))

		stored, err := repo.GetRfc(ctx, rfc.ID)
		require.NoError(t, err)
		require.NotNil(t, stored.PlankaCardID)
		assert.Equal(t, "card-new", *stored.PlankaCardID)
	})

	t.Run("originates an rfc for a board-authored card", func(t *testing.T) {
		repo := newFakeRepo()
		svc := newTestWebhook(repo, newFakeBoardClient(), "")

		plankaID := "pl-7"
		author := repo.mustUser(models.RoleRequester)
		author.PlankaUserID = &plankaID
		require.NoError(t, repo.UpdateUser(ctx, author))

		evt := &Event{
			Event: EventCardCreated,
			Data: &EventPayload{
				Item: map[string]interface{}{
					"id":       "card-board",
					"name":     "Board-born change",
					"listName": "Review",
				},
			},
			User: &EventUser{ID: plankaID},
		}
		require.NoError(t, svc.HandleEvent(ctx, evt))

		rfc, err := repo.FindRfcByCardID(ctx, "card-board")
		require.NoError(t, err)
		assert.Equal(t, "Board-born change", rfc.Title)
		assert.Equal(t, models.StatusUnderReview, rfc.Status)
		assert.Equal(t, author.ID, rfc.RequesterID)
	})

	t.Run("duplicate card_created is idempotent", func(t *testing.T) {
		repo := newFakeRepo()
		svc := newTestWebhook(repo, newFakeBoardClient(), "")

		plankaID := "pl-8"
		author := repo.mustUser(models.RoleRequester)
		author.PlankaUserID = &plankaID
		require.NoError(t, repo.UpdateUser(ctx, author))

		evt := &Event{
			Event: EventCardCreated,
			Data: &EventPayload{
				Item: map[string]interface{}{"id": "card-dup", "name": "Once"},
			},
			User: &EventUser{ID: plankaID},
		}
		require.NoError(t, svc.HandleEvent(ctx, evt))
		require.NoError(t, svc.HandleEvent(ctx, evt))

		rfcs, err := repo.ListActiveRfcs(ctx)
		require.NoError(t, err)
		assert.Len(t, rfcs, 1)
	})
}

func TestWebhookService_CardDeleted(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	svc := newTestWebhook(repo, newFakeBoardClient(), "")

	requester := repo.mustUser(models.RoleRequester)
	rfc := repo.mustRfc(models.StatusApproved, requester.ID)
	cardID := "card-gone"
	rfc.PlankaCardID = &cardID
	require.NoError(t, repo.UpdateRfc(ctx, rfc))

	evt := &Event{
		Event: EventCardDeleted,
		Data:  &EventPayload{Item: map[string]interface{}{"id": "card-gone"}},
	}
	require.NoError(t, svc.HandleEvent(ctx, evt))

	stored, err := repo.GetRfc(ctx, rfc.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.PlankaCardID)
	// The workflow record itself survives.
	assert.Equal(t, models.StatusApproved, stored.Status)
}

func TestWebhookService_UnknownEvent(t *testing.T) {
	svc := newTestWebhook(newFakeRepo(), newFakeBoardClient(), "")
	evt := &Event{Event: "board_repainted"}
	assert.NoError(t, svc.HandleEvent(context.Background(), evt))
}

func TestWebhookService_ActorBinding(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	svc := newTestWebhook(repo, newFakeBoardClient(), "")

	user := repo.mustUser(models.RoleRequester)
	user.Email = "board.user@example.com"
	require.NoError(t, repo.UpdateUser(ctx, user))

	rfc := repo.mustRfc(models.StatusNew, user.ID)
	cardID := "card-actor"
	rfc.PlankaCardID = &cardID
	require.NoError(t, repo.UpdateRfc(ctx, rfc))

	evt := movedEvent("card-actor", "Approved")
	evt.User = &EventUser{ID: "pl-99", Email: "board.user@example.com"}
	require.NoError(t, svc.HandleEvent(ctx, evt))

	// First event by this board identity binds it to the local account.
	bound, err := repo.FindUserByPlankaID(ctx, "pl-99")
	require.NoError(t, err)
	assert.Equal(t, user.ID, bound.ID)
}
