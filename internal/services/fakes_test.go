package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/c21501/rfc-service/internal/logging"
	"github.com/c21501/rfc-service/internal/planka"
	"github.com/c21501/rfc-service/internal/repository"
	"github.com/c21501/rfc-service/pkg/models"
)

// fakeRepo is an in-memory Repository for service tests.
type fakeRepo struct {
	mu sync.Mutex

	nextID      int64
	rfcs        map[int64]*models.Rfc
	links       map[int64]*models.AffectedSubsystem
	approvals   map[int64]*models.Approval
	snapshots   []*models.RfcSnapshot
	changes     []*models.StatusChange
	users       map[int64]*models.User
	subsystems  map[int64]*models.Subsystem
	attachments map[int64]*models.Attachment
	attByRfc    map[int64][]int64
}

var _ repository.Repository = (*fakeRepo)(nil)

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		rfcs:        map[int64]*models.Rfc{},
		links:       map[int64]*models.AffectedSubsystem{},
		approvals:   map[int64]*models.Approval{},
		users:       map[int64]*models.User{},
		subsystems:  map[int64]*models.Subsystem{},
		attachments: map[int64]*models.Attachment{},
		attByRfc:    map[int64][]int64{},
	}
}

func (f *fakeRepo) id() int64 {
	f.nextID++
	return f.nextID
}

func (f *fakeRepo) CreateRfc(ctx context.Context, rfc *models.Rfc) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rfc.ID = f.id()
	rfc.CreatedAt = time.Now()
	rfc.UpdatedAt = rfc.CreatedAt
	clone := *rfc
	f.rfcs[rfc.ID] = &clone
	return nil
}

func (f *fakeRepo) CreateRfcWithLinks(ctx context.Context, rfc *models.Rfc, links []*models.AffectedSubsystem, snap *models.RfcSnapshot) error {
	if err := f.CreateRfc(ctx, rfc); err != nil {
		return err
	}
	for _, link := range links {
		link.RfcID = rfc.ID
		if err := f.CreateLink(ctx, link); err != nil {
			return err
		}
		snap.SubsystemLinkIDs = append(snap.SubsystemLinkIDs, link.ID)
	}
	snap.RfcID = rfc.ID
	return f.AppendSnapshot(ctx, snap)
}

func (f *fakeRepo) GetRfc(ctx context.Context, id int64) (*models.Rfc, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rfc, ok := f.rfcs[id]
	if !ok || rfc.DeletedAt != nil {
		return nil, models.ErrNotFound
	}
	clone := *rfc
	return &clone, nil
}

func (f *fakeRepo) ListActiveRfcs(ctx context.Context) ([]*models.Rfc, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Rfc
	for _, rfc := range f.rfcs {
		if rfc.DeletedAt == nil {
			clone := *rfc
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (f *fakeRepo) UpdateRfc(ctx context.Context, rfc *models.Rfc) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rfcs[rfc.ID]; !ok {
		return models.ErrNotFound
	}
	rfc.UpdatedAt = time.Now()
	clone := *rfc
	f.rfcs[rfc.ID] = &clone
	return nil
}

func (f *fakeRepo) FindRfcByCardID(ctx context.Context, cardID string) (*models.Rfc, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rfc := range f.rfcs {
		if rfc.DeletedAt == nil && rfc.PlankaCardID != nil && *rfc.PlankaCardID == cardID {
			clone := *rfc
			return &clone, nil
		}
	}
	return nil, models.ErrNotFound
}

func (f *fakeRepo) SoftDeleteRfc(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rfc, ok := f.rfcs[id]
	if !ok || rfc.DeletedAt != nil {
		return models.ErrNotFound
	}
	now := time.Now()
	rfc.DeletedAt = &now
	return nil
}

func (f *fakeRepo) UpdateRfcWithSnapshot(ctx context.Context, rfc *models.Rfc, snap *models.RfcSnapshot) error {
	if err := f.UpdateRfc(ctx, rfc); err != nil {
		return err
	}
	return f.AppendSnapshot(ctx, snap)
}

func (f *fakeRepo) CreateLink(ctx context.Context, link *models.AffectedSubsystem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	link.ID = f.id()
	clone := *link
	f.links[link.ID] = &clone
	return nil
}

func (f *fakeRepo) GetLink(ctx context.Context, rfcID, linkID int64) (*models.AffectedSubsystem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	link, ok := f.links[linkID]
	if !ok || link.RfcID != rfcID {
		return nil, models.ErrNotFound
	}
	clone := *link
	return &clone, nil
}

func (f *fakeRepo) ListLinksByRfc(ctx context.Context, rfcID int64) ([]*models.AffectedSubsystem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.AffectedSubsystem
	for _, link := range f.links {
		if link.RfcID == rfcID {
			clone := *link
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (f *fakeRepo) UpdateLinkStatus(ctx context.Context, link *models.AffectedSubsystem, change *models.StatusChange) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.links[link.ID]; !ok {
		return models.ErrNotFound
	}
	clone := *link
	f.links[link.ID] = &clone
	change.ID = f.id()
	change.CreatedAt = time.Now()
	f.changes = append(f.changes, change)
	return nil
}

func (f *fakeRepo) GetSubsystemsByIDs(ctx context.Context, ids []int64) (map[int64]*models.Subsystem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[int64]*models.Subsystem{}
	for _, id := range ids {
		if sub, ok := f.subsystems[id]; ok {
			out[id] = sub
		}
	}
	return out, nil
}

func (f *fakeRepo) CreateSubsystem(ctx context.Context, sub *models.Subsystem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub.ID = f.id()
	f.subsystems[sub.ID] = sub
	return nil
}

func (f *fakeRepo) UpsertApproval(ctx context.Context, approval *models.Approval) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.approvals {
		if a.RfcID == approval.RfcID && a.ApproverID == approval.ApproverID {
			a.Approved = approval.Approved
			a.Comment = approval.Comment
			a.UpdatedAt = time.Now()
			*approval = *a
			return nil
		}
	}
	approval.ID = f.id()
	approval.CreatedAt = time.Now()
	approval.UpdatedAt = approval.CreatedAt
	clone := *approval
	f.approvals[approval.ID] = &clone
	return nil
}

func (f *fakeRepo) ListApprovalsByRfc(ctx context.Context, rfcID int64) ([]*models.Approval, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Approval
	for _, a := range f.approvals {
		if a.RfcID == rfcID {
			clone := *a
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (f *fakeRepo) AppendSnapshot(ctx context.Context, snap *models.RfcSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap.ID = f.id()
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now()
	}
	clone := *snap
	f.snapshots = append(f.snapshots, &clone)
	return nil
}

func (f *fakeRepo) ListSnapshotsByRfc(ctx context.Context, rfcID int64) ([]*models.RfcSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.RfcSnapshot
	for _, snap := range f.snapshots {
		if snap.RfcID == rfcID {
			clone := *snap
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (f *fakeRepo) ListStatusChangesByLinks(ctx context.Context, linkIDs []int64) ([]*models.StatusChange, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := map[int64]struct{}{}
	for _, id := range linkIDs {
		ids[id] = struct{}{}
	}
	var out []*models.StatusChange
	for _, c := range f.changes {
		if _, ok := ids[c.SubsystemLinkID]; ok {
			clone := *c
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (f *fakeRepo) CreateUser(ctx context.Context, user *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user.ID = f.id()
	clone := *user
	f.users[user.ID] = &clone
	return nil
}

func (f *fakeRepo) GetUser(ctx context.Context, id int64) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	clone := *user
	return &clone, nil
}

func (f *fakeRepo) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if strings.EqualFold(user.Email, email) {
			clone := *user
			return &clone, nil
		}
	}
	return nil, models.ErrNotFound
}

func (f *fakeRepo) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if user.Username == username {
			clone := *user
			return &clone, nil
		}
	}
	return nil, models.ErrNotFound
}

func (f *fakeRepo) FindUserByPlankaID(ctx context.Context, plankaUserID string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if user.PlankaUserID != nil && *user.PlankaUserID == plankaUserID {
			clone := *user
			return &clone, nil
		}
	}
	return nil, models.ErrNotFound
}

func (f *fakeRepo) ListUsersByRole(ctx context.Context, role models.UserRole) ([]*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.User
	for _, user := range f.users {
		if user.Role == role {
			clone := *user
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (f *fakeRepo) UpdateUser(ctx context.Context, user *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[user.ID]; !ok {
		return models.ErrNotFound
	}
	clone := *user
	f.users[user.ID] = &clone
	return nil
}

func (f *fakeRepo) GetAttachmentsByIDs(ctx context.Context, ids []int64) (map[int64]*models.Attachment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[int64]*models.Attachment{}
	for _, id := range ids {
		if att, ok := f.attachments[id]; ok {
			out[id] = att
		}
	}
	return out, nil
}

func (f *fakeRepo) ListAttachmentIDsByRfc(ctx context.Context, rfcID int64) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.attByRfc[rfcID]...), nil
}

// helpers

func (f *fakeRepo) mustUser(role models.UserRole) *models.User {
	user := &models.User{
		Username:  "user",
		Email:     "user@example.com",
		FirstName: "Test",
		LastName:  string(role),
		Role:      role,
	}
	_ = f.CreateUser(context.Background(), user)
	return user
}

func (f *fakeRepo) mustRfc(status models.RfcStatus, requesterID int64) *models.Rfc {
	rfc := &models.Rfc{
		Title:              "test rfc",
		Description:        "description",
		ImplementationDate: time.Now().AddDate(0, 0, 7),
		Urgency:            models.UrgencyPlanned,
		Status:             status,
		RequesterID:        requesterID,
	}
	_ = f.CreateRfc(context.Background(), rfc)
	return rfc
}

func (f *fakeRepo) mustLink(rfcID, executorID int64, conf models.ConfirmationStatus, exec models.ExecutionStatus) *models.AffectedSubsystem {
	link := &models.AffectedSubsystem{
		RfcID:              rfcID,
		SubsystemID:        1,
		ExecutorID:         executorID,
		ConfirmationStatus: conf,
		ExecutionStatus:    exec,
	}
	_ = f.CreateLink(context.Background(), link)
	return link
}

func testLogger() *logging.Logger {
	return logging.NewLogger()
}

// fakeBoardClient records the calls BoardSync makes and plays back a fixed
// board layout.
type fakeBoardClient struct {
	lists []planka.BoardList

	created map[string]string // cardID -> listID
	moved   map[string]string // cardID -> listID
	updated []string
	deleted []string
	nextID  int
	fail    bool
}

var _ BoardClient = (*fakeBoardClient)(nil)

func newFakeBoardClient(listNames ...string) *fakeBoardClient {
	c := &fakeBoardClient{
		created: map[string]string{},
		moved:   map[string]string{},
	}
	for i, name := range listNames {
		c.lists = append(c.lists, planka.BoardList{ID: "list-" + string(rune('a'+i)), Name: name})
	}
	return c
}

func (c *fakeBoardClient) CreateCard(ctx context.Context, listID string, req *planka.CardRequest) *planka.Card {
	if c.fail {
		return nil
	}
	c.nextID++
	id := "card-" + string(rune('0'+c.nextID))
	c.created[id] = listID
	return &planka.Card{ID: id, Name: req.Name, ListID: listID}
}

func (c *fakeBoardClient) UpdateCard(ctx context.Context, cardID string, req *planka.CardRequest) *planka.Card {
	if c.fail {
		return nil
	}
	c.updated = append(c.updated, cardID)
	return &planka.Card{ID: cardID, Name: req.Name}
}

func (c *fakeBoardClient) MoveCard(ctx context.Context, cardID, targetListID string, position *float64) *planka.Card {
	if c.fail {
		return nil
	}
	c.moved[cardID] = targetListID
	return &planka.Card{ID: cardID, ListID: targetListID}
}

func (c *fakeBoardClient) DeleteCard(ctx context.Context, cardID string) bool {
	if c.fail {
		return false
	}
	c.deleted = append(c.deleted, cardID)
	return true
}

func (c *fakeBoardClient) BoardLists(ctx context.Context, boardID string) []planka.BoardList {
	if c.fail {
		return nil
	}
	return c.lists
}
