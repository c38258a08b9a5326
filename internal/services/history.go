package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/c21501/rfc-service/internal/logging"
	"github.com/c21501/rfc-service/internal/repository"
	"github.com/c21501/rfc-service/pkg/models"
)

// HistoryEventType classifies one entry of the unified audit timeline.
type HistoryEventType string

const (
	EventFieldsChanged         HistoryEventType = "FIELDS_CHANGED"
	EventAttachmentsChanged    HistoryEventType = "ATTACHMENTS_CHANGED"
	EventSubsystemsChanged     HistoryEventType = "SUBSYSTEMS_CHANGED"
	EventSubsystemStatusChange HistoryEventType = "SUBSYSTEM_STATUS_CHANGED"
)

// FieldDiff is one scalar field change. OldValue is nil on the creation
// event.
type FieldDiff struct {
	Field    string  `json:"field"`
	OldValue *string `json:"old_value"`
	NewValue *string `json:"new_value"`
}

// HistoryEvent is one entry of the reconstructed timeline. Only the fields
// relevant to its type are populated.
type HistoryEvent struct {
	Type      HistoryEventType `json:"type"`
	Timestamp time.Time        `json:"timestamp"`
	ChangedBy string           `json:"changed_by,omitempty"`

	Fields []FieldDiff `json:"fields,omitempty"`

	Added   []string `json:"added,omitempty"`
	Removed []string `json:"removed,omitempty"`

	SubsystemName string `json:"subsystem_name,omitempty"`
	SystemName    string `json:"system_name,omitempty"`
	ExecutorName  string `json:"executor_name,omitempty"`
	Axis          string `json:"axis,omitempty"`
	OldStatus     string `json:"old_status,omitempty"`
	NewStatus     string `json:"new_status,omitempty"`
}

// HistoryPage is one page of the timeline, newest first.
type HistoryPage struct {
	Events []*HistoryEvent `json:"events"`
	Total  int             `json:"total"`
	Offset int             `json:"offset"`
	Limit  int             `json:"limit"`
}

// HistoryService rebuilds an RFC's audit timeline from its snapshot and
// status-change records. Snapshots are diffed pairwise along three
// independent axes; subsystem status transitions are merged in as separate
// events. The merge happens in memory, so pagination is applied to the sorted
// result rather than pushed into the stores.
type HistoryService struct {
	repo   repository.Repository
	logger *logging.Logger
}

// NewHistoryService creates a history service.
func NewHistoryService(repo repository.Repository, logger *logging.Logger) *HistoryService {
	return &HistoryService{repo: repo, logger: logger}
}

// GetRfcHistory returns one page of the RFC's reconstructed timeline.
func (h *HistoryService) GetRfcHistory(ctx context.Context, rfcID int64, offset, limit int) (*HistoryPage, error) {
	if _, err := h.repo.GetRfc(ctx, rfcID); err != nil {
		return nil, err
	}

	snaps, err := h.repo.ListSnapshotsByRfc(ctx, rfcID)
	if err != nil {
		return nil, err
	}

	linkIDs := map[int64]struct{}{}
	attachmentIDs := map[int64]struct{}{}
	for _, snap := range snaps {
		for _, id := range snap.SubsystemLinkIDs {
			linkIDs[id] = struct{}{}
		}
		for _, id := range snap.AttachmentIDs {
			attachmentIDs[id] = struct{}{}
		}
	}

	changes, err := h.repo.ListStatusChangesByLinks(ctx, keys(linkIDs))
	if err != nil {
		return nil, err
	}

	res := newHistoryResolver(ctx, h.repo, rfcID)
	res.loadAttachments(keys(attachmentIDs))

	var events []*HistoryEvent
	for i, snap := range snaps {
		var prev *models.RfcSnapshot
		if i > 0 {
			prev = snaps[i-1]
		}
		events = append(events, diffSnapshots(prev, snap, res)...)
	}
	for _, change := range changes {
		events = append(events, res.statusChangeEvent(change))
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.After(events[j].Timestamp)
	})

	total := len(events)
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}

	return &HistoryPage{Events: events[offset:end], Total: total, Offset: offset, Limit: limit}, nil
}

// diffSnapshots synthesizes up to three events between two consecutive
// snapshots: scalar fields, attachment set, subsystem set. A nil prev is the
// creation snapshot: it yields exactly one fields event with nil old values,
// and the sets it carries are initial state, not changes.
func diffSnapshots(prev, snap *models.RfcSnapshot, res *historyResolver) []*HistoryEvent {
	var events []*HistoryEvent

	fields := diffScalarFields(prev, snap)
	if len(fields) > 0 {
		events = append(events, &HistoryEvent{
			Type:      EventFieldsChanged,
			Timestamp: snap.CreatedAt,
			ChangedBy: res.userName(snap.ChangedByID),
			Fields:    fields,
		})
	}
	if prev == nil {
		return events
	}

	if added, removed := diffIDSets(prev.AttachmentIDs, snap.AttachmentIDs); len(added)+len(removed) > 0 {
		events = append(events, &HistoryEvent{
			Type:      EventAttachmentsChanged,
			Timestamp: snap.CreatedAt,
			ChangedBy: res.userName(snap.ChangedByID),
			Added:     res.attachmentNames(added),
			Removed:   res.attachmentNames(removed),
		})
	}
	if added, removed := diffIDSets(prev.SubsystemLinkIDs, snap.SubsystemLinkIDs); len(added)+len(removed) > 0 {
		events = append(events, &HistoryEvent{
			Type:      EventSubsystemsChanged,
			Timestamp: snap.CreatedAt,
			ChangedBy: res.userName(snap.ChangedByID),
			Added:     res.subsystemNames(added),
			Removed:   res.subsystemNames(removed),
		})
	}
	return events
}

// diffScalarFields compares the tracked scalar fields. With a nil prev every
// field is reported with a nil old value.
func diffScalarFields(prev, snap *models.RfcSnapshot) []FieldDiff {
	var diffs []FieldDiff
	add := func(field string, oldVal, newVal *string) {
		if oldVal == nil || *oldVal != *newVal {
			diffs = append(diffs, FieldDiff{Field: field, OldValue: oldVal, NewValue: newVal})
		}
	}

	var oldTitle, oldDesc, oldDate, oldUrgency, oldStatus *string
	if prev != nil {
		oldTitle = strPtr(prev.Title)
		oldDesc = strPtr(prev.Description)
		oldDate = strPtr(prev.ImplementationDate.Format("2006-01-02"))
		oldUrgency = strPtr(string(prev.Urgency))
		oldStatus = strPtr(string(prev.Status))
	}
	add("title", oldTitle, strPtr(snap.Title))
	add("description", oldDesc, strPtr(snap.Description))
	add("implementation_date", oldDate, strPtr(snap.ImplementationDate.Format("2006-01-02")))
	add("urgency", oldUrgency, strPtr(string(snap.Urgency)))
	add("status", oldStatus, strPtr(string(snap.Status)))
	return diffs
}

// diffIDSets returns the ids present only in next (added) and only in prev
// (removed), each sorted ascending.
func diffIDSets(prev, next []int64) (added, removed []int64) {
	prevSet := map[int64]struct{}{}
	for _, id := range prev {
		prevSet[id] = struct{}{}
	}
	nextSet := map[int64]struct{}{}
	for _, id := range next {
		nextSet[id] = struct{}{}
		if _, ok := prevSet[id]; !ok {
			added = append(added, id)
		}
	}
	for _, id := range prev {
		if _, ok := nextSet[id]; !ok {
			removed = append(removed, id)
		}
	}
	sort.Slice(added, func(i, j int) bool { return added[i] < added[j] })
	sort.Slice(removed, func(i, j int) bool { return removed[i] < removed[j] })
	return added, removed
}

// historyResolver resolves ids to display names at read time, caching lookups
// for the duration of one reconstruction.
type historyResolver struct {
	ctx  context.Context
	repo repository.Repository

	users       map[int64]string
	links       map[int64]*models.AffectedSubsystem
	subsystems  map[int64]*models.Subsystem
	attachments map[int64]string
}

func newHistoryResolver(ctx context.Context, repo repository.Repository, rfcID int64) *historyResolver {
	r := &historyResolver{
		ctx:         ctx,
		repo:        repo,
		users:       map[int64]string{},
		links:       map[int64]*models.AffectedSubsystem{},
		subsystems:  map[int64]*models.Subsystem{},
		attachments: map[int64]string{},
	}
	links, err := repo.ListLinksByRfc(ctx, rfcID)
	if err != nil {
		return r
	}
	subIDs := make([]int64, 0, len(links))
	for _, link := range links {
		r.links[link.ID] = link
		subIDs = append(subIDs, link.SubsystemID)
	}
	if subs, err := repo.GetSubsystemsByIDs(ctx, subIDs); err == nil {
		r.subsystems = subs
	}
	return r
}

func (r *historyResolver) loadAttachments(ids []int64) {
	atts, err := r.repo.GetAttachmentsByIDs(r.ctx, ids)
	if err != nil {
		return
	}
	for id, att := range atts {
		r.attachments[id] = att.OriginalFilename
	}
}

func (r *historyResolver) userName(id *int64) string {
	if id == nil {
		return ""
	}
	if name, ok := r.users[*id]; ok {
		return name
	}
	name := ""
	if user, err := r.repo.GetUser(r.ctx, *id); err == nil {
		name = user.FullName()
	}
	r.users[*id] = name
	return name
}

func (r *historyResolver) attachmentNames(ids []int64) []string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if name, ok := r.attachments[id]; ok {
			names = append(names, name)
		} else {
			names = append(names, fmt.Sprintf("attachment %d", id))
		}
	}
	return names
}

func (r *historyResolver) subsystemNames(linkIDs []int64) []string {
	names := make([]string, 0, len(linkIDs))
	for _, id := range linkIDs {
		names = append(names, r.subsystemDisplay(id))
	}
	return names
}

func (r *historyResolver) subsystemDisplay(linkID int64) string {
	link, ok := r.links[linkID]
	if !ok {
		return fmt.Sprintf("subsystem link %d", linkID)
	}
	if sub, ok := r.subsystems[link.SubsystemID]; ok {
		return sub.SystemName + " / " + sub.Name
	}
	return fmt.Sprintf("subsystem %d", link.SubsystemID)
}

// statusChangeEvent renders one subsystem status transition with the
// subsystem and executor names denormalized at read time.
func (r *historyResolver) statusChangeEvent(change *models.StatusChange) *HistoryEvent {
	evt := &HistoryEvent{
		Type:      EventSubsystemStatusChange,
		Timestamp: change.CreatedAt,
		ChangedBy: r.userName(&change.ChangedByID),
		Axis:      string(change.Axis),
		OldStatus: change.OldStatus,
		NewStatus: change.NewStatus,
	}
	if link, ok := r.links[change.SubsystemLinkID]; ok {
		if sub, ok := r.subsystems[link.SubsystemID]; ok {
			evt.SubsystemName = sub.Name
			evt.SystemName = sub.SystemName
		}
		evt.ExecutorName = r.userName(&link.ExecutorID)
	}
	return evt
}

func strPtr(s string) *string { return &s }

func keys(set map[int64]struct{}) []int64 {
	out := make([]int64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
