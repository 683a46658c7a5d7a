// Package service orchestrates every mutation: access gate check, entity
// loads, position reindex, persistence, then broadcast. Events are published
// only after a successful commit.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"kanban-api/access"
	"kanban-api/domain"
	"kanban-api/storage"
)

// Store abstracts the entity store for the coordinator.
type Store interface {
	FindUser(ctx context.Context, id string) (domain.User, error)
	FindUserByUsername(ctx context.Context, username string) (domain.User, error)
	SaveUser(ctx context.Context, u domain.User) error

	FindWorkspace(ctx context.Context, id string) (domain.Workspace, error)
	ListWorkspaces(ctx context.Context) ([]domain.Workspace, error)
	SaveWorkspace(ctx context.Context, w domain.Workspace) error
	FindWorkspaceMember(ctx context.Context, workspaceID, userID string) (domain.WorkspaceMember, error)
	ListWorkspaceMembers(ctx context.Context, workspaceID string) ([]domain.WorkspaceMember, error)
	ListMemberWorkspaceIDs(ctx context.Context, userID string) ([]string, error)
	SaveWorkspaceMember(ctx context.Context, m domain.WorkspaceMember) error

	FindBoard(ctx context.Context, id string) (domain.Board, error)
	ListBoards(ctx context.Context, workspaceID string) ([]domain.Board, error)
	SaveBoard(ctx context.Context, b domain.Board) error
	FindBoardMember(ctx context.Context, boardID, userID string) (domain.BoardMember, error)
	SaveBoardMember(ctx context.Context, m domain.BoardMember) error

	FindList(ctx context.Context, id string) (domain.List, error)
	ListLists(ctx context.Context, boardID string) ([]domain.List, error)
	SaveList(ctx context.Context, l domain.List) error
	SaveLists(ctx context.Context, lists []domain.List) error

	FindCard(ctx context.Context, id string) (domain.Card, error)
	ListCards(ctx context.Context, listID string) ([]domain.Card, error)
	SaveCard(ctx context.Context, c domain.Card) error
	SaveCards(ctx context.Context, cards []domain.Card) error
	RelocateCard(ctx context.Context, c domain.Card, previousListID string) error

	CountEntities(ctx context.Context) (storage.Statistics, error)
}

// Publisher fans a committed mutation out to topic subscribers.
type Publisher interface {
	Publish(ctx context.Context, topic string, msg domain.Message) error
}

// Auditor records committed mutations. Implementations must not block.
type Auditor interface {
	Record(rec storage.AuditRecord)
}

// Coordinator runs mutations as gate check -> load -> reindex -> persist ->
// broadcast. Reindexing a board's lists is serialized per board id and a
// list's cards per list id, so concurrent writers cannot produce overlapping
// positions.
type Coordinator struct {
	store  Store
	gate   *access.Gate
	events Publisher
	audit  Auditor
	logger *log.Logger

	boardLocks *keyedMutex
	listLocks  *keyedMutex

	now   func() time.Time
	newID func() string
}

func New(store Store, gate *access.Gate, events Publisher, audit Auditor, logger *log.Logger) *Coordinator {
	if logger == nil {
		panic("logger is required")
	}
	return &Coordinator{
		store:      store,
		gate:       gate,
		events:     events,
		audit:      audit,
		logger:     logger,
		boardLocks: newKeyedMutex(),
		listLocks:  newKeyedMutex(),
		now:        func() time.Time { return time.Now().UTC() },
		newID:      uuid.NewString,
	}
}

// CurrentUser resolves the authenticated principal to its user record.
func (c *Coordinator) CurrentUser(ctx context.Context, userID string) (domain.User, error) {
	return c.store.FindUser(ctx, userID)
}

// publish sends one event after a successful commit. Broadcast failures are
// logged, never surfaced: the mutation has already been applied.
func (c *Coordinator) publish(ctx context.Context, topic string, msg domain.Message) {
	if c.events == nil {
		return
	}
	if err := c.events.Publish(ctx, topic, msg); err != nil {
		c.logger.WithError(err).Errorf("publish %s to %s failed", msg.Type, topic)
	}
}

func (c *Coordinator) recordAudit(actor domain.User, action, resource, resourceID, boardID string) {
	if c.audit == nil {
		return
	}
	c.audit.Record(storage.AuditRecord{
		ActorID:    actor.ID,
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		BoardID:    boardID,
	})
}

func (c *Coordinator) logDenied(actor domain.User, resource, id string) {
	c.logger.WithFields(log.Fields{
		"principal": actor.ID,
		"resource":  resource,
		"id":        id,
	}).Warn("access denied")
}
