package api

import (
	"context"
	"time"

	"kanban-api/domain"
	"kanban-api/service"
	"kanban-api/storage"
)

// TaskBoard is the slice of the mutation coordinator the handlers drive.
type TaskBoard interface {
	Register(ctx context.Context, username, email, password, fullName string) (domain.User, error)
	Login(ctx context.Context, username, password string) (domain.User, error)
	CurrentUser(ctx context.Context, userID string) (domain.User, error)
	Statistics(ctx context.Context, actor domain.User) (storage.Statistics, error)

	CreateWorkspace(ctx context.Context, actor domain.User, name, description string) (domain.WorkspaceView, error)
	ListWorkspaces(ctx context.Context, actor domain.User) ([]domain.WorkspaceView, error)
	UpdateWorkspace(ctx context.Context, actor domain.User, id string, name, description *string) (domain.WorkspaceView, error)
	DeleteWorkspace(ctx context.Context, actor domain.User, id string) error
	ListMembers(ctx context.Context, actor domain.User, workspaceID string) ([]domain.WorkspaceMemberView, error)
	AddMember(ctx context.Context, actor domain.User, workspaceID, userID string, role domain.WorkspaceRole) error
	RemoveMember(ctx context.Context, actor domain.User, workspaceID, userID string) error

	CreateBoard(ctx context.Context, actor domain.User, workspaceID, name, description string) (domain.BoardView, error)
	ListBoards(ctx context.Context, actor domain.User, workspaceID string) ([]domain.BoardView, error)
	BoardSnapshot(ctx context.Context, actor domain.User, boardID string) (domain.BoardView, []domain.ListView, error)
	UpdateBoard(ctx context.Context, actor domain.User, boardID string, name, description *string) (domain.BoardView, error)
	DeleteBoard(ctx context.Context, actor domain.User, boardID string) error
	AddBoardMember(ctx context.Context, actor domain.User, boardID, userID string) error
	RemoveBoardMember(ctx context.Context, actor domain.User, boardID, userID string) error

	CreateList(ctx context.Context, actor domain.User, boardID, name string, position *int) (domain.ListView, error)
	UpdateList(ctx context.Context, actor domain.User, listID string, name *string, position *int) (domain.ListView, error)
	DeleteList(ctx context.Context, actor domain.User, listID string) error
	ListCardsView(ctx context.Context, actor domain.User, listID string) ([]domain.CardView, error)

	CreateCard(ctx context.Context, actor domain.User, listID string, p service.CreateCardParams) (domain.CardView, error)
	UpdateCard(ctx context.Context, actor domain.User, cardID string, p service.UpdateCardParams) (domain.CardView, error)
	DeleteCard(ctx context.Context, actor domain.User, cardID string) error
	MoveCard(ctx context.Context, actor domain.User, cardID, targetListID string, index int) (domain.CardView, error)
}

// Authenticator validates bearer tokens and, in local auth mode, issues them.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
	IssueToken(userID string, ttl time.Duration) (string, error)
}

// Deduper guards mutations carrying an Idempotency-Key header against replay.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, userID, key string) (bool, error)
	// Remove deletes a previously added key, used when the mutation fails.
	Remove(ctx context.Context, userID, key string) error
}

// Streams attaches live subscribers to broadcast topics.
type Streams interface {
	Subscribe(topic string) (<-chan []byte, func())
}
