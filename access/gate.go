// Package access evaluates whether a principal may read or mutate a given
// workspace, board, list, or card.
//
// Rules, evaluated in order, first match wins:
//  1. Global ADMIN may do everything.
//  2. Structural edits (list/board rename, delete, reorder) require the
//     workspace OWNER or ADMIN role.
//  3. Board-scoped actions are allowed for active board members, falling
//     through to an active workspace membership check.
//  4. Card edit/delete is additionally allowed for the card's creator and
//     its assignees.
//  5. Everything else is denied.
//
// Evaluation is read-only; Deny is a normal result, not an error. Errors are
// reserved for store failures.
package access

import (
	"context"
	"errors"
	"fmt"

	"kanban-api/domain"
)

// Action is the kind of operation being authorized.
type Action string

const (
	ActionView        Action = "view"
	ActionCreate      Action = "create"
	ActionEdit        Action = "edit"
	ActionDelete      Action = "delete"
	ActionRestructure Action = "restructure"
)

// ResourceKind names the entity type an action targets.
type ResourceKind string

const (
	KindWorkspace ResourceKind = "workspace"
	KindBoard     ResourceKind = "board"
	KindList      ResourceKind = "list"
	KindCard      ResourceKind = "card"
)

// Resource references the target of an authorization check.
type Resource struct {
	Kind ResourceKind
	ID   string
}

// Decision is the outcome of an authorization check.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision { return Decision{Allowed: true} }

func deny(res Resource) Decision {
	return Decision{Reason: fmt.Sprintf("access denied: %s %s", res.Kind, res.ID)}
}

// Store is the slice of the entity store the gate reads from.
type Store interface {
	FindWorkspace(ctx context.Context, id string) (domain.Workspace, error)
	FindBoard(ctx context.Context, id string) (domain.Board, error)
	FindList(ctx context.Context, id string) (domain.List, error)
	FindCard(ctx context.Context, id string) (domain.Card, error)
	FindWorkspaceMember(ctx context.Context, workspaceID, userID string) (domain.WorkspaceMember, error)
	FindBoardMember(ctx context.Context, boardID, userID string) (domain.BoardMember, error)
}

// Gate evaluates access rules against the entity store.
type Gate struct {
	store Store
}

func New(store Store) *Gate {
	return &Gate{store: store}
}

// notFoundAsAbsent maps a NotFound lookup to "no record" instead of an error.
func notFoundAsAbsent(err error) (bool, error) {
	if err == nil {
		return true, nil
	}
	var de *domain.Error
	if errors.As(err, &de) && de.Kind == domain.KindNotFound {
		return false, nil
	}
	return false, err
}

// HasWorkspaceAccess reports whether the actor may act within the workspace:
// global admin, workspace owner, or active workspace member.
func (g *Gate) HasWorkspaceAccess(ctx context.Context, actor domain.User, workspaceID string) (bool, error) {
	if actor.IsAdmin() {
		return true, nil
	}
	ws, err := g.store.FindWorkspace(ctx, workspaceID)
	if ok, err := notFoundAsAbsent(err); !ok {
		return false, err
	}
	if ws.OwnerID == actor.ID {
		return true, nil
	}
	_, err = g.store.FindWorkspaceMember(ctx, workspaceID, actor.ID)
	return notFoundAsAbsent(err)
}

// HasBoardAccess reports whether the actor may act on the board: global
// admin, active board member, or workspace access to the board's workspace.
func (g *Gate) HasBoardAccess(ctx context.Context, actor domain.User, board domain.Board) (bool, error) {
	if actor.IsAdmin() {
		return true, nil
	}
	_, err := g.store.FindBoardMember(ctx, board.ID, actor.ID)
	if ok, err := notFoundAsAbsent(err); err != nil {
		return false, err
	} else if ok {
		return true, nil
	}
	return g.HasWorkspaceAccess(ctx, actor, board.WorkspaceID)
}

// CanEditCard reports whether the actor may edit or delete the card. Board
// access is sufficient; so is having created the card or being assigned to it.
func (g *Gate) CanEditCard(ctx context.Context, actor domain.User, card domain.Card, board domain.Board) (bool, error) {
	if actor.IsAdmin() {
		return true, nil
	}
	if card.CreatedBy == actor.ID || card.AssignedTo(actor.ID) {
		return true, nil
	}
	return g.HasBoardAccess(ctx, actor, board)
}

// CanRestructure reports whether the actor may make structural edits in the
// workspace (create, rename, delete, or reorder lists and boards). Requires
// workspace OWNER/ADMIN role or global admin; ordinary members may not
// restructure.
func (g *Gate) CanRestructure(ctx context.Context, actor domain.User, workspaceID string) (bool, error) {
	if actor.IsAdmin() {
		return true, nil
	}
	ws, err := g.store.FindWorkspace(ctx, workspaceID)
	if ok, err := notFoundAsAbsent(err); !ok {
		return false, err
	}
	if ws.OwnerID == actor.ID {
		return true, nil
	}
	member, err := g.store.FindWorkspaceMember(ctx, workspaceID, actor.ID)
	if ok, err := notFoundAsAbsent(err); !ok {
		return false, err
	}
	return member.CanRestructure(), nil
}

// Authorize evaluates the full rule chain for an arbitrary resource
// reference, resolving parents as needed.
func (g *Gate) Authorize(ctx context.Context, actor domain.User, res Resource, action Action) (Decision, error) {
	if actor.IsAdmin() {
		return allow(), nil
	}

	switch res.Kind {
	case KindWorkspace:
		if action == ActionDelete || action == ActionRestructure {
			ok, err := g.CanRestructure(ctx, actor, res.ID)
			return decision(ok, res), err
		}
		ok, err := g.HasWorkspaceAccess(ctx, actor, res.ID)
		return decision(ok, res), err

	case KindBoard:
		board, err := g.store.FindBoard(ctx, res.ID)
		if err != nil {
			return deny(res), err
		}
		if action == ActionEdit || action == ActionDelete || action == ActionRestructure {
			ok, err := g.CanRestructure(ctx, actor, board.WorkspaceID)
			return decision(ok, res), err
		}
		ok, err := g.HasBoardAccess(ctx, actor, board)
		return decision(ok, res), err

	case KindList:
		list, err := g.store.FindList(ctx, res.ID)
		if err != nil {
			return deny(res), err
		}
		board, err := g.store.FindBoard(ctx, list.BoardID)
		if err != nil {
			return deny(res), err
		}
		if action == ActionEdit || action == ActionDelete || action == ActionRestructure {
			ok, err := g.CanRestructure(ctx, actor, board.WorkspaceID)
			return decision(ok, res), err
		}
		ok, err := g.HasBoardAccess(ctx, actor, board)
		return decision(ok, res), err

	case KindCard:
		card, err := g.store.FindCard(ctx, res.ID)
		if err != nil {
			return deny(res), err
		}
		list, err := g.store.FindList(ctx, card.ListID)
		if err != nil {
			return deny(res), err
		}
		board, err := g.store.FindBoard(ctx, list.BoardID)
		if err != nil {
			return deny(res), err
		}
		if action == ActionEdit || action == ActionDelete {
			ok, err := g.CanEditCard(ctx, actor, card, board)
			return decision(ok, res), err
		}
		ok, err := g.HasBoardAccess(ctx, actor, board)
		return decision(ok, res), err
	}

	return deny(res), nil
}

func decision(ok bool, res Resource) Decision {
	if ok {
		return allow()
	}
	return deny(res)
}
