package service

import (
	"context"

	"kanban-api/domain"
)

// nameResolver caches user display names for the duration of one request so
// projections never hit the store twice for the same user.
type nameResolver struct {
	store Store
	names map[string]string
}

func (c *Coordinator) resolver() *nameResolver {
	return &nameResolver{store: c.store, names: make(map[string]string)}
}

// nameOf resolves a user id to a display name. Unknown or deleted users
// resolve to an empty name rather than failing the projection.
func (r *nameResolver) nameOf(ctx context.Context, userID string) string {
	if userID == "" {
		return ""
	}
	if name, ok := r.names[userID]; ok {
		return name
	}
	name := ""
	if u, err := r.store.FindUser(ctx, userID); err == nil {
		name = u.DisplayName()
	}
	r.names[userID] = name
	return name
}

func (r *nameResolver) cardView(ctx context.Context, c domain.Card) domain.CardView {
	v := domain.CardView{
		ID:                 c.ID,
		ListID:             c.ListID,
		Title:              c.Title,
		Description:        c.Description,
		Position:           c.Position,
		Priority:           c.Priority,
		CreatedBy:          c.CreatedBy,
		CreatorName:        r.nameOf(ctx, c.CreatedBy),
		AssignedUserIDs:    c.AssignedUserIDs,
		LastModifiedBy:     c.LastModifiedBy,
		LastModifiedByName: r.nameOf(ctx, c.LastModifiedBy),
		DueDate:            c.DueDate,
		CreatedAt:          c.CreatedAt,
		UpdatedAt:          c.UpdatedAt,
	}
	for _, id := range c.AssignedUserIDs {
		v.AssignedUserNames = append(v.AssignedUserNames, r.nameOf(ctx, id))
	}
	if len(c.AssignedUserIDs) > 0 {
		v.AssignedTo = c.AssignedUserIDs[0]
		v.AssigneeName = v.AssignedUserNames[0]
	}
	return v
}

func (r *nameResolver) listView(l domain.List, cards []domain.CardView) domain.ListView {
	return domain.ListView{
		ID:        l.ID,
		BoardID:   l.BoardID,
		Name:      l.Name,
		Position:  l.Position,
		Cards:     cards,
		CreatedAt: l.CreatedAt,
		UpdatedAt: l.UpdatedAt,
	}
}

func (r *nameResolver) boardView(ctx context.Context, b domain.Board) domain.BoardView {
	return domain.BoardView{
		ID:          b.ID,
		WorkspaceID: b.WorkspaceID,
		Name:        b.Name,
		Description: b.Description,
		CreatedBy:   b.CreatedBy,
		CreatorName: r.nameOf(ctx, b.CreatedBy),
		CreatedAt:   b.CreatedAt,
		UpdatedAt:   b.UpdatedAt,
	}
}

func (r *nameResolver) workspaceView(ctx context.Context, w domain.Workspace) domain.WorkspaceView {
	return domain.WorkspaceView{
		ID:          w.ID,
		Name:        w.Name,
		Description: w.Description,
		OwnerID:     w.OwnerID,
		OwnerName:   r.nameOf(ctx, w.OwnerID),
		CreatedAt:   w.CreatedAt,
		UpdatedAt:   w.UpdatedAt,
	}
}
