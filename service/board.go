package service

import (
	"context"
	"strings"

	"kanban-api/domain"
)

// CreateBoard creates a board in the workspace and makes the creator a board
// member. Publishes BOARD_CREATED on the global boards topic.
func (c *Coordinator) CreateBoard(ctx context.Context, actor domain.User, workspaceID, name, description string) (domain.BoardView, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.BoardView{}, domain.Validationf("board name is required")
	}
	if _, err := c.store.FindWorkspace(ctx, workspaceID); err != nil {
		return domain.BoardView{}, err
	}
	ok, err := c.gate.HasWorkspaceAccess(ctx, actor, workspaceID)
	if err != nil {
		return domain.BoardView{}, err
	}
	if !ok {
		c.logDenied(actor, "workspace", workspaceID)
		return domain.BoardView{}, domain.AccessDenied("workspace", workspaceID)
	}

	now := c.now()
	board := domain.Board{
		ID:          c.newID(),
		WorkspaceID: workspaceID,
		Name:        name,
		Description: description,
		CreatedBy:   actor.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := c.store.SaveBoard(ctx, board); err != nil {
		return domain.BoardView{}, err
	}
	member := domain.BoardMember{BoardID: board.ID, UserID: actor.ID, CreatedAt: now}
	if err := c.store.SaveBoardMember(ctx, member); err != nil {
		return domain.BoardView{}, err
	}

	view := c.resolver().boardView(ctx, board)
	c.publish(ctx, domain.TopicBoards, domain.Message{
		Type:               domain.BoardCreated,
		Board:              &view,
		BoardID:            board.ID,
		LastModifiedBy:     actor.ID,
		LastModifiedByName: actor.DisplayName(),
	})
	c.recordAudit(actor, "board.create", "board", board.ID, board.ID)
	return view, nil
}

// ListBoards returns the workspace's active boards.
func (c *Coordinator) ListBoards(ctx context.Context, actor domain.User, workspaceID string) ([]domain.BoardView, error) {
	if _, err := c.store.FindWorkspace(ctx, workspaceID); err != nil {
		return nil, err
	}
	ok, err := c.gate.HasWorkspaceAccess(ctx, actor, workspaceID)
	if err != nil {
		return nil, err
	}
	if !ok {
		c.logDenied(actor, "workspace", workspaceID)
		return nil, domain.AccessDenied("workspace", workspaceID)
	}
	boards, err := c.store.ListBoards(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	r := c.resolver()
	out := make([]domain.BoardView, 0, len(boards))
	for _, b := range boards {
		out = append(out, r.boardView(ctx, b))
	}
	return out, nil
}

// BoardSnapshot returns the board with its lists and cards fully resolved,
// lists ordered by position and each list's cards ordered by position. This
// is the state a client renders before applying the live stream.
func (c *Coordinator) BoardSnapshot(ctx context.Context, actor domain.User, boardID string) (domain.BoardView, []domain.ListView, error) {
	board, err := c.store.FindBoard(ctx, boardID)
	if err != nil {
		return domain.BoardView{}, nil, err
	}
	ok, err := c.gate.HasBoardAccess(ctx, actor, board)
	if err != nil {
		return domain.BoardView{}, nil, err
	}
	if !ok {
		c.logDenied(actor, "board", boardID)
		return domain.BoardView{}, nil, domain.AccessDenied("board", boardID)
	}

	lists, err := c.store.ListLists(ctx, boardID)
	if err != nil {
		return domain.BoardView{}, nil, err
	}
	r := c.resolver()
	views := make([]domain.ListView, 0, len(lists))
	for _, l := range lists {
		cards, err := c.store.ListCards(ctx, l.ID)
		if err != nil {
			return domain.BoardView{}, nil, err
		}
		cardViews := make([]domain.CardView, 0, len(cards))
		for _, card := range cards {
			cardViews = append(cardViews, r.cardView(ctx, card))
		}
		views = append(views, r.listView(l, cardViews))
	}
	return r.boardView(ctx, board), views, nil
}

// UpdateBoard renames a board or changes its description. Structural edit,
// so it requires the workspace OWNER/ADMIN role.
func (c *Coordinator) UpdateBoard(ctx context.Context, actor domain.User, boardID string, name, description *string) (domain.BoardView, error) {
	board, err := c.store.FindBoard(ctx, boardID)
	if err != nil {
		return domain.BoardView{}, err
	}
	ok, err := c.gate.CanRestructure(ctx, actor, board.WorkspaceID)
	if err != nil {
		return domain.BoardView{}, err
	}
	if !ok {
		c.logDenied(actor, "board", boardID)
		return domain.BoardView{}, domain.AccessDenied("board", boardID)
	}
	if name != nil {
		if strings.TrimSpace(*name) == "" {
			return domain.BoardView{}, domain.Validationf("board name is required")
		}
		board.Name = strings.TrimSpace(*name)
	}
	if description != nil {
		board.Description = *description
	}
	board.UpdatedAt = c.now()
	if err := c.store.SaveBoard(ctx, board); err != nil {
		return domain.BoardView{}, err
	}

	view := c.resolver().boardView(ctx, board)
	c.publish(ctx, domain.TopicBoards, domain.Message{
		Type:               domain.BoardUpdated,
		Board:              &view,
		BoardID:            board.ID,
		LastModifiedBy:     actor.ID,
		LastModifiedByName: actor.DisplayName(),
	})
	c.recordAudit(actor, "board.update", "board", board.ID, board.ID)
	return view, nil
}

// DeleteBoard soft-deletes a board. Its lists and cards stay in the store
// but become unreachable through the default read path.
func (c *Coordinator) DeleteBoard(ctx context.Context, actor domain.User, boardID string) error {
	board, err := c.store.FindBoard(ctx, boardID)
	if err != nil {
		return err
	}
	ok, err := c.gate.CanRestructure(ctx, actor, board.WorkspaceID)
	if err != nil {
		return err
	}
	if !ok {
		c.logDenied(actor, "board", boardID)
		return domain.AccessDenied("board", boardID)
	}
	board.Deleted = true
	board.UpdatedAt = c.now()
	if err := c.store.SaveBoard(ctx, board); err != nil {
		return err
	}

	c.publish(ctx, domain.TopicBoards, domain.Message{
		Type:               domain.BoardDeleted,
		BoardID:            board.ID,
		LastModifiedBy:     actor.ID,
		LastModifiedByName: actor.DisplayName(),
	})
	c.recordAudit(actor, "board.delete", "board", board.ID, board.ID)
	return nil
}

// AddBoardMember grants a user direct board membership. Requires the
// workspace OWNER/ADMIN role.
func (c *Coordinator) AddBoardMember(ctx context.Context, actor domain.User, boardID, userID string) error {
	board, err := c.store.FindBoard(ctx, boardID)
	if err != nil {
		return err
	}
	if _, err := c.store.FindUser(ctx, userID); err != nil {
		return err
	}
	ok, err := c.gate.CanRestructure(ctx, actor, board.WorkspaceID)
	if err != nil {
		return err
	}
	if !ok {
		c.logDenied(actor, "board", boardID)
		return domain.AccessDenied("board", boardID)
	}
	member := domain.BoardMember{BoardID: boardID, UserID: userID, CreatedAt: c.now()}
	if err := c.store.SaveBoardMember(ctx, member); err != nil {
		return err
	}
	c.recordAudit(actor, "board.member.add", "board", boardID, boardID)
	return nil
}

// RemoveBoardMember revokes a direct board membership. Requires the
// workspace OWNER/ADMIN role.
func (c *Coordinator) RemoveBoardMember(ctx context.Context, actor domain.User, boardID, userID string) error {
	board, err := c.store.FindBoard(ctx, boardID)
	if err != nil {
		return err
	}
	ok, err := c.gate.CanRestructure(ctx, actor, board.WorkspaceID)
	if err != nil {
		return err
	}
	if !ok {
		c.logDenied(actor, "board", boardID)
		return domain.AccessDenied("board", boardID)
	}
	member, err := c.store.FindBoardMember(ctx, boardID, userID)
	if err != nil {
		return err
	}
	member.Deleted = true
	if err := c.store.SaveBoardMember(ctx, member); err != nil {
		return err
	}
	c.recordAudit(actor, "board.member.remove", "board", boardID, boardID)
	return nil
}
