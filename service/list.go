package service

import (
	"context"
	"strings"

	"kanban-api/domain"
)

func listSequence(lists []domain.List) domain.Sequence {
	seq := make(domain.Sequence, 0, len(lists))
	for _, l := range lists {
		seq = append(seq, domain.Entry{ID: l.ID, Position: l.Position})
	}
	return seq
}

func cardSequence(cards []domain.Card) domain.Sequence {
	seq := make(domain.Sequence, 0, len(cards))
	for _, c := range cards {
		seq = append(seq, domain.Entry{ID: c.ID, Position: c.Position})
	}
	return seq
}

// reindexLists returns the list rows whose position changed, stamped with the
// new position and updated timestamp. Rows absent from the loaded set (the
// entry being inserted) are skipped; the caller saves those itself.
func (c *Coordinator) reindexLists(lists []domain.List, changed domain.Sequence) []domain.List {
	byID := make(map[string]domain.List, len(lists))
	for _, l := range lists {
		byID[l.ID] = l
	}
	now := c.now()
	out := make([]domain.List, 0, len(changed))
	for _, e := range changed {
		l, ok := byID[e.ID]
		if !ok {
			continue
		}
		l.Position = e.Position
		l.UpdatedAt = now
		out = append(out, l)
	}
	return out
}

func (c *Coordinator) reindexCards(cards []domain.Card, changed domain.Sequence) []domain.Card {
	byID := make(map[string]domain.Card, len(cards))
	for _, card := range cards {
		byID[card.ID] = card
	}
	now := c.now()
	out := make([]domain.Card, 0, len(changed))
	for _, e := range changed {
		card, ok := byID[e.ID]
		if !ok {
			continue
		}
		card.Position = e.Position
		card.UpdatedAt = now
		out = append(out, card)
	}
	return out
}

// positionOf returns id's position in seq. The sequence is built from the
// rows just persisted, so the id is always present.
func positionOf(seq domain.Sequence, id string) int {
	return seq.IndexOf(id)
}

// CreateList appends a list to the board, or inserts it at the requested
// index with later siblings shifted up. Structural edit.
func (c *Coordinator) CreateList(ctx context.Context, actor domain.User, boardID, name string, position *int) (domain.ListView, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.ListView{}, domain.Validationf("list name is required")
	}
	board, err := c.store.FindBoard(ctx, boardID)
	if err != nil {
		return domain.ListView{}, err
	}
	ok, err := c.gate.CanRestructure(ctx, actor, board.WorkspaceID)
	if err != nil {
		return domain.ListView{}, err
	}
	if !ok {
		c.logDenied(actor, "board", boardID)
		return domain.ListView{}, domain.AccessDenied("board", boardID)
	}

	c.boardLocks.Lock(boardID)
	defer c.boardLocks.Unlock(boardID)

	lists, err := c.store.ListLists(ctx, boardID)
	if err != nil {
		return domain.ListView{}, err
	}
	seq := listSequence(lists)
	id := c.newID()
	if position != nil {
		seq = seq.InsertAt(id, *position)
	} else {
		seq = seq.Append(id)
	}
	if !seq.Contiguous() {
		return domain.ListView{}, domain.Conflict("list positions are not contiguous")
	}

	now := c.now()
	list := domain.List{
		ID:        id,
		BoardID:   boardID,
		Name:      name,
		Position:  positionOf(seq, id),
		CreatedAt: now,
		UpdatedAt: now,
	}
	batch := append(c.reindexLists(lists, domain.Changed(listSequence(lists), seq)), list)
	if err := c.store.SaveLists(ctx, batch); err != nil {
		return domain.ListView{}, err
	}

	view := c.resolver().listView(list, nil)
	c.publish(ctx, domain.TopicBoard(boardID), domain.Message{
		Type:               domain.ListCreated,
		List:               &view,
		BoardID:            boardID,
		ListID:             list.ID,
		LastModifiedBy:     actor.ID,
		LastModifiedByName: actor.DisplayName(),
	})
	c.recordAudit(actor, "list.create", "list", list.ID, boardID)
	return view, nil
}

// UpdateList renames a list and/or moves it to a new index within its board.
// Structural edit.
func (c *Coordinator) UpdateList(ctx context.Context, actor domain.User, listID string, name *string, position *int) (domain.ListView, error) {
	list, err := c.store.FindList(ctx, listID)
	if err != nil {
		return domain.ListView{}, err
	}
	board, err := c.store.FindBoard(ctx, list.BoardID)
	if err != nil {
		return domain.ListView{}, err
	}
	ok, err := c.gate.CanRestructure(ctx, actor, board.WorkspaceID)
	if err != nil {
		return domain.ListView{}, err
	}
	if !ok {
		c.logDenied(actor, "list", listID)
		return domain.ListView{}, domain.AccessDenied("list", listID)
	}

	c.boardLocks.Lock(board.ID)
	defer c.boardLocks.Unlock(board.ID)

	// Reload under the lock so the rename lands on the current row.
	list, err = c.store.FindList(ctx, listID)
	if err != nil {
		return domain.ListView{}, err
	}
	if name != nil {
		if strings.TrimSpace(*name) == "" {
			return domain.ListView{}, domain.Validationf("list name is required")
		}
		list.Name = strings.TrimSpace(*name)
	}
	list.UpdatedAt = c.now()

	if position != nil {
		lists, err := c.store.ListLists(ctx, board.ID)
		if err != nil {
			return domain.ListView{}, err
		}
		for i := range lists {
			if lists[i].ID == list.ID {
				lists[i] = list
			}
		}
		before := listSequence(lists)
		after := before.Move(listID, *position)
		if !after.Contiguous() {
			return domain.ListView{}, domain.Conflict("list positions are not contiguous")
		}
		list.Position = positionOf(after, listID)
		batch := c.reindexLists(lists, domain.Changed(before, after))
		replaced := false
		for i := range batch {
			if batch[i].ID == list.ID {
				batch[i] = list
				replaced = true
			}
		}
		if !replaced {
			batch = append(batch, list)
		}
		if err := c.store.SaveLists(ctx, batch); err != nil {
			return domain.ListView{}, err
		}
	} else if err := c.store.SaveList(ctx, list); err != nil {
		return domain.ListView{}, err
	}

	view := c.resolver().listView(list, nil)
	c.publish(ctx, domain.TopicBoard(board.ID), domain.Message{
		Type:               domain.ListUpdated,
		List:               &view,
		BoardID:            board.ID,
		ListID:             list.ID,
		LastModifiedBy:     actor.ID,
		LastModifiedByName: actor.DisplayName(),
	})
	c.recordAudit(actor, "list.update", "list", list.ID, board.ID)
	return view, nil
}

// DeleteList soft-deletes a list and shifts later siblings down by one. The
// tombstone keeps its last position. Structural edit.
func (c *Coordinator) DeleteList(ctx context.Context, actor domain.User, listID string) error {
	list, err := c.store.FindList(ctx, listID)
	if err != nil {
		return err
	}
	board, err := c.store.FindBoard(ctx, list.BoardID)
	if err != nil {
		return err
	}
	ok, err := c.gate.CanRestructure(ctx, actor, board.WorkspaceID)
	if err != nil {
		return err
	}
	if !ok {
		c.logDenied(actor, "list", listID)
		return domain.AccessDenied("list", listID)
	}

	c.boardLocks.Lock(board.ID)
	defer c.boardLocks.Unlock(board.ID)

	lists, err := c.store.ListLists(ctx, board.ID)
	if err != nil {
		return err
	}
	before := listSequence(lists)
	after := before.Remove(listID)
	if !after.Contiguous() {
		return domain.Conflict("list positions are not contiguous")
	}

	list.Deleted = true
	list.UpdatedAt = c.now()
	batch := append(c.reindexLists(lists, domain.Changed(before, after)), list)
	if err := c.store.SaveLists(ctx, batch); err != nil {
		return err
	}

	c.publish(ctx, domain.TopicBoard(board.ID), domain.Message{
		Type:               domain.ListDeleted,
		BoardID:            board.ID,
		ListID:             listID,
		LastModifiedBy:     actor.ID,
		LastModifiedByName: actor.DisplayName(),
	})
	c.recordAudit(actor, "list.delete", "list", listID, board.ID)
	return nil
}

// ListCardsView returns the list's active cards ordered by position.
func (c *Coordinator) ListCardsView(ctx context.Context, actor domain.User, listID string) ([]domain.CardView, error) {
	list, err := c.store.FindList(ctx, listID)
	if err != nil {
		return nil, err
	}
	board, err := c.store.FindBoard(ctx, list.BoardID)
	if err != nil {
		return nil, err
	}
	ok, err := c.gate.HasBoardAccess(ctx, actor, board)
	if err != nil {
		return nil, err
	}
	if !ok {
		c.logDenied(actor, "list", listID)
		return nil, domain.AccessDenied("list", listID)
	}
	cards, err := c.store.ListCards(ctx, listID)
	if err != nil {
		return nil, err
	}
	r := c.resolver()
	out := make([]domain.CardView, 0, len(cards))
	for _, card := range cards {
		out = append(out, r.cardView(ctx, card))
	}
	return out, nil
}
