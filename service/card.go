package service

import (
	"context"
	"strings"
	"time"

	"kanban-api/domain"
)

// CreateCardParams carries the client-supplied fields for a new card.
type CreateCardParams struct {
	Title           string
	Description     string
	Priority        string
	DueDate         *time.Time
	AssignedUserIDs []string
	Position        *int
}

// UpdateCardParams carries a partial card update. Nil fields are untouched.
type UpdateCardParams struct {
	Title           *string
	Description     *string
	Priority        *string
	DueDate         *time.Time
	ClearDueDate    bool
	AssignedUserIDs []string
}

// CreateCard appends a card to the list, or inserts it at the requested index
// with later siblings shifted up. Any active board member may create cards.
func (c *Coordinator) CreateCard(ctx context.Context, actor domain.User, listID string, p CreateCardParams) (domain.CardView, error) {
	p.Title = strings.TrimSpace(p.Title)
	if p.Title == "" {
		return domain.CardView{}, domain.Validationf("card title is required")
	}
	priority, err := domain.ParsePriority(p.Priority)
	if err != nil {
		return domain.CardView{}, err
	}
	list, err := c.store.FindList(ctx, listID)
	if err != nil {
		return domain.CardView{}, err
	}
	board, err := c.store.FindBoard(ctx, list.BoardID)
	if err != nil {
		return domain.CardView{}, err
	}
	ok, err := c.gate.HasBoardAccess(ctx, actor, board)
	if err != nil {
		return domain.CardView{}, err
	}
	if !ok {
		c.logDenied(actor, "list", listID)
		return domain.CardView{}, domain.AccessDenied("list", listID)
	}
	for _, assignee := range p.AssignedUserIDs {
		if _, err := c.store.FindUser(ctx, assignee); err != nil {
			return domain.CardView{}, err
		}
	}

	unlock := c.listLocks.LockAll(listID)
	defer unlock()

	cards, err := c.store.ListCards(ctx, listID)
	if err != nil {
		return domain.CardView{}, err
	}
	before := cardSequence(cards)
	id := c.newID()
	var after domain.Sequence
	if p.Position != nil {
		after = before.InsertAt(id, *p.Position)
	} else {
		after = before.Append(id)
	}
	if !after.Contiguous() {
		return domain.CardView{}, domain.Conflict("card positions are not contiguous")
	}

	now := c.now()
	card := domain.Card{
		ID:              id,
		ListID:          listID,
		Title:           p.Title,
		Description:     p.Description,
		Position:        positionOf(after, id),
		CreatedBy:       actor.ID,
		AssignedUserIDs: p.AssignedUserIDs,
		LastModifiedBy:  actor.ID,
		DueDate:         p.DueDate,
		Priority:        priority,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	batch := append(c.reindexCards(cards, domain.Changed(before, after)), card)
	if err := c.store.SaveCards(ctx, batch); err != nil {
		return domain.CardView{}, err
	}

	view := c.resolver().cardView(ctx, card)
	c.publish(ctx, domain.TopicBoard(board.ID), domain.Message{
		Type:               domain.CardCreated,
		Card:               &view,
		BoardID:            board.ID,
		ListID:             listID,
		CardID:             card.ID,
		LastModifiedBy:     actor.ID,
		LastModifiedByName: actor.DisplayName(),
	})
	c.recordAudit(actor, "card.create", "card", card.ID, board.ID)
	return view, nil
}

// UpdateCard applies a partial update to a card's own fields. Position and
// list never change here; MoveCard owns relocation. Changing the assignee set
// requires the global ADMIN role.
func (c *Coordinator) UpdateCard(ctx context.Context, actor domain.User, cardID string, p UpdateCardParams) (domain.CardView, error) {
	card, err := c.store.FindCard(ctx, cardID)
	if err != nil {
		return domain.CardView{}, err
	}
	list, err := c.store.FindList(ctx, card.ListID)
	if err != nil {
		return domain.CardView{}, err
	}
	board, err := c.store.FindBoard(ctx, list.BoardID)
	if err != nil {
		return domain.CardView{}, err
	}
	ok, err := c.gate.CanEditCard(ctx, actor, card, board)
	if err != nil {
		return domain.CardView{}, err
	}
	if !ok {
		c.logDenied(actor, "card", cardID)
		return domain.CardView{}, domain.AccessDenied("card", cardID)
	}
	if p.AssignedUserIDs != nil && !actor.IsAdmin() {
		c.logDenied(actor, "card", cardID)
		return domain.CardView{}, domain.AccessDenied("card", cardID)
	}

	if p.Title != nil {
		if strings.TrimSpace(*p.Title) == "" {
			return domain.CardView{}, domain.Validationf("card title is required")
		}
		card.Title = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		card.Description = *p.Description
	}
	if p.Priority != nil {
		priority, err := domain.ParsePriority(*p.Priority)
		if err != nil {
			return domain.CardView{}, err
		}
		card.Priority = priority
	}
	if p.ClearDueDate {
		card.DueDate = nil
	} else if p.DueDate != nil {
		card.DueDate = p.DueDate
	}
	if p.AssignedUserIDs != nil {
		for _, id := range p.AssignedUserIDs {
			if _, err := c.store.FindUser(ctx, id); err != nil {
				return domain.CardView{}, err
			}
		}
		card.AssignedUserIDs = p.AssignedUserIDs
	}
	card.LastModifiedBy = actor.ID
	card.UpdatedAt = c.now()
	if err := c.store.SaveCard(ctx, card); err != nil {
		return domain.CardView{}, err
	}

	view := c.resolver().cardView(ctx, card)
	c.publish(ctx, domain.TopicBoard(board.ID), domain.Message{
		Type:               domain.CardUpdated,
		Card:               &view,
		BoardID:            board.ID,
		ListID:             card.ListID,
		CardID:             card.ID,
		LastModifiedBy:     actor.ID,
		LastModifiedByName: actor.DisplayName(),
	})
	c.recordAudit(actor, "card.update", "card", card.ID, board.ID)
	return view, nil
}

// DeleteCard soft-deletes a card and shifts later siblings down by one. The
// tombstone keeps its last position.
func (c *Coordinator) DeleteCard(ctx context.Context, actor domain.User, cardID string) error {
	card, err := c.store.FindCard(ctx, cardID)
	if err != nil {
		return err
	}
	list, err := c.store.FindList(ctx, card.ListID)
	if err != nil {
		return err
	}
	board, err := c.store.FindBoard(ctx, list.BoardID)
	if err != nil {
		return err
	}
	ok, err := c.gate.CanEditCard(ctx, actor, card, board)
	if err != nil {
		return err
	}
	if !ok {
		c.logDenied(actor, "card", cardID)
		return domain.AccessDenied("card", cardID)
	}

	unlock := c.listLocks.LockAll(card.ListID)
	defer unlock()

	cards, err := c.store.ListCards(ctx, card.ListID)
	if err != nil {
		return err
	}
	before := cardSequence(cards)
	after := before.Remove(cardID)
	if !after.Contiguous() {
		return domain.Conflict("card positions are not contiguous")
	}

	card.Deleted = true
	card.LastModifiedBy = actor.ID
	card.UpdatedAt = c.now()
	batch := append(c.reindexCards(cards, domain.Changed(before, after)), card)
	if err := c.store.SaveCards(ctx, batch); err != nil {
		return err
	}

	c.publish(ctx, domain.TopicBoard(board.ID), domain.Message{
		Type:               domain.CardDeleted,
		BoardID:            board.ID,
		ListID:             card.ListID,
		CardID:             cardID,
		LastModifiedBy:     actor.ID,
		LastModifiedByName: actor.DisplayName(),
	})
	c.recordAudit(actor, "card.delete", "card", cardID, board.ID)
	return nil
}

// MoveCard relocates a card within its list or to another list on the same
// board, shifting the affected siblings by one. An empty targetListID means
// a same-list reorder. The whole move is serialized on the involved list ids
// and broadcast as a single CARD_MOVED event.
func (c *Coordinator) MoveCard(ctx context.Context, actor domain.User, cardID, targetListID string, index int) (domain.CardView, error) {
	card, err := c.store.FindCard(ctx, cardID)
	if err != nil {
		return domain.CardView{}, err
	}
	source, err := c.store.FindList(ctx, card.ListID)
	if err != nil {
		return domain.CardView{}, err
	}
	target := source
	if targetListID != "" && targetListID != source.ID {
		target, err = c.store.FindList(ctx, targetListID)
		if err != nil {
			return domain.CardView{}, err
		}
	}
	board, err := c.store.FindBoard(ctx, source.BoardID)
	if err != nil {
		return domain.CardView{}, err
	}
	ok, err := c.gate.CanEditCard(ctx, actor, card, board)
	if err != nil {
		return domain.CardView{}, err
	}
	if !ok {
		c.logDenied(actor, "card", cardID)
		return domain.CardView{}, domain.AccessDenied("card", cardID)
	}
	if target.BoardID != source.BoardID {
		return domain.CardView{}, domain.Validationf("cross-board move not permitted through this operation")
	}

	unlock := c.listLocks.LockAll(source.ID, target.ID)
	defer unlock()

	// Reload under the locks; another mover may have relocated the card since
	// the gate check.
	card, err = c.store.FindCard(ctx, cardID)
	if err != nil {
		return domain.CardView{}, err
	}
	if card.ListID != source.ID {
		return domain.CardView{}, domain.Conflict("card moved concurrently")
	}

	previousListID := source.ID
	now := c.now()

	if target.ID == source.ID {
		cards, err := c.store.ListCards(ctx, source.ID)
		if err != nil {
			return domain.CardView{}, err
		}
		before := cardSequence(cards)
		after := before.Move(cardID, index)
		if !after.Contiguous() {
			return domain.CardView{}, domain.Conflict("card positions are not contiguous")
		}
		card.Position = positionOf(after, cardID)
		card.LastModifiedBy = actor.ID
		card.UpdatedAt = now
		batch := c.reindexCards(cards, domain.Changed(before, after))
		replaced := false
		for i := range batch {
			if batch[i].ID == cardID {
				batch[i] = card
				replaced = true
			}
		}
		if !replaced {
			batch = append(batch, card)
		}
		if err := c.store.SaveCards(ctx, batch); err != nil {
			return domain.CardView{}, err
		}
	} else {
		sourceCards, err := c.store.ListCards(ctx, source.ID)
		if err != nil {
			return domain.CardView{}, err
		}
		targetCards, err := c.store.ListCards(ctx, target.ID)
		if err != nil {
			return domain.CardView{}, err
		}
		sourceBefore := cardSequence(sourceCards)
		targetBefore := cardSequence(targetCards)
		sourceAfter, targetAfter := domain.MoveAcross(sourceBefore, targetBefore, cardID, index)
		if !sourceAfter.Contiguous() || !targetAfter.Contiguous() {
			return domain.CardView{}, domain.Conflict("card positions are not contiguous")
		}

		original := card
		card.ListID = target.ID
		card.Position = positionOf(targetAfter, cardID)
		card.LastModifiedBy = actor.ID
		card.UpdatedAt = now

		// The moved card changes partition, so it is written (and its old row
		// dropped) first; sibling reindexes follow as one batch per list. A
		// failure after the relocate compensates by moving the row back, so a
		// failed move never leaves the card in its target list.
		if err := c.store.RelocateCard(ctx, card, previousListID); err != nil {
			c.rollbackMove(ctx, original, target.ID, sourceCards, targetCards)
			return domain.CardView{}, err
		}
		batch := c.reindexCards(sourceCards, domain.Changed(sourceBefore, sourceAfter))
		targetChanged := domain.Changed(targetBefore, targetAfter)
		batch = append(batch, c.reindexCards(targetCards, targetChanged)...)
		if err := c.store.SaveCards(ctx, batch); err != nil {
			c.rollbackMove(ctx, original, target.ID, sourceCards, targetCards)
			return domain.CardView{}, err
		}
	}

	view := c.resolver().cardView(ctx, card)
	msg := domain.Message{
		Type:               domain.CardMoved,
		Card:               &view,
		BoardID:            board.ID,
		ListID:             card.ListID,
		CardID:             card.ID,
		LastModifiedBy:     actor.ID,
		LastModifiedByName: actor.DisplayName(),
	}
	if card.ListID != previousListID {
		msg.PreviousListID = previousListID
	}
	c.publish(ctx, domain.TopicBoard(board.ID), msg)
	c.recordAudit(actor, "card.move", "card", card.ID, board.ID)
	return view, nil
}

// rollbackMove restores the state captured before a failed cross-list move:
// the card row returns to its source partition with its old position and
// every touched sibling gets its pre-move row back. The caller still holds
// both list locks. Rollback failures are logged; the caller reports the
// original error.
func (c *Coordinator) rollbackMove(ctx context.Context, original domain.Card, targetListID string, sourceCards, targetCards []domain.Card) {
	if err := c.store.RelocateCard(ctx, original, targetListID); err != nil {
		c.logger.WithError(err).WithField("card", original.ID).Error("card move rollback failed")
		return
	}
	restore := make([]domain.Card, 0, len(sourceCards)+len(targetCards))
	for _, sc := range sourceCards {
		if sc.ID != original.ID {
			restore = append(restore, sc)
		}
	}
	restore = append(restore, targetCards...)
	if err := c.store.SaveCards(ctx, restore); err != nil {
		c.logger.WithError(err).WithField("card", original.ID).Error("card move rollback reindex failed")
	}
}
