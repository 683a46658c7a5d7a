package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"kanban-api/domain"
)

// flakyStore fails SaveCards on demand while passing everything else through.
type flakyStore struct {
	*memStore
	failSaves bool
}

func (s *flakyStore) SaveCards(ctx context.Context, cards []domain.Card) error {
	if s.failSaves {
		return domain.StoreFailure(errors.New("batch rejected"))
	}
	return s.memStore.SaveCards(ctx, cards)
}

func TestMoveCardWithinList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	view, err := f.coord.MoveCard(ctx, f.member, "c2", "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if view.Position != 0 {
		t.Fatalf("moved card position = %d, want 0", view.Position)
	}
	if got := f.order(t, f.todo.ID); !equalIDs(got, []string{"c2", "c0", "c1"}) {
		t.Fatalf("order = %v", got)
	}
	contiguous(t, f.store, f.todo.ID)

	if f.events.count() != 1 {
		t.Fatalf("published %d events, want 1", f.events.count())
	}
	topic, msg := f.events.last()
	if topic != domain.TopicBoard(f.board.ID) {
		t.Fatalf("topic = %s", topic)
	}
	if msg.Type != domain.CardMoved {
		t.Fatalf("type = %s", msg.Type)
	}
	if msg.PreviousListID != "" {
		t.Fatalf("same-list move carries previousListId %q", msg.PreviousListID)
	}
}

func TestMoveCardAcrossLists(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	view, err := f.coord.MoveCard(ctx, f.member, "c1", f.doing.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if view.ListID != f.doing.ID || view.Position != 0 {
		t.Fatalf("moved to list %s position %d", view.ListID, view.Position)
	}
	if got := f.order(t, f.todo.ID); !equalIDs(got, []string{"c0", "c2"}) {
		t.Fatalf("source order = %v", got)
	}
	if got := f.order(t, f.doing.ID); !equalIDs(got, []string{"c1", "d0"}) {
		t.Fatalf("target order = %v", got)
	}
	contiguous(t, f.store, f.todo.ID)
	contiguous(t, f.store, f.doing.ID)

	if f.events.count() != 1 {
		t.Fatalf("published %d events, want 1", f.events.count())
	}
	_, msg := f.events.last()
	if msg.Type != domain.CardMoved || msg.PreviousListID != f.todo.ID {
		t.Fatalf("msg = %+v", msg)
	}
}

func TestMoveCardIndexClamped(t *testing.T) {
	f := newFixture(t)

	if _, err := f.coord.MoveCard(context.Background(), f.member, "c0", "", 99); err != nil {
		t.Fatal(err)
	}
	if got := f.order(t, f.todo.ID); !equalIDs(got, []string{"c1", "c2", "c0"}) {
		t.Fatalf("order = %v", got)
	}
}

func TestMoveCardToCurrentIndexKeepsPositions(t *testing.T) {
	f := newFixture(t)

	if _, err := f.coord.MoveCard(context.Background(), f.member, "c1", "", 1); err != nil {
		t.Fatal(err)
	}
	if got := f.order(t, f.todo.ID); !equalIDs(got, []string{"c0", "c1", "c2"}) {
		t.Fatalf("order = %v", got)
	}
}

func TestMoveCardByOutsiderDenied(t *testing.T) {
	f := newFixture(t)

	_, err := f.coord.MoveCard(context.Background(), f.outsider, "c0", f.doing.ID, 0)
	if domain.KindOf(err) != domain.KindAccessDenied {
		t.Fatalf("err = %v, want access denied", err)
	}
	if got := f.order(t, f.todo.ID); !equalIDs(got, []string{"c0", "c1", "c2"}) {
		t.Fatalf("denied move changed order: %v", got)
	}
	if f.events.count() != 0 {
		t.Fatalf("denied move published %d events", f.events.count())
	}
}

func TestMoveCardAcrossBoardsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	other := domain.Board{ID: "b-2", WorkspaceID: "ws-1", Name: "other", CreatedBy: f.owner.ID}
	if err := f.store.SaveBoard(ctx, other); err != nil {
		t.Fatal(err)
	}
	foreign := domain.List{ID: "l-foreign", BoardID: other.ID, Name: "inbox", Position: 0}
	if err := f.store.SaveList(ctx, foreign); err != nil {
		t.Fatal(err)
	}

	_, err := f.coord.MoveCard(ctx, f.owner, "c0", foreign.ID, 0)
	if domain.KindOf(err) != domain.KindValidation {
		t.Fatalf("err = %v, want validation", err)
	}
	if got := f.order(t, f.todo.ID); !equalIDs(got, []string{"c0", "c1", "c2"}) {
		t.Fatalf("rejected move changed order: %v", got)
	}
}

func TestMoveCardAcrossBoardsByOutsiderDenied(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	other := domain.Board{ID: "b-2", WorkspaceID: "ws-1", Name: "other", CreatedBy: f.owner.ID}
	if err := f.store.SaveBoard(ctx, other); err != nil {
		t.Fatal(err)
	}
	foreign := domain.List{ID: "l-foreign", BoardID: other.ID, Name: "inbox", Position: 0}
	if err := f.store.SaveList(ctx, foreign); err != nil {
		t.Fatal(err)
	}

	// The denial wins over the cross-board rejection, so an outsider cannot
	// probe which board a list belongs to.
	_, err := f.coord.MoveCard(ctx, f.outsider, "c0", foreign.ID, 0)
	if domain.KindOf(err) != domain.KindAccessDenied {
		t.Fatalf("err = %v, want access denied", err)
	}
}

func TestMoveCardAcrossListsRollsBackOnBatchFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	flaky := &flakyStore{memStore: f.store, failSaves: true}
	f.coord.store = flaky

	_, err := f.coord.MoveCard(ctx, f.owner, "c1", f.doing.ID, 0)
	if domain.KindOf(err) != domain.KindStoreFailure {
		t.Fatalf("err = %v, want store failure", err)
	}

	// Both lists are back in their pre-move state.
	if got := f.order(t, f.todo.ID); !equalIDs(got, []string{"c0", "c1", "c2"}) {
		t.Fatalf("source order = %v", got)
	}
	if got := f.order(t, f.doing.ID); !equalIDs(got, []string{"d0"}) {
		t.Fatalf("target order = %v", got)
	}
	contiguous(t, f.store, f.todo.ID)
	contiguous(t, f.store, f.doing.ID)
	if f.events.count() != 0 {
		t.Fatalf("failed move published %d events", f.events.count())
	}

	// A retry against a healthy store applies the move cleanly.
	flaky.failSaves = false
	if _, err := f.coord.MoveCard(ctx, f.owner, "c1", f.doing.ID, 0); err != nil {
		t.Fatal(err)
	}
	if got := f.order(t, f.doing.ID); !equalIDs(got, []string{"c1", "d0"}) {
		t.Fatalf("target order = %v", got)
	}
	contiguous(t, f.store, f.todo.ID)
	contiguous(t, f.store, f.doing.ID)
}

func TestMoveCardUnknownCard(t *testing.T) {
	f := newFixture(t)

	_, err := f.coord.MoveCard(context.Background(), f.owner, "nope", "", 0)
	if domain.KindOf(err) != domain.KindNotFound {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestCreateCardInsertsAndShifts(t *testing.T) {
	f := newFixture(t)
	pos := 1

	view, err := f.coord.CreateCard(context.Background(), f.member, f.todo.ID, CreateCardParams{
		Title:    "wedge",
		Position: &pos,
	})
	if err != nil {
		t.Fatal(err)
	}
	if view.Position != 1 {
		t.Fatalf("position = %d", view.Position)
	}
	if got := f.order(t, f.todo.ID); !equalIDs(got, []string{"c0", view.ID, "c1", "c2"}) {
		t.Fatalf("order = %v", got)
	}
	contiguous(t, f.store, f.todo.ID)

	_, msg := f.events.last()
	if msg.Type != domain.CardCreated || msg.Card == nil {
		t.Fatalf("msg = %+v", msg)
	}
}

func TestCreateCardDefaultsToMediumPriority(t *testing.T) {
	f := newFixture(t)

	view, err := f.coord.CreateCard(context.Background(), f.member, f.todo.ID, CreateCardParams{Title: "plain"})
	if err != nil {
		t.Fatal(err)
	}
	if view.Priority != domain.PriorityMedium {
		t.Fatalf("priority = %s", view.Priority)
	}
	if view.Position != 3 {
		t.Fatalf("appended position = %d", view.Position)
	}
}

func TestCreateCardUnknownAssignee(t *testing.T) {
	f := newFixture(t)

	_, err := f.coord.CreateCard(context.Background(), f.member, f.todo.ID, CreateCardParams{
		Title:           "x",
		AssignedUserIDs: []string{"ghost"},
	})
	if domain.KindOf(err) != domain.KindNotFound {
		t.Fatalf("err = %v, want not found", err)
	}
	if got := f.order(t, f.todo.ID); !equalIDs(got, []string{"c0", "c1", "c2"}) {
		t.Fatalf("rejected create changed order: %v", got)
	}
}

func TestCreateCardInvalidPriority(t *testing.T) {
	f := newFixture(t)

	_, err := f.coord.CreateCard(context.Background(), f.member, f.todo.ID, CreateCardParams{
		Title:    "x",
		Priority: "URGENT",
	})
	if domain.KindOf(err) != domain.KindValidation {
		t.Fatalf("err = %v, want validation", err)
	}
}

func TestDeleteCardRenumbersSiblings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.coord.DeleteCard(ctx, f.owner, "c1"); err != nil {
		t.Fatal(err)
	}
	if got := f.order(t, f.todo.ID); !equalIDs(got, []string{"c0", "c2"}) {
		t.Fatalf("order = %v", got)
	}
	contiguous(t, f.store, f.todo.ID)

	// Tombstone keeps its last position and drops out of reads.
	f.store.mu.Lock()
	tomb := f.store.cards["c1"]
	f.store.mu.Unlock()
	if !tomb.Deleted || tomb.Position != 1 {
		t.Fatalf("tombstone = %+v", tomb)
	}
	if _, err := f.store.FindCard(ctx, "c1"); domain.KindOf(err) != domain.KindNotFound {
		t.Fatalf("deleted card still readable: %v", err)
	}

	_, msg := f.events.last()
	if msg.Type != domain.CardDeleted || msg.CardID != "c1" {
		t.Fatalf("msg = %+v", msg)
	}
}

func TestUpdateCardAssigneesAdminOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.coord.UpdateCard(ctx, f.member, "c0", UpdateCardParams{
		AssignedUserIDs: []string{f.member.ID},
	})
	if domain.KindOf(err) != domain.KindAccessDenied {
		t.Fatalf("err = %v, want access denied", err)
	}

	admin := domain.User{ID: "u-admin", Username: "root", Role: domain.RoleAdmin}
	if err := f.store.SaveUser(ctx, admin); err != nil {
		t.Fatal(err)
	}
	view, err := f.coord.UpdateCard(ctx, admin, "c0", UpdateCardParams{
		AssignedUserIDs: []string{f.member.ID},
	})
	if err != nil {
		t.Fatal(err)
	}
	if view.AssignedTo != f.member.ID {
		t.Fatalf("assignedTo = %s", view.AssignedTo)
	}
}

func TestUpdateCardUnknownAssignee(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	admin := domain.User{ID: "u-admin", Username: "root", Role: domain.RoleAdmin}
	if err := f.store.SaveUser(ctx, admin); err != nil {
		t.Fatal(err)
	}
	_, err := f.coord.UpdateCard(ctx, admin, "c0", UpdateCardParams{
		AssignedUserIDs: []string{"ghost"},
	})
	if domain.KindOf(err) != domain.KindNotFound {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestConcurrentMovesKeepContiguity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids := []string{"c0", "c1", "c2", "d0"}
			target := ""
			if i%3 == 0 {
				target = f.doing.ID
			}
			// Conflicts from concurrent relocation are an expected outcome.
			_, _ = f.coord.MoveCard(ctx, f.owner, ids[i%len(ids)], target, i%4)
		}(i)
	}
	wg.Wait()

	contiguous(t, f.store, f.todo.ID)
	contiguous(t, f.store, f.doing.ID)

	total := len(f.order(t, f.todo.ID)) + len(f.order(t, f.doing.ID))
	if total != 4 {
		t.Fatalf("cards across lists = %d, want 4", total)
	}
}
