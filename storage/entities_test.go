package storage

import (
	"testing"
	"time"

	"kanban-api/domain"
)

func TestCardEntityKeysFollowListPartition(t *testing.T) {
	due := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	card := domain.Card{
		ID:              "card-1",
		ListID:          "list-1",
		Title:           "ship it",
		Position:        2,
		CreatedBy:       "u1",
		AssignedUserIDs: []string{"u1", "u2"},
		DueDate:         &due,
		Priority:        domain.PriorityHigh,
		CreatedAt:       due.Add(-time.Hour),
		UpdatedAt:       due,
	}

	ent := cardToEntity(card)
	if ent.PartitionKey != "list-1" || ent.RowKey != "card-1" {
		t.Fatalf("keys = %s/%s", ent.PartitionKey, ent.RowKey)
	}

	got := ent.toDomain()
	if got.ListID != card.ListID || got.Position != 2 || got.Priority != domain.PriorityHigh {
		t.Fatalf("got %+v", got)
	}
	if len(got.AssignedUserIDs) != 2 || got.AssignedUserIDs[1] != "u2" {
		t.Fatalf("assignees = %v", got.AssignedUserIDs)
	}
	if got.DueDate == nil || !got.DueDate.Equal(due) {
		t.Fatalf("due = %v", got.DueDate)
	}
}

func TestCardEntityWithoutDueDate(t *testing.T) {
	ent := cardToEntity(domain.Card{ID: "c", ListID: "l"})
	if ent.DueDate != "" {
		t.Fatalf("due = %q", ent.DueDate)
	}
	if got := ent.toDomain(); got.DueDate != nil {
		t.Fatalf("due = %v", got.DueDate)
	}
	if got := ent.toDomain(); got.AssignedUserIDs != nil {
		t.Fatalf("assignees = %v", got.AssignedUserIDs)
	}
}

func TestTimeCodecZeroValue(t *testing.T) {
	if encodeTime(time.Time{}) != "" {
		t.Fatal("zero time must encode empty")
	}
	if !decodeTime("").IsZero() {
		t.Fatal("empty string must decode to zero time")
	}
	if !decodeTime("garbage").IsZero() {
		t.Fatal("malformed timestamp must decode to zero time")
	}
}

func TestTombstoneSurvivesRoundTrip(t *testing.T) {
	ent := listToEntity(domain.List{ID: "l", BoardID: "b", Position: 3, Deleted: true})
	got := ent.toDomain()
	if !got.Deleted || got.Position != 3 {
		t.Fatalf("got %+v", got)
	}
}
