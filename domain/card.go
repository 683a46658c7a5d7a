package domain

import (
	"fmt"
	"time"
)

// Priority of a card.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
)

// ParsePriority validates a priority value. The empty string maps to MEDIUM.
func ParsePriority(s string) (Priority, error) {
	switch Priority(s) {
	case "":
		return PriorityMedium, nil
	case PriorityLow, PriorityMedium, PriorityHigh:
		return Priority(s), nil
	default:
		return "", Validationf("invalid priority %q", s)
	}
}

// Card is one item in a list. Position is 0-based and contiguous among the
// list's non-deleted cards. AssignedUserIDs is the canonical assignee set;
// any single-assignee presentation is derived at the boundary.
type Card struct {
	ID              string     `json:"id"`
	ListID          string     `json:"listId"`
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	Position        int        `json:"position"`
	CreatedBy       string     `json:"createdBy"`
	AssignedUserIDs []string   `json:"assignedUserIds,omitempty"`
	LastModifiedBy  string     `json:"lastModifiedBy,omitempty"`
	DueDate         *time.Time `json:"dueDate,omitempty"`
	Priority        Priority   `json:"priority"`
	Deleted         bool       `json:"-"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// AssignedTo reports whether the card is assigned to the given user.
func (c Card) AssignedTo(userID string) bool {
	for _, id := range c.AssignedUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func (c Card) String() string {
	return fmt.Sprintf("card %s (list %s, pos %d)", c.ID, c.ListID, c.Position)
}
