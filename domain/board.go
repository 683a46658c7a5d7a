package domain

import "time"

// Board belongs to exactly one workspace and holds an ordered sequence of lists.
type Board struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspaceId"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedBy   string    `json:"createdBy"`
	Deleted     bool      `json:"-"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// BoardMember grants a user direct access to a board, independent of
// workspace membership.
type BoardMember struct {
	BoardID   string    `json:"boardId"`
	UserID    string    `json:"userId"`
	Deleted   bool      `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}

// List is an ordered column of cards within a board. Position is 0-based and
// contiguous among the board's non-deleted lists.
type List struct {
	ID        string    `json:"id"`
	BoardID   string    `json:"boardId"`
	Name      string    `json:"name"`
	Position  int       `json:"position"`
	Deleted   bool      `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
