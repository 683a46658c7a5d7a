package domain

import "time"

// Views are the eagerly-resolved read models returned to clients and carried
// in broadcast messages. Every referenced user is resolved to an id plus a
// display name up front; nothing here requires a follow-up fetch.

type WorkspaceView struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	OwnerID     string    `json:"ownerId"`
	OwnerName   string    `json:"ownerName,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type WorkspaceMemberView struct {
	WorkspaceID string        `json:"workspaceId"`
	UserID      string        `json:"userId"`
	UserName    string        `json:"userName,omitempty"`
	Role        WorkspaceRole `json:"role"`
}

type BoardView struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspaceId"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedBy   string    `json:"createdBy"`
	CreatorName string    `json:"creatorName,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type ListView struct {
	ID        string     `json:"id"`
	BoardID   string     `json:"boardId"`
	Name      string     `json:"name"`
	Position  int        `json:"position"`
	Cards     []CardView `json:"cards,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// CardView is the full card projection. AssignedTo and AssigneeName present
// the first assignee for clients that still expect a single-assignee field;
// the assignee set is canonical.
type CardView struct {
	ID                 string     `json:"id"`
	ListID             string     `json:"listId"`
	Title              string     `json:"title"`
	Description        string     `json:"description,omitempty"`
	Position           int        `json:"position"`
	Priority           Priority   `json:"priority"`
	CreatedBy          string     `json:"createdBy"`
	CreatorName        string     `json:"creatorName,omitempty"`
	AssignedUserIDs    []string   `json:"assignedUserIds,omitempty"`
	AssignedUserNames  []string   `json:"assignedUserNames,omitempty"`
	AssignedTo         string     `json:"assignedTo,omitempty"`
	AssigneeName       string     `json:"assigneeName,omitempty"`
	LastModifiedBy     string     `json:"lastModifiedBy,omitempty"`
	LastModifiedByName string     `json:"lastModifiedByName,omitempty"`
	DueDate            *time.Time `json:"dueDate,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}
