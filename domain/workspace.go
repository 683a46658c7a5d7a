package domain

import "time"

// WorkspaceRole is the role of a member within one workspace.
type WorkspaceRole string

const (
	WorkspaceOwner      WorkspaceRole = "OWNER"
	WorkspaceAdmin      WorkspaceRole = "ADMIN"
	WorkspaceMemberRole WorkspaceRole = "MEMBER"
)

// Workspace is the top-level grouping of boards.
type Workspace struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	OwnerID     string    `json:"ownerId"`
	Deleted     bool      `json:"-"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// WorkspaceMember links a user to a workspace with a workspace-scoped role.
type WorkspaceMember struct {
	WorkspaceID string        `json:"workspaceId"`
	UserID      string        `json:"userId"`
	Role        WorkspaceRole `json:"role"`
	Deleted     bool          `json:"-"`
	CreatedAt   time.Time     `json:"createdAt"`
}

// CanRestructure reports whether this membership grants structural edits
// (list create/rename/delete/reorder, board rename/delete) in the workspace.
func (m WorkspaceMember) CanRestructure() bool {
	return m.Role == WorkspaceOwner || m.Role == WorkspaceAdmin
}
