package service

import (
	"context"
	"strings"

	"kanban-api/domain"
)

// CreateWorkspace creates a workspace owned by the actor, who also receives
// an OWNER membership.
func (c *Coordinator) CreateWorkspace(ctx context.Context, actor domain.User, name, description string) (domain.WorkspaceView, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.WorkspaceView{}, domain.Validationf("workspace name is required")
	}
	now := c.now()
	ws := domain.Workspace{
		ID:          c.newID(),
		Name:        name,
		Description: description,
		OwnerID:     actor.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := c.store.SaveWorkspace(ctx, ws); err != nil {
		return domain.WorkspaceView{}, err
	}
	member := domain.WorkspaceMember{
		WorkspaceID: ws.ID,
		UserID:      actor.ID,
		Role:        domain.WorkspaceOwner,
		CreatedAt:   now,
	}
	if err := c.store.SaveWorkspaceMember(ctx, member); err != nil {
		return domain.WorkspaceView{}, err
	}
	c.recordAudit(actor, "workspace.create", "workspace", ws.ID, "")
	return c.resolver().workspaceView(ctx, ws), nil
}

// ListWorkspaces returns every workspace visible to the actor: all of them
// for admins, otherwise the ones the actor has an active membership in.
func (c *Coordinator) ListWorkspaces(ctx context.Context, actor domain.User) ([]domain.WorkspaceView, error) {
	r := c.resolver()
	out := []domain.WorkspaceView{}

	if actor.IsAdmin() {
		all, err := c.store.ListWorkspaces(ctx)
		if err != nil {
			return nil, err
		}
		for _, ws := range all {
			out = append(out, r.workspaceView(ctx, ws))
		}
		return out, nil
	}

	ids, err := c.store.ListMemberWorkspaceIDs(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		ws, err := c.store.FindWorkspace(ctx, id)
		if err != nil {
			if domain.KindOf(err) == domain.KindNotFound {
				continue
			}
			return nil, err
		}
		out = append(out, r.workspaceView(ctx, ws))
	}
	return out, nil
}

// UpdateWorkspace renames a workspace or changes its description. Requires
// the workspace OWNER/ADMIN role.
func (c *Coordinator) UpdateWorkspace(ctx context.Context, actor domain.User, id string, name, description *string) (domain.WorkspaceView, error) {
	ws, err := c.store.FindWorkspace(ctx, id)
	if err != nil {
		return domain.WorkspaceView{}, err
	}
	ok, err := c.gate.CanRestructure(ctx, actor, id)
	if err != nil {
		return domain.WorkspaceView{}, err
	}
	if !ok {
		c.logDenied(actor, "workspace", id)
		return domain.WorkspaceView{}, domain.AccessDenied("workspace", id)
	}
	if name != nil {
		if strings.TrimSpace(*name) == "" {
			return domain.WorkspaceView{}, domain.Validationf("workspace name is required")
		}
		ws.Name = strings.TrimSpace(*name)
	}
	if description != nil {
		ws.Description = *description
	}
	ws.UpdatedAt = c.now()
	if err := c.store.SaveWorkspace(ctx, ws); err != nil {
		return domain.WorkspaceView{}, err
	}
	c.recordAudit(actor, "workspace.update", "workspace", ws.ID, "")
	return c.resolver().workspaceView(ctx, ws), nil
}

// DeleteWorkspace soft-deletes a workspace. Requires OWNER/ADMIN role.
func (c *Coordinator) DeleteWorkspace(ctx context.Context, actor domain.User, id string) error {
	ws, err := c.store.FindWorkspace(ctx, id)
	if err != nil {
		return err
	}
	ok, err := c.gate.CanRestructure(ctx, actor, id)
	if err != nil {
		return err
	}
	if !ok {
		c.logDenied(actor, "workspace", id)
		return domain.AccessDenied("workspace", id)
	}
	ws.Deleted = true
	ws.UpdatedAt = c.now()
	if err := c.store.SaveWorkspace(ctx, ws); err != nil {
		return err
	}
	c.recordAudit(actor, "workspace.delete", "workspace", ws.ID, "")
	return nil
}

// ListMembers returns the workspace's active members with display names.
func (c *Coordinator) ListMembers(ctx context.Context, actor domain.User, workspaceID string) ([]domain.WorkspaceMemberView, error) {
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
	members, err := c.store.ListWorkspaceMembers(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	r := c.resolver()
	out := make([]domain.WorkspaceMemberView, 0, len(members))
	for _, m := range members {
		out = append(out, domain.WorkspaceMemberView{
			WorkspaceID: m.WorkspaceID,
			UserID:      m.UserID,
			UserName:    r.nameOf(ctx, m.UserID),
			Role:        m.Role,
		})
	}
	return out, nil
}

// AddMember adds or re-activates a workspace membership. Requires the
// OWNER/ADMIN role.
func (c *Coordinator) AddMember(ctx context.Context, actor domain.User, workspaceID, userID string, role domain.WorkspaceRole) error {
	switch role {
	case domain.WorkspaceOwner, domain.WorkspaceAdmin, domain.WorkspaceMemberRole:
	default:
		return domain.Validationf("invalid workspace role %q", role)
	}
	if _, err := c.store.FindWorkspace(ctx, workspaceID); err != nil {
		return err
	}
	if _, err := c.store.FindUser(ctx, userID); err != nil {
		return err
	}
	ok, err := c.gate.CanRestructure(ctx, actor, workspaceID)
	if err != nil {
		return err
	}
	if !ok {
		c.logDenied(actor, "workspace", workspaceID)
		return domain.AccessDenied("workspace", workspaceID)
	}
	member := domain.WorkspaceMember{
		WorkspaceID: workspaceID,
		UserID:      userID,
		Role:        role,
		CreatedAt:   c.now(),
	}
	if err := c.store.SaveWorkspaceMember(ctx, member); err != nil {
		return err
	}
	c.recordAudit(actor, "workspace.member.add", "workspace", workspaceID, "")
	return nil
}

// RemoveMember soft-deletes a workspace membership. Requires the OWNER/ADMIN
// role. The workspace owner cannot be removed.
func (c *Coordinator) RemoveMember(ctx context.Context, actor domain.User, workspaceID, userID string) error {
	ws, err := c.store.FindWorkspace(ctx, workspaceID)
	if err != nil {
		return err
	}
	if ws.OwnerID == userID {
		return domain.Validationf("workspace owner cannot be removed")
	}
	ok, err := c.gate.CanRestructure(ctx, actor, workspaceID)
	if err != nil {
		return err
	}
	if !ok {
		c.logDenied(actor, "workspace", workspaceID)
		return domain.AccessDenied("workspace", workspaceID)
	}
	member, err := c.store.FindWorkspaceMember(ctx, workspaceID, userID)
	if err != nil {
		return err
	}
	member.Deleted = true
	if err := c.store.SaveWorkspaceMember(ctx, member); err != nil {
		return err
	}
	c.recordAudit(actor, "workspace.member.remove", "workspace", workspaceID, "")
	return nil
}
