package service

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"kanban-api/domain"
	"kanban-api/storage"
)

// Register creates a new account with the USER role.
func (c *Coordinator) Register(ctx context.Context, username, email, password, fullName string) (domain.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return domain.User{}, domain.Validationf("username is required")
	}
	if password == "" {
		return domain.User{}, domain.Validationf("password is required")
	}

	_, err := c.store.FindUserByUsername(ctx, username)
	if err == nil {
		return domain.User{}, domain.Validationf("username %q is taken", username)
	}
	var de *domain.Error
	if !errors.As(err, &de) || de.Kind != domain.KindNotFound {
		return domain.User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, domain.StoreFailure(err)
	}

	now := c.now()
	user := domain.User{
		ID:           c.newID(),
		Username:     username,
		Email:        strings.TrimSpace(email),
		PasswordHash: string(hash),
		FullName:     strings.TrimSpace(fullName),
		Role:         domain.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := c.store.SaveUser(ctx, user); err != nil {
		return domain.User{}, err
	}
	c.recordAudit(user, "register", "user", user.ID, "")
	return user, nil
}

// Login verifies credentials and returns the matching user. Bad credentials
// come back as AccessDenied without distinguishing which part was wrong.
func (c *Coordinator) Login(ctx context.Context, username, password string) (domain.User, error) {
	user, err := c.store.FindUserByUsername(ctx, username)
	if err != nil {
		if domain.KindOf(err) == domain.KindNotFound {
			return domain.User{}, domain.AccessDenied("user", username)
		}
		return domain.User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return domain.User{}, domain.AccessDenied("user", username)
	}
	return user, nil
}

// Statistics aggregates system-wide entity counts. Admin only.
func (c *Coordinator) Statistics(ctx context.Context, actor domain.User) (storage.Statistics, error) {
	if !actor.IsAdmin() {
		c.logDenied(actor, "statistics", "")
		return storage.Statistics{}, domain.AccessDenied("statistics", "system")
	}
	return c.store.CountEntities(ctx)
}
