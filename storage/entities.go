package storage

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"kanban-api/domain"
)

// Table entity shapes. Every row carries a Deleted tombstone; the default
// read path filters on it so callers never see soft-deleted rows.

const timeLayout = time.RFC3339Nano

func encodeTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func decodeTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func encodeIDs(ids []string) string {
	if len(ids) == 0 {
		return ""
	}
	data, _ := json.Marshal(ids)
	return string(data)
}

func decodeIDs(s string) []string {
	if s == "" {
		return nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(s), &ids); err != nil {
		return nil
	}
	return ids
}

type userEntity struct {
	aztables.Entity
	Username     string `json:"Username"`
	Email        string `json:"Email"`
	PasswordHash string `json:"PasswordHash"`
	FullName     string `json:"FullName"`
	Role         string `json:"Role"`
	Deleted      bool   `json:"Deleted"`
	CreatedAt    string `json:"CreatedAt"`
	UpdatedAt    string `json:"UpdatedAt"`
}

func (e userEntity) toDomain() domain.User {
	return domain.User{
		ID:           e.RowKey,
		Username:     e.Username,
		Email:        e.Email,
		PasswordHash: e.PasswordHash,
		FullName:     e.FullName,
		Role:         domain.Role(e.Role),
		Deleted:      e.Deleted,
		CreatedAt:    decodeTime(e.CreatedAt),
		UpdatedAt:    decodeTime(e.UpdatedAt),
	}
}

func userToEntity(u domain.User) userEntity {
	return userEntity{
		Entity:       aztables.Entity{PartitionKey: u.ID, RowKey: u.ID},
		Username:     u.Username,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		FullName:     u.FullName,
		Role:         string(u.Role),
		Deleted:      u.Deleted,
		CreatedAt:    encodeTime(u.CreatedAt),
		UpdatedAt:    encodeTime(u.UpdatedAt),
	}
}

type workspaceEntity struct {
	aztables.Entity
	Name        string `json:"Name"`
	Description string `json:"Description"`
	OwnerID     string `json:"OwnerId"`
	Deleted     bool   `json:"Deleted"`
	CreatedAt   string `json:"CreatedAt"`
	UpdatedAt   string `json:"UpdatedAt"`
}

func (e workspaceEntity) toDomain() domain.Workspace {
	return domain.Workspace{
		ID:          e.RowKey,
		Name:        e.Name,
		Description: e.Description,
		OwnerID:     e.OwnerID,
		Deleted:     e.Deleted,
		CreatedAt:   decodeTime(e.CreatedAt),
		UpdatedAt:   decodeTime(e.UpdatedAt),
	}
}

func workspaceToEntity(w domain.Workspace) workspaceEntity {
	return workspaceEntity{
		Entity:      aztables.Entity{PartitionKey: w.ID, RowKey: w.ID},
		Name:        w.Name,
		Description: w.Description,
		OwnerID:     w.OwnerID,
		Deleted:     w.Deleted,
		CreatedAt:   encodeTime(w.CreatedAt),
		UpdatedAt:   encodeTime(w.UpdatedAt),
	}
}

type workspaceMemberEntity struct {
	aztables.Entity
	Role      string `json:"Role"`
	Deleted   bool   `json:"Deleted"`
	CreatedAt string `json:"CreatedAt"`
}

func (e workspaceMemberEntity) toDomain() domain.WorkspaceMember {
	return domain.WorkspaceMember{
		WorkspaceID: e.PartitionKey,
		UserID:      e.RowKey,
		Role:        domain.WorkspaceRole(e.Role),
		Deleted:     e.Deleted,
		CreatedAt:   decodeTime(e.CreatedAt),
	}
}

type boardEntity struct {
	aztables.Entity
	Name        string `json:"Name"`
	Description string `json:"Description"`
	CreatedBy   string `json:"CreatedBy"`
	Deleted     bool   `json:"Deleted"`
	CreatedAt   string `json:"CreatedAt"`
	UpdatedAt   string `json:"UpdatedAt"`
}

func (e boardEntity) toDomain() domain.Board {
	return domain.Board{
		ID:          e.RowKey,
		WorkspaceID: e.PartitionKey,
		Name:        e.Name,
		Description: e.Description,
		CreatedBy:   e.CreatedBy,
		Deleted:     e.Deleted,
		CreatedAt:   decodeTime(e.CreatedAt),
		UpdatedAt:   decodeTime(e.UpdatedAt),
	}
}

func boardToEntity(b domain.Board) boardEntity {
	return boardEntity{
		Entity:      aztables.Entity{PartitionKey: b.WorkspaceID, RowKey: b.ID},
		Name:        b.Name,
		Description: b.Description,
		CreatedBy:   b.CreatedBy,
		Deleted:     b.Deleted,
		CreatedAt:   encodeTime(b.CreatedAt),
		UpdatedAt:   encodeTime(b.UpdatedAt),
	}
}

type boardMemberEntity struct {
	aztables.Entity
	Deleted   bool   `json:"Deleted"`
	CreatedAt string `json:"CreatedAt"`
}

type listEntity struct {
	aztables.Entity
	Name      string `json:"Name"`
	Position  int    `json:"Position"`
	Deleted   bool   `json:"Deleted"`
	CreatedAt string `json:"CreatedAt"`
	UpdatedAt string `json:"UpdatedAt"`
}

func (e listEntity) toDomain() domain.List {
	return domain.List{
		ID:        e.RowKey,
		BoardID:   e.PartitionKey,
		Name:      e.Name,
		Position:  e.Position,
		Deleted:   e.Deleted,
		CreatedAt: decodeTime(e.CreatedAt),
		UpdatedAt: decodeTime(e.UpdatedAt),
	}
}

func listToEntity(l domain.List) listEntity {
	return listEntity{
		Entity:    aztables.Entity{PartitionKey: l.BoardID, RowKey: l.ID},
		Name:      l.Name,
		Position:  l.Position,
		Deleted:   l.Deleted,
		CreatedAt: encodeTime(l.CreatedAt),
		UpdatedAt: encodeTime(l.UpdatedAt),
	}
}

type cardEntity struct {
	aztables.Entity
	Title           string `json:"Title"`
	Description     string `json:"Description"`
	Position        int    `json:"Position"`
	CreatedBy       string `json:"CreatedBy"`
	AssignedUserIDs string `json:"AssignedUserIds"`
	LastModifiedBy  string `json:"LastModifiedBy"`
	DueDate         string `json:"DueDate"`
	Priority        string `json:"Priority"`
	Deleted         bool   `json:"Deleted"`
	CreatedAt       string `json:"CreatedAt"`
	UpdatedAt       string `json:"UpdatedAt"`
}

func (e cardEntity) toDomain() domain.Card {
	c := domain.Card{
		ID:              e.RowKey,
		ListID:          e.PartitionKey,
		Title:           e.Title,
		Description:     e.Description,
		Position:        e.Position,
		CreatedBy:       e.CreatedBy,
		AssignedUserIDs: decodeIDs(e.AssignedUserIDs),
		LastModifiedBy:  e.LastModifiedBy,
		Priority:        domain.Priority(e.Priority),
		Deleted:         e.Deleted,
		CreatedAt:       decodeTime(e.CreatedAt),
		UpdatedAt:       decodeTime(e.UpdatedAt),
	}
	if due := decodeTime(e.DueDate); !due.IsZero() {
		c.DueDate = &due
	}
	return c
}

func cardToEntity(c domain.Card) cardEntity {
	due := ""
	if c.DueDate != nil {
		due = encodeTime(*c.DueDate)
	}
	return cardEntity{
		Entity:          aztables.Entity{PartitionKey: c.ListID, RowKey: c.ID},
		Title:           c.Title,
		Description:     c.Description,
		Position:        c.Position,
		CreatedBy:       c.CreatedBy,
		AssignedUserIDs: encodeIDs(c.AssignedUserIDs),
		LastModifiedBy:  c.LastModifiedBy,
		DueDate:         due,
		Priority:        string(c.Priority),
		Deleted:         c.Deleted,
		CreatedAt:       encodeTime(c.CreatedAt),
		UpdatedAt:       encodeTime(c.UpdatedAt),
	}
}

func sortLists(lists []domain.List) {
	sort.SliceStable(lists, func(i, j int) bool { return lists[i].Position < lists[j].Position })
}

func sortCards(cards []domain.Card) {
	sort.SliceStable(cards, func(i, j int) bool { return cards[i].Position < cards[j].Position })
}
