package storage

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"kanban-api/domain"
)

// TableNames holds the table name for every entity kind.
type TableNames struct {
	Users            string
	Workspaces       string
	WorkspaceMembers string
	Boards           string
	BoardMembers     string
	Lists            string
	Cards            string
}

// Store is the entity store client. Partition layout keeps every sibling
// sequence in one partition (cards by list id, lists by board id), so a
// reindex of one sequence commits as a single table transaction. Reads
// filter soft-deleted rows by default.
type Store struct {
	users            *aztables.Client
	workspaces       *aztables.Client
	workspaceMembers *aztables.Client
	boards           *aztables.Client
	boardMembers     *aztables.Client
	lists            *aztables.Client
	cards            *aztables.Client
}

// New creates a Store from the given connection string.
func New(connStr string, tables TableNames) (*Store, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	return &Store{
		users:            svc.NewClient(tables.Users),
		workspaces:       svc.NewClient(tables.Workspaces),
		workspaceMembers: svc.NewClient(tables.WorkspaceMembers),
		boards:           svc.NewClient(tables.Boards),
		boardMembers:     svc.NewClient(tables.BoardMembers),
		lists:            svc.NewClient(tables.Lists),
		cards:            svc.NewClient(tables.Cards),
	}, nil
}

// filterValue escapes a value for use inside an OData filter literal.
func filterValue(v string) string {
	return strings.ReplaceAll(v, "'", "''")
}

func isNotFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == 404
}

// query runs a filtered scan and calls fn for every raw entity.
func query(ctx context.Context, client *aztables.Client, filter string, fn func([]byte) error) error {
	pager := client.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return domain.StoreFailure(err)
		}
		for _, raw := range resp.Entities {
			if err := fn(raw); err != nil {
				return err
			}
		}
	}
	return nil
}

var errStopIteration = errors.New("stop iteration")

// queryOne returns the first matching raw entity, or false when none matched.
func queryOne(ctx context.Context, client *aztables.Client, filter string) ([]byte, bool, error) {
	var found []byte
	err := query(ctx, client, filter, func(raw []byte) error {
		found = raw
		return errStopIteration
	})
	if err != nil && !errors.Is(err, errStopIteration) {
		return nil, false, err
	}
	return found, found != nil, nil
}

func (s *Store) FindUser(ctx context.Context, id string) (domain.User, error) {
	resp, err := s.users.GetEntity(ctx, id, id, nil)
	if err != nil {
		if isNotFound(err) {
			return domain.User{}, domain.NotFound("user", id)
		}
		return domain.User{}, domain.StoreFailure(err)
	}
	var ent userEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return domain.User{}, domain.StoreFailure(err)
	}
	if ent.Deleted {
		return domain.User{}, domain.NotFound("user", id)
	}
	return ent.toDomain(), nil
}

func (s *Store) FindUserByUsername(ctx context.Context, username string) (domain.User, error) {
	filter := "Username eq '" + filterValue(username) + "' and Deleted eq false"
	raw, ok, err := queryOne(ctx, s.users, filter)
	if err != nil {
		return domain.User{}, err
	}
	if !ok {
		return domain.User{}, domain.NotFound("user", username)
	}
	var ent userEntity
	if err := json.Unmarshal(raw, &ent); err != nil {
		return domain.User{}, domain.StoreFailure(err)
	}
	return ent.toDomain(), nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) {
	out := []domain.User{}
	err := query(ctx, s.users, "Deleted eq false", func(raw []byte) error {
		var ent userEntity
		if err := json.Unmarshal(raw, &ent); err != nil {
			return domain.StoreFailure(err)
		}
		out = append(out, ent.toDomain())
		return nil
	})
	return out, err
}

func (s *Store) SaveUser(ctx context.Context, u domain.User) error {
	return s.upsert(ctx, s.users, userToEntity(u))
}

func (s *Store) FindWorkspace(ctx context.Context, id string) (domain.Workspace, error) {
	resp, err := s.workspaces.GetEntity(ctx, id, id, nil)
	if err != nil {
		if isNotFound(err) {
			return domain.Workspace{}, domain.NotFound("workspace", id)
		}
		return domain.Workspace{}, domain.StoreFailure(err)
	}
	var ent workspaceEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return domain.Workspace{}, domain.StoreFailure(err)
	}
	if ent.Deleted {
		return domain.Workspace{}, domain.NotFound("workspace", id)
	}
	return ent.toDomain(), nil
}

func (s *Store) ListWorkspaces(ctx context.Context) ([]domain.Workspace, error) {
	out := []domain.Workspace{}
	err := query(ctx, s.workspaces, "Deleted eq false", func(raw []byte) error {
		var ent workspaceEntity
		if err := json.Unmarshal(raw, &ent); err != nil {
			return domain.StoreFailure(err)
		}
		out = append(out, ent.toDomain())
		return nil
	})
	return out, err
}

func (s *Store) SaveWorkspace(ctx context.Context, w domain.Workspace) error {
	return s.upsert(ctx, s.workspaces, workspaceToEntity(w))
}

func (s *Store) FindWorkspaceMember(ctx context.Context, workspaceID, userID string) (domain.WorkspaceMember, error) {
	resp, err := s.workspaceMembers.GetEntity(ctx, workspaceID, userID, nil)
	if err != nil {
		if isNotFound(err) {
			return domain.WorkspaceMember{}, domain.NotFound("workspace member", userID)
		}
		return domain.WorkspaceMember{}, domain.StoreFailure(err)
	}
	var ent workspaceMemberEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return domain.WorkspaceMember{}, domain.StoreFailure(err)
	}
	if ent.Deleted {
		return domain.WorkspaceMember{}, domain.NotFound("workspace member", userID)
	}
	return ent.toDomain(), nil
}

func (s *Store) ListWorkspaceMembers(ctx context.Context, workspaceID string) ([]domain.WorkspaceMember, error) {
	filter := "PartitionKey eq '" + filterValue(workspaceID) + "' and Deleted eq false"
	out := []domain.WorkspaceMember{}
	err := query(ctx, s.workspaceMembers, filter, func(raw []byte) error {
		var ent workspaceMemberEntity
		if err := json.Unmarshal(raw, &ent); err != nil {
			return domain.StoreFailure(err)
		}
		out = append(out, ent.toDomain())
		return nil
	})
	return out, err
}

// ListMemberWorkspaceIDs returns the ids of every workspace the user has an
// active membership in.
func (s *Store) ListMemberWorkspaceIDs(ctx context.Context, userID string) ([]string, error) {
	filter := "RowKey eq '" + filterValue(userID) + "' and Deleted eq false"
	out := []string{}
	err := query(ctx, s.workspaceMembers, filter, func(raw []byte) error {
		var ent workspaceMemberEntity
		if err := json.Unmarshal(raw, &ent); err != nil {
			return domain.StoreFailure(err)
		}
		out = append(out, ent.PartitionKey)
		return nil
	})
	return out, err
}

func (s *Store) SaveWorkspaceMember(ctx context.Context, m domain.WorkspaceMember) error {
	ent := workspaceMemberEntity{
		Entity:    aztables.Entity{PartitionKey: m.WorkspaceID, RowKey: m.UserID},
		Role:      string(m.Role),
		Deleted:   m.Deleted,
		CreatedAt: encodeTime(m.CreatedAt),
	}
	return s.upsert(ctx, s.workspaceMembers, ent)
}

func (s *Store) FindBoard(ctx context.Context, id string) (domain.Board, error) {
	filter := "RowKey eq '" + filterValue(id) + "' and Deleted eq false"
	raw, ok, err := queryOne(ctx, s.boards, filter)
	if err != nil {
		return domain.Board{}, err
	}
	if !ok {
		return domain.Board{}, domain.NotFound("board", id)
	}
	var ent boardEntity
	if err := json.Unmarshal(raw, &ent); err != nil {
		return domain.Board{}, domain.StoreFailure(err)
	}
	return ent.toDomain(), nil
}

func (s *Store) ListBoards(ctx context.Context, workspaceID string) ([]domain.Board, error) {
	filter := "PartitionKey eq '" + filterValue(workspaceID) + "' and Deleted eq false"
	out := []domain.Board{}
	err := query(ctx, s.boards, filter, func(raw []byte) error {
		var ent boardEntity
		if err := json.Unmarshal(raw, &ent); err != nil {
			return domain.StoreFailure(err)
		}
		out = append(out, ent.toDomain())
		return nil
	})
	return out, err
}

func (s *Store) SaveBoard(ctx context.Context, b domain.Board) error {
	return s.upsert(ctx, s.boards, boardToEntity(b))
}

func (s *Store) FindBoardMember(ctx context.Context, boardID, userID string) (domain.BoardMember, error) {
	resp, err := s.boardMembers.GetEntity(ctx, boardID, userID, nil)
	if err != nil {
		if isNotFound(err) {
			return domain.BoardMember{}, domain.NotFound("board member", userID)
		}
		return domain.BoardMember{}, domain.StoreFailure(err)
	}
	var ent boardMemberEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return domain.BoardMember{}, domain.StoreFailure(err)
	}
	if ent.Deleted {
		return domain.BoardMember{}, domain.NotFound("board member", userID)
	}
	return domain.BoardMember{
		BoardID:   ent.PartitionKey,
		UserID:    ent.RowKey,
		CreatedAt: decodeTime(ent.CreatedAt),
	}, nil
}

func (s *Store) SaveBoardMember(ctx context.Context, m domain.BoardMember) error {
	ent := boardMemberEntity{
		Entity:    aztables.Entity{PartitionKey: m.BoardID, RowKey: m.UserID},
		Deleted:   m.Deleted,
		CreatedAt: encodeTime(m.CreatedAt),
	}
	return s.upsert(ctx, s.boardMembers, ent)
}

func (s *Store) FindList(ctx context.Context, id string) (domain.List, error) {
	filter := "RowKey eq '" + filterValue(id) + "' and Deleted eq false"
	raw, ok, err := queryOne(ctx, s.lists, filter)
	if err != nil {
		return domain.List{}, err
	}
	if !ok {
		return domain.List{}, domain.NotFound("list", id)
	}
	var ent listEntity
	if err := json.Unmarshal(raw, &ent); err != nil {
		return domain.List{}, domain.StoreFailure(err)
	}
	return ent.toDomain(), nil
}

// ListLists returns the board's non-deleted lists in position order.
func (s *Store) ListLists(ctx context.Context, boardID string) ([]domain.List, error) {
	filter := "PartitionKey eq '" + filterValue(boardID) + "' and Deleted eq false"
	out := []domain.List{}
	err := query(ctx, s.lists, filter, func(raw []byte) error {
		var ent listEntity
		if err := json.Unmarshal(raw, &ent); err != nil {
			return domain.StoreFailure(err)
		}
		out = append(out, ent.toDomain())
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortLists(out)
	return out, nil
}

func (s *Store) SaveList(ctx context.Context, l domain.List) error {
	return s.upsert(ctx, s.lists, listToEntity(l))
}

// SaveLists persists the given lists as one transaction. All lists must
// belong to the same board, so they share a partition and commit atomically.
func (s *Store) SaveLists(ctx context.Context, lists []domain.List) error {
	if len(lists) == 0 {
		return nil
	}
	actions := make([]aztables.TransactionAction, 0, len(lists))
	for _, l := range lists {
		data, err := json.Marshal(listToEntity(l))
		if err != nil {
			return domain.StoreFailure(err)
		}
		actions = append(actions, aztables.TransactionAction{
			ActionType: aztables.TransactionTypeInsertMerge,
			Entity:     data,
		})
	}
	if _, err := s.lists.SubmitTransaction(ctx, actions, nil); err != nil {
		return domain.StoreFailure(err)
	}
	return nil
}

func (s *Store) FindCard(ctx context.Context, id string) (domain.Card, error) {
	filter := "RowKey eq '" + filterValue(id) + "' and Deleted eq false"
	raw, ok, err := queryOne(ctx, s.cards, filter)
	if err != nil {
		return domain.Card{}, err
	}
	if !ok {
		return domain.Card{}, domain.NotFound("card", id)
	}
	var ent cardEntity
	if err := json.Unmarshal(raw, &ent); err != nil {
		return domain.Card{}, domain.StoreFailure(err)
	}
	return ent.toDomain(), nil
}

// ListCards returns the list's non-deleted cards in position order.
func (s *Store) ListCards(ctx context.Context, listID string) ([]domain.Card, error) {
	filter := "PartitionKey eq '" + filterValue(listID) + "' and Deleted eq false"
	out := []domain.Card{}
	err := query(ctx, s.cards, filter, func(raw []byte) error {
		var ent cardEntity
		if err := json.Unmarshal(raw, &ent); err != nil {
			return domain.StoreFailure(err)
		}
		out = append(out, ent.toDomain())
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortCards(out)
	return out, nil
}

func (s *Store) SaveCard(ctx context.Context, c domain.Card) error {
	return s.upsert(ctx, s.cards, cardToEntity(c))
}

// SaveCards persists the given cards grouped by list. Cards of one list
// share a partition and commit as a single transaction; the caller holds
// the affected list locks when more than one partition is involved.
func (s *Store) SaveCards(ctx context.Context, cards []domain.Card) error {
	if len(cards) == 0 {
		return nil
	}
	byList := make(map[string][]domain.Card)
	order := []string{}
	for _, c := range cards {
		if _, ok := byList[c.ListID]; !ok {
			order = append(order, c.ListID)
		}
		byList[c.ListID] = append(byList[c.ListID], c)
	}
	for _, listID := range order {
		group := byList[listID]
		actions := make([]aztables.TransactionAction, 0, len(group))
		for _, c := range group {
			data, err := json.Marshal(cardToEntity(c))
			if err != nil {
				return domain.StoreFailure(err)
			}
			actions = append(actions, aztables.TransactionAction{
				ActionType: aztables.TransactionTypeInsertMerge,
				Entity:     data,
			})
		}
		if _, err := s.cards.SubmitTransaction(ctx, actions, nil); err != nil {
			return domain.StoreFailure(err)
		}
	}
	return nil
}

// RelocateCard moves a card's row to its new list partition. The old row is
// removed physically; this is a storage-layout change, not a soft delete.
func (s *Store) RelocateCard(ctx context.Context, c domain.Card, previousListID string) error {
	if err := s.SaveCard(ctx, c); err != nil {
		return err
	}
	if _, err := s.cards.DeleteEntity(ctx, previousListID, c.ID, nil); err != nil && !isNotFound(err) {
		return domain.StoreFailure(err)
	}
	return nil
}

func (s *Store) upsert(ctx context.Context, client *aztables.Client, ent any) error {
	data, err := json.Marshal(ent)
	if err != nil {
		return domain.StoreFailure(err)
	}
	if _, err := client.UpsertEntity(ctx, data, nil); err != nil {
		return domain.StoreFailure(err)
	}
	return nil
}

// Statistics aggregates entity counts for the admin dashboard.
type Statistics struct {
	Users      int `json:"totalUsers"`
	Workspaces int `json:"totalWorkspaces"`
	Boards     int `json:"totalBoards"`
	Cards      int `json:"totalCards"`
}

// CountEntities scans every table and counts non-deleted rows.
func (s *Store) CountEntities(ctx context.Context) (Statistics, error) {
	var stats Statistics
	targets := []struct {
		client *aztables.Client
		dst    *int
	}{
		{s.users, &stats.Users},
		{s.workspaces, &stats.Workspaces},
		{s.boards, &stats.Boards},
		{s.cards, &stats.Cards},
	}
	for _, tgt := range targets {
		n := 0
		err := query(ctx, tgt.client, "Deleted eq false", func([]byte) error {
			n++
			return nil
		})
		if err != nil {
			return Statistics{}, err
		}
		*tgt.dst = n
	}
	return stats, nil
}
