package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"kanban-api/access"
	"kanban-api/domain"
	"kanban-api/storage"
)

// memStore is an in-memory Store for coordinator tests. Soft-deleted rows
// stay in the maps and are filtered on the read path, matching the table
// store's behavior.
type memStore struct {
	mu           sync.Mutex
	users        map[string]domain.User
	workspaces   map[string]domain.Workspace
	wsMembers    map[string]domain.WorkspaceMember
	boards       map[string]domain.Board
	boardMembers map[string]domain.BoardMember
	lists        map[string]domain.List
	cards        map[string]domain.Card
}

func newMemStore() *memStore {
	return &memStore{
		users:        make(map[string]domain.User),
		workspaces:   make(map[string]domain.Workspace),
		wsMembers:    make(map[string]domain.WorkspaceMember),
		boards:       make(map[string]domain.Board),
		boardMembers: make(map[string]domain.BoardMember),
		lists:        make(map[string]domain.List),
		cards:        make(map[string]domain.Card),
	}
}

func memberKey(a, b string) string { return a + "|" + b }

func (m *memStore) FindUser(_ context.Context, id string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok || u.Deleted {
		return domain.User{}, domain.NotFound("user", id)
	}
	return u, nil
}

func (m *memStore) FindUserByUsername(_ context.Context, username string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username && !u.Deleted {
			return u, nil
		}
	}
	return domain.User{}, domain.NotFound("user", username)
}

func (m *memStore) SaveUser(_ context.Context, u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	return nil
}

func (m *memStore) FindWorkspace(_ context.Context, id string) (domain.Workspace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.workspaces[id]
	if !ok || w.Deleted {
		return domain.Workspace{}, domain.NotFound("workspace", id)
	}
	return w, nil
}

func (m *memStore) ListWorkspaces(_ context.Context) ([]domain.Workspace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Workspace
	for _, w := range m.workspaces {
		if !w.Deleted {
			out = append(out, w)
		}
	}
	return out, nil
}

func (m *memStore) SaveWorkspace(_ context.Context, w domain.Workspace) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workspaces[w.ID] = w
	return nil
}

func (m *memStore) FindWorkspaceMember(_ context.Context, workspaceID, userID string) (domain.WorkspaceMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem, ok := m.wsMembers[memberKey(workspaceID, userID)]
	if !ok || mem.Deleted {
		return domain.WorkspaceMember{}, domain.NotFound("workspace member", userID)
	}
	return mem, nil
}

func (m *memStore) ListWorkspaceMembers(_ context.Context, workspaceID string) ([]domain.WorkspaceMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.WorkspaceMember
	for _, mem := range m.wsMembers {
		if mem.WorkspaceID == workspaceID && !mem.Deleted {
			out = append(out, mem)
		}
	}
	return out, nil
}

func (m *memStore) ListMemberWorkspaceIDs(_ context.Context, userID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, mem := range m.wsMembers {
		if mem.UserID == userID && !mem.Deleted {
			out = append(out, mem.WorkspaceID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *memStore) SaveWorkspaceMember(_ context.Context, mem domain.WorkspaceMember) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wsMembers[memberKey(mem.WorkspaceID, mem.UserID)] = mem
	return nil
}

func (m *memStore) FindBoard(_ context.Context, id string) (domain.Board, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.boards[id]
	if !ok || b.Deleted {
		return domain.Board{}, domain.NotFound("board", id)
	}
	return b, nil
}

func (m *memStore) ListBoards(_ context.Context, workspaceID string) ([]domain.Board, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Board
	for _, b := range m.boards {
		if b.WorkspaceID == workspaceID && !b.Deleted {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *memStore) SaveBoard(_ context.Context, b domain.Board) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.boards[b.ID] = b
	return nil
}

func (m *memStore) FindBoardMember(_ context.Context, boardID, userID string) (domain.BoardMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem, ok := m.boardMembers[memberKey(boardID, userID)]
	if !ok || mem.Deleted {
		return domain.BoardMember{}, domain.NotFound("board member", userID)
	}
	return mem, nil
}

func (m *memStore) SaveBoardMember(_ context.Context, mem domain.BoardMember) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.boardMembers[memberKey(mem.BoardID, mem.UserID)] = mem
	return nil
}

func (m *memStore) FindList(_ context.Context, id string) (domain.List, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.lists[id]
	if !ok || l.Deleted {
		return domain.List{}, domain.NotFound("list", id)
	}
	return l, nil
}

func (m *memStore) ListLists(_ context.Context, boardID string) ([]domain.List, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.List
	for _, l := range m.lists {
		if l.BoardID == boardID && !l.Deleted {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (m *memStore) SaveList(_ context.Context, l domain.List) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists[l.ID] = l
	return nil
}

func (m *memStore) SaveLists(ctx context.Context, lists []domain.List) error {
	for _, l := range lists {
		if err := m.SaveList(ctx, l); err != nil {
			return err
		}
	}
	return nil
}

func (m *memStore) FindCard(_ context.Context, id string) (domain.Card, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cards[id]
	if !ok || c.Deleted {
		return domain.Card{}, domain.NotFound("card", id)
	}
	return c, nil
}

func (m *memStore) ListCards(_ context.Context, listID string) ([]domain.Card, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Card
	for _, c := range m.cards {
		if c.ListID == listID && !c.Deleted {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (m *memStore) SaveCard(_ context.Context, c domain.Card) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cards[c.ID] = c
	return nil
}

func (m *memStore) SaveCards(ctx context.Context, cards []domain.Card) error {
	for _, c := range cards {
		if err := m.SaveCard(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

func (m *memStore) RelocateCard(ctx context.Context, c domain.Card, _ string) error {
	return m.SaveCard(ctx, c)
}

func (m *memStore) CountEntities(_ context.Context) (storage.Statistics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := storage.Statistics{}
	for _, u := range m.users {
		if !u.Deleted {
			stats.Users++
		}
	}
	for _, w := range m.workspaces {
		if !w.Deleted {
			stats.Workspaces++
		}
	}
	for _, b := range m.boards {
		if !b.Deleted {
			stats.Boards++
		}
	}
	for _, c := range m.cards {
		if !c.Deleted {
			stats.Cards++
		}
	}
	return stats, nil
}

// recorder captures published events.
type recorder struct {
	mu     sync.Mutex
	topics []string
	msgs   []domain.Message
}

func (r *recorder) Publish(_ context.Context, topic string, msg domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics = append(r.topics, topic)
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

func (r *recorder) last() (string, domain.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.msgs) == 0 {
		return "", domain.Message{}
	}
	return r.topics[len(r.topics)-1], r.msgs[len(r.msgs)-1]
}

// fixture is a populated coordinator: one workspace owned by owner, one board
// with lists "todo" (cards c0..c2) and "doing" (card d0), plus a plain member
// and an outsider with no memberships.
type fixture struct {
	store    *memStore
	events   *recorder
	coord    *Coordinator
	owner    domain.User
	member   domain.User
	outsider domain.User
	board    domain.Board
	todo     domain.List
	doing    domain.List
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := newMemStore()
	events := &recorder{}
	logger := log.New()
	logger.SetLevel(log.PanicLevel)
	coord := New(store, access.New(store), events, nil, logger)

	next := 0
	coord.newID = func() string {
		next++
		return fmt.Sprintf("id-%d", next)
	}
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	coord.now = func() time.Time {
		base = base.Add(time.Second)
		return base
	}

	ctx := context.Background()
	owner := domain.User{ID: "u-owner", Username: "owner", Role: domain.RoleUser}
	member := domain.User{ID: "u-member", Username: "member", Role: domain.RoleUser}
	outsider := domain.User{ID: "u-out", Username: "out", Role: domain.RoleUser}
	for _, u := range []domain.User{owner, member, outsider} {
		if err := store.SaveUser(ctx, u); err != nil {
			t.Fatal(err)
		}
	}

	ws := domain.Workspace{ID: "ws-1", Name: "eng", OwnerID: owner.ID}
	if err := store.SaveWorkspace(ctx, ws); err != nil {
		t.Fatal(err)
	}
	members := []domain.WorkspaceMember{
		{WorkspaceID: ws.ID, UserID: owner.ID, Role: domain.WorkspaceOwner},
		{WorkspaceID: ws.ID, UserID: member.ID, Role: domain.WorkspaceMemberRole},
	}
	for _, m := range members {
		if err := store.SaveWorkspaceMember(ctx, m); err != nil {
			t.Fatal(err)
		}
	}

	board := domain.Board{ID: "b-1", WorkspaceID: ws.ID, Name: "sprint", CreatedBy: owner.ID}
	if err := store.SaveBoard(ctx, board); err != nil {
		t.Fatal(err)
	}
	todo := domain.List{ID: "l-todo", BoardID: board.ID, Name: "todo", Position: 0}
	doing := domain.List{ID: "l-doing", BoardID: board.ID, Name: "doing", Position: 1}
	for _, l := range []domain.List{todo, doing} {
		if err := store.SaveList(ctx, l); err != nil {
			t.Fatal(err)
		}
	}
	cards := []domain.Card{
		{ID: "c0", ListID: todo.ID, Title: "zero", Position: 0, CreatedBy: owner.ID, Priority: domain.PriorityMedium},
		{ID: "c1", ListID: todo.ID, Title: "one", Position: 1, CreatedBy: owner.ID, Priority: domain.PriorityMedium},
		{ID: "c2", ListID: todo.ID, Title: "two", Position: 2, CreatedBy: owner.ID, Priority: domain.PriorityMedium},
		{ID: "d0", ListID: doing.ID, Title: "busy", Position: 0, CreatedBy: owner.ID, Priority: domain.PriorityMedium},
	}
	for _, c := range cards {
		if err := store.SaveCard(ctx, c); err != nil {
			t.Fatal(err)
		}
	}

	return &fixture{
		store:    store,
		events:   events,
		coord:    coord,
		owner:    owner,
		member:   member,
		outsider: outsider,
		board:    board,
		todo:     todo,
		doing:    doing,
	}
}

// order returns the ids of the list's active cards in position order.
func (f *fixture) order(t *testing.T, listID string) []string {
	t.Helper()
	cards, err := f.store.ListCards(context.Background(), listID)
	if err != nil {
		t.Fatal(err)
	}
	out := make([]string, 0, len(cards))
	for _, c := range cards {
		out = append(out, c.ID)
	}
	return out
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func contiguous(t *testing.T, store *memStore, listID string) {
	t.Helper()
	cards, err := store.ListCards(context.Background(), listID)
	if err != nil {
		t.Fatal(err)
	}
	for i, c := range cards {
		if c.Position != i {
			t.Fatalf("list %s position %d held by %s at index %d", listID, c.Position, c.ID, i)
		}
	}
}
