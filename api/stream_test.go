package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"kanban-api/domain"
)

// stubStreams hands every subscriber a pre-filled channel that is already
// closed, so the stream handler drains the frames and returns.
type stubStreams struct {
	payloads []string
	topics   []string
}

func (s *stubStreams) Subscribe(topic string) (<-chan []byte, func()) {
	s.topics = append(s.topics, topic)
	ch := make(chan []byte, len(s.payloads))
	for _, p := range s.payloads {
		ch <- []byte(p)
	}
	close(ch)
	return ch, func() {}
}

type snapshotBoard struct {
	fakeBoard
	denied bool
}

func (b *snapshotBoard) BoardSnapshot(_ context.Context, _ domain.User, boardID string) (domain.BoardView, []domain.ListView, error) {
	if b.denied {
		return domain.BoardView{}, nil, domain.AccessDenied("board", boardID)
	}
	return domain.BoardView{ID: boardID, Name: "sprint"}, []domain.ListView{{ID: "l1", BoardID: boardID}}, nil
}

func newStreamServer(t *testing.T, board TaskBoard, streams Streams) *echo.Echo {
	t.Helper()
	e := echo.New()
	logger := log.New()
	logger.SetLevel(log.PanicLevel)
	Register(e, board, &stubAuth{userID: "u1"}, nil, streams, logger)
	return e
}

func TestStreamBoardSendsSnapshotThenEvents(t *testing.T) {
	streams := &stubStreams{payloads: []string{`{"type":"CARD_MOVED","cardId":"c1"}`}}
	board := &snapshotBoard{fakeBoard: fakeBoard{user: domain.User{ID: "u1"}}}
	e := newStreamServer(t, board, streams)

	req := httptest.NewRequest(http.MethodGet, "/api/stream/boards/b1", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer good")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, "event: snapshot\n") {
		t.Fatalf("no snapshot frame: %s", body)
	}
	if !strings.Contains(body, `"CARD_MOVED"`) {
		t.Fatalf("no event frame: %s", body)
	}
	if strings.Index(body, "snapshot") > strings.Index(body, "CARD_MOVED") {
		t.Fatal("snapshot frame did not come first")
	}
	if len(streams.topics) != 1 || streams.topics[0] != domain.TopicBoard("b1") {
		t.Fatalf("topics = %v", streams.topics)
	}
	if got := rec.Header().Get(echo.HeaderContentType); got != "text/event-stream" {
		t.Fatalf("content type = %s", got)
	}
}

func TestStreamBoardDeniedBeforeSubscribing(t *testing.T) {
	streams := &stubStreams{}
	board := &snapshotBoard{fakeBoard: fakeBoard{user: domain.User{ID: "u1"}}, denied: true}
	e := newStreamServer(t, board, streams)

	req := httptest.NewRequest(http.MethodGet, "/api/stream/boards/b1", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer good")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(streams.topics) != 0 {
		t.Fatal("denied client was subscribed")
	}
}

func TestStreamBoardAcceptsQueryToken(t *testing.T) {
	streams := &stubStreams{}
	board := &snapshotBoard{fakeBoard: fakeBoard{user: domain.User{ID: "u1"}}}
	e := newStreamServer(t, board, streams)

	req := httptest.NewRequest(http.MethodGet, "/api/stream/boards/b1?token=good", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
}

func TestStreamBoardsRelaysGlobalTopic(t *testing.T) {
	streams := &stubStreams{payloads: []string{`{"type":"BOARD_CREATED","boardId":"b9"}`}}
	board := &snapshotBoard{fakeBoard: fakeBoard{user: domain.User{ID: "u1"}}}
	e := newStreamServer(t, board, streams)

	req := httptest.NewRequest(http.MethodGet, "/api/stream/boards", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer good")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, "event: ready\n") {
		t.Fatalf("no ready frame: %s", body)
	}
	if !strings.Contains(body, `"BOARD_CREATED"`) {
		t.Fatalf("no event frame: %s", body)
	}
	if len(streams.topics) != 1 || streams.topics[0] != domain.TopicBoards {
		t.Fatalf("topics = %v", streams.topics)
	}
}
