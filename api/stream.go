package api

import (
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"

	"kanban-api/domain"
)

const streamHeartbeat = 25 * time.Second

// streamUser authenticates an SSE request. EventSource cannot set headers,
// so a token query parameter stands in for the Authorization header.
func (s *Server) streamUser(c echo.Context) (domain.User, error) {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if header == "" {
		if token := c.QueryParam("token"); token != "" {
			header = "Bearer " + token
		}
	}
	userID, err := s.auth.UserIDFromAuthHeader(header)
	if err != nil {
		return domain.User{}, echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	user, err := s.board.CurrentUser(c.Request().Context(), userID)
	if err != nil {
		return domain.User{}, echo.NewHTTPError(http.StatusUnauthorized, "unknown principal")
	}
	return user, nil
}

func prepareStream(c echo.Context) (http.Flusher, error) {
	h := c.Response().Header()
	h.Set(echo.HeaderContentType, "text/event-stream")
	h.Set(echo.HeaderCacheControl, "no-cache")
	h.Set(echo.HeaderConnection, "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		return nil, c.String(http.StatusInternalServerError, "stream unsupported")
	}
	return flusher, nil
}

func writeFrame(c echo.Context, flusher http.Flusher, event string, data []byte) error {
	if event != "" {
		if _, err := c.Response().Write([]byte("event: " + event + "\n")); err != nil {
			return err
		}
	}
	if _, err := c.Response().Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := c.Response().Write(data); err != nil {
		return err
	}
	if _, err := c.Response().Write([]byte("\n\n")); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

// streamBoard serves the live event stream of one board. The first frame is
// a full snapshot; every following frame is one committed mutation. Clients
// that fall behind the buffer miss frames and should reconnect for a fresh
// snapshot.
func (s *Server) streamBoard(c echo.Context) error {
	user, err := s.streamUser(c)
	if err != nil {
		return err
	}
	boardID := c.Param("id")
	ctx := c.Request().Context()

	// The snapshot doubles as the access check: a denied subscriber never
	// gets a topic attached.
	board, lists, err := s.board.BoardSnapshot(ctx, user, boardID)
	if err != nil {
		return s.respondError(c, err)
	}

	flusher, err := prepareStream(c)
	if err != nil {
		return err
	}
	snapshot, err := sonic.Marshal(boardSnapshotResponse{Board: board, Lists: lists})
	if err != nil {
		return err
	}
	if err := writeFrame(c, flusher, "snapshot", snapshot); err != nil {
		return nil
	}

	events, cancel := s.streams.Subscribe(domain.TopicBoard(boardID))
	defer cancel()

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case payload, ok := <-events:
			if !ok {
				return nil
			}
			if err := writeFrame(c, flusher, "", payload); err != nil {
				return nil
			}
		case <-heartbeat.C:
			if _, err := c.Response().Write([]byte(": ping\n\n")); err != nil {
				return nil
			}
			flusher.Flush()
		}
	}
}

// streamBoards serves the global board lifecycle stream: creations, renames,
// and deletions across all boards the client lists.
func (s *Server) streamBoards(c echo.Context) error {
	_, err := s.streamUser(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	flusher, err := prepareStream(c)
	if err != nil {
		return err
	}
	if err := writeFrame(c, flusher, "ready", []byte("{}")); err != nil {
		return nil
	}

	events, cancel := s.streams.Subscribe(domain.TopicBoards)
	defer cancel()

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case payload, ok := <-events:
			if !ok {
				return nil
			}
			if err := writeFrame(c, flusher, "", payload); err != nil {
				return nil
			}
		case <-heartbeat.C:
			if _, err := c.Response().Write([]byte(": ping\n\n")); err != nil {
				return nil
			}
			flusher.Flush()
		}
	}
}
