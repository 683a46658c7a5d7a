package api

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"kanban-api/domain"
	"kanban-api/service"
)

const (
	maxBodySize      = 64 * 1024 // 64 KiB
	headerIdempotent = "Idempotency-Key"
	loginTokenTTL    = 24 * time.Hour
)

// Server holds the handler dependencies.
type Server struct {
	board   TaskBoard
	auth    Authenticator
	deduper Deduper
	streams Streams
	logger  *log.Logger
}

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, board TaskBoard, auth Authenticator, deduper Deduper, streams Streams, logger *log.Logger) *Server {
	s := &Server{board: board, auth: auth, deduper: deduper, streams: streams, logger: logger}

	e.POST("/api/auth/register", s.register)
	e.POST("/api/auth/login", s.login)

	e.GET("/api/workspaces", s.listWorkspaces)
	e.POST("/api/workspaces", s.createWorkspace)
	e.PATCH("/api/workspaces/:id", s.updateWorkspace)
	e.DELETE("/api/workspaces/:id", s.deleteWorkspace)
	e.GET("/api/workspaces/:id/members", s.listWorkspaceMembers)
	e.POST("/api/workspaces/:id/members", s.addWorkspaceMember)
	e.DELETE("/api/workspaces/:id/members/:userId", s.removeWorkspaceMember)

	e.GET("/api/workspaces/:id/boards", s.listBoards)
	e.POST("/api/workspaces/:id/boards", s.createBoard)
	e.GET("/api/boards/:id", s.getBoard)
	e.PATCH("/api/boards/:id", s.updateBoard)
	e.DELETE("/api/boards/:id", s.deleteBoard)
	e.POST("/api/boards/:id/members", s.addBoardMember)
	e.DELETE("/api/boards/:id/members/:userId", s.removeBoardMember)

	e.POST("/api/boards/:id/lists", s.createList)
	e.PATCH("/api/lists/:id", s.updateList)
	e.DELETE("/api/lists/:id", s.deleteList)

	e.GET("/api/lists/:id/cards", s.listCards)
	e.POST("/api/lists/:id/cards", s.createCard)
	e.PATCH("/api/cards/:id", s.updateCard)
	e.DELETE("/api/cards/:id", s.deleteCard)
	e.POST("/api/cards/:id/move", s.moveCard)

	e.GET("/api/stream/boards", s.streamBoards)
	e.GET("/api/stream/boards/:id", s.streamBoard)

	e.GET("/api/admin/statistics", s.statistics)
	e.GET("/healthz", s.healthz)

	return s
}

type errorResponse struct {
	Error string `json:"error"`
}

// respondError maps the error taxonomy onto HTTP statuses. Store failures are
// reported as a bad gateway without leaking the underlying error.
func (s *Server) respondError(c echo.Context, err error) error {
	kind := domain.KindOf(err)
	msg := "storage unavailable"
	if kind != domain.KindStoreFailure {
		msg = err.Error()
	} else {
		s.logger.WithError(err).Error("request failed")
	}
	switch kind {
	case domain.KindNotFound:
		return c.JSON(http.StatusNotFound, errorResponse{Error: msg})
	case domain.KindAccessDenied:
		return c.JSON(http.StatusForbidden, errorResponse{Error: msg})
	case domain.KindValidation:
		return c.JSON(http.StatusBadRequest, errorResponse{Error: msg})
	case domain.KindConflict:
		return c.JSON(http.StatusConflict, errorResponse{Error: msg})
	default:
		return c.JSON(http.StatusBadGateway, errorResponse{Error: msg})
	}
}

// decodeBody reads a size-capped JSON body, rejecting unknown fields.
func decodeBody(c echo.Context, v any) error {
	lr := io.LimitReader(c.Request().Body, maxBodySize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// currentUser authenticates the request and resolves the principal.
func (s *Server) currentUser(c echo.Context) (domain.User, error) {
	userID, err := s.auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
	if err != nil {
		return domain.User{}, echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	user, err := s.board.CurrentUser(c.Request().Context(), userID)
	if err != nil {
		if domain.KindOf(err) == domain.KindNotFound {
			return domain.User{}, echo.NewHTTPError(http.StatusUnauthorized, "unknown principal")
		}
		return domain.User{}, err
	}
	return user, nil
}

// guardReplay claims the request's Idempotency-Key, when present. It returns
// a release function to call if the mutation fails, so the client may retry
// with the same key.
func (s *Server) guardReplay(c echo.Context, userID string) (func(), error) {
	key := c.Request().Header.Get(headerIdempotent)
	if key == "" || s.deduper == nil {
		return func() {}, nil
	}
	ctx := c.Request().Context()
	fresh, err := s.deduper.Add(ctx, userID, key)
	if err != nil {
		return nil, domain.StoreFailure(err)
	}
	if !fresh {
		return nil, domain.Conflict("duplicate request")
	}
	return func() {
		if err := s.deduper.Remove(context.Background(), userID, key); err != nil {
			s.logger.WithError(err).Warn("idempotency key release failed")
		}
	}, nil
}

func (s *Server) healthz(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"fullName"`
}

func (s *Server) register(c echo.Context) error {
	var req registerRequest
	if err := decodeBody(c, &req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
	}
	user, err := s.board.Register(c.Request().Context(), req.Username, req.Email, req.Password, req.FullName)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusCreated, user)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

func (s *Server) login(c echo.Context) error {
	var req loginRequest
	if err := decodeBody(c, &req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
	}
	user, err := s.board.Login(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		if domain.KindOf(err) == domain.KindAccessDenied {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: "invalid credentials"})
		}
		return s.respondError(c, err)
	}
	token, err := s.auth.IssueToken(user.ID, loginTokenTTL)
	if err != nil {
		s.logger.WithError(err).Error("token issue failed")
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "cannot issue token"})
	}
	return c.JSON(http.StatusOK, loginResponse{Token: token, User: user})
}

type workspaceRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

func (s *Server) listWorkspaces(c echo.Context) error {
	user, err := s.currentUser(c)
	if err != nil {
		return err
	}
	views, err := s.board.ListWorkspaces(c.Request().Context(), user)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, views)
}

func (s *Server) createWorkspace(c echo.Context) error {
	user, err := s.currentUser(c)
	if err != nil {
		return err
	}
	var req workspaceRequest
	if err := decodeBody(c, &req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
	}
	name, description := "", ""
	if req.Name != nil {
		name = *req.Name
	}
	if req.Description != nil {
		description = *req.Description
	}
	view, err := s.board.CreateWorkspace(c.Request().Context(), user, name, description)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusCreated, view)
}

func (s *Server) updateWorkspace(c echo.Context) error {
	user, err := s.currentUser(c)
	if err != nil {
		return err
	}
	var req workspaceRequest
	if err := decodeBody(c, &req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
	}
	view, err := s.board.UpdateWorkspace(c.Request().Context(), user, c.Param("id"), req.Name, req.Description)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

func (s *Server) deleteWorkspace(c echo.Context) error {
	user, err := s.currentUser(c)
	if err != nil {
		return err
	}
	if err := s.board.DeleteWorkspace(c.Request().Context(), user, c.Param("id")); err != nil {
		return s.respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) listWorkspaceMembers(c echo.Context) error {
	user, err := s.currentUser(c)
	if err != nil {
		return err
	}
	views, err := s.board.ListMembers(c.Request().Context(), user, c.Param("id"))
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, views)
}

type memberRequest struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

func (s *Server) addWorkspaceMember(c echo.Context) error {
	user, err := s.currentUser(c)
	if err != nil {
		return err
	}
	var req memberRequest
	if err := decodeBody(c, &req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
	}
	role := domain.WorkspaceRole(req.Role)
	if req.Role == "" {
		role = domain.WorkspaceMemberRole
	}
	if err := s.board.AddMember(c.Request().Context(), user, c.Param("id"), req.UserID, role); err != nil {
		return s.respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) removeWorkspaceMember(c echo.Context) error {
	user, err := s.currentUser(c)
	if err != nil {
		return err
	}
	if err := s.board.RemoveMember(c.Request().Context(), user, c.Param("id"), c.Param("userId")); err != nil {
		return s.respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) listBoards(c echo.Context) error {
	user, err := s.currentUser(c)
	if err != nil {
		return err
	}
	views, err := s.board.ListBoards(c.Request().Context(), user, c.Param("id"))
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, views)
}

type boardRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

func (s *Server) createBoard(c echo.Context) error {
	user, err := s.currentUser(c)
	if err != nil {
		return err
	}
	var req boardRequest
	if err := decodeBody(c, &req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
	}
	name, description := "", ""
	if req.Name != nil {
		name = *req.Name
	}
	if req.Description != nil {
		description = *req.Description
	}
	release, err := s.guardReplay(c, user.ID)
	if err != nil {
		return s.respondError(c, err)
	}
	view, err := s.board.CreateBoard(c.Request().Context(), user, c.Param("id"), name, description)
	if err != nil {
		release()
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusCreated, view)
}

type boardSnapshotResponse struct {
	Board domain.BoardView  `json:"board"`
	Lists []domain.ListView `json:"lists"`
}

func (s *Server) getBoard(c echo.Context) error {
	user, err := s.currentUser(c)
	if err != nil {
		return err
	}
	metrics, ctx := newSnapshotMetrics(c.Request().Context(), s.logger)
	board, lists, err := s.board.BoardSnapshot(ctx, user, c.Param("id"))
	if err != nil {
		metrics.Finish(0, err)
		return s.respondError(c, err)
	}
	metrics.Finish(len(lists), nil)
	return c.JSON(http.StatusOK, boardSnapshotResponse{Board: board, Lists: lists})
}

func (s *Server) updateBoard(c echo.Context) error {
	user, err := s.currentUser(c)
	if err != nil {
		return err
	}
	var req boardRequest
	if err := decodeBody(c, &req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
	}
	view, err := s.board.UpdateBoard(c.Request().Context(), user, c.Param("id"), req.Name, req.Description)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

func (s *Server) deleteBoard(c echo.Context) error {
	user, err := s.currentUser(c)
	if err != nil {
		return err
	}
	if err := s.board.DeleteBoard(c.Request().Context(), user, c.Param("id")); err != nil {
		return s.respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) addBoardMember(c echo.Context) error {
	user, err := s.currentUser(c)
	if err != nil {
		return err
	}
	var req memberRequest
	if err := decodeBody(c, &req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
	}
	if err := s.board.AddBoardMember(c.Request().Context(), user, c.Param("id"), req.UserID); err != nil {
		return s.respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) removeBoardMember(c echo.Context) error {
	user, err := s.currentUser(c)
	if err != nil {
		return err
	}
	if err := s.board.RemoveBoardMember(c.Request().Context(), user, c.Param("id"), c.Param("userId")); err != nil {
		return s.respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

type listRequest struct {
	Name     *string `json:"name"`
	Position *int    `json:"position"`
}

func (s *Server) createList(c echo.Context) error {
	user, err := s.currentUser(c)
	if err != nil {
		return err
	}
	var req listRequest
	if err := decodeBody(c, &req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
	}
	name := ""
	if req.Name != nil {
		name = *req.Name
	}
	release, err := s.guardReplay(c, user.ID)
	if err != nil {
		return s.respondError(c, err)
	}
	view, err := s.board.CreateList(c.Request().Context(), user, c.Param("id"), name, req.Position)
	if err != nil {
		release()
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusCreated, view)
}

func (s *Server) updateList(c echo.Context) error {
	user, err := s.currentUser(c)
	if err != nil {
		return err
	}
	var req listRequest
	if err := decodeBody(c, &req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
	}
	view, err := s.board.UpdateList(c.Request().Context(), user, c.Param("id"), req.Name, req.Position)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

func (s *Server) deleteList(c echo.Context) error {
	user, err := s.currentUser(c)
	if err != nil {
		return err
	}
	if err := s.board.DeleteList(c.Request().Context(), user, c.Param("id")); err != nil {
		return s.respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) listCards(c echo.Context) error {
	user, err := s.currentUser(c)
	if err != nil {
		return err
	}
	views, err := s.board.ListCardsView(c.Request().Context(), user, c.Param("id"))
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, views)
}

type cardRequest struct {
	Title           *string    `json:"title"`
	Description     *string    `json:"description"`
	Priority        *string    `json:"priority"`
	DueDate         *time.Time `json:"dueDate"`
	ClearDueDate    bool       `json:"clearDueDate,omitempty"`
	AssignedUserIDs []string   `json:"assignedUserIds"`
	Position        *int       `json:"position"`
}

func (s *Server) createCard(c echo.Context) error {
	user, err := s.currentUser(c)
	if err != nil {
		return err
	}
	var req cardRequest
	if err := decodeBody(c, &req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
	}
	params := service.CreateCardParams{
		DueDate:         req.DueDate,
		AssignedUserIDs: req.AssignedUserIDs,
		Position:        req.Position,
	}
	if req.Title != nil {
		params.Title = *req.Title
	}
	if req.Description != nil {
		params.Description = *req.Description
	}
	if req.Priority != nil {
		params.Priority = *req.Priority
	}
	release, err := s.guardReplay(c, user.ID)
	if err != nil {
		return s.respondError(c, err)
	}
	view, err := s.board.CreateCard(c.Request().Context(), user, c.Param("id"), params)
	if err != nil {
		release()
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusCreated, view)
}

func (s *Server) updateCard(c echo.Context) error {
	user, err := s.currentUser(c)
	if err != nil {
		return err
	}
	var req cardRequest
	if err := decodeBody(c, &req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
	}
	if req.Position != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "use the move operation to change position"})
	}
	view, err := s.board.UpdateCard(c.Request().Context(), user, c.Param("id"), service.UpdateCardParams{
		Title:           req.Title,
		Description:     req.Description,
		Priority:        req.Priority,
		DueDate:         req.DueDate,
		ClearDueDate:    req.ClearDueDate,
		AssignedUserIDs: req.AssignedUserIDs,
	})
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

func (s *Server) deleteCard(c echo.Context) error {
	user, err := s.currentUser(c)
	if err != nil {
		return err
	}
	if err := s.board.DeleteCard(c.Request().Context(), user, c.Param("id")); err != nil {
		return s.respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

type moveCardRequest struct {
	TargetListID string `json:"targetListId"`
	Position     int    `json:"position"`
}

func (s *Server) moveCard(c echo.Context) error {
	user, err := s.currentUser(c)
	if err != nil {
		return err
	}
	var req moveCardRequest
	if err := decodeBody(c, &req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
	}
	release, err := s.guardReplay(c, user.ID)
	if err != nil {
		return s.respondError(c, err)
	}
	metrics, ctx := newMoveMetrics(c.Request().Context(), s.logger, c.Param("id"))
	view, err := s.board.MoveCard(ctx, user, c.Param("id"), req.TargetListID, req.Position)
	metrics.Finish(err)
	if err != nil {
		release()
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

func (s *Server) statistics(c echo.Context) error {
	user, err := s.currentUser(c)
	if err != nil {
		return err
	}
	stats, err := s.board.Statistics(c.Request().Context(), user)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, stats)
}
