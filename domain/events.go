package domain

// Event types fanned out by the change dispatcher. Board lifecycle events go
// to the global boards topic; list and card events go to the affected
// board's topic.
const (
	BoardCreated = "BOARD_CREATED"
	BoardUpdated = "BOARD_UPDATED"
	BoardDeleted = "BOARD_DELETED"
	ListCreated  = "LIST_CREATED"
	ListUpdated  = "LIST_UPDATED"
	ListDeleted  = "LIST_DELETED"
	CardCreated  = "CARD_CREATED"
	CardUpdated  = "CARD_UPDATED"
	CardMoved    = "CARD_MOVED"
	CardDeleted  = "CARD_DELETED"
)

// TopicBoards is the global topic carrying board lifecycle events so that
// workspace-level listings stay live without per-board subscriptions.
const TopicBoards = "boards"

// TopicBoard names the per-board topic carrying list and card events.
func TopicBoard(boardID string) string { return "board:" + boardID }

// Message is one broadcast payload. It is denormalized: the projection of
// the changed entity plus actor id/name, so subscribers never need a
// follow-up fetch to render the change.
type Message struct {
	Type               string     `json:"type"`
	Board              *BoardView `json:"board,omitempty"`
	List               *ListView  `json:"list,omitempty"`
	Card               *CardView  `json:"card,omitempty"`
	BoardID            string     `json:"boardId,omitempty"`
	PreviousListID     string     `json:"previousListId,omitempty"`
	ListID             string     `json:"listId,omitempty"`
	CardID             string     `json:"cardId,omitempty"`
	LastModifiedBy     string     `json:"lastModifiedBy,omitempty"`
	LastModifiedByName string     `json:"lastModifiedByName,omitempty"`
}
