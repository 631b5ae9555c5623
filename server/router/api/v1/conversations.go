package v1

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/apexgrid/pitwall/store"
)

type createConversationRequest struct {
	ID string `json:"id,omitempty"`
}

type updateMessagesRequest struct {
	Messages []store.Message `json:"messages"`
}

type updateTitleRequest struct {
	Title string `json:"title"`
}

// ListConversations returns every conversation, most recent activity first.
func (s *APIV1Service) ListConversations(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"conversations": s.Store.ListAll(),
		"current":       s.Store.CurrentID(),
	})
}

// CreateConversation creates a conversation, generating an id when the
// caller does not supply one. Creating an existing id returns it unchanged.
func (s *APIV1Service) CreateConversation(c echo.Context) error {
	var req createConversationRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"detail": "invalid request body"})
	}
	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	conv := s.Store.CreateConversation(c.Request().Context(), id)
	return c.JSON(http.StatusOK, conv)
}

func (s *APIV1Service) GetConversation(c echo.Context) error {
	conv, ok := s.Store.Get(c.Param("id"))
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"detail": "conversation not found"})
	}
	return c.JSON(http.StatusOK, conv)
}

func (s *APIV1Service) DeleteConversation(c echo.Context) error {
	id := c.Param("id")
	if _, ok := s.Store.Get(id); !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"detail": "conversation not found"})
	}
	s.Store.Remove(c.Request().Context(), id)
	return c.NoContent(http.StatusNoContent)
}

func (s *APIV1Service) UpdateConversationMessages(c echo.Context) error {
	id := c.Param("id")
	if _, ok := s.Store.Get(id); !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"detail": "conversation not found"})
	}
	var req updateMessagesRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"detail": "invalid request body"})
	}
	s.Store.UpdateMessages(c.Request().Context(), id, req.Messages)
	conv, _ := s.Store.Get(id)
	return c.JSON(http.StatusOK, conv)
}

func (s *APIV1Service) UpdateConversationTitle(c echo.Context) error {
	id := c.Param("id")
	if _, ok := s.Store.Get(id); !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"detail": "conversation not found"})
	}
	var req updateTitleRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"detail": "invalid request body"})
	}
	s.Store.UpdateTitle(c.Request().Context(), id, req.Title)
	conv, _ := s.Store.Get(id)
	return c.JSON(http.StatusOK, conv)
}

func (s *APIV1Service) UpdateConversationViewState(c echo.Context) error {
	id := c.Param("id")
	if _, ok := s.Store.Get(id); !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"detail": "conversation not found"})
	}
	var state json.RawMessage
	if err := c.Bind(&state); err != nil || !json.Valid(state) {
		return c.JSON(http.StatusBadRequest, map[string]string{"detail": "invalid view state payload"})
	}
	s.Store.UpdateViewState(c.Request().Context(), id, state)
	conv, _ := s.Store.Get(id)
	return c.JSON(http.StatusOK, conv)
}
