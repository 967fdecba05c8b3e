package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"inkwell/api/internal/access"
	"inkwell/api/internal/session"
	"inkwell/api/internal/store"
)

// CreateChatRoom is idempotent; creating an existing room is a no-op.
func (s *Service) CreateChatRoom(ctx context.Context, view session.View, projectID string) error {
	if projectID == "" {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Missing required fields", []string{"projectId"})
	}
	if _, err := s.loadProjectForRole(ctx, view.UserID, projectID, access.ActionChat); err != nil {
		return err
	}
	return s.store.CreateChatRoom(ctx, projectID)
}

type ChatMessageInput struct {
	ProjectID string `json:"projectId"`
	Content   string `json:"content"`
}

// SendChatMessage appends to the room's log. Chat is stored plaintext;
// project members can already read everything in the project.
func (s *Service) SendChatMessage(ctx context.Context, view session.View, input ChatMessageInput) (store.ChatMessage, error) {
	if strings.TrimSpace(input.Content) == "" {
		return store.ChatMessage{}, domainError(http.StatusUnprocessableEntity, "EMPTY_MESSAGE", "Message text must not be empty", nil)
	}
	if input.ProjectID == "" {
		return store.ChatMessage{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Missing required fields", []string{"projectId"})
	}
	if _, err := s.loadProjectForRole(ctx, view.UserID, input.ProjectID, access.ActionChat); err != nil {
		return store.ChatMessage{}, err
	}

	msg := store.ChatMessage{
		SenderID:   view.UserID,
		SenderName: view.Name,
		Content:    input.Content,
		SentAt:     time.Now().UTC(),
	}
	if err := s.store.AppendChatMessage(ctx, input.ProjectID, msg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ChatMessage{}, domainError(http.StatusNotFound, "NO_SUCH_ROOM", "Chat room does not exist", nil)
		}
		return store.ChatMessage{}, err
	}
	return msg, nil
}

// GetChatRoom returns the full message log for project members.
func (s *Service) GetChatRoom(ctx context.Context, view session.View, projectID string) (store.ChatRoom, error) {
	if _, err := s.loadProjectForRole(ctx, view.UserID, projectID, access.ActionChat); err != nil {
		return store.ChatRoom{}, err
	}
	room, err := s.store.GetChatRoom(ctx, projectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ChatRoom{}, domainError(http.StatusNotFound, "NO_SUCH_ROOM", "Chat room does not exist", nil)
		}
		return store.ChatRoom{}, err
	}
	return room, nil
}
