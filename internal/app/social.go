package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"inkwell/api/internal/access"
	"inkwell/api/internal/session"
	"inkwell/api/internal/store"
	"inkwell/api/internal/util"
)

type SendMessageInput struct {
	RecipientID  string `json:"recipientId"`
	Text         string `json:"text"`
	ProjectID    string `json:"projectId,omitempty"`
	ProjectTitle string `json:"projectTitle,omitempty"`
}

// SendDirectMessage encrypts the text and prepends it to the recipient's
// inbox. Blocking is enforced at send time only; existing messages survive a
// later block.
func (s *Service) SendDirectMessage(ctx context.Context, view session.View, input SendMessageInput) (store.Message, error) {
	return s.sendMessage(ctx, view, input, false)
}

// SendFriendRequest delivers a flagged message the recipient can answer with
// RespondToFriendRequest.
func (s *Service) SendFriendRequest(ctx context.Context, view session.View, input SendMessageInput) (store.Message, error) {
	return s.sendMessage(ctx, view, input, true)
}

func (s *Service) sendMessage(ctx context.Context, view session.View, input SendMessageInput, friendRequest bool) (store.Message, error) {
	if strings.TrimSpace(input.Text) == "" {
		return store.Message{}, domainError(http.StatusUnprocessableEntity, "EMPTY_MESSAGE", "Message text must not be empty", nil)
	}
	if input.RecipientID == "" {
		return store.Message{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Missing required fields", []string{"recipientId"})
	}

	recipient, err := s.store.GetUserByID(ctx, input.RecipientID)
	if err != nil {
		return store.Message{}, err
	}
	if containsString(recipient.Profile.BlockedUsers, view.UserID) {
		return store.Message{}, domainError(http.StatusForbidden, "BLOCKED", "This user has blocked you", nil)
	}

	ciphertext, err := s.cipher.Encrypt(input.Text)
	if err != nil {
		return store.Message{}, fmt.Errorf("encrypt message: %w", err)
	}

	msg := store.Message{
		ID:            util.NewID("msg"),
		Text:          ciphertext,
		SenderID:      view.UserID,
		SenderName:    view.Name,
		RecipientID:   recipient.ID,
		ProjectID:     input.ProjectID,
		ProjectTitle:  input.ProjectTitle,
		FriendRequest: friendRequest,
		SentAt:        time.Now().UTC(),
	}
	if err := s.store.PrependMessage(ctx, recipient.ID, msg); err != nil {
		return store.Message{}, err
	}

	// The caller gets the plaintext back; ciphertext never leaves storage.
	msg.Text = input.Text
	return msg, nil
}

// SendGroupMessage delivers the same message to each collaborator on a
// project, silently skipping recipients who blocked the sender.
func (s *Service) SendGroupMessage(ctx context.Context, view session.View, projectID, text string) (int, error) {
	if strings.TrimSpace(text) == "" {
		return 0, domainError(http.StatusUnprocessableEntity, "EMPTY_MESSAGE", "Message text must not be empty", nil)
	}
	project, err := s.loadProjectForRole(ctx, view.UserID, projectID, access.ActionChat)
	if err != nil {
		return 0, err
	}

	recipients := make([]string, 0, len(project.Collaborators)+1)
	if project.OwnerID != view.UserID {
		recipients = append(recipients, project.OwnerID)
	}
	for _, id := range project.Collaborators {
		if id != view.UserID {
			recipients = append(recipients, id)
		}
	}

	sent := 0
	for _, recipientID := range recipients {
		_, err := s.sendMessage(ctx, view, SendMessageInput{
			RecipientID:  recipientID,
			Text:         text,
			ProjectID:    project.ProjectID,
			ProjectTitle: project.Title,
		}, false)
		if err != nil {
			if IsDomainCode(err, "BLOCKED") {
				continue
			}
			return sent, err
		}
		sent++
	}
	return sent, nil
}

// GetMyMessages returns the caller's inbox with messages decrypted in
// place. Undecryptable entries are kept with empty text rather than dropped.
func (s *Service) GetMyMessages(ctx context.Context, view session.View) ([]store.Message, error) {
	user, err := s.store.GetUserByID(ctx, view.UserID)
	if err != nil {
		return nil, err
	}
	messages := user.Profile.Messages
	for i := range messages {
		plaintext, err := s.cipher.Decrypt(messages[i].Text)
		if err != nil {
			log.Printf("inbox %s: decrypt message %s: %v", view.UserID, messages[i].ID, err)
			messages[i].Text = ""
			continue
		}
		messages[i].Text = plaintext
	}
	return messages, nil
}

func (s *Service) SetMessageRead(ctx context.Context, view session.View, messageID string) error {
	if messageID == "" {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Missing required fields", []string{"messageId"})
	}
	return s.store.SetMessageRead(ctx, view.UserID, messageID)
}

type FriendResponseInput struct {
	MessageID   string `json:"messageId"`
	RequesterID string `json:"requesterId"`
	Accept      bool   `json:"accept"`
}

// RespondToFriendRequest marks the request read; acceptance additionally
// makes the friendship mutual and notifies the requester.
func (s *Service) RespondToFriendRequest(ctx context.Context, sessionID string, view session.View, input FriendResponseInput) (session.View, error) {
	if input.MessageID == "" || input.RequesterID == "" {
		return session.View{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Missing required fields", nil)
	}

	if input.Accept {
		if err := s.befriend(ctx, view, input.RequesterID); err != nil {
			return session.View{}, err
		}
	}
	if err := s.store.SetMessageRead(ctx, view.UserID, input.MessageID); err != nil {
		return session.View{}, err
	}
	return s.refreshSession(ctx, sessionID, view.UserID)
}

// AddFriend makes the friendship mutual immediately and notifies the other
// user.
func (s *Service) AddFriend(ctx context.Context, sessionID string, view session.View, friendID string) (session.View, error) {
	if friendID == "" {
		return session.View{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Missing required fields", []string{"friendId"})
	}
	if friendID == view.UserID {
		return session.View{}, domainError(http.StatusConflict, "CONFLICT", "You cannot befriend yourself", nil)
	}
	if err := s.befriend(ctx, view, friendID); err != nil {
		return session.View{}, err
	}
	return s.refreshSession(ctx, sessionID, view.UserID)
}

func (s *Service) befriend(ctx context.Context, view session.View, friendID string) error {
	friend, err := s.store.GetUserByID(ctx, friendID)
	if err != nil {
		return err
	}
	if containsString(friend.Profile.BlockedUsers, view.UserID) {
		return domainError(http.StatusForbidden, "BLOCKED", "This user has blocked you", nil)
	}

	caller, err := s.store.GetUserByID(ctx, view.UserID)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	if containsString(caller.Profile.Friends, friendID) || containsString(friend.Profile.Friends, view.UserID) {
		return domainError(http.StatusConflict, "ALREADY_FRIENDS", "You are already friends with this user", nil)
	}

	// Both directions; each append is a no-op when already present.
	if _, err := s.store.AddFriend(ctx, view.UserID, friendID); err != nil {
		return err
	}
	if _, err := s.store.AddFriend(ctx, friendID, view.UserID); err != nil {
		return err
	}

	s.notifyFriendAccepted(ctx, view, friend)
	return nil
}

func (s *Service) notifyFriendAccepted(ctx context.Context, view session.View, friend store.User) {
	text := view.Name + " accepted your friend request."
	ciphertext, err := s.cipher.Encrypt(text)
	if err != nil {
		log.Printf("friends %s: encrypt notification: %v", view.UserID, err)
		return
	}
	msg := store.Message{
		ID:          util.NewID("msg"),
		Text:        ciphertext,
		SenderID:    view.UserID,
		SenderName:  view.Name,
		RecipientID: friend.ID,
		SentAt:      time.Now().UTC(),
	}
	if err := s.store.PrependMessage(ctx, friend.ID, msg); err != nil {
		log.Printf("friends %s: notify %s: %v", view.UserID, friend.ID, err)
	}
}

// BlockUser adds the target to the caller's block list. Blocking does not
// remove an existing friendship or past messages.
func (s *Service) BlockUser(ctx context.Context, sessionID string, view session.View, blockedID string) (session.View, error) {
	if blockedID == "" {
		return session.View{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Missing required fields", []string{"blockedId"})
	}
	if blockedID == view.UserID {
		return session.View{}, domainError(http.StatusConflict, "CONFLICT", "You cannot block yourself", nil)
	}
	if _, err := s.store.GetUserByID(ctx, blockedID); err != nil {
		return session.View{}, err
	}
	if _, err := s.store.BlockUser(ctx, view.UserID, blockedID); err != nil {
		return session.View{}, err
	}
	return s.refreshSession(ctx, sessionID, view.UserID)
}

// IsProjectAdmin answers the client-side "is this user the admin" check from
// the database rather than a denormalized copy.
func (s *Service) IsProjectAdmin(ctx context.Context, userID, projectID string) (bool, error) {
	if userID == "" || projectID == "" {
		return false, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Missing required fields", nil)
	}
	return s.store.IsProjectOwner(ctx, userID, projectID)
}
