package app

import (
	"context"
	"testing"
	"time"

	"inkwell/api/internal/cipher"
	"inkwell/api/internal/config"
	"inkwell/api/internal/email"
	"inkwell/api/internal/session"
	"inkwell/api/internal/store"
)

func newTestService(t *testing.T) (*Service, *memStore, *memSessions) {
	t.Helper()
	codec, err := cipher.New("test-secret")
	if err != nil {
		t.Fatalf("cipher.New: %v", err)
	}
	st := newMemStore()
	sessions := newMemSessions()
	cfg := config.Config{
		SessionCookie: "inkwell_session",
		SessionTTL:    time.Hour,
		BaseURL:       "http://localhost:3000",
	}
	svc := NewService(st, sessions, codec, email.NewService(email.Config{}), cfg)
	return svc, st, sessions
}

// registerAndLogin walks the full sign-up path and returns a live session.
func registerAndLogin(t *testing.T, svc *Service, name, username, emailAddr, pass string) (string, session.View) {
	t.Helper()
	ctx := context.Background()
	token, err := svc.PreRegister(ctx, PreRegisterInput{
		Email:    emailAddr,
		Name:     name,
		Username: username,
		Password: pass,
	})
	if err != nil {
		t.Fatalf("PreRegister(%s): %v", username, err)
	}
	if _, err := svc.CompleteRegistration(ctx, token); err != nil {
		t.Fatalf("CompleteRegistration(%s): %v", username, err)
	}
	sessionID, view, err := svc.Login(ctx, username, pass)
	if err != nil {
		t.Fatalf("Login(%s): %v", username, err)
	}
	return sessionID, view
}

func expectDomainCode(t *testing.T, err error, code string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", code)
	}
	if !IsDomainCode(err, code) {
		t.Fatalf("expected %s error, got %v", code, err)
	}
}

func TestPreRegisterRejectsDuplicates(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	registerAndLogin(t, svc, "Ada", "ada", "ada@example.com", "correct horse")

	_, err := svc.PreRegister(ctx, PreRegisterInput{
		Email: "ada@example.com", Name: "Other", Username: "other", Password: "pw",
	})
	expectDomainCode(t, err, "DUPLICATE_EMAIL")

	_, err = svc.PreRegister(ctx, PreRegisterInput{
		Email: "other@example.com", Name: "Other", Username: "ada", Password: "pw",
	})
	expectDomainCode(t, err, "DUPLICATE_USERNAME")

	// A pending sign-up reserves its identifiers even before confirmation.
	if _, err := svc.PreRegister(ctx, PreRegisterInput{
		Email: "pending@example.com", Name: "Pending", Username: "pending", Password: "pw",
	}); err != nil {
		t.Fatalf("PreRegister(pending): %v", err)
	}
	_, err = svc.PreRegister(ctx, PreRegisterInput{
		Email: "pending@example.com", Name: "Again", Username: "again", Password: "pw",
	})
	expectDomainCode(t, err, "DUPLICATE_EMAIL")
}

func TestCompleteRegistrationUnknownToken(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.CompleteRegistration(context.Background(), "bogus")
	expectDomainCode(t, err, "UNAUTHORIZED")
}

func TestLoginSingleErrorForBadCredentials(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	registerAndLogin(t, svc, "Ada", "ada", "ada@example.com", "correct horse")

	_, _, err := svc.Login(ctx, "nobody", "correct horse")
	expectDomainCode(t, err, "INVALID_CREDENTIALS")

	_, _, err = svc.Login(ctx, "ada", "wrong")
	expectDomainCode(t, err, "INVALID_CREDENTIALS")
}

func TestDeriveSessionViewIsPure(t *testing.T) {
	user := store.User{
		ID:       "usr_1",
		Email:    "ada@example.com",
		Username: "ada",
		Name:     "Ada",
		Avatar:   "https://example.com/a.png",
		// The advisory flag is deliberately false here.
		IsLoggedIn:   false,
		IsRegistered: true,
	}

	first := DeriveSessionView(user, "sess-1")
	second := DeriveSessionView(user, "sess-1")

	if !first.IsLoggedIn {
		t.Error("view should always report isLoggedIn=true; holding a session is the login state")
	}
	if first.AuthToken != "sess-1" {
		t.Errorf("AuthToken = %q, want session id", first.AuthToken)
	}
	if first.UserID != second.UserID || first.Email != second.Email || first.AuthToken != second.AuthToken {
		t.Error("same inputs should derive the same view")
	}
}

func TestChangePasswordExtendsHistory(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()
	sessionID, view := registerAndLogin(t, svc, "Ada", "ada", "ada@example.com", "first password")

	user, _ := st.GetUserByID(ctx, view.UserID)
	if len(user.PasswordHistory) != 1 {
		t.Fatalf("history after registration = %d entries, want 1", len(user.PasswordHistory))
	}

	updated, err := svc.ChangePassword(ctx, sessionID, view, "second password")
	if err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if len(updated.PasswordHistory) != 2 {
		t.Fatalf("history after change = %d entries, want 2", len(updated.PasswordHistory))
	}

	// Both old and new passwords clash with the history; unrelated ones do not.
	for _, candidate := range []string{"first password", "second password"} {
		clash, err := svc.CheckPasswordReuse(ctx, view, candidate)
		if err != nil {
			t.Fatalf("CheckPasswordReuse(%q): %v", candidate, err)
		}
		if !clash {
			t.Errorf("CheckPasswordReuse(%q) = false, want true", candidate)
		}
	}
	clash, err := svc.CheckPasswordReuse(ctx, view, "never used")
	if err != nil {
		t.Fatalf("CheckPasswordReuse: %v", err)
	}
	if clash {
		t.Error("unused password should not clash")
	}

	// The marker is reported once, then cleared.
	_, passwordUpdated, err := svc.CurrentSession(ctx, sessionID)
	if err != nil {
		t.Fatalf("CurrentSession: %v", err)
	}
	if !passwordUpdated {
		t.Error("first read after change should report passwordUpdated")
	}
	_, passwordUpdated, _ = svc.CurrentSession(ctx, sessionID)
	if passwordUpdated {
		t.Error("marker should be consumed by the first read")
	}
}

func TestBlockingStopsNewMessagesOnly(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	_, sender := registerAndLogin(t, svc, "Ada", "ada", "ada@example.com", "pw-ada")
	recipientSession, recipient := registerAndLogin(t, svc, "Bob", "bob", "bob@example.com", "pw-bob")

	if _, err := svc.SendDirectMessage(ctx, sender, SendMessageInput{
		RecipientID: recipient.UserID,
		Text:        "hello before the block",
	}); err != nil {
		t.Fatalf("SendDirectMessage: %v", err)
	}

	if _, err := svc.BlockUser(ctx, recipientSession, recipient, sender.UserID); err != nil {
		t.Fatalf("BlockUser: %v", err)
	}

	_, err := svc.SendDirectMessage(ctx, sender, SendMessageInput{
		RecipientID: recipient.UserID,
		Text:        "hello after the block",
	})
	expectDomainCode(t, err, "BLOCKED")

	// The earlier message survives and still decrypts.
	inbox, err := svc.GetMyMessages(ctx, recipient)
	if err != nil {
		t.Fatalf("GetMyMessages: %v", err)
	}
	if len(inbox) != 1 {
		t.Fatalf("inbox has %d messages, want 1", len(inbox))
	}
	if inbox[0].Text != "hello before the block" {
		t.Errorf("decrypted text = %q", inbox[0].Text)
	}
}

func TestMessagesEncryptedAtRest(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()
	_, sender := registerAndLogin(t, svc, "Ada", "ada", "ada@example.com", "pw-ada")
	_, recipient := registerAndLogin(t, svc, "Bob", "bob", "bob@example.com", "pw-bob")

	if _, err := svc.SendDirectMessage(ctx, sender, SendMessageInput{
		RecipientID: recipient.UserID,
		Text:        "secret plans",
	}); err != nil {
		t.Fatalf("SendDirectMessage: %v", err)
	}

	stored, _ := st.GetUserByID(ctx, recipient.UserID)
	if stored.Profile.Messages[0].Text == "secret plans" {
		t.Error("message stored in plaintext")
	}

	inbox, err := svc.GetMyMessages(ctx, recipient)
	if err != nil {
		t.Fatalf("GetMyMessages: %v", err)
	}
	if inbox[0].Text != "secret plans" {
		t.Errorf("decrypted text = %q, want original", inbox[0].Text)
	}
}

func TestEmptyMessageRejected(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, sender := registerAndLogin(t, svc, "Ada", "ada", "ada@example.com", "pw-ada")
	_, recipient := registerAndLogin(t, svc, "Bob", "bob", "bob@example.com", "pw-bob")

	_, err := svc.SendDirectMessage(context.Background(), sender, SendMessageInput{
		RecipientID: recipient.UserID,
		Text:        "   \n\t ",
	})
	expectDomainCode(t, err, "EMPTY_MESSAGE")
}

func TestProjectCreationBuildsFullGraph(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	sessionID, view := registerAndLogin(t, svc, "Ada", "ada", "ada@example.com", "pw-ada")

	project, updated, err := svc.CreateProject(ctx, sessionID, view, CreateProjectInput{
		Title:       "Shadow of the Loom",
		Genres:      []string{"fantasy"},
		Description: "A tale of weaving",
	})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if project.ProjectID == "" || project.URL != "/project/"+project.ProjectID {
		t.Errorf("unexpected project identity: id=%q url=%q", project.ProjectID, project.URL)
	}

	folders, err := svc.ListFolders(ctx, view, project.ProjectID)
	if err != nil {
		t.Fatalf("ListFolders: %v", err)
	}
	var admin, base int
	for _, folder := range folders {
		if folder.AdminFolder {
			admin++
			if len(folder.Items) != 1 || folder.Items[0].Label != "Shadow of the Loom" {
				t.Errorf("admin folder should hold the root file snapshot, got %+v", folder.Items)
			}
		}
		if folder.UserBaseFolder {
			base++
		}
	}
	if admin != 1 || base != 1 {
		t.Fatalf("got %d admin / %d base folders, want 1/1", admin, base)
	}

	room, err := svc.GetChatRoom(ctx, view, project.ProjectID)
	if err != nil {
		t.Fatalf("GetChatRoom: %v", err)
	}
	if len(room.Messages) != 0 {
		t.Errorf("new chat room has %d messages, want 0", len(room.Messages))
	}

	if len(updated.Profile.UserProjects) != 1 || updated.Profile.UserProjects[0].ProjectID != project.ProjectID {
		t.Errorf("session should list the new project, got %+v", updated.Profile.UserProjects)
	}
}

func TestCollaboratorLifecycle(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()
	ownerSession, owner := registerAndLogin(t, svc, "Ada", "ada", "ada@example.com", "pw-ada")
	_, collaborator := registerAndLogin(t, svc, "Bob", "bob", "bob@example.com", "pw-bob")

	project, _, err := svc.CreateProject(ctx, ownerSession, owner, CreateProjectInput{Title: "Joint Draft"})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}

	if _, err := svc.AddCollaborator(ctx, owner, project.ProjectID, collaborator.UserID); err != nil {
		t.Fatalf("AddCollaborator: %v", err)
	}

	_, err = svc.AddCollaborator(ctx, owner, project.ProjectID, collaborator.UserID)
	expectDomainCode(t, err, "ALREADY_COLLABORATOR")

	bob, _ := st.GetUserByID(ctx, collaborator.UserID)
	if len(bob.Profile.CollaboratingProjects) != 1 {
		t.Fatalf("collaborator should see the project, got %+v", bob.Profile.CollaboratingProjects)
	}

	folders, _ := svc.ListFolders(ctx, collaborator, project.ProjectID)
	var bobBase bool
	for _, folder := range folders {
		if folder.UserBaseFolder && folder.OwnerID == collaborator.UserID {
			bobBase = true
		}
	}
	if !bobBase {
		t.Error("collaborator should get a base folder")
	}

	if _, err := svc.RemoveCollaborator(ctx, ownerSession, owner, project.ProjectID, collaborator.UserID); err != nil {
		t.Fatalf("RemoveCollaborator: %v", err)
	}
	bob, _ = st.GetUserByID(ctx, collaborator.UserID)
	if len(bob.Profile.CollaboratingProjects) != 0 {
		t.Errorf("summary should be stripped on removal, got %+v", bob.Profile.CollaboratingProjects)
	}
}

func TestDeleteAccountCascades(t *testing.T) {
	svc, st, sessions := newTestService(t)
	ctx := context.Background()
	ownerSession, owner := registerAndLogin(t, svc, "Ada", "ada", "ada@example.com", "pw-ada")
	otherSession, other := registerAndLogin(t, svc, "Bob", "bob", "bob@example.com", "pw-bob")

	// Ada owns a project with Bob collaborating, and collaborates on Bob's.
	ownProject, _, err := svc.CreateProject(ctx, ownerSession, owner, CreateProjectInput{Title: "Ada's Book"})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if _, err := svc.AddCollaborator(ctx, owner, ownProject.ProjectID, other.UserID); err != nil {
		t.Fatalf("AddCollaborator: %v", err)
	}
	otherProject, _, err := svc.CreateProject(ctx, otherSession, other, CreateProjectInput{Title: "Bob's Book"})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if _, err := svc.AddCollaborator(ctx, other, otherProject.ProjectID, owner.UserID); err != nil {
		t.Fatalf("AddCollaborator: %v", err)
	}

	if err := svc.DeleteAccount(ctx, ownerSession, owner); err != nil {
		t.Fatalf("DeleteAccount: %v", err)
	}

	if _, err := st.GetUserByID(ctx, owner.UserID); err == nil {
		t.Error("user record should be gone")
	}
	if _, err := st.GetProjectByProjectID(ctx, ownProject.ProjectID); err == nil {
		t.Error("owned project should be gone")
	}
	if folders, _ := st.ListFoldersByProject(ctx, ownProject.ProjectID); len(folders) != 0 {
		t.Errorf("owned project folders should be gone, got %d", len(folders))
	}
	if _, err := st.GetChatRoom(ctx, ownProject.ProjectID); err == nil {
		t.Error("owned project chat room should be gone")
	}

	bob, _ := st.GetUserByID(ctx, other.UserID)
	if len(bob.Profile.CollaboratingProjects) != 0 {
		t.Errorf("deleted project summaries should be stripped from collaborators, got %+v", bob.Profile.CollaboratingProjects)
	}

	remaining, _ := st.GetProjectByProjectID(ctx, otherProject.ProjectID)
	for _, id := range remaining.Collaborators {
		if id == owner.UserID {
			t.Error("deleted user should be removed from collaborator lists")
		}
	}

	if _, err := sessions.Get(ctx, ownerSession); err == nil {
		t.Error("session should be destroyed")
	}
}

func TestFriendRequestFlow(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	_, requester := registerAndLogin(t, svc, "Ada", "ada", "ada@example.com", "pw-ada")
	recipientSession, recipient := registerAndLogin(t, svc, "Bob", "bob", "bob@example.com", "pw-bob")

	if _, err := svc.SendFriendRequest(ctx, requester, SendMessageInput{
		RecipientID: recipient.UserID,
		Text:        "Let's collab",
	}); err != nil {
		t.Fatalf("SendFriendRequest: %v", err)
	}

	inbox, err := svc.GetMyMessages(ctx, recipient)
	if err != nil {
		t.Fatalf("GetMyMessages: %v", err)
	}
	if len(inbox) != 1 || !inbox[0].FriendRequest {
		t.Fatalf("expected one friend request, got %+v", inbox)
	}
	if inbox[0].Text != "Let's collab" {
		t.Errorf("decrypted request text = %q", inbox[0].Text)
	}

	updated, err := svc.RespondToFriendRequest(ctx, recipientSession, recipient, FriendResponseInput{
		MessageID:   inbox[0].ID,
		RequesterID: requester.UserID,
		Accept:      true,
	})
	if err != nil {
		t.Fatalf("RespondToFriendRequest: %v", err)
	}
	if !containsString(updated.Profile.Friends, requester.UserID) {
		t.Error("recipient should list requester as friend")
	}

	requesterInbox, err := svc.GetMyMessages(ctx, requester)
	if err != nil {
		t.Fatalf("GetMyMessages(requester): %v", err)
	}
	found := false
	for _, msg := range requesterInbox {
		if msg.Text == "Bob accepted your friend request." {
			found = true
		}
	}
	if !found {
		t.Errorf("requester should get an acceptance notification, inbox: %+v", requesterInbox)
	}

	friends, err := svc.store.GetUserByID(ctx, requester.UserID)
	if err != nil {
		t.Fatalf("GetUserByID: %v", err)
	}
	if !containsString(friends.Profile.Friends, recipient.UserID) {
		t.Error("friendship should be mutual")
	}

	_, err = svc.AddFriend(ctx, recipientSession, recipient, requester.UserID)
	expectDomainCode(t, err, "ALREADY_FRIENDS")
}

func TestChatRequiresMembership(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	ownerSession, owner := registerAndLogin(t, svc, "Ada", "ada", "ada@example.com", "pw-ada")
	_, outsider := registerAndLogin(t, svc, "Eve", "eve", "eve@example.com", "pw-eve")

	project, _, err := svc.CreateProject(ctx, ownerSession, owner, CreateProjectInput{Title: "Private"})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}

	if _, err := svc.SendChatMessage(ctx, owner, ChatMessageInput{
		ProjectID: project.ProjectID,
		Content:   "first!",
	}); err != nil {
		t.Fatalf("SendChatMessage: %v", err)
	}

	_, err = svc.GetChatRoom(ctx, outsider, project.ProjectID)
	expectDomainCode(t, err, "FORBIDDEN")

	room, err := svc.GetChatRoom(ctx, owner, project.ProjectID)
	if err != nil {
		t.Fatalf("GetChatRoom: %v", err)
	}
	if len(room.Messages) != 1 || room.Messages[0].Content != "first!" {
		t.Errorf("chat log = %+v", room.Messages)
	}
}

func TestPasswordResetFlow(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()
	registerAndLogin(t, svc, "Ada", "ada", "ada@example.com", "old password")

	if err := svc.RequestPasswordReset(ctx, "ada@example.com"); err != nil {
		t.Fatalf("RequestPasswordReset: %v", err)
	}
	// The code never leaves the service; tests replay the stored challenge
	// by consuming it the way /email/verify would after reading the email.
	if len(st.codes) != 1 {
		t.Fatalf("expected one stored code, got %d", len(st.codes))
	}

	// Unknown addresses are silently accepted.
	if err := svc.RequestPasswordReset(ctx, "ghost@example.com"); err != nil {
		t.Fatalf("RequestPasswordReset(unknown): %v", err)
	}
	if len(st.codes) != 1 {
		t.Error("unknown address must not mint a code")
	}

	_, err := svc.VerifyEmailCode(ctx, "ada@example.com", "password_reset", "000000")
	expectDomainCode(t, err, "INVALID_CODE")
}

func TestSessionViewOmitsEncryptedInbox(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()
	_, sender := registerAndLogin(t, svc, "Ada", "ada", "ada@example.com", "pw-ada")
	_, recipient := registerAndLogin(t, svc, "Bob", "bob", "bob@example.com", "pw-bob")

	if _, err := svc.SendDirectMessage(ctx, sender, SendMessageInput{
		RecipientID: recipient.UserID,
		Text:        "secret plans",
	}); err != nil {
		t.Fatalf("SendDirectMessage: %v", err)
	}

	// A fresh login re-derives the view; the stored inbox holds ciphertext
	// and none of it may surface through the session projection.
	_, view, err := svc.Login(ctx, "bob", "pw-bob")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if len(view.Profile.Messages) != 0 {
		t.Fatalf("session view carries %d inbox messages, want 0", len(view.Profile.Messages))
	}

	stored, _ := st.GetUserByID(ctx, recipient.UserID)
	if len(stored.Profile.Messages) != 1 {
		t.Fatalf("stored inbox has %d messages, want 1", len(stored.Profile.Messages))
	}
	if stored.Profile.Messages[0].Text == "secret plans" {
		t.Error("message stored in plaintext")
	}
}

func TestGroupMessageRequiresMembership(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()
	ownerSession, owner := registerAndLogin(t, svc, "Ada", "ada", "ada@example.com", "pw-ada")
	_, collaborator := registerAndLogin(t, svc, "Bob", "bob", "bob@example.com", "pw-bob")
	_, outsider := registerAndLogin(t, svc, "Eve", "eve", "eve@example.com", "pw-eve")

	project, _, err := svc.CreateProject(ctx, ownerSession, owner, CreateProjectInput{Title: "Private"})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if _, err := svc.AddCollaborator(ctx, owner, project.ProjectID, collaborator.UserID); err != nil {
		t.Fatalf("AddCollaborator: %v", err)
	}

	_, err = svc.SendGroupMessage(ctx, outsider, project.ProjectID, "let me in")
	expectDomainCode(t, err, "FORBIDDEN")

	ada, _ := st.GetUserByID(ctx, owner.UserID)
	bob, _ := st.GetUserByID(ctx, collaborator.UserID)
	if len(ada.Profile.Messages) != 0 || len(bob.Profile.Messages) != 0 {
		t.Fatal("outsider broadcast should not reach any inbox")
	}

	sent, err := svc.SendGroupMessage(ctx, collaborator, project.ProjectID, "chapter two is up")
	if err != nil {
		t.Fatalf("SendGroupMessage(collaborator): %v", err)
	}
	if sent != 1 {
		t.Errorf("sent = %d, want 1", sent)
	}
	inbox, err := svc.GetMyMessages(ctx, owner)
	if err != nil {
		t.Fatalf("GetMyMessages: %v", err)
	}
	if len(inbox) != 1 || inbox[0].Text != "chapter two is up" {
		t.Errorf("owner inbox = %+v", inbox)
	}
}

func TestAddFriendConflictsOnOneSidedFriendship(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()
	callerSession, caller := registerAndLogin(t, svc, "Ada", "ada", "ada@example.com", "pw-ada")
	_, other := registerAndLogin(t, svc, "Bob", "bob", "bob@example.com", "pw-bob")

	// Only the other side lists the caller; adding must still conflict.
	if _, err := st.AddFriend(ctx, other.UserID, caller.UserID); err != nil {
		t.Fatalf("AddFriend(store): %v", err)
	}

	_, err := svc.AddFriend(ctx, callerSession, caller, other.UserID)
	expectDomainCode(t, err, "ALREADY_FRIENDS")
}
