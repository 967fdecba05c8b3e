package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"inkwell/api/internal/auth"
	"inkwell/api/internal/cipher"
	"inkwell/api/internal/config"
	"inkwell/api/internal/covers"
	"inkwell/api/internal/email"
	"inkwell/api/internal/export"
	"inkwell/api/internal/password"
	"inkwell/api/internal/search"
	"inkwell/api/internal/session"
	"inkwell/api/internal/store"
	"inkwell/api/internal/util"
)

const (
	purposePasswordChange = "password_change"
	purposePasswordReset  = "password_reset"
	purposeResetToken     = "reset_token"

	codeTTL = 15 * time.Minute
)

type dataStore interface {
	CreateUser(context.Context, store.User) error
	GetUserByID(context.Context, string) (store.User, error)
	GetUserByUsername(context.Context, string) (store.User, error)
	GetUserByEmail(context.Context, string) (store.User, error)
	DeleteUser(context.Context, string) error
	SetUserLoggedIn(context.Context, string, bool) error
	UpdateUserAccount(ctx context.Context, userID, name, email, username, avatar string) error
	UpdateUserPassword(context.Context, string, password.Entry) error
	UpdateProfileInfo(ctx context.Context, userID, about string, authors, books []string, visible bool) error
	AddFriend(ctx context.Context, userID, friendID string) (bool, error)
	BlockUser(ctx context.Context, userID, blockedID string) (bool, error)
	PrependMessage(context.Context, string, store.Message) error
	SetMessageRead(ctx context.Context, userID, messageID string) error

	EmailOrUsernameTaken(ctx context.Context, email, username string) (bool, bool, error)
	CreatePreRegistration(context.Context, store.PreRegistration) error
	GetPreRegistrationByTokenHash(context.Context, string) (store.PreRegistration, error)
	ConsumePreRegistration(context.Context, string) error
	SaveVerificationCode(ctx context.Context, email, purpose, codeHash string, expiresAt time.Time) error
	ConsumeVerificationCode(ctx context.Context, email, purpose, codeHash string) (bool, error)

	CreateProjectGraph(ctx context.Context, project store.Project, rootFile store.File, adminFolder, baseFolder store.Folder, ownerSummary store.ProjectSummary) error
	GetProjectByProjectID(context.Context, string) (store.Project, error)
	ListProjectsByOwner(context.Context, string) ([]store.Project, error)
	ListCollaborations(context.Context, string) ([]store.Project, error)
	ListPublishedProjects(context.Context) ([]store.Project, error)
	IsProjectOwner(ctx context.Context, userID, projectID string) (bool, error)
	UpdateProjectMeta(ctx context.Context, projectID, title string, genres []string, description, image string) error
	SaveProjectContent(ctx context.Context, projectID, content string) error
	TouchProject(context.Context, string) error
	SetProjectPublished(ctx context.Context, projectID string, published bool) error
	SetProjectImage(ctx context.Context, projectID, image string) error
	AddCollaboratorGraph(ctx context.Context, projectID, collaboratorID string, baseFolder store.Folder, summary store.ProjectSummary) (bool, error)
	RemoveCollaboratorGraph(ctx context.Context, projectID, collaboratorID string) error
	DeleteProjectGraph(context.Context, string) error

	ListFoldersByProject(context.Context, string) ([]store.Folder, error)
	GetFolder(context.Context, string) (store.Folder, error)
	CreateFolder(context.Context, store.Folder) error
	GetFile(context.Context, string) (store.File, error)
	CreateFileGraph(ctx context.Context, file store.File, item store.FolderItem) error
	SaveFileContent(ctx context.Context, fileID, content string) error
	ListFilesByProject(context.Context, string) ([]store.File, error)

	GetChatRoom(context.Context, string) (store.ChatRoom, error)
	CreateChatRoom(context.Context, string) error
	AppendChatMessage(context.Context, string, store.ChatMessage) error

	Ping(context.Context) error
}

type sessionStore interface {
	Create(ctx context.Context, sessionID string, view session.View) error
	Get(ctx context.Context, sessionID string) (session.View, error)
	Update(ctx context.Context, sessionID string, view session.View) error
	Delete(ctx context.Context, sessionID string) error
	MarkPasswordUpdated(ctx context.Context, sessionID string) error
	ConsumePasswordUpdated(ctx context.Context, sessionID string) (bool, error)
}

type Service struct {
	store    dataStore
	sessions sessionStore
	cipher   *cipher.Codec
	email    *email.Service
	search   *search.Service
	covers   *covers.Service
	export   *export.Service
	cfg      config.Config
}

func NewService(st dataStore, sessions sessionStore, codec *cipher.Codec, mailer *email.Service, cfg config.Config) *Service {
	svc := &Service{
		store:    st,
		sessions: sessions,
		cipher:   codec,
		email:    mailer,
		cfg:      cfg,
	}
	svc.export = export.NewService(&exportStore{store: st})
	return svc
}

// SetSearch attaches the optional published-project search service.
func (s *Service) SetSearch(searchSvc *search.Service) {
	s.search = searchSvc
}

// SetCovers attaches the optional cover image storage service.
func (s *Service) SetCovers(coversSvc *covers.Service) {
	s.covers = coversSvc
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) SMTPConfigured() bool {
	return s.email != nil && s.email.IsConfigured()
}

// ---- sessions ----

// DeriveSessionView is a pure projection of a user record into the shape the
// client sees. Password material beyond the history is omitted; isLoggedIn
// is always true because holding a live session IS the login state. The
// inbox is excluded: message text is ciphertext at rest and is only served
// decrypted through GetMyMessages.
func DeriveSessionView(user store.User, sessionID string) session.View {
	history := make([]password.Entry, len(user.PasswordHistory))
	copy(history, user.PasswordHistory)
	profile := user.Profile
	profile.Messages = []store.Message{}
	return session.View{
		UserID:          user.ID,
		Avatar:          user.Avatar,
		Name:            user.Name,
		Username:        user.Username,
		PasswordHistory: history,
		Email:           user.Email,
		Profile:         profile,
		IsRegistered:    user.IsRegistered,
		IsLoggedIn:      true,
		AuthToken:       sessionID,
	}
}

// CurrentSession returns the stored view plus the one-shot passwordUpdated
// marker, which is cleared by this read.
func (s *Service) CurrentSession(ctx context.Context, sessionID string) (session.View, bool, error) {
	view, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return session.View{}, false, domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		}
		return session.View{}, false, fmt.Errorf("load session: %w", err)
	}
	updated, err := s.sessions.ConsumePasswordUpdated(ctx, sessionID)
	if err != nil {
		log.Printf("session %s: consume password marker: %v", sessionID, err)
		updated = false
	}
	return view, updated, nil
}

// refreshSession re-derives the stored view from the current user record.
// Called after every mutation the client should see; the view is never
// patched incrementally.
func (s *Service) refreshSession(ctx context.Context, sessionID, userID string) (session.View, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return session.View{}, fmt.Errorf("reload user: %w", err)
	}
	view := DeriveSessionView(user, sessionID)
	if err := s.sessions.Update(ctx, sessionID, view); err != nil {
		return session.View{}, fmt.Errorf("update session: %w", err)
	}
	return view, nil
}

// ---- registration ----

type PreRegisterInput struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Service) PreRegister(ctx context.Context, input PreRegisterInput) (string, error) {
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	input.Name = strings.TrimSpace(input.Name)
	input.Username = strings.TrimSpace(input.Username)

	var fields []string
	if input.Email == "" {
		fields = append(fields, "email")
	}
	if input.Name == "" {
		fields = append(fields, "name")
	}
	if input.Username == "" {
		fields = append(fields, "username")
	}
	if input.Password == "" {
		fields = append(fields, "password")
	}
	if len(fields) > 0 {
		return "", domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Missing required fields", fields)
	}

	emailTaken, usernameTaken, err := s.store.EmailOrUsernameTaken(ctx, input.Email, input.Username)
	if err != nil {
		return "", fmt.Errorf("check duplicates: %w", err)
	}
	if emailTaken {
		return "", domainError(http.StatusConflict, "DUPLICATE_EMAIL", "Email already taken", nil)
	}
	if usernameTaken {
		return "", domainError(http.StatusConflict, "DUPLICATE_USERNAME", "Username already taken", nil)
	}

	entry, err := password.NewEntry(input.Password)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	token, err := auth.NewToken()
	if err != nil {
		return "", err
	}

	pre := store.PreRegistration{
		ID:           util.NewID("pre"),
		TokenHash:    auth.HashToken(token),
		Email:        input.Email,
		Name:         input.Name,
		Username:     input.Username,
		PasswordSalt: entry.Salt,
		PasswordHash: entry.Hash,
	}
	if err := s.store.CreatePreRegistration(ctx, pre); err != nil {
		return "", err
	}

	s.sendConfirmationEmail(input.Email, input.Name, token)
	return token, nil
}

func (s *Service) sendConfirmationEmail(to, name, token string) {
	if !s.SMTPConfigured() {
		return
	}
	confirmationURL := strings.TrimRight(s.cfg.BaseURL, "/") + "/register/confirmation/" + token
	go func() {
		if err := s.email.SendConfirmationEmail(to, name, confirmationURL); err != nil {
			log.Printf("email: confirmation to %s: %v", to, err)
		}
	}()
}

// ResendConfirmationEmail re-sends the confirmation link for a token the
// caller already holds.
func (s *Service) ResendConfirmationEmail(ctx context.Context, token string) error {
	pre, err := s.store.GetPreRegistrationByTokenHash(ctx, auth.HashToken(token))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Unknown registration token", nil)
		}
		return fmt.Errorf("load pre-registration: %w", err)
	}
	s.sendConfirmationEmail(pre.Email, pre.Name, token)
	return nil
}

type RegisteredUser struct {
	UserID   string `json:"userId"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}

// CompleteRegistration promotes a pre-registration into a full user. The
// stored hash is copied as-is and seeds the password history with exactly
// one entry.
func (s *Service) CompleteRegistration(ctx context.Context, token string) (RegisteredUser, error) {
	tokenHash := auth.HashToken(token)
	pre, err := s.store.GetPreRegistrationByTokenHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RegisteredUser{}, domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Unknown registration token", nil)
		}
		return RegisteredUser{}, fmt.Errorf("load pre-registration: %w", err)
	}

	user := store.User{
		ID:              util.NewID("usr"),
		Email:           pre.Email,
		Username:        pre.Username,
		Name:            pre.Name,
		Avatar:          util.GravatarURL(pre.Email, 0, ""),
		PasswordSalt:    pre.PasswordSalt,
		PasswordHash:    pre.PasswordHash,
		PasswordHistory: []password.Entry{{Salt: pre.PasswordSalt, Hash: pre.PasswordHash}},
		Profile: store.Profile{
			Authors:               []string{},
			Books:                 []string{},
			UserProjects:          []store.ProjectSummary{},
			CollaboratingProjects: []store.ProjectSummary{},
			Messages:              []store.Message{},
			Friends:               []string{},
			BlockedUsers:          []string{},
		},
		IsRegistered:   true,
		ProfileVisible: true,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return RegisteredUser{}, domainError(http.StatusConflict, "DUPLICATE_EMAIL", "Email already taken", nil)
		}
		if errors.Is(err, store.ErrDuplicateUsername) {
			return RegisteredUser{}, domainError(http.StatusConflict, "DUPLICATE_USERNAME", "Username already taken", nil)
		}
		return RegisteredUser{}, err
	}

	if err := s.store.ConsumePreRegistration(ctx, tokenHash); err != nil {
		log.Printf("registration %s: consume pre-registration: %v", pre.ID, err)
	}

	return RegisteredUser{
		UserID:   user.ID,
		Email:    user.Email,
		Name:     user.Name,
		Username: user.Username,
		Avatar:   user.Avatar,
	}, nil
}

// ---- login / logout ----

// Login deliberately returns one error for both unknown username and wrong
// password.
func (s *Service) Login(ctx context.Context, username, plaintext string) (string, session.View, error) {
	invalid := domainError(http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid username or password", nil)

	user, err := s.store.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", session.View{}, invalid
		}
		return "", session.View{}, fmt.Errorf("load user: %w", err)
	}
	if !password.Compare(plaintext, user.PasswordSalt, user.PasswordHash) {
		return "", session.View{}, invalid
	}

	// Advisory telemetry; session existence is the real login state.
	if err := s.store.SetUserLoggedIn(ctx, user.ID, true); err != nil {
		log.Printf("login %s: set logged in: %v", user.ID, err)
	}

	sessionID, err := auth.NewToken()
	if err != nil {
		return "", session.View{}, err
	}
	view := DeriveSessionView(user, sessionID)
	if err := s.sessions.Create(ctx, sessionID, view); err != nil {
		return "", session.View{}, fmt.Errorf("create session: %w", err)
	}
	return sessionID, view, nil
}

// Logout flips the advisory flag first; a session-destruction failure is
// logged but does not roll that back.
func (s *Service) Logout(ctx context.Context, sessionID string, view session.View) {
	if err := s.store.SetUserLoggedIn(ctx, view.UserID, false); err != nil {
		log.Printf("logout %s: set logged out: %v", view.UserID, err)
	}
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		log.Printf("logout %s: destroy session: %v", view.UserID, err)
	}
}

// ---- passwords ----

// ChangePassword rehashes with a fresh salt and appends to the history. The
// history is never trimmed. The next session read reports passwordUpdated
// exactly once.
func (s *Service) ChangePassword(ctx context.Context, sessionID string, view session.View, newPassword string) (session.View, error) {
	if newPassword == "" {
		return session.View{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Missing required fields", []string{"newPassword"})
	}
	entry, err := password.NewEntry(newPassword)
	if err != nil {
		return session.View{}, fmt.Errorf("hash password: %w", err)
	}
	if err := s.store.UpdateUserPassword(ctx, view.UserID, entry); err != nil {
		return session.View{}, err
	}
	if err := s.sessions.MarkPasswordUpdated(ctx, sessionID); err != nil {
		log.Printf("change password %s: mark session: %v", view.UserID, err)
	}
	return s.refreshSession(ctx, sessionID, view.UserID)
}

// CheckPasswordReuse reports whether the candidate matches any entry in the
// caller's password history.
func (s *Service) CheckPasswordReuse(ctx context.Context, view session.View, candidate string) (bool, error) {
	user, err := s.store.GetUserByID(ctx, view.UserID)
	if err != nil {
		return false, fmt.Errorf("load user: %w", err)
	}
	return password.Clash(candidate, user.PasswordHistory), nil
}

// CheckCurrentPassword compares the candidate against the live credential,
// or against the newest history entry when configured that way.
func (s *Service) CheckCurrentPassword(ctx context.Context, view session.View, candidate string) (bool, error) {
	user, err := s.store.GetUserByID(ctx, view.UserID)
	if err != nil {
		return false, fmt.Errorf("load user: %w", err)
	}
	if s.cfg.PasswordCurrentFromHistory {
		if len(user.PasswordHistory) == 0 {
			return false, nil
		}
		last := user.PasswordHistory[len(user.PasswordHistory)-1]
		return password.Compare(candidate, last.Salt, last.Hash), nil
	}
	return password.Compare(candidate, user.PasswordSalt, user.PasswordHash), nil
}

// SendPasswordChangeCode emails the caller a code authorizing an in-session
// password change.
func (s *Service) SendPasswordChangeCode(ctx context.Context, view session.View) error {
	return s.sendCode(ctx, view.Email, view.Name, purposePasswordChange)
}

// RequestPasswordReset emails a reset code. Unknown addresses are not
// revealed to the caller.
func (s *Service) RequestPasswordReset(ctx context.Context, emailAddr string) error {
	user, err := s.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(emailAddr)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("load user: %w", err)
	}
	return s.sendCode(ctx, user.Email, user.Name, purposePasswordReset)
}

func (s *Service) sendCode(ctx context.Context, to, name, purpose string) error {
	code, err := auth.NewCode()
	if err != nil {
		return err
	}
	if err := s.store.SaveVerificationCode(ctx, to, purpose, auth.HashToken(code), time.Now().Add(codeTTL)); err != nil {
		return err
	}
	if !s.SMTPConfigured() {
		log.Printf("email not configured, %s code for %s not sent", purpose, to)
		return nil
	}
	go func() {
		var sendErr error
		if purpose == purposePasswordReset {
			sendErr = s.email.SendPasswordResetCode(to, name, code)
		} else {
			sendErr = s.email.SendPasswordChangeCode(to, name, code)
		}
		if sendErr != nil {
			log.Printf("email: %s code to %s: %v", purpose, to, sendErr)
		}
	}()
	return nil
}

// VerifyEmailCode consumes a challenge code and mints a short-lived reset
// token for the follow-up request.
func (s *Service) VerifyEmailCode(ctx context.Context, emailAddr, purpose, code string) (string, error) {
	emailAddr = strings.ToLower(strings.TrimSpace(emailAddr))
	if purpose != purposePasswordChange && purpose != purposePasswordReset {
		return "", domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Unknown verification purpose", nil)
	}
	ok, err := s.store.ConsumeVerificationCode(ctx, emailAddr, purpose, auth.HashToken(code))
	if err != nil {
		return "", err
	}
	if !ok {
		return "", domainError(http.StatusUnauthorized, "INVALID_CODE", "Invalid or expired code", nil)
	}

	token, err := auth.NewToken()
	if err != nil {
		return "", err
	}
	if err := s.store.SaveVerificationCode(ctx, emailAddr, purposeResetToken, auth.HashToken(token), time.Now().Add(codeTTL)); err != nil {
		return "", err
	}
	return token, nil
}

// ResetPassword completes the logged-out reset flow with the token minted by
// VerifyEmailCode.
func (s *Service) ResetPassword(ctx context.Context, emailAddr, token, newPassword string) error {
	emailAddr = strings.ToLower(strings.TrimSpace(emailAddr))
	if newPassword == "" {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Missing required fields", []string{"newPassword"})
	}
	ok, err := s.store.ConsumeVerificationCode(ctx, emailAddr, purposeResetToken, auth.HashToken(token))
	if err != nil {
		return err
	}
	if !ok {
		return domainError(http.StatusUnauthorized, "INVALID_CODE", "Invalid or expired reset token", nil)
	}

	user, err := s.store.GetUserByEmail(ctx, emailAddr)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	entry, err := password.NewEntry(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.store.UpdateUserPassword(ctx, user.ID, entry)
}

// ---- account & profile ----

type UpdateAccountInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Username string `json:"username"`
}

func (s *Service) UpdateAccount(ctx context.Context, sessionID string, view session.View, input UpdateAccountInput) (session.View, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	input.Username = strings.TrimSpace(input.Username)
	if input.Name == "" || input.Email == "" || input.Username == "" {
		return session.View{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Missing required fields", nil)
	}

	avatar := util.GravatarURL(input.Email, 0, "")
	err := s.store.UpdateUserAccount(ctx, view.UserID, input.Name, input.Email, input.Username, avatar)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return session.View{}, domainError(http.StatusConflict, "DUPLICATE_EMAIL", "Email already taken", nil)
		}
		if errors.Is(err, store.ErrDuplicateUsername) {
			return session.View{}, domainError(http.StatusConflict, "DUPLICATE_USERNAME", "Username already taken", nil)
		}
		return session.View{}, err
	}
	return s.refreshSession(ctx, sessionID, view.UserID)
}

// DeleteAccount cascades: owned projects are deleted in full, collaborations
// are left cleanly, then the user row and session go.
func (s *Service) DeleteAccount(ctx context.Context, sessionID string, view session.View) error {
	owned, err := s.store.ListProjectsByOwner(ctx, view.UserID)
	if err != nil {
		return fmt.Errorf("list owned projects: %w", err)
	}
	for _, project := range owned {
		if err := s.store.DeleteProjectGraph(ctx, project.ProjectID); err != nil {
			return fmt.Errorf("delete project %s: %w", project.ProjectID, err)
		}
		if s.search != nil && project.Published {
			s.search.DeleteProject(project.ProjectID)
		}
	}

	collaborations, err := s.store.ListCollaborations(ctx, view.UserID)
	if err != nil {
		return fmt.Errorf("list collaborations: %w", err)
	}
	for _, project := range collaborations {
		if err := s.store.RemoveCollaboratorGraph(ctx, project.ProjectID, view.UserID); err != nil {
			return fmt.Errorf("leave project %s: %w", project.ProjectID, err)
		}
	}

	if err := s.store.DeleteUser(ctx, view.UserID); err != nil {
		return err
	}
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		log.Printf("delete account %s: destroy session: %v", view.UserID, err)
	}
	return nil
}

type UpdateProfileInput struct {
	About          string   `json:"about"`
	Authors        []string `json:"authors"`
	Books          []string `json:"books"`
	ProfileVisible *bool    `json:"profileVisible"`
}

func (s *Service) UpdateProfile(ctx context.Context, sessionID string, view session.View, input UpdateProfileInput) (session.View, error) {
	if input.Authors == nil {
		input.Authors = []string{}
	}
	if input.Books == nil {
		input.Books = []string{}
	}
	visible := true
	if input.ProfileVisible != nil {
		visible = *input.ProfileVisible
	}
	if err := s.store.UpdateProfileInfo(ctx, view.UserID, input.About, input.Authors, input.Books, visible); err != nil {
		return session.View{}, err
	}
	return s.refreshSession(ctx, sessionID, view.UserID)
}

// PublicProfile is the redacted view of another user.
type PublicProfile struct {
	UserID   string                 `json:"userId"`
	Name     string                 `json:"name"`
	Username string                 `json:"username"`
	Avatar   string                 `json:"avatar"`
	About    string                 `json:"about"`
	Authors  []string               `json:"authors"`
	Books    []string               `json:"books"`
	Projects []store.ProjectSummary `json:"projects"`
}

// GetPublicProfile hides hidden profiles and unpublished work.
func (s *Service) GetPublicProfile(ctx context.Context, userID string) (PublicProfile, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return PublicProfile{}, err
	}
	if !user.ProfileVisible {
		return PublicProfile{}, domainError(http.StatusForbidden, "FORBIDDEN", "Profile is not public", nil)
	}

	published := make([]store.ProjectSummary, 0)
	owned, err := s.store.ListProjectsByOwner(ctx, userID)
	if err != nil {
		return PublicProfile{}, fmt.Errorf("list projects: %w", err)
	}
	for _, project := range owned {
		if project.Published {
			published = append(published, projectSummary(project))
		}
	}

	return PublicProfile{
		UserID:   user.ID,
		Name:     user.Name,
		Username: user.Username,
		Avatar:   user.Avatar,
		About:    user.Profile.About,
		Authors:  user.Profile.Authors,
		Books:    user.Profile.Books,
		Projects: published,
	}, nil
}

// exportStore adapts the data store to the export package's needs.
type exportStore struct {
	store dataStore
}

func (e *exportStore) GetProject(ctx context.Context, projectID string) (export.ProjectInfo, error) {
	project, err := e.store.GetProjectByProjectID(ctx, projectID)
	if err != nil {
		return export.ProjectInfo{}, err
	}
	return export.ProjectInfo{
		ProjectID:   project.ProjectID,
		Title:       project.Title,
		Author:      project.Author,
		Genres:      project.Genres,
		Description: project.Description,
		Content:     project.Content,
	}, nil
}

func (e *exportStore) ListChapters(ctx context.Context, projectID string) ([]export.ChapterInfo, error) {
	files, err := e.store.ListFilesByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	chapters := make([]export.ChapterInfo, 0, len(files))
	for _, file := range files {
		chapters = append(chapters, export.ChapterInfo{
			ID:      file.ID,
			Label:   file.Label,
			Content: file.Content,
		})
	}
	return chapters, nil
}
