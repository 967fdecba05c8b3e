package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"inkwell/api/internal/config"
	"inkwell/api/internal/export"
	"inkwell/api/internal/search"
	"inkwell/api/internal/session"
)

const maxCoverBytes = 10 << 20

type HTTPServer struct {
	service    *Service
	corsOrigin string
	cookieName string
	cookieTTL  time.Duration
}

func NewHTTPServer(service *Service, cfg config.Config) *HTTPServer {
	return &HTTPServer{
		service:    service,
		corsOrigin: cfg.CORSOrigin,
		cookieName: cfg.SessionCookie,
		cookieTTL:  cfg.SessionTTL,
	}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
		}

		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	// Routes that require no session.
	if r.Method == http.MethodPost && r.URL.Path == "/register/pre-register" {
		s.handlePreRegister(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/register" {
		var body struct {
			Token string `json:"token"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		registered, err := s.service.CompleteRegistration(r.Context(), body.Token)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"user": registered})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/login" {
		s.handleLogin(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/email/send" {
		var body struct {
			Token string `json:"token"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := s.service.ResendConfirmationEmail(r.Context(), body.Token); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/email/send/reset" {
		var body struct {
			Email string `json:"email"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := s.service.RequestPasswordReset(r.Context(), body.Email); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"message": "If an account exists, a reset email has been sent",
		})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/email/verify" {
		var body struct {
			Email   string `json:"email"`
			Purpose string `json:"purpose"`
			Code    string `json:"code"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		token, err := s.service.VerifyEmailCode(r.Context(), body.Email, body.Purpose, body.Code)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"token": token})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/changepassword/reset" {
		var body struct {
			Email       string `json:"email"`
			Token       string `json:"token"`
			NewPassword string `json:"newPassword"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := s.service.ResetPassword(r.Context(), body.Email, body.Token, body.NewPassword); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"message": "Password reset successfully"})
		return
	}

	// Published content is public.
	if r.Method == http.MethodGet && r.URL.Path == "/projects/loadprojects" {
		projects, err := s.service.ListPublishedProjects(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Could not list projects", nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"projects": projects})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/projects/search" {
		s.handleSearch(w, r)
		return
	}

	sessionID, view, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/user" {
		current, passwordUpdated, err := s.service.CurrentSession(r.Context(), sessionID)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"session":         current,
			"passwordUpdated": passwordUpdated,
		})
		return
	}

	if r.Method == http.MethodDelete && r.URL.Path == "/logout" {
		s.service.Logout(r.Context(), sessionID, view)
		s.clearSessionCookie(w)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if r.URL.Path == "/account" {
		s.handleAccount(w, r, sessionID, view)
		return
	}

	if strings.HasPrefix(r.URL.Path, "/changepassword") {
		s.handlePasswords(w, r, sessionID, view)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/email/send/changepw" {
		if err := s.service.SendPasswordChangeCode(r.Context(), view); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	parts := splitPath(r.URL.Path)

	if len(parts) >= 1 && parts[0] == "profile" {
		s.handleProfile(w, r, sessionID, view, parts)
		return
	}

	if len(parts) >= 1 && parts[0] == "projects" {
		s.handleProjects(w, r, sessionID, view, parts)
		return
	}

	if len(parts) >= 1 && parts[0] == "folders" {
		s.handleFolders(w, r, view, parts)
		return
	}

	if len(parts) >= 1 && parts[0] == "files" {
		s.handleFiles(w, r, view, parts)
		return
	}

	if len(parts) >= 1 && parts[0] == "messages" {
		s.handleMessages(w, r, sessionID, view, parts)
		return
	}

	if len(parts) == 2 && parts[0] == "friends" {
		s.handleFriends(w, r, sessionID, view, parts[1])
		return
	}

	if len(parts) >= 1 && parts[0] == "chat" {
		s.handleChat(w, r, view, parts)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handlePreRegister(w http.ResponseWriter, r *http.Request) {
	var body PreRegisterInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	token, err := s.service.PreRegister(r.Context(), body)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}

	response := map[string]any{
		"message": "Please check your email to confirm your account",
	}
	// Dev bypass: surface the token when email cannot be delivered.
	if !s.service.SMTPConfigured() {
		response["devConfirmationToken"] = token
	}
	writeJSON(w, http.StatusCreated, response)
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	sessionID, view, err := s.service.Login(r.Context(), body.Username, body.Password)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	s.setSessionCookie(w, sessionID)
	writeJSON(w, http.StatusOK, map[string]any{"session": view})
}

func (s *HTTPServer) handleAccount(w http.ResponseWriter, r *http.Request, sessionID string, view session.View) {
	if r.Method == http.MethodPost {
		var body UpdateAccountInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		updated, err := s.service.UpdateAccount(r.Context(), sessionID, view, body)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"session": updated})
		return
	}

	if r.Method == http.MethodDelete {
		if err := s.service.DeleteAccount(r.Context(), sessionID, view); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		s.clearSessionCookie(w)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
}

func (s *HTTPServer) handlePasswords(w http.ResponseWriter, r *http.Request, sessionID string, view session.View) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	if r.URL.Path == "/changepassword" {
		var body struct {
			NewPassword string `json:"newPassword"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		updated, err := s.service.ChangePassword(r.Context(), sessionID, view, body.NewPassword)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"session": updated})
		return
	}

	if r.URL.Path == "/changepassword/check" {
		var body struct {
			Password string `json:"password"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		clash, err := s.service.CheckPasswordReuse(r.Context(), view, body.Password)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"clash": clash})
		return
	}

	if r.URL.Path == "/changepassword/check/current" {
		var body struct {
			Password string `json:"password"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		match, err := s.service.CheckCurrentPassword(r.Context(), view, body.Password)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"match": match})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleProfile(w http.ResponseWriter, r *http.Request, sessionID string, view session.View, parts []string) {
	if len(parts) == 1 && r.Method == http.MethodPost {
		var body UpdateProfileInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		updated, err := s.service.UpdateProfile(r.Context(), sessionID, view, body)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"session": updated})
		return
	}

	if len(parts) == 2 && r.Method == http.MethodGet {
		profile, err := s.service.GetPublicProfile(r.Context(), parts[1])
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"profile": profile})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleProjects(w http.ResponseWriter, r *http.Request, sessionID string, view session.View, parts []string) {
	if len(parts) == 1 {
		if r.Method == http.MethodGet {
			projects, err := s.service.ListOwnProjects(r.Context(), view)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Could not list projects", nil)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"projects": projects})
			return
		}
		if r.Method == http.MethodPost {
			var body CreateProjectInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			project, updated, err := s.service.CreateProject(r.Context(), sessionID, view, body)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusCreated, map[string]any{"project": project, "session": updated})
			return
		}
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	if len(parts) == 2 && parts[1] == "collaborations" && r.Method == http.MethodGet {
		projects, err := s.service.ListCollaborations(r.Context(), view)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Could not list collaborations", nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"projects": projects})
		return
	}

	if len(parts) == 2 && parts[1] == "loadproject" && r.Method == http.MethodPost {
		var body struct {
			ProjectID string `json:"projectId"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		project, err := s.service.LoadProject(r.Context(), view, body.ProjectID)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"project": project})
		return
	}

	if len(parts) == 2 && parts[1] == "save" && r.Method == http.MethodPut {
		var body struct {
			ProjectID string `json:"projectId"`
			Content   string `json:"content"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := s.service.SaveProjectContent(r.Context(), view, body.ProjectID, body.Content); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if len(parts) == 2 && parts[1] == "update" && r.Method == http.MethodPut {
		var body UpdateProjectInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		project, updated, err := s.service.UpdateProjectMeta(r.Context(), sessionID, view, body)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"project": project, "session": updated})
		return
	}

	if len(parts) == 2 && parts[1] == "date" && r.Method == http.MethodPut {
		var body struct {
			ProjectID string `json:"projectId"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := s.service.TouchProject(r.Context(), view, body.ProjectID); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if len(parts) == 2 && parts[1] == "publish" && r.Method == http.MethodPut {
		var body struct {
			ProjectID string `json:"projectId"`
			Published bool   `json:"published"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		project, err := s.service.SetProjectPublished(r.Context(), view, body.ProjectID, body.Published)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"project": project})
		return
	}

	if len(parts) == 2 && parts[1] == "add" && r.Method == http.MethodPut {
		var body struct {
			ProjectID string `json:"projectId"`
			OwnerID   string `json:"ownerId"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		updated, err := s.service.AcceptCollaboration(r.Context(), sessionID, view, body.ProjectID, body.OwnerID)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"session": updated})
		return
	}

	if len(parts) == 2 && parts[1] == "collaborators" && r.Method == http.MethodPost {
		var body struct {
			ProjectID      string `json:"projectId"`
			CollaboratorID string `json:"collaboratorId"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		project, err := s.service.AddCollaborator(r.Context(), view, body.ProjectID, body.CollaboratorID)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"project": project})
		return
	}

	if len(parts) == 3 && parts[1] == "delete" && r.Method == http.MethodDelete {
		updated, err := s.service.DeleteProject(r.Context(), sessionID, view, parts[2])
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"session": updated})
		return
	}

	if len(parts) == 4 && parts[1] == "delete" && parts[3] == "collaborator" && r.Method == http.MethodDelete {
		collaboratorID := strings.TrimSpace(r.URL.Query().Get("collaboratorId"))
		updated, err := s.service.RemoveCollaborator(r.Context(), sessionID, view, parts[2], collaboratorID)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"session": updated})
		return
	}

	if len(parts) == 2 && parts[1] == "cover" && r.Method == http.MethodPost {
		s.handleCoverUpload(w, r, view)
		return
	}

	if len(parts) == 3 && parts[1] == "export" && r.Method == http.MethodGet {
		s.handleExport(w, r, view, parts[2])
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleCoverUpload(w http.ResponseWriter, r *http.Request, view session.View) {
	if err := r.ParseMultipartForm(maxCoverBytes); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "Expected multipart form data", nil)
		return
	}
	projectID := strings.TrimSpace(r.FormValue("projectId"))
	if projectID == "" {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "projectId is required", nil)
		return
	}
	file, header, err := r.FormFile("cover")
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "cover file is required", nil)
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "cover must be an image", nil)
		return
	}

	imageURL, err := s.service.UploadCover(r.Context(), view, projectID, contentType, file, header.Size)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"image": imageURL})
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request, view session.View, projectID string) {
	format := export.Format(strings.TrimSpace(r.URL.Query().Get("format")))
	if format != export.FormatPDF && format != export.FormatDOCX {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "format must be 'pdf' or 'docx'", nil)
		return
	}
	result, err := s.service.ExportProject(r.Context(), view, projectID, format)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	w.Header().Set("Content-Disposition", "attachment; filename=\""+result.Filename+"\"")
	w.Header().Set("Content-Type", result.MimeType)
	w.Write(result.Data)
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	genre := strings.TrimSpace(r.URL.Query().Get("genre"))
	limit := 20
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "limit must be an integer", nil)
			return
		}
		limit = parsed
	}
	offset := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("offset")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "offset must be an integer", nil)
			return
		}
		offset = parsed
	}

	payload, err := s.service.SearchProjects(search.Query{
		Text:        q,
		FilterGenre: genre,
		Limit:       limit,
		Offset:      offset,
	})
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) handleFolders(w http.ResponseWriter, r *http.Request, view session.View, parts []string) {
	if len(parts) == 2 && parts[1] == "add" && r.Method == http.MethodPost {
		var body CreateFolderInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		folder, err := s.service.CreateFolder(r.Context(), view, body)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"folder": folder})
		return
	}

	if len(parts) == 2 && r.Method == http.MethodGet {
		folders, err := s.service.ListFolders(r.Context(), view, parts[1])
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"folders": folders})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleFiles(w http.ResponseWriter, r *http.Request, view session.View, parts []string) {
	if len(parts) == 2 && parts[1] == "save" && r.Method == http.MethodPost {
		var body SaveFileInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := s.service.SaveFileContent(r.Context(), view, body); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if len(parts) == 3 && parts[1] == "add" && r.Method == http.MethodPost {
		var body CreateFileInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		file, err := s.service.CreateFile(r.Context(), view, parts[2], body)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"file": file})
		return
	}

	if len(parts) == 2 && r.Method == http.MethodGet {
		file, err := s.service.GetFile(r.Context(), view, parts[1])
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"file": file})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleMessages(w http.ResponseWriter, r *http.Request, sessionID string, view session.View, parts []string) {
	if len(parts) == 1 {
		if r.Method == http.MethodGet {
			messages, err := s.service.GetMyMessages(r.Context(), view)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
			return
		}
		if r.Method == http.MethodPost {
			var body SendMessageInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			msg, err := s.service.SendDirectMessage(r.Context(), view, body)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusCreated, map[string]any{"message": msg})
			return
		}
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	if len(parts) == 2 && parts[1] == "set-read" && r.Method == http.MethodPut {
		var body struct {
			MessageID string `json:"messageId"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := s.service.SetMessageRead(r.Context(), view, body.MessageID); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if len(parts) == 2 && parts[1] == "request" && r.Method == http.MethodPost {
		var body SendMessageInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		msg, err := s.service.SendFriendRequest(r.Context(), view, body)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"message": msg})
		return
	}

	if len(parts) == 2 && parts[1] == "response" && r.Method == http.MethodPost {
		var body FriendResponseInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		updated, err := s.service.RespondToFriendRequest(r.Context(), sessionID, view, body)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"session": updated})
		return
	}

	if len(parts) == 2 && parts[1] == "is-admin" && r.Method == http.MethodPost {
		var body struct {
			UserID    string `json:"userId"`
			ProjectID string `json:"projectId"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		isAdmin, err := s.service.IsProjectAdmin(r.Context(), body.UserID, body.ProjectID)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"isAdmin": isAdmin})
		return
	}

	if len(parts) == 2 && parts[1] == "group" && r.Method == http.MethodPost {
		var body struct {
			ProjectID string `json:"projectId"`
			Text      string `json:"text"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		sent, err := s.service.SendGroupMessage(r.Context(), view, body.ProjectID, body.Text)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sent": sent})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleFriends(w http.ResponseWriter, r *http.Request, sessionID string, view session.View, action string) {
	if r.Method != http.MethodPut {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	if action == "add" {
		var body struct {
			FriendID string `json:"friendId"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		updated, err := s.service.AddFriend(r.Context(), sessionID, view, body.FriendID)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"session": updated})
		return
	}

	if action == "block" {
		var body struct {
			BlockedID string `json:"blockedId"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		updated, err := s.service.BlockUser(r.Context(), sessionID, view, body.BlockedID)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"session": updated})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleChat(w http.ResponseWriter, r *http.Request, view session.View, parts []string) {
	if len(parts) == 1 && r.Method == http.MethodPost {
		var body ChatMessageInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		msg, err := s.service.SendChatMessage(r.Context(), view, body)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"message": msg})
		return
	}

	if len(parts) == 2 && parts[1] == "create" && r.Method == http.MethodPost {
		var body struct {
			ProjectID string `json:"projectId"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := s.service.CreateChatRoom(r.Context(), view, body.ProjectID); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"ok": true})
		return
	}

	if len(parts) == 2 && r.Method == http.MethodGet {
		room, err := s.service.GetChatRoom(r.Context(), view, parts[1])
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"projectId": room.ProjectID,
			"messages":  room.Messages,
		})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

// sessionToken prefers the session cookie; the Authorization header is the
// fallback for non-browser clients.
func (s *HTTPServer) sessionToken(r *http.Request) string {
	if cookie, err := r.Cookie(s.cookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return bearerToken(r)
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (string, session.View, bool) {
	token := s.sessionToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return "", session.View{}, false
	}
	view, err := s.service.sessions.Get(r.Context(), token)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return "", session.View{}, false
		}
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
		return "", session.View{}, false
	}
	return token, view, true
}

func (s *HTTPServer) setSessionCookie(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    sessionID,
		Path:     "/",
		MaxAge:   int(s.cookieTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *HTTPServer) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, session.ErrNotFound) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
