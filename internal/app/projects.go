package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"inkwell/api/internal/access"
	"inkwell/api/internal/export"
	"inkwell/api/internal/search"
	"inkwell/api/internal/session"
	"inkwell/api/internal/store"
	"inkwell/api/internal/util"
)

var allowedGenres = map[string]bool{
	"fantasy":    true,
	"scifi":      true,
	"romance":    true,
	"mystery":    true,
	"thriller":   true,
	"horror":     true,
	"drama":      true,
	"poetry":     true,
	"nonfiction": true,
	"other":      true,
}

func projectSummary(p store.Project) store.ProjectSummary {
	genres := p.Genres
	if genres == nil {
		genres = []string{}
	}
	return store.ProjectSummary{
		ProjectID:   p.ProjectID,
		Title:       p.Title,
		Genres:      genres,
		Description: p.Description,
		Image:       p.Image,
		URL:         p.URL,
	}
}

func searchRecord(p store.Project) search.ProjectRecord {
	return search.ProjectRecord{
		ProjectID:   p.ProjectID,
		Title:       p.Title,
		Author:      p.Author,
		Genres:      p.Genres,
		Description: p.Description,
		Image:       p.Image,
		URL:         p.URL,
	}
}

// loadProjectForRole loads a project and checks the caller may perform the
// action on it.
func (s *Service) loadProjectForRole(ctx context.Context, userID, projectID string, action access.Action) (store.Project, error) {
	project, err := s.store.GetProjectByProjectID(ctx, projectID)
	if err != nil {
		return store.Project{}, err
	}
	role := access.RoleFor(userID, project)
	if !access.Can(role, action) {
		return store.Project{}, domainError(http.StatusForbidden, "FORBIDDEN", "You do not have access to this project", nil)
	}
	return project, nil
}

type CreateProjectInput struct {
	Title       string   `json:"title"`
	Genres      []string `json:"genres"`
	Description string   `json:"description"`
}

// CreateProject creates the full initial graph in one transaction: the
// project, its chat room, a root file snapshotting the manuscript, the admin
// folder holding that snapshot, and the owner's base folder.
func (s *Service) CreateProject(ctx context.Context, sessionID string, view session.View, input CreateProjectInput) (store.Project, session.View, error) {
	input.Title = strings.TrimSpace(input.Title)
	if input.Title == "" {
		return store.Project{}, session.View{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Missing required fields", []string{"title"})
	}
	if input.Genres == nil {
		input.Genres = []string{}
	}
	for _, genre := range input.Genres {
		if !allowedGenres[genre] {
			return store.Project{}, session.View{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", fmt.Sprintf("Unknown genre %q", genre), nil)
		}
	}

	projectID := uuid.NewString()
	projectURL := "/project/" + projectID

	project := store.Project{
		ID:            util.NewID("prj"),
		ProjectID:     projectID,
		OwnerID:       view.UserID,
		OwnerName:     view.Name,
		OwnerAvatar:   view.Avatar,
		Title:         input.Title,
		Author:        view.Name,
		Genres:        input.Genres,
		Description:   input.Description,
		Collaborators: []string{},
		Content:       "",
		URL:           projectURL,
	}

	rootFile := store.File{
		ID:        util.NewID("fil"),
		ProjectID: projectID,
		OwnerID:   view.UserID,
		Label:     input.Title,
		File:      false,
		URL:       projectURL,
	}
	adminFolder := store.Folder{
		ID:          util.NewID("fld"),
		ProjectID:   projectID,
		OwnerID:     view.UserID,
		Label:       input.Title,
		Folder:      true,
		AdminFolder: true,
		Items: []store.FolderItem{{
			FileID: rootFile.ID,
			Label:  rootFile.Label,
			URL:    rootFile.URL,
			File:   false,
		}},
	}
	baseFolder := store.Folder{
		ID:             util.NewID("fld"),
		ProjectID:      projectID,
		OwnerID:        view.UserID,
		Label:          view.Name,
		Folder:         true,
		UserBaseFolder: true,
		Items:          []store.FolderItem{},
	}

	err := s.store.CreateProjectGraph(ctx, project, rootFile, adminFolder, baseFolder, projectSummary(project))
	if err != nil {
		return store.Project{}, session.View{}, err
	}

	newView, err := s.refreshSession(ctx, sessionID, view.UserID)
	if err != nil {
		return store.Project{}, session.View{}, err
	}
	return project, newView, nil
}

func (s *Service) ListOwnProjects(ctx context.Context, view session.View) ([]store.Project, error) {
	return s.store.ListProjectsByOwner(ctx, view.UserID)
}

func (s *Service) ListCollaborations(ctx context.Context, view session.View) ([]store.Project, error) {
	return s.store.ListCollaborations(ctx, view.UserID)
}

func (s *Service) ListPublishedProjects(ctx context.Context) ([]store.Project, error) {
	return s.store.ListPublishedProjects(ctx)
}

// LoadProject returns a single project for a member, or for anyone when it
// is published.
func (s *Service) LoadProject(ctx context.Context, view session.View, projectID string) (store.Project, error) {
	project, err := s.store.GetProjectByProjectID(ctx, projectID)
	if err != nil {
		return store.Project{}, err
	}
	role := access.RoleFor(view.UserID, project)
	if role == access.RoleNone && !project.Published {
		return store.Project{}, domainError(http.StatusForbidden, "FORBIDDEN", "You do not have access to this project", nil)
	}
	return project, nil
}

type UpdateProjectInput struct {
	ProjectID   string   `json:"projectId"`
	Title       string   `json:"title"`
	Genres      []string `json:"genres"`
	Description string   `json:"description"`
	Image       string   `json:"image"`
}

// UpdateProjectMeta updates metadata and fans the change out to every
// embedded summary.
func (s *Service) UpdateProjectMeta(ctx context.Context, sessionID string, view session.View, input UpdateProjectInput) (store.Project, session.View, error) {
	input.Title = strings.TrimSpace(input.Title)
	if input.ProjectID == "" || input.Title == "" {
		return store.Project{}, session.View{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Missing required fields", nil)
	}
	if input.Genres == nil {
		input.Genres = []string{}
	}
	for _, genre := range input.Genres {
		if !allowedGenres[genre] {
			return store.Project{}, session.View{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", fmt.Sprintf("Unknown genre %q", genre), nil)
		}
	}

	project, err := s.loadProjectForRole(ctx, view.UserID, input.ProjectID, access.ActionManage)
	if err != nil {
		return store.Project{}, session.View{}, err
	}

	image := input.Image
	if image == "" {
		image = project.Image
	}
	if err := s.store.UpdateProjectMeta(ctx, input.ProjectID, input.Title, input.Genres, input.Description, image); err != nil {
		return store.Project{}, session.View{}, err
	}

	updated, err := s.store.GetProjectByProjectID(ctx, input.ProjectID)
	if err != nil {
		return store.Project{}, session.View{}, err
	}
	if s.search != nil && updated.Published {
		s.search.IndexProject(searchRecord(updated))
	}

	newView, err := s.refreshSession(ctx, sessionID, view.UserID)
	if err != nil {
		return store.Project{}, session.View{}, err
	}
	return updated, newView, nil
}

// SaveProjectContent overwrites the manuscript. Last writer wins; concurrent
// saves are not merged.
func (s *Service) SaveProjectContent(ctx context.Context, view session.View, projectID, content string) error {
	if _, err := s.loadProjectForRole(ctx, view.UserID, projectID, access.ActionWrite); err != nil {
		return err
	}
	return s.store.SaveProjectContent(ctx, projectID, content)
}

// TouchProject bumps the modification timestamp without changing content.
func (s *Service) TouchProject(ctx context.Context, view session.View, projectID string) error {
	if _, err := s.loadProjectForRole(ctx, view.UserID, projectID, access.ActionWrite); err != nil {
		return err
	}
	return s.store.TouchProject(ctx, projectID)
}

// SetProjectPublished toggles public visibility and keeps the search index
// in step.
func (s *Service) SetProjectPublished(ctx context.Context, view session.View, projectID string, published bool) (store.Project, error) {
	if _, err := s.loadProjectForRole(ctx, view.UserID, projectID, access.ActionPublish); err != nil {
		return store.Project{}, err
	}
	if err := s.store.SetProjectPublished(ctx, projectID, published); err != nil {
		return store.Project{}, err
	}
	project, err := s.store.GetProjectByProjectID(ctx, projectID)
	if err != nil {
		return store.Project{}, err
	}
	if s.search != nil {
		if published {
			s.search.IndexProject(searchRecord(project))
		} else {
			s.search.DeleteProject(projectID)
		}
	}
	return project, nil
}

// DeleteProject removes the whole graph and strips the project's summaries
// from every profile.
func (s *Service) DeleteProject(ctx context.Context, sessionID string, view session.View, projectID string) (session.View, error) {
	project, err := s.loadProjectForRole(ctx, view.UserID, projectID, access.ActionManage)
	if err != nil {
		return session.View{}, err
	}
	if err := s.store.DeleteProjectGraph(ctx, projectID); err != nil {
		return session.View{}, err
	}
	if s.search != nil && project.Published {
		s.search.DeleteProject(projectID)
	}
	return s.refreshSession(ctx, sessionID, view.UserID)
}

// AddCollaborator is the owner-initiated path. The collaborator gets a base
// folder and the project lands in their collaboratingProjects list.
func (s *Service) AddCollaborator(ctx context.Context, view session.View, projectID, collaboratorID string) (store.Project, error) {
	project, err := s.loadProjectForRole(ctx, view.UserID, projectID, access.ActionManage)
	if err != nil {
		return store.Project{}, err
	}
	if collaboratorID == view.UserID {
		return store.Project{}, domainError(http.StatusForbidden, "FORBIDDEN", "Owners cannot add themselves as collaborators", nil)
	}

	collaborator, err := s.store.GetUserByID(ctx, collaboratorID)
	if err != nil {
		return store.Project{}, err
	}
	if containsString(collaborator.Profile.BlockedUsers, view.UserID) {
		return store.Project{}, domainError(http.StatusForbidden, "BLOCKED", "This user has blocked you", nil)
	}

	if err := s.addCollaboratorGraph(ctx, project, collaborator); err != nil {
		return store.Project{}, err
	}
	return s.store.GetProjectByProjectID(ctx, projectID)
}

// AcceptCollaboration is the invite-acceptance path: the caller joins the
// owner's project as themselves.
func (s *Service) AcceptCollaboration(ctx context.Context, sessionID string, view session.View, projectID, ownerID string) (session.View, error) {
	project, err := s.store.GetProjectByProjectID(ctx, projectID)
	if err != nil {
		return session.View{}, err
	}
	if project.OwnerID != ownerID {
		return session.View{}, domainError(http.StatusForbidden, "FORBIDDEN", "Project is not owned by that user", nil)
	}
	if project.OwnerID == view.UserID {
		return session.View{}, domainError(http.StatusForbidden, "FORBIDDEN", "Owners cannot join their own project as collaborators", nil)
	}

	owner, err := s.store.GetUserByID(ctx, project.OwnerID)
	if err != nil {
		return session.View{}, fmt.Errorf("load owner: %w", err)
	}
	if containsString(owner.Profile.BlockedUsers, view.UserID) {
		return session.View{}, domainError(http.StatusForbidden, "BLOCKED", "The project owner has blocked you", nil)
	}

	caller, err := s.store.GetUserByID(ctx, view.UserID)
	if err != nil {
		return session.View{}, fmt.Errorf("load user: %w", err)
	}
	if err := s.addCollaboratorGraph(ctx, project, caller); err != nil {
		return session.View{}, err
	}
	return s.refreshSession(ctx, sessionID, view.UserID)
}

func (s *Service) addCollaboratorGraph(ctx context.Context, project store.Project, collaborator store.User) error {
	baseFolder := store.Folder{
		ID:             util.NewID("fld"),
		ProjectID:      project.ProjectID,
		OwnerID:        collaborator.ID,
		Label:          collaborator.Name,
		Folder:         true,
		UserBaseFolder: true,
		Items:          []store.FolderItem{},
	}
	added, err := s.store.AddCollaboratorGraph(ctx, project.ProjectID, collaborator.ID, baseFolder, projectSummary(project))
	if err != nil {
		return err
	}
	if !added {
		return domainError(http.StatusConflict, "ALREADY_COLLABORATOR", "User is already a collaborator on this project", nil)
	}
	return nil
}

// RemoveCollaborator handles both owner-initiated removal and a collaborator
// leaving on their own.
func (s *Service) RemoveCollaborator(ctx context.Context, sessionID string, view session.View, projectID, collaboratorID string) (session.View, error) {
	project, err := s.store.GetProjectByProjectID(ctx, projectID)
	if err != nil {
		return session.View{}, err
	}
	if collaboratorID == "" {
		collaboratorID = view.UserID
	}
	if view.UserID != project.OwnerID && view.UserID != collaboratorID {
		return session.View{}, domainError(http.StatusForbidden, "FORBIDDEN", "Only the owner may remove other collaborators", nil)
	}
	if !containsString(project.Collaborators, collaboratorID) {
		return session.View{}, domainError(http.StatusNotFound, "NOT_FOUND", "User is not a collaborator on this project", nil)
	}
	if err := s.store.RemoveCollaboratorGraph(ctx, projectID, collaboratorID); err != nil {
		return session.View{}, err
	}
	return s.refreshSession(ctx, sessionID, view.UserID)
}

// ---- folders & files ----

func (s *Service) ListFolders(ctx context.Context, view session.View, projectID string) ([]store.Folder, error) {
	if _, err := s.loadProjectForRole(ctx, view.UserID, projectID, access.ActionRead); err != nil {
		return nil, err
	}
	return s.store.ListFoldersByProject(ctx, projectID)
}

type CreateFolderInput struct {
	ProjectID string `json:"projectId"`
	ParentID  string `json:"parentId"`
	Label     string `json:"label"`
}

func (s *Service) CreateFolder(ctx context.Context, view session.View, input CreateFolderInput) (store.Folder, error) {
	input.Label = strings.TrimSpace(input.Label)
	if input.ProjectID == "" || input.Label == "" {
		return store.Folder{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Missing required fields", nil)
	}
	if _, err := s.loadProjectForRole(ctx, view.UserID, input.ProjectID, access.ActionWrite); err != nil {
		return store.Folder{}, err
	}

	folder := store.Folder{
		ID:        util.NewID("fld"),
		ProjectID: input.ProjectID,
		OwnerID:   view.UserID,
		Label:     input.Label,
		Folder:    true,
		ParentID:  input.ParentID,
		Items:     []store.FolderItem{},
	}
	if err := s.store.CreateFolder(ctx, folder); err != nil {
		return store.Folder{}, err
	}
	return folder, nil
}

type CreateFileInput struct {
	ProjectID string `json:"projectId"`
	Label     string `json:"label"`
	Content   string `json:"content"`
}

// CreateFile inserts the file and appends its summary to the parent folder's
// items in one transaction.
func (s *Service) CreateFile(ctx context.Context, view session.View, folderID string, input CreateFileInput) (store.File, error) {
	input.Label = strings.TrimSpace(input.Label)
	if input.ProjectID == "" || input.Label == "" {
		return store.File{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Missing required fields", nil)
	}
	if _, err := s.loadProjectForRole(ctx, view.UserID, input.ProjectID, access.ActionWrite); err != nil {
		return store.File{}, err
	}

	folder, err := s.store.GetFolder(ctx, folderID)
	if err != nil {
		return store.File{}, err
	}
	if folder.ProjectID != input.ProjectID {
		return store.File{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Folder belongs to a different project", nil)
	}

	file := store.File{
		ID:        util.NewID("fil"),
		ProjectID: input.ProjectID,
		ParentID:  folderID,
		OwnerID:   view.UserID,
		Label:     input.Label,
		File:      true,
		Content:   input.Content,
		URL:       "/project/" + input.ProjectID + "/file/",
	}
	file.URL += file.ID

	item := store.FolderItem{
		FileID: file.ID,
		Label:  file.Label,
		URL:    file.URL,
		File:   true,
	}
	if err := s.store.CreateFileGraph(ctx, file, item); err != nil {
		return store.File{}, err
	}
	return file, nil
}

func (s *Service) GetFile(ctx context.Context, view session.View, fileID string) (store.File, error) {
	file, err := s.store.GetFile(ctx, fileID)
	if err != nil {
		return store.File{}, err
	}
	if _, err := s.loadProjectForRole(ctx, view.UserID, file.ProjectID, access.ActionRead); err != nil {
		return store.File{}, err
	}
	return file, nil
}

type SaveFileInput struct {
	FileID  string `json:"fileId"`
	Content string `json:"content"`
}

// SaveFileContent overwrites the file body. The label snapshot in the parent
// folder is metadata only and is not re-synced here.
func (s *Service) SaveFileContent(ctx context.Context, view session.View, input SaveFileInput) error {
	if input.FileID == "" {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Missing required fields", []string{"fileId"})
	}
	file, err := s.store.GetFile(ctx, input.FileID)
	if err != nil {
		return err
	}
	if _, err := s.loadProjectForRole(ctx, view.UserID, file.ProjectID, access.ActionWrite); err != nil {
		return err
	}
	return s.store.SaveFileContent(ctx, input.FileID, input.Content)
}

// ---- search, covers, export ----

func (s *Service) SearchProjects(q search.Query) (search.Response, error) {
	if s.search == nil {
		return search.Response{}, domainError(http.StatusServiceUnavailable, "SEARCH_UNAVAILABLE", "Search is not available", nil)
	}
	return s.search.Search(q), nil
}

// UploadCover stores the image, presigns a long-lived URL, and fans the new
// image out through the project's summaries.
func (s *Service) UploadCover(ctx context.Context, view session.View, projectID, contentType string, body io.Reader, size int64) (string, error) {
	if s.covers == nil {
		return "", domainError(http.StatusServiceUnavailable, "COVERS_UNAVAILABLE", "Cover storage is not available", nil)
	}
	if _, err := s.loadProjectForRole(ctx, view.UserID, projectID, access.ActionManage); err != nil {
		return "", err
	}

	if _, err := s.covers.Upload(ctx, projectID, body, size, contentType); err != nil {
		return "", err
	}
	imageURL, err := s.covers.PresignedGetURL(ctx, projectID, 7*24*time.Hour)
	if err != nil {
		return "", err
	}
	if err := s.store.SetProjectImage(ctx, projectID, imageURL); err != nil {
		return "", err
	}

	if s.search != nil {
		if project, err := s.store.GetProjectByProjectID(ctx, projectID); err == nil && project.Published {
			s.search.IndexProject(searchRecord(project))
		}
	}
	return imageURL, nil
}

// ExportProject renders the manuscript to PDF or DOCX for any member.
func (s *Service) ExportProject(ctx context.Context, view session.View, projectID string, format export.Format) (*export.Result, error) {
	if _, err := s.loadProjectForRole(ctx, view.UserID, projectID, access.ActionRead); err != nil {
		return nil, err
	}
	result, err := s.export.Export(ctx, export.Request{ProjectID: projectID, Format: format})
	if err != nil {
		if errors.Is(err, export.ErrPDFDependencyMissing) || errors.Is(err, export.ErrDOCXDependencyMissing) {
			log.Printf("export %s: %v", projectID, err)
			return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "Export is not available for this format", nil)
		}
		return nil, err
	}
	return result, nil
}

func containsString(values []string, target string) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}
