package export

import (
	"context"
	"fmt"
	"html/template"
)

// DataStore defines the interface for data access
type DataStore interface {
	GetProject(ctx context.Context, projectID string) (ProjectInfo, error)
	ListChapters(ctx context.Context, projectID string) ([]ChapterInfo, error)
}

// ProjectInfo holds project metadata and body text for export
type ProjectInfo struct {
	ProjectID   string
	Title       string
	Author      string
	Genres      []string
	Description string
	Content     string
}

// ChapterInfo holds one manuscript file
type ChapterInfo struct {
	ID      string
	Label   string
	Content string
}

// Service provides manuscript export functionality
type Service struct {
	store DataStore
}

// NewService creates a new export service
func NewService(store DataStore) *Service {
	return &Service{store: store}
}

// Export generates an export in the requested format
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	project, err := s.store.GetProject(ctx, req.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}

	chapters, err := s.store.ListChapters(ctx, req.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("list chapters: %w", err)
	}

	data := TemplateData{
		Title:       project.Title,
		Author:      project.Author,
		Genres:      project.Genres,
		Description: project.Description,
		ContentHTML: template.HTML(ContentToHTML(project.Content)),
		Chapters:    []TemplateChapter{},
	}
	for _, chapter := range chapters {
		data.Chapters = append(data.Chapters, TemplateChapter{
			Label:       chapter.Label,
			ContentHTML: template.HTML(ContentToHTML(chapter.Content)),
		})
	}

	html, err := RenderManuscriptHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	switch req.Format {
	case FormatPDF:
		return exportPDF(html, project.Title)
	case FormatDOCX:
		return exportDOCX(html, project.Title)
	default:
		return nil, fmt.Errorf("unsupported format: %s", req.Format)
	}
}
