package store

import (
	"time"

	"inkwell/api/internal/password"
)

// ProjectSummary is the denormalized project copy embedded in user profiles
// for fast listing. It is a copy, not a reference: project metadata updates
// must be fanned out through SyncProjectSummaries.
type ProjectSummary struct {
	ProjectID   string   `json:"projectId"`
	Title       string   `json:"title"`
	Genres      []string `json:"genres"`
	Description string   `json:"description"`
	Image       string   `json:"image"`
	URL         string   `json:"url"`
}

// Message is a profile inbox entry. Text is ciphertext at rest.
type Message struct {
	ID            string    `json:"id"`
	Text          string    `json:"text"`
	SenderID      string    `json:"senderId"`
	SenderName    string    `json:"senderName"`
	RecipientID   string    `json:"recipientId"`
	ProjectID     string    `json:"projectId,omitempty"`
	ProjectTitle  string    `json:"projectTitle,omitempty"`
	Read          bool      `json:"read"`
	FriendRequest bool      `json:"friendRequest"`
	SentAt        time.Time `json:"sentAt"`
}

type Profile struct {
	About                 string           `json:"about"`
	Authors               []string         `json:"authors"`
	Books                 []string         `json:"books"`
	UserProjects          []ProjectSummary `json:"userProjects"`
	CollaboratingProjects []ProjectSummary `json:"collaboratingProjects"`
	Messages              []Message        `json:"messages"`
	Friends               []string         `json:"friends"`
	BlockedUsers          []string         `json:"blockedUsers"`
}

type User struct {
	ID              string
	Email           string
	Username        string
	Name            string
	Avatar          string
	PasswordSalt    string
	PasswordHash    string
	PasswordHistory []password.Entry
	Profile         Profile
	IsRegistered    bool
	IsLoggedIn      bool
	ProfileVisible  bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// PreRegistration holds a pending sign-up keyed by a hashed bearer token.
// Sensitive fields are nulled once promoted to a User; the row is kept.
type PreRegistration struct {
	ID           string
	TokenHash    string
	Email        string
	Name         string
	Username     string
	PasswordSalt string
	PasswordHash string
	ConsumedAt   *time.Time
	CreatedAt    time.Time
}

// Project is the canonical document record. ProjectID is the stable join key
// shared with File, Folder, ChatRoom and profile summaries; the row id is
// storage-private.
type Project struct {
	ID            string
	ProjectID     string
	OwnerID       string
	OwnerName     string
	OwnerAvatar   string
	Title         string
	Author        string
	Genres        []string
	Description   string
	Image         string
	Collaborators []string
	Published     bool
	Content       string
	URL           string
	ModifiedAt    time.Time
	CreatedAt     time.Time
}

// FolderItem is the denormalized file summary embedded in a folder's items
// list. Index metadata only; file content edits are never mirrored here.
type FolderItem struct {
	FileID string `json:"fileId"`
	Label  string `json:"label"`
	URL    string `json:"url"`
	File   bool   `json:"file"`
}

type Folder struct {
	ID             string
	ProjectID      string
	OwnerID        string
	Label          string
	Folder         bool
	AdminFolder    bool
	UserBaseFolder bool
	ParentID       string
	Items          []FolderItem
}

type File struct {
	ID        string
	ProjectID string
	ParentID  string
	OwnerID   string
	Label     string
	File      bool
	Content   string
	URL       string
}

// ChatMessage is stored plaintext, unlike profile messages.
type ChatMessage struct {
	SenderID   string    `json:"senderId"`
	SenderName string    `json:"senderName"`
	Content    string    `json:"content"`
	SentAt     time.Time `json:"sentAt"`
}

type ChatRoom struct {
	ProjectID string
	Messages  []ChatMessage
}
