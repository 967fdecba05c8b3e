package app

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"inkwell/api/internal/password"
	"inkwell/api/internal/session"
	"inkwell/api/internal/store"
)

// memStore is an in-memory dataStore for service tests. It mirrors the
// PostgreSQL store's observable behavior, including duplicate errors and
// sql.ErrNoRows for missing rows.
type memStore struct {
	mu       sync.Mutex
	users    map[string]store.User
	preRegs  map[string]store.PreRegistration
	codes    []memCode
	projects map[string]store.Project
	folders  map[string]store.Folder
	files    map[string]store.File
	rooms    map[string]store.ChatRoom
}

type memCode struct {
	email     string
	purpose   string
	codeHash  string
	expiresAt time.Time
	used      bool
}

func newMemStore() *memStore {
	return &memStore{
		users:    map[string]store.User{},
		preRegs:  map[string]store.PreRegistration{},
		projects: map[string]store.Project{},
		folders:  map[string]store.Folder{},
		files:    map[string]store.File{},
		rooms:    map[string]store.ChatRoom{},
	}
}

func (m *memStore) Ping(context.Context) error { return nil }

func (m *memStore) CreateUser(_ context.Context, user store.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == user.Email {
			return store.ErrDuplicateEmail
		}
		if existing.Username == user.Username {
			return store.ErrDuplicateUsername
		}
	}
	m.users[user.ID] = user
	return nil
}

func (m *memStore) GetUserByID(_ context.Context, userID string) (store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return user, nil
}

func (m *memStore) GetUserByUsername(_ context.Context, username string) (store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if user.Username == username {
			return user, nil
		}
	}
	return store.User{}, sql.ErrNoRows
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if user.Email == email {
			return user, nil
		}
	}
	return store.User{}, sql.ErrNoRows
}

func (m *memStore) DeleteUser(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[userID]; !ok {
		return sql.ErrNoRows
	}
	delete(m.users, userID)
	return nil
}

func (m *memStore) SetUserLoggedIn(_ context.Context, userID string, loggedIn bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok {
		return sql.ErrNoRows
	}
	user.IsLoggedIn = loggedIn
	m.users[userID] = user
	return nil
}

func (m *memStore) UpdateUserAccount(_ context.Context, userID, name, email, username, avatar string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, existing := range m.users {
		if id == userID {
			continue
		}
		if existing.Email == email {
			return store.ErrDuplicateEmail
		}
		if existing.Username == username {
			return store.ErrDuplicateUsername
		}
	}
	user, ok := m.users[userID]
	if !ok {
		return sql.ErrNoRows
	}
	user.Name = name
	user.Email = email
	user.Username = username
	user.Avatar = avatar
	m.users[userID] = user
	for pid, project := range m.projects {
		if project.OwnerID == userID {
			project.OwnerName = name
			project.OwnerAvatar = avatar
			m.projects[pid] = project
		}
	}
	return nil
}

func (m *memStore) UpdateUserPassword(_ context.Context, userID string, entry password.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok {
		return sql.ErrNoRows
	}
	user.PasswordSalt = entry.Salt
	user.PasswordHash = entry.Hash
	user.PasswordHistory = append(user.PasswordHistory, entry)
	m.users[userID] = user
	return nil
}

func (m *memStore) UpdateProfileInfo(_ context.Context, userID, about string, authors, books []string, visible bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok {
		return sql.ErrNoRows
	}
	user.Profile.About = about
	user.Profile.Authors = authors
	user.Profile.Books = books
	user.ProfileVisible = visible
	m.users[userID] = user
	return nil
}

func (m *memStore) AddFriend(_ context.Context, userID, friendID string) (bool, error) {
	return m.appendID(userID, friendID, true)
}

func (m *memStore) BlockUser(_ context.Context, userID, blockedID string) (bool, error) {
	return m.appendID(userID, blockedID, false)
}

func (m *memStore) appendID(userID, value string, friends bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok {
		return false, sql.ErrNoRows
	}
	list := user.Profile.BlockedUsers
	if friends {
		list = user.Profile.Friends
	}
	for _, existing := range list {
		if existing == value {
			return false, nil
		}
	}
	if friends {
		user.Profile.Friends = append(user.Profile.Friends, value)
	} else {
		user.Profile.BlockedUsers = append(user.Profile.BlockedUsers, value)
	}
	m.users[userID] = user
	return true, nil
}

func (m *memStore) PrependMessage(_ context.Context, recipientID string, message store.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[recipientID]
	if !ok {
		return sql.ErrNoRows
	}
	user.Profile.Messages = append([]store.Message{message}, user.Profile.Messages...)
	m.users[recipientID] = user
	return nil
}

func (m *memStore) SetMessageRead(_ context.Context, userID, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok {
		return sql.ErrNoRows
	}
	for i := range user.Profile.Messages {
		if user.Profile.Messages[i].ID == messageID {
			user.Profile.Messages[i].Read = true
		}
	}
	m.users[userID] = user
	return nil
}

func (m *memStore) EmailOrUsernameTaken(_ context.Context, email, username string) (bool, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var emailTaken, usernameTaken bool
	for _, user := range m.users {
		if user.Email == email {
			emailTaken = true
		}
		if user.Username == username {
			usernameTaken = true
		}
	}
	for _, pre := range m.preRegs {
		if pre.ConsumedAt != nil {
			continue
		}
		if pre.Email == email {
			emailTaken = true
		}
		if pre.Username == username {
			usernameTaken = true
		}
	}
	return emailTaken, usernameTaken, nil
}

func (m *memStore) CreatePreRegistration(_ context.Context, pre store.PreRegistration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.preRegs[pre.TokenHash] = pre
	return nil
}

func (m *memStore) GetPreRegistrationByTokenHash(_ context.Context, tokenHash string) (store.PreRegistration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pre, ok := m.preRegs[tokenHash]
	if !ok || pre.ConsumedAt != nil {
		return store.PreRegistration{}, sql.ErrNoRows
	}
	return pre, nil
}

func (m *memStore) ConsumePreRegistration(_ context.Context, tokenHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	pre, ok := m.preRegs[tokenHash]
	if !ok {
		return sql.ErrNoRows
	}
	now := time.Now()
	pre.ConsumedAt = &now
	m.preRegs[tokenHash] = pre
	return nil
}

func (m *memStore) SaveVerificationCode(_ context.Context, email, purpose, codeHash string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes = append(m.codes, memCode{email: email, purpose: purpose, codeHash: codeHash, expiresAt: expiresAt})
	return nil
}

func (m *memStore) ConsumeVerificationCode(_ context.Context, email, purpose, codeHash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.codes {
		code := &m.codes[i]
		if code.used || code.email != email || code.purpose != purpose || code.codeHash != codeHash {
			continue
		}
		if time.Now().After(code.expiresAt) {
			continue
		}
		code.used = true
		return true, nil
	}
	return false, nil
}

func (m *memStore) CreateProjectGraph(_ context.Context, project store.Project, rootFile store.File, adminFolder, baseFolder store.Folder, ownerSummary store.ProjectSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.projects[project.ProjectID] = project
	m.files[rootFile.ID] = rootFile
	m.folders[adminFolder.ID] = adminFolder
	m.folders[baseFolder.ID] = baseFolder
	m.rooms[project.ProjectID] = store.ChatRoom{ProjectID: project.ProjectID, Messages: []store.ChatMessage{}}
	user, ok := m.users[project.OwnerID]
	if !ok {
		return sql.ErrNoRows
	}
	user.Profile.UserProjects = append(user.Profile.UserProjects, ownerSummary)
	m.users[project.OwnerID] = user
	return nil
}

func (m *memStore) GetProjectByProjectID(_ context.Context, projectID string) (store.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	project, ok := m.projects[projectID]
	if !ok {
		return store.Project{}, sql.ErrNoRows
	}
	return project, nil
}

func (m *memStore) ListProjectsByOwner(_ context.Context, ownerID string) ([]store.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var projects []store.Project
	for _, project := range m.projects {
		if project.OwnerID == ownerID {
			projects = append(projects, project)
		}
	}
	return projects, nil
}

func (m *memStore) ListCollaborations(_ context.Context, userID string) ([]store.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var projects []store.Project
	for _, project := range m.projects {
		for _, id := range project.Collaborators {
			if id == userID {
				projects = append(projects, project)
			}
		}
	}
	return projects, nil
}

func (m *memStore) ListPublishedProjects(_ context.Context) ([]store.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var projects []store.Project
	for _, project := range m.projects {
		if project.Published {
			projects = append(projects, project)
		}
	}
	return projects, nil
}

func (m *memStore) IsProjectOwner(_ context.Context, userID, projectID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	project, ok := m.projects[projectID]
	if !ok {
		return false, nil
	}
	return project.OwnerID == userID, nil
}

func (m *memStore) UpdateProjectMeta(_ context.Context, projectID, title string, genres []string, description, image string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	project, ok := m.projects[projectID]
	if !ok {
		return sql.ErrNoRows
	}
	project.Title = title
	project.Genres = genres
	project.Description = description
	project.Image = image
	project.ModifiedAt = time.Now()
	m.projects[projectID] = project
	m.syncSummaries(projectID, func(summary *store.ProjectSummary) {
		summary.Title = title
		summary.Genres = genres
		summary.Description = description
		summary.Image = image
	})
	return nil
}

func (m *memStore) syncSummaries(projectID string, patch func(*store.ProjectSummary)) {
	for id, user := range m.users {
		for i := range user.Profile.UserProjects {
			if user.Profile.UserProjects[i].ProjectID == projectID {
				patch(&user.Profile.UserProjects[i])
			}
		}
		for i := range user.Profile.CollaboratingProjects {
			if user.Profile.CollaboratingProjects[i].ProjectID == projectID {
				patch(&user.Profile.CollaboratingProjects[i])
			}
		}
		m.users[id] = user
	}
}

func (m *memStore) SaveProjectContent(_ context.Context, projectID, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	project, ok := m.projects[projectID]
	if !ok {
		return sql.ErrNoRows
	}
	project.Content = content
	project.ModifiedAt = time.Now()
	m.projects[projectID] = project
	return nil
}

func (m *memStore) TouchProject(_ context.Context, projectID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	project, ok := m.projects[projectID]
	if !ok {
		return sql.ErrNoRows
	}
	project.ModifiedAt = time.Now()
	m.projects[projectID] = project
	return nil
}

func (m *memStore) SetProjectPublished(_ context.Context, projectID string, published bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	project, ok := m.projects[projectID]
	if !ok {
		return sql.ErrNoRows
	}
	project.Published = published
	m.projects[projectID] = project
	return nil
}

func (m *memStore) SetProjectImage(_ context.Context, projectID, image string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	project, ok := m.projects[projectID]
	if !ok {
		return sql.ErrNoRows
	}
	project.Image = image
	m.projects[projectID] = project
	m.syncSummaries(projectID, func(summary *store.ProjectSummary) {
		summary.Image = image
	})
	return nil
}

func (m *memStore) AddCollaboratorGraph(_ context.Context, projectID, collaboratorID string, baseFolder store.Folder, summary store.ProjectSummary) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	project, ok := m.projects[projectID]
	if !ok {
		return false, sql.ErrNoRows
	}
	for _, id := range project.Collaborators {
		if id == collaboratorID {
			return false, nil
		}
	}
	project.Collaborators = append(project.Collaborators, collaboratorID)
	m.projects[projectID] = project
	m.folders[baseFolder.ID] = baseFolder
	user, ok := m.users[collaboratorID]
	if !ok {
		return false, sql.ErrNoRows
	}
	user.Profile.CollaboratingProjects = append(user.Profile.CollaboratingProjects, summary)
	m.users[collaboratorID] = user
	return true, nil
}

func (m *memStore) RemoveCollaboratorGraph(_ context.Context, projectID, collaboratorID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	project, ok := m.projects[projectID]
	if !ok {
		return sql.ErrNoRows
	}
	kept := project.Collaborators[:0]
	for _, id := range project.Collaborators {
		if id != collaboratorID {
			kept = append(kept, id)
		}
	}
	project.Collaborators = kept
	m.projects[projectID] = project
	for id, folder := range m.folders {
		if folder.ProjectID == projectID && folder.UserBaseFolder && folder.OwnerID == collaboratorID {
			delete(m.folders, id)
		}
	}
	if user, ok := m.users[collaboratorID]; ok {
		keptSummaries := user.Profile.CollaboratingProjects[:0]
		for _, summary := range user.Profile.CollaboratingProjects {
			if summary.ProjectID != projectID {
				keptSummaries = append(keptSummaries, summary)
			}
		}
		user.Profile.CollaboratingProjects = keptSummaries
		m.users[collaboratorID] = user
	}
	return nil
}

func (m *memStore) DeleteProjectGraph(_ context.Context, projectID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[projectID]; !ok {
		return sql.ErrNoRows
	}
	delete(m.projects, projectID)
	delete(m.rooms, projectID)
	for id, file := range m.files {
		if file.ProjectID == projectID {
			delete(m.files, id)
		}
	}
	for id, folder := range m.folders {
		if folder.ProjectID == projectID {
			delete(m.folders, id)
		}
	}
	for id, user := range m.users {
		keptOwn := user.Profile.UserProjects[:0]
		for _, summary := range user.Profile.UserProjects {
			if summary.ProjectID != projectID {
				keptOwn = append(keptOwn, summary)
			}
		}
		user.Profile.UserProjects = keptOwn
		keptCollab := user.Profile.CollaboratingProjects[:0]
		for _, summary := range user.Profile.CollaboratingProjects {
			if summary.ProjectID != projectID {
				keptCollab = append(keptCollab, summary)
			}
		}
		user.Profile.CollaboratingProjects = keptCollab
		m.users[id] = user
	}
	return nil
}

func (m *memStore) ListFoldersByProject(_ context.Context, projectID string) ([]store.Folder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var folders []store.Folder
	for _, folder := range m.folders {
		if folder.ProjectID == projectID {
			folders = append(folders, folder)
		}
	}
	return folders, nil
}

func (m *memStore) GetFolder(_ context.Context, folderID string) (store.Folder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	folder, ok := m.folders[folderID]
	if !ok {
		return store.Folder{}, sql.ErrNoRows
	}
	return folder, nil
}

func (m *memStore) CreateFolder(_ context.Context, folder store.Folder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if folder.ParentID != "" {
		if _, ok := m.folders[folder.ParentID]; !ok {
			return sql.ErrNoRows
		}
	}
	m.folders[folder.ID] = folder
	return nil
}

func (m *memStore) GetFile(_ context.Context, fileID string) (store.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	file, ok := m.files[fileID]
	if !ok {
		return store.File{}, sql.ErrNoRows
	}
	return file, nil
}

func (m *memStore) CreateFileGraph(_ context.Context, file store.File, item store.FolderItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	folder, ok := m.folders[file.ParentID]
	if !ok {
		return sql.ErrNoRows
	}
	m.files[file.ID] = file
	folder.Items = append(folder.Items, item)
	m.folders[file.ParentID] = folder
	return nil
}

func (m *memStore) SaveFileContent(_ context.Context, fileID, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	file, ok := m.files[fileID]
	if !ok {
		return sql.ErrNoRows
	}
	file.Content = content
	m.files[fileID] = file
	return nil
}

func (m *memStore) ListFilesByProject(_ context.Context, projectID string) ([]store.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var files []store.File
	for _, file := range m.files {
		if file.ProjectID == projectID && file.File {
			files = append(files, file)
		}
	}
	return files, nil
}

func (m *memStore) GetChatRoom(_ context.Context, projectID string) (store.ChatRoom, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[projectID]
	if !ok {
		return store.ChatRoom{}, sql.ErrNoRows
	}
	return room, nil
}

func (m *memStore) CreateChatRoom(_ context.Context, projectID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[projectID]; ok {
		return nil
	}
	m.rooms[projectID] = store.ChatRoom{ProjectID: projectID, Messages: []store.ChatMessage{}}
	return nil
}

func (m *memStore) AppendChatMessage(_ context.Context, projectID string, message store.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[projectID]
	if !ok {
		return sql.ErrNoRows
	}
	room.Messages = append(room.Messages, message)
	m.rooms[projectID] = room
	return nil
}

// memSessions is an in-memory sessionStore.
type memSessions struct {
	mu      sync.Mutex
	views   map[string]session.View
	markers map[string]bool
}

func newMemSessions() *memSessions {
	return &memSessions{views: map[string]session.View{}, markers: map[string]bool{}}
}

func (m *memSessions) Create(_ context.Context, sessionID string, view session.View) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.views[sessionID] = view
	return nil
}

func (m *memSessions) Get(_ context.Context, sessionID string) (session.View, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	view, ok := m.views[sessionID]
	if !ok {
		return session.View{}, session.ErrNotFound
	}
	return view, nil
}

func (m *memSessions) Update(_ context.Context, sessionID string, view session.View) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.views[sessionID]; !ok {
		return session.ErrNotFound
	}
	m.views[sessionID] = view
	return nil
}

func (m *memSessions) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.views, sessionID)
	delete(m.markers, sessionID)
	return nil
}

func (m *memSessions) MarkPasswordUpdated(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markers[sessionID] = true
	return nil
}

func (m *memSessions) ConsumePasswordUpdated(_ context.Context, sessionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	marked := m.markers[sessionID]
	delete(m.markers, sessionID)
	return marked, nil
}
