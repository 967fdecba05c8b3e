package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"inkwell/api/internal/password"
)

var (
	ErrDuplicateEmail    = errors.New("email already taken")
	ErrDuplicateUsername = errors.New("username already taken")
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ---- users ----

const userColumns = `id, email, username, name, avatar, password_salt, password_hash,
	password_history, profile, is_registered, is_logged_in, profile_visible, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var user User
	var historyRaw, profileRaw []byte
	err := row.Scan(
		&user.ID, &user.Email, &user.Username, &user.Name, &user.Avatar,
		&user.PasswordSalt, &user.PasswordHash, &historyRaw, &profileRaw,
		&user.IsRegistered, &user.IsLoggedIn, &user.ProfileVisible,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return User{}, err
	}
	if err := json.Unmarshal(historyRaw, &user.PasswordHistory); err != nil {
		return User{}, fmt.Errorf("decode password history: %w", err)
	}
	if err := json.Unmarshal(profileRaw, &user.Profile); err != nil {
		return User{}, fmt.Errorf("decode profile: %w", err)
	}
	normalizeProfile(&user.Profile)
	return user, nil
}

func normalizeProfile(profile *Profile) {
	if profile.Authors == nil {
		profile.Authors = []string{}
	}
	if profile.Books == nil {
		profile.Books = []string{}
	}
	if profile.UserProjects == nil {
		profile.UserProjects = []ProjectSummary{}
	}
	if profile.CollaboratingProjects == nil {
		profile.CollaboratingProjects = []ProjectSummary{}
	}
	if profile.Messages == nil {
		profile.Messages = []Message{}
	}
	if profile.Friends == nil {
		profile.Friends = []string{}
	}
	if profile.BlockedUsers == nil {
		profile.BlockedUsers = []string{}
	}
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	historyRaw, err := json.Marshal(user.PasswordHistory)
	if err != nil {
		return fmt.Errorf("encode password history: %w", err)
	}
	profileRaw, err := json.Marshal(user.Profile)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, username, name, avatar, password_salt, password_hash,
			password_history, profile, is_registered, is_logged_in, profile_visible)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, user.ID, user.Email, user.Username, user.Name, user.Avatar,
		user.PasswordSalt, user.PasswordHash, historyRaw, profileRaw,
		user.IsRegistered, user.IsLoggedIn, user.ProfileVisible)
	if err != nil {
		if dup := duplicateUserError(err); dup != nil {
			return dup
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func duplicateUserError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return nil
	}
	switch pgErr.ConstraintName {
	case "users_email_key":
		return ErrDuplicateEmail
	case "users_username_key":
		return ErrDuplicateUsername
	}
	return nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, userID)
	return scanUser(row)
}

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username=$1`, username)
	return scanUser(row)
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email=$1`, email)
	return scanUser(row)
}

func (s *PostgresStore) DeleteUser(ctx context.Context, userID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id=$1`, userID)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) SetUserLoggedIn(ctx context.Context, userID string, loggedIn bool) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET is_logged_in=$2, updated_at=NOW() WHERE id=$1
	`, userID, loggedIn)
	if err != nil {
		return fmt.Errorf("set logged in: %w", err)
	}
	return nil
}

// UpdateUserAccount changes identity fields and fans the new owner snapshot
// out to the user's projects in the same transaction.
func (s *PostgresStore) UpdateUserAccount(ctx context.Context, userID, name, email, username, avatar string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin account update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE users SET name=$2, email=$3, username=$4, avatar=$5, updated_at=NOW() WHERE id=$1
	`, userID, name, email, username, avatar)
	if err != nil {
		if dup := duplicateUserError(err); dup != nil {
			return dup
		}
		return fmt.Errorf("update account: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE projects SET owner_name=$2, owner_avatar=$3 WHERE owner_id=$1
	`, userID, name, avatar); err != nil {
		return fmt.Errorf("sync owner snapshot: %w", err)
	}

	return tx.Commit()
}

// UpdateUserPassword replaces the live credential and appends to the
// history. The history is append-only and never trimmed.
func (s *PostgresStore) UpdateUserPassword(ctx context.Context, userID string, entry password.Entry) error {
	entryRaw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode password entry: %w", err)
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET password_salt=$2, password_hash=$3,
			password_history = password_history || $4::jsonb,
			updated_at=NOW()
		WHERE id=$1
	`, userID, entry.Salt, entry.Hash, entryRaw)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) UpdateProfileInfo(ctx context.Context, userID, about string, authors, books []string, visible bool) error {
	patch, err := json.Marshal(map[string]any{
		"about":   about,
		"authors": authors,
		"books":   books,
	})
	if err != nil {
		return fmt.Errorf("encode profile patch: %w", err)
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE users SET profile = profile || $2::jsonb, profile_visible=$3, updated_at=NOW() WHERE id=$1
	`, userID, patch, visible)
	if err != nil {
		return fmt.Errorf("update profile info: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// AddFriend appends friendID to the user's friends list. The append is
// conditional on absence so two concurrent requests cannot double-add.
func (s *PostgresStore) AddFriend(ctx context.Context, userID, friendID string) (bool, error) {
	return s.appendProfileID(ctx, userID, "friends", friendID)
}

// BlockUser appends blockedID to the user's blocked list, unidirectional.
func (s *PostgresStore) BlockUser(ctx context.Context, userID, blockedID string) (bool, error) {
	return s.appendProfileID(ctx, userID, "blockedUsers", blockedID)
}

func (s *PostgresStore) appendProfileID(ctx context.Context, userID, field, value string) (bool, error) {
	query := fmt.Sprintf(`
		UPDATE users
		SET profile = jsonb_set(profile, '{%s}', COALESCE(profile->'%s', '[]'::jsonb) || to_jsonb($2::text)),
			updated_at=NOW()
		WHERE id=$1 AND NOT COALESCE(profile->'%s', '[]'::jsonb) @> to_jsonb($2::text)
	`, field, field, field)
	result, err := s.db.ExecContext(ctx, query, userID, value)
	if err != nil {
		return false, fmt.Errorf("append profile %s: %w", field, err)
	}
	affected, _ := result.RowsAffected()
	if affected > 0 {
		return true, nil
	}
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id=$1)`, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check user: %w", err)
	}
	if !exists {
		return false, sql.ErrNoRows
	}
	return false, nil
}

// PrependMessage pushes a message onto the front of the recipient's inbox
// (newest first) without rewriting the rest of the profile.
func (s *PostgresStore) PrependMessage(ctx context.Context, recipientID string, message Message) error {
	raw, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET profile = jsonb_set(profile, '{messages}', jsonb_build_array($2::jsonb) || COALESCE(profile->'messages', '[]'::jsonb)),
			updated_at=NOW()
		WHERE id=$1
	`, recipientID, raw)
	if err != nil {
		return fmt.Errorf("prepend message: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) SetMessageRead(ctx context.Context, userID, messageID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET profile = jsonb_set(profile, '{messages}', (
			SELECT COALESCE(jsonb_agg(
				CASE WHEN elem->>'id' = $2 THEN jsonb_set(elem, '{read}', 'true'::jsonb) ELSE elem END
			), '[]'::jsonb)
			FROM jsonb_array_elements(COALESCE(profile->'messages', '[]'::jsonb)) elem
		)), updated_at=NOW()
		WHERE id=$1
	`, userID, messageID)
	if err != nil {
		return fmt.Errorf("set message read: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ---- project summaries (denormalized profile copies) ----

func summaryListField(field string) (string, error) {
	switch field {
	case "userProjects", "collaboratingProjects":
		return field, nil
	}
	return "", fmt.Errorf("unknown summary field %q", field)
}

func (s *PostgresStore) addProjectSummaryTx(ctx context.Context, tx *sql.Tx, userID, field string, summary ProjectSummary) error {
	listField, err := summaryListField(field)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("encode project summary: %w", err)
	}
	query := fmt.Sprintf(`
		UPDATE users
		SET profile = jsonb_set(profile, '{%s}', COALESCE(profile->'%s', '[]'::jsonb) || jsonb_build_array($2::jsonb)),
			updated_at=NOW()
		WHERE id=$1
	`, listField, listField)
	result, err := tx.ExecContext(ctx, query, userID, raw)
	if err != nil {
		return fmt.Errorf("append %s summary: %w", listField, err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) removeProjectSummaryTx(ctx context.Context, tx *sql.Tx, userID, field, projectID string) error {
	listField, err := summaryListField(field)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
		UPDATE users
		SET profile = jsonb_set(profile, '{%s}', (
			SELECT COALESCE(jsonb_agg(elem), '[]'::jsonb)
			FROM jsonb_array_elements(COALESCE(profile->'%s', '[]'::jsonb)) elem
			WHERE elem->>'projectId' <> $2
		)), updated_at=NOW()
		WHERE id=$1
	`, listField, listField)
	if _, err := tx.ExecContext(ctx, query, userID, projectID); err != nil {
		return fmt.Errorf("remove %s summary: %w", listField, err)
	}
	return nil
}

// SyncProjectSummaries is the single fan-out point for project metadata:
// one statement patches every matching denormalized copy in every profile.
func (s *PostgresStore) syncProjectSummariesTx(ctx context.Context, tx *sql.Tx, projectID string, patch map[string]any) error {
	patchRaw, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("encode summary patch: %w", err)
	}
	match, err := json.Marshal([]map[string]string{{"projectId": projectID}})
	if err != nil {
		return fmt.Errorf("encode summary match: %w", err)
	}
	const query = `
		UPDATE users
		SET profile = jsonb_set(jsonb_set(profile,
			'{userProjects}', (
				SELECT COALESCE(jsonb_agg(CASE WHEN elem->>'projectId' = $1 THEN elem || $2::jsonb ELSE elem END), '[]'::jsonb)
				FROM jsonb_array_elements(COALESCE(profile->'userProjects', '[]'::jsonb)) elem
			)),
			'{collaboratingProjects}', (
				SELECT COALESCE(jsonb_agg(CASE WHEN elem->>'projectId' = $1 THEN elem || $2::jsonb ELSE elem END), '[]'::jsonb)
				FROM jsonb_array_elements(COALESCE(profile->'collaboratingProjects', '[]'::jsonb)) elem
			)), updated_at=NOW()
		WHERE COALESCE(profile->'userProjects', '[]'::jsonb) @> $3::jsonb
			OR COALESCE(profile->'collaboratingProjects', '[]'::jsonb) @> $3::jsonb
	`
	if _, err := tx.ExecContext(ctx, query, projectID, patchRaw, match); err != nil {
		return fmt.Errorf("sync project summaries: %w", err)
	}
	return nil
}

func (s *PostgresStore) stripProjectSummariesTx(ctx context.Context, tx *sql.Tx, projectID string) error {
	match, err := json.Marshal([]map[string]string{{"projectId": projectID}})
	if err != nil {
		return fmt.Errorf("encode summary match: %w", err)
	}
	const query = `
		UPDATE users
		SET profile = jsonb_set(jsonb_set(profile,
			'{userProjects}', (
				SELECT COALESCE(jsonb_agg(elem), '[]'::jsonb)
				FROM jsonb_array_elements(COALESCE(profile->'userProjects', '[]'::jsonb)) elem
				WHERE elem->>'projectId' <> $1
			)),
			'{collaboratingProjects}', (
				SELECT COALESCE(jsonb_agg(elem), '[]'::jsonb)
				FROM jsonb_array_elements(COALESCE(profile->'collaboratingProjects', '[]'::jsonb)) elem
				WHERE elem->>'projectId' <> $1
			)), updated_at=NOW()
		WHERE COALESCE(profile->'userProjects', '[]'::jsonb) @> $2::jsonb
			OR COALESCE(profile->'collaboratingProjects', '[]'::jsonb) @> $2::jsonb
	`
	if _, err := tx.ExecContext(ctx, query, projectID, match); err != nil {
		return fmt.Errorf("strip project summaries: %w", err)
	}
	return nil
}

// ---- pre-registrations ----

func (s *PostgresStore) EmailOrUsernameTaken(ctx context.Context, email, username string) (bool, bool, error) {
	var emailTaken, usernameTaken bool
	err := s.db.QueryRowContext(ctx, `
		SELECT
			EXISTS(SELECT 1 FROM users WHERE email=$1)
				OR EXISTS(SELECT 1 FROM pre_registrations WHERE email=$1 AND consumed_at IS NULL),
			EXISTS(SELECT 1 FROM users WHERE username=$2)
				OR EXISTS(SELECT 1 FROM pre_registrations WHERE username=$2 AND consumed_at IS NULL)
	`, email, username).Scan(&emailTaken, &usernameTaken)
	if err != nil {
		return false, false, fmt.Errorf("check email/username: %w", err)
	}
	return emailTaken, usernameTaken, nil
}

func (s *PostgresStore) CreatePreRegistration(ctx context.Context, pre PreRegistration) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pre_registrations (id, token_hash, email, name, username, password_salt, password_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, pre.ID, pre.TokenHash, pre.Email, pre.Name, pre.Username, pre.PasswordSalt, pre.PasswordHash)
	if err != nil {
		return fmt.Errorf("insert pre-registration: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPreRegistrationByTokenHash(ctx context.Context, tokenHash string) (PreRegistration, error) {
	var pre PreRegistration
	err := s.db.QueryRowContext(ctx, `
		SELECT id, token_hash, email, name, username, password_salt, password_hash, consumed_at, created_at
		FROM pre_registrations
		WHERE token_hash=$1 AND consumed_at IS NULL
	`, tokenHash).Scan(&pre.ID, &pre.TokenHash, &pre.Email, &pre.Name, &pre.Username,
		&pre.PasswordSalt, &pre.PasswordHash, &pre.ConsumedAt, &pre.CreatedAt)
	if err != nil {
		return PreRegistration{}, err
	}
	return pre, nil
}

// ConsumePreRegistration nulls the sensitive fields but keeps the row.
func (s *PostgresStore) ConsumePreRegistration(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE pre_registrations
		SET token_hash=NULL, password_salt=NULL, password_hash=NULL, consumed_at=NOW()
		WHERE token_hash=$1
	`, tokenHash)
	if err != nil {
		return fmt.Errorf("consume pre-registration: %w", err)
	}
	return nil
}

// ---- verification codes ----

func (s *PostgresStore) SaveVerificationCode(ctx context.Context, email, purpose, codeHash string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO verification_codes (email, purpose, code_hash, expires_at)
		VALUES ($1, $2, $3, $4)
	`, email, purpose, codeHash, expiresAt)
	if err != nil {
		return fmt.Errorf("save verification code: %w", err)
	}
	return nil
}

func (s *PostgresStore) ConsumeVerificationCode(ctx context.Context, email, purpose, codeHash string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE verification_codes
		SET used_at=NOW()
		WHERE email=$1 AND purpose=$2 AND code_hash=$3 AND used_at IS NULL AND expires_at > NOW()
	`, email, purpose, codeHash)
	if err != nil {
		return false, fmt.Errorf("consume verification code: %w", err)
	}
	affected, _ := result.RowsAffected()
	return affected > 0, nil
}

// ---- projects ----

const projectColumns = `id, project_id, owner_id, owner_name, owner_avatar, title, author,
	genres, description, image, collaborators, published, content, url, modified_at, created_at`

func scanProject(row interface{ Scan(...any) error }) (Project, error) {
	var project Project
	var genresRaw, collaboratorsRaw []byte
	err := row.Scan(
		&project.ID, &project.ProjectID, &project.OwnerID, &project.OwnerName, &project.OwnerAvatar,
		&project.Title, &project.Author, &genresRaw, &project.Description, &project.Image,
		&collaboratorsRaw, &project.Published, &project.Content, &project.URL,
		&project.ModifiedAt, &project.CreatedAt,
	)
	if err != nil {
		return Project{}, err
	}
	if err := json.Unmarshal(genresRaw, &project.Genres); err != nil {
		return Project{}, fmt.Errorf("decode genres: %w", err)
	}
	if err := json.Unmarshal(collaboratorsRaw, &project.Collaborators); err != nil {
		return Project{}, fmt.Errorf("decode collaborators: %w", err)
	}
	if project.Genres == nil {
		project.Genres = []string{}
	}
	if project.Collaborators == nil {
		project.Collaborators = []string{}
	}
	return project, nil
}

func (s *PostgresStore) insertProjectTx(ctx context.Context, tx *sql.Tx, project Project) error {
	genresRaw, err := json.Marshal(project.Genres)
	if err != nil {
		return fmt.Errorf("encode genres: %w", err)
	}
	collaboratorsRaw, err := json.Marshal(project.Collaborators)
	if err != nil {
		return fmt.Errorf("encode collaborators: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO projects (id, project_id, owner_id, owner_name, owner_avatar, title, author,
			genres, description, image, collaborators, published, content, url, modified_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, project.ID, project.ProjectID, project.OwnerID, project.OwnerName, project.OwnerAvatar,
		project.Title, project.Author, genresRaw, project.Description, project.Image,
		collaboratorsRaw, project.Published, project.Content, project.URL, project.ModifiedAt)
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

// CreateProjectGraph creates the full project constellation in one
// transaction: project row, chat room, root file, admin folder, owner base
// folder, and the owner's denormalized summary. A project is only fully
// formed once all of these exist, so they commit together.
func (s *PostgresStore) CreateProjectGraph(ctx context.Context, project Project, rootFile File, adminFolder, baseFolder Folder, ownerSummary ProjectSummary) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create project: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.insertProjectTx(ctx, tx, project); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO chat_rooms (project_id, messages) VALUES ($1, '[]'::jsonb)
		ON CONFLICT (project_id) DO NOTHING
	`, project.ProjectID); err != nil {
		return fmt.Errorf("insert chat room: %w", err)
	}
	if err := s.insertFileTx(ctx, tx, rootFile); err != nil {
		return err
	}
	if err := s.insertFolderTx(ctx, tx, adminFolder); err != nil {
		return err
	}
	if err := s.insertFolderTx(ctx, tx, baseFolder); err != nil {
		return err
	}
	if err := s.addProjectSummaryTx(ctx, tx, project.OwnerID, "userProjects", ownerSummary); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PostgresStore) GetProjectByProjectID(ctx context.Context, projectID string) (Project, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE project_id=$1`, projectID)
	return scanProject(row)
}

func (s *PostgresStore) listProjects(ctx context.Context, query string, args ...any) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	items := make([]Project, 0)
	for rows.Next() {
		item, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListProjectsByOwner(ctx context.Context, ownerID string) ([]Project, error) {
	return s.listProjects(ctx, `SELECT `+projectColumns+` FROM projects WHERE owner_id=$1 ORDER BY modified_at DESC`, ownerID)
}

func (s *PostgresStore) ListCollaborations(ctx context.Context, userID string) ([]Project, error) {
	return s.listProjects(ctx, `
		SELECT `+projectColumns+` FROM projects
		WHERE collaborators @> to_jsonb($1::text)
		ORDER BY modified_at DESC
	`, userID)
}

func (s *PostgresStore) ListPublishedProjects(ctx context.Context) ([]Project, error) {
	return s.listProjects(ctx, `SELECT `+projectColumns+` FROM projects WHERE published ORDER BY modified_at DESC`)
}

func (s *PostgresStore) IsProjectOwner(ctx context.Context, userID, projectID string) (bool, error) {
	var owner bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM projects WHERE project_id=$2 AND owner_id=$1)
	`, userID, projectID).Scan(&owner)
	if err != nil {
		return false, fmt.Errorf("check project owner: %w", err)
	}
	return owner, nil
}

// UpdateProjectMeta changes project metadata and fans the change out to every
// denormalized profile copy in the same transaction.
func (s *PostgresStore) UpdateProjectMeta(ctx context.Context, projectID, title string, genres []string, description, image string) error {
	genresRaw, err := json.Marshal(genres)
	if err != nil {
		return fmt.Errorf("encode genres: %w", err)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin meta update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE projects SET title=$2, genres=$3, description=$4, image=$5, modified_at=NOW()
		WHERE project_id=$1
	`, projectID, title, genresRaw, description, image)
	if err != nil {
		return fmt.Errorf("update project meta: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}

	if err := s.syncProjectSummariesTx(ctx, tx, projectID, map[string]any{
		"title":       title,
		"genres":      genres,
		"description": description,
		"image":       image,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// SaveProjectContent is a last-writer-wins overwrite. There is no
// concurrency token; concurrent editors clobber each other.
func (s *PostgresStore) SaveProjectContent(ctx context.Context, projectID, content string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE projects SET content=$2, modified_at=NOW() WHERE project_id=$1
	`, projectID, content)
	if err != nil {
		return fmt.Errorf("save project content: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) TouchProject(ctx context.Context, projectID string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE projects SET modified_at=NOW() WHERE project_id=$1`, projectID)
	if err != nil {
		return fmt.Errorf("touch project: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) SetProjectPublished(ctx context.Context, projectID string, published bool) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE projects SET published=$2, modified_at=NOW() WHERE project_id=$1
	`, projectID, published)
	if err != nil {
		return fmt.Errorf("set project published: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) SetProjectImage(ctx context.Context, projectID, image string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin image update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE projects SET image=$2, modified_at=NOW() WHERE project_id=$1
	`, projectID, image)
	if err != nil {
		return fmt.Errorf("set project image: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	if err := s.syncProjectSummariesTx(ctx, tx, projectID, map[string]any{"image": image}); err != nil {
		return err
	}
	return tx.Commit()
}

// AddCollaboratorGraph appends the collaborator, creates their base folder
// and denormalizes the project into their profile, atomically. The append is
// conditional so two concurrent adds for the same pair cannot both succeed.
func (s *PostgresStore) AddCollaboratorGraph(ctx context.Context, projectID, collaboratorID string, baseFolder Folder, summary ProjectSummary) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin add collaborator: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE projects
		SET collaborators = collaborators || to_jsonb($2::text), modified_at=NOW()
		WHERE project_id=$1 AND NOT collaborators @> to_jsonb($2::text)
	`, projectID, collaboratorID)
	if err != nil {
		return false, fmt.Errorf("append collaborator: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM projects WHERE project_id=$1)`, projectID).Scan(&exists); err != nil {
			return false, fmt.Errorf("check project: %w", err)
		}
		if !exists {
			return false, sql.ErrNoRows
		}
		return false, nil
	}

	if err := s.insertFolderTx(ctx, tx, baseFolder); err != nil {
		return false, err
	}
	if err := s.addProjectSummaryTx(ctx, tx, collaboratorID, "collaboratingProjects", summary); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit add collaborator: %w", err)
	}
	return true, nil
}

// RemoveCollaboratorGraph strips one collaborator: membership entry, their
// base folder, and their denormalized summary, atomically.
func (s *PostgresStore) RemoveCollaboratorGraph(ctx context.Context, projectID, collaboratorID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin remove collaborator: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE projects
		SET collaborators = (
			SELECT COALESCE(jsonb_agg(to_jsonb(elem)), '[]'::jsonb)
			FROM jsonb_array_elements_text(collaborators) AS t(elem)
			WHERE elem <> $2
		), modified_at=NOW()
		WHERE project_id=$1
	`, projectID, collaboratorID)
	if err != nil {
		return fmt.Errorf("remove collaborator: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM project_folders WHERE project_id=$1 AND owner_id=$2 AND user_base_folder
	`, projectID, collaboratorID); err != nil {
		return fmt.Errorf("delete base folder: %w", err)
	}
	if err := s.removeProjectSummaryTx(ctx, tx, collaboratorID, "collaboratingProjects", projectID); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteProjectGraph cascades: files, folders, chat room, the project row,
// and every remaining member's denormalized summary go in one transaction so
// a partial failure cannot leave dangling references.
func (s *PostgresStore) DeleteProjectGraph(ctx context.Context, projectID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete project: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM files WHERE project_id=$1`, projectID); err != nil {
		return fmt.Errorf("delete files: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM project_folders WHERE project_id=$1`, projectID); err != nil {
		return fmt.Errorf("delete folders: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chat_rooms WHERE project_id=$1`, projectID); err != nil {
		return fmt.Errorf("delete chat room: %w", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE project_id=$1`, projectID)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	if err := s.stripProjectSummariesTx(ctx, tx, projectID); err != nil {
		return err
	}
	return tx.Commit()
}

// ---- folders and files ----

const folderColumns = `id, project_id, owner_id, label, folder, admin_folder, user_base_folder, parent_id, items`

func scanFolder(row interface{ Scan(...any) error }) (Folder, error) {
	var folder Folder
	var parentID sql.NullString
	var itemsRaw []byte
	err := row.Scan(&folder.ID, &folder.ProjectID, &folder.OwnerID, &folder.Label,
		&folder.Folder, &folder.AdminFolder, &folder.UserBaseFolder, &parentID, &itemsRaw)
	if err != nil {
		return Folder{}, err
	}
	folder.ParentID = parentID.String
	if err := json.Unmarshal(itemsRaw, &folder.Items); err != nil {
		return Folder{}, fmt.Errorf("decode folder items: %w", err)
	}
	if folder.Items == nil {
		folder.Items = []FolderItem{}
	}
	return folder, nil
}

func (s *PostgresStore) insertFolderTx(ctx context.Context, tx *sql.Tx, folder Folder) error {
	itemsRaw, err := json.Marshal(folder.Items)
	if err != nil {
		return fmt.Errorf("encode folder items: %w", err)
	}
	var parentID any
	if folder.ParentID != "" {
		parentID = folder.ParentID
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO project_folders (id, project_id, owner_id, label, folder, admin_folder, user_base_folder, parent_id, items)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, folder.ID, folder.ProjectID, folder.OwnerID, folder.Label,
		folder.Folder, folder.AdminFolder, folder.UserBaseFolder, parentID, itemsRaw)
	if err != nil {
		return fmt.Errorf("insert folder: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListFoldersByProject(ctx context.Context, projectID string) ([]Folder, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+folderColumns+` FROM project_folders WHERE project_id=$1 ORDER BY admin_folder DESC, id
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list folders: %w", err)
	}
	defer rows.Close()

	items := make([]Folder, 0)
	for rows.Next() {
		item, err := scanFolder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan folder: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate folders: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetFolder(ctx context.Context, folderID string) (Folder, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+folderColumns+` FROM project_folders WHERE id=$1`, folderID)
	return scanFolder(row)
}

// CreateFolder validates the parent folder when one is referenced.
func (s *PostgresStore) CreateFolder(ctx context.Context, folder Folder) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create folder: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if folder.ParentID != "" {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM project_folders WHERE id=$1)`, folder.ParentID).Scan(&exists); err != nil {
			return fmt.Errorf("check parent folder: %w", err)
		}
		if !exists {
			return sql.ErrNoRows
		}
	}
	if err := s.insertFolderTx(ctx, tx, folder); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PostgresStore) insertFileTx(ctx context.Context, tx *sql.Tx, file File) error {
	var parentID any
	if file.ParentID != "" {
		parentID = file.ParentID
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO files (id, project_id, parent_id, owner_id, label, is_file, content, url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, file.ID, file.ProjectID, parentID, file.OwnerID, file.Label, file.File, file.Content, file.URL)
	if err != nil {
		return fmt.Errorf("insert file: %w", err)
	}
	return nil
}

// CreateFileGraph inserts the file and mirrors its snapshot into the parent
// folder's items list in one transaction.
func (s *PostgresStore) CreateFileGraph(ctx context.Context, file File, item FolderItem) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create file: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM project_folders WHERE id=$1)`, file.ParentID).Scan(&exists); err != nil {
		return fmt.Errorf("check parent folder: %w", err)
	}
	if !exists {
		return sql.ErrNoRows
	}
	if err := s.insertFileTx(ctx, tx, file); err != nil {
		return err
	}

	itemRaw, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode folder item: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE project_folders SET items = items || jsonb_build_array($2::jsonb) WHERE id=$1
	`, file.ParentID, itemRaw); err != nil {
		return fmt.Errorf("append folder item: %w", err)
	}
	return tx.Commit()
}

func (s *PostgresStore) GetFile(ctx context.Context, fileID string) (File, error) {
	var file File
	var parentID sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, parent_id, owner_id, label, is_file, content, url FROM files WHERE id=$1
	`, fileID).Scan(&file.ID, &file.ProjectID, &parentID, &file.OwnerID, &file.Label, &file.File, &file.Content, &file.URL)
	if err != nil {
		return File{}, err
	}
	file.ParentID = parentID.String
	return file, nil
}

// SaveFileContent is last-writer-wins, same as SaveProjectContent. The item
// snapshot in the parent folder is index metadata and is not re-synced.
func (s *PostgresStore) SaveFileContent(ctx context.Context, fileID, content string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE files SET content=$2 WHERE id=$1`, fileID, content)
	if err != nil {
		return fmt.Errorf("save file content: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ---- chat rooms ----

func (s *PostgresStore) GetChatRoom(ctx context.Context, projectID string) (ChatRoom, error) {
	var room ChatRoom
	var messagesRaw []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT project_id, messages FROM chat_rooms WHERE project_id=$1
	`, projectID).Scan(&room.ProjectID, &messagesRaw)
	if err != nil {
		return ChatRoom{}, err
	}
	if err := json.Unmarshal(messagesRaw, &room.Messages); err != nil {
		return ChatRoom{}, fmt.Errorf("decode chat messages: %w", err)
	}
	if room.Messages == nil {
		room.Messages = []ChatMessage{}
	}
	return room, nil
}

func (s *PostgresStore) CreateChatRoom(ctx context.Context, projectID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_rooms (project_id, messages) VALUES ($1, '[]'::jsonb)
		ON CONFLICT (project_id) DO NOTHING
	`, projectID)
	if err != nil {
		return fmt.Errorf("create chat room: %w", err)
	}
	return nil
}

// AppendChatMessage fails with sql.ErrNoRows when no room exists for the
// project; rooms are not auto-created here.
func (s *PostgresStore) AppendChatMessage(ctx context.Context, projectID string, message ChatMessage) error {
	raw, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("encode chat message: %w", err)
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE chat_rooms SET messages = messages || jsonb_build_array($2::jsonb) WHERE project_id=$1
	`, projectID, raw)
	if err != nil {
		return fmt.Errorf("append chat message: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListFilesByProject returns the project's leaf files ordered by label.
func (s *PostgresStore) ListFilesByProject(ctx context.Context, projectID string) ([]File, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, parent_id, owner_id, label, is_file, content, url
		FROM files WHERE project_id=$1 AND is_file ORDER BY label, id
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	items := make([]File, 0)
	for rows.Next() {
		var file File
		var parentID sql.NullString
		if err := rows.Scan(&file.ID, &file.ProjectID, &parentID, &file.OwnerID, &file.Label, &file.File, &file.Content, &file.URL); err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		file.ParentID = parentID.String
		items = append(items, file)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate files: %w", err)
	}
	return items, nil
}
