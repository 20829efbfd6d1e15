package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"draftline/internal/config"
	"draftline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const projectColumns = `id,type,status,creator_id,title,prompt,context_json,iterations,output,reviewer_comments,created_at,updated_at`

func scanProject(scan func(dest ...any) error) (domain.ContentProject, error) {
	var p domain.ContentProject
	var contextJSON, output, comments sql.NullString
	err := scan(&p.ID, &p.Type, &p.Status, &p.CreatorID, &p.Title, &p.Prompt,
		&contextJSON, &p.Iterations, &output, &comments, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	if contextJSON.Valid && contextJSON.String != "" {
		var brief domain.ContextBrief
		if err := json.Unmarshal([]byte(contextJSON.String), &brief); err != nil {
			return p, fmt.Errorf("decode context for project %s: %w", p.ID, err)
		}
		p.Context = &brief
	}
	if output.Valid {
		p.Output = output.String
	}
	if comments.Valid {
		p.ReviewerComments = comments.String
	}
	return p, nil
}

func marshalContext(brief *domain.ContextBrief) (any, error) {
	if brief == nil {
		return nil, nil
	}
	b, err := json.Marshal(brief)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (r Repo) InsertProject(ctx context.Context, tx *sql.Tx, p domain.ContentProject) error {
	contextJSON, err := marshalContext(p.Context)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO projects(`+projectColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.Type, p.Status, p.CreatorID, p.Title, p.Prompt,
		contextJSON, p.Iterations, nullable(p.Output), nullable(p.ReviewerComments), p.CreatedAt, p.UpdatedAt)
	return err
}

func (r Repo) UpdateProject(ctx context.Context, tx *sql.Tx, p domain.ContentProject) error {
	contextJSON, err := marshalContext(p.Context)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE projects SET type=?, status=?, creator_id=?, title=?, prompt=?, context_json=?, iterations=?, output=?, reviewer_comments=?, updated_at=? WHERE id=?`,
		p.Type, p.Status, p.CreatorID, p.Title, p.Prompt, contextJSON, p.Iterations,
		nullable(p.Output), nullable(p.ReviewerComments), p.UpdatedAt, p.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetProject returns a project without its logs.
func (r Repo) GetProject(ctx context.Context, id string) (domain.ContentProject, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=?`, id)
	return scanProject(row.Scan)
}

func (r Repo) GetProjectTx(ctx context.Context, tx *sql.Tx, id string) (domain.ContentProject, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=?`, id)
	return scanProject(row.Scan)
}

// GetProjectWithLogs returns a project including its full log history,
// newest entry first.
func (r Repo) GetProjectWithLogs(ctx context.Context, id string) (domain.ContentProject, error) {
	p, err := r.GetProject(ctx, id)
	if err != nil {
		return p, err
	}
	logs, err := r.ListLogs(ctx, LogFilters{ProjectID: id})
	if err != nil {
		return p, err
	}
	p.Logs = logs
	return p, nil
}

type ProjectFilters struct {
	CreatorID       string
	Type            string
	Statuses        []string
	ExcludeStatuses []string
	Limit           int
	CursorUpdatedAt string
	CursorID        string
}

func (r Repo) ListProjects(ctx context.Context, f ProjectFilters) ([]domain.ContentProject, error) {
	var clauses []string
	var args []any
	if f.CreatorID != "" {
		clauses = append(clauses, "creator_id=?")
		args = append(args, f.CreatorID)
	}
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	if len(f.Statuses) > 0 {
		clauses = append(clauses, "status IN ("+placeholders(len(f.Statuses))+")")
		for _, s := range f.Statuses {
			args = append(args, s)
		}
	}
	if len(f.ExcludeStatuses) > 0 {
		clauses = append(clauses, "status NOT IN ("+placeholders(len(f.ExcludeStatuses))+")")
		for _, s := range f.ExcludeStatuses {
			args = append(args, s)
		}
	}
	if f.CursorUpdatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(updated_at < ? OR (updated_at = ? AND id < ?))")
		args = append(args, f.CursorUpdatedAt, f.CursorUpdatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + projectColumns + ` FROM projects ` + where + ` ORDER BY updated_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ContentProject
	for rows.Next() {
		p, err := scanProject(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) CountProjectsByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, count(*) FROM projects GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		res[status] = count
	}
	return res, rows.Err()
}

type LogFilters struct {
	ProjectID string
	ActorID   string
	Action    string
	Limit     int
	CursorID  int64
}

// ListLogs returns log entries newest first.
func (r Repo) ListLogs(ctx context.Context, f LogFilters) ([]domain.ProjectLog, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.ProjectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, f.ProjectID)
	}
	if f.ActorID != "" {
		clauses = append(clauses, "actor_id=?")
		args = append(args, f.ActorID)
	}
	if f.Action != "" {
		clauses = append(clauses, "action=?")
		args = append(args, f.Action)
	}
	if f.CursorID > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, f.CursorID)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := `SELECT id,project_id,ts,actor_id,actor_name,action,COALESCE(details,'') FROM project_logs ` + where + ` ORDER BY id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ProjectLog
	for rows.Next() {
		var l domain.ProjectLog
		if err := rows.Scan(&l.ID, &l.ProjectID, &l.TS, &l.ActorID, &l.ActorName, &l.Action, &l.Details); err != nil {
			return nil, err
		}
		res = append(res, l)
	}
	return res, rows.Err()
}

func (r Repo) CountLogs(ctx context.Context, projectID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM project_logs WHERE project_id=?`, projectID).Scan(&n)
	return n, err
}

func (r Repo) UpsertWorkspaceConfig(ctx context.Context, workspaceID string, cfg *config.Config) error {
	return upsertWorkspaceConfig(ctx, r.DB, nil, workspaceID, cfg)
}

func (r Repo) UpsertWorkspaceConfigTx(ctx context.Context, tx *sql.Tx, workspaceID string, cfg *config.Config) error {
	return upsertWorkspaceConfig(ctx, nil, tx, workspaceID, cfg)
}

func upsertWorkspaceConfig(ctx context.Context, db *sql.DB, tx *sql.Tx, workspaceID string, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config nil")
	}
	cfg.Workspace.ID = workspaceID
	if err := cfg.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	exec := func(query string, args ...any) (sql.Result, error) {
		if tx != nil {
			return tx.ExecContext(ctx, query, args...)
		}
		return db.ExecContext(ctx, query, args...)
	}
	_, err = exec(`INSERT INTO workspace_configs(workspace_id,config_json,created_at,updated_at) VALUES (?,?,?,?)
ON CONFLICT(workspace_id) DO UPDATE SET config_json=excluded.config_json, updated_at=excluded.updated_at`, workspaceID, string(payload), now, now)
	return err
}

func (r Repo) GetWorkspaceConfig(ctx context.Context, workspaceID string) (*config.Config, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT config_json FROM workspace_configs WHERE workspace_id=?`, workspaceID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var cfg config.Config
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return nil, err
	}
	if cfg.Workspace.ID == "" {
		cfg.Workspace.ID = workspaceID
	}
	return &cfg, cfg.Validate()
}

// SingleWorkspaceConfig returns the stored config when exactly one workspace
// exists. Local workspaces hold one.
func (r Repo) SingleWorkspaceConfig(ctx context.Context) (*config.Config, error) {
	var id string
	err := r.DB.QueryRowContext(ctx, `SELECT workspace_id FROM workspace_configs LIMIT 2`).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var n int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM workspace_configs`).Scan(&n); err != nil {
		return nil, err
	}
	if n != 1 {
		return nil, fmt.Errorf("%d workspace configs stored; specify one", n)
	}
	return r.GetWorkspaceConfig(ctx, id)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
