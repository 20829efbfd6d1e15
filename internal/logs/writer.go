package logs

import (
	"context"
	"database/sql"
	"time"

	"draftline/internal/domain"
)

// Writer appends project log entries inside the caller's transaction so the
// entry commits or rolls back together with the mutation it describes.
type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

func (w Writer) Append(ctx context.Context, tx *sql.Tx, projectID string, actor domain.Actor, action, details string) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	_, err := tx.ExecContext(ctx, `INSERT INTO project_logs(project_id,ts,actor_id,actor_name,action,details) VALUES (?,?,?,?,?,?)`,
		projectID, ts, actor.ID, actor.Name, action, nullable(details))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
