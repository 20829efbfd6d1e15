package views_test

import (
	"context"
	"testing"
	"time"

	"draftline/internal/config"
	"draftline/internal/db"
	"draftline/internal/domain"
	"draftline/internal/engine"
	"draftline/internal/migrate"
	"draftline/internal/repo"
	"draftline/internal/views"
)

type testEnv struct {
	Eng engine.Engine
	Cfg *config.Config
	Ctx context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("ws-1")
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	for _, a := range cfg.Team.Actors {
		actor := domain.Actor{ID: a.ID, Name: a.Name, Role: domain.Role(a.Role)}
		if err := eng.Repo.UpsertActor(ctx, tx, actor, repo.HashPIN(a.PIN)); err != nil {
			t.Fatalf("seed actor %s: %v", a.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("seed actors: %v", err)
	}
	return testEnv{Eng: eng, Cfg: cfg, Ctx: ctx}
}

func (env testEnv) actor(t *testing.T, id string) domain.Actor {
	t.Helper()
	a, err := env.Eng.Repo.GetActor(env.Ctx, id)
	if err != nil {
		t.Fatalf("get actor %s: %v", id, err)
	}
	return a
}

func (env testEnv) list(t *testing.T, tab views.Tab, actor domain.Actor) map[string]domain.ContentStatus {
	t.Helper()
	f, err := views.Filters(env.Cfg, tab, actor)
	if err != nil {
		t.Fatalf("filters: %v", err)
	}
	items, err := env.Eng.Repo.ListProjects(env.Ctx, f)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	res := map[string]domain.ContentStatus{}
	for _, p := range items {
		res[p.ID] = p.Status
	}
	return res
}

// seedBoard produces one project per interesting status:
//
//	initiated (u1), in_editing (u1), in_review (u3), approved (u1)
func seedBoard(t *testing.T, env testEnv) map[domain.ContentStatus]string {
	t.Helper()
	lead := env.actor(t, "u5")
	designer := env.actor(t, "u1")
	editor := env.actor(t, "u3")
	out := map[domain.ContentStatus]string{}

	p, err := env.Eng.CreateRequest(env.Ctx, lead, domain.TypeImage, "banner")
	if err != nil {
		t.Fatalf("seed initiated: %v", err)
	}
	out[domain.StatusInitiated] = p.ID

	p, err = env.Eng.CreateDraft(env.Ctx, designer, domain.TypeImage, "poster", domain.ContextBrief{}, "data:image/png;base64,AAAA")
	if err != nil {
		t.Fatalf("seed in_editing: %v", err)
	}
	out[domain.StatusInEditing] = p.ID

	p, err = env.Eng.CreateDraft(env.Ctx, editor, domain.TypeText, "tagline", domain.ContextBrief{}, "Fresh starts daily")
	if err != nil {
		t.Fatalf("seed draft for review: %v", err)
	}
	if p, err = env.Eng.SubmitForReview(env.Ctx, editor, p.ID); err != nil {
		t.Fatalf("seed in_review: %v", err)
	}
	out[domain.StatusInReview] = p.ID

	p, err = env.Eng.CreateDraft(env.Ctx, designer, domain.TypeImage, "logo", domain.ContextBrief{}, "data:image/png;base64,BBBB")
	if err != nil {
		t.Fatalf("seed draft for approval: %v", err)
	}
	if p, err = env.Eng.SubmitForReview(env.Ctx, designer, p.ID); err != nil {
		t.Fatalf("submit for approval: %v", err)
	}
	if p, err = env.Eng.Review(env.Ctx, lead, p.ID, engine.VerdictApprove, ""); err != nil {
		t.Fatalf("seed approved: %v", err)
	}
	out[domain.StatusApproved] = p.ID
	return out
}

func TestRepositoryTabShowsOnlyApproved(t *testing.T) {
	env := newTestEnv(t)
	ids := seedBoard(t, env)
	for _, who := range []string{"u1", "u3", "u5"} {
		got := env.list(t, views.TabRepository, env.actor(t, who))
		if len(got) != 1 {
			t.Fatalf("%s sees %d repository items", who, len(got))
		}
		if _, ok := got[ids[domain.StatusApproved]]; !ok {
			t.Fatalf("%s repository misses the approved piece", who)
		}
	}
}

func TestMyTasksLeadSeesOnlyInReview(t *testing.T) {
	env := newTestEnv(t)
	ids := seedBoard(t, env)
	got := env.list(t, views.TabMyTasks, env.actor(t, "u5"))
	if len(got) != 1 {
		t.Fatalf("lead my-tasks = %v", got)
	}
	if _, ok := got[ids[domain.StatusInReview]]; !ok {
		t.Fatalf("lead my-tasks misses the in_review piece")
	}
}

func TestMyTasksProducerSeesOwnActionable(t *testing.T) {
	env := newTestEnv(t)
	ids := seedBoard(t, env)
	got := env.list(t, views.TabMyTasks, env.actor(t, "u1"))
	if len(got) != 2 {
		t.Fatalf("designer my-tasks = %v", got)
	}
	for _, status := range []domain.ContentStatus{domain.StatusInitiated, domain.StatusInEditing} {
		if _, ok := got[ids[status]]; !ok {
			t.Fatalf("designer my-tasks misses %s", status)
		}
	}
	// the editor's in_review piece is not theirs and not actionable
	if _, ok := got[ids[domain.StatusInReview]]; ok {
		t.Fatalf("designer my-tasks shows another actor's piece")
	}
}

func TestAllTabLeadHidesApprovedAndInReview(t *testing.T) {
	env := newTestEnv(t)
	ids := seedBoard(t, env)
	got := env.list(t, views.TabAll, env.actor(t, "u5"))
	if len(got) != 2 {
		t.Fatalf("lead all = %v", got)
	}
	for _, status := range []domain.ContentStatus{domain.StatusInitiated, domain.StatusInEditing} {
		if _, ok := got[ids[status]]; !ok {
			t.Fatalf("lead all misses %s", status)
		}
	}
}

func TestAllTabProducerSeesOwnExceptApproved(t *testing.T) {
	env := newTestEnv(t)
	ids := seedBoard(t, env)
	got := env.list(t, views.TabAll, env.actor(t, "u1"))
	// initiated + in_editing are u1's; approved is excluded
	if len(got) != 2 {
		t.Fatalf("designer all = %v", got)
	}
	if _, ok := got[ids[domain.StatusApproved]]; ok {
		t.Fatalf("designer all shows approved piece")
	}
}

func TestActivityTabDoesNotListProjects(t *testing.T) {
	env := newTestEnv(t)
	if _, err := views.Filters(env.Cfg, views.TabActivity, env.actor(t, "u5")); err == nil {
		t.Fatalf("expected error for activity tab")
	}
}
