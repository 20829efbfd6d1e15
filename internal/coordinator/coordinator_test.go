package coordinator_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"draftline/internal/config"
	"draftline/internal/coordinator"
	"draftline/internal/db"
	"draftline/internal/domain"
	"draftline/internal/engine"
	"draftline/internal/generate"
	"draftline/internal/migrate"
	"draftline/internal/repo"
)

type fakeGenerator struct {
	mu         sync.Mutex
	questions  []string
	output     string
	err        error
	calls      int
	lastPrompt string
	entered    chan struct{}
	block      chan struct{}
}

func (f *fakeGenerator) ContextQuestions(ctx context.Context, prompt string, t domain.ContentType) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastPrompt = prompt
	return f.questions, f.err
}

func (f *fakeGenerator) Content(ctx context.Context, req generate.ContentRequest) (string, error) {
	f.mu.Lock()
	f.calls++
	f.lastPrompt = req.Prompt
	entered, block := f.entered, f.block
	f.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
	}
	if block != nil {
		<-block
	}
	if f.err != nil {
		return "", f.err
	}
	return f.output, nil
}

type testEnv struct {
	Coord *coordinator.Coordinator
	Eng   engine.Engine
	Gen   *fakeGenerator
	Ctx   context.Context
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
	gen := &fakeGenerator{output: "data:image/png;base64,AAAA", questions: []string{"Audience?"}}
	return testEnv{Coord: coordinator.New(eng, gen), Eng: eng, Gen: gen, Ctx: ctx}
}

func (env testEnv) actor(t *testing.T, id string) domain.Actor {
	t.Helper()
	a, err := env.Eng.Repo.GetActor(env.Ctx, id)
	if err != nil {
		t.Fatalf("get actor %s: %v", id, err)
	}
	return a
}

func TestCreateDraftStoresGeneratedOutput(t *testing.T) {
	env := newTestEnv(t)
	designer := env.actor(t, "u1")
	p, err := env.Coord.CreateDraft(env.Ctx, designer, domain.TypeImage, "spring banner", domain.ContextBrief{Tone: "upbeat"}, "")
	if err != nil {
		t.Fatalf("create draft: %v", err)
	}
	if p.Status != domain.StatusInEditing || p.Output != "data:image/png;base64,AAAA" {
		t.Fatalf("status=%s output=%q", p.Status, p.Output)
	}
	if p.Iterations != 3 {
		t.Fatalf("iterations = %d", p.Iterations)
	}
}

func TestGenerationFailureLeavesNoProject(t *testing.T) {
	env := newTestEnv(t)
	env.Gen.err = errors.New("model down")
	designer := env.actor(t, "u1")
	_, err := env.Coord.CreateDraft(env.Ctx, designer, domain.TypeImage, "banner", domain.ContextBrief{}, "")
	if err == nil {
		t.Fatalf("expected generation error")
	}
	items, err := env.Eng.Repo.ListProjects(env.Ctx, repo.ProjectFilters{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("projects stored on failure: %d", len(items))
	}
}

func TestNoResultLeavesRequestUntouched(t *testing.T) {
	env := newTestEnv(t)
	lead := env.actor(t, "u5")
	designer := env.actor(t, "u1")
	p, err := env.Eng.CreateRequest(env.Ctx, lead, domain.TypeImage, "banner")
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	env.Gen.err = generate.ErrNoResult
	_, err = env.Coord.Attend(env.Ctx, designer, p.ID, domain.ContextBrief{}, "")
	if !errors.Is(err, generate.ErrNoResult) {
		t.Fatalf("want ErrNoResult, got %v", err)
	}
	got, err := env.Eng.Repo.GetProject(env.Ctx, p.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.StatusInitiated || got.Output != "" {
		t.Fatalf("request mutated: status=%s output=%q", got.Status, got.Output)
	}
}

func TestIterateCombinesPromptAndInstruction(t *testing.T) {
	env := newTestEnv(t)
	designer := env.actor(t, "u1")
	p, err := env.Coord.CreateDraft(env.Ctx, designer, domain.TypeImage, "spring banner", domain.ContextBrief{}, "")
	if err != nil {
		t.Fatalf("create draft: %v", err)
	}
	env.Gen.output = "data:image/png;base64,BBBB"
	p, err = env.Coord.Iterate(env.Ctx, designer, p.ID, "more contrast")
	if err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if env.Gen.lastPrompt != "spring banner. Requested modification: more contrast" {
		t.Fatalf("prompt = %q", env.Gen.lastPrompt)
	}
	if p.Iterations != 2 || p.Output != "data:image/png;base64,BBBB" {
		t.Fatalf("iterations=%d output=%q", p.Iterations, p.Output)
	}
}

func TestIterateFailsFastOnExhaustedBudget(t *testing.T) {
	env := newTestEnv(t)
	designer := env.actor(t, "u1")
	p, err := env.Coord.CreateDraft(env.Ctx, designer, domain.TypeImage, "banner", domain.ContextBrief{}, "")
	if err != nil {
		t.Fatalf("create draft: %v", err)
	}
	for i := 0; i < 3; i++ {
		if p, err = env.Coord.Iterate(env.Ctx, designer, p.ID, "tweak"); err != nil {
			t.Fatalf("iteration %d: %v", i+1, err)
		}
	}
	calls := env.Gen.calls
	_, err = env.Coord.Iterate(env.Ctx, designer, p.ID, "tweak")
	if !errors.Is(err, engine.ErrBudgetExhausted) {
		t.Fatalf("want ErrBudgetExhausted, got %v", err)
	}
	if env.Gen.calls != calls {
		t.Fatalf("generator called despite exhausted budget")
	}
}

func TestIterateRejectsConcurrentRuns(t *testing.T) {
	env := newTestEnv(t)
	designer := env.actor(t, "u1")
	p, err := env.Coord.CreateDraft(env.Ctx, designer, domain.TypeImage, "banner", domain.ContextBrief{}, "")
	if err != nil {
		t.Fatalf("create draft: %v", err)
	}
	entered := make(chan struct{}, 1)
	block := make(chan struct{})
	env.Gen.entered = entered
	env.Gen.block = block

	done := make(chan error, 1)
	go func() {
		_, err := env.Coord.Iterate(env.Ctx, designer, p.ID, "slow")
		done <- err
	}()
	// the first run holds the project slot while inside the generator
	<-entered
	_, err = env.Coord.Iterate(env.Ctx, designer, p.ID, "fast")
	if !errors.Is(err, coordinator.ErrProjectBusy) {
		t.Fatalf("want ErrProjectBusy, got %v", err)
	}
	close(block)
	if err := <-done; err != nil {
		t.Fatalf("first iterate: %v", err)
	}
}

func TestDraftQuestionsValidatesFirst(t *testing.T) {
	env := newTestEnv(t)
	lead := env.actor(t, "u5")
	_, err := env.Coord.DraftQuestions(env.Ctx, lead, domain.TypeImage, "banner")
	var forbidden engine.ForbiddenError
	if !errors.As(err, &forbidden) {
		t.Fatalf("want ForbiddenError, got %v", err)
	}
	if env.Gen.calls != 0 {
		t.Fatalf("generator called for forbidden actor")
	}
	designer := env.actor(t, "u1")
	qs, err := env.Coord.DraftQuestions(env.Ctx, designer, domain.TypeImage, "banner")
	if err != nil || len(qs) != 1 {
		t.Fatalf("questions: %v (%v)", err, qs)
	}
}
