package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"draftline/internal/config"
	"draftline/internal/domain"
	"draftline/internal/logs"
	"draftline/internal/repo"
)

// Engine validates and applies workflow transitions. Every mutation commits
// the state change and its log entry in one transaction.
type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Logs   logs.Writer
	Config *config.Config
	Now    func() time.Time
	NewID  func() string
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Logs:   logs.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
		NewID:  uuid.NewString,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) newID() string {
	if e.NewID != nil {
		return e.NewID()
	}
	return uuid.NewString()
}

func (e Engine) budget() int {
	if e.Config != nil && e.Config.Workflow.IterationBudget > 0 {
		return e.Config.Workflow.IterationBudget
	}
	return 3
}

// CanProduce reports whether a producer role may author the content type.
// Designers own image pieces, editors text pieces.
func CanProduce(role domain.Role, t domain.ContentType) bool {
	switch role {
	case domain.RoleDesigner:
		return t == domain.TypeImage
	case domain.RoleEditor:
		return t == domain.TypeText
	}
	return false
}

// CreateRequest creates a lead-initiated request: a bare Initiated project
// assigned to the configured producer for the content type. No generation
// happens at creation time.
func (e Engine) CreateRequest(ctx context.Context, actor domain.Actor, t domain.ContentType, prompt string) (domain.ContentProject, error) {
	if e.Config == nil {
		return domain.ContentProject{}, errors.New("config not loaded")
	}
	if actor.Role != domain.RoleMarketingLead {
		return domain.ContentProject{}, ForbiddenError{ActorID: actor.ID, Action: "create a request"}
	}
	if !domain.ValidContentType(t) {
		return domain.ContentProject{}, invalidf("unknown content type %s", t)
	}
	if strings.TrimSpace(prompt) == "" {
		return domain.ContentProject{}, invalidf("prompt is required")
	}
	assigneeID, ok := e.Config.AssigneeFor(t)
	if !ok {
		return domain.ContentProject{}, fmt.Errorf("no assignee configured for type %s", t)
	}
	assignee, err := e.Repo.GetActor(ctx, assigneeID)
	if err != nil {
		return domain.ContentProject{}, fmt.Errorf("resolve assignee %s: %w", assigneeID, err)
	}
	now := e.now().UTC().Format(time.RFC3339)
	p := domain.ContentProject{
		ID:        e.newID(),
		Type:      t,
		Status:    domain.StatusInitiated,
		CreatorID: assignee.ID,
		Title:     fmt.Sprintf("Request: %s", t),
		Prompt:    prompt,
		CreatedAt: now,
		UpdatedAt: now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ContentProject{}, err
	}
	defer tx.Rollback()
	// Creation is not a transition and writes no log entry; the history
	// starts with the first state-changing action on the piece.
	if err := e.Repo.InsertProject(ctx, tx, p); err != nil {
		return domain.ContentProject{}, fmt.Errorf("insert project: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.ContentProject{}, err
	}
	return p, nil
}

// CreateDraft commits a producer's self-initiated piece after generation
// succeeded: the project starts directly in InEditing with a full budget.
func (e Engine) CreateDraft(ctx context.Context, actor domain.Actor, t domain.ContentType, prompt string, brief domain.ContextBrief, output string) (domain.ContentProject, error) {
	if e.Config == nil {
		return domain.ContentProject{}, errors.New("config not loaded")
	}
	if !actor.Role.Producer() || !CanProduce(actor.Role, t) {
		return domain.ContentProject{}, ForbiddenError{ActorID: actor.ID, Action: "create " + string(t) + " content"}
	}
	if strings.TrimSpace(prompt) == "" {
		return domain.ContentProject{}, invalidf("prompt is required")
	}
	if output == "" {
		return domain.ContentProject{}, invalidf("output is required")
	}
	now := e.now().UTC().Format(time.RFC3339)
	p := domain.ContentProject{
		ID:         e.newID(),
		Type:       t,
		Status:     domain.StatusInEditing,
		CreatorID:  actor.ID,
		Title:      fmt.Sprintf("Content: %s", t),
		Prompt:     prompt,
		Context:    &brief,
		Iterations: e.budget(),
		Output:     output,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ContentProject{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertProject(ctx, tx, p); err != nil {
		return domain.ContentProject{}, fmt.Errorf("insert project: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.ContentProject{}, err
	}
	return p, nil
}

// CheckAttend validates that the actor may accept an Initiated request,
// without mutating anything. The coordinator calls this before spending an
// external generation call.
func (e Engine) CheckAttend(ctx context.Context, actor domain.Actor, projectID string) (domain.ContentProject, error) {
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return p, err
	}
	if err := authorizeTransition(p, domain.StatusInEditing, actor); err != nil {
		return p, err
	}
	return p, nil
}

// Attend moves an Initiated request to InEditing with the generated output,
// the collected context brief and a fresh iteration budget.
func (e Engine) Attend(ctx context.Context, actor domain.Actor, projectID string, prompt string, brief domain.ContextBrief, output string) (domain.ContentProject, error) {
	if output == "" {
		return domain.ContentProject{}, invalidf("output is required")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ContentProject{}, err
	}
	defer tx.Rollback()
	p, err := e.Repo.GetProjectTx(ctx, tx, projectID)
	if err != nil {
		return p, err
	}
	if err := authorizeTransition(p, domain.StatusInEditing, actor); err != nil {
		return p, err
	}
	p.Status = domain.StatusInEditing
	if strings.TrimSpace(prompt) != "" {
		p.Prompt = prompt
	}
	p.Context = &brief
	p.Output = output
	p.Iterations = e.budget()
	p.UpdatedAt = e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.UpdateProject(ctx, tx, p); err != nil {
		return p, err
	}
	if err := e.Logs.Append(ctx, tx, p.ID, actor, domain.ActionAttended, ""); err != nil {
		return p, err
	}
	if err := tx.Commit(); err != nil {
		return p, err
	}
	return p, nil
}

// Delegate reassigns an Initiated request to the acting actor's configured
// successor. Status does not change; the handoff is logged.
func (e Engine) Delegate(ctx context.Context, actor domain.Actor, projectID string) (domain.ContentProject, error) {
	if e.Config == nil {
		return domain.ContentProject{}, errors.New("config not loaded")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ContentProject{}, err
	}
	defer tx.Rollback()
	p, err := e.Repo.GetProjectTx(ctx, tx, projectID)
	if err != nil {
		return p, err
	}
	if err := authorizeTransition(p, domain.StatusInitiated, actor); err != nil {
		return p, err
	}
	successorID, ok := e.Config.SuccessorFor(actor.ID)
	if !ok {
		return p, ForbiddenError{ActorID: actor.ID, Action: "delegate project " + p.ID}
	}
	successor, err := e.Repo.GetActorTx(ctx, tx, successorID)
	if err != nil {
		return p, fmt.Errorf("resolve successor %s: %w", successorID, err)
	}
	p.CreatorID = successor.ID
	p.UpdatedAt = e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.UpdateProject(ctx, tx, p); err != nil {
		return p, err
	}
	if err := e.Logs.Append(ctx, tx, p.ID, actor, domain.ActionDelegated, "to "+successor.Name); err != nil {
		return p, err
	}
	if err := tx.Commit(); err != nil {
		return p, err
	}
	return p, nil
}

// SubmitForReview moves an InEditing or Returned piece to InReview. The
// piece must carry an output.
func (e Engine) SubmitForReview(ctx context.Context, actor domain.Actor, projectID string) (domain.ContentProject, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ContentProject{}, err
	}
	defer tx.Rollback()
	p, err := e.Repo.GetProjectTx(ctx, tx, projectID)
	if err != nil {
		return p, err
	}
	if err := authorizeTransition(p, domain.StatusInReview, actor); err != nil {
		return p, err
	}
	if p.Output == "" {
		return p, invalidf("project %s has no output to review", p.ID)
	}
	p.Status = domain.StatusInReview
	p.UpdatedAt = e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.UpdateProject(ctx, tx, p); err != nil {
		return p, err
	}
	if err := e.Logs.Append(ctx, tx, p.ID, actor, domain.ActionSubmitted, ""); err != nil {
		return p, err
	}
	if err := tx.Commit(); err != nil {
		return p, err
	}
	return p, nil
}

// Cancel discards an InEditing or Returned piece. Terminal.
func (e Engine) Cancel(ctx context.Context, actor domain.Actor, projectID string) (domain.ContentProject, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ContentProject{}, err
	}
	defer tx.Rollback()
	p, err := e.Repo.GetProjectTx(ctx, tx, projectID)
	if err != nil {
		return p, err
	}
	if err := authorizeTransition(p, domain.StatusCancelled, actor); err != nil {
		return p, err
	}
	p.Status = domain.StatusCancelled
	p.UpdatedAt = e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.UpdateProject(ctx, tx, p); err != nil {
		return p, err
	}
	if err := e.Logs.Append(ctx, tx, p.ID, actor, domain.ActionCancelled, ""); err != nil {
		return p, err
	}
	if err := tx.Commit(); err != nil {
		return p, err
	}
	return p, nil
}

// Verdict is a review decision.
type Verdict string

const (
	VerdictApprove Verdict = "approve"
	VerdictReturn  Verdict = "return"
	VerdictReject  Verdict = "reject"
)

func (v Verdict) status() (domain.ContentStatus, bool) {
	switch v {
	case VerdictApprove:
		return domain.StatusApproved, true
	case VerdictReturn:
		return domain.StatusReturned, true
	case VerdictReject:
		return domain.StatusRejected, true
	}
	return "", false
}

func (v Verdict) action() string {
	switch v {
	case VerdictApprove:
		return domain.ActionApproved
	case VerdictReturn:
		return domain.ActionReturned
	default:
		return domain.ActionRejected
	}
}

// Review applies a lead's verdict to an InReview piece. A returned piece
// gets its iteration budget reset so the producer can refine again.
func (e Engine) Review(ctx context.Context, actor domain.Actor, projectID string, verdict Verdict, comments string) (domain.ContentProject, error) {
	target, ok := verdict.status()
	if !ok {
		return domain.ContentProject{}, invalidf("unknown verdict %s", verdict)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ContentProject{}, err
	}
	defer tx.Rollback()
	p, err := e.Repo.GetProjectTx(ctx, tx, projectID)
	if err != nil {
		return p, err
	}
	if err := authorizeTransition(p, target, actor); err != nil {
		return p, err
	}
	p.Status = target
	p.ReviewerComments = comments
	if target == domain.StatusReturned {
		p.Iterations = e.budget()
	}
	p.UpdatedAt = e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.UpdateProject(ctx, tx, p); err != nil {
		return p, err
	}
	if err := e.Logs.Append(ctx, tx, p.ID, actor, verdict.action(), comments); err != nil {
		return p, err
	}
	if err := tx.Commit(); err != nil {
		return p, err
	}
	return p, nil
}

// CheckIteration validates a refinement request without mutating anything:
// ownership, state, output presence and remaining budget. Called before the
// external generation call so an exhausted budget never wastes one.
func (e Engine) CheckIteration(ctx context.Context, actor domain.Actor, projectID string) (domain.ContentProject, error) {
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return p, err
	}
	if err := e.iterationAllowed(p, actor); err != nil {
		return p, err
	}
	return p, nil
}

func (e Engine) iterationAllowed(p domain.ContentProject, actor domain.Actor) error {
	if p.Status != domain.StatusInEditing && p.Status != domain.StatusReturned {
		return IllegalTransitionError{From: p.Status, To: p.Status}
	}
	if !actor.Role.Producer() || p.CreatorID != actor.ID {
		return ForbiddenError{ActorID: actor.ID, Action: "refine project " + p.ID}
	}
	if p.Output == "" {
		return invalidf("project %s has no output to refine", p.ID)
	}
	if p.Iterations <= 0 {
		return ErrBudgetExhausted
	}
	return nil
}

// ApplyIteration folds a successful refinement back into the project:
// budget down by one, output overwritten, status unchanged.
func (e Engine) ApplyIteration(ctx context.Context, actor domain.Actor, projectID, instruction, output string) (domain.ContentProject, error) {
	if output == "" {
		return domain.ContentProject{}, invalidf("output is required")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ContentProject{}, err
	}
	defer tx.Rollback()
	p, err := e.Repo.GetProjectTx(ctx, tx, projectID)
	if err != nil {
		return p, err
	}
	if err := e.iterationAllowed(p, actor); err != nil {
		return p, err
	}
	p.Iterations--
	p.Output = output
	p.UpdatedAt = e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.UpdateProject(ctx, tx, p); err != nil {
		return p, err
	}
	if err := e.Logs.Append(ctx, tx, p.ID, actor, domain.ActionIterated, instruction); err != nil {
		return p, err
	}
	if err := tx.Commit(); err != nil {
		return p, err
	}
	return p, nil
}
