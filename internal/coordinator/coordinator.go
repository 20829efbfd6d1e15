package coordinator

import (
	"context"
	"errors"
	"strings"
	"sync"

	"draftline/internal/domain"
	"draftline/internal/engine"
	"draftline/internal/generate"
)

// ErrProjectBusy means a generation call is already in flight for the project.
var ErrProjectBusy = errors.New("a generation is already running for this project")

// Coordinator sequences generation around engine mutations. State checks run
// before the external call so a doomed request never spends one, and a failed
// or empty generation never mutates the project.
type Coordinator struct {
	Engine    engine.Engine
	Generator generate.Generator

	mu   sync.Mutex
	busy map[string]struct{}
}

func New(eng engine.Engine, gen generate.Generator) *Coordinator {
	return &Coordinator{Engine: eng, Generator: gen, busy: make(map[string]struct{})}
}

func (c *Coordinator) acquire(projectID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy == nil {
		c.busy = make(map[string]struct{})
	}
	if _, taken := c.busy[projectID]; taken {
		return ErrProjectBusy
	}
	c.busy[projectID] = struct{}{}
	return nil
}

func (c *Coordinator) release(projectID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.busy, projectID)
}

// DraftQuestions returns briefing questions for a producer about to start a
// direct draft. Role and type compatibility are checked up front.
func (c *Coordinator) DraftQuestions(ctx context.Context, actor domain.Actor, t domain.ContentType, prompt string) ([]string, error) {
	if err := c.checkDraft(actor, t, prompt); err != nil {
		return nil, err
	}
	return c.Generator.ContextQuestions(ctx, prompt, t)
}

// CreateDraft generates content for a direct draft and commits it. Nothing is
// stored when generation fails or yields no result. refImage optionally
// grounds text generation on an existing visual (data URI).
func (c *Coordinator) CreateDraft(ctx context.Context, actor domain.Actor, t domain.ContentType, prompt string, brief domain.ContextBrief, refImage string) (domain.ContentProject, error) {
	if err := c.checkDraft(actor, t, prompt); err != nil {
		return domain.ContentProject{}, err
	}
	output, err := c.Generator.Content(ctx, generate.ContentRequest{Prompt: prompt, Type: t, Brief: brief, ReferenceImage: refImage})
	if err != nil {
		return domain.ContentProject{}, err
	}
	return c.Engine.CreateDraft(ctx, actor, t, prompt, brief, output)
}

func (c *Coordinator) checkDraft(actor domain.Actor, t domain.ContentType, prompt string) error {
	if !domain.ValidContentType(t) {
		return engine.ValidationError{Msg: "unknown content type " + string(t)}
	}
	if strings.TrimSpace(prompt) == "" {
		return engine.ValidationError{Msg: "prompt is required"}
	}
	if !actor.Role.Producer() || !engine.CanProduce(actor.Role, t) {
		return engine.ForbiddenError{ActorID: actor.ID, Action: "create " + string(t) + " content"}
	}
	return nil
}

// AttendQuestions returns briefing questions for an assigned request, after
// verifying the actor may actually attend it.
func (c *Coordinator) AttendQuestions(ctx context.Context, actor domain.Actor, projectID string) ([]string, error) {
	p, err := c.Engine.CheckAttend(ctx, actor, projectID)
	if err != nil {
		return nil, err
	}
	return c.Generator.ContextQuestions(ctx, p.Prompt, p.Type)
}

// Attend generates the first draft for an assigned request and moves it to
// in_editing. The request stays untouched when generation yields nothing.
func (c *Coordinator) Attend(ctx context.Context, actor domain.Actor, projectID string, brief domain.ContextBrief, refImage string) (domain.ContentProject, error) {
	p, err := c.Engine.CheckAttend(ctx, actor, projectID)
	if err != nil {
		return domain.ContentProject{}, err
	}
	if err := c.acquire(projectID); err != nil {
		return domain.ContentProject{}, err
	}
	defer c.release(projectID)
	output, err := c.Generator.Content(ctx, generate.ContentRequest{Prompt: p.Prompt, Type: p.Type, Brief: brief, ReferenceImage: refImage})
	if err != nil {
		return domain.ContentProject{}, err
	}
	return c.Engine.Attend(ctx, actor, projectID, p.Prompt, brief, output)
}

// Iterate refines the current output with an instruction. Budget, ownership
// and state are checked before the external call; the budget is only spent
// when the new output lands.
func (c *Coordinator) Iterate(ctx context.Context, actor domain.Actor, projectID, instruction string) (domain.ContentProject, error) {
	if strings.TrimSpace(instruction) == "" {
		return domain.ContentProject{}, engine.ValidationError{Msg: "instruction is required"}
	}
	p, err := c.Engine.CheckIteration(ctx, actor, projectID)
	if err != nil {
		return domain.ContentProject{}, err
	}
	if err := c.acquire(projectID); err != nil {
		return domain.ContentProject{}, err
	}
	defer c.release(projectID)
	req := generate.ContentRequest{
		Prompt: generate.IterationPrompt(p.Prompt, instruction),
		Type:   p.Type,
	}
	if p.Context != nil {
		req.Brief = *p.Context
	}
	output, err := c.Generator.Content(ctx, req)
	if err != nil {
		return domain.ContentProject{}, err
	}
	return c.Engine.ApplyIteration(ctx, actor, projectID, instruction, output)
}
