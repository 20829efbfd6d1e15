package server

import (
	"draftline/internal/domain"
)

type ActorResponse struct {
	ID   string `json:"id" example:"u1"`
	Name string `json:"name" example:"Rocio"`
	Role string `json:"role" example:"designer" enum:"designer,editor,marketing-lead"`
}

type ContextBriefPayload struct {
	Objective    string `json:"objective,omitempty"`
	Audience     string `json:"audience,omitempty"`
	Tone         string `json:"tone,omitempty"`
	Style        string `json:"style,omitempty"`
	Restrictions string `json:"restrictions,omitempty"`
}

type ProjectResponse struct {
	ID               string               `json:"id"`
	Type             string               `json:"type" enum:"image,text"`
	Status           string               `json:"status" enum:"initiated,in_editing,in_review,returned,rejected,approved,cancelled"`
	CreatorID        string               `json:"creator_id"`
	Title            string               `json:"title"`
	Prompt           string               `json:"prompt"`
	Context          *ContextBriefPayload `json:"context,omitempty"`
	Iterations       int                  `json:"iterations"`
	Output           string               `json:"output,omitempty"`
	ReviewerComments string               `json:"reviewer_comments,omitempty"`
	CreatedAt        string               `json:"created_at"`
	UpdatedAt        string               `json:"updated_at"`
	Logs             []LogResponse        `json:"logs,omitempty"`
	// NextStatuses reports what the requesting actor may do with the piece.
	NextStatuses []string `json:"next_statuses,omitempty"`
}

type LogResponse struct {
	ID        int64  `json:"id"`
	ProjectID string `json:"project_id"`
	TS        string `json:"ts"`
	ActorID   string `json:"actor_id"`
	ActorName string `json:"actor_name"`
	Action    string `json:"action"`
	Details   string `json:"details,omitempty"`
}

type paginatedProjects struct {
	Items      []ProjectResponse `json:"items"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

type paginatedLogs struct {
	Items      []LogResponse `json:"items"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

type LoginRequest struct {
	ActorID string `json:"actor_id" example:"u1"`
	PIN     string `json:"pin" example:"1111"`
}

type LoginResponse struct {
	Token string        `json:"token"`
	Actor ActorResponse `json:"actor"`
}

type CreateRequestRequest struct {
	Type   string `json:"type" enum:"image,text"`
	Prompt string `json:"prompt"`
}

type DraftQuestionsRequest struct {
	Type   string `json:"type" enum:"image,text"`
	Prompt string `json:"prompt"`
}

type QuestionsResponse struct {
	Questions []string `json:"questions"`
}

type CreateDraftRequest struct {
	Type    string               `json:"type" enum:"image,text"`
	Prompt  string               `json:"prompt"`
	Context *ContextBriefPayload `json:"context,omitempty"`
	// ReferenceImage optionally grounds text generation on a visual (data URI).
	ReferenceImage string `json:"reference_image,omitempty"`
}

type AttendRequest struct {
	Context        *ContextBriefPayload `json:"context,omitempty"`
	ReferenceImage string               `json:"reference_image,omitempty"`
}

type ReviewRequest struct {
	Verdict  string `json:"verdict" enum:"approve,return,reject"`
	Comments string `json:"comments,omitempty"`
}

type IterateRequest struct {
	Instruction string `json:"instruction"`
}

type GlossaryEntryResponse struct {
	Status      string `json:"status"`
	Description string `json:"description"`
}

func actorResponse(a domain.Actor) ActorResponse {
	return ActorResponse{ID: a.ID, Name: a.Name, Role: string(a.Role)}
}

func briefPayload(b *domain.ContextBrief) *ContextBriefPayload {
	if b == nil {
		return nil
	}
	return &ContextBriefPayload{
		Objective:    b.Objective,
		Audience:     b.Audience,
		Tone:         b.Tone,
		Style:        b.Style,
		Restrictions: b.Restrictions,
	}
}

func briefFromPayload(p *ContextBriefPayload) domain.ContextBrief {
	if p == nil {
		return domain.ContextBrief{}
	}
	return domain.ContextBrief{
		Objective:    p.Objective,
		Audience:     p.Audience,
		Tone:         p.Tone,
		Style:        p.Style,
		Restrictions: p.Restrictions,
	}
}

func logResponse(l domain.ProjectLog) LogResponse {
	return LogResponse{
		ID:        l.ID,
		ProjectID: l.ProjectID,
		TS:        l.TS,
		ActorID:   l.ActorID,
		ActorName: l.ActorName,
		Action:    l.Action,
		Details:   l.Details,
	}
}

func projectResponse(p domain.ContentProject) ProjectResponse {
	resp := ProjectResponse{
		ID:               p.ID,
		Type:             string(p.Type),
		Status:           string(p.Status),
		CreatorID:        p.CreatorID,
		Title:            p.Title,
		Prompt:           p.Prompt,
		Context:          briefPayload(p.Context),
		Iterations:       p.Iterations,
		Output:           p.Output,
		ReviewerComments: p.ReviewerComments,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
	for _, l := range p.Logs {
		resp.Logs = append(resp.Logs, logResponse(l))
	}
	return resp
}

func mapProjects(items []domain.ContentProject) []ProjectResponse {
	res := make([]ProjectResponse, 0, len(items))
	for _, p := range items {
		res = append(res, projectResponse(p))
	}
	return res
}
