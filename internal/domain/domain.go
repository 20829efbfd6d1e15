package domain

type Role string

const (
	RoleDesigner      Role = "designer"
	RoleEditor        Role = "editor"
	RoleMarketingLead Role = "marketing-lead"
)

// ValidRole reports whether r is one of the three workflow roles.
func ValidRole(r Role) bool {
	switch r {
	case RoleDesigner, RoleEditor, RoleMarketingLead:
		return true
	}
	return false
}

// Producer reports whether the role creates content (as opposed to reviewing it).
func (r Role) Producer() bool {
	return r == RoleDesigner || r == RoleEditor
}

type ContentType string

const (
	TypeImage ContentType = "image"
	TypeText  ContentType = "text"
)

func ValidContentType(t ContentType) bool {
	return t == TypeImage || t == TypeText
}

type ContentStatus string

const (
	StatusInitiated ContentStatus = "initiated"
	StatusInEditing ContentStatus = "in_editing"
	StatusInReview  ContentStatus = "in_review"
	StatusReturned  ContentStatus = "returned"
	StatusRejected  ContentStatus = "rejected"
	StatusApproved  ContentStatus = "approved"
	StatusCancelled ContentStatus = "cancelled"
)

// Terminal reports whether no further transitions are defined from s.
func (s ContentStatus) Terminal() bool {
	switch s {
	case StatusApproved, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

type Actor struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Role      Role   `json:"role" enum:"designer,editor,marketing-lead"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// ContextBrief holds the structured creative parameters collected before
// final generation. Set once, reused on every iteration.
type ContextBrief struct {
	Objective    string `json:"objective"`
	Audience     string `json:"audience"`
	Tone         string `json:"tone"`
	Style        string `json:"style"`
	Restrictions string `json:"restrictions"`
}

func (b ContextBrief) Empty() bool {
	return b.Objective == "" && b.Audience == "" && b.Tone == "" && b.Style == "" && b.Restrictions == ""
}

// ProjectLog is an immutable fact record. One entry is appended per
// state-affecting operation, in the same transaction as the mutation.
type ProjectLog struct {
	ID        int64  `json:"id"`
	ProjectID string `json:"project_id"`
	TS        string `json:"ts" format:"date-time"`
	ActorID   string `json:"actor_id"`
	ActorName string `json:"actor_name"`
	Action    string `json:"action"`
	Details   string `json:"details,omitempty"`
}

// ContentProject is the central entity of the workflow. Status is mutated
// only by the engine. CreatorID is the current assignee, reassigned on
// delegation and on lead-initiated creation, never renamed on review.
type ContentProject struct {
	ID               string        `json:"id"`
	Type             ContentType   `json:"type" enum:"image,text"`
	Status           ContentStatus `json:"status" enum:"initiated,in_editing,in_review,returned,rejected,approved,cancelled"`
	CreatorID        string        `json:"creator_id"`
	Title            string        `json:"title"`
	Prompt           string        `json:"prompt"`
	Context          *ContextBrief `json:"context,omitempty"`
	Iterations       int           `json:"iterations"`
	Output           string        `json:"output,omitempty"`
	ReviewerComments string        `json:"reviewer_comments,omitempty"`
	CreatedAt        string        `json:"created_at" format:"date-time"`
	UpdatedAt        string        `json:"updated_at" format:"date-time"`
	Logs             []ProjectLog  `json:"logs,omitempty"`
}

// Log action names, one per state-changing operation. Creation writes no
// log entry; a piece's history starts with its first action.
const (
	ActionAttended  = "project.attended"
	ActionDelegated = "project.delegated"
	ActionSubmitted = "project.submitted"
	ActionApproved  = "project.approved"
	ActionReturned  = "project.returned"
	ActionRejected  = "project.rejected"
	ActionCancelled = "project.cancelled"
	ActionIterated  = "project.iterated"
)
