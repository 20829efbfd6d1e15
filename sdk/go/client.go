package draftlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Draftline HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Actor represents a team member.
type Actor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// ContextBrief captures the optional briefing answers attached to a piece.
type ContextBrief struct {
	Objective    string `json:"objective,omitempty"`
	Audience     string `json:"audience,omitempty"`
	Tone         string `json:"tone,omitempty"`
	Style        string `json:"style,omitempty"`
	Restrictions string `json:"restrictions,omitempty"`
}

// Project represents a content piece in the workflow.
type Project struct {
	ID               string        `json:"id"`
	Type             string        `json:"type"`
	Status           string        `json:"status"`
	CreatorID        string        `json:"creator_id"`
	Title            string        `json:"title"`
	Prompt           string        `json:"prompt"`
	Context          *ContextBrief `json:"context,omitempty"`
	Iterations       int           `json:"iterations"`
	Output           string        `json:"output,omitempty"`
	ReviewerComments string        `json:"reviewer_comments,omitempty"`
	CreatedAt        string        `json:"created_at"`
	UpdatedAt        string        `json:"updated_at"`
	Logs             []LogEntry    `json:"logs,omitempty"`
	NextStatuses     []string      `json:"next_statuses,omitempty"`
}

// LogEntry represents one recorded workflow action.
type LogEntry struct {
	ID        int64  `json:"id"`
	ProjectID string `json:"project_id"`
	TS        string `json:"ts"`
	ActorID   string `json:"actor_id"`
	ActorName string `json:"actor_name"`
	Action    string `json:"action"`
	Details   string `json:"details,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedProjects wraps project listings with a continuation cursor.
type PaginatedProjects struct {
	Items      []Project `json:"items"`
	NextCursor string    `json:"next_cursor"`
}

// PaginatedLogs wraps activity listings with a continuation cursor.
type PaginatedLogs struct {
	Items      []LogEntry `json:"items"`
	NextCursor string     `json:"next_cursor"`
}

// Login exchanges an actor id and PIN for a bearer token and stores it on the
// client for subsequent calls.
func (c *Client) Login(ctx context.Context, actorID, pin string) (Actor, error) {
	body := map[string]any{
		"actor_id": actorID,
		"pin":      pin,
	}
	var resp struct {
		Token string `json:"token"`
		Actor Actor  `json:"actor"`
	}
	if err := c.do(ctx, http.MethodPost, "v1/auth/login", body, &resp); err != nil {
		return Actor{}, err
	}
	c.BearerToken = resp.Token
	return resp.Actor, nil
}

// Me returns the authenticated actor.
func (c *Client) Me(ctx context.Context) (Actor, error) {
	var resp Actor
	err := c.do(ctx, http.MethodGet, "v1/me", nil, &resp)
	return resp, err
}

// CreateRequest files a lead request for new content.
func (c *Client) CreateRequest(ctx context.Context, contentType, prompt string) (Project, error) {
	body := map[string]any{
		"type":   contentType,
		"prompt": prompt,
	}
	var resp Project
	err := c.do(ctx, http.MethodPost, "v1/requests", body, &resp)
	return resp, err
}

// DraftQuestions returns briefing questions for a prospective draft.
func (c *Client) DraftQuestions(ctx context.Context, contentType, prompt string) ([]string, error) {
	body := map[string]any{
		"type":   contentType,
		"prompt": prompt,
	}
	var resp struct {
		Questions []string `json:"questions"`
	}
	err := c.do(ctx, http.MethodPost, "v1/drafts/questions", body, &resp)
	return resp.Questions, err
}

// CreateDraft generates and stores a new producer-initiated draft. A non-empty
// referenceImage (data URI) asks text generation to match the visual.
func (c *Client) CreateDraft(ctx context.Context, contentType, prompt string, brief *ContextBrief, referenceImage string) (Project, error) {
	body := map[string]any{
		"type":   contentType,
		"prompt": prompt,
	}
	if brief != nil {
		body["context"] = brief
	}
	if referenceImage != "" {
		body["reference_image"] = referenceImage
	}
	var resp Project
	err := c.do(ctx, http.MethodPost, "v1/drafts", body, &resp)
	return resp, err
}

// AttendQuestions returns briefing questions for an assigned request.
func (c *Client) AttendQuestions(ctx context.Context, projectID string) ([]string, error) {
	var resp struct {
		Questions []string `json:"questions"`
	}
	endpoint := fmt.Sprintf("v1/projects/%s/questions", url.PathEscape(projectID))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp.Questions, err
}

// Attend generates the first draft for an assigned request.
func (c *Client) Attend(ctx context.Context, projectID string, brief *ContextBrief, referenceImage string) (Project, error) {
	body := map[string]any{}
	if brief != nil {
		body["context"] = brief
	}
	if referenceImage != "" {
		body["reference_image"] = referenceImage
	}
	var resp Project
	endpoint := fmt.Sprintf("v1/projects/%s/attend", url.PathEscape(projectID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// Delegate hands an assigned request to the configured successor.
func (c *Client) Delegate(ctx context.Context, projectID string) (Project, error) {
	var resp Project
	endpoint := fmt.Sprintf("v1/projects/%s/delegate", url.PathEscape(projectID))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// Submit sends a piece to review.
func (c *Client) Submit(ctx context.Context, projectID string) (Project, error) {
	var resp Project
	endpoint := fmt.Sprintf("v1/projects/%s/submit", url.PathEscape(projectID))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// Cancel withdraws a piece from the workflow.
func (c *Client) Cancel(ctx context.Context, projectID string) (Project, error) {
	var resp Project
	endpoint := fmt.Sprintf("v1/projects/%s/cancel", url.PathEscape(projectID))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// Review records a verdict (approve, return or reject) on a piece in review.
func (c *Client) Review(ctx context.Context, projectID, verdict, comments string) (Project, error) {
	body := map[string]any{
		"verdict":  verdict,
		"comments": comments,
	}
	var resp Project
	endpoint := fmt.Sprintf("v1/projects/%s/review", url.PathEscape(projectID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// Iterate refines the current output with an instruction.
func (c *Client) Iterate(ctx context.Context, projectID, instruction string) (Project, error) {
	body := map[string]any{
		"instruction": instruction,
	}
	var resp Project
	endpoint := fmt.Sprintf("v1/projects/%s/iterate", url.PathEscape(projectID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// Project fetches a piece with its log and the caller's available actions.
func (c *Client) Project(ctx context.Context, projectID string) (Project, error) {
	var resp Project
	endpoint := fmt.Sprintf("v1/projects/%s", url.PathEscape(projectID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Projects returns the first page of a tab listing.
func (c *Client) Projects(ctx context.Context, tab string) ([]Project, error) {
	page, err := c.ProjectsPage(ctx, tab, 0, "")
	return page.Items, err
}

// ProjectsPage returns a paginated tab listing.
func (c *Client) ProjectsPage(ctx context.Context, tab string, limit int, cursor string) (PaginatedProjects, error) {
	q := url.Values{}
	if tab != "" {
		q.Set("tab", tab)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "v1/projects"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedProjects
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Activity returns recent log entries, newest first.
func (c *Client) Activity(ctx context.Context, projectID string, limit int) ([]LogEntry, error) {
	q := url.Values{}
	if projectID != "" {
		q.Set("project_id", projectID)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	endpoint := "v1/activity"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedLogs
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// Actors lists the team roster, optionally filtered by role.
func (c *Client) Actors(ctx context.Context, role string) ([]Actor, error) {
	endpoint := "v1/actors"
	if role != "" {
		endpoint += "?role=" + url.QueryEscape(role)
	}
	var resp []Actor
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
