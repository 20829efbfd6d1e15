package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"draftline/internal/domain"
)

// Config models draftline.yml.
type Config struct {
	Workspace struct {
		ID string `yaml:"id"`
	} `yaml:"workspace"`
	Team struct {
		Actors []TeamActor `yaml:"actors"`
	} `yaml:"team"`
	Workflow struct {
		IterationBudget int `yaml:"iteration_budget"`
		// Assignment maps a content type to the default assignee for
		// lead-initiated requests.
		Assignment map[string]string `yaml:"assignment"`
		// Delegation maps an actor id to its fixed successor.
		Delegation map[string]string `yaml:"delegation"`
	} `yaml:"workflow"`
	Views struct {
		All struct {
			LeadExcludes     []string `yaml:"lead_excludes"`
			ProducerExcludes []string `yaml:"producer_excludes"`
		} `yaml:"all"`
		MyTasks struct {
			LeadStatuses     []string `yaml:"lead_statuses"`
			ProducerStatuses []string `yaml:"producer_statuses"`
		} `yaml:"my_tasks"`
		Repository struct {
			Statuses []string `yaml:"statuses"`
		} `yaml:"repository"`
	} `yaml:"views"`
	Generation struct {
		QuestionModel string `yaml:"question_model"`
		ImageModel    string `yaml:"image_model"`
		TextModel     string `yaml:"text_model"`
	} `yaml:"generation"`
}

type TeamActor struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	Role string `yaml:"role"`
	PIN  string `yaml:"pin"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; run dl init or import one", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Workspace.ID == "" {
		return fmt.Errorf("config.workspace.id is required")
	}
	if len(c.Team.Actors) == 0 {
		return fmt.Errorf("config.team.actors is required")
	}
	ids := map[string]domain.Role{}
	hasLead := false
	for _, a := range c.Team.Actors {
		if a.ID == "" || a.Name == "" {
			return fmt.Errorf("team actor needs id and name")
		}
		if _, dup := ids[a.ID]; dup {
			return fmt.Errorf("duplicate actor id %s", a.ID)
		}
		role := domain.Role(a.Role)
		if !domain.ValidRole(role) {
			return fmt.Errorf("actor %s has unknown role %s", a.ID, a.Role)
		}
		if role == domain.RoleMarketingLead {
			hasLead = true
		}
		ids[a.ID] = role
	}
	if !hasLead {
		return fmt.Errorf("config.team.actors must include a marketing-lead")
	}
	if c.Workflow.IterationBudget <= 0 {
		return fmt.Errorf("config.workflow.iteration_budget must be positive")
	}
	for t, actorID := range c.Workflow.Assignment {
		if !domain.ValidContentType(domain.ContentType(t)) {
			return fmt.Errorf("assignment for unknown content type %s", t)
		}
		role, ok := ids[actorID]
		if !ok {
			return fmt.Errorf("assignment for %s references unknown actor %s", t, actorID)
		}
		if !role.Producer() {
			return fmt.Errorf("assignment for %s must target a producer, got %s", t, role)
		}
	}
	if _, ok := c.Workflow.Assignment[string(domain.TypeImage)]; !ok {
		return fmt.Errorf("config.workflow.assignment.image is required")
	}
	if _, ok := c.Workflow.Assignment[string(domain.TypeText)]; !ok {
		return fmt.Errorf("config.workflow.assignment.text is required")
	}
	for from, to := range c.Workflow.Delegation {
		fromRole, ok := ids[from]
		if !ok {
			return fmt.Errorf("delegation source %s is not a team actor", from)
		}
		toRole, ok := ids[to]
		if !ok {
			return fmt.Errorf("delegation successor %s is not a team actor", to)
		}
		if from == to {
			return fmt.Errorf("actor %s cannot delegate to itself", from)
		}
		if !fromRole.Producer() || fromRole != toRole {
			return fmt.Errorf("delegation %s -> %s must pair producers of the same role", from, to)
		}
	}
	return nil
}

// AssigneeFor returns the configured assignee for a content type.
func (c *Config) AssigneeFor(t domain.ContentType) (string, bool) {
	id, ok := c.Workflow.Assignment[string(t)]
	return id, ok
}

// SuccessorFor returns the fixed delegation successor for an actor, if any.
func (c *Config) SuccessorFor(actorID string) (string, bool) {
	id, ok := c.Workflow.Delegation[actorID]
	return id, ok
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "draftline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(workspaceID string) string {
	return fmt.Sprintf(defaultTemplate, workspaceID)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct for a workspace.
func Default(workspaceID string) *Config {
	var cfg Config
	cfg.Workspace.ID = workspaceID
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, workspaceID))).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `workspace:
  id: %s

team:
  actors:
    - id: u1
      name: Rocio
      role: designer
      pin: "1111"
    - id: u2
      name: Juan Carlos
      role: designer
      pin: "2222"
    - id: u3
      name: Natalia
      role: editor
      pin: "3333"
    - id: u4
      name: Eleonora
      role: editor
      pin: "4444"
    - id: u5
      name: Matias
      role: marketing-lead
      pin: "5555"

workflow:
  iteration_budget: 3

  assignment:
    image: u1
    text: u3

  delegation:
    u1: u2
    u3: u4

views:
  all:
    lead_excludes: [approved, in_review]
    producer_excludes: [approved]
  my_tasks:
    lead_statuses: [in_review]
    producer_statuses: [initiated, in_editing, returned]
  repository:
    statuses: [approved]

generation:
  question_model: gemini-3-flash-preview
  image_model: gemini-2.5-flash-image
  text_model: gemini-3-pro-preview
`
