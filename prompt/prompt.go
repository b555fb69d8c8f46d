// Package prompt manages versioned prompt templates and the
// experiments that compare them. Templates carry {placeholder}
// variables; versions are immutable snapshots of a template with
// performance metrics attached over time.
package prompt

import (
	"context"
	"regexp"
	"time"
)

// Template is a named prompt template with {placeholder} variables.
type Template struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Template    string    `json:"template"`
	Variables   []string  `json:"variables"`
	Tags        []string  `json:"tags,omitempty"`
	CharacterID string    `json:"character_id,omitempty"`
	IsDefault   bool      `json:"is_default"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Version is one versioned snapshot of a template.
type Version struct {
	ID                 string                 `json:"id"`
	TemplateID         string                 `json:"prompt_template_id"`
	Version            string                 `json:"version"`
	Template           string                 `json:"template"`
	Variables          []string               `json:"variables"`
	Changes            string                 `json:"changes,omitempty"`
	PerformanceMetrics map[string]interface{} `json:"performance_metrics,omitempty"`
	IsActive           bool                   `json:"is_active"`
	CreatedAt          time.Time              `json:"created_at"`
	UpdatedAt          time.Time              `json:"updated_at"`
}

// Experiment statuses.
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// Experiment compares prompt versions against a set of metrics.
type Experiment struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	VersionIDs  []string               `json:"prompt_versions"`
	Metrics     []string               `json:"metrics"`
	StartDate   time.Time              `json:"start_date"`
	EndDate     *time.Time             `json:"end_date,omitempty"`
	Status      string                 `json:"status"`
	Results     map[string]interface{} `json:"results,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

var placeholderRe = regexp.MustCompile(`\{([^{}]+)\}`)

// ExtractVariables lists the {placeholder} names in a template, in
// order of first appearance.
func ExtractVariables(template string) []string {
	matches := placeholderRe.FindAllStringSubmatch(template, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(matches))
	vars := make([]string, 0, len(matches))
	for _, m := range matches {
		if !seen[m[1]] {
			seen[m[1]] = true
			vars = append(vars, m[1])
		}
	}
	return vars
}

// Versioner resolves the prompt version to drive generation with.
// Implemented by Service; test doubles implement it directly.
type Versioner interface {
	// GetVersion retrieves a version by id.
	GetVersion(ctx context.Context, id string) (*Version, error)

	// GetDefaultForCharacter resolves the active default version for a
	// character, preferring a character-specific default template over a
	// generic one. Returns nil (no error) when no default exists.
	GetDefaultForCharacter(ctx context.Context, characterID string) (*Version, error)
}
