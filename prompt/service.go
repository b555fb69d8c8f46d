package prompt

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/darshan161999/Intelligent-Character-Interaction-Engine/store"
)

// Config holds the collection names the prompt service uses.
type Config struct {
	TemplateCollection   string
	VersionCollection    string
	ExperimentCollection string
}

// DefaultConfig matches the reference deployment.
var DefaultConfig = &Config{
	TemplateCollection:   "prompt_templates",
	VersionCollection:    "prompt_versions",
	ExperimentCollection: "prompt_experiments",
}

// Service manages templates, versions and experiments in a document
// store.
type Service struct {
	db     store.Store
	config *Config
}

// NewService creates a prompt service. A nil config uses DefaultConfig.
func NewService(db store.Store, config *Config) *Service {
	if config == nil {
		config = DefaultConfig
	}
	return &Service{db: db, config: config}
}

// CreateTemplate stores a template, extracting its variables when the
// caller didn't provide them.
func (s *Service) CreateTemplate(ctx context.Context, tpl *Template) (string, error) {
	if len(tpl.Variables) == 0 {
		tpl.Variables = ExtractVariables(tpl.Template)
	}
	now := time.Now().UTC()
	tpl.CreatedAt = now
	tpl.UpdatedAt = now

	id, err := s.db.Insert(ctx, s.config.TemplateCollection, templateToDoc(tpl))
	if err != nil {
		return "", fmt.Errorf("insert template: %w", err)
	}
	tpl.ID = id
	return id, nil
}

// GetTemplate retrieves a template by id.
func (s *Service) GetTemplate(ctx context.Context, id string) (*Template, error) {
	doc, err := s.db.FindByID(ctx, s.config.TemplateCollection, id)
	if err != nil {
		return nil, err
	}
	return docToTemplate(doc), nil
}

// ListTemplates returns templates, optionally restricted to those
// carrying all of the given tags.
func (s *Service) ListTemplates(ctx context.Context, tags []string, limit int) ([]*Template, error) {
	docs, err := s.db.Find(ctx, s.config.TemplateCollection, nil, &store.Sort{Field: "created_at", Descending: true}, 0)
	if err != nil {
		return nil, err
	}

	var templates []*Template
	for _, doc := range docs {
		tpl := docToTemplate(doc)
		if !hasAllTags(tpl.Tags, tags) {
			continue
		}
		templates = append(templates, tpl)
		if limit > 0 && len(templates) >= limit {
			break
		}
	}
	return templates, nil
}

// UpdateTemplate overwrites a template's fields and refreshes its
// variable list from the new template text.
func (s *Service) UpdateTemplate(ctx context.Context, tpl *Template) error {
	tpl.Variables = ExtractVariables(tpl.Template)
	tpl.UpdatedAt = time.Now().UTC()

	doc := templateToDoc(tpl)
	delete(doc, "id")
	delete(doc, "created_at")
	return s.db.UpdateByID(ctx, s.config.TemplateCollection, tpl.ID, doc)
}

// DeleteTemplate removes a template and all of its versions.
func (s *Service) DeleteTemplate(ctx context.Context, id string) error {
	versions, err := s.db.Find(ctx, s.config.VersionCollection, store.Filter{"prompt_template_id": id}, nil, 0)
	if err != nil {
		return fmt.Errorf("find versions: %w", err)
	}
	for _, doc := range versions {
		versionID, _ := doc["id"].(string)
		if err := s.db.DeleteByID(ctx, s.config.VersionCollection, versionID); err != nil && err != store.ErrNotFound {
			return fmt.Errorf("delete version %s: %w", versionID, err)
		}
	}
	return s.db.DeleteByID(ctx, s.config.TemplateCollection, id)
}

// CreateVersion stores a version under its template, extracting
// variables when absent.
func (s *Service) CreateVersion(ctx context.Context, v *Version) (string, error) {
	if _, err := s.db.FindByID(ctx, s.config.TemplateCollection, v.TemplateID); err != nil {
		return "", fmt.Errorf("resolve template %s: %w", v.TemplateID, err)
	}
	if len(v.Variables) == 0 {
		v.Variables = ExtractVariables(v.Template)
	}
	now := time.Now().UTC()
	v.CreatedAt = now
	v.UpdatedAt = now

	id, err := s.db.Insert(ctx, s.config.VersionCollection, versionToDoc(v))
	if err != nil {
		return "", fmt.Errorf("insert version: %w", err)
	}
	v.ID = id
	return id, nil
}

// GetVersion retrieves a version by id.
func (s *Service) GetVersion(ctx context.Context, id string) (*Version, error) {
	doc, err := s.db.FindByID(ctx, s.config.VersionCollection, id)
	if err != nil {
		return nil, err
	}
	return docToVersion(doc), nil
}

// VersionsForTemplate lists a template's versions, newest first.
func (s *Service) VersionsForTemplate(ctx context.Context, templateID string, activeOnly bool) ([]*Version, error) {
	filter := store.Filter{"prompt_template_id": templateID}
	if activeOnly {
		filter["is_active"] = true
	}
	docs, err := s.db.Find(ctx, s.config.VersionCollection, filter, &store.Sort{Field: "created_at", Descending: true}, 0)
	if err != nil {
		return nil, err
	}

	versions := make([]*Version, 0, len(docs))
	for _, doc := range docs {
		versions = append(versions, docToVersion(doc))
	}
	return versions, nil
}

// UpdateVersion overwrites a version's mutable fields.
func (s *Service) UpdateVersion(ctx context.Context, v *Version) error {
	v.UpdatedAt = time.Now().UTC()
	doc := versionToDoc(v)
	delete(doc, "id")
	delete(doc, "created_at")
	return s.db.UpdateByID(ctx, s.config.VersionCollection, v.ID, doc)
}

// UpdatePerformanceMetrics replaces a version's metrics.
func (s *Service) UpdatePerformanceMetrics(ctx context.Context, versionID string, metrics map[string]interface{}) error {
	return s.db.UpdateByID(ctx, s.config.VersionCollection, versionID, store.Document{
		"performance_metrics": metrics,
		"updated_at":          time.Now().UTC(),
	})
}

// GetDefaultForCharacter resolves the version the dialogue generator
// should use for a character: latest active version of the character's
// default template, else of the generic default template. Returns nil
// with no error when neither exists; the generator has its own
// hardcoded fallback.
func (s *Service) GetDefaultForCharacter(ctx context.Context, characterID string) (*Version, error) {
	docs, err := s.db.Find(ctx, s.config.TemplateCollection, store.Filter{"is_default": true}, nil, 0)
	if err != nil {
		log.Printf("[PROMPT] Default template lookup failed for %s: %v", characterID, err)
		return nil, nil
	}

	var characterTpl, genericTpl *Template
	for _, doc := range docs {
		tpl := docToTemplate(doc)
		switch tpl.CharacterID {
		case characterID:
			characterTpl = tpl
		case "":
			genericTpl = tpl
		}
	}

	tpl := characterTpl
	if tpl == nil {
		tpl = genericTpl
	}
	if tpl == nil {
		return nil, nil
	}

	versions, err := s.VersionsForTemplate(ctx, tpl.ID, true)
	if err != nil {
		log.Printf("[PROMPT] Version lookup failed for template %s: %v", tpl.ID, err)
		return nil, nil
	}
	if len(versions) == 0 {
		return nil, nil
	}
	return versions[0], nil
}

// CreateExperiment stores an experiment, defaulting status to active
// and the start date to now.
func (s *Service) CreateExperiment(ctx context.Context, exp *Experiment) (string, error) {
	if exp.Status == "" {
		exp.Status = StatusActive
	}
	now := time.Now().UTC()
	if exp.StartDate.IsZero() {
		exp.StartDate = now
	}
	exp.CreatedAt = now
	exp.UpdatedAt = now

	id, err := s.db.Insert(ctx, s.config.ExperimentCollection, experimentToDoc(exp))
	if err != nil {
		return "", fmt.Errorf("insert experiment: %w", err)
	}
	exp.ID = id
	return id, nil
}

// GetExperiment retrieves an experiment by id.
func (s *Service) GetExperiment(ctx context.Context, id string) (*Experiment, error) {
	doc, err := s.db.FindByID(ctx, s.config.ExperimentCollection, id)
	if err != nil {
		return nil, err
	}
	return docToExperiment(doc), nil
}

// ActiveExperiments lists experiments still running, newest first.
func (s *Service) ActiveExperiments(ctx context.Context) ([]*Experiment, error) {
	docs, err := s.db.Find(ctx, s.config.ExperimentCollection, store.Filter{"status": StatusActive}, &store.Sort{Field: "created_at", Descending: true}, 0)
	if err != nil {
		return nil, err
	}

	experiments := make([]*Experiment, 0, len(docs))
	for _, doc := range docs {
		experiments = append(experiments, docToExperiment(doc))
	}
	return experiments, nil
}

// UpdateExperimentResults replaces an experiment's results.
func (s *Service) UpdateExperimentResults(ctx context.Context, id string, results map[string]interface{}) error {
	return s.db.UpdateByID(ctx, s.config.ExperimentCollection, id, store.Document{
		"results":    results,
		"updated_at": time.Now().UTC(),
	})
}

// CompleteExperiment marks an experiment completed and stamps its end
// date.
func (s *Service) CompleteExperiment(ctx context.Context, id string) error {
	now := time.Now().UTC()
	return s.db.UpdateByID(ctx, s.config.ExperimentCollection, id, store.Document{
		"status":     StatusCompleted,
		"end_date":   now,
		"updated_at": now,
	})
}

func hasAllTags(have, want []string) bool {
	if len(want) == 0 {
		return true
	}
	set := make(map[string]bool, len(have))
	for _, t := range have {
		set[t] = true
	}
	for _, t := range want {
		if !set[t] {
			return false
		}
	}
	return true
}

func templateToDoc(tpl *Template) store.Document {
	doc := store.Document{
		"name":        tpl.Name,
		"description": tpl.Description,
		"template":    tpl.Template,
		"variables":   tpl.Variables,
		"tags":        tpl.Tags,
		"is_default":  tpl.IsDefault,
		"created_at":  tpl.CreatedAt,
		"updated_at":  tpl.UpdatedAt,
	}
	if tpl.ID != "" {
		doc["id"] = tpl.ID
	}
	if tpl.CharacterID != "" {
		doc["character_id"] = tpl.CharacterID
	}
	return doc
}

func docToTemplate(doc store.Document) *Template {
	tpl := &Template{}
	tpl.ID, _ = doc["id"].(string)
	tpl.Name, _ = doc["name"].(string)
	tpl.Description, _ = doc["description"].(string)
	tpl.Template, _ = doc["template"].(string)
	tpl.Variables = stringSlice(doc["variables"])
	tpl.Tags = stringSlice(doc["tags"])
	tpl.CharacterID, _ = doc["character_id"].(string)
	tpl.IsDefault, _ = doc["is_default"].(bool)
	if t, ok := doc["created_at"].(time.Time); ok {
		tpl.CreatedAt = t
	}
	if t, ok := doc["updated_at"].(time.Time); ok {
		tpl.UpdatedAt = t
	}
	return tpl
}

func versionToDoc(v *Version) store.Document {
	doc := store.Document{
		"prompt_template_id":  v.TemplateID,
		"version":             v.Version,
		"template":            v.Template,
		"variables":           v.Variables,
		"changes":             v.Changes,
		"performance_metrics": v.PerformanceMetrics,
		"is_active":           v.IsActive,
		"created_at":          v.CreatedAt,
		"updated_at":          v.UpdatedAt,
	}
	if v.ID != "" {
		doc["id"] = v.ID
	}
	return doc
}

func docToVersion(doc store.Document) *Version {
	v := &Version{}
	v.ID, _ = doc["id"].(string)
	v.TemplateID, _ = doc["prompt_template_id"].(string)
	v.Version, _ = doc["version"].(string)
	v.Template, _ = doc["template"].(string)
	v.Variables = stringSlice(doc["variables"])
	v.Changes, _ = doc["changes"].(string)
	if m, ok := doc["performance_metrics"].(map[string]interface{}); ok {
		v.PerformanceMetrics = m
	}
	v.IsActive, _ = doc["is_active"].(bool)
	if t, ok := doc["created_at"].(time.Time); ok {
		v.CreatedAt = t
	}
	if t, ok := doc["updated_at"].(time.Time); ok {
		v.UpdatedAt = t
	}
	return v
}

func experimentToDoc(exp *Experiment) store.Document {
	doc := store.Document{
		"name":            exp.Name,
		"description":     exp.Description,
		"prompt_versions": exp.VersionIDs,
		"metrics":         exp.Metrics,
		"start_date":      exp.StartDate,
		"status":          exp.Status,
		"results":         exp.Results,
		"created_at":      exp.CreatedAt,
		"updated_at":      exp.UpdatedAt,
	}
	if exp.ID != "" {
		doc["id"] = exp.ID
	}
	if exp.EndDate != nil {
		doc["end_date"] = *exp.EndDate
	}
	return doc
}

func docToExperiment(doc store.Document) *Experiment {
	exp := &Experiment{}
	exp.ID, _ = doc["id"].(string)
	exp.Name, _ = doc["name"].(string)
	exp.Description, _ = doc["description"].(string)
	exp.VersionIDs = stringSlice(doc["prompt_versions"])
	exp.Metrics = stringSlice(doc["metrics"])
	if t, ok := doc["start_date"].(time.Time); ok {
		exp.StartDate = t
	}
	if t, ok := doc["end_date"].(time.Time); ok {
		exp.EndDate = &t
	}
	exp.Status, _ = doc["status"].(string)
	if m, ok := doc["results"].(map[string]interface{}); ok {
		exp.Results = m
	}
	if t, ok := doc["created_at"].(time.Time); ok {
		exp.CreatedAt = t
	}
	if t, ok := doc["updated_at"].(time.Time); ok {
		exp.UpdatedAt = t
	}
	return exp
}

func stringSlice(v interface{}) []string {
	switch s := v.(type) {
	case []string:
		return s
	case []interface{}:
		out := make([]string, 0, len(s))
		for _, item := range s {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out
	}
	return nil
}
