package rules

import (
	"context"
	"fmt"
	"io"

	"github.com/go-playground/validator/v10"
	"github.com/stwalsh4118/siteplan/internal/models"
	"gopkg.in/yaml.v3"
)

// SeedFile is a YAML document of planning rules. Top-level values fill in
// fields a rule leaves empty.
type SeedFile struct {
	LGA            string                `yaml:"lga"`
	PlanningScheme string                `yaml:"planning_scheme"`
	Source         string                `yaml:"source"`
	Confidence     *float64              `yaml:"confidence"`
	Rules          []models.PlanningRule `yaml:"rules"`
}

// LoadSeed decodes and validates a seed file. Every rule must be valid, and
// its density descriptor must parse, or nothing is returned.
func LoadSeed(r io.Reader) ([]*models.PlanningRule, error) {
	var f SeedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to decode rule seed: %w", err)
	}

	v := validator.New()
	out := make([]*models.PlanningRule, 0, len(f.Rules))
	for i := range f.Rules {
		rule := f.Rules[i].Clone()
		if rule.LGA == "" {
			rule.LGA = f.LGA
		}
		if rule.PlanningScheme == "" {
			rule.PlanningScheme = f.PlanningScheme
		}
		if rule.Source == "" {
			rule.Source = f.Source
		}
		if rule.Confidence == nil && f.Confidence != nil {
			rule.Confidence = models.Float(*f.Confidence)
		}
		if err := v.Struct(rule); err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i, rule.ZoneCode, err)
		}
		if _, err := ParseDensity(rule.DwellingDensity); err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i, rule.ZoneCode, err)
		}
		out = append(out, rule)
	}
	return out, nil
}

// Upserter is the write side of the rule store.
type Upserter interface {
	Upsert(ctx context.Context, rule *models.PlanningRule) error
}

// Import upserts rules one by one and returns how many were written before
// the first failure.
func Import(ctx context.Context, repo Upserter, rules []*models.PlanningRule) (int, error) {
	for i, rule := range rules {
		if err := repo.Upsert(ctx, rule); err != nil {
			return i, err
		}
	}
	return len(rules), nil
}
