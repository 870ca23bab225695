package rules

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"fleetalert/internal/models"
)

// Configuration errors
var (
	ErrUnknownSeverity = errors.New("unknown escalation target severity")
	ErrNegativeCount   = errors.New("escalation count threshold cannot be negative")
	ErrNegativeWindow  = errors.New("escalation window cannot be negative")
	ErrNegativeDays    = errors.New("age threshold cannot be negative")
	ErrEmptySourceType = errors.New("rule source type cannot be empty")
)

// Rule is the per-source-type escalation and auto-close configuration.
// Rules are data, not code; new source types can be added at runtime.
type Rule struct {
	// Escalate when EscalateIfCount matching alerts occur within
	// WindowMinutes (both must be set for the count rule to apply)
	EscalateIfCount int `yaml:"escalateIfCount" json:"escalateIfCount,omitempty"`
	WindowMinutes   int `yaml:"windowMinutes" json:"windowMinutes,omitempty"`

	// Escalate an OPEN alert once its age reaches this many days
	EscalateIfDays int `yaml:"escalateIfDays" json:"escalateIfDays,omitempty"`

	// Severity applied by either escalation path
	EscalateToSeverity models.Severity `yaml:"escalateToSeverity" json:"escalateToSeverity"`

	// Metadata key whose truthy value auto-closes the alert
	AutoCloseIf string `yaml:"autoCloseIf" json:"autoCloseIf,omitempty"`
}

func (r Rule) validate() error {
	if !r.EscalateToSeverity.IsValid() {
		return fmt.Errorf("%w: %q", ErrUnknownSeverity, r.EscalateToSeverity)
	}
	if r.EscalateIfCount < 0 {
		return ErrNegativeCount
	}
	if r.WindowMinutes < 0 {
		return ErrNegativeWindow
	}
	if r.EscalateIfDays < 0 {
		return ErrNegativeDays
	}
	return nil
}

// Set is the rule configuration store: a mapping from source type to Rule,
// safe for concurrent readers and writers. Updates replace whole rules, so
// readers never observe a partially-applied merge.
type Set struct {
	mu    sync.RWMutex
	rules map[string]Rule
}

// NewSet creates a rule set seeded with the given rules.
func NewSet(rules map[string]Rule) *Set {
	s := &Set{rules: make(map[string]Rule, len(rules))}
	for st, r := range rules {
		s.rules[st] = r
	}
	return s
}

// Defaults returns the built-in per-source-type rules the service ships
// with. Callers may override any of them at runtime via Update.
func Defaults() map[string]Rule {
	return map[string]Rule{
		"overspeed": {
			EscalateIfCount:    3,
			WindowMinutes:      60,
			EscalateToSeverity: models.SeverityCritical,
		},
		"fatigue": {
			EscalateIfCount:    2,
			WindowMinutes:      120,
			EscalateToSeverity: models.SeverityHigh,
		},
		"compliance": {
			EscalateIfDays:     7,
			EscalateToSeverity: models.SeverityHigh,
			AutoCloseIf:        "documentValid",
		},
		"maintenance": {
			EscalateIfDays:     14,
			EscalateToSeverity: models.SeverityMedium,
			AutoCloseIf:        "maintenanceCompleted",
		},
		"feedback": {
			EscalateIfCount:    5,
			WindowMinutes:      1440,
			EscalateToSeverity: models.SeverityHigh,
		},
	}
}

// Get returns the rule for a source type.
func (s *Set) Get(sourceType string) (Rule, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rules[sourceType]
	return r, ok
}

// Snapshot returns a copy of the full rule mapping.
func (s *Set) Snapshot() map[string]Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Rule, len(s.rules))
	for st, r := range s.rules {
		out[st] = r
	}
	return out
}

// Update performs a shallow merge: new source types are added, named ones
// are fully replaced, unspecified ones are untouched. A malformed rule
// rejects the whole update and the prior configuration is retained.
func (s *Set) Update(partial map[string]Rule) error {
	for st, r := range partial {
		if st == "" {
			return ErrEmptySourceType
		}
		if err := r.validate(); err != nil {
			return fmt.Errorf("rule %q: %w", st, err)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for st, r := range partial {
		s.rules[st] = r
	}
	return nil
}

// LoadFile reads a YAML rule file and merges it over the defaults. Missing
// file paths are not an error when optional is true.
func LoadFile(path string, optional bool) (*Set, error) {
	set := NewSet(Defaults())
	data, err := os.ReadFile(path)
	if err != nil {
		if optional && os.IsNotExist(err) {
			return set, nil
		}
		return nil, fmt.Errorf("read rule file: %w", err)
	}
	var file struct {
		Rules map[string]Rule `yaml:"rules"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse rule file: %w", err)
	}
	if err := set.Update(file.Rules); err != nil {
		return nil, fmt.Errorf("rule file %s: %w", path, err)
	}
	return set, nil
}
