// Package routing assigns inbound content to a team with an SLA and picks
// the least-loaded team member for a lead.
package routing

import (
	"fmt"
	"os"
	"strings"
	"time"

	"leadflow_backend/internal/qualification"
	"leadflow_backend/platform/apperr"

	"gopkg.in/yaml.v3"
)

// Rule maps a keyword set to a team and priority. A rule without keywords
// is the catch-all.
type Rule struct {
	Name     string                 `yaml:"name" json:"name"`
	Keywords []string               `yaml:"keywords" json:"keywords"`
	Team     string                 `yaml:"team" json:"team"`
	Priority qualification.Priority `yaml:"priority" json:"priority"`
}

// IsCatchAll reports whether the rule matches any content.
func (r Rule) IsCatchAll() bool {
	return len(r.Keywords) == 0
}

// Route is the outcome of matching content against a rule table.
type Route struct {
	TaskType string                 `json:"taskType"`
	Team     string                 `json:"team"`
	Priority qualification.Priority `json:"priority"`
}

// RuleTable is an ordered list of rules ending in a catch-all.
type RuleTable struct {
	rules []Rule
}

// DefaultRules returns the built-in rule table.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "sales", Keywords: []string{"interested", "buy", "purchase", "pricing", "demo", "trial"}, Team: "sales", Priority: qualification.PriorityHigh},
		{Name: "support", Keywords: []string{"issue", "problem", "error", "bug", "not working", "help"}, Team: "support", Priority: qualification.PriorityMedium},
		{Name: "technical", Keywords: []string{"integration", "api", "technical", "implementation", "setup"}, Team: "technical", Priority: qualification.PriorityHigh},
		{Name: "general", Team: "sales", Priority: qualification.PriorityMedium},
	}
}

// NewRuleTable validates and normalizes a rule list.
func NewRuleTable(rules []Rule) (*RuleTable, error) {
	if len(rules) == 0 {
		return nil, apperr.Configuration("routing rule table is empty")
	}

	normalized := make([]Rule, len(rules))
	for i, r := range rules {
		r.Name = strings.TrimSpace(r.Name)
		r.Team = strings.ToLower(strings.TrimSpace(r.Team))
		if r.Name == "" || r.Team == "" {
			return nil, apperr.Configuration(fmt.Sprintf("routing rule %d needs a name and a team", i))
		}
		p, ok := qualification.ParsePriority(string(r.Priority))
		if !ok {
			return nil, apperr.Configuration(fmt.Sprintf("routing rule %q has unknown priority %q", r.Name, r.Priority))
		}
		r.Priority = p

		keywords := make([]string, 0, len(r.Keywords))
		for _, kw := range r.Keywords {
			if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
				keywords = append(keywords, kw)
			}
		}
		r.Keywords = keywords

		if r.IsCatchAll() && i != len(rules)-1 {
			return nil, apperr.Configuration(fmt.Sprintf("catch-all routing rule %q must be last", r.Name))
		}
		normalized[i] = r
	}
	if !normalized[len(normalized)-1].IsCatchAll() {
		return nil, apperr.Configuration("routing rule table must end with a catch-all rule")
	}
	return &RuleTable{rules: normalized}, nil
}

type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadRules reads a YAML rule file. An empty path yields the default table.
func LoadRules(path string) (*RuleTable, error) {
	if strings.TrimSpace(path) == "" {
		return NewRuleTable(DefaultRules())
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindConfiguration, "read routing rules", err)
	}
	return ParseRules(raw)
}

// ParseRules decodes a YAML rule document.
func ParseRules(raw []byte) (*RuleTable, error) {
	var file ruleFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, apperr.Wrap(apperr.KindConfiguration, "parse routing rules", err)
	}
	return NewRuleTable(file.Rules)
}

// Rules returns a copy of the table.
func (t *RuleTable) Rules() []Rule {
	out := make([]Rule, len(t.rules))
	copy(out, t.rules)
	return out
}

// Match returns the first rule whose keyword occurs in content, falling
// back to the catch-all.
func (t *RuleTable) Match(content string) Route {
	lower := strings.ToLower(content)
	for _, r := range t.rules {
		if r.IsCatchAll() {
			return Route{TaskType: r.Name, Team: r.Team, Priority: r.Priority}
		}
		for _, kw := range r.Keywords {
			if strings.Contains(lower, kw) {
				return Route{TaskType: r.Name, Team: r.Team, Priority: r.Priority}
			}
		}
	}
	// unreachable: NewRuleTable guarantees a trailing catch-all
	last := t.rules[len(t.rules)-1]
	return Route{TaskType: last.Name, Team: last.Team, Priority: last.Priority}
}

var slaByPriority = map[qualification.Priority]time.Duration{
	qualification.PriorityHigh:   4 * time.Hour,
	qualification.PriorityMedium: 24 * time.Hour,
	qualification.PriorityLow:    72 * time.Hour,
}

// DueAt returns now plus the SLA for the priority. Unknown priorities get
// the medium SLA.
func DueAt(p qualification.Priority, now time.Time) time.Time {
	sla, ok := slaByPriority[p]
	if !ok {
		sla = slaByPriority[qualification.PriorityMedium]
	}
	return now.Add(sla)
}
