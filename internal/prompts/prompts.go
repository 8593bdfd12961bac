// Package prompts loads the prompt template set used to steer the LLM.
//
// The set is read once at startup from the embedded prompts.yaml, optionally
// overlaid by an operator-supplied YAML file, and is immutable afterwards.
package prompts

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/spf13/viper"
)

//go:embed prompts.yaml
var defaultYAML []byte

// Scenario names a renderable instruction template.
type Scenario string

const (
	ScenarioClarifying     Scenario = "clarifying"
	ScenarioClarifyingOnly Scenario = "clarifying_only"
	ScenarioGeneral        Scenario = "general"
	ScenarioColdEmail      Scenario = "cold_email"
	ScenarioSearch         Scenario = "search"
	ScenarioOther          Scenario = "other"
)

var scenarios = []Scenario{
	ScenarioClarifying,
	ScenarioClarifyingOnly,
	ScenarioGeneral,
	ScenarioColdEmail,
	ScenarioSearch,
	ScenarioOther,
}

// Data is passed to scenario templates.
type Data struct {
	Contacts    string
	HasContacts bool
	Clarifying  bool
}

type rawSet struct {
	System         string `mapstructure:"system"`
	Classifier     string `mapstructure:"classifier"`
	Extraction     string `mapstructure:"extraction"`
	Reprompt       string `mapstructure:"reprompt"`
	Clarifying     string `mapstructure:"clarifying"`
	ClarifyingOnly string `mapstructure:"clarifying_only"`
	General        string `mapstructure:"general"`
	ColdEmail      string `mapstructure:"cold_email"`
	Search         string `mapstructure:"search"`
	Other          string `mapstructure:"other"`
}

// Set is the immutable template set.
type Set struct {
	// System is the persona prompt sent ahead of every conversation.
	System string
	// Classifier asks for the JSON classification of the latest turn.
	Classifier string
	// Extraction asks the model to call the contact lookup function.
	Extraction string
	// Reprompt is streamed verbatim when a turn is out of scope.
	Reprompt string

	templates map[Scenario]*template.Template
}

// Default returns the embedded template set.
func Default() (*Set, error) {
	return Load("")
}

// Load reads the embedded templates and, when path is non-empty, overlays the
// keys present in that YAML file.
func Load(path string) (*Set, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaultYAML)); err != nil {
		return nil, fmt.Errorf("prompts: read embedded templates: %w", err)
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("prompts: read %s: %w", path, err)
		}
	}

	var raw rawSet
	if err := v.Unmarshal(&raw); err != nil {
		return nil, fmt.Errorf("prompts: decode templates: %w", err)
	}
	return newSet(raw)
}

func newSet(raw rawSet) (*Set, error) {
	s := &Set{
		System:     strings.TrimSpace(raw.System),
		Classifier: strings.TrimSpace(raw.Classifier),
		Extraction: strings.TrimSpace(raw.Extraction),
		Reprompt:   strings.TrimSpace(raw.Reprompt),
		templates:  make(map[Scenario]*template.Template, len(scenarios)),
	}
	for key, val := range map[string]string{
		"system":     s.System,
		"classifier": s.Classifier,
		"extraction": s.Extraction,
		"reprompt":   s.Reprompt,
	} {
		if val == "" {
			return nil, fmt.Errorf("prompts: %s template is empty", key)
		}
	}

	sources := map[Scenario]string{
		ScenarioClarifying:     raw.Clarifying,
		ScenarioClarifyingOnly: raw.ClarifyingOnly,
		ScenarioGeneral:        raw.General,
		ScenarioColdEmail:      raw.ColdEmail,
		ScenarioSearch:         raw.Search,
		ScenarioOther:          raw.Other,
	}
	for _, sc := range scenarios {
		src := strings.TrimSpace(sources[sc])
		if src == "" {
			return nil, fmt.Errorf("prompts: %s template is empty", sc)
		}
		tmpl, err := template.New(string(sc)).Option("missingkey=error").Parse(src)
		if err != nil {
			return nil, fmt.Errorf("prompts: parse %s template: %w", sc, err)
		}
		s.templates[sc] = tmpl
	}
	return s, nil
}

// Render executes the scenario template with data.
func (s *Set) Render(sc Scenario, data Data) (string, error) {
	tmpl, ok := s.templates[sc]
	if !ok {
		return "", fmt.Errorf("prompts: unknown scenario %q", sc)
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("prompts: render %s: %w", sc, err)
	}
	return strings.TrimSpace(b.String()), nil
}
