package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Scenario is an authored training exercise: an ordered set of decision
// steps served to the simulation UI. Content lives as JSON or YAML documents
// in object storage; this type defines the accepted shape.
type Scenario struct {
	ScenarioID  string         `json:"scenario_id" yaml:"scenario_id"`
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Type        string         `json:"type,omitempty" yaml:"type,omitempty"`
	Difficulty  string         `json:"difficulty,omitempty" yaml:"difficulty,omitempty"`
	Steps       []ScenarioStep `json:"steps" yaml:"steps"`
}

type ScenarioStep struct {
	ID            int          `json:"id" yaml:"id"`
	Title         string       `json:"title" yaml:"title"`
	Description   string       `json:"description,omitempty" yaml:"description,omitempty"`
	Options       []StepOption `json:"options" yaml:"options"`
	CorrectOption *int         `json:"correct_option,omitempty" yaml:"correct_option,omitempty"`
	Hint          string       `json:"hint,omitempty" yaml:"hint,omitempty"`
	MitreAttack   string       `json:"mitre_attack,omitempty" yaml:"mitre_attack,omitempty"`
}

// StepOption is one selectable choice. Authors may write an option as a bare
// string or as an object with branching; both decode into this type.
type StepOption struct {
	Text     string `json:"text" yaml:"text"`
	NextStep *int   `json:"next_step,omitempty" yaml:"next_step,omitempty"`
}

func (o *StepOption) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		o.Text = text
		o.NextStep = nil
		return nil
	}
	type plain StepOption
	var full plain
	if err := json.Unmarshal(data, &full); err != nil {
		return err
	}
	*o = StepOption(full)
	return nil
}

func (o *StepOption) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		o.Text = value.Value
		o.NextStep = nil
		return nil
	}
	type plain StepOption
	var full plain
	if err := value.Decode(&full); err != nil {
		return err
	}
	*o = StepOption(full)
	return nil
}

func (s Scenario) Validate() error {
	if strings.TrimSpace(s.ScenarioID) == "" {
		return errors.New("scenario_id is required")
	}
	if strings.TrimSpace(s.Name) == "" {
		return errors.New("name is required")
	}
	if len(s.Steps) == 0 {
		return errors.New("at least one step is required")
	}
	for i, step := range s.Steps {
		if strings.TrimSpace(step.Title) == "" {
			return fmt.Errorf("step %d: title is required", i)
		}
		if len(step.Options) == 0 {
			return fmt.Errorf("step %d: at least one option is required", i)
		}
		for j, option := range step.Options {
			if strings.TrimSpace(option.Text) == "" {
				return fmt.Errorf("step %d option %d: text is required", i, j)
			}
		}
		if step.CorrectOption != nil {
			if *step.CorrectOption < 0 || *step.CorrectOption >= len(step.Options) {
				return fmt.Errorf("step %d: correct_option out of range", i)
			}
		}
	}
	return nil
}

// ScenarioSummary is the listing projection served to the scenario picker.
type ScenarioSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Type        string `json:"type"`
	Difficulty  string `json:"difficulty"`
}

func (s Scenario) Summary() ScenarioSummary {
	description := strings.TrimSpace(s.Description)
	if description == "" {
		description = "No description provided"
	}
	scenarioType := strings.TrimSpace(s.Type)
	if scenarioType == "" {
		scenarioType = "Default"
	}
	difficulty := strings.TrimSpace(s.Difficulty)
	if difficulty == "" {
		difficulty = "Easy"
	}
	return ScenarioSummary{
		ID:          s.ScenarioID,
		Name:        s.Name,
		Description: description,
		Type:        scenarioType,
		Difficulty:  difficulty,
	}
}
