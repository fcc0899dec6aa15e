package config

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed scoring.yaml
var defaultScoringYAML []byte

// FallbackWeights weights the stage scores when the final synthesis call fails.
type FallbackWeights struct {
	Text       float64 `yaml:"text"`
	Voice      float64 `yaml:"voice"`
	Resume     float64 `yaml:"resume"`
	Assignment float64 `yaml:"assignment"`
}

// Scoring holds rubric weights and decision constants.
type Scoring struct {
	// Assignment maps assignment type to rubric key weights.
	Assignment            map[string]map[string]float64 `yaml:"assignment"`
	Fallback              FallbackWeights               `yaml:"fallback"`
	DecisionThreshold     float64                       `yaml:"decision_threshold"`
	ResumeExperienceBonus float64                       `yaml:"resume_experience_bonus"`
}

// DefaultScoring returns the embedded scoring defaults.
func DefaultScoring() Scoring {
	s, err := parseScoring(nil)
	if err != nil {
		panic(fmt.Sprintf("embedded scoring.yaml: %v", err))
	}
	return s
}

// LoadScoring reads scoring weights from path, or the embedded defaults when path is empty.
// Keys missing from the file keep their default values.
func LoadScoring(path string) (Scoring, error) {
	if path == "" {
		return DefaultScoring(), nil
	}
	// #nosec G304 -- operator supplied configuration file
	b, err := os.ReadFile(path)
	if err != nil {
		return Scoring{}, fmt.Errorf("op=config.LoadScoring: %w", err)
	}
	s, err := parseScoring(b)
	if err != nil {
		return Scoring{}, fmt.Errorf("op=config.LoadScoring: %w", err)
	}
	return s, nil
}

// parseScoring decodes the embedded defaults and then the override on top of them.
func parseScoring(override []byte) (Scoring, error) {
	var s Scoring
	if err := yaml.Unmarshal(defaultScoringYAML, &s); err != nil {
		return Scoring{}, err
	}
	if len(override) > 0 {
		if err := yaml.Unmarshal(override, &s); err != nil {
			return Scoring{}, err
		}
	}
	if s.DecisionThreshold <= 0 || s.DecisionThreshold > 100 {
		return Scoring{}, fmt.Errorf("decision_threshold out of range: %v", s.DecisionThreshold)
	}
	for typ, weights := range s.Assignment {
		for k, w := range weights {
			if w < 0 {
				return Scoring{}, fmt.Errorf("negative weight %s.%s", typ, k)
			}
		}
	}
	return s, nil
}

// AssignmentWeights returns a copy of the default weights for an assignment type.
func (s Scoring) AssignmentWeights(assignmentType string) map[string]float64 {
	src := s.Assignment[assignmentType]
	out := make(map[string]float64, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
