package usecase

import (
	"math"
	"strings"

	"github.com/fairyhunter13/ai-candidate-evaluator/internal/config"
	"github.com/fairyhunter13/ai-candidate-evaluator/internal/domain"
)

// StageScores are the five independent 0-100 sub-scores of one application.
type StageScores struct {
	Text       float64 `json:"text"`
	Voice      float64 `json:"voice"`
	Resume     float64 `json:"resume"`
	Assignment float64 `json:"assignment"`
	Interview  float64 `json:"interview"`
}

// TextScore uses the profile alignment score, else the mean answer quality, else 0.
func TextScore(profile *TextProfile, answers []TextAnswerResult) float64 {
	if profile != nil && profile.AlignmentScore != nil {
		return *profile.AlignmentScore
	}
	var qs []float64
	for _, a := range answers {
		if a.QualityScore != nil {
			qs = append(qs, *a.QualityScore)
		}
	}
	return round2(mean(qs))
}

// VoiceScore is the mean quality score over processed voice answers.
func VoiceScore(answers []VoiceAnswerResult) float64 {
	qs := make([]float64, 0, len(answers))
	for _, a := range answers {
		qs = append(qs, a.QualityScore)
	}
	return round2(mean(qs))
}

// ResumeScore is the share of required skills found in the candidate's
// technical and language skills, plus a bonus for any work history, capped at 100.
// A required skill matches when some candidate skill contains it, ignoring case.
func ResumeScore(r *ResumeData, requiredSkills []string, experienceBonus float64) float64 {
	if r == nil {
		return 0
	}
	have := make([]string, 0, len(r.Skills.Technical)+len(r.Skills.Languages))
	for _, s := range append(append([]string{}, r.Skills.Technical...), r.Skills.Languages...) {
		have = append(have, strings.ToLower(s))
	}

	score := 0.0
	required := 0
	matched := 0
	for _, req := range requiredSkills {
		req = strings.ToLower(strings.TrimSpace(req))
		if req == "" {
			continue
		}
		required++
		for _, h := range have {
			if strings.Contains(h, req) {
				matched++
				break
			}
		}
	}
	if required > 0 {
		score = math.Min(100, float64(matched)/float64(required)*100)
	}
	if len(r.WorkExperience) > 0 {
		score = math.Min(100, score+experienceBonus)
	}
	return round2(score)
}

// FallbackScore is the deterministic final score used when the synthesis call
// fails. The interview score is not part of it.
func FallbackScore(s StageScores, w config.FallbackWeights) int {
	return int(math.Round(s.Text*w.Text + s.Voice*w.Voice + s.Resume*w.Resume + s.Assignment*w.Assignment))
}

// DecisionFor maps a final score to Interview or Reject.
func DecisionFor(score int, threshold float64) domain.Recommendation {
	if float64(score) >= threshold {
		return domain.RecommendInterview
	}
	return domain.RecommendReject
}

// MergeHighlights concatenates lists in order and keeps at most
// domain.MaxHighlights non-blank entries.
func MergeHighlights(lists ...[]string) []string {
	out := make([]string, 0, domain.MaxHighlights)
	for _, l := range lists {
		for _, s := range l {
			if len(out) == domain.MaxHighlights {
				return out
			}
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
