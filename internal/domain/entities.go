// Package domain holds the evaluation entities, ports and error taxonomy.
package domain

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrRateLimited         = errors.New("rate limited")
	ErrUpstreamTimeout     = errors.New("upstream timeout")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrUpstream            = errors.New("upstream error")
	ErrSchemaInvalid       = errors.New("schema invalid")
	ErrInternal            = errors.New("internal error")
)

// AnswerType is the normalized kind of a free-form application answer.
type AnswerType string

const (
	AnswerText  AnswerType = "text"
	AnswerVoice AnswerType = "voice"
	AnswerFile  AnswerType = "file"
	AnswerURL   AnswerType = "url"
)

// NormalizeAnswerType maps raw form field types onto the four answer kinds.
// Unknown types are treated as text.
func NormalizeAnswerType(raw string) AnswerType {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "voice", "audio", "voice_recording", "audio_recording", "recording":
		return AnswerVoice
	case "file", "upload", "file_upload", "document":
		return AnswerFile
	case "url", "link", "website":
		return AnswerURL
	default:
		return AnswerText
	}
}

// Assignment types
const (
	AssignmentCode   = "code"
	AssignmentDesign = "design"
	AssignmentVideo  = "video"
	AssignmentText   = "text"
)

// Interview media types
const (
	MediaVideo      = "video"
	MediaAudio      = "audio"
	MediaTranscript = "transcript"
)

// Application is the evaluation subject, loaded as one aggregate.
// Invariants: at most one Interview, Assignment and Resume are used.
type Application struct {
	ID             string
	CandidateEmail string
	CreatedAt      time.Time
	Interview      *Interview
	Assignment     *Assignment
	Resume         *Resume
	Answers        []Answer
	Job            JobContext
}

// Interview references a recorded interview.
type Interview struct {
	ID         string
	MediaURL   string
	MediaType  string
	Transcript string
}

// Assignment is a take-home submission.
type Assignment struct {
	ID         string            `json:"id,omitempty"`
	Type       string            `json:"type" validate:"required,oneof=code design video text"`
	TextFields map[string]string `json:"text_fields"`
	LinkFields map[string]string `json:"link_fields"`
}

// Resume references an uploaded CV file.
type Resume struct {
	ID       string
	FileURL  string
	FileType string
}

// VoiceData carries recorder metadata for voice answers.
type VoiceData struct {
	AudioURL string  `json:"audio_url"`
	Duration float64 `json:"duration,omitempty"`
}

// Answer is one free-form response to an application question.
type Answer struct {
	ID            string
	QuestionID    string
	QuestionLabel string
	Type          AnswerType
	Value         string
	VoiceData     *VoiceData
}

// AudioURL prefers the recorder's nested audio url over the flat value.
func (a Answer) AudioURL() string {
	if a.VoiceData != nil && strings.TrimSpace(a.VoiceData.AudioURL) != "" {
		return strings.TrimSpace(a.VoiceData.AudioURL)
	}
	return strings.TrimSpace(a.Value)
}

// JobContext is the evaluation criteria of the parent job posting.
// Invariants: RequiredSkills and KeyTopics are non-nil; Weights need not sum to 1.
type JobContext struct {
	PositionTitle         string             `json:"position_title"`
	RequiredSkills        []string           `json:"required_skills"`
	KeyTopics             []string           `json:"key_topics"`
	Weights               map[string]float64 `json:"weights"`
	AssignmentDescription string             `json:"assignment_description"`
}

// Normalize replaces nil collections with empty ones.
func (j JobContext) Normalize() JobContext {
	if j.RequiredSkills == nil {
		j.RequiredSkills = []string{}
	}
	if j.KeyTopics == nil {
		j.KeyTopics = []string{}
	}
	if j.Weights == nil {
		j.Weights = map[string]float64{}
	}
	return j
}

// Recommendation is the final hiring decision.
type Recommendation string

const (
	RecommendInterview Recommendation = "Interview"
	RecommendReject    Recommendation = "Reject"
	RecommendReview    Recommendation = "Review"
)

// MaxHighlights caps strengths and weaknesses on a FinalEvaluation.
const MaxHighlights = 5

// FinalEvaluation is the persisted aggregate, one per application.
type FinalEvaluation struct {
	ApplicationID  string
	Score          int
	RankingScore   int
	Strengths      []string
	Weaknesses     []string
	Recommendation Recommendation
	Analysis       map[string]any
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// JobStatus is the lifecycle state of an evaluation job.
type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// EvaluationJob is a durable record of one requested pipeline run.
type EvaluationJob struct {
	ID            string
	ApplicationID string
	Status        JobStatus
	Attempts      int
	Error         string
	RequestID     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// EvaluateTaskPayload is the queue message for one evaluation job.
type EvaluateTaskPayload struct {
	JobID         string `json:"job_id"`
	ApplicationID string `json:"application_id"`
	RequestID     string `json:"request_id,omitempty"`
}

// Context is an alias so ports read naturally.
type Context = context.Context
