package domain

import "time"

// Repositories (ports)

// ApplicationRepository reads the application aggregate the pipeline evaluates.
type ApplicationRepository interface {
	Get(ctx Context, id string) (Application, error)
	Exists(ctx Context, id string) (bool, error)
	// CountPriorByEmail counts applications by the same candidate created before the cutoff.
	CountPriorByEmail(ctx Context, email string, before time.Time) (int, error)
}

// ResumeRepository stores parser output on the resume record.
type ResumeRepository interface {
	UpdateParsedData(ctx Context, resumeID string, parsed any) error
}

// EvaluationRepository persists one FinalEvaluation per application.
type EvaluationRepository interface {
	Upsert(ctx Context, e FinalEvaluation) error
	GetByApplicationID(ctx Context, applicationID string) (FinalEvaluation, error)
}

// JobRepository persists evaluation jobs.
type JobRepository interface {
	Create(ctx Context, j EvaluationJob) (string, error)
	Get(ctx Context, id string) (EvaluationJob, error)
	UpdateStatus(ctx Context, id string, status JobStatus, errMsg *string) error
	// MarkProcessing moves a job to processing and increments its attempt counter.
	MarkProcessing(ctx Context, id string) (EvaluationJob, error)
	// ListStale returns queued or processing jobs not updated since the cutoff.
	ListStale(ctx Context, before time.Time, limit int) ([]EvaluationJob, error)
}

// Queue (port)
type Queue interface {
	EnqueueEvaluate(ctx Context, payload EvaluateTaskPayload) (string, error)
}

// EvaluationLock serializes pipeline runs per application.
type EvaluationLock interface {
	// Acquire returns acquired=false without error when another run holds the lock.
	Acquire(ctx Context, applicationID string) (release func(Context), acquired bool, err error)
}

// GenerateOptions tunes a single text generation call.
type GenerateOptions struct {
	System      string
	Temperature *float64
	MaxTokens   int
}

// ModelGateway is the remote text/JSON generation service.
type ModelGateway interface {
	GenerateText(ctx Context, prompt string, opts GenerateOptions) (string, error)
	// GenerateJSON never fails on malformed output; it returns a sentinel object instead.
	GenerateJSON(ctx Context, prompt string, opts GenerateOptions) (map[string]any, error)
	AnalyzeCV(ctx Context, cvText string) (map[string]any, error)
}

// Segment is a timed slice of a transcript, in seconds.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Transcript is the speech-to-text output.
type Transcript struct {
	Text     string    `json:"transcript"`
	Segments []Segment `json:"segments"`
	Duration float64   `json:"duration"`
	// Fallback marks the canned placeholder returned when the service was unreachable.
	Fallback bool `json:"fallback,omitempty"`
}

// Transcriber converts media to text.
type Transcriber interface {
	TranscribeAudio(ctx Context, path string) (Transcript, error)
	ExtractAudioFromVideo(ctx Context, videoPath string) (string, error)
}

// TextExtractor extracts plain text from a document of the given type (pdf or docx).
type TextExtractor interface {
	Extract(ctx Context, fileType string, data []byte) (string, error)
}

// MediaStore resolves stored references and downloads them.
type MediaStore interface {
	// Download writes the referenced blob to a temp file and returns its path.
	Download(ctx Context, ref string) (string, error)
	Fetch(ctx Context, ref string) ([]byte, error)
}
