package usecase

import (
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/ai-candidate-evaluator/internal/domain"
	obsctx "github.com/fairyhunter13/ai-candidate-evaluator/internal/observability"
	"github.com/fairyhunter13/ai-candidate-evaluator/pkg/textx"
)

// PersonalInfo is the contact block of a resume.
type PersonalInfo struct {
	Name      *string `json:"name"`
	Email     *string `json:"email"`
	Phone     *string `json:"phone"`
	Location  *string `json:"location"`
	LinkedIn  *string `json:"linkedin"`
	Portfolio *string `json:"portfolio"`
}

// WorkExperience is one employment entry.
type WorkExperience struct {
	Company      *string  `json:"company"`
	Position     *string  `json:"position"`
	StartDate    *string  `json:"start_date"`
	EndDate      *string  `json:"end_date"`
	Description  *string  `json:"description"`
	Achievements []string `json:"achievements"`
}

// Education is one education entry.
type Education struct {
	Institution    *string `json:"institution"`
	Degree         *string `json:"degree"`
	FieldOfStudy   *string `json:"field_of_study"`
	GraduationDate *string `json:"graduation_date"`
}

// Skills groups the candidate's skills.
type Skills struct {
	Technical  []string `json:"technical"`
	Languages  []string `json:"languages"`
	SoftSkills []string `json:"soft_skills"`
}

// Certification is one certificate entry.
type Certification struct {
	Name   *string `json:"name"`
	Issuer *string `json:"issuer"`
	Date   *string `json:"date"`
}

// Project is one project entry.
type Project struct {
	Name         *string  `json:"name"`
	Description  *string  `json:"description"`
	Technologies []string `json:"technologies"`
	URL          *string  `json:"url"`
}

// Language is a spoken language.
type Language struct {
	Language    *string `json:"language"`
	Proficiency *string `json:"proficiency"`
}

// ResumeData is the normalized resume structure. Slices are never nil.
type ResumeData struct {
	PersonalInfo   PersonalInfo     `json:"personal_info"`
	Summary        *string          `json:"summary"`
	WorkExperience []WorkExperience `json:"work_experience"`
	Education      []Education      `json:"education"`
	Skills         Skills           `json:"skills"`
	Certifications []Certification  `json:"certifications"`
	Projects       []Project        `json:"projects"`
	Languages      []Language       `json:"languages"`
}

// ParseResult is the Resume Parser output stored on the resume record.
type ParseResult struct {
	Success    bool       `json:"success"`
	Data       ResumeData `json:"data"`
	Confidence float64    `json:"confidence"`
	TextLength int        `json:"text_length"`
	// Degraded is set when the model could not be used and Data is the empty skeleton.
	Degraded bool `json:"degraded,omitempty"`
}

// Confidence weights per section.
const (
	confPersonal = 0.20
	confSummary  = 0.10
	confWork     = 0.35
	confEdu      = 0.15
	confSkills   = 0.10
	confOther    = 0.10
)

const (
	resumeMaxRetries = 2
	defaultRetryBase = time.Second
)

// ResumeParser turns a PDF or DOCX resume into ResumeData.
type ResumeParser struct {
	Gateway   domain.ModelGateway
	Extractor domain.TextExtractor
	// RetryBase is the linear retry step: attempt n waits RetryBase*(n+1).
	RetryBase time.Duration
}

// NewResumeParser constructs a ResumeParser.
func NewResumeParser(gw domain.ModelGateway, ex domain.TextExtractor) *ResumeParser {
	return &ResumeParser{Gateway: gw, Extractor: ex, RetryBase: defaultRetryBase}
}

// Parse extracts, analyzes and normalizes a resume. Model failures degrade to
// the empty skeleton; only bad input or empty text are errors.
func (p *ResumeParser) Parse(ctx domain.Context, data []byte, fileType string) (ParseResult, error) {
	ctx, span := otel.Tracer("usecase.resume").Start(ctx, "ResumeParser.Parse")
	defer span.End()

	fileType = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(fileType), "."))
	var problems []string
	if fileType != "pdf" && fileType != "docx" {
		problems = append(problems, "file type must be pdf or docx")
	}
	if len(data) == 0 {
		problems = append(problems, "file buffer is empty")
	}
	if len(problems) > 0 {
		return ParseResult{}, domain.NewEvalError(domain.KindValidation, "Invalid resume input", nil, problems...)
	}
	span.SetAttributes(attribute.String("file_type", fileType), attribute.Int("bytes", len(data)))

	raw, err := p.Extractor.Extract(ctx, fileType, data)
	if err != nil {
		return ParseResult{}, domain.NewEvalError(domain.KindParse, "Failed to extract text from file", err)
	}
	text := textx.CleanText(raw)
	if text == "" {
		return ParseResult{}, domain.NewEvalError(domain.KindEmptyInput, "No text extracted from file", nil)
	}

	analysis, degraded := p.analyze(ctx, text)
	resume := NormalizeResume(analysis)
	if resume.PersonalInfo.Name == nil {
		resume.PersonalInfo.Name = guessName(text)
	}
	return ParseResult{
		Success:    true,
		Data:       resume,
		Confidence: ResumeConfidence(resume),
		TextLength: len(text),
		Degraded:   degraded,
	}, nil
}

// analyze calls AnalyzeCV with linear backoff. A connection failure stops the
// retries at once; either way the caller receives nil and degraded=true.
func (p *ResumeParser) analyze(ctx domain.Context, text string) (map[string]any, bool) {
	lg := obsctx.LoggerFromContext(ctx)
	attempt := 0
	op := func() (map[string]any, error) {
		attempt++
		out, err := p.Gateway.AnalyzeCV(ctx, text)
		if err == nil {
			return out, nil
		}
		lg.Warn("cv analysis attempt failed", slog.Int("attempt", attempt), slog.String("error", err.Error()))
		if domain.IsConnectionError(err) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	b := backoff.WithContext(backoff.WithMaxRetries(&linearBackOff{step: p.RetryBase}, resumeMaxRetries), ctx)
	out, err := backoff.RetryWithData(op, b)
	if err != nil {
		lg.Error("cv analysis unavailable, using empty resume skeleton",
			slog.Int("attempts", attempt), slog.String("kind", string(domain.KindOf(err))), slog.String("error", err.Error()))
		return nil, true
	}
	return out, false
}

// linearBackOff waits step*(n+1) before retry n.
type linearBackOff struct {
	step time.Duration
	n    int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.n++
	return b.step * time.Duration(b.n)
}

func (b *linearBackOff) Reset() { b.n = 0 }

// NormalizeResume coerces arbitrary model output into ResumeData. It never fails.
func NormalizeResume(raw map[string]any) ResumeData {
	if inner := asMap(raw["analysis"]); inner != nil {
		raw = inner
	}
	pi := asMap(raw["personal_info"])
	if pi == nil {
		pi = raw
	}
	out := ResumeData{
		PersonalInfo: PersonalInfo{
			Name:      asStringPtr(pi["name"]),
			Email:     asStringPtr(pi["email"]),
			Phone:     asStringPtr(pi["phone"]),
			Location:  asStringPtr(pi["location"]),
			LinkedIn:  asStringPtr(pi["linkedin"]),
			Portfolio: asStringPtr(pi["portfolio"]),
		},
		Summary:        asStringPtr(raw["summary"]),
		WorkExperience: []WorkExperience{},
		Education:      []Education{},
		Certifications: []Certification{},
		Projects:       []Project{},
		Languages:      []Language{},
	}

	for _, item := range asSlice(raw["work_experience"]) {
		m := asMap(item)
		if m == nil {
			continue
		}
		out.WorkExperience = append(out.WorkExperience, WorkExperience{
			Company:      asStringPtr(m["company"]),
			Position:     asStringPtr(firstOf(m, "position", "title")),
			StartDate:    asStringPtr(m["start_date"]),
			EndDate:      asStringPtr(m["end_date"]),
			Description:  asStringPtr(m["description"]),
			Achievements: asStringSlice(m["achievements"]),
		})
	}
	for _, item := range asSlice(raw["education"]) {
		m := asMap(item)
		if m == nil {
			continue
		}
		out.Education = append(out.Education, Education{
			Institution:    asStringPtr(firstOf(m, "institution", "school")),
			Degree:         asStringPtr(m["degree"]),
			FieldOfStudy:   asStringPtr(firstOf(m, "field_of_study", "field")),
			GraduationDate: asStringPtr(firstOf(m, "graduation_date", "end_date")),
		})
	}

	switch sk := raw["skills"].(type) {
	case map[string]any:
		out.Skills = Skills{
			Technical:  asStringSlice(sk["technical"]),
			Languages:  asStringSlice(sk["languages"]),
			SoftSkills: asStringSlice(sk["soft_skills"]),
		}
	default:
		// a flat list is read as technical skills
		out.Skills = Skills{Technical: asStringSlice(sk), Languages: []string{}, SoftSkills: []string{}}
	}

	for _, item := range asSlice(raw["certifications"]) {
		if m := asMap(item); m != nil {
			out.Certifications = append(out.Certifications, Certification{
				Name:   asStringPtr(m["name"]),
				Issuer: asStringPtr(m["issuer"]),
				Date:   asStringPtr(m["date"]),
			})
		} else if s := asStringPtr(item); s != nil {
			out.Certifications = append(out.Certifications, Certification{Name: s})
		}
	}
	for _, item := range asSlice(raw["projects"]) {
		if m := asMap(item); m != nil {
			out.Projects = append(out.Projects, Project{
				Name:         asStringPtr(m["name"]),
				Description:  asStringPtr(m["description"]),
				Technologies: asStringSlice(m["technologies"]),
				URL:          asStringPtr(m["url"]),
			})
		} else if s := asStringPtr(item); s != nil {
			out.Projects = append(out.Projects, Project{Name: s, Technologies: []string{}})
		}
	}
	for _, item := range asSlice(raw["languages"]) {
		if m := asMap(item); m != nil {
			out.Languages = append(out.Languages, Language{
				Language:    asStringPtr(firstOf(m, "language", "name")),
				Proficiency: asStringPtr(m["proficiency"]),
			})
		} else if s := asStringPtr(item); s != nil {
			out.Languages = append(out.Languages, Language{Language: s})
		}
	}
	return out
}

func firstOf(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok && asString(v) != "" {
			return v
		}
	}
	return nil
}

// guessName returns the first line of 3 to 49 characters.
func guessName(text string) *string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if n := len([]rune(line)); n >= 3 && n < 50 {
			return &line
		}
	}
	return nil
}

// ResumeConfidence scores section completeness in [0,1].
func ResumeConfidence(r ResumeData) float64 {
	pi := r.PersonalInfo
	personal := filled(pi.Name, pi.Email, pi.Phone, pi.Location, pi.LinkedIn, pi.Portfolio)
	summary := filled(r.Summary)

	work := 0.0
	for _, w := range r.WorkExperience {
		work += (filled(w.Company, w.Position, w.StartDate, w.EndDate, w.Description)*5 + boolScore(len(w.Achievements) > 0)) / 6
	}
	if n := len(r.WorkExperience); n > 0 {
		work /= float64(n)
	}

	edu := 0.0
	for _, e := range r.Education {
		edu += filled(e.Institution, e.Degree, e.FieldOfStudy, e.GraduationDate)
	}
	if n := len(r.Education); n > 0 {
		edu /= float64(n)
	}

	skills := (boolScore(len(r.Skills.Technical) > 0) + boolScore(len(r.Skills.Languages) > 0) + boolScore(len(r.Skills.SoftSkills) > 0)) / 3
	other := (boolScore(len(r.Certifications) > 0) + boolScore(len(r.Projects) > 0) + boolScore(len(r.Languages) > 0)) / 3

	c := personal*confPersonal + summary*confSummary + work*confWork + edu*confEdu + skills*confSkills + other*confOther
	return round2(clamp(c, 0, 1))
}

func filled(fields ...*string) float64 {
	if len(fields) == 0 {
		return 0
	}
	n := 0
	for _, f := range fields {
		if f != nil && strings.TrimSpace(*f) != "" {
			n++
		}
	}
	return float64(n) / float64(len(fields))
}

func boolScore(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
