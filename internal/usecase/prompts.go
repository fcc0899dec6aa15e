package usecase

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	aiadapter "github.com/fairyhunter13/ai-candidate-evaluator/internal/adapter/ai"
	"github.com/fairyhunter13/ai-candidate-evaluator/internal/domain"
)

//go:embed prompts/*.tmpl
var promptFS embed.FS

//go:embed schemas/*.json
var schemaFS embed.FS

var prompts = template.Must(template.New("prompts").Funcs(template.FuncMap{
	"join": strings.Join,
	"orNA": func(s string) string {
		if strings.TrimSpace(s) == "" {
			return "N/A"
		}
		return s
	},
}).ParseFS(promptFS, "prompts/*.tmpl"))

var (
	assignmentSchema    = mustSchema("assignment")
	finalDecisionSchema = mustSchema("final_decision")
)

func mustSchema(name string) *aiadapter.Schema {
	b, err := schemaFS.ReadFile("schemas/" + name + ".json")
	if err != nil {
		panic(err)
	}
	return aiadapter.MustCompileSchema(name, string(b))
}

func renderPrompt(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := prompts.ExecuteTemplate(&buf, name+".tmpl", data); err != nil {
		return "", domain.NewEvalError(domain.KindInternal, "render prompt "+name, err)
	}
	return buf.String(), nil
}

// compactJSON renders v for embedding in a prompt.
func compactJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
