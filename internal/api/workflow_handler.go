package api

import (
	"io"
	"mime"
	"net/http"

	"github.com/shaiso/Mender/internal/engine"
	"github.com/shaiso/Mender/internal/mutator"
)

// Максимальный размер документа workflow в теле запроса.
const maxWorkflowBytes = 4 << 20

// ValidateWorkflow проверяет документ workflow без выполнения.
// POST /api/v1/workflows/validate
//
// Тело — JSON или YAML (Content-Type application/yaml, text/yaml,
// application/x-yaml). Ответ 200 и для непринятого документа:
// итог в полях valid и accepted.
func (h *Handler) ValidateWorkflow(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxWorkflowBytes))
	if err != nil {
		BadRequest(w, "failed to read request body")
		return
	}

	wf, err := engine.Parse(data, requestFormat(r))
	if err != nil {
		BadRequest(w, err.Error())
		return
	}

	resp := ValidationResponse{StepCount: len(wf.Steps)}

	if err := engine.Validate(wf); err != nil {
		resp.Errors = []string{err.Error()}
		resp.Warnings = []string{}
		Success(w, resp)
		return
	}

	result := mutator.Validate(wf)
	resp.Valid = result.IsValid()
	resp.Accepted = result.Accepted()
	resp.Score = result.Score
	resp.Errors = result.Errors
	resp.Warnings = result.Warnings
	Success(w, resp)
}

func requestFormat(r *http.Request) engine.Format {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/yaml", "application/x-yaml", "text/yaml", "text/x-yaml":
		return engine.FormatYAML
	default:
		return engine.FormatJSON
	}
}
