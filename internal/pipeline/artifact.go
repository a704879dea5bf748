package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"

	"github.com/sells-group/reconcile-cli/internal/model"
)

// SchemaVersion is stamped on every artifact.
const SchemaVersion = "1.0"

var validate = validator.New()

// Artifact is the handoff document a phase writes for downstream consumers.
type Artifact struct {
	SchemaVersion string                    `json:"schema_version" validate:"required"`
	Phase         model.Phase               `json:"phase" validate:"required,oneof=discover analyze synthesize validate"`
	RunID         string                    `json:"run_id" validate:"required"`
	EntityID      string                    `json:"entity_id" validate:"required"`
	AsOf          string                    `json:"as_of" validate:"required,datetime=2006-01-02"`
	Result        model.PhaseResult         `json:"result" validate:"-"`
	Confidence    model.ConfidenceScore     `json:"confidence"`
	Conflicts     []model.ConflictRecord    `json:"conflicts" validate:"dive"`
	Decision      model.QualityGateDecision `json:"decision"`
	GeneratedAt   time.Time                 `json:"generated_at"`
}

// NewArtifact assembles the artifact of one phase.
func NewArtifact(runID string, pc model.PhaseContext, result model.PhaseResult, decision model.QualityGateDecision) Artifact {
	conflicts := result.ConflictRecords()
	if conflicts == nil {
		conflicts = []model.ConflictRecord{}
	}
	return Artifact{
		SchemaVersion: SchemaVersion,
		Phase:         result.PhaseName(),
		RunID:         runID,
		EntityID:      pc.EntityID(),
		AsOf:          pc.AsOf().Format(time.DateOnly),
		Result:        result,
		Confidence:    result.Score(),
		Conflicts:     conflicts,
		Decision:      decision,
		GeneratedAt:   time.Now().UTC(),
	}
}

// Validate checks the artifact and its result against their schema tags.
func (a Artifact) Validate() error {
	var violations []string
	collect := func(err error) {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			for _, fe := range ve {
				violations = append(violations, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return
		}
		if err != nil {
			violations = append(violations, err.Error())
		}
	}

	collect(validate.Struct(a))
	if a.Result == nil {
		violations = append(violations, "Artifact.Result is missing")
	} else {
		collect(validate.Struct(a.Result))
		if a.Result.PhaseName() != a.Phase {
			violations = append(violations, fmt.Sprintf("result phase %s does not match artifact phase %s", a.Result.PhaseName(), a.Phase))
		}
	}

	if len(violations) > 0 {
		return &SchemaViolationError{Phase: a.Phase, Violations: violations}
	}
	return nil
}

// ArtifactWriter writes validated artifacts under dir/<run id>/.
type ArtifactWriter struct {
	dir string
}

// NewArtifactWriter returns a writer rooted at dir.
func NewArtifactWriter(dir string) *ArtifactWriter {
	return &ArtifactWriter{dir: dir}
}

// Write validates a and writes it atomically. It returns the file path.
func (w *ArtifactWriter) Write(a Artifact) (string, error) {
	if err := a.Validate(); err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return "", &SchemaViolationError{Phase: a.Phase, Err: err}
	}

	dir := filepath.Join(w.dir, a.RunID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "pipeline: create artifact dir %s", dir)
	}
	path := filepath.Join(dir, a.Phase.ArtifactName())
	if err := writeAtomic(path, data); err != nil {
		return "", eris.Wrapf(err, "pipeline: write artifact %s", path)
	}
	return path, nil
}

// writeAtomic writes data to a temp file beside path and renames it into
// place, so readers never see a partial document.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}
	return nil
}

// StoredArtifact is an artifact read back from disk with its result left
// as raw JSON.
type StoredArtifact struct {
	SchemaVersion string                    `json:"schema_version"`
	Phase         model.Phase               `json:"phase"`
	RunID         string                    `json:"run_id"`
	EntityID      string                    `json:"entity_id"`
	AsOf          string                    `json:"as_of"`
	Result        json.RawMessage           `json:"result"`
	Confidence    model.ConfidenceScore     `json:"confidence"`
	Conflicts     []model.ConflictRecord    `json:"conflicts"`
	Decision      model.QualityGateDecision `json:"decision"`
	GeneratedAt   time.Time                 `json:"generated_at"`
}

// ReadArtifact loads an artifact file.
func ReadArtifact(path string) (*StoredArtifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: read artifact %s", path)
	}
	var a StoredArtifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, eris.Wrapf(err, "pipeline: decode artifact %s", path)
	}
	return &a, nil
}
