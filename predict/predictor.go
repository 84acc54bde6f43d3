// Package predict wraps trained regression models behind a schema-guarded
// predictor.
//
// Predictors are immutable after construction and safe for concurrent use
// by any number of goroutines.
package predict

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/richinex/turbineopt/features"
	"github.com/richinex/turbineopt/model"
)

// ErrSchemaMismatch is returned when a feature vector lacks a column the
// model was trained on.
var ErrSchemaMismatch = errors.New("feature vector does not match model schema")

// Model is a trained regression model.
type Model interface {
	// FeatureNames returns the training columns, in the order Predict expects.
	FeatureNames() []string
	// Predict evaluates the model on values aligned with FeatureNames.
	Predict(values []float64) float64
}

// Predictor guards a Model against vectors missing training columns.
type Predictor struct {
	name        string
	model       Model
	features    []string
	fingerprint string
}

// New wraps a model. fingerprint identifies the artifact in logs and run
// records and may be empty.
func New(name string, m Model, fingerprint string) *Predictor {
	return &Predictor{
		name:        name,
		model:       m,
		features:    m.FeatureNames(),
		fingerprint: fingerprint,
	}
}

// Load reads an ensemble artifact from path and wraps it.
func Load(name, path string) (*Predictor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s model: %w", name, err)
	}
	e, err := ParseEnsemble(data)
	if err != nil {
		return nil, fmt.Errorf("%s model %s: %w", name, path, err)
	}
	return New(name, e, Fingerprint(data)), nil
}

// Fingerprint returns the hex xxhash64 of an artifact.
func Fingerprint(data []byte) string {
	return strconv.FormatUint(xxhash.Sum64(data), 16)
}

// Name returns the predictor name.
func (p *Predictor) Name() string { return p.name }

// Fingerprint returns the artifact fingerprint.
func (p *Predictor) Fingerprint() string { return p.fingerprint }

// FeatureNames returns the columns the model requires.
func (p *Predictor) FeatureNames() []string {
	return append([]string(nil), p.features...)
}

// Predict returns the model output, or false when the vector lacks any
// training column.
func (p *Predictor) Predict(v model.FeatureVector) (float64, bool) {
	out, err := p.PredictDetailed(v)
	return out, err == nil
}

// PredictDetailed is Predict with the missing columns reported through an
// error wrapping ErrSchemaMismatch.
func (p *Predictor) PredictDetailed(v model.FeatureVector) (float64, error) {
	values := make([]float64, len(p.features))
	var missing []string
	for i, name := range p.features {
		val, ok := v.Get(name)
		if !ok {
			missing = append(missing, name)
			continue
		}
		values[i] = val
	}
	if len(missing) > 0 {
		return 0, fmt.Errorf("%s: %w: missing %s", p.name, ErrSchemaMismatch, strings.Join(missing, ", "))
	}
	return p.model.Predict(values), nil
}

// Prediction is one row of a batch prediction.
type Prediction struct {
	Reading model.Reading
	Value   float64
}

// Skipped is a batch row that produced no prediction.
type Skipped struct {
	Reading model.Reading
	Reason  string
}

// BatchPredict predicts every computed outcome, in order. Excluded outcomes
// and schema mismatches are returned as skipped rows.
func BatchPredict(p *Predictor, outcomes []features.Outcome) ([]Prediction, []Skipped) {
	var preds []Prediction
	var skipped []Skipped
	for _, o := range outcomes {
		if !o.OK() {
			skipped = append(skipped, Skipped{Reading: o.Reading, Reason: o.Excluded.String()})
			continue
		}
		val, err := p.PredictDetailed(o.Vector)
		if err != nil {
			skipped = append(skipped, Skipped{Reading: o.Reading, Reason: err.Error()})
			continue
		}
		preds = append(preds, Prediction{Reading: o.Reading, Value: val})
	}
	return preds, skipped
}
