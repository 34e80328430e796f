// Package export writes finished alignment passes to local disk or S3 for
// downstream consumers. Exports are never read back by sigalign itself.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/newthinker/sigalign/internal/core"
	"github.com/newthinker/sigalign/internal/pipeline"
	"go.uber.org/zap"
)

// Document is the exported form of a pass.
type Document struct {
	PassID     string         `json:"pass_id"`
	ExportedAt time.Time      `json:"exported_at"`
	Range      core.TimeRange `json:"range"`
	Grid       []time.Time    `json:"grid"`
	Series     []Series       `json:"series"`
	Combined   *Series        `json:"combined,omitempty"`
}

// Series is one aligned signal. Policy is empty for combinations.
type Series struct {
	Signal core.SignalID `json:"signal"`
	Policy string        `json:"policy,omitempty"`
	Values []float64     `json:"values"`
}

// Exporter writes pass documents to a Storage.
type Exporter struct {
	store  Storage
	logger *zap.Logger
	now    func() time.Time
}

// NewExporter creates an exporter.
func NewExporter(store Storage, logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{store: store, logger: logger.Named("export"), now: time.Now}
}

// Path returns the storage path of a pass exported at t.
func Path(passID string, t time.Time) string {
	t = t.UTC()
	return path.Join("passes", t.Format("2006"), t.Format("01"), t.Format("02"), passID+".json")
}

// Export writes res and returns the path it was stored at. A pass is written
// once; exporting the same pass twice fails.
func (e *Exporter) Export(ctx context.Context, res *pipeline.Result) (string, error) {
	if res == nil || res.PassID == "" {
		return "", fmt.Errorf("nothing to export")
	}

	now := e.now()
	p := Path(res.PassID, now)
	exists, err := e.store.Exists(ctx, p)
	if err != nil {
		return "", fmt.Errorf("checking %s: %w", p, err)
	}
	if exists {
		return "", fmt.Errorf("pass %s already exported to %s", res.PassID, p)
	}

	data, err := json.MarshalIndent(NewDocument(res, now), "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding pass: %w", err)
	}
	if err := e.store.Write(ctx, p, data); err != nil {
		return "", fmt.Errorf("writing %s: %w", p, err)
	}

	e.logger.Info("exported pass", zap.String("pass", res.PassID), zap.String("path", p), zap.Int("bytes", len(data)))
	return p, nil
}

// List returns the exported pass paths, optionally limited to one day.
func (e *Exporter) List(ctx context.Context, day time.Time) ([]string, error) {
	prefix := "passes"
	if !day.IsZero() {
		d := day.UTC()
		prefix = path.Join(prefix, d.Format("2006"), d.Format("01"), d.Format("02"))
	}
	return e.store.List(ctx, prefix)
}

// NewDocument converts a pass result into its exported form.
func NewDocument(res *pipeline.Result, at time.Time) Document {
	doc := Document{
		PassID:     res.PassID,
		ExportedAt: at.UTC(),
		Range:      res.Range,
		Series:     make([]Series, len(res.Series)),
	}
	if res.Grid != nil {
		doc.Grid = res.Grid.Times
	}
	for i, s := range res.Series {
		doc.Series[i] = Series{Signal: s.Signal, Policy: s.Policy.String(), Values: s.Values}
	}
	if res.Combined != nil {
		doc.Combined = &Series{Signal: res.Combined.Signal, Values: res.Combined.Values}
	}
	return doc
}
