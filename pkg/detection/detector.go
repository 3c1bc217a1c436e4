// Package detection turns a photo into a recycling verdict: it asks the
// configured classifier for a label, falls back to a simulated scan when the
// classifier is unavailable, and maps the label to a bin.
package detection

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/menta2k/ecorecycle/pkg/client"
	"github.com/menta2k/ecorecycle/pkg/mapper"
	"github.com/menta2k/ecorecycle/pkg/types"
)

// Outcome is a classified photo and the bin it belongs in
type Outcome struct {
	Result  *types.ClassificationResult
	Mapping types.RecyclingMapping
}

// Detector classifies photos
type Detector struct {
	classifier client.Classifier
	mapper     *mapper.Mapper
	logger     *zap.Logger
	simulate   bool

	mu  sync.Mutex
	rng *rand.Rand
}

// Option configures a Detector
type Option func(*Detector)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(d *Detector) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithRand sets the source used to pick simulated results
func WithRand(r *rand.Rand) Option {
	return func(d *Detector) {
		if r != nil {
			d.rng = r
		}
	}
}

// WithMapper replaces the default mapping table
func WithMapper(m *mapper.Mapper) Option {
	return func(d *Detector) {
		if m != nil {
			d.mapper = m
		}
	}
}

// WithSimulation enables or disables the simulated fallback. It is on by
// default.
func WithSimulation(on bool) Option {
	return func(d *Detector) { d.simulate = on }
}

// NewDetector creates a detector on top of a classifier. A nil classifier
// makes every scan simulated.
func NewDetector(c client.Classifier, opts ...Option) *Detector {
	d := &Detector{
		classifier: c,
		mapper:     mapper.New(),
		logger:     zap.NewNop(),
		simulate:   true,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Classify sends the encoded photo to the classifier and maps the result.
// Classifier failures produce a simulated outcome unless simulation is off.
func (d *Detector) Classify(ctx context.Context, filename string, jpeg []byte) (*Outcome, error) {
	if len(jpeg) == 0 {
		return nil, fmt.Errorf("empty image %q", filename)
	}

	var (
		res *types.ClassificationResult
		err error
	)
	if d.classifier != nil {
		res, err = d.classifier.Classify(ctx, filename, jpeg)
	} else {
		err = fmt.Errorf("no classifier configured")
	}

	if err != nil || res == nil {
		if err == nil {
			err = fmt.Errorf("classifier returned no result")
		}
		if ctx.Err() != nil || !d.simulate {
			return nil, fmt.Errorf("classify %s: %w", filename, err)
		}
		d.logger.Warn("classifier unavailable, simulating scan", zap.String("file", filename), zap.Error(err))
		return d.simulated(filename), nil
	}

	res.Confidence = clamp(res.Confidence, 0, 1)
	res.Tags = normalizeTags(res.Tags)
	if res.Filename == "" {
		res.Filename = filename
	}
	if res.ReceivedAt.IsZero() {
		res.ReceivedAt = time.Now()
	}

	mapping := d.mapper.Map(res.RawLabel)
	d.logger.Debug("photo classified",
		zap.String("file", filename),
		zap.String("label", res.RawLabel),
		zap.Float64("confidence", res.Confidence),
		zap.String("material", mapping.Key))
	return &Outcome{Result: res, Mapping: mapping}, nil
}

// TestVision checks whether a vision-model classifier can see the photo
func (d *Detector) TestVision(ctx context.Context, jpeg []byte) (string, error) {
	p, ok := d.classifier.(client.Prober)
	if !ok {
		return "", fmt.Errorf("classifier does not support free-text queries")
	}
	return p.SimpleQuery(ctx, client.SimpleTestPrompt, jpeg)
}

func (d *Detector) simulated(filename string) *Outcome {
	entries := d.mapper.Entries()
	if len(entries) == 0 {
		return &Outcome{
			Result:  &types.ClassificationResult{Filename: filename, Simulated: true, ReceivedAt: time.Now()},
			Mapping: mapper.Unidentified,
		}
	}

	d.mu.Lock()
	i := d.rng.Intn(len(entries))
	conf := 0.6 + d.rng.Float64()*0.35
	d.mu.Unlock()

	e := entries[i]
	return &Outcome{
		Result: &types.ClassificationResult{
			RawLabel:   e.Mapping.Key,
			Confidence: conf,
			Filename:   filename,
			Simulated:  true,
			ReceivedAt: time.Now(),
		},
		Mapping: e.Mapping,
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// normalizeTags lowercases, dedupes and keeps at most 5 tags
func normalizeTags(tags []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, 5)
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
		if len(out) == 5 {
			break
		}
	}
	return out
}
