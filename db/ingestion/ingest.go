// Package ingestion loads observed resource costs into a history store.
package ingestion

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"costrisk/decision/seasonality"
	"costrisk/pkg/units"
)

// DefaultBatchSize is the number of rows sent per insert.
const DefaultBatchSize = 1000

// Observation is one observed cost of a resource.
type Observation struct {
	ResourceID string    `json:"resource_id"`
	ObservedAt time.Time `json:"observed_at"`
	Cost       float64   `json:"cost"`
	Source     string    `json:"source,omitempty"`
}

// Validate rejects observations a history store cannot hold.
func (o Observation) Validate() error {
	if o.ResourceID == "" {
		return errors.New("resource id is required")
	}
	if o.ObservedAt.IsZero() {
		return errors.New("observation time is required")
	}
	if math.IsNaN(o.Cost) || math.IsInf(o.Cost, 0) || o.Cost < 0 {
		return fmt.Errorf("cost must be a non-negative number, got %v", o.Cost)
	}
	return nil
}

// Writer persists a batch of observations.
type Writer interface {
	RecordCosts(ctx context.Context, batchID uuid.UUID, observations []Observation) error
}

// Result tracks the outcome of one ingestion
type Result struct {
	BatchID      uuid.UUID     `json:"batch_id"`
	Observations int           `json:"observations"`
	Resources    int           `json:"resources"`
	Batches      int           `json:"batches"`
	Duration     time.Duration `json:"duration"`
	Success      bool          `json:"success"`
	ErrorMessage string        `json:"error_message,omitempty"`
}

// Ingester writes observations in fixed-size batches.
type Ingester struct {
	writer    Writer
	batchSize int
}

// NewIngester creates an ingester with the default batch size.
func NewIngester(w Writer) *Ingester {
	return &Ingester{writer: w, batchSize: DefaultBatchSize}
}

// WithBatchSize overrides the batch size.
func (i *Ingester) WithBatchSize(n int) *Ingester {
	if n > 0 {
		i.batchSize = n
	}
	return i
}

// Ingest validates every observation, then writes them batch by batch. All
// batches share one batch ID.
func (i *Ingester) Ingest(ctx context.Context, observations []Observation) (*Result, error) {
	startTime := time.Now()
	result := &Result{BatchID: uuid.New()}

	resources := make(map[string]struct{})
	for idx, o := range observations {
		if err := o.Validate(); err != nil {
			result.ErrorMessage = fmt.Sprintf("invalid observation at index %d: %v", idx, err)
			return result, fmt.Errorf("invalid observation at index %d: %w", idx, err)
		}
		resources[o.ResourceID] = struct{}{}
	}
	result.Resources = len(resources)

	for start := 0; start < len(observations); start += i.batchSize {
		end := min(start+i.batchSize, len(observations))
		if err := i.writer.RecordCosts(ctx, result.BatchID, observations[start:end]); err != nil {
			result.ErrorMessage = fmt.Sprintf("failed to write batch %d: %v", result.Batches, err)
			return result, fmt.Errorf("failed to write batch %d: %w", result.Batches, err)
		}
		result.Batches++
		result.Observations += end - start
	}

	result.Success = true
	result.Duration = time.Since(startTime)
	return result, nil
}

// ParseCSV reads observations from CSV with a header row containing
// resource_id, timestamp and cost columns. Timestamps are unix seconds or
// RFC 3339.
func ParseCSV(r io.Reader, source string) ([]Observation, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, name := range []string{"resource_id", "timestamp", "cost"} {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("CSV header is missing column %q", name)
		}
	}

	var observations []Observation
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		ts, err := parseTimestamp(record[cols["timestamp"]])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		c, err := strconv.ParseFloat(strings.TrimSpace(record[cols["cost"]]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid cost: %w", line, err)
		}
		observations = append(observations, Observation{
			ResourceID: strings.TrimSpace(record[cols["resource_id"]]),
			ObservedAt: ts,
			Cost:       c,
			Source:     source,
		})
	}
	return observations, nil
}

func parseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q", raw)
	}
	return t.UTC(), nil
}

// ToSeries converts observations of one resource into a time-ordered cost
// series.
func ToSeries(observations []Observation) []seasonality.CostPoint {
	series := make([]seasonality.CostPoint, 0, len(observations))
	for _, o := range observations {
		if o.ObservedAt.Unix() < 0 {
			continue
		}
		series = append(series, seasonality.CostPoint{Timestamp: uint64(o.ObservedAt.Unix()), Cost: o.Cost})
	}
	sort.Slice(series, func(i, j int) bool { return series[i].Timestamp < series[j].Timestamp })
	return series
}

// GroupByResource splits observations per resource ID.
func GroupByResource(observations []Observation) map[string][]Observation {
	out := make(map[string][]Observation)
	for _, o := range observations {
		out[o.ResourceID] = append(out[o.ResourceID], o)
	}
	return out
}

// ToDailyCosts rewrites costs recorded per period p as daily amounts, which
// is what the stores aggregate.
func ToDailyCosts(observations []Observation, p units.Period) {
	for i := range observations {
		observations[i].Cost = units.ToDaily(observations[i].Cost, p)
	}
}
