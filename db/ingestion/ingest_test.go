package ingestion

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"costrisk/pkg/units"
)

type recordingWriter struct {
	batches  [][]Observation
	batchIDs []uuid.UUID
	failAt   int
}

func (w *recordingWriter) RecordCosts(_ context.Context, batchID uuid.UUID, obs []Observation) error {
	if w.failAt > 0 && len(w.batches)+1 == w.failAt {
		return errors.New("insert failed")
	}
	w.batches = append(w.batches, obs)
	w.batchIDs = append(w.batchIDs, batchID)
	return nil
}

func observations(n int) []Observation {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]Observation, n)
	for i := range out {
		out[i] = Observation{
			ResourceID: []string{"aws_instance.web", "aws_s3_bucket.logs"}[i%2],
			ObservedAt: start.Add(time.Duration(i) * 24 * time.Hour),
			Cost:       float64(10 + i),
		}
	}
	return out
}

func TestIngest_Batches(t *testing.T) {
	w := &recordingWriter{}

	res, err := NewIngester(w).WithBatchSize(4).Ingest(context.Background(), observations(10))
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, 10, res.Observations)
	assert.Equal(t, 3, res.Batches)
	assert.Equal(t, 2, res.Resources)
	require.Len(t, w.batches, 3)
	assert.Len(t, w.batches[2], 2)
	assert.Equal(t, res.BatchID, w.batchIDs[0])
	assert.Equal(t, w.batchIDs[0], w.batchIDs[2])
}

func TestIngest_ValidationStopsBeforeWriting(t *testing.T) {
	w := &recordingWriter{}
	obs := observations(3)
	obs[1].Cost = -4

	res, err := NewIngester(w).Ingest(context.Background(), obs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index 1")
	assert.False(t, res.Success)
	assert.Empty(t, w.batches)
}

func TestIngest_WriterFailure(t *testing.T) {
	w := &recordingWriter{failAt: 2}

	res, err := NewIngester(w).WithBatchSize(2).Ingest(context.Background(), observations(5))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch 1")
	assert.Equal(t, 2, res.Observations)
	assert.False(t, res.Success)
}

func TestObservation_Validate(t *testing.T) {
	ok := Observation{ResourceID: "r", ObservedAt: time.Unix(100, 0), Cost: 0}
	assert.NoError(t, ok.Validate())

	noID := ok
	noID.ResourceID = ""
	assert.Error(t, noID.Validate())

	noTime := ok
	noTime.ObservedAt = time.Time{}
	assert.Error(t, noTime.Validate())
}

func TestParseCSV(t *testing.T) {
	raw := "resource_id, timestamp, cost\n" +
		"aws_instance.web, 86400, 12.5\n" +
		"aws_instance.web, 1970-01-03T00:00:00Z, 13\n"

	obs, err := ParseCSV(strings.NewReader(raw), "billing-export")
	require.NoError(t, err)
	require.Len(t, obs, 2)
	assert.Equal(t, "aws_instance.web", obs[0].ResourceID)
	assert.Equal(t, int64(86400), obs[0].ObservedAt.Unix())
	assert.Equal(t, 12.5, obs[0].Cost)
	assert.Equal(t, int64(2*86400), obs[1].ObservedAt.Unix())
	assert.Equal(t, "billing-export", obs[1].Source)
}

func TestParseCSV_Errors(t *testing.T) {
	_, err := ParseCSV(strings.NewReader("resource_id,cost\nr,1\n"), "")
	assert.ErrorContains(t, err, "timestamp")

	_, err = ParseCSV(strings.NewReader("resource_id,timestamp,cost\nr,yesterday,1\n"), "")
	assert.ErrorContains(t, err, "line 2")

	_, err = ParseCSV(strings.NewReader("resource_id,timestamp,cost\nr,10,abc\n"), "")
	assert.ErrorContains(t, err, "invalid cost")

	_, err = ParseCSV(strings.NewReader(""), "")
	assert.Error(t, err)
}

func TestToSeriesAndGroup(t *testing.T) {
	obs := observations(6)
	groups := GroupByResource(obs)
	require.Len(t, groups, 2)

	web := groups["aws_instance.web"]
	web[0], web[2] = web[2], web[0]
	series := ToSeries(web)
	require.Len(t, series, 3)
	assert.Less(t, series[0].Timestamp, series[1].Timestamp)
	assert.Less(t, series[1].Timestamp, series[2].Timestamp)
	assert.Equal(t, 10.0, series[0].Cost)
}

func TestToDailyCosts(t *testing.T) {
	obs := observations(2)
	ToDailyCosts(obs, units.PeriodHourly)
	assert.Equal(t, 240.0, obs[0].Cost)
	assert.Equal(t, 264.0, obs[1].Cost)

	ToDailyCosts(obs, units.PeriodDaily)
	assert.Equal(t, 240.0, obs[0].Cost)
}
