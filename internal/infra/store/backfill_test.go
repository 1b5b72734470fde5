package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackfillDetectsMissedFullCombo(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	u1 := pairUser(t, s, "ext-1", "U1")

	// Submitted before chart metadata existed: notes_total recorded but
	// no FC computed.
	notes := 450
	sub := submission(u1.AuthToken, 300000)
	sub.CompletionPercent = 100
	sub.NotesTotal = &notes
	res, err := s.SubmitScore(ctx, sub)
	require.NoError(t, err)
	require.False(t, res.IsFullCombo)

	require.NoError(t, s.UpsertChartMetadata(ctx, ChartMetadata{
		ChartID:    testChart,
		Instrument: sub.Instrument,
		Difficulty: sub.Difficulty,
		TotalNotes: 450,
	}))

	result, err := s.ScanHistoricalFCs(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Scanned)
	assert.Equal(t, 1, result.FCsFound)
	require.Len(t, result.Events, 1)
	assert.True(t, result.Events[0].IsFirstFC)
	assert.False(t, result.Events[0].IsFCRecordBreak)
	assert.Equal(t, "U1", result.Events[0].User.DisplayName)

	// Idempotence: a re-run finds no new FCs.
	again, err := s.ScanHistoricalFCs(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 0, again.FCsFound)
	assert.Empty(t, again.Events)
}

func TestBackfillSkipsNonQualifyingRows(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	u1 := pairUser(t, s, "ext-1", "U1")

	// notes_total disagrees with the chart parse: not an FC.
	notes := 440
	sub := submission(u1.AuthToken, 200000)
	sub.CompletionPercent = 100
	sub.NotesTotal = &notes
	_, err := s.SubmitScore(ctx, sub)
	require.NoError(t, err)

	require.NoError(t, s.UpsertChartMetadata(ctx, ChartMetadata{
		ChartID:    testChart,
		Instrument: sub.Instrument,
		Difficulty: sub.Difficulty,
		TotalNotes: 450,
	}))

	result, err := s.ScanHistoricalFCs(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Scanned)
	assert.Equal(t, 0, result.FCsFound)
}

func TestBackfillFCRecordBreak(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	u1 := pairUser(t, s, "ext-1", "U1")
	u2 := pairUser(t, s, "ext-2", "U2")

	// U2 held a lower score first.
	_, err := s.SubmitScore(ctx, submission(u2.AuthToken, 250000))
	require.NoError(t, err)

	// U1's later, higher score carried notes data but no chart total.
	notes := 450
	sub := submission(u1.AuthToken, 300000)
	sub.CompletionPercent = 100
	sub.NotesTotal = &notes
	_, err = s.SubmitScore(ctx, sub)
	require.NoError(t, err)

	require.NoError(t, s.UpsertChartMetadata(ctx, ChartMetadata{
		ChartID:    testChart,
		Instrument: sub.Instrument,
		Difficulty: sub.Difficulty,
		TotalNotes: 450,
	}))

	result, err := s.ScanHistoricalFCs(ctx, true)
	require.NoError(t, err)
	require.Len(t, result.Events, 1)

	fc := result.Events[0]
	assert.True(t, fc.IsFCRecordBreak)
	require.NotNil(t, fc.PreviousHolder)
	assert.Equal(t, "U2", *fc.PreviousHolder)
	require.NotNil(t, fc.PreviousScore)
	assert.Equal(t, 250000, *fc.PreviousScore)
}
