package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goofenthol/chscore/internal/domain/score"
)

const testChart = score.ChartID("00112233445566778899aabbccddeeff")

func submission(token string, value int) Submission {
	return Submission{
		AuthToken:         token,
		ChartID:           testChart,
		Instrument:        int(score.InstrumentLead),
		Difficulty:        int(score.DifficultyExpert),
		Score:             value,
		CompletionPercent: 95,
		Stars:             5,
	}
}

func pairUser(t *testing.T, s *Store, ext, name string) *User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), ext, name)
	require.NoError(t, err)
	return u
}

func TestSubmitFirstTimeScore(t *testing.T) {
	s := openTestStore(t)
	u1 := pairUser(t, s, "ext-1", "U1")

	sub := submission(u1.AuthToken, 100000)
	sub.SongTitle = "Amazing Song"
	res, err := s.SubmitScore(context.Background(), sub)
	require.NoError(t, err)

	assert.True(t, res.IsHighScore)
	assert.True(t, res.IsFirstTime)
	assert.False(t, res.IsRecordBroken)
	assert.False(t, res.IsPersonalBest)
	assert.Equal(t, 100000, res.YourBestScore)
	assert.Equal(t, 100000, res.CurrentServerRecord)
	assert.Nil(t, res.PreviousScore)

	meta, err := s.Song(context.Background(), testChart)
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, "Amazing Song", meta.Title)
}

func TestSubmitRecordBreak(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	u1 := pairUser(t, s, "ext-1", "U1")
	u2 := pairUser(t, s, "ext-2", "U2")

	_, err := s.SubmitScore(ctx, submission(u2.AuthToken, 100000))
	require.NoError(t, err)

	res, err := s.SubmitScore(ctx, submission(u1.AuthToken, 150000))
	require.NoError(t, err)

	assert.True(t, res.IsRecordBroken)
	assert.False(t, res.IsFirstTime)
	assert.False(t, res.IsPersonalBest)
	require.NotNil(t, res.PreviousScore)
	assert.Equal(t, 100000, *res.PreviousScore)
	require.NotNil(t, res.PreviousHolder)
	assert.Equal(t, "U2", res.PreviousHolder.DisplayName)
	assert.NotNil(t, res.PreviousRecordAt)

	// A record_breaks row was appended.
	var count, prevScore int
	var prevHolder int64
	require.NoError(t, s.db.QueryRow(`
		SELECT COUNT(*), previous_score, previous_holder_id FROM record_breaks`).
		Scan(&count, &prevScore, &prevHolder))
	assert.Equal(t, 1, count)
	assert.Equal(t, 100000, prevScore)
	assert.Equal(t, u2.ID, prevHolder)
}

func TestSubmitPersonalBestNotRecord(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	u1 := pairUser(t, s, "ext-1", "U1")
	u2 := pairUser(t, s, "ext-2", "U2")

	_, err := s.SubmitScore(ctx, submission(u1.AuthToken, 100000))
	require.NoError(t, err)
	_, err = s.SubmitScore(ctx, submission(u2.AuthToken, 200000))
	require.NoError(t, err)

	res, err := s.SubmitScore(ctx, submission(u1.AuthToken, 120000))
	require.NoError(t, err)

	assert.True(t, res.IsPersonalBest)
	assert.False(t, res.IsRecordBroken)
	assert.False(t, res.IsFirstTime)
	require.NotNil(t, res.UserPreviousScore)
	assert.Equal(t, 100000, *res.UserPreviousScore)
	assert.Equal(t, 120000, res.YourBestScore)
	assert.Equal(t, 200000, res.CurrentServerRecord)

	// No record_breaks row beyond U2's earlier record break.
	var count int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM record_breaks`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestSubmitLowerScoreLeavesRowUntouched(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	u1 := pairUser(t, s, "ext-1", "U1")

	_, err := s.SubmitScore(ctx, submission(u1.AuthToken, 150000))
	require.NoError(t, err)

	res, err := s.SubmitScore(ctx, submission(u1.AuthToken, 90000))
	require.NoError(t, err)

	assert.False(t, res.IsHighScore)
	assert.False(t, res.IsPersonalBest)
	assert.False(t, res.IsRecordBroken)
	assert.False(t, res.IsFirstTime)
	assert.Equal(t, 150000, res.YourBestScore)

	var count int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM scores`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestSubmitMutualExclusion(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	u1 := pairUser(t, s, "ext-1", "U1")
	u2 := pairUser(t, s, "ext-2", "U2")

	// A mixed sequence; exactly one of the three flags (or none) is set
	// on every result.
	values := []struct {
		token string
		score int
	}{
		{u1.AuthToken, 100000}, // first time
		{u2.AuthToken, 90000},  // none
		{u2.AuthToken, 120000}, // record break
		{u1.AuthToken, 110000}, // personal best
		{u1.AuthToken, 110000}, // none (equal, not strictly greater)
		{u1.AuthToken, 500000}, // record break
	}
	for i, v := range values {
		res, err := s.SubmitScore(ctx, submission(v.token, v.score))
		require.NoError(t, err, "submission %d", i)

		flags := 0
		for _, b := range []bool{res.IsRecordBroken, res.IsFirstTime, res.IsPersonalBest} {
			if b {
				flags++
			}
		}
		assert.LessOrEqual(t, flags, 1, "submission %d", i)
	}
}

func TestSubmitFullComboFlags(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	u1 := pairUser(t, s, "ext-1", "U1")
	u2 := pairUser(t, s, "ext-2", "U2")

	notes := 450
	sub := submission(u1.AuthToken, 300000)
	sub.CompletionPercent = 100
	sub.NotesHit = &notes
	sub.NotesTotal = &notes
	sub.TotalNotesInChart = &notes

	res, err := s.SubmitScore(ctx, sub)
	require.NoError(t, err)
	assert.True(t, res.IsFullCombo)
	assert.True(t, res.IsFirstFC)
	assert.False(t, res.IsFCRecordBreak) // first time, not a break

	// Second FC by another user: not the first anymore, but it breaks
	// the record, so the FC-record-break flag sets.
	sub2 := submission(u2.AuthToken, 320000)
	sub2.CompletionPercent = 100
	sub2.NotesHit = &notes
	sub2.NotesTotal = &notes
	sub2.TotalNotesInChart = &notes

	res2, err := s.SubmitScore(ctx, sub2)
	require.NoError(t, err)
	assert.True(t, res2.IsFullCombo)
	assert.False(t, res2.IsFirstFC)
	assert.True(t, res2.IsFCRecordBreak)
}

func TestSubmitFullComboRequiresCompletion(t *testing.T) {
	s := openTestStore(t)
	u1 := pairUser(t, s, "ext-1", "U1")

	notes := 450
	sub := submission(u1.AuthToken, 300000)
	sub.CompletionPercent = 98.5 // all notes hit but completion below floor
	sub.NotesHit = &notes
	sub.TotalNotesInChart = &notes

	res, err := s.SubmitScore(context.Background(), sub)
	require.NoError(t, err)
	assert.False(t, res.IsFullCombo)

	// Missing chart total: FC cannot be computed.
	sub2 := submission(u1.AuthToken, 310000)
	sub2.CompletionPercent = 100
	sub2.NotesHit = &notes
	sub2.TotalNotesInChart = nil
	res2, err := s.SubmitScore(context.Background(), sub2)
	require.NoError(t, err)
	assert.False(t, res2.IsFullCombo)
}

func TestSubmitUnauthorized(t *testing.T) {
	s := openTestStore(t)
	_, err := s.SubmitScore(context.Background(), submission("not-a-token", 1000))
	assert.ErrorIs(t, err, ErrUnauthorized)
}
