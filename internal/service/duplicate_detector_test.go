package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/points-ledger-api/internal/models"
	appErrors "github.com/noah-isme/points-ledger-api/pkg/errors"
)

type stubCandidates struct {
	students []models.Student
	err      error
}

func (s stubCandidates) ListActiveForMatching(context.Context) ([]models.Student, error) {
	return s.students, s.err
}

func TestFindDuplicatesScoring(t *testing.T) {
	repo := stubCandidates{students: []models.Student{
		{ID: 1, FullName: "Maria Lopez", Phone: "55 1234 5678", Email: "maria@example.com", Classroom: "3A"},
		{ID: 2, FullName: "Jorge Ramirez", Phone: "5598765432", Email: "jorge@example.com"},
		{ID: 3, FullName: "Zzz Qqq", Email: "ANA@Example.com"},
	}}
	detector := NewDuplicateDetector(repo, DuplicateConfig{}, nil, nil)
	ctx := context.Background()

	t.Run("exact name", func(t *testing.T) {
		matches, err := detector.FindDuplicates(ctx, "  MARIA LOPEZ ", "", "", 0)
		require.NoError(t, err)
		require.NotEmpty(t, matches)
		assert.Equal(t, int64(1), matches[0].StudentID)
		assert.Equal(t, 100, matches[0].Confidence)
		assert.Equal(t, "3A", matches[0].Classroom)
	})

	t.Run("phone with separators", func(t *testing.T) {
		matches, err := detector.FindDuplicates(ctx, "Unrelated Person", "55-1234-5678", "", 0)
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, int64(1), matches[0].StudentID)
		assert.Equal(t, 0.97, matches[0].Score)
		assert.Equal(t, 97, matches[0].Confidence)
	})

	t.Run("email ignores case", func(t *testing.T) {
		matches, err := detector.FindDuplicates(ctx, "", "", " ana@example.COM", 0)
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, int64(3), matches[0].StudentID)
		assert.Equal(t, 99, matches[0].Confidence)
	})

	t.Run("no match", func(t *testing.T) {
		matches, err := detector.FindDuplicates(ctx, "Xochitl", "", "", 0)
		require.NoError(t, err)
		assert.NotNil(t, matches)
		assert.Empty(t, matches)
	})
}

func TestFindDuplicatesBoostNeverLowersScore(t *testing.T) {
	repo := stubCandidates{students: []models.Student{{ID: 7, FullName: "Ana", Phone: "5512345678"}}}
	detector := NewDuplicateDetector(repo, DuplicateConfig{Compare: func(a, b string) float64 { return 0.985 }}, nil, nil)

	matches, err := detector.FindDuplicates(context.Background(), "Ana", "5512345678", "", 0)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, 0.985, matches[0].Score)
}

func TestFindDuplicatesRankingAndTruncation(t *testing.T) {
	scores := map[string]float64{"first": 0.50, "second": 0.99, "third": 0.80, "fourth": 0.45}
	repo := stubCandidates{students: []models.Student{
		{ID: 1, FullName: "first"},
		{ID: 2, FullName: "second"},
		{ID: 3, FullName: "third"},
		{ID: 4, FullName: "fourth"},
	}}
	detector := NewDuplicateDetector(repo, DuplicateConfig{Compare: func(_, b string) float64 { return scores[b] }}, nil, nil)

	matches, err := detector.FindDuplicates(context.Background(), "Ana Torres", "", "", 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, int64(2), matches[0].StudentID)
	assert.Equal(t, int64(3), matches[1].StudentID)

	all, err := detector.FindDuplicates(context.Background(), "Ana Torres", "", "", 10)
	require.NoError(t, err)
	require.Len(t, all, 3, "0.45 is not above the threshold")
	assert.Equal(t, int64(1), all[2].StudentID)
}

func TestFindDuplicatesTiesKeepIDOrder(t *testing.T) {
	repo := stubCandidates{students: []models.Student{{ID: 3, FullName: "c"}, {ID: 5, FullName: "e"}, {ID: 9, FullName: "i"}}}
	detector := NewDuplicateDetector(repo, DuplicateConfig{Compare: func(string, string) float64 { return 0.7 }}, nil, nil)

	matches, err := detector.FindDuplicates(context.Background(), "x", "", "", 0)
	require.NoError(t, err)
	require.Len(t, matches, 3)
	assert.Equal(t, []int64{3, 5, 9}, []int64{matches[0].StudentID, matches[1].StudentID, matches[2].StudentID})
}

func TestFindDuplicatesStoreFailure(t *testing.T) {
	detector := NewDuplicateDetector(stubCandidates{err: context.DeadlineExceeded}, DuplicateConfig{}, nil, nil)
	matches, err := detector.FindDuplicates(context.Background(), "Ana", "", "", 0)
	assert.Nil(t, matches)
	assert.ErrorIs(t, err, appErrors.ErrStoreUnavailable)

	detector = NewDuplicateDetector(stubCandidates{err: errors.New("syntax error")}, DuplicateConfig{}, nil, nil)
	_, err = detector.FindDuplicates(context.Background(), "Ana", "", "", 0)
	assert.ErrorIs(t, err, appErrors.ErrInternal)
}

func TestFindDuplicatesDefaultMetric(t *testing.T) {
	repo := stubCandidates{students: []models.Student{
		{ID: 1, FullName: "Maria Lopez Garcia", Phone: "5512345678", Email: "mlg@example.com"},
	}}
	detector := NewDuplicateDetector(repo, DuplicateConfig{}, nil, nil)
	ctx := context.Background()

	t.Run("partial name is included below the contact floors", func(t *testing.T) {
		matches, err := detector.FindDuplicates(ctx, "Maria Lopez", "", "", 0)
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Greater(t, matches[0].Score, 0.45)
		assert.Less(t, matches[0].Score, 0.97)
		assert.InDelta(t, 0.611, matches[0].Score, 0.01)
		assert.Equal(t, 61, matches[0].Confidence)
	})

	t.Run("same phone with a dissimilar name", func(t *testing.T) {
		matches, err := detector.FindDuplicates(ctx, "Juan Perez", "55 1234 5678", "", 0)
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.GreaterOrEqual(t, matches[0].Score, 0.97)
	})

	t.Run("dissimilar name without contact match is excluded", func(t *testing.T) {
		assert.InDelta(t, 0.22, LevenshteinSimilarity("juan perez", "maria lopez garcia"), 0.03)
		matches, err := detector.FindDuplicates(ctx, "Juan Perez", "", "", 0)
		require.NoError(t, err)
		assert.Empty(t, matches)
	})
}
