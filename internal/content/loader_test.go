package content

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"mystery_web/internal/models"
	"mystery_web/internal/repository/memory"
)

const sample = `
cases:
  - id: lighthouse
    title: The Dark Lighthouse
    solution: The keeper did it
    keywords: [keeper, " "]
    clues:
      - title: Logbook
        body: Last entry at 9pm
      - title: Broken Lens
        category: Physical
`

func TestParse(t *testing.T) {
	cases, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)
	require.Len(t, cases, 1)

	c := cases[0]
	assert.Equal(t, "lighthouse", c.ID)
	assert.Equal(t, []string{"keeper"}, c.Keywords)
	require.Len(t, c.Clues, 2)
	assert.Equal(t, 0, c.Clues[0].Index)
	assert.Equal(t, "document", c.Clues[0].Category)
	assert.Equal(t, 1, c.Clues[1].Index)
	assert.Equal(t, "physical", c.Clues[1].Category)
}

func TestParseRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"missing id", "cases:\n  - title: x\n    solution: y\n"},
		{"missing solution", "cases:\n  - id: a\n    title: x\n"},
		{"unknown field", "cases:\n  - id: a\n    title: x\n    solution: y\n    answer: z\n"},
		{"bad category", "cases:\n  - id: a\n    title: x\n    solution: y\n    clues:\n      - title: c\n        category: smell\n"},
		{"duplicate id", "cases:\n  - id: a\n    title: x\n    solution: y\n  - id: a\n    title: x\n    solution: y\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadBundledCases(t *testing.T) {
	cases, err := LoadFile("../../configs/cases.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, cases)
	assert.Equal(t, "midnight-gallery", cases[0].ID)
	assert.Len(t, cases[0].Clues, 5)
}

func TestSeed(t *testing.T) {
	repos := memory.NewRepositories()
	cases, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)

	n, err := Seed(context.Background(), repos.Case, cases)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := repos.Case.FindByID(context.Background(), "lighthouse")
	require.NoError(t, err)
	assert.Len(t, got.Clues, 2)
}

type mockCaseRepository struct {
	mock.Mock
}

func (m *mockCaseRepository) FindByID(ctx context.Context, id string) (*models.Case, error) {
	args := m.Called(ctx, id)
	if c := args.Get(0); c != nil {
		return c.(*models.Case), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockCaseRepository) Default(ctx context.Context) (*models.Case, error) {
	args := m.Called(ctx)
	if c := args.Get(0); c != nil {
		return c.(*models.Case), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockCaseRepository) Upsert(ctx context.Context, c *models.Case) error {
	return m.Called(ctx, c).Error(0)
}

func TestSeedStopsOnError(t *testing.T) {
	repo := new(mockCaseRepository)
	boom := errors.New("disk full")
	repo.On("Upsert", mock.Anything, mock.MatchedBy(func(c *models.Case) bool { return c.ID == "a" })).Return(nil).Once()
	repo.On("Upsert", mock.Anything, mock.MatchedBy(func(c *models.Case) bool { return c.ID == "b" })).Return(boom).Once()

	n, err := Seed(context.Background(), repo, []models.Case{{ID: "a"}, {ID: "b"}, {ID: "c"}})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, n)
	repo.AssertExpectations(t)
}
