package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"mystery_web/internal/models"
	"mystery_web/internal/repository"
	"mystery_web/internal/repository/memory"
)

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

type recordingPublisher struct {
	events []SessionEvent
}

func (p *recordingPublisher) Publish(ev SessionEvent) SessionEvent {
	ev.Seq = uint64(len(p.events) + 1)
	p.events = append(p.events, ev)
	return ev
}

func TestLedger_CaseMissing(t *testing.T) {
	cases := new(mockCaseRepository)
	cases.On("FindByID", mock.Anything, "gone").Return(nil, repository.ErrNotFound)
	pub := &recordingPublisher{}
	ledger := NewClueDiscoveryLedger(memory.NewRepositories().Discovery, cases, pub)

	_, _, err := ledger.Discover(context.Background(), &models.Room{ID: "r", CaseID: "gone"}, 0, "u")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, pub.events)
	cases.AssertExpectations(t)
}

func TestLedger_ContentStoreFailure(t *testing.T) {
	cases := new(mockCaseRepository)
	boom := errors.New("content store offline")
	cases.On("FindByID", mock.Anything, "c").Return(nil, boom)
	ledger := NewClueDiscoveryLedger(memory.NewRepositories().Discovery, cases, &recordingPublisher{})

	_, _, err := ledger.Discover(context.Background(), &models.Room{ID: "r", CaseID: "c"}, 0, "u")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, CodeInternal, ErrorCode(err))
}

func TestLedger_ListDiscoveredSorted(t *testing.T) {
	cases := new(mockCaseRepository)
	cases.On("FindByID", mock.Anything, "gallery").Return(testCase(), nil)
	pub := &recordingPublisher{}
	ledger := NewClueDiscoveryLedger(memory.NewRepositories().Discovery, cases, pub)
	room := &models.Room{ID: "r", CaseID: "gallery"}

	for _, idx := range []int{2, 0, 2} {
		_, _, err := ledger.Discover(context.Background(), room, idx, "u")
		require.NoError(t, err)
	}
	indices, err := ledger.ListDiscovered(context.Background(), "r")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2}, indices)
	assert.Len(t, pub.events, 2)

	// 案件被改短時略過不存在的線索
	short := testCase()
	short.Clues = short.Clues[:1]
	records, err := ledger.Records(context.Background(), room, short)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 0, records[0].ClueIndex)
}
