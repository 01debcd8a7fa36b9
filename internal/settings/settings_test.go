package settings

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"edistrict/certificate-portal/portal-backend/pkg/workflows"
)

// MockRepository is a mock implementation of the Repository interface
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Get(ctx context.Context) (*WorkflowSettings, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*WorkflowSettings), args.Error(1)
}

func (m *MockRepository) Upsert(ctx context.Context, settings *WorkflowSettings) error {
	args := m.Called(ctx, settings)
	return args.Error(0)
}

func TestActiveTrackFallsBackToDefault(t *testing.T) {
	mockRepo := new(MockRepository)
	mockRepo.On("Get", mock.Anything).Return(nil, nil).Once()

	svc := NewService(mockRepo, workflows.TrackStandard, zap.NewNop())

	assert.Equal(t, workflows.TrackStandard, svc.ActiveTrack(context.Background()))
	// Second call served from the cache.
	assert.Equal(t, workflows.TrackStandard, svc.ActiveTrack(context.Background()))
	mockRepo.AssertExpectations(t)
}

func TestActiveTrackPrefersStoredValue(t *testing.T) {
	mockRepo := new(MockRepository)
	mockRepo.On("Get", mock.Anything).Return(&WorkflowSettings{ActiveTrack: workflows.TrackTiered}, nil).Once()

	svc := NewService(mockRepo, workflows.TrackStandard, zap.NewNop())

	assert.Equal(t, workflows.TrackTiered, svc.ActiveTrack(context.Background()))
}

func TestActiveTrackSurvivesStoreFailure(t *testing.T) {
	mockRepo := new(MockRepository)
	mockRepo.On("Get", mock.Anything).Return(nil, errors.New("connection refused"))

	svc := NewService(mockRepo, workflows.TrackStandard, zap.NewNop())

	assert.Equal(t, workflows.TrackStandard, svc.ActiveTrack(context.Background()))
}

func TestSetActiveTrackRefreshesCache(t *testing.T) {
	mockRepo := new(MockRepository)
	mockRepo.On("Get", mock.Anything).Return(nil, nil).Once()
	mockRepo.On("Upsert", mock.Anything, mock.AnythingOfType("*settings.WorkflowSettings")).Return(nil)

	svc := NewService(mockRepo, workflows.TrackStandard, zap.NewNop())
	require.Equal(t, workflows.TrackStandard, svc.ActiveTrack(context.Background()))

	admin := uuid.New()
	stored, err := svc.SetActiveTrack(context.Background(), workflows.TrackTiered, admin)
	require.NoError(t, err)
	assert.Equal(t, workflows.TrackTiered, stored.ActiveTrack)
	assert.Equal(t, admin, stored.UpdatedBy)

	// The cache now serves the new track without another repository read.
	assert.Equal(t, workflows.TrackTiered, svc.ActiveTrack(context.Background()))
	mockRepo.AssertExpectations(t)
}
