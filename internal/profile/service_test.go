package profile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/bastionhq/bastionctl/internal/config"
	"github.com/bastionhq/bastionctl/internal/loggy"
	"github.com/bastionhq/bastionctl/internal/ulid"
)

// MockRepository is a mock implementation of the Repository interface
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) CreateProfile(ctx context.Context, profile *Profile) error {
	args := m.Called(ctx, profile)
	return args.Error(0)
}

func (m *MockRepository) GetProfile(ctx context.Context, id ulid.ULID) (*Profile, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Profile), args.Error(1)
}

func (m *MockRepository) GetProfileByName(ctx context.Context, name string) (*Profile, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Profile), args.Error(1)
}

func (m *MockRepository) GetActiveProfile(ctx context.Context) (*Profile, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Profile), args.Error(1)
}

func (m *MockRepository) ListProfiles(ctx context.Context) ([]*Profile, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Profile), args.Error(1)
}

func (m *MockRepository) SetActiveProfile(ctx context.Context, id ulid.ULID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockRepository) DeleteProfile(ctx context.Context, id ulid.ULID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func TestProfileService(t *testing.T) {
	logger := loggy.NewNoopLogger()

	sampleID := ulid.MustParse("prof-01HGW2N0000000000000000000")
	sample := func() *Profile {
		return &Profile{
			ID:       sampleID,
			Name:     "staging",
			HubURL:   "https://hub.staging.example.com",
			APIToken: "bhs_secret",
		}
	}

	newConfig := func() *config.Config {
		cfg := config.New()
		cfg.Hub.BaseURL = "http://localhost:8400"
		return cfg
	}

	t.Run("AddProfileFirstBecomesActive", func(t *testing.T) {
		mockRepo := new(MockRepository)
		service := NewServiceWithRepository(mockRepo, newConfig(), logger)

		mockRepo.On("ListProfiles", mock.Anything).Return([]*Profile{}, nil).Once()
		mockRepo.On("CreateProfile", mock.Anything, mock.AnythingOfType("*profile.Profile")).Return(nil).Once()
		mockRepo.On("SetActiveProfile", mock.Anything, mock.AnythingOfType("ulid.ULID")).Return(nil).Once()

		profile, err := service.AddProfile(context.Background(), "staging", "https://hub.staging.example.com", "bhs_secret")
		require.NoError(t, err)
		assert.Equal(t, "staging", profile.Name)
		assert.True(t, profile.Active, "first profile should become active")

		mockRepo.AssertExpectations(t)
	})

	t.Run("AddProfileSecondStaysInactive", func(t *testing.T) {
		mockRepo := new(MockRepository)
		service := NewServiceWithRepository(mockRepo, newConfig(), logger)

		mockRepo.On("ListProfiles", mock.Anything).Return([]*Profile{sample()}, nil).Once()
		mockRepo.On("CreateProfile", mock.Anything, mock.AnythingOfType("*profile.Profile")).Return(nil).Once()

		profile, err := service.AddProfile(context.Background(), "production", "https://hub.example.com", "bhs_other")
		require.NoError(t, err)
		assert.False(t, profile.Active)

		mockRepo.AssertNotCalled(t, "SetActiveProfile", mock.Anything, mock.Anything)
		mockRepo.AssertExpectations(t)
	})

	t.Run("AddProfileGeneratesName", func(t *testing.T) {
		mockRepo := new(MockRepository)
		service := NewServiceWithRepository(mockRepo, newConfig(), logger)

		mockRepo.On("ListProfiles", mock.Anything).Return([]*Profile{sample()}, nil).Once()
		mockRepo.On("CreateProfile", mock.Anything, mock.AnythingOfType("*profile.Profile")).Return(nil).Once()

		profile, err := service.AddProfile(context.Background(), "", "https://hub.example.com", "bhs_other")
		require.NoError(t, err)
		assert.NotEmpty(t, profile.Name, "a name should be generated when omitted")

		mockRepo.AssertExpectations(t)
	})

	t.Run("AddProfileRequiresHubURL", func(t *testing.T) {
		mockRepo := new(MockRepository)
		service := NewServiceWithRepository(mockRepo, newConfig(), logger)

		_, err := service.AddProfile(context.Background(), "staging", "", "bhs_secret")
		assert.Error(t, err)

		mockRepo.AssertNotCalled(t, "CreateProfile", mock.Anything, mock.Anything)
	})

	t.Run("UseProfileByName", func(t *testing.T) {
		mockRepo := new(MockRepository)
		service := NewServiceWithRepository(mockRepo, newConfig(), logger)

		mockRepo.On("GetProfileByName", mock.Anything, "staging").Return(sample(), nil).Once()
		mockRepo.On("SetActiveProfile", mock.Anything, sampleID).Return(nil).Once()

		profile, err := service.UseProfile(context.Background(), "staging")
		require.NoError(t, err)
		assert.True(t, profile.Active)

		mockRepo.AssertExpectations(t)
	})

	t.Run("UseProfileByID", func(t *testing.T) {
		mockRepo := new(MockRepository)
		service := NewServiceWithRepository(mockRepo, newConfig(), logger)

		mockRepo.On("GetProfileByName", mock.Anything, sampleID.String()).Return(nil, ErrProfileNotFound).Once()
		mockRepo.On("GetProfile", mock.Anything, sampleID).Return(sample(), nil).Once()
		mockRepo.On("SetActiveProfile", mock.Anything, sampleID).Return(nil).Once()

		profile, err := service.UseProfile(context.Background(), sampleID.String())
		require.NoError(t, err)
		assert.Equal(t, sampleID, profile.ID)

		mockRepo.AssertExpectations(t)
	})

	t.Run("UseProfileUnknown", func(t *testing.T) {
		mockRepo := new(MockRepository)
		service := NewServiceWithRepository(mockRepo, newConfig(), logger)

		mockRepo.On("GetProfileByName", mock.Anything, "nope").Return(nil, ErrProfileNotFound).Once()

		_, err := service.UseProfile(context.Background(), "nope")
		assert.ErrorIs(t, err, ErrProfileNotFound)

		mockRepo.AssertNotCalled(t, "GetProfile", mock.Anything, mock.Anything)
		mockRepo.AssertNotCalled(t, "SetActiveProfile", mock.Anything, mock.Anything)
	})

	t.Run("RemoveProfile", func(t *testing.T) {
		mockRepo := new(MockRepository)
		service := NewServiceWithRepository(mockRepo, newConfig(), logger)

		mockRepo.On("GetProfileByName", mock.Anything, "staging").Return(sample(), nil).Once()
		mockRepo.On("DeleteProfile", mock.Anything, sampleID).Return(nil).Once()

		profile, err := service.RemoveProfile(context.Background(), "staging")
		require.NoError(t, err)
		assert.Equal(t, "staging", profile.Name)

		mockRepo.AssertExpectations(t)
	})

	t.Run("SessionTokenFromActiveProfile", func(t *testing.T) {
		mockRepo := new(MockRepository)
		service := NewServiceWithRepository(mockRepo, newConfig(), logger)

		mockRepo.On("GetActiveProfile", mock.Anything).Return(sample(), nil).Once()

		token, err := service.SessionToken(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "bhs_secret", token)
	})

	t.Run("SessionTokenFallsBackToEnv", func(t *testing.T) {
		mockRepo := new(MockRepository)
		cfg := newConfig()
		cfg.Hub.Token = "bhs_env_token"
		service := NewServiceWithRepository(mockRepo, cfg, logger)

		mockRepo.On("GetActiveProfile", mock.Anything).Return(nil, ErrProfileNotFound).Once()

		token, err := service.SessionToken(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "bhs_env_token", token)
	})

	t.Run("SessionTokenMissing", func(t *testing.T) {
		mockRepo := new(MockRepository)
		service := NewServiceWithRepository(mockRepo, newConfig(), logger)

		mockRepo.On("GetActiveProfile", mock.Anything).Return(nil, ErrProfileNotFound).Once()

		_, err := service.SessionToken(context.Background())
		assert.Error(t, err)
	})

	t.Run("HubBaseURLFromProfile", func(t *testing.T) {
		mockRepo := new(MockRepository)
		service := NewServiceWithRepository(mockRepo, newConfig(), logger)

		mockRepo.On("GetActiveProfile", mock.Anything).Return(sample(), nil).Once()

		url, err := service.HubBaseURL(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "https://hub.staging.example.com", url)
	})

	t.Run("HubBaseURLFallback", func(t *testing.T) {
		mockRepo := new(MockRepository)
		service := NewServiceWithRepository(mockRepo, newConfig(), logger)

		mockRepo.On("GetActiveProfile", mock.Anything).Return(nil, ErrProfileNotFound).Once()

		url, err := service.HubBaseURL(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "http://localhost:8400", url)
	})
}
