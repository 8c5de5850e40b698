package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/bastionhq/bastionctl/internal/config"
	"github.com/bastionhq/bastionctl/internal/loggy"
	"github.com/bastionhq/bastionctl/internal/ulid"
	"github.com/bastionhq/bastionctl/internal/utils"
)

// Service provides profile management operations and resolves the hub
// connection for commands: the active profile supplies the base URL and
// session token, with the environment configuration as fallback.
type Service struct {
	repo   Repository
	cfg    *config.Config
	logger *loggy.Logger
}

// NewService creates a new profile service
func NewService(db *sql.DB, cfg *config.Config, logger *loggy.Logger) *Service {
	repo := NewSQLRepository(db, logger)

	return &Service{
		repo:   repo,
		cfg:    cfg,
		logger: logger,
	}
}

// NewServiceWithRepository creates a service with a custom repository implementation (for testing)
func NewServiceWithRepository(repo Repository, cfg *config.Config, logger *loggy.Logger) *Service {
	return &Service{
		repo:   repo,
		cfg:    cfg,
		logger: logger,
	}
}

// AddProfile creates a new profile. When name is empty a memorable name is
// generated. The first profile ever added becomes the active one.
func (s *Service) AddProfile(ctx context.Context, name, hubURL, apiToken string) (*Profile, error) {
	if hubURL == "" {
		return nil, fmt.Errorf("hub URL is required")
	}

	if name == "" {
		name = utils.GenerateProfileName()
		s.logger.Debug("Generated profile name", "name", name)
	}

	existing, err := s.repo.ListProfiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing profiles: %w", err)
	}

	profile := New(name, hubURL, apiToken)
	if err := s.repo.CreateProfile(ctx, profile); err != nil {
		return nil, err
	}

	// The first profile becomes active right away
	if len(existing) == 0 {
		if err := s.repo.SetActiveProfile(ctx, profile.ID); err != nil {
			return nil, fmt.Errorf("activating first profile: %w", err)
		}
		profile.Active = true
	}

	return profile, nil
}

// ListProfiles returns all saved profiles
func (s *Service) ListProfiles(ctx context.Context) ([]*Profile, error) {
	return s.repo.ListProfiles(ctx)
}

// ActiveProfile returns the currently active profile
func (s *Service) ActiveProfile(ctx context.Context) (*Profile, error) {
	return s.repo.GetActiveProfile(ctx)
}

// UseProfile activates the profile with the given name or ID
func (s *Service) UseProfile(ctx context.Context, nameOrID string) (*Profile, error) {
	profile, err := s.resolveProfile(ctx, nameOrID)
	if err != nil {
		return nil, err
	}

	if err := s.repo.SetActiveProfile(ctx, profile.ID); err != nil {
		return nil, err
	}
	profile.Active = true

	return profile, nil
}

// RemoveProfile deletes the profile with the given name or ID
func (s *Service) RemoveProfile(ctx context.Context, nameOrID string) (*Profile, error) {
	profile, err := s.resolveProfile(ctx, nameOrID)
	if err != nil {
		return nil, err
	}

	if err := s.repo.DeleteProfile(ctx, profile.ID); err != nil {
		return nil, err
	}

	if profile.Active {
		s.logger.Warn("Removed the active profile, no profile is active now", "name", profile.Name)
	}

	return profile, nil
}

// SessionToken returns the API token for hub requests: the active profile's
// token when one is set, the environment token otherwise. It implements
// hub.SessionProvider.
func (s *Service) SessionToken(ctx context.Context) (string, error) {
	profile, err := s.repo.GetActiveProfile(ctx)
	if err != nil && !errors.Is(err, ErrProfileNotFound) {
		return "", fmt.Errorf("resolving active profile: %w", err)
	}

	if profile != nil && profile.APIToken != "" {
		return profile.APIToken, nil
	}

	if s.cfg.Hub.Token != "" {
		return s.cfg.Hub.Token, nil
	}

	return "", fmt.Errorf("no hub token configured: set BASTION_HUB_TOKEN or add a profile")
}

// HubBaseURL returns the hub base URL: the active profile's URL when one
// exists, the environment URL otherwise.
func (s *Service) HubBaseURL(ctx context.Context) (string, error) {
	profile, err := s.repo.GetActiveProfile(ctx)
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			return s.cfg.Hub.BaseURL, nil
		}
		return "", fmt.Errorf("resolving active profile: %w", err)
	}

	if profile.HubURL != "" {
		return profile.HubURL, nil
	}

	return s.cfg.Hub.BaseURL, nil
}

// resolveProfile finds a profile by name first, then by ID
func (s *Service) resolveProfile(ctx context.Context, nameOrID string) (*Profile, error) {
	profile, err := s.repo.GetProfileByName(ctx, nameOrID)
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, ErrProfileNotFound) {
		return nil, err
	}

	id, parseErr := ulid.Parse(nameOrID)
	if parseErr != nil {
		return nil, ErrProfileNotFound
	}

	return s.repo.GetProfile(ctx, id)
}
