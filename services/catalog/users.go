package catalog

import (
	"context"
)

// UserAvatar returns the avatar url stored for a user, "" when none
// has been set.
func (s *Service) UserAvatar(ctx context.Context, userID string) (string, error) {
	ctx, span := tracer.Start(ctx, "UserAvatar")
	defer span.End()

	avatar, err := s.cache.HGet(ctx, avatarHashKey, userID)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	return avatar, nil
}

// SetUserAvatar stores the avatar url for a user, replacing any
// previous value.
func (s *Service) SetUserAvatar(ctx context.Context, userID, avatarURL string) error {
	ctx, span := tracer.Start(ctx, "SetUserAvatar")
	defer span.End()

	if err := s.cache.HSet(ctx, avatarHashKey, userID, avatarURL); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}
