package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/CaioWing/apkharbor/internal/domain"
)

// TrackAssigner pushes a single release to a track within an edit.
type TrackAssigner struct {
	client domain.PublisherClient
	log    *slog.Logger
}

func NewTrackAssigner(client domain.PublisherClient, log *slog.Logger) *TrackAssigner {
	return &TrackAssigner{client: client, log: log}
}

// Assign replaces the release list of track with descriptor, after applying
// fraction to it. It returns the release as confirmed by the service.
func (a *TrackAssigner) Assign(
	ctx context.Context,
	session *domain.EditSession,
	track domain.Track,
	fraction *float64,
	descriptor domain.ReleaseDescriptor,
) (*domain.ReleaseDescriptor, error) {
	if len(descriptor.VersionCodes) == 0 {
		return nil, fmt.Errorf("%w: a release needs at least one version code", domain.ErrInvalidInput)
	}
	if fraction != nil && (*fraction < 0 || *fraction > 1) {
		return nil, fmt.Errorf("%w: rollout fraction %v is outside [0, 1]", domain.ErrInvalidInput, *fraction)
	}

	release := descriptor.WithRollout(fraction)
	a.log.Info("assigning release to track",
		"app_id", session.ApplicationID,
		"track", track,
		"version_codes", release.VersionCodes,
		"status", release.Status,
	)

	confirmed, err := a.client.UpdateTrack(ctx, session, track, release)
	if err != nil {
		return nil, fmt.Errorf("update track %s: %w", track, err)
	}

	if confirmed.RolloutFraction != nil {
		a.log.Info("track updated", "track", track, "status", confirmed.Status, "fraction", *confirmed.RolloutFraction)
	} else {
		a.log.Info("track updated", "track", track, "status", confirmed.Status)
	}
	return confirmed, nil
}
