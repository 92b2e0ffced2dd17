package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/CaioWing/apkharbor/internal/domain"
)

// SessionManager opens and commits edit sessions. Sessions are single-use:
// after a commit, state has to be inspected through a new session.
type SessionManager struct {
	client domain.PublisherClient
	log    *slog.Logger
}

func NewSessionManager(client domain.PublisherClient, log *slog.Logger) *SessionManager {
	return &SessionManager{client: client, log: log}
}

func (m *SessionManager) Open(ctx context.Context, applicationID string) (*domain.EditSession, error) {
	if applicationID == "" {
		return nil, fmt.Errorf("%w: application id is required", domain.ErrInvalidInput)
	}

	session, err := m.client.CreateEdit(ctx, applicationID)
	if err != nil {
		return nil, fmt.Errorf("open edit for %s: %w", applicationID, err)
	}

	m.log.Info("edit opened", "app_id", applicationID, "edit_id", session.EditID)
	return session, nil
}

func (m *SessionManager) Commit(ctx context.Context, session *domain.EditSession) error {
	if err := m.client.CommitEdit(ctx, session); err != nil {
		return fmt.Errorf("commit edit %s: %w", session.EditID, err)
	}
	m.log.Info("edit committed", "app_id", session.ApplicationID, "edit_id", session.EditID)
	return nil
}

// CommitWithRecovery commits session. When the commit gets no definitive
// answer it opens a fresh session and reports success if every one of
// versionCodes is now visible remotely. The fresh session is never
// committed. recovered is true only when success came from that check.
func (m *SessionManager) CommitWithRecovery(ctx context.Context, session *domain.EditSession, versionCodes []int64) (bool, error) {
	err := m.Commit(ctx, session)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, domain.ErrAmbiguousResponse) {
		return false, err
	}

	m.log.Warn("commit outcome unknown, checking whether it was applied",
		"app_id", session.ApplicationID, "edit_id", session.EditID, "err", err)

	check, openErr := m.Open(ctx, session.ApplicationID)
	if openErr != nil {
		return false, fmt.Errorf("%w; verifying commit: %w", err, openErr)
	}

	present, listErr := m.remoteVersionCodes(ctx, check)
	if listErr != nil {
		return false, fmt.Errorf("%w; verifying commit: %w", err, listErr)
	}

	var missing []int64
	for _, vc := range versionCodes {
		if !present[vc] {
			missing = append(missing, vc)
		}
	}
	if len(missing) > 0 {
		return false, fmt.Errorf("%w; version codes %v are not present after the commit", err, missing)
	}

	m.log.Info("commit was applied despite the error",
		"app_id", session.ApplicationID, "version_codes", versionCodes)
	return true, nil
}

// remoteVersionCodes returns the version codes of every APK and bundle
// visible in session.
func (m *SessionManager) remoteVersionCodes(ctx context.Context, session *domain.EditSession) (map[int64]bool, error) {
	apks, err := m.client.ListAPKs(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("list apks: %w", err)
	}
	bundles, err := m.client.ListBundles(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("list bundles: %w", err)
	}

	codes := make(map[int64]bool, len(apks)+len(bundles))
	for _, b := range apks {
		codes[b.VersionCode] = true
	}
	for _, b := range bundles {
		codes[b.VersionCode] = true
	}
	return codes, nil
}
