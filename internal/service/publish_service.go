package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/CaioWing/apkharbor/internal/domain"
	"github.com/CaioWing/apkharbor/internal/expansion"
	"github.com/CaioWing/apkharbor/internal/workspace"
)

const (
	maxReleaseNotesLength = 500
	maxInAppPriority      = 5
)

// MetadataReader extracts build metadata from a binary on disk.
type MetadataReader interface {
	Read(path string) (domain.ArtifactMetadata, error)
}

// RunNotifier is told about every finished run.
type RunNotifier interface {
	Notify(ctx context.Context, run *domain.PublishRun) error
}

// PublishService validates publish and assign requests, discovers files,
// and drives the Uploader. Run history, audit and notifiers are optional.
type PublishService struct {
	client    domain.PublisherClient
	uploader  *Uploader
	sessions  *SessionManager
	tracks    *TrackAssigner
	finder    workspace.Finder
	reader    MetadataReader
	runs      domain.RunRepository
	audit     *AuditService
	notifiers []RunNotifier
	locks     *appLocks
	log       *slog.Logger
}

type PublishServiceOption func(*PublishService)

func WithRunRepository(runs domain.RunRepository) PublishServiceOption {
	return func(s *PublishService) { s.runs = runs }
}

func WithAudit(audit *AuditService) PublishServiceOption {
	return func(s *PublishService) { s.audit = audit }
}

func WithNotifier(n RunNotifier) PublishServiceOption {
	return func(s *PublishService) { s.notifiers = append(s.notifiers, n) }
}

func NewPublishService(
	client domain.PublisherClient,
	finder workspace.Finder,
	reader MetadataReader,
	log *slog.Logger,
	opts ...PublishServiceOption,
) *PublishService {
	s := &PublishService{
		client:   client,
		uploader: NewUploader(client, log),
		sessions: NewSessionManager(client, log),
		tracks:   NewTrackAssigner(client, log),
		finder:   finder,
		reader:   reader,
		locks:    newAppLocks(),
		log:      log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Actor identifies who started a run.
type Actor struct {
	Name      string
	Type      string // management, ci, system
	IPAddress string
}

// ReleaseInput is the part of a request that ends up on the track.
type ReleaseInput struct {
	Track string
	// RolloutPercentage in [0, 100]; nil means a full rollout.
	RolloutPercentage   *float64
	ReleaseName         string
	ReleaseNotes        map[string]string
	InAppUpdatePriority *int64
}

type PublishInput struct {
	Workspace         string
	FilePatterns      string
	MappingPatterns   string
	ExpansionPatterns string
	ReuseExpansion    bool
	Release           ReleaseInput
	Actor             Actor
	// EphemeralWorkspace marks Workspace as owned by the run, so cleanup
	// may delete it once the run is old enough.
	EphemeralWorkspace bool
}

type AssignInput struct {
	ApplicationID string
	VersionCodes  []int64
	Release       ReleaseInput
	Actor         Actor
}

// Publish uploads the binaries matched by input and assigns them to the
// requested track. Configuration and discovery problems are reported
// before any remote call.
func (s *PublishService) Publish(ctx context.Context, input PublishInput) (*domain.PublishRun, error) {
	track, fraction, err := s.validatePublish(input)
	if err != nil {
		return nil, err
	}

	req, err := s.prepare(input)
	if err != nil {
		return nil, err
	}
	req.Track = track
	req.RolloutFraction = fraction
	req.ReleaseName = input.Release.ReleaseName
	req.ReleaseNotes = input.Release.ReleaseNotes
	req.InAppUpdatePriority = input.Release.InAppUpdatePriority

	if !s.locks.tryLock(req.ApplicationID) {
		return nil, fmt.Errorf("%w: a run for %s is already in progress", domain.ErrConflict, req.ApplicationID)
	}
	defer s.locks.unlock(req.ApplicationID)

	run := &domain.PublishRun{
		ID:              uuid.New(),
		Kind:            domain.RunKindPublish,
		ApplicationID:   req.ApplicationID,
		Track:           track,
		RolloutFraction: fraction,
		VersionCodes:    candidateVersionCodes(req.Candidates),
		Status:          domain.RunStatusRunning,
		Actor:           input.Actor.Name,
	}
	if input.EphemeralWorkspace {
		run.WorkspacePath = input.Workspace
	}
	s.startRun(ctx, run)

	files := workspaceFiles{finder: s.finder, baseDir: input.Workspace}
	result, err := s.uploader.Upload(ctx, files, req)
	if result.Session != nil {
		run.EditID = result.Session.EditID
	}
	if len(result.VersionCodes) > 0 {
		run.VersionCodes = result.VersionCodes
	}
	run.Recovered = result.Recovered

	s.finishRun(ctx, run, err)
	s.recordAudit(ctx, input.Actor, AuditActionPublish, run)

	if err != nil {
		s.log.Error("publish failed", "app_id", run.ApplicationID, "state", result.State, "err", err)
		return run, err
	}
	s.log.Info("publish succeeded",
		"app_id", run.ApplicationID,
		"track", run.Track,
		"version_codes", run.VersionCodes,
		"recovered", run.Recovered,
	)
	return run, nil
}

// Assign moves version codes that were uploaded earlier to a track,
// without uploading anything.
func (s *PublishService) Assign(ctx context.Context, input AssignInput) (*domain.PublishRun, error) {
	var merr *multierror.Error
	if input.ApplicationID == "" {
		merr = multierror.Append(merr, errors.New("an application id is required"))
	}
	if len(input.VersionCodes) == 0 {
		merr = multierror.Append(merr, errors.New("at least one version code is required"))
	}
	for _, vc := range input.VersionCodes {
		if vc <= 0 {
			merr = multierror.Append(merr, fmt.Errorf("version code %d is not positive", vc))
		}
	}
	track, fraction := validateRelease(input.Release, &merr)
	if err := merr.ErrorOrNil(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrConfiguration, err)
	}

	if !s.locks.tryLock(input.ApplicationID) {
		return nil, fmt.Errorf("%w: a run for %s is already in progress", domain.ErrConflict, input.ApplicationID)
	}
	defer s.locks.unlock(input.ApplicationID)

	run := &domain.PublishRun{
		ID:              uuid.New(),
		Kind:            domain.RunKindAssign,
		ApplicationID:   input.ApplicationID,
		Track:           track,
		RolloutFraction: fraction,
		VersionCodes:    input.VersionCodes,
		Status:          domain.RunStatusRunning,
		Actor:           input.Actor.Name,
	}
	s.startRun(ctx, run)

	err := s.assign(ctx, run, input.Release)
	s.finishRun(ctx, run, err)
	s.recordAudit(ctx, input.Actor, AuditActionAssign, run)

	if err != nil {
		s.log.Error("track assignment failed", "app_id", run.ApplicationID, "track", run.Track, "err", err)
		return run, err
	}
	s.log.Info("track assigned", "app_id", run.ApplicationID, "track", run.Track, "version_codes", run.VersionCodes)
	return run, nil
}

func (s *PublishService) assign(ctx context.Context, run *domain.PublishRun, release ReleaseInput) error {
	session, err := s.sessions.Open(ctx, run.ApplicationID)
	if err != nil {
		return err
	}
	run.EditID = session.EditID

	present, err := s.sessions.remoteVersionCodes(ctx, session)
	if err != nil {
		return err
	}
	var missing []int64
	for _, vc := range run.VersionCodes {
		if !present[vc] {
			missing = append(missing, vc)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: version codes %v have not been uploaded for %s", domain.ErrDiscovery, missing, run.ApplicationID)
	}

	descriptor := domain.NewReleaseDescriptor(run.VersionCodes, nil, release.ReleaseNotes)
	descriptor.Name = release.ReleaseName
	descriptor.InAppUpdatePriority = release.InAppUpdatePriority
	if _, err := s.tracks.Assign(ctx, session, run.Track, run.RolloutFraction, descriptor); err != nil {
		return err
	}

	recovered, err := s.sessions.CommitWithRecovery(ctx, session, run.VersionCodes)
	run.Recovered = recovered
	return err
}

func (s *PublishService) GetByID(ctx context.Context, id uuid.UUID) (*domain.PublishRun, error) {
	if s.runs == nil {
		return nil, domain.ErrNotFound
	}
	return s.runs.GetByID(ctx, id)
}

func (s *PublishService) List(ctx context.Context, filter domain.RunFilter) ([]*domain.PublishRun, int, error) {
	if s.runs == nil {
		return nil, 0, nil
	}
	return s.runs.List(ctx, filter)
}

func (s *PublishService) GetStats(ctx context.Context) (*domain.RunStats, error) {
	if s.runs == nil {
		return &domain.RunStats{}, nil
	}
	return s.runs.GetStats(ctx)
}

func (s *PublishService) validatePublish(input PublishInput) (domain.Track, *float64, error) {
	var merr *multierror.Error
	if input.Workspace == "" {
		merr = multierror.Append(merr, errors.New("a workspace directory is required"))
	}
	if strings.TrimSpace(input.FilePatterns) == "" {
		merr = multierror.Append(merr, errors.New("a file pattern for the APK or AAB files is required"))
	}
	track, fraction := validateRelease(input.Release, &merr)
	if err := merr.ErrorOrNil(); err != nil {
		return "", nil, fmt.Errorf("%w: %w", domain.ErrConfiguration, err)
	}
	return track, fraction, nil
}

// validateRelease appends every problem with in to merr and returns the
// parsed track and rollout fraction.
func validateRelease(in ReleaseInput, merr **multierror.Error) (domain.Track, *float64) {
	track, err := domain.ParseTrack(in.Track)
	if err != nil {
		*merr = multierror.Append(*merr, err)
	}

	var fraction *float64
	if in.RolloutPercentage != nil {
		pct := *in.RolloutPercentage
		if pct < 0 || pct > 100 {
			*merr = multierror.Append(*merr, fmt.Errorf("rollout percentage %v is outside [0, 100]", pct))
		} else {
			fraction = domain.FractionFromPercentage(pct)
		}
	}

	if p := in.InAppUpdatePriority; p != nil && (*p < 0 || *p > maxInAppPriority) {
		*merr = multierror.Append(*merr, fmt.Errorf("in-app update priority %d is outside [0, %d]", *p, maxInAppPriority))
	}

	languages := make([]string, 0, len(in.ReleaseNotes))
	for lang := range in.ReleaseNotes {
		languages = append(languages, lang)
	}
	sort.Strings(languages)
	for _, lang := range languages {
		if strings.TrimSpace(lang) == "" {
			*merr = multierror.Append(*merr, errors.New("release notes need a language code"))
			continue
		}
		if n := len([]rune(in.ReleaseNotes[lang])); n > maxReleaseNotesLength {
			*merr = multierror.Append(*merr, fmt.Errorf("release notes for %s are %d characters long, the limit is %d", lang, n, maxReleaseNotesLength))
		}
	}

	return track, fraction
}

// prepare resolves and reads every file of the run. It makes no remote
// calls.
func (s *PublishService) prepare(input PublishInput) (UploadRequest, error) {
	paths, err := s.finder.Find(input.Workspace, input.FilePatterns)
	if err != nil {
		return UploadRequest{}, fmt.Errorf("%w: %w", domain.ErrDiscovery, err)
	}
	if len(paths) == 0 {
		return UploadRequest{}, fmt.Errorf("%w: no files matched %q in %s", domain.ErrDiscovery, input.FilePatterns, input.Workspace)
	}

	candidates := make([]*domain.UploadCandidate, 0, len(paths))
	appIDs := map[string][]string{}
	for _, p := range paths {
		meta, err := s.reader.Read(filepath.Join(input.Workspace, filepath.FromSlash(p)))
		if err != nil {
			return UploadRequest{}, fmt.Errorf("read %s: %w", p, err)
		}
		s.log.Info("found binary",
			"path", p,
			"app_id", meta.ApplicationID,
			"version_code", meta.VersionCode,
			"min_sdk", meta.MinPlatformVersion,
			"format", meta.Format,
		)
		appIDs[meta.ApplicationID] = append(appIDs[meta.ApplicationID], p)
		candidates = append(candidates, &domain.UploadCandidate{Path: p, Metadata: meta})
	}

	if len(appIDs) > 1 {
		ids := make([]string, 0, len(appIDs))
		for id := range appIDs {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		return UploadRequest{}, fmt.Errorf("%w: all files must have the same application id, found %s",
			domain.ErrDiscovery, strings.Join(ids, ", "))
	}
	applicationID := candidates[0].Metadata.ApplicationID

	if err := s.assignMappingFiles(input, candidates); err != nil {
		return UploadRequest{}, err
	}

	req := UploadRequest{
		ApplicationID:  applicationID,
		Candidates:     candidates,
		ReuseExpansion: input.ReuseExpansion,
	}

	if strings.TrimSpace(input.ExpansionPatterns) != "" {
		obbs, err := s.finder.Find(input.Workspace, input.ExpansionPatterns)
		if err != nil {
			return UploadRequest{}, fmt.Errorf("%w: %w", domain.ErrDiscovery, err)
		}
		if len(obbs) == 0 {
			return UploadRequest{}, fmt.Errorf("%w: no expansion files matched %q", domain.ErrDiscovery, input.ExpansionPatterns)
		}
		files, err := expansion.Group(obbs, applicationID, candidateVersionCodes(candidates), input.ReuseExpansion)
		if err != nil {
			return UploadRequest{}, err
		}
		req.Expansion = files
	}

	return req, nil
}

// assignMappingFiles pairs mapping files with binaries: one mapping file
// goes with every binary, otherwise the counts must match and files pair
// up in path order.
func (s *PublishService) assignMappingFiles(input PublishInput, candidates []*domain.UploadCandidate) error {
	if strings.TrimSpace(input.MappingPatterns) == "" {
		return nil
	}

	mappings, err := s.finder.Find(input.Workspace, input.MappingPatterns)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrDiscovery, err)
	}

	switch {
	case len(mappings) == 0:
		return fmt.Errorf("%w: no mapping files matched %q", domain.ErrDiscovery, input.MappingPatterns)
	case len(mappings) == 1:
		for _, c := range candidates {
			c.MappingFile = mappings[0]
		}
	case len(mappings) == len(candidates):
		sorted := append([]*domain.UploadCandidate(nil), candidates...)
		sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })
		sort.Strings(mappings)
		for i, c := range sorted {
			c.MappingFile = mappings[i]
		}
	default:
		return fmt.Errorf("%w: found %d mapping files for %d binaries; give one mapping file, or exactly one per binary",
			domain.ErrDiscovery, len(mappings), len(candidates))
	}
	return nil
}

func (s *PublishService) startRun(ctx context.Context, run *domain.PublishRun) {
	run.CreatedAt = time.Now().UTC()
	if s.runs == nil {
		return
	}
	if err := s.runs.Create(ctx, run); err != nil {
		s.log.Warn("failed to record run", "run_id", run.ID, "err", err)
	}
}

func (s *PublishService) finishRun(ctx context.Context, run *domain.PublishRun, runErr error) {
	now := time.Now().UTC()
	run.FinishedAt = &now
	run.Status = domain.RunStatusSucceeded
	if runErr != nil {
		run.Status = domain.RunStatusFailed
		run.Error = runErr.Error()
	}

	if s.runs != nil {
		if err := s.runs.Finish(ctx, run); err != nil {
			s.log.Warn("failed to update run", "run_id", run.ID, "err", err)
		}
	}

	for _, n := range s.notifiers {
		if err := n.Notify(ctx, run); err != nil {
			s.log.Warn("run notification failed", "run_id", run.ID, "err", err)
		}
	}
}

func (s *PublishService) recordAudit(ctx context.Context, actor Actor, action string, run *domain.PublishRun) {
	if s.audit == nil || actor.Type == "" {
		return
	}
	s.audit.LogRun(ctx, actor, action, run)
}

func candidateVersionCodes(candidates []*domain.UploadCandidate) []int64 {
	codes := make([]int64, 0, len(candidates))
	for _, c := range candidates {
		codes = append(codes, c.Metadata.VersionCode)
	}
	return codes
}

// workspaceFiles binds a Finder to one base directory.
type workspaceFiles struct {
	finder  workspace.Finder
	baseDir string
}

func (w workspaceFiles) Open(path string) (io.ReadCloser, error) {
	return w.finder.Open(w.baseDir, path)
}

func (w workspaceFiles) Size(path string) (int64, error) {
	return w.finder.Size(w.baseDir, path)
}
