package team

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/teamadmin/pkg/aggregate"
	"github.com/Sternrassler/teamadmin/pkg/cache"
	"github.com/Sternrassler/teamadmin/pkg/logging"
	"github.com/Sternrassler/teamadmin/pkg/pagination"
	"github.com/Sternrassler/teamadmin/pkg/progress"
)

// ErrMemberNotFound is returned by MemberByEmail when no member matches.
var ErrMemberNotFound = errors.New("member not found")

// ServiceConfig tunes the listings run by a Service.
type ServiceConfig struct {
	// PageLimit is the page size requested from list endpoints.
	PageLimit int

	// Concurrency is the number of parallel metadata calls per page.
	Concurrency int

	// CallTimeout bounds every page fetch and metadata call.
	CallTimeout time.Duration

	// MetadataTTL is how long Paper metadata stays cached. 0 disables writes.
	MetadataTTL time.Duration

	// Progress controls tick coalescing.
	Progress progress.Config
}

// DefaultServiceConfig returns the configuration used by the CLI.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		PageLimit:   DefaultPageLimit,
		Concurrency: 4,
		CallTimeout: 30 * time.Second,
		MetadataTTL: time.Hour,
		Progress:    progress.Config{Every: 25, Interval: 250 * time.Millisecond},
	}
}

// Service runs the team administration operations.
type Service struct {
	api    API
	cache  *cache.Manager
	config ServiceConfig
	logger zerolog.Logger
}

// NewService creates a service. mc may be nil to disable metadata caching.
func NewService(api API, mc *cache.Manager, cfg ServiceConfig) *Service {
	if cfg.PageLimit <= 0 {
		cfg.PageLimit = DefaultPageLimit
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Service{
		api:    api,
		cache:  mc,
		config: cfg,
		logger: logging.NewLogger(logging.ComponentTeam),
	}
}

func (s *Service) aggregateConfig(name string) aggregate.Config {
	cfg := aggregate.DefaultConfig(name)
	cfg.CallTimeout = s.config.CallTimeout
	cfg.Progress = s.config.Progress
	return cfg
}

// ListMembers lists active and suspended members. With emails, only those
// members are kept.
func (s *Service) ListMembers(ctx context.Context, sink progress.Sink, emails ...string) (*aggregate.Result[Member], error) {
	keep := WithEmails(emails...)
	agg := aggregate.New[Member](&MemberSource{API: s.api, Limit: s.config.PageLimit}, s.aggregateConfig("members")).
		WithFilter(func(m Member) bool { return ActiveOrSuspended(m) && keep(m) })
	return agg.Run(ctx, sink)
}

// MemberByEmail looks up a member, removed ones included, by email
// (case-insensitive).
func (s *Service) MemberByEmail(ctx context.Context, email string) (Member, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return Member{}, fmt.Errorf("%w: empty email", ErrMemberNotFound)
	}

	source := &MemberSource{API: s.api, Limit: s.config.PageLimit, IncludeRemoved: true}
	members, pages, err := pagination.Collect[Member](ctx, source, pagination.Config{Timeout: s.config.CallTimeout})
	if err != nil {
		return Member{}, err
	}
	for _, m := range members {
		if strings.EqualFold(m.Email, email) {
			s.logger.Debug().Str("email", m.Email).Str("team_member_id", m.TeamMemberID).Int("pages", pages).Msg("Member resolved")
			return m, nil
		}
	}
	return Member{}, fmt.Errorf("%w: %s", ErrMemberNotFound, email)
}

// ListPaperDocs lists the Paper documents of every active or suspended member.
// Member discovery and document listing report as two runs on sink. With
// withMetadata, every document is enriched with its metadata; documents whose
// metadata cannot be fetched are dropped and reported as soft errors.
func (s *Service) ListPaperDocs(ctx context.Context, sink progress.Sink, withMetadata bool, emails ...string) (*aggregate.Result[PaperDoc], error) {
	owners, err := s.ListMembers(ctx, sink, emails...)
	if err != nil {
		return nil, err
	}
	s.logger.Debug().Int("owners", len(owners.Items)).Msg("Listing Paper documents")

	cfg := s.aggregateConfig("paper_docs")
	cfg.TickMessage = func(n int) string { return progress.MessageProcessing }
	if withMetadata {
		cfg.Concurrency = s.config.Concurrency
	}
	agg := aggregate.New(PaperDocsOf(s.api, owners.Items, s.config.PageLimit), cfg)
	if withMetadata {
		agg.WithEnricher(MetadataEnricher(s.api, s.cache, s.config.MetadataTTL))
	}
	return agg.Run(ctx, sink)
}

// AuditEvents lists audit events matching q. With actors, only events by
// those emails are kept.
func (s *Service) AuditEvents(ctx context.Context, sink progress.Sink, q EventQuery, actors ...string) (*aggregate.Result[AuditEvent], error) {
	if q.Limit <= 0 {
		q.Limit = s.config.PageLimit
	}
	cfg := s.aggregateConfig("audit_events")
	cfg.TickMessage = func(n int) string { return progress.MessageProcessing }
	agg := aggregate.New[AuditEvent](&AuditEventSource{API: s.api, Query: q}, cfg).
		WithFilter(ByActors(actors...))
	return agg.Run(ctx, sink)
}

// ListFolder lists a member's folder recursively.
func (s *Service) ListFolder(ctx context.Context, sink progress.Sink, memberID, path string) (*aggregate.Result[FolderEntry], error) {
	cfg := s.aggregateConfig("folder_entries")
	cfg.TickMessage = func(n int) string { return progress.MessageProcessing }
	agg := aggregate.New[FolderEntry](&FolderSource{API: s.api, MemberID: memberID, Path: path}, cfg)
	return agg.Run(ctx, sink)
}

// DumpFile downloads one member file into outDir.
func (s *Service) DumpFile(ctx context.Context, req DumpRequest, outDir string) (string, int64, error) {
	local, n, err := DumpFile(ctx, s.api, req, outDir)
	if err != nil {
		s.logger.Error().Err(err).Str("member_id", req.MemberID).Str("path", req.Path).Msg("Dump failed")
		return "", n, err
	}
	s.logger.Info().Str("member_id", req.MemberID).Str("file", local).Int64("bytes", n).Msg("File dumped")
	return local, n, nil
}

// AddMembers provisions members and logs every per-member outcome.
func (s *Service) AddMembers(ctx context.Context, members []NewMember) ([]AddResult, error) {
	results, err := AddMembers(ctx, s.api, members)
	if err != nil {
		s.logger.Error().Err(err).Int("members", len(members)).Msg("Provisioning failed")
		return nil, err
	}
	for _, r := range results {
		ev := s.logger.Info()
		if !r.OK() {
			ev = s.logger.Warn()
		}
		ev.Str("email", r.Email).Str("status", r.Status).Msg("Provisioning result")
	}
	return results, nil
}

// CreateTeamFolder creates a team folder.
func (s *Service) CreateTeamFolder(ctx context.Context, name string) (TeamFolder, error) {
	f, err := CreateTeamFolder(ctx, s.api, name)
	return s.logFolder("Team folder created", f, err)
}

// SetTeamFolderStatus activates or archives a team folder.
func (s *Service) SetTeamFolderStatus(ctx context.Context, folderID string, active bool) (TeamFolder, error) {
	f, err := SetTeamFolderStatus(ctx, s.api, folderID, active)
	return s.logFolder("Team folder status updated", f, err)
}

// SetTeamFolderSync enables or disables default sync of a team folder.
func (s *Service) SetTeamFolderSync(ctx context.Context, folderID string, enabled bool) (TeamFolder, error) {
	f, err := SetTeamFolderSync(ctx, s.api, folderID, enabled)
	return s.logFolder("Team folder sync updated", f, err)
}

func (s *Service) logFolder(msg string, f TeamFolder, err error) (TeamFolder, error) {
	if err != nil {
		s.logger.Error().Err(err).Msg("Team folder operation failed")
		return TeamFolder{}, err
	}
	s.logger.Info().Str("team_folder_id", f.ID).Str("name", f.Name).Str("status", f.Status).Msg(msg)
	return f, nil
}
