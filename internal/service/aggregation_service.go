package service

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/iqc-intake-api/internal/dto"
	"github.com/noah-isme/iqc-intake-api/internal/models"
	appErrors "github.com/noah-isme/iqc-intake-api/pkg/errors"
)

// ScopeAll selects every department the caller may see.
const ScopeAll = "all"

const (
	summaryCachePrefix    = "tracker:dept:"
	generationCachePrefix = "tracker:gen:"
)

type validatedEventReader interface {
	ListValidated(ctx context.Context, departments []models.Department) ([]models.Event, error)
	ListRejectedBySubmitter(ctx context.Context, userID string) ([]models.Event, error)
}

type userFinder interface {
	FindByUsername(ctx context.Context, username string) (*models.User, error)
}

// AggregationConfig tunes progress computation.
type AggregationConfig struct {
	Target   int
	CacheTTL time.Duration
}

// AggregationService derives department progress and the rejected items view.
type AggregationService struct {
	events validatedEventReader
	users  userFinder
	cache  *CacheService
	logger *zap.Logger
	config AggregationConfig
}

// NewAggregationService constructs the aggregation engine. cache may be nil.
func NewAggregationService(events validatedEventReader, users userFinder, cache *CacheService, logger *zap.Logger, cfg AggregationConfig) *AggregationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Target <= 0 {
		cfg.Target = 10
	}
	return &AggregationService{events: events, users: users, cache: cache, logger: logger, config: cfg}
}

// DepartmentSummary returns progress for every department scope resolves to. The bool reports
// whether every entry was served from cache.
func (s *AggregationService) DepartmentSummary(ctx context.Context, identity models.Identity, scope string) (dto.TrackerSummary, bool, error) {
	depts, err := resolveScope(identity, scope)
	if err != nil {
		return nil, false, err
	}

	summary := make(dto.TrackerSummary, len(depts))
	generations := make(map[models.Department]int64, len(depts))
	var misses []models.Department
	for _, dept := range depts {
		gen, ok := s.cache.Generation(ctx, generationCacheKey(dept))
		if !ok {
			misses = append(misses, dept)
			continue
		}
		generations[dept] = gen
		var cached models.DepartmentProgress
		if s.cache.Get(ctx, summaryCacheKey(dept, gen), &cached) {
			summary[dept] = cached
			continue
		}
		misses = append(misses, dept)
	}
	if len(misses) == 0 {
		return summary, true, nil
	}

	computed, err := s.compute(ctx, misses)
	if err != nil {
		return nil, false, err
	}
	for dept, progress := range computed {
		summary[dept] = progress
		s.store(ctx, dept, generations, progress)
	}
	return summary, false, nil
}

// store caches progress under the generation observed before it was computed. A generation that moved
// while computing means a transition landed, so the snapshot is dropped.
func (s *AggregationService) store(ctx context.Context, dept models.Department, generations map[models.Department]int64, progress models.DepartmentProgress) {
	before, ok := generations[dept]
	if !ok {
		return
	}
	if after, ok := s.cache.Generation(ctx, generationCacheKey(dept)); !ok || after != before {
		return
	}
	s.cache.Set(ctx, summaryCacheKey(dept, before), progress, s.config.CacheTTL)
}

// DepartmentProgress returns a fresh snapshot of one department.
func (s *AggregationService) DepartmentProgress(ctx context.Context, identity models.Identity, dept models.Department) (models.DepartmentProgress, error) {
	if !dept.Valid() {
		return models.DepartmentProgress{}, appErrors.Clone(appErrors.ErrValidation, "unknown department")
	}
	if !CanViewDepartment(identity, dept) {
		return models.DepartmentProgress{}, appErrors.Clone(appErrors.ErrForbidden, "department is outside your scope")
	}
	computed, err := s.compute(ctx, []models.Department{dept})
	if err != nil {
		return models.DepartmentProgress{}, err
	}
	return computed[dept], nil
}

// RejectedForUser lists a submitter's rejected events, most recent first.
func (s *AggregationService) RejectedForUser(ctx context.Context, identity models.Identity, username string) ([]models.Event, error) {
	username = strings.TrimSpace(username)
	userID := identity.UserID
	if !strings.EqualFold(username, identity.Username) {
		if identity.Role != models.RoleIQC && identity.Role != models.RoleTeacher {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "cannot view another user's submissions")
		}
		user, err := s.users.FindByUsername(ctx, username)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
		}
		if !CanViewSubmitter(identity, user) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "user is outside your scope")
		}
		userID = user.ID
	}

	events, err := s.events.ListRejectedBySubmitter(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list rejected events")
	}
	if events == nil {
		events = []models.Event{}
	}
	return events, nil
}

// InvalidateDepartments retires cached summaries. Called synchronously after every committed transition.
// Bumping the generation hides entries that a concurrent reader computed before the commit, even when
// that reader writes them back afterwards.
func (s *AggregationService) InvalidateDepartments(ctx context.Context, depts ...models.Department) {
	if !s.cache.Enabled() || len(depts) == 0 {
		return
	}
	seen := make(map[models.Department]bool, len(depts))
	for _, dept := range depts {
		if dept == "" || seen[dept] {
			continue
		}
		seen[dept] = true
		if err := s.cache.BumpGeneration(ctx, generationCacheKey(dept)); err != nil {
			s.logger.Warn("tracker generation bump failed", zap.String("department", string(dept)), zap.Error(err))
		}
		if err := s.cache.InvalidatePattern(ctx, summaryCachePrefix+string(dept)+":*"); err != nil {
			s.logger.Warn("tracker cache invalidation failed", zap.String("department", string(dept)), zap.Error(err))
		}
	}
}

func (s *AggregationService) compute(ctx context.Context, depts []models.Department) (map[models.Department]models.DepartmentProgress, error) {
	events, err := s.events.ListValidated(ctx, depts)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load validated events")
	}
	byDept := make(map[models.Department][]models.Event, len(depts))
	for _, event := range events {
		byDept[event.Department] = append(byDept[event.Department], event)
	}
	out := make(map[models.Department]models.DepartmentProgress, len(depts))
	for _, dept := range depts {
		out[dept] = models.NewDepartmentProgress(dept, s.config.Target, byDept[dept])
	}
	return out, nil
}

// resolveScope maps the requested scope onto the departments identity may see.
func resolveScope(identity models.Identity, scope string) ([]models.Department, error) {
	scope = strings.TrimSpace(scope)
	if scope == "" || strings.EqualFold(scope, ScopeAll) {
		if identity.Role == models.RoleIQC {
			return append([]models.Department(nil), models.Departments...), nil
		}
		if identity.Department == "" {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "no department assigned")
		}
		return []models.Department{identity.Department}, nil
	}

	dept, ok := models.ParseDepartment(scope)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown department")
	}
	if !CanViewDepartment(identity, dept) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "department is outside your scope")
	}
	return []models.Department{dept}, nil
}

func summaryCacheKey(dept models.Department, generation int64) string {
	return summaryCachePrefix + string(dept) + ":" + strconv.FormatInt(generation, 10)
}

func generationCacheKey(dept models.Department) string {
	return generationCachePrefix + string(dept)
}
