package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/jonboulle/clockwork"

	"pmdss/internal/auth"
	"pmdss/internal/etl"
	"pmdss/internal/evm"
	"pmdss/internal/metrics"
	"pmdss/internal/prediction"
	"pmdss/internal/rbac"
	"pmdss/internal/runlog"
)

type Session struct {
	UserID    string
	UserName  string
	Role      rbac.Role
	ExpiresAt time.Time
}

// Pinger reports warehouse reachability for the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

type ProjectMetrics interface {
	Projects(ctx context.Context) ([]evm.ProjectEVM, error)
}

type ScorecardMetrics interface {
	Scorecard(ctx context.Context) (evm.Scorecard, error)
}

// RunLog is the read side of the ETL run history.
type RunLog interface {
	Last(ctx context.Context) (*etl.Report, error)
	Recent(ctx context.Context, limit int) ([]etl.Report, error)
}

type Deps struct {
	Warehouse Pinger
	Projects  ProjectMetrics
	Scorecard ScorecardMetrics
	// Runs may be nil when no run history backend is configured.
	Runs     RunLog
	Secret   []byte
	Clock    clockwork.Clock
	CacheTTL time.Duration
}

type Service struct {
	warehouse Pinger
	projects  ProjectMetrics
	scorecard ScorecardMetrics
	runs      RunLog
	verifier  *auth.Verifier
	cache     *ttlcache.Cache[string, any]
	cacheTTL  time.Duration
}

const (
	projectsCacheKey  = "mission-kpis"
	scorecardCacheKey = "bsc"
)

func New(deps Deps) *Service {
	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	svc := &Service{
		warehouse: deps.Warehouse,
		projects:  deps.Projects,
		scorecard: deps.Scorecard,
		runs:      deps.Runs,
		verifier:  auth.NewVerifier(deps.Secret, clock),
		cacheTTL:  deps.CacheTTL,
	}
	if deps.CacheTTL > 0 {
		svc.cache = ttlcache.New(
			ttlcache.WithTTL[string, any](deps.CacheTTL),
			ttlcache.WithDisableTouchOnHit[string, any](),
		)
	}
	return svc
}

// Start runs the cache janitor until Stop is called. It is a no-op when
// caching is disabled.
func (s *Service) Start() {
	if s.cache != nil {
		go s.cache.Start()
	}
}

func (s *Service) Stop() {
	if s.cache != nil {
		s.cache.Stop()
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.warehouse.Ping(ctx)
}

func (s *Service) Authenticate(token string) (Session, error) {
	claims, err := s.verifier.Verify(token)
	if err != nil {
		return Session{}, err
	}
	return Session{
		UserID:    claims.Sub,
		UserName:  claims.Name,
		Role:      rbac.Normalize(claims.Role),
		ExpiresAt: time.Unix(claims.Exp, 0).UTC(),
	}, nil
}

func (s *Service) Can(session Session, action rbac.Action) bool {
	return rbac.Can(session.Role, action)
}

func (s *Service) MissionKPIs(ctx context.Context) ([]evm.ProjectEVM, error) {
	return cached(ctx, s, projectsCacheKey, s.projects.Projects)
}

func (s *Service) Dashboard(ctx context.Context) (evm.Scorecard, error) {
	return cached(ctx, s, scorecardCacheKey, s.scorecard.Scorecard)
}

type PredictionResult struct {
	InputParams prediction.Input   `json:"input_params"`
	ChartData   []prediction.Point `json:"chart_data"`
	Message     string             `json:"message"`
}

func (s *Service) PredictDefects(session Session, input prediction.Input) (PredictionResult, error) {
	if !s.Can(session, rbac.ActionPredict) {
		return PredictionResult{}, domainError(http.StatusForbidden, "FORBIDDEN",
			"Defect prediction is restricted to project managers", nil)
	}
	input = input.WithDefaults()
	points, err := prediction.Curve(input)
	if err != nil {
		if errors.Is(err, prediction.ErrInvalidInput) {
			return PredictionResult{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
		}
		return PredictionResult{}, err
	}
	return PredictionResult{
		InputParams: input,
		ChartData:   points,
		Message:     "Prediction generated",
	}, nil
}

func (s *Service) LastRun(ctx context.Context) (*etl.Report, error) {
	if s.runs == nil {
		return nil, notFound("No ETL run recorded")
	}
	report, err := s.runs.Last(ctx)
	if errors.Is(err, runlog.ErrNoRuns) {
		return nil, notFound("No ETL run recorded")
	}
	if err != nil {
		return nil, fmt.Errorf("read last run: %w", err)
	}
	return report, nil
}

func (s *Service) RecentRuns(ctx context.Context, limit int) ([]etl.Report, error) {
	if s.runs == nil {
		return []etl.Report{}, nil
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	reports, err := s.runs.Recent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("read run history: %w", err)
	}
	return reports, nil
}

func cached[T any](ctx context.Context, s *Service, key string, load func(context.Context) (T, error)) (T, error) {
	if s.cache != nil {
		if item := s.cache.Get(key); item != nil {
			metrics.MetricsCacheTotal.WithLabelValues(key, "hit").Inc()
			return item.Value().(T), nil
		}
		metrics.MetricsCacheTotal.WithLabelValues(key, "miss").Inc()
	}
	value, err := load(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	if s.cache != nil {
		s.cache.Set(key, value, s.cacheTTL)
	}
	return value, nil
}
