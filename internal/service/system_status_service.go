package service

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/straye-as/finance-dashboard/internal/domain"
	"go.uber.org/zap"
)

// degradedLatency is the probe latency above which a component counts as degraded
const degradedLatency = 2 * time.Second

// Probe checks one component and reports its latency
type Probe struct {
	Name  string
	Check func(ctx context.Context) (time.Duration, error)
}

type metricSpec struct {
	name     string
	unit     string
	min, max float64
	step     float64
}

var simulatedMetrics = []metricSpec{
	{name: "cpu_usage", unit: "percent", min: 5, max: 95, step: 8},
	{name: "memory_usage", unit: "percent", min: 20, max: 90, step: 4},
	{name: "disk_usage", unit: "percent", min: 30, max: 85, step: 0.5},
	{name: "requests_per_minute", unit: "count", min: 0, max: 1200, step: 60},
}

// SystemStatusService is the simulated system-status monitor. Host metrics are a bounded
// random walk; components are probed for real. A refresh that cannot complete leaves the
// last snapshot in place and marks it stale.
type SystemStatusService struct {
	probes      []Probe
	historySize int
	logger      *zap.Logger
	now         func() time.Time

	mu       sync.RWMutex
	rnd      *rand.Rand
	current  map[string]float64
	history  []domain.MetricSample
	snapshot *domain.SystemStatus
}

// NewSystemStatusService creates the monitor
func NewSystemStatusService(probes []Probe, historySize int, logger *zap.Logger) *SystemStatusService {
	if historySize <= 0 {
		historySize = 60
	}
	return &SystemStatusService{
		probes:      probes,
		historySize: historySize,
		logger:      logger,
		now:         time.Now,
		rnd:         rand.New(rand.NewSource(time.Now().UnixNano())),
		current:     make(map[string]float64),
	}
}

// SetRandomSource makes the simulated metrics deterministic, for tests
func (s *SystemStatusService) SetRandomSource(seed int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rnd = rand.New(rand.NewSource(seed))
}

// Refresh samples the metrics and probes every component
func (s *SystemStatusService) Refresh(ctx context.Context) error {
	components := make([]domain.ComponentStatus, 0, len(s.probes))
	for _, p := range s.probes {
		if err := ctx.Err(); err != nil {
			s.markStale(err)
			return err
		}
		components = append(components, s.probe(ctx, p))
	}
	if err := ctx.Err(); err != nil {
		s.markStale(err)
		return err
	}

	now := s.now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	metrics := make([]domain.MetricSample, 0, len(simulatedMetrics))
	for _, m := range simulatedMetrics {
		sample := domain.MetricSample{Name: m.name, Value: s.step(m), Unit: m.unit, At: now}
		metrics = append(metrics, sample)
		s.history = append(s.history, sample)
	}
	if excess := len(s.history) - s.historySize*len(simulatedMetrics); excess > 0 {
		s.history = append([]domain.MetricSample(nil), s.history[excess:]...)
	}

	s.snapshot = &domain.SystemStatus{
		Overall:    overallState(components),
		Components: components,
		Metrics:    metrics,
		History:    append([]domain.MetricSample(nil), s.history...),
		UpdatedAt:  now,
	}
	return nil
}

// Snapshot returns the last snapshot, or an unknown status before the first refresh
func (s *SystemStatusService) Snapshot() domain.SystemStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snapshot == nil {
		return domain.SystemStatus{
			Overall:    domain.HealthStateUnknown,
			Components: []domain.ComponentStatus{},
			Metrics:    []domain.MetricSample{},
			History:    []domain.MetricSample{},
			Stale:      true,
		}
	}
	snap := *s.snapshot
	snap.Components = append([]domain.ComponentStatus(nil), snap.Components...)
	snap.Metrics = append([]domain.MetricSample(nil), snap.Metrics...)
	snap.History = append([]domain.MetricSample(nil), snap.History...)
	return snap
}

func (s *SystemStatusService) probe(ctx context.Context, p Probe) domain.ComponentStatus {
	status := domain.ComponentStatus{Name: p.Name, CheckedAt: s.now().UTC()}

	latency, err := p.Check(ctx)
	status.LatencyMs = latency.Milliseconds()
	switch {
	case err != nil:
		status.State = domain.HealthStateDown
		status.Message = err.Error()
		s.logger.Warn("component probe failed", zap.String("component", p.Name), zap.Error(err))
	case latency > degradedLatency:
		status.State = domain.HealthStateDegraded
		status.Message = "slow response"
	default:
		status.State = domain.HealthStateOperational
	}
	return status
}

func (s *SystemStatusService) markStale(err error) {
	s.logger.Warn("system status refresh abandoned, keeping last snapshot", zap.Error(err))
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snapshot != nil {
		s.snapshot.Stale = true
	}
}

// step advances one metric of the random walk. Callers hold mu.
func (s *SystemStatusService) step(m metricSpec) float64 {
	v, ok := s.current[m.name]
	if !ok {
		v = m.min + (m.max-m.min)*s.rnd.Float64()
	} else {
		v += (s.rnd.Float64()*2 - 1) * m.step
	}
	v = math.Max(m.min, math.Min(m.max, v))
	v = math.Round(v*10) / 10
	s.current[m.name] = v
	return v
}

func overallState(components []domain.ComponentStatus) domain.HealthState {
	if len(components) == 0 {
		return domain.HealthStateUnknown
	}
	overall := domain.HealthStateOperational
	for _, c := range components {
		switch c.State {
		case domain.HealthStateDown:
			return domain.HealthStateDown
		case domain.HealthStateDegraded:
			overall = domain.HealthStateDegraded
		}
	}
	return overall
}
