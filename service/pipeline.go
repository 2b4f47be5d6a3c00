// Package service orchestrates the analysis and response pipeline: telemetry
// in, events extracted and enriched, correlations found, risk scored,
// containment decided and executed, incidents recorded. The pipeline always
// completes and produces a result summary; component failures degrade their
// own stage and are logged, never propagated.
package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"argus/analysis"
	"argus/core"
	"argus/correlate"
	"argus/ingest"
	"argus/metrics"
	"argus/respond"
	"argus/storage"
	"argus/util/goroutine"
)

// DefaultCorrelationWindow is the lookback over unresolved events fed to
// the correlation engine on each pass.
const DefaultCorrelationWindow = 30 * time.Minute

// Result is the pipeline's summary for one submission. Operators always see
// which actions succeeded and failed, even on a degraded pass.
type Result struct {
	DeviceRef        string   `json:"device_ref,omitempty"`
	EventIDs         []string `json:"event_ids,omitempty"`
	RiskScore        float64  `json:"risk_score"`
	AnomalyFlag      bool     `json:"anomaly_flag"`
	CorrelationCount int      `json:"correlation_count"`
	ThreatMatchCount int      `json:"threat_match_count"`
	ActionsExecuted  int      `json:"actions_executed"`
	ActionsFailed    int      `json:"actions_failed"`
	IncidentCreated  bool     `json:"incident_created"`
	IncidentID       string   `json:"incident_id,omitempty"`
	Recommendations  []string `json:"recommendations,omitempty"`
	Degraded         []string `json:"degraded,omitempty"`
}

// Pipeline wires the analysis and response components together.
type Pipeline struct {
	store      storage.Store
	ingestor   *ingest.Ingestor
	correlator *correlate.Engine
	analyzer   *analysis.Engine
	executor   *respond.Executor
	incidents  *respond.IncidentManager
	window     time.Duration
	logger     *zap.SugaredLogger
}

// NewPipeline builds the pipeline. window <= 0 takes the default.
func NewPipeline(store storage.Store, ingestor *ingest.Ingestor, correlator *correlate.Engine,
	analyzer *analysis.Engine, executor *respond.Executor, incidents *respond.IncidentManager,
	window time.Duration, logger *zap.SugaredLogger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if window <= 0 {
		window = DefaultCorrelationWindow
	}
	return &Pipeline{
		store:      store,
		ingestor:   ingestor,
		correlator: correlator,
		analyzer:   analyzer,
		executor:   executor,
		incidents:  incidents,
		window:     window,
		logger:     logger,
	}
}

// ProcessTelemetry runs the full pipeline for one telemetry submission.
// The only returned error is validation of the payload itself; everything
// downstream degrades into the result summary.
func (p *Pipeline) ProcessTelemetry(ctx context.Context, payload *ingest.TelemetryPayload) (*Result, error) {
	sample, err := p.ingestor.ParseTelemetry(payload)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	defer func() {
		metrics.PipelineDuration.Observe(time.Since(start).Seconds())
	}()

	result := &Result{DeviceRef: sample.DeviceRef}

	events := ingest.EventsFromSample(sample)
	for _, event := range events {
		if err := p.store.InsertEvent(ctx, event); err != nil {
			p.logger.Errorw("failed to persist extracted event",
				"event_id", event.EventID, "error", err)
			result.Degraded = append(result.Degraded, "event_store")
		}
		result.EventIDs = append(result.EventIDs, event.EventID)
	}

	correlations := p.runCorrelation(ctx, result)

	assessment := p.runAnalysis(ctx, sample, events, result)
	result.RiskScore = assessment.RiskScore
	result.AnomalyFlag = assessment.AnomalyFlag
	result.ThreatMatchCount = len(assessment.ThreatMatches)
	result.Recommendations = assessment.Recommendations

	// persist enrichment side effects before responding
	for _, event := range events {
		if !event.HasThreatIntel() {
			continue
		}
		if err := p.store.UpdateEventEnrichment(ctx, event.EventID, event.RawData, event.ConfidenceScore); err != nil {
			p.logger.Warnw("failed to persist event enrichment",
				"event_id", event.EventID, "error", err)
		}
	}

	p.respond(ctx, events, assessment, correlations, result)
	return result, nil
}

// ProcessEvent runs the response pipeline for a directly submitted event.
// There is no telemetry sample, so the risk context is built from the event
// and its enrichment alone.
func (p *Pipeline) ProcessEvent(ctx context.Context, payload *ingest.EventPayload) (*Result, error) {
	event, err := p.ingestor.ParseEvent(payload)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	defer func() {
		metrics.PipelineDuration.Observe(time.Since(start).Seconds())
	}()

	result := &Result{DeviceRef: event.DeviceRef, EventIDs: []string{event.EventID}}

	if err := p.store.InsertEvent(ctx, event); err != nil {
		p.logger.Errorw("failed to persist event", "event_id", event.EventID, "error", err)
		result.Degraded = append(result.Degraded, "event_store")
	}

	correlations := p.runCorrelation(ctx, result)

	// a synthetic sample carries the event into the shared analysis path;
	// compliance is unknown for direct submissions, so it contributes nothing
	sample := &core.TelemetrySample{
		DeviceRef: event.DeviceRef,
		Timestamp: event.CreatedAt,
		Compliance: core.ComplianceStatus{
			AntivirusRunning: true, FirewallEnabled: true, OSUpToDate: true, DiskEncrypted: true,
		},
		SecurityEvents: []core.EmbeddedEvent{{
			Type:       event.EventType,
			Severity:   event.ThreatLevel,
			Confidence: event.ConfidenceScore,
		}},
	}
	assessment := p.runAnalysis(ctx, sample, []*core.SecurityEvent{event}, result)
	result.RiskScore = assessment.RiskScore
	result.AnomalyFlag = assessment.AnomalyFlag
	result.ThreatMatchCount = len(assessment.ThreatMatches)
	result.Recommendations = assessment.Recommendations

	if event.HasThreatIntel() {
		if err := p.store.UpdateEventEnrichment(ctx, event.EventID, event.RawData, event.ConfidenceScore); err != nil {
			p.logger.Warnw("failed to persist event enrichment",
				"event_id", event.EventID, "error", err)
		}
	}

	p.respond(ctx, []*core.SecurityEvent{event}, assessment, correlations, result)
	return result, nil
}

// runCorrelation scans the recent unresolved event window. Failure yields
// an empty correlation list.
func (p *Pipeline) runCorrelation(ctx context.Context, result *Result) []*correlate.Correlation {
	var correlations []*correlate.Correlation
	func() {
		defer goroutine.Recover("correlation", p.logger)
		now := time.Now().UTC()
		window, err := p.store.FindUnresolvedEventsSince(ctx, now.Add(-p.window))
		if err != nil {
			p.logger.Errorw("failed to load correlation window", "error", err)
			result.Degraded = append(result.Degraded, "correlation")
			return
		}
		correlations = p.correlator.Correlate(ctx, window, now)
	}()
	result.CorrelationCount = len(correlations)
	return correlations
}

// runAnalysis produces the risk assessment, degrading to a severity-only
// assessment if the engine fails.
func (p *Pipeline) runAnalysis(ctx context.Context, sample *core.TelemetrySample, events []*core.SecurityEvent, result *Result) *analysis.Assessment {
	var assessment *analysis.Assessment
	func() {
		defer goroutine.Recover("analysis", p.logger)
		assessment = p.analyzer.Analyze(ctx, sample, events)
	}()
	if assessment == nil {
		result.Degraded = append(result.Degraded, "analysis")
		assessment = &analysis.Assessment{
			DeviceRef: sample.DeviceRef,
			RiskScore: analysis.RiskScore(analysis.RiskInput{
				Events:     sample.SecurityEvents,
				Compliance: sample.Compliance,
			}),
			AnalyzedAt: time.Now().UTC(),
		}
	}
	return assessment
}

// respond decides and executes actions for each event, then handles
// incident creation for the highest-severity trigger.
func (p *Pipeline) respond(ctx context.Context, events []*core.SecurityEvent, assessment *analysis.Assessment, correlations []*correlate.Correlation, result *Result) {
	var (
		trigger   *core.SecurityEvent
		actionIDs []string
	)
	for _, event := range events {
		actions := p.decide(event, assessment)
		for _, actionType := range actions {
			action := p.executor.Execute(ctx, actionType, &respond.ExecutionContext{
				Event:            event,
				RiskScore:        assessment.RiskScore,
				AnomalyFlag:      assessment.AnomalyFlag,
				ThreatMatchCount: len(assessment.ThreatMatches),
			})
			actionIDs = append(actionIDs, action.ActionID)
			if action.Status == core.ActionStatusCompleted {
				result.ActionsExecuted++
			} else {
				result.ActionsFailed++
			}
		}

		if trigger == nil || event.ThreatLevel.Rank() > trigger.ThreatLevel.Rank() {
			trigger = event
		}
	}

	if trigger == nil {
		return
	}
	if !respond.ShouldCreateIncident(trigger.ThreatLevel, assessment.RiskScore, len(correlations)) {
		return
	}
	incident, err := p.incidents.Create(ctx, trigger, assessment.RiskScore, correlations, actionIDs)
	if err != nil {
		p.logger.Errorw("failed to create incident",
			"event_id", trigger.EventID, "error", err)
		result.Degraded = append(result.Degraded, "incident_manager")
		return
	}
	result.IncidentCreated = true
	result.IncidentID = incident.IncidentID
}

// decide evaluates the response policy, falling back to alert-only when
// evaluation itself fails.
func (p *Pipeline) decide(event *core.SecurityEvent, assessment *analysis.Assessment) (actions []core.ActionType) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Errorw("policy evaluation failed, falling back to alert",
				"event_id", event.EventID, "panic", r)
			actions = respond.FallbackActions()
		}
	}()
	return respond.Decide(respond.Decision{
		ThreatLevel:   event.ThreatLevel,
		RiskScore:     assessment.RiskScore,
		ThreatMatches: len(assessment.ThreatMatches),
		AnomalyFlag:   assessment.AnomalyFlag,
		HasUser:       event.UserRef != "",
	})
}
