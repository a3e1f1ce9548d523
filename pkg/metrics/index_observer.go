package metrics

import (
	"context"
	"time"

	"github.com/cloud10922/zkim/pkg/index"
)

// IndexObserver implements index.Observer, recording metrics, traces, and
// structured log lines for searchable-index events. Attach it via
// Index.SetObserver to automatically instrument Search calls and trapdoor
// lifecycle events.
type IndexObserver struct {
	collector *Collector
	tracer    Tracer
	logger    *Logger
}

// IndexObserverConfig configures an IndexObserver.
type IndexObserverConfig struct {
	Collector *Collector
	Tracer    Tracer
	Logger    *Logger
}

// NewIndexObserver creates a new index observer.
func NewIndexObserver(cfg IndexObserverConfig) *IndexObserver {
	if cfg.Collector == nil {
		cfg.Collector = Global()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = GetTracer()
	}
	if cfg.Logger == nil {
		cfg.Logger = GetLogger()
	}

	return &IndexObserver{
		collector: cfg.Collector,
		tracer:    cfg.Tracer,
		logger:    cfg.Logger.Named("index"),
	}
}

var _ index.Observer = (*IndexObserver)(nil)

// OnSearch records search latency and traces the call.
func (o *IndexObserver) OnSearch(ctx context.Context, userID string, queryLen int) (context.Context, func(int, error)) {
	start := time.Now()
	ctx, endSpan := o.tracer.StartSpan(ctx, SpanSearch, WithAttributes(map[string]interface{}{"user_id": userID}))

	o.logger.Debug("search started", Fields{"user_id": userID, "query_len": queryLen})

	return ctx, func(resultCount int, err error) {
		duration := time.Since(start)
		o.collector.RecordSearch(duration)

		if err != nil {
			o.logger.Warn("search failed", Fields{"user_id": userID, "error": err.Error()})
		} else {
			o.logger.Info("search completed", Fields{"user_id": userID, "results": resultCount, "duration": duration.String()})
		}

		endSpan(err)
	}
}

// OnRateLimited records a rate-limited query attempt.
func (o *IndexObserver) OnRateLimited(userID string) {
	o.collector.RecordSearchRateLimited()
	o.logger.Warn("search rate limited", Fields{"user_id": userID})
}

// OnTrapdoorIssued records a newly issued trapdoor.
func (o *IndexObserver) OnTrapdoorIssued(trapdoorID, userID string) {
	o.collector.RecordTrapdoorIssued()
	o.logger.Debug("trapdoor issued", Fields{"trapdoor_id": trapdoorID, "user_id": userID})
}

// OnTrapdoorRevoked records a trapdoor revocation (expiry or rotation).
func (o *IndexObserver) OnTrapdoorRevoked(trapdoorID string) {
	o.collector.RecordTrapdoorRevoked()
	o.logger.Debug("trapdoor revoked", Fields{"trapdoor_id": trapdoorID})
}

// OnIndexFile logs a new or updated index entry.
func (o *IndexObserver) OnIndexFile(fileID string) {
	o.logger.Debug("file indexed", Fields{"file_id": fileID})
}

// OnEpochAdvanced logs an epoch tick.
func (o *IndexObserver) OnEpochAdvanced(epoch uint64) {
	o.logger.Info("epoch advanced", Fields{"epoch": epoch})
}
