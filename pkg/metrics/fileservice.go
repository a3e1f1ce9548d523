package metrics

import (
	"context"
	"time"

	"github.com/cloud10922/zkim/pkg/fileservice"
)

// FileServiceObserver implements fileservice.Observer, recording metrics,
// traces, and structured log lines for container lifecycle events. Attach
// it to a Service via Service.SetObserver to automatically instrument
// Create/Decrypt calls.
type FileServiceObserver struct {
	collector *Collector
	tracer    Tracer
	logger    *Logger
}

// FileServiceObserverConfig configures a FileServiceObserver.
type FileServiceObserverConfig struct {
	Collector *Collector
	Tracer    Tracer
	Logger    *Logger
}

// NewFileServiceObserver creates a new file-service observer.
func NewFileServiceObserver(cfg FileServiceObserverConfig) *FileServiceObserver {
	if cfg.Collector == nil {
		cfg.Collector = Global()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = GetTracer()
	}
	if cfg.Logger == nil {
		cfg.Logger = GetLogger()
	}

	return &FileServiceObserver{
		collector: cfg.Collector,
		tracer:    cfg.Tracer,
		logger:    cfg.Logger.Named("fileservice"),
	}
}

var _ fileservice.Observer = (*FileServiceObserver)(nil)

// OnCreate records create-latency and traces the call.
func (o *FileServiceObserver) OnCreate(ctx context.Context, payloadLen int) (context.Context, func(error)) {
	start := time.Now()
	ctx, endSpan := o.tracer.StartSpan(ctx, SpanCreate, WithSpanKind(SpanKindInternal))

	o.logger.Debug("create started", Fields{"payload_len": payloadLen})

	return ctx, func(err error) {
		duration := time.Since(start)
		o.collector.RecordCreateLatency(duration)
		o.collector.RecordBytesIn(uint64(payloadLen))

		if err != nil {
			o.collector.FileCreateFailed()
			o.logger.Error("create failed", Fields{"error": err.Error(), "duration": duration.String()})
		} else {
			o.collector.FileCreated()
			o.logger.Info("create completed", Fields{"duration": duration.String()})
		}

		endSpan(err)
	}
}

// OnDecrypt records decrypt-latency and traces the call.
func (o *FileServiceObserver) OnDecrypt(ctx context.Context, fileID string) (context.Context, func(error)) {
	start := time.Now()
	ctx, endSpan := o.tracer.StartSpan(ctx, SpanDecrypt, WithAttributes(map[string]interface{}{"file_id": fileID}))

	o.logger.Debug("decrypt started", Fields{"file_id": fileID})

	return ctx, func(err error) {
		duration := time.Since(start)
		o.collector.RecordDecryptLatency(duration)

		if err != nil {
			o.collector.FileDecryptFailed()
			o.logger.Warn("decrypt failed", Fields{"file_id": fileID, "error": err.Error()})
		} else {
			o.collector.FileDecrypted()
			o.logger.Info("decrypt completed", Fields{"file_id": fileID, "duration": duration.String()})
		}

		endSpan(err)
	}
}

// OnIntegrityCheck records the outcome of a ValidateIntegrity call.
func (o *FileServiceObserver) OnIntegrityCheck(fileID string, ok bool) {
	if !ok {
		o.collector.RecordIntegrityFailure()
		o.logger.Warn("integrity check failed", Fields{"file_id": fileID})
		return
	}
	o.logger.Debug("integrity check passed", Fields{"file_id": fileID})
}

// OnAccessDenied records an ACL rejection.
func (o *FileServiceObserver) OnAccessDenied(fileID, userID string) {
	o.collector.RecordAccessDenial()
	o.logger.Warn("access denied", Fields{"file_id": fileID, "user_id": userID})
}
