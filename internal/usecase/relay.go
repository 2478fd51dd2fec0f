package usecase

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/example/image-relay/internal/apierror"
	"github.com/example/image-relay/internal/logging"
	"github.com/example/image-relay/internal/provider"
	"github.com/example/image-relay/internal/repository"
	"github.com/example/image-relay/internal/upload"
)

// Invoker performs the outbound provider calls.
type Invoker interface {
	Invoke(ctx context.Context, req *provider.Request) ([]byte, error)
	Download(ctx context.Context, imageURL string) ([]byte, error)
}

// UsageLedger records relay outcomes. It is optional.
type UsageLedger interface {
	SaveLog(ctx context.Context, log *repository.ProcessingLog) error
	AggregateMetrics(ctx context.Context) ([]repository.OperationAggregation, error)
}

const ledgerTimeout = 2 * time.Second

// RelayUseCase runs one upload through a provider and back. It keeps no state
// between calls.
type RelayUseCase struct {
	settings provider.Settings
	invoker  Invoker
	ledger   UsageLedger
	logger   *zap.Logger
	now      func() time.Time
}

// NewRelayUseCase constructs a new use case instance. ledger may be nil.
func NewRelayUseCase(settings provider.Settings, invoker Invoker, ledger UsageLedger, logger *zap.Logger) *RelayUseCase {
	return &RelayUseCase{
		settings: settings,
		invoker:  invoker,
		ledger:   ledger,
		logger:   logger.Named("relay_usecase"),
		now:      time.Now,
	}
}

// Process builds the provider request, calls the provider, unwraps its
// envelope and returns the image to send back.
func (uc *RelayUseCase) Process(ctx context.Context, requestID string, kind provider.Kind, file *upload.File) (*provider.NormalizedResult, error) {
	start := uc.now()
	opLogger := logging.WithOperation(uc.logger, "usecase.process", requestID).With(zap.String("provider", string(kind)))

	result, err := uc.run(ctx, requestID, kind, file, opLogger)
	latency := uc.now().Sub(start)

	if err != nil {
		outcome := apierror.Translate(err)
		fields := []zap.Field{
			zap.Error(err),
			zap.String("stage", logging.OperationOf(err)),
			zap.Int("status", outcome.Status),
			zap.Duration("latency", latency),
		}
		switch {
		case outcome.Security:
			opLogger.Error("upstream rejected API credentials", append(fields, zap.String("api_key", logging.MaskSecret(uc.settings.APIKey)))...)
		case outcome.Status >= 500:
			opLogger.Error("relay failed", fields...)
		default:
			opLogger.Warn("relay rejected", fields...)
		}
		uc.record(ctx, requestID, kind, file, outcome.Status, logging.OperationOf(err), 0, latency)
		return nil, err
	}

	opLogger.Info("relay completed",
		zap.Int("input_bytes", len(file.Data)),
		zap.Int("output_bytes", len(result.Data)),
		zap.Duration("latency", latency),
	)
	uc.record(ctx, requestID, kind, file, http.StatusOK, "", int64(len(result.Data)), latency)
	return result, nil
}

func (uc *RelayUseCase) run(ctx context.Context, requestID string, kind provider.Kind, file *upload.File, opLogger *zap.Logger) (*provider.NormalizedResult, error) {
	req, err := provider.BuildRequest(kind, uc.settings, file)
	if err != nil {
		return nil, logging.NewOperationError("provider.build_request", requestID, err)
	}

	raw, err := uc.invoker.Invoke(ctx, req)
	if err != nil {
		return nil, logging.NewOperationError("provider.invoke", requestID, err)
	}

	envelope, err := provider.DecodeEnvelope(kind, raw)
	if err != nil {
		return nil, logging.NewOperationError("provider.decode", requestID, err)
	}

	var data []byte
	switch env := envelope.(type) {
	case *provider.RemovalEnvelope:
		data, err = env.Image()
		if err != nil {
			return nil, logging.NewOperationError("provider.extract_image", requestID, err)
		}
	case *provider.EnhancementEnvelope:
		enhanced, err := env.Result()
		if err != nil {
			return nil, logging.NewOperationError("provider.extract_url", requestID, err)
		}
		opLogger.Debug("enhanced image ready", zap.String("upstream_request_id", enhanced.RequestID))
		data, err = uc.invoker.Download(ctx, enhanced.ImageURL)
		if err != nil {
			return nil, logging.NewOperationError("provider.download", requestID, err)
		}
	}

	result, err := provider.Normalize(kind, data, uc.now())
	if err != nil {
		return nil, logging.NewOperationError("provider.normalize", requestID, err)
	}
	return result, nil
}

func (uc *RelayUseCase) record(ctx context.Context, requestID string, kind provider.Kind, file *upload.File, status int, stage string, outputBytes int64, latency time.Duration) {
	if uc.ledger == nil {
		return
	}
	var inputBytes int64
	if file != nil {
		inputBytes = file.Size
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ledgerTimeout)
	defer cancel()

	entry := &repository.ProcessingLog{
		RequestID:   requestID,
		Operation:   string(kind),
		Status:      status,
		Success:     status == http.StatusOK,
		ErrorStage:  stage,
		InputBytes:  inputBytes,
		OutputBytes: outputBytes,
		LatencyMs:   latency.Milliseconds(),
		CreatedAt:   uc.now().UTC(),
	}
	if err := uc.ledger.SaveLog(ctx, entry); err != nil {
		logging.WithOperation(uc.logger, "usecase.record", requestID).Warn("failed to record processing log", zap.Error(err))
	}
}
