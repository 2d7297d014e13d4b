package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sudankdk/runbox/internal/languages"
	"github.com/sudankdk/runbox/internal/metrics"
	"github.com/sudankdk/runbox/internal/model"
)

var (
	ErrProvisioning = errors.New("provisioning failed")
	ErrStaging      = errors.New("staging failed")
	ErrExecution    = errors.New("execution failed")
)

type Resolver interface {
	Resolve(id string) (languages.Language, error)
}

// Engine owns the container lifecycle of an environment.
type Engine interface {
	Create(ctx context.Context, lang languages.Language) (*model.Environment, error)
	Run(ctx context.Context, env *model.Environment, limits model.Limits) (model.RawOutcome, error)
	Destroy(ctx context.Context, env *model.Environment) error
}

type Stager interface {
	Stage(ctx context.Context, env *model.Environment, code, stdin string) error
}

type Options struct {
	Languages Resolver
	Engine    Engine
	Stager    Stager
	Gate      *Gate

	Limits           model.Limits
	ProvisionTimeout time.Duration
	StageTimeout     time.Duration
	CleanupTimeout   time.Duration

	Logger *zap.Logger
}

type Executor struct {
	langs  Resolver
	engine Engine
	stager Stager
	gate   *Gate

	limits           model.Limits
	provisionTimeout time.Duration
	stageTimeout     time.Duration
	cleanupTimeout   time.Duration

	log *zap.Logger
}

func NewExecutor(opts Options) *Executor {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{
		langs:            opts.Languages,
		engine:           opts.Engine,
		stager:           opts.Stager,
		gate:             opts.Gate,
		limits:           opts.Limits,
		provisionTimeout: orDefault(opts.ProvisionTimeout, 30*time.Second),
		stageTimeout:     orDefault(opts.StageTimeout, 15*time.Second),
		cleanupTimeout:   orDefault(opts.CleanupTimeout, 15*time.Second),
		log:              log.Named("executor"),
	}
}

// Execute runs one submission in a fresh environment. Program-level outcomes
// (timeout, overflow, non-zero exit) come back as a Result; only failures of
// the service itself are returned as errors. Once an environment exists it is
// destroyed exactly once, whatever happens afterwards.
func (e *Executor) Execute(ctx context.Context, sub model.Submission) (model.Result, error) {
	lang, err := e.langs.Resolve(sub.Language)
	if err != nil {
		return model.Result{}, err
	}

	if err := e.gate.Acquire(ctx); err != nil {
		if errors.Is(err, ErrBusy) {
			metrics.AdmissionRejections.Inc()
		}
		return model.Result{}, err
	}
	defer e.gate.Release()

	env, err := e.provision(ctx, lang)
	if err != nil {
		metrics.ExecutionErrors.WithLabelValues(lang.ID, "provision").Inc()
		return model.Result{}, fmt.Errorf("%w: %w", ErrProvisioning, err)
	}
	defer e.destroy(ctx, env)

	log := e.log.With(zap.String("instance", env.InstanceID), zap.String("language", lang.ID))

	if err := e.stage(ctx, env, sub); err != nil {
		metrics.ExecutionErrors.WithLabelValues(lang.ID, "stage").Inc()
		log.Warn("staging failed", zap.Error(err))
		return model.Result{}, fmt.Errorf("%w: %w", ErrStaging, err)
	}

	env.State = model.StateRunning
	raw, err := e.engine.Run(ctx, env, e.limits)
	env.State = model.StateFinished
	if err != nil {
		metrics.ExecutionErrors.WithLabelValues(lang.ID, "run").Inc()
		log.Error("run failed", zap.Error(err))
		return model.Result{}, fmt.Errorf("%w: %w", ErrExecution, err)
	}
	metrics.PhaseDuration.WithLabelValues(lang.ID, "run").Observe(raw.Duration.Seconds())

	res := Classify(raw)
	metrics.ExecutionsTotal.WithLabelValues(lang.ID, string(res.Outcome)).Inc()
	log.Info("execution finished",
		zap.String("outcome", string(res.Outcome)),
		zap.Int("exit_code", raw.ExitCode),
		zap.Duration("duration", raw.Duration))
	return res, nil
}

func (e *Executor) provision(ctx context.Context, lang languages.Language) (*model.Environment, error) {
	start := time.Now()
	pctx, cancel := context.WithTimeout(ctx, e.provisionTimeout)
	defer cancel()

	env, err := e.engine.Create(pctx, lang)
	if err != nil {
		return nil, err
	}
	metrics.LiveEnvironments.Inc()
	metrics.PhaseDuration.WithLabelValues(lang.ID, "provision").Observe(time.Since(start).Seconds())
	return env, nil
}

func (e *Executor) stage(ctx context.Context, env *model.Environment, sub model.Submission) error {
	start := time.Now()
	sctx, cancel := context.WithTimeout(ctx, e.stageTimeout)
	defer cancel()

	if err := e.stager.Stage(sctx, env, sub.Code, sub.Stdin); err != nil {
		return err
	}
	env.State = model.StateStaged
	metrics.PhaseDuration.WithLabelValues(env.Language, "stage").Observe(time.Since(start).Seconds())
	return nil
}

// destroy runs on a context detached from the caller so a cancelled or
// expired request still tears its environment down. Failures are only
// logged; the orphan reaper catches whatever is left behind.
func (e *Executor) destroy(ctx context.Context, env *model.Environment) {
	start := time.Now()
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cleanupTimeout)
	defer cancel()

	if err := e.engine.Destroy(dctx, env); err != nil {
		metrics.CleanupFailures.Inc()
		e.log.Warn("cleanup failed",
			zap.String("instance", env.InstanceID),
			zap.String("container", env.ContainerID),
			zap.Error(err))
	}
	env.State = model.StateDestroyed
	metrics.LiveEnvironments.Dec()
	metrics.PhaseDuration.WithLabelValues(env.Language, "cleanup").Observe(time.Since(start).Seconds())
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
