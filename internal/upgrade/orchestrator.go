package upgrade

import (
	"context"
	"errors"
	"fmt"
	"time"

	"k8s.io/utils/clock"

	"github.com/autopeer-io/agentupgrade/internal/endpoint"
	"github.com/autopeer-io/agentupgrade/pkg/log"
)

// Transfer starts package transfers to an agent and retrieves their final result.
type Transfer interface {
	// StartCustom pushes a custom WPK file and returns the agent's acknowledgment.
	StartCustom(ctx context.Context, t CustomTransfer, progress ProgressReporter) (string, error)

	// StartRepository asks the agent to fetch a package from a repository and
	// returns the agent's acknowledgment.
	StartRepository(ctx context.Context, t RepositoryTransfer, progress ProgressReporter) (string, error)

	// FetchResult returns the final result of the last started transfer.
	FetchResult(ctx context.Context, debug bool) (string, error)
}

// Recorder observes finished attempts.
type Recorder interface {
	ObserveAttempt(mode, outcome string, elapsed time.Duration)
	ObservePolls(polls int)
}

type nopRecorder struct{}

func (nopRecorder) ObserveAttempt(string, string, time.Duration) {}
func (nopRecorder) ObservePolls(int)                             {}

// Attempt outcomes reported to the Recorder.
const (
	AttemptSucceeded = "succeeded"
	AttemptRejected  = "rejected"
	AttemptTimeout   = "timeout"
	AttemptFailed    = "failed"
)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock replaces the real clock used for every wait.
func WithClock(clk clock.Clock) Option {
	return func(o *Orchestrator) { o.clock = clk }
}

// WithLogger sets the logger of the orchestrator and its attempts.
func WithLogger(logger log.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// Orchestrator drives upgrade attempts against a single agent.
type Orchestrator struct {
	cfg      Config
	transfer Transfer
	reader   StateReader

	clock    clock.Clock
	logger   log.Logger
	recorder Recorder
}

// NewOrchestrator returns an Orchestrator. reader must reload the agent that
// requests passed to Begin refer to.
func NewOrchestrator(cfg Config, transfer Transfer, reader StateReader, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:      cfg,
		transfer: transfer,
		reader:   reader,
		clock:    clock.RealClock{},
		logger:   log.NewNopLogger(),
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Begin loads the agent, validates req against it and captures the keep-alive
// baseline. Nothing is sent to the agent. The request is copied.
func (o *Orchestrator) Begin(ctx context.Context, req *Request) (*Attempt, error) {
	started := o.clock.Now()
	r := req.clone()
	mode := r.Mode()

	ep, err := Check(ctx, o.reader, &r)
	if err != nil {
		o.logger.Debug("Upgrade request rejected", "agent", r.AgentID, "error", err)
		o.recorder.ObserveAttempt(string(mode), AttemptRejected, o.clock.Since(started))
		return nil, err
	}

	a := &Attempt{
		o:               o,
		req:             r,
		logger:          o.logger.WithValues("agent", r.AgentID, "mode", mode),
		started:         started,
		baseline:        ep.LastKeepAlive,
		previousVersion: ep.Version,
	}
	a.machine = newAttemptMachine(a.logger, a.observe)

	a.logger.Debug("Upgrade request validated", "version", ep.Version, "keepalive", ep.LastKeepAlive)
	return a, nil
}

// Run performs a whole attempt: validation, dispatch, confirmation and
// finalization. The returned report is nil only when validation failed.
func (o *Orchestrator) Run(ctx context.Context, req *Request, progress ProgressReporter, debug bool) (*Report, error) {
	a, err := o.Begin(ctx, req)
	if err != nil {
		return nil, err
	}

	if _, err := a.Dispatch(ctx, progress); err != nil {
		return a.Report(), err
	}
	if _, err := a.AwaitConfirmation(ctx); err != nil {
		return a.Report(), err
	}
	if _, err := a.Finalize(ctx, debug); err != nil {
		return a.Report(), err
	}
	return a.Report(), nil
}

func (o *Orchestrator) reload(ctx context.Context) (*endpoint.Endpoint, error) {
	return load(ctx, o.reader)
}

func load(ctx context.Context, reader StateReader) (*endpoint.Endpoint, error) {
	ep, err := reader.Reload(ctx)
	if err == nil {
		return ep, nil
	}
	if errors.Is(err, endpoint.ErrNotFound) {
		return nil, ErrEndpointNotFound.Wrap(err)
	}
	return nil, Classify(err)
}

// Check loads the agent from reader and validates req against it. It reads
// the state source only, so callers can reject a request before connecting
// to any transfer collaborator.
func Check(ctx context.Context, reader StateReader, req *Request) (*endpoint.Endpoint, error) {
	ep, err := load(ctx, reader)
	if err != nil {
		return nil, err
	}
	if err := Validate(ep, req); err != nil {
		return nil, err
	}
	return ep, nil
}

// Attempt is one upgrade of one agent. Its methods must be called in order:
// Dispatch, AwaitConfirmation, Finalize.
type Attempt struct {
	o       *Orchestrator
	req     Request
	machine *attemptMachine
	logger  log.Logger
	started time.Time

	baseline        time.Time
	previousVersion string
	currentVersion  string

	ack          string
	result       string
	confirmation Confirmation
}

// State returns the current lifecycle state.
func (a *Attempt) State() State {
	return a.machine.state()
}

// History returns every state the attempt went through, in order.
func (a *Attempt) History() []State {
	return append([]State(nil), a.machine.history...)
}

// Baseline is the keep-alive captured before dispatch.
func (a *Attempt) Baseline() time.Time {
	return a.baseline
}

// Dispatch starts the transfer and returns the agent's acknowledgment. A nil
// progress reporter discards progress.
func (a *Attempt) Dispatch(ctx context.Context, progress ProgressReporter) (string, error) {
	if err := a.machine.require(EventDispatch); err != nil {
		return "", err
	}
	if progress == nil {
		progress = NopProgress{}
	}
	if err := ctx.Err(); err != nil {
		return "", a.abort(ctx, Classify(err))
	}

	cfg := a.o.cfg
	chunk := cfg.DefaultChunkSize
	if a.req.ChunkSize != nil {
		chunk = *a.req.ChunkSize
	}
	timeout := UnboundedTimeout
	if a.req.Timeout != nil {
		timeout = *a.req.Timeout
	}

	var (
		ack string
		err error
	)
	switch a.req.Mode() {
	case ModeCustomFile:
		installer := a.req.Installer
		if installer == "" {
			installer = cfg.DefaultInstaller
		}
		a.logger.Debug("Starting custom upgrade", "file", a.req.FilePath, "installer", installer, "chunk", chunk, "timeout", timeout)
		ack, err = a.o.transfer.StartCustom(ctx, CustomTransfer{
			AgentID:   a.req.AgentID,
			FilePath:  a.req.FilePath,
			Installer: installer,
			ChunkSize: chunk,
			Timeout:   timeout,
		}, progress)

	default:
		repo := a.req.RepositoryURL
		if repo == "" {
			repo = cfg.DefaultRepositoryURL
		}
		version := LatestVersion
		if a.req.Version != nil {
			version = *a.req.Version
		}
		a.logger.Debug("Starting repository upgrade", "repository", repo, "version", version, "force", a.req.Force, "chunk", chunk, "timeout", timeout)
		ack, err = a.o.transfer.StartRepository(ctx, RepositoryTransfer{
			AgentID:       a.req.AgentID,
			RepositoryURL: repo,
			Version:       version,
			Force:         a.req.Force,
			ChunkSize:     chunk,
			Timeout:       timeout,
			UseHTTP:       a.req.UseHTTP,
		}, progress)
	}
	if err != nil {
		return "", a.abort(ctx, transferError(err))
	}

	a.ack = ack
	if err := a.machine.fire(ctx, EventDispatch); err != nil {
		return "", err
	}
	return ack, nil
}

// AwaitConfirmation waits for the agent's keep-alive to move away from the
// baseline. It fails with ErrConfirmationTimeout when the retry budget runs out.
func (a *Attempt) AwaitConfirmation(ctx context.Context) (Confirmation, error) {
	if err := a.machine.fire(ctx, EventAwait); err != nil {
		return Confirmation{}, err
	}

	cfg := a.o.cfg
	timing := cfg.Timing(a.req.Mode())
	poller := NewPoller(cfg, StateReaderFunc(a.o.reload), a.o.clock, a.logger)

	conf, err := poller.Await(ctx, a.baseline, timing.Grace)
	a.confirmation = conf
	if err != nil {
		return conf, a.abort(ctx, Classify(err))
	}
	a.o.recorder.ObservePolls(conf.Polls)

	if conf.Outcome == OutcomeTimedOut {
		if err := a.machine.fire(ctx, EventTimeout); err != nil {
			return conf, err
		}
		if err := a.machine.fire(ctx, EventAbort); err != nil {
			return conf, err
		}
		detail := fmt.Sprintf("no keep-alive change after %d polls every %s", conf.Polls, cfg.Interval)
		return conf, ErrConfirmationTimeout.With(detail)
	}

	if err := a.machine.fire(ctx, EventConfirm); err != nil {
		return conf, err
	}
	if err := sleep(ctx, a.o.clock, timing.Settle); err != nil {
		return conf, a.abort(ctx, Classify(err))
	}
	return conf, nil
}

// Finalize fetches the final result of the transfer and reloads the agent
// to learn its current version.
func (a *Attempt) Finalize(ctx context.Context, debug bool) (string, error) {
	if err := a.machine.require(EventFinalize); err != nil {
		return "", err
	}

	result, err := a.o.transfer.FetchResult(ctx, debug)
	if err != nil {
		return "", a.abort(ctx, transferError(err))
	}
	a.result = result

	ep, err := a.o.reload(ctx)
	if err != nil {
		return result, a.abort(ctx, err)
	}
	a.currentVersion = ep.Version

	if err := a.machine.fire(ctx, EventFinalize); err != nil {
		return result, err
	}
	return result, nil
}

// Report summarizes the attempt so far.
func (a *Attempt) Report() *Report {
	return &Report{
		AgentID:         a.req.AgentID,
		Mode:            a.req.Mode(),
		State:           a.State(),
		PreviousVersion: a.previousVersion,
		CurrentVersion:  a.currentVersion,
		Ack:             a.ack,
		Result:          a.result,
		Polls:           a.confirmation.Polls,
	}
}

func (a *Attempt) abort(ctx context.Context, err error) error {
	a.machine.fail(ctx, err)
	return err
}

func (a *Attempt) observe(from, to State) {
	outcome := AttemptSucceeded
	switch {
	case to == StateAborted && from == StateTimedOut:
		outcome = AttemptTimeout
	case to == StateAborted:
		outcome = AttemptFailed
	}
	a.o.recorder.ObserveAttempt(string(a.req.Mode()), outcome, a.o.clock.Since(a.started))
}

// Report is the outcome of an upgrade attempt.
type Report struct {
	AgentID string
	Mode    Mode
	State   State

	PreviousVersion string
	CurrentVersion  string

	Ack    string
	Result string
	Polls  int
}

// StateReaderFunc adapts a function to StateReader.
type StateReaderFunc func(ctx context.Context) (*endpoint.Endpoint, error)

func (f StateReaderFunc) Reload(ctx context.Context) (*endpoint.Endpoint, error) { return f(ctx) }

// transferError keeps errors of this package and cancellation as they are and
// wraps every other collaborator failure as ErrTransfer.
func transferError(err error) error {
	var e *Error
	switch {
	case errors.As(err, &e):
		return e
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrInterrupted.Wrap(err)
	default:
		return ErrTransfer.Wrap(err)
	}
}
