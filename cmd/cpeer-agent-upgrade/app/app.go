package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	cliflag "k8s.io/component-base/cli/flag"
	"k8s.io/klog/v2"

	"github.com/autopeer-io/agentupgrade/cmd/cpeer-agent-upgrade/app/options"
	"github.com/autopeer-io/agentupgrade/internal/endpoint"
	"github.com/autopeer-io/agentupgrade/internal/pkg/metrics"
	"github.com/autopeer-io/agentupgrade/internal/storage"
	"github.com/autopeer-io/agentupgrade/internal/transfer"
	"github.com/autopeer-io/agentupgrade/internal/upgrade"
	"github.com/autopeer-io/agentupgrade/pkg/log"
	pkgmqtt "github.com/autopeer-io/agentupgrade/pkg/mqtt"
)

const (
	commandName = "cpeer-agent-upgrade"
	commandDesc = `cpeer-agent-upgrade pushes a WPK package to a managed agent and waits until
the agent reconnects with the new version. Packages come from a WPK repository
or from a custom file staged in object storage.`
)

// NewUpgradeCommand returns the cpeer-agent-upgrade command. ctx is canceled
// on SIGINT or SIGTERM.
func NewUpgradeCommand(ctx context.Context) *cobra.Command {
	opts := options.NewUpgradeOptions()
	cmd := &cobra.Command{
		Use:           commandName,
		Short:         "Upgrade a managed agent",
		Long:          commandDesc,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.Complete(cmd.Flags()); err != nil {
				return reportError(cmd.ErrOrStderr(), err, false)
			}
			if err := opts.Validate(); err != nil {
				return reportError(cmd.ErrOrStderr(), err, false)
			}
			if !opts.ListOutdated && opts.AgentID == "" {
				return cmd.Help()
			}

			log.Init(opts.Log)
			klog.SetLogger(log.Std().Logr())
			defer func() { _ = log.Sync() }()

			out := cmd.OutOrStdout()
			if opts.Silent {
				out = io.Discard
			}

			if err := run(ctx, opts, out); err != nil {
				return reportError(cmd.ErrOrStderr(), err, opts.Debug)
			}
			return nil
		},
	}

	fs := cmd.Flags()
	namedfs := opts.Flags()
	for _, f := range namedfs.FlagSets {
		fs.AddFlagSet(f)
	}
	cliflag.SetUsageAndHelpFunc(cmd, namedfs, 100)

	return cmd
}

func run(ctx context.Context, opts *options.UpgradeOptions, out io.Writer) error {
	store, err := endpoint.Open(opts.Database)
	if err != nil {
		return err
	}
	defer store.Close()

	if opts.ListOutdated {
		return listOutdated(ctx, store, opts.Upgrade.ManagerVersion, out)
	}

	cfg, err := opts.Config()
	if err != nil {
		return err
	}

	m := metrics.New()
	defer pushMetrics(ctx, m, opts)

	// Malformed requests and inactive agents are rejected before any
	// broker or object storage traffic.
	reader := endpoint.NewReloader(store, opts.AgentID)
	req := opts.Request()
	if _, err := upgrade.Check(ctx, reader, req); err != nil {
		m.ObserveAttempt(string(req.Mode()), upgrade.AttemptRejected, 0)
		return err
	}

	mqttCfg := opts.Mqtt.ToClientConfig()
	if mqttCfg.ClientID == "" {
		mqttCfg.ClientID = fmt.Sprintf("%s-%s", commandName, uuid.NewString()[:8])
	}
	client, err := pkgmqtt.NewClient(mqttCfg)
	if err != nil {
		return err
	}
	if err := client.Start(ctx); err != nil {
		return fmt.Errorf("failed to start mqtt client: %w", err)
	}
	defer client.Disconnect(context.WithoutCancel(ctx))

	staging, err := awaitCollaborators(ctx, client, opts)
	if err != nil {
		return err
	}

	tr := transfer.NewClient(client, staging, opts.AgentID, transfer.Config{
		TopicRoot:     opts.Mqtt.TopicRoot,
		AckTimeout:    opts.Mqtt.AckTimeout,
		ResultTimeout: opts.Mqtt.ResultTimeout,
		URLExpiry:     opts.S3.URLExpiry,
	})
	if err := tr.Open(ctx); err != nil {
		return err
	}
	defer func() {
		if err := tr.Close(context.WithoutCancel(ctx)); err != nil {
			log.Warn("Failed to remove subscriptions", "error", err)
		}
	}()

	orch := upgrade.NewOrchestrator(cfg, tr, reader,
		upgrade.WithLogger(log.WithName("upgrade")),
		upgrade.WithRecorder(m),
	)

	var progress upgrade.ProgressReporter = upgrade.NopProgress{}
	if !opts.Silent {
		progress = upgrade.NewBarProgress(out)
	}

	return upgradeAgent(ctx, orch, req, progress, opts.Debug, out)
}

// awaitCollaborators waits for the broker connection and, for custom files,
// prepares the staging bucket. Both run concurrently.
func awaitCollaborators(ctx context.Context, client pkgmqtt.Client, opts *options.UpgradeOptions) (storage.Provider, error) {
	var staging storage.Provider

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		connectCtx, cancel := context.WithTimeout(ctx, opts.Mqtt.ConnectTimeout)
		defer cancel()
		if err := client.AwaitConnection(connectCtx); err != nil {
			return fmt.Errorf("failed to connect to %s: %w", opts.Mqtt.Broker, err)
		}
		return nil
	})
	if opts.File != "" {
		g.Go(func() error {
			provider, err := storage.NewMinIOProvider(opts.S3)
			if err != nil {
				return err
			}
			if err := provider.CheckBucket(ctx); err != nil {
				return err
			}
			staging = provider
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return staging, nil
}

// upgradeAgent runs one attempt and prints what the operator sees.
func upgradeAgent(ctx context.Context, orch *upgrade.Orchestrator, req *upgrade.Request, progress upgrade.ProgressReporter, debug bool, out io.Writer) error {
	attempt, err := orch.Begin(ctx, req)
	if err != nil {
		return err
	}

	ack, err := attempt.Dispatch(ctx, progress)
	if err != nil {
		return err
	}
	if debug {
		fmt.Fprintln(out, ack)
	} else {
		fmt.Fprintf(out, "\n%s... Please wait.\n", ack)
	}

	if _, err := attempt.AwaitConfirmation(ctx); err != nil {
		return err
	}

	result, err := attempt.Finalize(ctx, debug)
	if err != nil {
		return err
	}

	report := attempt.Report()
	if req.Mode() == upgrade.ModeRepository && !debug {
		fmt.Fprintf(out, "Agent upgraded: %s -> %s\n", report.PreviousVersion, report.CurrentVersion)
	} else {
		fmt.Fprintln(out, result)
	}
	return nil
}

// reportError prints err the way operators expect and returns it so the
// process exits with status 1. Debug mode adds the full error chain.
func reportError(w io.Writer, err error, debug bool) error {
	var e *upgrade.Error
	switch {
	case errors.As(err, &e) && e.Code != upgrade.CodeInternal:
		fmt.Fprintf(w, "Error %d: %s\n", e.Code, operatorMessage(e))
	case e != nil && e.Err != nil:
		fmt.Fprintf(w, "Internal error: %v\n", e.Err)
	case e != nil && e.Detail != "":
		fmt.Fprintf(w, "Internal error: %s\n", e.Detail)
	default:
		fmt.Fprintf(w, "Internal error: %v\n", err)
	}

	if debug {
		cause := err
		if e != nil && e.Err != nil {
			cause = e.Err
		}
		fmt.Fprintf(w, "%+v\n", cause)
	}
	return err
}

// operatorMessage leaves out causes that only repeat the message, such as
// the registry's not-found error.
func operatorMessage(e *upgrade.Error) string {
	msg := e.Message
	if e.Detail != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Detail)
	}
	if e.Err != nil && (e.Kind == upgrade.KindTransferDispatch || e.Code == upgrade.CodeInterrupted) {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func pushMetrics(ctx context.Context, m *metrics.Metrics, opts *options.UpgradeOptions) {
	if opts.Metrics.PushGateway == "" {
		return
	}

	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := m.Push(pushCtx, opts.Metrics.PushGateway, opts.Metrics.Job, opts.AgentID); err != nil {
		log.Warn("Failed to push metrics", "error", err)
	}
}
