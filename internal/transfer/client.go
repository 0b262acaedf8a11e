package transfer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/autopeer-io/agentupgrade/internal/storage"
	"github.com/autopeer-io/agentupgrade/internal/upgrade"
	"github.com/autopeer-io/agentupgrade/pkg/log"
	pkgmqtt "github.com/autopeer-io/agentupgrade/pkg/mqtt"
	"github.com/autopeer-io/agentupgrade/pkg/mqtt/topic"
)

const qos = pkgmqtt.AtLeastOnce

// Config holds the timeouts of a Client.
type Config struct {
	TopicRoot     string
	AckTimeout    time.Duration
	ResultTimeout time.Duration
	URLExpiry     time.Duration
}

var _ upgrade.Transfer = (*Client)(nil)

// Client talks to one agent over MQTT. Custom packages are staged in object
// storage and handed to the agent as a presigned URL.
type Client struct {
	mqtt    pkgmqtt.Client
	store   storage.Provider
	topics  *topic.Builder
	agentID string
	cfg     Config
	logger  log.Logger

	mu        sync.Mutex
	requestID string
	progress  upgrade.ProgressReporter

	acks    chan Ack
	results chan Result
}

// NewClient returns a Client for agentID. store may be nil when only
// repository upgrades are used.
func NewClient(client pkgmqtt.Client, store storage.Provider, agentID string, cfg Config) *Client {
	return &Client{
		mqtt:    client,
		store:   store,
		topics:  topic.NewBuilder(cfg.TopicRoot),
		agentID: agentID,
		cfg:     cfg,
		logger:  log.WithName("transfer").WithValues("agent", agentID),
		acks:    make(chan Ack, 1),
		results: make(chan Result, 1),
	}
}

// Open subscribes to the agent's report topics. It must be called before any
// transfer is started.
func (c *Client) Open(ctx context.Context) error {
	subs := []struct {
		topic   string
		handler pkgmqtt.MessageHandler
	}{
		{c.topics.UpgradeAck(c.agentID), pkgmqtt.JSONHandler(c.handleAck, c.malformed)},
		{c.topics.UpgradeProgress(c.agentID), pkgmqtt.JSONHandler(c.handleProgress, c.malformed)},
		{c.topics.UpgradeResult(c.agentID), pkgmqtt.JSONHandler(c.handleResult, c.malformed)},
	}

	for _, s := range subs {
		if err := c.mqtt.Subscribe(ctx, s.topic, qos, s.handler); err != nil {
			return errors.Wrapf(err, "failed to subscribe to %s", s.topic)
		}
	}
	return nil
}

// Close removes the subscriptions made by Open.
func (c *Client) Close(ctx context.Context) error {
	var errs []error
	for _, t := range []string{
		c.topics.UpgradeAck(c.agentID),
		c.topics.UpgradeProgress(c.agentID),
		c.topics.UpgradeResult(c.agentID),
	} {
		if err := c.mqtt.Unsubscribe(ctx, t); err != nil {
			errs = append(errs, errors.Wrapf(err, "failed to unsubscribe from %s", t))
		}
	}
	return utilerrors.NewAggregate(errs)
}

// StartCustom stages the file, then asks the agent to download and install it.
func (c *Client) StartCustom(ctx context.Context, t upgrade.CustomTransfer, progress upgrade.ProgressReporter) (string, error) {
	if c.store == nil {
		return "", errors.New("custom file upgrades require object storage")
	}

	f, err := os.Open(t.FilePath)
	if err != nil {
		return "", errors.Wrapf(err, "cannot open WPK file %s", t.FilePath)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", errors.Wrapf(err, "cannot stat WPK file %s", t.FilePath)
	}
	if info.IsDir() {
		return "", errors.Errorf("WPK file %s is a directory", t.FilePath)
	}

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", errors.Wrapf(err, "cannot read WPK file %s", t.FilePath)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", errors.Wrapf(err, "cannot rewind WPK file %s", t.FilePath)
	}

	key := path.Join("custom", t.AgentID, filepath.Base(t.FilePath))
	if err := c.store.Upload(ctx, key, f, info.Size(), progress); err != nil {
		return "", err
	}

	url, err := c.store.PresignedURL(ctx, key, c.cfg.URLExpiry)
	if err != nil {
		return "", err
	}

	return c.send(ctx, &Command{
		Type:             CommandCustom,
		PackageURL:       url,
		Installer:        t.Installer,
		ChunkSize:        t.ChunkSize,
		ReconnectTimeout: t.Timeout,
		SHA256:           hex.EncodeToString(h.Sum(nil)),
	}, nil)
}

// StartRepository asks the agent to fetch a package from a repository. The
// agent's download progress is relayed to progress.
func (c *Client) StartRepository(ctx context.Context, t upgrade.RepositoryTransfer, progress upgrade.ProgressReporter) (string, error) {
	return c.send(ctx, &Command{
		Type:             CommandRepository,
		PackageURL:       PackageURL(t.RepositoryURL, t.Version, t.UseHTTP),
		Version:          t.Version,
		Force:            t.Force,
		ChunkSize:        t.ChunkSize,
		ReconnectTimeout: t.Timeout,
	}, progress)
}

// FetchResult waits for the result of the last started transfer. A failed
// upgrade is returned as an error. In debug mode the agent's detail is appended.
func (c *Client) FetchResult(ctx context.Context, debug bool) (string, error) {
	c.mu.Lock()
	id := c.requestID
	c.mu.Unlock()
	if id == "" {
		return "", errors.New("no upgrade was started")
	}

	timer := time.NewTimer(c.cfg.ResultTimeout)
	defer timer.Stop()

	var res Result
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-timer.C:
		return "", errors.Errorf("no upgrade result received within %s", c.cfg.ResultTimeout)
	case res = <-c.results:
	}

	msg := res.Message
	if debug && res.Detail != "" {
		msg = strings.TrimRight(msg, "\n") + "\n" + res.Detail
	}
	if !res.Succeeded {
		return "", errors.New(msg)
	}
	return msg, nil
}

// PackageURL returns the repository directory of version.
func PackageURL(repository, version string, useHTTP bool) string {
	scheme := "https"
	if useHTTP {
		scheme = "http"
	}
	repository = strings.TrimPrefix(strings.TrimPrefix(repository, "https://"), "http://")
	return fmt.Sprintf("%s://%s/%s/", scheme, strings.TrimRight(repository, "/"), version)
}

func (c *Client) send(ctx context.Context, cmd *Command, progress upgrade.ProgressReporter) (string, error) {
	cmd.RequestID = uuid.NewString()

	c.mu.Lock()
	c.requestID = cmd.RequestID
	c.progress = progress
	c.mu.Unlock()
	c.drain()

	t := c.topics.Upgrade(c.agentID)
	c.logger.Debug("Publishing upgrade command", "topic", t, "request", cmd.RequestID, "type", cmd.Type)
	if err := pkgmqtt.PublishJSON(ctx, c.mqtt, t, qos, cmd); err != nil {
		return "", errors.Wrap(err, "failed to send upgrade command")
	}

	timer := time.NewTimer(c.cfg.AckTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-timer.C:
		return "", errors.Errorf("agent did not acknowledge the upgrade within %s", c.cfg.AckTimeout)
	case ack := <-c.acks:
		if !ack.Accepted {
			return "", errors.Errorf("agent rejected the upgrade: %s", ack.Message)
		}
		return ack.Message, nil
	}
}

// drain discards reports left over from an earlier request.
func (c *Client) drain() {
	for {
		select {
		case <-c.acks:
		case <-c.results:
		default:
			return
		}
	}
}

func (c *Client) current(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return id != "" && id == c.requestID
}

func (c *Client) handleAck(ctx context.Context, topic string, ack Ack) {
	if !c.current(ack.RequestID) {
		return
	}
	select {
	case c.acks <- ack:
	default:
		c.logger.Debug("Dropping duplicate acknowledgment", "request", ack.RequestID)
	}
}

func (c *Client) handleProgress(ctx context.Context, topic string, p Progress) {
	if !c.current(p.RequestID) {
		return
	}

	c.mu.Lock()
	reporter := c.progress
	c.mu.Unlock()

	if reporter != nil {
		reporter.Report(p.Percentage)
	}
}

func (c *Client) handleResult(ctx context.Context, topic string, res Result) {
	if !c.current(res.RequestID) {
		return
	}
	select {
	case c.results <- res:
	default:
		c.logger.Debug("Dropping duplicate result", "request", res.RequestID)
	}
}

func (c *Client) malformed(topic string, err error) {
	c.logger.Warn("Ignoring malformed message", "topic", topic, "error", err)
}
