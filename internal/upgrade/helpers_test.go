package upgrade

import (
	"context"
	"sync"
	"testing"
	"time"

	testingclock "k8s.io/utils/clock/testing"
	"k8s.io/utils/ptr"

	"github.com/autopeer-io/agentupgrade/internal/endpoint"
)

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func activeEndpoint(keepAlive time.Time) *endpoint.Endpoint {
	return &endpoint.Endpoint{
		ID:            "001",
		Name:          "edge-01",
		IP:            "10.0.0.1",
		Status:        endpoint.StatusActive,
		Version:       "v4.1.0",
		LastKeepAlive: keepAlive,
	}
}

// scriptedReader returns script(n) on the n-th reload, counting from 1.
type scriptedReader struct {
	mu     sync.Mutex
	calls  int
	script func(n int) (*endpoint.Endpoint, error)
}

func (r *scriptedReader) Reload(ctx context.Context) (*endpoint.Endpoint, error) {
	r.mu.Lock()
	r.calls++
	n := r.calls
	r.mu.Unlock()
	return r.script(n)
}

func (r *scriptedReader) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// keepAliveChangesAt serves the baseline until reload number change, then a
// later keep-alive. A change of 0 never happens.
func keepAliveChangesAt(change int) *scriptedReader {
	return &scriptedReader{script: func(n int) (*endpoint.Endpoint, error) {
		if change > 0 && n >= change {
			ep := activeEndpoint(epoch.Add(time.Duration(n) * time.Minute))
			ep.Version = "v4.2.0"
			return ep, nil
		}
		return activeEndpoint(epoch), nil
	}}
}

type fakeTransfer struct {
	custom     []CustomTransfer
	repository []RepositoryTransfer
	fetches    int

	ack       string
	result    string
	startErr  error
	resultErr error
	progress  []int
}

func (f *fakeTransfer) StartCustom(ctx context.Context, t CustomTransfer, progress ProgressReporter) (string, error) {
	f.custom = append(f.custom, t)
	return f.start(progress)
}

func (f *fakeTransfer) StartRepository(ctx context.Context, t RepositoryTransfer, progress ProgressReporter) (string, error) {
	f.repository = append(f.repository, t)
	return f.start(progress)
}

func (f *fakeTransfer) start(progress ProgressReporter) (string, error) {
	if f.startErr != nil {
		return "", f.startErr
	}
	for _, p := range f.progress {
		progress.Report(p)
	}
	return f.ack, nil
}

func (f *fakeTransfer) FetchResult(ctx context.Context, debug bool) (string, error) {
	f.fetches++
	if f.resultErr != nil {
		return "", f.resultErr
	}
	return f.result, nil
}

func (f *fakeTransfer) calls() int {
	return len(f.custom) + len(f.repository) + f.fetches
}

type fakeRecorder struct {
	mu       sync.Mutex
	attempts []string
	polls    []int
}

func (r *fakeRecorder) ObserveAttempt(mode, outcome string, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, mode+"/"+outcome)
}

func (r *fakeRecorder) ObservePolls(polls int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.polls = append(r.polls, polls)
}

// fastConfig keeps the production retry budget shape but never waits.
func fastConfig(retries int) Config {
	cfg := DefaultConfig()
	cfg.Retries = retries
	cfg.Interval = 0
	cfg.CustomTiming = Timing{}
	cfg.RepositoryTiming = Timing{}
	return cfg
}

// driveClock steps fc by one second whenever a timer is pending until the
// returned stop function is called.
func driveClock(t *testing.T, fc *testingclock.FakeClock) (stop func()) {
	t.Helper()

	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		for {
			select {
			case <-done:
				return
			default:
			}
			if fc.HasWaiters() {
				fc.Step(time.Second)
				continue
			}
			time.Sleep(time.Millisecond)
		}
	}()

	return func() {
		close(done)
		<-finished
	}
}

func repositoryRequest() *Request {
	return &Request{AgentID: "001"}
}

func customRequest() *Request {
	return &Request{AgentID: "001", FilePath: "/tmp/custom.wpk", ChunkSize: ptr.To(1024)}
}
