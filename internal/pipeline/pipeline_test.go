package pipeline_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sebastian-xyz/scanpi/internal/domain"
	"github.com/sebastian-xyz/scanpi/internal/pipeline"
	"github.com/sebastian-xyz/scanpi/internal/publish"
	"github.com/sebastian-xyz/scanpi/internal/remote"
	"github.com/sebastian-xyz/scanpi/internal/remote/remotetest"
)

// scriptedOperator answers prompts from a script.
type scriptedOperator struct {
	declinePage int // 1-based page to decline, 0 for none
	pageErr     error
	name        string
	publish     bool

	confirmed    []int
	nameAsked    int
	publishAsked int
}

func (o *scriptedOperator) ConfirmPage(_ context.Context, page, total int) (bool, error) {
	if o.pageErr != nil {
		return false, o.pageErr
	}
	if page == o.declinePage {
		return false, nil
	}
	o.confirmed = append(o.confirmed, page)
	return true, nil
}

func (o *scriptedOperator) DocumentName(_ context.Context, fallback string) (string, error) {
	o.nameAsked++
	if o.name == "" {
		return fallback, nil
	}
	return o.name, nil
}

func (o *scriptedOperator) ConfirmPublish(context.Context, string) (bool, error) {
	o.publishAsked++
	return o.publish, nil
}

// stageCounter counts observer events.
type stageCounter struct {
	started  map[domain.Stage]int
	failed   map[domain.Stage]error
	captured []domain.PageIndex
}

func newStageCounter() *stageCounter {
	return &stageCounter{started: map[domain.Stage]int{}, failed: map[domain.Stage]error{}}
}

func (s *stageCounter) StageStarted(stage domain.Stage, _ string) { s.started[stage]++ }

func (s *stageCounter) StageFinished(stage domain.Stage, err error) {
	if err != nil {
		s.failed[stage] = err
	}
}

func (s *stageCounter) PageCaptured(index domain.PageIndex, _ int) {
	s.captured = append(s.captured, index)
}

type fakePublisher struct {
	err   error
	paths []string
}

func (p *fakePublisher) Publish(_ context.Context, path string) error {
	p.paths = append(p.paths, path)
	return p.err
}

type fakeVerifier struct {
	count int
	err   error
}

func (v fakeVerifier) PageCount(context.Context, string) (int, error) { return v.count, v.err }

type fakeRecorder struct {
	results []*domain.PipelineResult
}

func (r *fakeRecorder) Record(_ context.Context, result *domain.PipelineResult) error {
	r.results = append(r.results, result)
	return nil
}

type harness struct {
	host     *remotetest.Host
	operator *scriptedOperator
	observer *stageCounter
	recorder *fakeRecorder
	workDir  string
	tempDir  string
	cfg      pipeline.Config
	deps     pipeline.Dependencies
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		host:     remotetest.NewHost("pi@scanpi"),
		operator: &scriptedOperator{},
		observer: newStageCounter(),
		recorder: &fakeRecorder{},
		workDir:  t.TempDir(),
		tempDir:  t.TempDir(),
	}
	h.cfg = pipeline.Config{
		StagingDir: "batch_scans",
		WorkDir:    h.workDir,
		TempDir:    h.tempDir,
		Publish:    pipeline.PublishAsk,
	}
	return h
}

func (h *harness) run(t *testing.T, job domain.ScanJob) (*domain.PipelineResult, error) {
	t.Helper()
	target, err := remote.ParseTarget(h.host.Destination)
	require.NoError(t, err)
	exec := remote.NewSSHExecutor(target, h.host, remote.Config{}, nil)

	deps := h.deps
	deps.Observer = h.observer
	deps.Recorder = h.recorder
	p := pipeline.NewPipeline(nil, h.cfg, exec, h.operator, deps)
	return p.Run(context.Background(), job)
}

func a4Job(pages int) domain.ScanJob {
	return domain.ScanJob{Pages: pages, Format: domain.FormatA4, Resolution: 400, OutputName: "scan"}
}

func captures(host *remotetest.Host) []remotetest.Call {
	var out []remotetest.Call
	for _, c := range host.CommandsNamed("scanimage") {
		if c.Command[1] != "-L" {
			out = append(out, c)
		}
	}
	return out
}

func countLine(host *remotetest.Host, line string) int {
	n := 0
	for _, l := range host.Commands() {
		if l == line {
			n++
		}
	}
	return n
}

func TestSinglePageScan(t *testing.T) {
	h := newHarness(t)

	result, err := h.run(t, a4Job(1))
	require.NoError(t, err)
	require.True(t, result.Succeeded())

	caps := captures(h.host)
	require.Len(t, caps, 1)
	assert.Equal(t,
		"scanimage --format=pdf --resolution=400 -x 210 -y 297 --output-file out.pdf",
		caps[0].Line())

	fetches := h.host.Fetches()
	require.Len(t, fetches, 1)
	args := fetches[0].Args
	assert.Equal(t, "pi@scanpi:out.pdf", args[len(args)-2])
	assert.True(t, strings.HasPrefix(args[len(args)-1], h.tempDir), "retrieval lands in a transient location")

	assert.Equal(t, filepath.Join(h.workDir, "scan.pdf"), result.DocumentPath)
	data, err := os.ReadFile(result.DocumentPath)
	require.NoError(t, err)
	assert.Equal(t, "page-1", string(data))

	assert.Empty(t, h.host.CommandsNamed("gs"), "no merge for a single page")
	assert.Empty(t, h.host.CommandsNamed("mkdir"), "no staging directory for a single page")
	assert.Empty(t, h.host.CommandsNamed("cp"))
	assert.Equal(t, 1, countLine(h.host, "rm -f out.pdf"))
	assert.Zero(t, countLine(h.host, "rm -rf batch_scans"))
	assert.Empty(t, h.host.Files())

	assert.Equal(t, []int{1}, h.operator.confirmed)
	assert.Equal(t, 1, h.observer.started[domain.StageCleaningUp])
	assert.Equal(t, []domain.PageIndex{0}, h.observer.captured)

	entries, err := os.ReadDir(h.tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "transient files are removed")
}

func TestBatchScan(t *testing.T) {
	h := newHarness(t)

	result, err := h.run(t, a4Job(3))
	require.NoError(t, err)
	require.True(t, result.Succeeded())

	assert.Equal(t, 1, countLine(h.host, "mkdir -p batch_scans"))
	assert.Len(t, captures(h.host), 3)

	cps := h.host.CommandsNamed("cp")
	require.Len(t, cps, 3)
	for i, want := range []string{"out00.pdf", "out01.pdf", "out02.pdf"} {
		assert.Equal(t, "cp out.pdf batch_scans/"+want, cps[i].Line())
	}

	merges := h.host.CommandsNamed("gs")
	require.Len(t, merges, 1)
	cmd := merges[0].Command
	assert.Contains(t, cmd, "-sPAPERSIZE=a4")
	assert.Contains(t, cmd, "-sOutputFile=batch_scans/scan.pdf")
	assert.Equal(t,
		[]string{"batch_scans/out00.pdf", "batch_scans/out01.pdf", "batch_scans/out02.pdf"},
		cmd[len(cmd)-3:])

	fetches := h.host.Fetches()
	require.Len(t, fetches, 1)
	assert.Equal(t, "pi@scanpi:batch_scans/scan.pdf", fetches[0].Args[len(fetches[0].Args)-2])

	assert.Equal(t, 1, countLine(h.host, "rm -rf batch_scans"))
	assert.False(t, h.host.HasDir("batch_scans"))
	assert.Empty(t, h.host.Files())

	data, err := os.ReadFile(result.DocumentPath)
	require.NoError(t, err)
	assert.Equal(t, "page-1\npage-2\npage-3", string(data), "pages merged in capture order")

	assert.Equal(t, []int{1, 2, 3}, h.operator.confirmed)
	assert.Equal(t, []domain.PageIndex{0, 1, 2}, h.observer.captured)
	assert.Equal(t, 1, h.observer.started[domain.StageMerging])
}

func TestBatchScanWithSpacedStagingDir(t *testing.T) {
	h := newHarness(t)
	h.cfg.StagingDir = "my scans"

	result, err := h.run(t, a4Job(2))
	require.NoError(t, err)
	require.True(t, result.Succeeded())

	assert.Equal(t, 1, countLine(h.host, "mkdir -p my scans"))
	mkdirs := h.host.CommandsNamed("mkdir")
	require.Len(t, mkdirs, 1)
	assert.Equal(t, []string{"mkdir", "-p", "my scans"}, mkdirs[0].Command)

	rms := h.host.CommandsNamed("rm")
	require.NotEmpty(t, rms)
	assert.Equal(t, []string{"rm", "-rf", "my scans"}, rms[len(rms)-1].Command)

	assert.False(t, h.host.HasDir("my scans"))
	assert.False(t, h.host.HasDir("my"))
	assert.Empty(t, h.host.Files())
}

func TestBatchClearsSlotAfterEveryPage(t *testing.T) {
	h := newHarness(t)

	_, err := h.run(t, a4Job(2))
	require.NoError(t, err)

	var sequence []string
	for _, line := range h.host.Commands() {
		switch {
		case strings.HasPrefix(line, "scanimage --format"):
			sequence = append(sequence, "scan")
		case strings.HasPrefix(line, "cp "):
			sequence = append(sequence, "cp")
		case line == "rm -f out.pdf":
			sequence = append(sequence, "rm")
		}
	}
	// The last rm is the cleanup stage.
	assert.Equal(t, []string{"scan", "cp", "rm", "scan", "cp", "rm", "rm"}, sequence)
}

func TestBatchCaptureFailure(t *testing.T) {
	h := newHarness(t)
	// The first scanimage call is the device probe, the third captures page 2.
	h.host.Fail = remotetest.FailOn("scanimage", 3, 1)

	result, err := h.run(t, a4Job(3))
	require.Error(t, err)
	assert.False(t, result.Succeeded())
	assert.Equal(t, domain.StageCapturing, result.FailedStage)
	assert.True(t, domain.IsType(err, domain.ErrorTypeRemoteCommand))

	assert.Len(t, h.host.CommandsNamed("cp"), 1)
	assert.Empty(t, h.host.CommandsNamed("gs"), "no partial merge")
	assert.Empty(t, h.host.Fetches())
	assert.Equal(t, 1, countLine(h.host, "rm -rf batch_scans"))
	assert.False(t, h.host.HasDir("batch_scans"))
	assert.Empty(t, h.host.Files())
	assert.Equal(t, 1, h.observer.started[domain.StageCleaningUp])

	entries, err := os.ReadDir(h.workDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPublishFailureKeepsDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, "consumer unavailable")
	}))
	defer srv.Close()

	h := newHarness(t)
	h.operator.publish = true
	h.deps.Publisher = publish.NewClient(publish.Config{BaseURL: srv.URL, APIKey: "secret"}, nil)

	job := a4Job(1)
	job.OutputName = "invoice"
	result, err := h.run(t, job)

	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorTypeUpload))
	assert.Contains(t, err.Error(), "500")
	assert.True(t, result.Succeeded(), "an upload failure does not fail the scan")
	assert.Empty(t, result.FailedStage)
	assert.False(t, result.Published)
	require.Error(t, result.PublishErr)

	_, statErr := os.Stat(filepath.Join(h.workDir, "invoice.pdf"))
	assert.NoError(t, statErr)
	assert.Equal(t, 1, h.operator.publishAsked)
}

func TestInvalidPageCountTouchesNothing(t *testing.T) {
	for _, pages := range []int{0, -1} {
		h := newHarness(t)

		result, err := h.run(t, a4Job(pages))
		require.Error(t, err)
		assert.True(t, domain.IsType(err, domain.ErrorTypeConfig))
		assert.Equal(t, domain.StageValidating, result.FailedStage)
		assert.Empty(t, h.host.Calls(), "no remote command may be issued")
		assert.Zero(t, h.observer.started[domain.StageCleaningUp])
		assert.Len(t, h.recorder.results, 1)
	}
}

func TestInvalidJobSettings(t *testing.T) {
	tests := []struct {
		name string
		job  domain.ScanJob
		cfg  func(*pipeline.Config)
	}{
		{"unknown format", domain.ScanJob{Pages: 1, Format: "a3", Resolution: 400}, nil},
		{"non-canonical format", domain.ScanJob{Pages: 2, Format: "A4", Resolution: 400}, nil},
		{"unsupported resolution", domain.ScanJob{Pages: 1, Format: domain.FormatA4, Resolution: 300}, nil},
		{"batch without staging dir", a4Job(2), func(c *pipeline.Config) { c.StagingDir = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			if tt.cfg != nil {
				tt.cfg(&h.cfg)
			}
			_, err := h.run(t, tt.job)
			require.Error(t, err)
			assert.True(t, domain.IsType(err, domain.ErrorTypeConfig))
			assert.Empty(t, h.host.Calls())
		})
	}
}

func TestCleanupRunsOnceOnEveryAbort(t *testing.T) {
	tests := []struct {
		name      string
		pages     int
		setup     func(h *harness)
		stage     domain.Stage
		errType   domain.ErrorType
		stagedDir bool
	}{
		{
			name:    "host unreachable",
			pages:   1,
			setup:   func(h *harness) { h.host.Unreachable = true },
			stage:   domain.StageConnecting,
			errType: domain.ErrorTypeTransport,
		},
		{
			name:    "no scanner",
			pages:   2,
			setup:   func(h *harness) { h.host.DeviceListing = "No scanners were identified.\n" },
			stage:   domain.StageProbingDevice,
			errType: domain.ErrorTypeRemoteCommand,
		},
		{
			name:    "single capture fails",
			pages:   1,
			setup:   func(h *harness) { h.host.Fail = remotetest.FailOn("scanimage", 2, 9) },
			stage:   domain.StageCapturing,
			errType: domain.ErrorTypeRemoteCommand,
		},
		{
			name:      "mkdir fails",
			pages:     2,
			setup:     func(h *harness) { h.host.Fail = remotetest.FailOn("mkdir", 1, 1) },
			stage:     domain.StageCapturing,
			errType:   domain.ErrorTypeRemoteCommand,
			stagedDir: true,
		},
		{
			name:      "staging copy fails",
			pages:     2,
			setup:     func(h *harness) { h.host.Fail = remotetest.FailOn("cp", 2, 1) },
			stage:     domain.StageCapturing,
			errType:   domain.ErrorTypeRemoteCommand,
			stagedDir: true,
		},
		{
			name:      "operator declines",
			pages:     3,
			setup:     func(h *harness) { h.operator.declinePage = 2 },
			stage:     domain.StageCapturing,
			errType:   domain.ErrorTypeAborted,
			stagedDir: true,
		},
		{
			name:      "operator input closed",
			pages:     2,
			setup:     func(h *harness) { h.operator.pageErr = io.EOF },
			stage:     domain.StageCapturing,
			errType:   domain.ErrorTypeAborted,
			stagedDir: true,
		},
		{
			name:      "merge fails",
			pages:     2,
			setup:     func(h *harness) { h.host.Fail = remotetest.FailOn("gs", 1, 1) },
			stage:     domain.StageMerging,
			errType:   domain.ErrorTypeRemoteCommand,
			stagedDir: true,
		},
		{
			name:      "no local temp dir",
			pages:     2,
			setup:     func(h *harness) { h.cfg.TempDir = filepath.Join(h.tempDir, "missing") },
			stage:     domain.StageRetrieving,
			errType:   domain.ErrorTypeIO,
			stagedDir: true,
		},
		{
			name:    "retrieval fails",
			pages:   1,
			setup:   func(h *harness) { h.host.FailFetch = true },
			stage:   domain.StageRetrieving,
			errType: domain.ErrorTypeRemoteCommand,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			tt.setup(h)

			result, err := h.run(t, a4Job(tt.pages))
			require.Error(t, err)
			assert.False(t, result.Succeeded())
			assert.Equal(t, tt.stage, result.FailedStage)
			assert.Equal(t, tt.errType, domain.TypeOf(err))
			assert.Equal(t, 1, h.observer.started[domain.StageCleaningUp])
			assert.Equal(t, 1, h.observer.started[domain.StageFailed])
			assert.Equal(t, tt.stagedDir, countLine(h.host, "rm -rf batch_scans") == 1)
			assert.Empty(t, h.host.Files(), "no remote leftovers")
			assert.Len(t, h.recorder.results, 1)
		})
	}
}

func TestCleanupFailureKeepsSuccess(t *testing.T) {
	h := newHarness(t)
	h.host.Fail = func(cmd []string) *remote.Result {
		if cmd[0] == "rm" && cmd[1] == "-rf" {
			return &remote.Result{ExitCode: 1, Stderr: "rm: cannot remove 'batch_scans': Permission denied"}
		}
		return nil
	}

	result, err := h.run(t, a4Job(2))
	require.NoError(t, err)
	assert.True(t, result.Succeeded())
	require.Error(t, result.CleanupErr)
	assert.Contains(t, result.CleanupErr.Error(), "batch_scans")
	assert.True(t, h.host.HasDir("batch_scans"))
}

func TestCleanupFailureOnAbortKeepsPrimaryError(t *testing.T) {
	h := newHarness(t)
	h.host.Fail = func(cmd []string) *remote.Result {
		if cmd[0] == "gs" || (cmd[0] == "rm" && cmd[1] == "-rf") {
			return &remote.Result{ExitCode: 1, Stderr: "failed"}
		}
		return nil
	}

	result, err := h.run(t, a4Job(2))
	require.Error(t, err)
	assert.Equal(t, domain.StageMerging, result.FailedStage)
	assert.Error(t, result.CleanupErr)
	assert.NotErrorIs(t, err, result.CleanupErr)
}

func TestOperatorNamesDocument(t *testing.T) {
	h := newHarness(t)
	h.operator.name = "tax return"

	job := a4Job(1)
	job.OutputName = ""
	result, err := h.run(t, job)
	require.NoError(t, err)
	assert.Equal(t, 1, h.operator.nameAsked)
	assert.Equal(t, filepath.Join(h.workDir, "tax return.pdf"), result.DocumentPath)
}

func TestFinalizeFailureKeepsRetrievedDocument(t *testing.T) {
	h := newHarness(t)
	h.cfg.WorkDir = filepath.Join(h.workDir, "missing")

	result, err := h.run(t, a4Job(1))
	require.Error(t, err)
	assert.Equal(t, domain.StageFinalizing, result.FailedStage)
	assert.True(t, domain.IsType(err, domain.ErrorTypeIO))
	assert.Equal(t, 1, h.observer.started[domain.StageCleaningUp])

	var kept string
	entries, _ := filepath.Glob(filepath.Join(h.tempDir, "*", pipeline.MergedFile))
	if len(entries) == 1 {
		kept = entries[0]
	}
	require.NotEmpty(t, kept, "retrieved document must be kept")
	assert.Contains(t, err.Error(), kept)
}

func TestPublishGating(t *testing.T) {
	tests := []struct {
		name      string
		mode      pipeline.PublishMode
		answer    bool
		published bool
		asked     int
	}{
		{"operator accepts", pipeline.PublishAsk, true, true, 1},
		{"operator declines", pipeline.PublishAsk, false, false, 1},
		{"always", pipeline.PublishAlways, false, true, 0},
		{"never", pipeline.PublishNever, true, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.cfg.Publish = tt.mode
			h.operator.publish = tt.answer
			publisher := &fakePublisher{}
			h.deps.Publisher = publisher

			result, err := h.run(t, a4Job(1))
			require.NoError(t, err)
			assert.Equal(t, tt.published, result.Published)
			assert.Equal(t, tt.asked, h.operator.publishAsked)
			if tt.published {
				assert.Equal(t, []string{result.DocumentPath}, publisher.paths)
			} else {
				assert.Empty(t, publisher.paths)
			}
		})
	}
}

func TestNoPublisherNeverAsks(t *testing.T) {
	h := newHarness(t)
	h.operator.publish = true

	result, err := h.run(t, a4Job(1))
	require.NoError(t, err)
	assert.False(t, result.Published)
	assert.Zero(t, h.operator.publishAsked)
}

func TestVerification(t *testing.T) {
	h := newHarness(t)
	h.deps.Verifier = fakeVerifier{count: 3}

	result, err := h.run(t, a4Job(3))
	require.NoError(t, err)
	assert.Equal(t, 3, result.PageCount)

	h = newHarness(t)
	h.deps.Verifier = fakeVerifier{err: errors.New("not a PDF document")}
	result, err = h.run(t, a4Job(1))
	require.NoError(t, err, "verification only warns")
	assert.Zero(t, result.PageCount)
}

func TestResultIsRecorded(t *testing.T) {
	h := newHarness(t)

	result, err := h.run(t, a4Job(2))
	require.NoError(t, err)
	require.Len(t, h.recorder.results, 1)

	recorded := h.recorder.results[0]
	assert.Same(t, result, recorded)
	assert.NotEmpty(t, recorded.JobID)
	assert.False(t, recorded.FinishedAt.IsZero())
	assert.GreaterOrEqual(t, recorded.Duration().Nanoseconds(), int64(0))
}
