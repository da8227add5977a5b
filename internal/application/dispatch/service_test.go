package dispatch

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/doeshing/aiosd/internal/domain"
	"github.com/doeshing/aiosd/internal/pkg/logger"
)

type stubRegistry struct {
	current      domain.ModelProfile
	selected     string
	setErr       error
	statsModel   string
	statsSuccess bool
	statsLatency float64
	saved        bool
}

func (r *stubRegistry) SelectForCommand(command string) domain.ModelProfile {
	r.selected = command
	return r.current
}
func (r *stubRegistry) Current() domain.ModelProfile { return r.current }
func (r *stubRegistry) SetModel(name string) error {
	if r.setErr != nil {
		return r.setErr
	}
	r.current.Name = name
	return nil
}
func (r *stubRegistry) UpdateStats(name string, success bool, responseTime float64) {
	r.statsModel = name
	r.statsSuccess = success
	r.statsLatency = responseTime
}
func (r *stubRegistry) Profiles() []domain.ModelProfile {
	return []domain.ModelProfile{r.current}
}
func (r *stubRegistry) Classify(command string) domain.TaskType { return domain.TaskGeneral }
func (r *stubRegistry) Save() error                             { r.saved = true; return nil }

type stubInterpreter struct {
	command   string
	chatReply string
	err       error
	statusErr error
	prompt    string
	summary   string
}

func (i *stubInterpreter) Generate(ctx context.Context, profile domain.ModelProfile, prompt, contextSummary string) (string, error) {
	i.prompt = prompt
	i.summary = contextSummary
	return i.command, i.err
}
func (i *stubInterpreter) Chat(ctx context.Context, profile domain.ModelProfile, message, contextSummary string) (string, error) {
	return i.chatReply, i.err
}
func (i *stubInterpreter) CheckStatus(ctx context.Context) error { return i.statusErr }
func (i *stubInterpreter) ListModels(ctx context.Context) ([]string, error) {
	return []string{i.command}, nil
}

type stubGate struct {
	verdict domain.SafetyVerdict
}

func (g *stubGate) Evaluate(command string) domain.SafetyAssessment {
	return domain.SafetyAssessment{
		Verdict: g.verdict,
		Command: command,
		Reason:  "stub reason",
	}
}

type stubExecutor struct {
	result   domain.ExecutionResult
	received string
}

func (e *stubExecutor) Execute(ctx context.Context, command string) domain.ExecutionResult {
	e.received = command
	return e.result
}

type stubFeedback struct {
	suggestion string
	has        bool
	recorded   []domain.FeedbackEntry
}

func (f *stubFeedback) Record(entry domain.FeedbackEntry) error {
	f.recorded = append(f.recorded, entry)
	return nil
}
func (f *stubFeedback) Suggest(natural string) (string, bool) { return f.suggestion, f.has }
func (f *stubFeedback) ModelStats(model string) domain.FeedbackModelStats {
	return domain.FeedbackModelStats{}
}
func (f *stubFeedback) Entries() []domain.FeedbackEntry { return f.recorded }

type stubHistory struct {
	records []domain.InterpretationRecord
}

func (h *stubHistory) Save(record domain.InterpretationRecord) error {
	h.records = append(h.records, record)
	return nil
}
func (h *stubHistory) Records(limit int, search string) ([]domain.InterpretationRecord, error) {
	return h.records, nil
}

type stubTracker struct {
	stale     bool
	refreshed bool
	commands  []string
	snapshot  domain.SessionContext
}

func (t *stubTracker) NeedsRefresh() bool              { return t.stale }
func (t *stubTracker) Refresh(ctx context.Context)     { t.refreshed = true; t.stale = false }
func (t *stubTracker) AddCommand(cmd string)           { t.commands = append(t.commands, cmd) }
func (t *stubTracker) Summarize() string               { return "User: bob@host in /tmp" }
func (t *stubTracker) Snapshot() domain.SessionContext { return t.snapshot }

type fixture struct {
	service  *Service
	registry *stubRegistry
	backend  *stubInterpreter
	gate     *stubGate
	executor *stubExecutor
	feedback *stubFeedback
	history  *stubHistory
	tracker  *stubTracker
}

func newFixture() *fixture {
	f := &fixture{
		registry: &stubRegistry{current: domain.ModelProfile{Name: "phi3:mini", Enabled: true}},
		backend:  &stubInterpreter{command: "ls -la", chatReply: "hello there"},
		gate:     &stubGate{verdict: domain.VerdictSafe},
		executor: &stubExecutor{result: domain.ExecutionResult{Ran: true, Output: "ok\n"}},
		feedback: &stubFeedback{},
		history:  &stubHistory{},
		tracker:  &stubTracker{},
	}
	f.service = &Service{
		Registry:       f.registry,
		Interpreter:    f.backend,
		Gate:           f.gate,
		Executor:       f.executor,
		Feedback:       f.feedback,
		History:        f.history,
		Logger:         logger.NewNop(),
		InputClassify:  func(s string) string { return "command" },
		StartedAt:      time.Now().Add(-time.Minute),
		ActiveSessions: func() int { return 1 },
	}
	return f
}

func (f *fixture) handle(req domain.Request) domain.Response {
	return f.service.Handle(context.Background(), Session{ID: "s-1", Tracker: f.tracker}, req)
}

func TestInterpretAutoExecutesWhenConfirmationOff(t *testing.T) {
	// A safe verdict means confirmation mode is off.
	f := newFixture()

	resp := f.handle(domain.Request{Action: domain.ActionInterpret, Command: "list files"})
	if resp.Status != domain.StatusSuccess {
		t.Fatalf("status = %s: %s", resp.Status, resp.Message)
	}
	if resp.InterpretedCommand != "ls -la" {
		t.Fatalf("interpreted = %q", resp.InterpretedCommand)
	}
	if f.executor.received != "ls -la" {
		t.Fatalf("executed %q, want ls -la", f.executor.received)
	}
	if resp.ExecutionResult != "ok\n" || resp.ExitCode == nil {
		t.Fatalf("resp = %+v", resp)
	}
	if f.registry.statsModel != "phi3:mini" || !f.registry.statsSuccess {
		t.Fatalf("stats not recorded: %+v", f.registry)
	}
	if len(f.history.records) != 1 || !f.history.records[0].Executed {
		t.Fatalf("history = %+v", f.history.records)
	}
}

func TestInterpretUsesFeedbackSuggestion(t *testing.T) {
	f := newFixture()
	f.feedback.suggestion = "git status"
	f.feedback.has = true
	f.gate.verdict = domain.VerdictConfirmRequired

	resp := f.handle(domain.Request{Action: domain.ActionInterpret, Command: "show repo state"})
	if resp.InterpretedCommand != "git status" || !resp.FromFeedback {
		t.Fatalf("resp = %+v", resp)
	}
	if f.backend.prompt != "" {
		t.Fatal("backend consulted despite suggestion")
	}
}

func TestInterpretBlockedCommandIsUnsafe(t *testing.T) {
	f := newFixture()
	f.backend.command = "rm -rf /"
	f.gate.verdict = domain.VerdictBlocked

	resp := f.handle(domain.Request{Action: domain.ActionInterpret, Command: "wipe the disk"})
	if resp.Status != domain.StatusUnsafe {
		t.Fatalf("status = %s", resp.Status)
	}
	if f.executor.received != "" {
		t.Fatal("blocked command reached the executor")
	}
}

func TestInterpretConfirmationModeSetsFlag(t *testing.T) {
	f := newFixture()
	f.gate.verdict = domain.VerdictConfirmRequired

	resp := f.handle(domain.Request{Action: domain.ActionInterpret, Command: "list files"})
	if resp.Status != domain.StatusSuccess || !resp.ConfirmRequired {
		t.Fatalf("resp = %+v", resp)
	}
	if f.executor.received != "" {
		t.Fatal("confirmation-pending command reached the executor")
	}
}

func TestInterpretMapsBackendSentinels(t *testing.T) {
	cases := []struct {
		err  error
		want domain.Status
	}{
		{domain.ErrUnsafeRequest, domain.StatusUnsafe},
		{domain.ErrUnclearRequest, domain.StatusUnclear},
	}
	for _, tc := range cases {
		f := newFixture()
		f.backend.err = tc.err
		resp := f.handle(domain.Request{Action: domain.ActionInterpret, Command: "do something"})
		if resp.Status != tc.want {
			t.Errorf("err %v: status = %s, want %s", tc.err, resp.Status, tc.want)
		}
		if f.registry.statsSuccess {
			t.Errorf("err %v: recorded as success", tc.err)
		}
	}
}

func TestInterpretRefreshesStaleContext(t *testing.T) {
	f := newFixture()
	f.tracker.stale = true

	f.handle(domain.Request{Action: domain.ActionInterpret, Command: "list files"})
	if !f.tracker.refreshed {
		t.Fatal("stale context not refreshed")
	}
	if !strings.Contains(f.backend.summary, "bob@host") {
		t.Fatalf("context summary not passed: %q", f.backend.summary)
	}
}

func TestExecuteInterpretedCommandSkipsBackend(t *testing.T) {
	f := newFixture()

	resp := f.handle(domain.Request{
		Action:      domain.ActionExecute,
		Command:     "list files",
		Interpreted: "ls -la",
	})
	if resp.Status != domain.StatusSuccess {
		t.Fatalf("status = %s: %s", resp.Status, resp.Message)
	}
	if f.backend.prompt != "" {
		t.Fatal("backend consulted for pre-interpreted command")
	}
	if f.executor.received != "ls -la" {
		t.Fatalf("executed %q", f.executor.received)
	}
	if resp.ExecutionResult != "ok\n" || resp.ExitCode == nil || *resp.ExitCode != 0 {
		t.Fatalf("resp = %+v", resp)
	}
	if len(f.tracker.commands) != 1 || f.tracker.commands[0] != "ls -la" {
		t.Fatalf("tracker commands = %v", f.tracker.commands)
	}
}

func TestExecuteConfirmationVerdictStillRuns(t *testing.T) {
	// The explicit execute request is the confirmation.
	f := newFixture()
	f.gate.verdict = domain.VerdictConfirmRequired

	resp := f.handle(domain.Request{Action: domain.ActionExecute, Interpreted: "ls -la"})
	if resp.Status != domain.StatusSuccess {
		t.Fatalf("status = %s", resp.Status)
	}
	if f.executor.received != "ls -la" {
		t.Fatal("confirmed command did not run")
	}
}

func TestExecuteBlockedCommandNeverRuns(t *testing.T) {
	f := newFixture()
	f.gate.verdict = domain.VerdictBlocked

	resp := f.handle(domain.Request{Action: domain.ActionExecute, Interpreted: "rm -rf /"})
	if resp.Status != domain.StatusUnsafe {
		t.Fatalf("status = %s", resp.Status)
	}
	if f.executor.received != "" {
		t.Fatal("blocked command reached the executor")
	}
}

func TestExecuteNaturalLanguageInterpretsFirst(t *testing.T) {
	f := newFixture()
	f.backend.command = "df -h"

	resp := f.handle(domain.Request{Action: domain.ActionExecute, Command: "show disk usage"})
	if resp.Status != domain.StatusSuccess {
		t.Fatalf("status = %s: %s", resp.Status, resp.Message)
	}
	if f.backend.prompt != "show disk usage" {
		t.Fatalf("backend prompt = %q", f.backend.prompt)
	}
	if f.executor.received != "df -h" {
		t.Fatalf("executed %q", f.executor.received)
	}
	if len(f.history.records) != 1 || !f.history.records[0].Executed {
		t.Fatalf("history = %+v", f.history.records)
	}
}

func TestExecuteReportsNonZeroExit(t *testing.T) {
	f := newFixture()
	f.executor.result = domain.ExecutionResult{Ran: true, Output: "no such file\n", ExitCode: 2}

	resp := f.handle(domain.Request{Action: domain.ActionExecute, Interpreted: "ls /missing"})
	if resp.Status != domain.StatusSuccess {
		t.Fatalf("status = %s", resp.Status)
	}
	if resp.ExitCode == nil || *resp.ExitCode != 2 {
		t.Fatalf("exit code = %v", resp.ExitCode)
	}
}

func TestStatusReportsDaemonAndBackend(t *testing.T) {
	f := newFixture()

	resp := f.handle(domain.Request{Action: domain.ActionStatus})
	if resp.Status != domain.StatusSuccess || resp.DaemonStatus != "running" {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.BackendStatus != "reachable" {
		t.Fatalf("backend status = %q", resp.BackendStatus)
	}
	if resp.CurrentModel != "phi3:mini" || len(resp.AvailableModels) != 1 {
		t.Fatalf("model info = %q %v", resp.CurrentModel, resp.AvailableModels)
	}
	if resp.SafetyMode == nil || !*resp.SafetyMode {
		t.Fatal("safety mode missing or off")
	}
	if resp.ActiveSessions == nil || *resp.ActiveSessions != 1 {
		t.Fatalf("active sessions = %v", resp.ActiveSessions)
	}
	if resp.UptimeSeconds == nil || *resp.UptimeSeconds < 59 {
		t.Fatalf("uptime = %v", resp.UptimeSeconds)
	}
}

func TestStatusSurvivesUnreachableBackend(t *testing.T) {
	f := newFixture()
	f.backend.statusErr = context.DeadlineExceeded

	resp := f.handle(domain.Request{Action: domain.ActionStatus})
	if resp.Status != domain.StatusSuccess {
		t.Fatalf("status = %s", resp.Status)
	}
	if !strings.HasPrefix(resp.BackendStatus, "unreachable") {
		t.Fatalf("backend status = %q", resp.BackendStatus)
	}
}

func TestSetModelPersistsSelection(t *testing.T) {
	f := newFixture()

	resp := f.handle(domain.Request{Action: domain.ActionSetModel, Model: "mistral:7b-instruct"})
	if resp.Status != domain.StatusSuccess || resp.CurrentModel != "mistral:7b-instruct" {
		t.Fatalf("resp = %+v", resp)
	}
	if !f.registry.saved {
		t.Fatal("selection not persisted")
	}
}

func TestSetModelRejectsUnknown(t *testing.T) {
	f := newFixture()
	f.registry.setErr = domain.ErrUnclearRequest // any error will do

	resp := f.handle(domain.Request{Action: domain.ActionSetModel, Model: "missing"})
	if resp.Status != domain.StatusError {
		t.Fatalf("status = %s", resp.Status)
	}
}

func TestGetContextReturnsSnapshot(t *testing.T) {
	f := newFixture()
	f.tracker.snapshot = domain.SessionContext{Username: "bob", Hostname: "host"}

	resp := f.handle(domain.Request{Action: domain.ActionGetContext})
	if resp.Status != domain.StatusSuccess || resp.Context == nil {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.Context.Username != "bob" {
		t.Fatalf("context = %+v", resp.Context)
	}
}

func TestClassifyUsesInputClassifier(t *testing.T) {
	f := newFixture()
	f.service.InputClassify = func(s string) string { return "chat" }

	resp := f.handle(domain.Request{Action: domain.ActionClassify, Command: "hello there"})
	if resp.Classification != "chat" {
		t.Fatalf("classification = %q", resp.Classification)
	}
}

func TestChatReturnsReply(t *testing.T) {
	f := newFixture()

	resp := f.handle(domain.Request{Action: domain.ActionChat, Command: "how are you"})
	if resp.Status != domain.StatusSuccess || resp.ChatResponse != "hello there" {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestFeedbackRecordsEntry(t *testing.T) {
	f := newFixture()
	accepted := true

	resp := f.handle(domain.Request{
		Action:      domain.ActionFeedback,
		Command:     "list files",
		Interpreted: "ls -la",
		Accepted:    &accepted,
	})
	if resp.Status != domain.StatusSuccess {
		t.Fatalf("status = %s: %s", resp.Status, resp.Message)
	}
	if len(f.feedback.recorded) != 1 {
		t.Fatalf("recorded = %v", f.feedback.recorded)
	}
	entry := f.feedback.recorded[0]
	if entry.NaturalCommand != "list files" || !entry.Accepted || entry.ModelUsed != "phi3:mini" {
		t.Fatalf("entry = %+v", entry)
	}
}

func TestFeedbackRequiresAllFields(t *testing.T) {
	f := newFixture()

	resp := f.handle(domain.Request{Action: domain.ActionFeedback, Command: "list files"})
	if resp.Status != domain.StatusError {
		t.Fatalf("status = %s", resp.Status)
	}
}

func TestUnknownActionIsError(t *testing.T) {
	f := newFixture()

	resp := f.handle(domain.Request{Action: "reboot_universe"})
	if resp.Status != domain.StatusError {
		t.Fatalf("status = %s", resp.Status)
	}
}

func TestMissingCommandIsError(t *testing.T) {
	for _, action := range []domain.Action{domain.ActionInterpret, domain.ActionExecute, domain.ActionClassify, domain.ActionChat} {
		f := newFixture()
		resp := f.handle(domain.Request{Action: action})
		if resp.Status != domain.StatusError {
			t.Errorf("%s: status = %s, want error", action, resp.Status)
		}
	}
}
