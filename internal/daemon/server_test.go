package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/doeshing/aiosd/internal/application/dispatch"
	"github.com/doeshing/aiosd/internal/domain"
	"github.com/doeshing/aiosd/internal/pkg/logger"
)

type fakeRegistry struct{}

func (fakeRegistry) SelectForCommand(string) domain.ModelProfile {
	return domain.ModelProfile{Name: "phi3:mini"}
}
func (fakeRegistry) Current() domain.ModelProfile { return domain.ModelProfile{Name: "phi3:mini"} }
func (fakeRegistry) SetModel(string) error        { return nil }
func (fakeRegistry) UpdateStats(string, bool, float64) {}
func (fakeRegistry) Profiles() []domain.ModelProfile {
	return []domain.ModelProfile{{Name: "phi3:mini"}}
}
func (fakeRegistry) Classify(string) domain.TaskType { return domain.TaskGeneral }
func (fakeRegistry) Save() error                     { return nil }

type fakeInterpreter struct{}

func (fakeInterpreter) Generate(ctx context.Context, profile domain.ModelProfile, prompt, contextSummary string) (string, error) {
	return "echo interpreted", nil
}
func (fakeInterpreter) Chat(ctx context.Context, profile domain.ModelProfile, message, contextSummary string) (string, error) {
	return "hi", nil
}
func (fakeInterpreter) CheckStatus(ctx context.Context) error           { return nil }
func (fakeInterpreter) ListModels(ctx context.Context) ([]string, error) { return nil, nil }

type fakeGate struct{}

func (fakeGate) Evaluate(command string) domain.SafetyAssessment {
	return domain.SafetyAssessment{Verdict: domain.VerdictSafe, Command: command}
}

type fakeExecutor struct{}

func (fakeExecutor) Execute(ctx context.Context, command string) domain.ExecutionResult {
	return domain.ExecutionResult{Ran: true, Output: "done"}
}

type fakeFeedback struct{}

func (fakeFeedback) Record(domain.FeedbackEntry) error          { return nil }
func (fakeFeedback) Suggest(string) (string, bool)              { return "", false }
func (fakeFeedback) ModelStats(string) domain.FeedbackModelStats { return domain.FeedbackModelStats{} }
func (fakeFeedback) Entries() []domain.FeedbackEntry            { return nil }

func testService() *dispatch.Service {
	return &dispatch.Service{
		Registry:    fakeRegistry{},
		Interpreter: fakeInterpreter{},
		Gate:        fakeGate{},
		Executor:    fakeExecutor{},
		Feedback:    fakeFeedback{},
		Logger:      logger.NewNop(),
		StartedAt:   time.Now(),
	}
}

func startServer(t *testing.T, maxClients int) (string, *Server, context.CancelFunc) {
	t.Helper()
	socket := filepath.Join(t.TempDir(), "aiosd.sock")
	srv := NewServer(Options{
		SocketPath: socket,
		MaxClients: maxClients,
		Service:    testService(),
		Logger:     logger.NewNop(),
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})

	// Wait for the socket to appear.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := os.Stat(socket); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("socket never appeared")
		}
		time.Sleep(10 * time.Millisecond)
	}
	return socket, srv, cancel
}

func roundTrip(t *testing.T, conn net.Conn, req domain.Request) domain.Response {
	t.Helper()
	if err := json.NewEncoder(conn).Encode(req); err != nil {
		t.Fatalf("encode request: %v", err)
	}
	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	var resp domain.Response
	if err := json.Unmarshal(line, &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func TestStatusRoundTrip(t *testing.T) {
	socket, _, _ := startServer(t, 4)

	conn, err := net.Dial("unix", socket)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	resp := roundTrip(t, conn, domain.Request{Action: domain.ActionStatus})
	if resp.Status != domain.StatusSuccess || resp.DaemonStatus != "running" {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.CurrentModel != "phi3:mini" {
		t.Fatalf("current model = %q", resp.CurrentModel)
	}
}

func TestSocketIsWorldWritable(t *testing.T) {
	socket, _, _ := startServer(t, 4)

	info, err := os.Stat(socket)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o666 {
		t.Fatalf("socket perm = %o, want 666", perm)
	}
}

func TestSessionCapRejectsExtraClient(t *testing.T) {
	socket, srv, _ := startServer(t, 1)

	first, err := net.Dial("unix", socket)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer first.Close()

	// Prove the first session is registered before dialing the second.
	resp := roundTrip(t, first, domain.Request{Action: domain.ActionStatus})
	if resp.Status != domain.StatusSuccess {
		t.Fatalf("first session status = %+v", resp)
	}
	if got := srv.ActiveSessions(); got != 1 {
		t.Fatalf("active sessions = %d, want 1", got)
	}

	second, err := net.Dial("unix", socket)
	if err != nil {
		t.Fatalf("dial second: %v", err)
	}
	defer second.Close()

	line, err := bufio.NewReader(second).ReadBytes('\n')
	if err != nil {
		t.Fatalf("read rejection: %v", err)
	}
	var rejection domain.Response
	if err := json.Unmarshal(line, &rejection); err != nil {
		t.Fatalf("decode rejection: %v", err)
	}
	if rejection.Status != domain.StatusError {
		t.Fatalf("rejection = %+v", rejection)
	}

	// The surviving session keeps working.
	resp = roundTrip(t, first, domain.Request{Action: domain.ActionStatus})
	if resp.Status != domain.StatusSuccess {
		t.Fatalf("first session after rejection = %+v", resp)
	}
}

func TestMalformedLineKeepsSessionAlive(t *testing.T) {
	socket, _, _ := startServer(t, 4)

	conn, err := net.Dial("unix", socket)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("this is not json\n")); err != nil {
		t.Fatalf("write garbage: %v", err)
	}
	reader := bufio.NewReader(conn)
	line, err := reader.ReadBytes('\n')
	if err != nil {
		t.Fatalf("read error response: %v", err)
	}
	var resp domain.Response
	if err := json.Unmarshal(line, &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != domain.StatusError {
		t.Fatalf("resp = %+v", resp)
	}

	if err := json.NewEncoder(conn).Encode(domain.Request{Action: domain.ActionStatus}); err != nil {
		t.Fatalf("encode: %v", err)
	}
	line, err = reader.ReadBytes('\n')
	if err != nil {
		t.Fatalf("read after garbage: %v", err)
	}
	if err := json.Unmarshal(line, &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != domain.StatusSuccess {
		t.Fatalf("session dead after garbage: %+v", resp)
	}
}

func TestRequestPipelinedBehindGarbageIsServed(t *testing.T) {
	socket, _, _ := startServer(t, 4)

	conn, err := net.Dial("unix", socket)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Garbage and a valid request arrive in the same write. Recovery
	// must skip only the bad line, not the buffered request behind it.
	if _, err := conn.Write([]byte("this is not json\n{\"action\":\"status\"}\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	reader := bufio.NewReader(conn)
	var resp domain.Response
	line, err := reader.ReadBytes('\n')
	if err != nil {
		t.Fatalf("read error response: %v", err)
	}
	if err := json.Unmarshal(line, &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != domain.StatusError {
		t.Fatalf("first resp = %+v", resp)
	}

	line, err = reader.ReadBytes('\n')
	if err != nil {
		t.Fatalf("read pipelined response: %v", err)
	}
	if err := json.Unmarshal(line, &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != domain.StatusSuccess || resp.DaemonStatus != "running" {
		t.Fatalf("pipelined request dropped: %+v", resp)
	}
}

func TestShutdownRemovesSocket(t *testing.T) {
	socket := filepath.Join(t.TempDir(), "aiosd.sock")
	srv := NewServer(Options{
		SocketPath: socket,
		Service:    testService(),
		Logger:     logger.NewNop(),
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := os.Stat(socket); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("socket never appeared")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
	if _, err := os.Stat(socket); !os.IsNotExist(err) {
		t.Fatalf("socket still present after shutdown: %v", err)
	}
}
