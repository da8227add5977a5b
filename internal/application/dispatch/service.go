// Package dispatch routes socket requests to their handlers. It is the
// daemon's application core: the session transport decodes a request,
// dispatch orchestrates the ports, and the resulting response goes back on
// the wire.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/doeshing/aiosd/internal/domain"
	"github.com/doeshing/aiosd/internal/ports"
)

// Session carries the per-connection state a handler may need.
type Session struct {
	ID      string
	Tracker ports.ContextTracker
}

// Service orchestrates one request end-to-end.
type Service struct {
	Registry       ports.ModelRegistry
	Interpreter    ports.Interpreter
	Gate           ports.SafetyGate
	Executor       ports.CommandExecutor
	Feedback       ports.FeedbackStore
	History        ports.HistoryRepository
	Logger         ports.Logger
	Security       domain.SecuritySettings
	InputClassify  func(string) string
	StartedAt      time.Time
	ActiveSessions func() int
}

// Handle processes a single request. It never returns an error: failures
// become error-status responses so the session loop stays alive.
func (s *Service) Handle(ctx context.Context, sess Session, req domain.Request) domain.Response {
	switch req.Action {
	case domain.ActionInterpret:
		return s.interpret(ctx, sess, req)
	case domain.ActionExecute:
		return s.execute(ctx, sess, req)
	case domain.ActionStatus:
		return s.status(ctx)
	case domain.ActionSetModel:
		return s.setModel(req)
	case domain.ActionGetContext:
		return s.getContext(ctx, sess)
	case domain.ActionClassify:
		return s.classify(req)
	case domain.ActionChat:
		return s.chat(ctx, sess, req)
	case domain.ActionFeedback:
		return s.feedback(req)
	default:
		return domain.ErrorResponse(fmt.Sprintf("unknown action: %s", req.Action))
	}
}

// interpret translates natural language to a shell command. An accepted
// past interpretation short-circuits the backend; otherwise the registry
// picks a model and the backend is consulted. With confirmation mode off
// the safe result is executed in the same request.
func (s *Service) interpret(ctx context.Context, sess Session, req domain.Request) domain.Response {
	if req.Command == "" {
		return domain.ErrorResponse("command is required")
	}
	s.refreshContext(ctx, sess)

	if suggestion, ok := s.Feedback.Suggest(req.Command); ok {
		return s.vetInterpretation(ctx, sess, req, suggestion, s.Registry.Current().Name, true, 0)
	}

	profile := s.Registry.SelectForCommand(req.Command)
	start := time.Now()
	command, err := s.Interpreter.Generate(ctx, profile, req.Command, s.contextSummary(sess))
	elapsed := time.Since(start)
	s.Registry.UpdateStats(profile.Name, err == nil, elapsed.Seconds())

	if err != nil {
		return s.interpretError(sess, req, profile.Name, err, elapsed)
	}
	return s.vetInterpretation(ctx, sess, req, command, profile.Name, false, elapsed)
}

// vetInterpretation runs the safety gate over a candidate command and
// shapes the interpret response. A safe verdict means confirmation mode is
// off, so the command runs immediately; confirm-required hands the command
// back for an explicit execute request.
func (s *Service) vetInterpretation(ctx context.Context, sess Session, req domain.Request, command, model string, fromFeedback bool, elapsed time.Duration) domain.Response {
	assessment := s.Gate.Evaluate(command)

	if assessment.Blocked() {
		s.recordHistory(sess, domain.ActionInterpret, req.Command, command, model, false, 0, assessment.Verdict, elapsed)
		return domain.Response{
			Status:             domain.StatusUnsafe,
			Message:            assessment.Reason,
			InterpretedCommand: command,
		}
	}
	if assessment.Verdict == domain.VerdictConfirmRequired {
		s.recordHistory(sess, domain.ActionInterpret, req.Command, command, model, false, 0, assessment.Verdict, elapsed)
		return domain.Response{
			Status:             domain.StatusSuccess,
			InterpretedCommand: command,
			FromFeedback:       fromFeedback,
			ConfirmRequired:    true,
		}
	}

	result := s.Executor.Execute(ctx, command)
	if sess.Tracker != nil {
		sess.Tracker.AddCommand(command)
	}
	s.recordHistory(sess, domain.ActionInterpret, req.Command, command, model, result.Ran, result.ExitCode, assessment.Verdict, elapsed+time.Duration(result.DurationMS)*time.Millisecond)

	if result.Err != nil {
		return domain.ErrorResponse("execution failed: " + result.Err.Error())
	}
	exitCode := result.ExitCode
	return domain.Response{
		Status:             domain.StatusSuccess,
		InterpretedCommand: command,
		FromFeedback:       fromFeedback,
		ExecutionResult:    result.Output,
		ExitCode:           &exitCode,
	}
}

func (s *Service) interpretError(sess Session, req domain.Request, model string, err error, elapsed time.Duration) domain.Response {
	switch {
	case errors.Is(err, domain.ErrUnsafeRequest):
		s.recordHistory(sess, domain.ActionInterpret, req.Command, "", model, false, 0, domain.VerdictBlocked, elapsed)
		return domain.Response{Status: domain.StatusUnsafe, Message: "the request was judged unsafe"}
	case errors.Is(err, domain.ErrUnclearRequest):
		return domain.Response{Status: domain.StatusUnclear, Message: "the request was unclear, please rephrase"}
	default:
		s.Logger.Error("interpretation failed", err, map[string]interface{}{
			"session": sess.ID,
			"model":   model,
		})
		return domain.ErrorResponse("backend unavailable: " + err.Error())
	}
}

// execute runs a command. When the request carries an already-interpreted
// command the explicit request counts as the user's confirmation; blocked
// commands are still refused. Natural-language input is interpreted first.
func (s *Service) execute(ctx context.Context, sess Session, req domain.Request) domain.Response {
	command := req.Interpreted
	prompt := req.Command
	model := s.Registry.Current().Name
	var interpretElapsed time.Duration

	if command == "" {
		if req.Command == "" {
			return domain.ErrorResponse("command is required")
		}
		s.refreshContext(ctx, sess)

		if suggestion, ok := s.Feedback.Suggest(req.Command); ok {
			command = suggestion
		} else {
			profile := s.Registry.SelectForCommand(req.Command)
			model = profile.Name
			start := time.Now()
			generated, err := s.Interpreter.Generate(ctx, profile, req.Command, s.contextSummary(sess))
			interpretElapsed = time.Since(start)
			s.Registry.UpdateStats(profile.Name, err == nil, interpretElapsed.Seconds())
			if err != nil {
				return s.interpretError(sess, req, profile.Name, err, interpretElapsed)
			}
			command = generated
		}
	}

	assessment := s.Gate.Evaluate(command)
	if assessment.Blocked() {
		s.recordHistory(sess, domain.ActionExecute, prompt, command, model, false, 0, assessment.Verdict, interpretElapsed)
		return domain.Response{
			Status:             domain.StatusUnsafe,
			Message:            assessment.Reason,
			InterpretedCommand: command,
		}
	}

	result := s.Executor.Execute(ctx, command)
	if sess.Tracker != nil {
		sess.Tracker.AddCommand(command)
	}
	s.recordHistory(sess, domain.ActionExecute, prompt, command, model, result.Ran, result.ExitCode, assessment.Verdict, interpretElapsed+time.Duration(result.DurationMS)*time.Millisecond)

	if result.Err != nil {
		return domain.ErrorResponse("execution failed: " + result.Err.Error())
	}
	exitCode := result.ExitCode
	return domain.Response{
		Status:             domain.StatusSuccess,
		InterpretedCommand: command,
		ExecutionResult:    result.Output,
		ExitCode:           &exitCode,
	}
}

// status reports daemon and backend health plus the model roster.
func (s *Service) status(ctx context.Context) domain.Response {
	backendStatus := "reachable"
	if err := s.Interpreter.CheckStatus(ctx); err != nil {
		backendStatus = "unreachable: " + err.Error()
	}

	safetyMode := !s.Security.Bypass
	confirmation := s.Security.ConfirmationRequired
	active := 0
	if s.ActiveSessions != nil {
		active = s.ActiveSessions()
	}
	uptime := int64(time.Since(s.StartedAt).Seconds())

	return domain.Response{
		Status:           domain.StatusSuccess,
		DaemonStatus:     "running",
		BackendStatus:    backendStatus,
		CurrentModel:     s.Registry.Current().Name,
		AvailableModels:  s.Registry.Profiles(),
		SafetyMode:       &safetyMode,
		ConfirmationMode: &confirmation,
		ActiveSessions:   &active,
		UptimeSeconds:    &uptime,
	}
}

func (s *Service) setModel(req domain.Request) domain.Response {
	if req.Model == "" {
		return domain.ErrorResponse("model is required")
	}
	if err := s.Registry.SetModel(req.Model); err != nil {
		return domain.ErrorResponse(err.Error())
	}
	if err := s.Registry.Save(); err != nil {
		s.Logger.Warn("failed to persist model selection", map[string]interface{}{"error": err.Error()})
	}
	return domain.Response{
		Status:       domain.StatusSuccess,
		Message:      "model set to " + req.Model,
		CurrentModel: req.Model,
	}
}

func (s *Service) getContext(ctx context.Context, sess Session) domain.Response {
	if sess.Tracker == nil {
		return domain.ErrorResponse("no context tracked for this session")
	}
	s.refreshContext(ctx, sess)
	snapshot := sess.Tracker.Snapshot()
	return domain.Response{
		Status:  domain.StatusSuccess,
		Context: &snapshot,
	}
}

func (s *Service) classify(req domain.Request) domain.Response {
	if req.Command == "" {
		return domain.ErrorResponse("command is required")
	}
	classification := "chat"
	if s.InputClassify != nil {
		classification = s.InputClassify(req.Command)
	}
	return domain.Response{
		Status:         domain.StatusSuccess,
		Classification: classification,
	}
}

func (s *Service) chat(ctx context.Context, sess Session, req domain.Request) domain.Response {
	if req.Command == "" {
		return domain.ErrorResponse("message is required")
	}
	s.refreshContext(ctx, sess)

	profile := s.Registry.Current()
	start := time.Now()
	reply, err := s.Interpreter.Chat(ctx, profile, req.Command, s.contextSummary(sess))
	s.Registry.UpdateStats(profile.Name, err == nil, time.Since(start).Seconds())
	if err != nil {
		s.Logger.Error("chat failed", err, map[string]interface{}{"session": sess.ID})
		return domain.ErrorResponse("backend unavailable: " + err.Error())
	}
	return domain.Response{
		Status:       domain.StatusSuccess,
		ChatResponse: reply,
	}
}

// feedback records an accept/reject outcome and feeds the model stats.
func (s *Service) feedback(req domain.Request) domain.Response {
	if req.Command == "" || req.Interpreted == "" || req.Accepted == nil {
		return domain.ErrorResponse("command, interpreted and accepted are required")
	}
	model := req.Model
	if model == "" {
		model = s.Registry.Current().Name
	}
	entry := domain.FeedbackEntry{
		NaturalCommand:     req.Command,
		InterpretedCommand: req.Interpreted,
		Accepted:           *req.Accepted,
		ModelUsed:          model,
	}
	if err := s.Feedback.Record(entry); err != nil {
		s.Logger.Warn("failed to record feedback", map[string]interface{}{"error": err.Error()})
		return domain.ErrorResponse("could not record feedback")
	}
	verb := "rejection"
	if *req.Accepted {
		verb = "acceptance"
	}
	return domain.Response{
		Status:  domain.StatusSuccess,
		Message: "recorded " + verb,
	}
}

func (s *Service) refreshContext(ctx context.Context, sess Session) {
	if sess.Tracker != nil && sess.Tracker.NeedsRefresh() {
		sess.Tracker.Refresh(ctx)
	}
}

func (s *Service) contextSummary(sess Session) string {
	if sess.Tracker == nil {
		return ""
	}
	return sess.Tracker.Summarize()
}

func (s *Service) recordHistory(sess Session, action domain.Action, prompt, command, model string, executed bool, exitCode int, verdict domain.SafetyVerdict, elapsed time.Duration) {
	if s.History == nil {
		return
	}
	err := s.History.Save(domain.InterpretationRecord{
		Timestamp:  time.Now(),
		SessionID:  sess.ID,
		Action:     action,
		Prompt:     prompt,
		Command:    command,
		Model:      model,
		Executed:   executed,
		ExitCode:   exitCode,
		Verdict:    verdict,
		DurationMS: elapsed.Milliseconds(),
	})
	if err != nil {
		s.Logger.Warn("failed to record history", map[string]interface{}{"error": err.Error()})
	}
}
