package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gastobot/app/config"
	"gastobot/app/service/agent"
	"gastobot/app/service/memory"
	"gastobot/app/service/normalize"
	"gastobot/app/service/pending"
	"gastobot/app/service/policy"
	"gastobot/app/service/tools"

	"github.com/samber/do"
)

const (
	transientReply = "Uy, se me enredaron los cables un momento. Inténtalo de nuevo en un ratico."
	emptyReply     = "No te entendí, mi amor. ¿Me lo repites?"
)

// Service is the per-message pipeline: recall, normalize, reason,
// dispatch in order, remember. One call handles exactly one inbound
// message and returns the reply to send.
type Service struct {
	cfg        *config.Config
	memorySvc  memory.Store
	pendingSvc *pending.Service
	agentSvc   *agent.Service
	dispatcher *tools.Dispatcher
}

func New(di *do.Injector) (*Service, error) {
	return &Service{
		cfg:        do.MustInvoke[*config.Config](di),
		memorySvc:  do.MustInvoke[memory.Store](di),
		pendingSvc: do.MustInvoke[*pending.Service](di),
		agentSvc:   do.MustInvoke[*agent.Service](di),
		dispatcher: do.MustInvoke[*tools.Dispatcher](di),
	}, nil
}

func (s *Service) Process(ctx context.Context, userID string, in normalize.Input) (string, error) {
	now := time.Now()

	utterance, _ := normalize.Normalize(in)
	if utterance == "" {
		return emptyReply, nil
	}

	history, degraded := s.memorySvc.Read(ctx, userID)
	if degraded {
		slog.Warn("Conversation history degraded, proceeding stateless", "user", userID)
	}

	s.appendTurn(ctx, userID, memory.Turn{
		Role:      memory.RoleUser,
		Text:      utterance,
		Timestamp: now,
	})

	dctx := tools.DispatchContext{
		UserID:    userID,
		Utterance: utterance,
		Now:       now,
		History:   history,
	}

	// A short payment-method answer to an open follow-up never needs the
	// reasoning model: it resolves deterministically to one edit.
	if outcome, ok := s.resolveFollowUp(ctx, dctx); ok {
		reply := outcome.Text
		if outcome.Failed() {
			reply = failureText(outcome)
		}
		s.remember(ctx, userID, []tools.Outcome{outcome}, reply)

		return reply, nil
	}

	proposal, err := s.agentSvc.Propose(ctx, agent.Request{
		UserID:       userID,
		Utterance:    utterance,
		History:      history,
		Degraded:     degraded,
		Stale:        s.stale(history, now),
		PendingField: s.pendingField(userID),
		Now:          now,
	})
	if err != nil {
		slog.Error("Reasoning step failed", "user", userID, "error", err)
		return transientReply, nil
	}

	if len(proposal.Invocations) == 0 {
		reply := proposal.Text
		if reply == "" {
			reply = emptyReply
		}
		s.appendTurn(ctx, userID, memory.Turn{
			Role:      memory.RoleAssistant,
			Text:      reply,
			Timestamp: time.Now(),
		})

		return reply, nil
	}

	outcomes := make([]tools.Outcome, 0, len(proposal.Invocations))
	for _, inv := range proposal.Invocations {
		outcomes = append(outcomes, s.dispatcher.Dispatch(ctx, dctx, inv))
	}

	reply := s.composeReply(ctx, utterance, outcomes)
	s.remember(ctx, userID, outcomes, reply)

	return reply, nil
}

// resolveFollowUp handles the deferred-method shortcut: an open
// follow-up plus a bare method token becomes a direct edit of the
// awaiting record.
func (s *Service) resolveFollowUp(ctx context.Context, dctx tools.DispatchContext) (tools.Outcome, bool) {
	item, ok := s.pendingSvc.Get(dctx.UserID)
	if !ok || item.MissingField != "method" {
		return tools.Outcome{}, false
	}

	method, ok := policy.MethodToken(dctx.Utterance)
	if !ok {
		return tools.Outcome{}, false
	}

	args, err := json.Marshal(tools.EditArgs{
		RecordID: item.RecordID,
		Field:    "method",
		NewValue: method,
	})
	if err != nil {
		return tools.Outcome{}, false
	}

	outcome := s.dispatcher.Dispatch(ctx, dctx, tools.Invocation{
		Name:      tools.ToolEditExpense,
		Arguments: args,
	})

	return outcome, true
}

// composeReply merges per-invocation outcomes into one message. The
// phrasing model is best effort: its failure falls back to the literal
// outcome texts, never to dropping results.
func (s *Service) composeReply(ctx context.Context, utterance string, outcomes []tools.Outcome) string {
	results := make([]string, 0, len(outcomes))
	for _, outcome := range outcomes {
		if outcome.Failed() {
			results = append(results, failureText(outcome))
			continue
		}
		results = append(results, outcome.Text)
	}

	fallback := strings.Join(results, "\n\n")

	phrased, err := s.agentSvc.ComposeReply(ctx, utterance, results)
	if err != nil {
		slog.Warn("Reply phrasing failed, using literal outcomes", "error", err)
		return fallback
	}

	return phrased
}

func failureText(outcome tools.Outcome) string {
	if outcome.Text != "" {
		return outcome.Text
	}

	return fmt.Sprintf("No pude completar %s: %s", outcome.Tool, outcome.Err)
}

// remember appends the executed results and the final reply. The
// assistant turn carries the last dispatcher tag so the next message can
// see an open confirmation prompt.
func (s *Service) remember(ctx context.Context, userID string, outcomes []tools.Outcome, reply string) {
	var tag string
	for _, outcome := range outcomes {
		if outcome.Text != "" {
			s.appendTurn(ctx, userID, memory.Turn{
				Role:      memory.RoleToolResult,
				Text:      outcome.Text,
				Timestamp: time.Now(),
			})
		}
		if outcome.Tag != "" {
			tag = outcome.Tag
		}
	}

	s.appendTurn(ctx, userID, memory.Turn{
		Role:      memory.RoleAssistant,
		Text:      reply,
		Tag:       tag,
		Timestamp: time.Now(),
	})
}

func (s *Service) appendTurn(ctx context.Context, userID string, turn memory.Turn) {
	if err := s.memorySvc.Append(ctx, userID, turn); err != nil {
		slog.Warn("Failed to append conversation turn", "user", userID, "error", err)
	}
}

func (s *Service) stale(history []memory.Turn, now time.Time) bool {
	if len(history) == 0 {
		return false
	}

	last := history[len(history)-1].Timestamp

	return !last.IsZero() && now.Sub(last) > s.cfg.Policy.IdleGap
}

func (s *Service) pendingField(userID string) string {
	if item, ok := s.pendingSvc.Get(userID); ok {
		return item.MissingField
	}

	return ""
}
