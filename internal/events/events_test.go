package events

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/lucasnoah/gatekeeper/internal/labels"
	"github.com/lucasnoah/gatekeeper/internal/policy"
	"github.com/lucasnoah/gatekeeper/internal/stage"
)

var at = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	Nop
	transitions []stage.Transition
	err         error
}

func (r *recordingPublisher) PublishTransition(_ context.Context, t stage.Transition) error {
	r.transitions = append(r.transitions, t)
	return r.err
}

func TestTransitionValues(t *testing.T) {
	v := transitionValues(stage.Transition{
		Issue: 12, From: labels.StageTriage, To: labels.StagePlan,
		Reason: "Triage complete", TraceID: "trace-1", At: at,
	})
	if v["issue"] != 12 || v["from"] != "triage" || v["to"] != "plan" {
		t.Errorf("values = %v", v)
	}
	if v["timestamp"] != "2025-06-01T12:00:00Z" {
		t.Errorf("timestamp = %v", v["timestamp"])
	}

	initial := transitionValues(stage.Transition{Issue: 1, To: labels.StageTriage, At: at})
	if initial["from"] != "" {
		t.Errorf("initial from = %q", initial["from"])
	}
}

func TestDecisionValues(t *testing.T) {
	v, err := decisionValues(DecisionEvent{
		Issue:   4,
		Stage:   "plan",
		TraceID: "trace-2",
		Decision: policy.PolicyDecision{
			Decision:    policy.Block,
			Reason:      "Missing required artifacts: triage_report",
			Constraints: policy.Constraints{"missing": []string{"triage_report"}},
			Timestamp:   at,
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if v["decision"] != "block" || v["stage"] != "plan" || v["trace_id"] != "trace-2" {
		t.Errorf("values = %v", v)
	}
	payload, _ := v["payload"].(string)
	if !strings.Contains(payload, `"triage_report"`) {
		t.Errorf("payload = %s", payload)
	}
}

func TestTransitionObserver(t *testing.T) {
	rec := &recordingPublisher{}
	obs := TransitionObserver(context.Background(), rec)
	tr := stage.Transition{Issue: 3, From: labels.StagePlan, To: labels.StagePrioritize}
	if err := obs.TransitionApplied(tr); err != nil {
		t.Fatal(err)
	}
	if len(rec.transitions) != 1 || rec.transitions[0].To != labels.StagePrioritize {
		t.Errorf("transitions = %v", rec.transitions)
	}

	rec.err = errors.New("redis down")
	if err := obs.TransitionApplied(tr); err == nil {
		t.Error("expected publish error to surface to the manager")
	}
}

func TestOpen(t *testing.T) {
	p, err := Open("")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := p.(Nop); !ok {
		t.Errorf("Open(\"\") = %T, want Nop", p)
	}

	if _, err := Open("not a url"); err == nil {
		t.Error("expected parse error")
	}

	p, err = Open("redis://localhost:6379/2")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := p.(*RedisPublisher); !ok {
		t.Errorf("publisher = %T", p)
	}
	p.Close()
}
