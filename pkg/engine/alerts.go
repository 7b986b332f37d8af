package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AlertPhase is a topic's position in the alerting state machine.
type AlertPhase string

const (
	PhaseQuiet       AlertPhase = "quiet"
	PhaseWatching    AlertPhase = "watching"
	PhaseAlerted     AlertPhase = "alerted"
	PhaseCoolingDown AlertPhase = "cooling_down"
)

// AlertState is the per-topic alerting state.
type AlertState struct {
	Phase         AlertPhase `json:"phase"`
	CooldownUntil time.Time  `json:"cooldown_until"`
}

// Emitter decides when a topic's score should trigger an alert. Actually
// delivering the event belongs to the external notifier; state transitions
// here happen regardless of delivery success.
type Emitter struct {
	rising   float64
	alert    float64
	cooldown time.Duration
}

// NewEmitter creates an alert emitter.
func NewEmitter(rising, alert float64, cooldown time.Duration) *Emitter {
	return &Emitter{rising: rising, alert: alert, cooldown: cooldown}
}

// Evaluate advances a topic's alert state for a freshly computed composite
// and returns an AlertEvent when one is warranted. st is mutated in place.
func (em *Emitter) Evaluate(topicID string, composite float64, st *AlertState, now time.Time) *AlertEvent {
	if st.Phase == "" {
		st.Phase = PhaseQuiet
	}

	switch st.Phase {
	case PhaseQuiet, PhaseWatching:
		if composite >= em.alert {
			return em.fire(topicID, composite, st, now,
				fmt.Sprintf("composite %.1f crossed alert threshold %.1f", composite, em.alert))
		}
		if composite >= em.rising {
			// Informational only; no external emission below the alert
			// threshold.
			st.Phase = PhaseWatching
		} else {
			st.Phase = PhaseQuiet
		}

	case PhaseAlerted, PhaseCoolingDown:
		if now.Before(st.CooldownUntil) {
			// Score may fluctuate above threshold during cooldown; stay
			// silent to prevent alert storms from noisy re-scoring.
			st.Phase = PhaseCoolingDown
			return nil
		}
		if composite >= em.alert {
			// Still trending after the cooldown expired; a fresh
			// notification is warranted.
			return em.fire(topicID, composite, st, now,
				fmt.Sprintf("composite %.1f still above threshold %.1f after cooldown", composite, em.alert))
		}
		if composite >= em.rising {
			st.Phase = PhaseWatching
		} else {
			st.Phase = PhaseQuiet
		}
		st.CooldownUntil = time.Time{}
	}

	return nil
}

func (em *Emitter) fire(topicID string, composite float64, st *AlertState, now time.Time, reason string) *AlertEvent {
	st.Phase = PhaseAlerted
	st.CooldownUntil = now.Add(em.cooldown)
	return &AlertEvent{
		ID:          uuid.NewString(),
		TopicID:     topicID,
		TriggeredAt: now,
		Composite:   composite,
		Reason:      reason,
	}
}
