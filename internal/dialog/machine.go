// Package dialog decides how a user's conversation advances. It performs no
// I/O: callers load the persisted state, call Decide, persist Decision.Next
// and carry out Decision.Action.
package dialog

import (
	"strconv"
	"strings"

	"github.com/ychihi393/chintai-checker-final/internal/config"
	"github.com/ychihi393/chintai-checker-final/internal/domain"
)

type Action string

const (
	ActionAskApplicationIntent Action = "ask_application_intent"
	ActionRequestImages        Action = "request_images"
	ActionStartConsultation    Action = "start_consultation"
	ActionAcceptApplication    Action = "accept_application"
	ActionSuggestSearch        Action = "suggest_search"
	ActionConsultationReceived Action = "consultation_received"
	ActionImagesReceived       Action = "images_received"
	ActionImageOutsideFlow     Action = "image_outside_flow"
	ActionShowHistory          Action = "show_history"
	ActionSelectCase           Action = "select_case"
	ActionShowDetail           Action = "show_detail"
	ActionHelp                 Action = "help"
)

type InputKind int

const (
	InputText InputKind = iota
	InputImage
)

// Input is one user message as the machine sees it. Postback data is
// delivered as InputText.
type Input struct {
	Kind InputKind
	Text string
}

// Decision is the outcome of one input.
type Decision struct {
	Action Action
	// Next is the state to persist, or nil to leave the stored state alone.
	Next *domain.ConversationState
	// Index is the 1-based history position for ActionSelectCase.
	Index int
	// Handoff marks inputs that need a human to follow up.
	Handoff bool
}

// Transitioned reports whether the decision changes the step.
func (d Decision) Transitioned(from domain.Step) bool {
	return d.Next != nil && d.Next.Step != from
}

type rule struct {
	tokens  []string
	next    domain.Step
	action  Action
	handoff bool
}

// Machine holds the per-step token table built from configuration.
type Machine struct {
	table        map[domain.Step][]rule
	history      []string
	detail       []string
	historyLimit int
}

func New(cfg *config.Dialog) *Machine {
	if cfg == nil {
		cfg = config.DefaultDialog()
	}
	k := cfg.Keywords
	return &Machine{
		table: map[domain.Step][]rule{
			domain.StepPropertyConfirm: {
				{tokens: k.Yes, next: domain.StepApplicationIntent, action: ActionAskApplicationIntent},
				{tokens: k.No, next: domain.StepWaitingImages, action: ActionRequestImages},
				{tokens: k.Consult, next: domain.StepConsultation, action: ActionStartConsultation},
			},
			domain.StepApplicationIntent: {
				{tokens: k.Apply, next: domain.StepCompleted, action: ActionAcceptApplication, handoff: true},
				{tokens: k.SearchOther, next: domain.StepCompleted, action: ActionSuggestSearch},
				{tokens: k.Consult, next: domain.StepConsultation, action: ActionStartConsultation},
			},
		},
		history:      k.History,
		detail:       k.Detail,
		historyLimit: cfg.HistoryLimit,
	}
}

// Decide maps the current state and one input to a Decision.
func (m *Machine) Decide(state domain.ConversationState, in Input) Decision {
	if in.Kind == InputImage {
		if state.Step == domain.StepWaitingImages {
			return Decision{Action: ActionImagesReceived, Handoff: true}
		}
		return Decision{Action: ActionImageOutsideFlow}
	}

	text := strings.TrimSpace(in.Text)

	if state.Step == domain.StepConsultation && text != "" {
		return Decision{
			Action:  ActionConsultationReceived,
			Next:    advance(state, domain.StepCompleted),
			Handoff: true,
		}
	}

	for _, r := range m.table[state.Step] {
		if matches(r.tokens, text) {
			return Decision{Action: r.action, Next: advance(state, r.next), Handoff: r.handoff}
		}
	}

	if matches(m.history, text) {
		return Decision{Action: ActionShowHistory}
	}
	if n, ok := m.selection(text); ok {
		return Decision{Action: ActionSelectCase, Index: n}
	}
	if state.Step.Idle() && matches(m.detail, text) {
		return Decision{Action: ActionShowDetail}
	}
	return Decision{Action: ActionHelp}
}

// selection parses a bare digit within 1..historyLimit.
func (m *Machine) selection(text string) (int, bool) {
	if len(text) != 1 {
		return 0, false
	}
	n, err := strconv.Atoi(text)
	if err != nil || n < 1 || n > m.historyLimit {
		return 0, false
	}
	return n, true
}

// Primed is the state after a case is announced: the next message answers
// "is this the right property?".
func Primed(caseID string) domain.ConversationState {
	return domain.ConversationState{Step: domain.StepPropertyConfirm, CaseID: caseID}
}

// Settled is the state after a case that asks no question is announced:
// idle, with the idle commands bound to caseID.
func Settled(caseID string) domain.ConversationState {
	return domain.ConversationState{Step: domain.StepCompleted, CaseID: caseID}
}

func advance(state domain.ConversationState, next domain.Step) *domain.ConversationState {
	return &domain.ConversationState{Step: next, CaseID: state.CaseID}
}

func matches(tokens []string, text string) bool {
	for _, t := range tokens {
		if strings.TrimSpace(t) == text {
			return true
		}
	}
	return false
}
