package dialog

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ychihi393/chintai-checker-final/internal/config"
	"github.com/ychihi393/chintai-checker-final/internal/domain"
)

func at(step domain.Step) domain.ConversationState {
	return domain.ConversationState{Step: step, CaseID: "case-1"}
}

func text(s string) Input { return Input{Kind: InputText, Text: s} }

func TestDecide_TransitionTable(t *testing.T) {
	m := New(nil)
	cases := []struct {
		name    string
		from    domain.Step
		input   string
		action  Action
		next    domain.Step
		handoff bool
	}{
		{name: "confirm yes", from: domain.StepPropertyConfirm, input: "はい", action: ActionAskApplicationIntent, next: domain.StepApplicationIntent},
		{name: "confirm no", from: domain.StepPropertyConfirm, input: "いいえ", action: ActionRequestImages, next: domain.StepWaitingImages},
		{name: "confirm consult", from: domain.StepPropertyConfirm, input: "相談したい", action: ActionStartConsultation, next: domain.StepConsultation},
		{name: "confirm yes with spaces", from: domain.StepPropertyConfirm, input: "  はい ", action: ActionAskApplicationIntent, next: domain.StepApplicationIntent},
		{name: "intent apply", from: domain.StepApplicationIntent, input: "申し込みする", action: ActionAcceptApplication, next: domain.StepCompleted, handoff: true},
		{name: "intent search other", from: domain.StepApplicationIntent, input: "他の物件を探す", action: ActionSuggestSearch, next: domain.StepCompleted},
		{name: "intent decline", from: domain.StepApplicationIntent, input: "申し込みしない", action: ActionSuggestSearch, next: domain.StepCompleted},
		{name: "intent consult", from: domain.StepApplicationIntent, input: "相談したい", action: ActionStartConsultation, next: domain.StepConsultation},
		{name: "consultation any text", from: domain.StepConsultation, input: "初期費用をもっと下げたい", action: ActionConsultationReceived, next: domain.StepCompleted, handoff: true},
		{name: "consultation keyword is still content", from: domain.StepConsultation, input: "履歴", action: ActionConsultationReceived, next: domain.StepCompleted, handoff: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := m.Decide(at(tc.from), text(tc.input))
			require.Equal(t, tc.action, d.Action)
			require.NotNil(t, d.Next)
			require.Equal(t, tc.next, d.Next.Step)
			require.Equal(t, "case-1", d.Next.CaseID)
			require.Equal(t, tc.handoff, d.Handoff)
			require.True(t, d.Transitioned(tc.from))
		})
	}
}

func TestDecide_UnmatchedTextKeepsState(t *testing.T) {
	m := New(nil)
	for _, step := range []domain.Step{domain.StepPropertyConfirm, domain.StepApplicationIntent, domain.StepWaitingImages, domain.StepCompleted, domain.StepUnset} {
		t.Run(step.String(), func(t *testing.T) {
			d := m.Decide(at(step), text("こんにちは"))
			require.Equal(t, ActionHelp, d.Action)
			require.Nil(t, d.Next)
			require.False(t, d.Transitioned(step))
		})
	}
}

func TestDecide_IdleCommands(t *testing.T) {
	m := New(nil)
	for _, step := range []domain.Step{domain.StepUnset, domain.StepCompleted} {
		t.Run(step.String(), func(t *testing.T) {
			require.Equal(t, ActionShowHistory, m.Decide(at(step), text("履歴")).Action)
			require.Equal(t, ActionShowHistory, m.Decide(at(step), text("history")).Action)

			d := m.Decide(at(step), text("3"))
			require.Equal(t, ActionSelectCase, d.Action)
			require.Equal(t, 3, d.Index)
			require.Nil(t, d.Next)

			require.Equal(t, ActionShowDetail, m.Decide(at(step), text("はい")).Action)
			require.Equal(t, ActionShowDetail, m.Decide(at(step), text("Yes")).Action)
		})
	}
}

func TestDecide_DigitsOutsideLimitAreHelp(t *testing.T) {
	m := New(nil)
	for _, in := range []string{"0", "6", "12", "１"} {
		require.Equal(t, ActionHelp, m.Decide(at(domain.StepCompleted), text(in)).Action, in)
	}
}

func TestDecide_DetailOnlyWhenIdle(t *testing.T) {
	m := New(nil)
	d := m.Decide(at(domain.StepWaitingImages), text("yes"))
	require.Equal(t, ActionHelp, d.Action)
}

func TestDecide_HistoryOutsideIdleStep(t *testing.T) {
	m := New(nil)
	d := m.Decide(at(domain.StepPropertyConfirm), text("履歴"))
	require.Equal(t, ActionShowHistory, d.Action)
	require.Nil(t, d.Next)
}

func TestDecide_Images(t *testing.T) {
	m := New(nil)

	d := m.Decide(at(domain.StepWaitingImages), Input{Kind: InputImage})
	require.Equal(t, ActionImagesReceived, d.Action)
	require.True(t, d.Handoff)
	require.Nil(t, d.Next)

	d = m.Decide(at(domain.StepCompleted), Input{Kind: InputImage})
	require.Equal(t, ActionImageOutsideFlow, d.Action)
	require.False(t, d.Handoff)
}

func TestDecide_ConfiguredTokens(t *testing.T) {
	cfg := config.DefaultDialog()
	cfg.Keywords.Yes = []string{"はい", "OK"}
	cfg.HistoryLimit = 3
	m := New(cfg)

	d := m.Decide(at(domain.StepPropertyConfirm), text("OK"))
	require.Equal(t, ActionAskApplicationIntent, d.Action)
	require.Equal(t, ActionHelp, m.Decide(at(domain.StepCompleted), text("4")).Action)
}

func TestPrimed(t *testing.T) {
	st := Primed("case-9")
	require.Equal(t, domain.StepPropertyConfirm, st.Step)
	require.Equal(t, "case-9", st.CaseID)
}

func TestSettled(t *testing.T) {
	st := Settled("case-s")
	require.Equal(t, domain.StepCompleted, st.Step)
	require.Equal(t, "case-s", st.CaseID)
	require.True(t, st.Step.Idle())
}
