package domain

import "time"

// Step is the position of a user in the post-link dialog.
type Step string

const (
	StepUnset             Step = ""
	StepPropertyConfirm   Step = "property_confirm"
	StepApplicationIntent Step = "application_intent"
	StepWaitingImages     Step = "waiting_images"
	StepConsultation      Step = "consultation"
	StepCompleted         Step = "completed"
)

// Idle reports whether the step accepts the history/selection/detail commands.
func (s Step) Idle() bool {
	return s == StepUnset || s == StepCompleted
}

// String returns the step name, with "unset" for the zero value.
func (s Step) String() string {
	if s == StepUnset {
		return "unset"
	}
	return string(s)
}

// ConversationState is the persisted dialog position for one user.
// CaseID is set whenever Step is past StepUnset.
type ConversationState struct {
	Step      Step      `json:"step"`
	CaseID    string    `json:"case_id,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}
