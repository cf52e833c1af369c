package core

// Phase is the form's position in the request lifecycle.
type Phase string

const (
	PhaseEditing    Phase = "editing"
	PhaseConfirming Phase = "confirming" // submit confirmation open
	PhaseSubmitting Phase = "submitting"
	PhaseSubmitted  Phase = "submitted"
	PhaseResetting  Phase = "resetting" // reset confirmation open
)

// phaseTransitions is the canonical phase transition map.
var phaseTransitions = map[Phase][]Phase{
	// EDITING opens the submit confirmation when the form is valid, or the reset confirmation
	PhaseEditing: {PhaseConfirming, PhaseResetting},

	// CONFIRMING returns to EDITING on cancel, or starts SUBMITTING on confirm
	PhaseConfirming: {PhaseEditing, PhaseSubmitting},

	// SUBMITTING ends in SUBMITTED on success, or back in EDITING with the error surfaced
	PhaseSubmitting: {PhaseSubmitted, PhaseEditing},

	// SUBMITTED goes home: EDITING at step 1 with everything cleared
	PhaseSubmitted: {PhaseEditing},

	// RESETTING returns to EDITING either cleared (confirm) or at the previous step (cancel)
	PhaseResetting: {PhaseEditing},
}

// ValidNextPhases returns the allowed next phases for a given phase.
func ValidNextPhases(from Phase) []Phase {
	return phaseTransitions[from]
}

// IsValidTransition reports whether moving from one phase to another is allowed.
func IsValidTransition(from, to Phase) bool {
	for _, p := range phaseTransitions[from] {
		if p == to {
			return true
		}
	}
	return false
}

// AllPhases returns every phase in lifecycle order.
func AllPhases() []Phase {
	return []Phase{PhaseEditing, PhaseConfirming, PhaseSubmitting, PhaseSubmitted, PhaseResetting}
}
