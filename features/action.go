package features

import "fmt"

// ActionType is the label set of the action model, in class index order.
type ActionType int

const (
	ActionOthers ActionType = iota
	ActionWalking
	ActionRunning
	ActionStanding
	ActionSitting
	ActionUpstairs
	ActionDownstairs
)

var actionNames = []string{"OTHERS", "WALKING", "RUNNING", "STANDING", "SITTING", "UPSTAIRS", "DOWNSTAIRS"}

func ActionLabels() []string {
	return append([]string(nil), actionNames...)
}

func (a ActionType) String() string {
	if a < 0 || int(a) >= len(actionNames) {
		return fmt.Sprintf("ACTION_%d", int(a))
	}
	return actionNames[a]
}

// IsStatic reports actions during which the detector may go idle.
func (a ActionType) IsStatic() bool {
	return a == ActionStanding || a == ActionSitting
}
