package model

import "github.com/google/uuid"

// AnswerState maps question ids to the selected option letter.
// A missing key means the question is unanswered.
type AnswerState map[uuid.UUID]OptionLetter

// Select records letter as the answer for questionID.
func (a AnswerState) Select(questionID uuid.UUID, letter OptionLetter) {
	a[questionID] = letter
}

// Clear removes the answer for questionID.
func (a AnswerState) Clear(questionID uuid.UUID) {
	delete(a, questionID)
}

// Selected returns the answer for questionID, if any.
func (a AnswerState) Selected(questionID uuid.UUID) (OptionLetter, bool) {
	l, ok := a[questionID]
	return l, ok
}

// Clone returns an independent copy.
func (a AnswerState) Clone() AnswerState {
	out := make(AnswerState, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// AnswerStateFromStrings parses a Redis hash (question id → letter).
// Malformed ids and empty letters are skipped.
func AnswerStateFromStrings(raw map[string]string) AnswerState {
	out := make(AnswerState, len(raw))
	for k, v := range raw {
		id, err := uuid.Parse(k)
		if err != nil || v == "" {
			continue
		}
		out[id] = OptionLetter(v)
	}
	return out
}
