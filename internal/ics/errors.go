package ics

import (
	"errors"
	"fmt"

	"ics/internal/model"
)

// ErrNotPrepared is returned by Train when no split has been computed yet.
var ErrNotPrepared = errors.New("ics: dataset has not been split")

// InsufficientDataError reports a label class too small to stratify.
type InsufficientDataError struct {
	Label model.Label
	Count int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("ics: cannot stratify: label %s has %d item(s), need at least 2", e.Label, e.Count)
}

// NotTrainedError is returned when evaluation or prediction is requested
// before training has completed.
type NotTrainedError struct {
	Op    string
	State State
}

func (e *NotTrainedError) Error() string {
	return fmt.Sprintf("ics: %s: model not trained (state %s)", e.Op, e.State)
}

type UnknownNewsError struct {
	NewsID string
}

func (e *UnknownNewsError) Error() string {
	return fmt.Sprintf("ics: news %q has no sharers", e.NewsID)
}

type ConfigurationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("ics: invalid %s %v: %s", e.Field, e.Value, e.Reason)
}

// DegenerateScoreWarning marks a prediction made without any recognized
// sharer. The label is the tie-break default, not evidence.
type DegenerateScoreWarning struct {
	NewsID string
}

func (w *DegenerateScoreWarning) Error() string {
	return fmt.Sprintf("ics: news %q has no recognized sharers, label is the tie-break default", w.NewsID)
}
