package repositories

import (
	"errors"
	"fmt"
)

// Kinds carried by CounterError. Match them with errors.Is.
var (
	ErrCounterInvalid   = errors.New("invalid counter request")
	ErrCounterExhausted = errors.New("counter exhausted")
)

// CounterError reports a failed operation on a "scope:name" sequence.
type CounterError struct {
	Counter string
	Kind    error
	Detail  string
}

func (e *CounterError) Error() string {
	msg := e.Kind.Error()
	if e.Counter != "" {
		msg = e.Counter + ": " + msg
	}
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

func (e *CounterError) Is(target error) bool {
	return target == e.Kind
}

// InvalidCounter rejects a malformed counter id or step.
func InvalidCounter(counter, detail string) error {
	return &CounterError{Counter: counter, Kind: ErrCounterInvalid, Detail: detail}
}

// ExhaustedCounter reports that the next value would pass the counter's ceiling.
func ExhaustedCounter(counter string, ceiling int64) error {
	return &CounterError{Counter: counter, Kind: ErrCounterExhausted, Detail: fmt.Sprintf("ceiling %d", ceiling)}
}
