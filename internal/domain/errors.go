package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	m "strata.dev/pkg/strata/internal/model"
)

var (
	// ErrNodeNotFound is returned when a named workspace does not exist.
	ErrNodeNotFound = errors.New("node not found")
	// ErrUnsupportedPath is returned for tree files that cannot live in a patch directory.
	ErrUnsupportedPath = errors.New("path cannot be represented in a patch set")
	// ErrRejectedHunks is returned when a patch run had failures and the caller asked to fail on them.
	ErrRejectedHunks = errors.New("patch run had rejected hunks")
)

// StructuralError reports an invalid node-graph description.
type StructuralError struct {
	Source m.Path
	Reason string
	Err    error
}

func (e *StructuralError) Error() string {
	var b strings.Builder

	b.WriteString("invalid node graph")

	if e.Source != "" {
		fmt.Fprintf(&b, " in %s", e.Source)
	}

	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}

	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}

	return b.String()
}

func (e *StructuralError) Unwrap() error {
	return e.Err
}

// MissingSourceError reports a directory or file an operation requires but
// which does not exist.
type MissingSourceError struct {
	Role string
	Path m.Path
}

func (e *MissingSourceError) Error() string {
	return fmt.Sprintf("missing %s: %s does not exist", e.Role, e.Path)
}

// BatchError aggregates the failures of one scheduler batch.
type BatchError struct {
	Errs []error
}

func (e *BatchError) Error() string {
	if len(e.Errs) == 1 {
		return e.Errs[0].Error()
	}

	msgs := make([]string, 0, len(e.Errs))
	for _, err := range e.Errs {
		msgs = append(msgs, err.Error())
	}

	return fmt.Sprintf("%d tasks failed:\n%s", len(e.Errs), strings.Join(msgs, "\n"))
}

func (e *BatchError) Unwrap() []error {
	return e.Errs
}

// flattenErrors expands nested BatchErrors and drops cancellations.
func flattenErrors(errs []error) []error {
	var out []error

	for _, err := range errs {
		if err == nil || isCancellation(err) {
			continue
		}

		//nolint:errorlint // only direct nesting is flattened
		if batch, ok := err.(*BatchError); ok {
			out = append(out, flattenErrors(batch.Errs)...)
			continue
		}

		out = append(out, err)
	}

	return out
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
