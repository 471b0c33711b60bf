package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

type ErrorKind string

const (
	// KindUnavailable covers locked, busy, or unreachable database files.
	// Callers may retry a bounded number of times.
	KindUnavailable ErrorKind = "unavailable"
	// KindCorrupt marks an unreadable database. Fatal: collection must stop
	// rather than silently lose data.
	KindCorrupt ErrorKind = "corrupt"
	// KindConstraint marks a row the schema rejected. The sample is dropped.
	KindConstraint ErrorKind = "constraint"
)

type StorageError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("store %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func IsUnavailable(err error) bool { return hasKind(err, KindUnavailable) }
func IsCorrupt(err error) bool     { return hasKind(err, KindCorrupt) }
func IsConstraint(err error) bool  { return hasKind(err, KindConstraint) }

func hasKind(err error, kind ErrorKind) bool {
	var se *StorageError
	return errors.As(err, &se) && se.Kind == kind
}

// classify wraps a driver error with its retry classification. Context
// cancellation passes through untouched so loops can tell shutdown apart
// from storage trouble. Unknown failures default to Unavailable.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	msg := strings.ToLower(err.Error())
	kind := KindUnavailable
	switch {
	case strings.Contains(msg, "malformed"),
		strings.Contains(msg, "not a database"),
		strings.Contains(msg, "corrupt"):
		kind = KindCorrupt
	case strings.Contains(msg, "constraint"):
		kind = KindConstraint
	}
	return &StorageError{Kind: kind, Op: op, Err: err}
}
