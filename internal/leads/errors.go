package leads

import "fmt"

// Kind classifies a domain failure so callers can map it to a response.
type Kind string

const (
	KindInvalidCriteria Kind = "InvalidCriteria"
	KindInvalidFilter   Kind = "InvalidFilter"
	KindInvalidArgument Kind = "InvalidArgument"
	KindNotFound        Kind = "NotFound"
	KindConflict        Kind = "Conflict"
)

// Error is the typed failure returned by every core operation.
// Field names the offending input when there is one.
type Error struct {
	Kind  Kind
	Field string
	Msg   string
}

func (e *Error) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Field, e.Msg)
}

// Is reports a match when target is an *Error of the same kind, so the
// sentinels below work with errors.Is regardless of Field and Msg.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrInvalidCriteria = &Error{Kind: KindInvalidCriteria, Msg: "invalid criteria"}
	ErrInvalidFilter   = &Error{Kind: KindInvalidFilter, Msg: "invalid filter"}
	ErrInvalidArgument = &Error{Kind: KindInvalidArgument, Msg: "invalid argument"}
	ErrNotFound        = &Error{Kind: KindNotFound, Msg: "not found"}
	ErrConflict        = &Error{Kind: KindConflict, Msg: "conflict"}
)

func InvalidCriteria(field, format string, args ...any) *Error {
	return &Error{Kind: KindInvalidCriteria, Field: field, Msg: fmt.Sprintf(format, args...)}
}

func InvalidFilter(field, format string, args ...any) *Error {
	return &Error{Kind: KindInvalidFilter, Field: field, Msg: fmt.Sprintf(format, args...)}
}

func InvalidArgument(field, format string, args ...any) *Error {
	return &Error{Kind: KindInvalidArgument, Field: field, Msg: fmt.Sprintf(format, args...)}
}

func NotFound(field, format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Field: field, Msg: fmt.Sprintf(format, args...)}
}

func Conflict(field, format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Field: field, Msg: fmt.Sprintf(format, args...)}
}
