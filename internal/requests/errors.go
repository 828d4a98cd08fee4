package requests

import (
	"errors"
	"fmt"
)

// Resource names what a ResourceNotFoundError failed to find.
type Resource string

const (
	ResourceMenuItem Resource = "MENU_ITEM"
	ResourceRequest  Resource = "REQUEST"
	ResourceLineItem Resource = "LINE_ITEM"
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrTransient marks store failures that may succeed on retry. Nothing was applied.
	ErrTransient = errors.New("transient store failure")
	// ErrSubscriberDropped ends an active stream whose consumer fell behind.
	ErrSubscriberDropped = errors.New("stream subscriber dropped")
)

type ResourceNotFoundError struct {
	Resource Resource
	Msg      string
}

func (e *ResourceNotFoundError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("%s not found: %s", e.Resource, e.Msg)
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

func notFound(r Resource, format string, args ...any) error {
	return &ResourceNotFoundError{Resource: r, Msg: fmt.Sprintf(format, args...)}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// IsNotFound reports whether err is a ResourceNotFoundError, optionally of one of
// the given resources.
func IsNotFound(err error, resources ...Resource) bool {
	var nf *ResourceNotFoundError
	if !errors.As(err, &nf) {
		return false
	}
	if len(resources) == 0 {
		return true
	}
	for _, r := range resources {
		if nf.Resource == r {
			return true
		}
	}
	return false
}
