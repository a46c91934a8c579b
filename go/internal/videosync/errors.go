package videosync

import "errors"

var (
	// ErrInvalidArgument is returned when a constructor or API call receives
	// a malformed topology, a missing collaborator, or a nil listener.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrDestroyed is returned by API calls made after the endpoint was torn down.
	ErrDestroyed = errors.New("endpoint destroyed")
)
