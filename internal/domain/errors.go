package domain

import "errors"

// Domain errors.
var (
	// ErrConfiguration is returned for invalid requests. It is the only error that aborts a run.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrSubredditFetchFailed is returned when one subreddit listing cannot be loaded.
	ErrSubredditFetchFailed = errors.New("subreddit fetch failed")

	// ErrUnresolvableMedia is returned when no resolver strategy yields a fetchable location.
	ErrUnresolvableMedia = errors.New("unresolvable media")

	// ErrMediaTypeMismatch is returned when the resolved kind is not the requested one.
	ErrMediaTypeMismatch = errors.New("media type does not match request")

	// ErrDownloadFailed is returned when media bytes cannot be retrieved.
	ErrDownloadFailed = errors.New("download failed")

	// ErrDownloadTimeout is returned when a single download attempt exceeds its deadline.
	ErrDownloadTimeout = errors.New("download timed out")

	// ErrSinkWriteFailed is returned when an artifact cannot be persisted.
	ErrSinkWriteFailed = errors.New("sink write failed")

	// ErrDuplicateMedia is returned when another post already claimed the same media.
	ErrDuplicateMedia = errors.New("duplicate media")

	// ErrRateLimited is returned when rate limited by the platform or a host.
	ErrRateLimited = errors.New("rate limited")

	// ErrAuth is returned when the platform rejects credentials.
	ErrAuth = errors.New("authentication failed")

	// ErrNotFound is returned for 404/410 responses.
	ErrNotFound = errors.New("not found")

	// ErrCanceled marks posts that were never started because the run was canceled.
	ErrCanceled = errors.New("run canceled before post was processed")
)

// ConfigError describes an invalid request field.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return "invalid " + e.Field + ": " + e.Reason
}

func (e *ConfigError) Unwrap() error {
	return ErrConfiguration
}

// PostError wraps an error with post and stage context.
type PostError struct {
	PostID string
	Stage  Stage
	Err    error
}

func (e *PostError) Error() string {
	if e.PostID != "" {
		return string(e.Stage) + " [" + e.PostID + "]: " + e.Err.Error()
	}
	return string(e.Stage) + ": " + e.Err.Error()
}

func (e *PostError) Unwrap() error {
	return e.Err
}

// NewPostError creates a new PostError.
func NewPostError(postID string, stage Stage, err error) *PostError {
	return &PostError{PostID: postID, Stage: stage, Err: err}
}

// SubredditError records a listing failure for one subreddit.
type SubredditError struct {
	Subreddit string
	Err       error
}

func (e *SubredditError) Error() string {
	return "r/" + e.Subreddit + ": " + e.Err.Error()
}

func (e *SubredditError) Unwrap() []error {
	return []error{ErrSubredditFetchFailed, e.Err}
}
