package runner

import "errors"

// Sentinel errors for failure classification.
var (
	// ErrUnsupportedLanguage is returned before any I/O when the requested
	// language is not in the registry.
	ErrUnsupportedLanguage = errors.New("unsupported language")

	// ErrTimeout marks a result whose process was terminated by the deadline.
	ErrTimeout = errors.New("execution timeout exceeded")

	// ErrCanceled marks a result whose process was terminated because the
	// caller's context was canceled.
	ErrCanceled = errors.New("execution canceled")

	// ErrSpawn marks a result whose process could not be started.
	ErrSpawn = errors.New("process spawn failed")
)

// UnsupportedLanguageError names the language that was rejected.
type UnsupportedLanguageError struct {
	Language string
}

func (e *UnsupportedLanguageError) Error() string {
	return "Unsupported language: " + e.Language
}

// Is matches ErrUnsupportedLanguage.
func (e *UnsupportedLanguageError) Is(target error) bool {
	return target == ErrUnsupportedLanguage
}

// SpawnError wraps the operating system error returned when starting a process.
type SpawnError struct {
	Err error
}

func (e *SpawnError) Error() string {
	return "Execution error: " + e.Err.Error()
}

// Unwrap returns the underlying OS error.
func (e *SpawnError) Unwrap() error {
	return e.Err
}

// Is matches ErrSpawn.
func (e *SpawnError) Is(target error) bool {
	return target == ErrSpawn
}
