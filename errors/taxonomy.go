package errors

// Failure taxonomy. Each sentinel is used as a mark (errors.Mark) so the
// original message and stack survive while errors.Is still classifies it.
var (
	// ErrTransientService is a model transport or service failure worth retrying.
	ErrTransientService = New("transient service error")

	// ErrOversizeRequest means the request or response exceeded the model's
	// size limit; the caller shrinks its token budget and retries.
	ErrOversizeRequest = New("oversize request")

	// ErrMalformedResponse means the model replied with something that is not
	// the requested JSON shape. Never retried at the parse layer.
	ErrMalformedResponse = New("malformed response")

	// ErrCompileFailure is a unit that did not compile.
	ErrCompileFailure = New("compile failure")

	// ErrExecutionFailure is a source file the execution harness rejected.
	ErrExecutionFailure = New("execution failure")

	// ErrPreconditionViolation is a missing file or directory the pipeline
	// expected to exist. Fatal for that unit only.
	ErrPreconditionViolation = New("precondition violation")

	// ErrFileNotFound narrows ErrPreconditionViolation to a missing file.
	// Use MarkFileNotFound so both marks are applied.
	ErrFileNotFound = New("file not found")

	// ErrIOFailure is an artifact write failure. Fatal for the whole run.
	ErrIOFailure = New("io failure")

	// ErrTimeout indicates an external invocation exceeded its deadline
	ErrTimeout = New("operation timed out")
)

// MarkIO marks err as an infrastructure I/O failure.
func MarkIO(err error) error {
	if err == nil {
		return nil
	}
	return Mark(err, ErrIOFailure)
}

// MarkFileNotFound marks err as a missing-file precondition violation.
func MarkFileNotFound(err error) error {
	if err == nil {
		return nil
	}
	return Mark(Mark(err, ErrFileNotFound), ErrPreconditionViolation)
}

// IsOversize reports whether err asks for a smaller token budget.
func IsOversize(err error) bool {
	return err != nil && Is(err, ErrOversizeRequest)
}

// IsTransient reports whether err is a retryable service failure.
// Oversize errors are retryable too, after the budget is reduced.
func IsTransient(err error) bool {
	return err != nil && IsAny(err, ErrTransientService, ErrOversizeRequest)
}

// IsFatal reports whether err must abort the whole run rather than one unit.
func IsFatal(err error) bool {
	return err != nil && Is(err, ErrIOFailure)
}

// Category returns a short, stable name for the taxonomy class of err.
// Used as a label in reports, metrics and the ledger.
func Category(err error) string {
	switch {
	case err == nil:
		return "none"
	case Is(err, ErrIOFailure):
		return "io"
	case Is(err, ErrFileNotFound):
		return "file_not_found"
	case Is(err, ErrPreconditionViolation):
		return "precondition"
	case Is(err, ErrMalformedResponse):
		return "malformed_response"
	case Is(err, ErrOversizeRequest):
		return "oversize_request"
	case Is(err, ErrTimeout):
		return "timeout"
	case Is(err, ErrTransientService):
		return "transient_service"
	case Is(err, ErrCompileFailure):
		return "compile"
	case Is(err, ErrExecutionFailure):
		return "execution"
	default:
		return "unknown"
	}
}
