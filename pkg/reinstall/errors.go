package reinstall

import "errors"

// Job-level errors. Per-plugin failures are recorded as OutcomeEntry values
// and never abort a batch.
var (
	// ErrBackupFailed aborts the entire job before any plugin is touched.
	ErrBackupFailed = errors.New("backup failed")

	// ErrOriginUnavailable marks all pending premium plugins failed in one
	// pass instead of failing each individually one request at a time.
	ErrOriginUnavailable = errors.New("origin unavailable")

	// ErrInvalidBatch is returned for malformed batch parameters.
	ErrInvalidBatch = errors.New("invalid batch parameters")
)
