package cmd

import "errors"

// exitCodeErr carries a specific process exit code alongside its message,
// for the failure modes spec.md §6's CLI table enumerates (session errors,
// not-found, claim/complete/fail/dispatch update failures, "nothing to do").
type exitCodeErr struct {
	code int
	err  error
}

func (e *exitCodeErr) Error() string { return e.err.Error() }
func (e *exitCodeErr) Unwrap() error { return e.err }

// withExitCode wraps err so Execute reports code instead of the generic 1.
func withExitCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitCodeErr{code: code, err: err}
}

func exitCodeOf(err error) (int, bool) {
	var ec *exitCodeErr
	if errors.As(err, &ec) {
		return ec.code, true
	}
	return 0, false
}
