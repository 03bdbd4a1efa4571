package cmd

// exitCoder lets a command error request a specific process exit code.
// main.go checks for it; anything that doesn't implement it exits 1.
type exitCoder interface {
	error
	ExitCode() int
}

// configError wraps a configuration/loading/validation failure — a flow
// or global-config file that couldn't be read, parsed or validated
// before any node ran. Mapped to exit code 2, per spec.md §6/§7.
type configError struct {
	err error
}

func wrapConfigErr(err error) error {
	if err == nil {
		return nil
	}
	return &configError{err: err}
}

func (e *configError) Error() string { return e.err.Error() }
func (e *configError) Unwrap() error { return e.err }
func (e *configError) ExitCode() int { return 2 }
