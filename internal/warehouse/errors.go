package warehouse

import "fmt"

// LoadError names the table whose write failed. The warehouse is left
// truncated and partially loaded; the only recovery is a full re-run.
type LoadError struct {
	Table string
	Err   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Table, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}
