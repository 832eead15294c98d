package request

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// NoHostAvailableError is returned when a query plan is exhausted without
// any host producing a usable attempt; Errors maps each tried host's
// endpoint to the reason it was skipped (BusyConnection, pool empty, a
// prior fatal error, etc).
type NoHostAvailableError struct {
	Errors map[string]error
	Cause  error // aggregate of Errors, for errors.As(*multierror.Error) callers
}

func (e *NoHostAvailableError) Error() string {
	var b strings.Builder
	b.WriteString("request: no host available")
	if len(e.Errors) > 0 {
		b.WriteString(": ")
		first := true
		for endpoint, err := range e.Errors {
			if !first {
				b.WriteString("; ")
			}
			first = false
			fmt.Fprintf(&b, "%s: %v", endpoint, err)
		}
	}
	return b.String()
}

func (e *NoHostAvailableError) Unwrap() error { return e.Cause }

// aggregate folds per-host errors using go-multierror so a caller that
// wants the full detail (rather than NoHostAvailableError's map) can
// unwrap it with errors.As against *multierror.Error too.
func aggregate(errs map[string]error) error {
	var merr *multierror.Error
	for endpoint, err := range errs {
		merr = multierror.Append(merr, fmt.Errorf("%s: %w", endpoint, err))
	}
	return merr.ErrorOrNil()
}
