// Package parsers holds pure, stateless transformations from raw export
// files (JSON, CSV, mbox, free-form dates) into structured records. Nothing
// here touches persistence.
package parsers

import "fmt"

// ParseError marks a whole-file parse failure. Per-record failures inside a
// stream are logged and skipped instead.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error in %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
