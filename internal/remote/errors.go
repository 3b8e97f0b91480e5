// Fleetsync - Device Telemetry Sync and Reconciliation
// Copyright 2026 Max Geller (mgeller)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mgeller/fleetsync

package remote

import (
	"errors"
	"fmt"
)

// TransientError wraps a network, timeout or server-side failure that may
// succeed on retry. The reader retries these once internally; retries beyond
// that budget are the caller's decision.
type TransientError struct {
	Path string
	Err  error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient read failure at %s: %v", e.Path, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError wraps a malformed-path or permission failure that will not
// succeed on retry. Logged, never retried.
type PermanentError struct {
	Path       string
	StatusCode int
	Err        error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent read failure at %s (status %d): %v", e.Path, e.StatusCode, e.Err)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// IsTransient reports whether err is (or wraps) a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsPermanent reports whether err is (or wraps) a PermanentError.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
