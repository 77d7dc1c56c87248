package policy

import "errors"

// ErrVerificationTimeout means the check battery did not finish within the
// verification deadline. No partial results are returned on overrun.
var ErrVerificationTimeout = errors.New("policy: verification timed out")
