// Package herr defines the closed set of error kinds every subsystem wraps
// its failures in, so callers can branch with errors.Is instead of string
// matching on error text.
package herr

import "errors"

var (
	// ErrConfig marks a malformed or unreadable configuration file.
	ErrConfig = errors.New("config error")
	// ErrTranscript marks a malformed transcript line or an extraction
	// that could not locate a well-formed DIGEST block.
	ErrTranscript = errors.New("transcript error")
	// ErrValidation marks a DIGEST block missing required fields.
	ErrValidation = errors.New("validation error")
	// ErrPolicyBlock marks a hook decision that blocks the tool call.
	ErrPolicyBlock = errors.New("policy block")
	// ErrTransient marks a failure the caller should retry with backoff.
	ErrTransient = errors.New("transient error")
	// ErrFatal marks a failure that should not be retried.
	ErrFatal = errors.New("fatal error")
	// ErrIntegrity marks on-disk state that failed a consistency check
	// (truncated JSON, checksum mismatch, orphaned lock).
	ErrIntegrity = errors.New("integrity error")
	// ErrLockLost marks an advisory lock that could not be acquired
	// within its timeout.
	ErrLockLost = errors.New("lock lost")
)

// Wrap annotates err with "pkg: action: err" and marks it as matching kind
// via errors.Is, without losing the original error in the chain.
func Wrap(kind error, pkg, action string, err error) error {
	if err == nil {
		return nil
	}
	return &wrapped{kind: kind, msg: pkg + ": " + action + ": " + err.Error(), cause: err}
}

type wrapped struct {
	kind  error
	msg   string
	cause error
}

func (w *wrapped) Error() string { return w.msg }
func (w *wrapped) Unwrap() []error {
	return []error{w.kind, w.cause}
}

var allKinds = []error{ErrConfig, ErrTranscript, ErrValidation, ErrPolicyBlock, ErrTransient, ErrFatal, ErrIntegrity, ErrLockLost}

// Kind returns the registered kind's message for err (e.g. "transient
// error"), or "unknown error" if err was never wrapped via Wrap. Used
// at RPC boundaries to populate the error.kind field of a JSON
// response without the caller needing to errors.Is every sentinel.
func Kind(err error) string {
	for _, k := range allKinds {
		if errors.Is(err, k) {
			return k.Error()
		}
	}
	return "unknown error"
}
