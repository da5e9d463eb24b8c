package dispatcher

// RetriableError tags err with a named class so Process can test it for
// membership in a registration's error_classes, the Go equivalent of
// testing an exception's class against a tuple of retriable types.
type RetriableError struct {
	Class string
	Err   error
}

func (e *RetriableError) Error() string { return e.Err.Error() }
func (e *RetriableError) Unwrap() error  { return e.Err }

// Retriable wraps err with class. A Fn should return the result of this call
// instead of a bare error when it wants the failure considered for retry.
func Retriable(class string, err error) error {
	if err == nil {
		return nil
	}
	return &RetriableError{Class: class, Err: err}
}
