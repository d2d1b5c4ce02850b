package common

import "errors"

// Combine joins the non-nil errors; it returns nil when every error is nil.
func Combine(errs ...error) error {
	return errors.Join(errs...)
}
