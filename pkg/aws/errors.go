package aws

import (
	"errors"
	"fmt"

	"github.com/aws/smithy-go"
)

// ClientError is returned by every Client call that the EC2 API rejected or
// that could not reach the API at all. Code and Message are empty in the latter case.
type ClientError struct {
	Op      string
	Code    string
	Message string
	Err     error
}

func (e *ClientError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ClientError) Unwrap() error {
	return e.Err
}

func wrapClientError(op string, err error) error {
	clientErr := &ClientError{Op: op, Err: err}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		clientErr.Code = apiErr.ErrorCode()
		clientErr.Message = apiErr.ErrorMessage()
	}

	return clientErr
}

// ErrorCode returns the provider error code carried by err, if any
func ErrorCode(err error) string {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Code
	}
	return ""
}
