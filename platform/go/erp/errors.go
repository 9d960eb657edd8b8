package erp

import (
	"errors"
	"fmt"

	"github.com/kolo/xmlrpc"
)

// AuthenticationError reports a rejected database/credential pair. It is kept
// distinct from transport failures so operators can tell credential rot from
// outages.
type AuthenticationError struct {
	Database string
	Err      error
}

func (e *AuthenticationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("erp authentication failed for database %q: %v", e.Database, e.Err)
	}
	return fmt.Sprintf("erp authentication failed for database %q", e.Database)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// RemoteError reports a transport-level failure reaching the ERP server
// (network, timeout, malformed response).
type RemoteError struct {
	Service string
	Method  string
	Err     error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("erp call %s.%s failed: %v", e.Service, e.Method, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// ServerError reports a fault raised by the ERP itself, e.g. the schema
// rejecting a field value. The call reached the server; retrying the same
// payload will fail again.
type ServerError struct {
	Service string
	Method  string
	Fault   string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("erp %s.%s rejected: %s", e.Service, e.Method, e.Fault)
}

// wrapCallError classifies an error from the RPC layer.
func wrapCallError(service, method string, err error) error {
	if err == nil {
		return nil
	}
	var fault xmlrpc.FaultError
	if errors.As(err, &fault) {
		return &ServerError{Service: service, Method: method, Fault: fault.String}
	}
	return &RemoteError{Service: service, Method: method, Err: err}
}
