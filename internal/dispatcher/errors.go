package dispatcher

import "fmt"

// ErrorKind is the normalized failure category of one invocation.
type ErrorKind string

const (
	KindTimeout           ErrorKind = "TIMEOUT"
	KindQuotaExceeded     ErrorKind = "QUOTA_EXCEEDED"
	KindModelNotFound     ErrorKind = "MODEL_NOT_FOUND"
	KindPermissionDenied  ErrorKind = "PERMISSION_DENIED"
	KindBadRequestPayload ErrorKind = "BAD_REQUEST_PAYLOAD"
	KindEmptyResponse     ErrorKind = "EMPTY_RESPONSE"
	KindBackendError      ErrorKind = "BACKEND_ERROR"
	KindUnknown           ErrorKind = "UNKNOWN"
)

// Kinds lists every ErrorKind.
func Kinds() []ErrorKind {
	return []ErrorKind{
		KindTimeout,
		KindQuotaExceeded,
		KindModelNotFound,
		KindPermissionDenied,
		KindBadRequestPayload,
		KindEmptyResponse,
		KindBackendError,
		KindUnknown,
	}
}

func (k ErrorKind) String() string { return string(k) }

// Failure is a classified invocation failure. Detail is for operators only.
type Failure struct {
	Kind   ErrorKind
	Detail string
	Err    error
}

func (f *Failure) Error() string {
	if f.Detail == "" {
		return string(f.Kind)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Detail)
}

func (f *Failure) Unwrap() error { return f.Err }
