package dispatcher

// Result is the outcome of one invocation: either Text is set (success) or
// Failure is non-nil, never both.
type Result struct {
	Text    string
	Failure *Failure
}

func Success(text string) Result { return Result{Text: text} }

func Fail(kind ErrorKind, detail string, err error) Result {
	return Result{Failure: &Failure{Kind: kind, Detail: detail, Err: err}}
}

func (r Result) OK() bool { return r.Failure == nil }

// Kind returns the failure kind, or "" on success.
func (r Result) Kind() ErrorKind {
	if r.Failure == nil {
		return ""
	}
	return r.Failure.Kind
}

// Err returns the failure as an error, or nil on success.
func (r Result) Err() error {
	if r.Failure == nil {
		return nil
	}
	return r.Failure
}
