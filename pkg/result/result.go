// Package result holds the per-host outcome model: a Success/Error tagged
// Result, the ordered Aggregate built by one dispatch and its serialized form.
package result

// Result is either a success carrying a value or a classified error, never both.
// The zero value is not a valid Result; build one with Success or Failure.
type Result[T any] struct {
	value T
	err   *Error
	set   bool
}

func Success[T any](value T) Result[T] {
	return Result[T]{value: value, set: true}
}

// Failure builds an error Result. A nil err is turned into a remote execution
// error so that a failed invocation can never read as a success.
func Failure[T any](err *Error) Result[T] {
	if err == nil {
		err = &Error{Kind: KindRemoteExecution, Message: "unknown failure"}
	}
	return Result[T]{err: err, set: true}
}

// Ok is true for Success results only.
func (r Result[T]) Ok() bool { return r.set && r.err == nil }

func (r Result[T]) Value() (T, bool) {
	return r.value, r.Ok()
}

func (r Result[T]) Err() *Error {
	return r.err
}

// Valid reports whether the Result was built through Success or Failure.
func (r Result[T]) Valid() bool { return r.set }

// Erase converts a typed Result into Result[any] for backend-agnostic consumers.
func Erase[T any](r Result[T]) Result[any] {
	if !r.Ok() {
		return Failure[any](r.err)
	}
	return Success[any](r.value)
}
