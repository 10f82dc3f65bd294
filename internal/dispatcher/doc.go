// Package dispatcher is the bounded invoker: it runs one generative-text
// backend call per request on a fixed worker pool, enforces a wall-clock
// deadline, and folds every failure into a closed set of ErrorKind values.
//
// The deadline is a race between the worker and the caller's context. When the
// caller gives up, the worker is not interrupted beyond context cancellation;
// whatever it produces afterwards goes to a channel nobody reads.
package dispatcher
