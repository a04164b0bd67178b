// Package canvas holds the ordered drawing history of a lobby and its redo stack.
//
// A Log is not safe for concurrent use; the owning lobby serializes access.
package canvas

// Log is the canvas history plus the stack of actions removed by undo
type Log[T any] struct {
	actions []T
	redo    []T
}

// New creates an empty log
func New[T any]() *Log[T] {
	return &Log[T]{}
}

// Append adds a new action. A new action invalidates prior redo history.
func (l *Log[T]) Append(action T) {
	l.redo = nil
	l.actions = append(l.actions, action)
}

// Undo moves the most recent action onto the redo stack
func (l *Log[T]) Undo() (T, bool) {
	var zero T
	n := len(l.actions)
	if n == 0 {
		return zero, false
	}
	action := l.actions[n-1]
	l.actions[n-1] = zero
	l.actions = l.actions[:n-1]
	l.redo = append(l.redo, action)
	return action, true
}

// Redo moves the top of the redo stack back onto the canvas
func (l *Log[T]) Redo() (T, bool) {
	var zero T
	n := len(l.redo)
	if n == 0 {
		return zero, false
	}
	action := l.redo[n-1]
	l.redo[n-1] = zero
	l.redo = l.redo[:n-1]
	l.actions = append(l.actions, action)
	return action, true
}

// Clear empties both the canvas and the redo stack
func (l *Log[T]) Clear() {
	l.actions = nil
	l.redo = nil
}

// Snapshot returns a copy of the canvas in order
func (l *Log[T]) Snapshot() []T {
	out := make([]T, len(l.actions))
	copy(out, l.actions)
	return out
}

// RedoSnapshot returns a copy of the redo stack, bottom first
func (l *Log[T]) RedoSnapshot() []T {
	out := make([]T, len(l.redo))
	copy(out, l.redo)
	return out
}

func (l *Log[T]) Len() int     { return len(l.actions) }
func (l *Log[T]) RedoLen() int { return len(l.redo) }
