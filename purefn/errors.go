package purefn

import "fmt"

// panicError records a panic of the memoized function for logs and events.
// The panic itself is re-raised unchanged.
type panicError struct {
	value any
}

func (p panicError) Error() string {
	return fmt.Sprintf("purefn: function panicked: %v", p.value)
}
