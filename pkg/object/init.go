package object

import "fmt"

// EnterInitialization implements the JLS §5.5 state-machine entry point
// (spec.md §4.5 "Initialization"). It blocks until this thread should
// either run <clinit> (proceed == true) or can skip it (proceed ==
// false, err == nil covers both "recursive re-entry" and "already
// initialized"; err != nil means InitializationFailed and the caller
// should raise NoClassDefFoundError wrapping err).
func (c *Class) EnterInitialization(threadID int64) (proceed bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for {
		switch c.state {
		case FullyInitialized:
			return false, nil
		case InitializationFailed:
			return false, fmt.Errorf("NoClassDefFoundError: %w", c.initErr)
		case BeingInitialized:
			if c.initBy == threadID {
				return false, nil // recursive re-entry during <clinit>
			}
			c.initCond.Wait()
			continue
		default: // Allocated, BeingLinked, Linked
			c.state = BeingInitialized
			c.initBy = threadID
			return true, nil
		}
	}
}

// FinishInitialization records the outcome of running <clinit> and
// wakes any threads waiting in EnterInitialization.
func (c *Class) FinishInitialization(cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cause != nil {
		c.state = InitializationFailed
		c.initErr = cause
	} else {
		c.state = FullyInitialized
	}
	c.initCond.Broadcast()
}

// SetLinked transitions a freshly loaded class (spec.md §4.5 step 6-8)
// into the Linked state, ready for initialization. Called once
// verification and preparation have both succeeded.
func (c *Class) SetLinked() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Allocated || c.state == BeingLinked {
		c.state = Linked
	}
}

// SetBeingLinked marks the class as undergoing verification/preparation.
func (c *Class) SetBeingLinked() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Allocated {
		c.state = BeingLinked
	}
}
