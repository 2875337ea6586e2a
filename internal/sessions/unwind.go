package sessions

import "github.com/hnrobert/vtlogin/internal/logger"

// unwind collects the teardown steps of a session launch and runs them in
// reverse order of registration. A step that fails is logged; the remaining
// steps still run.
type unwind struct {
	steps []unwindStep
	hook  func(name string)
}

type unwindStep struct {
	name string
	fn   func() error
}

func (u *unwind) push(name string, fn func() error) {
	u.steps = append(u.steps, unwindStep{name: name, fn: fn})
}

func (u *unwind) run() {
	for i := len(u.steps) - 1; i >= 0; i-- {
		step := u.steps[i]
		if u.hook != nil {
			u.hook(step.name)
		}
		if err := step.fn(); err != nil {
			logger.Error("Unwind step %q failed: %v", step.name, err)
		}
	}
	u.steps = nil
}
