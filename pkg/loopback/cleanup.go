package loopback

import (
	"fmt"

	"go.uber.org/multierr"
)

// releaser is a stack of release functions for native handles. Every
// acquisition pushes its release right after it succeeds, so a failure at any
// later step unwinds exactly what was acquired, newest first.
type releaser struct {
	fns []namedRelease
}

type namedRelease struct {
	name string
	fn   func() error
}

func (r *releaser) push(name string, fn func() error) {
	r.fns = append(r.fns, namedRelease{name: name, fn: fn})
}

// pushFunc registers a release that cannot fail (Release on a COM pointer,
// CoTaskMemFree).
func (r *releaser) pushFunc(name string, fn func()) {
	r.push(name, func() error {
		fn()
		return nil
	})
}

func (r *releaser) len() int {
	return len(r.fns)
}

// release runs every registered function in reverse order and empties the
// stack. All of them run even if some fail.
func (r *releaser) release() error {
	var err error
	for i := len(r.fns) - 1; i >= 0; i-- {
		nr := r.fns[i]
		if e := nr.fn(); e != nil {
			err = multierr.Append(err, fmt.Errorf("release %s: %w", nr.name, e))
		}
	}
	r.fns = r.fns[:0]
	return err
}
