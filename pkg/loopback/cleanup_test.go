package loopback

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func TestReleaserReverseOrder(t *testing.T) {
	var order []string
	var r releaser
	r.pushFunc("enumerator", func() { order = append(order, "enumerator") })
	r.pushFunc("device", func() { order = append(order, "device") })
	r.push("client", func() error {
		order = append(order, "client")
		return nil
	})

	require.Equal(t, 3, r.len())
	require.NoError(t, r.release())
	assert.Equal(t, []string{"client", "device", "enumerator"}, order)
	assert.Zero(t, r.len())

	require.NoError(t, r.release(), "second release is empty")
	assert.Len(t, order, 3)
}

func TestReleaserRunsAllOnFailure(t *testing.T) {
	errA := errors.New("a failed")
	errC := errors.New("c failed")

	var ran []string
	var r releaser
	r.push("a", func() error { ran = append(ran, "a"); return errA })
	r.pushFunc("b", func() { ran = append(ran, "b") })
	r.push("c", func() error { ran = append(ran, "c"); return errC })

	err := r.release()
	require.Error(t, err)
	assert.Equal(t, []string{"c", "b", "a"}, ran)
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errC)
	assert.Len(t, multierr.Errors(err), 2)
	assert.Contains(t, err.Error(), "release c")
}

func TestReleaserPartialAcquisition(t *testing.T) {
	var released []string
	var r releaser

	acquire := func(names ...string) error {
		for _, n := range names {
			if n == "fail" {
				return errors.New("acquire failed")
			}
			r.pushFunc(n, func() { released = append(released, n) })
		}
		return nil
	}

	require.Error(t, acquire("connection", "device", "fail", "stream"))
	require.NoError(t, r.release())
	assert.Equal(t, []string{"device", "connection"}, released)
}
