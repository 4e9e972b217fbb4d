package revert_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openfabrics/go-opensm/internal/revert"
)

func TestFailRunsInReverseOrder(t *testing.T) {
	var order []int

	r := revert.New()
	r.Add(func() { order = append(order, 1) })
	r.Add(func() { order = append(order, 2) })
	r.Fail()

	require.Equal(t, []int{2, 1}, order)
}

func TestSuccessSkipsCleanup(t *testing.T) {
	ran := false

	r := revert.New()
	r.Add(func() { ran = true })
	r.Success()
	r.Fail() // no-op after Success

	require.False(t, ran)
}

func TestCloneIsIndependent(t *testing.T) {
	var order []string

	r := revert.New()
	r.Add(func() { order = append(order, "a") })

	clone := r.Clone()
	clone.Add(func() { order = append(order, "b") })

	r.Fail()
	require.Equal(t, []string{"a"}, order)

	clone.Fail()
	require.Equal(t, []string{"a", "b", "a"}, order)
}
