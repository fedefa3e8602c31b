// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"os"
	"runtime"
	"strconv"
	"sync"
	"testing"
)

// ContainerParallelEnv overrides how many image builds tests run at once.
const ContainerParallelEnv = "STACKCTL_TEST_CONTAINER_PARALLEL"

var containerSlots = sync.OnceValue(func() chan struct{} {
	return make(chan struct{}, containerParallelism(os.Getenv))
})

// AcquireContainerSlot blocks until the test may talk to the container engine
// and releases the slot when the test ends. At most ContainerParallelEnv
// tests, or min(GOMAXPROCS, 2), hold a slot at a time.
func AcquireContainerSlot(t testing.TB) {
	t.Helper()
	slots := containerSlots()
	slots <- struct{}{}
	t.Cleanup(func() { <-slots })
}

func containerParallelism(getenv func(string) string) int {
	if n, err := strconv.Atoi(getenv(ContainerParallelEnv)); err == nil && n > 0 {
		return n
	}
	return min(runtime.GOMAXPROCS(0), 2)
}
