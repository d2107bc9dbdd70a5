package integration

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"
)

// TestMain terminates the shared container after the package finishes.
func TestMain(m *testing.M) {
	code := m.Run()

	sharedContainerMu.Lock()
	if sharedContainer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := sharedContainer.Terminate(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "failed to terminate container: %v\n", err)
		}
		cancel()
	}
	sharedContainerMu.Unlock()

	os.Exit(code)
}
