//go:build unix

package launcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLaunch_TimeoutKillsWholeProcessGroup(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "still-running")
	l := shLauncher(fmt.Sprintf(`(sleep 1; touch %q) & wait`, marker))
	l.Timeout = 200 * time.Millisecond

	start := time.Now()
	res := l.Launch(context.Background(), spec(t))

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "timed out after 200ms")
	assert.Less(t, time.Since(start), time.Second, "Launch should not wait on the background child")

	assert.Never(t, func() bool {
		_, err := os.Stat(marker)
		return err == nil
	}, 1500*time.Millisecond, 100*time.Millisecond, "background child outlived its worker")
}
