package trigger

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDetector_FiresAfterWindow(t *testing.T) {
	var fired atomic.Int32
	d := NewDoublePressDetector(20*time.Millisecond, func() {
		fired.Add(1)
	}, zap.NewNop())

	d.Press(KeyVolumeUp)
	d.Press(KeyVolumeDown)

	require.Eventually(t, func() bool {
		return fired.Load() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestDetector_ReleaseCancels(t *testing.T) {
	var fired atomic.Int32
	d := NewDoublePressDetector(30*time.Millisecond, func() {
		fired.Add(1)
	}, zap.NewNop())

	d.Press(KeyVolumeUp)
	d.Press(KeyVolumeDown)
	d.Release(KeyVolumeDown)

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}

func TestDetector_SingleKeyNeverFires(t *testing.T) {
	var fired atomic.Int32
	d := NewDoublePressDetector(20*time.Millisecond, func() {
		fired.Add(1)
	}, zap.NewNop())

	d.Press(KeyVolumeUp)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}

func TestDetector_UnknownKeyIgnored(t *testing.T) {
	var fired atomic.Int32
	d := NewDoublePressDetector(20*time.Millisecond, func() {
		fired.Add(1)
	}, zap.NewNop())

	d.Press(Key("power"))
	d.Press(KeyVolumeUp)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}

func TestDetector_RearmsAfterFire(t *testing.T) {
	var fired atomic.Int32
	d := NewDoublePressDetector(10*time.Millisecond, func() {
		fired.Add(1)
	}, zap.NewNop())

	d.Press(KeyVolumeUp)
	d.Press(KeyVolumeDown)
	require.Eventually(t, func() bool {
		return fired.Load() == 1
	}, time.Second, 5*time.Millisecond)

	// 松开再按，可再次触发
	d.Release(KeyVolumeUp)
	d.Release(KeyVolumeDown)
	d.Press(KeyVolumeUp)
	d.Press(KeyVolumeDown)
	require.Eventually(t, func() bool {
		return fired.Load() == 2
	}, time.Second, 5*time.Millisecond)
}
