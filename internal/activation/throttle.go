package activation

import (
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// LoginThrottle rate-limits tenant_verify password attempts per device id,
// so a lost/stolen kiosk can't be brute-forced against the tenant's
// activation password even with unlimited local attempts.
type LoginThrottle struct {
	perMinute float64

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewLoginThrottle allows perMinute attempts per device, refilling at the
// same rate (burst == perMinute, so a device can't bank quiet time into a
// later burst larger than one minute's allowance).
func NewLoginThrottle(perMinute int) *LoginThrottle {
	if perMinute <= 0 {
		perMinute = 1
	}
	return &LoginThrottle{
		perMinute: float64(perMinute),
		limiters:  make(map[string]*rate.Limiter),
	}
}

// Allow reports whether deviceID may attempt a login right now, consuming
// one token if so.
func (t *LoginThrottle) Allow(deviceID string) bool {
	return t.limiterFor(deviceID).Allow()
}

// Reserve is Allow in error form: if the device is throttled it returns an
// error naming the device and its per-minute attempt limit.
func (t *LoginThrottle) Reserve(deviceID string) error {
	if t.Allow(deviceID) {
		return nil
	}
	return fmt.Errorf("activation: device %s exceeded %v login attempts/min", deviceID, t.perMinute)
}

func (t *LoginThrottle) limiterFor(deviceID string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()
	lim, ok := t.limiters[deviceID]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(t.perMinute/60.0), int(t.perMinute))
		t.limiters[deviceID] = lim
	}
	return lim
}
