package auth

import (
	"sync"
	"time"
)

// RateLimiter locks out client IPs after repeated failed logins. Stale
// entries are dropped by Prune, which the scheduler runs periodically.
type RateLimiter struct {
	mu          sync.RWMutex
	attempts    map[string]*attemptInfo
	maxAttempts int
	lockTime    time.Duration
	now         func() time.Time
}

type attemptInfo struct {
	count    int
	firstAt  time.Time
	lockedAt time.Time
}

func NewRateLimiter(maxAttempts int, lockTime time.Duration) *RateLimiter {
	return &RateLimiter{
		attempts:    make(map[string]*attemptInfo),
		maxAttempts: maxAttempts,
		lockTime:    lockTime,
		now:         time.Now,
	}
}

// Prune drops expired lockouts and counters older than a day.
func (rl *RateLimiter) Prune() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for ip, info := range rl.attempts {
		if info.lockedAt.IsZero() && now.Sub(info.firstAt) > 24*time.Hour {
			delete(rl.attempts, ip)
		}
		if !info.lockedAt.IsZero() && now.Sub(info.lockedAt) > rl.lockTime {
			delete(rl.attempts, ip)
		}
	}
}

func (rl *RateLimiter) IsLocked(ip string) bool {
	return rl.LockRemaining(ip) > 0
}

// RecordFailure counts a failed attempt and reports whether ip is now locked.
func (rl *RateLimiter) RecordFailure(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()

	info, exists := rl.attempts[ip]
	if !exists {
		info = &attemptInfo{firstAt: now}
		rl.attempts[ip] = info
	}

	if !info.lockedAt.IsZero() && now.Sub(info.lockedAt) >= rl.lockTime {
		info.count = 0
		info.firstAt = now
		info.lockedAt = time.Time{}
	}

	info.count++
	if info.count >= rl.maxAttempts {
		info.lockedAt = now
		return true
	}
	return false
}

// Reset forgets ip, called after a successful login.
func (rl *RateLimiter) Reset(ip string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	delete(rl.attempts, ip)
}

func (rl *RateLimiter) LockRemaining(ip string) time.Duration {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	info, exists := rl.attempts[ip]
	if !exists || info.lockedAt.IsZero() {
		return 0
	}

	elapsed := rl.now().Sub(info.lockedAt)
	if elapsed >= rl.lockTime {
		return 0
	}
	return rl.lockTime - elapsed
}
