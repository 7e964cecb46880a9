package security

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/payback159/raidsplit/pkg/logging"
	"github.com/payback159/raidsplit/pkg/models"
	"golang.org/x/time/rate"
)

// ipLimiter wraps a rate limiter with a last-seen timestamp for cleanup
type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter manages rate limiting per IP address
type RateLimiter struct {
	limiters  map[string]*ipLimiter
	mutex     sync.RWMutex
	perMinute int
	burst     int
}

// NewRateLimiter creates a per-IP limiter allowing perMinute requests with
// the given burst. Non-positive values select the defaults. Stale entries
// are removed by CleanupStale, which the caller schedules.
func NewRateLimiter(perMinute, burst int) *RateLimiter {
	if perMinute <= 0 {
		perMinute = models.RateLimit
	}
	if burst <= 0 {
		burst = models.RateBurst
	}
	return &RateLimiter{
		limiters:  make(map[string]*ipLimiter),
		perMinute: perMinute,
		burst:     burst,
	}
}

// GetLimiter returns a rate limiter for the given IP address
func (rl *RateLimiter) GetLimiter(ip string) *rate.Limiter {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	entry, exists := rl.limiters[ip]
	if !exists {
		limiter := rate.NewLimiter(rate.Limit(rl.perMinute)/60, rl.burst)
		rl.limiters[ip] = &ipLimiter{limiter: limiter, lastSeen: time.Now()}

		logging.LogDebug("Created new rate limiter for IP",
			"ip", ip,
			"rate_per_minute", rl.perMinute,
			"burst", rl.burst)

		return limiter
	}

	entry.lastSeen = time.Now()
	return entry.limiter
}

// Count returns the number of tracked IP addresses
func (rl *RateLimiter) Count() int {
	rl.mutex.RLock()
	defer rl.mutex.RUnlock()
	return len(rl.limiters)
}

// CleanupStale removes limiters not seen within maxAge and returns how
// many were removed
func (rl *RateLimiter) CleanupStale(maxAge time.Duration) int {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	threshold := time.Now().Add(-maxAge)
	removed := 0
	for ip, entry := range rl.limiters {
		if entry.lastSeen.Before(threshold) {
			delete(rl.limiters, ip)
			removed++
		}
	}

	if removed > 0 {
		logging.LogInfo("Cleaned up stale rate limiters",
			"removed", removed,
			"remaining", len(rl.limiters))
	}
	return removed
}

// Middleware rejects requests from IPs that exceeded their rate
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := GetClientIP(r)
		limiter := rl.GetLimiter(ip)

		if !limiter.Allow() {
			logging.LogSecurityEvent("Rate limit exceeded", "high",
				"ip", ip,
				"user_agent", r.UserAgent(),
				"path", r.URL.Path,
				"method", r.Method)

			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// GetClientIP extracts the real client IP from request headers
func GetClientIP(r *http.Request) string {
	// Cloudflare sets this header with the verified client IP
	if cfIP := r.Header.Get("CF-Connecting-IP"); cfIP != "" {
		return strings.TrimSpace(cfIP)
	}

	// X-Forwarded-For can contain multiple IPs, the first one is the client
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}

	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}

	ip := r.RemoteAddr
	if colonIndex := strings.LastIndex(ip, ":"); colonIndex != -1 {
		ip = ip[:colonIndex]
	}
	return strings.Trim(ip, "[]")
}

// ValidateCharacterName checks a character name received from the browser
// before it is used as a lock key
func ValidateCharacterName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("character name is required")
	}
	if len(name) > models.MaxNameLength {
		return fmt.Errorf("character name too long (max: %d characters)", models.MaxNameLength)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return fmt.Errorf("character name contains invalid characters")
		}
	}
	return nil
}

// SanitizeName removes potentially dangerous characters from names.
// Note: html/template auto-escapes output, so no manual HTML entity encoding needed.
func SanitizeName(name string) string {
	return sanitize(name, models.MaxNameLength)
}

// SanitizeQuery cleans a sidebar filter string
func SanitizeQuery(q string) string {
	return sanitize(q, models.MaxQueryLength)
}

func sanitize(s string, max int) string {
	s = strings.ReplaceAll(s, "<", "")
	s = strings.ReplaceAll(s, ">", "")
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, s)

	s = strings.TrimSpace(s)
	if len(s) > max {
		// cut on a rune boundary
		cut := 0
		for i := range s {
			if i > max {
				break
			}
			cut = i
		}
		s = s[:cut]
	}
	return s
}
