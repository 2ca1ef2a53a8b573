package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

const rateLimitWindow = time.Minute

// withMiddleware wraps mux with CORS handling, then optional bearer auth
// (skipping the paths in exempt), then the sliding-window rate limiter.
func (s *Server) withMiddleware(next http.Handler, exempt map[string]bool) http.Handler {
	return s.withCORS(s.withAuth(s.withRateLimit(next), exempt))
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withAuth(next http.Handler, exempt map[string]bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.authToken == "" || exempt[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}
		const prefix = "Bearer "
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, prefix) || strings.TrimPrefix(header, prefix) != s.authToken {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requestCount.Add(1)
		addr := remoteKey(r)

		remaining, retryAfter, allowed := s.checkRateLimit(addr)
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		if !allowed {
			w.Header().Set("Retry-After-Ms", strconv.FormatInt(retryAfter.Milliseconds(), 10))
			writeJSON(w, http.StatusTooManyRequests, map[string]any{
				"error":        "rate limited",
				"retryAfterMs": retryAfter.Milliseconds(),
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func remoteKey(r *http.Request) string {
	addr := r.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx >= 0 {
		addr = addr[:idx]
	}
	return addr
}

// checkRateLimit prunes addr's window to the last minute, reports whether
// this request is allowed, the post-request remaining count, and how
// long the caller should wait before retrying if not.
func (s *Server) checkRateLimit(addr string) (remaining int, retryAfter time.Duration, allowed bool) {
	now := time.Now()
	cutoff := now.Add(-rateLimitWindow)

	s.limiterMu.Lock()
	defer s.limiterMu.Unlock()

	hits := s.limiter[addr]
	kept := hits[:0:0]
	for _, t := range hits {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= s.rateLimit {
		oldest := kept[0]
		s.limiter[addr] = kept
		return 0, oldest.Add(rateLimitWindow).Sub(now), false
	}

	kept = append(kept, now)
	s.limiter[addr] = kept
	return s.rateLimit - len(kept), 0, true
}
