package httpadapter

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/cors"
	"golang.org/x/time/rate"
)

// isControlPath reports whether the path is exempt from traffic control so
// probes and scrapes keep working while the service sheds load.
func isControlPath(path string) bool {
	return path == "/healthz" || path == "/metrics"
}

func corsMiddleware(next http.Handler, origin string) http.Handler {
	origin = strings.TrimSpace(origin)
	if origin == "" {
		return next
	}
	origins := strings.Split(origin, ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Retry-After", requestIDHeader},
		AllowCredentials: origin != "*",
	}).Handler(next)
}

func rateLimitMiddleware(next http.Handler, rps float64, burst int) http.Handler {
	if rps <= 0 {
		return next
	}
	if burst <= 0 {
		burst = int(math.Ceil(rps))
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isControlPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		reservation := limiter.Reserve()
		if delay := reservation.Delay(); delay > 0 {
			reservation.Cancel()
			w.Header().Set("Retry-After", strconv.Itoa(max(1, int(math.Ceil(delay.Seconds())))))
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func backpressureMiddleware(next http.Handler, maxInFlight int, wait time.Duration) http.Handler {
	if maxInFlight <= 0 {
		return next
	}
	slots := make(chan struct{}, maxInFlight)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isControlPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		select {
		case slots <- struct{}{}:
		default:
			timer := time.NewTimer(wait)
			defer timer.Stop()
			select {
			case slots <- struct{}{}:
			case <-timer.C:
				w.Header().Set("Retry-After", "1")
				writeError(w, http.StatusServiceUnavailable, "server is overloaded, retry later")
				return
			case <-r.Context().Done():
				writeError(w, http.StatusServiceUnavailable, "request canceled while waiting for capacity")
				return
			}
		}
		defer func() { <-slots }()

		next.ServeHTTP(w, r)
	})
}
