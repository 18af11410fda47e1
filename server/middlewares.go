package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Daskott/tandem/colors"
	"github.com/Daskott/tandem/server/metrics"
	"github.com/Daskott/tandem/server/ratelimit"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

const REQUEST_ID_HEADER = "X-Request-ID"

type ResponseWriterWithStatus struct {
	http.ResponseWriter
	Status int
}

func (r *ResponseWriterWithStatus) WriteHeader(status int) {
	r.Status = status
	r.ResponseWriter.WriteHeader(status)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		responseWriter := &ResponseWriterWithStatus{
			ResponseWriter: w,
			Status:         http.StatusOK,
		}

		requestID := r.Header.Get(REQUEST_ID_HEADER)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		responseWriter.Header().Set(REQUEST_ID_HEADER, requestID)

		defer func() {
			elapsed := time.Since(start)
			metrics.HTTPRequestDuration.
				WithLabelValues(r.Method, routeTemplate(r), strconv.Itoa(responseWriter.Status)).
				Observe(elapsed.Seconds())

			logg.Infof("%s %s %s %s %s",
				r.Method,
				r.RequestURI,
				colors.Status(responseWriter.Status),
				colors.Yellow(fmt.Sprintf("[%v]", elapsed)),
				colors.Blue(requestID))
		}()

		next.ServeHTTP(responseWriter, r)
	})
}

func initialContextMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Content-Type", "application/json")

		// Add decoded token to request context
		ctx := context.WithValue(r.Context(), RequestContextKey("decodedJWT"), decodeAndVerifyAuthHeader(r.Header.Get("Authorization")))

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func protectedRouteMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		decodedJWT := r.Context().Value(RequestContextKey("decodedJWT")).(DecodedJWT)
		if decodedJWT.ErrorMsg != "" {
			writeErrors(w, http.StatusUnauthorized, decodedJWT.ErrorMsg)
			return
		}

		if !canAccessUserResource(r, decodedJWT.Claims) {
			writeErrors(w, http.StatusForbidden, "action is forbidden")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func adminRouteMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		decodedJWT := r.Context().Value(RequestContextKey("decodedJWT")).(DecodedJWT)
		if decodedJWT.ErrorMsg != "" {
			writeErrors(w, http.StatusUnauthorized, decodedJWT.ErrorMsg)
			return
		}

		if !decodedJWT.Claims.IsAdmin {
			writeErrors(w, http.StatusForbidden, "action is forbidden")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// rateLimitMiddleware limits requests per route & the key keyOf returns.
// Requests are let through when the limiter itself fails.
func rateLimitMiddleware(limiter ratelimit.Limiter, keyOf func(r *http.Request) string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route := routeTemplate(r)

			allowed, err := limiter.Allow(r.Context(), route+"|"+keyOf(r))
			if err != nil {
				logg.Warnf("rate limiter unavailable: %v", err)
				next.ServeHTTP(w, r)
				return
			}

			if !allowed {
				metrics.RateLimitedRequests.WithLabelValues(route).Inc()
				w.Header().Set("Retry-After", "60")
				writeErrors(w, http.StatusTooManyRequests, "too many requests, please try again later")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// byUser keys on the {uid} path var; only use it behind protectedRouteMiddleware
func byUser(r *http.Request) string {
	return "user:" + mux.Vars(r)["uid"]
}

func routeTemplate(r *http.Request) string {
	route := mux.CurrentRoute(r)
	if route == nil {
		return "unmatched"
	}

	template, err := route.GetPathTemplate()
	if err != nil {
		return "unmatched"
	}
	return template
}
