// Package middleware provides HTTP middleware for the challenge-media server.
//
// It includes:
//   - Request logging in W3C Extended Log Format with request IDs
//   - Prometheus request metrics labelled by mux route template
//   - HTTP Basic authentication for the admin routes, bcrypt-verified
package middleware
