package server

import "go.uber.org/zap"

// Option configures a Server at construction time, following the
// functional-options pattern the teacher's own responder package uses.
type Option func(*Server)

// WithLogger sets the structured logger the Server and the transport
// listener it owns log through. The default is a no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Server) {
		s.log = log
	}
}
