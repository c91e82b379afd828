package scale

// Option denotes a functional option applied to a scale upon construction
type Option func(*settings)

type settings struct {
	logger Logger
}

func newSettings(options ...Option) settings {
	s := settings{
		logger: &NullLogger{},
	}

	// Execute functional options (if any)
	for _, option := range options {
		option(&s)
	}

	return s
}

// WithLogger sets a logger
func WithLogger(logger Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}
