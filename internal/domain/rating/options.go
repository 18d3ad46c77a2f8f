package rating

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithBeta sets the per-player performance variance.
func WithBeta(beta float64) Option {
	return func(s *Service) {
		if beta > 0 {
			s.beta = beta
		}
	}
}

// WithTau sets the additive dynamics factor applied before each update.
func WithTau(tau float64) Option {
	return func(s *Service) {
		if tau >= 0 {
			s.tau = tau
		}
	}
}

// WithDrawProbability sets the assumed probability of a draw.
func WithDrawProbability(p float64) Option {
	return func(s *Service) {
		if p >= 0 && p < 1 {
			s.drawProb = p
		}
	}
}
