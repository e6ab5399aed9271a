package radio

import "fmt"

// ValidateConfig checks cfg for internal consistency. Every failure wraps
// ErrConfig.
func ValidateConfig(cfg Config) error {
	if cfg.Channel >= MaxChannels {
		return fmt.Errorf("channel %d out of range 0..%d: %w", cfg.Channel, MaxChannels-1, ErrConfig)
	}
	if cfg.MaxRetries > MaxRetries {
		return fmt.Errorf("max retries %d exceeds %d: %w", cfg.MaxRetries, MaxRetries, ErrConfig)
	}
	if cfg.TxTimeout <= 0 {
		return fmt.Errorf("tx timeout must be positive: %w", ErrConfig)
	}
	if cfg.TxPower > TxPowerMax {
		return fmt.Errorf("tx power %d: %w", cfg.TxPower, ErrConfig)
	}
	if cfg.DataRate > DataRate250K {
		return fmt.Errorf("data rate %d: %w", cfg.DataRate, ErrConfig)
	}
	if cfg.Modulation > ModulationOOK {
		return fmt.Errorf("modulation %d: %w", cfg.Modulation, ErrConfig)
	}
	if cfg.Security > SecurityAES256 {
		return fmt.Errorf("security mode %d: %w", cfg.Security, ErrConfig)
	}
	return nil
}
