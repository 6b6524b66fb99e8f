package driver

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/vastspace/avatarwire/format"
)

// Defaults for the outbound driver.
const (
	// DefaultBroadcastFramesPerSecond is the client-to-mixer snapshot rate.
	DefaultBroadcastFramesPerSecond = 50

	// DefaultMaxAvatarDataSize is the snapshot payload budget in bytes,
	// after the transport's sequence-number prefix.
	DefaultMaxAvatarDataSize = 1166

	// DefaultMaxTraitsDataRateMbps budgets the trait send windows.
	DefaultMaxTraitsDataRateMbps = 3

	// DefaultFullUpdateRatio is the per-send probability of forcing a full
	// update, guarding against a lost packet hiding a change forever.
	DefaultFullUpdateRatio = 0.02
)

// Config tunes one outbound driver.
type Config struct {
	// BroadcastFramesPerSecond is the snapshot send rate.
	BroadcastFramesPerSecond int `mapstructure:"broadcast_frames_per_second"`

	// MaxAvatarDataSize bounds each snapshot payload in bytes.
	MaxAvatarDataSize int `mapstructure:"max_avatar_data_size"`

	// MaxTraitsDataRateMbps bounds the average trait bandwidth in megabits
	// per second; trait send windows are spaced to honor it.
	MaxTraitsDataRateMbps int `mapstructure:"max_traits_data_rate_mbps"`

	// FullUpdateRatio is the per-send probability of promoting the detail
	// level to a full update.
	FullUpdateRatio float64 `mapstructure:"full_update_ratio"`

	// TraitCompression names the codec for trait payload framing: "none",
	// "zstd", "s2", or "lz4".
	TraitCompression string `mapstructure:"trait_compression"`
}

// DefaultConfig returns the stock driver configuration.
func DefaultConfig() Config {
	return Config{
		BroadcastFramesPerSecond: DefaultBroadcastFramesPerSecond,
		MaxAvatarDataSize:        DefaultMaxAvatarDataSize,
		MaxTraitsDataRateMbps:    DefaultMaxTraitsDataRateMbps,
		FullUpdateRatio:          DefaultFullUpdateRatio,
		TraitCompression:         format.CompressionZstd.String(),
	}
}

// LoadConfig reads driver settings from the "avatar" section of v, filling
// unset keys with defaults.
func LoadConfig(v *viper.Viper) (Config, error) {
	def := DefaultConfig()
	v.SetDefault("avatar.broadcast_frames_per_second", def.BroadcastFramesPerSecond)
	v.SetDefault("avatar.max_avatar_data_size", def.MaxAvatarDataSize)
	v.SetDefault("avatar.max_traits_data_rate_mbps", def.MaxTraitsDataRateMbps)
	v.SetDefault("avatar.full_update_ratio", def.FullUpdateRatio)
	v.SetDefault("avatar.trait_compression", def.TraitCompression)

	cfg := Config{
		BroadcastFramesPerSecond: v.GetInt("avatar.broadcast_frames_per_second"),
		MaxAvatarDataSize:        v.GetInt("avatar.max_avatar_data_size"),
		MaxTraitsDataRateMbps:    v.GetInt("avatar.max_traits_data_rate_mbps"),
		FullUpdateRatio:          v.GetFloat64("avatar.full_update_ratio"),
		TraitCompression:         v.GetString("avatar.trait_compression"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("load avatar driver config: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for usable values.
func (c Config) Validate() error {
	if c.BroadcastFramesPerSecond <= 0 {
		return fmt.Errorf("broadcast_frames_per_second must be positive, got %d", c.BroadcastFramesPerSecond)
	}
	if c.MaxAvatarDataSize < 18 {
		return fmt.Errorf("max_avatar_data_size must hold at least a session id and mask, got %d", c.MaxAvatarDataSize)
	}
	if c.MaxTraitsDataRateMbps <= 0 {
		return fmt.Errorf("max_traits_data_rate_mbps must be positive, got %d", c.MaxTraitsDataRateMbps)
	}
	if c.FullUpdateRatio < 0 || c.FullUpdateRatio > 1 {
		return fmt.Errorf("full_update_ratio must be in [0, 1], got %g", c.FullUpdateRatio)
	}
	if _, err := c.TraitCompressionType(); err != nil {
		return err
	}

	return nil
}

// TraitCompressionType resolves the configured codec name.
func (c Config) TraitCompressionType() (format.CompressionType, error) {
	for t := format.CompressionNone; t.Valid(); t++ {
		if t.String() == c.TraitCompression {
			return t, nil
		}
	}

	return 0, fmt.Errorf("unknown trait_compression %q", c.TraitCompression)
}
