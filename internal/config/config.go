package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultAddr is the default TCP address the match server listens on.
	DefaultAddr = ":43180"
	// DefaultTickRate is the fixed simulation frequency in hertz.
	DefaultTickRate = 60
	// DefaultMatchDuration bounds how long a match runs before finalization.
	DefaultMatchDuration = 3 * time.Minute
	// DefaultGracePeriod is how long a disconnected player may return before forfeiting.
	DefaultGracePeriod = 30 * time.Second
	// DefaultMaxSessions bounds concurrently running match sessions. Zero disables the limit.
	DefaultMaxSessions = 512
	// DefaultInboxSize bounds the per-session inbound action queue.
	DefaultInboxSize = 256
	// DefaultOutboundQueue bounds buffered snapshots per client connection.
	DefaultOutboundQueue = 32
	// DefaultMaxPayloadBytes limits inbound WebSocket frame size.
	DefaultMaxPayloadBytes int64 = 1 << 16
	// DefaultPingInterval controls the keepalive cadence for WebSocket connections.
	DefaultPingInterval = 30 * time.Second

	// DefaultFieldWidth and DefaultFieldHeight describe the playing field in world units.
	DefaultFieldWidth  = 800.0
	DefaultFieldHeight = 600.0
	// DefaultGoalMargin is the distance from either end line that counts as a goal.
	DefaultGoalMargin = 20.0
	// DefaultMaxKickForce scales a full-power kick or shot impulse.
	DefaultMaxKickForce = 600.0
	// DefaultMaxPassForce scales a full-power pass impulse.
	DefaultMaxPassForce = 350.0

	// DefaultFlagLimit is how many cheat flags within the window forfeit a match.
	DefaultFlagLimit = 10
	// DefaultFlagWindow is the sliding window used for flag escalation.
	DefaultFlagWindow = time.Minute

	// DefaultTiePolicy decides drawn matches at finalization.
	DefaultTiePolicy = "draw"

	// DefaultAuditRetainBundles limits retained audit bundles. Zero disables pruning.
	DefaultAuditRetainBundles = 64
	// DefaultAuditRetainAge expires audit bundles past this age. Zero disables the check.
	DefaultAuditRetainAge = 7 * 24 * time.Hour

	// DefaultLogLevel controls verbosity for match server logs.
	DefaultLogLevel = "info"
	// DefaultLogPath is where structured logs are written.
	DefaultLogPath = "matchcore.log"
	// DefaultLogMaxSizeMB caps the size of a single log file before rotation.
	DefaultLogMaxSizeMB = 100
	// DefaultLogMaxBackups limits retained rotated log files.
	DefaultLogMaxBackups = 10
	// DefaultLogMaxAgeDays controls how long rotated log files are kept on disk.
	DefaultLogMaxAgeDays = 7
	// DefaultLogCompress toggles gzip compression for rotated log files.
	DefaultLogCompress = true
)

// Config captures all runtime tunables for the match server.
type Config struct {
	Address         string
	AllowedOrigins  []string
	MaxPayloadBytes int64
	PingInterval    time.Duration
	AuthSecret      string
	AdminToken      string

	TickRate      int
	MatchDuration time.Duration
	GracePeriod   time.Duration
	MaxSessions   int
	InboxSize     int
	OutboundQueue int

	Field FieldConfig
	Cheat CheatConfig

	TiePolicy string

	AuditDir           string
	AuditRetainBundles int
	AuditRetainAge     time.Duration

	Logging LoggingConfig
}

// FieldConfig describes the pitch geometry and kick tuning shared by every match.
type FieldConfig struct {
	Width        float64
	Height       float64
	GoalMargin   float64
	MaxKickForce float64
	MaxPassForce float64
}

// CheatConfig captures the escalation policy applied to flagged actions.
type CheatConfig struct {
	FlagLimit  int
	FlagWindow time.Duration
}

// LoggingConfig captures structured logging configuration options.
type LoggingConfig struct {
	Level      string
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Load reads the match server configuration from environment variables, applying sane
// defaults and returning descriptive errors for invalid overrides.
func Load() (*Config, error) {
	cfg := &Config{
		Address:         getString("MATCHCORE_ADDR", DefaultAddr),
		AllowedOrigins:  parseList(os.Getenv("MATCHCORE_ALLOWED_ORIGINS")),
		MaxPayloadBytes: DefaultMaxPayloadBytes,
		PingInterval:    DefaultPingInterval,
		AuthSecret:      strings.TrimSpace(os.Getenv("MATCHCORE_AUTH_SECRET")),
		AdminToken:      strings.TrimSpace(os.Getenv("MATCHCORE_ADMIN_TOKEN")),
		TickRate:        DefaultTickRate,
		MatchDuration:   DefaultMatchDuration,
		GracePeriod:     DefaultGracePeriod,
		MaxSessions:     DefaultMaxSessions,
		InboxSize:       DefaultInboxSize,
		OutboundQueue:   DefaultOutboundQueue,
		Field: FieldConfig{
			Width:        DefaultFieldWidth,
			Height:       DefaultFieldHeight,
			GoalMargin:   DefaultGoalMargin,
			MaxKickForce: DefaultMaxKickForce,
			MaxPassForce: DefaultMaxPassForce,
		},
		Cheat: CheatConfig{
			FlagLimit:  DefaultFlagLimit,
			FlagWindow: DefaultFlagWindow,
		},
		TiePolicy:          strings.TrimSpace(getString("MATCHCORE_TIE_POLICY", DefaultTiePolicy)),
		AuditDir:           strings.TrimSpace(os.Getenv("MATCHCORE_AUDIT_DIR")),
		AuditRetainBundles: DefaultAuditRetainBundles,
		AuditRetainAge:     DefaultAuditRetainAge,
		Logging: LoggingConfig{
			Level:      strings.TrimSpace(getString("MATCHCORE_LOG_LEVEL", DefaultLogLevel)),
			Path:       strings.TrimSpace(getString("MATCHCORE_LOG_PATH", DefaultLogPath)),
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
			MaxAgeDays: DefaultLogMaxAgeDays,
			Compress:   DefaultLogCompress,
		},
	}

	var problems []string

	if raw := strings.TrimSpace(os.Getenv("MATCHCORE_TICK_RATE")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 || value > 240 {
			problems = append(problems, fmt.Sprintf("MATCHCORE_TICK_RATE must be a positive integer no greater than 240, got %q", raw))
		} else {
			cfg.TickRate = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("MATCHCORE_MATCH_DURATION")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("MATCHCORE_MATCH_DURATION must be a positive duration, got %q", raw))
		} else {
			cfg.MatchDuration = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("MATCHCORE_GRACE_PERIOD")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration < 0 {
			problems = append(problems, fmt.Sprintf("MATCHCORE_GRACE_PERIOD must be a non-negative duration, got %q", raw))
		} else {
			cfg.GracePeriod = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("MATCHCORE_MAX_SESSIONS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("MATCHCORE_MAX_SESSIONS must be a non-negative integer, got %q", raw))
		} else {
			cfg.MaxSessions = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("MATCHCORE_INBOX_SIZE")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("MATCHCORE_INBOX_SIZE must be a positive integer, got %q", raw))
		} else {
			cfg.InboxSize = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("MATCHCORE_OUTBOUND_QUEUE")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("MATCHCORE_OUTBOUND_QUEUE must be a positive integer, got %q", raw))
		} else {
			cfg.OutboundQueue = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("MATCHCORE_MAX_PAYLOAD_BYTES")); raw != "" {
		value, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("MATCHCORE_MAX_PAYLOAD_BYTES must be a positive integer, got %q", raw))
		} else {
			cfg.MaxPayloadBytes = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("MATCHCORE_PING_INTERVAL")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("MATCHCORE_PING_INTERVAL must be a positive duration, got %q", raw))
		} else {
			cfg.PingInterval = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("MATCHCORE_FIELD_WIDTH")); raw != "" {
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("MATCHCORE_FIELD_WIDTH must be a positive number, got %q", raw))
		} else {
			cfg.Field.Width = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("MATCHCORE_FIELD_HEIGHT")); raw != "" {
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("MATCHCORE_FIELD_HEIGHT must be a positive number, got %q", raw))
		} else {
			cfg.Field.Height = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("MATCHCORE_GOAL_MARGIN")); raw != "" {
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("MATCHCORE_GOAL_MARGIN must be a positive number, got %q", raw))
		} else {
			cfg.Field.GoalMargin = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("MATCHCORE_MAX_KICK_FORCE")); raw != "" {
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("MATCHCORE_MAX_KICK_FORCE must be a positive number, got %q", raw))
		} else {
			cfg.Field.MaxKickForce = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("MATCHCORE_MAX_PASS_FORCE")); raw != "" {
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("MATCHCORE_MAX_PASS_FORCE must be a positive number, got %q", raw))
		} else {
			cfg.Field.MaxPassForce = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("MATCHCORE_FLAG_LIMIT")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("MATCHCORE_FLAG_LIMIT must be a positive integer, got %q", raw))
		} else {
			cfg.Cheat.FlagLimit = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("MATCHCORE_FLAG_WINDOW")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("MATCHCORE_FLAG_WINDOW must be a positive duration, got %q", raw))
		} else {
			cfg.Cheat.FlagWindow = duration
		}
	}

	switch cfg.TiePolicy {
	case "draw", "void":
	default:
		problems = append(problems, fmt.Sprintf("MATCHCORE_TIE_POLICY must be one of draw or void, got %q", cfg.TiePolicy))
	}

	if raw := strings.TrimSpace(os.Getenv("MATCHCORE_AUDIT_RETAIN_BUNDLES")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("MATCHCORE_AUDIT_RETAIN_BUNDLES must be a non-negative integer, got %q", raw))
		} else {
			cfg.AuditRetainBundles = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("MATCHCORE_AUDIT_RETAIN_AGE")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration < 0 {
			problems = append(problems, fmt.Sprintf("MATCHCORE_AUDIT_RETAIN_AGE must be a non-negative duration, got %q", raw))
		} else {
			cfg.AuditRetainAge = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("MATCHCORE_LOG_MAX_SIZE_MB")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("MATCHCORE_LOG_MAX_SIZE_MB must be a positive integer, got %q", raw))
		} else {
			cfg.Logging.MaxSizeMB = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("MATCHCORE_LOG_MAX_BACKUPS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("MATCHCORE_LOG_MAX_BACKUPS must be a non-negative integer, got %q", raw))
		} else {
			cfg.Logging.MaxBackups = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("MATCHCORE_LOG_MAX_AGE_DAYS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("MATCHCORE_LOG_MAX_AGE_DAYS must be a non-negative integer, got %q", raw))
		} else {
			cfg.Logging.MaxAgeDays = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("MATCHCORE_LOG_COMPRESS")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("MATCHCORE_LOG_COMPRESS must be a boolean value, got %q", raw))
		} else {
			cfg.Logging.Compress = value
		}
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("%s", strings.Join(problems, "; "))
	}

	return cfg, nil
}

// TickInterval derives the fixed tick duration from the configured rate.
func (c *Config) TickInterval() time.Duration {
	if c == nil || c.TickRate <= 0 {
		return time.Second / DefaultTickRate
	}
	return time.Duration(float64(time.Second) / float64(c.TickRate))
}

func getString(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if item := strings.TrimSpace(part); item != "" {
			values = append(values, item)
		}
	}
	return values
}
