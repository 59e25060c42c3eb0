package config

import (
	"os"
	"strings"
	"time"
)

// BusinessLocation is the fixed business timezone used for "today" when
// deciding overdue lines. BUSINESS_TIMEZONE_OFFSET_HOURS overrides the UTC+7 default.
func BusinessLocation() *time.Location {
	hours := intFromEnv("BUSINESS_TIMEZONE_OFFSET_HOURS", 7)
	return time.FixedZone("business", hours*60*60)
}

// OverdueSweepEnabled turns on the periodic overdue sweep next to the lazy
// marking done on attention-view queries.
//
// Set via env:
// - OVERDUE_SWEEP_ENABLED=true
func OverdueSweepEnabled() bool {
	return EnvBool("OVERDUE_SWEEP_ENABLED", false)
}

func OverdueSweepInterval() time.Duration {
	secs := intFromEnv("OVERDUE_SWEEP_INTERVAL_SECONDS", 900)
	if secs <= 0 {
		secs = 900
	}
	return time.Duration(secs) * time.Second
}

// DomesticDistributionChannels / ExportDistributionChannels select the
// distribution-channel code sets for the attention view's role filter.
func DomesticDistributionChannels() []string {
	return csvFromEnv("DOMESTIC_DISTRIBUTION_CHANNELS", []string{"10", "20"})
}

func ExportDistributionChannels() []string {
	return csvFromEnv("EXPORT_DISTRIBUTION_CHANNELS", []string{"30"})
}

func EnvBool(key string, def bool) bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch val {
	case "true", "1", "yes", "y", "on":
		return true
	case "false", "0", "no", "n", "off":
		return false
	default:
		return def
	}
}

func csvFromEnv(key string, def []string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
