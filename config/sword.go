package config

import (
	"os"
	"strconv"
	"strings"
)

// Defaults used when the corresponding PLN_* variable is unset.
const (
	DefaultMaxUploadBytes    int64 = 1 << 30
	DefaultChecksumAlgorithm       = "SHA-1"
	DefaultMinOjsVersion           = "2.4.8"
	DefaultOriginalsPath           = "./data/received"
)

// SwordConfig holds the settings the SWORD endpoint and deposit lifecycle are
// constructed with.
type SwordConfig struct {
	// DefaultAccept applies to journals on neither the whitelist nor the blacklist.
	DefaultAccept     bool
	MaxUploadBytes    int64
	ChecksumAlgorithm string
	MinOjsVersion     string

	NetworkMessageDefault    string
	NetworkMessageAccepting  string
	NetworkMessageOldVersion string

	Environment   string
	OriginalsPath string
}

// Production reports whether debug affordances must be disabled.
func (c SwordConfig) Production() bool {
	return strings.EqualFold(c.Environment, "production")
}

// LoadSwordConfig reads the PLN_* environment variables.
func LoadSwordConfig() SwordConfig {
	cfg := SwordConfig{
		DefaultAccept:            envBool("PLN_ACCEPTING", false),
		MaxUploadBytes:           envInt64("PLN_MAX_UPLOAD", DefaultMaxUploadBytes),
		ChecksumAlgorithm:        envString("PLN_CHECKSUM_TYPE", DefaultChecksumAlgorithm),
		MinOjsVersion:            envString("PLN_MIN_OJS_VERSION", DefaultMinOjsVersion),
		NetworkMessageDefault:    envString("PLN_NETWORK_DEFAULT", "The PKP PLN does not know about this journal yet."),
		NetworkMessageAccepting:  envString("PLN_NETWORK_ACCEPTING", "The PKP PLN can accept deposits from this journal."),
		NetworkMessageOldVersion: envString("PLN_NETWORK_OLDOJS", "This version of OJS is too old to make deposits to the PKP PLN."),
		Environment:              strings.ToLower(os.Getenv("ENVIRONMENT")),
		OriginalsPath:            envString("ORIGINALS_PATH", DefaultOriginalsPath),
	}
	return cfg
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return def
	}
	return v
}

func envInt64(key string, def int64) int64 {
	v, err := strconv.ParseInt(strings.TrimSpace(os.Getenv(key)), 10, 64)
	if err != nil || v <= 0 {
		return def
	}
	return v
}
