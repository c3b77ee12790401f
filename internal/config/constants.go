package config

import "time"

// Timeout constants
const (
	DefaultHTTPTimeout  = 60 * time.Second
	AIRequestTimeout    = 3 * time.Minute
	MediaRequestTimeout = 30 * time.Second
	ShutdownTimeout     = 30 * time.Second

	// Database timeouts
	DatabaseConnMaxLifetime = 5 * time.Minute

	// Session timeouts
	SessionMaxAge = 7 * 24 * time.Hour

	// JWT lifetime for bearer tokens minted by the admin CLI
	TokenLifetime = 24 * time.Hour
)

// Generation constants
const (
	// TOEIC generation tries the gateway this many times before giving up
	TOEICGenerationAttempts = 3
	// Backoff before the second attempt; doubles after each failure
	GenerationBackoffBase = 2 * time.Second
)

// Defaults applied when the config leaves a value empty
const (
	DefaultPort             = "8080"
	DefaultCompletionsPath  = "/chat/completions"
	DefaultTTSBasePath      = "/api/audio/tts"
	DefaultImageBaseURL     = "https://image.pollinations.ai/prompt/"
	DefaultImageWidth       = 400
	DefaultImageHeight      = 300
	DefaultMediaConcurrency = 4
	DefaultTestCacheTTL     = time.Hour
)

// Session configuration constants
const (
	SessionPath     = "/"
	SessionHTTPOnly = true
	SessionSecure   = false // Set to true in production with HTTPS

	SessionName = "examprep-session"
)

// Security configuration constants
const (
	DefaultCSP = "default-src 'self'; style-src 'self' 'unsafe-inline'; script-src 'self' 'unsafe-inline'; img-src 'self' data: https://image.pollinations.ai; media-src 'self' blob: data:;"
)
