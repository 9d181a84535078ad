// Package config resolves the CLI configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/1ureka/telecall/internal/protocol"
)

// Role is the process role chosen on the command line.
type Role string

const (
	RoleServe  Role = "serve"
	RoleCall   Role = "call"
	RoleAnswer Role = "answer"
)

// Defaults.
const (
	DefaultListenAddr = "127.0.0.1:8787"
	DefaultServerURL  = "ws://127.0.0.1:8787"
	DefaultCallType   = protocol.CallVideo
	DefaultPoolSize   = 10
	DefaultEnvFile    = ".env"

	envPrefix = "TELECALL_"
)

// Config stores every parameter of one run.
type Config struct {
	Role Role

	// Call identity (call, answer).
	CaseID     string
	CallType   protocol.CallType
	CallerName string
	NotifyUser string // call: user to notify about the incoming call
	AutoAccept bool   // answer: accept without prompting

	// Signaling.
	ServerURL  string // call, answer
	ListenAddr string // serve
	PIN        string
	DBPath     string // serve: empty keeps sessions in memory

	// Media and ICE.
	Microphone        bool
	Camera            bool
	STUNServers       []string
	CandidatePoolSize int

	Debug   bool
	LogJSON bool
}

// Options carries values given as CLI flags. Zero values (nil pointers)
// mean "not given".
type Options struct {
	Role              Role
	EnvFile           string
	CaseID            string
	CallType          string
	CallerName        string
	NotifyUser        string
	AutoAccept        *bool
	ServerURL         string
	ListenAddr        string
	PIN               string
	DBPath            string
	Microphone        *bool
	Camera            *bool
	STUNServers       string
	CandidatePoolSize *int
	Debug             *bool
	LogJSON           *bool
}

// Load reads configuration with the following priority:
//  1. CLI flags (passed via Options)
//  2. Environment variables (TELECALL_*)
//  3. The .env file
//  4. Defaults
func Load(opts Options) (*Config, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = DefaultEnvFile
	}
	dotenv, err := godotenv.Read(envFile)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) || opts.EnvFile != "" {
			return nil, fmt.Errorf("read %s: %w", envFile, err)
		}
		dotenv = map[string]string{}
	}
	l := loader{dotenv: dotenv}

	cfg := &Config{
		Role:        opts.Role,
		CaseID:      l.str(opts.CaseID, "CASE_ID", ""),
		CallerName:  l.str(opts.CallerName, "CALLER_NAME", ""),
		NotifyUser:  l.str(opts.NotifyUser, "NOTIFY_USER", ""),
		ServerURL:   l.str(opts.ServerURL, "SERVER_URL", DefaultServerURL),
		ListenAddr:  l.str(opts.ListenAddr, "LISTEN_ADDR", DefaultListenAddr),
		PIN:         l.str(opts.PIN, "PIN", ""),
		DBPath:      l.str(opts.DBPath, "DB_PATH", ""),
		STUNServers: splitList(l.str(opts.STUNServers, "STUN_SERVERS", "")),
	}

	if cfg.CallType, err = protocol.ParseCallType(l.str(opts.CallType, "CALL_TYPE", string(DefaultCallType))); err != nil {
		return nil, err
	}
	if cfg.AutoAccept, err = l.boolean(opts.AutoAccept, "AUTO_ACCEPT", false); err != nil {
		return nil, err
	}
	if cfg.Microphone, err = l.boolean(opts.Microphone, "MICROPHONE", true); err != nil {
		return nil, err
	}
	if cfg.Camera, err = l.boolean(opts.Camera, "CAMERA", true); err != nil {
		return nil, err
	}
	if cfg.Debug, err = l.boolean(opts.Debug, "DEBUG", false); err != nil {
		return nil, err
	}
	if cfg.LogJSON, err = l.boolean(opts.LogJSON, "LOG_JSON", false); err != nil {
		return nil, err
	}
	if cfg.CandidatePoolSize, err = l.integer(opts.CandidatePoolSize, "CANDIDATE_POOL_SIZE", DefaultPoolSize); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values the role needs.
func (c *Config) Validate() error {
	switch c.Role {
	case RoleServe:
		if c.ListenAddr == "" {
			return fmt.Errorf("missing listen address")
		}
	case RoleCall, RoleAnswer:
		if err := protocol.ValidateCaseID(c.CaseID); err != nil {
			return fmt.Errorf("invalid case id: %w", err)
		}
		if c.ServerURL == "" {
			return fmt.Errorf("missing signaling server URL")
		}
	default:
		return fmt.Errorf("invalid role %q: must be serve, call or answer", c.Role)
	}
	if c.CandidatePoolSize < 0 || c.CandidatePoolSize > 255 {
		return fmt.Errorf("invalid candidate pool size %d: must be 0~255", c.CandidatePoolSize)
	}
	return nil
}

// loader looks a key up in the environment, then in the .env values.
type loader struct {
	dotenv map[string]string
}

func (l loader) lookup(key string) (string, bool) {
	if v, ok := os.LookupEnv(envPrefix + key); ok {
		return v, true
	}
	v, ok := l.dotenv[envPrefix+key]
	return v, ok
}

func (l loader) str(flag, key, fallback string) string {
	if flag != "" {
		return flag
	}
	if v, ok := l.lookup(key); ok && v != "" {
		return v
	}
	return fallback
}

func (l loader) boolean(flag *bool, key string, fallback bool) (bool, error) {
	if flag != nil {
		return *flag, nil
	}
	v, ok := l.lookup(key)
	if !ok || v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s%s: %w", envPrefix, key, err)
	}
	return b, nil
}

func (l loader) integer(flag *int, key string, fallback int) (int, error) {
	if flag != nil {
		return *flag, nil
	}
	v, ok := l.lookup(key)
	if !ok || v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("invalid %s%s: %w", envPrefix, key, err)
	}
	return n, nil
}

func splitList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
