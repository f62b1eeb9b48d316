// Package config loads session settings.
//
// A session file is CUE, unified with an embedded schema that supplies
// defaults and bounds. Secrets do not belong in that file: they come from
// the environment, optionally seeded from a .env file.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"github.com/joho/godotenv"

	"github.com/roach88/musicbox/internal/geom"
)

//go:embed schema.cue
var schemaSource []byte

// Environment variables that override the session file.
const (
	EnvAPIKey   = "MUSICBOX_API_KEY"
	EnvPassword = "MUSICBOX_PASSWORD"
	EnvAppID    = "MUSICBOX_APP_ID"
	EnvListen   = "MUSICBOX_LISTEN"
	EnvDB       = "MUSICBOX_DB"
)

// Config is one session's bootstrap settings.
type Config struct {
	Name           string  `json:"name"`
	AppID          string  `json:"appId"`
	APIKey         string  `json:"apiKey,omitempty"`
	Password       string  `json:"password,omitempty"`
	TPS            float64 `json:"tps"`
	EventRateLimit int     `json:"eventRateLimit"`
	Width          int64   `json:"width"`
	Height         int64   `json:"height"`
	LeaseTicks     int64   `json:"leaseTicks"`
	Listen         string  `json:"listen"`
	DB             string  `json:"db"`
}

// Field returns the session's field dimensions.
func (c Config) Field() geom.Field {
	return geom.Field{Width: c.Width, Height: c.Height}
}

// Period returns the wrap tick interval.
func (c Config) Period() time.Duration {
	return time.Duration(float64(time.Second) / c.TPS)
}

// Error code constants.
const (
	CodeNotFound = "C001" // config file missing
	CodeSyntax   = "C002" // CUE does not parse
	CodeInvalid  = "C003" // value violates the schema
	CodeEnv      = "C004" // .env file unreadable
)

// Error is a config problem, with the CUE position when there is one.
type Error struct {
	Code    string
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Load reads a session file. Environment overrides are not applied; see
// ApplyEnv.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, &Error{Code: CodeNotFound, Message: fmt.Sprintf("config not found: %s", path)}
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data, path)
}

// Default returns the schema defaults for a session called name.
func Default(name string) (*Config, error) {
	src := fmt.Sprintf("session: name: %q\n", name)
	return Parse([]byte(src), "default.cue")
}

// Parse unifies CUE source with the schema and decodes the session.
func Parse(data []byte, filename string) (*Config, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileBytes(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("embedded schema: %w", err)
	}

	file := ctx.CompileBytes(data, cue.Filename(filename))
	if err := file.Err(); err != nil {
		return nil, cueError(CodeSyntax, err)
	}

	value := schema.Unify(file)
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return nil, cueError(CodeInvalid, err)
	}

	var cfg Config
	if err := value.LookupPath(cue.ParsePath("session")).Decode(&cfg); err != nil {
		return nil, cueError(CodeInvalid, err)
	}
	return &cfg, nil
}

func cueError(code string, err error) *Error {
	e := &Error{Code: code, Message: cueerrors.Details(err, nil)}
	if pos := cueerrors.Positions(err); len(pos) > 0 {
		e.Pos = pos[0]
	}
	return e
}

// ApplyEnv overrides secrets and endpoints from the environment. Variables
// already set in the process take precedence over those in envFiles; a
// missing .env file is not an error.
func (c *Config) ApplyEnv(envFiles ...string) error {
	fromFiles := map[string]string{}
	for _, f := range envFiles {
		vars, err := godotenv.Read(f)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return &Error{Code: CodeEnv, Message: fmt.Sprintf("read %s: %v", f, err)}
		}
		for k, v := range vars {
			if _, seen := fromFiles[k]; !seen {
				fromFiles[k] = v
			}
		}
	}

	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := fromFiles[key]
		return v, ok
	}

	for key, dst := range map[string]*string{
		EnvAPIKey:   &c.APIKey,
		EnvPassword: &c.Password,
		EnvAppID:    &c.AppID,
		EnvListen:   &c.Listen,
		EnvDB:       &c.DB,
	} {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	return nil
}
