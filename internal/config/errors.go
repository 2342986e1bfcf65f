package config

import "errors"

// ErrInvalidConfig wraps every Validate failure. ErrLoadConfig wraps
// failures reading the YAML file, the dotenv file or the environment.
var (
	ErrInvalidConfig = errors.New("config: invalid")
	ErrLoadConfig    = errors.New("config: load failed")
)
