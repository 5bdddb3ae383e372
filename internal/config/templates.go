package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

const templateHeader = `# busdecode configuration
# Stage directories under [paths] default to data_dir subdirectories.

`

// Template renders DefaultConfig as TOML.
func Template() (string, error) {
	body, err := Render(DefaultConfig())
	if err != nil {
		return "", err
	}
	return templateHeader + body, nil
}

// Render encodes cfg as TOML.
func Render(cfg Config) (string, error) {
	body, err := toml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("render config: %w", err)
	}
	return string(body), nil
}

func WriteTemplate(path string, overwrite bool) error {
	template, err := Template()
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}
