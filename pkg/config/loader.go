// Package config holds the configuration of the camstream commands.
// Values come from a YAML file, then CAMSTREAM_ prefixed environment
// variables, then the command line flags.
package config

import (
	"os"
	"path/filepath"

	"github.com/kkyr/fig"
)

const EnvPrefix = "CAMSTREAM"

// LoadConfig reads the file from the dir, or when the dir is empty
// from the first of the working dir, configs and ~/.camstream having it.
// Env variables are the uppercase field path joined with _,
// e.g. CAMSTREAM_SESSION_MAXATTEMPTS.
func LoadConfig(config any, file string, dir string) error {
	return fig.Load(config, fig.File(file), fig.Dirs(searchDirs(dir)...), fig.UseEnv(EnvPrefix))
}

// LoadConfigEnv fills the config from the env variables only.
func LoadConfigEnv(config any) error {
	return fig.Load(config, fig.IgnoreFile(), fig.UseEnv(EnvPrefix))
}

func searchDirs(dir string) []string {
	if dir != "" {
		return []string{dir}
	}
	dirs := []string{".", "configs", filepath.Join("..", "..", "configs")}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".camstream"))
	}
	return dirs
}
