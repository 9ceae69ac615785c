package configs

import (
	"errors"
	"fmt"
	"os"

	"github.com/hashicorp/go-envparse"
)

// LoadDotEnv exports the variables of a dotenv file into the process environment.
// Variables already set in the environment keep their value. A missing file is not an error.
func LoadDotEnv(path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to open '%s': %w", path, err)
	}
	defer file.Close()

	values, err := envparse.Parse(file)
	if err != nil {
		return 0, fmt.Errorf("failed to parse '%s': %w", path, err)
	}

	loaded := 0
	for key, value := range values {
		if _, ok := os.LookupEnv(key); ok {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return loaded, fmt.Errorf("failed to set %s: %w", key, err)
		}
		loaded++
	}

	return loaded, nil
}
