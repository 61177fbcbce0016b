package template

import (
	"os"
	"strings"
)

// EnvFromOS returns the process environment as a map for Context.Env.
func EnvFromOS() map[string]string {
	envMap := make(map[string]string)

	for _, env := range os.Environ() {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) == 2 {
			envMap[parts[0]] = parts[1]
		}
	}

	return envMap
}
