package config_test

import (
	"math"
	"strconv"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/prior-it/kickoff/config"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeEnvironment(t *testing.T) {
	defaults := config.StandardDefaults()

	t.Run("ok: missing environment defaults to PRODUCTION", func(t *testing.T) {
		t.Parallel()
		for _, descriptor := range []any{nil, "", map[string]any{}, map[string]string{}, config.Environment{}} {
			env := config.NormalizeEnvironment(descriptor, defaults)
			assert.Equal(t, "PRODUCTION", env.NodeEnv, "descriptor %#v", descriptor)
			assert.Equal(t, 3000, env.Port, "descriptor %#v", descriptor)
		}
	})

	t.Run("ok: environment map is used as is", func(t *testing.T) {
		t.Parallel()
		env := config.NormalizeEnvironment(map[string]any{"NODE_ENV": "SOME-ENVIRONMENT"}, defaults)
		assert.Equal(t, "SOME-ENVIRONMENT", env.NodeEnv)
	})

	t.Run("ok: a string is the same as a map with NODE_ENV", func(t *testing.T) {
		t.Parallel()
		name := gofakeit.LetterN(8)
		fromString := config.NormalizeEnvironment(name, defaults)
		fromMap := config.NormalizeEnvironment(map[string]any{"NODE_ENV": name}, defaults)
		assert.Equal(t, name, fromString.NodeEnv)
		assert.Equal(t, fromMap, fromString)
	})

	t.Run("ok: numbers are not accepted as an environment", func(t *testing.T) {
		t.Parallel()
		for _, descriptor := range []any{12345, 1.5, []string{"DEVELOPMENT"}, true} {
			env := config.NormalizeEnvironment(descriptor, defaults)
			assert.Equal(t, "PRODUCTION", env.NodeEnv, "descriptor %#v", descriptor)
		}
	})

	t.Run("ok: pointer environments are dereferenced", func(t *testing.T) {
		t.Parallel()
		env := config.NormalizeEnvironment(&config.Environment{NodeEnv: "DEVELOPMENT", Port: 8080}, defaults)
		assert.Equal(t, config.Environment{NodeEnv: "DEVELOPMENT", Port: 8080}, env)

		var nilEnv *config.Environment
		assert.Equal(t, "PRODUCTION", config.NormalizeEnvironment(nilEnv, defaults).NodeEnv)
	})

	t.Run("ok: custom defaults are honoured", func(t *testing.T) {
		t.Parallel()
		custom := defaults
		custom.NodeEnv = "STAGING"
		custom.Port = 8000
		env := config.NormalizeEnvironment(nil, custom)
		assert.Equal(t, config.Environment{NodeEnv: "STAGING", Port: 8000}, env)
	})
}

func TestEnvironmentPort(t *testing.T) {
	defaults := config.StandardDefaults()
	port := func(value any) int {
		return config.NormalizeEnvironment(map[string]any{"PORT": value}, defaults).Port
	}

	t.Run("ok: port defaults to 3000", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, 3000, config.NormalizeEnvironment(map[string]any{}, defaults).Port)
	})

	t.Run("ok: invalid integers fall back to 3000", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, 3000, port("eighty"))
		assert.Equal(t, 3000, port(""))
		assert.Equal(t, 3000, port("   "))
		assert.Equal(t, 3000, port(false))
		assert.Equal(t, 3000, port([]int{80}))
	})

	t.Run("ok: integer strings are parsed", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, 1234, port("1234"))
		assert.Equal(t, 8080, port(" 8080"))
		assert.Equal(t, 80, port("80abc"))
	})

	t.Run("ok: integer numbers are used directly", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, 5678, port(5678))
		assert.Equal(t, 5678, port(int64(5678)))
		assert.Equal(t, 5678, port(uint16(5678)))
		assert.Equal(t, 5678, port(5678.9))
	})

	t.Run("ok: out of range numbers fall back to 3000", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, 3000, port(1e20))
		assert.Equal(t, 3000, port(-1e20))
		assert.Equal(t, 3000, port(math.Inf(1)))
		assert.Equal(t, 3000, port(math.NaN()))
		assert.Equal(t, 3000, port("99999999999999999999"))
	})

	t.Run("ok: string map descriptors parse their port", func(t *testing.T) {
		t.Parallel()
		n := gofakeit.Number(1024, 65535)
		env := config.NormalizeEnvironment(map[string]string{"PORT": strconv.Itoa(n)}, defaults)
		assert.Equal(t, n, env.Port)

		env = config.NormalizeEnvironment(map[string]string{"NODE_ENV": "DEVELOPMENT"}, defaults)
		assert.Equal(t, config.Environment{NodeEnv: "DEVELOPMENT", Port: 3000}, env)
	})
}

func TestLookupEnvironment(t *testing.T) {
	t.Run("ok: only set variables are included", func(t *testing.T) {
		t.Parallel()
		lookup := func(key string) (string, bool) {
			if key == "PORT" {
				return "4000", true
			}
			return "", false
		}
		env := config.LookupEnvironment(lookup)
		assert.Equal(t, map[string]any{"PORT": "4000"}, env)

		normalized := config.NormalizeEnvironment(env, config.StandardDefaults())
		assert.Equal(t, config.Environment{NodeEnv: "PRODUCTION", Port: 4000}, normalized)
	})
}
