package track

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedactMap(t *testing.T) {
	in := map[string]any{
		"username":     "alice",
		"PASSWORD":     "hunter2",
		"accessToken":  "tok",
		"api_key":      "k",
		"oauth":        map[string]any{"client_secret": "s", "scope": "read"},
		"participants": []any{map[string]any{"auth_header": "Bearer x", "name": "bob"}},
		"retries":      3,
	}

	out := redactMap(in)

	assert.Equal(t, "alice", out["username"])
	assert.Equal(t, "[REDACTED]", out["PASSWORD"])
	assert.Equal(t, "[REDACTED]", out["accessToken"])
	assert.Equal(t, "[REDACTED]", out["api_key"])
	assert.Equal(t, 3, out["retries"])

	oauth := out["oauth"].(map[string]any)
	assert.Equal(t, "[REDACTED]", oauth["client_secret"])
	assert.Equal(t, "read", oauth["scope"])

	first := out["participants"].([]any)[0].(map[string]any)
	assert.Equal(t, "[REDACTED]", first["auth_header"])
	assert.Equal(t, "bob", first["name"])

	// Input untouched.
	assert.Equal(t, "hunter2", in["PASSWORD"])
	assert.Equal(t, "s", in["oauth"].(map[string]any)["client_secret"])
}

func TestRedactMapNil(t *testing.T) {
	assert.Nil(t, redactMap(nil))
}
