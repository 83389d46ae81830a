package language

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet(t *testing.T) {
	ts := Get("typescript")
	require.NotNil(t, ts, "typescript config")
	assert.Equal(t, "{", ts.BlockStart, "block start")
	assert.Equal(t, "}", ts.BlockEnd, "block end")
	assert.True(t, ts.BlockElseTest.MatchString("  } else {"), "else continuation")
	assert.False(t, ts.BlockElseTest.MatchString("  }"), "plain closing brace")

	py := Get("python")
	require.NotNil(t, py, "python config")
	assert.Equal(t, ":", py.BlockStart, "block start")
	assert.Equal(t, "", py.BlockEnd, "indentation-only language")
	assert.True(t, py.BlockElseTest.MatchString("    elif x:"), "elif continuation")
	assert.True(t, py.BlockElseTest.MatchString("else:"), "else continuation")

	assert.Nil(t, Get("plaintext"), "unsupported language")
	assert.Nil(t, Get(""), "empty language id")
}

func TestDetect(t *testing.T) {
	tests := []struct {
		filename string
		expected string
	}{
		{"main.go", "go"},
		{"script.py", "python"},
		{"lib.rs", "rust"},
		{"Main.java", "java"},
		{"run.sh", "shellscript"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, Detect(tt.filename), "language of %s", tt.filename)
	}
	assert.Equal(t, "", Detect("no-extension-at-all"), "unknown file")
}
