package log

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"DEBUG":   LevelDebug,
		"":        LevelInfo,
		" info ":  LevelInfo,
		"warning": LevelWarn,
		"error":   LevelError,
	}
	for in, want := range cases {
		lvl, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, lvl, in)
		assert.NotEqual(t, "unknown", lvl.String())
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
	assert.Equal(t, "unknown", Level(42).String())
}

func TestSetLevelSharedWithChildren(t *testing.T) {
	logger := New(LevelInfo)
	child := logger.With(String("component", "test"))

	logger.SetLevel(LevelError)
	assert.Equal(t, LevelError, child.GetLevel())
	child.SetLevel(LevelDebug)
	assert.Equal(t, LevelDebug, logger.GetLevel())
}

func TestNopDropsNilErrors(t *testing.T) {
	logger := NewNop()
	assert.NotPanics(t, func() {
		logger.With(Int64("player_id", 7), Bool("owned", true)).
			Info("discarded", Error(errors.New("boom")), Error(nil), Float32("hp", 1), Uint64("handle", 3))
	})
}

func TestProvideNeverNil(t *testing.T) {
	assert.NotNil(t, Provide())
}
