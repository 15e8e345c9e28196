package logger

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestStringToLevelNamed(t *testing.T) {
	t.Parallel()

	for name, want := range map[string]zapcore.Level{
		"debug": zapcore.DebugLevel,
		"Info":  zapcore.InfoLevel,
		"ERROR": zapcore.ErrorLevel,
	} {
		got, err := StringToLevel(name, zapcore.ErrorLevel)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestStringToLevelNumeric(t *testing.T) {
	t.Parallel()

	got, err := StringToLevel("3", zapcore.ErrorLevel)
	require.NoError(t, err)
	require.Equal(t, zapcore.Level(-3), got)
}

func TestStringToLevelInvalid(t *testing.T) {
	t.Parallel()

	_, err := StringToLevel("loud", zapcore.ErrorLevel)
	require.Error(t, err)

	_, err = StringToLevel("-2", zapcore.ErrorLevel)
	require.Error(t, err)
}

func TestLevelFlagValueAppliesLevel(t *testing.T) {
	t.Parallel()

	var applied zapcore.Level
	v := NewLevelFlagValue(func(l zapcore.Level) { applied = l })

	require.NoError(t, v.Set("debug"))
	require.Equal(t, zapcore.DebugLevel, applied)
	require.Equal(t, "debug", v.String())
	require.Error(t, v.Set("bogus"))
}
