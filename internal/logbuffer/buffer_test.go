package logbuffer

import (
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferParsesZerologLines(t *testing.T) {
	buf := New(10)
	logger := zerolog.New(buf)

	logger.Warn().Str("device", "cam-01").Msg("Device state changed concurrently")
	logger.Info().Msg("Pass complete")

	entries := buf.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "warn", entries[0].Level)
	assert.Equal(t, "Device state changed concurrently", entries[0].Message)
	assert.Equal(t, "cam-01", entries[0].Device)
	assert.Equal(t, "info", entries[1].Level)
	assert.Empty(t, entries[1].Device)
	assert.False(t, entries[1].Timestamp.IsZero())
}

func TestBufferNonJSONLine(t *testing.T) {
	buf := New(2)
	_, err := io.WriteString(buf, "plain text\n")
	require.NoError(t, err)

	entries := buf.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "info", entries[0].Level)
	assert.Equal(t, "plain text", entries[0].Message)
}

func TestBufferWrapsAround(t *testing.T) {
	buf := New(3)
	logger := zerolog.New(buf)
	for _, msg := range []string{"one", "two", "three", "four", "five"} {
		logger.Info().Msg(msg)
	}

	var got []string
	for _, e := range buf.Entries() {
		got = append(got, e.Message)
	}
	assert.Equal(t, []string{"three", "four", "five"}, got)

	recent := buf.Recent(2, "")
	require.Len(t, recent, 2)
	assert.Equal(t, "five", recent[1].Message)

	buf.Clear()
	assert.Empty(t, buf.Entries())
}

func TestRecentFiltersByDevice(t *testing.T) {
	buf := New(10)
	logger := zerolog.New(buf)
	logger.Info().Str("device", "a").Msg("first")
	logger.Info().Str("device", "b").Msg("second")
	logger.Info().Str("device", "a").Msg("third")

	recent := buf.Recent(10, "a")
	require.Len(t, recent, 2)
	assert.Equal(t, "first", recent[0].Message)
	assert.Equal(t, "third", recent[1].Message)
}
