package logger

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tidwall/gjson"
)

func TestNewWithWriter_Fields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "debug").With("component", "test")
	l.Info("hello", "userId", "42", "count", 3)

	line := gjson.Parse(buf.String())
	assert.Equal(t, "info", line.Get("level").String())
	assert.Equal(t, "hello", line.Get("message").String())
	assert.Equal(t, "test", line.Get("component").String())
	assert.Equal(t, "42", line.Get("userId").String())
	assert.Equal(t, int64(3), line.Get("count").Int())
}

func TestNewWithWriter_Level(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "warn")
	l.Debug("hidden")
	l.Info("hidden")
	assert.Empty(t, buf.String())

	l.Err(errors.New("boom"), "failed")
	line := gjson.Parse(buf.String())
	assert.Equal(t, "error", line.Get("level").String())
	assert.Equal(t, "boom", line.Get("error").String())
}

func TestNewNop(t *testing.T) {
	l := NewNop()
	assert.NotPanics(t, func() {
		l.With("a", 1).Error("nothing")
	})
}
