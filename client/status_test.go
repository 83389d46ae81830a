package client

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, 5*time.Second, parseRetryAfter("5"), "delay seconds")
	assert.Zero(t, parseRetryAfter(""), "missing header")
	assert.Zero(t, parseRetryAfter("soon"), "garbage")

	date := time.Now().Add(time.Hour).UTC().Format(http.TimeFormat)
	d := parseRetryAfter(date)
	assert.Greater(t, d, 58*time.Minute, "http date in the future")
	assert.LessOrEqual(t, d, time.Hour, "http date in the future")

	past := time.Now().Add(-time.Hour).UTC().Format(http.TimeFormat)
	assert.Zero(t, parseRetryAfter(past), "http date in the past")
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "quota", errorMessage(`{"error":"quota"}`))
	assert.Equal(t, "quota", errorMessage(`{"error":{"message":"quota","type":"x"}}`))
	assert.Equal(t, "plain text", errorMessage("plain text"))
	assert.Equal(t, `{"detail":"x"}`, errorMessage(`{"detail":"x"}`), "no error field")
}

func TestNewLimiter(t *testing.T) {
	assert.Nil(t, NewLimiter(0), "disabled")
	l := NewLimiter(5)
	assert.NotNil(t, l)
	assert.Equal(t, 5, l.Burst())
}
