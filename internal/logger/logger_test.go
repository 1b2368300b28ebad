package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, logrus.WarnLevel, ParseLevel("warning"))
	assert.Equal(t, logrus.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, logrus.InfoLevel, ParseLevel("verbose"))
}

func TestRequestScopedEntry(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOutput(&buf, "info", "json")

	ctx := WithRequestID(context.Background(), log, "req-42")
	assert.Equal(t, "req-42", RequestID(ctx))

	FromContext(ctx, nil).WithField("pnr", "1234567890").Info("booked")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "req-42", line[RequestIDField])
	assert.Equal(t, "1234567890", line["pnr"])
	assert.Equal(t, "booked", line["msg"])
}

func TestFromContext_Fallback(t *testing.T) {
	log := Discard()
	assert.Equal(t, log, FromContext(context.Background(), log))
	assert.Equal(t, "", RequestID(context.Background()))
}
