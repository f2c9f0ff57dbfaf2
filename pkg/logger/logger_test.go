package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestContextFieldsAreCarried(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{ServiceName: "test", Output: &buf})

	ctx := l.WithUserID(context.Background(), "u-1")
	ctx = l.WithDocumentID(ctx, "d-1")
	l.Error(ctx, "llm call failed", errors.New("boom"))

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "u-1", lines[0]["user_id"])
	assert.Equal(t, "d-1", lines[0]["document_id"])
	assert.Equal(t, "boom", lines[0]["error"])
	assert.Equal(t, "test", lines[0]["service"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel(" DEBUG "))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("nope"))
}

func TestMiddlewareWritesAccessLine(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{ServiceName: "api", Output: &buf})

	app := fiber.New()
	app.Use(Middleware(l))
	app.Get("/missing", func(c *fiber.Ctx) error { return fiber.ErrNotFound })

	resp, err := app.Test(httptest.NewRequest("GET", "/missing", nil))
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(RequestIDHeader))

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "warn", lines[0]["level"])
	assert.Equal(t, "/missing", lines[0]["path"])
	assert.EqualValues(t, 404, lines[0]["status"])
}
