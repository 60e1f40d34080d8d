package events_test

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camden-git/photopipeline/events"
	"github.com/camden-git/photopipeline/logger"
)

func TestLogSinkWritesStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	sink := events.NewLogSink(logger.NewWithWriter(&buf, "info", "json"))

	sink.Publish(context.Background(), events.New(events.PhotoUploaded, 42, map[string]any{
		"duration_ms":       1500,
		"file_size":         2048,
		"original_filename": "a.jpg",
	}))

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "photo.uploaded", line["event"])
	assert.Equal(t, float64(42), line["photo_id"])
	assert.Equal(t, "a.jpg", line["original_filename"])
	assert.Equal(t, "INFO", line["level"])
}

func TestLogSinkStageEventsAreDebug(t *testing.T) {
	var buf bytes.Buffer
	sink := events.NewLogSink(logger.NewWithWriter(&buf, "info", "json"))

	sink.Publish(context.Background(), events.New(events.PhotoStage, 1, nil))
	assert.Empty(t, strings.TrimSpace(buf.String()))

	sink.Publish(context.Background(), events.New(events.PhotoUploadFailed, 1, map[string]any{"error": "boom"}))
	assert.Contains(t, buf.String(), `"level":"ERROR"`)
}

func TestMultiSinkFansOut(t *testing.T) {
	a, b := &events.MemorySink{}, &events.MemorySink{}
	multi := events.MultiSink{a, nil, b}

	multi.Publish(context.Background(), events.New(events.PhotoUploaded, 1, nil))
	multi.Publish(context.Background(), events.New(events.PhotoStage, 1, nil))

	assert.Len(t, a.Events(), 2)
	assert.Len(t, b.Named(events.PhotoStage), 1)
	assert.Empty(t, b.Named(events.PhotoUploadFailed))
}
