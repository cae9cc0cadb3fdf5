// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package lmstudio

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// HELPERS
// =============================================================================

// chunkReader hands out one predefined chunk per Read call.
type chunkReader struct {
	chunks [][]byte
}

func (r *chunkReader) Read(p []byte) (int, error) {
	for len(r.chunks) > 0 && len(r.chunks[0]) == 0 {
		r.chunks = r.chunks[1:]
	}
	if len(r.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.chunks[0])
	r.chunks[0] = r.chunks[0][n:]
	return n, nil
}

// splitAt cuts body at the given byte offsets.
func splitAt(body string, offsets ...int) *chunkReader {
	var chunks [][]byte
	prev := 0
	for _, off := range offsets {
		chunks = append(chunks, []byte(body[prev:off]))
		prev = off
	}
	chunks = append(chunks, []byte(body[prev:]))
	return &chunkReader{chunks: chunks}
}

// everyN cuts body into pieces of n bytes.
func everyN(body string, n int) *chunkReader {
	var chunks [][]byte
	for i := 0; i < len(body); i += n {
		end := i + n
		if end > len(body) {
			end = len(body)
		}
		chunks = append(chunks, []byte(body[i:end]))
	}
	return &chunkReader{chunks: chunks}
}

func collect(t *testing.T, r io.Reader) ([]string, string, error) {
	t.Helper()
	reader := NewStreamReader(r)
	var deltas []string
	err := reader.Process(context.Background(), func(delta string) {
		deltas = append(deltas, delta)
	})
	return deltas, reader.Accumulated(), err
}

func dataLine(content string) string {
	return `data: {"choices":[{"delta":{"content":"` + content + `"}}]}` + "\n"
}

// =============================================================================
// STREAM READER TESTS
// =============================================================================

func TestStreamReader_HelloExample(t *testing.T) {
	body := dataLine("Hel") + dataLine("lo") + "data: [DONE]\n"

	deltas, content, err := collect(t, strings.NewReader(body))

	require.NoError(t, err)
	assert.Equal(t, []string{"Hel", "lo"}, deltas)
	assert.Equal(t, "Hello", content)
}

func TestStreamReader_ChunkBoundaryIndependence(t *testing.T) {
	body := dataLine("The ") +
		": keep-alive comment\n" +
		dataLine("quick ") +
		"\n" +
		dataLine("brown é世\U0001F600 ") +
		"data: {not json}\n" +
		dataLine("fox") +
		"data: [DONE]\n" +
		dataLine("ignored")

	wantDeltas, wantContent, err := collect(t, strings.NewReader(body))
	require.NoError(t, err)
	require.Equal(t, "The quick brown é世\U0001F600 fox", wantContent)

	for n := 1; n <= 17; n++ {
		deltas, content, err := collect(t, everyN(body, n))
		require.NoError(t, err, "chunk size %d", n)
		assert.Equal(t, wantDeltas, deltas, "chunk size %d", n)
		assert.Equal(t, wantContent, content, "chunk size %d", n)
	}

	// Every single cut point, including ones inside multi-byte runes.
	for i := 1; i < len(body); i++ {
		deltas, content, err := collect(t, splitAt(body, i))
		require.NoError(t, err, "cut at %d", i)
		assert.Equal(t, wantDeltas, deltas, "cut at %d", i)
		assert.Equal(t, wantContent, content, "cut at %d", i)
	}
}

func TestStreamReader_DoneStopsProcessing(t *testing.T) {
	body := dataLine("a") + "data: [DONE]\n" + dataLine("b") + "event: error\n"

	deltas, content, err := collect(t, strings.NewReader(body))

	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, deltas)
	assert.Equal(t, "a", content)
}

func TestStreamReader_ErrorEventTerminates(t *testing.T) {
	body := dataLine("partial") + "event: error\n" + `data: {"error":"boom"}` + "\n" + dataLine("never")

	deltas, _, err := collect(t, strings.NewReader(body))

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrServerEvent))
	assert.True(t, IsServerEvent(err))
	assert.Equal(t, []string{"partial"}, deltas)
}

func TestStreamReader_OtherEventsIgnored(t *testing.T) {
	body := "event: message\n" + dataLine("ok") + "data: [DONE]\n"

	_, content, err := collect(t, strings.NewReader(body))

	require.NoError(t, err)
	assert.Equal(t, "ok", content)
}

func TestStreamReader_MalformedRecordSkipped(t *testing.T) {
	body := "data: {\"choices\":[{\"delta\":\n" + dataLine("fine") + "data: [DONE]\n"

	reader := NewStreamReader(strings.NewReader(body))
	err := reader.Process(context.Background(), nil)

	require.NoError(t, err)
	assert.Equal(t, "fine", reader.Accumulated())
	assert.Equal(t, 1, reader.SkippedCount())
	assert.Equal(t, 1, reader.DeltaCount())
}

func TestStreamReader_RecordsWithoutDelta(t *testing.T) {
	body := `data: {"choices":[{"delta":{"role":"assistant"}}]}` + "\n" +
		`data: {"choices":[]}` + "\n" +
		`data: {"choices":[{"delta":{"content":null}}]}` + "\n" +
		`data: {"choices":[{"delta":{"content":""}}]}` + "\n" +
		dataLine("x") +
		`data: {"choices":[{"delta":{},"finish_reason":"stop"}]}` + "\n"

	deltas, content, err := collect(t, strings.NewReader(body))

	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, deltas)
	assert.Equal(t, "x", content)
}

func TestStreamReader_CRLFAndNoSpacePrefix(t *testing.T) {
	body := "data:{\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\r\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"b\"}}]}\r\n" +
		"data: [DONE]\r\n"

	_, content, err := collect(t, strings.NewReader(body))

	require.NoError(t, err)
	assert.Equal(t, "ab", content)
}

func TestStreamReader_TrailingLineWithoutNewline(t *testing.T) {
	body := dataLine("a") + `data: {"choices":[{"delta":{"content":"b"}}]}`

	_, content, err := collect(t, strings.NewReader(body))

	require.NoError(t, err)
	assert.Equal(t, "ab", content)
}

func TestStreamReader_EndWithoutSentinel(t *testing.T) {
	reader := NewStreamReader(strings.NewReader(dataLine("a")))

	delta, err := reader.Next()
	require.NoError(t, err)
	assert.Equal(t, "a", delta)

	_, err = reader.Next()
	assert.Equal(t, io.EOF, err)

	// Stays finished.
	_, err = reader.Next()
	assert.Equal(t, io.EOF, err)
}

func TestStreamReader_InvalidUTF8Replaced(t *testing.T) {
	body := "data: {\"choices\":[{\"delta\":{\"content\":\"a\xffb\"}}]}\n"

	_, content, err := collect(t, strings.NewReader(body))

	require.NoError(t, err)
	assert.Equal(t, "a\uFFFDb", content)
}

func TestStreamReader_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reader := NewStreamReader(strings.NewReader(dataLine("a")))
	err := reader.Process(ctx, nil)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, reader.Accumulated())
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("connection reset")
}

func TestStreamReader_ReadFailure(t *testing.T) {
	r := io.MultiReader(strings.NewReader(dataLine("a")), failingReader{})

	deltas, _, err := collect(t, r)

	require.Error(t, err)
	assert.True(t, IsConnectivity(err))
	assert.Equal(t, []string{"a"}, deltas)
}

func TestStreamReader_LineTooLong(t *testing.T) {
	long := "data: " + strings.Repeat("x", MaxLineBytes) + "\n"
	body := dataLine("a") + long + dataLine("b")

	deltas, _, err := collect(t, strings.NewReader(body))

	require.Error(t, err)
	var ce *ClientError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ErrTypeInvalidResponse, ce.Type)
	assert.Equal(t, []string{"a"}, deltas)
}
