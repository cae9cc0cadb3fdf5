// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package lmstudio

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log"
	"strings"

	"github.com/tidwall/gjson"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// =============================================================================
// STREAM CONSTANTS
// =============================================================================

const (
	dataPrefix   = "data:"
	eventPrefix  = "event:"
	doneSentinel = "[DONE]"
	errorEvent   = "error"

	// deltaPath is the gjson path of the incremental text in a stream record.
	deltaPath = "choices.0.delta.content"

	// maxLoggedPayload caps how much of a bad record ends up in the log.
	maxLoggedPayload = 120

	// MaxLineBytes bounds a single stream line. Longer lines end the
	// stream with an invalid response error.
	MaxLineBytes = 4 << 20

	initialLineBuffer = 64 << 10
)

// DeltaFunc receives each text delta in arrival order.
type DeltaFunc func(delta string)

// =============================================================================
// STREAM READER
// =============================================================================

// StreamReader turns a streamed completion body into text deltas.
//
// Bytes are decoded as UTF-8 incrementally, so a rune split across two
// reads is reassembled and invalid bytes become U+FFFD. Lines are only
// handled once complete; the trailing fragment waits for the next read.
// A reader is single pass and not safe for concurrent use.
type StreamReader struct {
	scanner *bufio.Scanner

	// PERFORMANCE: strings.Builder avoids quadratic allocations
	accumulator strings.Builder
	deltas      int
	skipped     int

	finished bool
	err      error // terminal error, nil once io.EOF was reached cleanly
}

// NewStreamReader creates a new stream reader from an io.Reader.
func NewStreamReader(r io.Reader) *StreamReader {
	decoded := transform.NewReader(r, unicode.UTF8.NewDecoder())
	scanner := bufio.NewScanner(decoded)
	scanner.Buffer(make([]byte, 0, initialLineBuffer), MaxLineBytes)
	return &StreamReader{scanner: scanner}
}

// Next returns the next non-empty delta. It returns io.EOF once the stream
// ended, either through the [DONE] sentinel or the end of the body. After
// an error event it returns an error matching ErrServerEvent.
func (s *StreamReader) Next() (string, error) {
	if s.finished {
		return "", s.terminal()
	}

	for s.scanner.Scan() {
		line := s.scanner.Text()
		if line == "" {
			continue
		}

		delta, ok, err := s.handleLine(line)
		if err != nil {
			s.finish(err)
			return "", err
		}
		if s.finished {
			return "", io.EOF
		}
		if ok {
			s.accumulator.WriteString(delta)
			s.deltas++
			return delta, nil
		}
	}

	readErr := s.scanner.Err()
	switch {
	case readErr == nil:
		s.finish(nil)
		return "", io.EOF
	case errors.Is(readErr, bufio.ErrTooLong):
		log.Printf("STREAM_LINE_TOO_LONG | limit=%d", MaxLineBytes)
		err := &ClientError{Type: ErrTypeInvalidResponse, Message: "stream line exceeds size limit", Cause: readErr}
		s.finish(err)
		return "", err
	default:
		err := &ClientError{Type: ErrTypeConnection, Message: "stream read failed", Cause: readErr}
		s.finish(err)
		return "", err
	}
}

// Process reads the stream and calls fn for each delta.
// Blocks until the stream is complete or the context is cancelled.
func (s *StreamReader) Process(ctx context.Context, fn DeltaFunc) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		delta, err := s.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if fn != nil {
			fn(delta)
		}
	}
}

// handleLine interprets one complete (or final) line.
// It returns the delta and whether one was found; a non-nil error ends the
// stream. Reaching the sentinel marks the reader finished without error.
func (s *StreamReader) handleLine(line string) (string, bool, error) {
	line = strings.TrimRight(line, "\r\n")

	switch {
	case strings.HasPrefix(line, dataPrefix):
		payload := strings.TrimSpace(line[len(dataPrefix):])
		if payload == doneSentinel {
			s.finish(nil)
			return "", false, nil
		}
		if payload == "" {
			return "", false, nil
		}
		return s.extractDelta(payload)

	case strings.HasPrefix(line, eventPrefix):
		if strings.TrimSpace(line[len(eventPrefix):]) == errorEvent {
			log.Printf("STREAM_ERROR_EVENT | line=%q", line)
			return "", false, ErrServerEvent
		}
	}

	// Comments, id:, retry: and blank separators carry nothing for us.
	return "", false, nil
}

// extractDelta pulls the incremental text out of a data payload.
// Malformed payloads are logged and skipped.
func (s *StreamReader) extractDelta(payload string) (string, bool, error) {
	if !gjson.Valid(payload) {
		s.skipped++
		log.Printf("STREAM_PARSE_ERROR | payload=%q", clip(payload, maxLoggedPayload))
		return "", false, nil
	}

	delta := gjson.Get(payload, deltaPath)
	if delta.Type != gjson.String || delta.Str == "" {
		return "", false, nil
	}
	return delta.Str, true, nil
}

func (s *StreamReader) finish(err error) {
	s.finished = true
	s.err = err
}

func (s *StreamReader) terminal() error {
	if s.err != nil {
		return s.err
	}
	return io.EOF
}

// Accumulated returns the concatenation of every delta yielded so far.
func (s *StreamReader) Accumulated() string {
	return s.accumulator.String()
}

// DeltaCount returns the number of deltas yielded so far.
func (s *StreamReader) DeltaCount() int {
	return s.deltas
}

// SkippedCount returns the number of malformed records that were dropped.
func (s *StreamReader) SkippedCount() int {
	return s.skipped
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
