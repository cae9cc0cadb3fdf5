// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package attach turns local image files into inline data URLs.
package attach

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/jeranaias/lmchat/internal/model"
	"github.com/jeranaias/lmchat/internal/util"
)

// DefaultMaxBytes caps the size of an attached image.
const DefaultMaxBytes int64 = 20 << 20

var (
	// ErrNotImage is returned when the content is not an image.
	ErrNotImage = errors.New("file is not an image")

	// ErrTooLarge is returned when the file exceeds the size limit.
	ErrTooLarge = errors.New("image is too large")

	// ErrEmpty is returned for zero-length input.
	ErrEmpty = errors.New("image is empty")
)

// LoadImage reads path and returns it as an attachment. maxBytes <= 0
// means DefaultMaxBytes.
func LoadImage(path string, maxBytes int64) (*model.Image, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}

	path = util.ExpandHome(strings.TrimSpace(path))
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat image: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	if info.Size() > maxBytes {
		return nil, fmt.Errorf("%w: %s exceeds %s", ErrTooLarge,
			humanize.IBytes(uint64(info.Size())), humanize.IBytes(uint64(maxBytes)))
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	// Read one byte past the limit in case the file grew after Stat.
	data, err := io.ReadAll(io.LimitReader(f, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: more than %s", ErrTooLarge, humanize.IBytes(uint64(maxBytes)))
	}

	img, err := FromBytes(data)
	if err != nil {
		return nil, err
	}
	img.Name = filepath.Base(path)
	return img, nil
}

// FromBytes encodes raw image bytes. The MIME type is sniffed from the
// content, never taken from a file extension.
func FromBytes(data []byte) (*model.Image, error) {
	if len(data) == 0 {
		return nil, ErrEmpty
	}

	mimeType := http.DetectContentType(data)
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return nil, fmt.Errorf("%w: detected %s", ErrNotImage, mimeType)
	}

	return &model.Image{
		DataURL:  "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data),
		MimeType: mimeType,
		Size:     len(data),
	}, nil
}

// FormatSize renders a byte count for labels, e.g. "1.2 MB".
func FormatSize(n int) string {
	if n < 0 {
		n = 0
	}
	return humanize.Bytes(uint64(n))
}

// Label describes an attachment in one short line.
func Label(img *model.Image) string {
	if img == nil {
		return ""
	}
	name := img.Name
	if name == "" {
		name = "image"
	}
	return fmt.Sprintf("%s (%s, %s)", name, img.MimeType, FormatSize(img.Size))
}
