/*
Copyright 2024 - 2026 Dima Krasner

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package media downloads remote avatars and headers.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"github.com/dimkr/tusk/cfg"
	"github.com/dimkr/tusk/fed"
	"github.com/google/uuid"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

var (
	ErrUnsupportedType = errors.New("unsupported media type")
	ErrTooBig          = errors.New("image is too big")
)

// maps a media type to the format name reported by [image.DecodeConfig]
var formats = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpeg",
	"image/gif":  "gif",
}

// File is a downloaded image.
type File struct {
	Name string
	URL  string
	Type string
}

// Store downloads images into a directory.
type Store struct {
	Config    *cfg.Config
	Client    fed.Client
	BlockList *fed.BlockList
	Dir       string
}

// NewStore returns a new [Store] that saves files under config.MediaDir.
func NewStore(config *cfg.Config, client fed.Client, blockList *fed.BlockList) *Store {
	return &Store{
		Config:    config,
		Client:    client,
		BlockList: blockList,
		Dir:       config.MediaDir,
	}
}

// Download downloads a PNG, JPEG or GIF image and saves it under a new name.
//
// Images bigger than MaxImageWidth or MaxImageHeight are scaled down. Download returns
// [ErrUnsupportedType] if mediaType is not supported or if the image is in a different format, and
// [ErrTooBig] if the image exceeds MaxImageSize or is too big to decode.
func (s *Store) Download(ctx context.Context, rawURL, mediaType string) (*File, error) {
	parsed, _, err := mime.ParseMediaType(mediaType)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, mediaType)
	}

	format, ok := formats[parsed]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, mediaType)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", fed.ErrInvalidURL, err)
	}

	if u.Scheme != "https" || u.Host == "" {
		return nil, fmt.Errorf("%w: %s", fed.ErrInvalidURL, rawURL)
	}

	if s.BlockList.Contains(u.Hostname()) {
		return nil, fmt.Errorf("cannot download %s: %w", rawURL, fed.ErrBlockedDomain)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", fed.UserAgent)
	req.Header.Set("Accept", parsed)

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &fed.StatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	if resp.ContentLength > s.Config.MaxImageSize {
		return nil, fmt.Errorf("%w: %s is %d bytes", ErrTooBig, rawURL, resp.ContentLength)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.Config.MaxImageSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", rawURL, err)
	}

	if int64(len(body)) > s.Config.MaxImageSize {
		return nil, fmt.Errorf("%w: %s is bigger than %d bytes", ErrTooBig, rawURL, s.Config.MaxImageSize)
	}

	config, actual, err := image.DecodeConfig(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", rawURL, err)
	}

	if actual != format {
		return nil, fmt.Errorf("%w: %s is %s, not %s", ErrUnsupportedType, rawURL, actual, format)
	}

	if config.Width > s.Config.MaxDecodeWidth || config.Height > s.Config.MaxDecodeHeight {
		return nil, fmt.Errorf("%w: %s is %dx%d", ErrTooBig, rawURL, config.Width, config.Height)
	}

	width, height := config.Width, config.Height
	if width > s.Config.MaxImageWidth || height > s.Config.MaxImageHeight {
		if body, width, height, err = scale(body, format, s.Config.MaxImageWidth, s.Config.MaxImageHeight); err != nil {
			return nil, fmt.Errorf("failed to scale %s: %w", rawURL, err)
		}
	}

	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return nil, err
	}

	f := File{
		Name: uuid.NewString() + "." + format,
		URL:  rawURL,
		Type: parsed,
	}

	if err := os.WriteFile(filepath.Join(s.Dir, f.Name), body, 0o644); err != nil {
		return nil, fmt.Errorf("failed to save %s: %w", rawURL, err)
	}

	slog.DebugContext(ctx, "Downloaded image", "url", rawURL, "name", f.Name, "width", width, "height", height)
	return &f, nil
}

// scale shrinks an image to fit in width and height, keeps its aspect ratio and encodes it again
// in the same format. An animated GIF is reduced to its first frame.
func scale(body []byte, format string, width, height int) ([]byte, int, int, error) {
	im, _, err := image.Decode(bytes.NewReader(body))
	if err != nil {
		return nil, 0, 0, err
	}

	src := im.Bounds()
	ratio := min(float64(width)/float64(src.Dx()), float64(height)/float64(src.Dy()))
	dst := image.Rect(0, 0, max(1, int(float64(src.Dx())*ratio)), max(1, int(float64(src.Dy())*ratio)))

	scaled := image.NewRGBA(dst)
	draw.ApproxBiLinear.Scale(scaled, dst, im, src, draw.Over, nil)

	var b bytes.Buffer
	switch format {
	case "png":
		err = png.Encode(&b, scaled)

	case "jpeg":
		err = jpeg.Encode(&b, scaled, nil)

	case "gif":
		err = gif.Encode(&b, scaled, &gif.Options{NumColors: 256})

	default:
		err = fmt.Errorf("%w: %s", ErrUnsupportedType, format)
	}
	if err != nil {
		return nil, 0, 0, err
	}

	return b.Bytes(), dst.Dx(), dst.Dy(), nil
}

// Remove deletes a downloaded file.
func (s *Store) Remove(name string) error {
	if name == "" {
		return nil
	}

	if err := os.Remove(filepath.Join(s.Dir, filepath.Base(name))); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	return nil
}
