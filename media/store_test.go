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

package media

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/dimkr/tusk/cfg"
	"github.com/dimkr/tusk/fed"
	"github.com/stretchr/testify/assert"
)

type clientFunc func(*http.Request) (*http.Response, error)

func (f clientFunc) Do(r *http.Request) (*http.Response, error) {
	return f(r)
}

func serveBytes(t *testing.T, expectedURL string, body []byte) fed.Client {
	return clientFunc(func(r *http.Request) (*http.Response, error) {
		assert.Equal(t, expectedURL, r.URL.String())
		return &http.Response{
			StatusCode:    http.StatusOK,
			Body:          io.NopCloser(bytes.NewReader(body)),
			ContentLength: int64(len(body)),
		}, nil
	})
}

var noRequests = clientFunc(func(r *http.Request) (*http.Response, error) {
	panic("unexpected request: " + r.URL.String())
})

func encodePNG(t *testing.T, width, height int) []byte {
	var b bytes.Buffer
	if err := png.Encode(&b, image.NewRGBA(image.Rect(0, 0, width, height))); err != nil {
		t.Fatal(err)
	}
	return b.Bytes()
}

func encodeGIF(t *testing.T) []byte {
	var b bytes.Buffer
	if err := gif.Encode(&b, image.NewPaletted(image.Rect(0, 0, 4, 4), []color.Color{color.Black}), nil); err != nil {
		t.Fatal(err)
	}
	return b.Bytes()
}

func newTestStore(t *testing.T, client fed.Client) *Store {
	var config cfg.Config
	config.FillDefaults()
	config.MediaDir = t.TempDir()
	return NewStore(&config, client, nil)
}

func TestDownload_PNG(t *testing.T) {
	assert := assert.New(t)

	data := encodePNG(t, 16, 8)
	s := newTestStore(t, serveBytes(t, "https://b.example/avatar.png", data))

	f, err := s.Download(context.Background(), "https://b.example/avatar.png", "image/png")
	assert.NoError(err)
	assert.Equal("https://b.example/avatar.png", f.URL)
	assert.Equal("image/png", f.Type)
	assert.Equal(".png", filepath.Ext(f.Name))

	saved, err := os.ReadFile(filepath.Join(s.Dir, f.Name))
	assert.NoError(err)
	assert.Equal(data, saved)

	assert.NoError(s.Remove(f.Name))
	_, err = os.Stat(filepath.Join(s.Dir, f.Name))
	assert.True(errors.Is(err, os.ErrNotExist))

	assert.NoError(s.Remove(f.Name))
}

func TestDownload_GIF(t *testing.T) {
	s := newTestStore(t, serveBytes(t, "https://b.example/avatar.gif", encodeGIF(t)))

	f, err := s.Download(context.Background(), "https://b.example/avatar.gif", "image/gif")
	assert.NoError(t, err)
	assert.Equal(t, ".gif", filepath.Ext(f.Name))
}

func TestDownload_UnsupportedType(t *testing.T) {
	s := newTestStore(t, noRequests)

	for _, mediaType := range []string{"image/webp", "image/svg+xml", "video/mp4", "", ";"} {
		_, err := s.Download(context.Background(), "https://b.example/avatar", mediaType)
		assert.ErrorIs(t, err, ErrUnsupportedType, mediaType)
	}
}

func TestDownload_WrongFormat(t *testing.T) {
	assert := assert.New(t)

	s := newTestStore(t, serveBytes(t, "https://b.example/avatar.png", encodeGIF(t)))

	_, err := s.Download(context.Background(), "https://b.example/avatar.png", "image/png")
	assert.ErrorIs(err, ErrUnsupportedType)

	entries, err := os.ReadDir(s.Dir)
	if !errors.Is(err, os.ErrNotExist) {
		assert.NoError(err)
		assert.Empty(entries)
	}
}

func TestDownload_NotImage(t *testing.T) {
	s := newTestStore(t, serveBytes(t, "https://b.example/avatar.png", []byte("<html></html>")))

	_, err := s.Download(context.Background(), "https://b.example/avatar.png", "image/png")
	assert.Error(t, err)
}

func TestDownload_Scaled(t *testing.T) {
	assert := assert.New(t)

	s := newTestStore(t, serveBytes(t, "https://b.example/avatar.png", encodePNG(t, 32, 8)))
	s.Config.MaxImageWidth = 16

	f, err := s.Download(context.Background(), "https://b.example/avatar.png", "image/png")
	assert.NoError(err)

	body, err := os.ReadFile(filepath.Join(s.Dir, f.Name))
	assert.NoError(err)

	config, format, err := image.DecodeConfig(bytes.NewReader(body))
	assert.NoError(err)
	assert.Equal("png", format)
	assert.Equal(16, config.Width)
	assert.Equal(4, config.Height)
}

func TestDownload_ScaledGIF(t *testing.T) {
	assert := assert.New(t)

	s := newTestStore(t, serveBytes(t, "https://b.example/header.gif", encodeGIF(t)))
	s.Config.MaxImageHeight = 2

	f, err := s.Download(context.Background(), "https://b.example/header.gif", "image/gif")
	assert.NoError(err)

	body, err := os.ReadFile(filepath.Join(s.Dir, f.Name))
	assert.NoError(err)

	config, format, err := image.DecodeConfig(bytes.NewReader(body))
	assert.NoError(err)
	assert.Equal("gif", format)
	assert.Equal(2, config.Width)
	assert.Equal(2, config.Height)
}

func TestDownload_TooLarge(t *testing.T) {
	s := newTestStore(t, serveBytes(t, "https://b.example/avatar.png", encodePNG(t, 32, 8)))
	s.Config.MaxDecodeWidth = 16

	_, err := s.Download(context.Background(), "https://b.example/avatar.png", "image/png")
	assert.ErrorIs(t, err, ErrTooBig)
}

func TestDownload_TooBig(t *testing.T) {
	s := newTestStore(t, serveBytes(t, "https://b.example/avatar.png", encodePNG(t, 16, 16)))
	s.Config.MaxImageSize = 16

	_, err := s.Download(context.Background(), "https://b.example/avatar.png", "image/png")
	assert.ErrorIs(t, err, ErrTooBig)
}

func TestDownload_NotFound(t *testing.T) {
	s := newTestStore(t, clientFunc(func(*http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: http.StatusNotFound, Body: io.NopCloser(bytes.NewReader(nil))}, nil
	}))

	_, err := s.Download(context.Background(), "https://b.example/avatar.png", "image/png")

	var statusErr *fed.StatusError
	assert.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}

func TestDownload_InvalidURL(t *testing.T) {
	s := newTestStore(t, noRequests)

	for _, u := range []string{"http://b.example/avatar.png", "https:///avatar.png", "://"} {
		_, err := s.Download(context.Background(), u, "image/png")
		assert.ErrorIs(t, err, fed.ErrInvalidURL, u)
	}
}
