/*
Copyright 2026 Dima Krasner

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

// Package fed implements the federation transport: fetching remote objects, receiving activities
// and delivering them.
package fed

import (
	"errors"
	"net"
	"net/http"
	"runtime/debug"

	"github.com/dimkr/tusk/cfg"
)

// Client is an HTTP client.
type Client interface {
	Do(*http.Request) (*http.Response, error)
}

const maxRedirects = 5

// UserAgent is the User-Agent header of outgoing requests.
var UserAgent = func() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return "tusk/" + info.Main.Version
	}
	return "tusk"
}()

// NewClient returns the HTTP client shared by all outgoing requests.
func NewClient(config *cfg.Config) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: config.DialTimeout}).DialContext
	transport.MaxIdleConns = config.ResolverMaxIdleConns
	transport.IdleConnTimeout = config.ResolverIdleConnTimeout

	return &http.Client{
		Transport: transport,
		Timeout:   config.RequestTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return errors.New("too many redirects")
			}

			if req.URL.Scheme != "https" {
				return errors.New("redirect to non-HTTPS URL")
			}

			return nil
		},
	}
}
