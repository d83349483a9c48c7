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

package fed

import (
	"bytes"
	"io"
	"net/http"
	"sync"
)

type testResponse struct {
	Response *http.Response
	Error    error
}

// testClient serves each response once, and panics if a request has no response.
type testClient struct {
	sync.Mutex
	Data map[string]testResponse
}

type clientFunc func(*http.Request) (*http.Response, error)

func newTestResponse(statusCode int, body string) *http.Response {
	buf := []byte(body)
	return &http.Response{
		StatusCode:    statusCode,
		Header:        http.Header{"Content-Type": []string{"application/activity+json"}},
		ContentLength: int64(len(buf)),
		Body:          io.NopCloser(bytes.NewReader(buf)),
	}
}

func newTestClient(data map[string]testResponse) testClient {
	return testClient{Data: data}
}

func (c *testClient) Do(r *http.Request) (*http.Response, error) {
	url := r.URL.String()
	c.Lock()
	resp, ok := c.Data[url]
	if !ok {
		panic("No response for " + url)
	}
	delete(c.Data, url)
	c.Unlock()
	return resp.Response, resp.Error
}

func (f clientFunc) Do(r *http.Request) (*http.Response, error) {
	return f(r)
}
