// Package model defines shared types for the proxy.
package model

import (
	"context"
	"io"
	"net/http"
)

// ProxyRequest is one inbound HTTP request to be forwarded to the browser.
// Body is fully buffered: WebDriver bodies are small JSON documents that
// may have been normalized before forwarding.
type ProxyRequest struct {
	Ctx      context.Context
	Method   string
	Path     string
	RawQuery string
	Header   http.Header
	Body     []byte
}

// ProxyResponse is the browser's answer to a forwarded request.
// The caller is responsible for closing Body.
type ProxyResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}
