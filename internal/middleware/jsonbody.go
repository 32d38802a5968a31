package middleware

import (
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// EmptyJSONBody returns an Echo middleware that gives an empty DELETE body
// on /session paths the value {} when the request declares a JSON content
// type. WebDriver clients send such bodies when ending a session, and a
// strict JSON parser would reject them.
func EmptyJSONBody() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Method == http.MethodDelete &&
				strings.HasPrefix(req.URL.Path, "/session") &&
				isJSON(req.Header.Get(echo.HeaderContentType)) &&
				bodyEmpty(req) {
				req.Body = io.NopCloser(strings.NewReader("{}"))
				req.ContentLength = 2
				req.Header.Del(echo.HeaderContentLength)
			}
			return next(c)
		}
	}
}

func isJSON(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), echo.MIMEApplicationJSON)
}

// bodyEmpty reports whether req has no body bytes. Bodies of unknown
// length are probed with a one-byte read and restored when non-empty.
func bodyEmpty(req *http.Request) bool {
	if req.Body == nil || req.Body == http.NoBody || req.ContentLength == 0 {
		return true
	}
	if req.ContentLength > 0 {
		return false
	}
	var b [1]byte
	n, _ := io.ReadFull(req.Body, b[:])
	if n == 0 {
		return true
	}
	req.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(strings.NewReader(string(b[:n])), req.Body), req.Body}
	return false
}
