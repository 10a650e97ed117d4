package webui

import (
	"io"
	"net/http"
	"strconv"
	"testing"
)

func mustRequest(t *testing.T, method, url string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	return req
}

func ioNopCloser(r io.Reader) io.ReadCloser { return io.NopCloser(r) }

func itoa(n int64) string { return strconv.FormatInt(n, 10) }
