package app

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
)

type mockResp struct {
	status int
	body   string
}

type mockRoundTripper struct {
	mu        sync.Mutex
	responses map[string][]mockResp
	requests  []*http.Request
}

func (m *mockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)
	list, ok := m.responses[req.URL.String()]
	if !ok || len(list) == 0 {
		return nil, io.ErrUnexpectedEOF
	}
	resp := list[0]
	m.responses[req.URL.String()] = list[1:]

	return &http.Response{
		StatusCode: resp.status,
		Status:     http.StatusText(resp.status),
		Body:       io.NopCloser(strings.NewReader(resp.body)),
		Header:     make(http.Header),
		Request:    req,
	}, nil
}

func (m *mockRoundTripper) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// testPNG renders a small image with a transparent corner.
func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 30), G: uint8(y * 30), B: 200, A: 255})
		}
	}
	img.Set(0, 0, color.NRGBA{})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode error = %v", err)
	}
	return buf.Bytes()
}
