package service

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/kotaro/photoinsight/internal/domain"
)

// writeTestImage writes a small solid-color PNG and returns its path.
func writeTestImage(t *testing.T) string {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 120, B: 40, A: 255})
		}
	}

	path := filepath.Join(t.TempDir(), "photo.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create test image: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}
	return path
}

// chatServer returns an httptest server answering chat completions with the
// given status and reply text.
func chatServer(t *testing.T, status int, reply string, calls *int) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			*calls++
		}
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}

		var req map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("request body is not JSON: %v", err)
		}
		if req["max_tokens"] != float64(10) {
			t.Errorf("max_tokens = %v, want 10", req["max_tokens"])
		}

		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"choices":[{"message":{"content":%q}}]}`, reply)
	}))
}

func newTestClassifier(baseURL string) *ClassifierService {
	return NewClassifierService(&ClassifierConfig{
		Model:   "test-vlm",
		BaseURL: baseURL,
	}, nil, nil)
}

func TestClassifySeason(t *testing.T) {
	testCases := []struct {
		name   string
		status int
		reply  string
		want   domain.Season
		wantOK bool
	}{
		{name: "canonical answer", status: 200, reply: "Spring", want: domain.SeasonSpring, wantOK: true},
		{name: "lowercase answer", status: 200, reply: "winter", want: domain.SeasonWinter, wantOK: true},
		{name: "padded answer", status: 200, reply: " Autumn.\n", want: domain.SeasonAutumn, wantOK: true},
		{name: "unknown label", status: 200, reply: "Rainy", wantOK: false},
		{name: "chatty answer", status: 200, reply: "I think it is Summer", wantOK: false},
		{name: "bad gateway", status: 502, wantOK: false},
		{name: "server error", status: 500, wantOK: false},
	}

	path := writeTestImage(t)

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			srv := chatServer(t, tc.status, tc.reply, nil)
			defer srv.Close()

			season, ok := newTestClassifier(srv.URL).ClassifySeason(context.Background(), path)
			if ok != tc.wantOK {
				t.Fatalf("ClassifySeason ok = %v, want %v", ok, tc.wantOK)
			}
			if ok && season != tc.want {
				t.Errorf("ClassifySeason = %q, want %q", season, tc.want)
			}
		})
	}
}

func TestClassifySeasonNetworkError(t *testing.T) {
	srv := chatServer(t, 200, "Spring", nil)
	srv.Close() // connection refused

	_, ok := newTestClassifier(srv.URL).ClassifySeason(context.Background(), writeTestImage(t))
	if ok {
		t.Error("expected failure when the endpoint is unreachable")
	}
}

func TestClassifySeasonUnreadableImageSkipsCall(t *testing.T) {
	calls := 0
	srv := chatServer(t, 200, "Spring", &calls)
	defer srv.Close()

	_, ok := newTestClassifier(srv.URL).ClassifySeason(context.Background(),
		filepath.Join(t.TempDir(), "missing.jpg"))
	if ok {
		t.Error("expected failure for missing file")
	}
	if calls != 0 {
		t.Errorf("endpoint called %d times for unreadable image, want 0", calls)
	}
}
