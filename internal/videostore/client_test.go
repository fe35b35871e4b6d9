package videostore

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kestrel-data/visionproof/internal/faults"
	"github.com/kestrel-data/visionproof/internal/httputil"
)

func TestFetch(t *testing.T) {
	mock := httputil.NewMockHTTPClient()
	mock.AddResponse(200, "fake mp4 bytes")
	c := NewClient("http://archive.test", mock)

	data, err := c.Fetch(context.Background(), "cam1_0830.mp4")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(data) != "fake mp4 bytes" {
		t.Errorf("wrong bytes: %q", data)
	}

	req := mock.GetRequest(0)
	if !strings.Contains(req.URL.Path, "/api/videos/cam1_0830.mp4") {
		t.Errorf("unexpected path: %s", req.URL.Path)
	}
}

func TestFetchNotFoundIsPermanent(t *testing.T) {
	mock := httputil.NewMockHTTPClient()
	mock.AddResponse(404, "")
	c := NewClient("http://archive.test", mock)

	_, err := c.Fetch(context.Background(), "gone.mp4")
	if faults.KindOf(err) != faults.KindPermanent {
		t.Errorf("404 should be permanent, got %v", err)
	}
}

func TestFetchServerErrorIsTransient(t *testing.T) {
	mock := httputil.NewMockHTTPClient()
	mock.AddResponse(503, "")
	c := NewClient("http://archive.test", mock)

	_, err := c.Fetch(context.Background(), "v.mp4")
	if faults.KindOf(err) != faults.KindTransient {
		t.Errorf("503 should be transient, got %v", err)
	}
}

func TestFetchConnectionErrorIsTransient(t *testing.T) {
	mock := httputil.NewMockHTTPClient()
	mock.AddErrorResponse(errors.New("connection reset"))
	c := NewClient("http://archive.test", mock)

	_, err := c.Fetch(context.Background(), "v.mp4")
	if faults.KindOf(err) != faults.KindTransient {
		t.Errorf("transport error should be transient, got %v", err)
	}
}

func TestFetchEmptyBodyIsDataError(t *testing.T) {
	mock := httputil.NewMockHTTPClient()
	mock.AddResponse(200, "")
	c := NewClient("http://archive.test", mock)

	_, err := c.Fetch(context.Background(), "v.mp4")
	if faults.KindOf(err) != faults.KindData {
		t.Errorf("empty video should be a data error, got %v", err)
	}
}

func TestFetchEmptyName(t *testing.T) {
	c := NewClient("http://archive.test", httputil.NewMockHTTPClient())
	_, err := c.Fetch(context.Background(), "")
	if faults.KindOf(err) != faults.KindData {
		t.Errorf("empty name should be a data error, got %v", err)
	}
}
