package testutil

import (
	"errors"
	"net/http"
	"testing"
)

// AssertNoError and AssertError stop the test via Fatal, so only their
// passing paths can run on a bare testing.T. AssertStatusCode reports
// through Errorf and both paths are checked with a throwaway T.

func TestAssertStatusCode(t *testing.T) {
	fakeT := &testing.T{}
	AssertStatusCode(fakeT, http.StatusOK, http.StatusOK)
	if fakeT.Failed() {
		t.Error("matching codes should not fail")
	}

	fakeT = &testing.T{}
	AssertStatusCode(fakeT, http.StatusOK, http.StatusNotFound)
	if !fakeT.Failed() {
		t.Error("mismatched codes should fail")
	}
}

func TestAssertNoError(t *testing.T) {
	AssertNoError(t, nil)
}

func TestAssertError(t *testing.T) {
	AssertError(t, errors.New("boom"))
}

func TestNewTestRequest(t *testing.T) {
	for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodDelete} {
		req := NewTestRequest(method, "/api/runs")
		if req.Method != method {
			t.Errorf("method = %s, want %s", req.Method, method)
		}
		if req.URL.Path != "/api/runs" {
			t.Errorf("path = %s", req.URL.Path)
		}
	}
}

func TestNewTestRecorder(t *testing.T) {
	rec := NewTestRecorder()
	if rec.Code != http.StatusOK || rec.Body.Len() != 0 {
		t.Errorf("recorder not clean: code=%d body=%d", rec.Code, rec.Body.Len())
	}
	rec.WriteHeader(http.StatusNotFound)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Code = %d after WriteHeader", rec.Code)
	}
}
