package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shellbot/shellbot/pkg/types"
)

func TestTerm(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/term" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("X-API-Key") != "k" {
			t.Errorf("missing API key header")
		}
		var req types.TermRequest
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(types.ExecutionResult{Command: req.Command, Output: "ok\n"})
	}))
	defer srv.Close()

	res, err := NewClient(srv.URL+"/", "k").Term(context.Background(), "echo ok")
	if err != nil {
		t.Fatalf("Term: %v", err)
	}
	if res.Command != "echo ok" || res.Output != "ok\n" {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestAPIErrorDecoding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"\"gentoo\": distro not found"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "").SwitchDistro(context.Background(), "gentoo")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusNotFound || apiErr.Message != `"gentoo": distro not found` {
		t.Errorf("unexpected error %+v", apiErr)
	}
}

func TestCompleteDistroEscapesQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("q"); got != "a b" {
			t.Errorf("q = %q", got)
		}
		w.Write([]byte(`["alpine"]`))
	}))
	defer srv.Close()

	names, err := NewClient(srv.URL, "").CompleteDistro(context.Background(), "a b")
	if err != nil {
		t.Fatalf("CompleteDistro: %v", err)
	}
	if len(names) != 1 || names[0] != "alpine" {
		t.Errorf("unexpected names %v", names)
	}
}
