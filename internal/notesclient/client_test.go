package notesclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hyorim/carenotes/internal/apperr"
)

func newUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	r.Get("/patients/{patientID}/nursing-notes", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		id, _ := url.PathUnescape(chi.URLParam(r, "patientID"))
		switch id {
		case "25-0000032":
			if r.Header.Get("Authorization") != "Bearer secret" {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"detail":"unauthorized"}`))
				return
			}
			_, _ = w.Write([]byte(`{"ok":true,"patient_id":"25-0000032","notes":[{"date":"2025-07-24","items":[]}]}`))
		case "rejected":
			_, _ = w.Write([]byte(`{"ok":false,"error":"기록 없음"}`))
		case "slow":
			select {
			case <-time.After(time.Second):
			case <-r.Context().Done():
			}
		case "a/b":
			_, _ = w.Write([]byte(`[]`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"detail":"환자 정보 없음"}`))
		}
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchNotes_OK(t *testing.T) {
	srv := newUpstream(t)
	c, err := New(srv.URL+"/", WithToken("secret"))
	if err != nil {
		t.Fatal(err)
	}
	body, err := c.FetchNotes(context.Background(), "25-0000032")
	if err != nil {
		t.Fatalf("FetchNotes: %v", err)
	}
	if len(body) == 0 || body[0] != '{' {
		t.Errorf("body = %s", body)
	}
}

func TestFetchNotes_StatusError(t *testing.T) {
	srv := newUpstream(t)
	c, _ := New(srv.URL)

	_, err := c.FetchNotes(context.Background(), "unknown")
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusNotFound || se.Detail != "환자 정보 없음" {
		t.Fatalf("err = %v", err)
	}
	if !errors.Is(err, apperr.ErrUpstream) {
		t.Error("status errors must wrap ErrUpstream")
	}

	_, err = c.FetchNotes(context.Background(), "25-0000032")
	if !errors.As(err, &se) || se.Code != http.StatusUnauthorized {
		t.Errorf("missing token: %v", err)
	}
}

func TestFetchNotes_OKFalse(t *testing.T) {
	srv := newUpstream(t)
	c, _ := New(srv.URL)
	_, err := c.FetchNotes(context.Background(), "rejected")
	var se *StatusError
	if !errors.As(err, &se) || se.Detail != "기록 없음" {
		t.Fatalf("err = %v", err)
	}
}

func TestFetchNotes_EscapesPatientID(t *testing.T) {
	srv := newUpstream(t)
	c, _ := New(srv.URL)
	body, err := c.FetchNotes(context.Background(), "a/b")
	if err != nil || string(body) != "[]" {
		t.Errorf("body = %q, err = %v", body, err)
	}
}

func TestFetchNotes_Timeout(t *testing.T) {
	srv := newUpstream(t)
	c, _ := New(srv.URL, WithTimeout(50*time.Millisecond))
	_, err := c.FetchNotes(context.Background(), "slow")
	if !errors.Is(err, apperr.ErrUpstream) {
		t.Errorf("err = %v", err)
	}
}

func TestFetchNotes_ContextCancelled(t *testing.T) {
	srv := newUpstream(t)
	c, _ := New(srv.URL)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.FetchNotes(ctx, "slow"); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v", err)
	}
}

func TestNew_InvalidURL(t *testing.T) {
	if _, err := New("not a url"); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("err = %v", err)
	}
}
