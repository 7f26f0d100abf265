package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
)

type recordingObserver struct {
	routes   []string
	statuses []int
}

func (o *recordingObserver) ObserveRequest(route string, status int) {
	o.routes = append(o.routes, route)
	o.statuses = append(o.statuses, status)
}

func text(body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, body)
	})
}

func TestHandleAndRemove(t *testing.T) {
	s := New(nil)
	s.Handle("/wifi", text("wifi"), http.MethodGet)
	s.Handle("/wifisave", text("saved"))

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/wifi?scan=1", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "wifi" {
		t.Fatalf("GET /wifi = %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/wifi", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST /wifi = %d, want 405", rec.Code)
	}

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/wifisave", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("POST /wifisave = %d, want 200", rec.Code)
	}

	if got := s.Routes(); !reflect.DeepEqual(got, []string{"/wifi", "/wifisave"}) {
		t.Errorf("Routes() = %v", got)
	}

	s.Remove("/wifi")
	s.Remove("/never-registered")
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/wifi", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET /wifi after Remove = %d, want 404", rec.Code)
	}
}

func TestHeadFallsBackToGet(t *testing.T) {
	s := New(nil)
	s.Handle("/", text("root"), http.MethodGet)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodHead, "/", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("HEAD / = %d, want 200", rec.Code)
	}
}

func TestNotFoundHandlerAndObserver(t *testing.T) {
	s := New(nil)
	obs := &recordingObserver{}
	s.SetObserver(obs)
	s.SetNotFound(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))
	if rec.Code != http.StatusTeapot {
		t.Errorf("custom not found = %d, want 418", rec.Code)
	}

	s.SetNotFound(nil)
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("default not found = %d, want 404", rec.Code)
	}

	if !reflect.DeepEqual(obs.routes, []string{"not_found", "not_found"}) ||
		!reflect.DeepEqual(obs.statuses, []int{http.StatusTeapot, http.StatusNotFound}) {
		t.Errorf("observer saw %v %v", obs.routes, obs.statuses)
	}
}

func TestStartAndShutdown(t *testing.T) {
	s := New(&Config{Host: "127.0.0.1", Port: 0})
	s.Handle("/", text("ok"))

	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if s.Port() == 0 {
		t.Fatal("Port() = 0 after Start")
	}

	resp, err := http.Get("http://" + s.Addr().String() + "/")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "ok" {
		t.Errorf("body = %q", body)
	}

	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if _, err := http.Get("http://" + s.Addr().String() + "/"); err == nil {
		t.Error("GET after Shutdown should fail")
	}
}
