package params

import (
	"errors"
	"strings"
	"testing"
)

func TestRegistryCapacity(t *testing.T) {
	r := NewRegistry(2)
	if err := r.Add(NewField("a", "A", "", 8, "")); err != nil {
		t.Fatalf("Add(a) error = %v", err)
	}
	if err := r.Add(NewHTML("<p>hi</p>")); err != nil {
		t.Fatalf("Add(html) error = %v", err)
	}

	err := r.Add(NewField("c", "C", "", 8, ""))
	if !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("Add over capacity error = %v, want ErrCapacityExceeded", err)
	}
	if r.Len() != 2 {
		t.Errorf("Len() = %d, want 2", r.Len())
	}
}

func TestRegistryDefaultCapacity(t *testing.T) {
	r := NewRegistry(0)
	if r.Capacity() != DefaultCapacity {
		t.Fatalf("Capacity() = %d, want %d", r.Capacity(), DefaultCapacity)
	}
	for i := 0; i < DefaultCapacity; i++ {
		if err := r.Add(NewHTML("<hr>")); err != nil {
			t.Fatalf("Add #%d error = %v", i, err)
		}
	}
	if err := r.Add(NewHTML("<hr>")); !errors.Is(err, ErrCapacityExceeded) {
		t.Errorf("Add #11 error = %v, want ErrCapacityExceeded", err)
	}
}

func TestRegistryDuplicateID(t *testing.T) {
	r := NewRegistry(0)
	_ = r.Add(NewField("mqtt", "MQTT host", "", 40, ""))
	if err := r.Add(NewField("mqtt", "again", "", 40, "")); !errors.Is(err, ErrDuplicateID) {
		t.Errorf("duplicate Add error = %v, want ErrDuplicateID", err)
	}
}

func TestRenderOrderAndEscaping(t *testing.T) {
	r := NewRegistry(0)
	_ = r.Add(NewField("server", "MQTT server", "mqtt.local", 40, ""))
	_ = r.Add(NewHTML("<p>Advanced</p>"))
	_ = r.Add(NewField("port", "Port", "1883", 5, "type='number'"))

	got := r.Render()

	server := strings.Index(got, "id='server'")
	html := strings.Index(got, "<p>Advanced</p>")
	port := strings.Index(got, "id='port'")
	if server < 0 || html < 0 || port < 0 {
		t.Fatalf("Render() missing fragments: %s", got)
	}
	if !(server < html && html < port) {
		t.Errorf("Render() out of registration order: %s", got)
	}
	if !strings.Contains(got, "value='1883' type='number'>") {
		t.Errorf("Render() missing custom attributes: %s", got)
	}

	f, _ := r.Lookup("server")
	r.Apply(func(name string) string {
		if name == "server" {
			return "a'b<c>"
		}
		return ""
	})
	if f.Value() != "a'b<c>" {
		t.Errorf("Value() = %q", f.Value())
	}
	if !strings.Contains(r.Render(), "value='a&#39;b&lt;c&gt;'") {
		t.Errorf("submitted value not escaped: %s", r.Render())
	}
}

func TestRenderEmpty(t *testing.T) {
	if got := NewRegistry(0).Render(); got != "" {
		t.Errorf("Render() on empty registry = %q, want empty", got)
	}
}

func TestApplyTruncatesToMaxLength(t *testing.T) {
	r := NewRegistry(0)
	f := NewField("token", "Token", "", 4, "")
	_ = r.Add(f)

	r.Apply(func(string) string { return "abcdefgh" })
	if f.Value() != "abcd" {
		t.Errorf("Value() = %q, want %q", f.Value(), "abcd")
	}
	if got := r.Values()["token"]; got != "abcd" {
		t.Errorf("Values()[token] = %q", got)
	}
}

func TestReset(t *testing.T) {
	r := NewRegistry(0)
	_ = r.Add(NewField("a", "A", "x", 4, ""))
	r.Reset()
	if r.Len() != 0 {
		t.Errorf("Len() after Reset = %d", r.Len())
	}
	if _, ok := r.Lookup("a"); ok {
		t.Error("Lookup found field after Reset")
	}
}
