package core

import "testing"

func TestBuildCall(t *testing.T) {
	got, err := buildCall("api", "go", "a", 1, nil, undefined, map[string]any{"b": []int{1}})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if want := `window.api?.go("a", 1, null, undefined, {"b":[1]})`; got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
	got, err = buildCall("api", "noargs")
	if err != nil || got != "window.api?.noargs()" {
		t.Fatalf("unexpected no-arg call %q (%v)", got, err)
	}
}

func TestBuildOptionalCall(t *testing.T) {
	got, err := buildOptionalCall("api", "collect")
	if err != nil || got != "window.api?.collect?.()" {
		t.Fatalf("unexpected optional call %q (%v)", got, err)
	}
}

func TestBuildCallEscapesStrings(t *testing.T) {
	got, err := buildCall("api", "log", "</script>\"quoted\"\n")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if want := `window.api?.log("\u003c/script\u003e\"quoted\"\n")`; got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestBuildCallRejectsUnencodable(t *testing.T) {
	if _, err := buildCall("api", "x", func() {}); err == nil {
		t.Fatalf("expected encode error")
	}
}
