package observability

import "testing"

func TestNormalizedPath(t *testing.T) {
	got := normalizedPath("/api/v1/sessions/5f0c1f9e-9b2a-4a1f-8f69-0f4ab1c2d3e4/questions/12")
	want := "/api/v1/sessions/{id}/questions/{id}"
	if got != want {
		t.Fatalf("normalizedPath mismatch got=%s want=%s", got, want)
	}
}

func TestNormalizedPathLeavesWordsAlone(t *testing.T) {
	got := normalizedPath("/api/v1/questions/duplicates")
	want := "/api/v1/questions/duplicates"
	if got != want {
		t.Fatalf("normalizedPath mismatch got=%s want=%s", got, want)
	}
}

func TestExtractSessionID(t *testing.T) {
	id := "5f0c1f9e-9b2a-4a1f-8f69-0f4ab1c2d3e4"
	if got := extractSessionID("/api/v1/sessions/" + id + "/submit"); got != id {
		t.Fatalf("expected %s, got %s", id, got)
	}
	if got := extractSessionID("/api/v1/questions/1"); got != "" {
		t.Fatalf("expected empty for non-session path, got %s", got)
	}
	if got := extractSessionID("/api/v1/sessions/not-a-uuid/submit"); got != "" {
		t.Fatalf("expected empty for malformed id, got %s", got)
	}
}
