package contentid

import (
	"strings"
	"testing"
)

func TestDerive_Deterministic(t *testing.T) {
	a := Derive("https://docs.example.com/papers/attention.pdf")
	b := Derive("https://docs.example.com/papers/attention.pdf")
	if a != b {
		t.Errorf("Derive() not deterministic: %q != %q", a, b)
	}
}

func TestDerive_DistinctReferences(t *testing.T) {
	a := Derive("https://docs.example.com/papers/attention.pdf")
	b := Derive("https://docs.example.com/papers/resnet.pdf")
	if a == b {
		t.Errorf("Derive() collided for distinct references: %q", a)
	}
}

func TestDerive_Canonicalization(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
		same bool
	}{
		{
			name: "scheme and host case insensitive",
			a:    "HTTPS://Docs.Example.com/papers/a.pdf",
			b:    "https://docs.example.com/papers/a.pdf",
			same: true,
		},
		{
			name: "fragment ignored",
			a:    "https://docs.example.com/a.pdf#page=3",
			b:    "https://docs.example.com/a.pdf",
			same: true,
		},
		{
			name: "surrounding whitespace ignored",
			a:    "  https://docs.example.com/a.pdf  ",
			b:    "https://docs.example.com/a.pdf",
			same: true,
		},
		{
			name: "path case preserved",
			a:    "https://docs.example.com/Papers/a.pdf",
			b:    "https://docs.example.com/papers/a.pdf",
			same: false,
		},
		{
			name: "query preserved",
			a:    "https://docs.example.com/a.pdf?v=1",
			b:    "https://docs.example.com/a.pdf?v=2",
			same: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Derive(tt.a) == Derive(tt.b)
			if got != tt.same {
				t.Errorf("Derive(%q) == Derive(%q) = %v, want %v", tt.a, tt.b, got, tt.same)
			}
		})
	}
}

func TestDerive_Alphabet(t *testing.T) {
	refs := []string{
		"https://docs.example.com/a.pdf",
		"s3-key-without-scheme.txt",
		"",
		"日本語のファイル名.pdf",
	}
	for _, ref := range refs {
		id := Derive(ref)
		if id == "" {
			t.Errorf("Derive(%q) returned empty id", ref)
			continue
		}
		if id[0] < 'a' || id[0] > 'z' {
			t.Errorf("Derive(%q) = %q, does not start with a letter", ref, id)
		}
		if len(id) > maxIDLen+1 {
			t.Errorf("Derive(%q) = %q, longer than %d", ref, id, maxIDLen+1)
		}
		for _, r := range id {
			if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
				t.Errorf("Derive(%q) = %q contains invalid rune %q", ref, id, r)
			}
		}
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "already clean", raw: "attention-paper", want: "attention-paper"},
		{name: "uppercase lowered", raw: "Attention-Paper", want: "attention-paper"},
		{name: "spaces collapse to hyphen", raw: "my  research doc", want: "my-research-doc"},
		{name: "punctuation collapses", raw: "doc.v2 (final)!", want: "doc-v2-final"},
		{name: "trailing junk trimmed", raw: "doc---", want: "doc"},
		{name: "leading digit prefixed", raw: "2024-report", want: "d2024-report"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sanitize(tt.raw); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestSanitize_DegeneratesToDerive(t *testing.T) {
	// Input with no usable characters still yields a stable non-empty id.
	a := Sanitize("!!!")
	b := Sanitize("!!!")
	if a == "" {
		t.Fatal("Sanitize(invalid) returned empty id")
	}
	if a != b {
		t.Errorf("Sanitize(invalid) not deterministic: %q != %q", a, b)
	}
	if a == Sanitize("???") {
		t.Error("Sanitize should distinguish different raw inputs even when degenerate")
	}
}

func TestSanitize_LengthBound(t *testing.T) {
	long := strings.Repeat("abc-", 30)
	id := Sanitize(long)
	if len(id) > maxIDLen {
		t.Errorf("Sanitize() length = %d, want <= %d", len(id), maxIDLen)
	}
	if strings.HasSuffix(id, "-") {
		t.Errorf("Sanitize() = %q, trailing hyphen after truncation", id)
	}
}

func TestCollection(t *testing.T) {
	got := Collection("pdf-index", "abc123")
	if got != "pdf-index-abc123" {
		t.Errorf("Collection() = %q, want %q", got, "pdf-index-abc123")
	}
}
