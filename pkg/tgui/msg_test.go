package tgui

import "testing"

func TestBuilderEscapesHTML(t *testing.T) {
	t.Parallel()

	m := New().
		Title("⏰", "Reminders <3").
		KV("next", "a & b").
		Line("<script>").
		Code("id<1>").
		Build()

	want := "⏰ <b>Reminders &lt;3</b>\n• <b>next</b>: a &amp; b\n&lt;script&gt;\n<code>id&lt;1&gt;</code>"
	if m.Text != want {
		t.Fatalf("Text=%q want %q", m.Text, want)
	}
	if m.Opt.ParseMode != "HTML" || !m.Opt.DisablePreview {
		t.Fatalf("unexpected options: %+v", *m.Opt)
	}
}

func TestBuilderPlain(t *testing.T) {
	t.Parallel()

	m := New().Plain().Title("", "Done").Blank().KV("id", "<x>").Build()
	if want := "Done\n\n• id: <x>"; m.Text != want {
		t.Fatalf("Text=%q want %q", m.Text, want)
	}
	if m.Opt.ParseMode != "" {
		t.Fatalf("ParseMode=%q want empty", m.Opt.ParseMode)
	}
}

func TestTruncRunes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello", 3, "hel…"},
		{"привет", 2, "пр…"},
		{"x", 0, ""},
	}
	for _, tt := range tests {
		if got := TruncRunes(tt.in, tt.n); got != tt.want {
			t.Fatalf("TruncRunes(%q,%d)=%q want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestPreview(t *testing.T) {
	t.Parallel()

	if got := Preview("  pay\n\trent   today ", 20); got != "pay rent today" {
		t.Fatalf("Preview()=%q", got)
	}
	if got := Preview("a b c d", 3); got != "a b…" {
		t.Fatalf("Preview()=%q", got)
	}
}
