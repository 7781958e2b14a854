package duckduckgo

import "testing"

func TestResolveRedirect(t *testing.T) {
	t.Parallel()
	cases := []struct{ in, want string }{
		{"https://example.com/page", "https://example.com/page"},
		{"https://duckduckgo.com/l/?uddg=https%3A%2F%2Ftarget.example%2Fdoc", "https://target.example/doc"},
		{"//duckduckgo.com/l/?uddg=https%3A%2F%2Ftarget.example", "https://target.example"},
		{"/l/?kh=1", ""},
	}
	for _, c := range cases {
		if got := resolveRedirect(c.in); got != c.want {
			t.Fatalf("resolveRedirect(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
