package workers

import "testing"

func TestGuessExtension(t *testing.T) {
	cases := []struct {
		url         string
		contentType string
		want        string
	}{
		{"https://cdn.example.com/lot/a.jpg", "", ".jpg"},
		{"https://cdn.example.com/lot/a.PNG", "", ".png"},
		{"https://cdn.example.com/lot/a.webp", "image/webp", ".webp"},
		{"https://cdn.example.com/lot/a", "image/png", ".png"},
		{"https://cdn.example.com/lot/a", "image/gif", ".gif"},
		{"https://cdn.example.com/lot/a.bin", "", ".jpg"},
		{"https://cdn.example.com/lot/a", "", ".jpg"},
	}

	for _, c := range cases {
		if got := guessExtension(c.url, c.contentType); got != c.want {
			t.Fatalf("guessExtension(%q, %q) = %q, want %q", c.url, c.contentType, got, c.want)
		}
	}
}
