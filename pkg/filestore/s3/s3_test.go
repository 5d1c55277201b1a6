package s3

import "testing"

func TestContentType(t *testing.T) {
	tests := []struct {
		path string
		want string
		err  bool
	}{
		{"cover.jpg", "image/jpeg", false},
		{"cover.jpeg", "image/jpeg", false},
		{"cover.png", "image/png", false},
		{"cover.webp", "image/webp", false},
		{"song.mp3", "", true},
	}
	for _, tt := range tests {
		got, err := contentType(tt.path)
		if (err != nil) != tt.err || got != tt.want {
			t.Errorf("contentType(%s) = %q, %v; want %q", tt.path, got, err, tt.want)
		}
	}
}
