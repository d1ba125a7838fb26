package s3

import (
	"strings"
	"testing"
)

func TestParseEndpoint(t *testing.T) {
	cases := map[string]string{
		"http://minio:9000":       "minio:9000",
		"https://s3.example.com/": "s3.example.com",
		"localhost:9000":          "localhost:9000",
	}
	for in, want := range cases {
		if got := parseEndpoint(in); got != want {
			t.Errorf("parseEndpoint(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestObjectURL(t *testing.T) {
	got := objectURL("https://cdn.zedflip.test/", "listings", "/listings/abc/1.jpg")
	if got != "https://cdn.zedflip.test/listings/listings/abc/1.jpg" {
		t.Fatalf("unexpected url %s", got)
	}
}

func TestNewClientRequiresEndpointAndBucket(t *testing.T) {
	if _, err := NewClient(Options{Bucket: "b"}, nil); err == nil || !strings.Contains(err.Error(), "endpoint") {
		t.Fatalf("expected endpoint error, got %v", err)
	}
	if _, err := NewClient(Options{Endpoint: "localhost:9000"}, nil); err == nil || !strings.Contains(err.Error(), "bucket") {
		t.Fatalf("expected bucket error, got %v", err)
	}
	if !strings.Contains(publicReadPolicy("imgs"), "arn:aws:s3:::imgs/*") {
		t.Fatal("policy must scope to the bucket")
	}
}
