package cache

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"
)

func TestBuildKey(t *testing.T) {
	a := buildKey("https://www.linkedin.com/jobs?start=0")
	b := buildKey("https://www.linkedin.com/jobs?start=0")
	c := buildKey("https://www.linkedin.com/jobs?start=25")

	if a != b {
		t.Errorf("key not stable: %s vs %s", a, b)
	}
	if a == c {
		t.Error("different URLs share a key")
	}
	if !strings.HasPrefix(a, "jobscout:page:") {
		t.Errorf("unexpected key prefix: %s", a)
	}
}

func TestNew_InvalidURL(t *testing.T) {
	if _, err := New(context.Background(), "://nope", time.Minute); err == nil {
		t.Fatal("expected error for invalid redis URL")
	}
}

// TestRoundTrip needs a live Redis, e.g. JOBSCOUT_TEST_REDIS=redis://localhost:6379/15.
func TestRoundTrip(t *testing.T) {
	url := os.Getenv("JOBSCOUT_TEST_REDIS")
	if url == "" {
		t.Skip("JOBSCOUT_TEST_REDIS not set")
	}
	ctx := context.Background()
	c, err := New(ctx, url, time.Minute)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	page := "https://example.com/list?run=" + time.Now().Format(time.RFC3339Nano)
	if _, ok := c.Get(ctx, page); ok {
		t.Fatal("expected miss before Set")
	}
	if err := c.Set(ctx, page, []byte("<html>ok</html>")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	body, ok := c.Get(ctx, page)
	if !ok || string(body) != "<html>ok</html>" {
		t.Fatalf("Get = %q, %v", body, ok)
	}
}
