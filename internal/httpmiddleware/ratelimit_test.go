package httpmiddleware

import "testing"

func TestTokenBucketExhausts(t *testing.T) {
	t.Parallel()
	l := NewSimpleTokenBucket(3, 3)
	for i := 0; i < 3; i++ {
		if !l.allow("1.2.3.4") {
			t.Fatalf("request %d denied under capacity", i)
		}
	}
	if l.allow("1.2.3.4") {
		t.Fatal("request over capacity allowed")
	}
	// Other clients have their own bucket.
	if !l.allow("5.6.7.8") {
		t.Fatal("fresh client denied")
	}
}
