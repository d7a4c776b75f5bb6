package watermark

import "testing"

func TestDetectRoot(t *testing.T) {
	cases := []struct {
		names  []string
		expect string
	}{
		{nil, ""},
		{[]string{"proj/", "proj/a.txt", "proj/b.txt"}, "proj/"},
		{[]string{"a.txt", "b.txt"}, ""},
		{[]string{"proj/", "other/x.txt"}, ""},
		{[]string{"proj/"}, "proj/"},
		{[]string{"proj/", "proj/sub/", "proj/sub/c.php"}, "proj/"},
		{[]string{"proj/a.txt", "proj/b.txt"}, ""},
		{[]string{"proj/", "project/x.txt"}, ""},
	}
	for _, tc := range cases {
		if got := DetectRoot(tc.names); got != tc.expect {
			t.Fatalf("names %v expected root %q got %q", tc.names, tc.expect, got)
		}
	}
}
