package eventparser

import "testing"

func TestExtractTagsDocumentOrder(t *testing.T) {
	text := `before <event topic="build.done">ok</event> middle <event topic="task.start" target="planner">go</event> after`
	tags := ExtractTags(text)
	if len(tags) != 2 {
		t.Fatalf("expected 2 tags, got %d: %+v", len(tags), tags)
	}
	if tags[0].Topic != "build.done" || tags[0].Payload != "ok" || tags[0].Target != "" {
		t.Fatalf("unexpected first tag: %+v", tags[0])
	}
	if tags[1].Topic != "task.start" || tags[1].Target != "planner" || tags[1].Payload != "go" {
		t.Fatalf("unexpected second tag: %+v", tags[1])
	}
}

func TestExtractTagsNoneFound(t *testing.T) {
	if tags := ExtractTags("just plain text"); len(tags) != 0 {
		t.Fatalf("expected no tags, got %+v", tags)
	}
}

func TestHasCompletionMarkerVariants(t *testing.T) {
	marker := "LOOP_COMPLETE"
	cases := []struct {
		text string
		want bool
	}{
		{"LOOP_COMPLETE", true},
		{"- [x] LOOP_COMPLETE", true},
		{"**LOOP_COMPLETE**", true},
		{"Status: LOOP_COMPLETE", true},
		{"still working", false},
		{"mentions LOOP_COMPLETE mid-sentence", false},
	}
	for _, c := range cases {
		if got := HasCompletionMarker(c.text, marker); got != c.want {
			t.Fatalf("HasCompletionMarker(%q) = %v, want %v", c.text, got, c.want)
		}
	}
}

func TestLatchOneWay(t *testing.T) {
	l := NewLatch("LOOP_COMPLETE")
	if l.Observe("working...") {
		t.Fatalf("expected untripped before marker seen")
	}
	if !l.Observe("LOOP_COMPLETE") {
		t.Fatalf("expected tripped after marker seen")
	}
	if !l.Observe("no marker here anymore") {
		t.Fatalf("expected latch to stay tripped once set")
	}
}
