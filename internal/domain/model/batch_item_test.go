//go:build !integration

package model

import "testing"

func TestCustomIDRoundTrip(t *testing.T) {
	id := CustomID("01J8ZQ4X9GVF", 7)
	if id != "01J8ZQ4X9GVF_7" {
		t.Fatalf("custom id = %q", id)
	}
	jobID, idx, err := ParseCustomID(id)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if jobID != "01J8ZQ4X9GVF" || idx != 7 {
		t.Fatalf("parsed %q/%d", jobID, idx)
	}
}

func TestParseCustomIDWithUnderscoreJobID(t *testing.T) {
	jobID, idx, err := ParseCustomID("job_with_underscores_12")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if jobID != "job_with_underscores" || idx != 12 {
		t.Fatalf("parsed %q/%d", jobID, idx)
	}
}

func TestParseCustomIDMalformed(t *testing.T) {
	for _, s := range []string{"", "noseparator", "_5", "job_", "job_x", "job_-1"} {
		if _, _, err := ParseCustomID(s); err == nil {
			t.Errorf("ParseCustomID(%q) should fail", s)
		}
	}
}

func TestBatchItemStatusIsTerminal(t *testing.T) {
	if !BatchItemStatusCompleted.IsTerminal() || !BatchItemStatusFailed.IsTerminal() {
		t.Fatal("completed and failed are terminal")
	}
	if BatchItemStatusPending.IsTerminal() || BatchItemStatusProcessing.IsTerminal() {
		t.Fatal("pending and processing are not terminal")
	}
}
