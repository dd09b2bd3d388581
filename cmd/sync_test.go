package cmd

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/kozaktomas/face-gallery/internal/dataset"
)

func TestPrintSyncReport(t *testing.T) {
	report := &dataset.Report{
		Added:     []string{"alice", "bob"},
		Processed: 4,
		Existing:  1,
		Skipped: []dataset.Skip{
			{Identity: "carol", File: "1.jpg", Reason: dataset.ReasonNoFaceDetected},
		},
		Incomplete: []string{"carol"},
		Duration:   1500 * time.Millisecond,
	}

	var buf bytes.Buffer
	printSyncReport(&buf, report, 3)
	out := buf.String()

	for _, want := range []string{
		"Sync complete in 1.5s",
		"Added:      2\n",
		"Existing:   1\n",
		"Processed:  4 images",
		"Skipped:    1 images",
		"In gallery: 3\n",
		"New: alice, bob\n",
		"carol/1.jpg: " + string(dataset.ReasonNoFaceDetected),
		"No usable face: carol\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintSyncReport_NothingAdded(t *testing.T) {
	var buf bytes.Buffer
	printSyncReport(&buf, &dataset.Report{Existing: 2}, 2)
	out := buf.String()

	if !strings.Contains(out, "Added:      0\n") {
		t.Errorf("expected zero added count:\n%s", out)
	}
	if strings.Contains(out, "New:") || strings.Contains(out, "No usable face") {
		t.Errorf("unexpected identity lines:\n%s", out)
	}
}
