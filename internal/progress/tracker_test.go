package progress

import "testing"

func TestStartSingleFlight(t *testing.T) {
	tracker := NewTracker()

	runID, err := tracker.Start(KindDiscovery, 1, StatusSearching)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if runID == "" {
		t.Fatal("expected a run id")
	}

	if _, err := tracker.Start(KindDiscovery, 1, StatusSearching); err == nil {
		t.Error("second start of an active run should fail")
	}

	// Other kinds and projects are independent.
	if _, err := tracker.Start(KindGeneration, 1, StatusRunning); err != nil {
		t.Errorf("different kind should start: %v", err)
	}
	if _, err := tracker.Start(KindDiscovery, 2, StatusSearching); err != nil {
		t.Errorf("different project should start: %v", err)
	}
}

func TestStartAfterFinish(t *testing.T) {
	tracker := NewTracker()

	first, _ := tracker.Start(KindDiscovery, 1, StatusSearching)
	tracker.Complete(KindDiscovery, 1)

	second, err := tracker.Start(KindDiscovery, 1, StatusSearching)
	if err != nil {
		t.Fatalf("restart after completion should work: %v", err)
	}
	if second == first {
		t.Error("expected a fresh run id")
	}

	tracker.Fail(KindDiscovery, 1, "boom")
	if _, err := tracker.Start(KindDiscovery, 1, StatusSearching); err != nil {
		t.Errorf("restart after failure should work: %v", err)
	}
}

func TestCountersAndErrors(t *testing.T) {
	tracker := NewTracker()
	tracker.Start(KindSubmission, 1, StatusRunning)

	tracker.Set(KindSubmission, 1, "total_comments", 3)
	tracker.Add(KindSubmission, 1, "comments_submitted", 1)
	tracker.Add(KindSubmission, 1, "comments_submitted", 1)
	tracker.AddError(KindSubmission, 1, "comment 7: marketplace down")
	tracker.Fail(KindSubmission, 1, "run aborted")

	rec := tracker.Get(KindSubmission, 1)
	if rec == nil {
		t.Fatal("expected record")
	}
	if rec.Counters["total_comments"] != 3 || rec.Counters["comments_submitted"] != 2 {
		t.Errorf("unexpected counters: %v", rec.Counters)
	}
	if len(rec.Errors) != 1 {
		t.Errorf("expected 1 error, got %v", rec.Errors)
	}
	if rec.Status != StatusFailed || rec.Error != "run aborted" {
		t.Errorf("unexpected terminal state: %s %q", rec.Status, rec.Error)
	}
	if rec.FinishedAt == nil {
		t.Error("expected finished timestamp")
	}
}

func TestGetReturnsSnapshot(t *testing.T) {
	tracker := NewTracker()
	tracker.Start(KindDiscovery, 1, StatusSearching)
	tracker.Set(KindDiscovery, 1, "posts_stored", 1)

	snapshot := tracker.Get(KindDiscovery, 1)
	snapshot.Counters["posts_stored"] = 99

	if tracker.Get(KindDiscovery, 1).Counters["posts_stored"] != 1 {
		t.Error("mutating a snapshot must not affect the tracker")
	}
}

func TestGetUnknownRun(t *testing.T) {
	tracker := NewTracker()
	if rec := tracker.Get(KindDiscovery, 42); rec != nil {
		t.Errorf("expected nil for never-started run, got %+v", rec)
	}
}
