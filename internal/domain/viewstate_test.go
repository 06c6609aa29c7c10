package domain

import (
	"errors"
	"testing"
	"time"
)

var viewNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func mustApply(t *testing.T, sess ViewSession, event ViewEvent) ViewSession {
	t.Helper()
	next, err := ApplyViewEvent(sess, event, viewNow)
	if err != nil {
		t.Fatalf("apply %s: %v", event.Kind, err)
	}
	return next
}

func TestViewSessionOpenWithSharedID(t *testing.T) {
	sess := NewViewSession("sess-1", viewNow)
	sess = mustApply(t, sess, ViewEvent{Kind: ViewEventOpen, TicketID: "tkt_abc"})
	if sess.Editor != EditorLoading || sess.TicketID != "tkt_abc" {
		t.Fatalf("expected loading tkt_abc, got %+v", sess)
	}

	sess = mustApply(t, sess, ViewEvent{Kind: ViewEventLoadSucceeded})
	if sess.Editor != EditorShowingResult || sess.TicketID != "tkt_abc" {
		t.Fatalf("expected showing-result, got %+v", sess)
	}
}

func TestViewSessionLoadNotFoundOffersReset(t *testing.T) {
	sess := NewViewSession("sess-1", viewNow)
	sess = mustApply(t, sess, ViewEvent{Kind: ViewEventOpen, TicketID: "missing-id"})
	sess = mustApply(t, sess, ViewEvent{Kind: ViewEventLoadNotFound})

	if sess.Editor != EditorShowingForm {
		t.Fatalf("not-found should land on the form, got %+v", sess)
	}
	if sess.TicketID != "" {
		t.Fatalf("shared id should be cleared, got %q", sess.TicketID)
	}
	if sess.LastError == "" {
		t.Fatal("expected a user-facing error message")
	}

	// Reset is always legal afterwards.
	sess = mustApply(t, sess, ViewEvent{Kind: ViewEventReset})
	if sess.Editor != EditorShowingForm || sess.LastError != "" {
		t.Fatalf("reset should clear error state, got %+v", sess)
	}
}

func TestViewSessionSubmitRoundTrip(t *testing.T) {
	sess := NewViewSession("sess-1", viewNow)
	sess = mustApply(t, sess, ViewEvent{Kind: ViewEventSubmit})
	if sess.Editor != EditorLoading {
		t.Fatalf("submit should show loading, got %+v", sess)
	}
	sess = mustApply(t, sess, ViewEvent{Kind: ViewEventResult, TicketID: "tkt_1"})
	if sess.Editor != EditorShowingResult || sess.TicketID != "tkt_1" {
		t.Fatalf("result should show the ticket, got %+v", sess)
	}

	sess = mustApply(t, sess, ViewEvent{Kind: ViewEventEdit})
	if sess.Editor != EditorEditingExisting || sess.TicketID != "tkt_1" {
		t.Fatalf("edit should keep the ticket id, got %+v", sess)
	}

	// Resubmission from editing is a full regeneration.
	sess = mustApply(t, sess, ViewEvent{Kind: ViewEventSubmit})
	if sess.Editor != EditorLoading {
		t.Fatalf("resubmit should show loading, got %+v", sess)
	}
}

func TestViewSessionRunFailedReturnsToForm(t *testing.T) {
	sess := NewViewSession("sess-1", viewNow)
	sess = mustApply(t, sess, ViewEvent{Kind: ViewEventSubmit})
	sess = mustApply(t, sess, ViewEvent{Kind: ViewEventRunFailed, Message: "model unavailable"})
	if sess.Editor != EditorShowingForm || sess.LastError != "model unavailable" {
		t.Fatalf("run failure should surface on the form, got %+v", sess)
	}
}

func TestViewSessionGallerySelectAdoptsRecord(t *testing.T) {
	sess := NewViewSession("sess-1", viewNow)
	sess = mustApply(t, sess, ViewEvent{Kind: ViewEventShowGallery})
	if sess.Screen != ViewScreenGallery {
		t.Fatalf("expected gallery screen, got %+v", sess)
	}
	sess = mustApply(t, sess, ViewEvent{Kind: ViewEventSelect, TicketID: "tkt_9"})
	if sess.Screen != ViewScreenEditor || sess.Editor != EditorShowingResult || sess.TicketID != "tkt_9" {
		t.Fatalf("select should adopt the record, got %+v", sess)
	}
}

func TestViewSessionIllegalTransitions(t *testing.T) {
	sess := NewViewSession("sess-1", viewNow)

	if _, err := ApplyViewEvent(sess, ViewEvent{Kind: ViewEventEdit}, viewNow); !errors.Is(err, ErrViewTransition) {
		t.Fatalf("edit from form should be illegal, got %v", err)
	}
	if _, err := ApplyViewEvent(sess, ViewEvent{Kind: ViewEventSelect, TicketID: "x"}, viewNow); !errors.Is(err, ErrViewTransition) {
		t.Fatalf("select outside gallery should be illegal, got %v", err)
	}
	if _, err := ApplyViewEvent(sess, ViewEvent{Kind: ViewEventLoadSucceeded}, viewNow); !errors.Is(err, ErrViewTransition) {
		t.Fatalf("load-succeeded without loading should be illegal, got %v", err)
	}

	// Failed transitions leave the session untouched.
	next, _ := ApplyViewEvent(sess, ViewEvent{Kind: ViewEventEdit}, viewNow)
	if next != sess {
		t.Fatalf("failed transition mutated the session: %+v", next)
	}
}
