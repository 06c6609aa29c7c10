package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ViewScreen is the top-level screen of a client session.
type ViewScreen string

const (
	ViewScreenEditor  ViewScreen = "editor"
	ViewScreenGallery ViewScreen = "gallery"
)

// EditorState is the editor's substate.
type EditorState string

const (
	EditorShowingForm     EditorState = "showing-form"
	EditorLoading         EditorState = "loading"
	EditorShowingResult   EditorState = "showing-result"
	EditorEditingExisting EditorState = "editing-existing"
)

// ViewEventKind enumerates the events that drive a view session.
type ViewEventKind string

const (
	// ViewEventOpen initialises a session, optionally naming a shared ticket id.
	ViewEventOpen ViewEventKind = "open"
	// ViewEventLoadSucceeded reports a successful load of the shared ticket.
	ViewEventLoadSucceeded ViewEventKind = "load-succeeded"
	// ViewEventLoadNotFound reports the shared id was absent.
	ViewEventLoadNotFound ViewEventKind = "load-not-found"
	// ViewEventLoadFailed reports a transport failure during the load.
	ViewEventLoadFailed ViewEventKind = "load-failed"
	// ViewEventSubmit starts a generation run from the form.
	ViewEventSubmit ViewEventKind = "submit"
	// ViewEventResult reports a finished run, carrying the run's ticket id when saved.
	ViewEventResult ViewEventKind = "result"
	// ViewEventRunFailed reports a failed run; the form is shown again with the error.
	ViewEventRunFailed ViewEventKind = "run-failed"
	// ViewEventEdit re-enters the form pre-populated with the current ticket.
	ViewEventEdit ViewEventKind = "edit"
	// ViewEventReset discards all session ticket state and clears the shared id.
	ViewEventReset ViewEventKind = "reset"
	// ViewEventShowGallery switches to the gallery screen.
	ViewEventShowGallery ViewEventKind = "show-gallery"
	// ViewEventSelect adopts a gallery record wholesale and shows the result.
	ViewEventSelect ViewEventKind = "select"
)

// ViewEvent is an input to the view-state machine.
type ViewEvent struct {
	Kind     ViewEventKind
	TicketID string
	Message  string
}

// ViewSession is the explicit state-machine value that replaces ad-hoc
// boolean flags: the enumerated screen/editor pair makes illegal combinations
// unrepresentable.
type ViewSession struct {
	ID        string
	Screen    ViewScreen
	Editor    EditorState
	TicketID  string
	LastError string
	// PendingUnlockID remembers which ticket a checkout redirect was issued
	// for, so a payment return without an explicit id can still be verified.
	// It is owned by the unlock flow and survives view transitions.
	PendingUnlockID string
	UpdatedAt       time.Time
}

// ErrViewTransition reports an event that is not legal in the current state.
var ErrViewTransition = errors.New("view: illegal transition")

// NewViewSession returns a fresh session on the editor form.
func NewViewSession(id string, now time.Time) ViewSession {
	return ViewSession{
		ID:        strings.TrimSpace(id),
		Screen:    ViewScreenEditor,
		Editor:    EditorShowingForm,
		UpdatedAt: now.UTC(),
	}
}

// ApplyViewEvent advances the session by one event and returns the new value.
// The input session is never mutated.
func ApplyViewEvent(sess ViewSession, event ViewEvent, now time.Time) (ViewSession, error) {
	next := sess
	next.LastError = ""
	next.UpdatedAt = now.UTC()
	ticketID := strings.TrimSpace(event.TicketID)

	switch event.Kind {
	case ViewEventOpen:
		next.Screen = ViewScreenEditor
		if ticketID == "" {
			next.Editor = EditorShowingForm
			next.TicketID = ""
			return next, nil
		}
		next.Editor = EditorLoading
		next.TicketID = ticketID
		return next, nil

	case ViewEventLoadSucceeded:
		if sess.Editor != EditorLoading {
			return sess, transitionError(sess, event)
		}
		next.Editor = EditorShowingResult
		if ticketID != "" {
			next.TicketID = ticketID
		}
		return next, nil

	case ViewEventLoadNotFound, ViewEventLoadFailed:
		if sess.Editor != EditorLoading {
			return sess, transitionError(sess, event)
		}
		next.Editor = EditorShowingForm
		next.TicketID = ""
		next.LastError = strings.TrimSpace(event.Message)
		if next.LastError == "" {
			if event.Kind == ViewEventLoadNotFound {
				next.LastError = "That ticket could not be found."
			} else {
				next.LastError = "Could not load the ticket. Please try again."
			}
		}
		return next, nil

	case ViewEventSubmit:
		if sess.Screen != ViewScreenEditor {
			return sess, transitionError(sess, event)
		}
		if sess.Editor != EditorShowingForm && sess.Editor != EditorEditingExisting && sess.Editor != EditorShowingResult {
			return sess, transitionError(sess, event)
		}
		next.Editor = EditorLoading
		return next, nil

	case ViewEventResult:
		if sess.Editor != EditorLoading {
			return sess, transitionError(sess, event)
		}
		next.Editor = EditorShowingResult
		next.TicketID = ticketID
		return next, nil

	case ViewEventRunFailed:
		if sess.Editor != EditorLoading {
			return sess, transitionError(sess, event)
		}
		next.Editor = EditorShowingForm
		next.LastError = strings.TrimSpace(event.Message)
		if next.LastError == "" {
			next.LastError = "Generation failed. Please try again."
		}
		return next, nil

	case ViewEventEdit:
		if sess.Editor != EditorShowingResult {
			return sess, transitionError(sess, event)
		}
		next.Screen = ViewScreenEditor
		next.Editor = EditorEditingExisting
		return next, nil

	case ViewEventReset:
		next.Screen = ViewScreenEditor
		next.Editor = EditorShowingForm
		next.TicketID = ""
		return next, nil

	case ViewEventShowGallery:
		next.Screen = ViewScreenGallery
		return next, nil

	case ViewEventSelect:
		if sess.Screen != ViewScreenGallery {
			return sess, transitionError(sess, event)
		}
		if ticketID == "" {
			return sess, fmt.Errorf("%w: select requires a ticket id", ErrViewTransition)
		}
		next.Screen = ViewScreenEditor
		next.Editor = EditorShowingResult
		next.TicketID = ticketID
		return next, nil
	}

	return sess, fmt.Errorf("%w: unknown event %q", ErrViewTransition, event.Kind)
}

func transitionError(sess ViewSession, event ViewEvent) error {
	return fmt.Errorf("%w: %s not allowed in %s/%s", ErrViewTransition, event.Kind, sess.Screen, sess.Editor)
}
