package composer

import "time"

// Field names an editable composer field
type Field string

const (
	FieldSubject Field = "subject"
	FieldBody    Field = "body"
)

// State is the composer's finite state record. It is only ever changed by
// Reduce.
type State struct {
	Subject           string
	Body              string
	HasUnsavedChanges bool
	IsDraftSaving     bool
	IsSending         bool
	LastSaved         *time.Time
	Err               error
	Open              bool
	FromGeneration    bool
}

// Email returns the current subject and body
func (s State) Email() Email {
	return Email{Subject: s.Subject, Body: s.Body}
}

// Event is an input to Reduce
type Event interface {
	isEvent()
}

// Opened seeds the composer, either from a stored draft or from generated
// content. Generated content counts as already saved.
type Opened struct {
	Email          Email
	FromGeneration bool
}

// Edited replaces one field with a new value
type Edited struct {
	Field Field
	Value string
}

type SaveStarted struct{}

// SaveSucceeded records a completed draft save of Saved at At
type SaveSucceeded struct {
	Saved Email
	At    time.Time
}

type SaveFailed struct {
	Err error
}

type SendStarted struct{}

type SendSucceeded struct {
	At time.Time
}

type SendFailed struct {
	Err error
}

type Closed struct{}

func (Opened) isEvent()        {}
func (Edited) isEvent()        {}
func (SaveStarted) isEvent()   {}
func (SaveSucceeded) isEvent() {}
func (SaveFailed) isEvent()    {}
func (SendStarted) isEvent()   {}
func (SendSucceeded) isEvent() {}
func (SendFailed) isEvent()    {}
func (Closed) isEvent()        {}

// Reduce returns the state that results from applying ev to s. It has no
// side effects.
func Reduce(s State, ev Event) State {
	switch e := ev.(type) {
	case Opened:
		return State{
			Subject:        e.Email.Subject,
			Body:           e.Email.Body,
			Open:           true,
			FromGeneration: e.FromGeneration,
		}

	case Edited:
		if !s.Open {
			return s
		}
		switch e.Field {
		case FieldSubject:
			s.Subject = e.Value
		case FieldBody:
			s.Body = e.Value
		default:
			return s
		}
		s.HasUnsavedChanges = true
		return s

	case SaveStarted:
		s.IsDraftSaving = true
		s.Err = nil
		return s

	case SaveSucceeded:
		s.IsDraftSaving = false
		at := e.At
		s.LastSaved = &at
		// Edits made while the save was in flight stay unsaved
		if s.Email() == e.Saved {
			s.HasUnsavedChanges = false
		}
		return s

	case SaveFailed:
		s.IsDraftSaving = false
		s.Err = e.Err
		return s

	case SendStarted:
		s.IsSending = true
		s.Err = nil
		return s

	case SendSucceeded:
		at := e.At
		return State{LastSaved: &at}

	case SendFailed:
		s.IsSending = false
		s.Err = e.Err
		return s

	case Closed:
		return State{}
	}
	return s
}
