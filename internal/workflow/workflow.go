// Package workflow implements the four-state triage workflow for transient
// objects. An object's state is stored as four independent flags (inbox,
// snoozed, follow, finish_follow); the single displayed tag is derived from
// them with a fixed priority. All transitions in the application go through
// this package so the flag combinations stay consistent.
package workflow

import "fmt"

// Tag is the derived workflow state of a transient object.
type Tag string

const (
	TagObject   Tag = "object"   // inbox, initial state
	TagFollowup Tag = "followup" // under active follow-up
	TagFinished Tag = "finished" // follow-up completed
	TagSnoozed  Tag = "snoozed"  // parked, hidden from the inbox
	TagClear    Tag = "clear"    // pseudo-tag: reset follow flags only
)

// Flags holds the raw workflow flags as stored on a transient object.
type Flags struct {
	Inbox        bool
	Snoozed      bool
	Follow       bool
	FinishFollow bool
}

// EffectiveTag derives the single displayed tag from the raw flags.
// Priority: finished > followup > snoozed > object. This is the only
// place in the codebase that encodes the priority order.
func EffectiveTag(f Flags) Tag {
	switch {
	case f.FinishFollow:
		return TagFinished
	case f.Follow:
		return TagFollowup
	case f.Snoozed:
		return TagSnoozed
	default:
		return TagObject
	}
}

// Initial returns the flag state assigned to a newly imported object.
func Initial() Flags {
	return Flags{Inbox: true}
}

// Apply transitions the flags to the given tag and returns the new state.
// Transitions are idempotent: applying the same tag twice yields the same
// flags as applying it once.
//
// Snoozing an object that is under active follow-up also marks the
// follow-up as finished. This is deliberate: parking a followed target
// implies the follow-up campaign on it is over.
func Apply(f Flags, tag Tag) (Flags, error) {
	switch tag {
	case TagObject:
		f.Inbox = true
		f.Snoozed = false
	case TagFollowup:
		f.Follow = true
		f.Snoozed = false
		f.FinishFollow = false
		f.Inbox = true
	case TagFinished:
		f.FinishFollow = true
		f.Follow = false
	case TagSnoozed:
		if f.Follow {
			f.FinishFollow = true
		}
		f.Snoozed = true
		f.Inbox = false
		f.Follow = false
	case TagClear:
		f.Follow = false
		f.FinishFollow = false
	default:
		return f, fmt.Errorf("unknown workflow tag: %q", tag)
	}
	return f, nil
}

// ValidTags lists the tags accepted by Apply, in display order.
func ValidTags() []Tag {
	return []Tag{TagObject, TagFollowup, TagFinished, TagSnoozed, TagClear}
}

// IsValid reports whether tag names a real workflow state or the clear action.
func IsValid(tag Tag) bool {
	switch tag {
	case TagObject, TagFollowup, TagFinished, TagSnoozed, TagClear:
		return true
	}
	return false
}

// Validate checks that the flag combination is one of the legal states
// from the workflow table. Combinations outside the table (for example
// snoozed together with an active follow) indicate drift and are reported
// rather than silently classified.
func Validate(f Flags) error {
	switch {
	case f.FinishFollow && !f.Follow:
		// finished: inbox and snoozed are both legal in this state
		return nil
	case f.Follow && !f.FinishFollow && f.Inbox && !f.Snoozed:
		return nil // followup
	case f.Snoozed && !f.Inbox && !f.Follow:
		return nil // snoozed (finish_follow may be either value, caught above)
	case f.Inbox && !f.Snoozed && !f.Follow && !f.FinishFollow:
		return nil // object
	}
	return fmt.Errorf("inconsistent workflow flags: inbox=%t snoozed=%t follow=%t finish_follow=%t",
		f.Inbox, f.Snoozed, f.Follow, f.FinishFollow)
}
