package models

import "fmt"

// ReactionState is an actor's standing on a post.
type ReactionState string

const (
	StateNone     ReactionState = "none"
	StateLiked    ReactionState = "liked"
	StateDisliked ReactionState = "disliked"
)

// ReactionAction is a toggle request.
type ReactionAction string

const (
	ActionToggleLike    ReactionAction = "like"
	ActionToggleDislike ReactionAction = "dislike"
)

// ReactionDelta is the membership change for a single actor.
type ReactionDelta struct {
	AddLike       bool
	RemoveLike    bool
	AddDislike    bool
	RemoveDislike bool
}

// Empty reports whether the delta changes nothing.
func (d ReactionDelta) Empty() bool {
	return !d.AddLike && !d.RemoveLike && !d.AddDislike && !d.RemoveDislike
}

// Valid rejects deltas that would place the actor in both sets or that add
// and remove the same membership.
func (d ReactionDelta) Valid() bool {
	if d.AddLike && d.AddDislike {
		return false
	}
	if (d.AddLike && d.RemoveLike) || (d.AddDislike && d.RemoveDislike) {
		return false
	}
	return true
}

// Transition is one row of the toggle table.
type Transition struct {
	From    ReactionState
	Action  ReactionAction
	To      ReactionState
	Delta   ReactionDelta
	Retract []InteractionType
	Record  InteractionType
	Message string
}

// NextReaction resolves a toggle from the actor's current state.
func NextReaction(from ReactionState, action ReactionAction) (Transition, error) {
	t := Transition{From: from, Action: action}
	switch action {
	case ActionToggleLike:
		switch from {
		case StateNone:
			t.To = StateLiked
			t.Delta = ReactionDelta{AddLike: true}
			t.Record = InteractionLike
			t.Message = "Post liked"
		case StateLiked:
			t.To = StateNone
			t.Delta = ReactionDelta{RemoveLike: true}
			t.Retract = []InteractionType{InteractionLike}
			t.Message = "Like removed"
		case StateDisliked:
			t.To = StateLiked
			t.Delta = ReactionDelta{RemoveDislike: true, AddLike: true}
			t.Retract = []InteractionType{InteractionDislike}
			t.Record = InteractionLike
			t.Message = "Post liked"
		default:
			return Transition{}, fmt.Errorf("unknown reaction state %q", from)
		}
	case ActionToggleDislike:
		switch from {
		case StateNone:
			t.To = StateDisliked
			t.Delta = ReactionDelta{AddDislike: true}
			t.Record = InteractionDislike
			t.Message = "Post disliked"
		case StateDisliked:
			t.To = StateNone
			t.Delta = ReactionDelta{RemoveDislike: true}
			t.Retract = []InteractionType{InteractionDislike}
			t.Message = "Dislike removed"
		case StateLiked:
			t.To = StateDisliked
			t.Delta = ReactionDelta{RemoveLike: true, AddDislike: true}
			t.Retract = []InteractionType{InteractionLike}
			t.Record = InteractionDislike
			t.Message = "Post disliked"
		default:
			return Transition{}, fmt.Errorf("unknown reaction state %q", from)
		}
	default:
		return Transition{}, fmt.Errorf("unknown reaction action %q", action)
	}
	return t, nil
}
