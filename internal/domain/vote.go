package domain

import "fmt"

// Vote is a user's vote on a post. The zero value means no vote.
type Vote string

const (
	VoteNone Vote = ""
	VoteUp   Vote = "up"
	VoteDown Vote = "down"
)

// ParseDirection converts a requested vote direction. Only "up" and "down"
// are directions; clearing a vote is done by repeating the current one.
func ParseDirection(s string) (Vote, error) {
	switch Vote(s) {
	case VoteUp, VoteDown:
		return Vote(s), nil
	default:
		return VoteNone, fmt.Errorf("invalid vote direction %q", s)
	}
}

// ApplyVote computes the optimistic score and vote after the user presses
// direction while holding current. A user holds at most one vote per post:
// repeating a vote clears it and switching direction moves the score by two.
func ApplyVote(votes int, current, direction Vote) (int, Vote) {
	step := 1
	if direction == VoteDown {
		step = -1
	}

	switch current {
	case direction:
		return votes - step, VoteNone
	case VoteNone:
		return votes + step, direction
	default:
		return votes + 2*step, direction
	}
}
