package enums

import "fmt"

// Visibility controls which viewers may read a piece of content.
type Visibility string

const (
	VisibilityPublic    Visibility = "public"
	VisibilityFollowers Visibility = "followers"
	VisibilityPrivate   Visibility = "private"
)

var validVisibilities = []Visibility{
	VisibilityPublic,
	VisibilityFollowers,
	VisibilityPrivate,
}

func (v Visibility) String() string {
	return string(v)
}

func (v Visibility) IsValid() bool {
	for _, candidate := range validVisibilities {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseVisibility converts raw input into a Visibility.
func ParseVisibility(value string) (Visibility, error) {
	for _, candidate := range validVisibilities {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid visibility %q", value)
}
