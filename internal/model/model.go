package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Label is the ground truth (or predicted) veracity of a news item.
type Label int8

const (
	Legitimate Label = iota
	Fake
)

// Labels lists every label in confusion matrix order.
var Labels = [...]Label{Legitimate, Fake}

func (l Label) String() string {
	switch l {
	case Legitimate:
		return "legitimate"
	case Fake:
		return "fake"
	default:
		return fmt.Sprintf("label(%d)", int8(l))
	}
}

func (l Label) Valid() bool {
	return l == Legitimate || l == Fake
}

// ParseLabel accepts the stored classification values. "notFake" is the
// value used by the original crawled corpus.
func ParseLabel(s string) (Label, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "legitimate", "notfake", "not_fake", "real":
		return Legitimate, nil
	case "fake":
		return Fake, nil
	default:
		return 0, fmt.Errorf("unknown classification %q", s)
	}
}

type NewsItem struct {
	ID    string
	Label Label
}

// SharingEvent links a news item to an account that posted or reposted it.
type SharingEvent struct {
	NewsID string
	UserID string
}

type PostKind uint8

const (
	Share PostKind = iota
	Reshare
)

func (k PostKind) String() string {
	if k == Reshare {
		return "reshare"
	}
	return "share"
}

func ParsePostKind(s string) (PostKind, error) {
	switch s {
	case "share":
		return Share, nil
	case "reshare":
		return Reshare, nil
	default:
		return 0, fmt.Errorf("unknown post kind %q", s)
	}
}

// Post is a single share of a news item. A reshare references the post it
// reshared; a primary share has no reference.
type Post struct {
	ID        string
	NewsID    string
	UserID    string
	Kind      PostKind
	ReshareOf string
	CreatedAt time.Time // when the post was published
}

func (p Post) Validate() error {
	if p.ID == "" || p.NewsID == "" || p.UserID == "" {
		return fmt.Errorf("post %q: id, news id and user id are required", p.ID)
	}
	switch p.Kind {
	case Share:
		if p.ReshareOf != "" {
			return fmt.Errorf("post %q: a share cannot reference another post", p.ID)
		}
	case Reshare:
		if p.ReshareOf == "" {
			return fmt.Errorf("post %q: a reshare must reference the original post", p.ID)
		}
	default:
		return fmt.Errorf("post %q: unknown kind %d", p.ID, p.Kind)
	}
	return nil
}

func (p Post) Event() SharingEvent {
	return SharingEvent{NewsID: p.NewsID, UserID: p.UserID}
}

// UserParameters is the smoothed opinion of one account, derived from the
// labels of the training news it shared.
type UserParameters struct {
	UserID              string
	Alpha               float64
	AlphaComplement     float64
	Beta                float64
	BetaComplement      float64
	ProbAlpha           float64
	ProbAlphaComplement float64
	ProbBeta            float64
	ProbBetaComplement  float64
}

type TrainingRun struct {
	ID                   uuid.UUID
	Smoothing            float64
	Omega                float64
	TestFraction         float64
	Seed                 int64
	CountLegitimateTrain int
	CountFakeTrain       int
	TrainSize            int
	TestSize             int
	Users                int
	Accuracy             float64
	CreatedAt            time.Time
}
