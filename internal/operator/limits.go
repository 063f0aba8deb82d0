package operator

import "golang.org/x/sync/semaphore"

// Default concurrency caps.
const (
	DefaultChatLimit  = 30
	DefaultBasicLimit = 100
)

// Limits caps concurrent calls per call type. One Limits value is shared by
// an engine and every nested engine it launches.
type Limits struct {
	Chat  *semaphore.Weighted
	Basic *semaphore.Weighted
}

// NewLimits returns limits admitting chat chat calls and basic basic calls.
func NewLimits(chat, basic int64) *Limits {
	return &Limits{
		Chat:  semaphore.NewWeighted(chat),
		Basic: semaphore.NewWeighted(basic),
	}
}

// DefaultLimits returns the default caps.
func DefaultLimits() *Limits {
	return NewLimits(DefaultChatLimit, DefaultBasicLimit)
}
