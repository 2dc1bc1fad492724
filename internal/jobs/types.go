// Package jobs defines the asynq task types shared by enqueuers and
// the worker.
package jobs

import "github.com/courtsight/shotcache/shots"

const TaskRefreshShots = "refresh:shots"

type RefreshShotsPayload struct {
	Subject    string `json:"subject"`
	Period     string `json:"period"`
	PeriodType string `json:"period_type"`
	Force      bool   `json:"force,omitempty"`
}

// Key converts the payload back to a fetch key.
func (p RefreshShotsPayload) Key() shots.Key {
	return shots.Key{
		Subject:    p.Subject,
		Period:     p.Period,
		PeriodType: shots.PeriodType(p.PeriodType),
	}
}

// PayloadFor builds the payload for a fetch key.
func PayloadFor(key shots.Key, force bool) RefreshShotsPayload {
	return RefreshShotsPayload{
		Subject:    key.Subject,
		Period:     key.Period,
		PeriodType: string(key.PeriodType),
		Force:      force,
	}
}
