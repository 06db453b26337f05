package store

import "time"

// Auth represents OAuth tokens for Strava API access
type Auth struct {
	AthleteID    int64     `db:"athlete_id"`
	AccessToken  string    `db:"access_token"`
	RefreshToken string    `db:"refresh_token"`
	ExpiresAt    time.Time `db:"expires_at"`
}

// FitnessTrend is one persisted day of the training-load trend
type FitnessTrend struct {
	Date   string  `db:"date"` // YYYY-MM-DD
	CTL    float64 `db:"ctl"`
	ATL    float64 `db:"atl"`
	TSB    float64 `db:"tsb"`
	Source string  `db:"source"`
}
