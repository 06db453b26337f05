package strava

import "time"

// Activity represents a Strava activity summary from the API
type Activity struct {
	ID                 int64     `json:"id"`
	Athlete            Athlete   `json:"athlete"`
	Name               string    `json:"name"`
	Type               string    `json:"type"`
	SportType          string    `json:"sport_type"`
	StartDate          time.Time `json:"start_date"`
	Timezone           string    `json:"timezone"`
	Distance           float64   `json:"distance"`             // meters
	MovingTime         int       `json:"moving_time"`          // seconds
	ElapsedTime        int       `json:"elapsed_time"`         // seconds
	TotalElevationGain float64   `json:"total_elevation_gain"` // meters
	AverageHeartrate   float64   `json:"average_heartrate"`    // bpm
	MaxHeartrate       float64   `json:"max_heartrate"`        // bpm
	AverageWatts       float64   `json:"average_watts"`
	DeviceWatts        bool      `json:"device_watts"`
	PerceivedExertion  *float64  `json:"perceived_exertion"` // 1-10, null unless entered
	SufferScore        int       `json:"suffer_score"`
	HasHeartrate       bool      `json:"has_heartrate"`
	ExternalID         string    `json:"external_id"` // upload file name, shared with other platforms
}

// Athlete represents a Strava athlete (minimal info in activity response)
type Athlete struct {
	ID int64 `json:"id"`
}

// Duration returns moving time, falling back to elapsed time
func (a Activity) Duration() time.Duration {
	secs := a.MovingTime
	if secs <= 0 {
		secs = a.ElapsedTime
	}
	return time.Duration(secs) * time.Second
}

// ActivityType returns the sport type, falling back to the legacy type
func (a Activity) ActivityType() string {
	if a.SportType != "" {
		return a.SportType
	}
	return a.Type
}
