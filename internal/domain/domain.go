package domain

import "time"

// Object is a catalog entry under resolution. Empty strings mean absent.
type Object struct {
	IsNumbered         bool   `json:"is_numbered" yaml:"is_numbered"`
	PermanentID        string `json:"permanent_id,omitempty" yaml:"permanent_id,omitempty"`
	ProvisionalID      string `json:"provisional_id,omitempty" yaml:"provisional_id,omitempty"`
	CrossProvisionalID string `json:"cross_provisional_id,omitempty" yaml:"cross_provisional_id,omitempty"`

	// Orbit elements from the catalog; nil when unknown.
	H    *float64 `json:"h,omitempty" yaml:"h,omitempty"`
	Q    *float64 `json:"q,omitempty" yaml:"q,omitempty"`
	E    *float64 `json:"e,omitempty" yaml:"e,omitempty"`
	Incl *float64 `json:"i,omitempty" yaml:"i,omitempty"`
}

// Observation is one astrometric record from the observation store.
type Observation struct {
	ID            int64     `json:"id"`
	ObsID         string    `json:"obsid,omitempty"`
	PermanentID   string    `json:"permanent_id,omitempty"`
	ProvisionalID string    `json:"provisional_id,omitempty"`
	TrackletID    string    `json:"tracklet_id,omitempty"`
	Time          time.Time `json:"time"`
	RA            float64   `json:"ra_deg"`
	Dec           float64   `json:"dec_deg"`
	Mag           *float64  `json:"mag,omitempty"`
	// Band is nil when the store has no band for the observation, which is
	// distinct from a blank band code.
	Band      *string `json:"band,omitempty"`
	Station   string  `json:"station"`
	Discovery bool    `json:"discovery"`
}

// Before orders observations by time, then by store id.
func (o Observation) Before(other Observation) bool {
	if !o.Time.Equal(other.Time) {
		return o.Time.Before(other.Time)
	}
	return o.ID < other.ID
}

type KeyType string

const (
	KeyPermanent        KeyType = "permanent"
	KeyProvisional      KeyType = "provisional"
	KeyCrossProvisional KeyType = "cross_provisional"
)

// CandidateKey is one alternate key under which an object's observations may be filed.
type CandidateKey struct {
	Type  KeyType `json:"type"`
	Value string  `json:"value"`
}

func (k CandidateKey) String() string {
	return string(k.Type) + ":" + k.Value
}

type Run struct {
	ID         string  `json:"id"`
	StartedAt  string  `json:"started_at"`
	FinishedAt *string `json:"finished_at,omitempty"`
	Status     string  `json:"status"`
	Objects    int     `json:"objects"`
	Resolved   int     `json:"resolved"`
	Unresolved int     `json:"unresolved"`
	Failed     int     `json:"failed"`
}

type RunEvent struct {
	ID          int64  `json:"id"`
	RunID       string `json:"run_id"`
	TS          string `json:"ts"`
	Type        string `json:"type"`
	Designation string `json:"designation,omitempty"`
	Payload     string `json:"payload_json"`
}
