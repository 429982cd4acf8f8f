package domain

import "time"

// SessionStatus tracks the trust level of a persisted session record.
type SessionStatus string

const (
	SessionUnknown   SessionStatus = "unknown"
	SessionValid     SessionStatus = "valid"
	SessionExpired   SessionStatus = "expired"
	SessionCorrupted SessionStatus = "corrupted"
)

// SessionRecord is the persisted authentication state for one external
// service. CredentialBlob is opaque serialized cookie/token state and must
// never be logged.
type SessionRecord struct {
	ServiceID       string        `json:"service_id"`
	CredentialBlob  []byte        `json:"credential_blob"`
	ExpiresAt       *time.Time    `json:"expires_at,omitempty"`
	LastValidatedAt time.Time     `json:"last_validated_at"`
	Status          SessionStatus `json:"status"`
}

// Expired reports whether the record carries expiry metadata that has
// already passed. Records without metadata are never proactively expired.
func (r *SessionRecord) Expired(now time.Time) bool {
	return r.ExpiresAt != nil && r.ExpiresAt.Before(now)
}

// CollectionTarget is one seller to be scraped, produced by the listing
// step. TotalPrice is the aggregate winning-bid value computed upstream and
// is checked against the admission threshold before a task is scheduled.
type CollectionTarget struct {
	EntityID   string
	Name       string
	Locator    string
	TotalPrice int
}

// SubRecord is one extracted item (product listing) belonging to a target.
type SubRecord struct {
	Label string
}

// Classification is the three-valued outcome of the title classifier.
type Classification string

const (
	ClassPositive Classification = "positive"
	ClassNegative Classification = "negative"
	ClassUnknown  Classification = "unknown"
)

// Japanese export labels for classification values. The intermediate
// checkpoint always writes LabelPending.
const (
	LabelPending  = "未判定"
	LabelPositive = "はい"
	LabelNegative = "いいえ"
)

// Label maps a classification to its export label.
func (c Classification) Label() string {
	switch c {
	case ClassPositive:
		return LabelPositive
	case ClassNegative:
		return LabelNegative
	default:
		return LabelPending
	}
}

// ParseLabel recovers a classification from an export label. The pending
// label parses back to ClassUnknown.
func ParseLabel(label string) Classification {
	switch label {
	case LabelPositive:
		return ClassPositive
	case LabelNegative:
		return ClassNegative
	default:
		return ClassUnknown
	}
}

// CollectionResult is the outcome of one entity collection task.
// SkippedCount records how many sub-records were left unexamined after an
// early-terminating positive classification.
type CollectionResult struct {
	EntityID       string
	Name           string
	Locator        string
	SubRecords     []SubRecord
	Classification Classification
	Partial        bool
	SkippedCount   int
}

// CollectionFailure records an entity that produced no result.
type CollectionFailure struct {
	EntityID  string
	ErrorKind ErrorKind
	Err       error
}

// CollectionRun aggregates one orchestrator invocation. Every admitted
// target appears in exactly one of Results or Failures.
type CollectionRun struct {
	Results    []CollectionResult
	Failures   []CollectionFailure
	StartedAt  time.Time
	FinishedAt time.Time
}

// Summary holds the per-classification counts for a finished run.
type Summary struct {
	Positive int
	Negative int
	Unknown  int
	Failed   int
}

// Summarize tallies the run's outcomes.
func (r *CollectionRun) Summarize() Summary {
	s := Summary{Failed: len(r.Failures)}
	for _, res := range r.Results {
		switch res.Classification {
		case ClassPositive:
			s.Positive++
		case ClassNegative:
			s.Negative++
		default:
			s.Unknown++
		}
	}
	return s
}
