package domain

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// DateLayout is the canonical day format used in keys and records.
const DateLayout = "2006-01-02"

// Level identifies where an entity sits in the ads hierarchy.
type Level string

const (
	LevelAccount  Level = "account"
	LevelCampaign Level = "campaign"
	LevelAdset    Level = "adset"
	LevelAd       Level = "ad"
)

// AllLevels returns the four levels from the top of the hierarchy down.
func AllLevels() []Level {
	return []Level{LevelAccount, LevelCampaign, LevelAdset, LevelAd}
}

// Valid reports whether l is one of the known levels.
func (l Level) Valid() bool {
	switch l {
	case LevelAccount, LevelCampaign, LevelAdset, LevelAd:
		return true
	}
	return false
}

// Rank orders levels top-down; unknown levels sort last.
func (l Level) Rank() int {
	switch l {
	case LevelAccount:
		return 0
	case LevelCampaign:
		return 1
	case LevelAdset:
		return 2
	case LevelAd:
		return 3
	}
	return 4
}

// ChildLevel returns the level directly below l, or "" for ads.
func (l Level) ChildLevel() Level {
	switch l {
	case LevelAccount:
		return LevelCampaign
	case LevelCampaign:
		return LevelAdset
	case LevelAdset:
		return LevelAd
	}
	return ""
}

// EntityKey identifies an entity within a client.
type EntityKey struct {
	ClientID string `json:"client_id"`
	Level    Level  `json:"level"`
	EntityID string `json:"entity_id"`
}

func (k EntityKey) String() string {
	return k.ClientID + "/" + string(k.Level) + "/" + k.EntityID
}

// Less orders keys by client, level rank, then entity ID.
func (k EntityKey) Less(o EntityKey) bool {
	if k.ClientID != o.ClientID {
		return k.ClientID < o.ClientID
	}
	if k.Level != o.Level {
		return k.Level.Rank() < o.Level.Rank()
	}
	return k.EntityID < o.EntityID
}

// ErrMalformedRecord marks a daily record that cannot be used.
var ErrMalformedRecord = errors.New("malformed daily record")

// DailyRecord is one day of performance for one entity as synced from the
// ads platform. Frequency and DailyBudget are pointers because the platform
// omits them on days without delivery.
type DailyRecord struct {
	Key       EntityKey `json:"key"`
	Date      time.Time `json:"date"`
	Name      string    `json:"name,omitempty"`
	ParentID  string    `json:"parent_id,omitempty"`
	ConceptID string    `json:"concept_id,omitempty"`

	Spend           float64 `json:"spend"`
	Impressions     int64   `json:"impressions"`
	Clicks          int64   `json:"clicks"`
	Purchases       float64 `json:"purchases"`
	ConversionValue float64 `json:"conversion_value"`
	VideoViews3s    int64   `json:"video_views_3s"`

	// Funnel events below purchase.
	ViewContent      float64 `json:"view_content"`
	AddToCart        float64 `json:"add_to_cart"`
	InitiateCheckout float64 `json:"initiate_checkout"`

	Frequency   *float64 `json:"frequency,omitempty"`
	DailyBudget *float64 `json:"daily_budget,omitempty"`
}

// Day returns the record date truncated to a UTC day.
func (r DailyRecord) Day() time.Time { return Day(r.Date) }

// Validate rejects records that would corrupt aggregates.
func (r DailyRecord) Validate() error {
	switch {
	case r.Key.ClientID == "":
		return fmt.Errorf("%w: missing client id", ErrMalformedRecord)
	case r.Key.EntityID == "":
		return fmt.Errorf("%w: missing entity id", ErrMalformedRecord)
	case !r.Key.Level.Valid():
		return fmt.Errorf("%w: unknown level %q", ErrMalformedRecord, r.Key.Level)
	case r.Date.IsZero():
		return fmt.Errorf("%w: missing date for %s", ErrMalformedRecord, r.Key)
	case r.Spend < 0 || r.Impressions < 0 || r.Clicks < 0 || r.Purchases < 0 ||
		r.ConversionValue < 0 || r.VideoViews3s < 0:
		return fmt.Errorf("%w: negative flow metric for %s on %s", ErrMalformedRecord, r.Key, r.Date.Format(DateLayout))
	case !finite(r.Spend, r.Purchases, r.ConversionValue, r.ViewContent, r.AddToCart, r.InitiateCheckout):
		return fmt.Errorf("%w: non-finite metric for %s on %s", ErrMalformedRecord, r.Key, r.Date.Format(DateLayout))
	case r.Frequency != nil && !finite(*r.Frequency), r.DailyBudget != nil && !finite(*r.DailyBudget):
		return fmt.Errorf("%w: non-finite frequency or budget for %s", ErrMalformedRecord, r.Key)
	case r.Frequency != nil && *r.Frequency < 0:
		return fmt.Errorf("%w: negative frequency for %s", ErrMalformedRecord, r.Key)
	case r.DailyBudget != nil && *r.DailyBudget < 0:
		return fmt.Errorf("%w: negative budget for %s", ErrMalformedRecord, r.Key)
	}
	return nil
}

func finite(vals ...float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
