package messages

import (
	"encoding/json"
	"fmt"

	"github.com/mcdev12/scoresync/go/internal/models"
)

// AlertKind names the alert a judge raises or receives.
type AlertKind string

const (
	AlertErrorOfCourse    AlertKind = "ErrorOfCourse"
	AlertTechnicalPenalty AlertKind = "TechnicalPenalty"
	AlertArtisticPenalty  AlertKind = "ArtisticPenalty"
	AlertMeeting          AlertKind = "Meeting"
	AlertBlood            AlertKind = "Blood"
	AlertLameness         AlertKind = "Lameness"
	AlertEquipment        AlertKind = "Equipment"
	AlertStatus           AlertKind = "Status"
)

// Alert is a signal raised on a scoresheet. Penalty alerts carry the
// occurrence count, status alerts the proposed result.
type Alert struct {
	Kind   AlertKind
	Count  uint8
	Status models.StarterResult
}

func (a Alert) counted() bool {
	switch a.Kind {
	case AlertErrorOfCourse, AlertTechnicalPenalty, AlertArtisticPenalty:
		return true
	}
	return false
}

func (a Alert) String() string {
	switch a.Kind {
	case AlertErrorOfCourse:
		return fmt.Sprintf("Error %d", a.Count)
	case AlertTechnicalPenalty:
		return fmt.Sprintf("Tech. %d", a.Count)
	case AlertArtisticPenalty:
		return fmt.Sprintf("Art. %d", a.Count)
	case AlertStatus:
		return string(a.Status.Kind)
	case "":
		return string(AlertMeeting)
	default:
		return string(a.Kind)
	}
}

func (a Alert) MarshalJSON() ([]byte, error) {
	switch {
	case a.Kind == "":
		return json.Marshal(AlertMeeting)
	case a.counted():
		return tagged(string(a.Kind), a.Count)
	case a.Kind == AlertStatus:
		return tagged(string(a.Kind), a.Status)
	default:
		return json.Marshal(a.Kind)
	}
}

func (a *Alert) UnmarshalJSON(data []byte) error {
	tag, body, err := splitTag(data)
	if err != nil {
		return fmt.Errorf("alert: %w", err)
	}
	out := Alert{Kind: AlertKind(tag)}
	switch {
	case out.counted():
		if err := json.Unmarshal(body, &out.Count); err != nil {
			return fmt.Errorf("alert %s: %w", tag, err)
		}
	case out.Kind == AlertStatus:
		if err := json.Unmarshal(body, &out.Status); err != nil {
			return fmt.Errorf("alert %s: %w", tag, err)
		}
	case body != nil:
		return fmt.Errorf("alert %s takes no value", tag)
	}
	*a = out
	return nil
}
