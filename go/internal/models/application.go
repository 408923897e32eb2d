package models

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// PageKind defines the screen the judge is currently on.
type PageKind string

const (
	PageLogin           PageKind = "Login"
	PageLoginJudge      PageKind = "LoginJudge"
	PageWelcome         PageKind = "Welcome"
	PageCompetitionList PageKind = "CompetitionList"
	PageScoresheet      PageKind = "Scoresheet"
	PageSettings        PageKind = "Settings"
	PagePreferences     PageKind = "Preferences"
	PageFinalResult     PageKind = "FinalResult"
	PageError           PageKind = "Error"
)

// Page is the judge's location in the application. Scoresheet pages carry
// the sheet id and encode as {"Scoresheet": "<id>"}, every other page as a
// bare string.
type Page struct {
	Kind         PageKind
	ScoresheetID string
}

func (p Page) MarshalJSON() ([]byte, error) {
	kind := p.Kind
	if kind == "" {
		kind = PageLogin
	}
	if kind == PageScoresheet {
		return json.Marshal(map[string]string{string(PageScoresheet): p.ScoresheetID})
	}
	return json.Marshal(kind)
}

func (p *Page) UnmarshalJSON(data []byte) error {
	var kind PageKind
	if err := json.Unmarshal(data, &kind); err == nil {
		*p = Page{Kind: kind}
		return nil
	}
	var tagged map[string]string
	if err := json.Unmarshal(data, &tagged); err != nil {
		return fmt.Errorf("page: %w", err)
	}
	id, ok := tagged[string(PageScoresheet)]
	if !ok || len(tagged) != 1 {
		return fmt.Errorf("page: unexpected value %s", data)
	}
	*p = Page{Kind: PageScoresheet, ScoresheetID: id}
	return nil
}

// BatteryKind defines the charging state reported by the device.
type BatteryKind string

const (
	BatteryCharging    BatteryKind = "Charging"
	BatteryDischarging BatteryKind = "Discharging"
	BatteryUnknown     BatteryKind = "Unknown"
	BatteryError       BatteryKind = "Error"
)

// DeviceBattery is the last battery reading, level in percent.
type DeviceBattery struct {
	Kind  BatteryKind
	Level float32
}

func (b DeviceBattery) MarshalJSON() ([]byte, error) {
	switch b.Kind {
	case BatteryCharging, BatteryDischarging:
		return json.Marshal(map[string]float32{string(b.Kind): b.Level})
	case "":
		return json.Marshal(BatteryUnknown)
	default:
		return json.Marshal(b.Kind)
	}
}

func (b *DeviceBattery) UnmarshalJSON(data []byte) error {
	var kind BatteryKind
	if err := json.Unmarshal(data, &kind); err == nil {
		*b = DeviceBattery{Kind: kind}
		return nil
	}
	var tagged map[string]float32
	if err := json.Unmarshal(data, &tagged); err != nil {
		return fmt.Errorf("battery: %w", err)
	}
	for k, level := range tagged {
		*b = DeviceBattery{Kind: BatteryKind(k), Level: level}
		return nil
	}
	return fmt.Errorf("battery: empty value")
}

func (b DeviceBattery) String() string {
	switch b.Kind {
	case BatteryCharging:
		return fmt.Sprintf("Battery Charging, Level %.0f%%", b.Level)
	case BatteryDischarging:
		return fmt.Sprintf("Battery Discharging, Level %.0f%%", b.Level)
	case BatteryError:
		return "Error with battery"
	default:
		return "Battery in unknown state"
	}
}

// ApplicationState is everything the judge's device keeps between restarts.
// It is persisted as a whole after every mutation.
type ApplicationState struct {
	PermanentID   uuid.UUID     `json:"permanentId"`
	Judge         *Judge        `json:"judge"`
	Token         string        `json:"token"`
	RefreshToken  string        `json:"refreshToken"`
	TokenExpires  int64         `json:"tokenExpires"`
	Show          *Show         `json:"show"`
	CompetitionID *string       `json:"competitionId"`
	StarterID     *string       `json:"starterId"`
	Page          Page          `json:"page"`
	Battery       DeviceBattery `json:"battery"`
	AutoFreestyle bool          `json:"autoFreestyle"`
}

// NewApplicationState returns the state of a device nobody has signed in on.
func NewApplicationState(permanentID uuid.UUID) ApplicationState {
	return ApplicationState{
		PermanentID:   permanentID,
		Page:          Page{Kind: PageLogin},
		Battery:       DeviceBattery{Kind: BatteryError},
		AutoFreestyle: true,
	}
}

// Competition returns the selected competition.
func (a *ApplicationState) Competition() *Competition {
	if a.Show == nil || a.CompetitionID == nil {
		return nil
	}
	for i := range a.Show.Competitions {
		if a.Show.Competitions[i].ID == *a.CompetitionID {
			return &a.Show.Competitions[i]
		}
	}
	return nil
}

// Starter returns the starter currently being judged.
func (a *ApplicationState) Starter() *Starter {
	if a.Show == nil || a.StarterID == nil {
		return nil
	}
	for ci := range a.Show.Competitions {
		starters := a.Show.Competitions[ci].Starters
		for si := range starters {
			if starters[si].ID == *a.StarterID {
				return &starters[si]
			}
		}
	}
	return nil
}

// StarterBySheet finds the starter owning the scoresheet anywhere in the show.
func (a *ApplicationState) StarterBySheet(sheetID string) *Starter {
	if a.Show == nil {
		return nil
	}
	for ci := range a.Show.Competitions {
		starters := a.Show.Competitions[ci].Starters
		for si := range starters {
			for _, sheet := range starters[si].Scoresheets {
				if sheet.ID == sheetID {
					return &starters[si]
				}
			}
		}
	}
	return nil
}

// StarterByID finds a starter anywhere in the show.
func (a *ApplicationState) StarterByID(id string) *Starter {
	if a.Show == nil {
		return nil
	}
	for ci := range a.Show.Competitions {
		starters := a.Show.Competitions[ci].Starters
		for si := range starters {
			if starters[si].ID == id {
				return &starters[si]
			}
		}
	}
	return nil
}

// Scoresheet returns the sheet of the current starter.
func (a *ApplicationState) Scoresheet() *Scoresheet {
	return a.Starter().Scoresheet()
}

// Test returns the dressage test the current competition is judged against.
func (a *ApplicationState) Test() *DressageTest {
	comp := a.Competition()
	if comp == nil || len(comp.Tests) == 0 {
		return nil
	}
	return &comp.Tests[0]
}

// HasToken reports whether a bearer token is stored.
func (a *ApplicationState) HasToken() bool {
	return a.Token != ""
}
