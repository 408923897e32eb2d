package judgeapi

import (
	"github.com/mcdev12/scoresync/go/internal/decimal"
	"github.com/mcdev12/scoresync/go/internal/messages"
	"github.com/mcdev12/scoresync/go/internal/models"
)

// Empty is the request or response of procedures that carry nothing.
type Empty struct{}

type SignInRequest struct {
	Token        string       `json:"token"`
	RefreshToken string       `json:"refresh_token"`
	Judge        models.Judge `json:"judge"`
	ShowID       string       `json:"show_id"`
}

type SignInResponse struct {
	ShowID       string `json:"show_id"`
	ShowName     string `json:"show_name"`
	Competitions int    `json:"competitions"`
}

type StatusResponse struct {
	Connection    string      `json:"connection"`
	Outbox        int         `json:"outbox"`
	Queued        int         `json:"queued"`
	Page          models.Page `json:"page"`
	SignedIn      bool        `json:"signed_in"`
	ApplicationID string      `json:"application_id"`
}

type SubscribeRequest struct {
	CompetitionID string `json:"competition_id"`
}

type ChooseStarterRequest struct {
	StarterID string `json:"starter_id"`
}

type InputMarkRequest struct {
	Number uint16 `json:"number"`
	Value  string `json:"value"`
}

type InputMarkResponse struct {
	Status string           `json:"status"`
	Value  *decimal.Decimal `json:"value,omitempty"`
}

type InputCommentRequest struct {
	Number uint16 `json:"number"`
	Text   string `json:"text"`
}

type ConfirmAttemptRequest struct {
	Number  uint16 `json:"number"`
	Attempt int    `json:"attempt"`
	Value   string `json:"value"`
}

type ConfirmAttemptResponse struct {
	Mark *decimal.Decimal `json:"mark"`
}

type AdjustPenaltyRequest struct {
	Variety models.PenaltyVariety `json:"variety"`
	Delta   int                   `json:"delta"`
}

type AdjustPenaltyResponse struct {
	Count uint8 `json:"count"`
}

type SummarizeRequest struct {
	Summary string `json:"summary"`
	Notes   string `json:"notes"`
}

type RaiseSignalRequest struct {
	Signal messages.Alert `json:"signal"`
}

type SetResultRequest struct {
	Result models.StarterResult `json:"result"`
}

type ReportBatteryRequest struct {
	Battery models.DeviceBattery `json:"battery"`
}
