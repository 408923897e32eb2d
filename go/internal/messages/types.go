// Package messages defines the envelopes and tagged payloads exchanged with
// the scoring server.
package messages

import (
	"time"

	"github.com/google/uuid"

	"github.com/mcdev12/scoresync/go/internal/decimal"
	"github.com/mcdev12/scoresync/go/internal/models"
)

// Version is the protocol version stamped on every outbound envelope.
const Version uint8 = 2

// Outbound is a payload the judge's device sends.
type Outbound interface {
	Tag() string
	isOutbound()
}

// Inbound is a payload the server sends.
type Inbound interface {
	Tag() string
	isInbound()
}

// OutboundMessage wraps an outbound payload with its delivery id. The id is
// what the server acknowledges.
type OutboundMessage struct {
	ID      uuid.UUID
	Version uint8
	Payload Outbound
}

// NewOutbound stamps a payload with a fresh time-ordered id.
func NewOutbound(payload Outbound) OutboundMessage {
	return OutboundMessage{
		ID:      uuid.Must(uuid.NewV7()),
		Version: Version,
		Payload: payload,
	}
}

// InboundMessage is a server payload together with the id that must be acked.
type InboundMessage struct {
	ID      uuid.UUID
	Version uint8
	Payload Inbound
}

// Wire tags
const (
	TagSubscribe        = "Subscribe"
	TagApplicationState = "ApplicationState"
	TagNoOp             = "NoOp"
	TagAck              = "Ack"
	TagCompetition      = "Competition"

	TagUnsubscribe  = "unsubscribe"
	TagMark         = "mark"
	TagSummary      = "summary"
	TagPenalty      = "penalty"
	TagSignal       = "signal"
	TagStatus       = "status"
	TagLock         = "lock"
	TagTrend        = "trend"
	TagReset        = "reset"
	TagAlterStarter = "alterStarter"
)

// Subscribe asks the server to stream updates for a competition.
type Subscribe struct {
	CompetitionID string `json:"id"`
}

// Mark carries one movement's mark and remark.
type Mark struct {
	SheetID string           `json:"sid"`
	Number  uint16           `json:"n"`
	Mark    *decimal.Decimal `json:"m"`
	Remark  *string          `json:"r"`
}

// Summary carries the closing remarks of a scoresheet.
type Summary struct {
	SheetID string  `json:"sid"`
	Summary *string `json:"s"`
	Notes   *string `json:"n"`
}

// Penalty reports the new count of one penalty counter.
type Penalty struct {
	SheetID  string                `json:"sid"`
	Variety  models.PenaltyVariety `json:"v"`
	Quantity uint8                 `json:"q"`
}

// Signal raises an alert on a scoresheet. Sent and received.
type Signal struct {
	SheetID string `json:"sid"`
	Signal  Alert  `json:"signal"`
}

// Status changes a starter's placing status. Sent and received.
type Status struct {
	SheetID string               `json:"sid"`
	Status  models.StarterResult `json:"status"`
}

// Lock confirms or releases the judge's scoresheet.
type Lock struct {
	SheetID string              `json:"sid"`
	Locked  bool                `json:"locked"`
	Scores  []models.ScoredMark `json:"scores"`
}

// Unsubscribe ends the current subscription. Sent by the device when it
// leaves a competition and by the server when it revokes the session.
type Unsubscribe struct{}

// ApplicationStateReport is the device snapshot broadcast on keep-alive.
type ApplicationStateReport struct {
	ID             uuid.UUID            `json:"id"`
	JudgeID        string               `json:"judgeId"`
	ShowID         *string              `json:"showId"`
	CompetitionID  *string              `json:"competitionId"`
	Location       models.Page          `json:"location"`
	State          models.DeviceBattery `json:"state"`
	CompetitorName *string              `json:"competitorName,omitempty"`
}

// NoOp carries nothing; the server treats it as a liveness probe.
type NoOp struct{}

// Ack acknowledges receipt of the message with ID.
type Ack struct {
	ID uuid.UUID
}

// Trend is the live score and rank of a scoresheet.
type Trend struct {
	SheetID string          `json:"sid"`
	Rank    uint16          `json:"rk"`
	Score   decimal.Decimal `json:"sc"`
}

// Reset wipes a scoresheet. Timestamp is when the server issued it.
type Reset struct {
	SheetID   string    `json:"sid"`
	Timestamp time.Time `json:"ts"`
}

// AlterStarter replaces a starter's details.
type AlterStarter struct {
	Starter models.Starter `json:"starter"`
}

// LockUpdate is the server's view of a locked scoresheet. Nil fields mean
// "unchanged", never "zero".
type LockUpdate struct {
	SheetID            string               `json:"sid"`
	Locked             bool                 `json:"lock"`
	Rank               *uint16              `json:"r"`
	Scores             *[]models.ScoredMark `json:"s"`
	ErrorsOfCourse     *uint8               `json:"eoc"`
	TechnicalPenalties *uint8               `json:"tecp"`
	ArtisticPenalties  *uint8               `json:"artp"`
}

// Unknown is any payload whose tag this client does not understand.
type Unknown struct {
	Name string
	Raw  []byte
}

func (Subscribe) Tag() string              { return TagSubscribe }
func (Mark) Tag() string                   { return TagMark }
func (Summary) Tag() string                { return TagSummary }
func (Penalty) Tag() string                { return TagPenalty }
func (Signal) Tag() string                 { return TagSignal }
func (Status) Tag() string                 { return TagStatus }
func (Lock) Tag() string                   { return TagLock }
func (Unsubscribe) Tag() string            { return TagUnsubscribe }
func (ApplicationStateReport) Tag() string { return TagApplicationState }
func (NoOp) Tag() string                   { return TagNoOp }
func (Ack) Tag() string                    { return TagAck }
func (Trend) Tag() string                  { return TagTrend }
func (Reset) Tag() string                  { return TagReset }
func (AlterStarter) Tag() string           { return TagAlterStarter }
func (LockUpdate) Tag() string             { return TagLock }
func (u Unknown) Tag() string              { return u.Name }

func (Subscribe) isOutbound()              {}
func (Mark) isOutbound()                   {}
func (Summary) isOutbound()                {}
func (Penalty) isOutbound()                {}
func (Signal) isOutbound()                 {}
func (Status) isOutbound()                 {}
func (Lock) isOutbound()                   {}
func (Unsubscribe) isOutbound()            {}
func (ApplicationStateReport) isOutbound() {}
func (NoOp) isOutbound()                   {}
func (Ack) isOutbound()                    {}
func (Unknown) isOutbound()                {}

func (Signal) isInbound()                 {}
func (Status) isInbound()                 {}
func (Unsubscribe) isInbound()            {}
func (ApplicationStateReport) isInbound() {}
func (Ack) isInbound()                    {}
func (Trend) isInbound()                  {}
func (Reset) isInbound()                  {}
func (AlterStarter) isInbound()           {}
func (LockUpdate) isInbound()             {}
func (Unknown) isInbound()                {}
