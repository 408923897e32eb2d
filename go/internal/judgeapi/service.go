package judgeapi

import (
	"context"
	"errors"
	"fmt"

	"connectrpc.com/connect"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/scoresync/go/internal/auth"
	"github.com/mcdev12/scoresync/go/internal/judging"
	"github.com/mcdev12/scoresync/go/internal/models"
	"github.com/mcdev12/scoresync/go/internal/socket"
	"github.com/mcdev12/scoresync/go/internal/state"
)

// ShowFetcher loads the show a judge signs in to.
type ShowFetcher interface {
	FetchShow(ctx context.Context, token, showID string) (*models.Show, error)
}

// Connection reports the socket's state and backlog.
type Connection interface {
	State() socket.State
	Queued() int
}

// Backlog reports how many messages still wait for an acknowledgement.
type Backlog interface {
	Len() int
}

// Dependencies are the collaborators a Service calls into.
type Dependencies struct {
	Judging    *judging.Service
	State      *state.Managed
	Tokens     *auth.Source
	Shows      ShowFetcher
	Connection Connection
	Outbox     Backlog
}

// Service implements the JudgeService connect interface
type Service struct {
	deps Dependencies
}

// NewService creates a new judge command service
func NewService(deps Dependencies) *Service {
	return &Service{deps: deps}
}

// Verify that Service implements the JudgeServiceHandler interface
var _ JudgeServiceHandler = (*Service)(nil)

// SignIn stores the judge's tokens and loads the show they are judging.
func (s *Service) SignIn(ctx context.Context, req *connect.Request[SignInRequest]) (*connect.Response[SignInResponse], error) {
	msg := req.Msg
	if msg.Judge.ID == "" || msg.ShowID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("judge id and show id are required"))
	}

	if err := s.deps.Tokens.SetTokens(ctx, auth.Tokens{Token: msg.Token, RefreshToken: msg.RefreshToken}); err != nil {
		return nil, connect.NewError(connect.CodeUnauthenticated, err)
	}

	show, err := s.deps.Shows.FetchShow(ctx, msg.Token, msg.ShowID)
	if err != nil {
		return nil, connect.NewError(connect.CodeUnavailable, err)
	}

	judge := msg.Judge
	err = s.deps.State.Write(ctx, func(a *models.ApplicationState) error {
		a.Judge = &judge
		a.Show = show
		a.CompetitionID = nil
		a.StarterID = nil
		a.Page = models.Page{Kind: models.PageWelcome}
		return nil
	})
	if err != nil {
		return nil, toConnectError(err)
	}

	log.Info().Str("judge_id", judge.ID).Str("show_id", show.ID).Msg("judge signed in")
	return connect.NewResponse(&SignInResponse{
		ShowID:       show.ID,
		ShowName:     show.Name,
		Competitions: len(show.Competitions),
	}), nil
}

// SignOut sends pending edits and forgets the judge. Unacknowledged messages
// stay in the outbox and are replayed on the next session.
func (s *Service) SignOut(ctx context.Context, _ *connect.Request[Empty]) (*connect.Response[Empty], error) {
	s.deps.Judging.Flush()
	if err := s.deps.Tokens.Clear(ctx); err != nil {
		return nil, toConnectError(err)
	}
	err := s.deps.State.Write(ctx, func(a *models.ApplicationState) error {
		a.Judge = nil
		a.Show = nil
		a.CompetitionID = nil
		a.StarterID = nil
		a.Page = models.Page{Kind: models.PageLogin}
		return nil
	})
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&Empty{}), nil
}

func (s *Service) GetStatus(ctx context.Context, _ *connect.Request[Empty]) (*connect.Response[StatusResponse], error) {
	resp := &StatusResponse{
		Connection:    s.deps.Connection.State().String(),
		Outbox:        s.deps.Outbox.Len(),
		Queued:        s.deps.Connection.Queued(),
		ApplicationID: s.deps.State.ApplicationID().String(),
	}
	err := s.deps.State.Read(func(a *models.ApplicationState) {
		resp.Page = a.Page
		resp.SignedIn = a.Judge != nil && a.HasToken()
	})
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(resp), nil
}

func (s *Service) Subscribe(ctx context.Context, req *connect.Request[SubscribeRequest]) (*connect.Response[Empty], error) {
	return empty(s.deps.Judging.Subscribe(ctx, req.Msg.CompetitionID))
}

func (s *Service) Unsubscribe(ctx context.Context, _ *connect.Request[Empty]) (*connect.Response[Empty], error) {
	return empty(s.deps.Judging.Unsubscribe(ctx))
}

func (s *Service) ChooseStarter(ctx context.Context, req *connect.Request[ChooseStarterRequest]) (*connect.Response[Empty], error) {
	return empty(s.deps.Judging.ChooseStarter(ctx, req.Msg.StarterID))
}

// InputMark reports how the typed value was classified. Invalid input is not
// an error: the stored mark is cleared and the status says why.
func (s *Service) InputMark(ctx context.Context, req *connect.Request[InputMarkRequest]) (*connect.Response[InputMarkResponse], error) {
	result, err := s.deps.Judging.InputMark(ctx, req.Msg.Number, req.Msg.Value)
	if err != nil && !errors.Is(err, judging.ErrInvalidMark) {
		return nil, toConnectError(err)
	}
	resp := &InputMarkResponse{Status: result.Status.String()}
	if result.Status.Valid() {
		v := result.Value
		resp.Value = &v
	}
	return connect.NewResponse(resp), nil
}

func (s *Service) InputComment(ctx context.Context, req *connect.Request[InputCommentRequest]) (*connect.Response[Empty], error) {
	return empty(s.deps.Judging.InputComment(ctx, req.Msg.Number, req.Msg.Text))
}

func (s *Service) ConfirmAttempt(ctx context.Context, req *connect.Request[ConfirmAttemptRequest]) (*connect.Response[ConfirmAttemptResponse], error) {
	mark, err := s.deps.Judging.ConfirmAttempt(ctx, req.Msg.Number, req.Msg.Attempt, req.Msg.Value)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&ConfirmAttemptResponse{Mark: mark}), nil
}

func (s *Service) AdjustPenalty(ctx context.Context, req *connect.Request[AdjustPenaltyRequest]) (*connect.Response[AdjustPenaltyResponse], error) {
	count, err := s.deps.Judging.AdjustPenalty(ctx, req.Msg.Variety, req.Msg.Delta)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&AdjustPenaltyResponse{Count: count}), nil
}

func (s *Service) Summarize(ctx context.Context, req *connect.Request[SummarizeRequest]) (*connect.Response[Empty], error) {
	return empty(s.deps.Judging.Summarize(ctx, req.Msg.Summary, req.Msg.Notes))
}

func (s *Service) ConfirmMarks(ctx context.Context, _ *connect.Request[Empty]) (*connect.Response[Empty], error) {
	return empty(s.deps.Judging.ConfirmMarks(ctx))
}

func (s *Service) RaiseSignal(ctx context.Context, req *connect.Request[RaiseSignalRequest]) (*connect.Response[Empty], error) {
	return empty(s.deps.Judging.RaiseSignal(ctx, req.Msg.Signal))
}

func (s *Service) SetResult(ctx context.Context, req *connect.Request[SetResultRequest]) (*connect.Response[Empty], error) {
	return empty(s.deps.Judging.SetStatus(ctx, req.Msg.Result))
}

// ReportBattery records the host's battery reading for the keep-alive report.
func (s *Service) ReportBattery(ctx context.Context, req *connect.Request[ReportBatteryRequest]) (*connect.Response[Empty], error) {
	battery := req.Msg.Battery
	return empty(s.deps.State.Write(ctx, func(a *models.ApplicationState) error {
		a.Battery = battery
		return nil
	}))
}

func empty(err error) (*connect.Response[Empty], error) {
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&Empty{}), nil
}

func toConnectError(err error) error {
	switch {
	case errors.Is(err, judging.ErrUnknownStarter),
		errors.Is(err, judging.ErrUnknownMovement),
		errors.Is(err, judging.ErrUnknownPenalty),
		errors.Is(err, judging.ErrNoCompetition):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, judging.ErrLocked),
		errors.Is(err, judging.ErrDerivedMark),
		errors.Is(err, judging.ErrNoScoresheet),
		errors.Is(err, judging.ErrNoAttempts):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case errors.Is(err, judging.ErrInvalidMark),
		errors.Is(err, judging.ErrAttemptOutOfRange):
		return connect.NewError(connect.CodeInvalidArgument, err)
	default:
		log.Error().Err(err).Msg("judge command failed")
		return connect.NewError(connect.CodeInternal, fmt.Errorf("command failed: %w", err))
	}
}
