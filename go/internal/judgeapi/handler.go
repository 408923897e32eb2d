// Package judgeapi serves the judge's commands to the local user interface
// as connect unary procedures with JSON bodies.
package judgeapi

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"
)

// JudgeServiceName is the fully-qualified name of the JudgeService.
const JudgeServiceName = "scoresync.judge.v1.JudgeService"

// Procedure paths, one per JudgeService method.
const (
	JudgeServiceSignInProcedure         = "/" + JudgeServiceName + "/SignIn"
	JudgeServiceSignOutProcedure        = "/" + JudgeServiceName + "/SignOut"
	JudgeServiceGetStatusProcedure      = "/" + JudgeServiceName + "/GetStatus"
	JudgeServiceSubscribeProcedure      = "/" + JudgeServiceName + "/Subscribe"
	JudgeServiceUnsubscribeProcedure    = "/" + JudgeServiceName + "/Unsubscribe"
	JudgeServiceChooseStarterProcedure  = "/" + JudgeServiceName + "/ChooseStarter"
	JudgeServiceInputMarkProcedure      = "/" + JudgeServiceName + "/InputMark"
	JudgeServiceInputCommentProcedure   = "/" + JudgeServiceName + "/InputComment"
	JudgeServiceConfirmAttemptProcedure = "/" + JudgeServiceName + "/ConfirmAttempt"
	JudgeServiceAdjustPenaltyProcedure  = "/" + JudgeServiceName + "/AdjustPenalty"
	JudgeServiceSummarizeProcedure      = "/" + JudgeServiceName + "/Summarize"
	JudgeServiceConfirmMarksProcedure   = "/" + JudgeServiceName + "/ConfirmMarks"
	JudgeServiceRaiseSignalProcedure    = "/" + JudgeServiceName + "/RaiseSignal"
	JudgeServiceSetResultProcedure      = "/" + JudgeServiceName + "/SetResult"
	JudgeServiceReportBatteryProcedure  = "/" + JudgeServiceName + "/ReportBattery"
)

// JudgeServiceHandler is implemented by Service.
type JudgeServiceHandler interface {
	SignIn(context.Context, *connect.Request[SignInRequest]) (*connect.Response[SignInResponse], error)
	SignOut(context.Context, *connect.Request[Empty]) (*connect.Response[Empty], error)
	GetStatus(context.Context, *connect.Request[Empty]) (*connect.Response[StatusResponse], error)
	Subscribe(context.Context, *connect.Request[SubscribeRequest]) (*connect.Response[Empty], error)
	Unsubscribe(context.Context, *connect.Request[Empty]) (*connect.Response[Empty], error)
	ChooseStarter(context.Context, *connect.Request[ChooseStarterRequest]) (*connect.Response[Empty], error)
	InputMark(context.Context, *connect.Request[InputMarkRequest]) (*connect.Response[InputMarkResponse], error)
	InputComment(context.Context, *connect.Request[InputCommentRequest]) (*connect.Response[Empty], error)
	ConfirmAttempt(context.Context, *connect.Request[ConfirmAttemptRequest]) (*connect.Response[ConfirmAttemptResponse], error)
	AdjustPenalty(context.Context, *connect.Request[AdjustPenaltyRequest]) (*connect.Response[AdjustPenaltyResponse], error)
	Summarize(context.Context, *connect.Request[SummarizeRequest]) (*connect.Response[Empty], error)
	ConfirmMarks(context.Context, *connect.Request[Empty]) (*connect.Response[Empty], error)
	RaiseSignal(context.Context, *connect.Request[RaiseSignalRequest]) (*connect.Response[Empty], error)
	SetResult(context.Context, *connect.Request[SetResultRequest]) (*connect.Response[Empty], error)
	ReportBattery(context.Context, *connect.Request[ReportBatteryRequest]) (*connect.Response[Empty], error)
}

// NewJudgeServiceHandler builds an HTTP handler for every procedure. It returns
// the path to mount the handler on.
func NewJudgeServiceHandler(svc JudgeServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{WithJSON()}, opts...)
	handlers := map[string]http.Handler{
		JudgeServiceSignInProcedure:         connect.NewUnaryHandler(JudgeServiceSignInProcedure, svc.SignIn, opts...),
		JudgeServiceSignOutProcedure:        connect.NewUnaryHandler(JudgeServiceSignOutProcedure, svc.SignOut, opts...),
		JudgeServiceGetStatusProcedure:      connect.NewUnaryHandler(JudgeServiceGetStatusProcedure, svc.GetStatus, opts...),
		JudgeServiceSubscribeProcedure:      connect.NewUnaryHandler(JudgeServiceSubscribeProcedure, svc.Subscribe, opts...),
		JudgeServiceUnsubscribeProcedure:    connect.NewUnaryHandler(JudgeServiceUnsubscribeProcedure, svc.Unsubscribe, opts...),
		JudgeServiceChooseStarterProcedure:  connect.NewUnaryHandler(JudgeServiceChooseStarterProcedure, svc.ChooseStarter, opts...),
		JudgeServiceInputMarkProcedure:      connect.NewUnaryHandler(JudgeServiceInputMarkProcedure, svc.InputMark, opts...),
		JudgeServiceInputCommentProcedure:   connect.NewUnaryHandler(JudgeServiceInputCommentProcedure, svc.InputComment, opts...),
		JudgeServiceConfirmAttemptProcedure: connect.NewUnaryHandler(JudgeServiceConfirmAttemptProcedure, svc.ConfirmAttempt, opts...),
		JudgeServiceAdjustPenaltyProcedure:  connect.NewUnaryHandler(JudgeServiceAdjustPenaltyProcedure, svc.AdjustPenalty, opts...),
		JudgeServiceSummarizeProcedure:      connect.NewUnaryHandler(JudgeServiceSummarizeProcedure, svc.Summarize, opts...),
		JudgeServiceConfirmMarksProcedure:   connect.NewUnaryHandler(JudgeServiceConfirmMarksProcedure, svc.ConfirmMarks, opts...),
		JudgeServiceRaiseSignalProcedure:    connect.NewUnaryHandler(JudgeServiceRaiseSignalProcedure, svc.RaiseSignal, opts...),
		JudgeServiceSetResultProcedure:      connect.NewUnaryHandler(JudgeServiceSetResultProcedure, svc.SetResult, opts...),
		JudgeServiceReportBatteryProcedure:  connect.NewUnaryHandler(JudgeServiceReportBatteryProcedure, svc.ReportBattery, opts...),
	}
	return "/" + JudgeServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h, ok := handlers[r.URL.Path]; ok {
			h.ServeHTTP(w, r)
			return
		}
		http.NotFound(w, r)
	})
}

// JudgeServiceClient calls a JudgeService over HTTP.
type JudgeServiceClient struct {
	signIn         *connect.Client[SignInRequest, SignInResponse]
	signOut        *connect.Client[Empty, Empty]
	getStatus      *connect.Client[Empty, StatusResponse]
	subscribe      *connect.Client[SubscribeRequest, Empty]
	unsubscribe    *connect.Client[Empty, Empty]
	chooseStarter  *connect.Client[ChooseStarterRequest, Empty]
	inputMark      *connect.Client[InputMarkRequest, InputMarkResponse]
	inputComment   *connect.Client[InputCommentRequest, Empty]
	confirmAttempt *connect.Client[ConfirmAttemptRequest, ConfirmAttemptResponse]
	adjustPenalty  *connect.Client[AdjustPenaltyRequest, AdjustPenaltyResponse]
	summarize      *connect.Client[SummarizeRequest, Empty]
	confirmMarks   *connect.Client[Empty, Empty]
	raiseSignal    *connect.Client[RaiseSignalRequest, Empty]
	setResult      *connect.Client[SetResultRequest, Empty]
	reportBattery  *connect.Client[ReportBatteryRequest, Empty]
}

// NewJudgeServiceClient builds a client for the service at baseURL.
func NewJudgeServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *JudgeServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{WithJSON()}, opts...)
	return &JudgeServiceClient{
		signIn:         connect.NewClient[SignInRequest, SignInResponse](httpClient, baseURL+JudgeServiceSignInProcedure, opts...),
		signOut:        connect.NewClient[Empty, Empty](httpClient, baseURL+JudgeServiceSignOutProcedure, opts...),
		getStatus:      connect.NewClient[Empty, StatusResponse](httpClient, baseURL+JudgeServiceGetStatusProcedure, opts...),
		subscribe:      connect.NewClient[SubscribeRequest, Empty](httpClient, baseURL+JudgeServiceSubscribeProcedure, opts...),
		unsubscribe:    connect.NewClient[Empty, Empty](httpClient, baseURL+JudgeServiceUnsubscribeProcedure, opts...),
		chooseStarter:  connect.NewClient[ChooseStarterRequest, Empty](httpClient, baseURL+JudgeServiceChooseStarterProcedure, opts...),
		inputMark:      connect.NewClient[InputMarkRequest, InputMarkResponse](httpClient, baseURL+JudgeServiceInputMarkProcedure, opts...),
		inputComment:   connect.NewClient[InputCommentRequest, Empty](httpClient, baseURL+JudgeServiceInputCommentProcedure, opts...),
		confirmAttempt: connect.NewClient[ConfirmAttemptRequest, ConfirmAttemptResponse](httpClient, baseURL+JudgeServiceConfirmAttemptProcedure, opts...),
		adjustPenalty:  connect.NewClient[AdjustPenaltyRequest, AdjustPenaltyResponse](httpClient, baseURL+JudgeServiceAdjustPenaltyProcedure, opts...),
		summarize:      connect.NewClient[SummarizeRequest, Empty](httpClient, baseURL+JudgeServiceSummarizeProcedure, opts...),
		confirmMarks:   connect.NewClient[Empty, Empty](httpClient, baseURL+JudgeServiceConfirmMarksProcedure, opts...),
		raiseSignal:    connect.NewClient[RaiseSignalRequest, Empty](httpClient, baseURL+JudgeServiceRaiseSignalProcedure, opts...),
		setResult:      connect.NewClient[SetResultRequest, Empty](httpClient, baseURL+JudgeServiceSetResultProcedure, opts...),
		reportBattery:  connect.NewClient[ReportBatteryRequest, Empty](httpClient, baseURL+JudgeServiceReportBatteryProcedure, opts...),
	}
}

func (c *JudgeServiceClient) SignIn(ctx context.Context, req *connect.Request[SignInRequest]) (*connect.Response[SignInResponse], error) {
	return c.signIn.CallUnary(ctx, req)
}

func (c *JudgeServiceClient) SignOut(ctx context.Context, req *connect.Request[Empty]) (*connect.Response[Empty], error) {
	return c.signOut.CallUnary(ctx, req)
}

func (c *JudgeServiceClient) GetStatus(ctx context.Context, req *connect.Request[Empty]) (*connect.Response[StatusResponse], error) {
	return c.getStatus.CallUnary(ctx, req)
}

func (c *JudgeServiceClient) Subscribe(ctx context.Context, req *connect.Request[SubscribeRequest]) (*connect.Response[Empty], error) {
	return c.subscribe.CallUnary(ctx, req)
}

func (c *JudgeServiceClient) Unsubscribe(ctx context.Context, req *connect.Request[Empty]) (*connect.Response[Empty], error) {
	return c.unsubscribe.CallUnary(ctx, req)
}

func (c *JudgeServiceClient) ChooseStarter(ctx context.Context, req *connect.Request[ChooseStarterRequest]) (*connect.Response[Empty], error) {
	return c.chooseStarter.CallUnary(ctx, req)
}

func (c *JudgeServiceClient) InputMark(ctx context.Context, req *connect.Request[InputMarkRequest]) (*connect.Response[InputMarkResponse], error) {
	return c.inputMark.CallUnary(ctx, req)
}

func (c *JudgeServiceClient) InputComment(ctx context.Context, req *connect.Request[InputCommentRequest]) (*connect.Response[Empty], error) {
	return c.inputComment.CallUnary(ctx, req)
}

func (c *JudgeServiceClient) ConfirmAttempt(ctx context.Context, req *connect.Request[ConfirmAttemptRequest]) (*connect.Response[ConfirmAttemptResponse], error) {
	return c.confirmAttempt.CallUnary(ctx, req)
}

func (c *JudgeServiceClient) AdjustPenalty(ctx context.Context, req *connect.Request[AdjustPenaltyRequest]) (*connect.Response[AdjustPenaltyResponse], error) {
	return c.adjustPenalty.CallUnary(ctx, req)
}

func (c *JudgeServiceClient) Summarize(ctx context.Context, req *connect.Request[SummarizeRequest]) (*connect.Response[Empty], error) {
	return c.summarize.CallUnary(ctx, req)
}

func (c *JudgeServiceClient) ConfirmMarks(ctx context.Context, req *connect.Request[Empty]) (*connect.Response[Empty], error) {
	return c.confirmMarks.CallUnary(ctx, req)
}

func (c *JudgeServiceClient) RaiseSignal(ctx context.Context, req *connect.Request[RaiseSignalRequest]) (*connect.Response[Empty], error) {
	return c.raiseSignal.CallUnary(ctx, req)
}

func (c *JudgeServiceClient) SetResult(ctx context.Context, req *connect.Request[SetResultRequest]) (*connect.Response[Empty], error) {
	return c.setResult.CallUnary(ctx, req)
}

func (c *JudgeServiceClient) ReportBattery(ctx context.Context, req *connect.Request[ReportBatteryRequest]) (*connect.Response[Empty], error) {
	return c.reportBattery.CallUnary(ctx, req)
}
