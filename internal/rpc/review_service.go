package rpc

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"

	"github.com/kkkkikiki/surveyreview/internal/logger"
	"github.com/kkkkikiki/surveyreview/internal/model"
	"github.com/kkkkikiki/surveyreview/internal/quota"
	"github.com/kkkkikiki/surveyreview/internal/service"
)

const (
	// ReviewServiceName is the fully-qualified name of the review service.
	ReviewServiceName = "surveyreview.v1.ReviewService"

	ReviewServiceGenerateReviewProcedure = "/surveyreview.v1.ReviewService/GenerateReview"
	ReviewServiceCheckQuotaProcedure     = "/surveyreview.v1.ReviewService/CheckQuota"
)

type GenerateReviewRequest struct {
	SurveyID string `json:"surveyId"`
}

type GenerateReviewResponse struct {
	Review     string          `json:"review"`
	IsExisting bool            `json:"isExisting"`
	ShopInfo   *model.ShopInfo `json:"shopInfo,omitempty"`
}

type CheckQuotaRequest struct {
	ShopID string `json:"shopId"`
}

type CheckQuotaResponse struct {
	IsLimitReached   bool `json:"isLimitReached"`
	CurrentCount     int  `json:"currentCount"`
	Limit            int  `json:"limit"`
	RemainingReviews int  `json:"remainingReviews"`
}

// Reviews is implemented by service.ReviewService.
type Reviews interface {
	GenerateReview(ctx context.Context, responseID string) (*service.GenerateResult, error)
	CheckQuota(ctx context.Context, shopID string) (quota.Decision, error)
}

// ReviewServer adapts the review service to connect.
type ReviewServer struct {
	reviews Reviews
	log     *logger.Logger
}

// NewReviewServer creates a new ReviewServer
func NewReviewServer(reviews Reviews, log *logger.Logger) *ReviewServer {
	return &ReviewServer{reviews: reviews, log: log.With("component", "ReviewRPC")}
}

func (s *ReviewServer) GenerateReview(
	ctx context.Context,
	req *connect.Request[GenerateReviewRequest],
) (*connect.Response[GenerateReviewResponse], error) {
	res, err := s.reviews.GenerateReview(ctx, strings.TrimSpace(req.Msg.SurveyID))
	if err != nil {
		s.log.Info("GenerateReview failed", "survey_id", req.Msg.SurveyID, "error", err)
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&GenerateReviewResponse{
		Review:     res.Content,
		IsExisting: res.IsExisting,
		ShopInfo:   res.ShopInfo,
	}), nil
}

func (s *ReviewServer) CheckQuota(
	ctx context.Context,
	req *connect.Request[CheckQuotaRequest],
) (*connect.Response[CheckQuotaResponse], error) {
	d, err := s.reviews.CheckQuota(ctx, strings.TrimSpace(req.Msg.ShopID))
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&CheckQuotaResponse{
		IsLimitReached:   !d.Allowed,
		CurrentCount:     d.Count,
		Limit:            d.Limit,
		RemainingReviews: d.Remaining,
	}), nil
}

// NewReviewServiceHandler builds an HTTP handler for the service and returns the
// path on which to mount it.
func NewReviewServiceHandler(svc *ReviewServer, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)
	generate := connect.NewUnaryHandler(ReviewServiceGenerateReviewProcedure, svc.GenerateReview, opts...)
	check := connect.NewUnaryHandler(ReviewServiceCheckQuotaProcedure, svc.CheckQuota, opts...)
	return "/" + ReviewServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case ReviewServiceGenerateReviewProcedure:
			generate.ServeHTTP(w, r)
		case ReviewServiceCheckQuotaProcedure:
			check.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

// ReviewServiceClient calls the review service over connect.
type ReviewServiceClient struct {
	generateReview *connect.Client[GenerateReviewRequest, GenerateReviewResponse]
	checkQuota     *connect.Client[CheckQuotaRequest, CheckQuotaResponse]
}

// NewReviewServiceClient creates a client for the service at baseURL.
func NewReviewServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *ReviewServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(jsonCodec{})}, opts...)
	return &ReviewServiceClient{
		generateReview: connect.NewClient[GenerateReviewRequest, GenerateReviewResponse](
			httpClient, baseURL+ReviewServiceGenerateReviewProcedure, opts...),
		checkQuota: connect.NewClient[CheckQuotaRequest, CheckQuotaResponse](
			httpClient, baseURL+ReviewServiceCheckQuotaProcedure, opts...),
	}
}

func (c *ReviewServiceClient) GenerateReview(ctx context.Context, req *GenerateReviewRequest) (*GenerateReviewResponse, error) {
	res, err := c.generateReview.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

func (c *ReviewServiceClient) CheckQuota(ctx context.Context, req *CheckQuotaRequest) (*CheckQuotaResponse, error) {
	res, err := c.checkQuota.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}
