// Copyright 2025 cinerec Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	restfulspec "github.com/emicklei/go-restful-openapi/v2"
	"github.com/emicklei/go-restful/v3"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/cinerec-io/cinerec/base/log"
	"github.com/cinerec-io/cinerec/config"
	"github.com/cinerec-io/cinerec/dataset"
	"github.com/cinerec-io/cinerec/engine"
	"github.com/cinerec-io/cinerec/logics"
	"github.com/cinerec-io/cinerec/storage/data"
)

// RestServer implements the REST-ful API server.
type RestServer struct {
	DataClient data.Database
	Engine     *engine.Engine
	Catalog    *dataset.Catalog
	Config     *config.Config
	Tokens     *TokenManager
	WebService *restful.WebService

	validate *validator.Validate
}

// AuthRequest is the body of register and login requests.
type AuthRequest struct {
	UserId   string `json:"user_id" validate:"required,max=256"`
	Password string `json:"password" validate:"required,min=6"`
}

// TokenResponse carries an issued session token.
type TokenResponse struct {
	UserId string `json:"user_id"`
	Token  string `json:"token"`
}

// RatingRequest is the body of rating submissions.
type RatingRequest struct {
	ItemId string  `json:"item_id" validate:"required"`
	Rating float32 `json:"rating" validate:"gte=0.5,lte=5"`
}

// RatedItem is a rating event as returned to its owner.
type RatedItem struct {
	ItemId    string    `json:"item_id"`
	Title     string    `json:"title"`
	Rating    float32   `json:"rating"`
	Timestamp time.Time `json:"timestamp"`
}

// RecommendedItem is a scored item decorated for display. The raw model
// score is kept alongside the clamped predicted rating.
type RecommendedItem struct {
	ItemId          string   `json:"item_id"`
	Title           string   `json:"title"`
	Tags            []string `json:"tags"`
	Score           float32  `json:"score"`
	PredictedRating float32  `json:"predicted_rating"`
}

// SimilarItem is a catalog neighbor with its cosine similarity. The
// score is not a rating prediction, so none is reported.
type SimilarItem struct {
	ItemId string   `json:"item_id"`
	Title  string   `json:"title"`
	Tags   []string `json:"tags"`
	Score  float32  `json:"score"`
}

// RecommendResponse is the payload of personalized recommendations.
type RecommendResponse struct {
	SeedItemId string            `json:"seed_item_id"`
	Items      []RecommendedItem `json:"items"`
}

// HealthResponse is the liveness payload.
type HealthResponse struct {
	Ready         bool `json:"ready"`
	DatabaseAlive bool `json:"database_alive"`
}

// RowAffected is the payload of write operations.
type RowAffected struct {
	RowAffected int `json:"row_affected"`
}

// StartHttpServer starts the REST-ful API server.
func (s *RestServer) StartHttpServer() {
	s.CreateWebService()
	restful.DefaultContainer.Add(s.WebService)
	specConfig := restfulspec.Config{
		WebServices: restful.RegisteredWebServices(),
		APIPath:     "/apidocs.json",
	}
	restful.DefaultContainer.Add(restfulspec.NewOpenAPIService(specConfig))
	http.Handle("/metrics", promhttp.Handler())

	log.Logger().Info("start http server",
		zap.String("url", fmt.Sprintf("http://%s:%d", s.Config.Server.Host, s.Config.Server.Port)))
	log.Logger().Fatal("failed to start http server",
		zap.Error(http.ListenAndServe(fmt.Sprintf("%s:%d", s.Config.Server.Host, s.Config.Server.Port), nil)))
}

// RequestIDFilter attaches a request id to every response.
func RequestIDFilter(req *restful.Request, resp *restful.Response, chain *restful.FilterChain) {
	requestId := req.HeaderParameter("X-Request-ID")
	if requestId == "" {
		requestId = uuid.New().String()
	}
	resp.Header().Set("X-Request-ID", requestId)
	chain.ProcessFilter(req, resp)
}

func LogFilter(req *restful.Request, resp *restful.Response, chain *restful.FilterChain) {
	chain.ProcessFilter(req, resp)
	log.Logger().Info(fmt.Sprintf("%s %s", req.Request.Method, req.Request.URL),
		zap.Int("status_code", resp.StatusCode()))
}

// CreateWebService creates the web service.
func (s *RestServer) CreateWebService() {
	s.validate = validator.New()
	ws := s.WebService
	ws.Consumes(restful.MIME_JSON).Produces(restful.MIME_JSON)
	ws.Path("/api/")
	ws.Filter(RequestIDFilter)
	ws.Filter(LogFilter)

	/* Authentication */

	ws.Route(ws.POST("/auth/register").To(s.register).
		Doc("Register a user and issue a session token.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"auth"}).
		Reads(AuthRequest{}).
		Writes(TokenResponse{}))
	ws.Route(ws.POST("/auth/login").To(s.login).
		Doc("Issue a session token for an existing user.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"auth"}).
		Reads(AuthRequest{}).
		Writes(TokenResponse{}))

	/* Ratings */

	ws.Route(ws.POST("/ratings").To(s.insertRating).
		Doc("Rate an item. Rating again overwrites the previous value.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"rating"}).
		Param(ws.HeaderParameter("Authorization", "session token")).
		Reads(RatingRequest{}).
		Writes(RowAffected{}))
	ws.Route(ws.POST("/ratings/batch").To(s.insertRatings).
		Doc("Rate a batch of items at once, as on the onboarding screen.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"rating"}).
		Param(ws.HeaderParameter("Authorization", "session token")).
		Reads([]RatingRequest{}).
		Writes(RowAffected{}))
	ws.Route(ws.GET("/ratings").To(s.getRatings).
		Doc("Get the rating history of the authenticated user, oldest first.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"rating"}).
		Param(ws.HeaderParameter("Authorization", "session token")).
		Writes([]RatedItem{}))

	/* Recommendations */

	ws.Route(ws.GET("/recommend").To(s.getRecommend).
		Doc("Get personalized recommendations for the authenticated user.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"recommend"}).
		Param(ws.HeaderParameter("Authorization", "session token")).
		Param(ws.QueryParameter("n", "number of returned items").DataType("integer")).
		Writes(RecommendResponse{}))
	ws.Route(ws.GET("/similar/{item-id}").To(s.getSimilar).
		Doc("Get items similar to an item in tag space.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"recommend"}).
		Param(ws.PathParameter("item-id", "identifier of the item").DataType("string")).
		Param(ws.QueryParameter("n", "number of returned items").DataType("integer")).
		Writes([]SimilarItem{}))
	ws.Route(ws.GET("/popular").To(s.getPopular).
		Doc("Get the most popular items.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"recommend"}).
		Param(ws.QueryParameter("n", "number of returned items").DataType("integer")).
		Writes([]RecommendedItem{}))

	/* Administration */

	ws.Route(ws.POST("/admin/train").To(s.train).
		Doc("Re-train the model from stored ratings and swap the snapshot.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"admin"}).
		Param(ws.HeaderParameter("Authorization", "session token")).
		Writes(RowAffected{}))
	ws.Route(ws.GET("/health").To(s.getHealth).
		Doc("Liveness probe.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"admin"}).
		Writes(HealthResponse{}))
}

// ParseInt parses an integer query parameter with a fallback value.
func ParseInt(request *restful.Request, name string, fallback int) (value int, err error) {
	valueString := request.QueryParameter(name)
	value, err = strconv.Atoi(valueString)
	if err != nil && valueString == "" {
		value = fallback
		err = nil
	}
	return
}

// parseN parses the "n" query parameter. Negative values are a caller
// error.
func (s *RestServer) parseN(request *restful.Request) (int, error) {
	n, err := ParseInt(request, "n", s.Config.Recommend.TopN)
	if err != nil {
		return 0, errors.Trace(err)
	}
	if n < 0 {
		return 0, errors.BadRequestf("n must not be negative")
	}
	return n, nil
}

// authenticate resolves the session token of a request. On failure the
// 401 response has already been written.
func (s *RestServer) authenticate(request *restful.Request, response *restful.Response) (string, bool) {
	token := bearerToken(request.HeaderParameter("Authorization"))
	if token == "" {
		Unauthorized(response, errors.Unauthorizedf("missing bearer token"))
		return "", false
	}
	userId, err := s.Tokens.Validate(token)
	if err != nil {
		Unauthorized(response, err)
		return "", false
	}
	return userId, true
}

func (s *RestServer) register(request *restful.Request, response *restful.Response) {
	var body AuthRequest
	if err := request.ReadEntity(&body); err != nil {
		BadRequest(response, err)
		return
	}
	if err := s.validate.Struct(&body); err != nil {
		BadRequest(response, err)
		return
	}
	hash, err := HashPassword(body.Password)
	if err != nil {
		InternalServerError(response, err)
		return
	}
	err = s.DataClient.InsertUser(data.User{
		UserId:         body.UserId,
		HashedPassword: hash,
		CreatedAt:      time.Now(),
	})
	if err != nil {
		if errors.IsAlreadyExists(err) {
			BadRequest(response, err)
		} else {
			InternalServerError(response, err)
		}
		return
	}
	s.issueToken(response, body.UserId)
}

func (s *RestServer) login(request *restful.Request, response *restful.Response) {
	var body AuthRequest
	if err := request.ReadEntity(&body); err != nil {
		BadRequest(response, err)
		return
	}
	user, err := s.DataClient.GetUser(body.UserId)
	if err != nil {
		if errors.IsNotFound(err) {
			Unauthorized(response, errors.Unauthorizedf("wrong user id or password"))
		} else {
			InternalServerError(response, err)
		}
		return
	}
	if !VerifyPassword(user.HashedPassword, body.Password) {
		Unauthorized(response, errors.Unauthorizedf("wrong user id or password"))
		return
	}
	s.issueToken(response, user.UserId)
}

func (s *RestServer) issueToken(response *restful.Response, userId string) {
	token, err := s.Tokens.Issue(userId)
	if err != nil {
		InternalServerError(response, err)
		return
	}
	Ok(response, TokenResponse{UserId: userId, Token: token})
}

func (s *RestServer) insertRating(request *restful.Request, response *restful.Response) {
	userId, ok := s.authenticate(request, response)
	if !ok {
		return
	}
	var body RatingRequest
	if err := request.ReadEntity(&body); err != nil {
		BadRequest(response, err)
		return
	}
	if err := s.validate.Struct(&body); err != nil {
		BadRequest(response, err)
		return
	}
	if _, exist := s.Catalog.Get(body.ItemId); !exist {
		BadRequest(response, errors.BadRequestf("unknown item %v", body.ItemId))
		return
	}
	err := s.DataClient.UpsertRating(data.Rating{
		UserId:    userId,
		ItemId:    body.ItemId,
		Rating:    body.Rating,
		Timestamp: time.Now(),
	})
	if err != nil {
		InternalServerError(response, err)
		return
	}
	InsertRatingTotal.Inc()
	Ok(response, RowAffected{RowAffected: 1})
}

func (s *RestServer) insertRatings(request *restful.Request, response *restful.Response) {
	userId, ok := s.authenticate(request, response)
	if !ok {
		return
	}
	var body []RatingRequest
	if err := request.ReadEntity(&body); err != nil {
		BadRequest(response, err)
		return
	}
	if len(body) < s.Config.Recommend.FoldInMinRatings {
		BadRequest(response, errors.BadRequestf("at least %d ratings required",
			s.Config.Recommend.FoldInMinRatings))
		return
	}
	now := time.Now()
	ratings := make([]data.Rating, 0, len(body))
	for _, rating := range body {
		if err := s.validate.Struct(&rating); err != nil {
			BadRequest(response, err)
			return
		}
		if _, exist := s.Catalog.Get(rating.ItemId); !exist {
			BadRequest(response, errors.BadRequestf("unknown item %v", rating.ItemId))
			return
		}
		ratings = append(ratings, data.Rating{
			UserId:    userId,
			ItemId:    rating.ItemId,
			Rating:    rating.Rating,
			Timestamp: now,
		})
	}
	if err := s.DataClient.BatchUpsertRatings(ratings); err != nil {
		InternalServerError(response, err)
		return
	}
	InsertRatingTotal.Add(float64(len(ratings)))
	Ok(response, RowAffected{RowAffected: len(ratings)})
}

func (s *RestServer) getRatings(request *restful.Request, response *restful.Response) {
	userId, ok := s.authenticate(request, response)
	if !ok {
		return
	}
	ratings, err := s.DataClient.GetUserRatings(userId)
	if err != nil {
		InternalServerError(response, err)
		return
	}
	rated := make([]RatedItem, 0, len(ratings))
	for _, rating := range ratings {
		rated = append(rated, RatedItem{
			ItemId:    rating.ItemId,
			Title:     s.title(rating.ItemId),
			Rating:    rating.Rating,
			Timestamp: rating.Timestamp,
		})
	}
	Ok(response, rated)
}

func (s *RestServer) getRecommend(request *restful.Request, response *restful.Response) {
	userId, ok := s.authenticate(request, response)
	if !ok {
		return
	}
	start := time.Now()
	n, err := s.parseN(request)
	if err != nil {
		BadRequest(response, err)
		return
	}
	stored, err := s.DataClient.GetUserRatings(userId)
	if err != nil {
		InternalServerError(response, err)
		return
	}
	recommendation, err := s.Engine.Recommend(userId, toDatasetRatings(stored), n)
	if err != nil {
		if errors.IsNotAssigned(err) {
			ServiceUnavailable(response, err)
		} else {
			InternalServerError(response, err)
		}
		return
	}
	GetRecommendSeconds.Observe(time.Since(start).Seconds())
	Ok(response, RecommendResponse{
		SeedItemId: recommendation.SeedItemId,
		Items:      s.decorate(recommendation.Items),
	})
}

func (s *RestServer) getSimilar(request *restful.Request, response *restful.Response) {
	start := time.Now()
	n, err := s.parseN(request)
	if err != nil {
		BadRequest(response, err)
		return
	}
	items, err := s.Engine.SimilarItems(request.PathParameter("item-id"), n)
	if err != nil {
		if errors.IsNotFound(err) {
			PageNotFound(response, err)
		} else {
			InternalServerError(response, err)
		}
		return
	}
	GetSimilarSeconds.Observe(time.Since(start).Seconds())
	Ok(response, s.decorateSimilar(items))
}

func (s *RestServer) getPopular(request *restful.Request, response *restful.Response) {
	n, err := s.parseN(request)
	if err != nil {
		BadRequest(response, err)
		return
	}
	items, err := s.Engine.Popular(n)
	if err != nil {
		ServiceUnavailable(response, err)
		return
	}
	Ok(response, s.decorate(items))
}

func (s *RestServer) train(request *restful.Request, response *restful.Response) {
	if _, ok := s.authenticate(request, response); !ok {
		return
	}
	start := time.Now()
	stored, err := s.DataClient.SampleRatings(s.Config.Recommend.SampleSize)
	if err != nil {
		InternalServerError(response, err)
		return
	}
	if err = s.Engine.Train(toDatasetRatings(stored)); err != nil {
		if errors.IsBadRequest(err) {
			BadRequest(response, err)
		} else {
			InternalServerError(response, err)
		}
		return
	}
	TrainSeconds.Observe(time.Since(start).Seconds())
	Ok(response, RowAffected{RowAffected: len(stored)})
}

func (s *RestServer) getHealth(_ *restful.Request, response *restful.Response) {
	Ok(response, HealthResponse{
		Ready:         s.Engine.Ready(),
		DatabaseAlive: s.DataClient.Ping() == nil,
	})
}

func (s *RestServer) title(itemId string) string {
	if item, exist := s.Catalog.Get(itemId); exist {
		return item.Title
	}
	return ""
}

// decorate converts scored items for display, clamping the predicted
// rating to the valid rating scale while keeping the raw score.
func (s *RestServer) decorate(items []logics.ScoredItem) []RecommendedItem {
	decorated := make([]RecommendedItem, 0, len(items))
	for _, item := range items {
		predicted := item.Score
		if predicted < 0.5 {
			predicted = 0.5
		} else if predicted > 5 {
			predicted = 5
		}
		catalogItem, _ := s.Catalog.Get(item.ItemId)
		decorated = append(decorated, RecommendedItem{
			ItemId:          item.ItemId,
			Title:           catalogItem.Title,
			Tags:            catalogItem.Tags,
			Score:           item.Score,
			PredictedRating: predicted,
		})
	}
	return decorated
}

func (s *RestServer) decorateSimilar(items []logics.ScoredItem) []SimilarItem {
	decorated := make([]SimilarItem, 0, len(items))
	for _, item := range items {
		catalogItem, _ := s.Catalog.Get(item.ItemId)
		decorated = append(decorated, SimilarItem{
			ItemId: item.ItemId,
			Title:  catalogItem.Title,
			Tags:   catalogItem.Tags,
			Score:  item.Score,
		})
	}
	return decorated
}

func toDatasetRatings(stored []data.Rating) []dataset.Rating {
	ratings := make([]dataset.Rating, 0, len(stored))
	for _, rating := range stored {
		ratings = append(ratings, dataset.Rating{
			UserId:    rating.UserId,
			ItemId:    rating.ItemId,
			Rating:    rating.Rating,
			Timestamp: rating.Timestamp,
		})
	}
	return ratings
}

// BadRequest returns a bad request error.
func BadRequest(response *restful.Response, err error) {
	log.ResponseLogger(response).Error("bad request", zap.Error(err))
	writeError(response, http.StatusBadRequest, err)
}

// Unauthorized returns an unauthorized error.
func Unauthorized(response *restful.Response, err error) {
	writeError(response, http.StatusUnauthorized, err)
}

// PageNotFound returns a not found error.
func PageNotFound(response *restful.Response, err error) {
	writeError(response, http.StatusNotFound, err)
}

// ServiceUnavailable returns a service unavailable error.
func ServiceUnavailable(response *restful.Response, err error) {
	writeError(response, http.StatusServiceUnavailable, err)
}

// InternalServerError returns an internal server error.
func InternalServerError(response *restful.Response, err error) {
	log.ResponseLogger(response).Error("internal server error", zap.Error(err))
	writeError(response, http.StatusInternalServerError, err)
}

func writeError(response *restful.Response, status int, err error) {
	if err = response.WriteError(status, err); err != nil {
		log.ResponseLogger(response).Error("failed to write error", zap.Error(err))
	}
}

// Ok sends the content as JSON to the client.
func Ok(response *restful.Response, content interface{}) {
	if err := response.WriteAsJson(content); err != nil {
		log.ResponseLogger(response).Error("failed to write json", zap.Error(err))
	}
}
