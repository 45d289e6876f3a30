// Package grpcsvc exposes the engine's RPC surface (spec §6.1) over gRPC,
// wrapping the Distribution Scheduler behind an idempotency guard keyed on
// the idempotency-key request header.
package grpcsvc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/pos-distribution/engine/internal/domain"
	"github.com/pos-distribution/engine/internal/metrics"
	"github.com/pos-distribution/engine/internal/service/distribution"
	v1 "github.com/pos-distribution/engine/proto/distribution/v1"
)

const (
	grpcMethodDistributeOrder = "/distribution.v1.DistributionService/DistributeOrder"
	idempotencyKeyHeader      = "idempotency-key"
	idempotencyTTL            = 24 * time.Hour
)

// DistributionService implements v1.DistributionServiceServer over the
// Distribution Scheduler, creating the main purchase document itself before
// invoking it synchronously (spec §6.1).
type DistributionService struct {
	v1.UnimplementedDistributionServiceServer

	store     domain.StoreGateway
	scheduler *distribution.Scheduler
	idemRepo  domain.IdempotencyRepository
	logger    *log.Entry
	metrics   *metrics.DistributionMetrics
}

// NewDistributionService constructs the RPC surface. idemRepo may be nil,
// in which case idempotency guarding is bypassed entirely.
func NewDistributionService(
	store domain.StoreGateway,
	scheduler *distribution.Scheduler,
	idemRepo domain.IdempotencyRepository,
	logger *log.Entry,
) *DistributionService {
	if logger == nil {
		logger = log.New().WithField("component", "distribution-grpc")
	}
	return &DistributionService{store: store, scheduler: scheduler, idemRepo: idemRepo, logger: logger}
}

// WithMetrics attaches a metrics recorder around the scheduler invocation;
// it returns s to allow chaining after NewDistributionService.
func (s *DistributionService) WithMetrics(m *metrics.DistributionMetrics) *DistributionService {
	s.metrics = m
	return s
}

// DistributeOrder implements the distributeOrder RPC (§6.1).
func (s *DistributionService) DistributeOrder(ctx context.Context, req *v1.DistributeOrderRequest) (*v1.DistributeOrderResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	return withIdempotency(
		s,
		ctx,
		grpcMethodDistributeOrder,
		req,
		func(ctx context.Context) (*v1.DistributeOrderResponse, error) {
			return s.distributeOrderInternal(req)
		},
	)
}

func (s *DistributionService) distributeOrderInternal(req *v1.DistributeOrderRequest) (*v1.DistributeOrderResponse, error) {
	if req.EventID == "" {
		return nil, status.Error(codes.InvalidArgument, "event_id is required")
	}
	if req.ServingPointID == "" {
		return nil, status.Error(codes.InvalidArgument, "serving_point_id is required")
	}
	if len(req.Items) == 0 {
		return nil, status.Error(codes.InvalidArgument, "order must contain at least one item")
	}

	servingPoint, err := s.store.GetServingPoint(req.EventID, req.ServingPointID)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, status.Error(codes.NotFound, "serving point not found")
		}
		return nil, status.Error(codes.Internal, "failed to load serving point")
	}

	mode := domain.DistributionModeBalanced
	if req.DistributionMode != "" {
		mode = domain.DistributionMode(req.DistributionMode)
	} else if event, err := s.store.GetEvent(req.EventID); err == nil {
		mode = event.EffectiveDistributionMode()
	}

	purchaseID := uuid.NewString()
	now := time.Now().UTC()

	itemDocs := make([]domain.PurchaseItemDoc, 0, len(req.Items))
	for _, item := range req.Items {
		if item.ItemID == "" {
			return nil, status.Error(codes.InvalidArgument, "item_id is required")
		}
		qty := item.Quantity
		if qty <= 0 {
			qty = 1
		}
		itemDocs = append(itemDocs, domain.PurchaseItemDoc{
			ItemID:              item.ItemID,
			Count:               float64(qty),
			SelectedExtras:      item.SelectedExtras,
			ExcludedIngredients: item.ExcludedIngredients,
		})
	}

	purchase := &domain.Purchase{
		ID:             purchaseID,
		EventID:        req.EventID,
		ServingPointID: req.ServingPointID,
		UserID:         req.UserID,
		Note:           req.Note,
		OrderPlaced:    now,
		IsPaid:         true,
		PaymentMethod:  req.PaymentMethod,
	}

	if err := s.store.SetPurchaseItems(req.EventID, purchaseID, itemDocs); err != nil {
		return nil, status.Error(codes.Internal, "failed to store purchase items")
	}
	if err := s.store.UpsertPurchase(req.EventID, purchase); err != nil {
		return nil, status.Error(codes.Internal, "failed to store purchase")
	}

	items, err := s.loadAndEnrichItems(req.EventID, purchaseID)
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to load purchase items")
	}

	if s.metrics != nil {
		s.metrics.RecordDistributionStarted()
	}
	start := time.Now()
	result, distErr := s.scheduler.Distribute(distribution.Request{
		EventID:      req.EventID,
		PurchaseID:   purchaseID,
		Items:        items,
		ServingPoint: *servingPoint,
		Mode:         mode,
		Note:         req.Note,
	})
	if s.metrics != nil {
		s.metrics.RecordDistributionInFlightFinished()
		s.metrics.RecordDistributionDuration(time.Since(start))
		if distErr != nil || !result.Success {
			s.metrics.RecordDistributionFailed()
		} else {
			s.metrics.RecordDistributionSucceeded()
		}
	}

	if distErr != nil {
		msg := distErr.Error()
		if patchErr := s.store.PatchPurchaseDistribution(req.EventID, purchaseID, domain.DistributionOutcome{
			DistributionFailed: true,
			DistributionError:  msg,
		}); patchErr != nil {
			s.logger.WithError(patchErr).Warn("failed to record distribution failure")
		}
		if errors.Is(distErr, domain.ErrUnsupportedDistributionMode) {
			return nil, status.Error(codes.Unimplemented, msg)
		}
		if errors.Is(distErr, domain.ErrMissingRequiredFields) {
			return nil, status.Error(codes.InvalidArgument, msg)
		}
		return nil, status.Error(codes.Internal, msg)
	}

	if !result.Success {
		if patchErr := s.store.PatchPurchaseDistribution(req.EventID, purchaseID, domain.DistributionOutcome{
			DistributionFailed: true,
			DistributionError:  result.Error,
		}); patchErr != nil {
			s.logger.WithError(patchErr).Warn("failed to record distribution failure")
		}
		return &v1.DistributeOrderResponse{
			Success:    false,
			PurchaseID: purchaseID,
			Error:      result.Error,
		}, nil
	}

	if patchErr := s.store.PatchPurchaseDistribution(req.EventID, purchaseID, domain.DistributionOutcome{
		Distributed:   true,
		DistributedAt: now,
	}); patchErr != nil {
		s.logger.WithError(patchErr).Warn("failed to record distribution success")
	}

	resp := &v1.DistributeOrderResponse{
		Success:    true,
		PurchaseID: purchaseID,
	}
	for _, dp := range result.DistributedPurchases {
		resp.DistributedPurchases = append(resp.DistributedPurchases, v1.DistributedPurchase{
			POSID:      dp.POSID,
			POSName:    dp.POSName,
			OrderID:    dp.OrderID,
			ItemsCount: int32(dp.ItemsCount),
		})
	}
	return resp, nil
}

// loadAndEnrichItems mirrors the Purchase Orchestrator's normalization step
// (internal/service/orchestrator), since this RPC performs the same
// purchase-items-to-canonical-lines conversion inline instead of reacting
// to a change event.
func (s *DistributionService) loadAndEnrichItems(eventID, purchaseID string) ([]domain.CanonicalLineItem, error) {
	docs, err := s.store.ListPurchaseItems(eventID, purchaseID)
	if err != nil {
		return nil, err
	}

	var out []domain.CanonicalLineItem
	for _, doc := range docs {
		for _, line := range domain.NormalizeQuantity(doc) {
			canonical, err := s.store.GetCanonicalItem(eventID, line.ItemID)
			if err == nil {
				line.Name = canonical.Name
				line.Price = canonical.Price
				line.Category = canonical.Category
				line.CategoryName = canonical.CategoryName
			} else if !domain.IsNotFound(err) {
				return nil, err
			}
			out = append(out, line)
		}
	}
	return out, nil
}

type idempotencyErrorPayload struct {
	Code    int32  `json:"code"`
	Message string `json:"message"`
}

// withIdempotency wraps a single DistributeOrder invocation with the
// idempotency-key guard: a first call with a given key runs handler and
// caches the outcome; replays return the cached response or the previous
// failure without re-running the scheduler.
func withIdempotency(
	s *DistributionService,
	ctx context.Context,
	method string,
	req *v1.DistributeOrderRequest,
	handler func(context.Context) (*v1.DistributeOrderResponse, error),
) (*v1.DistributeOrderResponse, error) {
	if s.idemRepo == nil {
		return handler(ctx)
	}

	idemKey, err := readIdempotencyKey(ctx)
	if err != nil {
		return nil, err
	}

	reqHash, err := buildIdempotencyRequestHash(method, req)
	if err != nil {
		s.logger.WithError(err).WithField("method", method).Warn("failed to build idempotency request hash")
		return nil, status.Error(codes.Internal, "failed to initialize idempotency request")
	}

	record, err := s.idemRepo.CreateProcessing(idemKey, reqHash, time.Now().UTC().Add(idempotencyTTL))
	if err != nil {
		return replayIdempotency(s, err, record)
	}

	resp, runErr := handler(ctx)
	if runErr != nil {
		s.cacheIdempotencyFailure(idemKey, runErr)
		return resp, runErr
	}

	if cacheErr := s.cacheIdempotencySuccess(idemKey, resp); cacheErr != nil {
		s.logger.WithError(cacheErr).WithField("idempotency_key", idemKey).Warn("failed to store idempotent success response")
	}

	return resp, nil
}

func replayIdempotency(s *DistributionService, createErr error, record domain.IdempotencyRecord) (*v1.DistributeOrderResponse, error) {
	switch {
	case errors.Is(createErr, domain.ErrIdempotencyHashMismatch):
		return nil, status.Error(codes.AlreadyExists, "idempotency key is already used with different request payload")
	case errors.Is(createErr, domain.ErrIdempotencyKeyAlreadyExists):
		switch record.Status {
		case domain.IdempotencyStatusDone:
			if len(record.ResponseBody) == 0 {
				return nil, status.Error(codes.Internal, "idempotency cache is empty")
			}
			resp := &v1.DistributeOrderResponse{}
			if err := json.Unmarshal(record.ResponseBody, resp); err != nil {
				s.logger.WithError(err).WithField("idempotency_key", record.Key).Warn("failed to decode cached idempotency response")
				return nil, status.Error(codes.Internal, "failed to decode cached idempotency response")
			}
			return resp, nil
		case domain.IdempotencyStatusProcessing:
			return nil, status.Error(codes.Aborted, "request with the same idempotency key is already processing")
		case domain.IdempotencyStatusFailed:
			return nil, decodeIdempotencyFailure(record)
		default:
			return nil, status.Error(codes.Internal, "unknown idempotency record status")
		}
	default:
		s.logger.WithError(createErr).Warn("failed to create idempotency record")
		return nil, status.Error(codes.Internal, "failed to initialize idempotency request")
	}
}

func (s *DistributionService) cacheIdempotencySuccess(key string, resp *v1.DistributeOrderResponse) error {
	if resp == nil {
		return s.idemRepo.MarkDone(key, nil, int(codes.OK))
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return s.idemRepo.MarkDone(key, data, int(codes.OK))
}

func (s *DistributionService) cacheIdempotencyFailure(key string, runErr error) {
	st := status.Convert(runErr)
	code := st.Code()
	if code == codes.OK {
		code = codes.Internal
	}

	payload, err := json.Marshal(idempotencyErrorPayload{
		Code:    int32(code),
		Message: st.Message(),
	})
	if err != nil {
		s.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to encode idempotency failure payload")
		payload = nil
	}

	if err := s.idemRepo.MarkFailed(key, payload, int(code)); err != nil {
		s.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to store idempotency failure response")
	}
}

func decodeIdempotencyFailure(record domain.IdempotencyRecord) error {
	if len(record.ResponseBody) > 0 {
		var payload idempotencyErrorPayload
		if err := json.Unmarshal(record.ResponseBody, &payload); err == nil {
			if code, ok := grpcCodeFromInt32(payload.Code); ok {
				if code == codes.OK {
					code = codes.Internal
				}
				if payload.Message == "" {
					payload.Message = "previous request with the same idempotency key failed"
				}
				return status.Error(code, payload.Message)
			}
		}
	}

	if record.HTTPStatus > 0 {
		if code, ok := grpcCodeFromInt(record.HTTPStatus); ok && code != codes.OK {
			return status.Error(code, "previous request with the same idempotency key failed")
		}
	}

	return status.Error(codes.Internal, "previous request with the same idempotency key failed")
}

func grpcCodeFromInt32(value int32) (codes.Code, bool) {
	if value < int32(codes.OK) || value > int32(codes.Unauthenticated) {
		return codes.Internal, false
	}
	return codes.Code(uint32(value)), true
}

func grpcCodeFromInt(value int) (codes.Code, bool) {
	if value < int(codes.OK) || value > int(codes.Unauthenticated) {
		return codes.Internal, false
	}
	return codes.Code(uint32(value)), true
}

func readIdempotencyKey(ctx context.Context) (string, error) {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		values := md.Get(idempotencyKeyHeader)
		if len(values) > 0 && strings.TrimSpace(values[0]) != "" {
			return strings.TrimSpace(values[0]), nil
		}
	}

	if md, ok := metadata.FromOutgoingContext(ctx); ok {
		values := md.Get(idempotencyKeyHeader)
		if len(values) > 0 && strings.TrimSpace(values[0]) != "" {
			return strings.TrimSpace(values[0]), nil
		}
	}

	return "", status.Error(codes.InvalidArgument, "idempotency-key metadata is required")
}

func buildIdempotencyRequestHash(method string, req *v1.DistributeOrderRequest) (string, error) {
	if req == nil {
		return "", fmt.Errorf("request is nil")
	}

	data, err := json.Marshal(req)
	if err != nil {
		return "", err
	}

	payload := make([]byte, 0, len(method)+1+len(data))
	payload = append(payload, method...)
	payload = append(payload, ':')
	payload = append(payload, data...)
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}
