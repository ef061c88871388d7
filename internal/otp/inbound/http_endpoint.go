package inbound

import (
	"github.com/shandysiswandi/otpgate/internal/otp/usecase"
	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
	"github.com/shandysiswandi/otpgate/internal/pkg/router"
)

// HTTPEndpoint exposes the issue and verify operations over HTTP.
type HTTPEndpoint struct {
	uc uc
}

// Send issues a fresh code for a session and delivers it on the primary channel.
// @Summary Send one-time code
// @Description Issues a new code for the session, replacing any previous one. A session id is generated when omitted.
// @Tags OTP
// @Accept json
// @Produce json
// @Param Idempotency-Key header string false "Rejects a repeated request with 409"
// @Param request body SendRequest true "Send payload"
// @Success 200 {object} router.successResponse{data=SendResponse} "Code issued"
// @Failure 400 {object} router.errorResponse "Invalid request body"
// @Failure 409 {object} router.errorResponse "Duplicate idempotency key"
// @Failure 422 {object} router.errorResponse "Validation error"
// @Failure 500 {object} router.errorResponse "Internal server error"
// @Router /api/v1/otp/send [post]
func (h *HTTPEndpoint) Send(r *router.Request) (any, error) {
	var req SendRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	resp, err := h.uc.Issue(r.Context(), usecase.IssueInput{
		SessionID:      req.SessionID,
		Recipient:      req.Recipient,
		IdempotencyKey: r.GetHeader(HeaderIdempotencyKey),
	})
	if err != nil {
		return nil, err
	}

	return SendResponse{
		SessionID:        resp.SessionID,
		ExpiresAt:        resp.ExpiresAt,
		ExpiresInSeconds: int64(resp.ExpiresIn.Seconds()),
		Delivery: DeliveryResponse{
			Channel:  resp.Delivery.Channel,
			Skipped:  resp.Delivery.Skipped,
			Reason:   resp.Delivery.Reason,
			Attempts: resp.Delivery.Attempts,
		},
	}, nil
}

// Verify checks a submitted code against the session's live code.
// @Summary Verify one-time code
// @Description Consumes the code on a match. Expired and wrong codes share one response.
// @Tags OTP
// @Accept json
// @Produce json
// @Param request body VerifyRequest true "Verify payload"
// @Success 200 {object} router.successResponse{data=VerifyResponse} "Code verified"
// @Failure 400 {object} router.errorResponse "Invalid request body"
// @Failure 401 {object} router.errorResponse "Invalid or expired code"
// @Failure 422 {object} router.errorResponse "Validation error"
// @Failure 500 {object} router.errorResponse "Internal server error"
// @Router /api/v1/otp/verify [post]
func (h *HTTPEndpoint) Verify(r *router.Request) (any, error) {
	var req VerifyRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	resp, err := h.uc.Verify(r.Context(), usecase.VerifyInput{
		SessionID: req.SessionID,
		Code:      req.Code,
	})
	if err != nil {
		return nil, err
	}

	if !resp.Verified {
		return nil, goerror.NewBusiness(resp.Message, goerror.CodeUnauthorized)
	}

	return VerifyResponse{Verified: true}, nil
}
