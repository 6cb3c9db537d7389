package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

const (
	ErrorCodeInvalidRequest        = "INVALID_REQUEST"
	ErrorCodeUnauthorized          = "UNAUTHORIZED"
	ErrorCodeForbidden             = "FORBIDDEN"
	ErrorCodeComplianceRequired    = "COMPLIANCE_REQUIRED"
	ErrorCodeInsufficientAllowance = "INSUFFICIENT_ALLOWANCE"
	ErrorCodeNotFound              = "NOT_FOUND"
	ErrorCodeInvalidState          = "INVALID_STATE"
	ErrorCodeConflict              = "CONFLICT"
	ErrorCodeSettlementFailed      = "SETTLEMENT_FAILED"
	ErrorCodeReceiptMismatch       = "RECEIPT_MISMATCH"
	ErrorCodeInternalError         = "INTERNAL_ERROR"
)

type errorResponse struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details"`
}

func AssertErrorCode(t *testing.T, resp *httptest.ResponseRecorder, expectedCode string) {
	t.Helper()
	if resp.Code != getHTTPStatusForErrorCode(expectedCode) {
		t.Fatalf("expected status %d, got %d (body %s)", getHTTPStatusForErrorCode(expectedCode), resp.Code, resp.Body.String())
	}

	var errResp errorResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &errResp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}

	if errResp.Code != expectedCode {
		t.Fatalf("expected error code %q, got %q", expectedCode, errResp.Code)
	}
}

func AssertErrorDetail(t *testing.T, resp *httptest.ResponseRecorder, key, expected string) {
	t.Helper()
	var errResp errorResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &errResp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if errResp.Details[key] != expected {
		t.Fatalf("expected detail %s=%q, got %q", key, expected, errResp.Details[key])
	}
}

func AssertHTTPStatus(t *testing.T, resp *httptest.ResponseRecorder, expectedStatus int) {
	t.Helper()
	if resp.Code != expectedStatus {
		t.Fatalf("expected status %d, got %d (body %s)", expectedStatus, resp.Code, resp.Body.String())
	}
}

func getHTTPStatusForErrorCode(code string) int {
	switch code {
	case ErrorCodeInvalidRequest, ErrorCodeInsufficientAllowance:
		return http.StatusBadRequest
	case ErrorCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrorCodeForbidden, ErrorCodeComplianceRequired:
		return http.StatusForbidden
	case ErrorCodeNotFound:
		return http.StatusNotFound
	case ErrorCodeInvalidState, ErrorCodeConflict:
		return http.StatusConflict
	case ErrorCodeSettlementFailed, ErrorCodeReceiptMismatch:
		return http.StatusBadGateway
	case ErrorCodeInternalError:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
