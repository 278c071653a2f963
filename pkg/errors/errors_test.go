package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestSignal_Error(t *testing.T) {
	err := New(CodeInvalidRequest, "test error")
	expected := "INVALID_REQUEST: test error"
	if err.Error() != expected {
		t.Errorf("Error() = %v, want %v", err.Error(), expected)
	}
}

func TestSignal_WrapKeepsCause(t *testing.T) {
	originalErr := errors.New("original error")
	err := Wrap(originalErr, CodeSocketError, "wrapped error")

	if !errors.Is(err, originalErr) {
		t.Errorf("errors.Is should find the cause")
	}

	data, mErr := json.Marshal(err)
	if mErr != nil {
		t.Fatalf("marshal: %v", mErr)
	}
	if string(data) != `{"message":"wrapped error","code":"SOCKET_ERROR"}` {
		t.Errorf("cause must not be serialized, got %s", data)
	}
}

func TestSignal_WithDataReturnsCopy(t *testing.T) {
	base := InvalidRequest("bad")
	withData := base.WithData(map[string]string{"field": "eventId"})

	if base.Data != nil {
		t.Errorf("original signal must stay unchanged, got data %v", base.Data)
	}
	if withData.Data == nil {
		t.Errorf("copy should carry data")
	}

	data, _ := json.Marshal(withData)
	if string(data) != `{"message":"bad","code":"INVALID_REQUEST","data":{"field":"eventId"}}` {
		t.Errorf("unexpected json %s", data)
	}
}

func TestAuthFailed_UniformMessage(t *testing.T) {
	a := AuthFailed(errors.New("token is expired"))
	b := AuthFailed(errors.New("signature is invalid"))

	if a.Message != b.Message {
		t.Errorf("auth failures must not reveal the failed check: %q vs %q", a.Message, b.Message)
	}
	if a.Code != CodeAuthFailed || b.Code != CodeAuthFailed {
		t.Errorf("unexpected codes %s %s", a.Code, b.Code)
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeAuthRequired:   http.StatusUnauthorized,
		CodeAuthFailed:     http.StatusUnauthorized,
		CodeForbidden:      http.StatusForbidden,
		CodeInvalidRequest: http.StatusBadRequest,
		CodeNotFound:       http.StatusNotFound,
		CodeRateLimited:    http.StatusTooManyRequests,
		CodeUnavailable:    http.StatusServiceUnavailable,
		CodeSocketError:    http.StatusInternalServerError,
	}
	for code, status := range cases {
		if got := New(code, "x").HTTPStatus(); got != status {
			t.Errorf("HTTPStatus(%s) = %d, want %d", code, got, status)
		}
	}
}

func TestFrom(t *testing.T) {
	if From(nil) != nil {
		t.Errorf("From(nil) should be nil")
	}

	forbidden := Forbidden("no")
	wrapped := fmt.Errorf("handler: %w", forbidden)
	if got := From(wrapped); got != forbidden {
		t.Errorf("From should unwrap to the original signal")
	}

	plain := errors.New("redis: connection refused")
	got := From(plain)
	if got.Code != CodeSocketError {
		t.Errorf("plain errors map to SOCKET_ERROR, got %s", got.Code)
	}
	if got.Message == plain.Error() {
		t.Errorf("internal error text leaked to client message")
	}
}

func TestIsSignal(t *testing.T) {
	err := fmt.Errorf("auth: %w", AuthRequired())
	if !IsSignal(err) {
		t.Errorf("IsSignal should be true")
	}
	if IsSignal(errors.New("x")) {
		t.Errorf("IsSignal should be false for plain errors")
	}
}
