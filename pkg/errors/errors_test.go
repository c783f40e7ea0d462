package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true},
		{code: CodeForbidden, status: http.StatusForbidden, publicMsg: "access denied"},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeConflict, status: http.StatusConflict, publicMsg: "conflict detected", retryable: true, detailsOK: true},
		{code: CodeCartExpired, status: http.StatusGone, publicMsg: "cart expired"},
		{code: CodeCouponMinimumNotMet, status: http.StatusUnprocessableEntity, publicMsg: "coupon minimum spend not met", detailsOK: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable", retryable: true, detailsOK: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeDependency, cause, "catalog lookup")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Code() != CodeDependency {
		t.Fatalf("unexpected code %s", wrapped.Code())
	}
	if Wrap(CodeInternal, nil, "x").Unwrap() != nil {
		t.Fatalf("nil cause should not be recorded")
	}
}

func TestIsWalksNestedCodes(t *testing.T) {
	inner := New(CodeProductNotAvailable, "sku-1 out of stock")
	outer := Wrap(CodeConflict, fmt.Errorf("merge: %w", inner), "merge failed")

	if !Is(outer, CodeConflict) {
		t.Fatalf("expected outer code match")
	}
	if !Is(outer, CodeProductNotAvailable) {
		t.Fatalf("expected nested code match")
	}
	if Is(outer, CodeNotFound) {
		t.Fatalf("unexpected match")
	}
	if CodeOf(stdErrors.New("plain")) != CodeInternal {
		t.Fatalf("untyped errors map to internal")
	}
}

func TestAsReturnsTypedError(t *testing.T) {
	err := New(CodeForbidden, "no entry").WithDetails(map[string]any{"cart_id": "c1"})
	got := As(fmt.Errorf("ctx: %w", err))
	if got == nil || got.Code() != CodeForbidden || got.Details() == nil {
		t.Fatalf("As failed to return typed error")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}

func TestDumpOfCollectsStepAndPostgresInfo(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "ux_carts_active_owner", TableName: "carts"}
	err := Wrap(CodeDependency, fmt.Errorf("save: %w", pgErr), "merge commit failed").
		WithDetails(map[string]any{"step": "commit"})

	d := DumpOf(err)
	if d.Code != CodeDependency || d.Step != "commit" {
		t.Fatalf("unexpected dump %+v", d)
	}
	if d.PG == nil || d.PG.Constraint != "ux_carts_active_owner" {
		t.Fatalf("expected postgres info, got %+v", d.PG)
	}
	if len(d.Chain) < 3 {
		t.Fatalf("expected full chain, got %v", d.Chain)
	}
	fields := d.Fields()
	if fields["pg_code"] != "23505" || fields["step"] != "commit" {
		t.Fatalf("unexpected fields %v", fields)
	}
	if DumpOf(nil).Chain != nil {
		t.Fatalf("nil error should produce an empty dump")
	}
}
