package requestctx

import (
	"context"
	"testing"
)

func TestIdentityRoundTrip(t *testing.T) {
	t.Parallel()

	want := Identity{
		UserID:    "user-1",
		Role:      RoleTeacher,
		SchoolID:  "school-1",
		TownClass: "6A",
	}
	ctx := WithIdentity(context.Background(), want)

	got, ok := IdentityFromContext(ctx)
	if !ok {
		t.Fatal("expected identity in context")
	}
	if got != want {
		t.Fatalf("identity = %+v, want %+v", got, want)
	}
	if !got.IsTeacher() {
		t.Fatal("expected teacher identity")
	}
}

func TestIdentityFromContextMissing(t *testing.T) {
	t.Parallel()

	if _, ok := IdentityFromContext(context.Background()); ok {
		t.Fatal("expected no identity in empty context")
	}
	if _, ok := IdentityFromContext(nil); ok {
		t.Fatal("expected no identity in nil context")
	}
}

func TestWithIdentityNilContext(t *testing.T) {
	t.Parallel()

	ctx := WithIdentity(nil, Identity{UserID: "user-2", Role: RoleStudent})
	got, ok := IdentityFromContext(ctx)
	if !ok {
		t.Fatal("expected identity in context")
	}
	if got.UserID != "user-2" {
		t.Fatalf("user id = %q, want user-2", got.UserID)
	}
	if got.IsTeacher() {
		t.Fatal("student identity reported as teacher")
	}
}
