package middleware

import "context"

// caller is what the auth chain learns about the requester. Auth fills uid and
// the verification flag; EnsureIdentity adds the stored role.
type caller struct {
	uid           string
	emailVerified bool
	role          string
}

type callerKey struct{}

type requestIDKey struct{}

func callerFrom(ctx context.Context) caller {
	if ctx == nil {
		return caller{}
	}
	c, _ := ctx.Value(callerKey{}).(caller)
	return c
}

func withCaller(ctx context.Context, c caller) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, callerKey{}, c)
}

// UserIDFromContext returns the authenticated uid, or "" for anonymous viewers.
func UserIDFromContext(ctx context.Context) string {
	return callerFrom(ctx).uid
}

// RoleFromContext returns the role read from the role store by EnsureIdentity.
func RoleFromContext(ctx context.Context) string {
	return callerFrom(ctx).role
}

func EmailVerifiedFromContext(ctx context.Context) bool {
	return callerFrom(ctx).emailVerified
}

func WithUserID(ctx context.Context, uid string) context.Context {
	c := callerFrom(ctx)
	c.uid = uid
	return withCaller(ctx, c)
}

func WithRole(ctx context.Context, role string) context.Context {
	c := callerFrom(ctx)
	c.role = role
	return withCaller(ctx, c)
}

// RequestIDFromContext returns the id assigned by RequestID.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
