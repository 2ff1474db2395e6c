package gate

import "context"

// User is the authenticated principal attached by the gate.
type User struct {
	ID string `json:"id"`
}

// ServerData is built fresh by the gate for every request it lets through.
// User is nil unless the request carries a valid session.
type ServerData struct {
	User *User
	// URL is the original request URI (path and query).
	URL string
}

type ctxKey struct{}

// WithServerData returns a copy of ctx carrying d.
func WithServerData(ctx context.Context, d ServerData) context.Context {
	return context.WithValue(ctx, ctxKey{}, d)
}

// FromContext returns the ServerData attached by the gate, if any.
func FromContext(ctx context.Context) (ServerData, bool) {
	d, ok := ctx.Value(ctxKey{}).(ServerData)
	return d, ok
}

// UserFrom returns the authenticated user on ctx, or nil.
func UserFrom(ctx context.Context) *User {
	d, _ := FromContext(ctx)
	return d.User
}
