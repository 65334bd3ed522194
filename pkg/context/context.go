package context

import "context"

type ContextKey string

var (
	RequestIDKey  = ContextKey("X-Request-Id")
	RouteKey      = ContextKey("X-Route")
	UserIDKey     = ContextKey("X-User-Id")
	ImportIDKey   = ContextKey("X-Import-Id")
	SupplierIDKey = ContextKey("X-Supplier-Id")
)

func getString(ctx context.Context, key ContextKey) string {
	value, ok := ctx.Value(key).(string)
	if !ok {
		return ""
	}
	return value
}

func SetRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

func GetRequestID(ctx context.Context) string {
	return getString(ctx, RequestIDKey)
}

func SetRoute(ctx context.Context, route string) context.Context {
	return context.WithValue(ctx, RouteKey, route)
}

func GetRoute(ctx context.Context) string {
	return getString(ctx, RouteKey)
}

func SetUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

func GetUserID(ctx context.Context) string {
	return getString(ctx, UserIDKey)
}

func SetImportID(ctx context.Context, importID string) context.Context {
	return context.WithValue(ctx, ImportIDKey, importID)
}

func GetImportID(ctx context.Context) string {
	return getString(ctx, ImportIDKey)
}

func SetSupplierID(ctx context.Context, supplierID string) context.Context {
	return context.WithValue(ctx, SupplierIDKey, supplierID)
}

func GetSupplierID(ctx context.Context) string {
	return getString(ctx, SupplierIDKey)
}

// LogFields returns the non-empty correlation values carried by ctx.
func LogFields(ctx context.Context) map[string]any {
	fields := map[string]any{}
	for key, value := range map[string]string{
		"request_id":  GetRequestID(ctx),
		"user_id":     GetUserID(ctx),
		"import_id":   GetImportID(ctx),
		"supplier_id": GetSupplierID(ctx),
	} {
		if value != "" {
			fields[key] = value
		}
	}
	return fields
}
