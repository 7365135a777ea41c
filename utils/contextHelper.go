package utils

import (
	"context"

	"bitbucket.org/mmdatafocus/stockdocs_backend/appctx"
)

// Alias the shared context key type so existing code keeps working.
type contextKey = appctx.ContextKey

var (
	ContextKeyToken         = appctx.ContextKeyToken
	ContextKeyBusinessId    = appctx.ContextKeyBusinessId
	ContextKeyUsername      = appctx.ContextKeyUsername
	ContextKeyUserId        = appctx.ContextKeyUserId
	ContextKeyUserName      = appctx.ContextKeyUserName
	ContextKeyShopId        = appctx.ContextKeyShopId
	ContextKeyCorrelationId = appctx.ContextKeyCorrelationId

	ContextKeySkipTenantScope = appctx.ContextKeySkipTenantScope
)

func GetTokenFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyToken)
}

func GetBusinessIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyBusinessId)
}

func GetUsernameFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyUsername)
}

func GetUserIdFromContext(ctx context.Context) (int, bool) {
	return appctx.GetInt(ctx, ContextKeyUserId)
}

func GetUserNameFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyUserName)
}

func GetShopIdFromContext(ctx context.Context) (int, bool) {
	return appctx.GetInt(ctx, ContextKeyShopId)
}

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCorrelationId)
}

func SetTokenInContext(ctx context.Context, token string) context.Context {
	return appctx.Set(ctx, ContextKeyToken, token)
}

func SetBusinessIdInContext(ctx context.Context, businessId string) context.Context {
	return appctx.Set(ctx, ContextKeyBusinessId, businessId)
}

func SetUsernameInContext(ctx context.Context, username string) context.Context {
	return appctx.Set(ctx, ContextKeyUsername, username)
}

func SetUserIdInContext(ctx context.Context, userId int) context.Context {
	return appctx.Set(ctx, ContextKeyUserId, userId)
}

func SetUserNameInContext(ctx context.Context, userName string) context.Context {
	return appctx.Set(ctx, ContextKeyUserName, userName)
}

func SetShopIdInContext(ctx context.Context, shopId int) context.Context {
	return appctx.Set(ctx, ContextKeyShopId, shopId)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, ContextKeyCorrelationId, correlationId)
}

// DetachContext copies the request-scoped values onto a fresh background
// context. Work that outlives the request (debounced saves) must not die with
// the request's cancellation.
func DetachContext(ctx context.Context) context.Context {
	detached := context.Background()
	if v, ok := GetTokenFromContext(ctx); ok {
		detached = SetTokenInContext(detached, v)
	}
	if v, ok := GetBusinessIdFromContext(ctx); ok {
		detached = SetBusinessIdInContext(detached, v)
	}
	if v, ok := GetUsernameFromContext(ctx); ok {
		detached = SetUsernameInContext(detached, v)
	}
	if v, ok := GetUserIdFromContext(ctx); ok {
		detached = SetUserIdInContext(detached, v)
	}
	if v, ok := GetUserNameFromContext(ctx); ok {
		detached = SetUserNameInContext(detached, v)
	}
	if v, ok := GetShopIdFromContext(ctx); ok {
		detached = SetShopIdInContext(detached, v)
	}
	if v, ok := GetCorrelationIdFromContext(ctx); ok {
		detached = SetCorrelationIdInContext(detached, v)
	}
	return detached
}
