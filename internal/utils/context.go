package utils

import (
	"context"

	"github.com/gin-gonic/gin"
)

type CustomContext struct {
	AppSource string
	RunID     string
	Account   string
	RequestID string
}

type customContextKeyType string

const customContextKey customContextKeyType = "CUSTOM_CONTEXT"

func WithCustomContext(ctx context.Context, customContext *CustomContext) context.Context {
	return context.WithValue(ctx, customContextKey, customContext)
}

func WithCustomContextFromGinRequest(c *gin.Context, appSource string) context.Context {
	customContext := &CustomContext{
		AppSource: appSource,
		RequestID: c.GetString("RequestId"),
	}
	return WithCustomContext(c.Request.Context(), customContext)
}

func GetContext(ctx context.Context) *CustomContext {
	customContext, ok := ctx.Value(customContextKey).(*CustomContext)
	if !ok {
		return new(CustomContext)
	}
	return customContext
}

func GetRunIDFromContext(ctx context.Context) string {
	return GetContext(ctx).RunID
}

func GetAccountFromContext(ctx context.Context) string {
	return GetContext(ctx).Account
}

func SetRunIDInContext(ctx context.Context, runID string) context.Context {
	customContext := *GetContext(ctx)
	customContext.RunID = runID
	return WithCustomContext(ctx, &customContext)
}

func SetAccountInContext(ctx context.Context, account string) context.Context {
	customContext := *GetContext(ctx)
	customContext.Account = account
	return WithCustomContext(ctx, &customContext)
}
