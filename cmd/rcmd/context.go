package main

import "context"

type clientKey struct{}

func withClient(ctx context.Context, c *apiClient) context.Context {
	return context.WithValue(ctx, clientKey{}, c)
}

func clientFrom(ctx context.Context) *apiClient {
	return ctx.Value(clientKey{}).(*apiClient)
}
