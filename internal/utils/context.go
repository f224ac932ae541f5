package utils

import (
	"context"
)

type contextKey string

const ContextStationIDKey contextKey = "stationID"
const ContextAdminIDKey contextKey = "adminID"
const ContextAdminRoleKey contextKey = "adminRole"

func GetStationIDFromContext(ctx context.Context) (string, bool) {
	stationID := ctx.Value(ContextStationIDKey)
	stationIDStr, ok := stationID.(string)
	return stationIDStr, ok
}

func GetAdminIDFromContext(ctx context.Context) (string, bool) {
	adminID := ctx.Value(ContextAdminIDKey)
	adminIDStr, ok := adminID.(string)
	return adminIDStr, ok
}

func GetAdminRoleFromContext(ctx context.Context) (string, bool) {
	role := ctx.Value(ContextAdminRoleKey)
	roleStr, ok := role.(string)
	return roleStr, ok
}
