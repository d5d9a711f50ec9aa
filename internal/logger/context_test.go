package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextCarriesTraceAndProjectIDs(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetTraceID(ctx))
	assert.Empty(t, GetProjectID(ctx))

	ctx = WithTraceID(ctx, "01TRACE")
	ctx = WithProjectID(ctx, "01PROJECT")
	assert.Equal(t, "01TRACE", GetTraceID(ctx))
	assert.Equal(t, "01PROJECT", GetProjectID(ctx))
}
