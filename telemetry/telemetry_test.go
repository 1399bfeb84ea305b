package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

func Test_newResource(t *testing.T) {
	assert := assert.New(t)

	res, err := newResource("canweb-test")
	require.NoError(t, err)

	name, ok := res.Set().Value(semconv.ServiceNameKey)
	assert.True(ok)
	assert.Equal("canweb-test", name.AsString())

	version, ok := res.Set().Value(attribute.Key("service.version"))
	assert.True(ok)
	assert.Equal(serviceVersion, version.AsString())
}
