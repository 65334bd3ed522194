package inject

import (
	"context"
	"testing"

	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type greeter interface {
	Greet() string
}

type english struct{ name string }

func (e *english) Greet() string { return "hello " + e.name }

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func TestContainer_ResolvesInterfaceAndPointer(t *testing.T) {
	id := "inject-test-" + uuid.NewString()
	container, err := NewContainer(id, testLogger())
	require.NoError(t, err)

	svc := &english{name: "vine"}
	require.NoError(t, Instance[greeter](container, svc))
	require.NoError(t, Instance[*english](container, svc))

	ctx, err := WithContainer(context.Background(), id)
	require.NoError(t, err)

	ctx, g, err := ectoinject.GetContext[greeter](ctx)
	require.NoError(t, err)
	assert.Equal(t, "hello vine", g.Greet())

	_, p, err := ectoinject.GetContext[*english](ctx)
	require.NoError(t, err)
	assert.Same(t, svc, p)
}

func TestContainer_DuplicateIDIsRejected(t *testing.T) {
	id := "inject-test-" + uuid.NewString()
	_, err := NewContainer(id, testLogger())
	require.NoError(t, err)

	_, err = NewContainer(id, testLogger())
	assert.Error(t, err)
}

func TestWithContainer_UnknownID(t *testing.T) {
	_, err := WithContainer(context.Background(), "inject-test-missing-"+uuid.NewString())
	assert.Error(t, err)
}

func TestContainer_MissingDependency(t *testing.T) {
	id := "inject-test-" + uuid.NewString()
	_, err := NewContainer(id, testLogger())
	require.NoError(t, err)

	ctx, err := WithContainer(context.Background(), id)
	require.NoError(t, err)

	_, _, err = ectoinject.GetContext[greeter](ctx)
	assert.Error(t, err)
}
