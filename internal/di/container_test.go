package di

import (
	"context"
	"testing"

	"examprep/internal/config"
	"examprep/internal/observability"
	contextutils "examprep/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		LLM: config.LLMConfig{
			BaseURL: "http://127.0.0.1:1",
			Model:   "test-model",
			APIKeys: []string{"key-a", " ", "key-b"},
		},
		Media: config.MediaConfig{
			TTSBasePath:  config.DefaultTTSBasePath,
			ImageBaseURL: config.DefaultImageBaseURL,
			ImageWidth:   config.DefaultImageWidth,
			ImageHeight:  config.DefaultImageHeight,
		},
		IsTest: true,
	}
}

func testLogger() *observability.Logger {
	return observability.NewLogger(&config.OpenTelemetryConfig{})
}

func TestBuildExamService(t *testing.T) {
	svc := BuildExamService(testConfig(), nil, nil, observability.NewExamMetrics(), testLogger())
	require.NotNil(t, svc)
}

func TestInitialize_MissingDatabaseURL(t *testing.T) {
	sc := NewServiceContainer(testConfig(), testLogger())

	err := sc.Initialize(context.Background())
	require.Error(t, err)
	assert.True(t, contextutils.IsError(err, contextutils.ErrMissingRequired))
	assert.Nil(t, sc.GetDatabase())
	assert.Empty(t, sc.shutdownFuncs)

	_, err = sc.GetExamService()
	assert.Error(t, err)
}

func TestGetServiceAs(t *testing.T) {
	sc := NewServiceContainer(testConfig(), testLogger())
	sc.services["answer"] = 42

	n, err := GetServiceAs[int](sc, "answer")
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	_, err = GetServiceAs[string](sc, "answer")
	assert.Error(t, err)

	_, err = GetServiceAs[int](sc, "missing")
	assert.Error(t, err)
}

func TestShutdown_RunsInReverseOrder(t *testing.T) {
	sc := NewServiceContainer(testConfig(), testLogger())
	var order []string
	sc.shutdownFuncs = append(sc.shutdownFuncs,
		func(context.Context) error { order = append(order, "db"); return nil },
		func(context.Context) error { order = append(order, "cache"); return nil },
	)

	require.NoError(t, sc.Shutdown(context.Background()))
	assert.Equal(t, []string{"cache", "db"}, order)
	assert.Empty(t, sc.shutdownFuncs)
}
