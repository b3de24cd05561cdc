package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/alegriaw/chi-monthly-report-analyzer/config"
	"github.com/stretchr/testify/require"
)

func TestControllerAcquireRelease(t *testing.T) {
	limits := NewLimits(1, 1)
	controller := NewController(limits)

	require.Equal(t, limits, controller.LimitsSnapshot())

	require.NoError(t, controller.AcquireRequest(context.Background()))
	controller.ReleaseRequest()

	require.NoError(t, controller.AcquireWorkbook(context.Background()))
	controller.ReleaseWorkbook()
}

func TestAssistantSlotIsExclusive(t *testing.T) {
	controller := NewController(NewLimits(2, 2))
	require.NoError(t, controller.AcquireAssistant(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, controller.AcquireAssistant(ctx), context.DeadlineExceeded)

	controller.ReleaseAssistant()
	require.NoError(t, controller.AcquireAssistant(context.Background()))
	controller.ReleaseAssistant()
}

func TestLimitsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Server.OperationTimeout = 12 * time.Second
	cfg.Assistant.ChatTimeout = 60 * time.Second

	l := NewLimitsFromConfig(cfg)
	require.Equal(t, 12*time.Second, l.TimeoutFor("analyze_scores"))
	require.Equal(t, 65*time.Second, l.TimeoutFor("chat_summary"))
	require.Equal(t, cfg.Assistant.SummaryTimeout+5*time.Second, l.TimeoutFor("generate_summary"))
	require.Equal(t, config.DefaultMaxConcurrentRequests, l.MaxConcurrentRequests)
}
