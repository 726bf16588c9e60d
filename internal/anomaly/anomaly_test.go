package anomaly

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/mbd888/starledger/internal/logging"
	"github.com/mbd888/starledger/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dto "github.com/prometheus/client_model/go"
)

func TestReport_LogsAndCounts(t *testing.T) {
	var buf bytes.Buffer
	ctx := logging.WithLogger(context.Background(), logging.NewWithWriter(&buf, "info", "text"))

	counter, err := metrics.AnomaliesTotal.GetMetricWithLabelValues(string(InvalidMessageID))
	require.NoError(t, err)
	before := &dto.Metric{}
	_ = counter.Write(before)

	Report(ctx, InvalidMessageID, "receive invalid message identifier", "msg_id", -5)

	after := &dto.Metric{}
	_ = counter.Write(after)
	assert.Equal(t, before.Counter.GetValue()+1, after.Counter.GetValue())

	out := buf.String()
	assert.True(t, strings.Contains(out, "level=ERROR"), out)
	assert.Contains(t, out, "anomaly=invalid_message_id")
	assert.Contains(t, out, "msg_id=-5")
}
