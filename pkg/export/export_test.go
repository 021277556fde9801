package export

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"retail-analytics/pkg/models"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"
)

var stamp = time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC)

func sampleArtifacts() []models.Artifact {
	return []models.Artifact{
		{Name: "overview", Records: []any{map[string]float64{"total_revenue": 80}}},
		{Name: "rfm", Records: []models.CustomerProfile{}},
	}
}

func TestTimestampedFilename(t *testing.T) {
	require.Equal(t, filepath.Join("out", "rfm_20240305_140709.json"), TimestampedFilename("out", "rfm", stamp))
}

func TestWriteArtifacts(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	paths, err := WriteArtifacts(dir, sampleArtifacts(), stamp)
	require.NoError(t, err)
	require.Len(t, paths, 2)

	data, err := os.ReadFile(paths[1])
	require.NoError(t, err)
	require.JSONEq(t, "[]", string(data))

	data, err = os.ReadFile(paths[0])
	require.NoError(t, err)
	require.JSONEq(t, `[{"total_revenue": 80}]`, string(data))
}

type fakeChannel struct {
	declared  []string
	published []amqp.Publishing
	exchanges []string
	failAfter int
	closed    bool
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, _, _, _, _ bool, _ amqp.Table) error {
	f.declared = append(f.declared, name+":"+kind)
	return nil
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, _ string, _, _ bool, msg amqp.Publishing) error {
	if f.failAfter > 0 && len(f.published) >= f.failAfter {
		return errors.New("channel closed")
	}
	f.exchanges = append(f.exchanges, exchange)
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestAMQPPublisher_Publish(t *testing.T) {
	ch := &fakeChannel{}
	p, err := NewAMQPPublisher(ch, "retail-analytics")
	require.NoError(t, err)
	require.Equal(t, []string{"retail-analytics:fanout"}, ch.declared)

	require.NoError(t, p.Publish(context.Background(), "run-1", sampleArtifacts()))
	require.Len(t, ch.published, 2)
	require.Equal(t, []string{"retail-analytics", "retail-analytics"}, ch.exchanges)

	msg := ch.published[0]
	require.Equal(t, "application/json", msg.ContentType)
	require.Equal(t, "run-1", msg.MessageId)
	require.Equal(t, "overview", msg.Headers["artifact"])

	var decoded Message
	require.NoError(t, json.Unmarshal(ch.published[1].Body, &decoded))
	require.Equal(t, "rfm", decoded.Name)
	require.Equal(t, "run-1", decoded.RunID)
	require.Equal(t, []any{}, decoded.Records)

	require.NoError(t, p.Close())
	require.True(t, ch.closed)
}

func TestAMQPPublisher_PublishError(t *testing.T) {
	ch := &fakeChannel{failAfter: 1}
	p, err := NewAMQPPublisher(ch, "x")
	require.NoError(t, err)
	err = p.Publish(context.Background(), "run-2", sampleArtifacts())
	require.ErrorContains(t, err, "publish rfm")
	require.Len(t, ch.published, 1)
}
