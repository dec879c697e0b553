package kafka

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"benchml/sink"
)

func withMock(t *testing.T, mp *mocks.AsyncProducer) *driver {
	t.Helper()
	d := &driver{newProducer: func([]string, *sarama.Config) (sarama.AsyncProducer, error) { return mp, nil }}
	require.NoError(t, d.Configure(Config{Brokers: []string{"b:9092"}, Topic: "bench", Acks: -1}))
	return d
}

func TestDriver_PublishesKeyedJSON(t *testing.T) {
	mp := mocks.NewAsyncProducer(t, nil)
	mp.ExpectInputWithMessageCheckerFunctionAndSucceed(func(m *sarama.ProducerMessage) error {
		if m.Topic != "bench" {
			return errors.New("wrong topic " + m.Topic)
		}
		k, _ := m.Key.Encode()
		if string(k) != "qm9:U0:a.xyz" {
			return errors.New("wrong key " + string(k))
		}
		v, _ := m.Value.Encode()
		var r sink.Record
		if err := json.Unmarshal(v, &r); err != nil {
			return err
		}
		if r.Module != "krr" || r.Metrics["mae"] != 0.25 {
			return errors.New("unexpected record")
		}
		return nil
	})
	d := withMock(t, mp)

	require.NoError(t, d.Push(sink.Record{Dataset: "qm9:U0:a.xyz", Module: "krr", Metrics: map[string]float64{"mae": 0.25}}))
	require.NoError(t, d.Close())
	require.NoError(t, d.Close())
}

func TestDriver_DeliveryErrorsAreDrained(t *testing.T) {
	mp := mocks.NewAsyncProducer(t, nil)
	mp.ExpectInputAndFail(sarama.ErrOutOfBrokers)
	d := withMock(t, mp)

	require.NoError(t, d.Push(sink.Record{Dataset: "d"}))
	assert.NoError(t, d.Close())
}

func TestDriver_ConfigValidation(t *testing.T) {
	d := &driver{}
	assert.Error(t, d.Configure("nope"))
	assert.Error(t, d.Configure(Config{Topic: "t"}))
	assert.Error(t, d.Push(sink.Record{}))
}
