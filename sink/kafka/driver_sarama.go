package kafka

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/IBM/sarama"

	"benchml/sink"
)

type Config struct {
	Brokers []string     `yaml:"brokers"`
	Topic   string       `yaml:"topic"`
	Acks    int16        `yaml:"required_acks"` // 0,1,-1
	Log     *slog.Logger `yaml:"-"`
}

type producerFunc func(brokers []string, cfg *sarama.Config) (sarama.AsyncProducer, error)

type driver struct {
	cfg Config
	p   sarama.AsyncProducer

	newProducer producerFunc
	wg          sync.WaitGroup
	once        sync.Once
}

func (d *driver) Configure(c any) error {
	cfg, ok := c.(Config)
	if !ok {
		return fmt.Errorf("kafka-sink: want Config, got %T", c)
	}
	if cfg.Topic == "" || len(cfg.Brokers) == 0 {
		return fmt.Errorf("kafka-sink: brokers and topic are required")
	}
	if cfg.Log == nil {
		cfg.Log = slog.New(slog.DiscardHandler)
	}
	d.cfg = cfg

	sc := sarama.NewConfig()
	sc.Producer.RequiredAcks = sarama.RequiredAcks(cfg.Acks)
	sc.Producer.Return.Errors = true
	if d.newProducer == nil {
		d.newProducer = sarama.NewAsyncProducer
	}
	var err error
	d.p, err = d.newProducer(cfg.Brokers, sc)
	if err != nil {
		return err
	}
	d.wg.Add(1)
	go d.drainErrors()
	return nil
}

func (d *driver) drainErrors() {
	defer d.wg.Done()
	for pe := range d.p.Errors() {
		d.cfg.Log.Error("kafka-sink: delivery failed", "topic", pe.Msg.Topic, "err", pe.Err)
	}
}

// Push enqueues one record keyed by dataset name so all records of a
// dataset land on the same partition.
func (d *driver) Push(r sink.Record) error {
	if d.p == nil {
		return fmt.Errorf("kafka-sink: not configured")
	}
	v, err := json.Marshal(r)
	if err != nil {
		return err
	}
	d.p.Input() <- &sarama.ProducerMessage{
		Topic: d.cfg.Topic,
		Key:   sarama.StringEncoder(r.Dataset),
		Value: sarama.ByteEncoder(v),
	}
	return nil
}

func (d *driver) Close() error {
	d.once.Do(func() {
		if d.p == nil {
			return
		}
		d.p.AsyncClose()
		d.wg.Wait()
	})
	return nil
}

func init() { sink.Register("kafka", func() sink.Adapter { return &driver{} }) }
