package spec

type sinkConfigs struct {
	Kafka  KafkaSink  `yaml:"kafka"`
	Stdout StdoutSink `yaml:"stdout"`
}

type KafkaSink struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	Acks    int16    `yaml:"required_acks"` // 0,1,-1
}

type StdoutSink struct {
	Pretty bool `yaml:"pretty"`
}

// TransformSpec is one node of a module.
type TransformSpec struct {
	Tag  string         `yaml:"tag"`
	Kind string         `yaml:"kind"`
	Args map[string]any `yaml:"args"`
	// Inputs maps formal names to "tag.field" references, lists of
	// references, {literal: v} or plain values.
	Inputs map[string]any `yaml:"inputs"`
}

type ModuleSpec struct {
	Tag        string          `yaml:"tag"`
	Transforms []TransformSpec `yaml:"transforms"`
	// Hyper lists the grid groups; paths inside one group move together.
	Hyper     []map[string][]any `yaml:"hyper"`
	Broadcast map[string]string  `yaml:"broadcast"`
	Outputs   map[string]string  `yaml:"outputs"`
}

type BenchSpec struct {
	// Output names the module output holding predictions (default "y").
	Output       string  `yaml:"output"`
	TestFraction float64 `yaml:"test_fraction"`
	Seed         int64   `yaml:"seed"`
	FailFast     bool    `yaml:"fail_fast"`
}

type File struct {
	SchemaVersion string `yaml:"schema_version"`

	// Ordered list of models benchmarked on every dataset.
	Modules []ModuleSpec `yaml:"modules"`

	Bench       BenchSpec   `yaml:"bench"`
	Sinks       []string    `yaml:"sinks"`
	SinkConfigs sinkConfigs `yaml:"sink_configs"`
}
