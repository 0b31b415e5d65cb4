package manifest

// Config is the top-level job manifest. It is read once at startup; nothing in it
// is reloaded while the job runs.
type Config struct {
	Pipeline Pipeline    `toml:"pipeline"`
	Source   KafkaSource `toml:"source"`
	Sink     KafkaSink   `toml:"sink"`
	Vault    Vault       `toml:"vault"`
	AWS      *AWSClient  `toml:"aws"`
	Admin    Admin       `toml:"admin"`
	Log      Log         `toml:"log"`
}

// Defaults fills every optional knob left at its zero value.
func (c *Config) Defaults() {
	p := &c.Pipeline
	if p.BatchSize == 0 {
		p.BatchSize = DefaultBatchSize
	}
	if p.TriggerIntervalMS == 0 {
		p.TriggerIntervalMS = 1000
	}
	if p.MaxRecordsPerTrigger == 0 {
		p.MaxRecordsPerTrigger = 10000
	}
	if p.AwaitTerminationMS == 0 {
		p.AwaitTerminationMS = 30000
	}
	if p.IdentifierField == "" {
		p.IdentifierField = DefaultIdentifierField
	}

	if c.Source.Format == "" {
		c.Source.Format = FormatBytes
	}
	if c.Source.StartingOffset == "" {
		c.Source.StartingOffset = "latest"
	}
	if c.Source.GroupID == "" {
		c.Source.GroupID = "steeze-vault"
	}
	if c.Source.MinBytes == 0 {
		c.Source.MinBytes = 1
	}
	if c.Source.MaxBytes == 0 {
		c.Source.MaxBytes = 10e6
	}

	if len(c.Sink.Brokers) == 0 {
		c.Sink.Brokers = append([]string(nil), c.Source.Brokers...)
	}
	if c.Sink.ClientID == "" {
		c.Sink.ClientID = "steeze-vault-writer"
	}
	if c.Sink.Writer == nil {
		c.Sink.Writer = &KafkaWriter{}
	}
	if c.Sink.Writer.Balancer == "" {
		c.Sink.Writer.Balancer = "hash"
	}
	if c.Sink.Writer.RequiredAcks == "" {
		c.Sink.Writer.RequiredAcks = "all"
	}
	if c.Sink.Writer.WriteTimeoutMS == 0 {
		c.Sink.Writer.WriteTimeoutMS = 10000
	}

	v := &c.Vault
	if v.TimeoutMS == 0 {
		v.TimeoutMS = 30000
	}
	if v.MaxInFlight == 0 {
		v.MaxInFlight = 16
	}
	if v.TokenLeewaySeconds == 0 {
		v.TokenLeewaySeconds = 30
	}

	if c.Log.File == "" {
		c.Log.File = "steeze-vault.log"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate reports the first missing or inconsistent setting.
func (c *Config) Validate() error {
	if err := c.Pipeline.validate(); err != nil {
		return err
	}
	if err := c.Source.validate(); err != nil {
		return err
	}
	if err := c.Sink.validate(); err != nil {
		return err
	}
	if err := c.Vault.validate(); err != nil {
		return err
	}
	return c.Log.validate()
}
