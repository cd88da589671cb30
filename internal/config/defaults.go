package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "sqlite"
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/evalui/data/annotations.db"
	}
	if cfg.Storage.RedisPrefix == "" {
		cfg.Storage.RedisPrefix = "evalui:snapshot:"
	}
	if cfg.Documents.Directory == "" {
		cfg.Documents.Directory = "/usr/local/var/evalui/data/pdf"
	}
	if cfg.Documents.Extension == "" {
		cfg.Documents.Extension = ".PDF"
	}
	if cfg.Documents.TranscriptSuffix == "" {
		cfg.Documents.TranscriptSuffix = "_textract_v1.txt"
	}
	if cfg.Documents.FieldsSuffix == "" {
		cfg.Documents.FieldsSuffix = "_PI.json"
	}
	if cfg.Documents.Watch == nil {
		t := true
		cfg.Documents.Watch = &t
	}
	if len(cfg.Review.Modes) == 0 {
		cfg.Review.Modes = []string{"indicator"}
	}
	if cfg.Review.SaveQueueSize == 0 {
		cfg.Review.SaveQueueSize = 64
	}
}
