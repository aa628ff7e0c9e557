package configs

type ServiceConfig struct {
	HttpPort     string   `yaml:"http_port"`
	AllowOrigins []string `yaml:"allow_origins"`
}

type LogsConfig struct {
	LogLevel   string `yaml:"log_level"`
	LogPath    string `yaml:"log_path"`
	StdoutOnly bool   `yaml:"stdout_only"`
}

type Secrets struct {
	SessionSecret string `yaml:"session_secret"`
}
