package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 是应用程序配置的结构体
type Config struct {
	Device        DeviceConfig        `mapstructure:"device"`
	Transport     TransportConfig     `mapstructure:"transport"`
	Upload        UploadConfig        `mapstructure:"upload"`
	Text          TextConfig          `mapstructure:"text"`
	HTTPAPIServer HTTPAPIServerConfig `mapstructure:"httpApiServer"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Logger        LoggerConfig        `mapstructure:"logger"`
}

// DeviceConfig 目标显示屏配置
type DeviceConfig struct {
	Address    string `mapstructure:"address"`    // 默认设备地址
	NamePrefix string `mapstructure:"namePrefix"` // 扫描过滤用广播名前缀
	PixelSize  int    `mapstructure:"pixelSize"`  // 16 或 32
}

// TransportConfig BLE传输配置
type TransportConfig struct {
	Mode                  string `mapstructure:"mode"` // ble | memory
	ResolveAttempts       int    `mapstructure:"resolveAttempts"`
	ResolveIntervalMs     int    `mapstructure:"resolveIntervalMs"`
	ConnectAttempts       int    `mapstructure:"connectAttempts"`
	ConnectTimeoutSeconds int    `mapstructure:"connectTimeoutSeconds"`
	WriteChunkCap         int    `mapstructure:"writeChunkCap"`
	WritePacingMs         int    `mapstructure:"writePacingMs"`
	ServiceUUID           string `mapstructure:"serviceUUID"`
	WriteUUID             string `mapstructure:"writeUUID"`
	ReadUUID              string `mapstructure:"readUUID"`
}

// ResolveInterval 设备解析轮询间隔
func (c TransportConfig) ResolveInterval() time.Duration {
	return time.Duration(c.ResolveIntervalMs) * time.Millisecond
}

// WritePacing 分片写入间隔
func (c TransportConfig) WritePacing() time.Duration {
	return time.Duration(c.WritePacingMs) * time.Millisecond
}

// ConnectTimeout 单次连接超时
func (c TransportConfig) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutSeconds) * time.Second
}

// UploadConfig 上传配置
type UploadConfig struct {
	ChunkSize           int `mapstructure:"chunkSize"`
	IntervalSeconds     int `mapstructure:"intervalSeconds"`
	BatchControlPauseMs int `mapstructure:"batchControlPauseMs"`
	BatchFilePauseMs    int `mapstructure:"batchFilePauseMs"`
	QueueSize           int `mapstructure:"queueSize"`
	JobTimeoutSeconds   int `mapstructure:"jobTimeoutSeconds"`
}

// TextConfig 文字渲染默认参数
type TextConfig struct {
	FontsDir      string `mapstructure:"fontsDir"`
	Font          string `mapstructure:"font"`
	FontSize      int    `mapstructure:"fontSize"`
	AnimationMode int    `mapstructure:"animationMode"`
	Speed         int    `mapstructure:"speed"`
	ColorMode     int    `mapstructure:"colorMode"`
	Color         []int  `mapstructure:"color"`
	BgMode        int    `mapstructure:"bgMode"`
	BgColor       []int  `mapstructure:"bgColor"`
	Spacing       int    `mapstructure:"spacing"`
	Proportional  bool   `mapstructure:"proportional"`
	Compact       bool   `mapstructure:"compact"`
}

// HTTPAPIServerConfig HTTP API服务器配置
type HTTPAPIServerConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	TimeoutSeconds int    `mapstructure:"timeoutSeconds"`
	MaxUploadMB    int    `mapstructure:"maxUploadMB"`
}

// RedisConfig Redis配置
type RedisConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Address      string `mapstructure:"address"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"poolSize"`
	MinIdleConns int    `mapstructure:"minIdleConns"`
	DialTimeout  int    `mapstructure:"dialTimeout"`
	ReadTimeout  int    `mapstructure:"readTimeout"`
	WriteTimeout int    `mapstructure:"writeTimeout"`
	KeyPrefix    string `mapstructure:"keyPrefix"`
	JournalTTL   int    `mapstructure:"journalTTLHours"`
}

// LoggerConfig 日志配置
type LoggerConfig struct {
	Level         string `mapstructure:"level"`
	Format        string `mapstructure:"format"`
	FilePath      string `mapstructure:"filePath"`
	MaxSizeMB     int    `mapstructure:"maxSizeMB"`
	MaxBackups    int    `mapstructure:"maxBackups"`
	MaxAgeDays    int    `mapstructure:"maxAgeDays"`
	Compress      bool   `mapstructure:"compress"`
	LogHexDump    bool   `mapstructure:"logHexDump"`
	EnableConsole bool   `mapstructure:"enableConsole"`
}

// 全局配置实例
var GlobalConfig = Default()

// setDefaults 为每个配置项设置默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("device.namePrefix", "IDM-")
	v.SetDefault("device.pixelSize", 32)

	v.SetDefault("transport.mode", "ble")
	v.SetDefault("transport.resolveAttempts", 15)
	v.SetDefault("transport.resolveIntervalMs", 1000)
	v.SetDefault("transport.connectAttempts", 3)
	v.SetDefault("transport.connectTimeoutSeconds", 10)
	v.SetDefault("transport.writeChunkCap", 509)
	v.SetDefault("transport.writePacingMs", 25)
	v.SetDefault("transport.serviceUUID", "000000fa-0000-1000-8000-00805f9b34fb")
	v.SetDefault("transport.writeUUID", "0000fa02-0000-1000-8000-00805f9b34fb")
	v.SetDefault("transport.readUUID", "0000fa03-0000-1000-8000-00805f9b34fb")

	v.SetDefault("upload.chunkSize", 4096)
	v.SetDefault("upload.intervalSeconds", 5)
	v.SetDefault("upload.batchControlPauseMs", 100)
	v.SetDefault("upload.batchFilePauseMs", 150)
	v.SetDefault("upload.queueSize", 16)
	v.SetDefault("upload.jobTimeoutSeconds", 120)

	v.SetDefault("text.fontsDir", "fonts")
	v.SetDefault("text.font", "Rain-DRM3.otf")
	v.SetDefault("text.fontSize", 16)
	v.SetDefault("text.animationMode", 1)
	v.SetDefault("text.speed", 95)
	v.SetDefault("text.colorMode", 1)
	v.SetDefault("text.color", []int{255, 0, 0})
	v.SetDefault("text.bgMode", 0)
	v.SetDefault("text.bgColor", []int{0, 255, 0})
	v.SetDefault("text.spacing", 0)
	v.SetDefault("text.proportional", true)
	v.SetDefault("text.compact", false)

	v.SetDefault("httpApiServer.host", "0.0.0.0")
	v.SetDefault("httpApiServer.port", 7055)
	v.SetDefault("httpApiServer.timeoutSeconds", 180)
	v.SetDefault("httpApiServer.maxUploadMB", 8)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.address", "127.0.0.1:6379")
	v.SetDefault("redis.poolSize", 4)
	v.SetDefault("redis.dialTimeout", 5)
	v.SetDefault("redis.readTimeout", 3)
	v.SetDefault("redis.writeTimeout", 3)
	v.SetDefault("redis.keyPrefix", "dotmatrix:")
	v.SetDefault("redis.journalTTLHours", 168)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "text")
	v.SetDefault("logger.maxSizeMB", 50)
	v.SetDefault("logger.maxBackups", 5)
	v.SetDefault("logger.maxAgeDays", 14)
	v.SetDefault("logger.enableConsole", true)
}

// Default 返回只含默认值的配置
func Default() Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return cfg
}

// Load 加载配置文件
func Load(configPath string) error {
	cfg, err := Read(configPath)
	if err != nil {
		return err
	}
	GlobalConfig = *cfg
	return nil
}

// Read 读取配置文件但不修改全局配置
func Read(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 检查配置合法性
func (c *Config) Validate() error {
	if c.Device.PixelSize != 16 && c.Device.PixelSize != 32 {
		return fmt.Errorf("device.pixelSize 只支持16或32，当前为%d", c.Device.PixelSize)
	}
	switch c.Transport.Mode {
	case "ble", "memory":
	default:
		return fmt.Errorf("transport.mode 不支持：%s", c.Transport.Mode)
	}
	if c.Transport.WriteChunkCap <= 0 || c.Transport.WriteChunkCap > 509 {
		return fmt.Errorf("transport.writeChunkCap 超出范围1~509：%d", c.Transport.WriteChunkCap)
	}
	if c.Upload.IntervalSeconds < 0 || c.Upload.IntervalSeconds > 255 {
		return fmt.Errorf("upload.intervalSeconds 超出范围0~255：%d", c.Upload.IntervalSeconds)
	}
	return nil
}

// GetConfig 获取全局配置
func GetConfig() *Config {
	return &GlobalConfig
}

// FormatHTTPAddress 格式化HTTP服务器地址为host:port格式
func FormatHTTPAddress() string {
	cfg := GetConfig().HTTPAPIServer
	return fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
}
