package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/copyleftdev/ssoscry/internal/desktop"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Browser       BrowserConfig       `mapstructure:"browser"`
	Log           LogConfig           `mapstructure:"log"`
	Security      SecurityConfig      `mapstructure:"security"`
	Authenticator AuthenticatorConfig `mapstructure:"authenticator"`
	MFA           MFAConfig           `mapstructure:"mfa"`
	Credentials   CredentialsConfig   `mapstructure:"credentials"`
	Apps          AppsConfig          `mapstructure:"apps"`
	Report        ReportConfig        `mapstructure:"report"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
	IdleTimeout  time.Duration `mapstructure:"idleTimeout"`
}

type BrowserConfig struct {
	ExecutablePath  string        `mapstructure:"executablePath"`
	Headless        bool          `mapstructure:"headless"`
	UserDataDir     string        `mapstructure:"userDataDir"`
	ActionTimeout   time.Duration `mapstructure:"actionTimeout"`
	TaskTimeout     time.Duration `mapstructure:"taskTimeout"`
	PasscodeTimeout time.Duration `mapstructure:"passcodeTimeout"`
	SlowMo          time.Duration `mapstructure:"slowMo"`
	ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout"`
	MaxSessions     int           `mapstructure:"maxSessions"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

type SecurityConfig struct {
	AllowedOrigins []string `mapstructure:"allowedOrigins"`
	ApiKey         string   `mapstructure:"apiKey"`
	CallbackToken  string   `mapstructure:"callbackToken"`
}

// AuthenticatorConfig drives the PingID desktop application.
type AuthenticatorConfig struct {
	ExecutablePath string `mapstructure:"executablePath"`
	PIN            string `mapstructure:"pin"`
	TitleHint      string `mapstructure:"titleHint"`
	// WindowTimeout is the number of one-interval polls for the window.
	WindowTimeout  int            `mapstructure:"windowTimeout"`
	PollInterval   time.Duration  `mapstructure:"pollInterval"`
	LaunchSettle   time.Duration  `mapstructure:"launchSettle"`
	LoadSettle     time.Duration  `mapstructure:"loadSettle"`
	FocusPause     time.Duration  `mapstructure:"focusPause"`
	KeyPause       time.Duration  `mapstructure:"keyPause"`
	AfterPINPause  time.Duration  `mapstructure:"afterPinPause"`
	CodeSettle     time.Duration  `mapstructure:"codeSettle"`
	CopySettle     time.Duration  `mapstructure:"copySettle"`
	InspectSettle  time.Duration  `mapstructure:"inspectSettle"`
	CloseOnFailure bool           `mapstructure:"closeOnFailure"`
	Controls       ControlsConfig `mapstructure:"controls"`
}

// ControlsConfig lists the lookup chains tried, in order, for each control.
type ControlsConfig struct {
	PINInput   []desktop.Selector `mapstructure:"pinInput"`
	NextButton []desktop.Selector `mapstructure:"nextButton"`
	CopyButton []desktop.Selector `mapstructure:"copyButton"`
}

type MFAConfig struct {
	Provider   string `mapstructure:"provider"` // desktop, totp, manual
	TOTPSecret string `mapstructure:"totpSecret"`
}

type CredentialsConfig struct {
	Email      string `mapstructure:"email"`
	EmployeeID string `mapstructure:"employeeId"`
	Password   string `mapstructure:"password"`
}

type AppsConfig struct {
	Fileroom FileroomConfig `mapstructure:"fileroom"`
	SCD      SCDConfig      `mapstructure:"scd"`
}

type FileroomConfig struct {
	BaseURL string `mapstructure:"baseURL"`
	Domain  string `mapstructure:"domain"`
}

type SCDConfig struct {
	BaseURL  string `mapstructure:"baseURL"`
	Location string `mapstructure:"location"`
}

type ReportConfig struct {
	Dir string `mapstructure:"dir"`
}

// DefaultControls are the lookup chains that match PingID 1.x.
func DefaultControls() ControlsConfig {
	return ControlsConfig{
		PINInput: []desktop.Selector{
			{By: desktop.ByIndexStrategy, Kind: desktop.KindEdit, Index: 0},
			{By: desktop.ByIDStrategy, Kind: desktop.KindEdit, Value: "JavaFX42"},
			{By: desktop.ScanStrategy, Kind: desktop.KindEdit},
		},
		NextButton: []desktop.Selector{
			{By: desktop.ByTitleStrategy, Kind: desktop.KindButton, Value: "Next"},
			{By: desktop.ByIDStrategy, Kind: desktop.KindButton, Value: "JavaFX49"},
		},
		CopyButton: []desktop.Selector{
			{By: desktop.ByTitleStrategy, Kind: desktop.KindButton, Value: "Copy"},
			{By: desktop.ByIDStrategy, Kind: desktop.KindButton, Value: "JavaFX32"},
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	// Secrets may live in a .env file next to the working directory.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", "15s")
	v.SetDefault("server.writeTimeout", "3m")
	v.SetDefault("server.idleTimeout", "60s")

	v.SetDefault("browser.executablePath", "")
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.userDataDir", "")
	v.SetDefault("browser.actionTimeout", "30s")
	v.SetDefault("browser.taskTimeout", "5m")
	v.SetDefault("browser.passcodeTimeout", "30s")
	v.SetDefault("browser.slowMo", "500ms")
	v.SetDefault("browser.shutdownTimeout", "10s")
	v.SetDefault("browser.maxSessions", 1)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("security.allowedOrigins", []string{"*"})
	v.SetDefault("security.apiKey", "")
	v.SetDefault("security.callbackToken", "")

	v.SetDefault("authenticator.executablePath", `C:\Program Files (x86)\Ping Identity\PingID\PingID.exe`)
	v.SetDefault("authenticator.pin", "")
	v.SetDefault("authenticator.titleHint", "PingID")
	v.SetDefault("authenticator.windowTimeout", 10)
	v.SetDefault("authenticator.pollInterval", "1s")
	v.SetDefault("authenticator.launchSettle", "2s")
	v.SetDefault("authenticator.loadSettle", "1s")
	v.SetDefault("authenticator.focusPause", "300ms")
	v.SetDefault("authenticator.keyPause", "100ms")
	v.SetDefault("authenticator.afterPinPause", "500ms")
	v.SetDefault("authenticator.codeSettle", "3s")
	v.SetDefault("authenticator.copySettle", "500ms")
	v.SetDefault("authenticator.inspectSettle", "3s")
	v.SetDefault("authenticator.closeOnFailure", false)

	v.SetDefault("mfa.provider", "desktop")
	v.SetDefault("mfa.totpSecret", "")

	v.SetDefault("credentials.email", "")
	v.SetDefault("credentials.employeeId", "")
	v.SetDefault("credentials.password", "")

	v.SetDefault("apps.fileroom.baseURL", "https://production.sureprep.com/")
	v.SetDefault("apps.fileroom.domain", "Automation-01")
	v.SetDefault("apps.scd.baseURL", "https://qat-scdashboard.sureprep.com/")
	v.SetDefault("apps.scd.location", "Test")

	v.SetDefault("report.dir", "reports")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.ssoscry")
		v.AddConfigPath("/etc/ssoscry")
	}

	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("SSOSCRY")

	err := v.ReadInConfig()
	if err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	err = v.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}
	cfg.applyControlDefaults()

	return &cfg, nil
}

func (c *Config) applyControlDefaults() {
	def := DefaultControls()
	if len(c.Authenticator.Controls.PINInput) == 0 {
		c.Authenticator.Controls.PINInput = def.PINInput
	}
	if len(c.Authenticator.Controls.NextButton) == 0 {
		c.Authenticator.Controls.NextButton = def.NextButton
	}
	if len(c.Authenticator.Controls.CopyButton) == 0 {
		c.Authenticator.Controls.CopyButton = def.CopyButton
	}
}

// Validate checks what the retrieval workflow cannot run without.
func (a *AuthenticatorConfig) Validate() error {
	if a.ExecutablePath == "" {
		return fmt.Errorf("authenticator.executablePath is required")
	}
	if a.PIN == "" {
		return fmt.Errorf("authenticator.pin is required")
	}
	if a.TitleHint == "" {
		return fmt.Errorf("authenticator.titleHint is required")
	}
	return nil
}

func (c *CredentialsConfig) Validate() error {
	var missing []string
	if c.Email == "" {
		missing = append(missing, "credentials.email")
	}
	if c.EmployeeID == "" {
		missing = append(missing, "credentials.employeeId")
	}
	if c.Password == "" {
		missing = append(missing, "credentials.password")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing %s", strings.Join(missing, ", "))
	}
	return nil
}
