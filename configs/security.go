package configs

// CaptchaMode selects the captcha verification strategy for logins.
type CaptchaMode string

const (
	CaptchaModeDisabled CaptchaMode = "disabled"
	CaptchaModeLocal    CaptchaMode = "local"
	CaptchaModeScore    CaptchaMode = "score"
	CaptchaModeManaged  CaptchaMode = "managed"
)

type CaptchaConfig struct {
	Mode      CaptchaMode `yaml:"mode"`
	Secret    string      `yaml:"secret"`
	VerifyURL string      `yaml:"verify_url"`
	MinScore  float64     `yaml:"min_score"`
}

type WebAuthnConfig struct {
	RPID          string   `yaml:"rp_id"`
	RPDisplayName string   `yaml:"rp_display_name"`
	RPOrigins     []string `yaml:"rp_origins"`
}

type SecurityConfig struct {
	ApiRateLimit           int            `yaml:"api_rate_limit"`
	LoginAttemptsLimit     int            `yaml:"login_attempts_limit"`
	LockoutDurationMin     int            `yaml:"lockout_duration_min"`
	PasswordExpiryEnabled  bool           `yaml:"password_expiry_enabled"`
	PasswordMaxAgeDays     int            `yaml:"password_max_age_days"`
	SessionExpireHours     int            `yaml:"session_expire_hours"`
	PendingAuthTtlMin      int            `yaml:"pending_auth_ttl_min"`
	Captcha                CaptchaConfig  `yaml:"captcha"`
	WebAuthn               WebAuthnConfig `yaml:"webauthn"`
}

// ApplyDefaults fills zero values with the documented defaults.
func (c *SecurityConfig) ApplyDefaults() {
	if c.ApiRateLimit == 0 {
		c.ApiRateLimit = 1000
	}
	if c.LoginAttemptsLimit == 0 {
		c.LoginAttemptsLimit = 5
	}
	if c.LockoutDurationMin == 0 {
		c.LockoutDurationMin = 15
	}
	if c.PasswordMaxAgeDays == 0 {
		c.PasswordMaxAgeDays = 90
	}
	if c.SessionExpireHours == 0 {
		c.SessionExpireHours = 24
	}
	if c.PendingAuthTtlMin == 0 {
		c.PendingAuthTtlMin = 10
	}
	if c.Captcha.Mode == "" {
		c.Captcha.Mode = CaptchaModeDisabled
	}
	if c.Captcha.MinScore == 0 {
		c.Captcha.MinScore = 0.5
	}
}
