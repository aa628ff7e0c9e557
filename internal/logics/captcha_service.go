package logics

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"authsec-server/configs"
	"authsec-server/internal/models"
	"authsec-server/internal/repositories"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	captchaTTL         = 10 * time.Minute
	captchaMaxAttempts = 5
)

// CaptchaService verifies human-proof tokens on the login path. The
// behavior is selected by configuration: locally generated image/math
// challenges, a score-based external provider, a managed external
// provider, or disabled entirely.
type CaptchaService struct {
	// HTTPClient is the client for external provider calls. Swappable in
	// tests.
	HTTPClient *http.Client
}

// NewCaptchaService creates a new CaptchaService
func NewCaptchaService() *CaptchaService {
	return &CaptchaService{
		HTTPClient: &http.Client{Timeout: 5 * time.Second},
	}
}

// Challenge is a freshly issued local challenge.
type Challenge struct {
	ChallengeID string `json:"challenge_id"`
	ImageBase64 string `json:"image_base64,omitempty"`
	Question    string `json:"question,omitempty"`
	Type        string `json:"type"`
	ExpireIn    int    `json:"expire_in"`
}

// Generate issues a new local challenge. Only meaningful in local mode.
func (s *CaptchaService) Generate(ip, userAgent string) (*Challenge, error) {
	if configs.Configs.Security.Captcha.Mode != configs.CaptchaModeLocal {
		return nil, fmt.Errorf("challenge generation is only available in local mode")
	}

	// 1. Cap challenge issuance per IP
	var recent int64
	if err := repositories.DBS.Postgres.Model(&models.CaptchaChallenge{}).
		Where("ip = ? AND created_at > ?", ip, time.Now().Add(-1*time.Hour)).
		Count(&recent).Error; err != nil {
		return nil, err
	}
	if recent > 10 {
		return nil, fmt.Errorf("too many challenge requests from this IP")
	}

	// 2. Coin flip between an image challenge and a math question
	var challengeType, answer, imageBase64, question string
	coin, _ := rand.Int(rand.Reader, big.NewInt(2))
	var err error
	if coin.Int64() == 0 {
		challengeType = models.CaptchaTypeImage
		answer, imageBase64, err = s.renderImageChallenge()
	} else {
		challengeType = models.CaptchaTypeMath
		answer, question, err = s.buildMathChallenge()
	}
	if err != nil {
		return nil, err
	}

	// 3. Store the hashed answer, never the plaintext
	challengeID := uuid.NewString()

	record := models.CaptchaChallenge{
		ChallengeID:   challengeID,
		ChallengeType: challengeType,
		Answer:        hashAnswer(answer),
		IP:            ip,
		UserAgent:     userAgent,
		ExpiresAt:     time.Now().Add(captchaTTL),
	}
	if err := repositories.DBS.Postgres.Create(&record).Error; err != nil {
		return nil, fmt.Errorf("failed to store challenge: %w", err)
	}

	return &Challenge{
		ChallengeID: challengeID,
		ImageBase64: imageBase64,
		Question:    question,
		Type:        challengeType,
		ExpireIn:    int(captchaTTL.Seconds()),
	}, nil
}

// Verify checks a submitted token against the configured mode. In local
// mode the token is "<challenge_id>:<answer>"; in the external modes it is
// the provider's response token. Disabled mode always passes.
func (s *CaptchaService) Verify(token, ip, userAgent string) (bool, error) {
	switch configs.Configs.Security.Captcha.Mode {
	case configs.CaptchaModeDisabled:
		return true, nil
	case configs.CaptchaModeLocal:
		return s.verifyLocal(token)
	case configs.CaptchaModeScore:
		return s.verifyExternal(token, ip, true)
	case configs.CaptchaModeManaged:
		return s.verifyExternal(token, ip, false)
	default:
		return false, fmt.Errorf("unknown captcha mode %q", configs.Configs.Security.Captcha.Mode)
	}
}

func (s *CaptchaService) verifyLocal(token string) (bool, error) {
	challengeID, answer, ok := strings.Cut(token, ":")
	if !ok || challengeID == "" {
		return false, nil
	}

	var challenge models.CaptchaChallenge
	if err := repositories.DBS.Postgres.
		Where("challenge_id = ?", challengeID).
		First(&challenge).Error; err != nil {
		return false, nil
	}

	if challenge.Used || time.Now().After(challenge.ExpiresAt) {
		return false, nil
	}

	if challenge.AttemptCount >= captchaMaxAttempts {
		repositories.DBS.Postgres.Model(&challenge).UpdateColumn("used", true)
		return false, nil
	}
	repositories.DBS.Postgres.Model(&challenge).
		UpdateColumn("attempt_count", challenge.AttemptCount+1)

	if hashAnswer(answer) != challenge.Answer {
		return false, nil
	}

	// Single use: a correct answer burns the challenge.
	repositories.DBS.Postgres.Model(&challenge).UpdateColumn("used", true)
	return true, nil
}

type providerVerdict struct {
	Success bool    `json:"success"`
	Score   float64 `json:"score"`
}

func (s *CaptchaService) verifyExternal(token, ip string, scored bool) (bool, error) {
	cfg := configs.Configs.Security.Captcha
	if token == "" {
		return false, nil
	}

	resp, err := s.HTTPClient.PostForm(cfg.VerifyURL, url.Values{
		"secret":   {cfg.Secret},
		"response": {token},
		"remoteip": {ip},
	})
	if err != nil {
		configs.Logger.Error("captcha provider unreachable", zap.Error(err))
		return false, err
	}
	defer resp.Body.Close()

	var verdict providerVerdict
	if err := json.NewDecoder(resp.Body).Decode(&verdict); err != nil {
		return false, err
	}

	if !verdict.Success {
		return false, nil
	}
	if scored && verdict.Score < cfg.MinScore {
		return false, nil
	}
	return true, nil
}

// renderImageChallenge draws distorted text over a noisy background.
func (s *CaptchaService) renderImageChallenge() (string, string, error) {
	text, err := randomText(6)
	if err != nil {
		return "", "", err
	}

	width, height := 200, 80
	dc := gg.NewContext(width, height)
	dc.SetRGB(0.97, 0.97, 0.97)
	dc.Clear()

	for i := 0; i < 800; i++ {
		x, _ := rand.Int(rand.Reader, big.NewInt(int64(width)))
		y, _ := rand.Int(rand.Reader, big.NewInt(int64(height)))
		shade, _ := rand.Int(rand.Reader, big.NewInt(100))
		v := float64(shade.Int64()) / 100.0
		dc.SetRGBA(v, v, v, 0.3)
		dc.DrawPoint(float64(x.Int64()), float64(y.Int64()), 1)
		dc.Fill()
	}

	font, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return "", "", err
	}
	dc.SetFontFace(truetype.NewFace(font, &truetype.Options{Size: 36}))

	for i, char := range text {
		r := 0.1 + 0.6*float64(i)/float64(len(text))
		g := 0.1 + 0.5*float64(len(text)-i)/float64(len(text))
		b := 0.2 + 0.5*math.Sin(float64(i))
		dc.SetRGB(r, g, b)

		angle := -0.2 + 0.4*float64(i)/float64(len(text))
		x := float64(width)/8 + float64(i)*float64(width)/8
		y := float64(height)/2 + 10*math.Sin(float64(i))
		dc.RotateAbout(angle, x, y)
		dc.DrawStringAnchored(string(char), x, y, 0.5, 0.5)
		dc.RotateAbout(-angle, x, y)
	}

	for i := 0; i < 4; i++ {
		y1, _ := rand.Int(rand.Reader, big.NewInt(int64(height)))
		y2, _ := rand.Int(rand.Reader, big.NewInt(int64(height)))
		dc.SetRGBA(0.5, 0.5, 0.5, 0.5)
		dc.SetLineWidth(1)
		dc.DrawLine(0, float64(y1.Int64()), float64(width), float64(y2.Int64()))
		dc.Stroke()
	}

	buf := new(bytes.Buffer)
	if err := dc.EncodePNG(buf); err != nil {
		return "", "", err
	}
	return text, base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// buildMathChallenge produces an arithmetic question and its answer.
func (s *CaptchaService) buildMathChallenge() (string, string, error) {
	pick, err := rand.Int(rand.Reader, big.NewInt(3))
	if err != nil {
		return "", "", err
	}

	aInt, _ := rand.Int(rand.Reader, big.NewInt(90))
	bInt, _ := rand.Int(rand.Reader, big.NewInt(90))
	a := int(aInt.Int64()) + 10
	b := int(bInt.Int64()) + 10

	switch pick.Int64() {
	case 0:
		return strconv.Itoa(a + b), fmt.Sprintf("What is %d + %d?", a, b), nil
	case 1:
		if a < b {
			a, b = b, a
		}
		return strconv.Itoa(a - b), fmt.Sprintf("What is %d - %d?", a, b), nil
	default:
		a = a%10 + 1
		b = b%10 + 1
		return strconv.Itoa(a * b), fmt.Sprintf("What is %d × %d?", a, b), nil
	}
}

// randomText generates a challenge string, skipping characters that are
// easy to confuse (O, 0, I, 1).
func randomText(length int) (string, error) {
	const chars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	result := make([]byte, length)
	for i := 0; i < length; i++ {
		idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(chars))))
		if err != nil {
			return "", err
		}
		result[i] = chars[idx.Int64()]
	}
	return string(result), nil
}

func hashAnswer(answer string) string {
	normalized := strings.ToLower(strings.TrimSpace(answer))
	hash := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(hash[:])
}

// Global instance of CaptchaService
var CaptchaSvc = NewCaptchaService()
