package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/splitopus/splitopus/internal/telegram"
)

var (
	ErrInvalidInitData = errors.New("invalid init data")
	ErrExpiredInitData = errors.New("init data expired")
)

// TelegramUser is the user object embedded in Mini App init data.
type TelegramUser struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
}

// DisplayName returns the first name, falling back to the username and id.
func (u TelegramUser) DisplayName() string {
	switch {
	case u.FirstName != "":
		return u.FirstName
	case u.Username != "":
		return u.Username
	default:
		return strconv.FormatInt(u.ID, 10)
	}
}

// InitData is the verified content of a Mini App launch payload.
type InitData struct {
	User     TelegramUser
	AuthDate time.Time
	QueryID  string
}

// InitDataValidator checks the signature of Telegram Mini App init data.
// See https://core.telegram.org/bots/webapps#validating-data-received-via-the-mini-app
type InitDataValidator struct {
	secret []byte
	maxAge time.Duration
	now    func() time.Time
}

// NewInitDataValidator creates a validator for the given bot token.
// A zero maxAge disables the freshness check. Without a token every payload
// is rejected with telegram.ErrNotConfigured: the empty-token key is public.
func NewInitDataValidator(botToken string, maxAge time.Duration) *InitDataValidator {
	v := &InitDataValidator{maxAge: maxAge, now: time.Now}
	if botToken != "" {
		v.secret = webAppSecret(botToken)
	}
	return v
}

func webAppSecret(botToken string) []byte {
	return hmacSHA256([]byte("WebAppData"), []byte(botToken))
}

// Validate verifies the hash of raw (the URL encoded initData string) and
// returns the parsed payload.
func (v *InitDataValidator) Validate(raw string) (*InitData, error) {
	if v.secret == nil {
		return nil, telegram.ErrNotConfigured
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInitData, err)
	}

	hash := values.Get("hash")
	if hash == "" {
		return nil, fmt.Errorf("%w: missing hash", ErrInvalidInitData)
	}
	want, err := hex.DecodeString(hash)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed hash", ErrInvalidInitData)
	}
	if !hmac.Equal(hmacSHA256(v.secret, []byte(dataCheckString(values))), want) {
		return nil, fmt.Errorf("%w: hash mismatch", ErrInvalidInitData)
	}

	authUnix, err := strconv.ParseInt(values.Get("auth_date"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad auth_date", ErrInvalidInitData)
	}
	authDate := time.Unix(authUnix, 0)
	if v.maxAge > 0 && v.now().Sub(authDate) > v.maxAge {
		return nil, ErrExpiredInitData
	}

	var user TelegramUser
	if err := json.Unmarshal([]byte(values.Get("user")), &user); err != nil || user.ID == 0 {
		return nil, fmt.Errorf("%w: missing user", ErrInvalidInitData)
	}

	return &InitData{User: user, AuthDate: authDate, QueryID: values.Get("query_id")}, nil
}

// Sign computes the hash for values. It is the inverse of Validate and is
// used to build init data in tests and local tooling.
func (v *InitDataValidator) Sign(values url.Values) string {
	return hex.EncodeToString(hmacSHA256(v.secret, []byte(dataCheckString(values))))
}

// dataCheckString joins every field except hash as sorted key=value lines.
func dataCheckString(values url.Values) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		if k == "hash" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, len(keys))
	for i, k := range keys {
		lines[i] = k + "=" + values.Get(k)
	}
	return strings.Join(lines, "\n")
}

func hmacSHA256(key, msg []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(msg)
	return h.Sum(nil)
}
