package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strconv"
	"strings"
	"time"

	"go-admin-portal/internal/metrics"
	"go-admin-portal/internal/model"
)

// CSRFService issues and checks tokens bound to a session id. A token is
// "<unix seconds>.<base64url HMAC-SHA256(secret, sessionID:seconds)>", so
// nothing has to be stored server side.
type CSRFService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewCSRFService(secret string, ttl time.Duration) *CSRFService {
	return &CSRFService{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

func (s *CSRFService) Issue(sessionID string) string {
	ts := strconv.FormatInt(s.now().Unix(), 10)
	return ts + "." + base64.RawURLEncoding.EncodeToString(s.mac(sessionID, ts))
}

// Validate checks the MAC before the age, so an expired token is only
// reported as expired when it was genuinely issued for this session.
func (s *CSRFService) Validate(token string, sessionID string) error {
	ts, encoded, found := strings.Cut(strings.TrimSpace(token), ".")
	if !found || ts == "" || encoded == "" || sessionID == "" {
		metrics.CSRFRejections.WithLabelValues("mismatch").Inc()
		return model.ErrCSRFMismatch
	}

	issued, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		metrics.CSRFRejections.WithLabelValues("mismatch").Inc()
		return model.ErrCSRFMismatch
	}

	presented, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil || !hmac.Equal(presented, s.mac(sessionID, ts)) {
		metrics.CSRFRejections.WithLabelValues("mismatch").Inc()
		return model.ErrCSRFMismatch
	}

	age := s.now().Sub(time.Unix(issued, 0))
	if age < -time.Minute {
		metrics.CSRFRejections.WithLabelValues("mismatch").Inc()
		return model.ErrCSRFMismatch
	}
	if age > s.ttl {
		metrics.CSRFRejections.WithLabelValues("expired").Inc()
		return model.ErrCSRFExpired
	}

	return nil
}

func (s *CSRFService) mac(sessionID string, ts string) []byte {
	h := hmac.New(sha256.New, s.secret)
	h.Write([]byte(sessionID))
	h.Write([]byte(":"))
	h.Write([]byte(ts))
	return h.Sum(nil)
}
