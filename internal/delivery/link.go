package delivery

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ayyanulhaq997-cmd/Flenix-sub001/pkg/models"
)

// ManifestRoute is the path manifest links are served under
const ManifestRoute = "/manifests/"

// Manifest link errors
var (
	ErrInvalidLink = errors.New("invalid manifest link")
	ErrLinkExpired = errors.New("manifest link expired")
)

// LinkSigner issues self-contained manifest links. A link carries the plan,
// format and device limit it was resolved for, so the manifest served from it
// is filtered exactly like the descriptor that handed it out.
type LinkSigner struct {
	baseURL string
	secret  []byte
}

// NewLinkSigner creates a signer for links rooted at baseURL. An empty secret
// gets a random one, which only verifies links issued by this process.
func NewLinkSigner(baseURL, secret string) *LinkSigner {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			panic("failed to generate link secret: " + err.Error())
		}
	}

	return &LinkSigner{
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  key,
	}
}

// Sign returns the manifest URL for req in format, valid until expiresAt
func (s *LinkSigner) Sign(req Request, format models.StreamingFormat, expiresAt time.Time) string {
	q := url.Values{}
	q.Set("format", string(format))
	q.Set("plan", string(req.PlanTier))
	if req.DeviceMaxResolution != nil {
		q.Set("max_resolution", req.DeviceMaxResolution.String())
	}
	q.Set("expires", strconv.FormatInt(expiresAt.Unix(), 10))
	q.Set("sig", s.signature(req.AssetID, q))

	return s.baseURL + ManifestRoute + url.PathEscape(req.AssetID) + "?" + q.Encode()
}

// Verify checks a link's signature and expiry and returns the request it encodes
func (s *LinkSigner) Verify(assetID string, q url.Values, now time.Time) (Request, error) {
	sig, err := hex.DecodeString(q.Get("sig"))
	if err != nil || !hmac.Equal(sig, s.mac(assetID, q)) {
		return Request{}, ErrInvalidLink
	}

	expires, err := strconv.ParseInt(q.Get("expires"), 10, 64)
	if err != nil {
		return Request{}, ErrInvalidLink
	}
	if now.Unix() > expires {
		return Request{}, ErrLinkExpired
	}

	req := Request{
		AssetID:  assetID,
		PlanTier: models.PlanTier(q.Get("plan")),
		Format:   models.StreamingFormat(q.Get("format")),
	}
	if raw := q.Get("max_resolution"); raw != "" {
		res, err := models.ParseResolution(raw)
		if err != nil {
			return Request{}, ErrInvalidLink
		}
		req.DeviceMaxResolution = &res
	}

	return req, nil
}

func (s *LinkSigner) signature(assetID string, q url.Values) string {
	return hex.EncodeToString(s.mac(assetID, q))
}

// mac covers the asset and every link parameter except the signature itself
func (s *LinkSigner) mac(assetID string, q url.Values) []byte {
	h := hmac.New(sha256.New, s.secret)
	for _, part := range []string{
		assetID,
		q.Get("format"),
		q.Get("plan"),
		q.Get("max_resolution"),
		q.Get("expires"),
	} {
		h.Write([]byte(part))
		h.Write([]byte{'\n'})
	}
	return h.Sum(nil)
}
