package intake

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Metadata keys carried by an uploaded object. Object stores lowercase them.
const (
	MetaUserID    = "user-id"
	MetaNonce     = "jti"
	MetaExpiry    = "exp"
	MetaSignature = "sig"

	// MetadataHeaderPrefix is prepended to metadata keys in headers and form fields
	MetadataHeaderPrefix = "x-amz-meta-"
)

const (
	// VideoContentType is the only content type an intent authorizes
	VideoContentType = "video/mp4"

	// DefaultIntentTTL is how long a minted intent stays valid
	DefaultIntentTTL = 5 * time.Minute

	// AnonymousUserID is the placeholder principal used when anonymous uploads are enabled
	AnonymousUserID = "dev-user"

	uploadRoot = "uploads/"
	videoExt   = ".mp4"
)

// Intent is the signed description of one permitted upload.
type Intent struct {
	UserID    string
	ObjectKey string
	Nonce     string
	ExpiresAt int64 // unix seconds
	Signature string
}

// ObjectKeyPrefix returns the key prefix all uploads of a user live under.
func ObjectKeyPrefix(userID string) string {
	return uploadRoot + userID + "/"
}

// NewObjectKey generates uploads/{userID}/{uuid}.mp4 using a random v4 UUID.
func NewObjectKey(userID string) (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate object id: %w", err)
	}
	return ObjectKeyPrefix(userID) + id.String() + videoExt, nil
}

// Payload returns the canonical string the signature is computed over:
// userId:objectKey:nonce:expiry
func (i Intent) Payload() string {
	return fmt.Sprintf("%s:%s:%s:%d", i.UserID, i.ObjectKey, i.Nonce, i.ExpiresAt)
}

// Expiry returns ExpiresAt as a time.
func (i Intent) Expiry() time.Time {
	return time.Unix(i.ExpiresAt, 0)
}

// Metadata returns the object metadata the upload must carry.
func (i Intent) Metadata() map[string]string {
	return map[string]string{
		MetaUserID:    i.UserID,
		MetaNonce:     i.Nonce,
		MetaExpiry:    strconv.FormatInt(i.ExpiresAt, 10),
		MetaSignature: i.Signature,
	}
}

// Headers returns the metadata as x-amz-meta-* header or form field names.
func (i Intent) Headers() map[string]string {
	md := i.Metadata()
	headers := make(map[string]string, len(md))
	for k, v := range md {
		headers[MetadataHeaderPrefix+k] = v
	}
	return headers
}

// ObjectMetadata is the user metadata read back from a stored object.
type ObjectMetadata map[string]string

// NormalizeMetadata lowercases keys and strips an x-amz-meta- prefix, so
// metadata from headers and from SDK responses compare equally.
func NormalizeMetadata(raw map[string]string) ObjectMetadata {
	md := make(ObjectMetadata, len(raw))
	for k, v := range raw {
		k = strings.ToLower(k)
		k = strings.TrimPrefix(k, MetadataHeaderPrefix)
		md[k] = v
	}
	return md
}

func sign(secret []byte, payload string) string {
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}
