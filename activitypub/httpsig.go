package activitypub

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/gommon/log"
)

// Headers signed on outbound requests. Bodyless requests omit digest.
var signedHeaders = []string{"(request-target)", "host", "date", "digest"}

// Verifier authenticates inbound requests against the signing actor's
// public key, resolved through the actor cache.
type Verifier struct {
	resolver *Resolver
}

func NewVerifier(resolver *Resolver) *Verifier {
	return &Verifier{resolver: resolver}
}

// Verify checks the request's Signature header and returns the signing
// actor's URI. The keyId is truncated at its first '#' to obtain the actor.
func (v *Verifier) Verify(r *http.Request) (string, error) {
	params, err := parseSignatureHeader(r.Header.Get("Signature"))
	if err != nil {
		return "", err
	}

	actorURI := strings.SplitN(params["keyId"], "#", 2)[0]

	actor, err := v.resolver.Resolve(actorURI)
	if err != nil {
		log.Infof("Signature: could not resolve actor %s: %v", actorURI, err)
		return "", fmt.Errorf("%w: %s", ErrActorUnresolvable, actorURI)
	}

	signingString, err := buildSigningString(r, strings.Fields(params["headers"]), params)
	if err != nil {
		return "", err
	}

	signature, err := base64.StdEncoding.DecodeString(params["signature"])
	if err != nil {
		return "", ErrInvalidSignatureEncoding
	}

	publicKey, err := ParsePublicKey(actor.PublicKeyPem)
	if err != nil {
		return "", fmt.Errorf("%w: bad key for %s", ErrActorUnresolvable, actorURI)
	}

	hashed := sha256.Sum256([]byte(signingString))
	if err := rsa.VerifyPKCS1v15(publicKey, crypto.SHA256, hashed[:], signature); err != nil {
		return "", ErrInvalidSignature
	}

	return actorURI, nil
}

// VerifyDigest checks the Digest header against the delivered body. The
// signature only covers the digest value, so the body must be compared
// separately. Requests without a Digest header pass; whether the header
// was required is the signature's business, not this check's.
func VerifyDigest(r *http.Request, body []byte) error {
	digest := r.Header.Get("Digest")
	if digest == "" {
		return nil
	}

	algo, value, found := strings.Cut(digest, "=")
	if !found || !strings.EqualFold(algo, "SHA-256") {
		return fmt.Errorf("%w: unsupported digest algorithm", ErrInvalidSignature)
	}

	hash := sha256.Sum256(body)
	if value != base64.StdEncoding.EncodeToString(hash[:]) {
		return fmt.Errorf("%w: digest does not match body", ErrInvalidSignature)
	}
	return nil
}

// parseSignatureHeader parses the comma-separated key="value" parameter
// string of the Signature header.
func parseSignatureHeader(header string) (map[string]string, error) {
	if header == "" {
		return nil, ErrMalformedSignatureHeader
	}

	params := map[string]string{}
	for _, part := range splitParams(header) {
		key, value, found := strings.Cut(part, "=")
		if !found {
			continue
		}
		params[strings.TrimSpace(key)] = strings.Trim(strings.TrimSpace(value), `"`)
	}

	for _, required := range []string{"keyId", "headers", "signature"} {
		if params[required] == "" {
			return nil, ErrMalformedSignatureHeader
		}
	}
	return params, nil
}

// splitParams splits on commas outside quoted values. Base64 signatures and
// header lists may not contain commas, but quoted keyIds can.
func splitParams(header string) []string {
	var parts []string
	var sb strings.Builder
	inQuotes := false
	for _, r := range header {
		switch {
		case r == '"':
			inQuotes = !inQuotes
			sb.WriteRune(r)
		case r == ',' && !inQuotes:
			parts = append(parts, sb.String())
			sb.Reset()
		default:
			sb.WriteRune(r)
		}
	}
	if sb.Len() > 0 {
		parts = append(parts, sb.String())
	}
	return parts
}

// buildSigningString reconstructs the canonical signing string: newline
// joined "name: value" lines in the exact order listed by the headers
// parameter. (request-target), (created) and (expires) are synthesized, not
// read from transport headers. Every missing header is collected so the
// error names the full set.
func buildSigningString(r *http.Request, headerNames []string, params map[string]string) (string, error) {
	lines := make([]string, 0, len(headerNames))
	var missing []string

	for _, name := range headerNames {
		name = strings.ToLower(name)
		var value string
		switch name {
		case "(request-target)":
			target := r.URL.Path
			if r.URL.RawQuery != "" {
				target += "?" + r.URL.RawQuery
			}
			value = strings.ToLower(r.Method) + " " + target
		case "(created)":
			if params["created"] == "" {
				missing = append(missing, name)
				continue
			}
			value = params["created"]
		case "(expires)":
			if params["expires"] == "" {
				missing = append(missing, name)
				continue
			}
			value = params["expires"]
		case "host":
			value = r.Host
			if value == "" {
				value = r.Header.Get("Host")
			}
			if value == "" {
				missing = append(missing, name)
				continue
			}
		default:
			value = r.Header.Get(name)
			if value == "" {
				missing = append(missing, name)
				continue
			}
		}
		lines = append(lines, name+": "+value)
	}

	if len(missing) > 0 {
		return "", &MissingHeadersError{Names: missing}
	}
	return strings.Join(lines, "\n"), nil
}

// SignRequest signs an outgoing request. Body-bearing requests get a
// SHA-256 digest included among the signed headers; bodyless requests omit
// it. keyId format: "https://example.com/users/alice#main-key".
func SignRequest(req *http.Request, body []byte, privateKey *rsa.PrivateKey, keyId string) error {
	if req.Header.Get("Date") == "" {
		req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	}
	if req.Header.Get("Host") == "" {
		req.Header.Set("Host", req.URL.Host)
	}
	if req.Host == "" {
		req.Host = req.URL.Host
	}

	headers := signedHeaders[:3]
	if body != nil {
		hash := sha256.Sum256(body)
		req.Header.Set("Digest", "SHA-256="+base64.StdEncoding.EncodeToString(hash[:]))
		headers = signedHeaders
	}

	signingString, err := buildSigningString(req, headers, nil)
	if err != nil {
		return fmt.Errorf("building signing string: %w", err)
	}

	hashed := sha256.Sum256([]byte(signingString))
	signature, err := rsa.SignPKCS1v15(rand.Reader, privateKey, crypto.SHA256, hashed[:])
	if err != nil {
		return fmt.Errorf("signing request: %w", err)
	}

	req.Header.Set("Signature", fmt.Sprintf(
		`keyId="%s",algorithm="hs2019",headers="%s",signature="%s"`,
		keyId,
		strings.Join(headers, " "),
		base64.StdEncoding.EncodeToString(signature),
	))
	return nil
}

// ParsePrivateKey converts a PEM string to *rsa.PrivateKey
func ParsePrivateKey(pemString string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemString))
	if block == nil {
		return nil, fmt.Errorf("failed to parse PEM block")
	}

	privateKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	return privateKey, nil
}

// ParsePublicKey converts a PEM string to *rsa.PublicKey. PKIX is what
// other fediverse implementations publish; PKCS#1 is accepted as fallback.
func ParsePublicKey(pemString string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemString))
	if block == nil {
		return nil, fmt.Errorf("failed to parse PEM block")
	}

	pubKey, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		if pkcs1Key, pkcs1Err := x509.ParsePKCS1PublicKey(block.Bytes); pkcs1Err == nil {
			return pkcs1Key, nil
		}
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}

	rsaPubKey, ok := pubKey.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("not an RSA public key")
	}

	return rsaPubKey, nil
}
