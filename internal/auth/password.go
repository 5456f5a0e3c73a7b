package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Account passwords are stored as Argon2id digests in PHC string form:
//
//	$argon2id$v=19$m=<KiB>,t=<passes>,p=<lanes>$<salt>$<key>
//
// Salt and key use unpadded standard base64. The cost parameters are read
// back from each stored digest, so raising them only affects new hashes.

var errMalformedHash = errors.New("malformed password hash")

// kdfParams are the Argon2id cost settings recorded in a digest.
type kdfParams struct {
	memoryKiB uint32
	passes    uint32
	lanes     uint8
}

// passwordKDF is the cost used for new digests: 64 MiB, three passes, one lane.
var passwordKDF = kdfParams{memoryKiB: 64 * 1024, passes: 3, lanes: 1}

const (
	passwordSaltBytes = 16
	passwordKeyBytes  = 32
)

// HashPassword derives an Argon2id digest of password under a fresh random salt.
func HashPassword(password string) (string, error) {
	salt := make([]byte, passwordSaltBytes)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	key := passwordKDF.derive(password, salt, passwordKeyBytes)
	return passwordKDF.encode(salt, key), nil
}

// VerifyPassword reports whether password matches the stored digest.
// It errors only when the digest itself cannot be parsed.
func VerifyPassword(password, digest string) (bool, error) {
	params, salt, key, err := parseDigest(digest)
	if err != nil {
		return false, err
	}

	candidate := params.derive(password, salt, uint32(len(key))) //nolint:gosec // G115: key length is bounded by the digest
	return subtle.ConstantTimeCompare(key, candidate) == 1, nil
}

func (p kdfParams) derive(password string, salt []byte, keyLen uint32) []byte {
	return argon2.IDKey([]byte(password), salt, p.passes, p.memoryKiB, p.lanes, keyLen)
}

func (p kdfParams) encode(salt, key []byte) string {
	b64 := base64.RawStdEncoding
	return "$argon2id$v=" + strconv.Itoa(argon2.Version) +
		"$m=" + strconv.FormatUint(uint64(p.memoryKiB), 10) +
		",t=" + strconv.FormatUint(uint64(p.passes), 10) +
		",p=" + strconv.FormatUint(uint64(p.lanes), 10) +
		"$" + b64.EncodeToString(salt) +
		"$" + b64.EncodeToString(key)
}

// parseDigest splits a PHC digest into its cost settings, salt and key.
func parseDigest(digest string) (kdfParams, []byte, []byte, error) {
	var params kdfParams

	// A leading "$" yields an empty first field.
	fields := strings.Split(digest, "$")
	if len(fields) != 6 || fields[0] != "" { //nolint:mnd // "", alg, version, params, salt, key
		return params, nil, nil, fmt.Errorf("%w: want 5 $-separated fields", errMalformedHash)
	}
	alg, version, costs, saltField, keyField := fields[1], fields[2], fields[3], fields[4], fields[5]

	if alg != "argon2id" {
		return params, nil, nil, fmt.Errorf("%w: algorithm %q", errMalformedHash, alg)
	}
	if version != "v="+strconv.Itoa(argon2.Version) {
		return params, nil, nil, fmt.Errorf("%w: version %q", errMalformedHash, version)
	}

	if err := params.parse(costs); err != nil {
		return params, nil, nil, err
	}

	salt, err := base64.RawStdEncoding.DecodeString(saltField)
	if err != nil {
		return params, nil, nil, fmt.Errorf("%w: salt: %w", errMalformedHash, err)
	}
	key, err := base64.RawStdEncoding.DecodeString(keyField)
	if err != nil {
		return params, nil, nil, fmt.Errorf("%w: key: %w", errMalformedHash, err)
	}
	if len(key) == 0 {
		return params, nil, nil, fmt.Errorf("%w: empty key", errMalformedHash)
	}

	return params, salt, key, nil
}

// parse reads "m=<KiB>,t=<passes>,p=<lanes>" in that order.
func (p *kdfParams) parse(s string) error {
	names := [3]string{"m", "t", "p"}
	bits := [3]int{32, 32, 8}
	var vals [3]uint64

	parts := strings.Split(s, ",")
	if len(parts) != len(names) {
		return fmt.Errorf("%w: cost parameters %q", errMalformedHash, s)
	}
	for i, part := range parts {
		name, raw, ok := strings.Cut(part, "=")
		if !ok || name != names[i] {
			return fmt.Errorf("%w: cost parameters %q", errMalformedHash, s)
		}
		v, err := strconv.ParseUint(raw, 10, bits[i])
		if err != nil {
			return fmt.Errorf("%w: %s: %w", errMalformedHash, name, err)
		}
		if v == 0 {
			return fmt.Errorf("%w: %s must be positive", errMalformedHash, name)
		}
		vals[i] = v
	}

	p.memoryKiB = uint32(vals[0]) //nolint:gosec // G115: parsed with bitSize 32
	p.passes = uint32(vals[1])    //nolint:gosec // G115: parsed with bitSize 32
	p.lanes = uint8(vals[2])      //nolint:gosec // G115: parsed with bitSize 8
	return nil
}
