package qiyu

import (
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	"strconv"
)

// Signature is the set of values that authenticate one request.
type Signature struct {
	Digest    string // md5 of the body
	Timestamp int64  // unix seconds
	Checksum  string // sha1(secret + digest + timestamp)
}

// Sign computes the request signature for body at unix time ts.
func Sign(secret string, body []byte, ts int64) Signature {
	sum := md5.Sum(body)
	digest := hex.EncodeToString(sum[:])

	checksum := sha1.Sum([]byte(secret + digest + strconv.FormatInt(ts, 10)))

	return Signature{
		Digest:    digest,
		Timestamp: ts,
		Checksum:  hex.EncodeToString(checksum[:]),
	}
}
