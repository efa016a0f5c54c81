package services

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"strconv"
)

// Fingerprint derives the deterministic cache identity of a request from
// its prompt, backend, model, temperature and max token count. No other
// request field participates. Each field is length-framed before hashing so
// distinct field tuples can never collide by concatenation.
func Fingerprint(req *GenerationRequest) string {
	h := sha256.New()
	fields := []string{
		req.Prompt,
		string(req.Backend),
		req.Model,
		strconv.FormatFloat(req.Temperature, 'g', -1, 64),
		strconv.Itoa(req.MaxTokens),
	}
	var frame [8]byte
	for _, field := range fields {
		binary.BigEndian.PutUint64(frame[:], uint64(len(field)))
		h.Write(frame[:])
		h.Write([]byte(field))
	}
	return hex.EncodeToString(h.Sum(nil))
}
