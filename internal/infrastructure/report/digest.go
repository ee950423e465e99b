// Package report delivers finished grading reports: to a JSON file, to object
// storage, or to several destinations at once.
package report

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"golang.org/x/crypto/blake2b"

	"github.com/alem-hub/taskchecker/internal/domain/grading"
)

// Encode renders a report as indented JSON. Results are written in nickname
// order so that the same results always encode to the same bytes, whatever
// order the workers finished in. The report itself is not modified.
func Encode(r *grading.Report) ([]byte, error) {
	sorted := *r
	sorted.Results = append([]grading.StudentResult(nil), r.Results...)
	sort.SliceStable(sorted.Results, func(i, j int) bool {
		return sorted.Results[i].Student.Nickname < sorted.Results[j].Student.Nickname
	})

	data, err := json.MarshalIndent(&sorted, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode report %s: %w", r.RunID, err)
	}
	return data, nil
}

// Digest is the hex BLAKE2b-256 checksum of an encoded report.
func Digest(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// EncodeWithDigest returns the encoded report together with its digest.
func EncodeWithDigest(r *grading.Report) ([]byte, string, error) {
	data, err := Encode(r)
	if err != nil {
		return nil, "", err
	}
	return data, Digest(data), nil
}
