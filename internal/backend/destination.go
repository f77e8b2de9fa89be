package backend

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
)

// exerciseDestination computes the local directory for an exercise:
// <root>/<org>/<course>/<exercise>-<rev>. rev is derived from the checksum
// and deadline, so a re-published exercise lands in a fresh directory
// instead of silently overwriting the student's work.
func exerciseDestination(root, org string, d *ExerciseDetails) string {
	h := sha256.Sum256([]byte(d.Checksum + "\x00" + d.Deadline))
	rev := hex.EncodeToString(h[:])[:8]
	return filepath.Join(root, org, d.CourseName, fmt.Sprintf("%s-%s", d.Name, rev))
}
