// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package badger

import (
	"encoding/binary"
	"time"
)

// Every prefix ends in ':' so no prefix is a prefix of another.
const (
	reviewPrefix = "revrec:"
	vectorPrefix = "vecrec:"
	vectorSeq    = "vecseq"
	auditPrefix  = "audrec:"
	auditSeq     = "audseq"
)

// makeReviewKey generates a key for a review by email ID.
func makeReviewKey(emailID string) []byte {
	return []byte(reviewPrefix + emailID)
}

// makeVectorKey generates a key for a vector record by ID.
func makeVectorKey(id string) []byte {
	return []byte(vectorPrefix + id)
}

// makeAuditKey generates a time-ordered key for an audit entry.
// Format: prefix:timestamp:seq
func makeAuditKey(timestamp time.Time, seq uint64) []byte {
	buf := make([]byte, len(auditPrefix)+16) // 8 bytes for timestamp + 8 bytes for seq
	offset := copy(buf, auditPrefix)
	// Write in BigEndian order so lexicographic sort works correctly
	binary.BigEndian.PutUint64(buf[offset:], uint64(timestamp.UnixMicro()))
	offset += 8
	binary.BigEndian.PutUint64(buf[offset:], seq)
	return buf
}

// makeAuditSeekKey generates the largest possible audit key at or before
// timestamp, for reverse iteration.
func makeAuditSeekKey(timestamp time.Time) []byte {
	return makeAuditKey(timestamp, ^uint64(0))
}

// prefixEnd returns a key sorting after every key that starts with prefix.
func prefixEnd(prefix string) []byte {
	return append([]byte(prefix), 0xFF)
}
