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

package storage

import (
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/mailkb/core"
)

// Every stored record starts with a format version so the layout can evolve.
const recordVersion = 1

// MarshalReview serializes an EmailReview to bytes.
func MarshalReview(review *core.EmailReview) []byte {
	return encode(func(w *writer) {
		w.int(recordVersion)
		w.str(review.EmailID)
		writeContent(w, &review.Content)
		writeAnalysis(w, &review.Analysis)
		w.str(string(review.Status))
		w.time(review.CreatedAt)
		w.bool(review.ReviewedAt != nil)
		if review.ReviewedAt != nil {
			w.time(*review.ReviewedAt)
		}
		w.str(review.ReviewerID)
		w.str(review.Notes)
	})
}

// UnmarshalReview deserializes an EmailReview from bytes.
func UnmarshalReview(data []byte) (*core.EmailReview, error) {
	r := &reader{bs: data}
	r.version()
	review := &core.EmailReview{}
	review.EmailID = r.str()
	readContent(r, &review.Content)
	readAnalysis(r, &review.Analysis)
	review.Status = core.ReviewStatus(r.str())
	review.CreatedAt = r.time()
	if r.bool() {
		reviewedAt := r.time()
		review.ReviewedAt = &reviewedAt
	}
	review.ReviewerID = r.str()
	review.Notes = r.str()
	if err := r.done("review"); err != nil {
		return nil, err
	}
	return review, nil
}

// MarshalVectorRecord serializes a VectorRecord to bytes.
func MarshalVectorRecord(record *core.VectorRecord) []byte {
	return encode(func(w *writer) {
		w.int(recordVersion)
		w.str(record.ID)
		w.str(record.EmailID)
		w.str(record.Content)
		w.str(record.ContentHash)
		w.strMap(record.Metadata)
		w.int(len(record.Vector))
		for _, x := range record.Vector {
			w.uint32(math.Float32bits(x))
		}
		w.time(record.CreatedAt)
		w.uint64(record.Seq)
	})
}

// UnmarshalVectorRecord deserializes a VectorRecord from bytes.
func UnmarshalVectorRecord(data []byte) (*core.VectorRecord, error) {
	r := &reader{bs: data}
	r.version()
	record := &core.VectorRecord{}
	record.ID = r.str()
	record.EmailID = r.str()
	record.Content = r.str()
	record.ContentHash = r.str()
	record.Metadata = r.strMap()
	if n := r.length(); n > 0 {
		record.Vector = make([]float32, n)
		for i := range record.Vector {
			record.Vector[i] = math.Float32frombits(r.uint32())
		}
	}
	record.CreatedAt = r.time()
	record.Seq = r.uint64()
	if err := r.done("vector record"); err != nil {
		return nil, err
	}
	return record, nil
}

// MarshalAuditEntry serializes an AuditEntry to bytes.
func MarshalAuditEntry(entry *core.AuditEntry) []byte {
	return encode(func(w *writer) {
		w.int(recordVersion)
		w.str(entry.ID)
		w.str(entry.ActionType)
		w.str(entry.UserID)
		w.str(entry.ResourceID)
		w.strMap(entry.Details)
		w.time(entry.Timestamp)
	})
}

// UnmarshalAuditEntry deserializes an AuditEntry from bytes.
func UnmarshalAuditEntry(data []byte) (*core.AuditEntry, error) {
	r := &reader{bs: data}
	r.version()
	entry := &core.AuditEntry{}
	entry.ID = r.str()
	entry.ActionType = r.str()
	entry.UserID = r.str()
	entry.ResourceID = r.str()
	entry.Details = r.strMap()
	entry.Timestamp = r.time()
	if err := r.done("audit entry"); err != nil {
		return nil, err
	}
	return entry, nil
}

func writeContent(w *writer, c *core.EmailContent) {
	w.str(c.ID)
	w.str(c.InternetMessageID)
	w.str(c.Subject)
	w.str(c.SenderName)
	w.str(c.SenderAddress)
	w.strs(c.Recipients)
	w.strs(c.CcRecipients)
	w.time(c.ReceivedAt)
	w.str(c.Body)
	w.bool(c.IsHTML)
	w.str(c.FolderID)
	w.str(c.FolderName)
	w.int(len(c.Attachments))
	for i := range c.Attachments {
		a := &c.Attachments[i]
		w.str(a.ID)
		w.str(a.Name)
		w.str(a.ContentType)
		w.int64(a.Size)
		w.str(a.Text)
	}
	w.str(c.Importance)
}

func readContent(r *reader, c *core.EmailContent) {
	c.ID = r.str()
	c.InternetMessageID = r.str()
	c.Subject = r.str()
	c.SenderName = r.str()
	c.SenderAddress = r.str()
	c.Recipients = r.strs()
	c.CcRecipients = r.strs()
	c.ReceivedAt = r.time()
	c.Body = r.str()
	c.IsHTML = r.bool()
	c.FolderID = r.str()
	c.FolderName = r.str()
	if n := r.length(); n > 0 {
		c.Attachments = make([]core.Attachment, n)
		for i := range c.Attachments {
			a := &c.Attachments[i]
			a.ID = r.str()
			a.Name = r.str()
			a.ContentType = r.str()
			a.Size = r.int64()
			a.Text = r.str()
		}
	}
	c.Importance = r.str()
}

func writeAnalysis(w *writer, a *core.EmailAnalysis) {
	w.str(string(a.Sensitivity))
	w.str(string(a.Department))
	w.strs(a.Tags)
	w.bool(a.IsPrivate)
	w.int(len(a.PIIDetected))
	for _, p := range a.PIIDetected {
		w.str(string(p))
	}
	w.str(string(a.RecommendedAction))
	w.str(a.Summary)
	w.strs(a.KeyPoints)
}

func readAnalysis(r *reader, a *core.EmailAnalysis) {
	a.Sensitivity = core.Sensitivity(r.str())
	a.Department = core.Department(r.str())
	a.Tags = r.strs()
	a.IsPrivate = r.bool()
	n := r.length()
	a.PIIDetected = make([]core.PIIType, n)
	for i := range a.PIIDetected {
		a.PIIDetected[i] = core.PIIType(r.str())
	}
	a.RecommendedAction = core.RecommendedAction(r.str())
	a.Summary = r.str()
	a.KeyPoints = r.strs()
}

// encode runs fn twice: once to size the buffer and once to fill it.
func encode(fn func(w *writer)) []byte {
	sizer := &writer{}
	fn(sizer)
	w := &writer{bs: make([]byte, sizer.n)}
	fn(w)
	return w.bs
}

// writer appends MUS-encoded values to bs. With a nil bs it only
// accumulates the encoded size.
type writer struct {
	bs []byte
	n  int
}

func (w *writer) str(v string) {
	if w.bs == nil {
		w.n += ord.String.Size(v)
		return
	}
	w.n += ord.String.Marshal(v, w.bs[w.n:])
}

func (w *writer) bool(v bool) {
	if w.bs == nil {
		w.n += ord.Bool.Size(v)
		return
	}
	w.n += ord.Bool.Marshal(v, w.bs[w.n:])
}

func (w *writer) int(v int) {
	if w.bs == nil {
		w.n += varint.Int.Size(v)
		return
	}
	w.n += varint.Int.Marshal(v, w.bs[w.n:])
}

func (w *writer) int64(v int64) {
	if w.bs == nil {
		w.n += varint.Int64.Size(v)
		return
	}
	w.n += varint.Int64.Marshal(v, w.bs[w.n:])
}

func (w *writer) uint32(v uint32) {
	if w.bs == nil {
		w.n += varint.Uint32.Size(v)
		return
	}
	w.n += varint.Uint32.Marshal(v, w.bs[w.n:])
}

func (w *writer) uint64(v uint64) {
	if w.bs == nil {
		w.n += varint.Uint64.Size(v)
		return
	}
	w.n += varint.Uint64.Marshal(v, w.bs[w.n:])
}

// time stores microseconds since the Unix epoch.
func (w *writer) time(v time.Time) {
	w.int64(v.UnixMicro())
}

func (w *writer) strs(v []string) {
	w.int(len(v))
	for _, s := range v {
		w.str(s)
	}
}

// strMap writes entries in key order so equal maps encode identically.
func (w *writer) strMap(m map[string]string) {
	w.int(len(m))
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		w.str(k)
		w.str(m[k])
	}
}

// reader decodes MUS values from bs. The first error sticks and turns
// every later read into a no-op returning the zero value.
type reader struct {
	bs  []byte
	n   int
	err error
}

func (r *reader) version() {
	if v := r.int(); r.err == nil && v != recordVersion {
		r.err = fmt.Errorf("%w: unsupported record version %d", ErrSerializationFailed, v)
	}
}

func (r *reader) str() string {
	if r.err != nil {
		return ""
	}
	v, n, err := ord.String.Unmarshal(r.bs[r.n:])
	r.advance(n, err)
	return v
}

func (r *reader) bool() bool {
	if r.err != nil {
		return false
	}
	v, n, err := ord.Bool.Unmarshal(r.bs[r.n:])
	r.advance(n, err)
	return v
}

func (r *reader) int() int {
	if r.err != nil {
		return 0
	}
	v, n, err := varint.Int.Unmarshal(r.bs[r.n:])
	r.advance(n, err)
	return v
}

func (r *reader) int64() int64 {
	if r.err != nil {
		return 0
	}
	v, n, err := varint.Int64.Unmarshal(r.bs[r.n:])
	r.advance(n, err)
	return v
}

func (r *reader) uint32() uint32 {
	if r.err != nil {
		return 0
	}
	v, n, err := varint.Uint32.Unmarshal(r.bs[r.n:])
	r.advance(n, err)
	return v
}

func (r *reader) uint64() uint64 {
	if r.err != nil {
		return 0
	}
	v, n, err := varint.Uint64.Unmarshal(r.bs[r.n:])
	r.advance(n, err)
	return v
}

func (r *reader) time() time.Time {
	v := r.int64()
	if r.err != nil {
		return time.Time{}
	}
	return time.UnixMicro(v).UTC()
}

// length reads a collection length and rejects values the remaining
// input could not possibly hold.
func (r *reader) length() int {
	n := r.int()
	if r.err != nil {
		return 0
	}
	if n < 0 || n > len(r.bs)-r.n {
		r.err = fmt.Errorf("%w: invalid length %d", ErrTruncatedData, n)
		return 0
	}
	return n
}

func (r *reader) strs() []string {
	n := r.length()
	out := make([]string, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		out = append(out, r.str())
	}
	return out
}

func (r *reader) strMap() map[string]string {
	n := r.length()
	out := make(map[string]string, n)
	for i := 0; i < n && r.err == nil; i++ {
		k := r.str()
		out[k] = r.str()
	}
	return out
}

func (r *reader) advance(n int, err error) {
	r.n += n
	if err != nil {
		r.err = fmt.Errorf("%w: %w", ErrTruncatedData, err)
	}
}

func (r *reader) done(what string) error {
	if r.err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSerializationFailed, what, r.err)
	}
	return nil
}
