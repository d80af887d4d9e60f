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

// Package storage provides the storage abstraction layer for mailkb.
//
// Three repositories cover the pipeline's persistent state:
//
//   - ReviewRepository: email reviews and their PENDING/APPROVED/REJECTED status
//   - VectorRepository: embedded emails and similarity search
//   - AuditRepository: the append-only action log
//
// Public constructors in implementation packages return these interfaces:
//
//	reviews, err := badger.NewReviewRepository(backend)  // storage.ReviewRepository
//
// Records are serialized with MUS (see serialization.go) before they are
// written to the key-value store.
//
// # Thread Safety
//
// All repository implementations must be safe for concurrent use.
//
// # Context Support
//
// All repository methods accept context.Context for cancellation. Long
// scans check the context between records.
package storage
