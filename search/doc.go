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


// Package search provides semantic search over indexed emails.
//
// A query is embedded with the same model used at indexing time and ranked
// against the vector index by cosine similarity. Results can be narrowed by
// department and sensitivity; filters apply before ranking, so a filtered
// search still returns up to Limit hits.
//
// Each result lists the query terms that appear verbatim in the email, with
// stop words ignored. Verbatim matches are reported, not scored.
package search
