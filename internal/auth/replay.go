// Copyright 2025 Arion Yau
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

package auth

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ReplayCache remembers token IDs that have already been used. It is
// bounded; once full the oldest IDs are forgotten.
type ReplayCache struct {
	cache *lru.Cache[string, time.Time]
	mutex sync.Mutex
	now   func() time.Time
}

// NewReplayCache creates a cache holding at most maxSize token IDs.
func NewReplayCache(maxSize int) *ReplayCache {
	if maxSize <= 0 {
		maxSize = 1024
	}
	cache, _ := lru.New[string, time.Time](maxSize)
	return &ReplayCache{cache: cache, now: time.Now}
}

// FirstUse records id and reports whether it had not been seen before.
// Entries whose token has already expired are replaced, since an expired
// token is rejected before it gets here.
func (rc *ReplayCache) FirstUse(id string, expires time.Time) bool {
	rc.mutex.Lock()
	defer rc.mutex.Unlock()

	if seen, ok := rc.cache.Get(id); ok && (seen.IsZero() || rc.now().Before(seen)) {
		return false
	}
	rc.cache.Add(id, expires)
	return true
}

// Len returns the number of remembered IDs.
func (rc *ReplayCache) Len() int {
	return rc.cache.Len()
}
