/*
 * Copyright 2021 National Library of Norway.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *       http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package repository

import (
	"context"
	"time"

	"github.com/nlnwa/warcrepo/pkg/artifact"
)

const (
	initialBackoff = 10 * time.Millisecond
	maxBackoff     = 2 * time.Second
)

// WaitReady blocks until Ready reports true, ctx is done, or deadline
// elapses, retrying with exponential backoff capped at maxBackoff (§5:
// "the wait retries with exponential backoff capped at a configurable
// ceiling").
func (r *Repository) WaitReady(ctx context.Context, deadline time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	backoff := initialBackoff
	for {
		if r.Ready() {
			return nil
		}
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return artifact.NewIllegalState("repository: not ready before deadline")
		case <-timer.C:
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
