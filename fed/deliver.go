/*
Copyright 2026 Dima Krasner

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package fed

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/dimkr/tusk/ap"
	"github.com/dimkr/tusk/cfg"
	"github.com/dimkr/tusk/dbx"
	"github.com/dimkr/tusk/httpsig"
	"github.com/dimkr/tusk/queue"
)

// DeliverJob is the job kind of a [Delivery].
const DeliverJob = "deliver"

// Delivery is a queued POST of an activity to an inbox.
type Delivery struct {
	// Sender is the ID of the local account that signs the request, if any.
	Sender   string
	Inbox    string
	Activity []byte
}

// Keys looks up the signing key of a local account.
type Keys interface {
	// Key returns nil if the account has no private key.
	Key(ctx context.Context, accountID string) (*httpsig.Key, error)
}

// Deliverer sends queued activities.
type Deliverer struct {
	Domain    string
	Config    *cfg.Config
	Client    Client
	BlockList *BlockList
	Keys      Keys

	now func() time.Time
}

// NewDeliverer returns a new [Deliverer].
func NewDeliverer(domain string, config *cfg.Config, client Client, blockList *BlockList, keys Keys) *Deliverer {
	return &Deliverer{
		Domain:    domain,
		Config:    config,
		Client:    client,
		BlockList: blockList,
		Keys:      keys,
		now:       time.Now,
	}
}

// Deliver queues the delivery of an activity to an inbox.
//
// db is usually the transaction that makes the change described by the activity, so the activity is
// sent only if the change is committed.
func Deliver(ctx context.Context, db dbx.Execer, sender, inbox string, activity ap.Object) error {
	if inbox == "" {
		return fmt.Errorf("cannot deliver %s: empty inbox", activity.Common().ID)
	}

	body, err := ap.Serialize(activity)
	if err != nil {
		return fmt.Errorf("failed to serialize %s: %w", activity.Common().ID, err)
	}

	var dedup string
	if id := activity.Common().ID; id != "" {
		dedup = DeliverJob + " " + id + " " + inbox
	}

	return queue.Enqueue(ctx, db, DeliverJob, dedup, Delivery{Sender: sender, Inbox: inbox, Activity: body})
}

// DeliverToFollowers queues the delivery of an activity to all remote followers of a local account.
//
// Followers that share an inbox receive the activity once.
func DeliverToFollowers(ctx context.Context, db dbx.Querier, sender string, activity ap.Object) error {
	inboxes, err := dbx.QueryCollect[string](
		ctx,
		db,
		`SELECT DISTINCT CASE WHEN accounts.shared_inbox != '' THEN accounts.shared_inbox ELSE accounts.inbox END FROM follows JOIN accounts ON accounts.id = follows.account_id WHERE follows.target_account_id = ? AND follows.pending = 0 AND accounts.uri IS NOT NULL AND accounts.inbox != ''`,
		sender,
	)
	if err != nil {
		return fmt.Errorf("failed to list inboxes of %s followers: %w", sender, err)
	}

	for _, inbox := range inboxes {
		if err := Deliver(ctx, db, sender, inbox, activity); err != nil {
			return err
		}
	}

	return nil
}

// Deliver sends a queued activity.
//
// If the sender has a private key, the request is signed. HTTP 429 is a transient error; any other
// unsuccessful status code fails the job without retry.
func (d *Deliverer) Deliver(ctx context.Context, job *Delivery) error {
	u, err := url.Parse(job.Inbox)
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return queue.Expected(fmt.Errorf("%w: %s", ErrInvalidURL, job.Inbox))
	}

	if u.Host == d.Domain {
		slog.DebugContext(ctx, "Skipping local inbox", "inbox", job.Inbox)
		return nil
	}

	if d.BlockList.Contains(u.Hostname()) {
		return queue.Expected(fmt.Errorf("cannot deliver to %s: %w", job.Inbox, ErrBlockedDomain))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, job.Inbox, bytes.NewReader(job.Activity))
	if err != nil {
		return queue.Expected(err)
	}

	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Content-Type", ap.ContentType)

	var key *httpsig.Key
	if job.Sender != "" {
		if key, err = d.Keys.Key(ctx, job.Sender); err != nil {
			return fmt.Errorf("failed to get key of %s: %w", job.Sender, err)
		}
	}

	now := d.now()

	if key == nil {
		digest, err := ap.Digest("SHA-256", job.Activity)
		if err != nil {
			return err
		}

		req.Header.Set("Digest", digest)
		req.Header.Set("Date", now.UTC().Format(http.TimeFormat))
		req.Header.Set("Host", u.Host)
	} else if err := httpsig.Sign(req, *key, now); err != nil {
		return fmt.Errorf("failed to sign request to %s: %w", job.Inbox, err)
	}

	resp, err := d.Client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", job.Inbox, err)
	}
	defer resp.Body.Close()

	io.Copy(io.Discard, io.LimitReader(resp.Body, d.Config.MaxResponseBodySize))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		slog.InfoContext(ctx, "Delivered activity", "inbox", job.Inbox, "status", resp.StatusCode)
		return nil
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter, _ := parseRetryAfter(resp.Header.Get("Retry-After"), now)
		retryAfter = min(retryAfter, d.Config.JobMaxBackoff)
		return queue.Transient(&StatusError{URL: job.Inbox, StatusCode: resp.StatusCode, RetryAfter: retryAfter}, retryAfter)
	}

	return queue.Expected(&StatusError{URL: job.Inbox, StatusCode: resp.StatusCode})
}
