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

package inbox

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dimkr/tusk/actors"
	"github.com/dimkr/tusk/ap"
	"github.com/dimkr/tusk/fed"
	"github.com/dimkr/tusk/queue"
)

func (d *Dispatcher) route(ctx context.Context, job *fed.Incoming, sender *actors.Account, activity *ap.Activity) error {
	switch activity.Type {
	case ap.Follow:
		return d.Follows.Follow(ctx, sender, activity)

	case ap.Undo:
		return d.undo(ctx, sender, activity)

	case ap.Accept:
		return d.Follows.Accept(ctx, sender, job.Recipient, activity.Object)

	case ap.Reject:
		return d.Follows.Reject(ctx, sender, job.Recipient, activity.Object)

	case ap.Update:
		return d.update(ctx, sender, activity)

	case ap.Create:
		return d.create(ctx, sender, activity)

	case ap.Delete:
		if activity.Object.ID() == sender.ActorID(d.Domain) {
			slog.InfoContext(ctx, "Ignoring deletion of actor")
			return nil
		}
		return d.Statuses.Remove(ctx, sender, activity.Object)

	case ap.Announce:
		return d.Statuses.Boosted(ctx, sender, activity)

	case ap.Like:
		return d.Statuses.Liked(ctx, sender, activity)
	}

	slog.InfoContext(ctx, "Ignoring unsupported activity")
	return nil
}

// undo routes an Undo by the type of the undone activity. If it's not inlined, it can be a Follow,
// a Like or an Announce.
func (d *Dispatcher) undo(ctx context.Context, sender *actors.Account, undo *ap.Activity) error {
	inner, ok := undo.Inner()
	if !ok {
		if _, ok := undo.Object.Value(); ok || undo.Object.ID() == "" {
			slog.InfoContext(ctx, "Ignoring undo of non-activity")
			return nil
		}

		return errors.Join(
			d.Follows.Unfollow(ctx, sender, undo.Object),
			d.Statuses.Unliked(ctx, sender, undo.Object),
			d.Statuses.Unboosted(ctx, sender, undo.Object),
		)
	}

	if inner.Actor.ID() != sender.ActorID(d.Domain) {
		slog.InfoContext(ctx, "Dropping undo of activity by another actor", "actor", inner.Actor.ID())
		return nil
	}

	switch inner.Type {
	case ap.Follow:
		return d.Follows.Unfollow(ctx, sender, undo.Object)

	case ap.Like:
		return d.Statuses.Unliked(ctx, sender, undo.Object)

	case ap.Announce:
		return d.Statuses.Unboosted(ctx, sender, undo.Object)
	}

	slog.InfoContext(ctx, "Ignoring undo of unsupported activity", "undone", inner.Type)
	return nil
}

func (d *Dispatcher) update(ctx context.Context, sender *actors.Account, update *ap.Activity) error {
	v, ok := update.Object.Value()
	if !ok {
		// the actor may have changed, but we can't tell
		if update.Object.ID() == sender.ActorID(d.Domain) {
			return queue.Enqueue(ctx, d.DB, actors.RefreshJob, actors.RefreshJob+" "+sender.URI.String, actors.Refresh{URI: sender.URI.String})
		}

		slog.InfoContext(ctx, "Ignoring update of object that is not inlined", "object", update.Object.ID())
		return nil
	}

	switch o := v.(type) {
	case *ap.Actor:
		if o.ID != sender.ActorID(d.Domain) {
			slog.InfoContext(ctx, "Dropping update of another actor", "object", o.ID)
			return nil
		}

		if _, err := d.Actors.Sync(ctx, o, false, true); errors.Is(err, actors.ErrInvalidActor) {
			return queue.Expected(err)
		} else if err != nil {
			return err
		}

		return nil

	case *ap.Content:
		return d.Statuses.Upsert(ctx, sender, o)
	}

	slog.InfoContext(ctx, "Ignoring update of unsupported object", "object", v.Common().Type)
	return nil
}

func (d *Dispatcher) create(ctx context.Context, sender *actors.Account, create *ap.Activity) error {
	v, ok := create.Object.Value()
	if !ok {
		id := create.Object.ID()
		if id == "" {
			slog.InfoContext(ctx, "Dropping create without object")
			return nil
		}

		o, err := fed.Fetch[*ap.Content](ctx, d.Resolver, id)
		if err != nil {
			return fed.JobError(err)
		}

		return d.Statuses.Upsert(ctx, sender, o)
	}

	o, ok := v.(*ap.Content)
	if !ok {
		slog.InfoContext(ctx, "Ignoring create of unsupported object", "object", v.Common().Type)
		return nil
	}

	return d.Statuses.Upsert(ctx, sender, o)
}
