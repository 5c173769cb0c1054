// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package crud

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/crudkit-tech/crudkit/core"
	"github.com/crudkit-tech/crudkit/core/logger"
	"github.com/crudkit-tech/crudkit/storage"
)

// Notification describes one committed mutation.
type Notification struct {
	Resource  string          `json:"resource"`
	Operation core.Operation  `json:"operation"`
	Key       string          `json:"key"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Notifier receives notifications after committed mutations. Implementations
// must not block the request for long; delivery is best effort and a failed
// delivery never fails the request that triggered it.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// notify publishes a mutation to the configured notifier, if any. The
// mutation is already committed at this point, failures are logged and
// swallowed.
func (e *Extension) notify(ctx context.Context, t *storage.Type, op core.Operation, item storage.Entity) {
	if e.notifier == nil {
		return
	}
	key, _ := storage.Field(item, t.KeyField())
	payload, err := json.MarshalWithOption(item, json.DisableHTMLEscape())
	if err != nil {
		logger.FromContext(ctx).WithError(err).Warnf("Error 1204: marshal %s notification", t.Name)
		payload = nil
	}
	n := Notification{
		Resource:  t.Name,
		Operation: op,
		Key:       fmt.Sprintf("%v", key),
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
	if err := e.notifier.Notify(ctx, n); err != nil {
		logger.FromContext(ctx).WithError(err).Warnf("Error 1205: deliver %s notification", t.Name)
	}
}
