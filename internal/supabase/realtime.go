package supabase

import (
	"context"
	"fmt"

	"github.com/supabase-community/supabase-go"
	"mulmocast-backend/internal/generation"
)

// EventPublisher records generation events in a table. Supabase Realtime
// broadcasts the inserts to subscribed clients, so rows double as the
// notification channel.
type EventPublisher struct {
	client *supabase.Client
	table  string
}

var _ generation.Publisher = (*EventPublisher)(nil)

func NewEventPublisher(client *supabase.Client, table string) *EventPublisher {
	return &EventPublisher{
		client: client,
		table:  table,
	}
}

func (p *EventPublisher) Publish(_ context.Context, event generation.Event) error {
	_, _, err := p.client.From(p.table).Insert(EventRow(event), false, "", "minimal", "").Execute()
	if err != nil {
		return fmt.Errorf("failed to insert %s event: %w", event.Type, err)
	}
	return nil
}

// EventRow maps an event onto the generation_events columns.
func EventRow(event generation.Event) map[string]interface{} {
	return event.Payload()
}
