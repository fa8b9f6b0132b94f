package observability

import "context"

// Publisher delivers JSON events to the broker.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error
}

var defaultPublisher Publisher

// SetPublisher installs the process-wide event publisher. A nil publisher disables events.
func SetPublisher(publisher Publisher) {
	defaultPublisher = publisher
}

// PublishEvent sends message through the installed publisher, if any.
func PublishEvent(ctx context.Context, routingKey string, message any, headers map[string]string) error {
	if defaultPublisher == nil {
		return nil
	}

	err := defaultPublisher.Publish(ctx, routingKey, message, headers)
	if err != nil {
		IncAMQPPublishError()
	}
	return err
}
