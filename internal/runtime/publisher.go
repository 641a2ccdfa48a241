package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	errspkg "github.com/drblury/actuator/internal/runtime/errors"
	idspkg "github.com/drblury/actuator/internal/runtime/ids"
)

// Audit message metadata keys.
const (
	MetadataKeyRequestID   = "request_id"
	MetadataKeyEventSchema = "event_message_schema"
	MetadataKeyEndpoint    = "actuator_endpoint"
	MetadataKeyOperation   = "actuator_operation"
)

// AuditEventSchema names the audit payload in MetadataKeyEventSchema.
const AuditEventSchema = "actuator.audit.v1"

var protoJSONMarshalOptions = protojson.MarshalOptions{
	EmitUnpopulated: true,
}

// NewAuditEvent builds the audit payload for a finished write operation.
func NewAuditEvent(op OperationContext, err error) (*structpb.Struct, error) {
	fields := map[string]any{
		"endpoint":   op.Endpoint,
		"operation":  op.Operation,
		"target":     op.Target,
		"action":     op.Action,
		"requestId":  op.RequestID,
		"startedAt":  op.StartedAt.UTC().Format(time.RFC3339Nano),
		"durationMs": op.Duration.Milliseconds(),
		"success":    err == nil,
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	return structpb.NewStruct(fields)
}

// NewAuditMessage converts the event into a Watermill message with a ULID
// id and the request id in its metadata.
func NewAuditMessage(event *structpb.Struct, op OperationContext) (*message.Message, error) {
	if event == nil {
		return nil, fmt.Errorf("%w: audit event is required", errspkg.ErrInvalidParameter)
	}
	payload, err := protoJSONMarshalOptions.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal audit payload: %w", err)
	}

	msg := message.NewMessage(idspkg.CreateULID(), payload)
	msg.Metadata.Set(MetadataKeyEventSchema, AuditEventSchema)
	msg.Metadata.Set(MetadataKeyEndpoint, op.Endpoint)
	msg.Metadata.Set(MetadataKeyOperation, op.Operation)
	if op.RequestID != "" {
		msg.Metadata.Set(MetadataKeyRequestID, op.RequestID)
	}
	return msg, nil
}

// PublishAudit publishes one audit event to topic.
func PublishAudit(ctx context.Context, publisher message.Publisher, topic string, op OperationContext, opErr error) error {
	if publisher == nil {
		return errspkg.ErrPublisherRequired
	}
	if topic == "" {
		return errspkg.ErrTopicRequired
	}

	event, err := NewAuditEvent(op, opErr)
	if err != nil {
		return err
	}
	msg, err := NewAuditMessage(event, op)
	if err != nil {
		return err
	}
	if ctx != nil {
		msg.SetContext(ctx)
	}
	return publisher.Publish(topic, msg)
}

// AuditHooks publishes an audit event after every write operation. Publish
// failures are reported to onFail and never fail the operation.
func AuditHooks(publisher message.Publisher, topic string, onFail func(error)) OperationHooks {
	publish := func(op OperationContext, opErr error) {
		if !op.Write() {
			return
		}
		ctx := op.Context
		if ctx != nil {
			ctx = context.WithoutCancel(ctx)
		}
		if err := PublishAudit(ctx, publisher, topic, op, opErr); err != nil && onFail != nil {
			onFail(err)
		}
	}
	return OperationHooks{
		OnDone:  func(op OperationContext) { publish(op, nil) },
		OnError: publish,
	}
}
