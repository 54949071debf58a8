// internal/workers/communication/campaign-dispatch/notifier.go
package campaigndispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"batch-mailer/internal/common/errors"
	"batch-mailer/internal/common/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// SNSPublisher is the part of the SNS client the summary publisher needs.
type SNSPublisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SummaryPublisher announces finished runs on an SNS topic.
type SummaryPublisher struct {
	client   SNSPublisher
	topicARN string
	logger   logger.Logger
}

func NewSummaryPublisher(client SNSPublisher, topicARN string, log logger.Logger) *SummaryPublisher {
	return &SummaryPublisher{client: client, topicARN: topicARN, logger: log}
}

// Publish sends the run counts. The failures list is left out so no
// addresses leave the worker.
func (p *SummaryPublisher) Publish(ctx context.Context, output *Output) error {
	summary := *output
	summary.Failures = nil

	body, err := json.Marshal(summary)
	if err != nil {
		return errors.NewNotificationSendFailedError("sns", err)
	}

	resp, err := p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Subject:  aws.String(fmt.Sprintf("Campaign dispatch %s", output.Status)),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"status": {
				DataType:    aws.String("String"),
				StringValue: aws.String(output.Status),
			},
		},
	})
	if err != nil {
		return errors.NewNotificationSendFailedError("sns", err)
	}

	fields := map[string]interface{}{"runId": output.RunID}
	if resp != nil {
		fields["messageId"] = aws.ToString(resp.MessageId)
	}
	p.logger.Info("run summary published", fields)
	return nil
}
