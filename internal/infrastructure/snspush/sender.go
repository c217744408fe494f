package snspush

import (
	"context"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/jiahaoliu666/aws-blog-sub002/internal/config"
)

// Sender pushes messages to a user's messaging app via AWS SNS. The target
// is either a platform endpoint ARN or an E.164 phone number.
type Sender interface {
	SendPush(ctx context.Context, target, message string) error
}

type sender struct {
	client *sns.Client
}

func NewSender(cfg *config.Config) (Sender, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.SNSRegion),
	)
	if err != nil {
		return nil, err
	}
	return &sender{client: sns.NewFromConfig(awsCfg)}, nil
}

func (s *sender) SendPush(ctx context.Context, target, message string) error {
	in := &sns.PublishInput{Message: &message}
	if strings.HasPrefix(target, "arn:") {
		in.TargetArn = &target
	} else {
		in.PhoneNumber = &target
	}
	_, err := s.client.Publish(ctx, in)
	return err
}
