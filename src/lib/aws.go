package lib

import (
	"context"
	"log"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

var snsClient *sns.Client

func AWSGetSNSClient() *sns.Client {
	if snsClient != nil {
		return snsClient
	}
	cfg, err := config.LoadDefaultConfig(context.TODO())
	if err != nil {
		log.Printf("Failed to initialize SNS client: %s\n", err.Error())
		return nil
	}
	snsClient = sns.NewFromConfig(cfg)
	return snsClient
}

// SNSPublishSMS sends a direct SMS to a mobile-money handle.
func SNSPublishSMS(ctx context.Context, phoneNumber string, message string) error {
	client := AWSGetSNSClient()
	if client == nil {
		return nil
	}
	out, err := client.Publish(ctx, &sns.PublishInput{
		PhoneNumber: aws.String(phoneNumber),
		Message:     aws.String(message),
	})
	if err != nil {
		log.Printf("[SNS] Error publishing SMS: %s\n", err.Error())
		return err
	}
	log.Printf("[SNS] Published message: %s\n", *out.MessageId)
	return nil
}
