package aws

import (
	"context"
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-aws/sns"
	"github.com/ThreeDotsLabs/watermill-aws/sqs"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/protowire/transport"
	"github.com/drblury/protowire/transport/transporttest"
)

func stubAWS(t *testing.T) {
	t.Helper()
	originalLoader, originalResolver := DefaultConfigLoader, TopicResolverFactory
	originalPub, originalSub := PublisherFactory, SubscriberFactory
	t.Cleanup(func() {
		DefaultConfigLoader, TopicResolverFactory = originalLoader, originalResolver
		PublisherFactory, SubscriberFactory = originalPub, originalSub
	})

	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	DefaultConfigLoader = func(ctx context.Context, opts ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{Region: "us-east-1"}, nil
	}
	TopicResolverFactory = func(accountID, region string) (*sns.GenerateArnTopicResolver, error) {
		return &sns.GenerateArnTopicResolver{}, nil
	}
	PublisherFactory = func(cfg sns.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
		return pubSub, nil
	}
	SubscriberFactory = func(cfg sns.SubscriberConfig, sqsCfg sqs.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
		return pubSub, nil
	}
}

func TestRegister(t *testing.T) {
	original := transport.DefaultRegistry
	defer func() { transport.DefaultRegistry = original }()
	transport.DefaultRegistry = transport.NewRegistry()

	Register()

	caps := transport.GetCapabilities(TransportName)
	assert.Equal(t, "aws", caps.Name)
	assert.True(t, caps.SupportsQueueGroups)
	assert.Equal(t, int64(262144), caps.MaxMessageSize)
}

func TestCapabilities(t *testing.T) {
	assert.Equal(t, transport.AWSCapabilities, Capabilities())
}

func TestBuild(t *testing.T) {
	t.Run("creates a subscriber per queue group", func(t *testing.T) {
		stubAWS(t)
		var queueNames []string
		SubscriberFactory = func(cfg sns.SubscriberConfig, sqsCfg sqs.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
			name, err := cfg.GenerateSqsQueueName(context.Background(), "arn:aws:sns:us-east-1:123456789012:orders")
			require.NoError(t, err)
			queueNames = append(queueNames, name)
			return gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{}), nil
		}

		cfg := &transporttest.Config{AWSRegion: "us-east-1", AWSAccountID: "123456789012"}
		conn, err := Build(context.Background(), cfg, watermill.NopLogger{})
		require.NoError(t, err)
		defer conn.Close()

		noop := func(context.Context, transport.Message) {}
		_, err = conn.Subscribe(context.Background(), "orders", "billing", noop)
		require.NoError(t, err)
		_, err = conn.Subscribe(context.Background(), "orders", "billing", noop)
		require.NoError(t, err)

		assert.Equal(t, []string{"orders-billing"}, queueNames)
	})

	t.Run("custom endpoint is applied to publisher and subscriber", func(t *testing.T) {
		stubAWS(t)
		var pubCfg sns.PublisherConfig
		var subCfg sns.SubscriberConfig
		var queueCfg sqs.SubscriberConfig
		PublisherFactory = func(cfg sns.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
			pubCfg = cfg
			return gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{}), nil
		}
		SubscriberFactory = func(cfg sns.SubscriberConfig, sqsCfg sqs.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
			subCfg, queueCfg = cfg, sqsCfg
			return gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{}), nil
		}

		cfg := &transporttest.Config{AWSRegion: "eu-west-1", AWSEndpoint: "http://localhost:4566"}
		conn, err := Build(context.Background(), cfg, watermill.NopLogger{})
		require.NoError(t, err)
		defer conn.Close()
		_, err = conn.Subscribe(context.Background(), "orders", "", func(context.Context, transport.Message) {})
		require.NoError(t, err)

		require.NotNil(t, pubCfg.AWSConfig.BaseEndpoint)
		assert.Equal(t, "http://localhost:4566", *pubCfg.AWSConfig.BaseEndpoint)
		assert.Equal(t, "eu-west-1", pubCfg.AWSConfig.Region)
		assert.Len(t, pubCfg.OptFns, 1)
		assert.Len(t, subCfg.OptFns, 1)
		assert.Len(t, queueCfg.OptFns, 1)
	})

	t.Run("returns error when config loader fails", func(t *testing.T) {
		stubAWS(t)
		DefaultConfigLoader = func(ctx context.Context, opts ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
			return aws.Config{}, errors.New("config error")
		}

		_, err := Build(context.Background(), &transporttest.Config{AWSRegion: "us-east-1"}, watermill.NopLogger{})
		assert.ErrorContains(t, err, "config error")
	})

	t.Run("returns error when topic resolver fails", func(t *testing.T) {
		stubAWS(t)
		TopicResolverFactory = func(accountID, region string) (*sns.GenerateArnTopicResolver, error) {
			return nil, errors.New("resolver error")
		}

		_, err := Build(context.Background(), &transporttest.Config{AWSRegion: "us-east-1"}, watermill.NopLogger{})
		assert.ErrorContains(t, err, "resolver error")
	})

	t.Run("returns error when publisher factory fails", func(t *testing.T) {
		stubAWS(t)
		PublisherFactory = func(cfg sns.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
			return nil, errors.New("publisher error")
		}

		_, err := Build(context.Background(), &transporttest.Config{AWSRegion: "us-east-1", AWSAccountID: "123456789012"}, watermill.NopLogger{})
		assert.ErrorContains(t, err, "publisher error")
	})
}

func TestSqsQueueNameGenerator(t *testing.T) {
	named := makeSqsQueueNameGenerator("billing")
	name, err := named(context.Background(), "arn:aws:sns:us-east-1:000000000000:orders")
	require.NoError(t, err)
	assert.Equal(t, "orders-billing", name)

	a, err := makeSqsQueueNameGenerator("")(context.Background(), "arn:aws:sns:us-east-1:000000000000:orders")
	require.NoError(t, err)
	b, err := makeSqsQueueNameGenerator("")(context.Background(), "arn:aws:sns:us-east-1:000000000000:orders")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Contains(t, a, "orders-")
}

func TestResolveAccountAndRegion(t *testing.T) {
	t.Run("uses config values", func(t *testing.T) {
		cfg := &transporttest.Config{AWSAccountID: "123456789012", AWSRegion: "us-west-2"}
		accountID, region := resolveAccountAndRegion(cfg, watermill.NopLogger{}, "us-east-1")
		assert.Equal(t, "123456789012", accountID)
		assert.Equal(t, "us-west-2", region)
	})

	t.Run("uses fallback region when config region empty", func(t *testing.T) {
		cfg := &transporttest.Config{AWSAccountID: "123456789012"}
		_, region := resolveAccountAndRegion(cfg, watermill.NopLogger{}, "us-east-1")
		assert.Equal(t, "us-east-1", region)
	})

	t.Run("uses localstack default when endpoint set and account empty", func(t *testing.T) {
		cfg := &transporttest.Config{AWSEndpoint: "http://localhost:4566"}
		accountID, _ := resolveAccountAndRegion(cfg, watermill.NopLogger{}, "us-east-1")
		assert.Equal(t, localstackAccountID, accountID)
	})

	t.Run("replaces malformed account for localstack", func(t *testing.T) {
		cfg := &transporttest.Config{AWSAccountID: "'123'", AWSEndpoint: "http://localhost:4566"}
		accountID, _ := resolveAccountAndRegion(cfg, watermill.NopLogger{}, "us-east-1")
		assert.Equal(t, localstackAccountID, accountID)
	})

	t.Run("returns empty values for nil config", func(t *testing.T) {
		accountID, region := resolveAccountAndRegion(nil, watermill.NopLogger{}, "us-east-1")
		assert.Equal(t, "", accountID)
		assert.Equal(t, "us-east-1", region)
	})
}

func TestAwsEndpointURL(t *testing.T) {
	u, err := awsEndpointURL(nil)
	assert.NoError(t, err)
	assert.Nil(t, u)

	u, err = awsEndpointURL(&transporttest.Config{})
	assert.NoError(t, err)
	assert.Nil(t, u)

	u, err = awsEndpointURL(&transporttest.Config{AWSEndpoint: "http://localhost:4566"})
	require.NoError(t, err)
	assert.Equal(t, "localhost:4566", u.Host)

	_, err = awsEndpointURL(&transporttest.Config{AWSEndpoint: "://bad"})
	assert.Error(t, err)
}
