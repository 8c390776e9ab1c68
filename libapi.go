package protowire

import (
	"context"

	runtimepkg "github.com/drblury/protowire/internal/runtime"
	configpkg "github.com/drblury/protowire/internal/runtime/config"
	"github.com/drblury/protowire/internal/runtime/dispatch"
	"github.com/drblury/protowire/internal/runtime/envelope"
	errspkg "github.com/drblury/protowire/internal/runtime/errors"
	handlerpkg "github.com/drblury/protowire/internal/runtime/handlers"
	"github.com/drblury/protowire/internal/runtime/health"
	idspkg "github.com/drblury/protowire/internal/runtime/ids"
	jsoncodec "github.com/drblury/protowire/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/protowire/internal/runtime/logging"
	"github.com/drblury/protowire/internal/runtime/manifest"
	metadatapkg "github.com/drblury/protowire/internal/runtime/metadata"
	"github.com/drblury/protowire/internal/runtime/metrics"
	"github.com/drblury/protowire/internal/runtime/registrar"
	"github.com/drblury/protowire/internal/runtime/schema"
	"github.com/drblury/protowire/transport"
	"google.golang.org/protobuf/proto"
)

type (
	Config              = configpkg.Config
	Service             = runtimepkg.Service
	ServiceDependencies = runtimepkg.ServiceDependencies
	ComponentsResponse  = runtimepkg.ComponentsResponse
	ResourceUsage       = runtimepkg.ResourceUsage

	// Manifest
	Manifest       = manifest.Manifest
	ComponentEntry = manifest.ComponentEntry
	TopicBinding   = manifest.TopicBinding
	HandlerKind    = manifest.HandlerKind
	ManifestFormat = manifest.Format

	// Envelopes
	Envelope[T any]        = envelope.Envelope[T]
	EnvelopeBuilder[T any] = envelope.Builder[T]
	HeaderKey              = envelope.HeaderKey
	Header                 = envelope.Header
	Message                = dispatch.Envelope

	// Handler contracts
	Consumer           = dispatch.Consumer
	Function           = dispatch.Function
	FunctionFanout     = dispatch.FunctionFanout
	Supplier           = dispatch.Supplier
	SupplierFanout     = dispatch.SupplierFanout
	ConsumerFunc       = dispatch.ConsumerFunc
	FunctionFunc       = dispatch.FunctionFunc
	FunctionFanoutFunc = dispatch.FunctionFanoutFunc
	SupplierFunc       = dispatch.SupplierFunc
	SupplierFanoutFunc = dispatch.SupplierFanoutFunc

	// Typed handler adapters
	Codec[T any]                = handlerpkg.Codec[T]
	ProtoCodec[T proto.Message] = handlerpkg.ProtoCodec[T]
	JSONCodec[T any]            = handlerpkg.JSONCodec[T]
	MessageContext              = handlerpkg.MessageContext
	HandlerOption               = handlerpkg.Option
	Handlers                    = registrar.Handlers
	HandlerLookup               = registrar.Lookup
	HandlerLookupFunc           = registrar.LookupFunc
	Registration                = registrar.Registration

	// Job lifecycle hooks
	JobContext = dispatch.JobContext
	JobHooks   = dispatch.Hooks

	// Schema contracts
	SchemaRecord       = schema.Record
	SchemaRegistry     = schema.Registry
	SchemaResolver     = schema.Resolver
	HTTPSchemaRegistry = schema.HTTPRegistry

	Health          = health.Health
	MetricsRecorder = metrics.Recorder
	MetricKind      = metrics.Kind
	TopicCount      = metrics.TopicCount

	Metadata = metadatapkg.Metadata

	LogFields                 = loggingpkg.LogFields
	ServiceLogger             = loggingpkg.ServiceLogger
	EntryLoggerAdapter[T any] = loggingpkg.EntryLoggerAdapter[T]

	ConfigValidationError   = errspkg.ConfigValidationError
	ManifestValidationError = errspkg.ManifestValidationError
	ContractMismatchError   = errspkg.ContractMismatchError
	RegistrationError       = errspkg.RegistrationError

	// Transports
	Connection            = transport.Connection
	TransportMessage      = transport.Message
	TransportStatus       = transport.Status
	TransportBuilder      = transport.Builder
	TransportConfig       = transport.Config
	TransportRegistry     = transport.Registry
	TransportCapabilities = transport.Capabilities
)

var (
	NewService     = runtimepkg.NewService
	TryNewService  = runtimepkg.TryNewService
	ValidateConfig = configpkg.ValidateConfig
	LoadConfigFile = configpkg.LoadFile
	ParseConfig    = configpkg.Parse

	LoadManifest      = manifest.Load
	ParseManifest     = manifest.Parse
	ValidateManifest  = manifest.Validate
	ParseHandlerKind  = manifest.ParseHandlerKind
	NewHandlers       = registrar.NewHandlers
	WithHandlerLogger = handlerpkg.WithLogger

	LoggingHooks  = dispatch.LoggingHooks
	AlertingHooks = dispatch.AlertingHooks

	NewHTTPSchemaRegistry = schema.NewHTTPRegistry
	NewSchemaValidator    = schema.NewValidator
	NewSchemaRecord       = schema.NewRecord
	WithSchemaResolver    = schema.WithResolver

	NewHealthIndicator = health.NewIndicator

	GetCapabilities          = transport.GetCapabilities
	DefaultTransportRegistry = transport.DefaultRegistry
	NewTransportRegistry     = transport.NewRegistry
	RegisterTransport        = transport.Register
	BuildTransport           = transport.Build

	Marshal       = jsoncodec.Marshal
	MarshalIndent = jsoncodec.MarshalIndent
	Unmarshal     = jsoncodec.Unmarshal
	Encode        = jsoncodec.Encode
	Decode        = jsoncodec.Decode

	ErrConfigRequired       = errspkg.ErrConfigRequired
	ErrLoggerRequired       = errspkg.ErrLoggerRequired
	ErrTopicRequired        = errspkg.ErrTopicRequired
	ErrHandlerNameRequired  = errspkg.ErrHandlerNameRequired
	ErrHandlerNotFound      = errspkg.ErrHandlerNotFound
	ErrHandlerRequired      = errspkg.ErrHandlerRequired
	ErrHandlerCapability    = errspkg.ErrHandlerCapability
	ErrUnknownHandlerKind   = errspkg.ErrUnknownHandlerKind
	ErrAlreadyRegistered    = errspkg.ErrAlreadyRegistered
	ErrPayloadRequired      = errspkg.ErrPayloadRequired
	ErrPayloadTypeRequired  = errspkg.ErrPayloadTypeRequired
	ErrMessageTypeNotFound  = errspkg.ErrMessageTypeNotFound
	ErrDispatcherClosed     = errspkg.ErrDispatcherClosed
	ErrConnectionClosed     = errspkg.ErrConnectionClosed
	ErrSchemaRecordNotFound = errspkg.ErrSchemaRecordNotFound

	NewSlogServiceLogger      = loggingpkg.NewSlogServiceLogger
	NewWatermillServiceLogger = loggingpkg.NewWatermillServiceLogger
	NewWatermillLogger        = loggingpkg.NewWatermillAdapter
	WithCorrelationID         = loggingpkg.WithCorrelationID
	CorrelationIDFromContext  = loggingpkg.CorrelationIDFromContext

	NewMetadata = metadatapkg.New

	CreateULID       = idspkg.CreateULID
	NewCorrelationID = idspkg.NewCorrelationID
)

// Handler kinds.
const (
	KindConsumer       = manifest.Consumer
	KindFunction       = manifest.Function
	KindFunctionFanout = manifest.FunctionFanout
	KindSupplier       = manifest.Supplier
	KindSupplierFanout = manifest.SupplierFanout
)

// Well-known envelope headers.
const (
	HeaderPayloadType       = envelope.PayloadType
	HeaderCorrelationID     = envelope.CorrelationID
	HeaderCreationTimestamp = envelope.CreationTimestamp
)

// Counter kinds reported by MetricsRecorder.
const (
	MetricSent     = metrics.Sent
	MetricReceived = metrics.Received
	MetricFailed   = metrics.Failed
)

// DefaultManifestFile is read when Config.ManifestFile is empty.
const DefaultManifestFile = configpkg.DefaultManifestFile

func NewEnvelopeBuilder[T any]() *EnvelopeBuilder[T] {
	return envelope.NewBuilder[T]()
}

func EnvelopeFromMetadata[T any](payload T, md Metadata) *EnvelopeBuilder[T] {
	return envelope.FromMetadata(payload, md)
}

func ProtoCodecFor[T proto.Message](prototype T) (ProtoCodec[T], error) {
	return handlerpkg.Proto(prototype)
}

func ProtoJSONCodecFor[T proto.Message](prototype T) (ProtoCodec[T], error) {
	return handlerpkg.ProtoJSON(prototype)
}

func JSONCodecFor[T any](messageType string) (JSONCodec[T], error) {
	return handlerpkg.JSON[T](messageType)
}

func ConsumeWith[In any](in Codec[In], fn func(ctx context.Context, mc MessageContext, msg In) error, opts ...HandlerOption) (Consumer, error) {
	return handlerpkg.Consume(in, fn, opts...)
}

func ApplyWith[In, Out any](in Codec[In], out Codec[Out], fn func(ctx context.Context, mc MessageContext, msg In) (Out, error), opts ...HandlerOption) (Function, error) {
	return handlerpkg.Apply(in, out, fn, opts...)
}

func ApplyAllWith[In, Out any](in Codec[In], out Codec[Out], fn func(ctx context.Context, mc MessageContext, msg In) ([]Out, error), opts ...HandlerOption) (FunctionFanout, error) {
	return handlerpkg.ApplyAll(in, out, fn, opts...)
}

func SupplyWith[Out any](out Codec[Out], fn func(ctx context.Context) (Out, error)) (Supplier, error) {
	return handlerpkg.Supply(out, fn)
}

func SupplyAllWith[Out any](out Codec[Out], fn func(ctx context.Context) ([]Out, error)) (SupplierFanout, error) {
	return handlerpkg.SupplyAll(out, fn)
}

func NewEntryServiceLogger[T EntryLoggerAdapter[T]](entry T) ServiceLogger {
	return loggingpkg.NewEntryServiceLogger(entry)
}
