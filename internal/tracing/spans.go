package tracing

// Span attribute keys.
const (
	AttrRunID        = "run.id"
	AttrPipelineName = "pipeline.name"
	AttrStepName     = "step.name"
	AttrStepKind     = "step.kind"
	AttrNetworkID    = "network.id"
	AttrRemoteID     = "network.remote_id"
	AttrEntityType   = "entity.type"
	AttrContract     = "contract.address"
	AttrMethod       = "contract.method"
	AttrTxHash       = "tx.hash"
	AttrResumed      = "run.resumed"
)

// Span names.
const (
	SpanPipelineRun   = "pipeline.run"
	SpanPrefixStep    = "step."
	SpanGatewayDeploy = "gateway.deploy"
	SpanGatewayCall   = "gateway.call"
)

// Event names.
const (
	EventStepSkipped     = "step.skipped"
	EventPendingRecorded = "pending.recorded"
)
