// Package bedrock adapts the unified message model to the Amazon
// Bedrock Converse wire protocol.
//
// Converse is Bedrock's model-agnostic conversation API: one typed
// request shape serves every hosted model family, so this adapter
// never branches on the model id. System text travels as system
// content blocks, tool schemas as tool specification documents, and
// tool results as tool_result blocks inside a user message. Tool-use
// ids are first-class on this protocol and pass through verbatim in
// both directions.
//
// On streams, tool-use input arrives as raw JSON fragments keyed by
// content block index; fragments are assembled internally and surface
// as one completed tool-calls event before the stream finishes.
//
// Authentication rides the AWS SDK's default credential chain
// (environment, profiles, IAM roles). The region comes from
// ClientConfig.Extra["region"].
package bedrock
