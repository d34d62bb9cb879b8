// Package firehose implements the Kinesis Firehose transform-invocation
// contract: a batch of base64-encoded records in, one status-tagged record
// out per input record, in input order.
package firehose

// Result is the per-record transformation status reported to the
// delivery stream.
type Result string

const (
	// ResultOk marks a record that was transformed successfully.
	ResultOk Result = "Ok"

	// ResultProcessingFailed marks a record whose payload could not be
	// transformed; its data is returned unmodified.
	ResultProcessingFailed Result = "ProcessingFailed"
)

// Record is one input record from the delivery stream.
type Record struct {
	RecordID string `json:"recordId"`
	Data     string `json:"data"`
}

// Event is the batch delivered to one transform invocation.
type Event struct {
	Records []Record `json:"records"`
}

// TransformedRecord is the per-record transform outcome.
type TransformedRecord struct {
	RecordID string `json:"recordId"`
	Result   Result `json:"result"`
	Data     string `json:"data"`
}

// Response is the assembled batch result returned to the delivery stream.
type Response struct {
	Records []TransformedRecord `json:"records"`
}
