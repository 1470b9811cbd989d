// Package proto implements the hrana-style pipeline wire protocol: JSON
// request/response bodies exchanged with POST /v2/pipeline. All integer
// wire fields that can exceed the safe range of a JSON double (i64 in
// Value.Integer, last_insert_rowid, replication_index) are transmitted as
// decimal strings; blobs are base64 without padding. Field names and
// shapes are grounded on hiisi-server/src/proto.rs (the libSQL hrana
// protocol this server speaks).
package proto

import (
	"encoding/json"
	"fmt"

	"github.com/oriys/hiisid/internal/hiisierr"
)

// PipelineReqBody is the body of POST /v2/pipeline.
type PipelineReqBody struct {
	Baton    *string         `json:"baton"`
	Requests []StreamRequest `json:"requests"`
}

// PipelineRespBody is the response body for POST /v2/pipeline.
type PipelineRespBody struct {
	Baton   *string        `json:"baton"`
	BaseURL *string        `json:"base_url"`
	Results []StreamResult `json:"results"`
}

// rawPipelineReqBody mirrors PipelineReqBody but keeps Requests as raw JSON
// so each element's "type" tag can be dispatched individually.
type rawPipelineReqBody struct {
	Baton    *string           `json:"baton"`
	Requests []json.RawMessage `json:"requests"`
}

// ParseRequest decodes a pipeline request body. Unknown StreamRequest
// variants are rejected; unknown object fields are ignored for forward
// compatibility (the default encoding/json behavior).
func ParseRequest(data []byte) (*PipelineReqBody, error) {
	var raw rawPipelineReqBody
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, hiisierr.JSONParse(err)
	}
	reqs := make([]StreamRequest, 0, len(raw.Requests))
	for i, rm := range raw.Requests {
		sr, err := unmarshalStreamRequest(rm)
		if err != nil {
			return nil, hiisierr.JSONParse(fmt.Errorf("requests[%d]: %w", i, err))
		}
		reqs = append(reqs, sr)
	}
	return &PipelineReqBody{Baton: raw.Baton, Requests: reqs}, nil
}

// FormatResponse encodes a pipeline response body to JSON bytes.
func FormatResponse(resp *PipelineRespBody) ([]byte, error) {
	return json.Marshal(resp)
}
