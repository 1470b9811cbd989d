package proto

import (
	"encoding/json"
	"fmt"
)

// StreamRequest is one tagged-union element of PipelineReqBody.Requests.
// Only Close and Execute are required by the core; Batch and Sequence are
// also implemented, and the rest dispatch to a NOT_IMPLEMENTED result.
type StreamRequest interface {
	streamRequestType() string
}

type CloseStreamReq struct{}

func (CloseStreamReq) streamRequestType() string { return "close" }

type ExecuteStreamReq struct {
	Stmt Stmt `json:"stmt"`
}

func (ExecuteStreamReq) streamRequestType() string { return "execute" }

type BatchStreamReq struct {
	Batch Batch `json:"batch"`
}

func (BatchStreamReq) streamRequestType() string { return "batch" }

type SequenceStreamReq struct {
	SQL              *string `json:"sql,omitempty"`
	SQLID            *int32  `json:"sql_id,omitempty"`
	ReplicationIndex *uint64
}

func (SequenceStreamReq) streamRequestType() string { return "sequence" }

func (r SequenceStreamReq) MarshalJSON() ([]byte, error) {
	ri, err := optUint64String{v: r.ReplicationIndex}.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		SQL              *string         `json:"sql,omitempty"`
		SQLID            *int32          `json:"sql_id,omitempty"`
		ReplicationIndex json.RawMessage `json:"replication_index,omitempty"`
	}{r.SQL, r.SQLID, ri})
}

type DescribeStreamReq struct {
	SQL              *string `json:"sql,omitempty"`
	SQLID            *int32  `json:"sql_id,omitempty"`
	ReplicationIndex *uint64
}

func (DescribeStreamReq) streamRequestType() string { return "describe" }

func (r DescribeStreamReq) MarshalJSON() ([]byte, error) {
	ri, err := optUint64String{v: r.ReplicationIndex}.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		SQL              *string         `json:"sql,omitempty"`
		SQLID            *int32          `json:"sql_id,omitempty"`
		ReplicationIndex json.RawMessage `json:"replication_index,omitempty"`
	}{r.SQL, r.SQLID, ri})
}

type StoreSqlStreamReq struct {
	SQLID int32  `json:"sql_id"`
	SQL   string `json:"sql"`
}

func (StoreSqlStreamReq) streamRequestType() string { return "store_sql" }

type CloseSqlStreamReq struct {
	SQLID int32 `json:"sql_id"`
}

func (CloseSqlStreamReq) streamRequestType() string { return "close_sql" }

type GetAutocommitStreamReq struct{}

func (GetAutocommitStreamReq) streamRequestType() string { return "get_autocommit" }

// unmarshalStreamRequest dispatches on the "type" discriminator.
// Unknown variants are rejected as a parse error.
func unmarshalStreamRequest(data []byte) (StreamRequest, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, err
	}
	switch head.Type {
	case "close":
		return CloseStreamReq{}, nil
	case "execute":
		var r ExecuteStreamReq
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, err
		}
		return r, nil
	case "batch":
		var r BatchStreamReq
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, err
		}
		return r, nil
	case "sequence":
		var w struct {
			SQL              *string         `json:"sql,omitempty"`
			SQLID            *int32          `json:"sql_id,omitempty"`
			ReplicationIndex json.RawMessage `json:"replication_index,omitempty"`
		}
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, err
		}
		ri, err := unmarshalOptUint64String(w.ReplicationIndex)
		if err != nil {
			return nil, err
		}
		return SequenceStreamReq{SQL: w.SQL, SQLID: w.SQLID, ReplicationIndex: ri}, nil
	case "describe":
		var w struct {
			SQL              *string         `json:"sql,omitempty"`
			SQLID            *int32          `json:"sql_id,omitempty"`
			ReplicationIndex json.RawMessage `json:"replication_index,omitempty"`
		}
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, err
		}
		ri, err := unmarshalOptUint64String(w.ReplicationIndex)
		if err != nil {
			return nil, err
		}
		return DescribeStreamReq{SQL: w.SQL, SQLID: w.SQLID, ReplicationIndex: ri}, nil
	case "store_sql":
		var r StoreSqlStreamReq
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, err
		}
		return r, nil
	case "close_sql":
		var r CloseSqlStreamReq
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, err
		}
		return r, nil
	case "get_autocommit":
		return GetAutocommitStreamReq{}, nil
	default:
		return nil, fmt.Errorf("unknown stream request type %q", head.Type)
	}
}

// MarshalStreamRequest encodes a StreamRequest with its "type" tag, for
// clients/tests that construct pipeline requests programmatically.
func MarshalStreamRequest(r StreamRequest) ([]byte, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, err
	}
	typeJSON, err := json.Marshal(r.streamRequestType())
	if err != nil {
		return nil, err
	}
	m["type"] = typeJSON
	return json.Marshal(m)
}

// MarshalJSON on PipelineReqBody tags each request element with its type.
func (p PipelineReqBody) MarshalJSON() ([]byte, error) {
	type alias struct {
		Baton    *string           `json:"baton"`
		Requests []json.RawMessage `json:"requests"`
	}
	raws := make([]json.RawMessage, 0, len(p.Requests))
	for _, r := range p.Requests {
		b, err := MarshalStreamRequest(r)
		if err != nil {
			return nil, err
		}
		raws = append(raws, b)
	}
	return json.Marshal(alias{Baton: p.Baton, Requests: raws})
}
