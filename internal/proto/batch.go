package proto

import (
	"encoding/json"
	"fmt"
)

// Batch is an ordered list of conditioned statements, executed against the
// same pinned connection. Grounded on proto.rs's Batch/BatchStep/BatchCond
// and on its Batch::transactional helper.
type Batch struct {
	Steps            []BatchStep
	ReplicationIndex *uint64
}

type batchWire struct {
	Steps            []BatchStep     `json:"steps"`
	ReplicationIndex json.RawMessage `json:"replication_index,omitempty"`
}

func (b Batch) MarshalJSON() ([]byte, error) {
	ri, err := optUint64String{v: b.ReplicationIndex}.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return json.Marshal(batchWire{Steps: b.Steps, ReplicationIndex: ri})
}

func (b *Batch) UnmarshalJSON(data []byte) error {
	var w batchWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	var ri *uint64
	if len(w.ReplicationIndex) > 0 {
		var err error
		ri, err = unmarshalOptUint64String(w.ReplicationIndex)
		if err != nil {
			return err
		}
	}
	*b = Batch{Steps: w.Steps, ReplicationIndex: ri}
	return nil
}

// Transactional builds a Batch that wraps stmts in BEGIN/COMMIT, rolling
// back if any step failed, matching proto.rs's Batch::transactional.
func Transactional(stmts []Stmt) Batch {
	steps := make([]BatchStep, 0, len(stmts)+3)
	steps = append(steps, BatchStep{Stmt: NewStmt("BEGIN TRANSACTION", false)})
	var count uint32
	for i, stmt := range stmts {
		count++
		cond := BatchCondOk(uint32(i))
		steps = append(steps, BatchStep{Condition: &cond, Stmt: stmt})
	}
	commitCond := BatchCondOk(count)
	steps = append(steps, BatchStep{Condition: &commitCond, Stmt: NewStmt("COMMIT", false)})
	rollbackCond := BatchCondNot(BatchCondOk(count + 1))
	steps = append(steps, BatchStep{Condition: &rollbackCond, Stmt: NewStmt("ROLLBACK", false)})
	return Batch{Steps: steps}
}

// BatchStep is one conditioned statement within a Batch.
type BatchStep struct {
	Condition *BatchCond `json:"condition,omitempty"`
	Stmt      Stmt       `json:"stmt"`
}

// BatchCondKind discriminates a BatchCond's variant.
type BatchCondKind int

const (
	CondOk BatchCondKind = iota
	CondError
	CondNot
	CondAnd
	CondOr
	CondIsAutocommit
)

// BatchCond gates whether a BatchStep runs, based on the outcome of
// previous steps.
type BatchCond struct {
	Kind  BatchCondKind
	Step  uint32      // Ok, Error
	Not   *BatchCond  // Not
	Conds []BatchCond // And, Or
}

func BatchCondOk(step uint32) BatchCond    { return BatchCond{Kind: CondOk, Step: step} }
func BatchCondError(step uint32) BatchCond { return BatchCond{Kind: CondError, Step: step} }
func BatchCondNot(c BatchCond) BatchCond   { return BatchCond{Kind: CondNot, Not: &c} }

func (c BatchCond) MarshalJSON() ([]byte, error) {
	switch c.Kind {
	case CondOk:
		return json.Marshal(struct {
			Type string `json:"type"`
			Step uint32 `json:"step"`
		}{"ok", c.Step})
	case CondError:
		return json.Marshal(struct {
			Type string `json:"type"`
			Step uint32 `json:"step"`
		}{"error", c.Step})
	case CondNot:
		return json.Marshal(struct {
			Type string    `json:"type"`
			Cond BatchCond `json:"cond"`
		}{"not", *c.Not})
	case CondAnd:
		return json.Marshal(struct {
			Type  string      `json:"type"`
			Conds []BatchCond `json:"conds"`
		}{"and", c.Conds})
	case CondOr:
		return json.Marshal(struct {
			Type  string      `json:"type"`
			Conds []BatchCond `json:"conds"`
		}{"or", c.Conds})
	case CondIsAutocommit:
		return []byte(`{"type":"is_autocommit"}`), nil
	default:
		return nil, fmt.Errorf("proto: unknown batch cond kind %d", c.Kind)
	}
}

func (c *BatchCond) UnmarshalJSON(data []byte) error {
	var head struct {
		Type  string          `json:"type"`
		Step  uint32          `json:"step"`
		Cond  json.RawMessage `json:"cond"`
		Conds json.RawMessage `json:"conds"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	switch head.Type {
	case "ok":
		*c = BatchCond{Kind: CondOk, Step: head.Step}
	case "error":
		*c = BatchCond{Kind: CondError, Step: head.Step}
	case "not":
		var inner BatchCond
		if err := json.Unmarshal(head.Cond, &inner); err != nil {
			return err
		}
		*c = BatchCond{Kind: CondNot, Not: &inner}
	case "and", "or":
		var inner []BatchCond
		if err := json.Unmarshal(head.Conds, &inner); err != nil {
			return err
		}
		kind := CondAnd
		if head.Type == "or" {
			kind = CondOr
		}
		*c = BatchCond{Kind: kind, Conds: inner}
	case "is_autocommit":
		*c = BatchCond{Kind: CondIsAutocommit}
	default:
		return fmt.Errorf("unknown batch condition type %q", head.Type)
	}
	return nil
}

// BatchResult is the outcome of executing a Batch.
type BatchResult struct {
	StepResults      []*StmtResult `json:"step_results"`
	StepErrors       []*Error      `json:"step_errors"`
	ReplicationIndex *uint64       `json:"-"`
}

type batchResultWire struct {
	StepResults      []*StmtResult   `json:"step_results"`
	StepErrors       []*Error        `json:"step_errors"`
	ReplicationIndex json.RawMessage `json:"replication_index,omitempty"`
}

func (b BatchResult) MarshalJSON() ([]byte, error) {
	ri, err := optUint64String{v: b.ReplicationIndex}.MarshalJSON()
	if err != nil {
		return nil, err
	}
	stepResults := b.StepResults
	if stepResults == nil {
		stepResults = []*StmtResult{}
	}
	stepErrors := b.StepErrors
	if stepErrors == nil {
		stepErrors = []*Error{}
	}
	return json.Marshal(batchResultWire{StepResults: stepResults, StepErrors: stepErrors, ReplicationIndex: ri})
}

func (b *BatchResult) UnmarshalJSON(data []byte) error {
	var w batchResultWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	var ri *uint64
	if len(w.ReplicationIndex) > 0 {
		var err error
		ri, err = unmarshalOptUint64String(w.ReplicationIndex)
		if err != nil {
			return err
		}
	}
	*b = BatchResult{StepResults: w.StepResults, StepErrors: w.StepErrors, ReplicationIndex: ri}
	return nil
}

// DescribeResult describes a prepared statement's parameters and columns.
type DescribeResult struct {
	Params     []DescribeParam `json:"params"`
	Cols       []DescribeCol   `json:"cols"`
	IsExplain  bool            `json:"is_explain"`
	IsReadonly bool            `json:"is_readonly"`
}

type DescribeParam struct {
	Name *string `json:"name"`
}

type DescribeCol struct {
	Name     string  `json:"name"`
	Decltype *string `json:"decltype"`
}
